package flags

import (
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "UNITGATE"

var (
	PackageName = &cli.StringFlag{
		Name:    "package-name",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGE_NAME"),
		Usage:   "Package whose tests to run (eg. 'ckeditor5-bookmark')",
	}
	CheckCoverage = &cli.BoolFlag{
		Name:    "check-coverage",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CHECK_COVERAGE"),
		Usage:   "Collect coverage and require it to be complete",
	}
	AllowNonFullCoverage = &cli.BoolFlag{
		Name:    "allow-non-full-coverage",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ALLOW_NON_FULL_COVERAGE"),
		Usage:   "Never fail the run on incomplete coverage",
	}
	CoverageFile = &cli.StringFlag{
		Name:    "coverage-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COVERAGE_FILE"),
		Usage:   "File the coverage reports of this run are appended to. Omit to skip aggregation.",
	}
	Retries = &cli.IntFlag{
		Name:    "retries",
		Value:   runner.DefaultRetries,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RETRIES"),
		Usage:   "Number of additional attempts after a failed test run",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to a YAML file overriding the test and coverage commands (eg. 'unitgate.yaml')",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Repository root the commands run in and coverage globs are resolved from",
	}
	LogDir = &cli.StringFlag{
		Name:    "log-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOG_DIR"),
		Usage:   "Directory to store per-attempt logs and the run summary. Omit to disable.",
	}
	PackagePrefix = &cli.StringFlag{
		Name:    "package-prefix",
		Value:   runner.DefaultPackagePrefix,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGE_PREFIX"),
		Usage:   "Regular expression stripped from the package name to derive the test filter",
	}
)

// No flag is required: a missing package name is left for the test runner to reject.
var optionalFlags = []cli.Flag{
	PackageName,
	CheckCoverage,
	AllowNonFullCoverage,
	CoverageFile,
	Retries,
	ConfigFile,
	WorkDir,
	LogDir,
	PackagePrefix,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(Flags, optionalFlags...)
}
