package unitgate

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ethereum-optimism/infra/op-unitgate/coverage"
	"github.com/ethereum-optimism/infra/op-unitgate/flags"
	"github.com/ethereum-optimism/infra/op-unitgate/runner"
)

// TestCommandConfig configures the test command
type TestCommandConfig struct {
	Command      runner.CommandTemplate `yaml:"command"`
	CoverageFlag string                 `yaml:"coverage_flag"`
}

// CoverageCommandConfig configures the coverage phase
type CoverageCommandConfig struct {
	DataGlob     string                 `yaml:"data_glob"`
	DataDir      string                 `yaml:"data_dir"`
	ReportGlob   string                 `yaml:"report_glob"`
	CheckCommand runner.CommandTemplate `yaml:"check_command"`
	Thresholds   *coverage.Thresholds   `yaml:"thresholds"`
}

// Commands is the content of the optional YAML config file
type Commands struct {
	Test     TestCommandConfig     `yaml:"test"`
	Coverage CoverageCommandConfig `yaml:"coverage"`
}

// DefaultCommands returns the commands used when no config file is given
func DefaultCommands() Commands {
	thresholds := coverage.FullCoverage()
	return Commands{
		Test: TestCommandConfig{
			Command:      runner.DefaultTestCommand,
			CoverageFlag: runner.DefaultCoverageFlag,
		},
		Coverage: CoverageCommandConfig{
			DataGlob:     coverage.DefaultDataGlob,
			DataDir:      coverage.DefaultDataDir,
			ReportGlob:   coverage.DefaultReportGlob,
			CheckCommand: coverage.DefaultCheckCommand,
			Thresholds:   &thresholds,
		},
	}
}

// LoadCommands reads a YAML command config. Keys missing from the file keep
// their default values; unknown keys are rejected.
func LoadCommands(path string) (Commands, error) {
	cmds := DefaultCommands()

	data, err := os.ReadFile(path)
	if err != nil {
		return cmds, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Thresholds missing from the file keep their full-coverage default
	defaults := coverage.FullCoverage()
	file := Commands{Coverage: CoverageCommandConfig{Thresholds: &defaults}}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return cmds, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if len(file.Test.Command) > 0 {
		cmds.Test.Command = file.Test.Command
	}
	if file.Test.CoverageFlag != "" {
		cmds.Test.CoverageFlag = file.Test.CoverageFlag
	}
	if file.Coverage.DataGlob != "" {
		cmds.Coverage.DataGlob = file.Coverage.DataGlob
	}
	if file.Coverage.DataDir != "" {
		cmds.Coverage.DataDir = file.Coverage.DataDir
	}
	if file.Coverage.ReportGlob != "" {
		cmds.Coverage.ReportGlob = file.Coverage.ReportGlob
	}
	if len(file.Coverage.CheckCommand) > 0 {
		cmds.Coverage.CheckCommand = file.Coverage.CheckCommand
	}
	if file.Coverage.Thresholds != nil {
		if err := file.Coverage.Thresholds.Validate(); err != nil {
			return cmds, fmt.Errorf("invalid thresholds in %s: %w", path, err)
		}
		cmds.Coverage.Thresholds = file.Coverage.Thresholds
	}
	return cmds, nil
}

// Config holds the resolved options of a single gate run
type Config struct {
	PackageName          string
	ShortName            string // PackageName without the package prefix
	CheckCoverage        bool
	AllowNonFullCoverage bool
	CoverageFile         string // Empty when no aggregation is requested
	Retries              int
	WorkDir              string
	LogDir               string // Empty when file logging is disabled
	Commands             Commands
	Log                  log.Logger
}

// CoverageGateEnabled reports whether the coverage gate runs
func (c *Config) CoverageGateEnabled() bool {
	return c.CheckCoverage && !c.AllowNonFullCoverage
}

// AggregationEnabled reports whether coverage reports are aggregated once the gate ran
func (c *Config) AggregationEnabled() bool {
	return c.CoverageFile != ""
}

// NewConfig creates a new Config from cli context.
// Options are only coerced, not validated: an empty package name is passed on.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	prefixExpr := ctx.String(flags.PackagePrefix.Name)
	prefix, err := regexp.Compile(prefixExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid package prefix pattern %q: %w", prefixExpr, err)
	}

	cmds := DefaultCommands()
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		cmds, err = LoadCommands(path)
		if err != nil {
			return nil, err
		}
	}

	workDir := ctx.String(flags.WorkDir.Name)
	if workDir == "" {
		workDir = "."
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for work directory '%s': %w", workDir, err)
	}

	coverageFile := ctx.String(flags.CoverageFile.Name)
	if coverageFile != "" {
		coverageFile, err = filepath.Abs(coverageFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for coverage file '%s': %w", ctx.String(flags.CoverageFile.Name), err)
		}
	}

	logDir := ctx.String(flags.LogDir.Name)
	if logDir != "" {
		logDir, err = filepath.Abs(logDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", ctx.String(flags.LogDir.Name), err)
		}
	}

	packageName := ctx.String(flags.PackageName.Name)
	if packageName == "" {
		log.Warn("No package name given, the test runner will not resolve a target")
	}

	retries := ctx.Int(flags.Retries.Name)
	if retries < 0 {
		log.Warn("Negative retry budget, running a single attempt", "retries", retries)
		retries = 0
	}

	return &Config{
		PackageName:          packageName,
		ShortName:            runner.ShortName(packageName, prefix),
		CheckCoverage:        ctx.Bool(flags.CheckCoverage.Name),
		AllowNonFullCoverage: ctx.Bool(flags.AllowNonFullCoverage.Name),
		CoverageFile:         coverageFile,
		Retries:              retries,
		WorkDir:              absWorkDir,
		LogDir:               logDir,
		Commands:             cmds,
		Log:                  log,
	}, nil
}
