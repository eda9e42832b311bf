package flags

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")

			expectedEnvVar := opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix)
			require.Equal(t, expectedEnvVar, envFlags[0])
		})
	}
}

func parse(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range []cli.Flag{PackageName, CheckCoverage, AllowNonFullCoverage, CoverageFile, Retries, WorkDir, PackagePrefix} {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse(args))
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestDefaults(t *testing.T) {
	ctx := parse(t)
	assert.Equal(t, "", ctx.String(PackageName.Name))
	assert.False(t, ctx.Bool(CheckCoverage.Name))
	assert.False(t, ctx.Bool(AllowNonFullCoverage.Name))
	assert.Equal(t, "", ctx.String(CoverageFile.Name))
	assert.Equal(t, 3, ctx.Int(Retries.Name))
	assert.Equal(t, ".", ctx.String(WorkDir.Name))
	assert.Equal(t, `^ckeditor5?-`, ctx.String(PackagePrefix.Name))
}

func TestParseAll(t *testing.T) {
	ctx := parse(t,
		"--package-name", "ckeditor5-bookmark",
		"--check-coverage",
		"--allow-non-full-coverage",
		"--coverage-file", "lcov.info",
		"--retries", "2",
	)
	assert.Equal(t, "ckeditor5-bookmark", ctx.String(PackageName.Name))
	assert.True(t, ctx.Bool(CheckCoverage.Name))
	assert.True(t, ctx.Bool(AllowNonFullCoverage.Name))
	assert.Equal(t, "lcov.info", ctx.String(CoverageFile.Name))
	assert.Equal(t, 2, ctx.Int(Retries.Name))
}
