package coverage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ethereum-optimism/infra/op-unitgate/metrics"
	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	"github.com/ethereum-optimism/infra/op-unitgate/types"
)

var tracer = otel.Tracer("op-unitgate/coverage")

// DefaultCheckCommand is the coverage tool invocation; threshold flags are appended
var DefaultCheckCommand = runner.CommandTemplate{"npx", "nyc", "check-coverage"}

// Thresholds are the minimum percentages required per coverage dimension
type Thresholds struct {
	Branches   int `yaml:"branches" json:"branches"`
	Functions  int `yaml:"functions" json:"functions"`
	Lines      int `yaml:"lines" json:"lines"`
	Statements int `yaml:"statements" json:"statements"`
}

// FullCoverage requires 100% in every dimension
func FullCoverage() Thresholds {
	return Thresholds{Branches: 100, Functions: 100, Lines: 100, Statements: 100}
}

// Validate checks every threshold is a percentage
func (t Thresholds) Validate() error {
	for name, v := range map[string]int{
		"branches":   t.Branches,
		"functions":  t.Functions,
		"lines":      t.Lines,
		"statements": t.Statements,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s threshold %d is not a percentage", name, v)
		}
	}
	return nil
}

// Args renders the thresholds as check-coverage flags
func (t Thresholds) Args() []string {
	return []string{
		"--branches", strconv.Itoa(t.Branches),
		"--functions", strconv.Itoa(t.Functions),
		"--lines", strconv.Itoa(t.Lines),
		"--statements", strconv.Itoa(t.Statements),
	}
}

// GateResult is the outcome of a coverage gate evaluation
type GateResult struct {
	Status     types.Status  `json:"status"`
	ExitCode   int           `json:"exit_code"`
	Command    string        `json:"command"`
	Thresholds Thresholds    `json:"thresholds"`
	DataFiles  []string      `json:"data_files"`
	Duration   time.Duration `json:"duration"`
}

// Passed reports whether every dimension met its threshold
func (r *GateResult) Passed() bool {
	return r != nil && r.Status == types.StatusPass
}

// SkippedResult records a gate that was configured but not enforced
func SkippedResult(thresholds *Thresholds) *GateResult {
	t := FullCoverage()
	if thresholds != nil {
		t = *thresholds
	}
	return &GateResult{
		Status:     types.StatusSkipped,
		Thresholds: t,
	}
}

// GateConfig holds the coverage gate configuration
type GateConfig struct {
	PackageName  string
	WorkDir      string
	DataGlob     string                 // Defaults to DefaultDataGlob
	DataDir      string                 // Defaults to DefaultDataDir
	CheckCommand runner.CommandTemplate // Defaults to DefaultCheckCommand
	Thresholds   *Thresholds            // Defaults to FullCoverage
	Executor     runner.CommandExecutor
	Output       runner.OutputFactory // Defaults to runner.InheritedOutput
	Log          log.Logger
}

// Gate checks consolidated coverage data against the configured thresholds
type Gate struct {
	cfg        GateConfig
	thresholds Thresholds
	command    runner.Command
}

// NewGate creates a new coverage gate
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if cfg.Log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DataGlob == "" {
		cfg.DataGlob = DefaultDataGlob
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if len(cfg.CheckCommand) == 0 {
		cfg.CheckCommand = DefaultCheckCommand
	}
	if cfg.Output == nil {
		cfg.Output = runner.InheritedOutput{}
	}

	thresholds := FullCoverage()
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	cmd, err := cfg.CheckCommand.Render(runner.TemplateData{PackageName: cfg.PackageName})
	if err != nil {
		return nil, fmt.Errorf("failed to build coverage check command: %w", err)
	}
	cmd.Args = append(cmd.Args, thresholds.Args()...)
	cmd.Dir = cfg.WorkDir

	return &Gate{cfg: cfg, thresholds: thresholds, command: cmd}, nil
}

// Command returns the coverage tool invocation
func (g *Gate) Command() runner.Command {
	return g.command
}

// Check consolidates the coverage data and runs the coverage tool once.
// A shortfall, or a tool that could not be started, is reported through the
// result rather than as an error; errors are reserved for consolidation failures.
func (g *Gate) Check(ctx context.Context) (*GateResult, error) {
	ctx, span := tracer.Start(ctx, "coverage-gate")
	defer span.End()

	result := &GateResult{
		Status:     types.StatusFail,
		ExitCode:   -1,
		Command:    g.command.String(),
		Thresholds: g.thresholds,
	}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	copied, err := Consolidate(g.cfg.WorkDir, g.cfg.DataGlob, g.cfg.DataDir)
	result.DataFiles = copied
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "consolidation failed")
		return result, fmt.Errorf("failed to consolidate coverage data: %w", err)
	}
	g.cfg.Log.Info("Consolidated coverage data", "files", len(copied), "dir", g.cfg.DataDir)

	out, err := g.cfg.Output.Output("coverage-check")
	if err != nil {
		return result, fmt.Errorf("failed to open coverage check output: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			g.cfg.Log.Warn("Failed to close coverage check output", "err", err)
		}
	}()

	cmd := g.command
	cmd.Stdout = out.Stdout
	cmd.Stderr = out.Stderr

	g.cfg.Log.Info("Checking coverage", "command", cmd.String())
	code, err := g.cfg.Executor.Execute(ctx, cmd)
	result.ExitCode = code
	span.SetAttributes(attribute.Int("exit_code", code))
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "coverage tool failed to run")
		g.cfg.Log.Error("Coverage gate failed: coverage tool did not run", "package", g.cfg.PackageName, "err", err)
	case code == 0:
		result.Status = types.StatusPass
		g.cfg.Log.Info("Coverage gate passed", "package", g.cfg.PackageName)
	default:
		span.SetStatus(codes.Error, "coverage below threshold")
		g.cfg.Log.Error("Coverage gate failed: coverage below threshold",
			"package", g.cfg.PackageName,
			"exitCode", code,
			"branches", g.thresholds.Branches,
			"functions", g.thresholds.Functions,
			"lines", g.thresholds.Lines,
			"statements", g.thresholds.Statements)
	}
	metrics.RecordCoverageGate(g.cfg.PackageName, result.Status)
	return result, nil
}
