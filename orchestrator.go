// Package unitgate gates a package's unit tests in CI: it retries the test
// command within a fixed budget, optionally requires full coverage and appends
// the coverage reports to an aggregate file.
package unitgate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-unitgate/coverage"
	"github.com/ethereum-optimism/infra/op-unitgate/exitcodes"
	"github.com/ethereum-optimism/infra/op-unitgate/logging"
	"github.com/ethereum-optimism/infra/op-unitgate/metrics"
	"github.com/ethereum-optimism/infra/op-unitgate/reporting"
	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	"github.com/ethereum-optimism/infra/op-unitgate/types"
)

var tracer = otel.Tracer("op-unitgate")

// Result is the outcome of an orchestrated run. ExitCode is the status the
// process should exit with; Err is set whenever the run ended on a fatal error.
type Result struct {
	RunID       string
	Phases      []types.Phase
	Run         *runner.RunResult
	Coverage    *coverage.GateResult
	Aggregation *reporting.AggregationSummary
	ExitCode    int
	Err         error
	Duration    time.Duration
	LogDir      string // Empty when file logging is disabled
}

func (r *Result) enter(phase types.Phase) {
	r.Phases = append(r.Phases, phase)
}

// Entered reports whether the run went through the given phase
func (r *Result) Entered(phase types.Phase) bool {
	for _, p := range r.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Summary converts the result into its reportable form
func (r *Result) Summary(packageName string) reporting.Summary {
	s := reporting.Summary{
		RunID:       r.RunID,
		PackageName: packageName,
		Phases:      r.Phases,
		Run:         r.Run,
		Coverage:    r.Coverage,
		Aggregation: r.Aggregation,
		ExitCode:    r.ExitCode,
		Duration:    r.Duration,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRunID fixes the run ID instead of generating one
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// WithReport sets where the results table is printed; nil disables it
func WithReport(w io.Writer) Option {
	return func(o *Orchestrator) {
		o.report = w
	}
}

// WithEcho sets the terminal writers command output is mirrored to when file
// logging is enabled
func WithEcho(stdout, stderr io.Writer) Option {
	return func(o *Orchestrator) {
		o.echoOut = stdout
		o.echoErr = stderr
	}
}

// Orchestrator drives a single gate run through its phases:
// start, testing, coverage check, aggregation and exit.
type Orchestrator struct {
	config   *Config
	executor runner.CommandExecutor
	runID    string
	report   io.Writer
	echoOut  io.Writer
	echoErr  io.Writer

	fileLogger *logging.FileLogger
}

// New creates an orchestrator that runs every external command through executor
func New(config *Config, executor runner.CommandExecutor, opts ...Option) (*Orchestrator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Log == nil {
		return nil, errors.New("config logger is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}

	o := &Orchestrator{
		config:   config,
		executor: executor,
		report:   os.Stdout,
		echoOut:  os.Stdout,
		echoErr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.New().String()
	}
	return o, nil
}

// RunID returns the ID of the run this orchestrator performs
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Run executes the phases in order and always returns a result.
// It never exits the process; the caller maps Result.ExitCode to the exit status.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	ctx, span := tracer.Start(ctx, "unitgate-run", trace.WithAttributes(
		attribute.String("run_id", o.runID),
		attribute.String("package", o.config.PackageName),
	))
	defer span.End()

	result := &Result{RunID: o.runID}
	start := time.Now()

	o.execute(ctx, result)

	result.enter(types.PhaseExit)
	result.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("exit_code", result.ExitCode))
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "run failed")
	}
	metrics.RecordRun(o.config.PackageName, exitStatus(result.ExitCode), result.Duration)

	o.finish(result)
	return result
}

func (o *Orchestrator) execute(ctx context.Context, result *Result) {
	log := o.config.Log

	result.enter(types.PhaseStart)
	log.Info("Starting unit test gate",
		"runID", o.runID,
		"package", o.config.PackageName,
		"checkCoverage", o.config.CheckCoverage,
		"allowNonFullCoverage", o.config.AllowNonFullCoverage,
		"coverageFile", o.config.CoverageFile,
		"retries", o.config.Retries)

	var output runner.OutputFactory = runner.InheritedOutput{}
	if o.config.LogDir != "" {
		fileLogger, err := logging.NewFileLogger(o.config.LogDir, o.runID)
		if err != nil {
			o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(fmt.Errorf("failed to set up file logging: %w", err)))
			return
		}
		o.fileLogger = fileLogger.WithEcho(o.echoOut, o.echoErr)
		output = o.fileLogger
		result.LogDir = fileLogger.RunDir()
	}

	result.enter(types.PhaseTesting)
	testRunner, err := runner.NewTestRunner(runner.Config{
		RunID:        o.runID,
		PackageName:  o.config.PackageName,
		ShortName:    o.config.ShortName,
		WorkDir:      o.config.WorkDir,
		Retries:      o.config.Retries,
		Coverage:     o.config.CheckCoverage,
		Command:      o.config.Commands.Test.Command,
		CoverageFlag: o.config.Commands.Test.CoverageFlag,
		Executor:     o.executor,
		Output:       output,
		Log:          log,
	})
	if err != nil {
		o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(err))
		return
	}

	runResult, err := testRunner.Run(ctx)
	result.Run = runResult
	if err != nil {
		var exhausted *runner.ExhaustedError
		if errors.As(err, &exhausted) {
			o.fail(result, exitcodes.TestFailure, NewTestFailureError(exhausted.Error(), exhausted))
		} else {
			o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(err))
		}
		return
	}

	if !o.config.CoverageGateEnabled() {
		if o.config.CheckCoverage {
			log.Info("Coverage gate disabled, incomplete coverage is allowed")
			result.Coverage = coverage.SkippedResult(o.config.Commands.Coverage.Thresholds)
			metrics.RecordCoverageGate(o.config.PackageName, types.StatusSkipped)
		}
		return
	}

	result.enter(types.PhaseCoverageCheck)
	gate, err := coverage.NewGate(coverage.GateConfig{
		PackageName:  o.config.PackageName,
		WorkDir:      o.config.WorkDir,
		DataGlob:     o.config.Commands.Coverage.DataGlob,
		DataDir:      o.config.Commands.Coverage.DataDir,
		CheckCommand: o.config.Commands.Coverage.CheckCommand,
		Thresholds:   o.config.Commands.Coverage.Thresholds,
		Executor:     o.executor,
		Output:       output,
		Log:          log,
	})
	if err != nil {
		o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(err))
		return
	}

	gateResult, err := gate.Check(ctx)
	result.Coverage = gateResult
	if err != nil {
		metrics.RecordErrorDetails("coverage", err)
		o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(err))
		return
	}
	if !gateResult.Passed() {
		result.ExitCode = exitcodes.CoverageShortfall
	}

	if !o.config.AggregationEnabled() {
		return
	}

	result.enter(types.PhaseAggregate)
	if err := o.aggregate(ctx, result); err != nil {
		metrics.RecordErrorDetails("aggregate", err)
		o.fail(result, exitcodes.RuntimeErr, NewRuntimeError(err))
	}
}

func (o *Orchestrator) aggregate(ctx context.Context, result *Result) error {
	_, span := tracer.Start(ctx, "aggregate")
	defer span.End()

	summary := &reporting.AggregationSummary{
		Destination: o.config.CoverageFile,
		Status:      types.StatusFail,
	}
	result.Aggregation = summary

	sources, err := coverage.MatchReports(o.config.WorkDir, o.config.Commands.Coverage.ReportGlob)
	if err != nil {
		span.SetStatus(codes.Error, "glob failed")
		return err
	}
	summary.Sources = sources
	if len(sources) == 0 {
		o.config.Log.Warn("No coverage reports to aggregate", "pattern", o.config.Commands.Coverage.ReportGlob)
	}

	n, err := coverage.Aggregate(sources, o.config.CoverageFile)
	summary.Bytes = n
	metrics.RecordAggregatedBytes(o.config.PackageName, n)
	span.SetAttributes(
		attribute.Int("reports", len(sources)),
		attribute.Int64("bytes", n),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "aggregation failed")
		return err
	}

	summary.Status = types.StatusPass
	o.config.Log.Info("Aggregated coverage reports",
		"destination", o.config.CoverageFile,
		"reports", len(sources),
		"bytes", n)
	return nil
}

func (o *Orchestrator) fail(result *Result, code int, err error) {
	result.ExitCode = code
	result.Err = err
}

// finish reports the result. Reporting failures are logged and never change the verdict.
func (o *Orchestrator) finish(result *Result) {
	log := o.config.Log
	summary := result.Summary(o.config.PackageName)

	if o.report != nil {
		reporting.RenderTable(o.report, summary)
	}

	if o.fileLogger != nil {
		if path, err := o.fileLogger.WriteSummary(summary); err != nil {
			log.Warn("Failed to write run summary", "dir", result.LogDir, "err", err)
		} else {
			log.Info("Wrote run summary", "path", path)
		}
	}

	if result.Err != nil {
		log.Error("Unit test gate failed", "runID", o.runID, "exitCode", result.ExitCode, "err", result.Err)
		return
	}
	if result.ExitCode != 0 {
		log.Error("Unit test gate failed: coverage is incomplete", "runID", o.runID, "exitCode", result.ExitCode)
		return
	}
	log.Info("Unit test gate passed", "runID", o.runID, "duration", result.Duration)
}

func exitStatus(code int) types.Status {
	if code == 0 {
		return types.StatusPass
	}
	return types.StatusFail
}
