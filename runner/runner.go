package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ethereum-optimism/infra/op-unitgate/metrics"
	"github.com/ethereum-optimism/infra/op-unitgate/types"
)

var tracer = otel.Tracer("op-unitgate/runner")

// MaxAttempts converts a retry budget into the total number of attempts.
// A negative budget is treated as zero retries.
func MaxAttempts(retries int) int {
	if retries < 0 {
		retries = 0
	}
	return retries + 1
}

// RetryState tracks the retry loop of a single test run
type RetryState struct {
	AttemptsMade int
	MaxAttempts  int
}

// Exhausted reports whether no further attempt is permitted
func (s RetryState) Exhausted() bool {
	return s.AttemptsMade >= s.MaxAttempts
}

// Remaining returns the number of attempts still permitted
func (s RetryState) Remaining() int {
	if s.Exhausted() {
		return 0
	}
	return s.MaxAttempts - s.AttemptsMade
}

// Attempt is the record of one invocation of the test command
type Attempt struct {
	Number   int           `json:"number"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Succeeded reports whether the attempt exited cleanly
func (a Attempt) Succeeded() bool {
	return a.Error == "" && a.ExitCode == 0
}

// RunResult holds the outcome of the retry loop
type RunResult struct {
	RunID       string        `json:"run_id"`
	PackageName string        `json:"package_name"`
	ShortName   string        `json:"short_name"`
	Command     string        `json:"command"`
	Attempts    []Attempt     `json:"attempts"`
	Status      types.Status  `json:"status"`
	Duration    time.Duration `json:"duration"`
}

// LastAttempt returns the most recent attempt, if any
func (r *RunResult) LastAttempt() (Attempt, bool) {
	if len(r.Attempts) == 0 {
		return Attempt{}, false
	}
	return r.Attempts[len(r.Attempts)-1], true
}

// ExhaustedError is returned when the final permitted attempt fails
type ExhaustedError struct {
	PackageName string
	Attempts    int
	ExitCode    int
	Err         error
}

func (e *ExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tests for %q failed after %d attempt(s): %v", e.PackageName, e.Attempts, e.Err)
	}
	return fmt.Sprintf("tests for %q failed after %d attempt(s) (exit code %d)", e.PackageName, e.Attempts, e.ExitCode)
}

// Unwrap implements the errors.Unwrap interface
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Config holds the test runner configuration
type Config struct {
	RunID        string
	PackageName  string
	ShortName    string
	WorkDir      string
	Retries      int
	Coverage     bool            // Append CoverageFlag to the test command
	Command      CommandTemplate // Defaults to DefaultTestCommand
	CoverageFlag string          // Defaults to DefaultCoverageFlag
	Executor     CommandExecutor
	Output       OutputFactory // Defaults to InheritedOutput
	Log          log.Logger
}

// TestRunner runs the test command until it passes or the retry budget is spent
type TestRunner struct {
	cfg     Config
	command Command
}

// NewTestRunner creates a new test runner
func NewTestRunner(cfg Config) (*TestRunner, error) {
	if cfg.Executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if cfg.Log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultTestCommand
	}
	if cfg.CoverageFlag == "" {
		cfg.CoverageFlag = DefaultCoverageFlag
	}
	if cfg.Output == nil {
		cfg.Output = InheritedOutput{}
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}

	cmd, err := cfg.Command.Render(TemplateData{PackageName: cfg.PackageName, ShortName: cfg.ShortName})
	if err != nil {
		return nil, fmt.Errorf("failed to build test command: %w", err)
	}
	if cfg.Coverage {
		cmd.Args = append(cmd.Args, cfg.CoverageFlag)
	}
	cmd.Dir = cfg.WorkDir

	return &TestRunner{cfg: cfg, command: cmd}, nil
}

// Command returns the test command every attempt runs
func (r *TestRunner) Command() Command {
	return r.command
}

// Run executes the test command synchronously, at most MaxAttempts(Retries) times.
// The result is always non-nil; the error is an *ExhaustedError when the final
// permitted attempt failed, or the context error if the run was interrupted
// between attempts.
func (r *TestRunner) Run(ctx context.Context) (*RunResult, error) {
	state := RetryState{MaxAttempts: MaxAttempts(r.cfg.Retries)}
	result := &RunResult{
		RunID:       r.cfg.RunID,
		PackageName: r.cfg.PackageName,
		ShortName:   r.cfg.ShortName,
		Command:     r.command.String(),
		Status:      types.StatusFail,
	}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	r.cfg.Log.Info("Running tests",
		"package", r.cfg.PackageName,
		"command", r.command.String(),
		"maxAttempts", state.MaxAttempts)

	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("test run interrupted before attempt %d: %w", state.AttemptsMade+1, err)
		}

		attempt := r.runAttempt(ctx, state.AttemptsMade+1)
		state.AttemptsMade++
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Succeeded() {
			metrics.RecordAttempt(r.cfg.PackageName, types.StatusPass)
			result.Status = types.StatusPass
			r.cfg.Log.Info("Tests passed", "package", r.cfg.PackageName, "attempt", attempt.Number, "duration", attempt.Duration)
			return result, nil
		}
		metrics.RecordAttempt(r.cfg.PackageName, types.StatusFail)

		if state.Exhausted() {
			exhausted := &ExhaustedError{
				PackageName: r.cfg.PackageName,
				Attempts:    state.AttemptsMade,
				ExitCode:    attempt.ExitCode,
			}
			if attempt.Error != "" {
				exhausted.Err = errors.New(attempt.Error)
			}
			r.cfg.Log.Error("Tests failed on final attempt",
				"package", r.cfg.PackageName,
				"attempt", attempt.Number,
				"maxAttempts", state.MaxAttempts,
				"exitCode", attempt.ExitCode)
			return result, exhausted
		}

		r.cfg.Log.Warn("Tests failed, retrying",
			"package", r.cfg.PackageName,
			"attempt", attempt.Number,
			"maxAttempts", state.MaxAttempts,
			"retriesLeft", state.Remaining(),
			"exitCode", attempt.ExitCode,
			"err", attempt.Error)
	}
}

func (r *TestRunner) runAttempt(ctx context.Context, number int) Attempt {
	ctx, span := tracer.Start(ctx, "test-attempt")
	defer span.End()
	span.SetAttributes(
		attribute.String("package", r.cfg.PackageName),
		attribute.Int("attempt", number),
	)

	attempt := Attempt{Number: number, ExitCode: exitCodeNotStarted}

	out, err := r.cfg.Output.Output(fmt.Sprintf("attempt-%d", number))
	if err != nil {
		attempt.Error = fmt.Sprintf("failed to open attempt output: %v", err)
		span.SetStatus(codes.Error, attempt.Error)
		return attempt
	}
	defer func() {
		if err := out.Close(); err != nil {
			r.cfg.Log.Warn("Failed to close attempt output", "attempt", number, "err", err)
		}
	}()

	cmd := r.command
	cmd.Stdout = out.Stdout
	cmd.Stderr = out.Stderr

	start := time.Now()
	code, err := r.cfg.Executor.Execute(ctx, cmd)
	attempt.Duration = time.Since(start)
	attempt.ExitCode = code
	if err != nil {
		attempt.Error = err.Error()
		span.RecordError(err)
	}

	span.SetAttributes(attribute.Int("exit_code", code))
	if !attempt.Succeeded() {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", code))
	}
	return attempt
}
