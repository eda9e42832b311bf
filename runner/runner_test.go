package runner_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-unitgate/runner"
	"github.com/ethereum-optimism/infra/op-unitgate/runner/runnertest"
	"github.com/ethereum-optimism/infra/op-unitgate/types"
)

func newRunner(t *testing.T, exec runner.CommandExecutor, retries int, coverage bool) *runner.TestRunner {
	t.Helper()
	r, err := runner.NewTestRunner(runner.Config{
		RunID:       "run-1",
		PackageName: "ckeditor5-bookmark",
		ShortName:   "bookmark",
		WorkDir:     "/repo",
		Retries:     retries,
		Coverage:    coverage,
		Executor:    exec,
		Output:      bufferOutput{},
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	return r
}

type bufferOutput struct{}

func (bufferOutput) Output(string) (*runner.Output, error) {
	return runner.NewOutput(&bytes.Buffer{}, &bytes.Buffer{}, nil), nil
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 1, runner.MaxAttempts(0))
	assert.Equal(t, 4, runner.MaxAttempts(3))
	assert.Equal(t, 1, runner.MaxAttempts(-2))
}

func TestRetryState(t *testing.T) {
	s := runner.RetryState{MaxAttempts: 3}
	assert.False(t, s.Exhausted())
	assert.Equal(t, 3, s.Remaining())

	s.AttemptsMade = 2
	assert.False(t, s.Exhausted())
	assert.Equal(t, 1, s.Remaining())

	s.AttemptsMade = 3
	assert.True(t, s.Exhausted())
	assert.Equal(t, 0, s.Remaining())
}

// TestRetryBoundaries checks that k failures within a budget of n retries succeed
// with exactly k+1 invocations, and that n+1 failures exhaust the budget.
func TestRetryBoundaries(t *testing.T) {
	for n := 0; n <= 4; n++ {
		for k := 0; k <= n+1; k++ {
			t.Run(fmt.Sprintf("retries=%d/failures=%d", n, k), func(t *testing.T) {
				exec := runnertest.FailTimes(k)
				result, err := newRunner(t, exec, n, false).Run(context.Background())
				require.NotNil(t, result)

				if k <= n {
					require.NoError(t, err)
					assert.Equal(t, types.StatusPass, result.Status)
					assert.Equal(t, k+1, exec.CallCount())
					assert.Len(t, result.Attempts, k+1)
					return
				}

				var exhausted *runner.ExhaustedError
				require.ErrorAs(t, err, &exhausted)
				assert.Equal(t, n+1, exhausted.Attempts)
				assert.Equal(t, 1, exhausted.ExitCode)
				assert.Equal(t, types.StatusFail, result.Status)
				assert.Equal(t, n+1, exec.CallCount())
			})
		}
	}
}

func TestRunStopsAfterFirstSuccess(t *testing.T) {
	exec := runnertest.NewScriptedExecutor(runnertest.Pass)
	exec.Default = runnertest.Fail

	result, err := newRunner(t, exec, 3, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.CallCount())
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, result.Attempts[0].Number)
	assert.Equal(t, 0, result.Attempts[0].ExitCode)
}

// TestBookmarkScenario fails twice then succeeds with a budget of two retries.
func TestBookmarkScenario(t *testing.T) {
	exec := runnertest.FailTimes(2)

	result, err := newRunner(t, exec, 2, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, exec.CallCount())
	assert.Equal(t, types.StatusPass, result.Status)
	assert.Equal(t, []int{1, 2, 3}, attemptNumbers(result))
	assert.Equal(t, "ckeditor5-bookmark", result.PackageName)
	assert.Equal(t, "bookmark", result.ShortName)
	assert.Equal(t, "run-1", result.RunID)
}

func TestStartFailuresAreRetried(t *testing.T) {
	startErr := errors.New("yarn: not found")
	exec := runnertest.NewScriptedExecutor(runnertest.Result{ExitCode: -1, Err: startErr})

	result, err := newRunner(t, exec, 1, false).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, exec.CallCount())
	assert.Equal(t, "yarn: not found", result.Attempts[0].Error)
	assert.False(t, result.Attempts[0].Succeeded())
	assert.True(t, result.Attempts[1].Succeeded())
}

func TestExhaustedStartFailureKeepsCause(t *testing.T) {
	exec := runnertest.NewScriptedExecutor()
	exec.Default = runnertest.Result{ExitCode: -1, Err: errors.New("permission denied")}

	_, err := newRunner(t, exec, 0, false).Run(context.Background())
	var exhausted *runner.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Equal(t, 1, exhausted.Attempts)
}

func TestTestCommand(t *testing.T) {
	t.Run("without coverage", func(t *testing.T) {
		exec := runnertest.NewScriptedExecutor()
		_, err := newRunner(t, exec, 0, false).Run(context.Background())
		require.NoError(t, err)

		calls := exec.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "yarn", calls[0].Name)
		assert.Equal(t, []string{"test", "--reporter=dots", "--production", "-f", "bookmark"}, calls[0].Args)
		assert.Equal(t, "/repo", calls[0].Dir)
		assert.NotNil(t, calls[0].Stdout)
		assert.NotNil(t, calls[0].Stderr)
	})

	t.Run("with coverage", func(t *testing.T) {
		exec := runnertest.NewScriptedExecutor()
		r := newRunner(t, exec, 0, true)
		_, err := r.Run(context.Background())
		require.NoError(t, err)

		args := exec.Calls()[0].Args
		assert.Equal(t, "--coverage", args[len(args)-1])
		assert.Equal(t, "yarn test --reporter=dots --production -f bookmark --coverage", r.Command().String())
	})

	t.Run("custom template and flag", func(t *testing.T) {
		exec := runnertest.NewScriptedExecutor()
		r, err := runner.NewTestRunner(runner.Config{
			PackageName:  "ckeditor5-link",
			ShortName:    "link",
			Coverage:     true,
			Command:      runner.CommandTemplate{"npm", "run", "test:{{.ShortName}}"},
			CoverageFlag: "--cov",
			Executor:     exec,
			Output:       bufferOutput{},
			Log:          log.NewLogger(log.DiscardHandler()),
		})
		require.NoError(t, err)

		result, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"run", "test:link", "--cov"}, exec.Calls()[0].Args)
		assert.NotEmpty(t, result.RunID, "run id is generated when not provided")
	})
}

func TestRunCanceledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := runnertest.NewScriptedExecutor(runnertest.Result{
		ExitCode: 1,
		Hook: func(runner.Command) error {
			cancel()
			return nil
		},
	})

	result, err := newRunner(t, exec, 3, false).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, exec.CallCount())
	assert.Equal(t, types.StatusFail, result.Status)

	var exhausted *runner.ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

type mockOutputFactory struct {
	mock.Mock
}

func (m *mockOutputFactory) Output(name string) (*runner.Output, error) {
	args := m.Called(name)
	out, _ := args.Get(0).(*runner.Output)
	return out, args.Error(1)
}

func TestOutputIsRequestedPerAttempt(t *testing.T) {
	closed := 0
	out := runner.NewOutput(&bytes.Buffer{}, &bytes.Buffer{}, func() error {
		closed++
		return nil
	})

	factory := &mockOutputFactory{}
	factory.On("Output", "attempt-1").Return(out, nil).Once()
	factory.On("Output", "attempt-2").Return(out, nil).Once()

	r, err := runner.NewTestRunner(runner.Config{
		PackageName: "ckeditor5-bookmark",
		ShortName:   "bookmark",
		Retries:     1,
		Executor:    runnertest.FailTimes(1),
		Output:      factory,
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	factory.AssertExpectations(t)
	assert.Equal(t, 2, closed)
}

func TestOutputFailureCountsAsFailedAttempt(t *testing.T) {
	factory := &mockOutputFactory{}
	factory.On("Output", "attempt-1").Return(nil, errors.New("disk full")).Once()
	factory.On("Output", "attempt-2").Return(runner.NewOutput(&bytes.Buffer{}, &bytes.Buffer{}, nil), nil).Once()

	exec := runnertest.NewScriptedExecutor()
	r, err := runner.NewTestRunner(runner.Config{
		PackageName: "ckeditor5-bookmark",
		Retries:     1,
		Executor:    exec,
		Output:      factory,
		Log:         log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exec.CallCount())
	assert.Contains(t, result.Attempts[0].Error, "disk full")
}

func TestNewTestRunnerValidation(t *testing.T) {
	logger := log.NewLogger(log.DiscardHandler())

	_, err := runner.NewTestRunner(runner.Config{Log: logger})
	require.Error(t, err, "executor is required")

	_, err = runner.NewTestRunner(runner.Config{Executor: runnertest.NewScriptedExecutor()})
	require.Error(t, err, "logger is required")

	_, err = runner.NewTestRunner(runner.Config{
		Executor: runnertest.NewScriptedExecutor(),
		Log:      logger,
		Command:  runner.CommandTemplate{"{{.Nope}}"},
	})
	require.Error(t, err)
}

func attemptNumbers(result *runner.RunResult) []int {
	var out []int
	for _, a := range result.Attempts {
		out = append(out, a.Number)
	}
	return out
}
