// Package runnertest provides a scripted runner.CommandExecutor for tests.
package runnertest

import (
	"context"
	"io"
	"sync"

	"github.com/ethereum-optimism/infra/op-unitgate/runner"
)

var _ runner.CommandExecutor = (*ScriptedExecutor)(nil)

// Result is one scripted outcome of an Execute call
type Result struct {
	ExitCode int
	Err      error
	Stdout   string
	Stderr   string
	// Hook runs before the result is returned, e.g. to drop coverage files on disk
	Hook func(cmd runner.Command) error
}

// Pass is a zero exit status
var Pass = Result{}

// Fail is a non-zero exit status
var Fail = Result{ExitCode: 1}

// ScriptedExecutor returns scripted results in order. Once the script is
// exhausted it keeps returning Default.
type ScriptedExecutor struct {
	Script  []Result
	Default Result

	mu    sync.Mutex
	calls []runner.Command
	next  int
}

// NewScriptedExecutor creates an executor that returns the given results in order
func NewScriptedExecutor(results ...Result) *ScriptedExecutor {
	return &ScriptedExecutor{Script: results}
}

// FailTimes scripts n failures followed by passes
func FailTimes(n int) *ScriptedExecutor {
	results := make([]Result, n)
	for i := range results {
		results[i] = Fail
	}
	return NewScriptedExecutor(results...)
}

func (s *ScriptedExecutor) Execute(ctx context.Context, cmd runner.Command) (int, error) {
	if err := ctx.Err(); err != nil {
		return -1, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, cmd)
	res := s.Default
	if s.next < len(s.Script) {
		res = s.Script[s.next]
		s.next++
	}
	s.mu.Unlock()

	if res.Stdout != "" && cmd.Stdout != nil {
		_, _ = io.WriteString(cmd.Stdout, res.Stdout)
	}
	if res.Stderr != "" && cmd.Stderr != nil {
		_, _ = io.WriteString(cmd.Stderr, res.Stderr)
	}
	if res.Hook != nil {
		if err := res.Hook(cmd); err != nil {
			return -1, err
		}
	}
	return res.ExitCode, res.Err
}

// Calls returns a copy of every command executed so far
func (s *ScriptedExecutor) Calls() []runner.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]runner.Command(nil), s.calls...)
}

// CallCount returns how many commands were executed
func (s *ScriptedExecutor) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Router dispatches each command to the executor registered for its program name
type Router struct {
	Routes   map[string]runner.CommandExecutor
	Fallback runner.CommandExecutor
}

func (r *Router) Execute(ctx context.Context, cmd runner.Command) (int, error) {
	if e, ok := r.Routes[cmd.Name]; ok {
		return e.Execute(ctx, cmd)
	}
	if r.Fallback != nil {
		return r.Fallback.Execute(ctx, cmd)
	}
	return 127, nil
}
