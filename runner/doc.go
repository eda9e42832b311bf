// Package runner runs a package's unit-test command with a bounded retry budget.
//
// The main components are:
//   - CommandExecutor: starts one external process and reports its exit status
//   - CommandTemplate: renders an argv template for a given package
//   - OutputFactory: hands each invocation the writers its output streams to
//   - TestRunner: drives the retry loop and records every attempt
//
// An attempt that exits non-zero is retried until Retries+1 attempts have been
// made. The failure of the final attempt is returned as an *ExhaustedError and is
// never swallowed.
package runner
