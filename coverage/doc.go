// Package coverage implements the coverage phase of a gate run.
//
// Gate consolidates the per-browser coverage data written by the test runner into
// the directory the coverage tool reads, then invokes the tool with a threshold for
// every dimension. Only the tool's exit status is inspected.
//
// Aggregate concatenates coverage reports into a single file for downstream
// tooling. It takes an already resolved list of paths, so globbing (MatchReports)
// stays separate from the append logic.
package coverage
