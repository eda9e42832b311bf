// Package exitcodes defines the standard exit codes used by op-unitgate.
package exitcodes

// Exit code constants used by op-unitgate.
// CI only distinguishes success from failure, so every fatal condition maps to 1:
//
// * Success (0): the test run passed and, if it ran, the coverage gate passed
// * TestFailure (1): the test command failed on its final permitted attempt
// * CoverageShortfall (1): the coverage gate reported a dimension below threshold
// * RuntimeErr (1): configuration, consolidation or aggregation errors
const (
	Success           = 0 // Tests (and coverage) pass
	TestFailure       = 1 // Retries exhausted
	CoverageShortfall = 1 // Coverage below threshold
	RuntimeErr        = 1 // Runtime errors
)
