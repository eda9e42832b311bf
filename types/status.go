package types

// Status represents the outcome of a phase of a gate run
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusPass, StatusFail, StatusSkipped:
		return true
	}
	return false
}

// Phase names a state of the orchestrator state machine
type Phase string

const (
	PhaseStart         Phase = "start"
	PhaseTesting       Phase = "testing"
	PhaseCoverageCheck Phase = "coverage-check"
	PhaseAggregate     Phase = "aggregate"
	PhaseExit          Phase = "exit"
)
