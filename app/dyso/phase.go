package dyso

import (
	"fmt"
	"time"

	"github.com/dyso-testbed/dyso/app/drift"
	"github.com/dyso-testbed/dyso/core/runningstat"
)

// Phase is an orchestration run phase.
type Phase int

// Phase values.
const (
	PhaseIdle Phase = iota
	PhaseBringUp
	PhaseSteadyState
	PhaseWindDown
	PhaseDone
	PhaseFailed
)

var phaseStrings = map[Phase]string{
	PhaseIdle:        "Idle",
	PhaseBringUp:     "BringUp",
	PhaseSteadyState: "SteadyState",
	PhaseWindDown:    "WindDown",
	PhaseDone:        "Done",
	PhaseFailed:      "Failed",
}

func (p Phase) String() string {
	if s, ok := phaseStrings[p]; ok {
		return s
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// PhaseError indicates a failure during a phase.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Run describes one execution of the orchestration.
type Run struct {
	Phase        Phase                `json:"phase"`
	StartTime    time.Time            `json:"startTime"`
	Budget       time.Duration        `json:"budget"`
	Offset       drift.OffsetState    `json:"offset"`
	WriteLatency runningstat.Snapshot `json:"writeLatency"` // nanoseconds
	FailedPhase  Phase                `json:"failedPhase,omitempty"`
}
