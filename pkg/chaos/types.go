// Package chaos drives the external Litmus controller: it submits uniquely
// named ChaosEngine requests and awaits their terminal verdict.
package chaos

import (
	"time"
)

// Phase is the lifecycle of one fault run as observed by the detector
type Phase string

const (
	PhaseCreated         Phase = "Created"
	PhaseStarted         Phase = "Started"
	PhaseCompleted       Phase = "Completed"
	PhaseStuckNotStarted Phase = "StuckNotStarted"
	PhaseError           Phase = "Error"
)

// phaseRank orders phases so a run can never regress, e.g. from Completed
// back to Started
var phaseRank = map[Phase]int{
	PhaseCreated:         0,
	PhaseStarted:         1,
	PhaseCompleted:       2,
	PhaseStuckNotStarted: 2,
	PhaseError:           2,
}

// Verdict is the terminal outcome reported by the controller
type Verdict string

const (
	VerdictUnknown Verdict = "Unknown"
	VerdictPass    Verdict = "Pass"
	VerdictFail    Verdict = "Fail"
)

// RunHandle identifies one submitted fault run. It is owned by exactly one
// scenario-runner invocation and cleaned up best-effort afterwards.
type RunHandle struct {
	Scenario       string
	EngineName     string
	ExperimentName string
	// Namespace is the chaos controller's operating namespace
	Namespace string
	// AppNamespace/AppLabel locate the fault targets, kept for diagnostics
	AppNamespace string
	AppLabel     string
	CreatedAt    time.Time

	phase Phase
}

// Phase returns the run's current observed phase
func (r *RunHandle) Phase() Phase {
	if r.phase == "" {
		return PhaseCreated
	}
	return r.phase
}

// advance moves the run forward; transitions to a lower-ranked phase are
// ignored to keep the phase monotonic
func (r *RunHandle) advance(next Phase) {
	if phaseRank[next] >= phaseRank[r.Phase()] {
		r.phase = next
	}
}
