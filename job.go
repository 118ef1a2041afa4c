package minicron

import "time"

// Policy selects what a launch does after starting the child.
type Policy string

const (
	// PolicyWait blocks the tick until the child exits. At most one job is in
	// flight; a long job delays the following ticks.
	PolicyWait Policy = "wait"
	// PolicyDetach returns as soon as the child starts. Overlapping runs are
	// possible when the schedule fires again before the previous run exits.
	PolicyDetach Policy = "detach"
)

// ParsePolicy maps a configuration string to a Policy. The empty string is
// PolicyWait.
func ParsePolicy(s string) (Policy, bool) {
	switch Policy(s) {
	case "", PolicyWait:
		return PolicyWait, true
	case PolicyDetach:
		return PolicyDetach, true
	default:
		return "", false
	}
}

// Run records one launch of the command.
type Run struct {
	// ID is assigned by the RunStore that recorded the run (store-specific type).
	ID interface{}

	// Command is the raw command text; Args is the argv it produced.
	// Args is empty when tokenizing failed.
	Command string
	Args    []string

	Policy Policy

	// ScheduledAt is the tick instant that fired.
	ScheduledAt time.Time

	// StartedAt is zero when the child never started.
	StartedAt time.Time

	// FinishedAt is zero for detached runs still in flight when recorded.
	FinishedAt time.Time

	PID int

	// ExitCode is -1 until the child has been waited for.
	ExitCode int

	// Error describes why the run failed to start or was killed.
	Error string
}

// Duration returns how long the child ran, or 0 when it has not finished.
func (r *Run) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the child ran and exited with status 0.
func (r *Run) Succeeded() bool {
	return r.Error == "" && !r.FinishedAt.IsZero() && r.ExitCode == 0
}
