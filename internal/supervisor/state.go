// Package supervisor runs at most one whisper.cpp transcription job at a time
// and reports its lifecycle as events.
package supervisor

// State represents the occupancy of the job slot.
type State int

const (
	// StateIdle means no job is running and Start is accepted.
	StateIdle State = iota

	// StateRunning indicates the job process is actively running.
	StateRunning

	// StateTerminating indicates a cancel is in progress: the process group
	// has been signalled and the consumer is draining.
	StateTerminating
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// IsActive returns true if a job occupies the slot.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateTerminating
}
