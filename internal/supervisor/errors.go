package supervisor

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start while a job occupies the slot.
var ErrAlreadyRunning = errors.New("a transcription job is already running")

// RuntimeError describes a job that failed after it started. It is carried
// by the failed event and by Result, never returned from Start.
type RuntimeError struct {
	ExitCode int    // process exit code, 0 if the process was not the cause
	Reason   string // human-readable reason
	Err      error  // underlying error, if any
}

func (e *RuntimeError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s (exit code %d)", e.Reason, e.ExitCode)
	}
	return e.Reason
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
