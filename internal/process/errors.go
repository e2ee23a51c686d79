package process

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports settings that cannot produce a valid command,
	// such as an external model with no model directory.
	ErrConfiguration = errors.New("configuration error")

	// ErrResourceNotFound reports a missing model or VAD model.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrProcessSpawn reports an executable that is missing, not runnable or
	// refused by the operating system.
	ErrProcessSpawn = errors.New("process spawn failed")
)

// CommandError describes a helper command (ffmpeg, ffprobe) that exited unsuccessfully.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string // tail of stderr
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
