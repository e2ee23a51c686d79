// Package process builds and runs the external commands of a transcription
// job: the whisper-cli variants, ffmpeg for audio conversion and ffprobe for
// duration discovery.
package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
)

// Runner creates executable commands.
// This interface allows callers to be agnostic of the concrete tool.
type Runner interface {
	// BuildCommand returns a ready-to-start command.
	// The command should NOT be started yet.
	BuildCommand(ctx context.Context) (*exec.Cmd, error)

	// Name returns a human-readable name for this process type.
	Name() string

	// CommandString returns the command line for logs.
	CommandString() string
}

// stderrTailBytes bounds the stderr kept for a CommandError.
const stderrTailBytes = 2048

// RunToCompletion starts the command built by r, waits for it and converts a
// nonzero exit into a *CommandError.
func RunToCompletion(ctx context.Context, r Runner) error {
	cmd, err := r.BuildCommand(ctx)
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return errors.Join(ErrProcessSpawn, err)
	}

	if err := cmd.Wait(); err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > stderrTailBytes {
			tail = tail[len(tail)-stderrTailBytes:]
		}
		return &CommandError{
			Command:  r.CommandString(),
			ExitCode: ExitCode(err),
			Stderr:   tail,
			Err:      err,
		}
	}
	return nil
}

// ExitCode extracts the exit code from a Wait() error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
