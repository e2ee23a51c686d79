// Package rundir manages the per-job working directory:
//
//	<work_dir>/<job-id>/
//	    audio.wav   converted input
//	    run.log     append-only run log
//	    metrics.prom  final metrics snapshot
package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// File names inside a run directory.
const (
	AudioFile   = "audio.wav"
	LogFile     = "run.log"
	MetricsFile = "metrics.prom"
)

// Run is one job's working directory.
type Run struct {
	ID  string
	Dir string
}

// Create makes a fresh run directory below workDir named by a new job id.
func Create(workDir string) (*Run, error) {
	if workDir == "" {
		return nil, errors.New("rundir: work dir not set")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("rundir: create work dir: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(workDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rundir: create %s: %w", dir, err)
	}
	return &Run{ID: id, Dir: dir}, nil
}

// Open returns the existing run directory for id.
func Open(workDir, id string) (*Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("rundir: invalid job id %q: %w", id, err)
	}
	dir := filepath.Join(workDir, id)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rundir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rundir: %s is not a directory", dir)
	}
	return &Run{ID: id, Dir: dir}, nil
}

// AudioPath is where the converted audio is written.
func (r *Run) AudioPath() string { return filepath.Join(r.Dir, AudioFile) }

// LogPath is the run log.
func (r *Run) LogPath() string { return filepath.Join(r.Dir, LogFile) }

// MetricsPath is the final metrics snapshot.
func (r *Run) MetricsPath() string { return filepath.Join(r.Dir, MetricsFile) }

// Cleanup removes temporary artifacts (the converted audio). The run log
// and metrics snapshot are kept.
func (r *Run) Cleanup() error {
	if err := os.Remove(r.AudioPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rundir: remove audio: %w", err)
	}
	return nil
}

// Remove deletes the whole run directory.
func (r *Run) Remove() error {
	return os.RemoveAll(r.Dir)
}
