// Package stats tracks the speed of a transcription job and formats the
// summary printed when it ends.
//
// The Tracker is an events.Sink. From successive progress samples it derives
// the realtime factor (audio seconds decoded per wall-clock second) and an
// ETA. Instantaneous factors are kept in a t-digest for percentiles, and a
// rolling window gives the recent factor.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
	"github.com/randomizedcoder/go-whisper-runner/internal/timeseries"
)

// UnknownETA is returned when no estimate is possible yet.
const UnknownETA time.Duration = -1

// JobStats is a point-in-time view of one job.
type JobStats struct {
	JobID   string
	Started time.Time
	Elapsed time.Duration

	// Latest progress. Nil until reported.
	Percentage     *float64
	CurrentSeconds *float64
	TotalSeconds   *float64

	// Realtime factor over the whole job, and percentiles of the
	// instantaneous factor between samples. Zero when unknown.
	RealtimeFactor float64
	RateP50        float64
	RateP95        float64

	// RecentFactor is the realtime factor over the last 30 seconds.
	RecentFactor float64

	ETA time.Duration // UnknownETA if not estimable

	ProgressSamples int64
	OutputLines     int64
	ErrorLines      int64
	LastLines       []string // most recent output lines, oldest first

	// Set once a terminal event arrives.
	Outcome  events.Type
	Reason   string
	ExitCode *int
	Finished time.Time
}

// Done reports whether the job reached a terminal outcome.
func (s JobStats) Done() bool {
	return s.Outcome != ""
}

// Tracker accumulates JobStats from an event stream. A new job id resets it.
type Tracker struct {
	mu  sync.Mutex
	now func() time.Time

	keepLines int
	stats     JobStats

	// Previous sample, for instantaneous rates.
	lastAt    time.Time
	lastAudio float64
	haveLast  bool

	digest *tdigest.TDigest // not thread-safe; guarded by mu
	window *timeseries.RateWindow
}

// NewTracker creates a tracker that keeps the last keepLines output lines.
func NewTracker(keepLines int) *Tracker {
	if keepLines < 0 {
		keepLines = 0
	}
	return &Tracker{
		now:       time.Now,
		keepLines: keepLines,
		digest:    tdigest.NewWithCompression(100),
		window:    timeseries.NewRateWindow(timeseries.DefaultCapacity),
		stats:     JobStats{ETA: UnknownETA},
	}
}

// Emit implements events.Sink.
func (t *Tracker) Emit(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.JobID != t.stats.JobID {
		t.resetLocked(e.JobID, e.Time)
	}

	switch e.Type {
	case events.TypeProgress:
		t.progressLocked(e)
	case events.TypeOutputLine:
		t.stats.OutputLines++
		t.appendLineLocked(e.Text)
	case events.TypeErrorLine:
		t.stats.ErrorLines++
	case events.TypeCompleted, events.TypeFailed, events.TypeCancelled:
		t.stats.Outcome = e.Type
		t.stats.Reason = e.Reason
		t.stats.ExitCode = e.ExitCode
		t.stats.Finished = t.timeOf(e)
		if e.Type == events.TypeCompleted {
			t.stats.ETA = 0
		}
	}
}

func (t *Tracker) resetLocked(jobID string, at time.Time) {
	if at.IsZero() {
		at = t.now()
	}
	t.stats = JobStats{JobID: jobID, Started: at, ETA: UnknownETA}
	t.haveLast = false
	t.digest = tdigest.NewWithCompression(100)
	t.window.Reset()
}

func (t *Tracker) timeOf(e events.Event) time.Time {
	if !e.Time.IsZero() {
		return e.Time
	}
	return t.now()
}

func (t *Tracker) progressLocked(e events.Event) {
	p := e.Progress
	if p == nil {
		return
	}
	at := t.timeOf(e)
	t.stats.ProgressSamples++

	if p.Percentage != nil {
		t.stats.Percentage = copyFloat(p.Percentage)
	}
	if p.TotalSeconds != nil {
		t.stats.TotalSeconds = copyFloat(p.TotalSeconds)
	}
	if p.CurrentSeconds == nil {
		t.stats.ETA = t.etaFromPercentageLocked(at)
		return
	}

	audio := *p.CurrentSeconds
	t.stats.CurrentSeconds = copyFloat(p.CurrentSeconds)

	if t.haveLast {
		dWall := at.Sub(t.lastAt).Seconds()
		dAudio := audio - t.lastAudio
		if dWall > 0 && dAudio > 0 {
			t.digest.Add(dAudio/dWall, 1)
		}
	}
	if !t.haveLast || audio >= t.lastAudio {
		t.lastAt, t.lastAudio, t.haveLast = at, audio, true
	}
	t.window.Record(at, audio)
	t.stats.RecentFactor = t.window.Rate(timeseries.Window30s)

	elapsed := at.Sub(t.stats.Started).Seconds()
	if elapsed > 0 && audio > 0 {
		t.stats.RealtimeFactor = audio / elapsed
	}

	switch {
	case t.stats.TotalSeconds != nil && t.stats.RealtimeFactor > 0:
		remaining := *t.stats.TotalSeconds - audio
		if remaining < 0 {
			remaining = 0
		}
		t.stats.ETA = time.Duration(remaining / t.stats.RealtimeFactor * float64(time.Second))
	default:
		t.stats.ETA = t.etaFromPercentageLocked(at)
	}
}

// etaFromPercentageLocked extrapolates linearly from the elapsed time.
func (t *Tracker) etaFromPercentageLocked(at time.Time) time.Duration {
	if t.stats.Percentage == nil || *t.stats.Percentage <= 0 {
		return UnknownETA
	}
	pct := *t.stats.Percentage
	elapsed := at.Sub(t.stats.Started)
	if elapsed <= 0 {
		return UnknownETA
	}
	return time.Duration(float64(elapsed) * (100 - pct) / pct)
}

func (t *Tracker) appendLineLocked(line string) {
	if t.keepLines == 0 {
		return
	}
	t.stats.LastLines = append(t.stats.LastLines, line)
	if n := len(t.stats.LastLines); n > t.keepLines {
		t.stats.LastLines = append([]string(nil), t.stats.LastLines[n-t.keepLines:]...)
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() JobStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.stats
	s.LastLines = append([]string(nil), t.stats.LastLines...)
	s.Percentage = copyFloat(t.stats.Percentage)
	s.CurrentSeconds = copyFloat(t.stats.CurrentSeconds)
	s.TotalSeconds = copyFloat(t.stats.TotalSeconds)
	if t.stats.ExitCode != nil {
		code := *t.stats.ExitCode
		s.ExitCode = &code
	}

	end := t.now()
	if !s.Finished.IsZero() {
		end = s.Finished
	}
	if !s.Started.IsZero() {
		s.Elapsed = end.Sub(s.Started)
	}

	if t.digest.Count() > 0 {
		s.RateP50 = t.digest.Quantile(0.50)
		s.RateP95 = t.digest.Quantile(0.95)
	}
	return s
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
