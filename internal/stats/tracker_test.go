package stats

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

func f64(v float64) *float64 { return &v }

func progressAt(jobID string, at time.Time, cur, total, pct *float64) events.Event {
	return events.Event{
		JobID: jobID,
		Time:  at,
		Type:  events.TypeProgress,
		Progress: &events.Progress{
			CurrentSeconds: cur,
			TotalSeconds:   total,
			Percentage:     pct,
		},
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestTracker_RealtimeFactorAndETA(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	tr := NewTracker(5)
	tr.now = func() time.Time { return base.Add(20 * time.Second) }

	// The first event anchors the job start.
	tr.Emit(events.Event{JobID: "a", Time: base, Type: events.TypeOutputLine, Text: "start"})
	tr.Emit(progressAt("a", base.Add(10*time.Second), f64(20), f64(100), f64(20)))
	tr.Emit(progressAt("a", base.Add(20*time.Second), f64(40), f64(100), f64(40)))

	s := tr.Snapshot()
	if s.JobID != "a" {
		t.Errorf("JobID = %q", s.JobID)
	}
	if !approx(s.RealtimeFactor, 2) {
		t.Errorf("RealtimeFactor = %v, want 2", s.RealtimeFactor)
	}
	// 60 audio seconds left at 2x.
	if s.ETA != 30*time.Second {
		t.Errorf("ETA = %v, want 30s", s.ETA)
	}
	if !approx(s.RateP50, 2) {
		t.Errorf("RateP50 = %v, want 2", s.RateP50)
	}
	if !approx(s.RecentFactor, 2) {
		t.Errorf("RecentFactor = %v, want 2", s.RecentFactor)
	}
	if s.ProgressSamples != 2 {
		t.Errorf("ProgressSamples = %d", s.ProgressSamples)
	}
	if s.Elapsed != 20*time.Second {
		t.Errorf("Elapsed = %v, want 20s", s.Elapsed)
	}
	if *s.Percentage != 40 || *s.CurrentSeconds != 40 || *s.TotalSeconds != 100 {
		t.Errorf("progress = %v %v %v", *s.Percentage, *s.CurrentSeconds, *s.TotalSeconds)
	}
}

func TestTracker_PercentageOnlyETA(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	tr := NewTracker(0)

	tr.Emit(events.Event{JobID: "b", Time: base, Type: events.TypeErrorLine})
	tr.Emit(progressAt("b", base.Add(30*time.Second), nil, nil, f64(25)))

	s := tr.Snapshot()
	if s.ETA != 90*time.Second {
		t.Errorf("ETA = %v, want 90s", s.ETA)
	}
	if s.RealtimeFactor != 0 {
		t.Errorf("RealtimeFactor = %v, want 0 without positions", s.RealtimeFactor)
	}
	if s.CurrentSeconds != nil {
		t.Error("CurrentSeconds should stay nil")
	}
	if s.ErrorLines != 1 {
		t.Errorf("ErrorLines = %d", s.ErrorLines)
	}
}

func TestTracker_UnknownETA(t *testing.T) {
	tr := NewTracker(0)
	if s := tr.Snapshot(); s.ETA != UnknownETA {
		t.Errorf("initial ETA = %v", s.ETA)
	}

	// A position without a total and without a percentage gives no estimate.
	base := time.Unix(1_700_000_000, 0)
	tr.Emit(events.Event{JobID: "c", Time: base, Type: events.TypeOutputLine})
	tr.Emit(progressAt("c", base.Add(time.Second), f64(5), nil, nil))
	if s := tr.Snapshot(); s.ETA != UnknownETA {
		t.Errorf("ETA = %v, want unknown", s.ETA)
	}
}

func TestTracker_TerminalEvents(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	code := 2

	tests := []struct {
		name  string
		event events.Event
	}{
		{"completed", events.Event{Type: events.TypeCompleted}},
		{"failed", events.Event{Type: events.TypeFailed, Reason: "boom", ExitCode: &code}},
		{"cancelled", events.Event{Type: events.TypeCancelled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(0)
			tr.Emit(events.Event{JobID: "d", Time: base, Type: events.TypeOutputLine})

			e := tt.event
			e.JobID = "d"
			e.Time = base.Add(5 * time.Second)
			tr.Emit(e)

			s := tr.Snapshot()
			if !s.Done() || s.Outcome != e.Type {
				t.Fatalf("Outcome = %q, want %q", s.Outcome, e.Type)
			}
			if s.Elapsed != 5*time.Second {
				t.Errorf("Elapsed = %v, want 5s (frozen at finish)", s.Elapsed)
			}
			if e.Type == events.TypeFailed {
				if s.Reason != "boom" || s.ExitCode == nil || *s.ExitCode != 2 {
					t.Errorf("failure details = %q %v", s.Reason, s.ExitCode)
				}
			}
			if e.Type == events.TypeCompleted && s.ETA != 0 {
				t.Errorf("ETA after completion = %v", s.ETA)
			}
		})
	}
}

func TestTracker_NewJobResets(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	tr := NewTracker(2)

	tr.Emit(events.Event{JobID: "first", Time: base, Type: events.TypeOutputLine, Text: "x"})
	tr.Emit(events.Event{JobID: "first", Time: base, Type: events.TypeCompleted})
	tr.Emit(events.Event{JobID: "second", Time: base.Add(time.Minute), Type: events.TypeOutputLine, Text: "y"})

	s := tr.Snapshot()
	if s.JobID != "second" || s.OutputLines != 1 || s.Done() {
		t.Errorf("after reset = %+v", s)
	}
	if len(s.LastLines) != 1 || s.LastLines[0] != "y" {
		t.Errorf("LastLines = %q", s.LastLines)
	}
}

func TestTracker_LastLinesBounded(t *testing.T) {
	tr := NewTracker(3)
	for _, line := range []string{"1", "2", "3", "4", "5"} {
		tr.Emit(events.Event{JobID: "e", Type: events.TypeOutputLine, Text: line})
	}

	s := tr.Snapshot()
	want := []string{"3", "4", "5"}
	if len(s.LastLines) != len(want) {
		t.Fatalf("LastLines = %q, want %q", s.LastLines, want)
	}
	for i := range want {
		if s.LastLines[i] != want[i] {
			t.Errorf("LastLines[%d] = %q, want %q", i, s.LastLines[i], want[i])
		}
	}
	if s.OutputLines != 5 {
		t.Errorf("OutputLines = %d", s.OutputLines)
	}
}

func TestTracker_SnapshotIsCopy(t *testing.T) {
	tr := NewTracker(2)
	tr.Emit(progressAt("f", time.Now(), f64(1), f64(10), f64(10)))

	s := tr.Snapshot()
	*s.Percentage = 99
	if got := tr.Snapshot(); *got.Percentage != 10 {
		t.Errorf("snapshot aliases tracker state: %v", *got.Percentage)
	}
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker(10)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Emit(progressAt("g", time.Now(), f64(float64(j)), f64(200), nil))
				tr.Emit(events.Event{JobID: "g", Type: events.TypeOutputLine, Text: "l"})
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = tr.Snapshot()
			}
		}()
	}
	wg.Wait()

	if s := tr.Snapshot(); s.OutputLines != 800 {
		t.Errorf("OutputLines = %d, want 800", s.OutputLines)
	}
}

func BenchmarkTracker_Emit(b *testing.B) {
	tr := NewTracker(10)
	base := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tr.Emit(progressAt("bench", base.Add(time.Duration(i)*time.Millisecond), f64(float64(i)), f64(1e9), nil))
	}
}
