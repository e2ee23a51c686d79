package stats

import (
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

// =============================================================================
// Table-Driven Tests: Formatting Functions
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     string
	}{
		{"zero", 0, "00:00:00"},
		{"one second", time.Second, "00:00:01"},
		{"one minute", time.Minute, "00:01:00"},
		{"one hour", time.Hour, "01:00:00"},
		{"mixed", 2*time.Hour + 30*time.Minute + 45*time.Second, "02:30:45"},
		{"24 hours", 24 * time.Hour, "24:00:00"},
		{"sub-second", 500 * time.Millisecond, "00:00:00"},
		{"negative", -time.Second, "--:--:--"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.want {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.want)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0"},
		{"small", 123, "123"},
		{"999", 999, "999"},
		{"1K", 1000, "1.0K"},
		{"1.5K", 1500, "1.5K"},
		{"1M", 1000000, "1.0M"},
		{"negative", -100, "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.n); got != tt.want {
				t.Errorf("FormatNumber(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatOptionalValues(t *testing.T) {
	v := 95.5
	if got := FormatSeconds(&v); got != "00:01:35" {
		t.Errorf("FormatSeconds(95.5) = %q", got)
	}
	if got := FormatSeconds(nil); got != "?" {
		t.Errorf("FormatSeconds(nil) = %q", got)
	}

	p := 42.25
	if got := FormatPercent(&p); got != "42.2%" && got != "42.3%" {
		t.Errorf("FormatPercent(42.25) = %q", got)
	}
	if got := FormatPercent(nil); got != "-" {
		t.Errorf("FormatPercent(nil) = %q", got)
	}

	if got := FormatFactor(2.345); got != "2.35x" && got != "2.34x" {
		t.Errorf("FormatFactor(2.345) = %q", got)
	}
	if got := FormatETA(UnknownETA); got != "--:--:--" {
		t.Errorf("FormatETA(unknown) = %q", got)
	}
	if got := FormatETA(90 * time.Second); got != "00:01:30" {
		t.Errorf("FormatETA(90s) = %q", got)
	}
}

// =============================================================================
// Tests: FormatExitSummary
// =============================================================================

func TestFormatExitSummary_Completed(t *testing.T) {
	pct, cur, total := 100.0, 200.0, 200.0
	s := JobStats{
		JobID:           "job-1",
		Elapsed:         100 * time.Second,
		Percentage:      &pct,
		CurrentSeconds:  &cur,
		TotalSeconds:    &total,
		RealtimeFactor:  2,
		RateP50:         2.1,
		RateP95:         3,
		ProgressSamples: 12,
		OutputLines:     10,
		Outcome:         events.TypeCompleted,
	}

	out := FormatExitSummary(s, SummaryConfig{
		AudioPath:   "talk.mp3",
		Model:       "ggml-tiny-q5_1.bin",
		MetricsAddr: "127.0.0.1:9100",
		RunDir:      "/tmp/run",
		Transcript:  "/home/me/talk.srt",
	})

	for _, want := range []string{
		"go-whisper-runner Job Summary",
		"Job:                    job-1",
		"Outcome:                completed",
		"Audio:                  talk.mp3",
		"Wall Time:              00:01:40",
		"Completion:           100.0%",
		"Audio Position:       00:03:20 / 00:03:20",
		"Realtime Factor:      2.00x  (p50 2.10x, p95 3.00x)",
		"Output Lines:         10",
		"Metrics: http://127.0.0.1:9100/metrics",
		"Transcript: /home/me/talk.srt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Run directory") {
		t.Error("removed run directory should not be listed")
	}
	if strings.Contains(out, "Errors") {
		t.Error("errors section should be omitted without error counts")
	}
}

func TestFormatExitSummary_Failed(t *testing.T) {
	code := 137
	s := JobStats{
		JobID:    "job-2",
		Outcome:  events.TypeFailed,
		Reason:   "whisper exited with code 137",
		ExitCode: &code,
	}

	out := FormatExitSummary(s, SummaryConfig{
		LogPath:     "/tmp/run/whisper.log",
		RunDir:      "/tmp/run",
		KeptRunDir:  true,
		ErrorCounts: map[string]int{"failed to": 2, "error": 1},
		RecentLines: []string{"[stderr] error: out of memory"},
	})

	for _, want := range []string{
		"Outcome:                failed (exit code 137, SIGKILL): whisper exited with code 137",
		"Completion:           -",
		"Errors",
		"Last log lines:",
		"    [stderr] error: out of memory",
		"Run log: /tmp/run/whisper.log",
		"Run directory: /tmp/run",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	if strings.Contains(out, "Transcript:") {
		t.Error("failed job has no transcript line")
	}

	// Error patterns are listed in sorted order.
	if strings.Index(out, "  error ") > strings.Index(out, "  failed to") {
		t.Errorf("error patterns not sorted:\n%s", out)
	}
}

func TestFormatExitSummary_Unknown(t *testing.T) {
	out := FormatExitSummary(JobStats{}, SummaryConfig{})
	if !strings.Contains(out, "Outcome:                unknown") {
		t.Errorf("summary = %s", out)
	}
}
