package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// AudioPath is the input file as given by the user
	AudioPath string

	// Transcript is the SRT file produced by a completed job
	Transcript string

	// Model and Optimization describe the whisper-cli invocation
	Model        string
	Optimization string

	// RunDir is the job's working directory, LogPath its run log
	RunDir  string
	LogPath string

	// KeptRunDir is true when the run directory was not removed
	KeptRunDir bool

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// ErrorCounts maps run-log error patterns to occurrence counts
	ErrorCounts map[string]int

	// RecentLines are the last run-log lines, shown for failed jobs
	RecentLines []string
}

// FormatExitSummary formats a job's stats for display at program exit.
//
// The summary includes:
// - Outcome and timing
// - Progress and realtime factor percentiles
// - Output line counts
// - Error patterns and the run log tail for failed jobs
func FormatExitSummary(s JobStats, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                         go-whisper-runner Job Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	fmt.Fprintf(&b, "Job:                    %s\n", s.JobID)
	fmt.Fprintf(&b, "Outcome:                %s\n", outcomeLabel(s))
	if cfg.AudioPath != "" {
		fmt.Fprintf(&b, "Audio:                  %s\n", cfg.AudioPath)
	}
	if cfg.Model != "" {
		fmt.Fprintf(&b, "Model:                  %s\n", cfg.Model)
	}
	if cfg.Optimization != "" {
		fmt.Fprintf(&b, "Optimization:           %s\n", cfg.Optimization)
	}
	fmt.Fprintf(&b, "Wall Time:              %s\n\n", FormatDuration(s.Elapsed))

	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                   Progress\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Completion:           %s\n", FormatPercent(s.Percentage))
	if s.CurrentSeconds != nil || s.TotalSeconds != nil {
		fmt.Fprintf(&b, "  Audio Position:       %s / %s\n",
			FormatSeconds(s.CurrentSeconds),
			FormatSeconds(s.TotalSeconds),
		)
	}
	if s.RealtimeFactor > 0 {
		fmt.Fprintf(&b, "  Realtime Factor:      %s", FormatFactor(s.RealtimeFactor))
		if s.RateP50 > 0 {
			fmt.Fprintf(&b, "  (p50 %s, p95 %s)", FormatFactor(s.RateP50), FormatFactor(s.RateP95))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "  Progress Samples:     %s\n", FormatNumber(s.ProgressSamples))
	fmt.Fprintf(&b, "  Output Lines:         %s\n", FormatNumber(s.OutputLines))
	fmt.Fprintf(&b, "  Error Lines:          %s\n\n", FormatNumber(s.ErrorLines))

	if len(cfg.ErrorCounts) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                    Errors\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
		for _, pattern := range sortedKeys(cfg.ErrorCounts) {
			fmt.Fprintf(&b, "  %-24s %6d\n", pattern, cfg.ErrorCounts[pattern])
		}
		b.WriteString("\n")
	}

	if s.Outcome == events.TypeFailed && len(cfg.RecentLines) > 0 {
		b.WriteString("  Last log lines:\n")
		for _, line := range cfg.RecentLines {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("\n")
	}

	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	if cfg.Transcript != "" {
		fmt.Fprintf(&b, "Transcript: %s\n", cfg.Transcript)
	}
	if cfg.LogPath != "" && cfg.KeptRunDir {
		fmt.Fprintf(&b, "Run log: %s\n", cfg.LogPath)
	}
	if cfg.RunDir != "" && cfg.KeptRunDir {
		fmt.Fprintf(&b, "Run directory: %s\n", cfg.RunDir)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

func outcomeLabel(s JobStats) string {
	switch s.Outcome {
	case events.TypeCompleted:
		return "completed"
	case events.TypeCancelled:
		return "cancelled"
	case events.TypeFailed:
		label := "failed"
		if s.ExitCode != nil {
			label += fmt.Sprintf(" (exit code %d%s)", *s.ExitCode, exitCodeLabel(*s.ExitCode))
		}
		if s.Reason != "" {
			label += ": " + s.Reason
		}
		return label
	default:
		return "unknown"
	}
}

func exitCodeLabel(code int) string {
	switch code {
	case 137:
		return ", SIGKILL"
	case 143:
		return ", SIGTERM"
	default:
		return ""
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "--:--:--"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatSeconds formats an optional audio position as HH:MM:SS.
func FormatSeconds(sec *float64) string {
	if sec == nil {
		return "?"
	}
	return FormatDuration(time.Duration(*sec * float64(time.Second)))
}

// FormatPercent formats an optional percentage.
func FormatPercent(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *p)
}

// FormatFactor formats a realtime factor, e.g. "2.35x".
func FormatFactor(f float64) string {
	return fmt.Sprintf("%.2fx", f)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatETA formats an ETA, or "--:--:--" when unknown.
func FormatETA(d time.Duration) string {
	if d == UnknownETA {
		return "--:--:--"
	}
	return FormatDuration(d)
}
