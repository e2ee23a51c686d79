// Package parser classifies whisper.cpp output lines and turns its two
// progress encodings into one progress model.
//
// whisper-cli reports progress in two ways:
//
//	stdout: [00:01:35.320 --> 00:01:38.900]  And so my fellow Americans
//	stderr: whisper_print_progress_callback: progress =  75%
//
// The first carries the start timestamp of each decoded segment, the second
// a completion percentage. Neither is authoritative; both are forwarded as
// they arrive, normalised against the known total duration when there is one.
package parser

import (
	"math"
	"strconv"
	"strings"
)

// ProgressMarker identifies whisper.cpp percentage callback lines.
const ProgressMarker = "whisper_print_progress_callback"

// Diagnostic lines are written to the run log but never become events.
var (
	diagnosticPrefixes = []string{"whisper_", "ggml_"}
	noisePatterns      = []string{"main: processing", "load time"}
)

// ProgressSample is one normalised progress observation. At least one of
// CurrentSeconds and Percentage is set.
type ProgressSample struct {
	CurrentSeconds *float64
	TotalSeconds   *float64
	Percentage     *float64
}

// ParseTimestamp parses "H:MM:SS.mmm" into seconds. Exactly three
// colon-separated parts are required, each a non-negative decimal number.
func ParseTimestamp(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}

	var vals [3]float64
	for i, part := range parts {
		if !isDecimal(part) {
			return 0, false
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, false
		}
		vals[i] = v
	}

	return vals[0]*3600 + vals[1]*60 + vals[2], true
}

// ParseSegmentLine extracts the start timestamp of a segment line
// "[H:MM:SS.mmm --> H:MM:SS.mmm] text".
func ParseSegmentLine(line string) (float64, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return 0, false
	}
	arrow := strings.Index(line, "-->")
	if arrow < 0 {
		return 0, false
	}
	if !strings.Contains(line[arrow:], "]") {
		return 0, false
	}
	return ParseTimestamp(line[1:arrow])
}

// ParsePercentage extracts the number before the rightmost '%' of a
// progress callback line. Whitespace between the number and the sign is
// skipped; the number may contain one decimal point.
func ParsePercentage(line string) (float64, bool) {
	if !strings.Contains(line, ProgressMarker) {
		return 0, false
	}

	pct := strings.LastIndexByte(line, '%')
	if pct < 0 {
		return 0, false
	}

	end := pct
	for end > 0 && isSpace(line[end-1]) {
		end--
	}

	start := end
	digits, dots := 0, 0
scan:
	for start > 0 {
		switch c := line[start-1]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.' && dots == 0:
			dots++
		default:
			break scan
		}
		start--
	}
	if digits == 0 {
		return 0, false
	}

	v, err := strconv.ParseFloat(line[start:end], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// IsSuppressed reports whether line is diagnostic noise.
func IsSuppressed(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, p := range diagnosticPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	for _, p := range noisePatterns {
		if strings.Contains(trimmed, p) {
			return true
		}
	}
	return false
}

// Normalizer converts raw progress readings into ProgressSamples relative to
// an optional total duration, fixed for the lifetime of a job.
type Normalizer struct {
	total *float64
}

// NewNormalizer creates a normalizer. A nil or non-positive total means the
// duration is unknown.
func NewNormalizer(totalSeconds *float64) Normalizer {
	if totalSeconds == nil || *totalSeconds <= 0 {
		return Normalizer{}
	}
	d := *totalSeconds
	return Normalizer{total: &d}
}

// Total returns the known duration, or nil.
func (n Normalizer) Total() *float64 {
	if n.total == nil {
		return nil
	}
	d := *n.total
	return &d
}

// FromTimestamp builds a sample from a position in seconds.
func (n Normalizer) FromTimestamp(t float64) ProgressSample {
	s := ProgressSample{
		CurrentSeconds: ptr(t),
		TotalSeconds:   n.Total(),
	}
	if n.total != nil {
		s.Percentage = ptr(clampPercentage(t / *n.total * 100))
	}
	return s
}

// FromPercentage builds a sample from a completion percentage.
func (n Normalizer) FromPercentage(p float64) ProgressSample {
	p = clampPercentage(p)
	s := ProgressSample{
		Percentage:   ptr(p),
		TotalSeconds: n.Total(),
	}
	if n.total != nil {
		s.CurrentSeconds = ptr(p / 100 * *n.total)
	}
	return s
}

// Kind is the classification of one output line.
type Kind int

const (
	KindEmpty      Kind = iota // blank line, ignored
	KindSegment                // stdout segment: progress and output line
	KindPercentage             // stderr progress callback
	KindOutput                 // other stdout line
	KindError                  // other stderr line
	KindSuppressed             // diagnostic noise, run log only
)

// Classification is the result of Classify.
type Classification struct {
	Kind   Kind
	Sample *ProgressSample // set for KindSegment and KindPercentage
}

// Classify decides what a line means.
func (n Normalizer) Classify(l RawLine) Classification {
	if strings.TrimSpace(l.Text) == "" {
		return Classification{Kind: KindEmpty}
	}

	switch l.Origin {
	case OriginStdout:
		if t, ok := ParseSegmentLine(l.Text); ok {
			s := n.FromTimestamp(t)
			return Classification{Kind: KindSegment, Sample: &s}
		}
	case OriginStderr:
		if p, ok := ParsePercentage(l.Text); ok {
			s := n.FromPercentage(p)
			return Classification{Kind: KindPercentage, Sample: &s}
		}
	}

	if IsSuppressed(l.Text) {
		return Classification{Kind: KindSuppressed}
	}
	if l.Origin == OriginStderr {
		return Classification{Kind: KindError}
	}
	return Classification{Kind: KindOutput}
}

func clampPercentage(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// isDecimal reports whether s is digits with at most one '.' and at least one digit.
func isDecimal(s string) bool {
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return digits > 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

func ptr(v float64) *float64 { return &v }
