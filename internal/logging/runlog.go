package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// MaxRecentLineLength bounds the in-memory copy of a line. The run log
	// file always receives the full line.
	MaxRecentLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for the exit summary.
	MaxBufferedLines = 100
)

// RunLog is the append-only log of a single transcription job. Every raw
// process line is written with its origin tag; the most recent lines are
// also kept in memory for the exit summary.
type RunLog struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	err error

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
}

// OpenRunLog opens (creating if needed) the run log at path in append mode.
func OpenRunLog(path string) (*RunLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}
	rl := NewRunLog(f)
	rl.c = f
	return rl, nil
}

// NewRunLog creates a run log writing to w.
func NewRunLog(w io.Writer) *RunLog {
	return &RunLog{
		w:      w,
		buffer: make([]string, MaxBufferedLines),
	}
}

// Line appends a process output line tagged with its origin, e.g. "stdout".
func (l *RunLog) Line(origin, text string) {
	recent := text
	if len(recent) > MaxRecentLineLength {
		recent = truncateUTF8(recent, MaxRecentLineLength) + "...(truncated)"
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.buffer[l.bufIdx] = recent
	l.bufIdx = (l.bufIdx + 1) % MaxBufferedLines

	l.writeLocked("[" + origin + "] " + text)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Notef appends a runner annotation, such as the command line or outcome.
func (l *RunLog) Notef(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLocked(fmt.Sprintf("[runner] %s %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...)))
}

// writeLocked must be called with mu held. The first write error is kept
// and later writes are skipped.
func (l *RunLog) writeLocked(line string) {
	if l.err != nil {
		return
	}
	if _, err := io.WriteString(l.w, line+"\n"); err != nil {
		l.err = err
	}
}

// Err returns the first write error, if any.
func (l *RunLog) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the underlying file when the log was opened by OpenRunLog.
func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.c == nil {
		return nil
	}
	err := l.c.Close()
	l.c = nil
	return err
}

// RecentLines returns up to n of the most recent process lines, oldest first.
func (l *RunLog) RecentLines(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if l.buffer[idx] != "" {
			lines = append(lines, l.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are common whisper.cpp failure patterns counted for the exit summary.
var ErrorPatterns = []string{
	"error",
	"failed to",
	"not found",
	"invalid",
	"out of memory",
}

// CountErrors counts occurrences of error patterns in the recent lines.
func (l *RunLog) CountErrors() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int)
	for _, line := range l.buffer {
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, pattern := range ErrorPatterns {
			if strings.Contains(lower, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
