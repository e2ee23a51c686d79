// Package timeseries computes rolling rates over a bounded history of
// cumulative samples.
//
// A RateWindow is fed the cumulative audio position of a transcription job
// each time progress is reported, and answers "how many audio seconds per
// wall-clock second over the last N seconds". Samples carry their own
// timestamps, so rates are measured between reports rather than against the
// current time.
package timeseries

import (
	"sync"
	"time"
)

const (
	// DefaultCapacity is the number of samples retained.
	DefaultCapacity = 300

	// Windows reported by Stats.
	Window10s = 10 * time.Second
	Window30s = 30 * time.Second
	Window60s = 60 * time.Second
)

// sample is a point-in-time reading of a cumulative value.
type sample struct {
	at    time.Time
	value float64
}

// RateWindow keeps a ring buffer of cumulative samples.
//
// Usage:
//
//	w := NewRateWindow(DefaultCapacity)
//	w.Record(e.Time, currentSeconds) // per progress report
//	rates := w.Stats()
type RateWindow struct {
	mu       sync.RWMutex
	samples  []sample
	capacity int
	writeIdx int // next write position once the buffer is full
	last     sample
	first    sample
	count    int
}

// Rates are rolling rates ending at the newest sample, in value units per
// second. A rate is zero until two samples span a positive interval.
type Rates struct {
	Last10s float64
	Last30s float64
	Last60s float64
	Overall float64
}

// NewRateWindow creates a window keeping up to capacity samples.
func NewRateWindow(capacity int) *RateWindow {
	if capacity < 2 {
		capacity = DefaultCapacity
	}
	return &RateWindow{
		samples:  make([]sample, 0, capacity),
		capacity: capacity,
	}
}

// Record adds a cumulative reading. Readings older than the newest sample,
// or lower than it, are ignored.
func (w *RateWindow) Record(at time.Time, value float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count > 0 && (at.Before(w.last.at) || value < w.last.value) {
		return
	}

	s := sample{at: at, value: value}
	if len(w.samples) < w.capacity {
		w.samples = append(w.samples, s)
	} else {
		w.samples[w.writeIdx] = s
		w.writeIdx = (w.writeIdx + 1) % w.capacity
	}
	if w.count == 0 {
		w.first = s
	}
	w.last = s
	w.count++
}

// Rate returns the rate over the window ending at the newest sample.
func (w *RateWindow) Rate(window time.Duration) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rateLocked(window)
}

// Stats returns the standard rolling rates.
func (w *RateWindow) Stats() Rates {
	w.mu.RLock()
	defer w.mu.RUnlock()

	r := Rates{
		Last10s: w.rateLocked(Window10s),
		Last30s: w.rateLocked(Window30s),
		Last60s: w.rateLocked(Window60s),
	}
	if w.count > 1 {
		r.Overall = rateBetween(w.first, w.last)
	}
	return r
}

// rateLocked finds the sample closest to (but not after) the window start
// and measures from it to the newest sample. Must be called with mu held.
func (w *RateWindow) rateLocked(window time.Duration) float64 {
	if len(w.samples) < 2 {
		return 0
	}

	target := w.last.at.Add(-window)

	var base *sample
	var bestDiff time.Duration = -1
	for i := range w.samples {
		s := &w.samples[i]
		if s.at.After(target) {
			continue
		}
		diff := target.Sub(s.at)
		if bestDiff < 0 || diff < bestDiff {
			base = s
			bestDiff = diff
		}
	}

	// History shorter than the window: use the oldest sample.
	if base == nil {
		base = w.oldestLocked()
	}
	return rateBetween(*base, w.last)
}

func rateBetween(from, to sample) float64 {
	elapsed := to.at.Sub(from.at).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return (to.value - from.value) / elapsed
}

// oldestLocked returns the oldest retained sample. Must be called with mu held.
func (w *RateWindow) oldestLocked() *sample {
	if len(w.samples) < w.capacity {
		return &w.samples[0]
	}
	return &w.samples[w.writeIdx]
}

// Reset clears all samples.
func (w *RateWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
	w.writeIdx = 0
	w.count = 0
	w.first, w.last = sample{}, sample{}
}

// Len returns the number of retained samples.
func (w *RateWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.samples)
}
