package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

var base = time.Unix(1_700_000_000, 0)

func at(sec float64) time.Time {
	return base.Add(time.Duration(sec * float64(time.Second)))
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRateWindow_Empty(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)
	if got := w.Rate(Window10s); got != 0 {
		t.Errorf("Rate() on empty window = %v, want 0", got)
	}
	if got := w.Stats(); got != (Rates{}) {
		t.Errorf("Stats() on empty window = %+v", got)
	}

	w.Record(at(0), 5)
	if got := w.Rate(Window10s); got != 0 {
		t.Errorf("Rate() with one sample = %v, want 0", got)
	}
}

func TestRateWindow_Rates(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)

	// 1x for the first minute, then 3x for the next 30 seconds.
	for s := 0; s <= 60; s += 5 {
		w.Record(at(float64(s)), float64(s))
	}
	for s := 65; s <= 90; s += 5 {
		w.Record(at(float64(s)), 60+3*float64(s-60))
	}

	tests := []struct {
		name   string
		window time.Duration
		want   float64
	}{
		{"10s", Window10s, 3},
		{"30s", Window30s, 3},
		{"60s", Window60s, (150.0 - 30.0) / 60},
		{"longer than history", 10 * time.Minute, 150.0 / 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Rate(tt.window); !approx(got, tt.want) {
				t.Errorf("Rate(%v) = %v, want %v", tt.window, got, tt.want)
			}
		})
	}

	stats := w.Stats()
	if !approx(stats.Last10s, 3) || !approx(stats.Last30s, 3) {
		t.Errorf("Stats() = %+v", stats)
	}
	if !approx(stats.Overall, 150.0/90) {
		t.Errorf("Overall = %v, want %v", stats.Overall, 150.0/90)
	}
}

func TestRateWindow_IgnoresRegressions(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)
	w.Record(at(0), 0)
	w.Record(at(10), 20)
	w.Record(at(5), 30)  // older timestamp
	w.Record(at(12), 10) // lower value

	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}
	if got := w.Rate(Window10s); !approx(got, 2) {
		t.Errorf("Rate() = %v, want 2", got)
	}
}

func TestRateWindow_RingBufferWraps(t *testing.T) {
	w := NewRateWindow(4)
	for s := 0; s < 10; s++ {
		w.Record(at(float64(s)), float64(2*s))
	}

	if w.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", w.Len())
	}
	// Oldest retained sample is t=6.
	if got := w.Rate(time.Minute); !approx(got, 2) {
		t.Errorf("Rate() = %v, want 2", got)
	}
	// Overall still spans the first sample ever recorded.
	if got := w.Stats().Overall; !approx(got, 2) {
		t.Errorf("Overall = %v, want 2", got)
	}
}

func TestRateWindow_SameTimestamp(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)
	w.Record(at(1), 1)
	w.Record(at(1), 2)
	if got := w.Rate(Window10s); got != 0 {
		t.Errorf("Rate() over zero interval = %v, want 0", got)
	}
}

func TestRateWindow_Reset(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)
	w.Record(at(0), 0)
	w.Record(at(10), 10)
	w.Reset()

	if w.Len() != 0 {
		t.Errorf("Len() after Reset = %d", w.Len())
	}
	w.Record(at(20), 0)
	w.Record(at(30), 5)
	if got := w.Stats().Overall; !approx(got, 0.5) {
		t.Errorf("Overall after Reset = %v, want 0.5", got)
	}
}

func TestNewRateWindow_SmallCapacity(t *testing.T) {
	w := NewRateWindow(1)
	if w.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", w.capacity, DefaultCapacity)
	}
}

func TestRateWindow_Concurrent(t *testing.T) {
	w := NewRateWindow(DefaultCapacity)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for s := 0; s < 500; s++ {
			w.Record(at(float64(s)), float64(s))
		}
	}()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				_ = w.Stats()
			}
		}()
	}
	wg.Wait()

	if w.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", w.Len(), DefaultCapacity)
	}
}
