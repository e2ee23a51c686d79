// Package metrics provides Prometheus metrics for go-whisper-runner.
//
// The Collector is an events.Sink: attach it to the supervisor's event
// stream and it keeps job, progress and output-line metrics current. Job
// start and finish are recorded through the supervisor callbacks.
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
)

const namespace = "whisper_runner"

// Collector manages all Prometheus metrics for the runner.
type Collector struct {
	// --- Panel 1: Overview ---
	info       *prometheus.GaugeVec
	jobActive  prometheus.Gauge
	jobStarted prometheus.Counter

	// --- Panel 2: Progress ---
	progressPercent prometheus.Gauge
	positionSeconds prometheus.Gauge
	totalSeconds    prometheus.Gauge
	progressSamples prometheus.Counter
	realtimeFactor  prometheus.Gauge
	etaSeconds      prometheus.Gauge

	// --- Panel 3: Output ---
	lines *prometheus.CounterVec

	// --- Panel 4: Outcomes ---
	jobsFinished *prometheus.CounterVec
	exits        *prometheus.CounterVec
	jobDuration  prometheus.Histogram

	// For summary generation
	mu        sync.Mutex
	startTime time.Time
	starts    int64
	outcomes  map[events.Type]int64
	exitCodes map[int]int64
	durations []time.Duration
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version      string
	Model        string
	Optimization string
}

// NewCollectorWithRegistry creates a collector registered on registry.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the runner (value always 1)",
		}, []string{"version", "model", "optimization"}),
		jobActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_active",
			Help:      "1 while a transcription job occupies the slot",
		}),
		jobStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total transcription jobs started",
		}),

		progressPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_progress_percent",
			Help:      "Latest reported completion percentage (0-100)",
		}),
		positionSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_position_seconds",
			Help:      "Latest reported audio position",
		}),
		totalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_total_seconds",
			Help:      "Known audio duration (0 = unknown)",
		}),
		progressSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "progress_samples_total",
			Help:      "Total progress samples received",
		}),
		realtimeFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_factor",
			Help:      "Audio seconds transcribed per wall-clock second",
		}),
		etaSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eta_seconds",
			Help:      "Estimated seconds until completion (-1 = unknown)",
		}),

		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Output lines forwarded as events, by stream",
		}, []string{"stream"}),

		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total transcription jobs finished, by outcome",
		}, []string{"outcome"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_exits_total",
			Help:      "Process exits by category (success, error, signal)",
		}, []string{"category"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of finished jobs",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		}),

		startTime: time.Now(),
		outcomes:  make(map[events.Type]int64),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		// Panel 1: Overview
		c.info,
		c.jobActive,
		c.jobStarted,

		// Panel 2: Progress
		c.progressPercent,
		c.positionSeconds,
		c.totalSeconds,
		c.progressSamples,
		c.realtimeFactor,
		c.etaSeconds,

		// Panel 3: Output
		c.lines,

		// Panel 4: Outcomes
		c.jobsFinished,
		c.exits,
		c.jobDuration,
	)

	// Set initial values
	c.info.WithLabelValues(cfg.Version, cfg.Model, cfg.Optimization).Set(1)
	c.etaSeconds.Set(-1)

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// Emit implements events.Sink.
func (c *Collector) Emit(e events.Event) {
	switch e.Type {
	case events.TypeProgress:
		c.progressSamples.Inc()
		if p := e.Progress; p != nil {
			if p.Percentage != nil {
				c.progressPercent.Set(*p.Percentage)
			}
			if p.CurrentSeconds != nil {
				c.positionSeconds.Set(*p.CurrentSeconds)
			}
			if p.TotalSeconds != nil {
				c.totalSeconds.Set(*p.TotalSeconds)
			}
		}
	case events.TypeOutputLine:
		c.lines.WithLabelValues("stdout").Inc()
	case events.TypeErrorLine:
		c.lines.WithLabelValues("stderr").Inc()
	case events.TypeCompleted:
		c.progressPercent.Set(100)
		c.etaSeconds.Set(0)
	}
}

// JobStarted records a job start.
func (c *Collector) JobStarted() {
	c.jobStarted.Inc()
	c.jobActive.Set(1)
	c.progressPercent.Set(0)
	c.positionSeconds.Set(0)
	c.totalSeconds.Set(0)
	c.etaSeconds.Set(-1)

	c.mu.Lock()
	c.starts++
	c.mu.Unlock()
}

// JobFinished records a job's terminal outcome.
func (c *Collector) JobFinished(outcome events.Type, exitCode int, duration time.Duration) {
	c.jobActive.Set(0)
	c.jobsFinished.WithLabelValues(string(outcome)).Inc()
	c.exits.WithLabelValues(exitCategory(exitCode)).Inc()
	c.jobDuration.Observe(duration.Seconds())

	c.mu.Lock()
	c.outcomes[outcome]++
	c.exitCodes[exitCode]++
	c.durations = append(c.durations, duration)
	c.mu.Unlock()
}

// SetRate updates the realtime factor and ETA gauges. A negative eta means
// unknown.
func (c *Collector) SetRate(realtimeFactor float64, eta time.Duration) {
	c.realtimeFactor.Set(realtimeFactor)
	if eta < 0 {
		c.etaSeconds.Set(-1)
		return
	}
	c.etaSeconds.Set(eta.Seconds())
}

func exitCategory(exitCode int) string {
	switch {
	case exitCode == 0:
		return "success"
	case exitCode > 128:
		return "signal"
	default:
		return "error"
	}
}

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the data for generating an exit summary.
type Summary struct {
	Uptime      time.Duration
	TotalStarts int64
	Outcomes    map[events.Type]int64
	ExitCodes   map[int]int64
	DurationP50 time.Duration
	DurationMax time.Duration
}

// GenerateSummary creates a summary of the process lifetime.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Uptime:      time.Since(c.startTime),
		TotalStarts: c.starts,
		Outcomes:    make(map[events.Type]int64, len(c.outcomes)),
		ExitCodes:   make(map[int]int64, len(c.exitCodes)),
	}
	for k, v := range c.outcomes {
		s.Outcomes[k] = v
	}
	for k, v := range c.exitCodes {
		s.ExitCodes[k] = v
	}

	if len(c.durations) > 0 {
		sorted := slices.Clone(c.durations)
		slices.Sort(sorted)
		s.DurationP50 = percentile(sorted, 0.50)
		s.DurationMax = sorted[len(sorted)-1]
	}

	return s
}

// percentile returns the value at the given percentile (0.0-1.0).
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
