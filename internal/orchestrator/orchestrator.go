// Package orchestrator wires one transcription run end to end: preflight,
// audio conversion, duration probe, the supervised whisper job, metrics,
// the dashboard, signal handling and the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-whisper-runner/internal/config"
	"github.com/randomizedcoder/go-whisper-runner/internal/events"
	"github.com/randomizedcoder/go-whisper-runner/internal/logging"
	"github.com/randomizedcoder/go-whisper-runner/internal/metrics"
	"github.com/randomizedcoder/go-whisper-runner/internal/preflight"
	"github.com/randomizedcoder/go-whisper-runner/internal/process"
	"github.com/randomizedcoder/go-whisper-runner/internal/rundir"
	"github.com/randomizedcoder/go-whisper-runner/internal/stats"
	"github.com/randomizedcoder/go-whisper-runner/internal/supervisor"
	"github.com/randomizedcoder/go-whisper-runner/internal/tui"
)

const (
	// trackedLines is the number of transcript lines kept for the dashboard.
	trackedLines = 50

	// summaryLines is the run log tail shown for failed jobs.
	summaryLines = 10

	// shutdownGrace bounds metrics server shutdown and the wait for a
	// cancelled job beyond its kill timeout.
	shutdownGrace = 5 * time.Second
)

// ErrPreflight is returned when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed")

// Options are the non-configuration dependencies of an Orchestrator.
type Options struct {
	// Version is reported in the info metric and the summary.
	Version string

	// Out receives preflight results and the exit summary. Defaults to stdout.
	Out io.Writer

	// Builder overrides the whisper-cli process builder.
	Builder supervisor.ProcessBuilder

	// Registry holds the run's metrics. Defaults to a fresh registry.
	Registry *prometheus.Registry
}

// Orchestrator coordinates all components for one transcription run.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	tracker       *stats.Tracker
	bus           *events.Bus
	supervisor    *supervisor.Supervisor
	program       *tea.Program

	mu     sync.Mutex
	result *supervisor.Result
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		out:      out,
		registry: registry,
		tracker:  stats.NewTracker(trackedLines),
	}

	o.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:      opts.Version,
		Model:        cfg.Model,
		Optimization: cfg.Optimization,
	}, registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, logger)
	}

	var tuiSink events.Sink
	if cfg.TUIEnabled {
		o.program = tea.NewProgram(tui.New(tui.Config{
			AudioPath:    cfg.AudioPath,
			Model:        cfg.Model,
			Optimization: cfg.Optimization,
			MetricsAddr:  cfg.MetricsAddr,
			StatsSource:  o.tracker,
			OnCancel:     o.cancelJob,
		}), tea.WithAltScreen())
		tuiSink = tui.NewSink(o.program)
	}

	o.bus = events.NewBus(events.DefaultHistory, events.Multi(
		o.metrics,
		o.tracker,
		logSink(logger),
		tuiSink,
	))
	if o.metricsServer != nil {
		o.metricsServer.HandleEvents(o.bus)
	}

	o.supervisor = supervisor.New(supervisor.Config{
		BinDir:       cfg.BinDir,
		ResourcesDir: cfg.ResourcesDir,
		WorkDir:      cfg.WorkDir,
		KillTimeout:  cfg.KillTimeout,
		Sink:         o.bus,
		Logger:       logger,
		Builder:      opts.Builder,
		Callbacks: supervisor.Callbacks{
			OnStart: o.onStart,
			OnExit:  o.onExit,
		},
	})

	return o
}

// Run executes one job and blocks until it reaches a terminal outcome.
// SIGINT and SIGTERM cancel the job. Setup errors are returned before the
// job starts; the job's own outcome is reported through the Result. A
// transcript that cannot be copied to the output path is returned as an
// error alongside the Result.
func (o *Orchestrator) Run(ctx context.Context) (*supervisor.Result, error) {
	cfg := o.config

	if !cfg.SkipPreflight {
		result := preflight.RunAll(o.preflightOptions())
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return nil, fmt.Errorf("%w (use --skip-preflight to override): %w", ErrPreflight, result.Err())
		}
	}

	if _, err := os.Stat(cfg.AudioPath); err != nil {
		return nil, fmt.Errorf("%w: input %s: %v", process.ErrResourceNotFound, cfg.AudioPath, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := rundir.Create(cfg.WorkDir)
	if err != nil {
		return nil, err
	}
	ctx = logging.ContextAttrs(ctx, slog.String("job_id", run.ID))

	audio, err := o.prepareAudio(ctx, run)
	if err != nil {
		_ = run.Remove()
		return nil, err
	}

	total := cfg.TotalSeconds()
	if total == nil {
		total = o.probeDuration(ctx, audio)
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			_ = run.Remove()
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer o.shutdownMetricsServer()
	}

	// The dashboard must be reading messages before the first event is sent.
	tuiDone := o.startTUI()

	variant, _ := process.ParseVariant(cfg.Optimization)
	_, err = o.supervisor.Start(ctx, supervisor.JobSpec{
		AudioPath:    audio,
		TotalSeconds: total,
		Language:     cfg.Language,
		Model:        cfg.Model,
		ModelDir:     cfg.ModelDir,
		Optimization: variant,
		VAD:          cfg.VAD,
		GPU:          !cfg.DisableGPU,
		Threads:      cfg.Threads,
		Run:          run,
	})
	if err != nil {
		o.stopTUI(tuiDone)
		_ = run.Remove()
		return nil, err
	}

	o.logger.InfoContext(ctx, "job_submitted",
		"audio", cfg.AudioPath,
		"model", cfg.Model,
		"optimization", cfg.Optimization,
		"run_dir", run.Dir,
	)

	o.waitForJob(ctx)
	o.stopTUI(tuiDone)

	res := o.Result()
	if res == nil {
		return nil, errors.New("job ended without a result")
	}

	transcript := res.Transcript
	var saveErr error
	if transcript != "" && cfg.OutputPath != "" {
		saved, err := saveTranscript(transcript, cfg.OutputPath, cfg.AudioPath)
		if err != nil {
			saveErr = fmt.Errorf("save transcript: %w", err)
			o.logger.ErrorContext(ctx, "transcript_save_failed", "src", transcript, "dst", cfg.OutputPath, "error", err)
		} else {
			o.logger.InfoContext(ctx, "transcript_saved", "path", saved)
			transcript = saved
		}
	}

	if err := metrics.WriteSnapshotFile(run.MetricsPath(), o.registry); err != nil {
		o.logger.Warn("metrics_snapshot_failed", "path", run.MetricsPath(), "error", err)
	}
	if !cfg.KeepRunDir {
		if err := run.Cleanup(); err != nil {
			o.logger.Warn("run_dir_cleanup_failed", "run_dir", run.Dir, "error", err)
		}
	}

	sum := o.metrics.GenerateSummary()
	samples, _ := metrics.Value(o.registry, "whisper_runner_progress_samples_total", nil)
	o.logger.InfoContext(ctx, "run_summary",
		"outcome", string(res.Outcome),
		"jobs_started", sum.TotalStarts,
		"job_duration_max", sum.DurationMax.String(),
		"progress_samples", int64(samples),
		"uptime", sum.Uptime.Round(time.Millisecond).String(),
		"transcript", transcript,
	)

	o.printExitSummary(res, transcript)

	return res, saveErr
}

// saveTranscript copies the SRT file at src to dst and returns the path
// written. A directory dst receives <input base name>.srt.
func saveTranscript(src, dst, input string) (string, error) {
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		dst = filepath.Join(dst, base+".srt")
	}
	if filepath.Clean(dst) == filepath.Clean(src) {
		return dst, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

// prepareAudio converts the input into the run directory, or passes it
// through unchanged when conversion is disabled.
func (o *Orchestrator) prepareAudio(ctx context.Context, run *rundir.Run) (string, error) {
	if o.config.SkipConvert {
		return o.config.AudioPath, nil
	}

	conv := process.NewConverter(o.config.FFmpegPath, o.config.AudioPath, run.AudioPath())
	o.logger.InfoContext(ctx, "converting_audio", "command", conv.CommandString())

	start := time.Now()
	if err := conv.Convert(ctx); err != nil {
		return "", fmt.Errorf("convert audio: %w", err)
	}
	o.logger.InfoContext(ctx, "audio_converted", "path", run.AudioPath(), "duration", time.Since(start).String())
	return run.AudioPath(), nil
}

// probeDuration asks ffprobe for the audio length. A failed probe leaves the
// total unknown.
func (o *Orchestrator) probeDuration(ctx context.Context, audio string) *float64 {
	ffprobe := o.config.FFprobePath
	if ffprobe == "" {
		ffprobe = process.FindFFprobe(o.config.FFmpegPath)
	}

	d, err := process.ProbeDuration(ctx, ffprobe, audio)
	if err != nil {
		o.logger.WarnContext(ctx, "duration_probe_failed", "error", err, "fallback", "percentage")
		return nil
	}
	o.logger.InfoContext(ctx, "duration_probed", "seconds", d)
	return &d
}

// waitForJob blocks until the job's terminal event, cancelling it when ctx
// is done.
func (o *Orchestrator) waitForJob(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.supervisor.Wait(context.Background())
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
		o.logger.Info("received_signal", "reason", context.Cause(ctx))
	}

	o.cancelJob()
	<-done
}

// cancelJob stops the running job, escalating to SIGKILL after the kill
// timeout.
func (o *Orchestrator) cancelJob() {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.KillTimeout+shutdownGrace)
	defer cancel()
	if err := o.supervisor.Cancel(ctx); err != nil {
		o.logger.Warn("cancel_failed", "error", err)
	}
}

func (o *Orchestrator) startTUI() chan struct{} {
	if o.program == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := o.program.Run(); err != nil {
			o.logger.Warn("tui_failed", "error", err)
		}
	}()
	return done
}

func (o *Orchestrator) stopTUI(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
		return
	default:
	}
	tui.SendQuit(o.program)
	<-done
}

func (o *Orchestrator) shutdownMetricsServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	variant, _ := process.ParseVariant(o.config.Optimization)
	return PreflightOptions(o.config, variant)
}

// PreflightOptions maps the configuration onto preflight check options.
func PreflightOptions(cfg *config.Config, variant process.Variant) preflight.Options {
	return preflight.Options{
		BinDir:       cfg.BinDir,
		ResourcesDir: cfg.ResourcesDir,
		Model:        cfg.Model,
		ModelDir:     cfg.ModelDir,
		Variant:      variant,
		VAD:          cfg.VAD,
		FFmpegPath:   cfg.FFmpegPath,
		FFprobePath:  cfg.FFprobePath,
		SkipConvert:  cfg.SkipConvert,
		WorkDir:      cfg.WorkDir,
	}
}

// Callback handlers

func (o *Orchestrator) onStart(jobID string, pid int) {
	o.metrics.JobStarted()
	if o.config.Verbose {
		o.logger.Debug("job_process_started", "job_id", jobID, "pid", pid)
	}
}

func (o *Orchestrator) onExit(res supervisor.Result) {
	o.metrics.JobFinished(res.Outcome, res.ExitCode, res.Duration)
	snap := o.tracker.Snapshot()
	o.metrics.SetRate(snap.RealtimeFactor, snap.ETA)

	o.mu.Lock()
	o.result = &res
	o.mu.Unlock()
}

// printExitSummary prints a summary of the job.
func (o *Orchestrator) printExitSummary(res *supervisor.Result, transcript string) {
	cfg := stats.SummaryConfig{
		AudioPath:    o.config.AudioPath,
		Transcript:   transcript,
		Model:        o.config.Model,
		Optimization: o.config.Optimization,
		KeptRunDir:   o.config.KeepRunDir,
		MetricsAddr:  o.config.MetricsAddr,
	}
	if res.Run != nil {
		cfg.RunDir = res.Run.Dir
		cfg.LogPath = res.Run.LogPath()
	}
	if res.Log != nil {
		cfg.ErrorCounts = res.Log.CountErrors()
		if res.Outcome == events.TypeFailed {
			cfg.RecentLines = res.Log.RecentLines(summaryLines)
		}
	}

	fmt.Fprint(o.out, stats.FormatExitSummary(o.tracker.Snapshot(), cfg))
}

// logSink writes job events to the structured logger.
func logSink(logger *slog.Logger) events.Sink {
	return events.SinkFunc(func(e events.Event) {
		switch e.Type {
		case events.TypeProgress:
			attrs := []any{"job_id", e.JobID, "seq", e.Seq}
			if p := e.Progress; p != nil {
				if p.Percentage != nil {
					attrs = append(attrs, "percentage", *p.Percentage)
				}
				if p.CurrentSeconds != nil {
					attrs = append(attrs, "current_seconds", *p.CurrentSeconds)
				}
			}
			logger.Debug("job_progress", attrs...)
		case events.TypeOutputLine:
			logger.Debug("job_output", "job_id", e.JobID, "seq", e.Seq, "text", e.Text)
		case events.TypeErrorLine:
			logger.Warn("job_error_line", "job_id", e.JobID, "seq", e.Seq, "text", e.Text)
		case events.TypeFailed:
			attrs := []any{"job_id", e.JobID, "reason", e.Reason}
			if e.ExitCode != nil {
				attrs = append(attrs, "exit_code", *e.ExitCode)
			}
			logger.Error("job_failed", attrs...)
		default:
			logger.Info("job_"+string(e.Type), "job_id", e.JobID, "message", e.Message)
		}
	})
}

// Result returns the finished job's result, or nil while it is running.
func (o *Orchestrator) Result() *supervisor.Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

// Events returns the event history bus.
func (o *Orchestrator) Events() *events.Bus {
	return o.bus
}

// Tracker returns the job statistics tracker.
func (o *Orchestrator) Tracker() *stats.Tracker {
	return o.tracker
}

// Registry returns the run's metrics registry.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Supervisor returns the job supervisor for external access.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}
