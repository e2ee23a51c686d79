package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/events"
	"github.com/randomizedcoder/go-whisper-runner/internal/logging"
	"github.com/randomizedcoder/go-whisper-runner/internal/parser"
	"github.com/randomizedcoder/go-whisper-runner/internal/process"
	"github.com/randomizedcoder/go-whisper-runner/internal/rundir"
)

// DefaultKillTimeout is the grace period between SIGTERM and SIGKILL.
const DefaultKillTimeout = 5 * time.Second

// JobSpec describes one transcription job. It is passed by value and not
// modified once the job starts.
type JobSpec struct {
	AudioPath    string
	TotalSeconds *float64 // known audio duration, or nil
	Language     string
	Model        string
	ModelDir     string
	Optimization process.Variant
	VAD          bool
	GPU          bool
	Threads      int

	// Run is the job's working directory. When nil, Start creates one
	// below Config.WorkDir.
	Run *rundir.Run
}

// ProcessBuilder turns a JobSpec into a runner. It reports configuration
// and resource errors synchronously.
type ProcessBuilder func(spec JobSpec) (process.Runner, error)

// Result summarises a finished job.
type Result struct {
	JobID    string
	Outcome  events.Type // completed, failed or cancelled
	ExitCode int
	Err      *RuntimeError // set for failed jobs
	Duration time.Duration
	Stats    parser.Stats

	// Run is the job's directory and Log its closed run log, which still
	// holds the most recent lines in memory.
	Run *rundir.Run
	Log *logging.RunLog

	// Transcript is the SRT file whisper wrote. Set only for completed jobs
	// whose transcript exists.
	Transcript string
}

// Callbacks contains optional callback functions for supervisor events.
// They run with the slot mutex held and must not call back into the Supervisor.
type Callbacks struct {
	// OnStateChange is called when the slot state changes.
	OnStateChange func(oldState, newState State)

	// OnStart is called when a job process starts.
	OnStart func(jobID string, pid int)

	// OnExit is called once per job, after its terminal event and before
	// Wait returns.
	OnExit func(Result)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	// BinDir and ResourcesDir feed the default whisper-cli builder.
	BinDir       string
	ResourcesDir string

	// WorkDir is the parent of run directories created by Start.
	WorkDir string

	// KillTimeout is the grace period between SIGTERM and SIGKILL on Cancel.
	KillTimeout time.Duration

	// Sink receives every job event. Emit must not call back into the Supervisor.
	Sink events.Sink

	Logger    *slog.Logger
	Callbacks Callbacks

	// Builder overrides the default whisper-cli builder.
	Builder ProcessBuilder
}

// Supervisor owns the single job slot.
//
// Start and Cancel may be called from any goroutine. The background consumer
// of a job and Cancel arbitrate on the slot mutex so exactly one terminal
// event is emitted per job, and it is emitted before the slot can be reused.
type Supervisor struct {
	builder     ProcessBuilder
	workDir     string
	killTimeout time.Duration
	sink        events.Sink
	logger      *slog.Logger
	callbacks   Callbacks

	mu    sync.Mutex
	state State
	job   *job
}

// job is the process handle. It is owned by the Supervisor and dropped on
// any terminal transition.
type job struct {
	id         string
	transcript string // expected SRT path, empty when the audio path is unknown
	cmd        *exec.Cmd
	run        *rundir.Run
	runLog     *logging.RunLog
	proc       *parser.Processor
	started    time.Time
	seq        atomic.Uint64

	// Written by the consumer before drained is closed.
	exitCode  int
	waitErr   error
	streamErr error

	drained  chan struct{} // streams read to EOF and process reaped
	finished chan struct{} // terminal event emitted
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sink := cfg.Sink
	if sink == nil {
		sink = events.Discard
	}
	killTimeout := cfg.KillTimeout
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}

	s := &Supervisor{
		builder:     cfg.Builder,
		workDir:     cfg.WorkDir,
		killTimeout: killTimeout,
		sink:        sink,
		logger:      logger,
		callbacks:   cfg.Callbacks,
		state:       StateIdle,
	}
	if s.builder == nil {
		s.builder = WhisperBuilder(cfg.BinDir, cfg.ResourcesDir, logger)
	}
	return s
}

// WhisperBuilder returns the default ProcessBuilder, which resolves models
// and the executable variant for whisper-cli.
func WhisperBuilder(binDir, resourcesDir string, logger *slog.Logger) ProcessBuilder {
	return func(spec JobSpec) (process.Runner, error) {
		return process.NewWhisperRunner(process.WhisperConfig{
			BinDir:       binDir,
			ResourcesDir: resourcesDir,
			AudioPath:    spec.AudioPath,
			Language:     spec.Language,
			Model:        spec.Model,
			ModelDir:     spec.ModelDir,
			Variant:      spec.Optimization,
			VAD:          spec.VAD,
			GPU:          spec.GPU,
			Threads:      spec.Threads,
		}, logger)
	}
}

// Start launches a job and returns its id without waiting for it to finish.
//
// Configuration, resource and spawn errors are returned synchronously and
// leave the slot empty; runtime failures are reported only through the
// failed event.
func (s *Supervisor) Start(ctx context.Context, spec JobSpec) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != nil {
		return "", ErrAlreadyRunning
	}

	runner, err := s.builder(spec)
	if err != nil {
		return "", err
	}

	run := spec.Run
	createdRun := false
	if run == nil {
		run, err = rundir.Create(s.workDir)
		if err != nil {
			return "", err
		}
		createdRun = true
	}
	discardRun := func() {
		if createdRun {
			_ = run.Remove()
		}
	}

	runLog, err := logging.OpenRunLog(run.LogPath())
	if err != nil {
		discardRun()
		return "", err
	}

	cmd, err := runner.BuildCommand(ctx)
	if err != nil {
		runLog.Notef("build failed: %v", err)
		runLog.Close()
		discardRun()
		return "", err
	}

	// Own process group so cancellation reaches every child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		runLog.Close()
		discardRun()
		return "", fmt.Errorf("%w: stdout pipe: %v", process.ErrProcessSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		runLog.Close()
		discardRun()
		return "", fmt.Errorf("%w: stderr pipe: %v", process.ErrProcessSpawn, err)
	}

	runLog.Notef("command: %s", runner.CommandString())

	if err := cmd.Start(); err != nil {
		runLog.Notef("spawn failed: %v", err)
		runLog.Close()
		discardRun()
		s.logger.Error("failed_to_start_process",
			"executable", runner.Name(),
			"error", err,
		)
		return "", fmt.Errorf("%w: %v", process.ErrProcessSpawn, err)
	}

	j := &job{
		id:         run.ID,
		transcript: transcriptFor(spec.AudioPath),
		cmd:        cmd,
		run:        run,
		runLog:     runLog,
		started:    time.Now(),
		drained:    make(chan struct{}),
		finished:   make(chan struct{}),
	}
	j.proc = parser.NewProcessor(parser.ProcessorConfig{
		TotalSeconds: spec.TotalSeconds,
		Sink:         events.SinkFunc(func(e events.Event) { s.emit(j, e) }),
		Recorder:     runLog,
		Logger:       s.logger.With("job_id", j.id),
	})

	s.job = j
	s.setStateLocked(StateRunning)

	pid := cmd.Process.Pid
	s.logger.Info("job_started",
		"job_id", j.id,
		"pid", pid,
		"executable", runner.Name(),
		"run_dir", run.Dir,
	)
	if s.callbacks.OnStart != nil {
		s.callbacks.OnStart(j.id, pid)
	}

	go s.consume(j, stdout, stderr)

	return j.id, nil
}

// consume drains the job's streams, reaps the process and, unless a cancel
// owns the job, emits the terminal event.
func (s *Supervisor) consume(j *job, stdout, stderr io.Reader) {
	j.streamErr = j.proc.Run(context.Background(), stdout, stderr)
	if j.streamErr != nil {
		// Readers stopped; make sure the process cannot block on a full pipe.
		signalGroup(j.cmd, syscall.SIGKILL)
	}
	j.waitErr = j.cmd.Wait()
	j.exitCode = process.ExitCode(j.waitErr)
	close(j.drained)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job != j || s.state == StateTerminating {
		// Cancel owns the terminal transition.
		return
	}

	switch {
	case j.streamErr != nil:
		s.finishLocked(j, events.TypeFailed, &RuntimeError{
			ExitCode: j.exitCode,
			Reason:   "output stream error: " + j.streamErr.Error(),
			Err:      j.streamErr,
		})
	case j.exitCode != 0:
		s.finishLocked(j, events.TypeFailed, &RuntimeError{
			ExitCode: j.exitCode,
			Reason:   fmt.Sprintf("whisper exited with code %d", j.exitCode),
			Err:      j.waitErr,
		})
	default:
		s.finishLocked(j, events.TypeCompleted, nil)
	}
}

// Cancel terminates the running job. It sends SIGTERM to the process group,
// escalates to SIGKILL after the kill timeout (or when ctx is done), waits
// for the output to drain and then emits cancelled. Cancel with no running
// job, or while another cancel is in progress, returns nil and emits nothing.
func (s *Supervisor) Cancel(ctx context.Context) error {
	s.mu.Lock()
	j := s.job
	if j == nil || s.state == StateTerminating {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateTerminating)
	s.mu.Unlock()

	s.logger.Info("job_cancelling", "job_id", j.id, "pid", j.cmd.Process.Pid)

	select {
	case <-j.drained:
	default:
		signalGroup(j.cmd, syscall.SIGTERM)
	}

	timer := time.NewTimer(s.killTimeout)
	defer timer.Stop()

	select {
	case <-j.drained:
	case <-timer.C:
		s.logger.Warn("force_killing_process",
			"job_id", j.id,
			"pid", j.cmd.Process.Pid,
			"timeout", s.killTimeout.String(),
		)
		signalGroup(j.cmd, syscall.SIGKILL)
		<-j.drained
	case <-ctx.Done():
		signalGroup(j.cmd, syscall.SIGKILL)
		<-j.drained
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(j, events.TypeCancelled, nil)
	return nil
}

// finishLocked clears the slot and emits the terminal event. Must be called
// with mu held, after j.drained is closed.
func (s *Supervisor) finishLocked(j *job, outcome events.Type, rerr *RuntimeError) {
	s.job = nil
	s.setStateLocked(StateIdle)

	res := Result{
		JobID:    j.id,
		Outcome:  outcome,
		ExitCode: j.exitCode,
		Err:      rerr,
		Duration: time.Since(j.started),
		Stats:    j.proc.Stats(),
		Run:      j.run,
		Log:      j.runLog,
	}

	if outcome == events.TypeCompleted && j.transcript != "" {
		if _, err := os.Stat(j.transcript); err == nil {
			res.Transcript = j.transcript
		} else {
			s.logger.Warn("transcript_missing", "job_id", j.id, "path", j.transcript)
		}
	}

	e := events.Event{Type: outcome}
	switch outcome {
	case events.TypeCompleted:
		e.Message = "transcription completed"
	case events.TypeCancelled:
		e.Message = "transcription cancelled"
	case events.TypeFailed:
		e.Reason = rerr.Reason
		if rerr.ExitCode != 0 {
			code := rerr.ExitCode
			e.ExitCode = &code
		}
	}

	j.runLog.Notef("outcome=%s exit_code=%d duration=%s", outcome, j.exitCode, res.Duration.Round(time.Millisecond))
	if err := j.runLog.Close(); err != nil {
		s.logger.Warn("run_log_close_failed", "job_id", j.id, "error", err)
	}

	s.logger.Info("job_finished",
		"job_id", j.id,
		"outcome", string(outcome),
		"exit_code", j.exitCode,
		"duration", res.Duration.String(),
		"lines_stdout", res.Stats.StdoutLines,
		"lines_stderr", res.Stats.StderrLines,
		"lines_suppressed", res.Stats.Suppressed,
		"lines_truncated", res.Stats.Truncated,
	)

	s.emit(j, e)
	if s.callbacks.OnExit != nil {
		s.callbacks.OnExit(res)
	}
	close(j.finished)
}

func transcriptFor(audioPath string) string {
	if audioPath == "" {
		return ""
	}
	return process.TranscriptPath(audioPath)
}

// emit stamps e with the job id, sequence number and time.
func (s *Supervisor) emit(j *job, e events.Event) {
	e.JobID = j.id
	e.Seq = j.seq.Add(1)
	e.Time = time.Now()
	s.sink.Emit(e)
}

// Wait blocks until the current job (if any) has emitted its terminal event.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	j := s.job
	s.mu.Unlock()

	if j == nil {
		return nil
	}
	select {
	case <-j.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current slot state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the id of the job occupying the slot.
func (s *Supervisor) Current() (jobID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil {
		return "", false
	}
	return s.job.id, true
}

// setStateLocked updates the state and calls the callback if registered.
// Must be called with mu held.
func (s *Supervisor) setStateLocked(newState State) {
	oldState := s.state
	s.state = newState

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// signalGroup sends sig to the process group of cmd, or to the process alone
// if the group cannot be signalled. The process was started with Setpgid, so
// its pid is the group id even after it has been reaped.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = cmd.Process.Signal(sig)
	}
}
