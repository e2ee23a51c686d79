// Package main provides the go-whisper-runner CLI entry point.
//
// go-whisper-runner converts a media file to 16 kHz mono WAV, runs one
// whisper.cpp transcription job under supervision and reports its progress
// as structured events, Prometheus metrics and a live terminal dashboard.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/randomizedcoder/go-whisper-runner/internal/config"
	"github.com/randomizedcoder/go-whisper-runner/internal/events"
	"github.com/randomizedcoder/go-whisper-runner/internal/logging"
	"github.com/randomizedcoder/go-whisper-runner/internal/orchestrator"
	"github.com/randomizedcoder/go-whisper-runner/internal/preflight"
	"github.com/randomizedcoder/go-whisper-runner/internal/process"
	"github.com/randomizedcoder/go-whisper-runner/internal/rundir"
	"github.com/randomizedcoder/go-whisper-runner/internal/supervisor"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-whisper-runner
var version = "dev"

// settingsEnv overrides the settings file location.
const settingsEnv = "WHISPER_RUNNER_CONFIG"

// Process exit codes.
const (
	exitOK        = 0
	exitFailed    = 1
	exitUsage     = 2
	exitCancelled = 130
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the CLI and maps the result to a process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintf(stderr, "Error: %s\n", ee.msg)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var verr config.ValidationError
	if errors.As(err, &verr) {
		return exitUsage
	}
	return exitFailed
}

// exitError carries a job outcome that is not a Go error as such.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "go-whisper-runner",
		Short:         "Supervised whisper.cpp transcription with live progress",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "",
		"Settings file (default: $"+settingsEnv+" or "+config.DefaultSettingsPath()+")")

	root.AddCommand(
		newRunCmd(),
		newPrintCmdCmd(),
		newCheckCmd(),
		newLogCmd(),
		newVersionCmd(),
	)
	return root
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] <audio-file>",
		Short: "Transcribe one media file",
		Args:  cobra.ExactArgs(1),
		RunE:  doRun,
	}
	bindJobFlags(cmd)
	return cmd
}

func newPrintCmdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print-cmd [flags] <audio-file>",
		Short: "Print the ffmpeg and whisper-cli commands a run would execute",
		Args:  cobra.ExactArgs(1),
		RunE:  doPrintCmd,
	}
	bindJobFlags(cmd)
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks and exit",
		Args:  cobra.NoArgs,
		RunE:  doCheck,
	}
	bindJobFlags(cmd)
	return cmd
}

func newLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log [flags] <job-id>",
		Short: "Print the run log of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE:  doLog,
	}
	bindJobFlags(cmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "go-whisper-runner: %s\n", version)
			info, ok := debug.ReadBuildInfo()
			if !ok {
				return
			}
			fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(out, "commit: %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(out, "date:   %s\n", s.Value)
				case "vcs.modified":
					fmt.Fprintf(out, "dirty:  %s\n", s.Value)
				}
			}
		},
	}
}

// bindJobFlags registers the runtime options on cmd and prints them grouped
// by category in the usage text.
func bindJobFlags(cmd *cobra.Command) {
	config.BindFlags(cmd.Flags(), config.DefaultConfig())
	cmd.SetUsageFunc(func(c *cobra.Command) error {
		fmt.Fprintf(c.OutOrStderr(), "Usage:\n  %s\n\n%s", c.UseLine(), config.FlagUsages(c.Flags()))
		return nil
	})
}

// loadConfig resolves the settings file and then applies every flag the
// user set explicitly, so flags take precedence over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv(settingsEnv)
	}
	if path == "" {
		path = config.DefaultSettingsPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	config.BindFlags(overlay, cfg)

	var setErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if setErr != nil || overlay.Lookup(f.Name) == nil {
			return
		}
		setErr = overlay.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return nil, setErr
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	// Logs would corrupt the dashboard.
	if cfg.TUIEnabled {
		return logging.NewLoggerWithWriter(io.Discard, "json", "info")
	}
	return logging.NewLogger(cfg.LogFormat, "info", cfg.Verbose)
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func doRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.AudioPath = args[0]
	if cfg.TUIEnabled && !isTerminal(os.Stdout) {
		cfg.TUIEnabled = false
	}
	if err := config.ValidateJob(cfg); err != nil {
		return err
	}

	logger := newLogger(cfg)
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"audio", cfg.AudioPath,
		"model", cfg.Model,
		"optimization", cfg.Optimization,
		"threads", cfg.Threads,
		"work_dir", cfg.WorkDir,
		"metrics_addr", cfg.MetricsAddr,
	)

	orch := orchestrator.New(cfg, logger, orchestrator.Options{
		Version: version,
		Out:     cmd.OutOrStdout(),
	})
	res, err := orch.Run(cmd.Context())
	if err != nil {
		logger.Error("run_failed", "error", err)
		return err
	}
	return outcomeError(res)
}

// outcomeError maps a finished job onto the process exit status.
func outcomeError(res *supervisor.Result) error {
	switch res.Outcome {
	case events.TypeCompleted:
		return nil
	case events.TypeCancelled:
		return &exitError{code: exitCancelled}
	default:
		msg := "transcription failed"
		if res.Err != nil {
			msg += ": " + res.Err.Error()
		}
		return &exitError{code: exitFailed, msg: msg}
	}
}

func doPrintCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	cfg.AudioPath = args[0]
	if err := config.ValidateJob(cfg); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	audio := cfg.AudioPath
	if !cfg.SkipConvert {
		audio = "<run-dir>/" + process.ConvertedAudioName
		conv := process.NewConverter(cfg.FFmpegPath, cfg.AudioPath, audio)
		fmt.Fprintln(out, "# ffmpeg conversion:")
		fmt.Fprintln(out, conv.CommandString())
		fmt.Fprintln(out)
	}

	variant, err := process.ParseVariant(cfg.Optimization)
	if err != nil {
		return err
	}
	runner, err := process.NewWhisperRunner(process.WhisperConfig{
		BinDir:       cfg.BinDir,
		ResourcesDir: cfg.ResourcesDir,
		AudioPath:    audio,
		Language:     cfg.Language,
		Model:        cfg.Model,
		ModelDir:     cfg.ModelDir,
		Variant:      variant,
		VAD:          cfg.VAD,
		GPU:          !cfg.DisableGPU,
		Threads:      cfg.Threads,
	}, logging.Discard())
	if err != nil {
		return err
	}

	model := runner.Model()
	fmt.Fprintf(out, "# model: %s (%s)\n", model.Path, model.Source)
	if variant == process.VariantCoreML && !runner.CoreMLDetected() {
		fmt.Fprintln(out, "# warning: no compiled CoreML encoder next to the model")
	}
	fmt.Fprintln(out, "# whisper-cli transcription:")
	fmt.Fprintln(out, runner.CommandString())
	fmt.Fprintf(out, "# transcript: %s\n", process.TranscriptPath(audio))
	return nil
}

func doCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	config.ApplyCheckMode(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	variant, _ := process.ParseVariant(cfg.Optimization)
	result := preflight.RunAll(orchestrator.PreflightOptions(cfg, variant))
	preflight.PrintResults(cmd.OutOrStdout(), result)
	if !result.Passed {
		return &exitError{code: exitFailed, msg: "preflight checks failed"}
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All required checks passed.")
	return nil
}

func doLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	run, err := rundir.Open(cfg.WorkDir, args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(run.LogPath())
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	_, err = io.Copy(cmd.OutOrStdout(), f)
	return err
}
