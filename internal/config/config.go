// Package config provides configuration management for go-whisper-runner.
package config

import (
	"time"

	"github.com/randomizedcoder/go-whisper-runner/internal/process"
)

// EmbeddedModelID is the reserved model identifier for the tiny model bundled
// with the application resources.
const EmbeddedModelID = process.EmbeddedModelID

// Thread count bounds passed to whisper.cpp.
const (
	MinThreads     = process.MinThreads
	MaxThreads     = process.MaxThreads
	DefaultThreads = 4
)

// Config holds all resolved configuration for a transcription run.
type Config struct {
	// Transcription settings
	ModelDir     string `json:"model_dir"`
	Language     string `json:"language"`
	Model        string `json:"model"`
	VAD          bool   `json:"vad"`
	Optimization string `json:"optimization"` // none, vulkan, coreml, cuda
	DisableGPU   bool   `json:"disable_gpu"`
	Threads      int    `json:"threads"`

	// Binaries and resources
	BinDir       string `json:"bin_dir"` // empty = resolve whisper binaries from $PATH
	ResourcesDir string `json:"resources_dir"`
	FFmpegPath   string `json:"ffmpeg_path"`
	FFprobePath  string `json:"ffprobe_path"`

	// Run directory
	WorkDir    string `json:"work_dir"`
	KeepRunDir bool   `json:"keep_run_dir"`

	// Process lifecycle
	KillTimeout time.Duration `json:"kill_timeout"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // empty = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text

	// Dashboard
	TUIEnabled bool `json:"tui"`

	// Diagnostic modes
	SkipPreflight bool `json:"skip_preflight"`
	SkipConvert   bool `json:"skip_convert"`

	// Job input (from the command line, not the settings file)
	AudioPath     string        `json:"audio_path"`
	TotalDuration time.Duration `json:"total_duration"` // 0 = unknown, probe with ffprobe
	OutputPath    string        `json:"output_path"`    // copy the SRT transcript here; empty = leave it in place
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Transcription
		ModelDir:     resolveModelDir(nil),
		Language:     resolveLanguage(nil),
		Model:        resolveModel(nil),
		VAD:          resolveVAD(nil),
		Optimization: resolveOptimization(nil),
		DisableGPU:   resolveDisableGPU(nil),
		Threads:      resolveThreads(nil),

		// Binaries
		ResourcesDir: defaultResourcesDir(),
		FFmpegPath:   "ffmpeg",
		FFprobePath:  "ffprobe",

		// Run directory
		WorkDir: defaultWorkDir(),

		// Lifecycle
		KillTimeout: 5 * time.Second,

		// Observability
		LogFormat: "text",

		TUIEnabled: true,
	}
}
