package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// flagCategories groups flag names for usage output.
var flagCategories = []struct {
	Title string
	Names []string
}{
	{"Transcription", []string{"language", "model", "model-dir", "optimization", "vad", "disable-gpu", "threads"}},
	{"Output", []string{"output"}},
	{"Binaries & Resources", []string{"bin-dir", "resources-dir", "ffmpeg", "ffprobe"}},
	{"Run Directory", []string{"work-dir", "keep-run-dir", "duration"}},
	{"Lifecycle", []string{"kill-timeout"}},
	{"Safety & Diagnostics", []string{"skip-preflight", "skip-convert"}},
	{"Observability", []string{"metrics", "verbose", "log-format"}},
	{"Dashboard", []string{"tui"}},
}

// BindFlags registers every runtime option on fs, using the current values of
// cfg as defaults. Values are written back into cfg when fs is parsed.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	// Transcription
	fs.StringVarP(&cfg.Language, "language", "l", cfg.Language, `Spoken language code, or "auto"`)
	fs.StringVarP(&cfg.Model, "model", "m", cfg.Model, "Model file name (embedded tiny model by default)")
	fs.StringVar(&cfg.ModelDir, "model-dir", cfg.ModelDir, "Directory holding external model files")
	fs.StringVar(&cfg.Optimization, "optimization", cfg.Optimization, `Binary variant: "none", "vulkan", "coreml", "cuda"`)
	fs.BoolVar(&cfg.VAD, "vad", cfg.VAD, "Enable voice activity detection")
	fs.BoolVar(&cfg.DisableGPU, "disable-gpu", cfg.DisableGPU, "Pass --no-gpu to whisper")
	fs.IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, fmt.Sprintf("Decoder threads (%d-%d)", MinThreads, MaxThreads))

	// Output
	fs.StringVarP(&cfg.OutputPath, "output", "o", cfg.OutputPath, "Copy the SRT transcript to this file or directory")

	// Binaries & resources
	fs.StringVar(&cfg.BinDir, "bin-dir", cfg.BinDir, "Directory holding whisper-cli executables (default: $PATH)")
	fs.StringVar(&cfg.ResourcesDir, "resources-dir", cfg.ResourcesDir, "Bundled resources directory")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to FFmpeg binary")
	fs.StringVar(&cfg.FFprobePath, "ffprobe", cfg.FFprobePath, "Path to ffprobe binary")

	// Run directory
	fs.StringVar(&cfg.WorkDir, "work-dir", cfg.WorkDir, "Parent directory for per-job run directories")
	fs.BoolVar(&cfg.KeepRunDir, "keep-run-dir", cfg.KeepRunDir, "Keep converted audio after the job ends")
	fs.DurationVar(&cfg.TotalDuration, "duration", cfg.TotalDuration, "Known audio duration (0 = probe with ffprobe)")

	// Lifecycle
	fs.DurationVar(&cfg.KillTimeout, "kill-timeout", cfg.KillTimeout, "Grace period between SIGTERM and SIGKILL on cancel")

	// Safety & diagnostics
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.SkipConvert, "skip-convert", cfg.SkipConvert, "Pass the input file to whisper without converting it")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, `Prometheus metrics address (e.g. "0.0.0.0:17091", empty = disabled)`)
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)

	// Dashboard
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard (use --tui=false to disable)")
}

// FlagUsages renders fs grouped by category. Flags not listed in a category
// are appended under "Other".
func FlagUsages(fs *pflag.FlagSet) string {
	var b strings.Builder
	seen := make(map[string]bool)

	for _, cat := range flagCategories {
		sub := pflag.NewFlagSet(cat.Title, pflag.ContinueOnError)
		for _, name := range cat.Names {
			if f := fs.Lookup(name); f != nil {
				sub.AddFlag(f)
				seen[name] = true
			}
		}
		if !sub.HasFlags() {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n", cat.Title, sub.FlagUsages())
	}

	other := pflag.NewFlagSet("other", pflag.ContinueOnError)
	fs.VisitAll(func(f *pflag.Flag) {
		if !seen[f.Name] {
			other.AddFlag(f)
		}
	})
	if other.HasFlags() {
		fmt.Fprintf(&b, "Other:\n%s\n", other.FlagUsages())
	}

	return b.String()
}

// TotalSeconds returns the known audio duration, or nil when it must be probed.
func (c *Config) TotalSeconds() *float64 {
	if c.TotalDuration <= 0 {
		return nil
	}
	s := c.TotalDuration.Seconds()
	return &s
}

// SetTotalSeconds records a probed duration.
func (c *Config) SetTotalSeconds(s float64) {
	c.TotalDuration = time.Duration(s * float64(time.Second))
}
