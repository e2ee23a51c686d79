package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool     { return &b }
func intPtr(i int) *int        { return &i }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Language != "auto" {
		t.Errorf("Language = %q, want %q", cfg.Language, "auto")
	}
	if cfg.Model != EmbeddedModelID {
		t.Errorf("Model = %q, want %q", cfg.Model, EmbeddedModelID)
	}
	if cfg.Optimization != "none" {
		t.Errorf("Optimization = %q, want %q", cfg.Optimization, "none")
	}
	if cfg.Threads != 4 {
		t.Errorf("Threads = %d, want 4", cfg.Threads)
	}
	if cfg.VAD || cfg.DisableGPU {
		t.Error("VAD and DisableGPU should be false by default")
	}
	if cfg.ModelDir != "" {
		t.Errorf("ModelDir = %q, want empty", cfg.ModelDir)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Errorf("FFmpegPath = %q, want %q", cfg.FFmpegPath, "ffmpeg")
	}
	if !cfg.TUIEnabled {
		t.Error("TUIEnabled should be true by default")
	}
	if cfg.KillTimeout <= 0 {
		t.Errorf("KillTimeout = %v, should be positive", cfg.KillTimeout)
	}
}

func TestResolveThreads(t *testing.T) {
	testCases := []struct {
		name string
		in   *int
		want int
	}{
		{"absent", nil, 4},
		{"zero", intPtr(0), 1},
		{"negative", intPtr(-3), 1},
		{"in range", intPtr(6), 6},
		{"max", intPtr(8), 8},
		{"above max", intPtr(32), 8},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveThreads(tc.in); got != tc.want {
				t.Errorf("resolveThreads() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestResolveStrings(t *testing.T) {
	if got := resolveLanguage(strPtr("  ")); got != "auto" {
		t.Errorf("resolveLanguage(blank) = %q, want auto", got)
	}
	if got := resolveLanguage(strPtr("de")); got != "de" {
		t.Errorf("resolveLanguage(de) = %q", got)
	}
	if got := resolveModel(strPtr("")); got != EmbeddedModelID {
		t.Errorf("resolveModel(empty) = %q", got)
	}
	if got := resolveOptimization(strPtr(" CUDA ")); got != "cuda" {
		t.Errorf("resolveOptimization = %q, want cuda", got)
	}
	if got := resolveModelDir(strPtr(" /models ")); got != "/models" {
		t.Errorf("resolveModelDir = %q", got)
	}
}

func TestSettings_Apply(t *testing.T) {
	cfg := DefaultConfig()
	s := Settings{
		Language:   strPtr("en"),
		Model:      strPtr("ggml-base.en.bin"),
		ModelDir:   strPtr("/srv/models"),
		VAD:        boolPtr(true),
		DisableGPU: boolPtr(true),
		Threads:    intPtr(12),
		WorkDir:    strPtr("/tmp/runs"),
	}
	s.Apply(cfg)

	if cfg.Language != "en" || cfg.Model != "ggml-base.en.bin" || cfg.ModelDir != "/srv/models" {
		t.Errorf("unexpected transcription settings: %+v", cfg)
	}
	if !cfg.VAD || !cfg.DisableGPU {
		t.Error("VAD and DisableGPU should be set")
	}
	if cfg.Threads != MaxThreads {
		t.Errorf("Threads = %d, want %d", cfg.Threads, MaxThreads)
	}
	if cfg.WorkDir != "/tmp/runs" {
		t.Errorf("WorkDir = %q", cfg.WorkDir)
	}
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(strings.NewReader("language: fr\nthreads: 2\nvad: true\n"))
	if err != nil {
		t.Fatalf("DecodeSettings: %v", err)
	}
	if s.Language == nil || *s.Language != "fr" {
		t.Errorf("Language = %v", s.Language)
	}
	if s.Threads == nil || *s.Threads != 2 {
		t.Errorf("Threads = %v", s.Threads)
	}
	if s.Model != nil {
		t.Errorf("Model should be absent, got %q", *s.Model)
	}

	empty, err := DecodeSettings(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty settings: %v", err)
	}
	if empty.Language != nil {
		t.Error("empty settings should leave fields unset")
	}

	if _, err := DecodeSettings(strings.NewReader("colour: blue\n")); err == nil {
		t.Error("unknown field should be rejected")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(dir, "absent.yaml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Language != "auto" {
			t.Errorf("Language = %q", cfg.Language)
		}
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		if err := os.WriteFile(path, []byte("optimization: vulkan\nthreads: 0\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Optimization != "vulkan" {
			t.Errorf("Optimization = %q", cfg.Optimization)
		}
		if cfg.Threads != 1 {
			t.Errorf("Threads = %d, want 1", cfg.Threads)
		}
	})

	t.Run("malformed file errors", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("threads: [1, 2"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed YAML")
		}
	})
}

func TestBindFlags(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)

	err := fs.Parse([]string{
		"--language", "es",
		"-t", "2",
		"--optimization", "coreml",
		"--vad",
		"--kill-timeout", "2s",
		"--duration", "90s",
		"--tui=false",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Language != "es" || cfg.Threads != 2 || cfg.Optimization != "coreml" || !cfg.VAD {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if cfg.KillTimeout != 2*time.Second {
		t.Errorf("KillTimeout = %v", cfg.KillTimeout)
	}
	if cfg.TUIEnabled {
		t.Error("TUIEnabled should be false")
	}
	total := cfg.TotalSeconds()
	if total == nil || *total != 90 {
		t.Errorf("TotalSeconds = %v, want 90", total)
	}
}

func TestFlagUsages(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, DefaultConfig())
	fs.Bool("extra", false, "not categorised")

	out := FlagUsages(fs)
	for _, want := range []string{"Transcription:", "--threads", "Output:", "--output", "Observability:", "Other:", "--extra"} {
		if !strings.Contains(out, want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestTotalSeconds(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.TotalSeconds() != nil {
		t.Error("unknown duration should be nil")
	}
	cfg.SetTotalSeconds(12.5)
	got := cfg.TotalSeconds()
	if got == nil || *got != 12.5 {
		t.Errorf("TotalSeconds = %v, want 12.5", got)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Errorf("Valid config should not error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad optimization", func(c *Config) { c.Optimization = "metal" }, "optimization"},
		{"threads low", func(c *Config) { c.Threads = 0 }, "threads"},
		{"threads high", func(c *Config) { c.Threads = 9 }, "threads"},
		{"empty language", func(c *Config) { c.Language = " " }, "language"},
		{"external model without dir", func(c *Config) { c.Model = "ggml-base.bin" }, "model_dir"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"kill timeout", func(c *Config) { c.KillTimeout = 0 }, "kill_timeout"},
		{"negative duration", func(c *Config) { c.TotalDuration = -time.Second }, "duration"},
		{"metrics addr", func(c *Config) { c.MetricsAddr = "nohostport" }, "metrics_addr"},
		{"work dir", func(c *Config) { c.WorkDir = "" }, "work_dir"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error should mention %s: %v", tc.field, err)
			}
			var ve ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("error should contain a ValidationError: %v", err)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threads = 0
	cfg.LogFormat = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threads") || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("both problems should be reported: %v", err)
	}
}

func TestValidateJob(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateJob(cfg); err == nil || !strings.Contains(err.Error(), "audio_path") {
		t.Errorf("missing audio should fail: %v", err)
	}
	cfg.AudioPath = "talk.mp3"
	if err := ValidateJob(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyCheckMode(t *testing.T) {
	cfg := DefaultConfig()
	ApplyCheckMode(cfg)
	if !cfg.Verbose || cfg.TUIEnabled {
		t.Errorf("check mode should force verbose and disable the TUI: %+v", cfg)
	}
}
