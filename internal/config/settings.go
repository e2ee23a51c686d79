package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-whisper-runner/internal/process"
)

// Settings is the on-disk settings file. Every field is optional; absent
// fields are filled by the matching resolve function.
type Settings struct {
	ModelDir     *string `yaml:"model_dir,omitempty"`
	Language     *string `yaml:"language,omitempty"`
	Model        *string `yaml:"model,omitempty"`
	VAD          *bool   `yaml:"vad,omitempty"`
	Optimization *string `yaml:"optimization,omitempty"`
	DisableGPU   *bool   `yaml:"disable_gpu,omitempty"`
	Threads      *int    `yaml:"threads,omitempty"`

	BinDir       *string `yaml:"bin_dir,omitempty"`
	ResourcesDir *string `yaml:"resources_dir,omitempty"`
	WorkDir      *string `yaml:"work_dir,omitempty"`
}

// DecodeSettings parses YAML settings from r.
func DecodeSettings(r io.Reader) (Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return Settings{}, nil
		}
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Load reads the settings file at path and applies it over DefaultConfig.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("open settings: %w", err)
	}
	defer f.Close()

	s, err := DecodeSettings(f)
	if err != nil {
		return nil, err
	}
	s.Apply(cfg)
	return cfg, nil
}

// Apply resolves every settings field into cfg.
func (s Settings) Apply(cfg *Config) {
	cfg.ModelDir = resolveModelDir(s.ModelDir)
	cfg.Language = resolveLanguage(s.Language)
	cfg.Model = resolveModel(s.Model)
	cfg.VAD = resolveVAD(s.VAD)
	cfg.Optimization = resolveOptimization(s.Optimization)
	cfg.DisableGPU = resolveDisableGPU(s.DisableGPU)
	cfg.Threads = resolveThreads(s.Threads)

	if s.BinDir != nil {
		cfg.BinDir = strings.TrimSpace(*s.BinDir)
	}
	if s.ResourcesDir != nil && strings.TrimSpace(*s.ResourcesDir) != "" {
		cfg.ResourcesDir = strings.TrimSpace(*s.ResourcesDir)
	}
	if s.WorkDir != nil && strings.TrimSpace(*s.WorkDir) != "" {
		cfg.WorkDir = strings.TrimSpace(*s.WorkDir)
	}
}

func resolveModelDir(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func resolveLanguage(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "auto"
	}
	return strings.TrimSpace(*v)
}

func resolveModel(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return EmbeddedModelID
	}
	return strings.TrimSpace(*v)
}

func resolveVAD(v *bool) bool {
	return v != nil && *v
}

func resolveOptimization(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "none"
	}
	return strings.ToLower(strings.TrimSpace(*v))
}

func resolveDisableGPU(v *bool) bool {
	return v != nil && *v
}

func resolveThreads(v *int) int {
	if v == nil {
		return DefaultThreads
	}
	return process.ClampThreads(*v)
}

// defaultResourcesDir returns the "resources" directory next to the executable.
func defaultResourcesDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "resources"
	}
	return filepath.Join(filepath.Dir(exe), "resources")
}

// defaultWorkDir returns the per-user cache location for run directories.
func defaultWorkDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "go-whisper-runner")
	}
	return filepath.Join(dir, "go-whisper-runner", "runs")
}

// DefaultSettingsPath returns the settings file location in the user config dir.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(dir, "go-whisper-runner", "settings.yaml")
}
