package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/randomizedcoder/go-whisper-runner/internal/process"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or every problem joined with errors.Join.
func Validate(cfg *Config) error {
	var errs []error

	if _, err := process.ParseVariant(cfg.Optimization); err != nil || cfg.Optimization == "" {
		errs = append(errs, ValidationError{
			Field:   "optimization",
			Message: fmt.Sprintf("must be one of: %s (got %q)", variantNames(), cfg.Optimization),
		})
	}

	if cfg.Threads < MinThreads || cfg.Threads > MaxThreads {
		errs = append(errs, ValidationError{
			Field:   "threads",
			Message: fmt.Sprintf("must be between %d and %d (got %d)", MinThreads, MaxThreads, cfg.Threads),
		})
	}

	if strings.TrimSpace(cfg.Language) == "" {
		errs = append(errs, ValidationError{
			Field:   "language",
			Message: "must not be empty",
		})
	}

	// External models live in model_dir
	if cfg.Model != EmbeddedModelID && cfg.ModelDir == "" {
		errs = append(errs, ValidationError{
			Field:   "model_dir",
			Message: fmt.Sprintf("required for external model %q", cfg.Model),
		})
	}

	if cfg.WorkDir == "" {
		errs = append(errs, ValidationError{
			Field:   "work_dir",
			Message: "must not be empty",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.KillTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "kill_timeout",
			Message: "must be positive",
		})
	}

	if cfg.TotalDuration < 0 {
		errs = append(errs, ValidationError{
			Field:   "duration",
			Message: "must not be negative",
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func variantNames() string {
	names := make([]string, 0, len(process.Variants()))
	for _, v := range process.Variants() {
		names = append(names, string(v))
	}
	return strings.Join(names, ", ")
}

// ValidateJob checks the per-run input in addition to Validate.
func ValidateJob(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	if cfg.AudioPath == "" {
		return ValidationError{Field: "audio_path", Message: "input audio file is required"}
	}
	return nil
}

// ApplyCheckMode modifies config for the check subcommand.
func ApplyCheckMode(cfg *Config) {
	cfg.Verbose = true
	cfg.TUIEnabled = false
}
