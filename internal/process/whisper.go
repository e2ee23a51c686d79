package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Thread count bounds accepted by whisper.cpp.
const (
	MinThreads = 1
	MaxThreads = 8
)

// WhisperConfig holds configuration for one whisper-cli invocation.
type WhisperConfig struct {
	// BinDir holds the whisper-cli executables. Empty resolves from $PATH.
	BinDir string

	// ResourcesDir is the bundled resources root (models/ lives below it).
	ResourcesDir string

	// AudioPath is the input file passed with --file.
	AudioPath string

	Language string
	Model    string
	ModelDir string
	Variant  Variant
	VAD      bool
	GPU      bool
	Threads  int
}

// WhisperRunner implements Runner for whisper-cli. Model and VAD paths are
// resolved once by NewWhisperRunner.
type WhisperRunner struct {
	config     WhisperConfig
	model      ModelResolution
	vadModel   string
	executable ExecutableID
	coreML     bool
}

// NewWhisperRunner resolves the model, the optional VAD model and the
// executable variant for cfg.
func NewWhisperRunner(cfg WhisperConfig, logger *slog.Logger) (*WhisperRunner, error) {
	model, err := ResolveModel(ModelOptions{
		Model:        cfg.Model,
		ModelDir:     cfg.ModelDir,
		ResourcesDir: cfg.ResourcesDir,
	})
	if err != nil {
		return nil, err
	}

	r := &WhisperRunner{
		config: cfg,
		model:  model,
	}

	if cfg.VAD {
		r.vadModel, err = ResolveVADModel(cfg.ResourcesDir)
		if err != nil {
			return nil, err
		}
	}

	r.coreML = ProbeCoreML(model.Path)
	r.executable = SelectVariant(cfg.Variant, r.coreML, logger)

	return r, nil
}

// Name returns the executable identifier.
func (r *WhisperRunner) Name() string {
	return string(r.executable)
}

// Model returns the resolved model.
func (r *WhisperRunner) Model() ModelResolution {
	return r.model
}

// CoreMLDetected reports the result of the CoreML probe.
func (r *WhisperRunner) CoreMLDetected() bool {
	return r.coreML
}

// BuildArgs constructs the whisper-cli arguments in their fixed order.
func (r *WhisperRunner) BuildArgs() []string {
	lang := strings.TrimSpace(r.config.Language)
	if lang == "" {
		lang = "auto"
	}

	args := []string{
		"--model", r.model.Path,
		"--file", r.config.AudioPath,
		"--output-srt",
		"--language", lang,
		"--print-progress",
	}

	if r.config.VAD {
		args = append(args, "--vad", "--vad-model", r.vadModel)
	}

	if !r.config.GPU {
		args = append(args, "--no-gpu")
	}

	args = append(args, "--threads", strconv.Itoa(ClampThreads(r.config.Threads)))

	return args
}

// TranscriptPath is where whisper-cli writes the --output-srt file for
// audioPath.
func TranscriptPath(audioPath string) string {
	return audioPath + ".srt"
}

// ExecutablePath locates the selected executable.
func (r *WhisperRunner) ExecutablePath() (string, error) {
	return LocateExecutable(r.config.BinDir, r.executable)
}

// LocateExecutable finds id in binDir when set and on $PATH otherwise. A
// missing or unusable executable is reported as ErrProcessSpawn.
func LocateExecutable(binDir string, id ExecutableID) (string, error) {
	name := string(id)

	if binDir == "" {
		path, err := exec.LookPath(name)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrProcessSpawn, name, err)
		}
		return path, nil
	}

	path := filepath.Join(binDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found", ErrProcessSpawn, path)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrProcessSpawn, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrProcessSpawn, path)
	}
	return path, nil
}

// BuildCommand creates an unstarted exec.Cmd for whisper-cli. The context is
// not bound to the process; the caller owns termination.
func (r *WhisperRunner) BuildCommand(_ context.Context) (*exec.Cmd, error) {
	path, err := r.ExecutablePath()
	if err != nil {
		return nil, err
	}
	return exec.Command(path, r.BuildArgs()...), nil
}

// CommandString returns the command that would be executed (for debugging).
func (r *WhisperRunner) CommandString() string {
	exe := string(r.executable)
	if r.config.BinDir != "" {
		exe = filepath.Join(r.config.BinDir, exe)
	}
	return exe + " " + strings.Join(r.BuildArgs(), " ")
}

// ClampThreads bounds n to [MinThreads, MaxThreads].
func ClampThreads(n int) int {
	if n < MinThreads {
		return MinThreads
	}
	if n > MaxThreads {
		return MaxThreads
	}
	return n
}
