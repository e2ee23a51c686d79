package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EmbeddedModelID is the reserved identifier of the bundled tiny model.
const EmbeddedModelID = "ggml-tiny-q5_1.bin"

// VADModelID is the bundled Silero voice activity model.
const VADModelID = "ggml-silero-v5.1.2.bin"

// ModelSource tells where a model file came from.
type ModelSource int

const (
	SourceEmbedded ModelSource = iota
	SourceExternal
)

func (s ModelSource) String() string {
	switch s {
	case SourceEmbedded:
		return "embedded"
	case SourceExternal:
		return "external"
	default:
		return "unknown"
	}
}

// ModelResolution is a model path on disk and its source.
type ModelResolution struct {
	Path   string
	Source ModelSource
}

// ModelOptions are the inputs to ResolveModel.
type ModelOptions struct {
	Model        string // identifier; EmbeddedModelID selects the bundled model
	ModelDir     string // directory for external models
	ResourcesDir string // bundled resources root
}

// ResolveModel locates the model file for opts.
func ResolveModel(opts ModelOptions) (ModelResolution, error) {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = EmbeddedModelID
	}

	var res ModelResolution
	if model == EmbeddedModelID {
		res = ModelResolution{
			Path:   filepath.Join(opts.ResourcesDir, "models", model),
			Source: SourceEmbedded,
		}
	} else {
		if strings.TrimSpace(opts.ModelDir) == "" {
			return ModelResolution{}, fmt.Errorf("%w: model directory not set for external model %q", ErrConfiguration, model)
		}
		res = ModelResolution{
			Path:   filepath.Join(opts.ModelDir, model),
			Source: SourceExternal,
		}
	}

	if err := requireFile(res.Path); err != nil {
		return ModelResolution{}, fmt.Errorf("model %s: %w", res.Path, err)
	}
	return res, nil
}

// ResolveVADModel locates the bundled VAD model.
func ResolveVADModel(resourcesDir string) (string, error) {
	path := filepath.Join(resourcesDir, "models", VADModelID)
	if err := requireFile(path); err != nil {
		return "", fmt.Errorf("vad model %s: %w", path, err)
	}
	return path, nil
}

// ProbeCoreML reports whether a compiled CoreML encoder sits next to the model.
// Sibling directories are checked in order: <stem>.compiled,
// <stem>-encoder.compiled, <stem>-decoder.compiled.
func ProbeCoreML(modelPath string) bool {
	stem := strings.TrimSuffix(modelPath, filepath.Ext(modelPath))
	for _, suffix := range []string{".compiled", "-encoder.compiled", "-decoder.compiled"} {
		if info, err := os.Stat(stem + suffix); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrResourceNotFound
		}
		return fmt.Errorf("%w: %v", ErrResourceNotFound, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: is a directory", ErrResourceNotFound)
	}
	return nil
}
