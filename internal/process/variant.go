package process

import (
	"fmt"
	"log/slog"
	"strings"
)

// Variant selects which build of whisper-cli runs the job.
type Variant string

const (
	// VariantNone is the portable CPU build.
	VariantNone Variant = "none"

	// VariantVulkan is the Vulkan GPU build.
	VariantVulkan Variant = "vulkan"

	// VariantCoreML is the Apple CoreML encoder build.
	VariantCoreML Variant = "coreml"

	// VariantCUDA is the NVIDIA CUDA build.
	VariantCUDA Variant = "cuda"
)

// ExecutableID is the file name of a whisper-cli build.
type ExecutableID string

var executables = map[Variant]ExecutableID{
	VariantNone:   "whisper-cli",
	VariantVulkan: "whisper-cli-vulkan",
	VariantCoreML: "whisper-cli-coreml",
	VariantCUDA:   "whisper-cli-cuda",
}

// Variants returns every known variant in table order.
func Variants() []Variant {
	return []Variant{VariantNone, VariantVulkan, VariantCoreML, VariantCUDA}
}

// ParseVariant converts a settings value into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return VariantNone, nil
	}
	if _, ok := executables[v]; !ok {
		return "", fmt.Errorf("%w: unknown optimization %q", ErrConfiguration, s)
	}
	return v, nil
}

// Executable returns the executable identifier for v. Unknown variants map
// to the portable build.
func (v Variant) Executable() ExecutableID {
	if id, ok := executables[v]; ok {
		return id
	}
	return executables[VariantNone]
}

// SelectVariant maps the configured variant to its executable. The CoreML
// probe result is informational only and never changes the selection.
func SelectVariant(v Variant, coreMLDetected bool, logger *slog.Logger) ExecutableID {
	id := v.Executable()
	if logger != nil {
		logger.Debug("variant_selected",
			"optimization", string(v),
			"executable", string(id),
			"coreml_detected", coreMLDetected,
		)
		if v == VariantCoreML && !coreMLDetected {
			logger.Warn("coreml_model_missing",
				"optimization", string(v),
				"reason", "no compiled CoreML encoder found next to model",
			)
		}
	}
	return id
}
