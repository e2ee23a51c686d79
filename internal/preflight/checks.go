// Package preflight provides startup validation checks.
package preflight

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/randomizedcoder/go-whisper-runner/internal/process"
)

// minFileDescriptors covers two pipes per child, the run log, the metrics
// listener and the converter.
const minFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options are the inputs the checks verify.
type Options struct {
	BinDir       string
	ResourcesDir string
	Model        string
	ModelDir     string
	Variant      process.Variant
	VAD          bool
	FFmpegPath   string
	FFprobePath  string
	SkipConvert  bool
	WorkDir      string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 8),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors())
	add(checkExecutable(opts.BinDir, opts.Variant))

	modelCheck, modelPath := checkModel(opts)
	add(modelCheck)
	if opts.Variant == process.VariantCoreML && modelPath != "" {
		add(checkCoreML(modelPath))
	}
	if opts.VAD {
		add(checkVADModel(opts.ResourcesDir))
	}

	if !opts.SkipConvert {
		add(checkFFmpeg(opts.FFmpegPath))
	}
	// Duration is optional, so a missing ffprobe only warns.
	add(checkFFprobe(opts.FFprobePath))

	add(checkWorkDir(opts.WorkDir))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	if limit.Cur > uint64(1<<31-1) {
		actual = 1<<31 - 1
	}

	return Check{
		Name:     "file_descriptors",
		Required: minFileDescriptors,
		Actual:   actual,
		Passed:   actual >= minFileDescriptors,
	}
}

// checkExecutable verifies the whisper-cli build for variant exists.
func checkExecutable(binDir string, variant process.Variant) Check {
	id := variant.Executable()
	path, err := process.LocateExecutable(binDir, id)
	if err != nil {
		return Check{
			Name:    "whisper_cli",
			Passed:  false,
			Message: err.Error(),
		}
	}

	info, err := os.Stat(path)
	if err == nil && info.Mode()&0o111 == 0 {
		return Check{
			Name:    "whisper_cli",
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable", path),
		}
	}

	return Check{
		Name:    "whisper_cli",
		Passed:  true,
		Message: fmt.Sprintf("found at %s", path),
	}
}

// checkModel verifies the configured model resolves to a file.
func checkModel(opts Options) (Check, string) {
	res, err := process.ResolveModel(process.ModelOptions{
		Model:        opts.Model,
		ModelDir:     opts.ModelDir,
		ResourcesDir: opts.ResourcesDir,
	})
	if err != nil {
		return Check{Name: "model", Passed: false, Message: err.Error()}, ""
	}
	return Check{
		Name:    "model",
		Passed:  true,
		Message: fmt.Sprintf("%s (%s)", res.Path, res.Source),
	}, res.Path
}

// checkCoreML warns when the CoreML build is selected without a compiled
// encoder next to the model.
func checkCoreML(modelPath string) Check {
	if process.ProbeCoreML(modelPath) {
		return Check{Name: "coreml_encoder", Passed: true, Message: "compiled encoder found"}
	}
	return Check{
		Name:    "coreml_encoder",
		Passed:  true,
		Warning: true,
		Message: "no compiled encoder next to model, whisper-cli will fall back to CPU",
	}
}

func checkVADModel(resourcesDir string) Check {
	path, err := process.ResolveVADModel(resourcesDir)
	if err != nil {
		return Check{Name: "vad_model", Passed: false, Message: err.Error()}
	}
	return Check{Name: "vad_model", Passed: true, Message: path}
}

// checkFFmpeg verifies FFmpeg is available and working.
func checkFFmpeg(path string) Check {
	version, err := toolVersion(path)
	if err != nil {
		return Check{
			Name:    "ffmpeg",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	return Check{
		Name:    "ffmpeg",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

func checkFFprobe(path string) Check {
	if path == "" {
		path = "ffprobe"
	}
	version, err := toolVersion(path)
	if err != nil {
		return Check{
			Name:    "ffprobe",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("not found at %s, progress will have no known duration", path),
		}
	}
	return Check{
		Name:    "ffprobe",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// toolVersion runs "<path> -version" and extracts the version from the first
// line, e.g. "ffmpeg version 6.1 Copyright ...".
func toolVersion(path string) (string, error) {
	output, err := exec.Command(path, "-version").Output()
	if err != nil {
		return "", err
	}

	version := "unknown"
	first, _, _ := strings.Cut(string(output), "\n")
	if parts := strings.Fields(first); len(parts) >= 3 {
		version = parts[2]
	}
	return version, nil
}

// checkWorkDir verifies run directories can be created.
func checkWorkDir(dir string) Check {
	if dir == "" {
		return Check{Name: "work_dir", Passed: false, Message: "not set"}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "work_dir", Passed: false, Message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{Name: "work_dir", Passed: false, Message: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	return Check{Name: "work_dir", Passed: true, Message: filepath.Clean(dir)}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// Err returns nil if every check passed, otherwise an error naming the
// failed checks.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	var errs []error
	for _, c := range r.Checks {
		if !c.Passed {
			errs = append(errs, fmt.Errorf("%s: %s", c.Name, c.Message))
		}
	}
	return errors.Join(errs...)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "whisper_cli":
		return "build whisper.cpp and pass --bin-dir, or put whisper-cli on $PATH"
	case "model":
		return "check --model and --model-dir, or reinstall the bundled resources"
	case "vad_model":
		return "reinstall the bundled resources or disable --vad"
	case "ffmpeg":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg) or pass --skip-convert"
	case "work_dir":
		return "pass a writable --work-dir"
	default:
		return "see documentation"
	}
}
