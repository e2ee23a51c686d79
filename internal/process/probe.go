package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ProbeResult represents the output of ffprobe -show_format.
type ProbeResult struct {
	Format Format `json:"format"`
}

// Format is the container-level section of ffprobe output.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// ErrNoDuration is returned when ffprobe does not report a usable duration.
var ErrNoDuration = errors.New("duration not reported")

// ProbeDuration uses ffprobe to discover the duration of path in seconds.
func ProbeDuration(ctx context.Context, ffprobePath, path string) (float64, error) {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}

	cmd := exec.CommandContext(ctx, ffprobePath, args...)

	output, err := cmd.Output()
	if err != nil {
		return 0, &CommandError{
			Command:  ffprobePath + " " + strings.Join(args, " "),
			ExitCode: ExitCode(err),
			Err:      err,
		}
	}

	return ParseProbeDuration(output)
}

// ParseProbeDuration extracts format.duration from ffprobe JSON output.
func ParseProbeDuration(output []byte) (float64, error) {
	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if result.Format.Duration == "" || result.Format.Duration == "N/A" {
		return 0, ErrNoDuration
	}

	d, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	if d <= 0 {
		return 0, ErrNoDuration
	}
	return d, nil
}

// FindFFprobe returns the path to ffprobe.
// It looks in the same directory as ffmpeg, or falls back to PATH.
func FindFFprobe(ffmpegPath string) string {
	if filepath.Base(ffmpegPath) == "ffmpeg" && strings.ContainsRune(ffmpegPath, filepath.Separator) {
		candidate := filepath.Join(filepath.Dir(ffmpegPath), "ffprobe")
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	return "ffprobe"
}
