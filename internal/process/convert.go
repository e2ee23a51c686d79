package process

import (
	"context"
	"os/exec"
	"strings"
)

// ConvertedAudioName is the file name of the converted artifact inside a run directory.
const ConvertedAudioName = "audio.wav"

// Converter runs ffmpeg to turn any media file into 16 kHz mono PCM WAV,
// the input format whisper.cpp expects.
type Converter struct {
	BinaryPath string
	Input      string
	Output     string
}

// NewConverter creates a converter. An empty binaryPath means "ffmpeg".
func NewConverter(binaryPath, input, output string) *Converter {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Converter{
		BinaryPath: binaryPath,
		Input:      input,
		Output:     output,
	}
}

// Name returns "ffmpeg".
func (c *Converter) Name() string {
	return "ffmpeg"
}

// BuildArgs constructs the ffmpeg command-line arguments.
func (c *Converter) BuildArgs() []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", c.Input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		c.Output,
	}
}

// BuildCommand creates an exec.Cmd for ffmpeg.
func (c *Converter) BuildCommand(ctx context.Context) (*exec.Cmd, error) {
	return exec.CommandContext(ctx, c.BinaryPath, c.BuildArgs()...), nil
}

// CommandString returns the command that would be executed (for debugging).
func (c *Converter) CommandString() string {
	return c.BinaryPath + " " + strings.Join(c.BuildArgs(), " ")
}

// Convert runs ffmpeg to completion.
func (c *Converter) Convert(ctx context.Context) error {
	return RunToCompletion(ctx, c)
}
