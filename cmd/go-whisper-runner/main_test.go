package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-whisper-runner/internal/process"
)

type fixture struct {
	dir       string
	bin       string
	resources string
	workDir   string
	audio     string
	settings  string
}

func newFixture(t *testing.T, whisperScript string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		bin:       filepath.Join(dir, "bin"),
		resources: filepath.Join(dir, "resources"),
		workDir:   filepath.Join(dir, "runs"),
		audio:     filepath.Join(dir, "talk.wav"),
		settings:  filepath.Join(dir, "settings.yaml"),
	}
	for _, d := range []string{f.bin, filepath.Join(f.resources, "models")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(f.resources, "models", process.EmbeddedModelID), "model", 0o644)
	writeFile(t, f.audio, "RIFF", 0o644)
	writeFile(t, filepath.Join(f.bin, "whisper-cli"), "#!/bin/sh\n"+whisperScript, 0o755)
	return f
}

func writeFile(t *testing.T, path, contents string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), mode); err != nil {
		t.Fatal(err)
	}
}

// args returns the common flags for a run that needs no ffmpeg.
func (f *fixture) args(cmd string, extra ...string) []string {
	args := []string{cmd,
		"--config", f.settings,
		"--bin-dir", f.bin,
		"--resources-dir", f.resources,
		"--work-dir", f.workDir,
		"--skip-convert",
		"--skip-preflight",
		"--duration", "4s",
		"--tui=false",
		"--log-format", "json",
	}
	return append(args, extra...)
}

func TestVersion(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := execute([]string{"version"}, &out, &errOut); code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "go-whisper-runner: dev") {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRun_Completed(t *testing.T) {
	f := newFixture(t, `
echo "[00:00:00.000 --> 00:00:02.000]  hello"
echo "[00:00:02.000 --> 00:00:04.000]  world"
`)
	var out, errOut bytes.Buffer
	code := execute(append(f.args("run"), f.audio), &out, &errOut)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "Outcome:                completed") {
		t.Errorf("summary missing outcome:\n%s", out.String())
	}
}

func TestRun_Output(t *testing.T) {
	f := newFixture(t, `
while [ $# -gt 0 ]; do
  if [ "$1" = "--file" ]; then audio="$2"; fi
  shift
done
echo "[00:00:00.000 --> 00:00:04.000]  hello"
printf '1\n00:00:00,000 --> 00:00:04,000\nhello\n' > "$audio.srt"
`)
	dest := filepath.Join(f.dir, "talk.srt")
	var out, errOut bytes.Buffer
	code := execute(append(f.args("run", "--output", dest), f.audio), &out, &errOut)
	if code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("transcript not saved: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("transcript = %q", data)
	}
	if !strings.Contains(out.String(), "Transcript: "+dest) {
		t.Errorf("summary missing transcript path:\n%s", out.String())
	}
}

func TestRun_Failed(t *testing.T) {
	f := newFixture(t, `echo "error: out of memory" >&2; exit 2`)
	var out, errOut bytes.Buffer
	code := execute(append(f.args("run"), f.audio), &out, &errOut)
	if code != exitFailed {
		t.Fatalf("exit code = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(errOut.String(), "transcription failed") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_MissingInput(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	code := execute(append(f.args("run"), filepath.Join(f.dir, "missing.wav")), &out, &errOut)
	if code != exitFailed {
		t.Fatalf("exit code = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(errOut.String(), "resource not found") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	code := execute(append(f.args("run", "--threads", "99"), f.audio), &out, &errOut)
	if code != exitUsage {
		t.Fatalf("exit code = %d, want %d (stderr %s)", code, exitUsage, errOut.String())
	}
	if !strings.Contains(errOut.String(), "threads") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_RequiresAudioArgument(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := execute([]string{"run"}, &out, &errOut); code != exitFailed {
		t.Errorf("exit code = %d, want %d", code, exitFailed)
	}
}

func TestPrintCmd(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	args := []string{"print-cmd",
		"--config", f.settings,
		"--bin-dir", f.bin,
		"--resources-dir", f.resources,
		"--language", "de",
		"--disable-gpu",
		f.audio,
	}
	if code := execute(args, &out, &errOut); code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}

	got := out.String()
	for _, want := range []string{
		"# ffmpeg conversion:",
		"-ar 16000",
		"<run-dir>/audio.wav",
		filepath.Join(f.bin, "whisper-cli"),
		"--language de",
		"--print-progress",
		"--no-gpu",
		"--threads 4",
		"# model: " + filepath.Join(f.resources, "models", process.EmbeddedModelID) + " (embedded)",
		"# transcript: <run-dir>/audio.wav.srt",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("print-cmd output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintCmd_CoreMLWarning(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	args := []string{"print-cmd",
		"--config", f.settings,
		"--bin-dir", f.bin,
		"--resources-dir", f.resources,
		"--optimization", "coreml",
		"--skip-convert",
		f.audio,
	}
	if code := execute(args, &out, &errOut); code != exitOK {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "no compiled CoreML encoder") {
		t.Errorf("missing CoreML warning:\n%s", out.String())
	}
	if !strings.Contains(out.String(), filepath.Join(f.bin, "whisper-cli-coreml")) {
		t.Errorf("coreml executable not selected:\n%s", out.String())
	}
	if strings.Contains(out.String(), "# ffmpeg conversion:") {
		t.Error("skip-convert should omit the ffmpeg command")
	}
}

func TestPrintCmd_MissingModel(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	args := []string{"print-cmd",
		"--config", f.settings,
		"--resources-dir", f.resources,
		"--model", "ggml-large.bin",
		"--model-dir", f.dir,
		f.audio,
	}
	if code := execute(args, &out, &errOut); code != exitFailed {
		t.Fatalf("exit code = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(errOut.String(), "ggml-large.bin") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestLog(t *testing.T) {
	f := newFixture(t, `echo "[00:00:00.000 --> 00:00:04.000]  hello"`)
	var out, errOut bytes.Buffer
	if code := execute(append(f.args("run"), f.audio), &out, &errOut); code != exitOK {
		t.Fatalf("run exit code = %d, stderr = %s", code, errOut.String())
	}

	entries, err := os.ReadDir(f.workDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("run dirs = %v, err = %v", entries, err)
	}
	id := entries[0].Name()

	out.Reset()
	args := []string{"log", "--config", f.settings, "--work-dir", f.workDir, id}
	if code := execute(args, &out, &errOut); code != exitOK {
		t.Fatalf("log exit code = %d, stderr = %s", code, errOut.String())
	}
	for _, want := range []string{"[stdout] [00:00:00.000 --> 00:00:04.000]  hello", "outcome=completed"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("run log missing %q:\n%s", want, out.String())
		}
	}

	if code := execute([]string{"log", "--config", f.settings, "--work-dir", f.workDir, "not-a-job"}, &out, &errOut); code != exitFailed {
		t.Errorf("unknown job exit code = %d, want %d", code, exitFailed)
	}
}

func TestCheck_Fails(t *testing.T) {
	f := newFixture(t, `exit 0`)
	var out, errOut bytes.Buffer
	args := []string{"check",
		"--config", f.settings,
		"--bin-dir", t.TempDir(),
		"--resources-dir", f.resources,
		"--work-dir", f.workDir,
		"--skip-convert",
	}
	if code := execute(args, &out, &errOut); code != exitFailed {
		t.Fatalf("exit code = %d, want %d", code, exitFailed)
	}
	if !strings.Contains(out.String(), "whisper_cli") {
		t.Errorf("check output = %q", out.String())
	}
}

func TestLoadConfig_FlagsOverrideSettings(t *testing.T) {
	f := newFixture(t, `exit 0`)
	writeFile(t, f.settings, "language: fr\nthreads: 2\nvad: true\n", 0o644)

	var got struct {
		language string
		threads  int
		vad      bool
	}
	root := newRootCmd()
	for _, c := range root.Commands() {
		if c.Name() == "check" {
			c.RunE = func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				got.language, got.threads, got.vad = cfg.Language, cfg.Threads, cfg.VAD
				return nil
			}
		}
	}
	root.SetArgs([]string{"check", "--config", f.settings, "--threads", "6"})
	root.SetOut(&bytes.Buffer{})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}

	if got.language != "fr" {
		t.Errorf("language = %q, want fr from settings", got.language)
	}
	if got.threads != 6 {
		t.Errorf("threads = %d, want 6 from flag", got.threads)
	}
	if !got.vad {
		t.Error("vad should come from settings")
	}
}

func TestLoadConfig_EnvSettingsPath(t *testing.T) {
	f := newFixture(t, `exit 0`)
	writeFile(t, f.settings, "language: nl\n", 0o644)
	t.Setenv(settingsEnv, f.settings)

	var language string
	root := newRootCmd()
	for _, c := range root.Commands() {
		if c.Name() == "check" {
			c.RunE = func(cmd *cobra.Command, _ []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				language = cfg.Language
				return nil
			}
		}
	}
	root.SetArgs([]string{"check"})
	root.SetOut(&bytes.Buffer{})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	if language != "nl" {
		t.Errorf("language = %q, want nl", language)
	}
}
