// Package audio wraps the ffmpeg toolchain used to normalize and re-encode recordings.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Canonical profile every converted recording must match.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalCodec      = "pcm_s16le"
)

const (
	loudnormFilter = "loudnorm=I=-16:TP=-1.5:LRA=11"
	silenceFilter  = "silenceremove=start_periods=1:start_duration=0.3:start_threshold=-50dB:stop_periods=1:stop_duration=0.3:stop_threshold=-50dB"
	stderrTailSize = 2048
)

// CommandError reports a failed external command.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for tests.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// Toolchain runs ffmpeg and ffprobe.
type Toolchain struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	mkdirTemp   func(dir, pattern string) (string, error)
	removeAll   func(path string) error
}

// NewToolchain uses the given binaries, falling back to ffmpeg/ffprobe on PATH.
func NewToolchain(ffmpegPath, ffprobePath string) *Toolchain {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Toolchain{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
	}
}

// Normalize converts arbitrary input audio to the canonical WAV profile and verifies the result.
// The scratch directory is removed on every path.
func (t *Toolchain) Normalize(ctx context.Context, original []byte) ([]byte, error) {
	dir, err := t.mkdirTemp("", "speechkit-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := t.removeAll(dir); err != nil {
			slog.Warn("failed to remove temp dir", "dir", dir, "error", err)
		}
	}()

	inPath := filepath.Join(dir, "input")
	outPath := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(inPath, original, 0o600); err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}

	if err := t.run(ctx, t.ffmpegPath, normalizeArgs(inPath, outPath)); err != nil {
		return nil, err
	}

	probe, err := t.Probe(ctx, outPath)
	if err != nil {
		return nil, err
	}
	if err := VerifyCanonical(probe); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read converted audio: %w", err)
	}
	slog.Debug("audio normalized", "bytes_in", len(original), "bytes_out", len(data), "format", probe.FormatName)
	return data, nil
}

// EncodeOpus re-encodes inPath to mono 48 kHz OGG Opus at outPath.
func (t *Toolchain) EncodeOpus(ctx context.Context, inPath, outPath string) error {
	return t.run(ctx, t.ffmpegPath, opusArgs(inPath, outPath))
}

func (t *Toolchain) run(ctx context.Context, name string, args []string) error {
	res, err := t.runner.Run(ctx, name, args...)
	if err != nil {
		return &CommandError{
			Command:  name,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, stderrTailSize),
			Err:      err,
		}
	}
	return nil
}

func normalizeArgs(inPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-vn",
		"-af", loudnormFilter + "," + silenceFilter,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", CanonicalCodec,
		"-f", "wav",
		outPath,
	}
}

func opusArgs(inPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "48000",
		"-c:a", "libopus",
		"-f", "ogg",
		outPath,
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
