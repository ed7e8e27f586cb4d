package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrFormatVerification indicates converted audio that does not match the canonical profile.
var ErrFormatVerification = errors.New("audio format verification failed")

// FormatError describes the profile that was actually produced.
type FormatError struct {
	Format     string
	Codec      string
	SampleRate int
	Channels   int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("converted file has unexpected format: format=%s, codec=%s, rate=%d, channels=%d; expected wav/%s/%d Hz/%d ch",
		e.Format, e.Codec, e.SampleRate, e.Channels, CanonicalCodec, CanonicalSampleRate, CanonicalChannels)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormatVerification
}

// ProbeResult is the subset of ffprobe output the pipeline checks.
type ProbeResult struct {
	FormatName string
	Codec      string
	SampleRate int
	Channels   int
	Duration   float64
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

// Probe reads container and first-stream parameters of a media file.
func (t *Toolchain) Probe(ctx context.Context, path string) (ProbeResult, error) {
	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path}
	res, err := t.runner.Run(ctx, t.ffprobePath, args...)
	if err != nil {
		return ProbeResult{}, &CommandError{
			Command:  t.ffprobePath,
			Args:     args,
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, stderrTailSize),
			Err:      err,
		}
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(data []byte) (ProbeResult, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	res := ProbeResult{FormatName: out.Format.FormatName}
	if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
		res.Duration = d
	}
	if len(out.Streams) > 0 {
		s := out.Streams[0]
		res.Codec = s.CodecName
		res.Channels = s.Channels
		res.SampleRate, _ = strconv.Atoi(s.SampleRate)
	}
	return res, nil
}

// VerifyCanonical checks a probe against the canonical WAV profile.
func VerifyCanonical(p ProbeResult) error {
	if strings.Contains(p.FormatName, "wav") &&
		p.SampleRate == CanonicalSampleRate &&
		p.Channels == CanonicalChannels &&
		p.Codec == CanonicalCodec {
		return nil
	}
	return &FormatError{
		Format:     p.FormatName,
		Codec:      p.Codec,
		SampleRate: p.SampleRate,
		Channels:   p.Channels,
	}
}
