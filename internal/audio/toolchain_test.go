package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalProbe = `{
  "streams": [{"codec_name": "pcm_s16le", "codec_type": "audio", "sample_rate": "16000", "channels": 1}],
  "format": {"format_name": "wav", "duration": "12.480000"}
}`

type fakeRunner struct {
	run   func(name string, args []string) (commandResult, error)
	calls []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (commandResult, error) {
	f.calls = append(f.calls, name)
	return f.run(name, args)
}

// newTestToolchain records the scratch dir it hands out so tests can assert cleanup.
func newTestToolchain(runner commandRunner) (*Toolchain, *string) {
	var dir string
	return &Toolchain{
		ffmpegPath:  "ffmpeg-test",
		ffprobePath: "ffprobe-test",
		runner:      runner,
		mkdirTemp: func(d, pattern string) (string, error) {
			var err error
			dir, err = os.MkdirTemp(d, pattern)
			return dir, err
		},
		removeAll: os.RemoveAll,
	}, &dir
}

func successfulRunner(probe string) *fakeRunner {
	return &fakeRunner{run: func(name string, args []string) (commandResult, error) {
		if name == "ffmpeg-test" {
			out := args[len(args)-1]
			return commandResult{}, os.WriteFile(out, []byte("RIFF....WAVE"), 0o600)
		}
		return commandResult{Stdout: probe}, nil
	}}
}

func TestNormalizeSuccess(t *testing.T) {
	runner := successfulRunner(canonicalProbe)
	tc, dir := newTestToolchain(runner)

	data, err := tc.Normalize(context.Background(), []byte("mp3 bytes"))
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(data))
	assert.Equal(t, []string{"ffmpeg-test", "ffprobe-test"}, runner.calls)

	_, err = os.Stat(*dir)
	assert.True(t, errors.Is(err, os.ErrNotExist), "temp dir must be removed")
}

func TestNormalizeVerificationFailureCleansUp(t *testing.T) {
	stereo := `{"streams":[{"codec_name":"pcm_s16le","sample_rate":"44100","channels":2}],"format":{"format_name":"wav"}}`
	tc, dir := newTestToolchain(successfulRunner(stereo))

	_, err := tc.Normalize(context.Background(), []byte("x"))

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormatVerification)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 44100, fe.SampleRate)
	assert.Equal(t, 2, fe.Channels)

	_, statErr := os.Stat(*dir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestNormalizeFFmpegFailure(t *testing.T) {
	runner := &fakeRunner{run: func(name string, args []string) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found when processing input", ExitCode: 1}, errors.New("exit status 1")
	}}
	tc, dir := newTestToolchain(runner)

	_, err := tc.Normalize(context.Background(), []byte("garbage"))

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "ffmpeg-test", cmdErr.Command)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.Equal(t, []string{"ffmpeg-test"}, runner.calls)

	_, statErr := os.Stat(*dir)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))
}

func TestNormalizeArgs(t *testing.T) {
	args := normalizeArgs("/tmp/in", "/tmp/out.wav")

	assert.Equal(t, []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", "/tmp/in",
		"-vn",
		"-af", "loudnorm=I=-16:TP=-1.5:LRA=11,silenceremove=start_periods=1:start_duration=0.3:start_threshold=-50dB:stop_periods=1:stop_duration=0.3:stop_threshold=-50dB",
		"-ac", "1", "-ar", "16000", "-c:a", "pcm_s16le", "-f", "wav",
		"/tmp/out.wav",
	}, args)
}

func TestEncodeOpus(t *testing.T) {
	var got []string
	runner := &fakeRunner{run: func(name string, args []string) (commandResult, error) {
		got = args
		return commandResult{}, nil
	}}
	tc, _ := newTestToolchain(runner)

	out := filepath.Join(t.TempDir(), "a.ogg")
	require.NoError(t, tc.EncodeOpus(context.Background(), "a.wav", out))
	assert.Contains(t, got, "libopus")
	assert.Contains(t, got, "48000")
	assert.Equal(t, out, got[len(got)-1])
}

func TestVerifyCanonical(t *testing.T) {
	tests := []struct {
		name  string
		probe ProbeResult
		ok    bool
	}{
		{"canonical", ProbeResult{FormatName: "wav", Codec: "pcm_s16le", SampleRate: 16000, Channels: 1}, true},
		{"wav alias", ProbeResult{FormatName: "wav,w64", Codec: "pcm_s16le", SampleRate: 16000, Channels: 1}, true},
		{"wrong container", ProbeResult{FormatName: "ogg", Codec: "pcm_s16le", SampleRate: 16000, Channels: 1}, false},
		{"wrong rate", ProbeResult{FormatName: "wav", Codec: "pcm_s16le", SampleRate: 8000, Channels: 1}, false},
		{"stereo", ProbeResult{FormatName: "wav", Codec: "pcm_s16le", SampleRate: 16000, Channels: 2}, false},
		{"float samples", ProbeResult{FormatName: "wav", Codec: "pcm_f32le", SampleRate: 16000, Channels: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyCanonical(tt.probe)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrFormatVerification)
			}
		})
	}
}

func TestParseProbe(t *testing.T) {
	res, err := parseProbe([]byte(canonicalProbe))
	require.NoError(t, err)
	assert.Equal(t, ProbeResult{FormatName: "wav", Codec: "pcm_s16le", SampleRate: 16000, Channels: 1, Duration: 12.48}, res)

	_, err = parseProbe([]byte("not json"))
	assert.Error(t, err)
}
