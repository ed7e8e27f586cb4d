package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
	"github.com/raphaelgruber/speechkit-go/internal/stt"
	"golang.org/x/sync/errgroup"
)

// errorMarkerPrefix starts the text written to a slot whose provider failed.
const errorMarkerPrefix = "Error: "

// ErrorMarker renders a provider failure as slot content.
func ErrorMarker(err error) string {
	return errorMarkerPrefix + err.Error()
}

// TranscribeStep runs every provider on the normalized audio and stores each
// result in its slot. A failing provider does not fail the step.
type TranscribeStep struct {
	storage   storage.Storage
	providers []stt.Provider
	metrics   *metrics.Collector
	tempDir   string
}

func NewTranscribeStep(store storage.Storage, providers []stt.Provider, collector *metrics.Collector) *TranscribeStep {
	return &TranscribeStep{storage: store, providers: providers, metrics: collector, tempDir: os.TempDir()}
}

type providerOutcome struct {
	transcript models.Transcript
	err        error
}

func (s *TranscribeStep) Run(ctx context.Context, job models.TranscriptionJob) (_ models.TranscriptionJob, err error) {
	if len(s.providers) == 0 {
		return job, ErrNoProviders
	}

	start := time.Now()
	defer func() {
		if err != nil {
			s.metrics.RecordFailure(metrics.OpTranscribe, time.Since(start))
			return
		}
		s.metrics.RecordTiming(metrics.OpTranscribe, time.Since(start))
	}()

	wav, err := s.storage.Read(ctx, job.Paths.NormalizedAudio)
	if err != nil {
		return job, fmt.Errorf("read normalized audio: %w", err)
	}

	tmp := filepath.Join(s.tempDir, "speechkit-"+job.ID+".wav")
	if err := os.WriteFile(tmp, wav, 0o600); err != nil {
		return job, fmt.Errorf("stage audio: %w", err)
	}
	defer os.Remove(tmp)

	outcomes := make([]providerOutcome, len(s.providers))
	var g errgroup.Group
	for i, p := range s.providers {
		g.Go(func() error {
			outcomes[i] = s.runProvider(ctx, job.ID, p, tmp)
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outcomes {
		content := ErrorMarker(out.err)
		if out.err == nil {
			content = out.transcript.String()
		}
		if err := s.storage.Save(ctx, []byte(content), slotPath(job.Paths, i)); err != nil {
			return job, fmt.Errorf("save %s transcript: %w", s.providers[i].Name(), err)
		}
	}

	if err := job.ToPostprocessing(); err != nil {
		return job, err
	}
	return job, nil
}

func (s *TranscribeStep) runProvider(ctx context.Context, jobID string, p stt.Provider, audioPath string) (out providerOutcome) {
	name := p.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = providerOutcome{err: fmt.Errorf("provider %s panicked: %v", name, r)}
		}
		if out.err != nil {
			s.metrics.RecordFailure(metrics.ProviderOp(name), time.Since(start))
			slog.Warn("provider failed", "job_id", jobID, "provider", name, "error", out.err)
			return
		}
		s.metrics.RecordTiming(metrics.ProviderOp(name), time.Since(start))
		slog.Info("provider finished", "job_id", jobID, "provider", name,
			"segments", len(out.transcript.Segments), "duration_ms", time.Since(start).Milliseconds())
	}()

	tr, err := p.Transcribe(ctx, audioPath)
	return providerOutcome{transcript: tr, err: err}
}

// slotPath maps provider position to its transcript slot: the first provider
// fills slot A, every later one slot B.
func slotPath(paths models.JobPaths, index int) string {
	if index == 0 {
		return paths.TranscriptProviderA
	}
	return paths.TranscriptProviderB
}
