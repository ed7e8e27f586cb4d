package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

// Normalizer converts arbitrary audio into the canonical WAV profile.
// *audio.Toolchain satisfies it.
type Normalizer interface {
	Normalize(ctx context.Context, original []byte) ([]byte, error)
}

// ConvertStep normalizes the original audio to 16 kHz mono PCM WAV.
type ConvertStep struct {
	storage    storage.Storage
	normalizer Normalizer
	metrics    *metrics.Collector
}

func NewConvertStep(store storage.Storage, normalizer Normalizer, collector *metrics.Collector) *ConvertStep {
	return &ConvertStep{storage: store, normalizer: normalizer, metrics: collector}
}

func (s *ConvertStep) Run(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	original, err := s.storage.Read(ctx, job.Paths.Original)
	if err != nil {
		return job, fmt.Errorf("read original: %w", err)
	}

	start := time.Now()
	wav, err := s.normalizer.Normalize(ctx, original)
	if err != nil {
		s.metrics.RecordFailure(metrics.OpConvert, time.Since(start))
		return job, fmt.Errorf("normalize audio: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpConvert, time.Since(start))

	if err := s.storage.Save(ctx, wav, job.Paths.NormalizedAudio); err != nil {
		return job, fmt.Errorf("save normalized audio: %w", err)
	}
	if err := job.ToTranscribing(); err != nil {
		return job, err
	}
	slog.Info("audio normalized", "job_id", job.ID, "path", job.Paths.NormalizedAudio, "bytes", len(wav))
	return job, nil
}
