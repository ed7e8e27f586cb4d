package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

// Merge keeps every segment of a and adds the segments of b that overlap none
// of them. Touching endpoints count as overlap. The result is stably sorted by start.
func Merge(a, b models.Transcript) models.Transcript {
	merged := slices.Clone(a.Segments)
	for _, sb := range b.Segments {
		overlaps := slices.ContainsFunc(a.Segments, func(sa models.Segment) bool {
			return !(sa.End < sb.Start || sa.Start > sb.End)
		})
		if !overlaps {
			merged = append(merged, sb)
		}
	}
	slices.SortStableFunc(merged, func(x, y models.Segment) int {
		return cmp.Compare(x.Start, y.Start)
	})
	return models.Transcript{Segments: merged}
}

// MergeStep combines both provider slots into the merged transcript.
type MergeStep struct {
	storage storage.Storage
	metrics *metrics.Collector
}

func NewMergeStep(store storage.Storage, collector *metrics.Collector) *MergeStep {
	return &MergeStep{storage: store, metrics: collector}
}

// Run leaves the job status unchanged.
func (s *MergeStep) Run(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	start := time.Now()

	a, err := s.readSlot(ctx, job.Paths.TranscriptProviderA)
	if err != nil {
		return job, err
	}
	b, err := s.readSlot(ctx, job.Paths.TranscriptProviderB)
	if err != nil {
		return job, err
	}

	merged := Merge(a, b)
	if err := s.storage.Save(ctx, []byte(merged.String()), job.Paths.MergedTranscript); err != nil {
		return job, fmt.Errorf("save merged transcript: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpMerge, time.Since(start))

	slog.Info("transcripts merged", "job_id", job.ID,
		"a", len(a.Segments), "b", len(b.Segments), "merged", len(merged.Segments))
	return job, nil
}

// readSlot parses a provider slot. A slot that was never written merges as empty.
func (s *MergeStep) readSlot(ctx context.Context, path string) (models.Transcript, error) {
	data, err := s.storage.Read(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Transcript{}, nil
		}
		return models.Transcript{}, fmt.Errorf("read %s: %w", path, err)
	}
	return models.ParseTranscript(string(data)), nil
}
