package service

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/notify"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

// DeliverStep sends the final transcript to the requester as a document.
type DeliverStep struct {
	storage  storage.Storage
	notifier notify.Notifier
	metrics  *metrics.Collector
}

func NewDeliverStep(store storage.Storage, notifier notify.Notifier, collector *metrics.Collector) *DeliverStep {
	return &DeliverStep{storage: store, notifier: notifier, metrics: collector}
}

func (s *DeliverStep) Run(ctx context.Context, job models.TranscriptionJob) error {
	data, err := s.storage.Read(ctx, job.Paths.FinalTranscript)
	if err != nil {
		return fmt.Errorf("read final transcript: %w", err)
	}

	start := time.Now()
	filename := notify.ResultFilename(job.OriginalFilename, job.ID)
	if err := s.notifier.SendDocument(ctx, job.UserID, data, filename, notify.CaptionCompleted); err != nil {
		s.metrics.RecordFailure(metrics.OpDeliver, time.Since(start))
		return fmt.Errorf("send result: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpDeliver, time.Since(start))
	return nil
}
