package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/loader"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

// DownloadStep fetches the original audio and stores it under the job's original path.
type DownloadStep struct {
	loaders *loader.Registry
	storage storage.Storage
	metrics *metrics.Collector
}

func NewDownloadStep(loaders *loader.Registry, store storage.Storage, collector *metrics.Collector) *DownloadStep {
	return &DownloadStep{loaders: loaders, storage: store, metrics: collector}
}

func (s *DownloadStep) Run(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	l, err := s.loaders.Find(job.Source)
	if err != nil {
		return job, err
	}

	start := time.Now()
	var data []byte
	if named, ok := l.(loader.NamedLoader); ok {
		var filename string
		data, filename, err = named.LoadNamed(ctx, job.Source)
		// Only delivery naming uses the filename; the original path stays as built.
		if err == nil && job.OriginalFilename == "" && filename != "" {
			job.OriginalFilename = filename
		}
	} else {
		data, err = l.Load(ctx, job.Source)
	}
	if err != nil {
		s.metrics.RecordFailure(metrics.OpDownload, time.Since(start))
		return job, fmt.Errorf("load %s: %w", job.Source.Kind, err)
	}

	if err := s.storage.Save(ctx, data, job.Paths.Original); err != nil {
		s.metrics.RecordFailure(metrics.OpDownload, time.Since(start))
		return job, fmt.Errorf("save original: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpDownload, time.Since(start))

	if err := job.ToConverting(); err != nil {
		return job, err
	}
	slog.Info("original downloaded", "job_id", job.ID, "path", job.Paths.Original, "bytes", len(data))
	return job, nil
}
