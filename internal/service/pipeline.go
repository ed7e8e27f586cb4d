package service

import (
	"context"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

// Pipeline groups the steps in the order the workflow engine calls them.
type Pipeline struct {
	download    *DownloadStep
	convert     *ConvertStep
	transcribe  *TranscribeStep
	merge       *MergeStep // nil when merging is disabled
	postprocess *PostprocessStep
	deliver     *DeliverStep
}

func NewPipeline(download *DownloadStep, convert *ConvertStep, transcribe *TranscribeStep,
	merge *MergeStep, postprocess *PostprocessStep, deliver *DeliverStep) *Pipeline {
	return &Pipeline{
		download:    download,
		convert:     convert,
		transcribe:  transcribe,
		merge:       merge,
		postprocess: postprocess,
		deliver:     deliver,
	}
}

func (p *Pipeline) Download(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return p.download.Run(ctx, job)
}

func (p *Pipeline) Convert(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return p.convert.Run(ctx, job)
}

// Transcribe fills both provider slots and, when enabled, merges them.
func (p *Pipeline) Transcribe(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	job, err := p.transcribe.Run(ctx, job)
	if err != nil || p.merge == nil {
		return job, err
	}
	return p.merge.Run(ctx, job)
}

func (p *Pipeline) Postprocess(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return p.postprocess.Run(ctx, job)
}

func (p *Pipeline) Deliver(ctx context.Context, job models.TranscriptionJob) error {
	return p.deliver.Run(ctx, job)
}
