package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raphaelgruber/speechkit-go/internal/llm"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
)

const promptPlaceholder = "{text}"

// PostprocessConfig tunes the cleanup call.
type PostprocessConfig struct {
	// Prompt must contain {text}.
	Prompt string
	// UseMerged reads the merged transcript instead of the provider slots.
	UseMerged bool
	Timeout   time.Duration
}

// PostprocessStep cleans the transcript with an LLM and stores the result as the final transcript.
type PostprocessStep struct {
	storage   storage.Storage
	completer llm.Completer
	cfg       PostprocessConfig
	metrics   *metrics.Collector
}

func NewPostprocessStep(store storage.Storage, completer llm.Completer, cfg PostprocessConfig, collector *metrics.Collector) *PostprocessStep {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	return &PostprocessStep{storage: store, completer: completer, cfg: cfg, metrics: collector}
}

// EstimateTokens approximates the token count of text as one token per three runes.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 3
}

func (s *PostprocessStep) Run(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	text, err := s.input(ctx, job)
	if err != nil {
		return job, err
	}

	prompt := strings.Replace(s.cfg.Prompt, promptPlaceholder, text, 1)
	if tokens, limit := EstimateTokens(prompt), s.completer.MaxTokens(); tokens > limit {
		return job, fmt.Errorf("%w: ~%d tokens, limit %d", ErrPromptTooLarge, tokens, limit)
	}

	promptPath := job.Paths.PromptPath()
	if err := s.storage.Save(ctx, []byte(prompt), promptPath); err != nil {
		return job, fmt.Errorf("save postprocessing prompt: %w", err)
	}
	slog.Debug("postprocessing prompt saved", "job_id", job.ID, "path", promptPath)

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	result, err := s.completer.Process(callCtx, prompt)
	if err != nil {
		s.metrics.RecordFailure(metrics.OpPostprocess, time.Since(start))
		return job, fmt.Errorf("postprocess: %w", err)
	}
	s.metrics.RecordTiming(metrics.OpPostprocess, time.Since(start))

	if err := s.storage.Save(ctx, []byte(result), job.Paths.FinalTranscript); err != nil {
		return job, fmt.Errorf("save final transcript: %w", err)
	}
	if err := job.ToConfirmation(); err != nil {
		return job, err
	}
	slog.Info("postprocessing completed", "job_id", job.ID, "path", job.Paths.FinalTranscript)
	return job, nil
}

// input picks the transcript to clean. Without merging, slot A is used unless
// it holds an error marker and slot B does not.
func (s *PostprocessStep) input(ctx context.Context, job models.TranscriptionJob) (string, error) {
	var text string
	if s.cfg.UseMerged {
		data, err := s.storage.Read(ctx, job.Paths.MergedTranscript)
		if err != nil {
			return "", fmt.Errorf("read merged transcript: %w", err)
		}
		text = string(data)
	} else {
		a, err := s.readOptional(ctx, job.Paths.TranscriptProviderA)
		if err != nil {
			return "", err
		}
		b, err := s.readOptional(ctx, job.Paths.TranscriptProviderB)
		if err != nil {
			return "", err
		}
		text = a
		if isErrorMarker(a) && b != "" && !isErrorMarker(b) {
			slog.Info("provider A failed, postprocessing provider B", "job_id", job.ID)
			text = b
		}
	}

	if isErrorMarker(text) {
		return "", fmt.Errorf("%w: %s", ErrEmptyTranscript, strings.TrimSpace(text))
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (s *PostprocessStep) readOptional(ctx context.Context, path string) (string, error) {
	data, err := s.storage.Read(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

func isErrorMarker(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), errorMarkerPrefix)
}
