package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raphaelgruber/speechkit-go/internal/llm"
	"github.com/raphaelgruber/speechkit-go/internal/metrics"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrompt = "Очисти текст:\n{text}\nКонец."

func newPostprocess(store storage.Storage, c *fakeCompleter, useMerged bool) *PostprocessStep {
	return NewPostprocessStep(store, c, PostprocessConfig{Prompt: testPrompt, UseMerged: useMerged}, nil)
}

func TestPostprocessStep(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, "[0:00.000 - 0:01.000] эээ привет")

	c := &fakeCompleter{maxTokens: 1000, out: "Привет."}
	c.onCall = func(prompt string) {
		// the prompt is on disk before the model answers
		assert.Equal(t, prompt, read(t, store, job.Paths.PromptPath()))
	}

	got, err := newPostprocess(store, c, false).Run(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, c.prompts, 1)
	assert.Equal(t, "Очисти текст:\n[0:00.000 - 0:01.000] эээ привет\nКонец.", c.prompts[0])
	assert.Equal(t, "Привет.", read(t, store, job.Paths.FinalTranscript))
	assert.Equal(t, models.JobStatusPendingConfirmation, got.Status)
}

func TestPostprocessStepKeepsPromptWhenModelFails(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, "[0:00.000 - 0:01.000] текст")

	c := &fakeCompleter{maxTokens: 1000, err: errors.New("upstream 502")}
	collector := metrics.NewCollector()
	step := NewPostprocessStep(store, c, PostprocessConfig{Prompt: testPrompt}, collector)

	got, err := step.Run(context.Background(), job)
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, models.JobStatusPostprocessing, got.Status)
	assert.Contains(t, read(t, store, job.Paths.PromptPath()), "текст")
	assert.Equal(t, int64(1), collector.Snapshot().Steps[metrics.OpPostprocess].Failures)

	exists, err := store.Exists(context.Background(), job.Paths.FinalTranscript)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPostprocessStepFatalModelErrorIsPermanent(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, "[0:00.000 - 0:01.000] текст")

	c := &fakeCompleter{maxTokens: 1000, err: llm.ErrFatalAPI}
	_, err := newPostprocess(store, c, false).Run(context.Background(), job)
	assert.True(t, IsPermanent(err))
}

func TestPostprocessStepPromptTooLarge(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, strings.Repeat("слово ", 100))

	c := &fakeCompleter{maxTokens: 10}
	_, err := newPostprocess(store, c, false).Run(context.Background(), job)

	assert.ErrorIs(t, err, ErrPromptTooLarge)
	assert.Empty(t, c.prompts)
}

func TestPostprocessStepInputSelection(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		wantIn  string
		wantErr error
	}{
		{name: "a preferred", a: "[0:00.000 - 0:01.000] A", b: "[0:00.000 - 0:01.000] B", wantIn: "A"},
		{name: "b when a failed", a: "Error: yandex down", b: "[0:00.000 - 0:01.000] B", wantIn: "B"},
		{name: "both failed", a: "Error: yandex down", b: "Error: salute down", wantErr: ErrEmptyTranscript},
		{name: "a failed b missing", a: "Error: yandex down", wantErr: ErrEmptyTranscript},
		{name: "a blank", a: "  \n", b: "[0:00.000 - 0:01.000] B", wantErr: ErrEmptyTranscript},
		{name: "nothing written", wantErr: ErrEmptyTranscript},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(t)
			job := newJob(models.JobStatusPostprocessing)
			if tt.a != "" {
				save(t, store, job.Paths.TranscriptProviderA, tt.a)
			}
			if tt.b != "" {
				save(t, store, job.Paths.TranscriptProviderB, tt.b)
			}

			c := &fakeCompleter{maxTokens: 1000, out: "ok"}
			_, err := newPostprocess(store, c, false).Run(context.Background(), job)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, c.prompts)
				return
			}
			require.NoError(t, err)
			require.Len(t, c.prompts, 1)
			assert.Contains(t, c.prompts[0], tt.wantIn)
		})
	}
}

func TestPostprocessStepUsesMerged(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, "[0:00.000 - 0:01.000] slot")
	save(t, store, job.Paths.MergedTranscript, "[0:00.000 - 0:01.000] merged")

	c := &fakeCompleter{maxTokens: 1000, out: "ok"}
	_, err := newPostprocess(store, c, true).Run(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, c.prompts[0], "merged")
	assert.NotContains(t, c.prompts[0], "slot")
}

func TestPostprocessStepReplacesFirstPlaceholderOnly(t *testing.T) {
	store := newStore(t)
	job := newJob(models.JobStatusPostprocessing)
	save(t, store, job.Paths.TranscriptProviderA, "текст")

	c := &fakeCompleter{maxTokens: 1000, out: "ok"}
	step := NewPostprocessStep(store, c, PostprocessConfig{Prompt: "{text} | {text}"}, nil)
	_, err := step.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "текст | {text}", c.prompts[0])
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("абв"))
	assert.Equal(t, 3, EstimateTokens("привет мир"))
}
