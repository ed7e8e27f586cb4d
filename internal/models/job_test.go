package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource() FileSource {
	return FileSource{Kind: SourceChatFile, Value: "AgACAgIAAxkBAAIB"}
}

func TestBuildPaths(t *testing.T) {
	createdAt := time.Unix(1717171717, 999_000_000)
	id := "5b0f5c1e-3a8e-4c1a-9d8e-0a1b2c3d4e5f"

	paths := BuildPaths(id, createdAt, "session.m4a")

	base := "1717171717_" + id
	assert.Equal(t, base+"/original_session.m4a", paths.Original)
	assert.Equal(t, base+"/converted.wav", paths.NormalizedAudio)
	assert.Equal(t, base+"/transcription_yandex.txt", paths.TranscriptProviderA)
	assert.Equal(t, base+"/transcription_salute.txt", paths.TranscriptProviderB)
	assert.Equal(t, base+"/merged.txt", paths.MergedTranscript)
	assert.Equal(t, base+"/postprocessed.txt", paths.FinalTranscript)
	assert.Equal(t, base+"/postprocessing_prompt.txt", paths.PostprocessingPrompt)
}

func TestBuildPathsWithoutFilename(t *testing.T) {
	paths := BuildPaths("abc", time.Unix(10, 0), "")
	assert.Equal(t, "10_abc/original_file", paths.Original)
}

func TestPromptPathFallback(t *testing.T) {
	paths := JobPaths{FinalTranscript: "10_abc/postprocessed.txt"}
	assert.Equal(t, "10_abc/postprocessing_prompt.txt", paths.PromptPath())

	paths.PostprocessingPrompt = "custom/prompt.txt"
	assert.Equal(t, "custom/prompt.txt", paths.PromptPath())
}

func TestNewTranscriptionJob(t *testing.T) {
	job := NewTranscriptionJob(42, testSource(), "")

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, int64(42), job.UserID)
	assert.Equal(t, JobStatusDownloading, job.Status)
	assert.True(t, job.IsActive())
	assert.Equal(t, BuildPaths(job.ID, job.CreatedAt, ""), job.Paths)
}

// Every forward transition must refuse to run from any status other than its expected one.
func TestTransitionRejectsUnexpectedStatus(t *testing.T) {
	type transition struct {
		name string
		from JobStatus
		to   JobStatus
		call func(*TranscriptionJob) error
	}
	transitions := []transition{
		{"ToConverting", JobStatusDownloading, JobStatusConverting, (*TranscriptionJob).ToConverting},
		{"ToTranscribing", JobStatusConverting, JobStatusTranscribing, (*TranscriptionJob).ToTranscribing},
		{"ToPostprocessing", JobStatusTranscribing, JobStatusPostprocessing, (*TranscriptionJob).ToPostprocessing},
		{"ToConfirmation", JobStatusPostprocessing, JobStatusPendingConfirmation, (*TranscriptionJob).ToConfirmation},
		{"Confirm", JobStatusPendingConfirmation, JobStatusConfirmed, (*TranscriptionJob).Confirm},
		{"Reject", JobStatusPendingConfirmation, JobStatusRejected, (*TranscriptionJob).Reject},
	}
	allStatuses := []JobStatus{
		JobStatusDownloading, JobStatusConverting, JobStatusTranscribing, JobStatusPostprocessing,
		JobStatusPendingConfirmation, JobStatusConfirmed, JobStatusRejected, JobStatusFailed,
	}

	for _, tr := range transitions {
		for _, status := range allStatuses {
			if status == tr.from {
				continue
			}
			t.Run(tr.name+"_from_"+string(status), func(t *testing.T) {
				job := NewTranscriptionJob(1, testSource(), "")
				job.Status = status
				before := job.UpdatedAt

				err := tr.call(&job)

				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, status, job.Status, "status must be unchanged")
				assert.Equal(t, before, job.UpdatedAt)
			})
		}

		t.Run(tr.name+"_from_"+string(tr.from), func(t *testing.T) {
			job := NewTranscriptionJob(1, testSource(), "")
			job.Status = tr.from

			require.NoError(t, tr.call(&job))
			assert.Equal(t, tr.to, job.Status)
		})
	}
}

func TestFullLifecycle(t *testing.T) {
	job := NewTranscriptionJob(7, testSource(), "a.mp3")

	require.NoError(t, job.ToConverting())
	require.NoError(t, job.ToTranscribing())
	require.NoError(t, job.ToPostprocessing())
	require.NoError(t, job.ToConfirmation())
	assert.True(t, job.IsActive())
	require.NoError(t, job.Confirm())
	assert.False(t, job.IsActive())
	assert.True(t, job.IsTerminal())
}

func TestFail(t *testing.T) {
	t.Run("active job", func(t *testing.T) {
		job := NewTranscriptionJob(1, testSource(), "")
		require.NoError(t, job.Fail(errors.New("boom")))
		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, "boom", job.Error)
	})

	for _, status := range []JobStatus{JobStatusFailed, JobStatusConfirmed, JobStatusRejected} {
		t.Run("terminal "+string(status), func(t *testing.T) {
			job := NewTranscriptionJob(1, testSource(), "")
			job.Status = status

			err := job.Fail(errors.New("late"))

			assert.ErrorIs(t, err, ErrIllegalOperation)
			assert.Equal(t, status, job.Status)
			assert.Empty(t, job.Error)
		})
	}
}

// Paths must survive any number of JSON round trips through step boundaries.
func TestPathsStableAcrossMarshal(t *testing.T) {
	job := NewTranscriptionJob(99, FileSource{Kind: SourceUploadURL, Value: "https://disk.yandex.ru/d/abc"}, "talk.ogg")
	want := job.Paths

	current := job
	for range 5 {
		data, err := json.Marshal(current)
		require.NoError(t, err)
		var next TranscriptionJob
		require.NoError(t, json.Unmarshal(data, &next))
		current = next
	}

	assert.Equal(t, want, current.Paths)
	assert.Equal(t, job.ID, current.ID)
	assert.True(t, job.CreatedAt.Equal(current.CreatedAt))
}

func TestFileSourceValid(t *testing.T) {
	assert.True(t, testSource().Valid())
	assert.False(t, FileSource{Kind: SourceUploadURL}.Valid())
	assert.False(t, FileSource{Kind: "ftp", Value: "x"}.Valid())
}
