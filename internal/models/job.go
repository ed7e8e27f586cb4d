// Package models defines the transcription job, its transcript format and the persisted pipeline run.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for job state changes.
var (
	// ErrInvalidTransition indicates a transition was attempted from a status
	// other than the one it expects. The job is left untouched.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrIllegalOperation indicates an operation on a job that already reached a terminal status.
	ErrIllegalOperation = errors.New("illegal job operation")
)

// SourceKind tells loaders where the original audio lives.
type SourceKind string

const (
	SourceDownloadedPath SourceKind = "downloaded_file_path"
	SourceUploadURL      SourceKind = "upload_url"
	SourceChatFile       SourceKind = "telegram_file_id"
)

// FileSource identifies the original audio of a job.
type FileSource struct {
	Kind  SourceKind `json:"type"`
	Value string     `json:"value"`
}

// Valid reports whether the source has a known kind and a value.
func (s FileSource) Valid() bool {
	switch s.Kind {
	case SourceDownloadedPath, SourceUploadURL, SourceChatFile:
		return strings.TrimSpace(s.Value) != ""
	}
	return false
}

// JobStatus is the state of a transcription job.
type JobStatus string

const (
	JobStatusDownloading         JobStatus = "downloading"
	JobStatusConverting          JobStatus = "converting"
	JobStatusTranscribing        JobStatus = "transcribing"
	JobStatusPostprocessing      JobStatus = "postprocessing"
	JobStatusPendingConfirmation JobStatus = "pending_confirmation"
	JobStatusConfirmed           JobStatus = "confirmed"
	JobStatusRejected            JobStatus = "rejected"
	JobStatusFailed              JobStatus = "failed"
)

// Provider slot names used in transcript paths.
const (
	ProviderSlotA = "yandex"
	ProviderSlotB = "salute"
)

// JobPaths holds the storage keys of every artifact a job produces.
type JobPaths struct {
	Original             string `json:"original"`
	NormalizedAudio      string `json:"wav"`
	TranscriptProviderA  string `json:"transcription1"`
	TranscriptProviderB  string `json:"transcription2"`
	MergedTranscript     string `json:"merged"`
	FinalTranscript      string `json:"postprocessed"`
	PostprocessingPrompt string `json:"postprocessingPrompt,omitempty"`
}

// BuildPaths derives the artifact keys of a job from its id and creation time.
func BuildPaths(id string, createdAt time.Time, originalFilename string) JobPaths {
	base := strconv.FormatInt(createdAt.Unix(), 10) + "_" + id
	name := originalFilename
	if name == "" {
		name = "file"
	}
	return JobPaths{
		Original:             base + "/original_" + name,
		NormalizedAudio:      base + "/converted.wav",
		TranscriptProviderA:  base + "/transcription_" + ProviderSlotA + ".txt",
		TranscriptProviderB:  base + "/transcription_" + ProviderSlotB + ".txt",
		MergedTranscript:     base + "/merged.txt",
		FinalTranscript:      base + "/postprocessed.txt",
		PostprocessingPrompt: base + "/postprocessing_prompt.txt",
	}
}

// PromptPath returns the debug artifact key for the postprocessing prompt.
// Records persisted before the field existed derive it from the final transcript key.
func (p JobPaths) PromptPath() string {
	if p.PostprocessingPrompt != "" {
		return p.PostprocessingPrompt
	}
	return strings.TrimSuffix(p.FinalTranscript, "postprocessed.txt") + "postprocessing_prompt.txt"
}

// TranscriptionJob is the unit of work moved through the pipeline.
// Steps receive it by value and return the updated copy.
type TranscriptionJob struct {
	ID               string     `json:"id"`
	UserID           int64      `json:"user_id"`
	Source           FileSource `json:"source"`
	OriginalFilename string     `json:"original_filename,omitempty"`
	Status           JobStatus  `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Paths            JobPaths   `json:"paths"`
	Error            string     `json:"error,omitempty"`
}

// JobInput is what a requester supplies to start a job.
type JobInput struct {
	UserID           int64      `json:"user_id"`
	Source           FileSource `json:"source"`
	OriginalFilename string     `json:"original_filename,omitempty"`
}

// NewTranscriptionJob creates a job in the downloading status with its paths fixed.
func NewTranscriptionJob(userID int64, source FileSource, originalFilename string) TranscriptionJob {
	now := time.Now().UTC()
	id := uuid.NewString()
	return TranscriptionJob{
		ID:               id,
		UserID:           userID,
		Source:           source,
		OriginalFilename: originalFilename,
		Status:           JobStatusDownloading,
		CreatedAt:        now,
		UpdatedAt:        now,
		Paths:            BuildPaths(id, now, originalFilename),
	}
}

// IsActive reports whether the job can still make progress.
func (j TranscriptionJob) IsActive() bool {
	switch j.Status {
	case JobStatusFailed, JobStatusConfirmed, JobStatusRejected:
		return false
	}
	return true
}

// IsTerminal is the inverse of IsActive.
func (j TranscriptionJob) IsTerminal() bool {
	return !j.IsActive()
}

func (j *TranscriptionJob) ToConverting() error {
	return j.transition(JobStatusDownloading, JobStatusConverting)
}

func (j *TranscriptionJob) ToTranscribing() error {
	return j.transition(JobStatusConverting, JobStatusTranscribing)
}

func (j *TranscriptionJob) ToPostprocessing() error {
	return j.transition(JobStatusTranscribing, JobStatusPostprocessing)
}

func (j *TranscriptionJob) ToConfirmation() error {
	return j.transition(JobStatusPostprocessing, JobStatusPendingConfirmation)
}

func (j *TranscriptionJob) Confirm() error {
	return j.transition(JobStatusPendingConfirmation, JobStatusConfirmed)
}

func (j *TranscriptionJob) Reject() error {
	return j.transition(JobStatusPendingConfirmation, JobStatusRejected)
}

// Fail marks an active job as failed and records the reason.
func (j *TranscriptionJob) Fail(cause error) error {
	if !j.IsActive() {
		return fmt.Errorf("%w: job %s is not active (status %s)", ErrIllegalOperation, j.ID, j.Status)
	}
	j.Status = JobStatusFailed
	if cause != nil {
		j.Error = cause.Error()
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *TranscriptionJob) transition(from, to JobStatus) error {
	if j.Status != from {
		return fmt.Errorf("%w: job %s can't transition to %s, expected %s, got %s",
			ErrInvalidTransition, j.ID, to, from, j.Status)
	}
	j.Status = to
	j.UpdatedAt = time.Now().UTC()
	return nil
}
