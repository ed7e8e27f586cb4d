package models

import "time"

// Stage is the coarse progress label reported by the pipeline status query.
type Stage string

const (
	StagePending        Stage = "pending"
	StageDownloading    Stage = "downloading"
	StageConverting     Stage = "converting"
	StageTranscribing   Stage = "transcribing"
	StagePostprocessing Stage = "postprocessing"
	StageSending        Stage = "sending"
	StageCompleted      Stage = "completed"
)

// Outcome tells whether a run is still executing and how it ended.
type Outcome string

const (
	OutcomeRunning   Outcome = "running"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// PipelineRun is the persisted state of one pipeline execution.
// Job holds the snapshot returned by the last finished step.
type PipelineRun struct {
	ID         string            `json:"id"`
	Input      JobInput          `json:"input"`
	Job        *TranscriptionJob `json:"job,omitempty"`
	Stage      Stage             `json:"stage"`
	Cancelled  bool              `json:"cancelled"`
	Outcome    Outcome           `json:"outcome"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Finished reports whether the run stopped executing.
func (r PipelineRun) Finished() bool {
	return r.Outcome != OutcomeRunning
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r PipelineRun) Clone() PipelineRun {
	out := r
	if r.Job != nil {
		job := *r.Job
		out.Job = &job
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}
