// Package workflow runs transcription jobs as durable, resumable pipeline runs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/notify"
	"github.com/raphaelgruber/speechkit-go/internal/service"
)

// Steps are the pipeline activities. Each receives the latest job snapshot
// and returns the updated one.
type Steps interface {
	Download(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error)
	Convert(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error)
	Transcribe(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error)
	Postprocess(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error)
	Deliver(ctx context.Context, job models.TranscriptionJob) error
}

// Options tune an Engine. Zero values fall back to defaults.
type Options struct {
	Retry     RetryPolicy
	MaxEvents int
}

// Engine executes pipeline runs, one goroutine per run.
type Engine struct {
	steps    Steps
	store    RunStore
	notifier notify.Notifier
	retry    RetryPolicy
	events   *EventBus

	runs map[string]*liveRun
	mu   sync.RWMutex
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// liveRun is the in-memory state of a run executing in this process.
type liveRun struct {
	mu  sync.Mutex
	run models.PipelineRun
}

func (r *liveRun) snapshot() models.PipelineRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.run.Clone()
}

// stage is one step of the sequence together with the job status it starts from.
type stage struct {
	name     models.Stage
	from     models.JobStatus
	progress string
	run      func(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error)
}

func NewEngine(steps Steps, store RunStore, notifier notify.Notifier, opts Options) *Engine {
	retry := opts.Retry
	if retry.IsPermanent == nil {
		retry.IsPermanent = service.IsPermanent
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		steps:    steps,
		store:    store,
		notifier: notifier,
		retry:    retry,
		events:   NewEventBus(opts.MaxEvents),
		runs:     make(map[string]*liveRun),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events exposes the progress event buffer.
func (e *Engine) Events() *EventBus {
	return e.events
}

func (e *Engine) sequence() []stage {
	return []stage{
		{models.StageDownloading, models.JobStatusDownloading, notify.MsgDownloading, e.steps.Download},
		{models.StageConverting, models.JobStatusConverting, notify.MsgConverting, e.steps.Convert},
		{models.StageTranscribing, models.JobStatusTranscribing, notify.MsgTranscribing, e.steps.Transcribe},
		{models.StagePostprocessing, models.JobStatusPostprocessing, notify.MsgPostprocessing, e.steps.Postprocess},
	}
}

// Start persists a new run and executes it in the background.
func (e *Engine) Start(ctx context.Context, input models.JobInput) (string, error) {
	if !input.Source.Valid() {
		return "", fmt.Errorf("%w: source %q", ErrInvalidInput, input.Source.Kind)
	}

	now := time.Now().UTC()
	run := models.PipelineRun{
		ID:        uuid.NewString(),
		Input:     input,
		Stage:     models.StagePending,
		Outcome:   models.OutcomeRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("persist run: %w", err)
	}

	lr := &liveRun{run: run}
	e.register(lr)
	e.launch(lr)

	slog.Info("run started", "run_id", run.ID, "user_id", input.UserID, "source", input.Source.Kind)
	return run.ID, nil
}

// Resume continues every persisted run whose outcome is still running.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	runs, err := e.store.ListRunningRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list running runs: %w", err)
	}
	if len(runs) == 0 {
		slog.Info("no runs to resume")
		return 0, nil
	}

	resumed := 0
	for _, run := range runs {
		e.mu.RLock()
		_, live := e.runs[run.ID]
		e.mu.RUnlock()
		if live {
			continue
		}

		lr := &liveRun{run: run}
		e.register(lr)
		e.launch(lr)
		resumed++
		slog.Info("resuming run", "run_id", run.ID, "stage", run.Stage)
	}
	return resumed, nil
}

func (e *Engine) register(lr *liveRun) {
	e.mu.Lock()
	e.runs[lr.run.ID] = lr
	e.mu.Unlock()
}

func (e *Engine) launch(lr *liveRun) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("run goroutine panicked", "run_id", lr.run.ID, "panic", r)
				e.fail(e.ctx, lr, fmt.Errorf("internal panic: %v", r))
			}
		}()
		e.execute(e.ctx, lr)
	}()
}

func (e *Engine) execute(ctx context.Context, lr *liveRun) {
	runID := lr.snapshot().ID

	if lr.snapshot().Job == nil {
		e.createJob(ctx, lr)
	}

	for _, st := range e.sequence() {
		job := *lr.snapshot().Job
		if job.Status != st.from {
			continue
		}
		if e.stopIfCancelled(ctx, lr) {
			return
		}

		e.enterStage(ctx, lr, st.name)
		e.progress(ctx, job.UserID, st.progress)

		next, err := e.attempt(ctx, runID, st.name, func(ctx context.Context) (models.TranscriptionJob, error) {
			return st.run(ctx, job)
		})
		if err != nil {
			e.handleError(ctx, lr, st.name, err)
			return
		}
		e.update(ctx, lr, func(run *models.PipelineRun) { run.Job = &next })
	}

	job := *lr.snapshot().Job
	if job.Status != models.JobStatusPendingConfirmation {
		e.handleError(ctx, lr, lr.snapshot().Stage,
			fmt.Errorf("%w: job %s stopped in status %s", models.ErrInvalidTransition, job.ID, job.Status))
		return
	}
	if e.stopIfCancelled(ctx, lr) {
		return
	}

	e.enterStage(ctx, lr, models.StageSending)
	_, err := e.attempt(ctx, runID, models.StageSending, func(ctx context.Context) (models.TranscriptionJob, error) {
		return job, e.steps.Deliver(ctx, job)
	})
	if err != nil {
		e.handleError(ctx, lr, models.StageSending, err)
		return
	}

	e.update(ctx, lr, func(run *models.PipelineRun) {
		run.Stage = models.StageCompleted
		run.Outcome = models.OutcomeCompleted
		finished := time.Now().UTC()
		run.FinishedAt = &finished
	})
	e.events.Publish(Event{RunID: runID, Type: EventCompleted, Stage: models.StageCompleted})
	slog.Info("run completed", "run_id", runID, "job_id", job.ID)
}

func (e *Engine) createJob(ctx context.Context, lr *liveRun) {
	in := lr.snapshot().Input
	job := models.NewTranscriptionJob(in.UserID, in.Source, in.OriginalFilename)
	e.update(ctx, lr, func(run *models.PipelineRun) { run.Job = &job })
	slog.Info("job created", "run_id", lr.run.ID, "job_id", job.ID, "filename", job.OriginalFilename)
}

// attempt runs fn under the retry policy, publishing an event per retry.
func (e *Engine) attempt(ctx context.Context, runID string, name models.Stage,
	fn func(ctx context.Context) (models.TranscriptionJob, error)) (models.TranscriptionJob, error) {
	var out models.TranscriptionJob
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		job, err := fn(ctx)
		if err == nil {
			out = job
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		slog.Warn("step failed, retrying", "run_id", runID, "stage", name, "attempt", attempt, "wait", wait, "error", err)
		e.events.Publish(Event{RunID: runID, Type: EventRetry, Stage: name, Attempt: attempt, Message: err.Error()})
	})
	return out, err
}

func (e *Engine) enterStage(ctx context.Context, lr *liveRun, name models.Stage) {
	e.update(ctx, lr, func(run *models.PipelineRun) { run.Stage = name })
	e.events.Publish(Event{RunID: lr.snapshot().ID, Type: EventStage, Stage: name})
}

// stopIfCancelled ends the run when a cancel signal was received.
// The job status is left as is.
func (e *Engine) stopIfCancelled(ctx context.Context, lr *liveRun) bool {
	run := lr.snapshot()
	if !run.Cancelled {
		return false
	}

	e.update(ctx, lr, func(run *models.PipelineRun) {
		run.Outcome = models.OutcomeCancelled
		finished := time.Now().UTC()
		run.FinishedAt = &finished
	})
	e.events.Publish(Event{RunID: run.ID, Type: EventCancelled, Stage: run.Stage})
	if run.Job != nil {
		if err := e.notifier.Notify(context.WithoutCancel(ctx), run.Job.UserID, notify.MsgCancelled); err != nil {
			slog.Warn("failed to send cancellation notice", "run_id", run.ID, "error", err)
		}
	}
	slog.Info("run cancelled", "run_id", run.ID, "stage", run.Stage)
	return true
}

func (e *Engine) handleError(ctx context.Context, lr *liveRun, name models.Stage, err error) {
	if ctx.Err() != nil {
		// Shutdown: the run stays running in the store and is resumed on next boot.
		slog.Info("run interrupted", "run_id", lr.snapshot().ID, "stage", name)
		return
	}
	e.fail(ctx, lr, fmt.Errorf("%s: %w", name, err))
}

func (e *Engine) fail(ctx context.Context, lr *liveRun, err error) {
	var userID int64
	e.update(ctx, lr, func(run *models.PipelineRun) {
		if run.Job != nil {
			job := *run.Job
			if job.IsActive() {
				_ = job.Fail(err)
			}
			run.Job = &job
			userID = job.UserID
		} else {
			userID = run.Input.UserID
		}
		run.Outcome = models.OutcomeFailed
		run.Error = err.Error()
		finished := time.Now().UTC()
		run.FinishedAt = &finished
	})

	run := lr.snapshot()
	e.events.Publish(Event{RunID: run.ID, Type: EventFailed, Stage: run.Stage, Message: err.Error()})
	slog.Error("run failed", "run_id", run.ID, "stage", run.Stage, "error", err)

	if nerr := e.notifier.Notify(context.WithoutCancel(ctx), userID, notify.FailureMessage(err.Error())); nerr != nil {
		slog.Warn("failed to send failure notification", "run_id", run.ID, "error", nerr)
	}
}

func (e *Engine) progress(ctx context.Context, userID int64, message string) {
	if err := e.notifier.SendProgress(context.WithoutCancel(ctx), userID, message); err != nil {
		slog.Warn("failed to send progress", "user_id", userID, "error", err)
	}
}

// update applies fn to the run and persists it. Persistence failures are logged;
// the in-memory state stays authoritative for this process.
func (e *Engine) update(ctx context.Context, lr *liveRun, fn func(run *models.PipelineRun)) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	fn(&lr.run)
	lr.run.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveRun(context.WithoutCancel(ctx), lr.run.Clone()); err != nil {
		slog.Warn("failed to persist run", "run_id", lr.run.ID, "error", err)
	}
}

// lookup returns the live run, or a detached copy loaded from the store.
func (e *Engine) lookup(ctx context.Context, id string) (*liveRun, error) {
	e.mu.RLock()
	lr, ok := e.runs[id]
	e.mu.RUnlock()
	if ok {
		return lr, nil
	}

	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, err
	}
	return &liveRun{run: run}, nil
}

// Get returns the current state of a run.
func (e *Engine) Get(ctx context.Context, id string) (models.PipelineRun, error) {
	lr, err := e.lookup(ctx, id)
	if err != nil {
		return models.PipelineRun{}, err
	}
	return lr.snapshot(), nil
}

// Status returns the stage label of a run.
func (e *Engine) Status(ctx context.Context, id string) (models.Stage, error) {
	run, err := e.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return run.Stage, nil
}

// List returns all runs, most recent first.
func (e *Engine) List(ctx context.Context) ([]models.PipelineRun, error) {
	runs, err := e.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	for i, run := range runs {
		if lr, ok := e.runs[run.ID]; ok {
			runs[i] = lr.snapshot()
		}
	}
	e.mu.RUnlock()
	return runs, nil
}

// Cancel signals a run to stop before its next step.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	lr, err := e.lookup(ctx, id)
	if err != nil {
		return err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.run.Finished() {
		return fmt.Errorf("%w: %s is %s", ErrRunFinished, id, lr.run.Outcome)
	}
	lr.run.Cancelled = true
	lr.run.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveRun(ctx, lr.run.Clone()); err != nil {
		return fmt.Errorf("persist cancel: %w", err)
	}
	slog.Info("cancel requested", "run_id", id, "stage", lr.run.Stage)
	return nil
}

// Confirm accepts the result of a completed run.
func (e *Engine) Confirm(ctx context.Context, id string) (models.TranscriptionJob, error) {
	return e.decide(ctx, id, (*models.TranscriptionJob).Confirm)
}

// Reject discards the result of a completed run.
func (e *Engine) Reject(ctx context.Context, id string) (models.TranscriptionJob, error) {
	return e.decide(ctx, id, (*models.TranscriptionJob).Reject)
}

func (e *Engine) decide(ctx context.Context, id string, transition func(*models.TranscriptionJob) error) (models.TranscriptionJob, error) {
	lr, err := e.lookup(ctx, id)
	if err != nil {
		return models.TranscriptionJob{}, err
	}

	lr.mu.Lock()
	defer lr.mu.Unlock()
	if lr.run.Outcome != models.OutcomeCompleted || lr.run.Job == nil {
		return models.TranscriptionJob{}, fmt.Errorf("%w: run %s is %s", models.ErrInvalidTransition, id, lr.run.Outcome)
	}

	job := *lr.run.Job
	if err := transition(&job); err != nil {
		return models.TranscriptionJob{}, err
	}
	lr.run.Job = &job
	lr.run.UpdatedAt = time.Now().UTC()
	if err := e.store.SaveRun(ctx, lr.run.Clone()); err != nil {
		return models.TranscriptionJob{}, fmt.Errorf("persist decision: %w", err)
	}
	slog.Info("job decided", "run_id", id, "job_id", job.ID, "status", job.Status)
	return job, nil
}

// Shutdown cancels all executing runs and waits for their goroutines.
// Interrupted runs stay running in the store.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
