package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/loader"
	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteps struct {
	mu    sync.Mutex
	calls map[string]int
	// errs holds the errors returned by successive calls of a step.
	errs map[string][]error
	// hooks run at the start of a step call.
	hooks map[string]func(ctx context.Context)
}

func newFakeSteps() *fakeSteps {
	return &fakeSteps{
		calls: make(map[string]int),
		errs:  make(map[string][]error),
		hooks: make(map[string]func(ctx context.Context)),
	}
}

func (f *fakeSteps) call(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls[name]++
	var err error
	if errs := f.errs[name]; len(errs) > 0 {
		err = errs[0]
		if len(errs) > 1 {
			f.errs[name] = errs[1:]
		}
	}
	hook := f.hooks[name]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	return err
}

func (f *fakeSteps) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeSteps) step(name string, transition func(*models.TranscriptionJob) error) func(context.Context, models.TranscriptionJob) (models.TranscriptionJob, error) {
	return func(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
		if err := f.call(ctx, name); err != nil {
			return job, err
		}
		return job, transition(&job)
	}
}

func (f *fakeSteps) Download(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return f.step("download", (*models.TranscriptionJob).ToConverting)(ctx, job)
}

func (f *fakeSteps) Convert(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return f.step("convert", (*models.TranscriptionJob).ToTranscribing)(ctx, job)
}

func (f *fakeSteps) Transcribe(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return f.step("transcribe", (*models.TranscriptionJob).ToPostprocessing)(ctx, job)
}

func (f *fakeSteps) Postprocess(ctx context.Context, job models.TranscriptionJob) (models.TranscriptionJob, error) {
	return f.step("postprocess", (*models.TranscriptionJob).ToConfirmation)(ctx, job)
}

func (f *fakeSteps) Deliver(ctx context.Context, _ models.TranscriptionJob) error {
	return f.call(ctx, "deliver")
}

type recordingNotifier struct {
	mu        sync.Mutex
	progress  []string
	messages  []string
	documents int
}

func (n *recordingNotifier) Notify(_ context.Context, _ int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) SendProgress(_ context.Context, _ int64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, message)
	return nil
}

func (n *recordingNotifier) SendDocument(context.Context, int64, []byte, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.documents++
	return nil
}

func (n *recordingNotifier) sent() ([]string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.progress...), append([]string(nil), n.messages...)
}

var errTransient = errors.New("connection reset by peer")

func fastRetry() RetryPolicy {
	return RetryPolicy{InitialInterval: time.Millisecond, Multiplier: 2, MaxAttempts: 3, AttemptTimeout: time.Second}
}

func newTestEngine(t *testing.T, steps Steps, store RunStore, n notify.Notifier) *Engine {
	t.Helper()
	e := NewEngine(steps, store, n, Options{Retry: fastRetry()})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func testInput() models.JobInput {
	return models.JobInput{
		UserID:           7,
		Source:           models.FileSource{Kind: models.SourceChatFile, Value: "AgACAgIAAxkBAAIB"},
		OriginalFilename: "voice.ogg",
	}
}

func waitFinished(t *testing.T, e *Engine, id string) models.PipelineRun {
	t.Helper()
	var run models.PipelineRun
	require.Eventually(t, func() bool {
		var err error
		run, err = e.Get(context.Background(), id)
		return err == nil && run.Finished()
	}, 5*time.Second, 5*time.Millisecond)
	return run
}

func TestEngineCompletesRun(t *testing.T) {
	steps := newFakeSteps()
	n := &recordingNotifier{}
	store := NewMemoryStore()
	e := newTestEngine(t, steps, store, n)

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeCompleted, run.Outcome)
	assert.Equal(t, models.StageCompleted, run.Stage)
	require.NotNil(t, run.Job)
	assert.Equal(t, models.JobStatusPendingConfirmation, run.Job.Status)
	assert.Equal(t, "voice.ogg", run.Job.OriginalFilename)
	assert.NotNil(t, run.FinishedAt)

	for _, name := range []string{"download", "convert", "transcribe", "postprocess", "deliver"} {
		assert.Equal(t, 1, steps.count(name), name)
	}

	progress, messages := n.sent()
	assert.Equal(t, []string{notify.MsgDownloading, notify.MsgConverting, notify.MsgTranscribing, notify.MsgPostprocessing}, progress)
	assert.Empty(t, messages)

	stored, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCompleted, stored.Outcome)

	var stages []models.Stage
	for _, ev := range e.Events().SinceRun(id, 0) {
		if ev.Type == EventStage {
			stages = append(stages, ev.Stage)
		}
	}
	assert.Equal(t, []models.Stage{
		models.StageDownloading, models.StageConverting, models.StageTranscribing,
		models.StagePostprocessing, models.StageSending,
	}, stages)
}

func TestEngineRetriesTransientFailures(t *testing.T) {
	steps := newFakeSteps()
	steps.errs["convert"] = []error{errTransient, errTransient, nil}
	e := newTestEngine(t, steps, NewMemoryStore(), &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeCompleted, run.Outcome)
	assert.Equal(t, 3, steps.count("convert"))

	retries := 0
	for _, ev := range e.Events().SinceRun(id, 0) {
		if ev.Type == EventRetry {
			retries++
			assert.Equal(t, models.StageConverting, ev.Stage)
		}
	}
	assert.Equal(t, 2, retries)
}

func TestEngineFailsAfterMaxAttempts(t *testing.T) {
	steps := newFakeSteps()
	steps.errs["transcribe"] = []error{errTransient}
	n := &recordingNotifier{}
	e := newTestEngine(t, steps, NewMemoryStore(), n)

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Equal(t, models.StageTranscribing, run.Stage)
	assert.Equal(t, 3, steps.count("transcribe"))
	assert.Equal(t, 0, steps.count("postprocess"))

	require.NotNil(t, run.Job)
	assert.Equal(t, models.JobStatusFailed, run.Job.Status)
	assert.Contains(t, run.Job.Error, "connection reset by peer")

	_, messages := n.sent()
	assert.Equal(t, []string{notify.FailureMessage("transcribing: connection reset by peer")}, messages)
}

func TestEngineDoesNotRetryPermanentFailures(t *testing.T) {
	steps := newFakeSteps()
	steps.errs["download"] = []error{loader.ErrNoLoader}
	e := newTestEngine(t, steps, NewMemoryStore(), &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Equal(t, 1, steps.count("download"))
	assert.Equal(t, 0, steps.count("convert"))
}

func TestEngineCancelBetweenSteps(t *testing.T) {
	steps := newFakeSteps()
	entered := make(chan struct{})
	release := make(chan struct{})
	steps.hooks["download"] = func(context.Context) {
		close(entered)
		<-release
	}
	n := &recordingNotifier{}
	e := newTestEngine(t, steps, NewMemoryStore(), n)

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	<-entered
	require.NoError(t, e.Cancel(context.Background(), id))
	close(release)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeCancelled, run.Outcome)
	assert.True(t, run.Cancelled)
	assert.Equal(t, 0, steps.count("convert"))
	require.NotNil(t, run.Job)
	assert.Equal(t, models.JobStatusConverting, run.Job.Status, "job status left as is")

	_, messages := n.sent()
	assert.Equal(t, []string{notify.MsgCancelled}, messages)

	err = e.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestEngineCancelDuringTranscription(t *testing.T) {
	steps := newFakeSteps()
	entered := make(chan struct{})
	release := make(chan struct{})
	steps.hooks["transcribe"] = func(context.Context) {
		close(entered)
		<-release
	}
	e := newTestEngine(t, steps, NewMemoryStore(), &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	<-entered
	require.NoError(t, e.Cancel(context.Background(), id))
	close(release)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeCancelled, run.Outcome)
	assert.Equal(t, 1, steps.count("transcribe"), "transcription runs to the end")
	assert.Equal(t, 0, steps.count("postprocess"))
	assert.Equal(t, 0, steps.count("deliver"))
	require.NotNil(t, run.Job)
	assert.Equal(t, models.JobStatusPostprocessing, run.Job.Status)
}

func TestEngineCancelUnknownRun(t *testing.T) {
	e := newTestEngine(t, newFakeSteps(), NewMemoryStore(), &recordingNotifier{})
	assert.ErrorIs(t, e.Cancel(context.Background(), "missing"), ErrRunNotFound)
	_, err := e.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestEngineResumeContinuesFromSnapshot(t *testing.T) {
	store := NewMemoryStore()
	job := models.NewTranscriptionJob(7, testInput().Source, "voice.ogg")
	job.Status = models.JobStatusTranscribing
	run := models.PipelineRun{
		ID:        "run-1",
		Input:     testInput(),
		Job:       &job,
		Stage:     models.StageTranscribing,
		Outcome:   models.OutcomeRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveRun(context.Background(), run))
	done := run
	done.ID = "run-2"
	done.Outcome = models.OutcomeCompleted
	require.NoError(t, store.SaveRun(context.Background(), done))

	steps := newFakeSteps()
	e := newTestEngine(t, steps, store, &recordingNotifier{})

	n, err := e.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := waitFinished(t, e, "run-1")
	assert.Equal(t, models.OutcomeCompleted, got.Outcome)
	assert.Equal(t, job.ID, got.Job.ID)
	assert.Equal(t, 0, steps.count("download"))
	assert.Equal(t, 0, steps.count("convert"))
	assert.Equal(t, 1, steps.count("transcribe"))
	assert.Equal(t, 1, steps.count("deliver"))
}

func TestEngineResumeHonorsPersistedCancel(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.SaveRun(context.Background(), models.PipelineRun{
		ID: "run-1", Input: testInput(), Stage: models.StagePending,
		Outcome: models.OutcomeRunning, Cancelled: true, StartedAt: time.Now().UTC(),
	}))

	steps := newFakeSteps()
	e := newTestEngine(t, steps, store, &recordingNotifier{})
	_, err := e.Resume(context.Background())
	require.NoError(t, err)

	got := waitFinished(t, e, "run-1")
	assert.Equal(t, models.OutcomeCancelled, got.Outcome)
	assert.Equal(t, 0, steps.count("download"))
}

func TestEngineConfirmAndReject(t *testing.T) {
	store := NewMemoryStore()
	e := newTestEngine(t, newFakeSteps(), store, &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)
	waitFinished(t, e, id)

	job, err := e.Confirm(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusConfirmed, job.Status)

	_, err = e.Reject(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	stored, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusConfirmed, stored.Job.Status)

	// A fresh engine decides runs it only knows from the store.
	id2, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)
	waitFinished(t, e, id2)

	other := newTestEngine(t, newFakeSteps(), store, &recordingNotifier{})
	job, err = other.Reject(context.Background(), id2)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRejected, job.Status)
}

func TestEngineConfirmRequiresCompletedRun(t *testing.T) {
	steps := newFakeSteps()
	steps.errs["download"] = []error{loader.ErrInvalidReference}
	e := newTestEngine(t, steps, NewMemoryStore(), &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)
	waitFinished(t, e, id)

	_, err = e.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = e.Confirm(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestEngineStatus(t *testing.T) {
	steps := newFakeSteps()
	entered := make(chan struct{})
	release := make(chan struct{})
	steps.hooks["postprocess"] = func(context.Context) {
		close(entered)
		<-release
	}
	e := newTestEngine(t, steps, NewMemoryStore(), &recordingNotifier{})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	<-entered
	stage, err := e.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StagePostprocessing, stage)
	close(release)

	waitFinished(t, e, id)
	stage, err = e.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StageCompleted, stage)
}

func TestEngineRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t, newFakeSteps(), NewMemoryStore(), &recordingNotifier{})
	_, err := e.Start(context.Background(), models.JobInput{UserID: 1, Source: models.FileSource{Kind: "ftp", Value: "x"}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngineRecoversStepPanic(t *testing.T) {
	steps := newFakeSteps()
	steps.hooks["convert"] = func(context.Context) { panic("boom") }
	n := &recordingNotifier{}
	e := newTestEngine(t, steps, NewMemoryStore(), n)

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)

	run := waitFinished(t, e, id)
	assert.Equal(t, models.OutcomeFailed, run.Outcome)
	assert.Contains(t, run.Error, "internal panic: boom")
	assert.Equal(t, models.JobStatusFailed, run.Job.Status)
}

func TestEngineShutdownLeavesRunResumable(t *testing.T) {
	steps := newFakeSteps()
	entered := make(chan struct{})
	steps.hooks["download"] = func(ctx context.Context) {
		close(entered)
		<-ctx.Done()
	}
	steps.errs["download"] = []error{context.Canceled}
	store := NewMemoryStore()
	n := &recordingNotifier{}
	e := NewEngine(steps, store, n, Options{Retry: fastRetry()})

	id, err := e.Start(context.Background(), testInput())
	require.NoError(t, err)
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	stored, err := store.GetRun(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRunning, stored.Outcome)
	assert.Equal(t, models.JobStatusDownloading, stored.Job.Status)

	_, messages := n.sent()
	assert.Empty(t, messages)
}

func TestEngineListMostRecentFirst(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now().UTC()
	for i, id := range []string{"old", "new"} {
		require.NoError(t, store.SaveRun(context.Background(), models.PipelineRun{
			ID: id, Outcome: models.OutcomeCompleted, Stage: models.StageCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	e := newTestEngine(t, newFakeSteps(), store, &recordingNotifier{})

	runs, err := e.List(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}
