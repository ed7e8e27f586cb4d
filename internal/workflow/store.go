package workflow

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/raphaelgruber/speechkit-go/internal/models"
)

var (
	// ErrRunNotFound indicates no run with the given id exists.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinished indicates the run already stopped executing.
	ErrRunFinished = errors.New("run already finished")

	// ErrInvalidInput indicates a job input without a usable source.
	ErrInvalidInput = errors.New("invalid job input")
)

// RunStore persists pipeline runs so they survive restarts.
type RunStore interface {
	SaveRun(ctx context.Context, run models.PipelineRun) error
	// GetRun returns ErrRunNotFound for unknown ids.
	GetRun(ctx context.Context, id string) (models.PipelineRun, error)
	// ListRuns returns all runs, most recent first.
	ListRuns(ctx context.Context) ([]models.PipelineRun, error)
	// ListRunningRuns returns runs whose outcome is still running.
	ListRunningRuns(ctx context.Context) ([]models.PipelineRun, error)
}

// MemoryStore is a RunStore for tests and single-process setups without a database.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]models.PipelineRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]models.PipelineRun)}
}

func (s *MemoryStore) SaveRun(_ context.Context, run models.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run.Clone()
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (models.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return models.PipelineRun{}, ErrRunNotFound
	}
	return run.Clone(), nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]models.PipelineRun, error) {
	return s.list(func(models.PipelineRun) bool { return true }), nil
}

func (s *MemoryStore) ListRunningRuns(_ context.Context) ([]models.PipelineRun, error) {
	return s.list(func(r models.PipelineRun) bool { return !r.Finished() }), nil
}

func (s *MemoryStore) list(keep func(models.PipelineRun) bool) []models.PipelineRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]models.PipelineRun, 0, len(s.runs))
	for _, run := range s.runs {
		if keep(run) {
			runs = append(runs, run.Clone())
		}
	}
	SortRuns(runs)
	return runs
}

// SortRuns orders runs by start time, most recent first.
func SortRuns(runs []models.PipelineRun) {
	slices.SortFunc(runs, func(a, b models.PipelineRun) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
}
