package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/raphaelgruber/speechkit-go/internal/workflow"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const runTable = "pipeline_run"

// runContent is the stored shape of a run, without its record id.
type runContent struct {
	Input      models.JobInput          `json:"input"`
	Job        *models.TranscriptionJob `json:"job,omitempty"`
	Stage      string                   `json:"stage"`
	Cancelled  bool                     `json:"cancelled"`
	Outcome    string                   `json:"outcome"`
	Error      *string                  `json:"error,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

// runRecord is a row as returned by SELECT.
type runRecord struct {
	ID         surrealmodels.RecordID   `json:"id"`
	Input      models.JobInput          `json:"input"`
	Job        *models.TranscriptionJob `json:"job,omitempty"`
	Stage      string                   `json:"stage"`
	Cancelled  bool                     `json:"cancelled"`
	Outcome    string                   `json:"outcome"`
	Error      *string                  `json:"error,omitempty"`
	StartedAt  time.Time                `json:"started_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
}

func toContent(run models.PipelineRun) runContent {
	c := runContent{
		Input:      run.Input,
		Job:        run.Job,
		Stage:      string(run.Stage),
		Cancelled:  run.Cancelled,
		Outcome:    string(run.Outcome),
		StartedAt:  run.StartedAt,
		UpdatedAt:  run.UpdatedAt,
		FinishedAt: run.FinishedAt,
	}
	if run.Error != "" {
		c.Error = &run.Error
	}
	return c
}

func (r runRecord) toRun() (models.PipelineRun, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.PipelineRun{}, err
	}
	run := models.PipelineRun{
		ID:         id,
		Input:      r.Input,
		Job:        r.Job,
		Stage:      models.Stage(r.Stage),
		Cancelled:  r.Cancelled,
		Outcome:    models.Outcome(r.Outcome),
		StartedAt:  r.StartedAt,
		UpdatedAt:  r.UpdatedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Error != nil {
		run.Error = *r.Error
	}
	return run, nil
}

// RunStore implements workflow.RunStore on SurrealDB.
type RunStore struct {
	client *Client
}

var _ workflow.RunStore = (*RunStore)(nil)

func NewRunStore(client *Client) *RunStore {
	return &RunStore{client: client}
}

// SaveRun writes the full run, creating the record on first save.
func (s *RunStore) SaveRun(ctx context.Context, run models.PipelineRun) error {
	_, err := query[any](ctx, s.client, `
		UPSERT type::record($tb, $id) CONTENT $content
	`, map[string]any{"tb": runTable, "id": run.ID, "content": toContent(run)})
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (models.PipelineRun, error) {
	runs, err := s.selectRuns(ctx, `SELECT * FROM type::record($tb, $id)`, map[string]any{"tb": runTable, "id": id})
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("get run: %w", err)
	}
	if len(runs) == 0 {
		return models.PipelineRun{}, fmt.Errorf("%w: %w", workflow.ErrRunNotFound, ErrNotFound)
	}
	return runs[0], nil
}

func (s *RunStore) ListRuns(ctx context.Context) ([]models.PipelineRun, error) {
	runs, err := s.selectRuns(ctx, `SELECT * FROM type::table($tb) ORDER BY started_at DESC`, map[string]any{"tb": runTable})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (s *RunStore) ListRunningRuns(ctx context.Context) ([]models.PipelineRun, error) {
	runs, err := s.selectRuns(ctx, `
		SELECT * FROM type::table($tb) WHERE outcome = $outcome ORDER BY started_at DESC
	`, map[string]any{"tb": runTable, "outcome": string(models.OutcomeRunning)})
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	return runs, nil
}

func (s *RunStore) selectRuns(ctx context.Context, sql string, vars map[string]any) ([]models.PipelineRun, error) {
	results, err := query[[]runRecord](ctx, s.client, sql, vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return []models.PipelineRun{}, nil
	}

	records := (*results)[0].Result
	runs := make([]models.PipelineRun, 0, len(records))
	for _, rec := range records {
		run, err := rec.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}
