package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/docflow/internal/model"
)

const stepResultsTable = "step_results"

// StepResultStore persists StepResult rows.
type StepResultStore struct {
	db *DB
}

func NewStepResultStore(db *DB) *StepResultStore {
	return &StepResultStore{db: db}
}

const insertStepResultSQL = `
INSERT INTO step_results (
	step_result_id, step_result_job_id, step_result_step_name, step_result_status,
	step_result_started_at, step_result_ended_at, step_result_output_data,
	step_result_error, step_result_error_traceback, step_result_awaiting_input_since,
	step_result_user_input, step_result_reverted_at, step_result_revert_error,
	step_result_created_at
) VALUES (
	:step_result_id, :step_result_job_id, :step_result_step_name, :step_result_status,
	:step_result_started_at, :step_result_ended_at, :step_result_output_data,
	:step_result_error, :step_result_error_traceback, :step_result_awaiting_input_since,
	:step_result_user_input, :step_result_reverted_at, :step_result_revert_error,
	:step_result_created_at
)`

// Create inserts a new step result.
func (s *StepResultStore) Create(ctx context.Context, tx *Tx, result *model.StepResult) error {
	if _, err := s.db.execerFor(tx).NamedExecContext(ctx, insertStepResultSQL, result); err != nil {
		return fmt.Errorf("error creating step result %s: %w", result.ID, err)
	}
	return nil
}

const updateStepResultSQL = `
UPDATE step_results SET
	step_result_status = :step_result_status,
	step_result_started_at = :step_result_started_at,
	step_result_ended_at = :step_result_ended_at,
	step_result_output_data = :step_result_output_data,
	step_result_error = :step_result_error,
	step_result_error_traceback = :step_result_error_traceback,
	step_result_awaiting_input_since = :step_result_awaiting_input_since,
	step_result_user_input = :step_result_user_input,
	step_result_reverted_at = :step_result_reverted_at,
	step_result_revert_error = :step_result_revert_error
WHERE step_result_id = :step_result_id`

// Update overwrites an existing step result row.
func (s *StepResultStore) Update(ctx context.Context, tx *Tx, result *model.StepResult) error {
	res, err := s.db.execerFor(tx).NamedExecContext(ctx, updateStepResultSQL, result)
	if err != nil {
		return fmt.Errorf("error updating step result %s: %w", result.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected updating step result %s: %w", result.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Read fetches a step result by id, without its artifacts.
func (s *StepResultStore) Read(ctx context.Context, tx *Tx, id model.StepResultID) (*model.StepResult, error) {
	query, args, err := s.db.From(stepResultsTable).Where(goqu.Ex{"step_result_id": id}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building step result read query: %w", err)
	}
	result := &model.StepResult{}
	if err := s.db.execerFor(tx).GetContext(ctx, result, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading step result %s: %w", id, err)
	}
	return result, nil
}

// ListByJob returns every step result for jobID, in creation order, the
// order Job.History reconstruction expects.
func (s *StepResultStore) ListByJob(ctx context.Context, tx *Tx, jobID model.JobID) ([]*model.StepResult, error) {
	query, args, err := s.db.From(stepResultsTable).
		Where(goqu.Ex{"step_result_job_id": jobID}).
		Order(goqu.I("step_result_created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building step result list query: %w", err)
	}
	var results []*model.StepResult
	if err := s.db.execerFor(tx).SelectContext(ctx, &results, query, args...); err != nil {
		return nil, fmt.Errorf("error listing step results for job %s: %w", jobID, err)
	}
	return results, nil
}
