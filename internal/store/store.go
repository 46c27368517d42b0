package store

import (
	"context"
	"fmt"

	"github.com/buildbeaver/docflow/internal/model"
)

// Store aggregates the three persistence tables and reconstructs the
// relational History/Artifacts fields that model.Job and model.StepResult
// keep as `db:"-"`.
type Store struct {
	DB          *DB
	Jobs        *JobStore
	StepResults *StepResultStore
	Artifacts   *ArtifactStore
}

// New wires the three table-level stores against db.
func New(db *DB) *Store {
	return &Store{
		DB:          db,
		Jobs:        NewJobStore(db),
		StepResults: NewStepResultStore(db),
		Artifacts:   NewArtifactStore(db),
	}
}

// ReadJob loads a job by id and reconstructs its History (and each history
// entry's Artifacts) from the step_results and artifacts tables.
func (s *Store) ReadJob(ctx context.Context, tx *Tx, id model.JobID) (*model.Job, error) {
	job, err := s.Jobs.Read(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, tx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobsByStatus loads jobs by status, each with History populated.
func (s *Store) ListJobsByStatus(ctx context.Context, tx *Tx, status model.JobStatus) ([]*model.Job, error) {
	jobs, err := s.Jobs.ListByStatus(ctx, tx, status)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := s.loadHistory(ctx, tx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// ListJobs loads every job with History populated.
func (s *Store) ListJobs(ctx context.Context, tx *Tx) ([]*model.Job, error) {
	jobs, err := s.Jobs.List(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := s.loadHistory(ctx, tx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *Store) loadHistory(ctx context.Context, tx *Tx, job *model.Job) error {
	results, err := s.StepResults.ListByJob(ctx, tx, job.ID)
	if err != nil {
		return fmt.Errorf("error loading history for job %s: %w", job.ID, err)
	}
	for _, result := range results {
		artifacts, err := s.Artifacts.ListByStepResult(ctx, tx, result.ID)
		if err != nil {
			return fmt.Errorf("error loading artifacts for step result %s: %w", result.ID, err)
		}
		result.Artifacts = artifacts
	}
	job.History = results
	return nil
}

// SaveStepResult persists either an insert or update of result, detected by
// whether it already exists in step_results.
func (s *Store) SaveStepResult(ctx context.Context, tx *Tx, result *model.StepResult) error {
	_, err := s.StepResults.Read(ctx, tx, result.ID)
	if err == ErrNotFound {
		return s.StepResults.Create(ctx, tx, result)
	}
	if err != nil {
		return err
	}
	return s.StepResults.Update(ctx, tx, result)
}

// DeleteJob removes job and (via FK cascade) its step results and artifacts.
func (s *Store) DeleteJob(ctx context.Context, tx *Tx, id model.JobID) error {
	return s.Jobs.Delete(ctx, tx, id)
}
