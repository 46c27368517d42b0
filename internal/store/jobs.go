package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/docflow/internal/model"
)

const jobsTable = "jobs"

// JobStore persists Job records.
type JobStore struct {
	db *DB
}

func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

const insertJobSQL = `
INSERT INTO jobs (
	job_id, job_source_type, job_source_path, job_source_url, job_name, job_status,
	job_current_step, job_data, job_config, job_tags, job_priority,
	job_created_at, job_started_at, job_completed_at, job_updated_at, job_error
) VALUES (
	:job_id, :job_source_type, :job_source_path, :job_source_url, :job_name, :job_status,
	:job_current_step, :job_data, :job_config, :job_tags, :job_priority,
	:job_created_at, :job_started_at, :job_completed_at, :job_updated_at, :job_error
)`

// Create inserts a new job. A non-nil tx runs the insert inside an existing
// transaction, or directly against the pool if nil.
func (s *JobStore) Create(ctx context.Context, tx *Tx, job *model.Job) error {
	if _, err := s.db.execerFor(tx).NamedExecContext(ctx, insertJobSQL, job); err != nil {
		return fmt.Errorf("error creating job %s: %w", job.ID, err)
	}
	return nil
}

const updateJobSQL = `
UPDATE jobs SET
	job_source_type = :job_source_type,
	job_source_path = :job_source_path,
	job_source_url = :job_source_url,
	job_name = :job_name,
	job_status = :job_status,
	job_current_step = :job_current_step,
	job_data = :job_data,
	job_config = :job_config,
	job_tags = :job_tags,
	job_priority = :job_priority,
	job_started_at = :job_started_at,
	job_completed_at = :job_completed_at,
	job_updated_at = :job_updated_at,
	job_error = :job_error
WHERE job_id = :job_id`

// Update overwrites an existing job row with job's current values.
func (s *JobStore) Update(ctx context.Context, tx *Tx, job *model.Job) error {
	result, err := s.db.execerFor(tx).NamedExecContext(ctx, updateJobSQL, job)
	if err != nil {
		return fmt.Errorf("error updating job %s: %w", job.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking rows affected updating job %s: %w", job.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Read fetches a job by id, without its history (see ReadWithHistory).
func (s *JobStore) Read(ctx context.Context, tx *Tx, id model.JobID) (*model.Job, error) {
	query, args, err := s.db.From(jobsTable).Where(goqu.Ex{"job_id": id}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building job read query: %w", err)
	}
	job := &model.Job{}
	if err := s.db.execerFor(tx).GetContext(ctx, job, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading job %s: %w", id, err)
	}
	return job, nil
}

// Delete removes a job; FK cascade removes its step_results and artifacts.
func (s *JobStore) Delete(ctx context.Context, tx *Tx, id model.JobID) error {
	query, args, err := s.db.Delete(jobsTable).Where(goqu.Ex{"job_id": id}).ToSQL()
	if err != nil {
		return fmt.Errorf("error building job delete query: %w", err)
	}
	if _, err := s.db.execerFor(tx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("error deleting job %s: %w", id, err)
	}
	return nil
}

// ListByStatus returns jobs with the given status ordered (priority DESC,
// created_at ASC), the pickup order the orchestrator's poll loop uses.
func (s *JobStore) ListByStatus(ctx context.Context, tx *Tx, status model.JobStatus) ([]*model.Job, error) {
	ds := s.db.From(jobsTable).
		Where(goqu.Ex{"job_status": status}).
		Order(goqu.I("job_priority").Desc(), goqu.I("job_created_at").Asc())
	return s.listIn(ctx, tx, ds)
}

// List returns every job ordered (priority DESC, created_at ASC).
func (s *JobStore) List(ctx context.Context, tx *Tx) ([]*model.Job, error) {
	ds := s.db.From(jobsTable).Order(goqu.I("job_priority").Desc(), goqu.I("job_created_at").Asc())
	return s.listIn(ctx, tx, ds)
}

func (s *JobStore) listIn(ctx context.Context, tx *Tx, ds *goqu.SelectDataset) ([]*model.Job, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building job list query: %w", err)
	}
	var jobs []*model.Job
	if err := s.db.execerFor(tx).SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("error listing jobs: %w", err)
	}
	return jobs, nil
}
