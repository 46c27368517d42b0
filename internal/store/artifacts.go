package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/docflow/internal/model"
)

const artifactsTable = "artifacts"

// ArtifactStore persists Artifact rows. Writes are upsert-by-id.
type ArtifactStore struct {
	db *DB
}

func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

const insertArtifactSQL = `
INSERT INTO artifacts (
	artifact_id, artifact_job_id, artifact_step_result_id, artifact_step_name,
	artifact_type, artifact_target, artifact_before_state, artifact_after_state,
	artifact_metadata, artifact_status, artifact_reversibility,
	artifact_created_at, artifact_updated_at, artifact_error
) VALUES (
	:artifact_id, :artifact_job_id, :artifact_step_result_id, :artifact_step_name,
	:artifact_type, :artifact_target, :artifact_before_state, :artifact_after_state,
	:artifact_metadata, :artifact_status, :artifact_reversibility,
	:artifact_created_at, :artifact_updated_at, :artifact_error
) ON CONFLICT (artifact_id) DO UPDATE SET
	artifact_step_result_id = excluded.artifact_step_result_id,
	artifact_step_name      = excluded.artifact_step_name,
	artifact_type           = excluded.artifact_type,
	artifact_target         = excluded.artifact_target,
	artifact_before_state   = excluded.artifact_before_state,
	artifact_after_state    = excluded.artifact_after_state,
	artifact_metadata       = excluded.artifact_metadata,
	artifact_status         = excluded.artifact_status,
	artifact_reversibility  = excluded.artifact_reversibility,
	artifact_updated_at     = excluded.artifact_updated_at,
	artifact_error          = excluded.artifact_error`

// Create upserts artifact by id.
func (s *ArtifactStore) Create(artifact *model.Artifact) error {
	return s.Upsert(context.Background(), nil, artifact)
}

// Upsert inserts artifact, or overwrites the existing row with the same id.
func (s *ArtifactStore) Upsert(ctx context.Context, tx *Tx, artifact *model.Artifact) error {
	if _, err := s.db.execerFor(tx).NamedExecContext(ctx, insertArtifactSQL, artifact); err != nil {
		return fmt.Errorf("error upserting artifact %s: %w", artifact.ID, err)
	}
	return nil
}

const markArtifactStatusSQL = `
UPDATE artifacts SET artifact_status = ?, artifact_error = ?, artifact_updated_at = ?
WHERE artifact_id = ?`

// MarkStatus atomically updates status and error on one artifact. It
// satisfies the narrow execctx.ArtifactStore interface, which carries no
// clock of its own; callers that need a deterministic timestamp should use
// MarkStatusCtx directly.
func (s *ArtifactStore) MarkStatus(id model.ArtifactID, status model.ArtifactStatus, errMsg string) error {
	return s.MarkStatusCtx(context.Background(), nil, id, status, errMsg, model.NewTime(time.Now()))
}

// MarkStatusCtx is the context/tx-aware form of MarkStatus.
func (s *ArtifactStore) MarkStatusCtx(ctx context.Context, tx *Tx, id model.ArtifactID, status model.ArtifactStatus, errMsg string, updatedAt model.Time) error {
	statusVal, err := status.Value()
	if err != nil {
		return err
	}
	updatedVal, err := updatedAt.Value()
	if err != nil {
		return err
	}
	if _, err := s.db.execerFor(tx).ExecContext(ctx, markArtifactStatusSQL, statusVal, errMsg, updatedVal, string(id)); err != nil {
		return fmt.Errorf("error marking artifact %s status: %w", id, err)
	}
	return nil
}

// Read fetches an artifact by id.
func (s *ArtifactStore) Read(ctx context.Context, tx *Tx, id model.ArtifactID) (*model.Artifact, error) {
	query, args, err := s.db.From(artifactsTable).Where(goqu.Ex{"artifact_id": id}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building artifact read query: %w", err)
	}
	artifact := &model.Artifact{}
	if err := s.db.execerFor(tx).GetContext(ctx, artifact, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error reading artifact %s: %w", id, err)
	}
	return artifact, nil
}

// ListByJob returns every artifact for jobID in creation-time ASC order.
func (s *ArtifactStore) ListByJob(ctx context.Context, tx *Tx, jobID model.JobID) ([]*model.Artifact, error) {
	query, args, err := s.db.From(artifactsTable).
		Where(goqu.Ex{"artifact_job_id": jobID}).
		Order(goqu.I("artifact_created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building artifact list query: %w", err)
	}
	var artifacts []*model.Artifact
	if err := s.db.execerFor(tx).SelectContext(ctx, &artifacts, query, args...); err != nil {
		return nil, fmt.Errorf("error listing artifacts for job %s: %w", jobID, err)
	}
	return artifacts, nil
}

// ListByStepResult returns every artifact for a given step result in
// creation-time ASC order, which matches the operation call order within
// the step. Reversal walks that order in reverse.
func (s *ArtifactStore) ListByStepResult(ctx context.Context, tx *Tx, stepResultID model.StepResultID) ([]*model.Artifact, error) {
	query, args, err := s.db.From(artifactsTable).
		Where(goqu.Ex{"artifact_step_result_id": stepResultID}).
		Order(goqu.I("artifact_created_at").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building artifact list-by-step-result query: %w", err)
	}
	var artifacts []*model.Artifact
	if err := s.db.execerFor(tx).SelectContext(ctx, &artifacts, query, args...); err != nil {
		return nil, fmt.Errorf("error listing artifacts for step result %s: %w", stepResultID, err)
	}
	return artifacts, nil
}

// ListReversibleByJob returns every artifact for jobID with status=created
// and reversibility != irreversible, ordered DESC (undo order).
func (s *ArtifactStore) ListReversibleByJob(ctx context.Context, tx *Tx, jobID model.JobID) ([]*model.Artifact, error) {
	query, args, err := s.db.From(artifactsTable).
		Where(
			goqu.Ex{"artifact_job_id": jobID, "artifact_status": model.ArtifactStatusCreated},
			goqu.C("artifact_reversibility").Neq(model.ReversibilityIrreversible),
		).
		Order(goqu.I("artifact_created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("error building reversible-artifacts query: %w", err)
	}
	var artifacts []*model.Artifact
	if err := s.db.execerFor(tx).SelectContext(ctx, &artifacts, query, args...); err != nil {
		return nil, fmt.Errorf("error listing reversible artifacts for job %s: %w", jobID, err)
	}
	return artifacts, nil
}
