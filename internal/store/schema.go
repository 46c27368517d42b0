package store

// schemaSQL bootstraps the three persistence tables and their indices. It
// is applied idempotently on every Open call (CREATE TABLE / INDEX IF NOT
// EXISTS); a single-binary deployment has no migration history to replay.
//
// History and per-step Artifacts are modeled as real relational tables
// (step_results, artifacts) rather than JSON blobs nested in jobs, since
// the index list below only makes sense against real columns; Job.History
// and StepResult.Artifacts are reconstructed at read time and tagged
// `db:"-"` in internal/model.
const schemaSQL = `
PRAGMA foreign_keys = ON;
PRAGMA journal_mode = WAL;

CREATE TABLE IF NOT EXISTS jobs (
	job_id           TEXT PRIMARY KEY,
	job_source_type  TEXT NOT NULL,
	job_source_path  TEXT NOT NULL DEFAULT '',
	job_source_url   TEXT NOT NULL DEFAULT '',
	job_name         TEXT NOT NULL,
	job_status       TEXT NOT NULL,
	job_current_step TEXT NOT NULL DEFAULT '',
	job_data         TEXT NOT NULL DEFAULT '{}',
	job_config       TEXT NOT NULL DEFAULT '{}',
	job_tags         TEXT NOT NULL DEFAULT '[]',
	job_priority     INTEGER NOT NULL DEFAULT 0,
	job_created_at   TEXT NOT NULL,
	job_started_at   TEXT,
	job_completed_at TEXT,
	job_updated_at   TEXT NOT NULL,
	job_error        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (job_status);
CREATE INDEX IF NOT EXISTS idx_jobs_priority_created ON jobs (job_priority DESC, job_created_at ASC);

CREATE TABLE IF NOT EXISTS step_results (
	step_result_id          TEXT PRIMARY KEY,
	step_result_job_id      TEXT NOT NULL REFERENCES jobs (job_id) ON DELETE CASCADE,
	step_result_step_name   TEXT NOT NULL,
	step_result_status      TEXT NOT NULL,
	step_result_started_at  TEXT,
	step_result_ended_at    TEXT,
	step_result_output_data TEXT NOT NULL DEFAULT '{}',
	step_result_error             TEXT NOT NULL DEFAULT '',
	step_result_error_traceback   TEXT NOT NULL DEFAULT '',
	step_result_awaiting_input_since TEXT,
	step_result_user_input        TEXT NOT NULL DEFAULT '{}',
	step_result_reverted_at       TEXT,
	step_result_revert_error      TEXT NOT NULL DEFAULT '',
	step_result_created_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_step_results_job_id ON step_results (step_result_job_id);
CREATE INDEX IF NOT EXISTS idx_step_results_step_name ON step_results (step_result_step_name);
CREATE INDEX IF NOT EXISTS idx_step_results_status ON step_results (step_result_status);

CREATE TABLE IF NOT EXISTS artifacts (
	artifact_id             TEXT PRIMARY KEY,
	artifact_job_id         TEXT NOT NULL REFERENCES jobs (job_id) ON DELETE CASCADE,
	artifact_step_result_id TEXT NOT NULL REFERENCES step_results (step_result_id) ON DELETE CASCADE,
	artifact_step_name      TEXT NOT NULL,
	artifact_type           TEXT NOT NULL,
	artifact_target         TEXT NOT NULL,
	artifact_before_state   TEXT NOT NULL DEFAULT '{}',
	artifact_after_state    TEXT NOT NULL DEFAULT '{}',
	artifact_metadata       TEXT NOT NULL DEFAULT '{}',
	artifact_status         TEXT NOT NULL,
	artifact_reversibility  TEXT NOT NULL,
	artifact_created_at     TEXT NOT NULL,
	artifact_updated_at     TEXT NOT NULL,
	artifact_error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_artifacts_job_id ON artifacts (artifact_job_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_step_name ON artifacts (artifact_step_name);
CREATE INDEX IF NOT EXISTS idx_artifacts_status ON artifacts (artifact_status);
`
