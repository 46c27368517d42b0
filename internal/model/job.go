package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// JobStatus is the Job lifecycle state machine.
type JobStatus string

const (
	JobStatusPending       JobStatus = "pending"
	JobStatusProcessing    JobStatus = "processing"
	JobStatusAwaitingInput JobStatus = "awaiting_input"
	JobStatusCompleted     JobStatus = "completed"
	JobStatusFailed        JobStatus = "failed"
	JobStatusCancelled     JobStatus = "cancelled"
	JobStatusReverting     JobStatus = "reverting"
	JobStatusReverted      JobStatus = "reverted"
)

var validJobStatuses = map[JobStatus]bool{
	JobStatusPending:       true,
	JobStatusProcessing:    true,
	JobStatusAwaitingInput: true,
	JobStatusCompleted:     true,
	JobStatusFailed:        true,
	JobStatusCancelled:     true,
	JobStatusReverting:     true,
	JobStatusReverted:      true,
}

// Valid reports whether s is a known status value.
func (s JobStatus) Valid() bool { return validJobStatuses[s] }

func (s JobStatus) String() string { return string(s) }

// IsTerminal reports whether s is one of the job's terminal states.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusReverted:
		return true
	default:
		return false
	}
}

func (s *JobStatus) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return err
	}
	*s = JobStatus(str)
	return nil
}

func (s JobStatus) Value() (driver.Value, error) { return string(s), nil }

// SourceType records where a Job's originating ingest event came from.
type SourceType string

const (
	SourceTypeFile   SourceType = "file"
	SourceTypeURL    SourceType = "url"
	SourceTypeAPI    SourceType = "api"
	SourceTypeManual SourceType = "manual"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeFile, SourceTypeURL, SourceTypeAPI, SourceTypeManual:
		return true
	default:
		return false
	}
}

func (s *SourceType) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return err
	}
	*s = SourceType(str)
	return nil
}

func (s SourceType) Value() (driver.Value, error) { return string(s), nil }

// Job is a unit of work flowing through the pipeline.
type Job struct {
	ID          JobID      `db:"job_id" json:"id"`
	SourceType  SourceType `db:"job_source_type" json:"source_type"`
	SourcePath  string     `db:"job_source_path" json:"source_path,omitempty"`
	SourceURL   string     `db:"job_source_url" json:"source_url,omitempty"`
	Name        string     `db:"job_name" json:"name"`
	Status      JobStatus  `db:"job_status" json:"status"`
	CurrentStep string     `db:"job_current_step" json:"current_step,omitempty"`

	// Data is the mutable data bag shared between steps.
	Data JSONMap `db:"job_data" json:"data"`
	// Config holds per-job configuration overrides keyed by processor name.
	Config JSONMap `db:"job_config" json:"config"`
	// History is the ordered, (mostly) append-only list of step executions.
	// It is not a column on the jobs table: the store reconstructs it from
	// the step_results table (keyed by job id, ordered by creation time) on
	// every read, since it must also be independently queryable/indexable
	// rather than opaque JSON.
	History StepResultList `db:"-" json:"history"`

	Tags     StringSlice `db:"job_tags" json:"tags"`
	Priority int         `db:"job_priority" json:"priority"`

	CreatedAt   Time  `db:"job_created_at" json:"created_at"`
	StartedAt   *Time `db:"job_started_at" json:"started_at,omitempty"`
	CompletedAt *Time `db:"job_completed_at" json:"completed_at,omitempty"`
	UpdatedAt   Time  `db:"job_updated_at" json:"updated_at"`

	Error string `db:"job_error" json:"error,omitempty"`
}

// NewJob constructs a pending Job with sane defaults.
func NewJob(sourceType SourceType, name string, now Time) *Job {
	return &Job{
		ID:         NewJobID(),
		SourceType: sourceType,
		Name:       name,
		Status:     JobStatusPending,
		Data:       JSONMap{},
		Config:     JSONMap{},
		History:    nil,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks the job's required fields and invariants.
func (j *Job) Validate() error {
	var result *multierror.Error
	if !j.ID.Valid() {
		result = multierror.Append(result, errors.New("error job id must be set"))
	}
	if !j.SourceType.Valid() {
		result = multierror.Append(result, errors.New("error job source_type is invalid"))
	}
	if !j.Status.Valid() {
		result = multierror.Append(result, errors.New("error job status is invalid"))
	}
	if j.CreatedAt.IsZero() {
		result = multierror.Append(result, errors.New("error job created_at must be set"))
	}
	hasCurrentStep := j.CurrentStep != ""
	wantsCurrentStep := j.Status == JobStatusProcessing || j.Status == JobStatusAwaitingInput
	if hasCurrentStep != wantsCurrentStep {
		result = multierror.Append(result, errors.Errorf(
			"error current_step must be set iff status is processing or awaiting_input (status=%s, current_step=%q)",
			j.Status, j.CurrentStep))
	}
	return result.ErrorOrNil()
}

// CompletedSteps returns the set of step names whose most recent StepResult
// in history has status completed. A step reverted and re-run is not
// included: membership is decided by the latest result per step
// name, not "ever completed".
func (j *Job) CompletedSteps() map[string]bool {
	latestStatus := make(map[string]StepStatus)
	for _, result := range j.History {
		latestStatus[result.StepName] = result.Status
	}
	completed := make(map[string]bool)
	for name, status := range latestStatus {
		if status == StepStatusCompleted {
			completed[name] = true
		}
	}
	return completed
}

// LatestResultFor returns the most recent StepResult recorded for stepName, or nil.
func (j *Job) LatestResultFor(stepName string) *StepResult {
	for i := len(j.History) - 1; i >= 0; i-- {
		if j.History[i].StepName == stepName {
			return j.History[i]
		}
	}
	return nil
}

// AppendResult appends result to history. History is append-only except when
// an existing entry is explicitly marked reverted via MarkReverted.
func (j *Job) AppendResult(result *StepResult) {
	j.History = append(j.History, result)
}

// MarkReverted finds the most recent StepResult named stepName and marks it reverted.
func (j *Job) MarkReverted(stepName string, now Time) error {
	result := j.LatestResultFor(stepName)
	if result == nil {
		return fmt.Errorf("error no step result found for step %q", stepName)
	}
	result.Status = StepStatusReverted
	result.RevertedAt = &now
	return nil
}

// TransitionStarted marks the job's first transition out of pending.
func (j *Job) TransitionStarted(now Time) {
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
}

// TransitionTerminal sets CompletedAt if status is one of the terminal states
// and it hasn't already been recorded.
func (j *Job) TransitionTerminal(status JobStatus, now Time) {
	j.Status = status
	if status.IsTerminal() && j.CompletedAt == nil {
		j.CompletedAt = &now
	}
}
