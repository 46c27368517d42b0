package model

import (
	"database/sql/driver"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// StepStatus is the lifecycle of one StepResult.
type StepStatus string

const (
	StepStatusPending       StepStatus = "pending"
	StepStatusRunning       StepStatus = "running"
	StepStatusAwaitingInput StepStatus = "awaiting_input"
	StepStatusCompleted     StepStatus = "completed"
	StepStatusFailed        StepStatus = "failed"
	StepStatusSkipped       StepStatus = "skipped"
	StepStatusReverted      StepStatus = "reverted"
)

var validStepStatuses = map[StepStatus]bool{
	StepStatusPending:       true,
	StepStatusRunning:       true,
	StepStatusAwaitingInput: true,
	StepStatusCompleted:     true,
	StepStatusFailed:        true,
	StepStatusSkipped:       true,
	StepStatusReverted:      true,
}

func (s StepStatus) Valid() bool { return validStepStatuses[s] }

func (s StepStatus) String() string { return string(s) }

func (s *StepStatus) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return err
	}
	*s = StepStatus(str)
	return nil
}

func (s StepStatus) Value() (driver.Value, error) { return string(s), nil }

// StepResult is one execution of one processor against one job.
type StepResult struct {
	ID                 StepResultID `db:"step_result_id" json:"id"`
	JobID              JobID        `db:"step_result_job_id" json:"job_id"`
	StepName           string       `db:"step_result_step_name" json:"step_name"`
	Status             StepStatus   `db:"step_result_status" json:"status"`
	StartedAt          *Time        `db:"step_result_started_at" json:"started_at,omitempty"`
	EndedAt            *Time        `db:"step_result_ended_at" json:"ended_at,omitempty"`
	OutputData         JSONMap      `db:"step_result_output_data" json:"output_data"`
	Error              string       `db:"step_result_error" json:"error,omitempty"`
	ErrorTraceback     string       `db:"step_result_error_traceback" json:"error_traceback,omitempty"`
	AwaitingInputSince *Time        `db:"step_result_awaiting_input_since" json:"awaiting_input_since,omitempty"`
	UserInput          JSONMap      `db:"step_result_user_input" json:"user_input,omitempty"`
	RevertedAt         *Time        `db:"step_result_reverted_at" json:"reverted_at,omitempty"`
	RevertError        string       `db:"step_result_revert_error" json:"revert_error,omitempty"`
	CreatedAt          Time         `db:"step_result_created_at" json:"created_at"`

	// Artifacts is the ordered list of artifacts this step produced. Not a
	// column: reconstructed from the artifacts table by creation order.
	Artifacts []*Artifact `db:"-" json:"artifacts"`
}

// StepResultList is an ordered slice of StepResult pointers.
type StepResultList []*StepResult

// NewStepResult constructs a pending StepResult for the given job and step.
func NewStepResult(jobID JobID, stepName string, now Time) *StepResult {
	return &StepResult{
		ID:         NewStepResultID(),
		JobID:      jobID,
		StepName:   stepName,
		Status:     StepStatusPending,
		OutputData: JSONMap{},
		CreatedAt:  now,
	}
}

// Validate checks the step result's required fields.
func (r *StepResult) Validate() error {
	var result *multierror.Error
	if !r.ID.Valid() {
		result = multierror.Append(result, errors.New("error step result id must be set"))
	}
	if !r.JobID.Valid() {
		result = multierror.Append(result, errors.New("error step result job id must be set"))
	}
	if r.StepName == "" {
		result = multierror.Append(result, errors.New("error step result step_name must be set"))
	}
	if !r.Status.Valid() {
		result = multierror.Append(result, errors.New("error step result status is invalid"))
	}
	return result.ErrorOrNil()
}

// AllArtifactsReversible reports whether every artifact produced by this
// step can still be reverted. A step result is only eligible for revert when
// it completed and all of its artifacts are reversible.
func (r *StepResult) AllArtifactsReversible() bool {
	for _, a := range r.Artifacts {
		if !a.IsReversible() {
			return false
		}
	}
	return true
}

// CanRevert reports whether this step result is eligible for revert_to_step/revert_all.
func (r *StepResult) CanRevert() bool {
	return r.Status == StepStatusCompleted && r.AllArtifactsReversible()
}
