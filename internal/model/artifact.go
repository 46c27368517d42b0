package model

import (
	"database/sql/driver"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ArtifactType enumerates the kinds of side effect an Artifact can record.
type ArtifactType string

const (
	ArtifactTypeFileCreate        ArtifactType = "file_create"
	ArtifactTypeFileModify        ArtifactType = "file_modify"
	ArtifactTypeFileDelete        ArtifactType = "file_delete"
	ArtifactTypeFileMove          ArtifactType = "file_move"
	ArtifactTypeFrontmatterUpdate ArtifactType = "frontmatter_update"
	ArtifactTypeExternalAPICreate ArtifactType = "external_api_create"
	ArtifactTypeExternalAPIModify ArtifactType = "external_api_modify"
	ArtifactTypeMetadata          ArtifactType = "metadata"
)

func (t *ArtifactType) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*t = ArtifactType(s)
	return nil
}

func (t ArtifactType) Value() (driver.Value, error) { return string(t), nil }

// ArtifactStatus tracks where an Artifact is in its own lifecycle.
type ArtifactStatus string

const (
	ArtifactStatusPending      ArtifactStatus = "pending"
	ArtifactStatusCreated      ArtifactStatus = "created"
	ArtifactStatusReverted     ArtifactStatus = "reverted"
	ArtifactStatusFailed       ArtifactStatus = "failed"
	ArtifactStatusOrphaned     ArtifactStatus = "orphaned"
	ArtifactStatusIrreversible ArtifactStatus = "irreversible"
)

func (s *ArtifactStatus) Scan(src interface{}) error {
	str, err := scanString(src)
	if err != nil {
		return err
	}
	*s = ArtifactStatus(str)
	return nil
}

func (s ArtifactStatus) Value() (driver.Value, error) { return string(s), nil }

// Reversibility describes whether/how an artifact's effect can be undone.
type Reversibility string

const (
	ReversibilityFully        Reversibility = "fully"
	ReversibilityPartially    Reversibility = "partially"
	ReversibilityIrreversible Reversibility = "irreversible"
	ReversibilityManual       Reversibility = "manual"
)

func (r *Reversibility) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*r = Reversibility(s)
	return nil
}

func (r Reversibility) Value() (driver.Value, error) { return string(r), nil }

// Artifact is one tracked side effect of a step.
type Artifact struct {
	ID            ArtifactID     `db:"artifact_id" json:"id"`
	JobID         JobID          `db:"artifact_job_id" json:"job_id"`
	StepResultID  StepResultID   `db:"artifact_step_result_id" json:"step_result_id"`
	StepName      string         `db:"artifact_step_name" json:"step_name"`
	ArtifactType  ArtifactType   `db:"artifact_type" json:"artifact_type"`
	Target        string         `db:"artifact_target" json:"target"`
	BeforeState   JSONMap        `db:"artifact_before_state" json:"before_state,omitempty"`
	AfterState    JSONMap        `db:"artifact_after_state" json:"after_state,omitempty"`
	Metadata      JSONMap        `db:"artifact_metadata" json:"metadata,omitempty"`
	Status        ArtifactStatus `db:"artifact_status" json:"status"`
	Reversibility Reversibility  `db:"artifact_reversibility" json:"reversibility"`
	CreatedAt     Time           `db:"artifact_created_at" json:"created_at"`
	UpdatedAt     Time           `db:"artifact_updated_at" json:"updated_at"`
	Error         string         `db:"artifact_error" json:"error,omitempty"`
}

// NewArtifact constructs a pending Artifact.
func NewArtifact(jobID JobID, stepResultID StepResultID, stepName string, artifactType ArtifactType, target string, reversibility Reversibility, now Time) *Artifact {
	return &Artifact{
		ID:            NewArtifactID(),
		JobID:         jobID,
		StepResultID:  stepResultID,
		StepName:      stepName,
		ArtifactType:  artifactType,
		Target:        target,
		BeforeState:   JSONMap{},
		AfterState:    JSONMap{},
		Metadata:      JSONMap{},
		Status:        ArtifactStatusPending,
		Reversibility: reversibility,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Validate checks the artifact's required fields.
func (a *Artifact) Validate() error {
	var result *multierror.Error
	if !a.ID.Valid() {
		result = multierror.Append(result, errors.New("error artifact id must be set"))
	}
	if !a.JobID.Valid() {
		result = multierror.Append(result, errors.New("error artifact job id must be set"))
	}
	if a.Target == "" {
		result = multierror.Append(result, errors.New("error artifact target must be set"))
	}
	return result.ErrorOrNil()
}

// IsReversible reports whether the artifact can currently be undone:
// "an artifact is reversible iff status = created ∧ reversibility ≠ irreversible".
func (a *Artifact) IsReversible() bool {
	return a.Status == ArtifactStatusCreated && a.Reversibility != ReversibilityIrreversible
}
