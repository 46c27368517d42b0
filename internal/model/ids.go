package model

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ids are prefixed opaque strings ("job:<uuid>", "step_result:<uuid>", "artifact:<uuid>")
// so a log line or error message unambiguously identifies what kind of resource
// an id refers to without needing extra context.

// JobID uniquely identifies a Job.
type JobID string

// NewJobID generates a fresh JobID.
func NewJobID() JobID { return JobID("job:" + uuid.NewString()) }

// Valid reports whether id is well-formed.
func (id JobID) Valid() bool { return strings.HasPrefix(string(id), "job:") }

func (id JobID) String() string { return string(id) }

func (id *JobID) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*id = JobID(s)
	return nil
}

func (id JobID) Value() (driver.Value, error) { return string(id), nil }

// StepResultID uniquely identifies a StepResult.
type StepResultID string

// NewStepResultID generates a fresh StepResultID.
func NewStepResultID() StepResultID { return StepResultID("step_result:" + uuid.NewString()) }

func (id StepResultID) Valid() bool { return strings.HasPrefix(string(id), "step_result:") }

func (id StepResultID) String() string { return string(id) }

func (id *StepResultID) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*id = StepResultID(s)
	return nil
}

func (id StepResultID) Value() (driver.Value, error) { return string(id), nil }

// ArtifactID uniquely identifies an Artifact.
type ArtifactID string

// NewArtifactID generates a fresh ArtifactID.
func NewArtifactID() ArtifactID { return ArtifactID("artifact:" + uuid.NewString()) }

func (id ArtifactID) Valid() bool { return strings.HasPrefix(string(id), "artifact:") }

func (id ArtifactID) String() string { return string(id) }

func (id *ArtifactID) Scan(src interface{}) error {
	s, err := scanString(src)
	if err != nil {
		return err
	}
	*id = ArtifactID(s)
	return nil
}

func (id ArtifactID) Value() (driver.Value, error) { return string(id), nil }

func scanString(src interface{}) (string, error) {
	if src == nil {
		return "", nil
	}
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("unsupported type for id column: %[1]T (%[1]v)", src)
	}
}
