package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/pipeline"
)

// Pipeline is the narrow view of internal/pipeline.Pipeline the HTTP surface
// drives; it names only the public job commands, letting the handlers
// below be tested against a fake.
type Pipeline interface {
	CreateJob(ctx context.Context, in pipeline.CreateJobInput) (*model.Job, error)
	GetJob(ctx context.Context, id model.JobID) (*model.Job, error)
	ListJobs(ctx context.Context, status *model.JobStatus, limit, offset int) ([]*model.Job, error)
	DeleteJob(ctx context.Context, id model.JobID, revertFirst bool) error
	ProcessJob(ctx context.Context, id model.JobID) (*model.Job, error)
	ResumeJob(ctx context.Context, id model.JobID, userInput map[string]interface{}) (*model.StepResult, error)
	CancelJob(ctx context.Context, id model.JobID) (*model.Job, error)
	RevertJob(ctx context.Context, id model.JobID, toStep string) (*model.Job, error)
}

// CreateJobRequest is the accepted shape for POST /jobs, a narrowed view of
// pipeline.CreateJobInput that skips fields only an internal caller sets.
type CreateJobRequest struct {
	SourceType model.SourceType `json:"source_type"`
	SourcePath string           `json:"source_path,omitempty"`
	SourceURL  string           `json:"source_url,omitempty"`
	Name       string           `json:"name"`
	Config     model.JSONMap    `json:"config,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	Priority   int              `json:"priority,omitempty"`
}

// resumeRequest is the body of POST /jobs/{id}/resume.
type resumeRequest struct {
	Input map[string]interface{} `json:"input"`
}

// revertRequest is the body of POST /jobs/{id}/revert; an empty ToStep
// reverts every completed step.
type revertRequest struct {
	ToStep string `json:"to_step,omitempty"`
}

// JobAPI handles the job CRUD and command routes.
type JobAPI struct {
	base
	pipeline Pipeline
}

// NewJobAPI constructs a JobAPI over pipeline.
func NewJobAPI(pipeline Pipeline, logFactory logger.LogFactory) *JobAPI {
	return &JobAPI{base: base{Log: logFactory("JobAPI")}, pipeline: pipeline}
}

func jobIDFromPath(r *http.Request) model.JobID {
	return model.JobID(chi.URLParam(r, "jobID"))
}

// Create handles POST /jobs.
func (a *JobAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.Error(w, r, gerror.Newf(gerror.CodeInvalidInput, "error decoding request body: %s", err))
		return
	}
	job, err := a.pipeline.CreateJob(r.Context(), pipeline.CreateJobInput{
		SourceType: req.SourceType,
		SourcePath: req.SourcePath,
		SourceURL:  req.SourceURL,
		Name:       req.Name,
		Config:     req.Config,
		Tags:       req.Tags,
		Priority:   req.Priority,
	})
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.Created(w, r, job)
}

// Get handles GET /jobs/{jobID}.
func (a *JobAPI) Get(w http.ResponseWriter, r *http.Request) {
	job, err := a.pipeline.GetJob(r.Context(), jobIDFromPath(r))
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, job)
}

// List handles GET /jobs?status=&limit=&offset=.
func (a *JobAPI) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var status *model.JobStatus
	if s := q.Get("status"); s != "" {
		js := model.JobStatus(s)
		status = &js
	}
	limit := parseIntOr(q.Get("limit"), 0)
	offset := parseIntOr(q.Get("offset"), 0)

	jobs, err := a.pipeline.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, jobs)
}

func parseIntOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// Delete handles DELETE /jobs/{jobID}?revert_first=true|false, defaulting
// to true.
func (a *JobAPI) Delete(w http.ResponseWriter, r *http.Request) {
	revertFirst := true
	if v := r.URL.Query().Get("revert_first"); v != "" {
		revertFirst = v != "false"
	}
	if err := a.pipeline.DeleteJob(r.Context(), jobIDFromPath(r), revertFirst); err != nil {
		a.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Process handles POST /jobs/{jobID}/process: a blocking single-job drive.
func (a *JobAPI) Process(w http.ResponseWriter, r *http.Request) {
	job, err := a.pipeline.ProcessJob(r.Context(), jobIDFromPath(r))
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, job)
}

// Resume handles POST /jobs/{jobID}/resume.
func (a *JobAPI) Resume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.Error(w, r, gerror.Newf(gerror.CodeInvalidInput, "error decoding request body: %s", err))
		return
	}
	result, err := a.pipeline.ResumeJob(r.Context(), jobIDFromPath(r), req.Input)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, result)
}

// Cancel handles POST /jobs/{jobID}/cancel.
func (a *JobAPI) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := a.pipeline.CancelJob(r.Context(), jobIDFromPath(r))
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, job)
}

// Revert handles POST /jobs/{jobID}/revert.
func (a *JobAPI) Revert(w http.ResponseWriter, r *http.Request) {
	var req revertRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.Error(w, r, gerror.Newf(gerror.CodeInvalidInput, "error decoding request body: %s", err))
			return
		}
	}
	job, err := a.pipeline.RevertJob(r.Context(), jobIDFromPath(r), req.ToStep)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.OK(w, r, job)
}
