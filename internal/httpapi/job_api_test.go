package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/httpapi"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/pipeline"
)

// fakePipeline implements httpapi.Pipeline and httpapi.EventSubscriber
// directly, rather than standing up a full server/store.
type fakePipeline struct {
	jobs      map[model.JobID]*model.Job
	createErr error
	getErr    error
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{jobs: map[model.JobID]*model.Job{}}
}

func (f *fakePipeline) CreateJob(ctx context.Context, in pipeline.CreateJobInput) (*model.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	job := model.NewJob(in.SourceType, in.Name, model.NewTime(time.Now()))
	job.SourcePath = in.SourcePath
	job.Tags = in.Tags
	job.Priority = in.Priority
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakePipeline) GetJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	job, ok := f.jobs[id]
	if !ok {
		return nil, gerror.Newf(gerror.CodeNotFound, "error job %s not found", id)
	}
	return job, nil
}

func (f *fakePipeline) ListJobs(ctx context.Context, status *model.JobStatus, limit, offset int) ([]*model.Job, error) {
	var out []*model.Job
	for _, j := range f.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (f *fakePipeline) DeleteJob(ctx context.Context, id model.JobID, revertFirst bool) error {
	if _, ok := f.jobs[id]; !ok {
		return gerror.Newf(gerror.CodeNotFound, "error job %s not found", id)
	}
	delete(f.jobs, id)
	return nil
}

func (f *fakePipeline) ProcessJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	return f.GetJob(ctx, id)
}

func (f *fakePipeline) ResumeJob(ctx context.Context, id model.JobID, userInput map[string]interface{}) (*model.StepResult, error) {
	if _, ok := f.jobs[id]; !ok {
		return nil, gerror.Newf(gerror.CodeNotFound, "error job %s not found", id)
	}
	return &model.StepResult{JobID: id, Status: model.StepStatusCompleted, UserInput: userInput}, nil
}

func (f *fakePipeline) CancelJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	job, err := f.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobStatusCancelled
	return job, nil
}

func (f *fakePipeline) RevertJob(ctx context.Context, id model.JobID, toStep string) (*model.Job, error) {
	return f.GetJob(ctx, id)
}

func (f *fakePipeline) Subscribe(sub pipeline.Subscriber) {}

func newTestRouter(f *fakePipeline) chi.Router {
	return httpapi.NewRouter(httpapi.Deps{Jobs: f, Events: f}, logger.Discard())
}

func TestCreateJobReturns201(t *testing.T) {
	f := newFakePipeline()
	r := newTestRouter(f)

	body, _ := json.Marshal(httpapi.CreateJobRequest{SourceType: model.SourceTypeManual, Name: "doc"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var job model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	require.Equal(t, "doc", job.Name)
	require.Len(t, f.jobs, 1)
}

func TestGetUnknownJobReturns404(t *testing.T) {
	f := newFakePipeline()
	r := newTestRouter(f)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job:does-not-exist/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobReturnsUpdatedStatus(t *testing.T) {
	f := newFakePipeline()
	job := model.NewJob(model.SourceTypeManual, "doc", model.NewTime(time.Now()))
	f.jobs[job.ID] = job

	r := newTestRouter(f)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+string(job.ID)+"/cancel", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, model.JobStatusCancelled, got.Status)
}

func TestResumeJobPassesInputThrough(t *testing.T) {
	f := newFakePipeline()
	job := model.NewJob(model.SourceTypeManual, "doc", model.NewTime(time.Now()))
	f.jobs[job.ID] = job

	r := newTestRouter(f)
	body, _ := json.Marshal(map[string]interface{}{"input": map[string]interface{}{"approved": true}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+string(job.ID)+"/resume", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result model.StepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, true, result.UserInput["approved"])
}

func TestListJobsReturnsAll(t *testing.T) {
	f := newFakePipeline()
	job := model.NewJob(model.SourceTypeManual, "doc", model.NewTime(time.Now()))
	f.jobs[job.ID] = job

	r := newTestRouter(f)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []*model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
}
