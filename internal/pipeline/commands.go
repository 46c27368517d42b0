package pipeline

import (
	"context"
	"fmt"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/model"
)

// CreateJobInput describes a new job to enqueue.
type CreateJobInput struct {
	SourceType model.SourceType
	SourcePath string
	SourceURL  string
	Name       string
	Config     model.JSONMap
	Tags       []string
	Priority   int
}

// CreateJob persists a new pending job and emits job_created.
func (p *Pipeline) CreateJob(ctx context.Context, in CreateJobInput) (*model.Job, error) {
	job := model.NewJob(in.SourceType, in.Name, p.now())
	job.SourcePath = in.SourcePath
	job.SourceURL = in.SourceURL
	job.Priority = in.Priority
	if in.Tags != nil {
		job.Tags = in.Tags
	}
	if in.Config != nil {
		job.Config = in.Config
	}
	if err := p.store.Jobs.Create(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("error creating job: %w", err)
	}
	p.emit(Event{Name: EventJobCreated, JobID: job.ID, Job: job})
	return job, nil
}

// GetJob loads a job (with its full history and artifacts) by id.
func (p *Pipeline) GetJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	return p.store.ReadJob(ctx, nil, id)
}

// ListJobs returns jobs optionally filtered by status, paginated by
// limit/offset over the store's (priority DESC, created_at ASC) ordering.
func (p *Pipeline) ListJobs(ctx context.Context, status *model.JobStatus, limit, offset int) ([]*model.Job, error) {
	var (
		jobs []*model.Job
		err  error
	)
	if status != nil {
		jobs, err = p.store.ListJobsByStatus(ctx, nil, *status)
	} else {
		jobs, err = p.store.ListJobs(ctx, nil)
	}
	if err != nil {
		return nil, err
	}

	if offset >= len(jobs) {
		return nil, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// DeleteJob removes a job. When revertFirst is true, every revertible step
// is undone before the row (and, via FK cascade, its step_results and
// artifacts) is deleted.
func (p *Pipeline) DeleteJob(ctx context.Context, id model.JobID, revertFirst bool) error {
	job, err := p.store.ReadJob(ctx, nil, id)
	if err != nil {
		return err
	}
	if revertFirst {
		if _, err := p.executor.RevertAll(ctx, job); err != nil {
			return fmt.Errorf("error reverting job %s before delete: %w", id, err)
		}
	}
	return p.store.DeleteJob(ctx, nil, id)
}

// ProcessJob blocks driving a single job through every runnable step, the
// same loop the background worker runs, but synchronously for the caller.
// It claims the job in the active set for the duration, refusing to run a
// job the background worker is already driving.
func (p *Pipeline) ProcessJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	job, err := p.store.ReadJob(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	p.activeMu.Lock()
	if p.active[job.ID] {
		p.activeMu.Unlock()
		return nil, gerror.Newf(gerror.CodePreconditionViolated, "error job %s is already being processed", id)
	}
	p.active[job.ID] = true
	p.activeMu.Unlock()
	defer func() {
		p.activeMu.Lock()
		delete(p.active, job.ID)
		p.activeMu.Unlock()
	}()

	p.emit(Event{Name: EventJobStarted, JobID: job.ID, Job: job})
	for job.Status == model.JobStatusPending || job.Status == model.JobStatusProcessing {
		if _, err := p.executor.ExecuteNextStep(ctx, job); err != nil {
			p.emit(Event{Name: EventJobFailed, JobID: job.ID, Job: job, Error: err.Error()})
			return job, err
		}
	}

	switch job.Status {
	case model.JobStatusCompleted:
		p.emit(Event{Name: EventJobCompleted, JobID: job.ID, Job: job})
	case model.JobStatusFailed:
		p.emit(Event{Name: EventJobFailed, JobID: job.ID, Job: job, Error: job.Error})
	}
	return job, nil
}

// ResumeJob feeds userInput to job's currently awaiting-input step, then
// keeps driving the job through its remaining steps the way ProcessJob
// does, so a resumed job doesn't park in processing waiting for a poll
// loop that only picks up pending jobs.
func (p *Pipeline) ResumeJob(ctx context.Context, id model.JobID, userInput map[string]interface{}) (*model.StepResult, error) {
	job, err := p.store.ReadJob(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusAwaitingInput || job.CurrentStep == "" {
		return nil, gerror.Newf(gerror.CodeStepNotAwaitingInput, "error job %s has no step awaiting input", id)
	}
	result, err := p.executor.ResumeStep(ctx, job, job.CurrentStep, userInput)
	if err != nil {
		return nil, err
	}
	for job.Status == model.JobStatusPending || job.Status == model.JobStatusProcessing {
		if _, err := p.executor.ExecuteNextStep(ctx, job); err != nil {
			return result, err
		}
	}
	return result, nil
}

// CancelJob transitions job to cancelled. It does not interrupt an
// in-flight step execution: that step runs to completion and is recorded
// normally.
func (p *Pipeline) CancelJob(ctx context.Context, id model.JobID) (*model.Job, error) {
	job, err := p.store.ReadJob(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	job.TransitionTerminal(model.JobStatusCancelled, p.now())
	job.UpdatedAt = p.now()
	if err := p.store.Jobs.Update(ctx, nil, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RevertJob reverts job back to (but not including) toStep, or every
// revertible step if toStep is empty.
func (p *Pipeline) RevertJob(ctx context.Context, id model.JobID, toStep string) (*model.Job, error) {
	job, err := p.store.ReadJob(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if toStep != "" {
		return p.executor.RevertToStep(ctx, job, toStep)
	}
	return p.executor.RevertAll(ctx, job)
}
