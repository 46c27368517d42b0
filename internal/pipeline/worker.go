package pipeline

import (
	"context"
	"time"

	"github.com/buildbeaver/docflow/internal/model"
)

// pollLoop fetches pending jobs and spawns one driver task per job, never
// exceeding the configured concurrency cap.
func (p *Pipeline) pollLoop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				p.log.Errorf("error in poll loop: %s", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.config.BackoffInterval):
				}
			}
		}
	}
}

// tick fetches up to the remaining capacity of pending jobs (priority DESC,
// created_at ASC, per the store's ListByStatus ordering) and spawns a driver
// task for each that isn't already active.
func (p *Pipeline) tick(ctx context.Context) error {
	p.activeMu.Lock()
	capacity := p.config.MaxConcurrentJobs - len(p.active)
	p.activeMu.Unlock()
	if capacity <= 0 {
		return nil
	}

	jobs, err := p.store.ListJobsByStatus(ctx, nil, model.JobStatusPending)
	if err != nil {
		return err
	}

	spawned := 0
	for _, job := range jobs {
		if spawned >= capacity {
			break
		}
		p.activeMu.Lock()
		if p.active[job.ID] {
			p.activeMu.Unlock()
			continue
		}
		p.active[job.ID] = true
		p.activeMu.Unlock()

		spawned++
		p.wg.Add(1)
		go p.driveJob(ctx, job)
	}
	return nil
}

// driveJob repeatedly executes job's next step until it leaves the
// pending/processing states, then emits the matching terminal event and
// removes job from the active set.
func (p *Pipeline) driveJob(ctx context.Context, job *model.Job) {
	defer p.wg.Done()
	defer func() {
		p.activeMu.Lock()
		delete(p.active, job.ID)
		p.activeMu.Unlock()
	}()

	p.emit(Event{Name: EventJobStarted, JobID: job.ID, Job: job})

	for job.Status == model.JobStatusPending || job.Status == model.JobStatusProcessing {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.executor.ExecuteNextStep(ctx, job); err != nil {
			p.log.Errorf("error executing next step for job %s: %s", job.ID, err)
			p.emit(Event{Name: EventJobFailed, JobID: job.ID, Job: job, Error: err.Error()})
			return
		}
	}

	switch job.Status {
	case model.JobStatusCompleted:
		p.emit(Event{Name: EventJobCompleted, JobID: job.ID, Job: job})
	case model.JobStatusFailed:
		p.emit(Event{Name: EventJobFailed, JobID: job.ID, Job: job, Error: job.Error})
	}
}
