package pipeline

import (
	"context"

	"github.com/buildbeaver/docflow/internal/executor"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/watcher"
)

// OnFileDetected is the watcher sink: it emits file_detected and, unless the
// redetect policy says otherwise, creates a new job for the matched path.
func (p *Pipeline) OnFileDetected(ev watcher.DetectedEvent) {
	p.emit(Event{
		Name:      EventFileDetected,
		Path:      ev.Path,
		WatchName: ev.WatchName,
		EventType: string(ev.EventType),
	})

	if ev.EventType == watcher.EventDeleted {
		return
	}
	if ev.EventType == watcher.EventModified && ev.Config.RedetectPolicy == watcher.RedetectIgnore {
		if p.hasCompletedJobFor(ev.Path) {
			p.log.Debugf("ignoring re-detected modification of %q (redetect_policy=ignore)", ev.Path)
			return
		}
	}

	cfg := ev.Config
	in := CreateJobInput{
		SourceType: cfg.SourceType,
		SourcePath: ev.Path,
		Name:       ev.Path,
		Tags:       cfg.Tags,
		Priority:   cfg.Priority,
	}
	if cfg.InitialProcessor != "" || cfg.Metadata != nil {
		in.Config = model.JSONMap{}
		if cfg.InitialProcessor != "" {
			in.Config["initial_processor"] = cfg.InitialProcessor
		}
		if cfg.Metadata != nil {
			in.Config["watch_metadata"] = cfg.Metadata
		}
	}

	if _, err := p.CreateJob(context.Background(), in); err != nil {
		p.log.Errorf("error creating job for detected file %q: %s", ev.Path, err)
	}
}

// hasCompletedJobFor reports whether some non-failed job already exists for
// path, used to implement the default "ignore" redetect policy.
func (p *Pipeline) hasCompletedJobFor(path string) bool {
	jobs, err := p.store.ListJobs(context.Background(), nil)
	if err != nil {
		p.log.Warnf("error checking existing jobs for %q: %s", path, err)
		return false
	}
	for _, job := range jobs {
		if job.SourcePath == path && job.Status != model.JobStatusFailed {
			return true
		}
	}
	return false
}

// HandleExecutorEvent re-emits executor-originated events (step_completed,
// step_awaiting_input) to the orchestrator's own subscribers. Wire it in with
// (*executor.Executor).SetEventSink at construction time.
func (p *Pipeline) HandleExecutorEvent(e executor.Event) {
	var name EventName
	switch e.Name {
	case executor.EventStepCompleted:
		name = EventStepCompleted
	case executor.EventStepAwaitingInput:
		name = EventStepAwaitingInput
	default:
		return
	}
	p.emit(Event{
		Name:     name,
		JobID:    e.Job.ID,
		Job:      e.Job,
		StepName: e.Result.StepName,
		Status:   string(e.Result.Status),
		Error:    e.Result.Error,
	})
}
