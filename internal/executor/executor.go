// Package executor drives one pipeline step per invocation against one job:
// it resolves the processor, runs it inside a transactional execution
// context, and records the outcome as a StepResult on the job's history.
package executor

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/buildbeaver/docflow/internal/execctx"
	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/revert"
	"github.com/buildbeaver/docflow/internal/store"
)

// Registry is the narrow view of internal/registry.Registry the executor needs.
type Registry interface {
	Get(name string) plugin.Processor
}

// Router is the narrow view of internal/router.Router the executor needs.
type Router interface {
	GetNextStep(ctx context.Context, job *model.Job) string
	CanRunStep(job *model.Job, name string) (bool, string)
	GetRevertableSteps(job *model.Job) []string
}

// EventName enumerates the executor-originated members of the event
// taxonomy; the orchestrator owns the rest (job_created,
// job_started, and so on).
type EventName string

const (
	EventStepCompleted     EventName = "step_completed"
	EventStepAwaitingInput EventName = "step_awaiting_input"
)

// Event is delivered to the executor's EventSink after each step.
type Event struct {
	Name   EventName
	Job    *model.Job
	Result *model.StepResult
}

// EventSink receives executor-originated events. A nil sink is valid: events
// are simply dropped.
type EventSink func(Event)

// Clock supplies the current time, injected for deterministic tests.
type Clock func() model.Time

// Executor drives step execution for a single job at a time; it holds no
// per-job state between calls.
type Executor struct {
	log      logger.Log
	registry Registry
	router   Router
	store    *store.Store
	clock    Clock
	emit     EventSink
	reverter *revert.Engine
}

// New constructs an Executor. emit may be nil.
func New(logFactory logger.LogFactory, registry Registry, router Router, st *store.Store, clock Clock, emit EventSink) *Executor {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Executor{
		log:      logFactory("executor"),
		registry: registry,
		router:   router,
		store:    st,
		clock:    clock,
		emit:     emit,
		reverter: revert.New(logFactory),
	}
}

// SetEventSink rewires the Executor's event emission after construction,
// used so the orchestrator (which is itself built from an already-built
// Executor) can have its own event-re-emitting method become the sink
// without a constructor-ordering cycle.
func (e *Executor) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = func(Event) {}
	}
	e.emit = sink
}

func (e *Executor) now() model.Time { return e.clock() }

func (e *Executor) persistJob(ctx context.Context, job *model.Job) error {
	job.UpdatedAt = e.now()
	return e.store.Jobs.Update(ctx, nil, job)
}

func (e *Executor) persistStepResult(ctx context.Context, result *model.StepResult) error {
	return e.store.SaveStepResult(ctx, nil, result)
}

// appendIfNew adds result to job.History unless it is already there. A
// StepResult first recorded while parked awaiting_input is the same pointer
// that later gets finalized by ResumeStep; since History holds pointers,
// mutating its fields already updates the existing entry in place, so a
// second append would only duplicate the row.
func appendIfNew(job *model.Job, result *model.StepResult) {
	for _, existing := range job.History {
		if existing == result {
			return
		}
	}
	job.AppendResult(result)
}

// ExecuteNextStep asks the Router for the next runnable step. If there is
// none, the job is marked completed. Otherwise it delegates to ExecuteStep.
func (e *Executor) ExecuteNextStep(ctx context.Context, job *model.Job) (*model.StepResult, error) {
	name := e.router.GetNextStep(ctx, job)
	if name == "" {
		job.TransitionTerminal(model.JobStatusCompleted, e.now())
		job.CurrentStep = ""
		if err := e.persistJob(ctx, job); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return e.ExecuteStep(ctx, job, name)
}

// ExecuteStep runs one named step against job.
func (e *Executor) ExecuteStep(ctx context.Context, job *model.Job, name string) (*model.StepResult, error) {
	processor := e.registry.Get(name)
	if processor == nil {
		return nil, gerror.Newf(gerror.CodeUnknownProcessor, "error no processor registered under name %q", name)
	}

	if ok, reason := e.router.CanRunStep(job, name); !ok {
		skipped := model.NewStepResult(job.ID, name, e.now())
		skipped.Status = model.StepStatusSkipped
		skipped.Error = reason
		if err := e.persistStepResult(ctx, skipped); err != nil {
			return nil, err
		}
		return skipped, nil
	}

	result := model.NewStepResult(job.ID, name, e.now())
	result.Status = model.StepStatusRunning
	startedAt := e.now()
	result.StartedAt = &startedAt

	job.TransitionStarted(e.now())
	job.Status = model.JobStatusProcessing
	job.CurrentStep = name
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}

	if e.stepNeedsInput(ctx, processor, job) {
		return e.enterAwaitingInput(ctx, job, result)
	}

	return e.runProcessor(ctx, processor, job, result)
}

func (e *Executor) stepNeedsInput(ctx context.Context, processor plugin.Processor, job *model.Job) bool {
	switch processor.RequiresInput() {
	case plugin.RequiresInputAlways:
		return true
	case plugin.RequiresInputConditional:
		if validator, ok := processor.(plugin.InputValidator); ok {
			needs, err := validator.RequiresUserInput(ctx, job)
			if err != nil {
				e.log.Warnf("error checking requires_user_input for processor %q on job %s: %s", processor.Name(), job.ID, err)
				return false
			}
			return needs
		}
		return false
	default:
		return false
	}
}

func (e *Executor) enterAwaitingInput(ctx context.Context, job *model.Job, result *model.StepResult) (*model.StepResult, error) {
	awaitingSince := e.now()
	result.Status = model.StepStatusAwaitingInput
	result.AwaitingInputSince = &awaitingSince
	job.Status = model.JobStatusAwaitingInput
	job.CurrentStep = result.StepName
	appendIfNew(job, result)

	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}
	e.emit(Event{Name: EventStepAwaitingInput, Job: job, Result: result})
	return result, nil
}

// runProcessor opens an Execution Context, calls processor.Process, and
// applies the success/awaiting-input/failure handling.
//
// A processor returns its own StepResult describing the outcome rather than
// mutating one handed to it; the executor folds that outcome (status,
// output_data, error) onto the single canonical StepResult it already
// persisted as "running", instead of adopting the processor's object
// wholesale, so the row identity a caller is tracking never changes mid-step.
// A nil return is shorthand for "succeeded with no extra output".
func (e *Executor) runProcessor(ctx context.Context, processor plugin.Processor, job *model.Job, result *model.StepResult) (*model.StepResult, error) {
	execCtx := execctx.New(e.loggerFactory(), e.store.Artifacts, execctx.Clock(e.clock), job.ID, result.ID, result.StepName)

	processed, procErr := processor.Process(ctx, job, execCtx)
	if procErr != nil {
		return e.handleProcessorFailure(ctx, execCtx, job, result, procErr)
	}

	if processed == nil {
		result.Status = model.StepStatusCompleted
	} else {
		result.Status = processed.Status
		if processed.OutputData != nil {
			result.OutputData = processed.OutputData
		}
		if processed.Error != "" {
			result.Error = processed.Error
		}
	}

	switch result.Status {
	case model.StepStatusAwaitingInput:
		if err := execCtx.Commit(); err != nil {
			return e.handleProcessorFailure(ctx, execCtx, job, result, err)
		}
		return e.enterAwaitingInput(ctx, job, result)
	case model.StepStatusCompleted:
		return e.handleProcessorSuccess(ctx, execCtx, job, result)
	default:
		// Any other status returned directly by a processor (e.g. failed) is
		// handled the same way as a returned error.
		return e.handleProcessorFailure(ctx, execCtx, job, result, fmt.Errorf("error processor %q returned status %q", processor.Name(), result.Status))
	}
}

func (e *Executor) handleProcessorSuccess(ctx context.Context, execCtx *execctx.Context, job *model.Job, result *model.StepResult) (*model.StepResult, error) {
	if err := execCtx.Commit(); err != nil {
		return e.handleProcessorFailure(ctx, execCtx, job, result, err)
	}

	endedAt := e.now()
	result.EndedAt = &endedAt
	job.Data.Merge(result.OutputData)
	appendIfNew(job, result)
	job.CurrentStep = ""
	job.Status = model.JobStatusProcessing

	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}
	e.emit(Event{Name: EventStepCompleted, Job: job, Result: result})
	return result, nil
}

func (e *Executor) handleProcessorFailure(ctx context.Context, execCtx *execctx.Context, job *model.Job, result *model.StepResult, procErr error) (*model.StepResult, error) {
	processor := e.registry.Get(result.StepName)
	if processor != nil && processor.AutoRevertOnError() {
		execCtx.Rollback()
	}

	endedAt := e.now()
	result.Status = model.StepStatusFailed
	result.EndedAt = &endedAt
	result.Error = procErr.Error()
	result.ErrorTraceback = fmt.Sprintf("%+v", errors.WithStack(procErr))

	appendIfNew(job, result)
	job.CurrentStep = ""
	job.TransitionTerminal(model.JobStatusFailed, e.now())
	job.Error = procErr.Error()

	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}
	e.emit(Event{Name: EventStepCompleted, Job: job, Result: result})
	return result, nil
}

// loggerFactory adapts Executor's own logger.Log into a LogFactory so
// internal/execctx.New (which wants a factory, like every other
// constructor in this codebase) can derive its own named sub-logger.
func (e *Executor) loggerFactory() logger.LogFactory {
	return func(subsystem string) logger.Log { return e.log.WithField("subsystem", subsystem) }
}
