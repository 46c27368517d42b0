package executor

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/docflow/internal/execctx"
	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
)

// ResumeStep feeds submitted input to a step parked in awaiting_input,
// validates it through the processor's optional InputValidator capability,
// records it, and continues exactly where runProcessor's success path would
// have.
func (e *Executor) ResumeStep(ctx context.Context, job *model.Job, name string, userInput map[string]interface{}) (*model.StepResult, error) {
	processor := e.registry.Get(name)
	if processor == nil {
		return nil, gerror.Newf(gerror.CodeUnknownProcessor, "error no processor registered under name %q", name)
	}
	result := job.LatestResultFor(name)
	if result == nil || result.Status != model.StepStatusAwaitingInput {
		return nil, gerror.Newf(gerror.CodeStepNotAwaitingInput, "error step %q is not awaiting input", name)
	}

	if validator, ok := processor.(plugin.InputValidator); ok {
		valid, reason, err := validator.ValidateInput(ctx, job, userInput)
		if err != nil {
			return nil, gerror.Newf(gerror.CodeInvalidInput, "error validating input for step %q", name).Wrap(err)
		}
		if !valid {
			return nil, gerror.Newf(gerror.CodeInvalidInput, "error invalid input for step %q: %s", name, reason)
		}
	}

	result.UserInput = userInput
	job.Data.Merge(model.JSONMap{"user_input": userInput})
	job.Status = model.JobStatusProcessing
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}

	return e.runProcessor(ctx, processor, job, result)
}

// RevertStep reverts the most recent completed StepResult for name: every
// artifact it produced is undone in reverse insertion order (continuing past
// individual artifact failures, which are recorded on that artifact and
// folded into the StepResult's revert_error), then the processor's own
// Revert hook runs for any custom cleanup.
func (e *Executor) RevertStep(ctx context.Context, job *model.Job, name string) (*model.StepResult, error) {
	processor := e.registry.Get(name)
	if processor == nil {
		return nil, gerror.Newf(gerror.CodeUnknownProcessor, "error no processor registered under name %q", name)
	}
	result := job.LatestResultFor(name)
	if result == nil || result.Status != model.StepStatusCompleted {
		return nil, gerror.Newf(gerror.CodePreconditionViolated, "error step %q has no completed result to revert", name)
	}

	// Artifacts are loaded from the store rather than trusted off result.Artifacts:
	// a StepResult flowing straight out of the executor (as opposed to one
	// reloaded via the store) never has that field populated.
	artifacts, err := e.store.Artifacts.ListByStepResult(ctx, nil, result.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if a.Reversibility == model.ReversibilityIrreversible {
			return nil, gerror.Newf(gerror.CodePreconditionViolated, "error step %q has one or more irreversible artifacts", name)
		}
	}

	var artifactErrs *multierror.Error
	for i := len(artifacts) - 1; i >= 0; i-- {
		artifact := artifacts[i]
		if err := e.reverter.RevertArtifact(ctx, artifact); err != nil {
			artifact.Status = model.ArtifactStatusFailed
			artifact.Error = err.Error()
			artifactErrs = multierror.Append(artifactErrs, fmt.Errorf("artifact %s: %w", artifact.ID, err))
		} else {
			artifact.Status = model.ArtifactStatusReverted
			artifact.Error = ""
		}
		artifact.UpdatedAt = e.now()
		if err := e.store.Artifacts.Upsert(ctx, nil, artifact); err != nil {
			return nil, err
		}
	}

	// The processor's custom cleanup is best-effort: a failing hook is
	// folded into revert_error alongside any per-artifact failures, and the
	// step is still marked reverted, since the primary (artifact-level)
	// reversal already ran above.
	execCtx := execctx.New(e.loggerFactory(), e.store.Artifacts, execctx.Clock(e.clock), job.ID, result.ID, result.StepName)
	ok, procErr := processor.Revert(ctx, job, result, execCtx)
	if procErr != nil {
		artifactErrs = multierror.Append(artifactErrs, fmt.Errorf("revert hook for step %q: %w", name, procErr))
		execCtx.Rollback()
	} else {
		if !ok {
			e.log.Warnf("revert hook for processor %q reported no cleanup performed", processor.Name())
		}
		if err := execCtx.Commit(); err != nil {
			return nil, err
		}
	}

	result.Artifacts = artifacts

	revertedAt := e.now()
	result.Status = model.StepStatusReverted
	result.RevertedAt = &revertedAt
	if combined := artifactErrs.ErrorOrNil(); combined != nil {
		result.RevertError = combined.Error()
	} else {
		result.RevertError = ""
	}
	if err := e.persistStepResult(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// RevertToStep reverts every revertible step after target, walking history
// back-to-front and stopping at the first failure. On success the job returns
// to pending with no current step, so the next ExecuteNextStep call re-runs
// whatever came after target.
func (e *Executor) RevertToStep(ctx context.Context, job *model.Job, target string) (*model.Job, error) {
	foundIdx := -1
	for i, result := range job.History {
		if result.StepName == target {
			foundIdx = i
		}
	}
	if foundIdx == -1 {
		return nil, gerror.Newf(gerror.CodeNotFound, "error step %q not found in job %s history", target, job.ID)
	}

	var toRevert []string
	for i := foundIdx + 1; i < len(job.History); i++ {
		if result := job.History[i]; result.CanRevert() {
			toRevert = append(toRevert, result.StepName)
		}
	}

	job.Status = model.JobStatusReverting
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}

	for i := len(toRevert) - 1; i >= 0; i-- {
		if _, err := e.RevertStep(ctx, job, toRevert[i]); err != nil {
			job.TransitionTerminal(model.JobStatusFailed, e.now())
			job.Error = err.Error()
			if perr := e.persistJob(ctx, job); perr != nil {
				return nil, perr
			}
			return job, err
		}
	}

	job.Status = model.JobStatusPending
	job.CurrentStep = ""
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// RevertAll reverts every revertible step in the job's history, most-recent
// first, finalizing the job as reverted on success.
func (e *Executor) RevertAll(ctx context.Context, job *model.Job) (*model.Job, error) {
	revertable := e.router.GetRevertableSteps(job)

	job.Status = model.JobStatusReverting
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}

	for _, name := range revertable {
		if _, err := e.RevertStep(ctx, job, name); err != nil {
			job.TransitionTerminal(model.JobStatusFailed, e.now())
			job.Error = err.Error()
			if perr := e.persistJob(ctx, job); perr != nil {
				return nil, perr
			}
			return job, err
		}
	}

	job.TransitionTerminal(model.JobStatusReverted, e.now())
	job.CurrentStep = ""
	if err := e.persistJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}
