// Package router implements the stateless decision procedure over
// (Job, Registry) that picks the next runnable step for a job, honoring the
// registry's topological order and the job's completed-steps set.
package router

import (
	"context"

	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
)

// Registry is the narrow view of internal/registry.Registry the router needs.
type Registry interface {
	Get(name string) plugin.Processor
	Each(fn func(plugin.Processor))
	GetExecutionOrder(names []string) ([]string, error)
}

// Router is a stateless decision procedure; it holds no per-job state.
type Router struct {
	log      logger.Log
	registry Registry
}

func New(logFactory logger.LogFactory, registry Registry) *Router {
	return &Router{log: logFactory("router"), registry: registry}
}

// applicableSteps computes the set of processors whose ShouldProcess returns
// true for job. A processor whose ShouldProcess errors is logged and
// excluded rather than propagated.
func (r *Router) applicableSteps(ctx context.Context, job *model.Job) []string {
	var names []string
	r.registry.Each(func(p plugin.Processor) {
		ok, err := p.ShouldProcess(ctx, job)
		if err != nil {
			r.log.Warnf("error in should_process for processor %q on job %s: %s", p.Name(), job.ID, err)
			return
		}
		if ok {
			names = append(names, p.Name())
		}
	})
	return names
}

// GetNextStep returns the name of the next step that should run, or "" if
// none is runnable right now. A dependency cycle among applicable steps is
// logged and treated as "no next step" rather than surfaced as an error.
func (r *Router) GetNextStep(ctx context.Context, job *model.Job) string {
	applicable := r.applicableSteps(ctx, job)
	if len(applicable) == 0 {
		return ""
	}
	ordered, err := r.registry.GetExecutionOrder(applicable)
	if err != nil {
		r.log.Warnf("error computing execution order for job %s: %s", job.ID, err)
		return ""
	}

	completed := job.CompletedSteps()
	for _, name := range ordered {
		if completed[name] {
			continue
		}
		if r.dependenciesSatisfied(name, completed) {
			return name
		}
	}
	return ""
}

func (r *Router) dependenciesSatisfied(name string, completed map[string]bool) bool {
	p := r.registry.Get(name)
	if p == nil {
		return false
	}
	for _, dep := range p.Requires() {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// CanRunStep reports whether name is currently runnable for job, and if not,
// a human-readable reason.
func (r *Router) CanRunStep(job *model.Job, name string) (bool, string) {
	p := r.registry.Get(name)
	if p == nil {
		return false, "processor not registered"
	}
	completed := job.CompletedSteps()
	if completed[name] {
		return false, "step already completed"
	}
	for _, dep := range p.Requires() {
		if !completed[dep] {
			return false, "dependency not completed: " + dep
		}
	}
	return true, ""
}

// GetPendingSteps returns every applicable step not yet completed, in
// execution order, including ones not yet runnable due to unmet
// dependencies.
func (r *Router) GetPendingSteps(ctx context.Context, job *model.Job) []string {
	applicable := r.applicableSteps(ctx, job)
	if len(applicable) == 0 {
		return nil
	}
	ordered, err := r.registry.GetExecutionOrder(applicable)
	if err != nil {
		r.log.Warnf("error computing execution order for job %s: %s", job.ID, err)
		return nil
	}
	completed := job.CompletedSteps()
	var pending []string
	for _, name := range ordered {
		if !completed[name] {
			pending = append(pending, name)
		}
	}
	return pending
}

// GetRevertableSteps returns the step names in job's history eligible for
// revert (completed, with every artifact still reversible), most-recent
// first, which is the order full reverts walk.
func (r *Router) GetRevertableSteps(job *model.Job) []string {
	var out []string
	for i := len(job.History) - 1; i >= 0; i-- {
		result := job.History[i]
		if result.CanRevert() {
			out = append(out, result.StepName)
		}
	}
	return out
}
