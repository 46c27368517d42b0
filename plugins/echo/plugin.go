// Package echo implements the simplest possible processor: it produces no
// artifacts, only writes a value into the job's data bag, and exists to
// exercise the plugin contract end-to-end in integration tests.
package echo

import (
	"context"

	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
)

const processorClass = "echo"

func init() {
	plugin.RegisterFactory(processorClass, New)
}

// Processor writes its configured message into the job's data bag and
// completes immediately. It produces no artifacts, so it is always safely
// revertible (an empty revert is a no-op revert).
type Processor struct {
	plugin.BaseProcessor
}

// New constructs an echo Processor, overlaying manifest-supplied defaults
// onto the processor's own default config.
func New(defaults map[string]interface{}) plugin.Processor {
	p := &Processor{
		BaseProcessor: plugin.BaseProcessor{
			NameValue:        processorClass,
			DisplayNameValue: "Echo",
			DescriptionValue: "Writes a configured message into the job data bag.",
			VersionValue:     "1.0.0",
			DefaultConfigValue: map[string]interface{}{
				"message": "echo",
			},
			RequiresInputValue: plugin.RequiresInputNever,
			CanSkipValue:       true,
		},
	}
	for k, v := range defaults {
		if v != nil {
			p.DefaultConfigValue[k] = v
		}
	}
	return p
}

// ShouldProcess reports true for every job that hasn't already run this step.
func (p *Processor) ShouldProcess(ctx context.Context, job *model.Job) (bool, error) {
	return job.LatestResultFor(p.Name()) == nil, nil
}

// Process writes the configured message and completes.
func (p *Processor) Process(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
	message, _ := p.GetConfig(job.Config, "message")
	result := model.NewStepResult(job.ID, p.Name(), job.UpdatedAt)
	result.Status = model.StepStatusCompleted
	result.OutputData = model.JSONMap{"echo": message}
	return result, nil
}

// Revert has nothing to undo: echo produces no artifacts.
func (p *Processor) Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
	return true, nil
}
