// Package frontmatter_tagger implements a reference processor that exercises
// the execution context's frontmatter-update operation and a conditional
// human-in-the-loop input path, used by integration tests alongside
// plugins/echo.
package frontmatter_tagger

import (
	"context"
	"fmt"

	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
)

const processorClass = "frontmatter_tagger"

func init() {
	plugin.RegisterFactory(processorClass, New)
}

// Processor merges the job's Tags into the target file's frontmatter under
// tagKey. If the job's data bag carries needs_review=true, it pauses for an
// "approved" confirmation before applying the tag.
type Processor struct {
	plugin.BaseProcessor
}

// New constructs a frontmatter_tagger Processor.
func New(defaults map[string]interface{}) plugin.Processor {
	p := &Processor{
		BaseProcessor: plugin.BaseProcessor{
			NameValue:        processorClass,
			DisplayNameValue: "Frontmatter Tagger",
			DescriptionValue: "Merges job tags into the target document's frontmatter.",
			VersionValue:     "1.0.0",
			RequiresValue:    []string{"echo"},
			DefaultConfigValue: map[string]interface{}{
				"tag_key": "tags",
			},
			RequiresInputValue: plugin.RequiresInputConditional,
		},
	}
	for k, v := range defaults {
		if v != nil {
			p.DefaultConfigValue[k] = v
		}
	}
	return p
}

// ShouldProcess applies only to jobs with a source file that hasn't already
// run this step.
func (p *Processor) ShouldProcess(ctx context.Context, job *model.Job) (bool, error) {
	if job.SourcePath == "" {
		return false, nil
	}
	return job.LatestResultFor(p.Name()) == nil, nil
}

// RequiresUserInput pauses the job when its data bag was flagged for review
// by an earlier step, e.g. via output_data{"needs_review": true}.
func (p *Processor) RequiresUserInput(ctx context.Context, job *model.Job) (bool, error) {
	flag, _ := job.Data["needs_review"].(bool)
	return flag, nil
}

// ValidateInput requires an explicit {"approved": true} to proceed.
func (p *Processor) ValidateInput(ctx context.Context, job *model.Job, input map[string]interface{}) (bool, string, error) {
	approved, ok := input["approved"].(bool)
	if !ok {
		return false, "input must include a boolean \"approved\" field", nil
	}
	if !approved {
		return false, "tagging was not approved", nil
	}
	return true, "", nil
}

// Process merges job.Tags into the target file's frontmatter under tagKey.
func (p *Processor) Process(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
	tagKey, _ := p.GetConfig(job.Config, "tag_key")
	key, ok := tagKey.(string)
	if !ok || key == "" {
		key = "tags"
	}

	tags := make([]interface{}, len(job.Tags))
	for i, t := range job.Tags {
		tags[i] = t
	}

	artifact, err := execCtx.UpdateFrontmatter(job.SourcePath, map[string]interface{}{key: tags})
	if err != nil {
		return nil, fmt.Errorf("error updating frontmatter for %s: %w", job.SourcePath, err)
	}

	result := model.NewStepResult(job.ID, p.Name(), job.UpdatedAt)
	result.Status = model.StepStatusCompleted
	result.OutputData = model.JSONMap{"tagged_path": job.SourcePath}
	result.Artifacts = []*model.Artifact{artifact}
	return result, nil
}

// Revert has no custom cleanup beyond the artifact-level frontmatter revert
// the executor already performs.
func (p *Processor) Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
	return true, nil
}
