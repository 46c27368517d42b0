package frontmatter_tagger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/plugins/frontmatter_tagger"
)

type fakeExecContext struct {
	lastPath    string
	lastUpdates map[string]interface{}
}

func (f *fakeExecContext) CreateFile(path string, content []byte, encoding string) (*model.Artifact, error) {
	panic("not used by this processor")
}
func (f *fakeExecContext) ModifyFile(path string, newContent []byte, encoding string) (*model.Artifact, error) {
	panic("not used by this processor")
}
func (f *fakeExecContext) DeleteFile(path string) (*model.Artifact, error) {
	panic("not used by this processor")
}
func (f *fakeExecContext) MoveFile(src, dst string) (*model.Artifact, error) {
	panic("not used by this processor")
}
func (f *fakeExecContext) UpdateFrontmatter(path string, updates map[string]interface{}) (*model.Artifact, error) {
	f.lastPath = path
	f.lastUpdates = updates
	return &model.Artifact{
		ArtifactType: model.ArtifactTypeFrontmatterUpdate,
		Target:       path,
		Status:       model.ArtifactStatusCreated,
	}, nil
}
func (f *fakeExecContext) RecordAPICall(service, action string, request, response map[string]interface{}, reversible bool, reverseAction map[string]interface{}) (*model.Artifact, error) {
	panic("not used by this processor")
}

func newJob() *model.Job {
	job := model.NewJob(model.SourceTypeFile, "note.md", model.NewTime(time.Now()))
	job.SourcePath = "notes/note.md"
	job.Tags = []string{"inbox", "review"}
	job.AppendResult(&model.StepResult{StepName: "echo", Status: model.StepStatusCompleted})
	return job
}

func TestShouldProcessRequiresSourcePath(t *testing.T) {
	p := frontmatter_tagger.New(nil)
	job := model.NewJob(model.SourceTypeManual, "no file", model.NewTime(time.Now()))
	ok, err := p.ShouldProcess(context.Background(), job)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestProcessMergesTagsIntoFrontmatter(t *testing.T) {
	p := frontmatter_tagger.New(nil)
	job := newJob()
	execCtx := &fakeExecContext{}

	result, err := p.Process(context.Background(), job, execCtx)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusCompleted, result.Status)
	require.Equal(t, job.SourcePath, execCtx.lastPath)
	require.ElementsMatch(t, []interface{}{"inbox", "review"}, execCtx.lastUpdates["tags"])
	require.Len(t, result.Artifacts, 1)
}

func TestRequiresUserInputReadsNeedsReviewFlag(t *testing.T) {
	p := frontmatter_tagger.New(nil)
	validator := p.(plugin.InputValidator)

	job := newJob()
	needs, err := validator.RequiresUserInput(context.Background(), job)
	require.NoError(t, err)
	require.False(t, needs)

	job.Data["needs_review"] = true
	needs, err = validator.RequiresUserInput(context.Background(), job)
	require.NoError(t, err)
	require.True(t, needs)
}

func TestValidateInputRequiresApproval(t *testing.T) {
	p := frontmatter_tagger.New(nil)
	validator := p.(plugin.InputValidator)
	job := newJob()

	ok, reason, err := validator.ValidateInput(context.Background(), job, map[string]interface{}{"approved": false})
	require.NoError(t, err)
	require.False(t, ok)
	require.NotEmpty(t, reason)

	ok, _, err = validator.ValidateInput(context.Background(), job, map[string]interface{}{"approved": true})
	require.NoError(t, err)
	require.True(t, ok)
}

var _ plugin.Processor = (*frontmatter_tagger.Processor)(nil)
var _ plugin.InputValidator = (*frontmatter_tagger.Processor)(nil)
