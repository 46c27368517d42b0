package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/registry"
	"github.com/buildbeaver/docflow/internal/router"
)

type stubProcessor struct {
	plugin.BaseProcessor
	shouldProcess func(job *model.Job) (bool, error)
}

func newStub(name string, requires ...string) *stubProcessor {
	return &stubProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: name, RequiresValue: requires},
		shouldProcess: func(job *model.Job) (bool, error) { return true, nil },
	}
}

func (s *stubProcessor) ShouldProcess(ctx context.Context, job *model.Job) (bool, error) {
	return s.shouldProcess(job)
}

func (s *stubProcessor) Process(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
	return nil, nil
}

func (s *stubProcessor) Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
	return true, nil
}

func newTestJob() *model.Job {
	now := model.NewTime(time.Now())
	return model.NewJob(model.SourceTypeFile, "doc.md", now)
}

func TestGetNextStepLinearDependency(t *testing.T) {
	reg := registry.New(logger.Discard())
	require.NoError(t, reg.Register(newStub("extract")))
	require.NoError(t, reg.Register(newStub("summarize", "extract")))
	r := router.New(logger.Discard(), reg)

	job := newTestJob()
	require.Equal(t, "extract", r.GetNextStep(context.Background(), job))

	job.AppendResult(&model.StepResult{StepName: "extract", Status: model.StepStatusCompleted})
	require.Equal(t, "summarize", r.GetNextStep(context.Background(), job))

	job.AppendResult(&model.StepResult{StepName: "summarize", Status: model.StepStatusCompleted})
	require.Equal(t, "", r.GetNextStep(context.Background(), job))
}

func TestGetNextStepExcludesProcessorsWhoseShouldProcessErrors(t *testing.T) {
	reg := registry.New(logger.Discard())
	broken := newStub("broken")
	broken.shouldProcess = func(job *model.Job) (bool, error) { return false, assertErr }
	require.NoError(t, reg.Register(broken))
	require.NoError(t, reg.Register(newStub("ok")))

	r := router.New(logger.Discard(), reg)
	job := newTestJob()
	require.Equal(t, "ok", r.GetNextStep(context.Background(), job))
}

var assertErr = errTest("boom")

type errTest string

func (e errTest) Error() string { return string(e) }

func TestGetNextStepRunsMissingDependencyWhenLaterStepAlreadyDone(t *testing.T) {
	reg := registry.New(logger.Discard())
	require.NoError(t, reg.Register(newStub("extract")))
	require.NoError(t, reg.Register(newStub("summarize", "extract")))
	r := router.New(logger.Discard(), reg)

	// "summarize" was injected as completed without "extract" ever running;
	// the only pending applicable step is "extract", and it must be offered.
	job := newTestJob()
	job.AppendResult(&model.StepResult{StepName: "summarize", Status: model.StepStatusCompleted})
	require.Equal(t, "extract", r.GetNextStep(context.Background(), job))

	job.AppendResult(&model.StepResult{StepName: "extract", Status: model.StepStatusCompleted})
	require.Equal(t, "", r.GetNextStep(context.Background(), job))
}

func TestGetNextStepCycleYieldsNoStep(t *testing.T) {
	reg := registry.New(logger.Discard())
	require.NoError(t, reg.Register(newStub("a", "b")))
	require.NoError(t, reg.Register(newStub("b", "a")))
	r := router.New(logger.Discard(), reg)

	require.Equal(t, "", r.GetNextStep(context.Background(), newTestJob()))
}

func TestCanRunStepReasons(t *testing.T) {
	reg := registry.New(logger.Discard())
	require.NoError(t, reg.Register(newStub("extract")))
	require.NoError(t, reg.Register(newStub("summarize", "extract")))
	r := router.New(logger.Discard(), reg)

	job := newTestJob()
	ok, reason := r.CanRunStep(job, "summarize")
	require.False(t, ok)
	require.Contains(t, reason, "extract")

	ok, _ = r.CanRunStep(job, "missing")
	require.False(t, ok)

	job.AppendResult(&model.StepResult{StepName: "extract", Status: model.StepStatusCompleted})
	ok, reason = r.CanRunStep(job, "summarize")
	require.True(t, ok)
	require.Empty(t, reason)
}

func TestGetRevertableStepsMostRecentFirst(t *testing.T) {
	job := newTestJob()
	job.AppendResult(&model.StepResult{StepName: "a", Status: model.StepStatusCompleted})
	job.AppendResult(&model.StepResult{StepName: "b", Status: model.StepStatusCompleted})
	job.AppendResult(&model.StepResult{StepName: "c", Status: model.StepStatusFailed})

	r := router.New(logger.Discard(), registry.New(logger.Discard()))
	revertable := r.GetRevertableSteps(job)
	require.Equal(t, []string{"b", "a"}, revertable)
}

func TestGetPendingSteps(t *testing.T) {
	reg := registry.New(logger.Discard())
	require.NoError(t, reg.Register(newStub("extract")))
	require.NoError(t, reg.Register(newStub("summarize", "extract")))
	r := router.New(logger.Discard(), reg)

	job := newTestJob()
	pending := r.GetPendingSteps(context.Background(), job)
	require.Equal(t, []string{"extract", "summarize"}, pending)

	job.AppendResult(&model.StepResult{StepName: "extract", Status: model.StepStatusCompleted})
	pending = r.GetPendingSteps(context.Background(), job)
	require.Equal(t, []string{"summarize"}, pending)
}
