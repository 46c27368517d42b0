package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/executor"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/registry"
	"github.com/buildbeaver/docflow/internal/router"
	"github.com/buildbeaver/docflow/internal/store"
)

// testProcessor is a minimal, fully scriptable plugin.Processor used across
// the seed scenarios.
type testProcessor struct {
	plugin.BaseProcessor
	process func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error)
	revert  func(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error)

	requiresUserInput func(job *model.Job) (bool, error)
	validateInput     func(input map[string]interface{}) (bool, string, error)
}

func (p *testProcessor) ShouldProcess(ctx context.Context, job *model.Job) (bool, error) { return true, nil }

func (p *testProcessor) Process(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
	return p.process(ctx, job, execCtx)
}

func (p *testProcessor) Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
	if p.revert != nil {
		return p.revert(ctx, job, result, execCtx)
	}
	return true, nil
}

func (p *testProcessor) RequiresUserInput(ctx context.Context, job *model.Job) (bool, error) {
	if p.requiresUserInput != nil {
		return p.requiresUserInput(job)
	}
	return true, nil
}

func (p *testProcessor) ValidateInput(ctx context.Context, job *model.Job, input map[string]interface{}) (bool, string, error) {
	if p.validateInput != nil {
		return p.validateInput(input)
	}
	return true, "", nil
}

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "test.db") + "?_foreign_keys=on"
	db, err := store.Open(store.ConnectionString(dsn), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newIncrementingClock avoids identical timestamps across artifacts/steps
// within a single test, since sqlite ORDER BY on equal values has no defined
// tie-break and several of the store's read paths order by created_at.
func newIncrementingClock() executor.Clock {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() model.Time {
		n++
		return model.NewTime(base.Add(time.Duration(n) * time.Second))
	}
}

func setup(t *testing.T) (*store.Store, *registry.Registry, *executor.Executor, *[]executor.Event) {
	t.Helper()
	db := newTestDB(t)
	st := store.New(db)
	reg := registry.New(logger.Discard())
	r := router.New(logger.Discard(), reg)
	var events []executor.Event
	ex := executor.New(logger.Discard(), reg, r, st, newIncrementingClock(), func(e executor.Event) {
		events = append(events, e)
	})
	return st, reg, ex, &events
}

func createJob(t *testing.T, st *store.Store, name string) *model.Job {
	t.Helper()
	job := model.NewJob(model.SourceTypeFile, name, model.NewTime(time.Now()))
	require.NoError(t, st.Jobs.Create(context.Background(), nil, job))
	return job
}

func TestLinearPipelineCompletesJob(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")

	extract := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "extract"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			if _, err := execCtx.CreateFile(path, []byte("raw content"), ""); err != nil {
				return nil, err
			}
			return &model.StepResult{Status: model.StepStatusCompleted, OutputData: model.JSONMap{"extracted": true}}, nil
		},
	}
	summarize := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "summarize", RequiresValue: []string{"extract"}},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			if _, err := execCtx.ModifyFile(path, []byte("summary"), ""); err != nil {
				return nil, err
			}
			return &model.StepResult{Status: model.StepStatusCompleted, OutputData: model.JSONMap{"summarized": true}}, nil
		},
	}
	require.NoError(t, reg.Register(extract))
	require.NoError(t, reg.Register(summarize))

	job := createJob(t, st, "doc.md")

	result, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Equal(t, "extract", result.StepName)
	require.Equal(t, model.StepStatusCompleted, result.Status)

	result, err = ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Equal(t, "summarize", result.StepName)
	require.Equal(t, model.StepStatusCompleted, result.Status)

	result, err = ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Nil(t, result)
	require.Equal(t, model.JobStatusCompleted, job.Status)
	require.True(t, job.Data["extracted"].(bool))
	require.True(t, job.Data["summarized"].(bool))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "summary", string(content))

	reread, err := st.ReadJob(ctx, nil, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusCompleted, reread.Status)
	require.Len(t, reread.History, 2)
}

func TestExecuteStepBlocksOnUnmetDependency(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()

	extract := &testProcessor{BaseProcessor: plugin.BaseProcessor{NameValue: "extract"}}
	summarize := &testProcessor{BaseProcessor: plugin.BaseProcessor{NameValue: "summarize", RequiresValue: []string{"extract"}}}
	require.NoError(t, reg.Register(extract))
	require.NoError(t, reg.Register(summarize))

	job := createJob(t, st, "doc.md")

	result, err := ex.ExecuteStep(ctx, job, "summarize")
	require.NoError(t, err)
	require.Equal(t, model.StepStatusSkipped, result.Status)
	require.Contains(t, result.Error, "extract")
	require.Equal(t, model.JobStatusPending, job.Status, "a skip must not mutate job status")
}

func TestAutoRevertOnFailureRollsBackArtifacts(t *testing.T) {
	st, reg, ex, events := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")

	boom := processFailure{}
	flaky := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "flaky"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			if _, err := execCtx.CreateFile(path, []byte("partial"), ""); err != nil {
				return nil, err
			}
			return nil, boom
		},
	}
	require.NoError(t, reg.Register(flaky))

	job := createJob(t, st, "doc.md")

	result, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusFailed, result.Status)
	require.Equal(t, model.JobStatusFailed, job.Status)
	require.NoFileExists(t, path, "auto-revert must delete the partially created file")
	require.NotEmpty(t, result.ErrorTraceback)
	require.Len(t, *events, 1)
	require.Equal(t, executor.EventStepCompleted, (*events)[0].Name)
}

type processFailure struct{}

func (processFailure) Error() string { return "boom: upstream API unavailable" }

func TestHumanInTheLoopAwaitsThenResumes(t *testing.T) {
	st, reg, ex, events := setup(t)
	ctx := context.Background()

	var gotInput map[string]interface{}
	review := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "review", RequiresInputValue: plugin.RequiresInputAlways},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			gotInput, _ = job.Data["user_input"].(map[string]interface{})
			return &model.StepResult{Status: model.StepStatusCompleted, OutputData: model.JSONMap{"approved": true}}, nil
		},
	}
	require.NoError(t, reg.Register(review))

	job := createJob(t, st, "doc.md")

	result, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusAwaitingInput, result.Status)
	require.Equal(t, model.JobStatusAwaitingInput, job.Status)
	require.Len(t, *events, 1)
	require.Equal(t, executor.EventStepAwaitingInput, (*events)[0].Name)

	resumed, err := ex.ResumeStep(ctx, job, "review", map[string]interface{}{"decision": "approve"})
	require.NoError(t, err)
	require.Equal(t, model.StepStatusCompleted, resumed.Status)
	require.Equal(t, "approve", gotInput["decision"])
	require.Equal(t, model.JobStatusProcessing, job.Status)
}

func TestResumeStepRejectsWhenNotAwaitingInput(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()

	noop := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "noop"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			return &model.StepResult{Status: model.StepStatusCompleted}, nil
		},
	}
	require.NoError(t, reg.Register(noop))
	job := createJob(t, st, "doc.md")

	_, err := ex.ResumeStep(ctx, job, "noop", nil)
	require.Error(t, err)
}

func TestRevertToStepUndoesOnlyLaterSteps(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	pathC := filepath.Join(dir, "c.txt")

	stepA := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "a"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			_, err := execCtx.CreateFile(pathA, []byte("a"), "")
			return &model.StepResult{Status: model.StepStatusCompleted}, err
		},
	}
	stepB := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "b", RequiresValue: []string{"a"}},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			_, err := execCtx.CreateFile(pathB, []byte("b"), "")
			return &model.StepResult{Status: model.StepStatusCompleted}, err
		},
	}
	stepC := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "c", RequiresValue: []string{"b"}},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			_, err := execCtx.CreateFile(pathC, []byte("c"), "")
			return &model.StepResult{Status: model.StepStatusCompleted}, err
		},
	}
	require.NoError(t, reg.Register(stepA))
	require.NoError(t, reg.Register(stepB))
	require.NoError(t, reg.Register(stepC))

	job := createJob(t, st, "doc.md")
	for i := 0; i < 3; i++ {
		_, err := ex.ExecuteNextStep(ctx, job)
		require.NoError(t, err)
	}
	require.FileExists(t, pathA)
	require.FileExists(t, pathB)
	require.FileExists(t, pathC)

	reverted, err := ex.RevertToStep(ctx, job, "a")
	require.NoError(t, err)
	require.Equal(t, model.JobStatusPending, reverted.Status)
	require.Empty(t, reverted.CurrentStep)

	require.FileExists(t, pathA, "the target step itself is not reverted")
	require.NoFileExists(t, pathB)
	require.NoFileExists(t, pathC)

	// Re-processing should now run b, then c, since a is still completed.
	result, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.Equal(t, "b", result.StepName)
}

func TestRevertStepToleratesRevertHookFailure(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	stepA := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "a"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			_, err := execCtx.CreateFile(path, []byte("a"), "")
			return &model.StepResult{Status: model.StepStatusCompleted}, err
		},
		revert: func(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
			return false, processFailure{}
		},
	}
	require.NoError(t, reg.Register(stepA))

	job := createJob(t, st, "doc.md")
	_, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.FileExists(t, path)

	// The hook's failure is recorded, but the artifact-level reversal
	// already ran, so the step still ends up reverted.
	result, err := ex.RevertStep(ctx, job, "a")
	require.NoError(t, err)
	require.Equal(t, model.StepStatusReverted, result.Status)
	require.Contains(t, result.RevertError, "revert hook")
	require.NoFileExists(t, path)
}

func TestRevertAllRevertsEveryStepAndMarksJobReverted(t *testing.T) {
	st, reg, ex, _ := setup(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")

	stepA := &testProcessor{
		BaseProcessor: plugin.BaseProcessor{NameValue: "a"},
		process: func(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
			_, err := execCtx.CreateFile(path, []byte("a"), "")
			return &model.StepResult{Status: model.StepStatusCompleted}, err
		},
	}
	require.NoError(t, reg.Register(stepA))

	job := createJob(t, st, "doc.md")
	_, err := ex.ExecuteNextStep(ctx, job)
	require.NoError(t, err)
	require.FileExists(t, path)

	job, err = ex.RevertAll(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.JobStatusReverted, job.Status)
	require.NoFileExists(t, path)
}
