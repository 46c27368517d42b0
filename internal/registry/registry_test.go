package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/internal/registry"
)

// stubProcessor is a minimal plugin.Processor used only to exercise the registry.
type stubProcessor struct {
	plugin.BaseProcessor
}

func newStub(name string, requires ...string) *stubProcessor {
	return &stubProcessor{BaseProcessor: plugin.BaseProcessor{
		NameValue:     name,
		RequiresValue: requires,
	}}
}

func (s *stubProcessor) ShouldProcess(ctx context.Context, job *model.Job) (bool, error) {
	return true, nil
}

func (s *stubProcessor) Process(ctx context.Context, job *model.Job, execCtx plugin.ExecContext) (*model.StepResult, error) {
	return nil, nil
}

func (s *stubProcessor) Revert(ctx context.Context, job *model.Job, result *model.StepResult, execCtx plugin.ExecContext) (bool, error) {
	return true, nil
}

func TestRegisterDuplicateName(t *testing.T) {
	r := registry.New(logger.Discard())
	require.NoError(t, r.Register(newStub("a")))
	err := r.Register(newStub("a"))
	require.Error(t, err)
	require.True(t, gerror.Is(err, gerror.CodeDuplicateName))
}

func TestRegisterEmptyName(t *testing.T) {
	r := registry.New(logger.Discard())
	err := r.Register(newStub(""))
	require.Error(t, err)
}

func TestUnregisterThenReregister(t *testing.T) {
	r := registry.New(logger.Discard())
	require.NoError(t, r.Register(newStub("a")))
	removed := r.Unregister("a")
	require.NotNil(t, removed)
	require.False(t, r.Has("a"))
	require.NoError(t, r.Register(newStub("a")))
}

func TestGetExecutionOrderTopologicalCorrectness(t *testing.T) {
	r := registry.New(logger.Discard())
	require.NoError(t, r.Register(newStub("extract")))
	require.NoError(t, r.Register(newStub("summarize", "extract")))
	require.NoError(t, r.Register(newStub("publish", "summarize", "extract")))

	order, err := r.GetExecutionOrder([]string{"publish", "summarize", "extract"})
	require.NoError(t, err)
	require.Equal(t, []string{"extract", "summarize", "publish"}, order)
}

func TestGetExecutionOrderStableTies(t *testing.T) {
	r := registry.New(logger.Discard())
	// Three independent processors with no dependencies: order must match
	// registration order.
	require.NoError(t, r.Register(newStub("c")))
	require.NoError(t, r.Register(newStub("a")))
	require.NoError(t, r.Register(newStub("b")))

	order, err := r.GetExecutionOrder([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, order)
}

func TestGetExecutionOrderIgnoresDependenciesOutsideSubset(t *testing.T) {
	r := registry.New(logger.Discard())
	require.NoError(t, r.Register(newStub("extract")))
	require.NoError(t, r.Register(newStub("summarize", "extract")))

	// Only "summarize" requested; its dependency on "extract" (absent from
	// the subset) must be ignored for ordering purposes.
	order, err := r.GetExecutionOrder([]string{"summarize"})
	require.NoError(t, err)
	require.Equal(t, []string{"summarize"}, order)
}

func TestGetExecutionOrderCircularDependency(t *testing.T) {
	r := registry.New(logger.Discard())
	require.NoError(t, r.Register(newStub("a", "b")))
	require.NoError(t, r.Register(newStub("b", "a")))

	_, err := r.GetExecutionOrder([]string{"a", "b"})
	require.Error(t, err)
	require.True(t, gerror.Is(err, gerror.CodeCircularDependency))
}

func TestValidateDependenciesIsAdvisoryOnly(t *testing.T) {
	r := registry.New(logger.Discard())
	// "summarize" requires "extract", which is never registered. Registration
	// must still succeed; validation is advisory.
	require.NoError(t, r.Register(newStub("summarize", "extract")))

	problems := r.ValidateDependencies()
	require.Len(t, problems, 1)
	require.Equal(t, "summarize", problems[0].Processor)
	require.Equal(t, "extract", problems[0].Missing)
}
