package echo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/docflow/internal/model"
	"github.com/buildbeaver/docflow/internal/plugin"
	"github.com/buildbeaver/docflow/plugins/echo"
)

func TestEchoWritesConfiguredMessageToDataBag(t *testing.T) {
	p := echo.New(map[string]interface{}{"message": "hello"})
	job := model.NewJob(model.SourceTypeManual, "test job", model.NewTime(time.Now()))

	ok, err := p.ShouldProcess(context.Background(), job)
	require.NoError(t, err)
	require.True(t, ok)

	result, err := p.Process(context.Background(), job, nil)
	require.NoError(t, err)
	require.Equal(t, model.StepStatusCompleted, result.Status)
	require.Equal(t, "hello", result.OutputData["echo"])
}

func TestEchoShouldProcessFalseOnceRun(t *testing.T) {
	p := echo.New(nil)
	job := model.NewJob(model.SourceTypeManual, "test job", model.NewTime(time.Now()))
	job.AppendResult(&model.StepResult{StepName: p.Name(), Status: model.StepStatusCompleted})

	ok, err := p.ShouldProcess(context.Background(), job)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEchoRevertIsANoOp(t *testing.T) {
	p := echo.New(nil)
	job := model.NewJob(model.SourceTypeManual, "test job", model.NewTime(time.Now()))
	ok, err := p.Revert(context.Background(), job, &model.StepResult{}, nil)
	require.NoError(t, err)
	require.True(t, ok)
}

var _ plugin.Processor = (*echo.Processor)(nil)
