package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopAction struct{ next string }

func (a noopAction) Run(ctx context.Context, state *PipelineState, rt *Runtime) (string, error) {
	return a.next, nil
}

type noopFactory struct{ name string }

func (f noopFactory) Name() string { return f.name }

func (f noopFactory) NewAction(raw map[string]any, settings Settings) (Action, error) {
	next, _ := raw["next"].(string)
	return noopAction{next: next}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(noopFactory{name: "noop"})

	f, ok := r.Get("noop")
	require.True(t, ok)
	assert.Equal(t, "noop", f.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryBuildConstructsActionFromStepConfig(t *testing.T) {
	r := NewRegistry()
	r.Register(noopFactory{name: "noop"})

	step := NewStepDef("s1", "noop", map[string]any{"next": "s2"})
	action, err := r.Build(step, NewSettings(nil))
	require.NoError(t, err)

	next, err := action.Run(context.Background(), NewPipelineState("r", "sess", "q", "repo", "main", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, "s2", next)
}

func TestRegistryBuildUnknownActionIsFatal(t *testing.T) {
	r := NewRegistry()
	step := NewStepDef("s1", "does_not_exist", nil)

	_, err := r.Build(step, NewSettings(nil))
	require.Error(t, err)
	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, CodeInvalidConfig, pipeErr.Code)
}
