package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetterRegistryWritesKnownField(t *testing.T) {
	r := NewSetterRegistry()
	state := NewPipelineState("r1", "s1", "q", "repo", "main", "snap")

	require.NoError(t, r.Write("answer_neutral", state, "hello"))
	assert.Equal(t, "hello", state.AnswerNeutral)
}

func TestSetterRegistryFallsBackToVariables(t *testing.T) {
	r := NewSetterRegistry()
	state := NewPipelineState("r1", "s1", "q", "repo", "main", "snap")

	require.NoError(t, r.Write("custom_flag", state, true))
	assert.Equal(t, true, state.Variables["custom_flag"])
}

func TestSetterRegistryRejectsWrongType(t *testing.T) {
	r := NewSetterRegistry()
	state := NewPipelineState("r1", "s1", "q", "repo", "main", "snap")

	err := r.Write("context_blocks", state, 5)
	require.Error(t, err)
}
