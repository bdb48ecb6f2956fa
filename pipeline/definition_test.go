package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepDefReferencedStepIDsNext(t *testing.T) {
	step := NewStepDef("route", "call_model", map[string]any{"next": "answer"})
	assert.ElementsMatch(t, []string{"answer"}, step.ReferencedStepIDs())
}

func TestStepDefReferencedStepIDsOnPrefixedKeys(t *testing.T) {
	step := NewStepDef("guard", "loop_guard", map[string]any{
		"on_allow": "retry",
		"on_deny":  "give_up",
	})
	assert.ElementsMatch(t, []string{"retry", "give_up"}, step.ReferencedStepIDs())
}

func TestStepDefReferencedStepIDsRoutesMap(t *testing.T) {
	step := NewStepDef("router", "prefix_router", map[string]any{
		"on_other": "fallback",
		"routes": map[string]any{
			"search":   map[string]any{"prefix": "SEARCH:", "next": "do_search"},
			"finalize": "do_finalize",
		},
	})
	assert.ElementsMatch(t, []string{"fallback", "do_search", "do_finalize"}, step.ReferencedStepIDs())
}

func TestStepDefStringField(t *testing.T) {
	step := NewStepDef("call", "call_model", map[string]any{"prompt_key": "answer.txt"})
	v, ok := step.StringField("prompt_key")
	assert.True(t, ok)
	assert.Equal(t, "answer.txt", v)

	_, ok = step.StringField("missing")
	assert.False(t, ok)
}

func TestDefinitionStepLookup(t *testing.T) {
	def := &Definition{Steps: map[string]StepDef{
		"a": NewStepDef("a", "noop", nil),
	}}
	_, ok := def.Step("a")
	assert.True(t, ok)
	_, ok = def.Step("missing")
	assert.False(t, ok)
}
