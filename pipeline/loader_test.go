package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoaderLoadsSimpleDefinition(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "simple.yaml", `
name: simple
entry_step_id: start
settings:
  max_context_tokens: 4096
steps:
  start:
    action: call_model
    prompt_key: answer.txt
    end: true
`)

	loader := NewLoader(dir)
	def, err := loader.Load("simple.yaml")
	require.NoError(t, err)

	assert.Equal(t, "simple", def.Name)
	assert.Equal(t, "start", def.EntryStepID)
	maxTokens, err := def.Settings.MaxContextTokens()
	require.NoError(t, err)
	assert.Equal(t, 4096, maxTokens)

	step, ok := def.Step("start")
	require.True(t, ok)
	assert.Equal(t, "call_model", step.Action)
	assert.True(t, step.End)
	assert.NotEmpty(t, def.Fingerprint)
}

func TestLoaderResolvesExtendsChainDeepMergingSettingsAndSteps(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "base.yaml", `
name: base
entry_step_id: start
settings:
  max_context_tokens: 4096
  graph_max_depth: 2
steps:
  start:
    action: call_model
    prompt_key: base.txt
    next: finish
  finish:
    action: finalize
    end: true
`)
	writeYAML(t, dir, "child.yaml", `
name: child
extends: base.yaml
settings:
  graph_max_depth: 5
steps:
  start:
    action: call_model
    prompt_key: child.txt
    next: finish
`)

	loader := NewLoader(dir)
	def, err := loader.Load("child.yaml")
	require.NoError(t, err)

	assert.Equal(t, "child", def.Name)

	depth, err := def.Settings.GraphMaxDepth()
	require.NoError(t, err)
	assert.Equal(t, 5, depth, "child overrides parent's graph_max_depth")

	maxTokens, err := def.Settings.MaxContextTokens()
	require.NoError(t, err)
	assert.Equal(t, 4096, maxTokens, "max_context_tokens inherited unchanged from base")

	start, ok := def.Step("start")
	require.True(t, ok)
	assert.Equal(t, "child.txt", start.Raw["prompt_key"], "child's step fully replaces base's step of the same id")

	_, ok = def.Step("finish")
	require.True(t, ok, "steps only declared in base remain reachable")
}

func TestLoaderDetectsExtendsCycle(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "a.yaml", `
name: a
extends: b.yaml
entry_step_id: s
steps:
  s: {action: noop, end: true}
`)
	writeYAML(t, dir, "b.yaml", `
name: b
extends: a.yaml
entry_step_id: s
steps:
  s: {action: noop, end: true}
`)

	loader := NewLoader(dir)
	_, err := loader.Load("a.yaml")
	require.Error(t, err)
}

func TestLoaderValidatesEntryStepResolves(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "bad.yaml", `
name: bad
entry_step_id: missing
steps:
  s: {action: noop, end: true}
`)

	loader := NewLoader(dir)
	_, err := loader.Load("bad.yaml")
	require.Error(t, err)
	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, CodeInvalidConfig, pipeErr.Code)
}

func TestLoaderValidatesReferencedStepsResolve(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "dangling.yaml", `
name: dangling
entry_step_id: start
steps:
  start:
    action: call_model
    next: nowhere
`)

	loader := NewLoader(dir)
	_, err := loader.Load("dangling.yaml")
	require.Error(t, err)
}

func TestLoaderValidatesUnreachableStep(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "orphan.yaml", `
name: orphan
entry_step_id: start
steps:
  start:
    action: call_model
    end: true
  never_dispatched:
    action: call_model
    end: true
`)

	loader := NewLoader(dir)
	_, err := loader.Load("orphan.yaml")
	require.Error(t, err)
	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, CodeInvalidConfig, pipeErr.Code)
}

func TestLoaderValidatesTerminalConditionPresent(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "loopforever.yaml", `
name: loopforever
entry_step_id: a
steps:
  a:
    action: call_model
    next: b
  b:
    action: call_model
    next: a
`)

	loader := NewLoader(dir)
	_, err := loader.Load("loopforever.yaml")
	require.Error(t, err)
	var pipeErr *Error
	require.ErrorAs(t, err, &pipeErr)
	assert.Equal(t, CodeInvalidConfig, pipeErr.Code)
}

func TestLoaderFingerprintStableAcrossReloadsAndChangesOnEdit(t *testing.T) {
	dir := t.TempDir()
	src := `
name: fp
entry_step_id: s
settings:
  max_context_tokens: 100
steps:
  s: {action: noop, end: true}
`
	writeYAML(t, dir, "fp.yaml", src)
	loader := NewLoader(dir)

	first, err := loader.Load("fp.yaml")
	require.NoError(t, err)
	second, err := loader.Load("fp.yaml")
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)

	writeYAML(t, dir, "fp.yaml", src+"\n# comment appended changes nothing structurally but bytes differ\n")
	third, err := loader.Load("fp.yaml")
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}
