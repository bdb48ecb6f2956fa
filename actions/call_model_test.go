package actions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusqa/pipelineengine/llm"
	"github.com/corpusqa/pipelineengine/pipeline"
)

func writePrompt(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCallModelNativeChatTrimsHistoryOldestFirstToFitBudget(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "system.txt", "you are a helpful assistant")

	f := &callModelFactory{accessors: pipeline.NewAccessorRegistry(), promptsDir: dir}
	action, err := f.NewAction(map[string]any{
		"prompt_key":  "system.txt",
		"user_parts":  []any{map[string]any{"name": "q", "source": "user_query", "template": "{}"}},
		"native_chat": true,
		"use_history": true,
	}, pipeline.NewSettings(map[string]any{"max_history_tokens": 3}))
	require.NoError(t, err)

	state := pipeline.NewPipelineState("r1", "s1", "question", "repo", "main", "snap")
	state.HistoryDialog = []pipeline.ChatTurn{
		{Role: "user", Content: "one two three four"}, // 4 tokens, oldest, should be dropped
		{Role: "assistant", Content: "two words"},      // 2 tokens
		{Role: "user", Content: "one"},                 // 1 token
	}

	fake := llm.NewFake("answer")
	rt := &pipeline.Runtime{LLM: fake, Tokens: fakeTokenCounter{}}

	_, err = action.Run(context.Background(), state, rt)
	require.NoError(t, err)

	require.Len(t, fake.AskChatCalls, 1)
	history := fake.AskChatCalls[0].History
	require.Len(t, history, 2)
	assert.Equal(t, "two words", history[0].Content)
	assert.Equal(t, "one", history[1].Content)
}

func TestCallModelNativeChatSkipsHistoryWhenMaxHistoryTokensIsZero(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "system.txt", "you are a helpful assistant")

	f := &callModelFactory{accessors: pipeline.NewAccessorRegistry(), promptsDir: dir}
	action, err := f.NewAction(map[string]any{
		"prompt_key":  "system.txt",
		"user_parts":  []any{map[string]any{"name": "q", "source": "user_query", "template": "{}"}},
		"native_chat": true,
		"use_history": true,
	}, pipeline.NewSettings(map[string]any{}))
	require.NoError(t, err)

	state := pipeline.NewPipelineState("r1", "s1", "question", "repo", "main", "snap")
	state.HistoryDialog = []pipeline.ChatTurn{{Role: "user", Content: "hello"}}

	fake := llm.NewFake("answer")
	rt := &pipeline.Runtime{LLM: fake, Tokens: fakeTokenCounter{}}

	_, err = action.Run(context.Background(), state, rt)
	require.NoError(t, err)

	require.Len(t, fake.AskChatCalls, 1)
	assert.Empty(t, fake.AskChatCalls[0].History)
}

func TestCallModelNonNativeChatBuildsPlainPrompt(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "system.txt", "system line")

	f := &callModelFactory{accessors: pipeline.NewAccessorRegistry(), promptsDir: dir}
	action, err := f.NewAction(map[string]any{
		"prompt_key": "system.txt",
		"user_parts": []any{map[string]any{"name": "q", "source": "user_query", "template": "question: {}"}},
	}, pipeline.NewSettings(map[string]any{}))
	require.NoError(t, err)

	state := pipeline.NewPipelineState("r1", "s1", "hi there", "repo", "main", "snap")
	fake := llm.NewFake("answer")
	rt := &pipeline.Runtime{LLM: fake, Tokens: fakeTokenCounter{}}

	_, err = action.Run(context.Background(), state, rt)
	require.NoError(t, err)

	require.Len(t, fake.AskCalls, 1)
	assert.Contains(t, fake.AskCalls[0], "system line")
	assert.Contains(t, fake.AskCalls[0], "question: hi there")
	assert.Equal(t, "answer", state.LastModelResponse)
}
