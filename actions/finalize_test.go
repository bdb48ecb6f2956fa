package actions

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusqa/pipelineengine/pipeline"
)

func TestFinalizePrefersTranslatedWhenTranslateChat(t *testing.T) {
	f := &finalizeFactory{}
	action, err := f.NewAction(map[string]any{}, pipeline.NewSettings(map[string]any{}))
	require.NoError(t, err)

	state := pipeline.NewPipelineState("r1", "s1", "q", "repo", "main", "snap")
	state.TranslateChat = true
	state.AnswerNeutral = "neutral answer"
	state.AnswerTranslated = "translated answer"
	state.BannerTranslated = "banner"

	history := &fakeHistory{}
	rt := &pipeline.Runtime{History: history, Logger: slog.Default()}

	_, err = action.Run(context.Background(), state, rt)
	require.NoError(t, err)
	assert.Equal(t, "banner\n\ntranslated answer", state.FinalAnswer)
	require.Len(t, history.finalized, 1)
	assert.Equal(t, state.FinalAnswer, history.finalized[0].Answer)
}

func TestFinalizeUsesNeutralWhenNotTranslating(t *testing.T) {
	f := &finalizeFactory{}
	action, err := f.NewAction(map[string]any{"persist_turn": false}, pipeline.NewSettings(map[string]any{}))
	require.NoError(t, err)

	state := pipeline.NewPipelineState("r1", "s1", "q", "repo", "main", "snap")
	state.AnswerNeutral = "neutral answer"
	state.AnswerTranslated = "should be ignored"

	history := &fakeHistory{}
	rt := &pipeline.Runtime{History: history, Logger: slog.Default()}

	_, err = action.Run(context.Background(), state, rt)
	require.NoError(t, err)
	assert.Equal(t, "neutral answer", state.FinalAnswer)
	assert.Empty(t, history.finalized)
}
