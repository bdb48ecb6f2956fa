package actions

import (
	"context"
	"fmt"

	"github.com/corpusqa/pipelineengine/pipeline"
)

const defaultHistoryLimit = 5

// loadConversationHistory reads recent neutral Q/A pairs for the session
// and stages them as history_qa_neutral / history_dialog / history_blocks
// for call_model's use_history and manual prompt building (spec.md §4.12).
// Best-effort: a collaborator error yields empty history rather than
// failing the run. Grounded on history.InMemory's RecentQANeutral shape.
type loadConversationHistory struct {
	limit int
}

type loadConversationHistoryFactory struct{}

func (f *loadConversationHistoryFactory) Name() string { return "load_conversation_history" }

func (f *loadConversationHistoryFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	limit := defaultHistoryLimit
	if v, ok := raw["limit"]; ok {
		limit = intFromAny(v)
	}
	return &loadConversationHistory{limit: limit}, nil
}

func (a *loadConversationHistory) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	if rt.History == nil || a.limit <= 0 {
		state.HistoryQANeutral = nil
		state.HistoryDialog = nil
		state.HistoryBlocks = nil
		return "", nil
	}

	pairs, err := rt.History.RecentQANeutral(ctx, state.SessionID, a.limit)
	if err != nil {
		state.HistoryQANeutral = nil
		state.HistoryDialog = nil
		state.HistoryBlocks = nil
		return "", nil
	}

	qas := make([]pipeline.QANeutral, 0, len(pairs))
	dialog := make([]pipeline.ChatTurn, 0, len(pairs)*2)
	blocks := make([]string, 0, len(pairs))
	for _, p := range pairs {
		qas = append(qas, pipeline.QANeutral{Question: p.Q, Answer: p.A})
		dialog = append(dialog,
			pipeline.ChatTurn{Role: "user", Content: p.Q},
			pipeline.ChatTurn{Role: "assistant", Content: p.A},
		)
		blocks = append(blocks, fmt.Sprintf("Q: %s\nA: %s", p.Q, p.A))
	}

	state.HistoryQANeutral = qas
	state.HistoryDialog = dialog
	state.HistoryBlocks = blocks

	return "", nil
}
