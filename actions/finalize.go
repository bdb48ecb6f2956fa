package actions

import (
	"context"

	"github.com/corpusqa/pipelineengine/pipeline"
	"github.com/corpusqa/pipelineengine/ports"
)

// finalize materializes state.FinalAnswer from answer_neutral/
// answer_translated plus the matching banner, and best-effort persists the
// turn (spec.md §4.15). It never translates or falls back to
// last_model_response itself — those are translate_out_if_needed's job.
type finalize struct {
	persistTurn bool
}

type finalizeFactory struct{}

func (f *finalizeFactory) Name() string { return "finalize" }

func (f *finalizeFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	persistTurn := true
	if v, ok := raw["persist_turn"]; ok {
		if b, ok := v.(bool); ok {
			persistTurn = b
		}
	}
	return &finalize{persistTurn: persistTurn}, nil
}

func (a *finalize) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	answer := state.AnswerNeutral
	banner := state.BannerNeutral
	if state.TranslateChat {
		if state.AnswerTranslated != "" {
			answer = state.AnswerTranslated
		}
		if state.BannerTranslated != "" {
			banner = state.BannerTranslated
		}
	}

	if banner != "" {
		state.FinalAnswer = banner + "\n\n" + answer
	} else {
		state.FinalAnswer = answer
	}

	if a.persistTurn && rt.History != nil {
		err := rt.History.OnRequestFinalized(ctx, ports.TurnRecord{
			SessionID: state.SessionID,
			TurnID:    state.TurnID,
			Query:     state.UserQuery,
			Answer:    state.FinalAnswer,
		})
		if err != nil {
			rt.Logger.Warn("finalize: persisting turn failed", "session_id", state.SessionID, "turn_id", state.TurnID, "err", err)
		}
	}

	return "", nil
}
