package actions

import (
	"context"

	"github.com/corpusqa/pipelineengine/pipeline"
)

// loopGuard bounds how many times a given turn loop (e.g. router ->
// retrieve -> answer -> router) may repeat, keyed by this step's id
// (spec.md §4.11). Grounded on flow.Loop's shouldTerminate four-case logic,
// collapsed to the single counter-vs-max comparison the spec needs.
type loopGuard struct {
	onAllow string
	onDeny  string
	maxLoop int
}

type loopGuardFactory struct{}

func (f *loopGuardFactory) Name() string { return "loop_guard" }

func (f *loopGuardFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	onAllow, err := requiredString(raw, "on_allow")
	if err != nil {
		return nil, err
	}
	onDeny, err := requiredString(raw, "on_deny")
	if err != nil {
		return nil, err
	}
	return &loopGuard{onAllow: onAllow, onDeny: onDeny, maxLoop: settings.MaxTurnLoops()}, nil
}

func (a *loopGuard) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	count := state.LoopCounters[state.CurrentStepID]
	if count < a.maxLoop {
		state.IncrementLoop(state.CurrentStepID)
		return a.onAllow, nil
	}
	return a.onDeny, nil
}
