package pipeline

import (
	"context"
	"fmt"

	"github.com/corpusqa/pipelineengine/ports"
)

// Engine runs one PipelineDefinition's dispatch loop against a Runtime
// (spec.md §4.2). It is stateless between runs: all per-run mutable state
// lives in the PipelineState the Run call builds and discards.
type Engine struct {
	def *Definition
	rt  *Runtime
}

// NewEngine binds a loaded Definition to a Runtime.
func NewEngine(def *Definition, rt *Runtime) *Engine {
	return &Engine{def: def, rt: rt}
}

// Run dispatches steps starting at the definition's entry step until a step
// ends the run (end:true, or a nil next with no static next), the run is
// cancelled, or the step-dispatch cap is exceeded. It returns the final
// state for inspection by the caller (answer fields, trace, etc).
func (e *Engine) Run(ctx context.Context, state *PipelineState) (*PipelineState, error) {
	dispatchCap := e.rt.StepDispatchCap
	if dispatchCap <= 0 {
		dispatchCap = e.def.Settings.StepDispatchCap()
	}

	stepID := e.def.EntryStepID
	for {
		if e.cancelled() {
			e.emitDone(state, "cancelled")
			return state, NewError(CodeCancelled, stepID, fmt.Errorf("run cancelled"))
		}

		state.StepsDispatched++
		if state.StepsDispatched > dispatchCap {
			err := NewError(CodeLoopLimit, stepID, fmt.Errorf("exceeded step dispatch cap (%d)", dispatchCap))
			e.emitDone(state, "step_limit")
			return state, err
		}

		step, ok := e.def.Step(stepID)
		if !ok {
			err := NewError(CodeInvalidConfig, stepID, fmt.Errorf("dispatch to undeclared step"))
			e.emitDone(state, "error")
			return state, err
		}
		state.CurrentStepID = stepID

		state.ConsumeFor(stepID)

		action, err := e.rt.Registry.Build(step, e.def.Settings)
		if err != nil {
			e.emitDone(state, "error")
			return state, err
		}

		next, err := action.Run(ctx, state, e.rt)
		if err != nil {
			pipeErr, ok := err.(*Error)
			if !ok {
				pipeErr = NewError(CodeStepFatal, stepID, err)
			}
			e.emitDone(state, "error")
			return state, pipeErr
		}

		e.emitStep(state, step)

		if e.cancelled() {
			e.emitDone(state, "cancelled")
			return state, NewError(CodeCancelled, stepID, fmt.Errorf("run cancelled"))
		}

		if step.End {
			break
		}

		if next == "" {
			next = step.Next
		}
		if next == "" {
			break
		}
		stepID = next
	}

	if state.HasPending() && e.def.Settings.StrictInbox() {
		err := NewError(CodeInboxNotEmpty, state.CurrentStepID, fmt.Errorf("%d unconsumed inbox message(s) at run end", len(state.Inbox)))
		e.emitDone(state, "error")
		return state, err
	}
	if state.HasPending() {
		e.log("unconsumed inbox messages at run end", "run_id", state.RunID, "count", len(state.Inbox))
	}

	state.Terminated = true
	e.emitDone(state, "completed")
	return state, nil
}

func (e *Engine) cancelled() bool {
	return e.rt.Cancel != nil && e.rt.Cancel.Canceled()
}

// emitStep sends one trace frame for the step just executed, honoring the
// pipeline's stages_visibility setting (spec.md §6): "forbidden" suppresses
// all step frames, anything else emits them (per-step suppression via an
// explicit per-step `trace: false` is an action-level concern, not the
// engine's).
func (e *Engine) emitStep(state *PipelineState, step StepDef) {
	if e.rt.Trace == nil {
		return
	}
	if e.def.Settings.StagesVisibility() == "forbidden" {
		return
	}
	_ = e.rt.Trace.Emit(ports.TraceEvent{
		Type:   "step",
		RunID:  state.RunID,
		StepID: step.ID,
		Details: map[string]any{
			"action": step.Action,
		},
	})
}

func (e *Engine) emitDone(state *PipelineState, reason string) {
	if e.rt.Trace == nil {
		return
	}
	_ = e.rt.Trace.Emit(ports.TraceEvent{
		Type:   "done",
		RunID:  state.RunID,
		Reason: reason,
	})
}

func (e *Engine) log(msg string, args ...any) {
	if e.rt.Logger == nil {
		return
	}
	e.rt.Logger.Warn(msg, args...)
}
