package pipeline

import "context"

// Action is one executable step body. Run mutates state and returns the id
// of the next step to dispatch. A step with End set ends the run normally
// after it runs, whatever next is; otherwise an empty next falls back to the
// step's static Next, and the run ends when that is empty too. Actions that route (e.g.
// prefix_router) return the chosen branch's step id instead of the step's
// static Next.
type Action interface {
	Run(ctx context.Context, state *PipelineState, rt *Runtime) (next string, err error)
}

// ActionFactory builds one named action kind from its step config. Actions
// live in a separate package (actions/) and register a factory per kind
// into a Registry supplied by the host process, keeping this package free
// of any import on actions/ (avoiding an import cycle, since actions/
// depends on pipeline/).
type ActionFactory interface {
	// Name is the `action:` discriminator this factory builds, e.g.
	// "search_nodes" or "call_model".
	Name() string
	// NewAction builds an Action from one step's raw config and the
	// pipeline-level settings in effect for the run.
	NewAction(raw map[string]any, settings Settings) (Action, error)
}

// Registry maps action kind names to the factory that builds them.
type Registry struct {
	factories map[string]ActionFactory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]ActionFactory{}}
}

// Register adds f under f.Name(), overwriting any prior factory registered
// under the same name.
func (r *Registry) Register(f ActionFactory) {
	r.factories[f.Name()] = f
}

// Get looks up the factory registered for name.
func (r *Registry) Get(name string) (ActionFactory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Build resolves step.Action in the registry and constructs its Action.
func (r *Registry) Build(step StepDef, settings Settings) (Action, error) {
	f, ok := r.factories[step.Action]
	if !ok {
		return nil, NewError(CodeInvalidConfig, step.ID, errUnknownAction(step.Action))
	}
	return f.NewAction(step.Raw, settings)
}

type errUnknownAction string

func (e errUnknownAction) Error() string {
	return "unknown action kind: " + string(e)
}
