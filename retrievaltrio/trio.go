// Package retrievaltrio composes search_nodes, expand_dependency_tree, and
// fetch_node_texts into a single flow.Node, for host processes that want to
// drive the three-step retrieve-and-materialize sequence directly (e.g. a
// CLI smoke test or a non-YAML embedding of the engine) without authoring a
// full PipelineDefinition for it.
package retrievaltrio

import (
	"context"
	"fmt"

	"github.com/corpusqa/pipelineengine/flow"
	"github.com/corpusqa/pipelineengine/pipeline"
)

// Config names the three steps' raw YAML-shaped config, built against a
// registry that already has actions.RegisterAll applied.
type Config struct {
	SearchNodes          map[string]any
	ExpandDependencyTree map[string]any
	FetchNodeTexts       map[string]any
}

// actionNode adapts one built pipeline.Action into a flow.Node[any, any],
// threading a *pipeline.PipelineState through as the untyped payload
// flow.Join/flow.Flow compose over, and discarding the router-style "next"
// return (this composition is linear).
type actionNode struct {
	name   string
	action pipeline.Action
	rt     *pipeline.Runtime
}

func (n actionNode) Run(ctx context.Context, input any) (any, error) {
	state, ok := input.(*pipeline.PipelineState)
	if !ok {
		return nil, fmt.Errorf("retrievaltrio: %s: expected *pipeline.PipelineState, got %T", n.name, input)
	}
	if _, err := n.action.Run(ctx, state, n.rt); err != nil {
		return nil, fmt.Errorf("retrievaltrio: %s: %w", n.name, err)
	}
	return state, nil
}

var _ flow.Node[any, any] = actionNode{}

// Trio is the compiled search -> expand -> fetch sequence, ready to Run
// against a *pipeline.PipelineState.
type Trio struct {
	nodes []actionNode
}

// Build constructs a Trio's three actions from cfg against registry's
// search_nodes/expand_dependency_tree/fetch_node_texts factories, using
// settings for any pipeline-level defaults (top_k, graph_max_depth, budget
// fallbacks) those factories consult.
func Build(registry *pipeline.Registry, settings pipeline.Settings, cfg Config) (*Trio, error) {
	names := []string{"search_nodes", "expand_dependency_tree", "fetch_node_texts"}
	rawByName := map[string]map[string]any{
		"search_nodes":           cfg.SearchNodes,
		"expand_dependency_tree": cfg.ExpandDependencyTree,
		"fetch_node_texts":       cfg.FetchNodeTexts,
	}

	nodes := make([]actionNode, 0, len(names))
	for _, name := range names {
		factory, ok := registry.Get(name)
		if !ok {
			return nil, fmt.Errorf("retrievaltrio: action %q is not registered", name)
		}
		action, err := factory.NewAction(rawByName[name], settings)
		if err != nil {
			return nil, fmt.Errorf("retrievaltrio: building %q: %w", name, err)
		}
		nodes = append(nodes, actionNode{name: name, action: action})
	}
	return &Trio{nodes: nodes}, nil
}

// Run executes search_nodes, expand_dependency_tree, and fetch_node_texts
// in sequence against state by compiling t.nodes into a flow.Join'd
// flow.Flow and running it, stopping at the first error. rt is bound into
// each node fresh per call so the same *Trio can be reused across runs with
// different runtimes.
func (t *Trio) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (*pipeline.PipelineState, error) {
	bound := make([]flow.Node[any, any], len(t.nodes))
	for i, n := range t.nodes {
		bound[i] = actionNode{name: n.name, action: n.action, rt: rt}
	}

	joined, err := flow.Join(bound...)
	if err != nil {
		return nil, fmt.Errorf("retrievaltrio: %w", err)
	}

	out, err := joined.Run(ctx, state)
	if err != nil {
		return nil, err
	}
	result, ok := out.(*pipeline.PipelineState)
	if !ok {
		return nil, fmt.Errorf("retrievaltrio: flow produced %T, expected *pipeline.PipelineState", out)
	}
	return result, nil
}
