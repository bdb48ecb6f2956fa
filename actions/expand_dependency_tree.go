package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/corpusqa/pipelineengine/pipeline"
	"github.com/corpusqa/pipelineengine/ports"
)

// expandDependencyTree calls the graph provider from the retrieval trio's
// seed nodes and normalizes the returned edges (spec.md §4.7). Grounded on
// ai/rag's DocumentRetriever call shape, generalized to the three
// *_from_settings indirections and the no-op/reason contract the spec adds
// on top of a plain provider call.
type expandDependencyTree struct {
	maxDepth      int
	maxNodes      int
	edgeAllowlist []string
}

type expandDependencyTreeFactory struct{}

func (f *expandDependencyTreeFactory) Name() string { return "expand_dependency_tree" }

func (f *expandDependencyTreeFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	depthKey, err := requiredString(raw, "max_depth_from_settings")
	if err != nil {
		return nil, err
	}
	nodesKey, err := requiredString(raw, "max_nodes_from_settings")
	if err != nil {
		return nil, err
	}
	allowlistKey, err := requiredString(raw, "edge_allowlist_from_settings")
	if err != nil {
		return nil, err
	}

	maxDepth, ok := settings.GetInt(depthKey)
	if !ok || maxDepth < 1 {
		return nil, fmt.Errorf("expand_dependency_tree: settings.%s must be a present integer >= 1", depthKey)
	}
	maxNodes, ok := settings.GetInt(nodesKey)
	if !ok || maxNodes < 1 {
		return nil, fmt.Errorf("expand_dependency_tree: settings.%s must be a present integer >= 1", nodesKey)
	}
	if _, ok := settings.Get(allowlistKey); !ok {
		return nil, fmt.Errorf("expand_dependency_tree: settings.%s must be present (null allowed)", allowlistKey)
	}
	allowlist, _ := settings.GetStringSlice(allowlistKey)

	return &expandDependencyTree{maxDepth: maxDepth, maxNodes: maxNodes, edgeAllowlist: allowlist}, nil
}

func (a *expandDependencyTree) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	seeds := state.RetrievalSeedNodes

	noop := func(reason string) (string, error) {
		state.GraphSeedNodes = append([]string(nil), seeds...)
		state.GraphExpandedNodes = append([]string(nil), seeds...)
		state.GraphEdges = nil
		state.GraphDebug = pipeline.GraphDebug{
			Reason:        reason,
			SeedCount:     len(seeds),
			ExpandedCount: len(seeds),
			EdgesCount:    0,
		}
		return "", nil
	}

	if rt.Graph == nil {
		return noop("missing_graph_provider")
	}
	if len(seeds) == 0 {
		return noop("no_seeds")
	}

	exp, err := rt.Graph.ExpandDependencyTree(ctx, seeds, state.Repository, state.Branch, a.maxDepth, a.maxNodes, a.edgeAllowlist, state.RetrievalFilters)
	if errors.Is(err, ports.ErrNotImplemented) {
		return noop("graph_provider_missing_expand_dependency_tree")
	}
	if err != nil {
		return "", fmt.Errorf("expand_dependency_tree: graph provider failed: %w", err)
	}

	edges := make([]pipeline.Edge, 0, len(exp.Edges))
	for _, e := range exp.Edges {
		edgeType := e.EdgeType
		if edgeType == "" {
			edgeType = "unknown"
		}
		edges = append(edges, pipeline.Edge{FromID: e.FromID, ToID: e.ToID, EdgeType: edgeType})
	}

	expanded := lo.Uniq(append(append([]string(nil), seeds...), exp.Nodes...))
	truncated := a.maxNodes > 0 && len(expanded) > a.maxNodes
	if truncated {
		expanded = expanded[:a.maxNodes]
	}

	state.GraphSeedNodes = append([]string(nil), seeds...)
	state.GraphExpandedNodes = expanded
	state.GraphEdges = edges
	state.GraphDebug = pipeline.GraphDebug{
		Reason:        "ok",
		SeedCount:     len(seeds),
		ExpandedCount: len(expanded),
		EdgesCount:    len(edges),
		Truncated:     truncated,
	}

	return "", nil
}
