package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/corpusqa/pipelineengine/pipeline"
)

// parallelRoadsAction lazily initializes state.ParallelRoads so fork_action
// and merge_action always find a scratchpad in place, without routing
// (spec.md §4.10).
type parallelRoadsAction struct{}

type parallelRoadsActionFactory struct{}

func (f *parallelRoadsActionFactory) Name() string { return "parallel_roads_action" }

func (f *parallelRoadsActionFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	return &parallelRoadsAction{}, nil
}

func (a *parallelRoadsAction) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	ensureParallelRoads(state)
	return "", nil
}

func ensureParallelRoads(state *pipeline.PipelineState) {
	if state.ParallelRoads == nil {
		state.ParallelRoads = &pipeline.ParallelRoads{Results: map[string][]string{}}
	}
}

// resolvePlaceholder substitutes ${snapshot_id}/${snapshot_id_b} in s with
// the run's original snapshot ids, captured before fork_action starts
// overwriting state.SnapshotID per iteration.
func resolvePlaceholder(s, originalID, originalIDB string) string {
	s = strings.ReplaceAll(s, "${snapshot_id}", originalID)
	s = strings.ReplaceAll(s, "${snapshot_id_b}", originalIDB)
	return s
}

// forkAction builds the snapshot plan from its `snapshots` mapping on first
// entry, then dispatches one snapshot per call to the configured
// search_action step until the plan is exhausted (spec.md §4.10).
type forkAction struct {
	snapshots    map[string]string // raw key (possibly a placeholder) -> label template
	searchAction string
	onDone       string
}

type forkActionFactory struct{}

func (f *forkActionFactory) Name() string { return "fork_action" }

func (f *forkActionFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	searchAction, err := requiredString(raw, "search_action")
	if err != nil {
		return nil, err
	}
	rawSnapshots, err := requiredStringMap(raw, "snapshots")
	if err != nil {
		return nil, err
	}
	snapshots := make(map[string]string, len(rawSnapshots))
	for k, v := range rawSnapshots {
		label, _ := v.(string)
		snapshots[k] = label
	}
	return &forkAction{
		snapshots:    snapshots,
		searchAction: searchAction,
		onDone:       optionalString(raw, "on_done"),
	}, nil
}

func (a *forkAction) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	ensureParallelRoads(state)
	pr := state.ParallelRoads

	if pr.Plan == nil {
		if pr.OriginalID == "" && pr.OriginalIDB == "" {
			pr.OriginalID = state.SnapshotID
			pr.OriginalIDB = state.SnapshotIDB
		}
		keys := make([]string, 0, len(a.snapshots))
		for k := range a.snapshots {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pr.PlanTemplates = map[string]string{}
		for _, k := range keys {
			resolved := resolvePlaceholder(k, pr.OriginalID, pr.OriginalIDB)
			pr.Plan = append(pr.Plan, resolved)
			pr.PlanTemplates[resolved] = a.snapshots[k]
		}
	}

	if pr.Index >= len(pr.Plan) {
		return a.onDone, nil
	}

	state.SnapshotID = pr.Plan[pr.Index]
	return a.searchAction, nil
}

// mergeAction labels the current snapshot branch's context_blocks, stashes
// them in parallel_roads.results, clears per-branch retrieval artifacts for
// isolation, and either loops back to fork_action for the next snapshot or
// (once every snapshot has run) appends every branch's labeled blocks back
// to context_blocks in plan order and restores the original snapshot ids
// (spec.md §4.10).
type mergeAction struct {
	forkStepID string
	onDone     string
}

type mergeActionFactory struct{}

func (f *mergeActionFactory) Name() string { return "merge_action" }

func (f *mergeActionFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	forkStepID, err := requiredString(raw, "fork_action")
	if err != nil {
		return nil, err
	}
	onDone, err := requiredString(raw, "on_done")
	if err != nil {
		return nil, err
	}
	return &mergeAction{forkStepID: forkStepID, onDone: onDone}, nil
}

func (a *mergeAction) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	ensureParallelRoads(state)
	pr := state.ParallelRoads
	if pr.Index >= len(pr.Plan) {
		return "", fmt.Errorf("merge_action: no snapshot in flight")
	}
	snapshotID := pr.Plan[pr.Index]

	label := resolveSnapshotLabel(snapshotID, pr.PlanTemplates[snapshotID], state.SnapshotFriendlyNames)
	labeled := make([]string, 0, len(state.ContextBlocks))
	for _, b := range state.ContextBlocks {
		labeled = append(labeled, label+"\n"+b)
	}
	pr.Results[snapshotID] = labeled

	// isolation invariant: clear per-branch retrieval artifacts before the
	// next snapshot iteration
	state.NodeTexts = nil
	state.ContextBlocks = nil
	state.RetrievalSeedNodes = nil
	state.RetrievalHits = nil
	state.GraphSeedNodes = nil
	state.GraphExpandedNodes = nil
	state.GraphEdges = nil
	state.GraphDebug = pipeline.GraphDebug{}

	pr.Index++
	if pr.Index >= len(pr.Plan) {
		for _, id := range pr.Plan {
			state.ContextBlocks = append(state.ContextBlocks, pr.Results[id]...)
		}
		state.SnapshotID = pr.OriginalID
		state.SnapshotIDB = pr.OriginalIDB
		return a.onDone, nil
	}
	return a.forkStepID, nil
}

// resolveSnapshotLabel implements the label lookup order spec.md §4.10
// names: state.snapshot_friendly_names[id], then the snapshots mapping's
// template with "{}" substituted, then the raw snapshot id.
func resolveSnapshotLabel(snapshotID, template string, friendlyNames map[string]string) string {
	if friendlyNames != nil {
		if name, ok := friendlyNames[snapshotID]; ok && name != "" {
			return name
		}
	}
	if template != "" {
		return strings.Replace(template, "{}", snapshotID, 1)
	}
	return snapshotID
}
