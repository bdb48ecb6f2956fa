package actions

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cast"

	"github.com/corpusqa/pipelineengine/acl"
	"github.com/corpusqa/pipelineengine/pipeline"
)

const implicitBudgetFraction = 0.7

// fetchNodeTexts materializes node text for the retrieval trio's final
// stage: ordered selection by prioritization_mode, then atomic
// (all-or-nothing) budget enforcement per candidate (spec.md §4.8).
// Grounded on ai/rag's RankDocumentRefiner sort+truncate shape, generalized
// to the seed/graph BFS ordering and depth/parent bookkeeping the spec adds.
type fetchNodeTexts struct {
	mode         string
	hasMaxChars  bool
	maxChars     int
	budgetTokens int
}

type fetchNodeTextsFactory struct{}

func (f *fetchNodeTextsFactory) Name() string { return "fetch_node_texts" }

func (f *fetchNodeTextsFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	mode := optionalString(raw, "prioritization_mode")
	if mode == "" {
		mode = "balanced"
	}
	if mode != "seed_first" && mode != "graph_first" && mode != "balanced" {
		return nil, fmt.Errorf("fetch_node_texts: unknown prioritization_mode %q", mode)
	}

	_, hasMaxChars := raw["max_chars"]
	_, hasBudgetTokens := raw["budget_tokens"]
	_, hasBudgetFromSettings := raw["budget_tokens_from_settings"]

	budgetKinds := 0
	for _, present := range []bool{hasMaxChars, hasBudgetTokens, hasBudgetFromSettings} {
		if present {
			budgetKinds++
		}
	}
	if budgetKinds > 1 {
		return nil, fmt.Errorf("fetch_node_texts: exactly one of max_chars, budget_tokens, budget_tokens_from_settings may be set")
	}

	a := &fetchNodeTexts{mode: mode}
	switch {
	case hasMaxChars:
		a.hasMaxChars = true
		a.maxChars = intFromAny(raw["max_chars"])
	case hasBudgetTokens:
		a.budgetTokens = intFromAny(raw["budget_tokens"])
	case hasBudgetFromSettings:
		key, _ := raw["budget_tokens_from_settings"].(string)
		if key == "" {
			return nil, fmt.Errorf("fetch_node_texts: budget_tokens_from_settings must name a settings key")
		}
		v, ok := settings.GetInt(key)
		if !ok {
			return nil, fmt.Errorf("fetch_node_texts: settings.%s must be present", key)
		}
		a.budgetTokens = v
	default:
		maxCtx, err := settings.MaxContextTokens()
		if err != nil {
			return nil, fmt.Errorf("fetch_node_texts: %w", err)
		}
		a.budgetTokens = int(float64(maxCtx) * implicitBudgetFraction)
	}

	return a, nil
}

// graphNodeInfo records one graph-only node's BFS depth and best-effort
// parent, relative to the seed set.
type graphNodeInfo struct {
	id     string
	depth  int
	parent string
}

// bfsGraphInfo walks graphEdges breadth-first from seeds, returning every
// reached non-seed node's depth and first-discovered parent.
func bfsGraphInfo(seeds []string, edges []pipeline.Edge) []graphNodeInfo {
	adj := map[string][]string{}
	for _, e := range edges {
		adj[e.FromID] = append(adj[e.FromID], e.ToID)
	}

	seedSet := map[string]struct{}{}
	for _, s := range seeds {
		seedSet[s] = struct{}{}
	}

	visited := map[string]struct{}{}
	for _, s := range seeds {
		visited[s] = struct{}{}
	}

	var out []graphNodeInfo
	frontier := append([]string(nil), seeds...)
	depth := 0
	for len(frontier) > 0 {
		depth++
		var next []string
		for _, id := range frontier {
			for _, child := range adj[id] {
				if _, seen := visited[child]; seen {
					continue
				}
				visited[child] = struct{}{}
				out = append(out, graphNodeInfo{id: child, depth: depth, parent: id})
				next = append(next, child)
			}
		}
		frontier = next
	}
	return out
}

func (a *fetchNodeTexts) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	seeds := state.RetrievalSeedNodes
	graphInfo := bfsGraphInfo(state.GraphSeedNodes, state.GraphEdges)
	sort.SliceStable(graphInfo, func(i, j int) bool {
		if graphInfo[i].depth != graphInfo[j].depth {
			return graphInfo[i].depth < graphInfo[j].depth
		}
		return graphInfo[i].id < graphInfo[j].id
	})

	seedSet := map[string]struct{}{}
	for _, s := range seeds {
		seedSet[s] = struct{}{}
	}
	// graph_expanded_nodes already includes seeds (expand_dependency_tree's
	// no-op/ok paths both fold seeds in); BFS only walks non-seed nodes, so
	// filtering graphInfo against seedSet is just belt-and-braces here.
	var graphOnly []graphNodeInfo
	for _, g := range graphInfo {
		if _, isSeed := seedSet[g.id]; !isSeed {
			graphOnly = append(graphOnly, g)
		}
	}

	type candidate struct {
		id       string
		isSeed   bool
		depth    int
		parentID string
	}

	var ordered []candidate
	switch a.mode {
	case "seed_first":
		for _, s := range seeds {
			ordered = append(ordered, candidate{id: s, isSeed: true})
		}
		for _, g := range graphOnly {
			ordered = append(ordered, candidate{id: g.id, depth: g.depth, parentID: g.parent})
		}
	case "graph_first":
		descendantsOf := map[string][]graphNodeInfo{}
		for _, g := range graphOnly {
			root := bfsRoot(g, graphInfo, seedSet)
			descendantsOf[root] = append(descendantsOf[root], g)
		}
		for _, s := range seeds {
			ordered = append(ordered, candidate{id: s, isSeed: true})
			descendants := descendantsOf[s]
			sort.SliceStable(descendants, func(i, j int) bool {
				if descendants[i].depth != descendants[j].depth {
					return descendants[i].depth < descendants[j].depth
				}
				return descendants[i].id < descendants[j].id
			})
			for _, g := range descendants {
				ordered = append(ordered, candidate{id: g.id, depth: g.depth, parentID: g.parent})
			}
		}
	default: // balanced
		i, j := 0, 0
		for i < len(seeds) || j < len(graphOnly) {
			if i < len(seeds) {
				ordered = append(ordered, candidate{id: seeds[i], isSeed: true})
				i++
			}
			if j < len(graphOnly) {
				g := graphOnly[j]
				ordered = append(ordered, candidate{id: g.id, depth: g.depth, parentID: g.parent})
				j++
			}
		}
	}

	ids := make([]string, 0, len(ordered))
	for _, c := range ordered {
		ids = append(ids, c.id)
	}

	var texts map[string]string
	if rt.Retrieval != nil && len(ids) > 0 {
		fetched, err := rt.Retrieval.FetchTexts(ctx, ids, state.Repository, state.Branch, state.RetrievalFilters, "")
		if err != nil {
			return "", fmt.Errorf("fetch_node_texts: backend fetch_texts failed: %w", err)
		}
		texts = fetched
	}

	var entries []pipeline.NodeText
	total := 0
	for _, c := range ordered {
		text, ok := texts[c.id]
		if !ok {
			continue
		}
		size, err := a.size(rt, text)
		if err != nil {
			return "", fmt.Errorf("fetch_node_texts: token count failed: %w", err)
		}
		if total+size > a.budget() {
			continue
		}
		total += size
		entries = append(entries, pipeline.NodeText{
			ID:       c.id,
			Text:     text,
			IsSeed:   c.isSeed,
			Depth:    c.depth,
			ParentID: c.parentID,
		})
	}

	state.NodeTexts = entries
	classification, aclLabels, docLevelMax := securityUnion(state.RetrievalFilters)
	state.ClassificationLabelsUnion = classification
	state.ACLLabelsUnion = aclLabels
	state.DocLevelMax = docLevelMax

	return "", nil
}

// bfsRoot walks parent pointers back to the seed node g descends from, for
// graph_first's per-seed descendant grouping.
func bfsRoot(g graphNodeInfo, all []graphNodeInfo, seedSet map[string]struct{}) string {
	byID := map[string]graphNodeInfo{}
	for _, n := range all {
		byID[n.id] = n
	}
	cur := g
	for {
		if _, isSeed := seedSet[cur.parent]; isSeed {
			return cur.parent
		}
		next, ok := byID[cur.parent]
		if !ok {
			return cur.parent
		}
		cur = next
	}
}

func (a *fetchNodeTexts) budget() int {
	if a.hasMaxChars {
		return a.maxChars
	}
	return a.budgetTokens
}

func (a *fetchNodeTexts) size(rt *pipeline.Runtime, text string) (int, error) {
	if a.hasMaxChars {
		return len(text), nil
	}
	if rt.Tokens == nil {
		return 0, fmt.Errorf("no TokenCounter configured")
	}
	return rt.Tokens.Count(text)
}

// securityUnion derives the aggregated security metadata fetch_node_texts
// writes back to state from the sacred filters actually used for this
// fetch, rather than from per-node labels the RetrievalBackend port does
// not expose (see DESIGN.md).
func securityUnion(filters acl.Filters) (classification []string, aclLabels []string, docLevelMax int) {
	if c, ok := filters.Get("classification_labels_all"); ok {
		classification = append([]string(nil), c.Value.List...)
	}
	if a, ok := filters.Get("acl_tags_any"); ok {
		aclLabels = append([]string(nil), a.Value.List...)
	}
	if d, ok := filters.Get("doc_level_max"); ok {
		docLevelMax = cast.ToInt(d.Value.Scalar)
	}
	return
}
