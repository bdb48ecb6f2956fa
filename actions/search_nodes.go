package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"
	stdsync "sync"

	"github.com/corpusqa/pipelineengine/acl"
	"github.com/corpusqa/pipelineengine/jsonish"
	"github.com/corpusqa/pipelineengine/pipeline"
	"github.com/corpusqa/pipelineengine/pkg/sync"
	"github.com/corpusqa/pipelineengine/ports"
)

const defaultWidenFactor = 6

var allowedReranks = map[string]bool{"": true, "none": true, "keyword_rerank": true, "codebert_rerank": true}

// searchNodes calls the retrieval backend and records canonical seed node
// ids (spec.md §4.6). Grounded on the teacher's DocumentRetriever call
// shape (ai/rag), generalized to the security-first filter merge and
// widen-then-rerank contract the spec adds.
type searchNodes struct {
	searchType     string
	topK           int
	rerank         string
	snapshotSource string
	rrfK           int
	widenFactor    int
	useQueryParser bool
}

type searchNodesFactory struct{}

func (f *searchNodesFactory) Name() string { return "search_nodes" }

func (f *searchNodesFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	searchType, err := requiredString(raw, "search_type")
	if err != nil {
		return nil, err
	}
	if searchType != "semantic" && searchType != "bm25" && searchType != "hybrid" {
		return nil, fmt.Errorf("search_nodes: unknown search_type %q", searchType)
	}

	n := &searchNodes{
		searchType:     searchType,
		rerank:         optionalString(raw, "rerank"),
		snapshotSource: optionalString(raw, "snapshot_source"),
		useQueryParser: optionalBool(raw, "query_parser") || raw["query_parser"] != nil,
	}
	if !allowedReranks[n.rerank] {
		return nil, fmt.Errorf("search_nodes: unknown rerank %q", n.rerank)
	}
	if n.rerank != "" && n.rerank != "none" && searchType != "semantic" {
		return nil, fmt.Errorf("search_nodes: rerank is only valid for search_type=semantic")
	}
	if n.snapshotSource == "" {
		n.snapshotSource = "primary"
	}

	n.widenFactor = defaultWidenFactor
	if v, ok := raw["widen_factor"]; ok {
		n.widenFactor = intFromAny(v)
		if n.widenFactor < 1 {
			return nil, fmt.Errorf("search_nodes: widen_factor must be >= 1")
		}
	}

	if v, ok := raw["top_k"]; ok {
		n.topK = intFromAny(v)
	} else if v, ok := settings.TopK(); ok {
		n.topK = v
	} else {
		return nil, fmt.Errorf("search_nodes: top_k must be set on the step or settings")
	}

	n.rrfK = 60
	if v, ok := raw["rrf_k"]; ok {
		n.rrfK = intFromAny(v)
		if n.rrfK < 1 {
			return nil, fmt.Errorf("search_nodes: rrf_k must be >= 1")
		}
	}

	return n, nil
}

func intFromAny(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (a *searchNodes) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	// mandatory step-entry cleanup (spec.md §4.6)
	state.RetrievalSeedNodes = nil
	state.RetrievalHits = nil
	state.GraphSeedNodes = nil
	state.GraphExpandedNodes = nil
	state.GraphEdges = nil
	state.GraphDebug = pipeline.GraphDebug{}
	state.NodeTexts = nil
	state.ContextBlocks = nil

	topK := a.topK

	query := state.LastModelResponse
	parsedFilters := acl.Empty()
	if a.useQueryParser {
		result, err := jsonish.Parse(state.LastModelResponse)
		if err == nil {
			if q, ok := result.Object["query"].(string); ok {
				query = q
			}
			parsedFilters = filtersFromParsed(result.Object)
		}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search_nodes: empty query after parsing")
	}

	filtersBase := state.RetrievalFilters.WithScope(state.Repository, state.Branch, state.SnapshotID)
	filtersEffective := parsedFilters.Merge(filtersBase)

	widen := topK
	if a.rerank != "" && a.rerank != "none" {
		widen = topK * a.widenFactor
	}

	var hits []ports.Hit
	if a.searchType == "hybrid" {
		semRes, bm25Res, err := runHybridLegsConcurrently(ctx, rt, query, widen, state, filtersEffective)
		if err != nil {
			return "", err
		}
		hits = fuseRRF(semRes.Hits, bm25Res.Hits, a.rrfK, topK)
	} else {
		req := ports.SearchRequest{
			SearchType: a.searchType,
			Query:      query,
			TopK:       widen,
			Repository: state.Repository,
			Branch:     state.Branch,
			Filters:    filtersEffective,
			Rerank:     a.rerank,
		}
		res, err := rt.Retrieval.Search(ctx, req)
		if err != nil {
			return "", fmt.Errorf("search_nodes: backend search failed: %w", err)
		}
		hits = res.Hits
		switch a.rerank {
		case "keyword_rerank":
			ids := make([]string, len(hits))
			for i, h := range hits {
				ids[i] = h.ID
			}
			texts, err := rt.Retrieval.FetchTexts(ctx, ids, state.Repository, state.Branch, filtersEffective, "")
			if err != nil {
				return "", fmt.Errorf("search_nodes: backend fetch_texts for rerank failed: %w", err)
			}
			hits = keywordRerank(hits, query, texts, topK)
		case "codebert_rerank":
			// the backend is asked (via req.Rerank) to apply its own
			// embedding-based rerank over the widened pool; the action
			// layer only trims the already-reranked order to top_k.
			if len(hits) > topK {
				hits = hits[:topK]
			}
		default:
			if len(hits) > topK {
				hits = hits[:topK]
			}
		}
	}

	seen := map[string]struct{}{}
	var seeds []string
	var recorded []pipeline.Hit
	for _, h := range hits {
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		seeds = append(seeds, h.ID)
		recorded = append(recorded, pipeline.Hit{ID: h.ID, Score: h.Score, Rank: h.Rank})
	}

	state.RetrievalSeedNodes = seeds
	state.RetrievalHits = recorded
	state.RetrievalFilters = filtersEffective
	state.MarkQueryAsked(normalizeQuery(query))

	return "", nil
}

// runHybridLegsConcurrently dispatches hybrid search's independent
// semantic and bm25 legs onto the process-wide goroutine pool rather than
// running them back to back, since neither leg's result depends on the
// other's (grounded on sync.DefaultPool's Submit, the same dispatch point
// the teacher's future package built its promise type on).
func runHybridLegsConcurrently(ctx context.Context, rt *pipeline.Runtime, query string, widen int, state *pipeline.PipelineState, filters acl.Filters) (ports.SearchResult, ports.SearchResult, error) {
	var wg stdsync.WaitGroup
	var semRes, bm25Res ports.SearchResult
	var semErr, bm25Err error

	wg.Add(2)
	if err := sync.DefaultPool().Submit(func() {
		defer wg.Done()
		semRes, semErr = rt.Retrieval.Search(ctx, ports.SearchRequest{
			SearchType: "semantic", Query: query, TopK: widen,
			Repository: state.Repository, Branch: state.Branch, Filters: filters,
		})
	}); err != nil {
		wg.Done()
		semErr = fmt.Errorf("search_nodes: submit semantic search: %w", err)
	}
	if err := sync.DefaultPool().Submit(func() {
		defer wg.Done()
		bm25Res, bm25Err = rt.Retrieval.Search(ctx, ports.SearchRequest{
			SearchType: "bm25", Query: query, TopK: widen,
			Repository: state.Repository, Branch: state.Branch, Filters: filters,
		})
	}); err != nil {
		wg.Done()
		bm25Err = fmt.Errorf("search_nodes: submit bm25 search: %w", err)
	}
	wg.Wait()

	if semErr != nil {
		return ports.SearchResult{}, ports.SearchResult{}, fmt.Errorf("search_nodes: backend semantic search failed: %w", semErr)
	}
	if bm25Err != nil {
		return ports.SearchResult{}, ports.SearchResult{}, fmt.Errorf("search_nodes: backend bm25 search failed: %w", bm25Err)
	}
	return semRes, bm25Res, nil
}

// fuseRRF combines two ranked hit lists by reciprocal-rank fusion
// (spec.md §4.6 hybrid fusion rule): score(id) = Σ 1/(rrfK + rank), ties
// broken by lower semantic rank, then lower bm25 rank, then stable string
// compare on id; truncated to topK.
func fuseRRF(semantic, bm25 []ports.Hit, rrfK, topK int) []ports.Hit {
	type fused struct {
		id        string
		score     float64
		semRank   int
		bm25Rank  int
		hasSem    bool
		hasBM25   bool
		bestScore ports.Hit
	}
	const noRank = 1 << 30
	entries := map[string]*fused{}
	order := make([]string, 0)
	ensure := func(id string) *fused {
		if e, ok := entries[id]; ok {
			return e
		}
		e := &fused{id: id, semRank: noRank, bm25Rank: noRank}
		entries[id] = e
		order = append(order, id)
		return e
	}
	for _, h := range semantic {
		e := ensure(h.ID)
		e.hasSem = true
		e.semRank = h.Rank
		e.score += 1.0 / float64(rrfK+h.Rank)
		e.bestScore = h
	}
	for _, h := range bm25 {
		e := ensure(h.ID)
		e.hasBM25 = true
		e.bm25Rank = h.Rank
		e.score += 1.0 / float64(rrfK+h.Rank)
		if !e.hasSem {
			e.bestScore = h
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := entries[order[i]], entries[order[j]]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.semRank != b.semRank {
			return a.semRank < b.semRank
		}
		if a.bm25Rank != b.bm25Rank {
			return a.bm25Rank < b.bm25Rank
		}
		return a.id < b.id
	})

	if len(order) > topK {
		order = order[:topK]
	}
	out := make([]ports.Hit, len(order))
	for i, id := range order {
		e := entries[id]
		out[i] = ports.Hit{ID: id, Score: e.score, Rank: i}
	}
	return out
}

// filtersFromParsed extracts any recognized ACL/scope keys a tolerant
// parse of the model payload surfaced alongside the query, to be merged
// (base-wins) with the state's sacred filters.
func filtersFromParsed(obj map[string]any) acl.Filters {
	f := acl.Empty()
	for field := range acl.SecurityFields {
		v, ok := obj[field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			f = f.With(acl.Condition{Field: field, Operator: acl.OpEquals, Value: acl.ScalarValue(val)})
		case []any:
			f = f.With(acl.Condition{Field: field, Operator: acl.OpAny, Value: acl.ListValue(val)})
		}
	}
	return f
}

// keywordRerank trims a widened hit pool to topK by a deterministic
// keyword-overlap score of query terms against each hit's fetched text,
// without introducing ids outside the pool the backend returned (spec.md
// §4.6 rerank invariant). Hits with no fetched text score 0 and fall back
// to the backend's original rank ordering.
func keywordRerank(hits []ports.Hit, query string, texts map[string]string, topK int) []ports.Hit {
	terms := strings.Fields(strings.ToLower(query))
	type scored struct {
		hit   ports.Hit
		score int
	}
	out := make([]scored, len(hits))
	for i, h := range hits {
		out[i] = scored{hit: h, score: keywordOverlapScore(terms, texts[h.ID])}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].hit.Rank < out[j].hit.Rank
	})
	if len(out) > topK {
		out = out[:topK]
	}
	result := make([]ports.Hit, len(out))
	for i, s := range out {
		result[i] = ports.Hit{ID: s.hit.ID, Score: s.hit.Score, Rank: i}
	}
	return result
}

// keywordOverlapScore counts total occurrences of each query term in text,
// case-insensitively.
func keywordOverlapScore(terms []string, text string) int {
	if text == "" || len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0
	for _, term := range terms {
		if term == "" {
			continue
		}
		score += strings.Count(lower, term)
	}
	return score
}
