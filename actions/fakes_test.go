package actions

import (
	"context"
	"fmt"
	"sync"

	"github.com/corpusqa/pipelineengine/acl"
	"github.com/corpusqa/pipelineengine/ports"
)

// fakeRetrieval is a scripted ports.RetrievalBackend for action tests.
// Search/FetchTexts are safe for concurrent use since search_nodes runs
// hybrid search's two legs concurrently.
type fakeRetrieval struct {
	mu           sync.Mutex
	searchByType map[string]ports.SearchResult
	texts        map[string]string
	searchCalls  []ports.SearchRequest
}

func (f *fakeRetrieval) Search(_ context.Context, req ports.SearchRequest) (ports.SearchResult, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, req)
	f.mu.Unlock()
	res, ok := f.searchByType[req.SearchType]
	if !ok {
		return ports.SearchResult{}, fmt.Errorf("fakeRetrieval: no script for search_type %q", req.SearchType)
	}
	return res, nil
}

func (f *fakeRetrieval) FetchTexts(_ context.Context, ids []string, _, _ string, _ acl.Filters, _ string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if t, ok := f.texts[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

var _ ports.RetrievalBackend = (*fakeRetrieval)(nil)

// fakeGraph is a scripted ports.GraphProvider for action tests.
type fakeGraph struct {
	expansion  ports.GraphExpansion
	err        error
	notSupport bool
}

func (f *fakeGraph) ExpandDependencyTree(_ context.Context, seeds []string, _, _ string, _, _ int, _ []string, _ acl.Filters) (ports.GraphExpansion, error) {
	if f.notSupport {
		return ports.GraphExpansion{}, ports.ErrNotImplemented
	}
	if f.err != nil {
		return ports.GraphExpansion{}, f.err
	}
	return f.expansion, nil
}

var _ ports.GraphProvider = (*fakeGraph)(nil)

// fakeTokenCounter counts tokens as whitespace-separated words, deterministic
// and cheap for budget-enforcement tests.
type fakeTokenCounter struct{}

func (fakeTokenCounter) Count(text string) (int, error) {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count, nil
}

var _ ports.TokenCounter = fakeTokenCounter{}

// fakeTranslator is a scripted ports.MarkdownTranslator.
type fakeTranslator struct {
	translate         func(string) (string, error)
	translateMarkdown func(string) (string, error)
}

func (f *fakeTranslator) Translate(_ context.Context, text string) (string, error) {
	if f.translate != nil {
		return f.translate(text)
	}
	return "translated:" + text, nil
}

func (f *fakeTranslator) TranslateMarkdown(_ context.Context, text string) (string, error) {
	if f.translateMarkdown != nil {
		return f.translateMarkdown(text)
	}
	return "", fmt.Errorf("not supported")
}

var _ ports.MarkdownTranslator = (*fakeTranslator)(nil)

// fakeHistory is a scripted ports.ConversationHistoryService.
type fakeHistory struct {
	pairs     []ports.QAPair
	finalized []ports.TurnRecord
	err       error
}

func (f *fakeHistory) OnRequestStarted(_ context.Context, _ string) (string, error) {
	return "turn-1", nil
}

func (f *fakeHistory) OnRequestFinalized(_ context.Context, record ports.TurnRecord) error {
	if f.err != nil {
		return f.err
	}
	f.finalized = append(f.finalized, record)
	return nil
}

func (f *fakeHistory) RecentQANeutral(_ context.Context, _ string, limit int) ([]ports.QAPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.pairs) {
		return f.pairs[:limit], nil
	}
	return f.pairs, nil
}

var _ ports.ConversationHistoryService = (*fakeHistory)(nil)
