// Package ports declares the collaborator interfaces the pipeline engine
// requires of its host process: retrieval backend, graph provider, LLM
// client, token counter, conversation history, translator, cancellation and
// trace sink. Concrete implementations of the production backends are out
// of scope (spec.md §1); this package is the contract, plus (in sibling
// packages) minimal reference/in-memory adapters that satisfy it.
package ports

import (
	"context"
	"errors"

	"github.com/corpusqa/pipelineengine/acl"
)

// ErrNotImplemented is returned by a collaborator method a particular
// adapter does not support, letting callers (expand_dependency_tree) tell
// "this operation isn't offered by this provider" apart from a transient
// failure and degrade to a recorded no-op instead of a fatal error.
var ErrNotImplemented = errors.New("ports: not implemented")

// Hit is a single ranked retrieval result.
type Hit struct {
	ID    string
	Score float64
	Rank  int
}

// SearchRequest is the canonical request shape RetrievalBackend.Search
// accepts, covering semantic, bm25 and hybrid search uniformly.
type SearchRequest struct {
	SearchType  string // "semantic", "bm25", "hybrid"
	Query       string
	TopK        int
	Repository  string
	Branch      string
	Filters     acl.Filters
	ActiveIndex string
	// Rerank names a rerank strategy the caller wants applied, for backends
	// that can do it more cheaply in-index than the action layer could
	// in-process (e.g. "codebert_rerank", which needs an embedding model the
	// action layer has no access to). Empty or "none" means no hint; a
	// backend that doesn't recognize the value is free to ignore it.
	Rerank string
}

// SearchResult is what a backend returns for a SearchRequest.
type SearchResult struct {
	Hits  []Hit
	Debug map[string]any
}

// RetrievalBackend is the vector/keyword search + text-fetch collaborator.
// Implementations must enforce Filters themselves; the engine never fetches
// text bypassing ACL.
type RetrievalBackend interface {
	Search(ctx context.Context, req SearchRequest) (SearchResult, error)
	FetchTexts(ctx context.Context, ids []string, repository, branch string, filters acl.Filters, activeIndex string) (map[string]string, error)
}

// Edge is a directed dependency edge between two canonical node ids.
type Edge struct {
	FromID   string
	ToID     string
	EdgeType string
}

// GraphExpansion is what GraphProvider.ExpandDependencyTree returns.
type GraphExpansion struct {
	Nodes []string
	Edges []Edge
}

// GraphProvider expands a dependency tree from seed nodes. Implementations
// must enforce Filters themselves.
type GraphProvider interface {
	ExpandDependencyTree(ctx context.Context, seeds []string, repository, branch string, maxDepth, maxNodes int, edgeAllowlist []string, filters acl.Filters) (GraphExpansion, error)
}

// ChatMessage is one turn of conversation history passed to AskChat.
type ChatMessage struct {
	Role    string // "user" or "assistant"
	Content string
}

// GenOptions carries optional generation overrides. A nil *float64/*int
// field means "don't override" — the LLMClient applies its own default.
type GenOptions struct {
	MaxTokens       *int
	MaxOutputTokens *int
	Temperature     *float64
	TopK            *int
	TopP            *float64
}

// MaxTokensEffective resolves the MaxTokens/MaxOutputTokens override,
// MaxOutputTokens winning per spec.md §4.4.
func (g *GenOptions) MaxTokensEffective() (int, bool) {
	if g == nil {
		return 0, false
	}
	if g.MaxOutputTokens != nil {
		return *g.MaxOutputTokens, true
	}
	if g.MaxTokens != nil {
		return *g.MaxTokens, true
	}
	return 0, false
}

// LLMClient is the model-calling collaborator: manual single-prompt calls
// and native chat calls with optional history.
type LLMClient interface {
	Ask(ctx context.Context, prompt string, opts *GenOptions) (string, error)
	AskChat(ctx context.Context, system, user string, history []ChatMessage, opts *GenOptions) (string, error)
}

// TokenCounter deterministically counts tokens for budget enforcement.
type TokenCounter interface {
	Count(text string) (int, error)
}

// QAPair is one neutral (already-English) question/answer pair returned by
// RecentQANeutral.
type QAPair struct {
	Q string
	A string
}

// TurnRecord is what OnRequestFinalized persists for a completed turn.
type TurnRecord struct {
	SessionID string
	TurnID    string
	Query     string
	Answer    string
}

// ConversationHistoryService is a best-effort collaborator: callers must
// guard for errors and degrade to empty/no-op rather than fail the run.
type ConversationHistoryService interface {
	OnRequestStarted(ctx context.Context, sessionID string) (turnID string, err error)
	OnRequestFinalized(ctx context.Context, record TurnRecord) error
	RecentQANeutral(ctx context.Context, sessionID string, limit int) ([]QAPair, error)
}

// Translator is an optional best-effort collaborator. TranslateMarkdown may
// be unimplemented by a given adapter; callers type-assert for it and fall
// back to Translate.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// MarkdownTranslator is implemented by Translators that can preserve
// markdown structure across translation; translate_out_if_needed prefers it
// when available (spec.md §4.13).
type MarkdownTranslator interface {
	Translator
	TranslateMarkdown(ctx context.Context, text string) (string, error)
}

// Cancellation reports whether the current run has been cancelled. Checked
// before every step dispatch and when an action returns (spec.md §5).
type Cancellation interface {
	Canceled() bool
}

// TraceEvent is a single emitted trace record (spec.md §6).
type TraceEvent struct {
	Type              string // "step" or "done"
	Ts                int64
	RunID             string
	StepID            string
	ActionID          string
	Summary           string
	SummaryTranslated string
	Details           map[string]any
	Docs              []string
	Reason            string // for Type == "done": "done" or "cancelled"
}

// TraceSink streams TraceEvents out of the engine. Best-effort: a failing
// sink must not fail the run.
type TraceSink interface {
	Emit(event TraceEvent) error
}
