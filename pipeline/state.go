package pipeline

import "github.com/corpusqa/pipelineengine/acl"

// Hit is one scored retrieval result as recorded on state (spec.md §3
// retrieval_hits: {id,score,rank}).
type Hit struct {
	ID    string
	Score float64
	Rank  int
}

// Edge is one graph relation as recorded on state (graph_edges:
// {from_id,to_id,edge_type}).
type Edge struct {
	FromID   string
	ToID     string
	EdgeType string
}

// GraphDebug summarizes one expand_dependency_tree call for tracing.
type GraphDebug struct {
	Reason        string
	SeedCount     int
	ExpandedCount int
	EdgesCount    int
	Truncated     bool
}

// NodeText is one materialized context node, BFS-parented best-effort
// (spec.md §4.8).
type NodeText struct {
	ID       string
	Text     string
	IsSeed   bool
	Depth    int
	ParentID string
}

// ChatTurn is one conversation turn as handed to AskChat (history_dialog:
// {role, content}).
type ChatTurn struct {
	Role    string
	Content string
}

// QANeutral is one untranslated prior Q/A pair (history_qa_neutral).
type QANeutral struct {
	Question string
	Answer   string
}

// ParallelRoads is the fork/parallel_roads/merge mini-state-machine
// scratchpad (spec.md §4.10): plan is the ordered snapshot-id -> template
// mapping, Index is the next plan entry to dispatch, OriginalIDs restores
// state.SnapshotID/SnapshotIDB once every snapshot has run, and Results
// accumulates each snapshot's labeled context blocks.
type ParallelRoads struct {
	Plan          []string
	PlanTemplates map[string]string
	Index         int
	OriginalID    string
	OriginalIDB   string
	Results       map[string][]string
}

// PipelineState is the per-run mutable state threaded through every step.
// It never outlives a single run (spec.md §5): the engine owns one instance
// per Run call and discards it when the run ends or is cancelled.
type PipelineState struct {
	// request
	RunID          string
	SessionID      string
	UserQuery      string
	UserQuestionEn string
	TranslateChat  bool
	Repository     string
	Branch         string
	SnapshotID     string
	SnapshotIDB    string

	// SnapshotFriendlyNames is an optional host-supplied snapshot id ->
	// display name map, consulted first by merge_action's label lookup
	// (spec.md §4.10) ahead of the fork plan's own per-snapshot template.
	SnapshotFriendlyNames map[string]string

	// sacred ACL/scope, never shrinks across a run (spec.md §4.2 invariant)
	RetrievalFilters acl.Filters

	// router / response
	LastModelResponse string
	LastPrefix        string

	// retrieval
	RetrievalSeedNodes        []string
	RetrievalHits             []Hit
	RetrievalQueriesAskedNorm map[string]struct{}
	LastSearchBM25Operator    string

	// graph
	GraphSeedNodes     []string
	GraphExpandedNodes []string
	GraphEdges         []Edge
	GraphDebug         GraphDebug

	// context materialization
	NodeTexts                 []NodeText
	ContextBlocks             []string
	ClassificationLabelsUnion []string
	ACLLabelsUnion            []string
	DocLevelMax               int

	// conversation
	HistoryDialog    []ChatTurn
	HistoryQANeutral []QANeutral
	HistoryBlocks    []string
	TurnID           string

	// control
	LoopCounters       map[string]int
	Inbox              []InboxMessage
	InboxLastConsumed  []InboxMessage
	ParallelRoads      *ParallelRoads
	Variables          map[string]any

	// answer
	AnswerNeutral              string
	AnswerTranslated           string
	AnswerTranslatedIsFallback bool
	BannerNeutral              string
	BannerTranslated           string
	FinalAnswer                string
	AllowedCommands            []string

	// bookkeeping, not part of spec's named attribute set
	StepsDispatched int
	CurrentStepID   string
	Terminated      bool
}

// NewPipelineState builds the initial state for one run.
func NewPipelineState(runID, sessionID, userQuery, repository, branch, snapshotID string) *PipelineState {
	return &PipelineState{
		RunID:                     runID,
		SessionID:                 sessionID,
		UserQuery:                 userQuery,
		Repository:                repository,
		Branch:                    branch,
		SnapshotID:                snapshotID,
		RetrievalFilters:          acl.Empty(),
		RetrievalQueriesAskedNorm: map[string]struct{}{},
		LoopCounters:              map[string]int{},
		Variables:                 map[string]any{},
	}
}

// IncrementLoop bumps the named loop counter (keyed by step id, spec.md
// §4.11) and returns the new count.
func (s *PipelineState) IncrementLoop(key string) int {
	s.LoopCounters[key]++
	return s.LoopCounters[key]
}

// MarkQueryAsked records norm as an already-executed normalized query
// (search_nodes' repeat-query bookkeeping).
func (s *PipelineState) MarkQueryAsked(norm string) {
	s.RetrievalQueriesAskedNorm[norm] = struct{}{}
}

// QueryAlreadyAsked reports whether norm was already recorded.
func (s *PipelineState) QueryAlreadyAsked(norm string) bool {
	_, ok := s.RetrievalQueriesAskedNorm[norm]
	return ok
}

// CurrentAnswerText returns the first non-empty field in add_command_action's
// priority order: final_answer, answer_translated, answer_neutral,
// last_model_response (spec.md §4.14).
func (s *PipelineState) CurrentAnswerText() string {
	switch {
	case s.FinalAnswer != "":
		return s.FinalAnswer
	case s.AnswerTranslated != "":
		return s.AnswerTranslated
	case s.AnswerNeutral != "":
		return s.AnswerNeutral
	default:
		return s.LastModelResponse
	}
}
