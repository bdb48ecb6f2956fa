package pipeline

import "fmt"

// Accessor reads one named, zero-arg value off a PipelineState. Used by
// call_model's user_parts.source and set_variables' from, in place of
// runtime reflection over PipelineState's fields (spec.md Design Notes
// §9: "implement as an explicit state-accessor
// registry populated at startup, not via reflection; unknown names are
// fatal").
type Accessor func(*PipelineState) (any, error)

// AccessorRegistry is the startup-populated name -> Accessor map.
type AccessorRegistry struct {
	accessors map[string]Accessor
}

// NewAccessorRegistry builds a registry pre-populated with every state
// attribute and zero-arg accessor spec.md names.
func NewAccessorRegistry() *AccessorRegistry {
	r := &AccessorRegistry{accessors: map[string]Accessor{}}
	r.registerBuiltins()
	return r
}

// Register adds or overwrites the accessor for name. Exposed so a host
// process can extend the registry with pipeline-specific accessors beyond
// the built-in state attributes.
func (r *AccessorRegistry) Register(name string, fn Accessor) {
	r.accessors[name] = fn
}

// Get resolves name to its Accessor. Unknown names are the caller's
// responsibility to treat as fatal config errors (ok=false).
func (r *AccessorRegistry) Get(name string) (Accessor, bool) {
	fn, ok := r.accessors[name]
	return fn, ok
}

// Read resolves and invokes name's accessor in one call, wrapping an
// unknown name as a CodeInvalidConfig error.
func (r *AccessorRegistry) Read(name string, state *PipelineState) (any, error) {
	fn, ok := r.accessors[name]
	if !ok {
		return nil, NewError(CodeInvalidConfig, "", fmt.Errorf("unknown state accessor %q", name))
	}
	return fn(state)
}

func (r *AccessorRegistry) registerBuiltins() {
	r.accessors["user_query"] = func(s *PipelineState) (any, error) { return s.UserQuery, nil }
	r.accessors["user_question_en"] = func(s *PipelineState) (any, error) { return s.UserQuestionEn, nil }
	r.accessors["session_id"] = func(s *PipelineState) (any, error) { return s.SessionID, nil }
	r.accessors["repository"] = func(s *PipelineState) (any, error) { return s.Repository, nil }
	r.accessors["branch"] = func(s *PipelineState) (any, error) { return s.Branch, nil }
	r.accessors["snapshot_id"] = func(s *PipelineState) (any, error) { return s.SnapshotID, nil }
	r.accessors["snapshot_id_b"] = func(s *PipelineState) (any, error) { return s.SnapshotIDB, nil }
	r.accessors["last_model_response"] = func(s *PipelineState) (any, error) { return s.LastModelResponse, nil }
	r.accessors["last_prefix"] = func(s *PipelineState) (any, error) { return s.LastPrefix, nil }
	r.accessors["answer_neutral"] = func(s *PipelineState) (any, error) { return s.AnswerNeutral, nil }
	r.accessors["answer_translated"] = func(s *PipelineState) (any, error) { return s.AnswerTranslated, nil }
	r.accessors["final_answer"] = func(s *PipelineState) (any, error) { return s.FinalAnswer, nil }
	r.accessors["turn_id"] = func(s *PipelineState) (any, error) { return s.TurnID, nil }
	r.accessors["context_blocks"] = func(s *PipelineState) (any, error) { return s.ContextBlocks, nil }
	r.accessors["history_blocks"] = func(s *PipelineState) (any, error) { return s.HistoryBlocks, nil }
	r.accessors["retrieval_seed_nodes"] = func(s *PipelineState) (any, error) { return s.RetrievalSeedNodes, nil }
	r.accessors["graph_expanded_nodes"] = func(s *PipelineState) (any, error) { return s.GraphExpandedNodes, nil }
	r.accessors["current_answer_text"] = func(s *PipelineState) (any, error) { return s.CurrentAnswerText(), nil }
}
