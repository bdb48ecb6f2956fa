package pipeline

import (
	"fmt"

	"github.com/spf13/cast"
)

// Settings is the deep-merged `pipeline.settings` map (spec.md §3). It
// keeps the raw map as the merge substrate (so `extends` resolution stays a
// plain recursive map merge) and exposes typed, defaulted accessors for the
// fields actions and the engine read by name.
type Settings struct {
	Raw map[string]any
}

// NewSettings wraps a raw settings map. A nil map is treated as empty.
func NewSettings(raw map[string]any) Settings {
	if raw == nil {
		raw = map[string]any{}
	}
	return Settings{Raw: raw}
}

// Get returns the raw value for key, if present.
func (s Settings) Get(key string) (any, bool) {
	v, ok := s.Raw[key]
	return v, ok
}

// GetInt returns key coerced to int, if present.
func (s Settings) GetInt(key string) (int, bool) {
	v, ok := s.Raw[key]
	if !ok {
		return 0, false
	}
	return cast.ToInt(v), true
}

// GetStringSlice returns key coerced to []string, if present and non-nil.
// A present-but-null YAML value (graph_edge_allowlist: null) is reported as
// absent, distinguishing it from an explicit empty list.
func (s Settings) GetStringSlice(key string) ([]string, bool) {
	v, ok := s.Raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return cast.ToStringSlice(v), true
}

// MaxContextTokens is required, > 0.
func (s Settings) MaxContextTokens() (int, error) {
	v, ok := s.GetInt("max_context_tokens")
	if !ok || v <= 0 {
		return 0, fmt.Errorf("settings.max_context_tokens must be a positive integer")
	}
	return v, nil
}

// MaxHistoryTokens defaults to 0 (history disabled) when absent.
func (s Settings) MaxHistoryTokens() int {
	v, _ := s.GetInt("max_history_tokens")
	return v
}

// MaxTurnLoops defaults to 4.
func (s Settings) MaxTurnLoops() int {
	v, ok := s.GetInt("max_turn_loops")
	if !ok {
		return 4
	}
	return v
}

// BudgetSafetyMarginTokens defaults to 128.
func (s Settings) BudgetSafetyMarginTokens() int {
	v, ok := s.GetInt("budget_safety_margin_tokens")
	if !ok {
		return 128
	}
	return v
}

// GraphMaxDepth is required by expand_dependency_tree's
// max_depth_from_settings indirection, >= 1.
func (s Settings) GraphMaxDepth() (int, error) {
	v, ok := s.GetInt("graph_max_depth")
	if !ok || v < 1 {
		return 0, fmt.Errorf("settings.graph_max_depth must be >= 1")
	}
	return v, nil
}

// GraphMaxNodes is required by expand_dependency_tree's
// max_nodes_from_settings indirection, >= 1.
func (s Settings) GraphMaxNodes() (int, error) {
	v, ok := s.GetInt("graph_max_nodes")
	if !ok || v < 1 {
		return 0, fmt.Errorf("settings.graph_max_nodes must be >= 1")
	}
	return v, nil
}

// GraphEdgeAllowlist returns nil when the setting is absent or explicitly
// null (no filtering), and the configured list otherwise. An
// explicit empty list disables traversal entirely (spec.md §8 boundary).
func (s Settings) GraphEdgeAllowlist() []string {
	list, _ := s.GetStringSlice("graph_edge_allowlist")
	return list
}

// ModelContextWindow is optional, used by prompt-format builders that need
// to know the model's hard context ceiling.
func (s Settings) ModelContextWindow() (int, bool) {
	return s.GetInt("model_context_window")
}

// TopK is the pipeline-level default search width, used when a step omits
// its own top_k.
func (s Settings) TopK() (int, bool) {
	return s.GetInt("top_k")
}

// Repository is the default repository scope for retrieval/graph calls.
func (s Settings) Repository() string {
	v, _ := s.Raw["repository"].(string)
	return v
}

// StagesVisibility controls global trace visibility: allowed, forbidden,
// explicit, or pipeline_driven. Defaults to "allowed".
func (s Settings) StagesVisibility() string {
	v, _ := s.Raw["stages_visibility"].(string)
	if v == "" {
		return "allowed"
	}
	return v
}

// StrictInbox resolves spec.md's open question on unconsumed-inbox policy:
// false (lenient/logged) unless the pipeline opts in.
func (s Settings) StrictInbox() bool {
	v, _ := s.Raw["strict_inbox"].(bool)
	return v
}

// StepDispatchCap bounds total steps dispatched per run, defeating
// pathological cycles. Defaults to 200 (spec.md §4.2).
func (s Settings) StepDispatchCap() int {
	v, ok := s.GetInt("step_dispatch_cap")
	if !ok || v <= 0 {
		return 200
	}
	return v
}

// deepMergeMaps merges child into parent: child's scalars/lists override
// parent's, nested maps merge recursively, keys present only in one side
// are kept. Neither argument is mutated.
func deepMergeMaps(parent, child map[string]any) map[string]any {
	out := make(map[string]any, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, cv := range child {
		pv, exists := out[k]
		if !exists {
			out[k] = cv
			continue
		}
		pm, pok := pv.(map[string]any)
		cm, cok := cv.(map[string]any)
		if pok && cok {
			out[k] = deepMergeMaps(pm, cm)
			continue
		}
		out[k] = cv
	}
	return out
}
