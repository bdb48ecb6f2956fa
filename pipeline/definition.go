package pipeline

import "strings"

// StepDef is one step of a PipelineDefinition: an id, the action that
// executes it, and its action-specific raw config (spec.md §3).
type StepDef struct {
	ID     string
	Action string
	Next   string
	End    bool
	Raw    map[string]any
}

// NewStepDef builds a StepDef from a raw per-step config map, pulling the
// generic `next`/`end` keys out for direct access while keeping the full
// map (including `next`/`end`) in Raw for action factories to re-read.
func NewStepDef(id, action string, raw map[string]any) StepDef {
	if raw == nil {
		raw = map[string]any{}
	}
	next, _ := raw["next"].(string)
	end, _ := raw["end"].(bool)
	return StepDef{ID: id, Action: action, Next: next, End: end, Raw: raw}
}

// ReferencedStepIDs returns every step id this step's config points at via
// `next`, any `on_*` key, or `routes.<k>.next` / `routes.<k>` — the set
// spec.md §4.1 requires the Loader to validate resolves.
func (s StepDef) ReferencedStepIDs() []string {
	var ids []string
	if s.Next != "" {
		ids = append(ids, s.Next)
	}
	for k, v := range s.Raw {
		if k == "next" {
			continue
		}
		if strings.HasPrefix(k, "on_") {
			if str, ok := v.(string); ok && str != "" {
				ids = append(ids, str)
			}
			continue
		}
		if k == "routes" {
			if m, ok := v.(map[string]any); ok {
				for _, rv := range m {
					switch rt := rv.(type) {
					case string:
						if rt != "" {
							ids = append(ids, rt)
						}
					case map[string]any:
						if nxt, ok := rt["next"].(string); ok && nxt != "" {
							ids = append(ids, nxt)
						}
					}
				}
			}
		}
	}
	return ids
}

// StringField reads a string field directly out of Raw.
func (s StepDef) StringField(key string) (string, bool) {
	v, ok := s.Raw[key].(string)
	return v, ok && v != ""
}

// Definition is an immutable, loaded-and-validated pipeline graph (spec.md
// §3). Steps are addressed by id; Order is the step ids sorted alphabetically, used only for
// deterministic iteration in validation/docs, never for execution order.
type Definition struct {
	Name        string
	Extends     string
	Settings    Settings
	EntryStepID string
	Steps       map[string]StepDef
	Order       []string
	Fingerprint string
}

// Step looks up a step by id.
func (d *Definition) Step(id string) (StepDef, bool) {
	s, ok := d.Steps[id]
	return s, ok
}
