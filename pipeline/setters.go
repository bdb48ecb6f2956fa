package pipeline

import "fmt"

// Setter writes value into one named slot on a PipelineState. Used by
// set_variables to target known state fields by name instead of only
// falling back to the free-form Variables map (spec.md §4.14).
type Setter func(*PipelineState, any) error

// SetterRegistry is the startup-populated name -> Setter map.
type SetterRegistry struct {
	setters map[string]Setter
}

// NewSetterRegistry builds a registry pre-populated with every set_variables
// target name spec.md names.
func NewSetterRegistry() *SetterRegistry {
	r := &SetterRegistry{setters: map[string]Setter{}}
	r.registerBuiltins()
	return r
}

// Register adds or overwrites the setter for name.
func (r *SetterRegistry) Register(name string, fn Setter) {
	r.setters[name] = fn
}

// Get resolves name to its Setter.
func (r *SetterRegistry) Get(name string) (Setter, bool) {
	fn, ok := r.setters[name]
	return fn, ok
}

// Write resolves and invokes name's setter, falling back to storing value
// under state.Variables[name] when name isn't a known state slot.
func (r *SetterRegistry) Write(name string, state *PipelineState, value any) error {
	if fn, ok := r.setters[name]; ok {
		return fn(state, value)
	}
	state.Variables[name] = value
	return nil
}

func asStringSlice(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("expected a list of strings, got %T", v)
	}
}

func asString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}

func (r *SetterRegistry) registerBuiltins() {
	r.setters["context_blocks"] = func(s *PipelineState, v any) error {
		ss, err := asStringSlice(v)
		if err != nil {
			return err
		}
		s.ContextBlocks = ss
		return nil
	}
	r.setters["history_blocks"] = func(s *PipelineState, v any) error {
		ss, err := asStringSlice(v)
		if err != nil {
			return err
		}
		s.HistoryBlocks = ss
		return nil
	}
	r.setters["answer_neutral"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.AnswerNeutral = str
		return nil
	}
	r.setters["answer_translated"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.AnswerTranslated = str
		return nil
	}
	r.setters["banner_neutral"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.BannerNeutral = str
		return nil
	}
	r.setters["banner_translated"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.BannerTranslated = str
		return nil
	}
	r.setters["final_answer"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.FinalAnswer = str
		return nil
	}
	r.setters["allowed_commands"] = func(s *PipelineState, v any) error {
		ss, err := asStringSlice(v)
		if err != nil {
			return err
		}
		s.AllowedCommands = ss
		return nil
	}
	r.setters["last_model_response"] = func(s *PipelineState, v any) error {
		str, err := asString(v)
		if err != nil {
			return err
		}
		s.LastModelResponse = str
		return nil
	}
}
