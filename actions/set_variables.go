package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/corpusqa/pipelineengine/jsonish"
	"github.com/corpusqa/pipelineengine/pipeline"
)

// setVariablesRule is one sequential {set, from|value, transform} rule
// (spec.md §4.14). No dot-paths; from/value are mutually exclusive.
type setVariablesRule struct {
	set       string
	fromName  string
	hasFrom   bool
	value     any
	hasValue  bool
	transform string
}

type setVariables struct {
	accessors *pipeline.AccessorRegistry
	setters   *pipeline.SetterRegistry
	rules     []setVariablesRule
}

type setVariablesFactory struct {
	accessors *pipeline.AccessorRegistry
}

func (f *setVariablesFactory) Name() string { return "set_variables" }

var allowedTransforms = map[string]bool{
	"copy":              true,
	"to_list":           true,
	"split_lines":       true,
	"parse_json":        true,
	"to_context_blocks": true,
	"clear":             true,
}

func (f *setVariablesFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	rawRules, ok := raw["rules"].([]any)
	if !ok || len(rawRules) == 0 {
		return nil, fmt.Errorf("set_variables: \"rules\" is required and must be a non-empty list")
	}

	rules := make([]setVariablesRule, 0, len(rawRules))
	for i, re := range rawRules {
		rm, ok := re.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("set_variables: rules[%d] must be a mapping", i)
		}
		set, err := requiredString(rm, "set")
		if err != nil {
			return nil, fmt.Errorf("set_variables: rules[%d]: %w", i, err)
		}
		transform := optionalString(rm, "transform")
		if transform == "" {
			transform = "copy"
		}
		if !allowedTransforms[transform] {
			return nil, fmt.Errorf("set_variables: rules[%d]: unknown transform %q", i, transform)
		}

		_, hasFrom := rm["from"]
		_, hasValue := rm["value"]
		if transform != "clear" {
			if hasFrom == hasValue {
				return nil, fmt.Errorf("set_variables: rules[%d]: exactly one of \"from\" or \"value\" must be set", i)
			}
		}

		rule := setVariablesRule{set: set, transform: transform, hasFrom: hasFrom, hasValue: hasValue}
		if hasFrom {
			from, err := requiredString(rm, "from")
			if err != nil {
				return nil, fmt.Errorf("set_variables: rules[%d]: %w", i, err)
			}
			rule.fromName = from
		}
		if hasValue {
			rule.value = rm["value"]
		}
		rules = append(rules, rule)
	}

	return &setVariables{accessors: f.accessors, setters: pipeline.NewSetterRegistry(), rules: rules}, nil
}

func (a *setVariables) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	for _, rule := range a.rules {
		var input any
		var err error

		switch {
		case rule.transform == "clear":
			input = nil
		case rule.hasFrom:
			input, err = a.accessors.Read(rule.fromName, state)
		case rule.hasValue:
			input = rule.value
		}
		if err != nil {
			return "", pipeline.NewError(pipeline.CodeStepFatal, state.CurrentStepID, fmt.Errorf("set_variables: rule for %q: %w", rule.set, err))
		}

		out, err := applyTransform(rule.transform, input)
		if err != nil {
			return "", pipeline.NewError(pipeline.CodeStepFatal, state.CurrentStepID, fmt.Errorf("set_variables: rule for %q: %w", rule.set, err))
		}

		if err := a.setters.Write(rule.set, state, out); err != nil {
			return "", pipeline.NewError(pipeline.CodeStepFatal, state.CurrentStepID, fmt.Errorf("set_variables: writing %q: %w", rule.set, err))
		}
	}
	return "", nil
}

func applyTransform(transform string, input any) (any, error) {
	switch transform {
	case "copy":
		return input, nil
	case "clear":
		return nil, nil
	case "to_list":
		switch v := input.(type) {
		case []string:
			return v, nil
		case []any:
			return v, nil
		case string:
			return []string{v}, nil
		case nil:
			return []string{}, nil
		default:
			return nil, fmt.Errorf("to_list: unsupported input type %T", input)
		}
	case "split_lines":
		s, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("split_lines: input must be a string, got %T", input)
		}
		lines := strings.Split(s, "\n")
		out := make([]string, 0, len(lines))
		for _, l := range lines {
			l = strings.TrimRight(l, "\r")
			if l != "" {
				out = append(out, l)
			}
		}
		return out, nil
	case "parse_json":
		s, ok := input.(string)
		if !ok {
			return nil, fmt.Errorf("parse_json: input must be a string, got %T", input)
		}
		result, err := jsonish.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse_json: %w", err)
		}
		return result.Object, nil
	case "to_context_blocks":
		switch v := input.(type) {
		case []string:
			return v, nil
		case string:
			return []string{v}, nil
		default:
			return nil, fmt.Errorf("to_context_blocks: unsupported input type %T", input)
		}
	default:
		return nil, fmt.Errorf("unknown transform %q", transform)
	}
}
