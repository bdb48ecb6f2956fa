package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/corpusqa/pipelineengine/jsonish"
	"github.com/corpusqa/pipelineengine/pipeline"
)

// routeTarget is one prefix_router route: the literal prefix to match and
// the step to dispatch to on match.
type routeTarget struct {
	kind   string
	prefix string
	next   string
}

// prefixRouter decodes a manual-mode model response by leading marker
// string (spec.md §4.5 prefix_router).
type prefixRouter struct {
	routes  []routeTarget
	onOther string
}

type prefixRouterFactory struct{}

func (f *prefixRouterFactory) Name() string { return "prefix_router" }

func (f *prefixRouterFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	onOther, err := requiredString(raw, "on_other")
	if err != nil {
		return nil, err
	}
	rawRoutes, err := requiredStringMap(raw, "routes")
	if err != nil {
		return nil, err
	}

	kinds := make([]string, 0, len(rawRoutes))
	for k := range rawRoutes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	routes := make([]routeTarget, 0, len(rawRoutes))
	for _, kind := range kinds {
		m, _ := rawRoutes[kind].(map[string]any)
		prefix, _ := m["prefix"].(string)
		next, _ := m["next"].(string)
		if prefix == "" || next == "" {
			return nil, fmt.Errorf("prefix_router route %q requires a non-empty prefix and next", kind)
		}
		routes = append(routes, routeTarget{kind: kind, prefix: prefix, next: next})
	}

	return &prefixRouter{routes: routes, onOther: onOther}, nil
}

func (a *prefixRouter) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	text := strings.TrimSpace(state.LastModelResponse)
	for _, r := range a.routes {
		if strings.HasPrefix(text, r.prefix) {
			state.LastPrefix = r.kind
			remainder := strings.TrimSpace(strings.TrimPrefix(text, r.prefix))
			state.LastModelResponse = remainder
			return r.next, nil
		}
	}
	state.LastPrefix = ""
	state.LastModelResponse = text
	return a.onOther, nil
}

// jsonDecisionRouter decodes a JSON-shaped model response via a named
// decision field (spec.md §4.5 json_decision_router).
type jsonDecisionRouter struct {
	routes  map[string]string
	onOther string
}

type jsonDecisionRouterFactory struct{}

func (f *jsonDecisionRouterFactory) Name() string { return "json_decision_router" }

func (f *jsonDecisionRouterFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	onOther, err := requiredString(raw, "on_other")
	if err != nil {
		return nil, err
	}
	rawRoutes, err := requiredStringMap(raw, "routes")
	if err != nil {
		return nil, err
	}
	routes := make(map[string]string, len(rawRoutes))
	for decision, v := range rawRoutes {
		next, _ := v.(string)
		if next == "" {
			return nil, fmt.Errorf("json_decision_router route %q requires a non-empty next step id", decision)
		}
		routes[decision] = next
	}
	return &jsonDecisionRouter{routes: routes, onOther: onOther}, nil
}

var decisionRoutingKeys = []string{"decision", "route", "mode"}

func (a *jsonDecisionRouter) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	result, err := jsonish.Parse(state.LastModelResponse)
	if err != nil {
		state.LastPrefix = ""
		return a.onOther, nil
	}

	decision, ok := jsonish.ExtractDecision(result.Object, decisionRoutingKeys...)
	if !ok {
		return a.onOther, nil
	}

	cleaned, err := jsonish.StripKeysSorted(result.Clean, decisionRoutingKeys)
	if err == nil {
		state.LastModelResponse = cleaned
	}

	next, ok := a.routes[decision]
	if !ok {
		return a.onOther, nil
	}
	return next, nil
}

// repeatQueryGuard rejects empty or already-executed normalized queries
// before they reach search_nodes (spec.md §4.5 repeat_query_guard).
type repeatQueryGuard struct {
	onOK     string
	onRepeat string
}

type repeatQueryGuardFactory struct{}

func (f *repeatQueryGuardFactory) Name() string { return "repeat_query_guard" }

func (f *repeatQueryGuardFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	onOK, err := requiredString(raw, "on_ok")
	if err != nil {
		return nil, err
	}
	onRepeat, err := requiredString(raw, "on_repeat")
	if err != nil {
		return nil, err
	}
	return &repeatQueryGuard{onOK: onOK, onRepeat: onRepeat}, nil
}

func (a *repeatQueryGuard) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	query := extractQuery(state.LastModelResponse)
	norm := normalizeQuery(query)
	if norm == "" || state.QueryAlreadyAsked(norm) {
		return a.onRepeat, nil
	}
	return a.onOK, nil
}

// extractQuery pulls a candidate query string out of a model payload:
// tolerant JSON with a "query" field, else the raw trimmed text.
func extractQuery(payload string) string {
	result, err := jsonish.Parse(payload)
	if err == nil {
		if v, ok := result.Object["query"].(string); ok {
			return v
		}
	}
	return strings.TrimSpace(payload)
}

// normalizeQuery trims, lowercases, and collapses internal whitespace.
func normalizeQuery(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	return strings.Join(strings.Fields(q), " ")
}

// inboxDispatcherRule is one rules[target_step_id] entry.
type inboxDispatcherRule struct {
	topic     string
	allowKeys map[string]struct{}
	rename    map[string]string
}

// inboxDispatcher reads side-channel directives out of a model payload and
// enqueues InboxMessages for later steps, without altering routing itself
// (spec.md §4.5 inbox_dispatcher).
type inboxDispatcher struct {
	rules        map[string]inboxDispatcherRule
	directivesKey string
}

type inboxDispatcherFactory struct{}

func (f *inboxDispatcherFactory) Name() string { return "inbox_dispatcher" }

func (f *inboxDispatcherFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	rawRules, err := requiredStringMap(raw, "rules")
	if err != nil {
		return nil, err
	}
	rules := make(map[string]inboxDispatcherRule, len(rawRules))
	for target, rv := range rawRules {
		m, _ := rv.(map[string]any)
		rule := inboxDispatcherRule{topic: optionalString(m, "topic")}
		if allow, ok := m["allow_keys"].([]any); ok {
			rule.allowKeys = map[string]struct{}{}
			for _, k := range allow {
				if s, ok := k.(string); ok {
					rule.allowKeys[s] = struct{}{}
				}
			}
		}
		if rename, ok := m["rename"].(map[string]any); ok {
			rule.rename = map[string]string{}
			for k, v := range rename {
				if s, ok := v.(string); ok {
					rule.rename[k] = s
				}
			}
		}
		rules[target] = rule
	}

	directivesKey := optionalString(raw, "directives_key")
	if directivesKey == "" {
		directivesKey = "dispatch"
	}

	return &inboxDispatcher{rules: rules, directivesKey: directivesKey}, nil
}

func (a *inboxDispatcher) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	result, err := jsonish.Parse(state.LastModelResponse)
	if err != nil {
		return "", nil
	}

	rawDirectives := result.Object[a.directivesKey]
	directives := toDirectiveList(rawDirectives)

	for _, d := range directives {
		target := firstString(d, "target_step_id", "target", "id")
		if target == "" {
			continue
		}
		rule, ok := a.rules[target]
		if !ok {
			continue
		}

		topic := firstString(d, "topic")
		if topic == "" {
			topic = rule.topic
		}
		if topic == "" {
			topic = "config"
		}

		candidate, ok := d["payload"].(map[string]any)
		if !ok {
			candidate = shorthandPayload(d)
		}

		payload := filterAndRename(candidate, rule)
		if len(payload) == 0 {
			continue
		}

		state.Enqueue(pipeline.InboxMessage{
			TargetStepID: target,
			Topic:        topic,
			Payload:      payload,
			SenderStepID: state.CurrentStepID,
		})
	}

	return "", nil
}

func toDirectiveList(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

var routingKeys = map[string]struct{}{
	"target_step_id": {}, "target": {}, "id": {}, "topic": {}, "payload": {},
}

// shorthandPayload treats every non-routing key on the directive itself as
// the payload, the shorthand form spec.md §4.5 allows in place of an
// explicit "payload" field.
func shorthandPayload(d map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range d {
		if _, reserved := routingKeys[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

func filterAndRename(candidate map[string]any, rule inboxDispatcherRule) map[string]any {
	if len(rule.allowKeys) == 0 {
		return nil
	}
	out := map[string]any{}
	for k, v := range candidate {
		if _, allowed := rule.allowKeys[k]; !allowed {
			continue
		}
		key := k
		if rule.rename != nil {
			if renamed, ok := rule.rename[k]; ok {
				key = renamed
			}
		}
		out[key] = v
	}
	return out
}
