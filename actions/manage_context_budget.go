package actions

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/corpusqa/pipelineengine/pipeline"
)

// compactRule is one compact_code.rules entry (spec.md §4.9): first
// first-match-wins by language.
type compactRule struct {
	language  string
	policy    string // always, threshold, demand
	threshold float64
	inboxKey  string
}

// manageContextBudget is the global prompt-token budget gate: per node,
// detect language, apply the first matching compaction rule, and either
// accumulate into context_blocks or signal on_over for a demand-compaction
// retry (spec.md §4.9). Grounded on ai/rag's RankDocumentRefiner
// budget-aware truncate, generalized to per-language compaction policy and
// the atomic-misconfiguration precondition the spec adds.
type manageContextBudget struct {
	onOK             string
	onOver           string
	rules            []compactRule
	divideNewContent string
	hasDivider       bool
	maxContextTokens int
	safetyMargin     int
}

type manageContextBudgetFactory struct{}

func (f *manageContextBudgetFactory) Name() string { return "manage_context_budget" }

func (f *manageContextBudgetFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	onOK, err := requiredString(raw, "on_ok")
	if err != nil {
		return nil, err
	}
	onOver, err := requiredString(raw, "on_over")
	if err != nil {
		return nil, err
	}

	maxContextTokens, err := settings.MaxContextTokens()
	if err != nil {
		return nil, fmt.Errorf("manage_context_budget: %w", err)
	}

	a := &manageContextBudget{
		onOK:             onOK,
		onOver:           onOver,
		maxContextTokens: maxContextTokens,
		safetyMargin:     settings.BudgetSafetyMarginTokens(),
	}

	if cc, ok := raw["compact_code"].(map[string]any); ok {
		rawRules, _ := cc["rules"].([]any)
		for _, rv := range rawRules {
			m, _ := rv.(map[string]any)
			language, _ := m["language"].(string)
			policy, _ := m["policy"].(string)
			if language == "" || (language != "sql" && language != "dotnet") {
				return nil, fmt.Errorf("manage_context_budget: compact_code rule requires language in {sql, dotnet}")
			}
			if policy != "always" && policy != "threshold" && policy != "demand" {
				return nil, fmt.Errorf("manage_context_budget: compact_code rule requires policy in {always, threshold, demand}")
			}
			rule := compactRule{language: language, policy: policy}
			if policy == "threshold" {
				th, ok := m["threshold"].(float64)
				if !ok || th <= 0 || th > 1 {
					return nil, fmt.Errorf("manage_context_budget: threshold policy requires threshold in (0,1]")
				}
				rule.threshold = th
			}
			if policy == "demand" {
				key, _ := m["inbox_key"].(string)
				if key == "" {
					return nil, fmt.Errorf("manage_context_budget: demand policy requires inbox_key")
				}
				rule.inboxKey = key
			}
			a.rules = append(a.rules, rule)
		}
		if div, ok := cc["divide_new_content"].(string); ok {
			a.divideNewContent = div
			a.hasDivider = true
		}
	}

	return a, nil
}

var (
	sqlKeywordRe    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|create\s+table|merge|from|where)\b`)
	dotnetKeywordRe = regexp.MustCompile(`(?i)\b(namespace|using\s+System|public\s+class|async\s+Task)\b`)
)

// detectLanguage is a best-effort keyword sniff over a node's text; nodes
// matching neither sql nor dotnet signatures are "unknown" and never match
// a compact_code rule (since rules only name sql/dotnet).
func detectLanguage(text string) string {
	switch {
	case sqlKeywordRe.MatchString(text):
		return "sql"
	case dotnetKeywordRe.MatchString(text):
		return "dotnet"
	default:
		return "unknown"
	}
}

func (a *manageContextBudget) ruleFor(language string) (compactRule, bool) {
	for _, r := range a.rules {
		if r.language == language {
			return r, true
		}
	}
	return compactRule{}, false
}

// demandActive reports whether a consumed inbox message addressed to this
// step carries topic == inboxKey, the signal that activates a "demand"
// compaction policy this pass (spec.md §4.9).
func demandActive(state *pipeline.PipelineState, inboxKey string) bool {
	for _, m := range state.InboxLastConsumed {
		if m.Topic == inboxKey {
			return true
		}
	}
	return false
}

// compactText is a deterministic whitespace/blank-line collapse, the
// concrete "compact" transform applied when a rule decides to compact a
// node's text.
func compactText(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := false
	for _, l := range lines {
		trimmed := strings.TrimRight(l, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

func formatNodeBlock(id, language string, compact bool, text string) string {
	return fmt.Sprintf("id: %s\npath: %s\nlanguage: %s\ncompact: %t\ntext:\n%s", id, id, language, compact, text)
}

func (a *manageContextBudget) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	if rt.Tokens == nil {
		return "", fmt.Errorf("manage_context_budget: no TokenCounter configured")
	}
	maxContextTokens := a.maxContextTokens
	effectiveBudget := maxContextTokens - a.safetyMargin
	if effectiveBudget < 0 {
		effectiveBudget = 0
	}

	type compacted struct {
		block    string
		tokens   int
		language string
		compact  bool
	}

	blocks := make([]compacted, 0, len(state.NodeTexts))
	bufferTotal := 0
	demandTopics := map[string]bool{}
	for _, r := range a.rules {
		if r.policy == "demand" {
			demandTopics[r.inboxKey] = demandActive(state, r.inboxKey)
		}
	}

	for _, n := range state.NodeTexts {
		language := detectLanguage(n.Text)
		compact := false
		text := n.Text
		if rule, ok := a.ruleFor(language); ok {
			switch rule.policy {
			case "always":
				compact = true
			case "threshold":
				tokens, terr := rt.Tokens.Count(n.Text)
				if terr != nil {
					return "", fmt.Errorf("manage_context_budget: token count failed: %w", terr)
				}
				compact = float64(tokens) > rule.threshold*float64(maxContextTokens)
			case "demand":
				compact = demandTopics[rule.inboxKey]
			}
		}
		if compact {
			text = compactText(text)
		}
		block := formatNodeBlock(n.ID, language, compact, text)
		tokens, terr := rt.Tokens.Count(block)
		if terr != nil {
			return "", fmt.Errorf("manage_context_budget: token count failed: %w", terr)
		}
		blocks = append(blocks, compacted{block: block, tokens: tokens, language: language, compact: compact})
		bufferTotal += tokens
	}

	if bufferTotal > effectiveBudget {
		return "", pipeline.NewError(pipeline.CodeBudgetMisconfig, state.CurrentStepID,
			fmt.Errorf("retrieval buffer alone (%d tokens) exceeds max_context_tokens (%d, safety margin %d)", bufferTotal, maxContextTokens, a.safetyMargin))
	}

	existingTotal := 0
	for _, b := range state.ContextBlocks {
		tokens, terr := rt.Tokens.Count(b)
		if terr != nil {
			return "", fmt.Errorf("manage_context_budget: token count failed: %w", terr)
		}
		existingTotal += tokens
	}

	total := existingTotal
	for _, b := range blocks {
		total += b.tokens
	}

	if total > effectiveBudget {
		if len(a.rules) > 0 {
			state.Requeue(demandMessages(state.InboxLastConsumed, a.rules))
		}
		return a.onOver, nil
	}

	if a.hasDivider && len(blocks) > 0 {
		state.ContextBlocks = append(state.ContextBlocks, a.divideNewContent)
	}
	for _, b := range blocks {
		state.ContextBlocks = append(state.ContextBlocks, b.block)
	}
	state.NodeTexts = nil

	return a.onOK, nil
}

// demandMessages picks the consumed inbox messages whose topic matches one
// of rules' demand inbox_keys, to re-enqueue on an on_over return so a
// later retry (after the caller requests harder compaction) still sees
// the demand signal (spec.md §4.9).
func demandMessages(consumed []pipeline.InboxMessage, rules []compactRule) []pipeline.InboxMessage {
	keys := map[string]bool{}
	for _, r := range rules {
		if r.policy == "demand" {
			keys[r.inboxKey] = true
		}
	}
	var out []pipeline.InboxMessage
	for _, m := range consumed {
		if keys[m.Topic] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Topic < out[j].Topic })
	return out
}
