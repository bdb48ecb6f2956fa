package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/corpusqa/pipelineengine/pipeline"
	"github.com/corpusqa/pipelineengine/ports"
)

// userPart is one entry of call_model's user_parts: an ordered list (YAML
// sequences preserve order; spec.md's "ordered map" is represented here as
// a list of {name, source, template} so declaration order survives).
type userPart struct {
	Name     string
	Source   string
	Template string
}

// callModel invokes the LLM and stores its raw response on
// state.LastModelResponse. Grounded on the teacher's chat-client call
// shape (ai/client/chat), generalized from a single fixed prompt to the
// config-driven prompt_key/user_parts/native_chat contract spec.md §4.4
// requires.
type callModel struct {
	promptKey       string
	userParts       []userPart
	nativeChat      bool
	promptFormat    string
	useHistory      bool
	maxHistoryToken int
	maxTokens       *int
	maxOutputTok    *int
	temperature     *float64
	topK            *int
	topP            *float64
	bannerSource    string
	promptsDir      string
	accessors       *pipeline.AccessorRegistry
}

type callModelFactory struct {
	accessors  *pipeline.AccessorRegistry
	promptsDir string
}

func (f *callModelFactory) Name() string { return "call_model" }

func (f *callModelFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	promptKey, err := requiredString(raw, "prompt_key")
	if err != nil {
		return nil, err
	}

	rawParts, _ := raw["user_parts"].([]any)
	if len(rawParts) == 0 {
		return nil, fmt.Errorf("\"user_parts\" is required and must be non-empty")
	}
	parts := make([]userPart, 0, len(rawParts))
	for _, rp := range rawParts {
		m, _ := rp.(map[string]any)
		name, _ := m["name"].(string)
		source, _ := m["source"].(string)
		template, _ := m["template"].(string)
		if name == "" || source == "" || template == "" {
			return nil, fmt.Errorf("user_parts entries require name, source, and template")
		}
		if !strings.Contains(template, "{}") {
			return nil, fmt.Errorf("user_parts entry %q: template must contain \"{}\"", name)
		}
		parts = append(parts, userPart{Name: name, Source: source, Template: template})
	}

	promptFormat := optionalString(raw, "prompt_format")
	nativeChat := optionalBool(raw, "native_chat")
	if !nativeChat && promptFormat == "" {
		promptFormat = "plain"
	}

	action := &callModel{
		promptKey:       promptKey,
		userParts:       parts,
		nativeChat:      nativeChat,
		promptFormat:    promptFormat,
		useHistory:      optionalBool(raw, "use_history"),
		maxHistoryToken: settings.MaxHistoryTokens(),
		bannerSource:    optionalString(raw, "banner_source"),
		promptsDir:      f.promptsDir,
		accessors:       f.accessors,
	}
	if v, ok := raw["max_tokens"]; ok {
		n := toIntPtr(v)
		action.maxTokens = n
	}
	if v, ok := raw["max_output_tokens"]; ok {
		n := toIntPtr(v)
		action.maxOutputTok = n
	}
	if v, ok := raw["temperature"]; ok {
		n := toFloatPtr(v)
		action.temperature = n
	}
	if v, ok := raw["top_k"]; ok {
		n := toIntPtr(v)
		action.topK = n
	}
	if v, ok := raw["top_p"]; ok {
		n := toFloatPtr(v)
		action.topP = n
	}
	return action, nil
}

func (a *callModel) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	systemPrompt, err := os.ReadFile(filepath.Join(a.promptsDir, a.promptKey))
	if err != nil {
		return "", fmt.Errorf("call_model: load prompt_key %q: %w", a.promptKey, err)
	}

	var userPartValues []string
	for _, p := range a.userParts {
		val, err := a.accessors.Read(p.Source, state)
		if err != nil {
			return "", fmt.Errorf("call_model: user_parts[%q]: %w", p.Name, err)
		}
		userPartValues = append(userPartValues, strings.Replace(p.Template, "{}", fmt.Sprintf("%v", val), 1))
	}
	userPartText := strings.Join(userPartValues, "\n")

	opts := &ports.GenOptions{
		MaxTokens:       a.maxTokens,
		MaxOutputTokens: a.maxOutputTok,
		Temperature:     a.temperature,
		TopK:            a.topK,
		TopP:            a.topP,
	}

	var response string
	if a.nativeChat {
		var history []ports.ChatMessage
		if a.useHistory && a.maxHistoryToken > 0 {
			trimmed, trimErr := trimHistoryOldestFirst(state.HistoryDialog, a.maxHistoryToken, rt.Tokens)
			if trimErr != nil {
				return "", fmt.Errorf("call_model: trimming history: %w", trimErr)
			}
			for _, h := range trimmed {
				history = append(history, ports.ChatMessage{Role: h.Role, Content: h.Content})
			}
		}
		response, err = rt.LLM.AskChat(ctx, string(systemPrompt), userPartText, history, opts)
	} else {
		prompt, buildErr := buildPrompt(a.promptFormat, string(systemPrompt), userPartText)
		if buildErr != nil {
			return "", fmt.Errorf("call_model: %w", buildErr)
		}
		response, err = rt.LLM.Ask(ctx, prompt, opts)
	}
	if err != nil {
		return "", fmt.Errorf("call_model: model call failed: %w", err)
	}

	state.LastModelResponse = response
	if a.bannerSource != "" {
		banner, err := a.accessors.Read(a.bannerSource, state)
		if err == nil {
			state.BannerNeutral = fmt.Sprintf("%v", banner)
		}
	}
	return "", nil
}

// trimHistoryOldestFirst drops the oldest turns of dialog until the
// remaining (still chronologically ordered) suffix fits within maxTokens,
// per spec.md §4.4's "pass history_dialog after oldest-first trimming to
// fit budget". Walks from the newest turn backward so the kept turns are
// always the most recent ones that fit.
func trimHistoryOldestFirst(dialog []pipeline.ChatTurn, maxTokens int, counter ports.TokenCounter) ([]pipeline.ChatTurn, error) {
	if len(dialog) == 0 {
		return nil, nil
	}
	if counter == nil {
		return nil, fmt.Errorf("no TokenCounter configured")
	}

	kept := make([]pipeline.ChatTurn, 0, len(dialog))
	total := 0
	for i := len(dialog) - 1; i >= 0; i-- {
		n, err := counter.Count(dialog[i].Content)
		if err != nil {
			return nil, err
		}
		if total+n > maxTokens {
			break
		}
		total += n
		kept = append(kept, dialog[i])
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept, nil
}

// buildPrompt renders system+user into a single string via the named
// builder. Only "plain" (system, blank line, user) is implemented; any
// other name is an unknown-prompt-format fatal error per spec.md §4.4.
func buildPrompt(format, system, user string) (string, error) {
	switch format {
	case "plain":
		return system + "\n\n" + user, nil
	default:
		return "", fmt.Errorf("unknown prompt_format %q", format)
	}
}

func toIntPtr(v any) *int {
	switch n := v.(type) {
	case int:
		return &n
	case int64:
		i := int(n)
		return &i
	case float64:
		i := int(n)
		return &i
	default:
		return nil
	}
}

func toFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
