package actions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/corpusqa/pipelineengine/pipeline"
	"github.com/corpusqa/pipelineengine/ports"
)

// translateIn mirrors spec.md §4.13 translate_in_if_needed: when
// translate_chat is set and a translator is wired, user_question_en is the
// translated query; otherwise it is a plain copy of user_query.
type translateIn struct{}

type translateInFactory struct{}

func (f *translateInFactory) Name() string { return "translate_in_if_needed" }

func (f *translateInFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	return &translateIn{}, nil
}

func (a *translateIn) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	if state.TranslateChat && rt.Translate != nil {
		translated, err := rt.Translate.Translate(ctx, state.UserQuery)
		if err == nil {
			state.UserQuestionEn = translated
			return "", nil
		}
	}
	state.UserQuestionEn = state.UserQuery
	return "", nil
}

// translateOut mirrors spec.md §4.13 translate_out_if_needed: copies
// answer_neutral unchanged when translation isn't needed; otherwise markdown-translate, falling back to
// plain translate, falling back to an untranslated copy flagged as a
// fallback. An optional use_main_model routes translation through the LLM
// via translate_prompt_key instead of the Translator port.
type translateOut struct {
	useMainModel      bool
	translatePromptKey string
	promptsDir        string
}

type translateOutFactory struct {
	promptsDir string
}

func (f *translateOutFactory) Name() string { return "translate_out_if_needed" }

func (f *translateOutFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	useMainModel := optionalBool(raw, "use_main_model")
	promptKey := optionalString(raw, "translate_prompt_key")
	if useMainModel && promptKey == "" {
		return nil, fmt.Errorf("translate_out_if_needed: use_main_model requires translate_prompt_key")
	}
	return &translateOut{useMainModel: useMainModel, translatePromptKey: promptKey, promptsDir: f.promptsDir}, nil
}

func (a *translateOut) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	if !state.TranslateChat || state.AnswerNeutral == "" {
		state.AnswerTranslated = state.AnswerNeutral
		return "", nil
	}

	if a.useMainModel {
		if rt.LLM == nil {
			state.AnswerTranslated = state.AnswerNeutral
			state.AnswerTranslatedIsFallback = true
			return "", nil
		}
		system, err := os.ReadFile(filepath.Join(a.promptsDir, a.translatePromptKey))
		if err != nil {
			return "", fmt.Errorf("translate_out_if_needed: load translate_prompt_key %q: %w", a.translatePromptKey, err)
		}
		out, err := rt.LLM.Ask(ctx, string(system)+"\n\n"+state.AnswerNeutral, nil)
		if err != nil {
			state.AnswerTranslated = state.AnswerNeutral
			state.AnswerTranslatedIsFallback = true
			return "", nil
		}
		state.AnswerTranslated = out
		return "", nil
	}

	if rt.Translate == nil {
		state.AnswerTranslated = state.AnswerNeutral
		state.AnswerTranslatedIsFallback = true
		return "", nil
	}

	if md, ok := rt.Translate.(ports.MarkdownTranslator); ok {
		if out, err := md.TranslateMarkdown(ctx, state.AnswerNeutral); err == nil {
			state.AnswerTranslated = out
			return "", nil
		}
	}
	if out, err := rt.Translate.Translate(ctx, state.AnswerNeutral); err == nil {
		state.AnswerTranslated = out
		return "", nil
	}

	state.AnswerTranslated = state.AnswerNeutral
	state.AnswerTranslatedIsFallback = true
	return "", nil
}
