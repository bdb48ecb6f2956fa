package actions

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/corpusqa/pipelineengine/pipeline"
)

// commandSpec is one permission-gated command link offered to the answer
// text (spec.md §4.14). label/template may reference ${repository},
// ${branch}, ${snapshot_id} placeholders, resolved against state.
type commandSpec struct {
	commandType string
	label       string
	template    string
}

type addCommandAction struct {
	commands []commandSpec
}

type addCommandActionFactory struct{}

func (f *addCommandActionFactory) Name() string { return "add_command_action" }

func (f *addCommandActionFactory) NewAction(raw map[string]any, settings pipeline.Settings) (pipeline.Action, error) {
	rawCommands, ok := raw["commands"].([]any)
	if !ok || len(rawCommands) == 0 {
		return nil, fmt.Errorf("add_command_action: \"commands\" is required and must be a non-empty list")
	}

	commands := make([]commandSpec, 0, len(rawCommands))
	for i, ce := range rawCommands {
		cm, ok := ce.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("add_command_action: commands[%d] must be a mapping", i)
		}
		commandType, err := requiredString(cm, "type")
		if err != nil {
			return nil, fmt.Errorf("add_command_action: commands[%d]: %w", i, err)
		}
		label, err := requiredString(cm, "label")
		if err != nil {
			return nil, fmt.Errorf("add_command_action: commands[%d]: %w", i, err)
		}
		template, err := requiredString(cm, "template")
		if err != nil {
			return nil, fmt.Errorf("add_command_action: commands[%d]: %w", i, err)
		}
		commands = append(commands, commandSpec{commandType: commandType, label: label, template: template})
	}

	return &addCommandAction{commands: commands}, nil
}

func (a *addCommandAction) Run(ctx context.Context, state *pipeline.PipelineState, rt *pipeline.Runtime) (string, error) {
	allowed := make(map[string]struct{}, len(state.AllowedCommands))
	for _, c := range state.AllowedCommands {
		allowed[c] = struct{}{}
	}

	var links []string
	for _, spec := range a.commands {
		if _, ok := allowed[spec.commandType]; !ok {
			continue
		}
		links = append(links, fmt.Sprintf("[%s](%s)", spec.label, resolveCommandTemplate(spec.template, state)))
	}
	if len(links) == 0 {
		return "", nil
	}
	sort.Strings(links)

	appended := strings.Join(links, " | ")
	writeBack(state, appended)

	return "", nil
}

func resolveCommandTemplate(template string, state *pipeline.PipelineState) string {
	r := strings.NewReplacer(
		"${repository}", state.Repository,
		"${branch}", state.Branch,
		"${snapshot_id}", state.SnapshotID,
		"${snapshot_id_b}", state.SnapshotIDB,
		"${session_id}", state.SessionID,
	)
	return r.Replace(template)
}

// writeBack appends text to whichever field CurrentAnswerText currently
// sources from (spec.md §4.14 priority order), writing to that same field.
func writeBack(state *pipeline.PipelineState, text string) {
	switch {
	case state.FinalAnswer != "":
		state.FinalAnswer = state.FinalAnswer + "\n\n" + text
	case state.AnswerTranslated != "":
		state.AnswerTranslated = state.AnswerTranslated + "\n\n" + text
	case state.AnswerNeutral != "":
		state.AnswerNeutral = state.AnswerNeutral + "\n\n" + text
	default:
		state.LastModelResponse = state.LastModelResponse + "\n\n" + text
	}
}
