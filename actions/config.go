// Package actions implements the action kinds spec.md §4.4-4.14 names,
// each registering an ActionFactory into a pipeline.Registry supplied by
// the host process. Keeping actions in a package separate from pipeline/
// lets actions import pipeline (for Action/PipelineState/Settings) without
// pipeline ever importing actions, avoiding a cycle.
package actions

import (
	"fmt"

	"github.com/corpusqa/pipelineengine/pipeline"
)

// RegisterAll registers every action kind's factory into registry. The host
// process calls this once at startup before building any Engine.
func RegisterAll(registry *pipeline.Registry, accessors *pipeline.AccessorRegistry, promptsDir string) {
	registry.Register(&callModelFactory{accessors: accessors, promptsDir: promptsDir})
	registry.Register(&prefixRouterFactory{})
	registry.Register(&jsonDecisionRouterFactory{})
	registry.Register(&repeatQueryGuardFactory{})
	registry.Register(&inboxDispatcherFactory{})
	registry.Register(&searchNodesFactory{})
	registry.Register(&expandDependencyTreeFactory{})
	registry.Register(&fetchNodeTextsFactory{})
	registry.Register(&manageContextBudgetFactory{})
	registry.Register(&forkActionFactory{})
	registry.Register(&parallelRoadsActionFactory{})
	registry.Register(&mergeActionFactory{})
	registry.Register(&loopGuardFactory{})
	registry.Register(&loadConversationHistoryFactory{})
	registry.Register(&translateInFactory{})
	registry.Register(&translateOutFactory{promptsDir: promptsDir})
	registry.Register(&finalizeFactory{})
	registry.Register(&setVariablesFactory{accessors: accessors})
	registry.Register(&addCommandActionFactory{})
}

// requiredString reads a required, non-empty string field from raw.
func requiredString(raw map[string]any, key string) (string, error) {
	v, _ := raw[key].(string)
	if v == "" {
		return "", fmt.Errorf("%q is required and must be non-empty", key)
	}
	return v, nil
}

// optionalString reads an optional string field, defaulting to "".
func optionalString(raw map[string]any, key string) string {
	v, _ := raw[key].(string)
	return v
}

// optionalBool reads an optional bool field, defaulting to false.
func optionalBool(raw map[string]any, key string) bool {
	v, _ := raw[key].(bool)
	return v
}

// requiredStringMap reads a required, non-empty map[string]any field.
func requiredStringMap(raw map[string]any, key string) (map[string]any, error) {
	v, _ := raw[key].(map[string]any)
	if len(v) == 0 {
		return nil, fmt.Errorf("%q is required and must be non-empty", key)
	}
	return v, nil
}
