package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// rawDefinition mirrors the on-disk YAML shape before extends resolution:
//
//	name: code_qa
//	extends: base_pipeline.yaml
//	entry_step_id: route
//	settings: {...}
//	steps:
//	  route: {action: prefix_router, ...}
type rawDefinition struct {
	Name        string                `yaml:"name"`
	Extends     string                `yaml:"extends"`
	EntryStepID string                `yaml:"entry_step_id"`
	Settings    map[string]any        `yaml:"settings"`
	Steps       map[string]rawStepDef `yaml:"steps"`
}

type rawStepDef struct {
	Action string         `yaml:"action"`
	Rest   map[string]any `yaml:",inline"`
}

// loadedFile pairs a parsed rawDefinition with the exact bytes it was
// parsed from, so fingerprinting can hash source bytes (catching
// comment/whitespace-only edits) rather than a re-marshaled, semantically
// normalized form.
type loadedFile struct {
	def   rawDefinition
	bytes []byte
}

// Loader resolves a named pipeline definition file, following its `extends`
// chain root-to-child and deep-merging settings/steps, then validates the
// result structurally (spec.md §4.1/§4.2).
type Loader struct {
	dir string
}

// NewLoader builds a Loader that resolves pipeline file names relative to
// dir (the directory pipeline YAML files, including any bases they extend,
// live in).
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Load reads fileName (relative to the Loader's directory), resolves its
// extends chain, deep-merges settings and steps root-to-child (child wins
// on conflict, per spec.md §4.1), validates step references, and computes a
// content fingerprint over the fully-expanded definition.
func (l *Loader) Load(fileName string) (*Definition, error) {
	chain, err := l.resolveChain(fileName, nil)
	if err != nil {
		return nil, NewError(CodeInvalidConfig, "", err)
	}

	defs := make([]rawDefinition, len(chain))
	for i, lf := range chain {
		defs[i] = lf.def
	}
	merged := mergedDefinitionFromChain(defs)

	def := &Definition{
		Name:        merged.Name,
		Extends:     chain[len(chain)-1].def.Extends,
		Settings:    NewSettings(merged.Settings),
		EntryStepID: merged.EntryStepID,
		Steps:       make(map[string]StepDef, len(merged.Steps)),
	}
	for id, raw := range merged.Steps {
		full := raw.Rest
		if full == nil {
			full = map[string]any{}
		}
		def.Steps[id] = NewStepDef(id, raw.Action, full)
	}
	def.Order = sortedKeys(merged.Steps)

	if err := validateDefinition(def); err != nil {
		return nil, err
	}

	fp, err := fingerprint(chain)
	if err != nil {
		return nil, NewError(CodeInvalidConfig, "", err)
	}
	def.Fingerprint = fp

	return def, nil
}

// resolveChain reads fileName and its ancestors via `extends`, returning the
// chain ordered root-first (the file with no extends comes first). visited
// guards against extends cycles.
func (l *Loader) resolveChain(fileName string, visited []string) ([]loadedFile, error) {
	for _, v := range visited {
		if v == fileName {
			return nil, fmt.Errorf("extends cycle detected at %q (chain: %v)", fileName, append(visited, fileName))
		}
	}
	visited = append(visited, fileName)

	path := filepath.Join(l.dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pipeline file %q: %w", fileName, err)
	}

	var raw rawDefinition
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse pipeline file %q: %w", fileName, err)
	}
	lf := loadedFile{def: raw, bytes: data}

	if raw.Extends == "" {
		return []loadedFile{lf}, nil
	}

	parentChain, err := l.resolveChain(raw.Extends, visited)
	if err != nil {
		return nil, err
	}
	return append(parentChain, lf), nil
}

// mergedDefinitionFromChain folds a root-to-child chain into one
// rawDefinition: later entries override name/entry_step_id, settings deep
// merge, and steps merge by id with full-replacement-on-match (a child
// redefining a step id replaces the parent's step wholesale, it does not
// field-merge it).
func mergedDefinitionFromChain(chain []rawDefinition) rawDefinition {
	out := rawDefinition{Steps: map[string]rawStepDef{}, Settings: map[string]any{}}
	for _, cur := range chain {
		if cur.Name != "" {
			out.Name = cur.Name
		}
		if cur.EntryStepID != "" {
			out.EntryStepID = cur.EntryStepID
		}
		out.Settings = deepMergeMaps(out.Settings, cur.Settings)
		for id, step := range cur.Steps {
			out.Steps[id] = step
		}
	}
	return out
}

// validateDefinition checks structural invariants that don't require
// knowing any action's specific config shape: entry_step_id resolves, every
// next/on_*/routes.* reference resolves to a declared step id, every
// declared step is reachable from entry_step_id, and the graph has at
// least one terminal condition (spec.md §4.1/§8: configuration errors,
// including unreachable steps, are surfaced at load time and abort the
// pipeline).
func validateDefinition(def *Definition) error {
	if def.EntryStepID == "" {
		return NewError(CodeInvalidConfig, "", fmt.Errorf("entry_step_id is required"))
	}
	if _, ok := def.Steps[def.EntryStepID]; !ok {
		return NewError(CodeInvalidConfig, "", fmt.Errorf("entry_step_id %q does not reference a declared step", def.EntryStepID))
	}
	for id, step := range def.Steps {
		if step.Action == "" {
			return NewError(CodeInvalidConfig, id, fmt.Errorf("step %q has no action", id))
		}
		for _, ref := range step.ReferencedStepIDs() {
			if _, ok := def.Steps[ref]; !ok {
				return NewError(CodeInvalidConfig, id, fmt.Errorf("step %q references undeclared step %q", id, ref))
			}
		}
	}

	reachable := reachableStepIDs(def)
	for _, id := range def.Order {
		if _, ok := reachable[id]; !ok {
			return NewError(CodeInvalidConfig, id, fmt.Errorf("step %q is unreachable from entry_step_id %q", id, def.EntryStepID))
		}
	}

	if !hasTerminalCondition(def, reachable) {
		return NewError(CodeInvalidConfig, "", fmt.Errorf("pipeline %q has no terminal condition: no reachable step sets end:true or has a path with no configured next", def.Name))
	}

	return nil
}

// reachableStepIDs walks every next/on_*/routes.* edge breadth-first from
// entry_step_id, returning the set of step ids a run could actually land
// on. Steps outside this set can never be dispatched by the engine.
func reachableStepIDs(def *Definition) map[string]struct{} {
	visited := map[string]struct{}{def.EntryStepID: {}}
	frontier := []string{def.EntryStepID}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			step, ok := def.Steps[id]
			if !ok {
				continue
			}
			for _, ref := range step.ReferencedStepIDs() {
				if _, seen := visited[ref]; seen {
					continue
				}
				visited[ref] = struct{}{}
				next = append(next, ref)
			}
		}
		frontier = next
	}
	return visited
}

// hasTerminalCondition reports whether at least one reachable step can end
// the run: either it declares end:true, or it has no statically configured
// next/on_*/routes at all, so a dynamic "" return from its action falls
// through Engine.Run's `if next == "" { break }` (pipeline/engine.go). A
// step with a fully-populated routing table that always points elsewhere
// can loop forever and does not count.
func hasTerminalCondition(def *Definition, reachable map[string]struct{}) bool {
	for id := range reachable {
		step, ok := def.Steps[id]
		if !ok {
			continue
		}
		if step.End {
			return true
		}
		if step.Next == "" && len(step.ReferencedStepIDs()) == 0 {
			return true
		}
	}
	return false
}

// fingerprint hashes the fully-resolved chain's source bytes together so two
// loads of the same extends chain (including unchanged ancestors) produce
// the same fingerprint, and any edit anywhere in the chain — including a
// comment or formatting change — changes it.
func fingerprint(chain []loadedFile) (string, error) {
	h := sha256.New()
	for _, lf := range chain {
		h.Write(lf.bytes)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
