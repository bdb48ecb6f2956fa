// Package jsonish is the single home for tolerant parsing of LLM-produced
// JSON-ish text: code-fenced blocks, unquoted keys, trailing commas,
// key=value repair, and Python-literal (True/False/None) fallback. Failure
// to parse is a normal branch callers route on (e.g. to on_other), never a
// panic.
package jsonish

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	unquotedKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	keyValueLine  = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+?)\s*$`)
)

// stripCodeFence removes a ```...``` / ```json\n...\n``` wrapper, the way
// the teacher's chat output converters do before unmarshaling model output.
func stripCodeFence(input string) string {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	nl := strings.Index(trimmed, "\n")
	if nl == -1 {
		return strings.TrimSpace(trimmed[3 : len(trimmed)-3])
	}
	return strings.TrimSpace(trimmed[nl+1 : len(trimmed)-3])
}

// repairUnquotedKeys wraps bareword object keys in double quotes.
func repairUnquotedKeys(s string) string {
	return unquotedKeyRe.ReplaceAllString(s, `$1"$2"$3`)
}

// repairTrailingCommas removes a comma immediately before a closing
// brace/bracket.
func repairTrailingCommas(s string) string {
	return trailingComma.ReplaceAllString(s, "$1")
}

// repairPythonLiterals rewrites Python-style True/False/None tokens to
// their JSON equivalents. Applied only outside string literals is not
// attempted here — this is a best-effort textual repair, consistent with
// the rest of the tolerant-parsing pipeline.
func repairPythonLiterals(s string) string {
	replacer := strings.NewReplacer(
		"True", "true",
		"False", "false",
		"None", "null",
	)
	return replacer.Replace(s)
}

// parseKeyValueLines builds a flat JSON object from "key=value" lines, the
// fallback shape some prompts produce instead of JSON.
func parseKeyValueLines(s string) (string, bool) {
	lines := strings.Split(s, "\n")
	obj := map[string]any{}
	found := false
	for _, line := range lines {
		m := keyValueLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		found = true
		key, val := m[1], strings.Trim(m[2], `"'`)
		obj[key] = val
	}
	if !found {
		return "", false
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// Result is the outcome of a tolerant Parse: the decoded object, the
// sequence of repairs applied (for tracing/diagnostics), and the cleaned
// JSON text actually parsed.
type Result struct {
	Object   map[string]any
	Warnings []string
	Clean    string
}

// Parse tolerantly decodes raw model output into a JSON object, trying
// increasingly aggressive repairs: code-fence strip, then as-is, then
// unquoted-key + trailing-comma + Python-literal repair, then key=value
// line parsing. Returns an error only when every strategy fails.
func Parse(raw string) (Result, error) {
	candidate := stripCodeFence(raw)
	var warnings []string

	if gjson.Valid(candidate) && gjson.Parse(candidate).IsObject() {
		return Result{Object: toMap(candidate), Clean: candidate}, nil
	}
	warnings = append(warnings, "not valid JSON as-is")

	repaired := repairPythonLiterals(repairTrailingCommas(repairUnquotedKeys(candidate)))
	if gjson.Valid(repaired) && gjson.Parse(repaired).IsObject() {
		warnings = append(warnings, "repaired unquoted keys/trailing commas/python literals")
		return Result{Object: toMap(repaired), Warnings: warnings, Clean: repaired}, nil
	}

	if kv, ok := parseKeyValueLines(candidate); ok {
		warnings = append(warnings, "parsed as key=value lines")
		return Result{Object: toMap(kv), Warnings: warnings, Clean: kv}, nil
	}

	return Result{Warnings: warnings}, &ParseError{Raw: raw, Candidate: candidate}
}

func toMap(jsonText string) map[string]any {
	out := map[string]any{}
	gjson.Parse(jsonText).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.Value()
		return true
	})
	return out
}

// ParseError reports that no tolerant-parsing strategy could decode raw.
type ParseError struct {
	Raw       string
	Candidate string
}

func (e *ParseError) Error() string {
	return "jsonish: could not parse model output as JSON: " + e.Candidate
}

// ExtractDecision looks up the first present key (in order) and returns its
// trimmed, lowercased string value. Used by json_decision_router to read
// "decision", then "route", then "mode".
func ExtractDecision(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		return strings.ToLower(strings.TrimSpace(s)), true
	}
	return "", false
}

// StripKeysSorted removes the given keys from raw JSON text and re-marshals
// the remainder as compact JSON with sorted keys, so downstream payload
// parsers (search_nodes' query_parser, etc.) see a clean object. raw must
// already be valid JSON (typically Result.Clean from a prior Parse call).
func StripKeysSorted(raw string, keys []string) (string, error) {
	current := raw
	for _, k := range keys {
		next, err := sjson.Delete(current, k)
		if err != nil {
			return "", err
		}
		current = next
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(current), &decoded); err != nil {
		return "", err
	}
	out, err := json.Marshal(sortedMap(decoded))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// sortedMap is a thin wrapper so json.Marshal of a map[string]any always
// produces sorted keys — which it already does for map[string]any in Go's
// encoding/json, but this makes the intent explicit and keeps StripKeysSorted
// robust if the value type ever changes.
func sortedMap(m map[string]any) map[string]any { return m }

// ScanStringField does a zero-allocation scan for a single top-level string
// field, used by the key=value repair fallback's consumers that only need
// one field and want to avoid a full parse.
func ScanStringField(raw, field string) (string, bool) {
	v, err := jsonparser.GetString([]byte(raw), field)
	if err != nil {
		return "", false
	}
	return v, true
}
