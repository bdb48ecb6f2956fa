// Package acl models the retrieval/graph security scope that spec.md calls
// "retrieval_filters": a sacred set of key/value constraints that no action
// may remove or override once constructed.
package acl

import (
	"fmt"
	"sort"

	"github.com/spf13/cast"
)

// Operator names how a Condition's Value participates in backend matching.
type Operator string

const (
	// OpEquals matches a single scalar value exactly.
	OpEquals Operator = "eq"
	// OpAny matches when the candidate shares at least one value with Value.List
	// (spec.md's acl_tags_any).
	OpAny Operator = "any"
	// OpAll matches only when the candidate has every value in Value.List
	// (spec.md's classification_labels_all).
	OpAll Operator = "all"
)

// Value is a loosely-typed scalar or list, coerced to strings for comparison
// and rendering. Backends receive it opaque; only search_nodes/fetch_texts
// compare on it.
type Value struct {
	Scalar string
	List   []string
}

// ScalarValue builds a Value from any scalar-coercible input.
func ScalarValue(v any) Value {
	return Value{Scalar: cast.ToString(v)}
}

// ListValue builds a Value from any slice-coercible input.
func ListValue(v any) Value {
	raw := cast.ToStringSlice(v)
	out := make([]string, len(raw))
	copy(out, raw)
	return Value{List: out}
}

func (v Value) String() string {
	if v.List != nil {
		return fmt.Sprintf("%v", v.List)
	}
	return v.Scalar
}

// Condition is a single field/operator/value constraint.
type Condition struct {
	Field    string
	Operator Operator
	Value    Value
}

// SecurityFields names the field set spec.md treats as sacred: scope
// (repository/branch/snapshot) and access-control labels. A Filters value
// never loses a Condition whose Field is in this set once set.
var SecurityFields = map[string]bool{
	"repository":                 true,
	"branch":                     true,
	"snapshot_id":                true,
	"acl_tags_any":               true,
	"classification_labels_all":  true,
	"tenant_id":                  true,
	"doc_level_max":              true,
}

// IsSecurityField reports whether field is one of the sacred scope/ACL keys.
func IsSecurityField(field string) bool {
	return SecurityFields[field]
}

// Filters is an immutable, structural set of Conditions keyed by field name.
// It is a monoid under Merge: Merge never drops a Condition present in
// either operand, it only resolves conflicts by priority. This makes the
// spec.md invariant "retrieval_filters at step entry is a subset of
// retrieval_filters at step exit" a structural property of the type rather
// than a convention actions must honor by hand.
type Filters struct {
	conditions map[string]Condition
}

// Empty returns the zero Filters value: no constraints.
func Empty() Filters {
	return Filters{}
}

// New builds a Filters from a set of Conditions, keyed by Field. Later
// entries in conditions win over earlier ones with the same Field, same as
// repeatedly calling With.
func New(conditions ...Condition) Filters {
	f := Empty()
	for _, c := range conditions {
		f = f.With(c)
	}
	return f
}

// With returns a new Filters with c set, replacing any existing Condition
// for the same Field.
func (f Filters) With(c Condition) Filters {
	out := make(map[string]Condition, len(f.conditions)+1)
	for k, v := range f.conditions {
		out[k] = v
	}
	out[c.Field] = c
	return Filters{conditions: out}
}

// Get returns the Condition for field, if any.
func (f Filters) Get(field string) (Condition, bool) {
	c, ok := f.conditions[field]
	return c, ok
}

// Has reports whether field is constrained.
func (f Filters) Has(field string) bool {
	_, ok := f.conditions[field]
	return ok
}

// Len reports the number of distinct fields constrained.
func (f Filters) Len() int {
	return len(f.conditions)
}

// Conditions returns every Condition, sorted by Field for deterministic
// iteration and rendering.
func (f Filters) Conditions() []Condition {
	out := make([]Condition, 0, len(f.conditions))
	for _, c := range f.conditions {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Merge unions f with priority: every field present in either operand
// survives in the result, and where both set the same field, priority's
// Condition wins. This is the shape of search_nodes' filter-merge rule:
//
//	filters_effective = Merge(parsedFilters, filtersBase)
//
// with filtersBase (state.retrieval_filters plus repo/branch/snapshot)
// passed as priority so security constraints always override whatever a
// parsed query payload claims.
func (f Filters) Merge(priority Filters) Filters {
	out := make(map[string]Condition, len(f.conditions)+len(priority.conditions))
	for k, v := range f.conditions {
		out[k] = v
	}
	for k, v := range priority.conditions {
		out[k] = v
	}
	return Filters{conditions: out}
}

// WithScope returns a new Filters with repository/branch/snapshot_id set,
// the scope triple search_nodes always folds into filters_base regardless
// of what retrieval_filters already carries.
func (f Filters) WithScope(repository, branch, snapshotID string) Filters {
	out := f
	if repository != "" {
		out = out.With(Condition{Field: "repository", Operator: OpEquals, Value: ScalarValue(repository)})
	}
	if branch != "" {
		out = out.With(Condition{Field: "branch", Operator: OpEquals, Value: ScalarValue(branch)})
	}
	if snapshotID != "" {
		out = out.With(Condition{Field: "snapshot_id", Operator: OpEquals, Value: ScalarValue(snapshotID)})
	}
	return out
}

// Subset reports whether every Condition in f also appears, identically, in
// other — the structural form of spec.md's "filters at entry ⊆ filters at
// exit" invariant, usable directly in tests.
func (f Filters) Subset(other Filters) bool {
	for field, cond := range f.conditions {
		oc, ok := other.conditions[field]
		if !ok {
			return false
		}
		if oc.Operator != cond.Operator || oc.Value.Scalar != cond.Value.Scalar || fmt.Sprint(oc.Value.List) != fmt.Sprint(cond.Value.List) {
			return false
		}
	}
	return true
}
