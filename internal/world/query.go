package world

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-json"
)

// Query is a named selection of component kinds, with an optional predicate
// over the matched entity's components. A query matches every entity that has
// all of the declared kinds and, if a predicate is set, for which the
// predicate evaluates to true.
type Query struct {
	name    string
	kinds   []Kind
	source  string
	program *vm.Program
}

// NewQuery compiles a query. filter may be empty; when set it is an
// expr-lang expression evaluated against an environment containing the
// entity's components keyed by kind name (e.g. "transform.position.x > 0").
func NewQuery(name string, kinds []Kind, filter string) (*Query, error) {
	if name == "" {
		return nil, fmt.Errorf("query name cannot be empty")
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("query %q declares no component kinds", name)
	}
	seen := make(map[Kind]bool, len(kinds))
	normalized := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		if !IsSupportedKind(k) {
			return nil, fmt.Errorf("query %q declares unsupported kind %q", name, k)
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		normalized = append(normalized, k)
	}
	sort.Slice(normalized, func(i, j int) bool { return normalized[i] < normalized[j] })

	q := &Query{name: name, kinds: normalized, source: filter}
	if filter != "" {
		program, err := expr.Compile(filter, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("failed to compile filter for query %q: %w", name, err)
		}
		q.program = program
	}
	return q, nil
}

// Name returns the query's name.
func (q *Query) Name() string { return q.name }

// Kinds returns the component kinds the query exposes.
func (q *Query) Kinds() []Kind {
	out := make([]Kind, len(q.kinds))
	copy(out, q.kinds)
	return out
}

// Filter returns the predicate source, or "" when the query is unfiltered.
func (q *Query) Filter() string { return q.source }

// matches evaluates the predicate against the record. Queries without a
// predicate match unconditionally. The environment is the record's wire
// form, so filters address fields exactly the way scripts do
// ("transform.position.x", not Go field names).
func (q *Query) matches(rec Record) (bool, error) {
	if q.program == nil {
		return true, nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("filter for query %q: %w", q.name, err)
	}
	var env map[string]any
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, fmt.Errorf("filter for query %q: %w", q.name, err)
	}
	out, err := expr.Run(q.program, env)
	if err != nil {
		return false, fmt.Errorf("filter for query %q failed: %w", q.name, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("filter for query %q returned %T, want bool", q.name, out)
	}
	return ok, nil
}
