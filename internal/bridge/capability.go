package bridge

import (
	"fmt"
	"sort"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/joeycumines/simscript/internal/world"
)

// initFunc is the script entry point consulted once, at instance
// construction, for the declared capability set.
const initFunc = "init"

// QuerySpec is one declared query: the component kinds it exposes and an
// optional predicate narrowing which entities match.
type QuerySpec struct {
	Kinds []world.Kind
	// Filter is an expression the host compiles at query registration,
	// evaluated against the entity's components keyed by kind name.
	// Empty means unfiltered.
	Filter string
}

// CapabilitySet is what a script declares it needs: event channels to listen
// on and named queries over component kinds. It is produced once at
// initialization and immutable for the instance's lifetime; later script
// edits do not renegotiate it.
type CapabilitySet struct {
	Subscriptions []string
	Queries       map[string]QuerySpec
}

// DefaultCapabilities is the fixed fallback used when a script declares
// nothing, has no init function, or init fails: one transform query and the
// UI update channel.
func DefaultCapabilities() CapabilitySet {
	return CapabilitySet{
		Subscriptions: []string{"ui.update"},
		Queries: map[string]QuerySpec{
			"entities": {Kinds: []world.Kind{world.KindTransform}},
		},
	}
}

// QueryNames returns the declared query names, sorted.
func (c CapabilitySet) QueryNames() []string {
	names := make([]string, 0, len(c.Queries))
	for name := range c.Queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseStringSlice(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d: expected string, got %T", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// parseQuerySpec accepts the two declared forms of a query: a bare kind
// array, or an object {kinds: [...], filter: "..."}.
func parseQuerySpec(raw any) (kindNames []string, filter string, err error) {
	if obj, ok := raw.(map[string]any); ok {
		kindNames, err = parseStringSlice(obj["kinds"])
		if err != nil {
			return nil, "", fmt.Errorf("kinds: %w", err)
		}
		if rawFilter, ok := obj["filter"]; ok {
			filter, ok = rawFilter.(string)
			if !ok {
				return nil, "", fmt.Errorf("filter: expected string, got %T", rawFilter)
			}
		}
		return kindNames, filter, nil
	}
	kindNames, err = parseStringSlice(raw)
	return kindNames, "", err
}

// parseCapabilities converts the exported init() return value into a
// capability set. Declared component kinds absent from the supported-kind
// registry are omitted rather than failing the declaration; a filter that
// does not compile is likewise dropped from its query. Omissions are logged
// at debug.
func parseCapabilities(raw any, log zerolog.Logger) (CapabilitySet, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return CapabilitySet{}, fmt.Errorf("init returned %T, want object", raw)
	}

	caps := CapabilitySet{Queries: make(map[string]QuerySpec)}

	if rawSubs, ok := obj["subscriptions"]; ok {
		subs, err := parseStringSlice(rawSubs)
		if err != nil {
			return CapabilitySet{}, fmt.Errorf("subscriptions: %w", err)
		}
		caps.Subscriptions = subs
	}

	if rawQueries, ok := obj["queries"]; ok {
		queries, ok := rawQueries.(map[string]any)
		if !ok {
			return CapabilitySet{}, fmt.Errorf("queries: expected object, got %T", rawQueries)
		}
		for name, rawSpec := range queries {
			kindNames, filter, err := parseQuerySpec(rawSpec)
			if err != nil {
				return CapabilitySet{}, fmt.Errorf("query %q: %w", name, err)
			}
			var kinds []world.Kind
			for _, kn := range kindNames {
				k := world.Kind(kn)
				if !world.IsSupportedKind(k) {
					log.Debug().Str("query", name).Str("kind", kn).Msg("omitting unsupported component kind")
					continue
				}
				kinds = append(kinds, k)
			}
			if len(kinds) == 0 {
				log.Debug().Str("query", name).Msg("omitting query with no supported kinds")
				continue
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
			if filter != "" {
				if _, err := world.NewQuery(name, kinds, filter); err != nil {
					log.Debug().Err(err).Str("query", name).Msg("dropping filter that does not compile")
					filter = ""
				}
			}
			caps.Queries[name] = QuerySpec{Kinds: kinds, Filter: filter}
		}
	}

	return caps, nil
}

// negotiateCapabilities calls the script's init entry point and parses its
// declaration. Any failure, including a missing init, falls back to the
// default set; the failure is logged, never surfaced to the operator.
func negotiateCapabilities(scope *Scope, budget time.Duration, log zerolog.Logger) CapabilitySet {
	fn, ok := scope.Callable(initFunc)
	if !ok {
		log.Debug().Msg("script declares no init; using default capabilities")
		return DefaultCapabilities()
	}

	var result goja.Value
	err := scope.withBudget(budget, "init", func() error {
		var callErr error
		result, callErr = fn(goja.Undefined())
		return callErr
	})
	if err != nil {
		log.Warn().Err(&CapabilityError{Err: err}).Msg("falling back to default capabilities")
		return DefaultCapabilities()
	}

	caps, err := parseCapabilities(result.Export(), log)
	if err != nil {
		log.Warn().Err(&CapabilityError{Err: err}).Msg("falling back to default capabilities")
		return DefaultCapabilities()
	}
	if len(caps.Queries) == 0 && len(caps.Subscriptions) == 0 {
		log.Debug().Msg("script declared an empty capability set; using defaults")
		return DefaultCapabilities()
	}
	return caps
}
