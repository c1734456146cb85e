package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"github.com/joeycumines/simscript/internal/world"
)

// updateFunc is the script entry point invoked every tick.
const updateFunc = "update"

// Executor drives one script through a simulation tick: snapshot world data
// into the scope, run the update entry point, apply any pending one-shot
// command, write mutated data back, and record the outcome as response text.
//
// It is single-threaded and cooperative: the host must drive it from exactly
// one goroutine, one tick at a time.
type Executor struct {
	scope   *Scope
	sources *SourceManager
	caps    CapabilitySet
	budget  time.Duration
	log     zerolog.Logger

	// pending is a single one-shot command slot. A new command overwrites
	// an unconsumed one; this is a take-and-clear field, not a queue.
	pending    string
	hasPending bool

	response string
	ticks    uint64
}

func newExecutor(scope *Scope, sources *SourceManager, caps CapabilitySet, budget time.Duration, log zerolog.Logger) *Executor {
	return &Executor{
		scope:   scope,
		sources: sources,
		caps:    caps,
		budget:  budget,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// QueueCommand stores a one-shot command for the next tick, overwriting any
// unconsumed one.
func (x *Executor) QueueCommand(cmd string) {
	x.pending = cmd
	x.hasPending = true
}

// Response returns the last recorded outcome.
func (x *Executor) Response() string {
	return x.response
}

// setResponse records the outcome and logs it.
func (x *Executor) setResponse(text string) {
	x.response = text
	x.log.Debug().Uint64("tick", x.ticks).Str("response", text).Msg("outcome recorded")
}

// toComponentSnapshot converts an extracted scope value back into a
// snapshot. Entity slots that are not objects are deferred to Apply as
// per-entity errors via a sentinel nil map.
func toComponentSnapshot(v goja.Value) (ComponentSnapshot, []*EntityError) {
	exported := v.Export()
	top, ok := exported.(map[string]any)
	if !ok {
		return nil, []*EntityError{{Key: "", Err: fmt.Errorf("snapshot replaced with %T, want object", exported)}}
	}
	snap := make(ComponentSnapshot, len(top))
	var failed []*EntityError
	for key, raw := range top {
		rec, ok := raw.(map[string]any)
		if !ok {
			failed = append(failed, &EntityError{Key: key, Err: fmt.Errorf("expected object, got %T", raw)})
			continue
		}
		snap[key] = rec
	}
	return snap, failed
}

// Tick runs one simulation tick against the view and returns the resulting
// response text. Errors are never fatal: a failing update, command, or
// marshal pass records its outcome and the tick completes.
func (x *Executor) Tick(view world.View) string {
	x.ticks++
	// The response text is per tick: a tick that runs nothing (no update
	// entry point, no command) reports nothing rather than echoing the
	// previous outcome.
	x.response = ""
	x.scope.EnsureState()

	// Snapshot and inject every negotiated query under its own transient
	// key. Per-entity conversion failures do not abort the snapshot.
	var marshalNotes []string
	queries := x.caps.QueryNames()
	injected := make([]string, 0, len(queries))
	for _, name := range queries {
		snap, merr, err := Snapshot(view, name)
		if err != nil {
			x.log.Warn().Err(err).Str("query", name).Msg("snapshot unavailable")
			marshalNotes = append(marshalNotes, fmt.Sprintf("query %q: %v", name, err))
			continue
		}
		if merr != nil {
			marshalNotes = append(marshalNotes, merr.Error())
		}
		// Injected as map[string]any so script mutations write through
		// to the same maps Extract later exports.
		obj := make(map[string]any, len(snap))
		for key, rec := range snap {
			obj[key] = rec
		}
		if err := x.scope.Inject(name, obj); err != nil {
			x.log.Warn().Err(err).Str("query", name).Msg("inject failed")
			continue
		}
		injected = append(injected, name)
	}

	// Run the committed script's update entry point. A thrown error is
	// recorded and the tick continues; the scope keeps any partial
	// mutation the script made before failing (no rollback).
	if x.sources.Program() != nil {
		if fn, ok := x.scope.Callable(updateFunc); ok {
			err := x.scope.withBudget(x.budget, "update", func() error {
				_, callErr := fn(goja.Undefined())
				return callErr
			})
			switch {
			case err == nil:
				x.setResponse("OK")
			default:
				x.setResponse(fmt.Sprintf("Error: %v", asRuntimeError(err)))
			}
		}
	}

	// Evaluate the pending command after the update so it observes
	// post-update state. Its outcome overwrites the update's message.
	if x.hasPending {
		cmd := x.pending
		x.pending = ""
		x.hasPending = false

		var result goja.Value
		err := x.scope.withBudget(x.budget, "command", func() error {
			var runErr error
			result, runErr = x.scope.RunString(cmd)
			return runErr
		})
		if err != nil {
			x.setResponse(fmt.Sprintf("Error: %v", asRuntimeError(err)))
		} else {
			x.setResponse(fmt.Sprintf("Returned: %s", result.String()))
		}
	}

	// Extract and write back every injected snapshot. An absent key means
	// the script deleted it; skip write-back for that query. Per-entity
	// failures skip only the offending entity.
	for _, name := range injected {
		v, ok := x.scope.Extract(name)
		if !ok {
			x.log.Debug().Str("query", name).Msg("snapshot key absent; skipping write-back")
			continue
		}
		kinds, err := view.QueryKinds(name)
		if err != nil {
			x.log.Warn().Err(err).Str("query", name).Msg("write-back unavailable")
			marshalNotes = append(marshalNotes, fmt.Sprintf("query %q: %v", name, err))
			continue
		}
		snap, preFailed := toComponentSnapshot(v)
		var failed []*EntityError
		failed = append(failed, preFailed...)
		if snap != nil {
			if merr := Apply(view, snap, kinds); merr != nil {
				failed = append(failed, merr.Entities...)
			}
		}
		if len(failed) > 0 {
			merr := &MarshalError{Entities: failed}
			x.log.Warn().Err(merr).Str("query", name).Msg("write-back incomplete")
			marshalNotes = append(marshalNotes, merr.Error())
		}
	}

	if len(marshalNotes) > 0 {
		// Marshal problems annotate, rather than replace, the tick's
		// outcome so a command result stays visible.
		if x.response == "" {
			x.setResponse("Error: " + strings.Join(marshalNotes, "; "))
		} else {
			x.setResponse(x.response + " | " + strings.Join(marshalNotes, "; "))
		}
	}

	return x.response
}

// asRuntimeError normalizes an evaluation failure for display. Budget
// overruns keep their own identity; everything else is a RuntimeError.
func asRuntimeError(err error) error {
	if berr, ok := err.(*BudgetError); ok {
		return berr
	}
	return &RuntimeError{Err: err}
}
