package bridge

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"github.com/rs/zerolog"
)

// StateKey is the reserved scope slot scripts use for their own persistent
// data. The bridge guarantees it exists before every update; it is never
// implicitly reset.
const StateKey = "state"

// Scope owns the persistent named-variable environment a script executes
// against. It wraps a single goja runtime that lives for the instance's
// lifetime; transient per-tick data is injected before each execution and
// extracted afterwards so it cannot leak into the next tick under a stale
// alias.
type Scope struct {
	vm  *goja.Runtime
	log zerolog.Logger
}

// consolePrinter routes script console output into the structured logger.
type consolePrinter struct {
	log zerolog.Logger
}

func (p consolePrinter) Log(s string)   { p.log.Debug().Str("source", "script").Msg(s) }
func (p consolePrinter) Warn(s string)  { p.log.Warn().Str("source", "script").Msg(s) }
func (p consolePrinter) Error(s string) { p.log.Error().Str("source", "script").Msg(s) }

// NewScope creates a scope with a fresh runtime, require support, and a
// console wired to the logger.
func NewScope(log zerolog.Logger) *Scope {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{log: log}))
	registry.Enable(vm)
	console.Enable(vm)

	return &Scope{
		vm:  vm,
		log: log.With().Str("component", "scope").Logger(),
	}
}

// EnsureState creates the reserved state object if absent. It is idempotent
// and never touches an existing value, empty or not.
func (s *Scope) EnsureState() {
	v := s.vm.Get(StateKey)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		_ = s.vm.Set(StateKey, s.vm.NewObject())
	}
}

// Inject overwrites a transient key for the duration of one execution.
func (s *Scope) Inject(key string, value any) error {
	if key == StateKey {
		return fmt.Errorf("cannot inject over reserved key %q", StateKey)
	}
	if err := s.vm.Set(key, value); err != nil {
		return fmt.Errorf("failed to inject %q: %w", key, err)
	}
	return nil
}

// Extract removes and returns a transient key. The second return is false
// when the key is absent (for example, the script deleted it or set it to
// null); the binding is removed either way so nothing lingers into the next
// tick.
func (s *Scope) Extract(key string) (goja.Value, bool) {
	v := s.vm.Get(key)
	if err := s.vm.GlobalObject().Delete(key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to delete transient key")
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return v, true
}

// Get returns the current value of a scope variable without removing it, or
// nil when unset.
func (s *Scope) Get(key string) goja.Value {
	v := s.vm.Get(key)
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	return v
}

// RunProgram executes a compiled program against the scope's globals.
func (s *Scope) RunProgram(prg *goja.Program) (goja.Value, error) {
	return s.vm.RunProgram(prg)
}

// RunString evaluates source directly against the scope. Used for one-shot
// commands; committed scripts always go through compiled programs.
func (s *Scope) RunString(src string) (goja.Value, error) {
	return s.vm.RunString(src)
}

// Callable looks up a global function by name. The second return is false
// when the name is unset or not callable.
func (s *Scope) Callable(name string) (goja.Callable, bool) {
	v := s.vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return goja.AssertFunction(v)
}

// Runtime exposes the underlying VM. Single-threaded use only; the scope is
// owned by exactly one tick driver at a time.
func (s *Scope) Runtime() *goja.Runtime {
	return s.vm
}
