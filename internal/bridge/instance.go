package bridge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/joeycumines/simscript/internal/event"
	"github.com/joeycumines/simscript/internal/world"
)

// ResponseChannel is the bus channel signalled whenever an instance's
// response text may have changed.
const ResponseChannel = "ui.response"

// Options configures a new instance.
type Options struct {
	// Logger is the parent logger; a nil-safe zero value logs nothing.
	Logger zerolog.Logger
	// Bus carries change signals between the instance and the UI. May be
	// nil when no UI is attached.
	Bus *event.Bus
	// Budget is the wall-clock limit per script evaluation. Zero disables
	// the guard (the base design's unbounded behavior).
	Budget time.Duration
	// Source is the initial script, proposed and, on success, used for
	// capability negotiation. May be empty.
	Source string
}

// Instance is one live scripting bridge: a persistent scope, a committed
// script, a tick executor, and the capability set negotiated at
// construction. All mutable state is explicit fields of the instance;
// nothing is ambient or shared between instances.
//
// An instance is single-threaded by contract: the host must ensure only one
// tick drives it at a time.
type Instance struct {
	id      string
	scope   *Scope
	sources *SourceManager
	exec    *Executor
	caps    CapabilitySet
	bus     *event.Bus
	log     zerolog.Logger

	// subscriptions holds channel name -> subscriber ID for cleanup.
	subscriptions map[string]string
	signals       map[string]<-chan event.Signal
}

// NewInstance builds an instance. If an initial source is given it is
// proposed immediately; on success the script's init entry point is
// consulted once for the declared capability set. A missing or failing init
// falls back to DefaultCapabilities rather than erroring.
//
// The capability set is fixed for the instance's lifetime: later source
// proposals hot-reload behavior but never renegotiate capabilities.
func NewInstance(opts Options) *Instance {
	id := uuid.NewString()
	log := opts.Logger.With().Str("component", "bridge").Str("instance", id).Logger()

	inst := &Instance{
		id:            id,
		scope:         NewScope(log),
		sources:       NewSourceManager(log),
		caps:          DefaultCapabilities(),
		bus:           opts.Bus,
		log:           log,
		subscriptions: make(map[string]string),
		signals:       make(map[string]<-chan event.Signal),
	}

	if opts.Source != "" {
		outcome := inst.sources.Propose(opts.Source)
		if outcome.OK {
			if _, err := inst.scope.RunProgram(inst.sources.Program()); err != nil {
				log.Warn().Err(err).Msg("initial script top-level evaluation failed")
			} else {
				inst.caps = negotiateCapabilities(inst.scope, opts.Budget, log)
			}
		} else {
			log.Warn().Str("diagnostic", outcome.Message).Msg("initial script rejected")
		}
	}

	inst.exec = newExecutor(inst.scope, inst.sources, inst.caps, opts.Budget, log)

	if inst.bus != nil {
		for _, channel := range inst.caps.Subscriptions {
			subID, ch := inst.bus.Subscribe(channel)
			inst.subscriptions[channel] = subID
			inst.signals[channel] = ch
		}
	}

	return inst
}

// ID returns the instance's unique identifier.
func (i *Instance) ID() string { return i.id }

// Capabilities returns the set negotiated at construction. The host builds
// its query registration from this; it never changes afterwards.
func (i *Instance) Capabilities() CapabilitySet { return i.caps }

// Signal returns the channel delivering "something changed" notifications
// for a subscribed event channel, or nil if the instance did not subscribe
// to it.
func (i *Instance) Signal(channel string) <-chan event.Signal {
	return i.signals[channel]
}

// Committed returns the currently committed script source.
func (i *Instance) Committed() string { return i.sources.Committed() }

// Response returns the last recorded outcome text.
func (i *Instance) Response() string { return i.exec.Response() }

// Propose attempts to hot-reload the script. On compile success the new
// program's top level runs immediately so redefined entry points take
// effect; a top-level throw is reported but the compiled source stays
// committed, matching the no-rollback policy for runtime failures.
// Re-proposing the committed source unchanged is a pure no-op: the already
// running program is not re-executed, so top-level initialization keeps
// its state.
func (i *Instance) Propose(src string) CompileOutcome {
	outcome := i.sources.Propose(src)
	if outcome.OK && !outcome.Unchanged {
		if _, err := i.scope.RunProgram(i.sources.Program()); err != nil {
			outcome.Message = fmt.Sprintf("Error: %v", &RuntimeError{Err: err})
		}
	}
	i.exec.setResponse(outcome.Message)
	i.publishResponse()
	return outcome
}

// QueueCommand stores a one-shot command for the next tick. At most one is
// outstanding; a newer command replaces an unconsumed one.
func (i *Instance) QueueCommand(cmd string) {
	i.exec.QueueCommand(cmd)
}

// Tick drives one simulation tick against the view and returns the
// resulting response text.
func (i *Instance) Tick(view world.View) string {
	resp := i.exec.Tick(view)
	i.publishResponse()
	return resp
}

func (i *Instance) publishResponse() {
	if i.bus != nil {
		i.bus.Publish(ResponseChannel)
	}
}

// Close releases the instance's bus subscriptions. The scope and compiled
// script are garbage collected with the instance; nothing persists.
func (i *Instance) Close() {
	if i.bus != nil {
		for channel, subID := range i.subscriptions {
			i.bus.Unsubscribe(channel, subID)
		}
	}
	i.subscriptions = map[string]string{}
	i.signals = map[string]<-chan event.Signal{}
}
