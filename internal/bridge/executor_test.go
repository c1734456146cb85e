package bridge

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/simscript/internal/world"
)

// newTestBridge builds a world with three entities and an instance whose
// negotiated queries are registered on the world, mirroring the host wiring.
func newTestBridge(t *testing.T, source string) (*world.World, *Instance) {
	t.Helper()

	w := world.New(zerolog.Nop())
	for i := 0; i < 3; i++ {
		tr := world.Transform{Position: world.Vec3{X: float64(i)}, Orientation: world.Identity()}
		v := world.Velocity{Linear: world.Vec3{X: 1}}
		h := world.Health{Current: 100, Max: 100}
		w.Spawn(world.Record{Transform: &tr, Velocity: &v, Health: &h})
	}

	inst := NewInstance(Options{
		Logger: zerolog.Nop(),
		Budget: 250 * time.Millisecond,
		Source: source,
	})
	t.Cleanup(inst.Close)

	for name, spec := range inst.Capabilities().Queries {
		q, err := world.NewQuery(name, spec.Kinds, spec.Filter)
		require.NoError(t, err)
		w.RegisterQuery(q)
	}
	return w, inst
}

// stateValue reads a state field through a one-shot command tick.
func stateValue(t *testing.T, w *world.World, inst *Instance, expr string) string {
	t.Helper()
	inst.QueueCommand(expr)
	return inst.Tick(w)
}

func TestTickIncrementsState(t *testing.T) {
	w, inst := newTestBridge(t, "function update() { state.x = (state.x || 0) + 1; }")

	resp := inst.Tick(w)
	assert.Equal(t, "OK", resp)
	resp = inst.Tick(w)
	assert.Equal(t, "OK", resp)

	// Third tick: the command runs after the update and observes
	// post-update state.
	inst.QueueCommand("state.x")
	resp = inst.Tick(w)
	assert.Equal(t, "Returned: 3", resp)
}

func TestInvalidProposalKeepsPreviousScriptRunning(t *testing.T) {
	w, inst := newTestBridge(t, "function update() { state.x = (state.x || 0) + 1; }")

	require.Equal(t, "OK", inst.Tick(w))

	outcome := inst.Propose("function update() {")
	require.False(t, outcome.OK)
	assert.Contains(t, outcome.Message, "compile error")
	assert.Equal(t, outcome.Message, inst.Response())
	assert.Equal(t, "function update() { state.x = (state.x || 0) + 1; }", inst.Committed())

	// The previous script still executes.
	assert.Equal(t, "OK", inst.Tick(w))
	assert.Equal(t, "Returned: 3", stateValue(t, w, inst, "state.x"))
}

func TestCommandReturnedValue(t *testing.T) {
	w, inst := newTestBridge(t, `function update() {
		state.run_me = function() { state.x = 0; return state.x; };
	}`)

	require.Equal(t, "OK", inst.Tick(w))

	inst.QueueCommand("state.run_me()")
	assert.Equal(t, "Returned: 0", inst.Tick(w))
}

func TestCommandLastWriteWins(t *testing.T) {
	w, inst := newTestBridge(t, "function update() {}")

	inst.QueueCommand("state.a = 'ran A'")
	inst.QueueCommand("state.b = 'ran B'")
	resp := inst.Tick(w)
	assert.Equal(t, "Returned: ran B", resp)

	assert.Equal(t, "Returned: undefined", stateValue(t, w, inst, "state.a"))
	assert.Equal(t, "Returned: ran B", stateValue(t, w, inst, "state.b"))
}

func TestCommandErrorRecorded(t *testing.T) {
	w, inst := newTestBridge(t, "function update() {}")

	inst.QueueCommand("nonsense.that.throws()")
	resp := inst.Tick(w)
	assert.Contains(t, resp, "Error:")

	// The command was consumed; the next tick runs clean.
	assert.Equal(t, "OK", inst.Tick(w))
}

func TestUpdateErrorIsNonFatalAndPreservesPartialMutation(t *testing.T) {
	w, inst := newTestBridge(t, `function update() {
		state.before = true;
		throw new Error("boom");
	}`)

	resp := inst.Tick(w)
	assert.Contains(t, resp, "Error:")
	assert.Contains(t, resp, "boom")

	// No rollback: the mutation made before the throw survives.
	assert.Equal(t, "Returned: true", stateValue(t, w, inst, "state.before"))
}

func TestBudgetExhaustionIsRecoverable(t *testing.T) {
	w, inst := newTestBridge(t, "function update() {}")
	inst.exec.budget = 30 * time.Millisecond

	inst.QueueCommand("while (true) {}")
	resp := inst.Tick(w)
	assert.Contains(t, resp, "budget")

	// Exhaustion is a per-tick error, not a crash: the instance keeps
	// ticking and evaluating.
	assert.Equal(t, "OK", inst.Tick(w))
	assert.Equal(t, "Returned: 2", stateValue(t, w, inst, "1 + 1"))
}

func TestUpdateBudgetExhaustion(t *testing.T) {
	w, inst := newTestBridge(t, "function update() { while (true) {} }")
	inst.exec.budget = 30 * time.Millisecond

	resp := inst.Tick(w)
	assert.Contains(t, resp, "update aborted")

	// Recover by restoring the budget and hot-reloading a healthy script.
	inst.exec.budget = 250 * time.Millisecond
	require.True(t, inst.Propose("function update() {}").OK)
	assert.Equal(t, "OK", inst.Tick(w))
}

func TestScriptMutationWritesBack(t *testing.T) {
	w, inst := newTestBridge(t, `function init() {
		return { queries: { movers: ["transform", "velocity"] } };
	}
	function update() {
		for (var key in movers) {
			movers[key].transform.position.y = 9;
		}
	}`)

	require.Contains(t, inst.Capabilities().Queries, "movers")
	require.Equal(t, "OK", inst.Tick(w))

	ids, err := w.Entities("movers")
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	for _, id := range ids {
		rec, err := w.Read(id, []world.Kind{world.KindTransform})
		require.NoError(t, err)
		assert.Equal(t, 9.0, rec.Transform.Position.Y)
	}
}

func TestDeletedSnapshotSkipsWriteBack(t *testing.T) {
	w, inst := newTestBridge(t, `function update() {
		for (var key in entities) {
			entities[key].transform.position.x = 1000;
		}
		delete globalThis.entities;
	}`)

	require.Equal(t, "OK", inst.Tick(w))

	ids, err := w.Entities("entities")
	require.NoError(t, err)
	for _, id := range ids {
		rec, err := w.Read(id, []world.Kind{world.KindTransform})
		require.NoError(t, err)
		assert.Less(t, rec.Transform.Position.X, 1000.0, "deleted snapshot must not be written back")
	}
}

func TestCorruptedEntityIsolatedOnWriteBack(t *testing.T) {
	w, inst := newTestBridge(t, `function update() {
		entities["not-a-number"] = entities["1"];
		entities["2"].transform.position.z = 5;
	}`)

	resp := inst.Tick(w)
	assert.Contains(t, resp, "not-a-number")

	rec, err := w.Read(world.EntityID(2), []world.Kind{world.KindTransform})
	require.NoError(t, err)
	assert.Equal(t, 5.0, rec.Transform.Position.Z, "valid entities still commit")
}

func TestTickWithoutCommittedScript(t *testing.T) {
	w, inst := newTestBridge(t, "")

	// Uncompiled: ticks are safe, commands still evaluate against the
	// scope.
	assert.Equal(t, "", inst.Tick(w))
	inst.QueueCommand("state.x = 7")
	assert.Equal(t, "Returned: 7", inst.Tick(w))
}

func TestEnsureStateBeforeFirstUpdate(t *testing.T) {
	// update touches state on its very first run; the environment, not
	// the script, is responsible for state existing.
	w, inst := newTestBridge(t, "function update() { state.x = state.x || 'present'; }")
	assert.Equal(t, "OK", inst.Tick(w))
	assert.Equal(t, "Returned: present", stateValue(t, w, inst, "state.x"))
}

func TestResponseOverwrittenEachTick(t *testing.T) {
	w, inst := newTestBridge(t, "function update() {}")

	inst.QueueCommand("42")
	assert.Equal(t, "Returned: 42", inst.Tick(w))
	// Next tick has no command; the update outcome replaces the response.
	assert.Equal(t, "OK", inst.Tick(w))
}

func TestIdleTickClearsResponse(t *testing.T) {
	// No update entry point: a tick that ran a command reports its result,
	// and the next idle tick reports nothing rather than echoing it.
	w, inst := newTestBridge(t, "var idle = 1;")

	inst.QueueCommand("5")
	require.Equal(t, "Returned: 5", inst.Tick(w))
	assert.Equal(t, "", inst.Tick(w))
}

func TestIdenticalProposalDoesNotRerunTopLevel(t *testing.T) {
	src := `var boot = (typeof boot === "undefined") ? 1 : boot + 1;
function update() {}`
	w, inst := newTestBridge(t, src)
	require.Equal(t, "Returned: 1", stateValue(t, w, inst, "boot"))

	// Re-proposing the committed source verbatim must not re-run the
	// program's top level.
	outcome := inst.Propose(src)
	require.True(t, outcome.OK)
	assert.True(t, outcome.Unchanged)
	assert.Equal(t, "Returned: 1", stateValue(t, w, inst, "boot"))

	// An actual edit does re-run it.
	outcome = inst.Propose(src + "\nvar edited = true;")
	require.True(t, outcome.OK)
	assert.False(t, outcome.Unchanged)
	assert.Equal(t, "Returned: 2", stateValue(t, w, inst, "boot"))
}

func TestWriteBackConfinedToQueryKinds(t *testing.T) {
	// The default query exposes only transforms; attaching a health
	// component to a record must be rejected, not silently committed.
	w, inst := newTestBridge(t, `function update() {
		entities["1"].health = { current: 1, max: 2 };
	}`)

	resp := inst.Tick(w)
	assert.Contains(t, resp, `"health"`)
	assert.Contains(t, resp, "not exposed")

	rec, err := w.Read(world.EntityID(1), []world.Kind{world.KindHealth})
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Health.Current, "undeclared kind must not be written")
}
