package world

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorld() *World {
	return New(zerolog.Nop())
}

func spawnMover(w *World, x float64) EntityID {
	t := Transform{Position: Vec3{X: x}, Orientation: Identity()}
	v := Velocity{Linear: Vec3{X: 1}}
	return w.Spawn(Record{Transform: &t, Velocity: &v})
}

func TestSpawnAndRead(t *testing.T) {
	w := newTestWorld()
	id := spawnMover(w, 3)

	rec, err := w.Read(id, []Kind{KindTransform, KindVelocity})
	require.NoError(t, err)
	require.NotNil(t, rec.Transform)
	require.NotNil(t, rec.Velocity)
	assert.Equal(t, 3.0, rec.Transform.Position.X)
	assert.Nil(t, rec.Health)
}

func TestReadMissingComponent(t *testing.T) {
	w := newTestWorld()
	id := spawnMover(w, 0)

	_, err := w.Read(id, []Kind{KindHealth})
	assert.ErrorContains(t, err, "no health component")
}

func TestReadReturnsCopies(t *testing.T) {
	w := newTestWorld()
	id := spawnMover(w, 1)

	rec, err := w.Read(id, []Kind{KindTransform})
	require.NoError(t, err)
	rec.Transform.Position.X = 99

	again, err := w.Read(id, []Kind{KindTransform})
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Transform.Position.X, "mutating a read must not touch the world")
}

func TestWriteUnknownEntity(t *testing.T) {
	w := newTestWorld()
	tr := Transform{}
	err := w.Write(EntityID(42), Record{Transform: &tr})
	assert.ErrorContains(t, err, "no such entity")
}

func TestQueryMatching(t *testing.T) {
	w := newTestWorld()
	a := spawnMover(w, 0)
	b := spawnMover(w, 5)
	// Entity with transform only; must not match a transform+velocity query.
	tr := Transform{Orientation: Identity()}
	w.Spawn(Record{Transform: &tr})

	q, err := NewQuery("movers", []Kind{KindTransform, KindVelocity}, "")
	require.NoError(t, err)
	w.RegisterQuery(q)

	ids, err := w.Entities("movers")
	require.NoError(t, err)
	assert.Equal(t, []EntityID{a, b}, ids)
}

func TestQueryFilter(t *testing.T) {
	w := newTestWorld()
	spawnMover(w, -1)
	far := spawnMover(w, 10)

	q, err := NewQuery("right-of-origin", []Kind{KindTransform}, "transform.position.x > 0")
	require.NoError(t, err)
	w.RegisterQuery(q)

	ids, err := w.Entities("right-of-origin")
	require.NoError(t, err)
	assert.Equal(t, []EntityID{far}, ids)
}

func TestQueryValidation(t *testing.T) {
	_, err := NewQuery("", []Kind{KindTransform}, "")
	assert.Error(t, err)

	_, err = NewQuery("q", nil, "")
	assert.Error(t, err)

	_, err = NewQuery("q", []Kind{"mana"}, "")
	assert.ErrorContains(t, err, "unsupported kind")

	_, err = NewQuery("q", []Kind{KindTransform}, "not valid ((")
	assert.Error(t, err)
}

func TestUnknownQuery(t *testing.T) {
	w := newTestWorld()
	_, err := w.Entities("nope")
	assert.ErrorContains(t, err, "unknown query")
	_, err = w.QueryKinds("nope")
	assert.ErrorContains(t, err, "unknown query")
}

func TestAdvanceIntegratesVelocity(t *testing.T) {
	w := newTestWorld()
	id := spawnMover(w, 0)

	w.Advance(0.5)
	w.Advance(0.5)

	rec, err := w.Read(id, []Kind{KindTransform})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rec.Transform.Position.X, 1e-9)
}

func TestRecordClone(t *testing.T) {
	tr := Transform{Position: Vec3{X: 1, Y: 2, Z: 3}, Orientation: Identity()}
	h := Health{Current: 50, Max: 100}
	rec := Record{Transform: &tr, Health: &h}

	clone, err := rec.Clone()
	require.NoError(t, err)
	require.NotNil(t, clone.Transform)
	assert.Equal(t, rec.Transform, clone.Transform)
	assert.Equal(t, rec.Health, clone.Health)
	assert.Nil(t, clone.Velocity)

	clone.Transform.Position.X = 99
	assert.Equal(t, 1.0, rec.Transform.Position.X)
}

func TestDespawn(t *testing.T) {
	w := newTestWorld()
	id := spawnMover(w, 0)
	require.Equal(t, 1, w.Len())
	w.Despawn(id)
	assert.Equal(t, 0, w.Len())
	w.Despawn(id) // no-op
}
