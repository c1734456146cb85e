package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// EntityID is an opaque handle assigned by the world. The zero value is never
// a valid entity.
type EntityID uint64

// View is the surface the scripting bridge consumes: iterate the entities
// matched by a named query, read the components that query exposes, and
// write them back. Nothing else about the world is visible through it.
type View interface {
	// Entities returns the IDs matched by the named query.
	Entities(query string) ([]EntityID, error)
	// QueryKinds returns the component kinds the named query exposes.
	QueryKinds(query string) ([]Kind, error)
	// Read returns a record containing the requested kinds for the entity.
	Read(id EntityID, kinds []Kind) (Record, error)
	// Write stores every populated component of rec on the entity.
	Write(id EntityID, rec Record) error
}

type entity struct {
	transform *Transform
	velocity  *Velocity
	health    *Health
}

func (e *entity) has(k Kind) bool {
	switch k {
	case KindTransform:
		return e.transform != nil
	case KindVelocity:
		return e.velocity != nil
	case KindHealth:
		return e.health != nil
	}
	return false
}

// World is an in-memory entity-component store. It exists so the bridge has a
// real host to talk to; the bridge itself only ever sees the View interface.
type World struct {
	mu       sync.RWMutex
	nextID   EntityID
	entities map[EntityID]*entity
	queries  map[string]*Query
	history  []frame
	log      zerolog.Logger
}

// New creates an empty world.
func New(log zerolog.Logger) *World {
	return &World{
		nextID:   1,
		entities: make(map[EntityID]*entity),
		queries:  make(map[string]*Query),
		log:      log.With().Str("component", "world").Logger(),
	}
}

// Spawn creates an entity holding the populated components of rec and
// returns its ID.
func (w *World) Spawn(rec Record) EntityID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	e := &entity{}
	if rec.Transform != nil {
		t := *rec.Transform
		e.transform = &t
	}
	if rec.Velocity != nil {
		v := *rec.Velocity
		e.velocity = &v
	}
	if rec.Health != nil {
		h := *rec.Health
		e.health = &h
	}
	w.entities[id] = e
	return id
}

// Despawn removes an entity. Removing an unknown entity is a no-op.
func (w *World) Despawn(id EntityID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, id)
}

// Len returns the number of live entities.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// RegisterQuery makes a query available to Entities/Read. Registering a name
// twice replaces the previous query.
func (w *World) RegisterQuery(q *Query) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.queries[q.Name()]; exists {
		w.log.Debug().Str("query", q.Name()).Msg("replacing registered query")
	}
	w.queries[q.Name()] = q
}

// Queries returns the names of all registered queries, sorted.
func (w *World) Queries() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.queries))
	for name := range w.queries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entities implements View.
func (w *World) Entities(query string) ([]EntityID, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	q, ok := w.queries[query]
	if !ok {
		return nil, fmt.Errorf("unknown query %q", query)
	}
	var ids []EntityID
	for id, e := range w.entities {
		matchedAll := true
		for _, k := range q.kinds {
			if !e.has(k) {
				matchedAll = false
				break
			}
		}
		if !matchedAll {
			continue
		}
		ok, err := q.matches(w.readLocked(e, q.kinds))
		if err != nil {
			// A failing predicate excludes the entity rather than
			// failing the whole iteration.
			w.log.Warn().Err(err).Uint64("entity", uint64(id)).Msg("query filter error")
			continue
		}
		if ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// QueryKinds implements View.
func (w *World) QueryKinds(query string) ([]Kind, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	q, ok := w.queries[query]
	if !ok {
		return nil, fmt.Errorf("unknown query %q", query)
	}
	return q.Kinds(), nil
}

func (w *World) readLocked(e *entity, kinds []Kind) Record {
	var rec Record
	for _, k := range kinds {
		switch k {
		case KindTransform:
			if e.transform != nil {
				t := *e.transform
				rec.Transform = &t
			}
		case KindVelocity:
			if e.velocity != nil {
				v := *e.velocity
				rec.Velocity = &v
			}
		case KindHealth:
			if e.health != nil {
				h := *e.health
				rec.Health = &h
			}
		}
	}
	return rec
}

// Read implements View.
func (w *World) Read(id EntityID, kinds []Kind) (Record, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entities[id]
	if !ok {
		return Record{}, fmt.Errorf("no such entity %d", id)
	}
	for _, k := range kinds {
		if !IsSupportedKind(k) {
			return Record{}, fmt.Errorf("unsupported kind %q", k)
		}
		if !e.has(k) {
			return Record{}, fmt.Errorf("entity %d has no %s component", id, k)
		}
	}
	return w.readLocked(e, kinds), nil
}

// Write implements View.
func (w *World) Write(id EntityID, rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("no such entity %d", id)
	}
	if rec.Transform != nil {
		if e.transform == nil {
			return fmt.Errorf("entity %d has no transform component", id)
		}
		*e.transform = *rec.Transform
	}
	if rec.Velocity != nil {
		if e.velocity == nil {
			return fmt.Errorf("entity %d has no velocity component", id)
		}
		*e.velocity = *rec.Velocity
	}
	if rec.Health != nil {
		if e.health == nil {
			return fmt.Errorf("entity %d has no health component", id)
		}
		*e.health = *rec.Health
	}
	return nil
}

// Advance integrates velocities into transforms over dt seconds. It is the
// world's own per-frame system, independent of any script.
func (w *World) Advance(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range w.entities {
		if e.transform == nil || e.velocity == nil {
			continue
		}
		e.transform.Position.X += e.velocity.Linear.X * dt
		e.transform.Position.Y += e.velocity.Linear.Y * dt
		e.transform.Position.Z += e.velocity.Linear.Z * dt
	}
}
