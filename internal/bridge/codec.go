package bridge

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/joeycumines/simscript/internal/world"
)

// ComponentSnapshot maps entity-identifier keys to the dynamic form of the
// components a query exposed for that entity. It is created fresh each tick,
// consumed by the script in place, and either written back or discarded.
type ComponentSnapshot map[string]map[string]any

// FormatEntityKey converts an entity identifier to its scope map key.
func FormatEntityKey(id world.EntityID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseEntityKey recovers the entity identifier from a scope map key. The
// string form must round-trip to the exact original identifier; any failure
// is a recoverable error, never a panic.
func ParseEntityKey(key string) (world.EntityID, error) {
	n, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed entity key: %w", err)
	}
	return world.EntityID(n), nil
}

func encodeVec3(v world.Vec3) map[string]any {
	return map[string]any{"x": v.X, "y": v.Y, "z": v.Z}
}

func encodeQuat(q world.Quat) map[string]any {
	return map[string]any{"x": q.X, "y": q.Y, "z": q.Z, "w": q.W}
}

// EncodeRecord converts a typed record to its dynamic form. Only populated
// components appear in the result.
func EncodeRecord(rec world.Record) map[string]any {
	out := make(map[string]any)
	if rec.Transform != nil {
		out[string(world.KindTransform)] = map[string]any{
			"position":    encodeVec3(rec.Transform.Position),
			"orientation": encodeQuat(rec.Transform.Orientation),
		}
	}
	if rec.Velocity != nil {
		out[string(world.KindVelocity)] = map[string]any{
			"linear": encodeVec3(rec.Velocity.Linear),
		}
	}
	if rec.Health != nil {
		out[string(world.KindHealth)] = map[string]any{
			"current": rec.Health.Current,
			"max":     rec.Health.Max,
		}
	}
	return out
}

func asNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

func asObject(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return m, nil
}

func decodeVec3(v any) (world.Vec3, error) {
	m, err := asObject(v)
	if err != nil {
		return world.Vec3{}, err
	}
	var out world.Vec3
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}} {
		raw, ok := m[f.name]
		if !ok {
			return world.Vec3{}, fmt.Errorf("missing field %q", f.name)
		}
		n, err := asNumber(raw)
		if err != nil {
			return world.Vec3{}, fmt.Errorf("field %q: %w", f.name, err)
		}
		*f.dst = n
	}
	return out, nil
}

func decodeQuat(v any) (world.Quat, error) {
	m, err := asObject(v)
	if err != nil {
		return world.Quat{}, err
	}
	var out world.Quat
	for _, f := range []struct {
		name string
		dst  *float64
	}{{"x", &out.X}, {"y", &out.Y}, {"z", &out.Z}, {"w", &out.W}} {
		raw, ok := m[f.name]
		if !ok {
			return world.Quat{}, fmt.Errorf("missing field %q", f.name)
		}
		n, err := asNumber(raw)
		if err != nil {
			return world.Quat{}, fmt.Errorf("field %q: %w", f.name, err)
		}
		*f.dst = n
	}
	return out, nil
}

// DecodeRecord converts a dynamic record back to typed components,
// validating the schema of every kind present. Unknown keys are rejected so
// a typo in a script surfaces as an error rather than silently dropped data.
func DecodeRecord(dyn map[string]any) (world.Record, error) {
	var rec world.Record
	for key, raw := range dyn {
		switch world.Kind(key) {
		case world.KindTransform:
			m, err := asObject(raw)
			if err != nil {
				return world.Record{}, fmt.Errorf("transform: %w", err)
			}
			pos, err := decodeVec3(m["position"])
			if err != nil {
				return world.Record{}, fmt.Errorf("transform.position: %w", err)
			}
			ori, err := decodeQuat(m["orientation"])
			if err != nil {
				return world.Record{}, fmt.Errorf("transform.orientation: %w", err)
			}
			rec.Transform = &world.Transform{Position: pos, Orientation: ori}
		case world.KindVelocity:
			m, err := asObject(raw)
			if err != nil {
				return world.Record{}, fmt.Errorf("velocity: %w", err)
			}
			lin, err := decodeVec3(m["linear"])
			if err != nil {
				return world.Record{}, fmt.Errorf("velocity.linear: %w", err)
			}
			rec.Velocity = &world.Velocity{Linear: lin}
		case world.KindHealth:
			m, err := asObject(raw)
			if err != nil {
				return world.Record{}, fmt.Errorf("health: %w", err)
			}
			cur, err := asNumber(m["current"])
			if err != nil {
				return world.Record{}, fmt.Errorf("health.current: %w", err)
			}
			max, err := asNumber(m["max"])
			if err != nil {
				return world.Record{}, fmt.Errorf("health.max: %w", err)
			}
			rec.Health = &world.Health{Current: cur, Max: max}
		default:
			return world.Record{}, fmt.Errorf("unknown component kind %q", key)
		}
	}
	return rec, nil
}

// Snapshot reads every entity matched by the named query and converts each
// typed record to dynamic form. A failure is attributed to a single entity
// and does not abort the snapshot: the remaining entities still convert. The
// returned *MarshalError (nil when clean) lists the skipped entities.
func Snapshot(view world.View, query string) (ComponentSnapshot, *MarshalError, error) {
	ids, err := view.Entities(query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to iterate query %q: %w", query, err)
	}
	kinds, err := view.QueryKinds(query)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve query %q: %w", query, err)
	}

	snap := make(ComponentSnapshot, len(ids))
	var failed []*EntityError
	for _, id := range ids {
		key := FormatEntityKey(id)
		rec, err := view.Read(id, kinds)
		if err != nil {
			failed = append(failed, &EntityError{Key: key, Err: err})
			continue
		}
		snap[key] = EncodeRecord(rec)
	}
	if len(failed) > 0 {
		return snap, &MarshalError{Entities: failed}, nil
	}
	return snap, nil, nil
}

// Apply decodes each dynamic record and writes it back to the matching
// entity. Writes are confined to the kinds the originating query exposed: a
// record carrying any other kind is rejected whole, so a script cannot widen
// its write surface past what it negotiated. An identifier that fails to
// parse or a value that fails schema validation skips only that entity;
// every other entity still commits. The returned *MarshalError (nil when
// clean) names the offenders.
func Apply(view world.View, snap ComponentSnapshot, allowed []world.Kind) *MarshalError {
	permitted := make(map[world.Kind]bool, len(allowed))
	for _, k := range allowed {
		permitted[k] = true
	}

	// Deterministic order keeps error reporting stable.
	keys := make([]string, 0, len(snap))
	for key := range snap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var failed []*EntityError
	for _, key := range keys {
		id, err := ParseEntityKey(key)
		if err != nil {
			failed = append(failed, &EntityError{Key: key, Err: err})
			continue
		}
		rec, err := DecodeRecord(snap[key])
		if err != nil {
			failed = append(failed, &EntityError{Key: key, Err: err})
			continue
		}
		if err := undeclaredKind(rec, permitted); err != nil {
			failed = append(failed, &EntityError{Key: key, Err: err})
			continue
		}
		if err := view.Write(id, rec); err != nil {
			failed = append(failed, &EntityError{Key: key, Err: err})
			continue
		}
	}
	if len(failed) > 0 {
		return &MarshalError{Entities: failed}
	}
	return nil
}

func undeclaredKind(rec world.Record, permitted map[world.Kind]bool) error {
	for _, k := range rec.Kinds() {
		if !permitted[k] {
			return fmt.Errorf("component kind %q not exposed by this query", k)
		}
	}
	return nil
}
