package world

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Kind identifies a component kind supported by the world.
type Kind string

const (
	KindTransform Kind = "transform"
	KindVelocity  Kind = "velocity"
	KindHealth    Kind = "health"
)

// SupportedKinds returns every component kind the world can store, in a
// stable order.
func SupportedKinds() []Kind {
	return []Kind{KindTransform, KindVelocity, KindHealth}
}

// IsSupportedKind reports whether k names a component kind the world stores.
func IsSupportedKind(k Kind) bool {
	switch k {
	case KindTransform, KindVelocity, KindHealth:
		return true
	}
	return false
}

// Vec3 is a three-component vector.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity returns the identity rotation.
func Identity() Quat {
	return Quat{W: 1}
}

// Transform is an entity's position and orientation.
type Transform struct {
	Position    Vec3 `json:"position"`
	Orientation Quat `json:"orientation"`
}

// Velocity is an entity's linear velocity in units per second.
type Velocity struct {
	Linear Vec3 `json:"linear"`
}

// Health tracks current and maximum hit points.
type Health struct {
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
}

// Record is the per-entity projection exposed by a query: only the kinds the
// query declares are populated, everything else is nil.
type Record struct {
	Transform *Transform `json:"transform,omitempty"`
	Velocity  *Velocity  `json:"velocity,omitempty"`
	Health    *Health    `json:"health,omitempty"`
}

// Kinds returns the component kinds populated in the record.
func (r Record) Kinds() []Kind {
	var out []Kind
	if r.Transform != nil {
		out = append(out, KindTransform)
	}
	if r.Velocity != nil {
		out = append(out, KindVelocity)
	}
	if r.Health != nil {
		out = append(out, KindHealth)
	}
	return out
}

// Clone deep-copies the record by round-tripping it through the JSON codec.
func (r Record) Clone() (Record, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return Record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return out, nil
}
