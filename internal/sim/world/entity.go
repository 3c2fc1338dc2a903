package world

import "github.com/uruley/Nexus/internal/protocol"

// EntityID is assigned at spawn, monotonically, and never reused within a
// run, even after despawn.
type EntityID uint64

// Kind is fixed at spawn and picks which physics rules apply.
type Kind string

const (
	KindDynamic   Kind = "dynamic"   // gravity, integration, floor clamp
	KindKinematic Kind = "kinematic" // integration only
	KindStatic    Kind = "static"    // moved only by intents
)

type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{v.X * k, v.Y * k, v.Z * k}
}

func (v Vec3) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func vec3(a [3]float64) Vec3 {
	return Vec3{a[0], a[1], a[2]}
}

func vec3At(p *[3]float64) Vec3 {
	if p == nil {
		return Vec3{}
	}
	return vec3(*p)
}

// Entity is one simulated record. Value semantics: snapshots copy it whole,
// so a published Entity is never aliased by the live store.
type Entity struct {
	ID   EntityID
	Kind Kind
	Pos  Vec3
	Vel  Vec3
	Half Vec3 // half-extents, used for the floor check
	Tint Vec3
}

func (e Entity) Wire() protocol.EntityWire {
	return protocol.EntityWire{
		ID:       uint64(e.ID),
		Kind:     string(e.Kind),
		Position: e.Pos.Array(),
		Velocity: e.Vel.Array(),
		Size:     e.Half.Array(),
		Tint:     e.Tint.Array(),
	}
}
