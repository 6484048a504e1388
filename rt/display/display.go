// Package display defines the host-side visual proxy contract and an in-memory
// implementation of it.
//
// A proxy lives at an anchor placed by Spawn or Teleport and is drawn at anchor·matrix,
// where the matrix is set with SetTransform and interpolated by the host over a number
// of ticks. Hosts can only interpolate a limited distance from the anchor, which is why
// callers re-anchor by teleporting.
package display

import "github.com/go-gl/mathgl/mgl32"

type Handle uint64

const NoProxy Handle = 0

type Kind int

const (
	KindBox Kind = iota
	KindSphere
	KindMarker
)

func (k Kind) String() string {
	switch k {
	case KindBox:
		return "box"
	case KindSphere:
		return "sphere"
	case KindMarker:
		return "marker"
	}
	return "unknown"
}

// Transform is an anchor placement.
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

func At(pos mgl32.Vec3) Transform {
	return Transform{Position: pos, Rotation: mgl32.QuatIdent()}
}

func (t Transform) Mat4() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).Mul4(t.Rotation.Mat4())
}

// System is the host display. Spawned proxies start hidden.
type System interface {
	Spawn(kind Kind, at Transform) Handle
	// SetTransform sets the anchor-relative matrix, interpolated over interpTicks.
	SetTransform(h Handle, m mgl32.Mat4, interpTicks int)
	SetVisible(h Handle, visible bool)
	// Teleport moves the anchor without interpolation.
	Teleport(h Handle, at Transform)
	// IsDead reports proxies removed by the host behind the caller's back. Unknown
	// handles are dead.
	IsDead(h Handle) bool
	Remove(h Handle)
}
