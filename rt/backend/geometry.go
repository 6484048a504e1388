package backend

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Pose is a rigid transform: world position plus unit orientation.
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
}

func PoseAt(pos mgl32.Vec3) Pose {
	return Pose{Position: pos, Rotation: mgl32.QuatIdent()}
}

// Apply transforms a point from pose-local space to world space.
func (p Pose) Apply(local mgl32.Vec3) mgl32.Vec3 {
	return p.Position.Add(p.Rotation.Rotate(local))
}

// Compose returns p ∘ child, i.e. child expressed in p's parent space.
func (p Pose) Compose(child Pose) Pose {
	return Pose{
		Position: p.Apply(child.Position),
		Rotation: p.Rotation.Mul(child.Rotation).Normalize(),
	}
}

func (p Pose) Mat4() mgl32.Mat4 {
	return mgl32.Translate3D(p.Position.X(), p.Position.Y(), p.Position.Z()).Mul4(p.Rotation.Mat4())
}

type GeometryKind int

const (
	GeometryBox GeometryKind = iota
	GeometrySphere
)

func (k GeometryKind) String() string {
	switch k {
	case GeometryBox:
		return "box"
	case GeometrySphere:
		return "sphere"
	}
	return "unknown"
}

// Geometry is either a box (HalfExtents) or a sphere (Radius).
type Geometry struct {
	Kind        GeometryKind
	HalfExtents mgl32.Vec3
	Radius      float32
}

func Box(halfExtents mgl32.Vec3) Geometry {
	return Geometry{Kind: GeometryBox, HalfExtents: halfExtents}
}

func Sphere(radius float32) Geometry {
	return Geometry{Kind: GeometrySphere, Radius: radius}
}

func (g Geometry) Volume() float32 {
	switch g.Kind {
	case GeometryBox:
		return 8 * g.HalfExtents.X() * g.HalfExtents.Y() * g.HalfExtents.Z()
	case GeometrySphere:
		return 4.0 / 3.0 * math.Pi * g.Radius * g.Radius * g.Radius
	}
	return 0
}

// Degenerate reports geometry that encloses no volume and must never reach a backend.
// Every box half extent and the sphere radius must be positive.
func (g Geometry) Degenerate() bool {
	switch g.Kind {
	case GeometryBox:
		for _, e := range g.HalfExtents {
			if !(e > 0) {
				return true
			}
		}
	case GeometrySphere:
		if !(g.Radius > 0) {
			return true
		}
	default:
		return true
	}
	v := g.Volume()
	return !(v > 1e-9) || math.IsInf(float64(v), 0)
}

// Bound returns the half extents of the axis-aligned box enclosing g rotated by rot.
func (g Geometry) Bound(rot mgl32.Quat) mgl32.Vec3 {
	if g.Kind == GeometrySphere {
		return mgl32.Vec3{g.Radius, g.Radius, g.Radius}
	}
	m := rot.Mat4()
	var out mgl32.Vec3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i] += float32(math.Abs(float64(m.At(i, j)))) * g.HalfExtents[j]
		}
	}
	return out
}

// Inertia returns the diagonal of the inertia tensor of a solid shape of given mass
// about its own centre.
func (g Geometry) Inertia(mass float32) mgl32.Vec3 {
	if g.Kind == GeometrySphere {
		i := 0.4 * mass * g.Radius * g.Radius
		return mgl32.Vec3{i, i, i}
	}
	x, y, z := 2*g.HalfExtents.X(), 2*g.HalfExtents.Y(), 2*g.HalfExtents.Z()
	k := mass / 12
	return mgl32.Vec3{k * (y*y + z*z), k * (x*x + z*z), k * (x*x + y*y)}
}
