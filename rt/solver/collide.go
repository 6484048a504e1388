package solver

import (
	"math"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
)

// manifold describes one contact. normal points from the second shape to the first, so
// moving the first shape along normal by depth separates them.
type manifold struct {
	normal mgl32.Vec3
	depth  float32
	point  mgl32.Vec3
}

type obb struct {
	pos  mgl32.Vec3
	axes [3]mgl32.Vec3
	half mgl32.Vec3
}

func obbOf(s *shape) obb {
	rot := s.world.Rotation.Mat4()
	return obb{
		pos:  s.world.Position,
		axes: [3]mgl32.Vec3{rot.Col(0).Vec3(), rot.Col(1).Vec3(), rot.Col(2).Vec3()},
		half: s.geom.HalfExtents,
	}
}

func collide(a, b *shape) (manifold, bool) {
	switch {
	case a.geom.Kind == backend.GeometryBox && b.geom.Kind == backend.GeometryBox:
		return boxBox(obbOf(a), obbOf(b))
	case a.geom.Kind == backend.GeometrySphere && b.geom.Kind == backend.GeometrySphere:
		return sphereSphere(a.world.Position, a.geom.Radius, b.world.Position, b.geom.Radius)
	case a.geom.Kind == backend.GeometrySphere:
		return sphereBox(a.world.Position, a.geom.Radius, obbOf(b))
	default:
		m, ok := sphereBox(b.world.Position, b.geom.Radius, obbOf(a))
		m.normal = m.normal.Mul(-1)
		return m, ok
	}
}

// boxBox runs the separating axis test over the 15 candidate axes.
func boxBox(a, b obb) (manifold, bool) {
	l := b.pos.Sub(a.pos)

	axes := make([]mgl32.Vec3, 0, 15)
	for i := 0; i < 3; i++ {
		axes = append(axes, a.axes[i], b.axes[i])
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			cross := a.axes[i].Cross(b.axes[j])
			if cross.LenSqr() > 0.0001 {
				axes = append(axes, cross.Normalize())
			}
		}
	}

	minOverlap := float32(math.MaxFloat32)
	var normal mgl32.Vec3
	for _, axis := range axes {
		overlap := projectedRadius(a, axis) + projectedRadius(b, axis) - abs32(l.Dot(axis))
		if overlap <= 0 {
			return manifold{}, false
		}
		if overlap < minOverlap {
			minOverlap = overlap
			normal = axis
		}
	}

	if l.Dot(normal) > 0 {
		normal = normal.Mul(-1)
	}
	return manifold{normal: normal, depth: minOverlap, point: contactPoint(a, b)}, true
}

func projectedRadius(o obb, axis mgl32.Vec3) float32 {
	var r float32
	for i := 0; i < 3; i++ {
		r += abs32(o.axes[i].Dot(axis)) * o.half[i]
	}
	return r
}

// contactPoint averages the corners of each box that lie inside the other.
func contactPoint(a, b obb) mgl32.Vec3 {
	var sum mgl32.Vec3
	n := 0
	for _, p := range a.corners() {
		if b.contains(p) {
			sum = sum.Add(p)
			n++
		}
	}
	for _, p := range b.corners() {
		if a.contains(p) {
			sum = sum.Add(p)
			n++
		}
	}
	if n == 0 {
		return a.pos.Add(b.pos).Mul(0.5)
	}
	return sum.Mul(1 / float32(n))
}

func (o obb) corners() [8]mgl32.Vec3 {
	var out [8]mgl32.Vec3
	for i := 0; i < 8; i++ {
		p := o.pos
		for axis := 0; axis < 3; axis++ {
			d := o.axes[axis].Mul(o.half[axis])
			if i&(1<<axis) != 0 {
				p = p.Add(d)
			} else {
				p = p.Sub(d)
			}
		}
		out[i] = p
	}
	return out
}

func (o obb) contains(p mgl32.Vec3) bool {
	d := p.Sub(o.pos)
	for i := 0; i < 3; i++ {
		if abs32(d.Dot(o.axes[i])) > o.half[i]+0.01 {
			return false
		}
	}
	return true
}

func sphereSphere(pa mgl32.Vec3, ra float32, pb mgl32.Vec3, rb float32) (manifold, bool) {
	d := pa.Sub(pb)
	dist := d.Len()
	if dist >= ra+rb {
		return manifold{}, false
	}
	normal := mgl32.Vec3{0, 1, 0}
	if dist > 1e-6 {
		normal = d.Mul(1 / dist)
	}
	return manifold{
		normal: normal,
		depth:  ra + rb - dist,
		point:  pb.Add(normal.Mul(rb - (ra+rb-dist)*0.5)),
	}, true
}

// sphereBox tests a sphere at c against box o. The normal points from the box to the sphere.
func sphereBox(c mgl32.Vec3, r float32, o obb) (manifold, bool) {
	rel := c.Sub(o.pos)
	var local, closest mgl32.Vec3
	for i := 0; i < 3; i++ {
		local[i] = rel.Dot(o.axes[i])
		closest[i] = mgl32.Clamp(local[i], -o.half[i], o.half[i])
	}
	toWorld := func(v mgl32.Vec3) mgl32.Vec3 {
		return o.axes[0].Mul(v[0]).Add(o.axes[1].Mul(v[1])).Add(o.axes[2].Mul(v[2]))
	}

	d := local.Sub(closest)
	dist := d.Len()
	if dist >= r {
		return manifold{}, false
	}
	if dist > 1e-6 {
		return manifold{
			normal: toWorld(d.Mul(1 / dist)),
			depth:  r - dist,
			point:  o.pos.Add(toWorld(closest)),
		}, true
	}

	// centre inside the box: leave through the nearest face
	best, bestGap := 0, float32(math.MaxFloat32)
	for i := 0; i < 3; i++ {
		if gap := o.half[i] - abs32(local[i]); gap < bestGap {
			best, bestGap = i, gap
		}
	}
	var n mgl32.Vec3
	n[best] = 1
	if local[best] < 0 {
		n[best] = -1
	}
	return manifold{normal: toWorld(n), depth: r + bestGap, point: c}, true
}

func abs32(v float32) float32 {
	return float32(math.Abs(float64(v)))
}
