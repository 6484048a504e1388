package solver

import (
	"math"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
)

// Raycast returns the closest solid shape hit within maxDistance. Trigger shapes are never
// hit, and QueryDynamic ignores static bodies. Rays starting inside a shape ignore it.
func (w *World) Raycast(origin, dir mgl32.Vec3, maxDistance float32, filter backend.QueryFilter) (backend.RaycastHit, bool) {
	if dir.Len() < 1e-9 || maxDistance <= 0 {
		return backend.RaycastHit{}, false
	}
	dir = dir.Normalize()

	best := backend.RaycastHit{Distance: maxDistance}
	found := false
	for _, h := range w.sortedHandles() {
		b := w.bodies[h]
		if b.static && filter == backend.QueryDynamic {
			continue
		}
		for i := range b.shapes {
			s := &b.shapes[i]
			if s.trigger {
				continue
			}
			var t float32
			var normal mgl32.Vec3
			var ok bool
			if s.geom.Kind == backend.GeometrySphere {
				t, normal, ok = raySphere(origin, dir, s.world.Position, s.geom.Radius)
			} else {
				t, normal, ok = rayBox(origin, dir, obbOf(s))
			}
			if ok && t < best.Distance {
				best = backend.RaycastHit{
					Body:     h,
					Distance: t,
					Point:    origin.Add(dir.Mul(t)),
					Normal:   normal,
				}
				found = true
			}
		}
	}
	return best, found
}

// rayBox is a slab test in the box's local frame.
func rayBox(origin, dir mgl32.Vec3, o obb) (float32, mgl32.Vec3, bool) {
	rel := origin.Sub(o.pos)
	tmin := float32(-math.MaxFloat32)
	tmax := float32(math.MaxFloat32)
	hitAxis, hitSign := 0, float32(1)

	for i := 0; i < 3; i++ {
		p := rel.Dot(o.axes[i])
		d := dir.Dot(o.axes[i])
		if abs32(d) < 1e-9 {
			if p < -o.half[i] || p > o.half[i] {
				return 0, mgl32.Vec3{}, false
			}
			continue
		}
		t1 := (-o.half[i] - p) / d
		t2 := (o.half[i] - p) / d
		sign := float32(-1)
		if t1 > t2 {
			t1, t2 = t2, t1
			sign = 1
		}
		if t1 > tmin {
			tmin = t1
			hitAxis, hitSign = i, sign
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, mgl32.Vec3{}, false
		}
	}
	if tmin < 0 {
		return 0, mgl32.Vec3{}, false
	}
	return tmin, o.axes[hitAxis].Mul(hitSign), true
}

func raySphere(origin, dir, center mgl32.Vec3, r float32) (float32, mgl32.Vec3, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - r*r
	if c < 0 {
		return 0, mgl32.Vec3{}, false
	}
	disc := b*b - c
	if disc < 0 {
		return 0, mgl32.Vec3{}, false
	}
	t := -b - float32(math.Sqrt(float64(disc)))
	if t < 0 {
		return 0, mgl32.Vec3{}, false
	}
	p := origin.Add(dir.Mul(t))
	return t, p.Sub(center).Normalize(), true
}
