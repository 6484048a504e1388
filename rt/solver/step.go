package solver

import (
	"math"
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
)

// Simulate advances the world by dt. Results stay invisible to Pose, Velocity and
// IsSleeping until FetchResults.
func (w *World) Simulate(dt float32) {
	if !w.initialized || dt <= 0 {
		return
	}
	if w.staticDirty {
		w.rebuildStaticGrid()
	}

	handles := w.sortedHandles()
	for _, h := range handles {
		b := w.bodies[h]
		switch {
		case b.static:
		case b.kinematic:
			w.moveKinematic(b, dt)
		case !b.sleeping:
			w.integrate(b, dt)
		}
	}

	w.rebuildDynamicGrid()
	w.contacts.begin()
	w.triggers.begin()
	driving := make(map[backend.Handle]bool, len(handles))
	for _, h := range handles {
		driving[h] = drives(w.bodies[h])
	}
	var cands []shapeRef
	for _, h := range handles {
		b := w.bodies[h]
		if !driving[h] {
			continue
		}
		for i := range b.shapes {
			sa := &b.shapes[i]
			cands = w.staticGrid.Query(cands[:0], sa.aabbMin, sa.aabbMax)
			cands = w.dynGrid.Query(cands, sa.aabbMin, sa.aabbMax)
			for _, ref := range cands {
				if ref.body == h {
					continue
				}
				o := w.bodies[ref.body]
				if driving[o.handle] && o.handle < h {
					continue // already tested from o's side
				}
				w.testPair(b, sa, o, &o.shapes[ref.shape])
			}
		}
	}

	for _, h := range handles {
		b := w.bodies[h]
		if b.dynamic() && !b.sleeping {
			w.settle(b, dt)
		}
	}

	carryContact := func(p backend.ContactPair) bool { return w.idlePair(p.A, p.B) }
	carryTrigger := func(p backend.TriggerPair) bool { return w.idlePair(p.Trigger, p.Other) }
	foundC, lostC := w.contacts.finish(carryContact, contactLess)
	foundT, lostT := w.triggers.finish(carryTrigger, triggerLess)
	for _, p := range foundC {
		w.pendingContacts = append(w.pendingContacts, backend.ContactPair{A: p.A, B: p.B, Touch: backend.TouchFound})
	}
	for _, p := range lostC {
		w.pendingContacts = append(w.pendingContacts, backend.ContactPair{A: p.A, B: p.B, Touch: backend.TouchLost})
	}
	for _, p := range foundT {
		w.pendingTriggers = append(w.pendingTriggers, backend.TriggerPair{Trigger: p.Trigger, Other: p.Other, Touch: backend.TouchFound})
	}
	for _, p := range lostT {
		w.pendingTriggers = append(w.pendingTriggers, backend.TriggerPair{Trigger: p.Trigger, Other: p.Other, Touch: backend.TouchLost})
	}
	w.stepped = true
}

// FetchResults publishes the last step and delivers its contact and trigger edges.
func (w *World) FetchResults() {
	if !w.stepped {
		return
	}
	w.stepped = false
	for _, b := range w.bodies {
		w.publish(b)
	}

	contacts, triggers := w.pendingContacts, w.pendingTriggers
	w.pendingContacts, w.pendingTriggers = nil, nil
	if len(contacts) > 0 && w.onContact != nil {
		w.onContact(contacts)
	}
	if len(triggers) > 0 && w.onTrigger != nil {
		w.onTrigger(triggers)
	}
}

func (w *World) sortedHandles() []backend.Handle {
	out := make([]backend.Handle, 0, len(w.bodies))
	for h := range w.bodies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// drives reports whether b moved this step and must look for its own contacts.
func drives(b *body) bool {
	return !b.static && (b.kinematic || !b.sleeping)
}

// idlePair keeps a pair alive when nobody in it moved, so sleeping stacks report no
// spurious lost edges.
func (w *World) idlePair(a, b backend.Handle) bool {
	ba, okA := w.bodies[a]
	bb, okB := w.bodies[b]
	return okA && okB && !drives(ba) && !drives(bb)
}

func (w *World) moveKinematic(b *body, dt float32) {
	if b.target == nil {
		b.vel = mgl32.Vec3{}
		b.angVel = mgl32.Vec3{}
		return
	}
	b.vel = b.target.Position.Sub(b.pose.Position).Mul(1 / dt)
	b.angVel = mgl32.Vec3{}
	b.pose = *b.target
	b.target = nil
	b.updateShapes()
}

func (w *World) integrate(b *body, dt float32) {
	b.vel = b.vel.Add(w.gravity.Mul(dt))
	if b.invMass > 0 {
		b.vel = b.vel.Add(b.force.Mul(b.invMass * dt))
	}
	b.force = mgl32.Vec3{}

	b.vel = b.vel.Mul(w.cfg.LinearDamping)
	b.angVel = b.angVel.Mul(w.cfg.AngularDamping)

	b.pose.Position = b.pose.Position.Add(b.vel.Mul(dt))
	if b.angVel.Len() > 0 {
		spin := mgl32.Quat{W: 0, V: b.angVel.Mul(0.5 * dt)}
		b.pose.Rotation = b.pose.Rotation.Add(spin.Mul(b.pose.Rotation)).Normalize()
	}

	if isNaN(b.pose.Position) || isNaN(b.vel) {
		b.pose.Position = mgl32.Vec3{}
		b.vel = mgl32.Vec3{}
		b.angVel = mgl32.Vec3{}
	}
	b.updateShapes()
}

func (w *World) testPair(b *body, sa *shape, o *body, so *shape) {
	if sa.trigger && so.trigger {
		return
	}
	if !sa.trigger && !so.trigger && !b.dynamic() && !o.dynamic() {
		return
	}
	if !aabbOverlap(sa.aabbMin, sa.aabbMax, so.aabbMin, so.aabbMax) {
		return
	}
	m, hit := collide(sa, so)
	if !hit {
		return
	}
	switch {
	case sa.trigger:
		w.triggers.touch(backend.TriggerPair{Trigger: b.handle, Other: o.handle})
	case so.trigger:
		w.triggers.touch(backend.TriggerPair{Trigger: o.handle, Other: b.handle})
	default:
		w.contacts.touch(contactKey(b.handle, o.handle))
		w.resolve(b, o, m)
	}
}

// resolve separates a from o and applies the normal and friction impulses. m.normal
// points from o to a.
func (w *World) resolve(a, o *body, m manifold) {
	n := m.normal
	rA := m.point.Sub(a.pose.Position)
	rB := m.point.Sub(o.pose.Position)
	vA := a.vel.Add(a.angVel.Cross(rA))
	vB := o.vel.Add(o.angVel.Cross(rB))
	rel := vA.Sub(vB)
	vn := rel.Dot(n)

	if o.dynamic() && o.sleeping && (a.kinematic || -vn > 2*w.cfg.SleepThreshold) {
		o.wake()
	}

	invA, invIA := bodyInverse(a)
	invB, invIB := bodyInverse(o)
	total := invA + invB
	if total == 0 {
		return
	}

	a.pose.Position = a.pose.Position.Add(n.Mul(m.depth * invA / total))
	o.pose.Position = o.pose.Position.Sub(n.Mul(m.depth * invB / total))

	if vn < 0 {
		e := float32(0)
		if -vn > w.cfg.BounceThreshold {
			e = w.cfg.Restitution
		}
		rAn := rA.Cross(n)
		rBn := rB.Cross(n)
		denom := total + rAn.Dot(rAn)*invIA + rBn.Dot(rBn)*invIB
		j := -(1 + e) * vn / denom
		impulse := n.Mul(j)
		applyImpulse(a, impulse, rA, invA, invIA)
		applyImpulse(o, impulse.Mul(-1), rB, invB, invIB)

		tangent := rel.Sub(n.Mul(vn))
		if tangent.Len() > 0.0001 {
			tangent = tangent.Normalize()
			jt := -rel.Dot(tangent) * w.cfg.Friction / denom
			if limit := j * w.cfg.Friction; abs32(jt) > limit {
				jt = float32(math.Copysign(float64(limit), float64(jt)))
			}
			friction := tangent.Mul(jt)
			applyImpulse(a, friction, rA, invA, invIA)
			applyImpulse(o, friction.Mul(-1), rB, invB, invIB)
		}
	}

	if invA > 0 {
		a.updateShapes()
	}
	if invB > 0 {
		o.updateShapes()
	}
}

// bodyInverse returns the inverse mass and inertia that contacts see; static, kinematic
// and sleeping bodies are immovable.
func bodyInverse(b *body) (float32, float32) {
	if !b.dynamic() || b.sleeping {
		return 0, 0
	}
	return b.invMass, b.invInertia
}

func applyImpulse(b *body, impulse, r mgl32.Vec3, invMass, invInertia float32) {
	if invMass == 0 {
		return
	}
	b.vel = b.vel.Add(impulse.Mul(invMass))
	b.angVel = b.angVel.Add(r.Cross(impulse).Mul(invInertia))
}

// settle runs the sleep timer.
func (w *World) settle(b *body, dt float32) {
	if b.vel.Len() < w.cfg.SleepThreshold && b.angVel.Len() < w.cfg.SleepThreshold {
		b.idleTime += dt
		if b.idleTime > w.cfg.SleepTime {
			b.sleeping = true
			b.vel = mgl32.Vec3{}
			b.angVel = mgl32.Vec3{}
		}
		return
	}
	b.idleTime = 0
}

func isNaN(v mgl32.Vec3) bool {
	return math.IsNaN(float64(v.X())) || math.IsNaN(float64(v.Y())) || math.IsNaN(float64(v.Z()))
}
