// Package solver is an in-process rigid-body engine implementing backend.Backend.
// It is deliberately simple: compound box/sphere bodies, impulse contacts, sleeping,
// kinematic targets and trigger volumes.
package solver

import (
	"fmt"
	"math"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
)

// Config tunes the solver. BounceThreshold is the closing speed below which restitution
// is ignored; CellSize is the broadphase cell edge.
type Config struct {
	SleepThreshold  float32
	SleepTime       float32
	LinearDamping   float32
	AngularDamping  float32
	Friction        float32
	Restitution     float32
	BounceThreshold float32
	CellSize        float32
}

func DefaultConfig() Config {
	return Config{
		SleepThreshold:  0.05,
		SleepTime:       1.0,
		LinearDamping:   0.99,
		AngularDamping:  0.98,
		Friction:        0.5,
		Restitution:     0.1,
		BounceThreshold: 1.0,
		CellSize:        4.0,
	}
}

type shape struct {
	geom    backend.Geometry
	local   backend.Pose
	trigger bool

	world   backend.Pose
	aabbMin mgl32.Vec3
	aabbMax mgl32.Vec3
}

type body struct {
	handle    backend.Handle
	static    bool
	kinematic bool

	pose   backend.Pose
	vel    mgl32.Vec3
	angVel mgl32.Vec3

	mass       float32
	invMass    float32
	invInertia float32

	shapes []shape

	sleeping bool
	idleTime float32
	force    mgl32.Vec3
	target   *backend.Pose
}

func (b *body) wake() {
	b.sleeping = false
	b.idleTime = 0
}

// dynamic reports whether contacts can move b.
func (b *body) dynamic() bool {
	return !b.static && !b.kinematic
}

func (b *body) updateShapes() {
	for i := range b.shapes {
		s := &b.shapes[i]
		s.world = b.pose.Compose(s.local)
		ext := s.geom.Bound(s.world.Rotation)
		s.aabbMin = s.world.Position.Sub(ext)
		s.aabbMax = s.world.Position.Add(ext)
	}
}

type published struct {
	pose     backend.Pose
	vel      mgl32.Vec3
	angVel   mgl32.Vec3
	sleeping bool
}

// World is the solver state. It is not safe for concurrent use.
type World struct {
	cfg     Config
	gravity mgl32.Vec3

	bodies map[backend.Handle]*body
	next   backend.Handle

	// results visible to readers; refreshed only by FetchResults
	results map[backend.Handle]published

	staticGrid  *spatialHash
	staticDirty bool
	dynGrid     *spatialHash

	contacts pairTracker[backend.ContactPair]
	triggers pairTracker[backend.TriggerPair]

	pendingContacts []backend.ContactPair
	pendingTriggers []backend.TriggerPair

	onContact backend.ContactFunc
	onTrigger backend.TriggerFunc

	initialized bool
	stepped     bool
}

var _ backend.Backend = (*World)(nil)

func New(cfg Config) *World {
	if cfg.CellSize <= 0 {
		cfg.CellSize = DefaultConfig().CellSize
	}
	return &World{
		cfg:        cfg,
		gravity:    mgl32.Vec3{0, -9.81, 0},
		bodies:     make(map[backend.Handle]*body),
		results:    make(map[backend.Handle]published),
		staticGrid: newSpatialHash(cfg.CellSize),
		dynGrid:    newSpatialHash(cfg.CellSize),
		contacts:   newPairTracker[backend.ContactPair](),
		triggers:   newPairTracker[backend.TriggerPair](),
	}
}

func (w *World) Init() error {
	if w.initialized {
		return fmt.Errorf("solver: %w: already initialized", backend.ErrInitFailed)
	}
	if w.cfg.SleepTime < 0 || w.cfg.SleepThreshold < 0 {
		return fmt.Errorf("solver: %w: negative sleep settings", backend.ErrInitFailed)
	}
	w.initialized = true
	return nil
}

// Shutdown drops every body. Handles stay unreleasable afterwards.
func (w *World) Shutdown() {
	clear(w.bodies)
	clear(w.results)
	w.staticGrid.Clear()
	w.dynGrid.Clear()
	w.contacts.reset()
	w.triggers.reset()
	w.pendingContacts = nil
	w.pendingTriggers = nil
	w.initialized = false
	w.stepped = false
}

func (w *World) createBody(pose backend.Pose, static bool) backend.Handle {
	w.next++
	b := &body{
		handle: w.next,
		static: static,
		pose:   normalizedPose(pose),
	}
	w.bodies[b.handle] = b
	w.publish(b)
	return b.handle
}

func (w *World) CreateDynamicBody(pose backend.Pose) backend.Handle {
	return w.createBody(pose, false)
}

func (w *World) CreateStaticBody(pose backend.Pose) backend.Handle {
	return w.createBody(pose, true)
}

func (w *World) AttachShape(h backend.Handle, g backend.Geometry, local backend.Pose, trigger bool) error {
	b, ok := w.bodies[h]
	if !ok {
		return fmt.Errorf("solver: attach shape: %w %d", backend.ErrUnknownBody, h)
	}
	if g.Degenerate() {
		return fmt.Errorf("solver: attach shape: degenerate %s", g.Kind)
	}
	b.shapes = append(b.shapes, shape{geom: g, local: normalizedPose(local), trigger: trigger})
	b.updateShapes()
	if b.static {
		w.staticDirty = true
	}
	return nil
}

func (w *World) DetachShapes(h backend.Handle) error {
	b, ok := w.bodies[h]
	if !ok {
		return fmt.Errorf("solver: detach shapes: %w %d", backend.ErrUnknownBody, h)
	}
	b.shapes = nil
	if b.static {
		w.staticDirty = true
	}
	return nil
}

// ComputeMassFromDensity derives mass and a scalar inertia from the attached solid shapes.
// Trigger shapes carry no mass.
func (w *World) ComputeMassFromDensity(h backend.Handle, density float32) error {
	b, ok := w.bodies[h]
	if !ok {
		return fmt.Errorf("solver: mass: %w %d", backend.ErrUnknownBody, h)
	}
	if density <= 0 {
		return fmt.Errorf("solver: mass: density must be positive, got %f", density)
	}

	var mass float32
	var inertia mgl32.Vec3
	for _, s := range b.shapes {
		if s.trigger {
			continue
		}
		m := density * s.geom.Volume()
		mass += m
		d := s.local.Position
		own := s.geom.Inertia(m)
		// parallel axis, diagonal terms only
		inertia = inertia.Add(own).Add(mgl32.Vec3{
			m * (d.Y()*d.Y() + d.Z()*d.Z()),
			m * (d.X()*d.X() + d.Z()*d.Z()),
			m * (d.X()*d.X() + d.Y()*d.Y()),
		})
	}

	b.mass = mass
	b.invMass = 0
	b.invInertia = 0
	if mass > 0 {
		b.invMass = 1 / mass
		avg := (inertia.X() + inertia.Y() + inertia.Z()) / 3
		if avg > 0 {
			b.invInertia = 1 / avg
		}
	}
	return nil
}

func (w *World) IsReleasable(h backend.Handle) bool {
	_, ok := w.bodies[h]
	return ok
}

func (w *World) ReleaseBody(h backend.Handle, wakeOnLostTouch bool) {
	b, ok := w.bodies[h]
	if !ok {
		panic(fmt.Sprintf("solver: release of unreleasable body %d", h))
	}
	if wakeOnLostTouch {
		w.wakeTouching(b)
	}
	delete(w.bodies, h)
	delete(w.results, h)
	if b.static {
		w.staticDirty = true
	}
}

// wakeTouching wakes sleeping bodies whose shapes are within a small margin of b.
func (w *World) wakeTouching(b *body) {
	const margin = 0.05
	pad := mgl32.Vec3{margin, margin, margin}
	for _, other := range w.bodies {
		if other == b || !other.sleeping {
			continue
		}
		if bodiesNear(b, other, pad) {
			other.wake()
			w.publish(other)
		}
	}
}

func bodiesNear(a, b *body, pad mgl32.Vec3) bool {
	for _, sa := range a.shapes {
		for _, sb := range b.shapes {
			if aabbOverlap(sa.aabbMin.Sub(pad), sa.aabbMax.Add(pad), sb.aabbMin, sb.aabbMax) {
				return true
			}
		}
	}
	return false
}

func (w *World) Pose(h backend.Handle) (backend.Pose, bool) {
	r, ok := w.results[h]
	return r.pose, ok
}

func (w *World) SetPose(h backend.Handle, pose backend.Pose) {
	b, ok := w.bodies[h]
	if !ok {
		return
	}
	b.pose = normalizedPose(pose)
	b.target = nil
	b.updateShapes()
	if b.static {
		w.staticDirty = true
	} else {
		b.wake()
	}
	w.publish(b)
}

func (w *World) Velocity(h backend.Handle) (mgl32.Vec3, mgl32.Vec3) {
	r := w.results[h]
	return r.vel, r.angVel
}

func (w *World) SetVelocity(h backend.Handle, linear, angular mgl32.Vec3) {
	b, ok := w.bodies[h]
	if !ok || b.static {
		return
	}
	b.vel = linear
	b.angVel = angular
	if linear.Len() > 0 || angular.Len() > 0 {
		b.wake()
	}
	w.publish(b)
}

func (w *World) Mass(h backend.Handle) float32 {
	if b, ok := w.bodies[h]; ok {
		return b.mass
	}
	return 0
}

func (w *World) IsSleeping(h backend.Handle) bool {
	return w.results[h].sleeping
}

func (w *World) WakeUp(h backend.Handle) {
	if b, ok := w.bodies[h]; ok && !b.static {
		b.wake()
		w.publish(b)
	}
}

// PutToSleep is ignored for static and kinematic bodies.
func (w *World) PutToSleep(h backend.Handle) {
	b, ok := w.bodies[h]
	if !ok || b.static || b.kinematic {
		return
	}
	b.sleeping = true
	b.vel = mgl32.Vec3{}
	b.angVel = mgl32.Vec3{}
	w.publish(b)
}

func (w *World) SetKinematic(h backend.Handle, kinematic bool) {
	b, ok := w.bodies[h]
	if !ok || b.static {
		return
	}
	b.kinematic = kinematic
	b.target = nil
	b.force = mgl32.Vec3{}
	b.wake()
	w.publish(b)
}

func (w *World) SetKinematicTarget(h backend.Handle, pose backend.Pose) {
	b, ok := w.bodies[h]
	if !ok || !b.kinematic {
		return
	}
	p := normalizedPose(pose)
	b.target = &p
}

func (w *World) AddForce(h backend.Handle, v mgl32.Vec3, mode backend.ForceMode) {
	b, ok := w.bodies[h]
	if !ok || !b.dynamic() {
		return
	}
	switch mode {
	case backend.ForceVelocityChange:
		b.vel = b.vel.Add(v)
	default:
		b.force = b.force.Add(v)
	}
	b.wake()
	w.publish(b)
}

func (w *World) SetGravity(g mgl32.Vec3) {
	w.gravity = g
}

func (w *World) SetContactCallback(fn backend.ContactFunc) {
	w.onContact = fn
}

func (w *World) SetTriggerCallback(fn backend.TriggerFunc) {
	w.onTrigger = fn
}

func (w *World) publish(b *body) {
	w.results[b.handle] = published{
		pose:     b.pose,
		vel:      b.vel,
		angVel:   b.angVel,
		sleeping: b.sleeping,
	}
}

// BodyCount is the number of live bodies.
func (w *World) BodyCount() int {
	return len(w.bodies)
}

// ShapeCount is the number of shapes attached to h, or -1 if h is unknown.
func (w *World) ShapeCount(h backend.Handle) int {
	b, ok := w.bodies[h]
	if !ok {
		return -1
	}
	return len(b.shapes)
}

func normalizedPose(p backend.Pose) backend.Pose {
	q := p.Rotation
	if q.Len() < 1e-6 || math.IsNaN(float64(q.Len())) {
		q = mgl32.QuatIdent()
	}
	return backend.Pose{Position: p.Position, Rotation: q.Normalize()}
}
