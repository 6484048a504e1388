package voxsync

import (
	"fmt"
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

type BodyKind int

const (
	BodyBox BodyKind = iota
	BodySphere
	BodyTerrain
)

func (k BodyKind) String() string {
	switch k {
	case BodyBox:
		return "box"
	case BodySphere:
		return "sphere"
	case BodyTerrain:
		return "terrain"
	}
	return "unknown"
}

func (k BodyKind) MarshalYAML() (any, error) {
	return k.String(), nil
}

func (k *BodyKind) UnmarshalYAML(value *yaml.Node) error {
	switch value.Value {
	case "box":
		*k = BodyBox
	case "sphere":
		*k = BodySphere
	case "terrain":
		*k = BodyTerrain
	default:
		return fmt.Errorf("unknown body kind %q", value.Value)
	}
	return nil
}

// ShapeSpec is one collision shape and its offset from the body origin.
type ShapeSpec struct {
	Geometry backend.Geometry
	Offset   mgl32.Vec3
}

func BoxShape(halfExtents, offset mgl32.Vec3) ShapeSpec {
	return ShapeSpec{Geometry: backend.Box(halfExtents), Offset: offset}
}

func SphereShape(radius float32, offset mgl32.Vec3) ShapeSpec {
	return ShapeSpec{Geometry: backend.Sphere(radius), Offset: offset}
}

// BodySpec is everything needed to create a body. Terrain bodies are static and
// ignore Density and Kinematic.
type BodySpec struct {
	Kind      BodyKind
	Pose      backend.Pose
	Shapes    []ShapeSpec
	Density   float32
	Trigger   bool
	Kinematic bool
}

type body struct {
	handle    backend.Handle
	kind      BodyKind
	shapes    []ShapeSpec
	density   float32
	trigger   bool
	kinematic bool
}

// BodyInfo is a snapshot of a registered body's static attributes.
type BodyInfo struct {
	Handle    backend.Handle
	Kind      BodyKind
	Shapes    []ShapeSpec
	Density   float32
	Trigger   bool
	Kinematic bool
}

// Static reports bodies the backend never moves.
func (i BodyInfo) Static() bool {
	return i.Kind == BodyTerrain
}

// BodyRegistry is the only owner of backend bodies. Every handle it returns stays valid
// until Destroy; nothing else may release it.
type BodyRegistry struct {
	be     backend.Backend
	log    Logger
	bodies map[backend.Handle]*body
}

func NewBodyRegistry(be backend.Backend, log Logger) *BodyRegistry {
	return &BodyRegistry{
		be:     be,
		log:    orNop(log),
		bodies: make(map[backend.Handle]*body),
	}
}

func (r *BodyRegistry) Backend() backend.Backend {
	return r.be
}

func (r *BodyRegistry) Create(spec BodySpec) (backend.Handle, error) {
	if len(spec.Shapes) == 0 {
		return backend.NoBody, fmt.Errorf("create %s: %w: no shapes", spec.Kind, ErrDegenerateShape)
	}
	for i, s := range spec.Shapes {
		if s.Geometry.Degenerate() {
			return backend.NoBody, fmt.Errorf("create %s: %w: shape %d (%s)", spec.Kind, ErrDegenerateShape, i, s.Geometry.Kind)
		}
	}
	static := spec.Kind == BodyTerrain
	if !static && !(spec.Density > 0) {
		return backend.NoBody, fmt.Errorf("create %s: density must be positive, got %v", spec.Kind, spec.Density)
	}

	var h backend.Handle
	if static {
		h = r.be.CreateStaticBody(spec.Pose)
	} else {
		h = r.be.CreateDynamicBody(spec.Pose)
	}

	b := &body{
		handle:    h,
		kind:      spec.Kind,
		density:   spec.Density,
		trigger:   spec.Trigger,
		kinematic: spec.Kinematic && !static,
	}
	if err := r.attach(b, spec.Shapes); err != nil {
		if r.be.IsReleasable(h) {
			r.be.ReleaseBody(h, false)
		}
		return backend.NoBody, err
	}
	if b.kinematic {
		r.be.SetKinematic(h, true)
	}
	r.bodies[h] = b
	return h, nil
}

// attach replaces b's shapes and recomputes mass for dynamic bodies.
func (r *BodyRegistry) attach(b *body, shapes []ShapeSpec) error {
	if err := r.be.DetachShapes(b.handle); err != nil {
		return err
	}
	for i, s := range shapes {
		if err := r.be.AttachShape(b.handle, s.Geometry, backend.PoseAt(s.Offset), b.trigger); err != nil {
			return fmt.Errorf("attach shape %d: %w", i, err)
		}
	}
	b.shapes = append([]ShapeSpec(nil), shapes...)
	if b.kind != BodyTerrain {
		if err := r.be.ComputeMassFromDensity(b.handle, b.density); err != nil {
			return fmt.Errorf("mass: %w", err)
		}
	}
	return nil
}

// SetShapes swaps the shape set of h. Mass follows the new shapes.
func (r *BodyRegistry) SetShapes(h backend.Handle, shapes []ShapeSpec) error {
	b, err := r.get(h)
	if err != nil {
		return err
	}
	if len(shapes) == 0 {
		return fmt.Errorf("set shapes: %w: no shapes", ErrDegenerateShape)
	}
	for i, s := range shapes {
		if s.Geometry.Degenerate() {
			return fmt.Errorf("set shapes: %w: shape %d", ErrDegenerateShape, i)
		}
	}
	return r.attach(b, shapes)
}

// Destroy releases h and reports whether anything was released. Destroying an unknown or
// already destroyed handle is a no-op.
func (r *BodyRegistry) Destroy(h backend.Handle, wakeOnLostTouch bool) bool {
	if _, ok := r.bodies[h]; !ok {
		return false
	}
	delete(r.bodies, h)
	if !r.be.IsReleasable(h) {
		r.log.Warnf("body %d was already gone from the backend", h)
		return false
	}
	r.be.ReleaseBody(h, wakeOnLostTouch)
	return true
}

// DestroyAll releases every body, terrain included.
func (r *BodyRegistry) DestroyAll() {
	for _, h := range r.Handles() {
		r.Destroy(h, false)
	}
}

func (r *BodyRegistry) Has(h backend.Handle) bool {
	_, ok := r.bodies[h]
	return ok
}

func (r *BodyRegistry) Len() int {
	return len(r.bodies)
}

// Handles returns every registered handle in ascending order.
func (r *BodyRegistry) Handles() []backend.Handle {
	out := make([]backend.Handle, 0, len(r.bodies))
	for h := range r.bodies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *BodyRegistry) Info(h backend.Handle) (BodyInfo, bool) {
	b, ok := r.bodies[h]
	if !ok {
		return BodyInfo{}, false
	}
	return BodyInfo{
		Handle:    b.handle,
		Kind:      b.kind,
		Shapes:    append([]ShapeSpec(nil), b.shapes...),
		Density:   b.density,
		Trigger:   b.trigger,
		Kinematic: b.kinematic,
	}, true
}

func (r *BodyRegistry) get(h backend.Handle) (*body, error) {
	b, ok := r.bodies[h]
	if !ok {
		return nil, fmt.Errorf("body %d: %w", h, ErrBodyNotFound)
	}
	return b, nil
}

func (r *BodyRegistry) Pose(h backend.Handle) (backend.Pose, error) {
	if _, err := r.get(h); err != nil {
		return backend.Pose{}, err
	}
	p, ok := r.be.Pose(h)
	if !ok {
		return backend.Pose{}, fmt.Errorf("body %d pose: %w", h, ErrBodyNotFound)
	}
	return p, nil
}

func (r *BodyRegistry) SetPose(h backend.Handle, pose backend.Pose) error {
	if _, err := r.get(h); err != nil {
		return err
	}
	r.be.SetPose(h, pose)
	return nil
}

func (r *BodyRegistry) Velocity(h backend.Handle) (linear, angular mgl32.Vec3, err error) {
	if _, err = r.get(h); err != nil {
		return
	}
	linear, angular = r.be.Velocity(h)
	return
}

func (r *BodyRegistry) SetVelocity(h backend.Handle, linear, angular mgl32.Vec3) error {
	if _, err := r.get(h); err != nil {
		return err
	}
	r.be.SetVelocity(h, linear, angular)
	return nil
}

// AddForce is ignored for kinematic and terrain bodies.
func (r *BodyRegistry) AddForce(h backend.Handle, v mgl32.Vec3, mode backend.ForceMode) error {
	b, err := r.get(h)
	if err != nil {
		return err
	}
	if b.kinematic || b.kind == BodyTerrain {
		return nil
	}
	r.be.AddForce(h, v, mode)
	return nil
}

func (r *BodyRegistry) SetKinematic(h backend.Handle, kinematic bool) error {
	b, err := r.get(h)
	if err != nil {
		return err
	}
	if b.kind == BodyTerrain {
		return fmt.Errorf("body %d: terrain cannot be kinematic", h)
	}
	if b.kinematic == kinematic {
		return nil
	}
	b.kinematic = kinematic
	r.be.SetKinematic(h, kinematic)
	return nil
}

func (r *BodyRegistry) IsKinematic(h backend.Handle) bool {
	b, ok := r.bodies[h]
	return ok && b.kinematic
}

// SetKinematicTarget is ignored unless h is kinematic.
func (r *BodyRegistry) SetKinematicTarget(h backend.Handle, pose backend.Pose) error {
	b, err := r.get(h)
	if err != nil {
		return err
	}
	if b.kinematic {
		r.be.SetKinematicTarget(h, pose)
	}
	return nil
}

func (r *BodyRegistry) IsSleeping(h backend.Handle) bool {
	return r.Has(h) && r.be.IsSleeping(h)
}

// Sleep puts h to sleep. Kinematic and terrain bodies never sleep and are left alone.
func (r *BodyRegistry) Sleep(h backend.Handle) error {
	b, err := r.get(h)
	if err != nil {
		return err
	}
	if b.kinematic || b.kind == BodyTerrain {
		return nil
	}
	r.be.PutToSleep(h)
	return nil
}

func (r *BodyRegistry) Mass(h backend.Handle) float32 {
	if !r.Has(h) {
		return 0
	}
	return r.be.Mass(h)
}

// Raycast returns the closest registered body hit. Hits on bodies the registry does not
// own count as misses.
func (r *BodyRegistry) Raycast(origin, dir mgl32.Vec3, maxDistance float32, filter backend.QueryFilter) (backend.RaycastHit, bool) {
	hit, ok := r.be.Raycast(origin, dir, maxDistance, filter)
	if !ok || !r.Has(hit.Body) {
		return backend.RaycastHit{}, false
	}
	return hit, true
}

// Step advances the backend one fixed step and publishes its results.
func (r *BodyRegistry) Step(dt float32) {
	r.be.Simulate(dt)
	r.be.FetchResults()
}
