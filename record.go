package voxsync

import (
	"errors"
	"fmt"
	"io"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// ShapeRecord is the flat form of one shape. Boxes use HalfExtents, spheres Radius.
type ShapeRecord struct {
	Kind        string     `yaml:"kind"`
	HalfExtents mgl32.Vec3 `yaml:"half_extents"`
	Radius      float32    `yaml:"radius,omitempty"`
	Offset      mgl32.Vec3 `yaml:"offset"`
}

// BodyRecord is everything needed to put a body back exactly where it was. Rotation is
// stored as [w, x, y, z].
type BodyRecord struct {
	Kind      BodyKind      `yaml:"kind"`
	Position  mgl32.Vec3    `yaml:"position"`
	Rotation  [4]float32    `yaml:"rotation"`
	Linear    mgl32.Vec3    `yaml:"linear"`
	Angular   mgl32.Vec3    `yaml:"angular"`
	Shapes    []ShapeRecord `yaml:"shapes"`
	Density   float32       `yaml:"density"`
	Kinematic bool          `yaml:"kinematic,omitempty"`
	Trigger   bool          `yaml:"trigger,omitempty"`
	Sleeping  bool          `yaml:"sleeping,omitempty"`
}

func (r BodyRecord) Pose() backend.Pose {
	q := mgl32.Quat{W: r.Rotation[0], V: mgl32.Vec3{r.Rotation[1], r.Rotation[2], r.Rotation[3]}}
	if q.Len() == 0 {
		q = mgl32.QuatIdent()
	}
	return backend.Pose{Position: r.Position, Rotation: q.Normalize()}
}

func shapeRecord(s ShapeSpec) ShapeRecord {
	rec := ShapeRecord{Kind: s.Geometry.Kind.String(), Offset: s.Offset}
	switch s.Geometry.Kind {
	case backend.GeometrySphere:
		rec.Radius = s.Geometry.Radius
	default:
		rec.HalfExtents = s.Geometry.HalfExtents
	}
	return rec
}

func (r ShapeRecord) spec() (ShapeSpec, error) {
	switch r.Kind {
	case backend.GeometryBox.String():
		return BoxShape(r.HalfExtents, r.Offset), nil
	case backend.GeometrySphere.String():
		return SphereShape(r.Radius, r.Offset), nil
	}
	return ShapeSpec{}, fmt.Errorf("unknown shape kind %q", r.Kind)
}

// Record captures h. Terrain bodies are rebuilt from voxels and cannot be recorded.
func (e *Engine) Record(h backend.Handle) (BodyRecord, error) {
	info, ok := e.reg.Info(h)
	if !ok {
		return BodyRecord{}, fmt.Errorf("record body %d: %w", h, ErrBodyNotFound)
	}
	if info.Static() {
		return BodyRecord{}, fmt.Errorf("record body %d: terrain is not recorded", h)
	}
	pose, err := e.reg.Pose(h)
	if err != nil {
		return BodyRecord{}, err
	}
	lin, ang, err := e.reg.Velocity(h)
	if err != nil {
		return BodyRecord{}, err
	}
	rec := BodyRecord{
		Kind:      info.Kind,
		Position:  pose.Position,
		Rotation:  [4]float32{pose.Rotation.W, pose.Rotation.X(), pose.Rotation.Y(), pose.Rotation.Z()},
		Linear:    lin,
		Angular:   ang,
		Density:   info.Density,
		Kinematic: info.Kinematic,
		Trigger:   info.Trigger,
		Sleeping:  e.reg.IsSleeping(h),
	}
	for _, s := range info.Shapes {
		rec.Shapes = append(rec.Shapes, shapeRecord(s))
	}
	return rec, nil
}

// RecordAll captures every box and sphere that has visuals, in handle order.
func (e *Engine) RecordAll() []BodyRecord {
	var out []BodyRecord
	for _, h := range e.reg.Handles() {
		if !e.visual.Tracked(h) {
			continue
		}
		rec, err := e.Record(h)
		if err != nil {
			e.log.Debugf("skip record of body %d: %v", h, err)
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Replay creates a body from rec and restores its pose, velocity and sleep state. A body
// recorded asleep comes back asleep and does not pull terrain in.
func (e *Engine) Replay(rec BodyRecord) (backend.Handle, error) {
	shapes := make([]ShapeSpec, 0, len(rec.Shapes))
	for i, sr := range rec.Shapes {
		s, err := sr.spec()
		if err != nil {
			return backend.NoBody, fmt.Errorf("replay shape %d: %w", i, err)
		}
		shapes = append(shapes, s)
	}

	pose := rec.Pose()
	var (
		h   backend.Handle
		err error
	)
	switch rec.Kind {
	case BodyBox:
		h, err = e.CreateBox(pose, shapes, rec.Density, rec.Trigger)
	case BodySphere:
		h, err = e.CreateSphere(pose, shapes, rec.Density, rec.Trigger)
	default:
		return backend.NoBody, fmt.Errorf("replay: cannot replay %s bodies", rec.Kind)
	}
	if err != nil {
		return backend.NoBody, fmt.Errorf("replay: %w", err)
	}
	if err := e.restore(h, rec, pose); err != nil {
		e.Destroy(h)
		return backend.NoBody, fmt.Errorf("replay body %d: %w", h, err)
	}
	return h, nil
}

func (e *Engine) restore(h backend.Handle, rec BodyRecord, pose backend.Pose) error {
	if rec.Kinematic {
		if err := e.reg.SetKinematic(h, true); err != nil {
			return err
		}
	}
	if err := e.reg.SetPose(h, pose); err != nil {
		return err
	}
	if err := e.reg.SetVelocity(h, rec.Linear, rec.Angular); err != nil {
		return err
	}
	if rec.Sleeping {
		return e.reg.Sleep(h)
	}
	return nil
}

type recordFile struct {
	Bodies []BodyRecord `yaml:"bodies"`
}

func EncodeRecords(w io.Writer, recs []BodyRecord) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(recordFile{Bodies: recs}); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return enc.Close()
}

func DecodeRecords(r io.Reader) ([]BodyRecord, error) {
	var f recordFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return f.Bodies, nil
}
