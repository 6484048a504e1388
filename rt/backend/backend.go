// Package backend defines the contract between the synchronization core and the
// rigid-body engine that actually integrates bodies and detects collisions.
package backend

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrUnknownBody = errors.New("unknown body")
	ErrInitFailed  = errors.New("backend init failed")
)

// Handle is an opaque reference to a body owned by the backend. Zero is never valid.
type Handle uint64

const NoBody Handle = 0

type ForceMode int

const (
	// ForceContinuous is integrated as force over the step (scaled by inverse mass and dt).
	ForceContinuous ForceMode = iota
	// ForceVelocityChange adds directly to the linear velocity, ignoring mass.
	ForceVelocityChange
)

type QueryFilter int

const (
	QueryDynamic QueryFilter = iota
	QueryAll
)

// Touch distinguishes the two edges of a contact or trigger pair.
type Touch int

const (
	TouchFound Touch = iota
	TouchLost
)

func (t Touch) String() string {
	if t == TouchFound {
		return "found"
	}
	return "lost"
}

type RaycastHit struct {
	Body     Handle
	Distance float32
	Point    mgl32.Vec3
	Normal   mgl32.Vec3
}

// ContactPair is reported when two solid shapes of different bodies start or stop touching.
type ContactPair struct {
	A, B  Handle
	Touch Touch
}

// TriggerPair is reported when a solid shape enters or leaves a trigger shape.
type TriggerPair struct {
	Trigger Handle
	Other   Handle
	Touch   Touch
}

type ContactFunc func(pairs []ContactPair)
type TriggerFunc func(pairs []TriggerPair)

// Backend is the black-box rigid-body engine. Every method is called from the tick
// goroutine only. Callbacks fire synchronously inside FetchResults.
type Backend interface {
	Init() error
	Shutdown()

	CreateDynamicBody(pose Pose) Handle
	CreateStaticBody(pose Pose) Handle
	AttachShape(h Handle, g Geometry, local Pose, trigger bool) error
	DetachShapes(h Handle) error
	ComputeMassFromDensity(h Handle, density float32) error
	// IsReleasable reports whether h still names a live body.
	IsReleasable(h Handle) bool
	// ReleaseBody frees h. Releasing an unreleasable handle is a programming error.
	ReleaseBody(h Handle, wakeOnLostTouch bool)

	Pose(h Handle) (Pose, bool)
	SetPose(h Handle, pose Pose)
	Velocity(h Handle) (linear, angular mgl32.Vec3)
	SetVelocity(h Handle, linear, angular mgl32.Vec3)
	Mass(h Handle) float32
	IsSleeping(h Handle) bool
	WakeUp(h Handle)
	// PutToSleep stops a dynamic body until a contact or an explicit change wakes it.
	PutToSleep(h Handle)

	SetKinematic(h Handle, kinematic bool)
	SetKinematicTarget(h Handle, pose Pose)
	AddForce(h Handle, v mgl32.Vec3, mode ForceMode)
	SetGravity(g mgl32.Vec3)

	Raycast(origin, dir mgl32.Vec3, maxDistance float32, filter QueryFilter) (RaycastHit, bool)

	Simulate(dt float32)
	FetchResults()

	SetContactCallback(fn ContactFunc)
	SetTriggerCallback(fn TriggerFunc)
}
