package voxsync

import (
	"sync"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
)

// Intent is a state change requested from outside the tick goroutine. It is applied at
// the start of the next tick.
type Intent interface {
	apply(e *Engine)
}

// IntentQueue is the only part of the engine that is safe for concurrent use.
type IntentQueue struct {
	mu      sync.Mutex
	pending []Intent
}

func (q *IntentQueue) Push(in ...Intent) {
	q.mu.Lock()
	q.pending = append(q.pending, in...)
	q.mu.Unlock()
}

// Drain takes every queued intent in push order.
func (q *IntentQueue) Drain() []Intent {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	q.mu.Unlock()
	return out
}

func (q *IntentQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// GrabIntent tries a grab. Done, if set, gets the grabbed body.
type GrabIntent struct {
	View ActorView
	Done func(h backend.Handle, ok bool)
}

func (in GrabIntent) apply(e *Engine) {
	h, ok := e.Grab(in.View)
	if in.Done != nil {
		in.Done(h, ok)
	}
}

type ReleaseIntent struct {
	Actor ActorID
}

func (in ReleaseIntent) apply(e *Engine) {
	e.Release(in.Actor)
}

// ViewIntent moves an actor's eye for its grab session.
type ViewIntent struct {
	View ActorView
}

func (in ViewIntent) apply(e *Engine) {
	e.UpdateView(in.View)
}

type ForceIntent struct {
	Body   backend.Handle
	Vector mgl32.Vec3
	Mode   backend.ForceMode
}

func (in ForceIntent) apply(e *Engine) {
	if err := e.reg.AddForce(in.Body, in.Vector, in.Mode); err != nil {
		e.log.Debugf("force intent: %v", err)
	}
}

// SpawnIntent creates a box or sphere. Done, if set, gets the new handle or the error.
type SpawnIntent struct {
	Kind    BodyKind
	Pose    backend.Pose
	Shapes  []ShapeSpec
	Density float32
	Trigger bool
	Done    func(h backend.Handle, err error)
}

func (in SpawnIntent) apply(e *Engine) {
	var (
		h   backend.Handle
		err error
	)
	switch in.Kind {
	case BodySphere:
		h, err = e.CreateSphere(in.Pose, in.Shapes, in.Density, in.Trigger)
	default:
		h, err = e.CreateBox(in.Pose, in.Shapes, in.Density, in.Trigger)
	}
	if err != nil {
		e.log.Warnf("spawn intent: %v", err)
	}
	if in.Done != nil {
		in.Done(h, err)
	}
}

type DestroyIntent struct {
	Body backend.Handle
}

func (in DestroyIntent) apply(e *Engine) {
	e.Destroy(in.Body)
}

// EditIntent reports that voxels in Chunk changed outside the reload pass.
type EditIntent struct {
	Chunk volume.ChunkCoord
}

func (in EditIntent) apply(e *Engine) {
	e.NotifyEdit(in.Chunk)
}

type DisconnectIntent struct {
	Actor ActorID
}

func (in DisconnectIntent) apply(e *Engine) {
	e.Disconnect(in.Actor)
}
