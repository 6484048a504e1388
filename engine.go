package voxsync

import (
	"context"
	"fmt"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/display"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
)

// Engine wires the registry, streamer, visual sync, grab controller and event router
// onto one App and exposes the API widgets and commands build on. Apart from Enqueue,
// all methods must be called from the goroutine that ticks.
type Engine struct {
	cfg   Config
	app   *App
	log   Logger
	be    backend.Backend
	world *volume.World

	reg      *BodyRegistry
	streamer *TerrainStreamer
	visual   *VisualSync
	grab     *KinematicController
	router   *EventRouter
	intents  *IntentQueue
	time     *Time

	actors  map[ActorID]backend.Handle
	started bool
}

type EngineOption func(*Engine)

func WithLogger(l Logger) EngineOption {
	return func(e *Engine) {
		e.log = orNop(l)
	}
}

func NewEngine(cfg Config, be backend.Backend, disp display.System, world *volume.World, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if be == nil || disp == nil || world == nil {
		return nil, fmt.Errorf("%w: backend, display and world are required", ErrInvalidConfig)
	}
	e := &Engine{
		cfg:    cfg,
		log:    NewNopLogger(),
		be:     be,
		world:  world,
		actors: make(map[ActorID]backend.Handle),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.app = NewAppBuilder().
		TickRate(cfg.TickRate).
		UseModule(
			TimeModule{TickRate: cfg.TickRate},
			PhysicsModule{Backend: be, Log: e.log},
			TerrainModule{World: world, Config: cfg.Streaming, Log: e.log},
			VisualModule{Display: disp, Config: cfg.Visual, Log: e.log},
			GrabModule{Config: cfg.Grab, Log: e.log},
			EventsModule{Log: e.log},
			IntentsModule{Engine: e},
		).
		Build()

	e.time = MustResource[Time](e.app)
	e.reg = MustResource[BodyRegistry](e.app)
	e.streamer = MustResource[TerrainStreamer](e.app)
	e.visual = MustResource[VisualSync](e.app)
	e.grab = MustResource[KinematicController](e.app)
	e.router = MustResource[EventRouter](e.app)
	e.intents = MustResource[IntentQueue](e.app)

	e.visual.OnPrune(e.forget)
	return e, nil
}

// Start initializes the backend. A failure is fatal for the host.
func (e *Engine) Start() error {
	if e.started {
		return nil
	}
	if err := e.be.Init(); err != nil {
		e.log.Errorf("physics backend init: %v", err)
		return fmt.Errorf("%w: %w", ErrBackendInit, err)
	}
	e.be.SetGravity(e.cfg.Gravity)
	e.router.Subscribe()
	e.started = true
	e.log.Infof("engine started at %v Hz", e.cfg.TickRate)
	return nil
}

// Shutdown destroys every body and visual, then shuts the backend down.
func (e *Engine) Shutdown() {
	if !e.started {
		return
	}
	for _, a := range e.actorIDs() {
		e.Disconnect(a)
	}
	// actors without a proxy can still hold bodies
	e.grab.ReleaseAll()
	e.visual.Clear()
	e.streamer.UnloadAll()
	e.reg.DestroyAll()
	e.be.Shutdown()
	e.started = false
	e.log.Infof("engine stopped after %d ticks", e.time.Tick-1)
}

func (e *Engine) Started() bool {
	return e.started
}

// Tick runs one world step.
func (e *Engine) Tick() error {
	if !e.started {
		return ErrNotStarted
	}
	e.app.Tick()
	return nil
}

// Run ticks at the configured rate until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.started {
		return ErrNotStarted
	}
	return e.app.Run(ctx)
}

// Enqueue schedules intents for the next tick. Safe from any goroutine.
func (e *Engine) Enqueue(in ...Intent) {
	e.intents.Push(in...)
}

func (e *Engine) CreateBox(pose backend.Pose, shapes []ShapeSpec, density float32, trigger bool) (backend.Handle, error) {
	return e.create(BodyBox, display.KindBox, pose, shapes, density, trigger)
}

func (e *Engine) CreateSphere(pose backend.Pose, shapes []ShapeSpec, density float32, trigger bool) (backend.Handle, error) {
	return e.create(BodySphere, display.KindSphere, pose, shapes, density, trigger)
}

func (e *Engine) create(kind BodyKind, visual display.Kind, pose backend.Pose, shapes []ShapeSpec, density float32, trigger bool) (backend.Handle, error) {
	if !e.started {
		return backend.NoBody, ErrNotStarted
	}
	h, err := e.reg.Create(BodySpec{
		Kind:    kind,
		Pose:    pose,
		Shapes:  shapes,
		Density: density,
		Trigger: trigger,
	})
	if err != nil {
		return backend.NoBody, err
	}
	offsets := make([]mgl32.Vec3, len(shapes))
	for i, s := range shapes {
		offsets[i] = s.Offset
	}
	if err := e.visual.Track(h, visual, offsets); err != nil {
		e.reg.Destroy(h, false)
		return backend.NoBody, err
	}
	if !trigger {
		e.router.TrackInteractive(h)
	}
	return h, nil
}

// Destroy removes a body with its visuals. Unknown handles are ignored.
func (e *Engine) Destroy(h backend.Handle) bool {
	if info, ok := e.reg.Info(h); ok && info.Static() {
		return false
	}
	e.visual.Untrack(h)
	e.forget(h)
	return e.reg.Destroy(h, true)
}

// forget drops every reference to h outside the registry.
func (e *Engine) forget(h backend.Handle) {
	e.router.Forget(h)
	for a, proxy := range e.actors {
		if proxy == h {
			delete(e.actors, a)
		}
	}
}

// RaycastBody returns the closest dynamic body along dir within maxDistance.
func (e *Engine) RaycastBody(origin, dir mgl32.Vec3, maxDistance float32) (backend.Handle, bool) {
	hit, ok := e.reg.Raycast(origin, dir, maxDistance, backend.QueryDynamic)
	if !ok {
		return backend.NoBody, false
	}
	return hit.Body, true
}

func (e *Engine) Grab(view ActorView) (backend.Handle, bool) {
	return e.grab.TryGrab(view)
}

func (e *Engine) Release(actor ActorID) bool {
	return e.grab.Release(actor)
}

func (e *Engine) UpdateView(view ActorView) {
	e.grab.UpdateView(view)
}

func (e *Engine) RegisterTriggerListener(fn TriggerListener) {
	e.router.OnTrigger(fn)
}

func (e *Engine) RegisterContactListener(fn ContactListener) {
	e.router.OnContact(fn)
}

// OnPrune runs fn for every body the visual pass destroys.
func (e *Engine) OnPrune(fn func(backend.Handle)) {
	e.visual.OnPrune(fn)
}

func (e *Engine) SetGravity(g mgl32.Vec3) {
	e.cfg.Gravity = g
	if e.started {
		e.be.SetGravity(g)
	}
}

// NotifyEdit rebuilds a loaded chunk right away after its voxels were edited.
func (e *Engine) NotifyEdit(c volume.ChunkCoord) bool {
	return e.streamer.Reload(c)
}

// SpawnActorProxy gives actor a kinematic trigger box that reports the interactive
// bodies it overlaps. An existing proxy of the actor is replaced.
func (e *Engine) SpawnActorProxy(actor ActorID, pose backend.Pose, halfExtents mgl32.Vec3) (backend.Handle, error) {
	if !e.started {
		return backend.NoBody, ErrNotStarted
	}
	e.RemoveActorProxy(actor)
	h, err := e.reg.Create(BodySpec{
		Kind:      BodyBox,
		Pose:      pose,
		Shapes:    []ShapeSpec{BoxShape(halfExtents, mgl32.Vec3{})},
		Density:   1,
		Trigger:   true,
		Kinematic: true,
	})
	if err != nil {
		return backend.NoBody, fmt.Errorf("actor %s proxy: %w", actor, err)
	}
	e.actors[actor] = h
	e.router.TrackActor(h, actor)
	return h, nil
}

func (e *Engine) MoveActorProxy(actor ActorID, pose backend.Pose) error {
	h, ok := e.actors[actor]
	if !ok {
		return fmt.Errorf("actor %s proxy: %w", actor, ErrBodyNotFound)
	}
	return e.reg.SetKinematicTarget(h, pose)
}

func (e *Engine) RemoveActorProxy(actor ActorID) bool {
	h, ok := e.actors[actor]
	if !ok {
		return false
	}
	delete(e.actors, actor)
	e.router.Forget(h)
	return e.reg.Destroy(h, false)
}

func (e *Engine) ActorProxy(actor ActorID) (backend.Handle, bool) {
	h, ok := e.actors[actor]
	return h, ok
}

// Disconnect ends everything an actor owns.
func (e *Engine) Disconnect(actor ActorID) {
	e.grab.Release(actor)
	e.RemoveActorProxy(actor)
}

func (e *Engine) actorIDs() []ActorID {
	out := make([]ActorID, 0, len(e.actors))
	for a := range e.actors {
		out = append(out, a)
	}
	return out
}

func (e *Engine) Config() Config              { return e.cfg }
func (e *Engine) App() *App                   { return e.app }
func (e *Engine) Time() Time                  { return *e.time }
func (e *Engine) World() *volume.World        { return e.world }
func (e *Engine) Registry() *BodyRegistry     { return e.reg }
func (e *Engine) Streamer() *TerrainStreamer  { return e.streamer }
func (e *Engine) Visuals() *VisualSync        { return e.visual }
func (e *Engine) Grabs() *KinematicController { return e.grab }
func (e *Engine) Router() *EventRouter        { return e.router }
