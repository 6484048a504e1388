package voxsync

import (
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ActorID names a player or any other agent that can grab bodies and own a trigger proxy.
type ActorID = uuid.UUID

func NewActorID() ActorID {
	return uuid.New()
}

// ActorView is where an actor looks from. Forward is local -Z.
type ActorView struct {
	Actor       ActorID
	Eye         mgl32.Vec3
	Orientation mgl32.Quat
}

func (v ActorView) Forward() mgl32.Vec3 {
	return v.Orientation.Rotate(mgl32.Vec3{0, 0, -1})
}

// GrabSession binds an actor to the body it holds. Delta is the body orientation in the
// actor's view frame at grab time.
type GrabSession struct {
	Actor        ActorID
	Body         backend.Handle
	Delta        mgl32.Quat
	WasKinematic bool
}

// KinematicController drives grabbed bodies to a pose in front of their actor's eye.
type KinematicController struct {
	reg *BodyRegistry
	cfg GrabConfig
	log Logger

	sessions map[ActorID]*GrabSession
	views    map[ActorID]ActorView
	byBody   map[backend.Handle]ActorID
}

func NewKinematicController(reg *BodyRegistry, cfg GrabConfig, log Logger) *KinematicController {
	return &KinematicController{
		reg:      reg,
		cfg:      cfg,
		log:      orNop(log),
		sessions: make(map[ActorID]*GrabSession),
		views:    make(map[ActorID]ActorView),
		byBody:   make(map[backend.Handle]ActorID),
	}
}

// TryGrab raycasts along the actor's view and takes the first dynamic body hit. It fails
// when the actor already holds something, nothing is in range, or the body is already
// held.
func (k *KinematicController) TryGrab(view ActorView) (backend.Handle, bool) {
	if _, ok := k.sessions[view.Actor]; ok {
		return backend.NoBody, false
	}
	hit, ok := k.reg.Raycast(view.Eye, view.Forward(), k.cfg.MaxRange, backend.QueryDynamic)
	if !ok {
		return backend.NoBody, false
	}
	info, _ := k.reg.Info(hit.Body)
	if info.Static() || info.Trigger {
		return backend.NoBody, false
	}
	if _, held := k.byBody[hit.Body]; held {
		return backend.NoBody, false
	}
	pose, err := k.reg.Pose(hit.Body)
	if err != nil {
		return backend.NoBody, false
	}

	s := &GrabSession{
		Actor:        view.Actor,
		Body:         hit.Body,
		Delta:        view.Orientation.Inverse().Mul(pose.Rotation).Normalize(),
		WasKinematic: k.reg.IsKinematic(hit.Body),
	}
	if err := k.reg.SetKinematic(hit.Body, true); err != nil {
		return backend.NoBody, false
	}
	k.sessions[view.Actor] = s
	k.views[view.Actor] = view
	k.byBody[hit.Body] = view.Actor
	k.log.Debugf("actor %s grabbed body %d at %.2f", view.Actor, hit.Body, hit.Distance)
	return hit.Body, true
}

// UpdateView records the actor's latest eye and orientation for the next Update.
func (k *KinematicController) UpdateView(view ActorView) {
	if _, ok := k.sessions[view.Actor]; ok {
		k.views[view.Actor] = view
	}
}

// Release returns the held body to its pre-grab mode. It reports false when the actor
// held nothing.
func (k *KinematicController) Release(actor ActorID) bool {
	s, ok := k.sessions[actor]
	if !ok {
		return false
	}
	k.drop(s)
	if err := k.reg.SetKinematic(s.Body, s.WasKinematic); err != nil {
		k.log.Debugf("release of actor %s: %v", actor, err)
		return true
	}
	k.log.Debugf("actor %s released body %d", actor, s.Body)
	return true
}

// ReleaseAll releases every session in actor order.
func (k *KinematicController) ReleaseAll() {
	for _, a := range k.actors() {
		k.Release(a)
	}
}

// Update drops sessions whose body left the registry, then pushes a kinematic target for
// every remaining session.
func (k *KinematicController) Update() {
	actors := k.actors()
	for _, a := range actors {
		s := k.sessions[a]
		if !k.reg.Has(s.Body) {
			k.log.Debugf("dropped grab of actor %s: body %d is gone", a, s.Body)
			k.drop(s)
		}
	}
	for _, a := range actors {
		s, ok := k.sessions[a]
		if !ok {
			continue
		}
		if err := k.reg.SetKinematicTarget(s.Body, k.Target(a)); err != nil {
			k.drop(s)
		}
	}
}

// Target is the pose the actor's held body is driven to.
func (k *KinematicController) Target(actor ActorID) backend.Pose {
	s, ok := k.sessions[actor]
	if !ok {
		return backend.Pose{}
	}
	view := k.views[actor]
	return backend.Pose{
		Position: view.Eye.Add(view.Forward().Mul(k.cfg.HoldDistance)),
		Rotation: view.Orientation.Mul(s.Delta).Normalize(),
	}
}

func (k *KinematicController) Session(actor ActorID) (GrabSession, bool) {
	s, ok := k.sessions[actor]
	if !ok {
		return GrabSession{}, false
	}
	return *s, true
}

func (k *KinematicController) IsGrabbed(h backend.Handle) bool {
	_, ok := k.byBody[h]
	return ok
}

// ReleaseBody releases whichever actor holds h.
func (k *KinematicController) ReleaseBody(h backend.Handle) bool {
	a, ok := k.byBody[h]
	if !ok {
		return false
	}
	return k.Release(a)
}

func (k *KinematicController) Len() int {
	return len(k.sessions)
}

func (k *KinematicController) drop(s *GrabSession) {
	delete(k.sessions, s.Actor)
	delete(k.views, s.Actor)
	delete(k.byBody, s.Body)
}

func (k *KinematicController) actors() []ActorID {
	out := make([]ActorID, 0, len(k.sessions))
	for a := range k.sessions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
