package voxsync

import (
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
)

// TriggerEvent is one edge of an actor proxy touching an interactive body.
type TriggerEvent struct {
	Actor ActorID
	Body  backend.Handle
	Touch backend.Touch
}

// ContactEvent is one edge of two registered solid bodies touching.
type ContactEvent struct {
	A, B         backend.Handle
	KindA, KindB BodyKind
	Touch        backend.Touch
}

type TriggerListener func(TriggerEvent)
type ContactListener func(ContactEvent)

type triggerKey struct {
	proxy, body backend.Handle
}

type contactKey struct {
	a, b backend.Handle
}

func contactKeyOf(a, b backend.Handle) contactKey {
	if b < a {
		a, b = b, a
	}
	return contactKey{a, b}
}

// EventRouter turns backend pair callbacks into domain events. Pairs are resolved when
// the backend reports them and delivered at Dispatch, in listener registration order.
// Every routed TouchFound is followed by exactly one TouchLost, also when one side is
// forgotten while the pair still touches.
type EventRouter struct {
	reg *BodyRegistry
	log Logger

	actors      map[backend.Handle]ActorID
	interactive map[backend.Handle]struct{}

	// routed pairs that have not been reported lost yet
	touchingTriggers map[triggerKey]TriggerEvent
	touchingContacts map[contactKey]ContactEvent

	triggerListeners []TriggerListener
	contactListeners []ContactListener

	pendingTriggers []TriggerEvent
	pendingContacts []ContactEvent
	subscribed      bool

	dropped int
}

func NewEventRouter(reg *BodyRegistry, log Logger) *EventRouter {
	return &EventRouter{
		reg:         reg,
		log:         orNop(log),
		actors:      make(map[backend.Handle]ActorID),
		interactive: make(map[backend.Handle]struct{}),

		touchingTriggers: make(map[triggerKey]TriggerEvent),
		touchingContacts: make(map[contactKey]ContactEvent),
	}
}

// Subscribe hooks the router into the backend. Later calls do nothing.
func (r *EventRouter) Subscribe() {
	if r.subscribed {
		return
	}
	be := r.reg.Backend()
	be.SetTriggerCallback(r.onTriggers)
	be.SetContactCallback(r.onContacts)
	r.subscribed = true
}

func (r *EventRouter) TrackActor(h backend.Handle, actor ActorID) {
	r.actors[h] = actor
}

func (r *EventRouter) UntrackActor(h backend.Handle) {
	delete(r.actors, h)
}

// ActorOf returns the actor owning proxy h.
func (r *EventRouter) ActorOf(h backend.Handle) (ActorID, bool) {
	a, ok := r.actors[h]
	return a, ok
}

func (r *EventRouter) TrackInteractive(h backend.Handle) {
	r.interactive[h] = struct{}{}
}

func (r *EventRouter) UntrackInteractive(h backend.Handle) {
	delete(r.interactive, h)
}

// Forget removes h from every tracked set and queues TouchLost for every routed pair it
// is still part of. A lost edge the backend reports for h later is dropped.
func (r *EventRouter) Forget(h backend.Handle) {
	delete(r.actors, h)
	delete(r.interactive, h)

	var triggers []triggerKey
	for k := range r.touchingTriggers {
		if k.proxy == h || k.body == h {
			triggers = append(triggers, k)
		}
	}
	sort.Slice(triggers, func(i, j int) bool {
		if triggers[i].proxy != triggers[j].proxy {
			return triggers[i].proxy < triggers[j].proxy
		}
		return triggers[i].body < triggers[j].body
	})
	for _, k := range triggers {
		r.loseTrigger(k)
	}

	var contacts []contactKey
	for k := range r.touchingContacts {
		if k.a == h || k.b == h {
			contacts = append(contacts, k)
		}
	}
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].a != contacts[j].a {
			return contacts[i].a < contacts[j].a
		}
		return contacts[i].b < contacts[j].b
	})
	for _, k := range contacts {
		r.loseContact(k)
	}
}

func (r *EventRouter) loseTrigger(k triggerKey) {
	ev := r.touchingTriggers[k]
	delete(r.touchingTriggers, k)
	ev.Touch = backend.TouchLost
	r.pendingTriggers = append(r.pendingTriggers, ev)
}

func (r *EventRouter) loseContact(k contactKey) {
	ev := r.touchingContacts[k]
	delete(r.touchingContacts, k)
	ev.Touch = backend.TouchLost
	r.pendingContacts = append(r.pendingContacts, ev)
}

func (r *EventRouter) OnTrigger(fn TriggerListener) {
	r.triggerListeners = append(r.triggerListeners, fn)
}

func (r *EventRouter) OnContact(fn ContactListener) {
	r.contactListeners = append(r.contactListeners, fn)
}

func (r *EventRouter) onTriggers(pairs []backend.TriggerPair) {
	for _, p := range pairs {
		if p.Touch == backend.TouchLost {
			// lost edges pair up with what was routed, not with what is tracked now
			if k, ok := r.touchingTrigger(p); ok {
				r.loseTrigger(k)
			} else {
				r.dropped++
			}
			continue
		}
		ev, ok := r.resolveTrigger(p)
		if !ok {
			r.dropped++
			continue
		}
		r.touchingTriggers[triggerKey{proxy: r.proxyOf(p), body: ev.Body}] = ev
		r.pendingTriggers = append(r.pendingTriggers, ev)
	}
}

func (r *EventRouter) touchingTrigger(p backend.TriggerPair) (triggerKey, bool) {
	for _, k := range []triggerKey{{p.Trigger, p.Other}, {p.Other, p.Trigger}} {
		if _, ok := r.touchingTriggers[k]; ok {
			return k, true
		}
	}
	return triggerKey{}, false
}

// proxyOf is the actor side of a pair resolveTrigger accepted.
func (r *EventRouter) proxyOf(p backend.TriggerPair) backend.Handle {
	if _, ok := r.actors[p.Trigger]; ok {
		return p.Trigger
	}
	return p.Other
}

// resolveTrigger keeps pairs with exactly one actor proxy whose partner is interactive.
func (r *EventRouter) resolveTrigger(p backend.TriggerPair) (TriggerEvent, bool) {
	actorA, isActorA := r.actors[p.Trigger]
	actorB, isActorB := r.actors[p.Other]
	if isActorA == isActorB {
		return TriggerEvent{}, false
	}
	actor, object := actorA, p.Other
	if isActorB {
		actor, object = actorB, p.Trigger
	}
	if _, ok := r.interactive[object]; !ok {
		return TriggerEvent{}, false
	}
	return TriggerEvent{Actor: actor, Body: object, Touch: p.Touch}, true
}

func (r *EventRouter) onContacts(pairs []backend.ContactPair) {
	for _, p := range pairs {
		k := contactKeyOf(p.A, p.B)
		if p.Touch == backend.TouchLost {
			if _, ok := r.touchingContacts[k]; ok {
				r.loseContact(k)
			} else {
				r.dropped++
			}
			continue
		}
		a, okA := r.reg.Info(p.A)
		b, okB := r.reg.Info(p.B)
		if !okA || !okB {
			r.dropped++
			continue
		}
		ev := ContactEvent{
			A: p.A, B: p.B,
			KindA: a.Kind, KindB: b.Kind,
			Touch: p.Touch,
		}
		r.touchingContacts[k] = ev
		r.pendingContacts = append(r.pendingContacts, ev)
	}
}

// Dispatch delivers everything queued since the last call.
func (r *EventRouter) Dispatch() {
	triggers, contacts := r.pendingTriggers, r.pendingContacts
	r.pendingTriggers, r.pendingContacts = nil, nil

	for _, ev := range triggers {
		for _, fn := range r.triggerListeners {
			fn(ev)
		}
	}
	for _, ev := range contacts {
		for _, fn := range r.contactListeners {
			fn(ev)
		}
	}
	if r.dropped > 0 {
		r.log.Debugf("dropped %d unresolved pairs", r.dropped)
		r.dropped = 0
	}
}

// Touching is the number of routed pairs still waiting for their TouchLost.
func (r *EventRouter) Touching() int {
	return len(r.touchingTriggers) + len(r.touchingContacts)
}

// Pending is the number of events waiting for Dispatch.
func (r *EventRouter) Pending() int {
	return len(r.pendingTriggers) + len(r.pendingContacts)
}
