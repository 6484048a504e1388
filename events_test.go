package voxsync

import (
	"testing"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerRoutingEdges(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	b := h.box(t, mgl32.Vec3{5, 10, 0})

	var events []TriggerEvent
	h.RegisterTriggerListener(func(ev TriggerEvent) { events = append(events, ev) })

	h.ticks(t, 2)
	assert.Empty(t, events)

	require.NoError(t, h.MoveActorProxy(actor, backend.PoseAt(mgl32.Vec3{4, 10, 0})))
	h.ticks(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, TriggerEvent{Actor: actor, Body: b, Touch: backend.TouchFound}, events[0])

	h.ticks(t, 3)
	assert.Len(t, events, 1, "a held overlap is not reported again")

	require.NoError(t, h.MoveActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0})))
	h.ticks(t, 1)
	require.Len(t, events, 2)
	assert.Equal(t, backend.TouchLost, events[1].Touch)
}

func TestTriggerRoutingIgnoresTriggerAndSolidPairs(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	// a plain trigger volume overlapping the proxy
	_, err = h.CreateBox(backend.PoseAt(mgl32.Vec3{0.5, 10, 0}), unitBox(), 1, true)
	require.NoError(t, err)
	// two solid boxes overlapping each other, away from the proxy
	h.box(t, mgl32.Vec3{10, 10, 0})
	h.box(t, mgl32.Vec3{10.8, 10, 0})

	var triggers []TriggerEvent
	var contacts []ContactEvent
	h.RegisterTriggerListener(func(ev TriggerEvent) { triggers = append(triggers, ev) })
	h.RegisterContactListener(func(ev ContactEvent) { contacts = append(contacts, ev) })

	h.ticks(t, 3)
	assert.Empty(t, triggers)
	require.NotEmpty(t, contacts)
	assert.Equal(t, BodyBox, contacts[0].KindA)
	assert.Equal(t, BodyBox, contacts[0].KindB)
}

func TestTriggerListenersRunInRegistrationOrder(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	h.box(t, mgl32.Vec3{0.5, 10, 0})

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		h.RegisterTriggerListener(func(TriggerEvent) { order = append(order, name) })
	}
	h.ticks(t, 1)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRouterResolve(t *testing.T) {
	reg, _ := newRegistry(t)
	r := NewEventRouter(reg, nil)
	actor := NewActorID()
	r.TrackActor(1, actor)
	r.TrackActor(2, NewActorID())
	r.TrackInteractive(3)

	cases := []struct {
		name string
		pair backend.TriggerPair
		ok   bool
	}{
		{"actor trigger", backend.TriggerPair{Trigger: 1, Other: 3}, true},
		{"actor other", backend.TriggerPair{Trigger: 3, Other: 1}, true},
		{"two actors", backend.TriggerPair{Trigger: 1, Other: 2}, false},
		{"unknown object", backend.TriggerPair{Trigger: 1, Other: 9}, false},
		{"no actor", backend.TriggerPair{Trigger: 3, Other: 9}, false},
	}
	for _, c := range cases {
		ev, ok := r.resolveTrigger(c.pair)
		if ok != c.ok {
			t.Errorf("%s: resolved = %v, want %v", c.name, ok, c.ok)
			continue
		}
		if ok && (ev.Actor != actor || ev.Body != 3) {
			t.Errorf("%s: got %+v", c.name, ev)
		}
	}
}

func TestRouterSubscribesOnce(t *testing.T) {
	reg, _ := newRegistry(t)
	r := NewEventRouter(reg, nil)
	r.Subscribe()
	r.Subscribe()
	assert.True(t, r.subscribed)

	r.onTriggers([]backend.TriggerPair{{Trigger: 1, Other: 2}})
	assert.Zero(t, r.Pending())
	r.Dispatch()
	assert.Zero(t, r.dropped)
}

func TestActorDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	proxy, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	b := h.box(t, mgl32.Vec3{0, 10, -3})

	view := ActorView{Actor: actor, Eye: mgl32.Vec3{0, 10, 0}, Orientation: mgl32.QuatIdent()}
	_, ok := h.Grab(view)
	require.True(t, ok, "rays pass through the actor's own trigger proxy")

	h.Disconnect(actor)
	assert.False(t, h.Registry().Has(proxy))
	assert.False(t, h.Registry().IsKinematic(b))
	_, ok = h.ActorProxy(actor)
	assert.False(t, ok)
	assert.Zero(t, h.Grabs().Len())
}

func TestTriggerLostWhenOverlappedBodyIsDestroyed(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	b := h.box(t, mgl32.Vec3{0.5, 10, 0})

	var events []TriggerEvent
	h.RegisterTriggerListener(func(ev TriggerEvent) { events = append(events, ev) })
	h.ticks(t, 1)
	require.Len(t, events, 1)

	require.True(t, h.Destroy(b))
	h.ticks(t, 3)
	require.Len(t, events, 2)
	assert.Equal(t, TriggerEvent{Actor: actor, Body: b, Touch: backend.TouchLost}, events[1])
	assert.Zero(t, h.Router().Touching())
}

func TestTriggerLostWhenProxyIsRemoved(t *testing.T) {
	h := newHarness(t, nil)
	actor := NewActorID()
	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	b := h.box(t, mgl32.Vec3{0.5, 10, 0})

	var events []TriggerEvent
	h.RegisterTriggerListener(func(ev TriggerEvent) { events = append(events, ev) })
	h.ticks(t, 1)
	require.Len(t, events, 1)

	h.Disconnect(actor)
	h.ticks(t, 3)
	require.Len(t, events, 2)
	assert.Equal(t, TriggerEvent{Actor: actor, Body: b, Touch: backend.TouchLost}, events[1])
}

func TestContactLostWhenBodyIsDestroyed(t *testing.T) {
	h := newHarness(t, nil)
	a := h.box(t, mgl32.Vec3{10, 10, 0})
	b := h.box(t, mgl32.Vec3{10.8, 10, 0})

	edges := map[backend.Touch]int{}
	h.RegisterContactListener(func(ev ContactEvent) {
		if ev.A == b || ev.B == b {
			edges[ev.Touch]++
		}
	})
	h.ticks(t, 1)
	require.GreaterOrEqual(t, edges[backend.TouchFound], 1)

	require.True(t, h.Destroy(b))
	h.ticks(t, 3)
	assert.Equal(t, edges[backend.TouchFound], edges[backend.TouchLost])
	assert.True(t, h.Registry().Has(a))
	assert.Zero(t, h.Router().Touching())
}

func TestRouterPairsLostEdgesWithRoutedFound(t *testing.T) {
	reg, _ := newRegistry(t)
	r := NewEventRouter(reg, nil)
	actor := NewActorID()
	r.TrackActor(1, actor)
	r.TrackInteractive(3)

	r.onTriggers([]backend.TriggerPair{{Trigger: 1, Other: 3, Touch: backend.TouchFound}})
	r.Forget(3)
	// the backend reports the same edge again once it notices
	r.onTriggers([]backend.TriggerPair{{Trigger: 1, Other: 3, Touch: backend.TouchLost}})

	var got []TriggerEvent
	r.OnTrigger(func(ev TriggerEvent) { got = append(got, ev) })
	r.Dispatch()
	assert.Equal(t, []TriggerEvent{
		{Actor: actor, Body: 3, Touch: backend.TouchFound},
		{Actor: actor, Body: 3, Touch: backend.TouchLost},
	}, got)
}
