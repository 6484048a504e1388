package solver

import (
	"testing"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = float32(0.05)

func newWorld(t *testing.T) *World {
	t.Helper()
	w := New(DefaultConfig())
	require.NoError(t, w.Init())
	return w
}

func step(w *World, n int) {
	for i := 0; i < n; i++ {
		w.Simulate(dt)
		w.FetchResults()
	}
}

func addBox(t *testing.T, w *World, pos mgl32.Vec3, half float32) backend.Handle {
	t.Helper()
	h := w.CreateDynamicBody(backend.PoseAt(pos))
	require.NoError(t, w.AttachShape(h, backend.Box(mgl32.Vec3{half, half, half}), backend.PoseAt(mgl32.Vec3{}), false))
	require.NoError(t, w.ComputeMassFromDensity(h, 1))
	return h
}

func addFloor(t *testing.T, w *World) backend.Handle {
	t.Helper()
	h := w.CreateStaticBody(backend.PoseAt(mgl32.Vec3{0, -0.5, 0}))
	require.NoError(t, w.AttachShape(h, backend.Box(mgl32.Vec3{50, 0.5, 50}), backend.PoseAt(mgl32.Vec3{}), false))
	return h
}

func TestInitTwice(t *testing.T) {
	w := newWorld(t)
	err := w.Init()
	assert.ErrorIs(t, err, backend.ErrInitFailed)
}

func TestFallingBody(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{0, 10, 0}, 0.5)

	step(w, 10)

	pose, ok := w.Pose(h)
	require.True(t, ok)
	if pose.Position.Y() >= 10 {
		t.Errorf("body should have fallen, Y = %f", pose.Position.Y())
	}
	lin, _ := w.Velocity(h)
	assert.Less(t, lin.Y(), float32(0))
}

func TestBodyRestsOnFloor(t *testing.T) {
	w := newWorld(t)
	addFloor(t, w)
	h := addBox(t, w, mgl32.Vec3{0, 2, 0}, 0.5)

	step(w, 200)

	pose, _ := w.Pose(h)
	assert.InDelta(t, 0.5, pose.Position.Y(), 0.1)
	assert.True(t, w.IsSleeping(h), "resting body should fall asleep")
}

func TestSleepAfterIdle(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl32.Vec3{})
	h := addBox(t, w, mgl32.Vec3{0, 5, 0}, 0.5)

	// SleepTime is 1s, i.e. 20 steps at 0.05
	step(w, 10)
	assert.False(t, w.IsSleeping(h))
	step(w, 15)
	assert.True(t, w.IsSleeping(h))

	w.WakeUp(h)
	assert.False(t, w.IsSleeping(h))
}

func TestPutToSleep(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{0, 5, 0}, 0.5)
	w.SetVelocity(h, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{})

	w.PutToSleep(h)
	assert.True(t, w.IsSleeping(h))
	lin, _ := w.Velocity(h)
	assert.Equal(t, mgl32.Vec3{}, lin)

	// asleep in mid air: gravity does not apply until something wakes it
	step(w, 5)
	pose, _ := w.Pose(h)
	assert.InDelta(t, 5, pose.Position.Y(), 1e-5)

	w.SetKinematic(h, true)
	w.WakeUp(h)
	w.PutToSleep(h)
	assert.False(t, w.IsSleeping(h), "kinematic bodies never sleep")
}

func TestResultsHiddenUntilFetch(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{0, 10, 0}, 0.5)

	w.Simulate(dt)
	before, _ := w.Pose(h)
	assert.Equal(t, float32(10), before.Position.Y())

	w.FetchResults()
	after, _ := w.Pose(h)
	assert.Less(t, after.Position.Y(), float32(10))
}

func TestKinematicTarget(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{0, 5, 0}, 0.5)
	w.SetKinematic(h, true)

	target := backend.PoseAt(mgl32.Vec3{3, 4, -2})
	w.SetKinematicTarget(h, target)
	step(w, 1)

	pose, _ := w.Pose(h)
	assert.InDelta(t, 3, pose.Position.X(), 1e-5)
	assert.InDelta(t, 4, pose.Position.Y(), 1e-5)
	assert.InDelta(t, -2, pose.Position.Z(), 1e-5)

	// no target: stays put, not pulled by gravity
	step(w, 5)
	pose, _ = w.Pose(h)
	assert.InDelta(t, 4, pose.Position.Y(), 1e-5)
}

func TestKinematicTargetIgnoredWhenDynamic(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl32.Vec3{})
	h := addBox(t, w, mgl32.Vec3{0, 5, 0}, 0.5)

	w.SetKinematicTarget(h, backend.PoseAt(mgl32.Vec3{10, 0, 0}))
	step(w, 1)

	pose, _ := w.Pose(h)
	assert.InDelta(t, 0, pose.Position.X(), 1e-5)
}

func TestAddForceModes(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl32.Vec3{})
	h := addBox(t, w, mgl32.Vec3{}, 0.5)

	w.AddForce(h, mgl32.Vec3{2, 0, 0}, backend.ForceVelocityChange)
	lin, _ := w.Velocity(h)
	assert.InDelta(t, 2, lin.X(), 1e-5)

	w.SetKinematic(h, true)
	before, _ := w.Velocity(h)
	w.AddForce(h, mgl32.Vec3{5, 0, 0}, backend.ForceVelocityChange)
	lin, _ = w.Velocity(h)
	assert.Equal(t, before, lin, "kinematic bodies ignore forces")
}

func TestMassFromDensity(t *testing.T) {
	w := newWorld(t)
	h := w.CreateDynamicBody(backend.PoseAt(mgl32.Vec3{}))
	box := backend.Box(mgl32.Vec3{0.5, 0.5, 0.5})

	require.NoError(t, w.AttachShape(h, box, backend.PoseAt(mgl32.Vec3{}), false))
	require.NoError(t, w.ComputeMassFromDensity(h, 2))
	assert.InDelta(t, 2, w.Mass(h), 1e-5)

	require.NoError(t, w.AttachShape(h, box, backend.PoseAt(mgl32.Vec3{1, 0, 0}), false))
	require.NoError(t, w.AttachShape(h, backend.Sphere(1), backend.PoseAt(mgl32.Vec3{}), true))
	require.NoError(t, w.ComputeMassFromDensity(h, 2))
	assert.InDelta(t, 4, w.Mass(h), 1e-5, "trigger shapes carry no mass")

	assert.Error(t, w.ComputeMassFromDensity(h, 0))
	assert.ErrorIs(t, w.ComputeMassFromDensity(999, 1), backend.ErrUnknownBody)
}

func TestAttachDegenerateShape(t *testing.T) {
	w := newWorld(t)
	h := w.CreateDynamicBody(backend.PoseAt(mgl32.Vec3{}))
	err := w.AttachShape(h, backend.Box(mgl32.Vec3{0.5, 0, 0.5}), backend.PoseAt(mgl32.Vec3{}), false)
	assert.Error(t, err)
	assert.Equal(t, 0, w.ShapeCount(h))
}

func TestReleaseTwicePanics(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{}, 0.5)

	assert.True(t, w.IsReleasable(h))
	w.ReleaseBody(h, false)
	assert.False(t, w.IsReleasable(h))
	assert.Panics(t, func() { w.ReleaseBody(h, false) })
}

func TestReleaseWakesTouching(t *testing.T) {
	for _, wake := range []bool{false, true} {
		w := newWorld(t)
		floor := addFloor(t, w)
		h := addBox(t, w, mgl32.Vec3{0, 0.5, 0}, 0.5)
		step(w, 60)
		require.True(t, w.IsSleeping(h))

		w.ReleaseBody(floor, wake)
		assert.Equal(t, !wake, w.IsSleeping(h), "wake=%v", wake)
	}
}

func TestRaycastFilter(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl32.Vec3{})
	wall := w.CreateStaticBody(backend.PoseAt(mgl32.Vec3{0, 0, -3}))
	require.NoError(t, w.AttachShape(wall, backend.Box(mgl32.Vec3{5, 5, 0.5}), backend.PoseAt(mgl32.Vec3{}), false))
	ball := w.CreateDynamicBody(backend.PoseAt(mgl32.Vec3{0, 0, -8}))
	require.NoError(t, w.AttachShape(ball, backend.Sphere(1), backend.PoseAt(mgl32.Vec3{}), false))

	hit, ok := w.Raycast(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 20, backend.QueryAll)
	require.True(t, ok)
	assert.Equal(t, wall, hit.Body)
	assert.InDelta(t, 2.5, hit.Distance, 1e-4)
	assert.InDelta(t, 1, hit.Normal.Z(), 1e-4)

	hit, ok = w.Raycast(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 20, backend.QueryDynamic)
	require.True(t, ok)
	assert.Equal(t, ball, hit.Body)
	assert.InDelta(t, 7, hit.Distance, 1e-4)

	_, ok = w.Raycast(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, 5, backend.QueryDynamic)
	assert.False(t, ok, "beyond max distance")
}

func TestTriggerEdges(t *testing.T) {
	w := newWorld(t)
	w.SetGravity(mgl32.Vec3{})

	var got []backend.TriggerPair
	w.SetTriggerCallback(func(pairs []backend.TriggerPair) {
		got = append(got, pairs...)
	})

	zone := w.CreateDynamicBody(backend.PoseAt(mgl32.Vec3{}))
	require.NoError(t, w.AttachShape(zone, backend.Sphere(1), backend.PoseAt(mgl32.Vec3{}), true))
	w.SetKinematic(zone, true)
	box := addBox(t, w, mgl32.Vec3{0.5, 0, 0}, 0.5)

	step(w, 1)
	require.Len(t, got, 1)
	assert.Equal(t, backend.TriggerPair{Trigger: zone, Other: box, Touch: backend.TouchFound}, got[0])

	step(w, 3)
	assert.Len(t, got, 1, "no repeat while overlapping")

	w.SetKinematicTarget(zone, backend.PoseAt(mgl32.Vec3{10, 0, 0}))
	step(w, 1)
	require.Len(t, got, 2)
	assert.Equal(t, backend.TouchLost, got[1].Touch)
}

func TestContactEdges(t *testing.T) {
	w := newWorld(t)
	var got []backend.ContactPair
	w.SetContactCallback(func(pairs []backend.ContactPair) {
		got = append(got, pairs...)
	})
	floor := addFloor(t, w)
	box := addBox(t, w, mgl32.Vec3{0, 1, 0}, 0.5)

	step(w, 100)
	require.NotEmpty(t, got)
	assert.Equal(t, contactKey(floor, box).A, got[0].A)
	assert.Equal(t, backend.TouchFound, got[0].Touch)
}

func TestShutdownDropsBodies(t *testing.T) {
	w := newWorld(t)
	h := addBox(t, w, mgl32.Vec3{}, 0.5)
	w.Shutdown()
	assert.Equal(t, 0, w.BodyCount())
	assert.False(t, w.IsReleasable(h))
	require.NoError(t, w.Init())
}
