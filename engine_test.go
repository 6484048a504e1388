package voxsync

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/display"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineBackendInitFailure(t *testing.T) {
	be := newCountingBackend()
	be.initErr = errors.New("library not found")
	e, err := NewEngine(DefaultConfig(), be, display.NewScene(), volume.NewWorld(0, 16, nil))
	require.NoError(t, err)

	err = e.Start()
	assert.ErrorIs(t, err, ErrBackendInit)
	assert.ErrorIs(t, err, be.initErr)
	assert.False(t, e.Started())
	assert.ErrorIs(t, e.Tick(), ErrNotStarted)
	_, err = e.CreateBox(backend.PoseAt(mgl32.Vec3{}), unitBox(), 1, false)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestEngineRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TickRate = 0
	_, err := NewEngine(cfg, newCountingBackend(), display.NewScene(), volume.NewWorld(0, 16, nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(DefaultConfig(), nil, display.NewScene(), volume.NewWorld(0, 16, nil))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// A box high above an unloaded chunk pulls the chunk in while it is awake and lets it
// go once it sleeps.
func TestBodyAboveUnloadedChunk(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(3, 4)
	b := h.box(t, mgl32.Vec3{8, 100, 8})
	center := volume.ChunkCoord{}
	require.False(t, h.Streamer().IsLoaded(center))

	h.ticks(t, 1)
	require.False(t, h.Registry().IsSleeping(b))
	assert.True(t, h.Streamer().IsLoaded(center))
	assert.Len(t, h.Streamer().Loaded(), 9)

	// without gravity the box is idle and falls asleep after the solver's sleep time
	h.ticks(t, 30)
	require.True(t, h.Registry().IsSleeping(b))
	assert.False(t, h.Streamer().IsLoaded(center))
	assert.Empty(t, h.Streamer().Loaded())
}

func TestDepartedChunkUnloadsOnNextPass(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(3, 4)
	b := h.box(t, mgl32.Vec3{8, 100, 8})
	h.ticks(t, 1)
	departed := volume.ChunkCoord{X: -1, Z: 0}
	require.True(t, h.Streamer().IsLoaded(departed))

	require.NoError(t, h.Registry().SetPose(b, backend.PoseAt(mgl32.Vec3{40, 100, 8})))
	h.ticks(t, 1)
	assert.False(t, h.Streamer().IsLoaded(departed))
	assert.True(t, h.Streamer().IsLoaded(volume.ChunkCoord{X: 3, Z: 0}))
}

func TestBoxSettlesOnStreamedTerrain(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Gravity = mgl32.Vec3{0, -9.81, 0} })
	h.flat(2, 4)
	b := h.box(t, mgl32.Vec3{8.5, 7, 8.5})

	h.ticks(t, 120)
	assert.InDelta(t, 5.5, h.position(t, b).Y(), 0.15)
	require.True(t, h.Registry().IsSleeping(b))

	// a sleeping body wants nothing, and routine unloads leave it asleep in place
	h.ticks(t, 5)
	assert.Empty(t, h.Streamer().Loaded())
	assert.True(t, h.Registry().IsSleeping(b))
	assert.InDelta(t, 5.5, h.position(t, b).Y(), 0.15)
}

func TestSphereRestsOnMarkerCoveredGround(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Gravity = mgl32.Vec3{0, -9.81, 0} })
	h.flat(1, 4)
	h.world.SetVoxel(3, 5, 3, volume.Marker)
	b, err := h.CreateSphere(backend.PoseAt(mgl32.Vec3{3.5, 6.5, 3.5}), []ShapeSpec{SphereShape(0.3, mgl32.Vec3{})}, 1, false)
	require.NoError(t, err)

	h.ticks(t, 1)
	assert.Equal(t, volume.ChunkSize*volume.ChunkSize, h.Streamer().Colliders(volume.ChunkCoord{}))
	h.ticks(t, 59)
	assert.InDelta(t, 5.3, h.position(t, b).Y(), 0.15, "the grass under the marker still collides")
}

func TestEditIntentRebuildsChunk(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(2, 4)
	h.box(t, mgl32.Vec3{8, 20, 8})
	h.ticks(t, 1)
	center := volume.ChunkCoord{}
	before := h.Streamer().Colliders(center)

	volume.Fill(h.world, [3]int{0, 5, 0}, [3]int{1, 5, 0}, volume.Stone)
	h.Enqueue(EditIntent{Chunk: center}, EditIntent{Chunk: volume.ChunkCoord{X: 9, Z: 9}})
	h.ticks(t, 1)

	assert.Equal(t, 1, h.Streamer().Stats().Reloads, "unloaded chunks are not rebuilt")
	assert.Equal(t, before, h.Streamer().Colliders(center))
	assert.Greater(t, h.be.wakes, 0)
}

func TestIntentsApplyAtTickBoundary(t *testing.T) {
	h := newHarness(t, nil)
	var (
		mu      sync.Mutex
		spawned []backend.Handle
	)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Enqueue(SpawnIntent{
				Kind:    BodySphere,
				Pose:    backend.PoseAt(mgl32.Vec3{float32(i * 3), 10, 0}),
				Shapes:  []ShapeSpec{SphereShape(0.5, mgl32.Vec3{})},
				Density: 1,
				Done: func(b backend.Handle, err error) {
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						spawned = append(spawned, b)
					}
				},
			})
		}(i)
	}
	wg.Wait()
	assert.Zero(t, h.Registry().Len(), "nothing is applied before the tick")

	h.ticks(t, 1)
	require.Len(t, spawned, 4)
	for _, b := range spawned {
		info, ok := h.Registry().Info(b)
		require.True(t, ok)
		assert.Equal(t, BodySphere, info.Kind)
	}

	h.Enqueue(ForceIntent{Body: spawned[0], Vector: mgl32.Vec3{0, 0, 2}, Mode: backend.ForceVelocityChange})
	h.Enqueue(DestroyIntent{Body: spawned[1]})
	h.ticks(t, 1)
	lin, _, err := h.Registry().Velocity(spawned[0])
	require.NoError(t, err)
	assert.Greater(t, lin.Z(), float32(1.5))
	assert.False(t, h.Registry().Has(spawned[1]))
}

func TestGrabIntents(t *testing.T) {
	h := newHarness(t, nil)
	b := h.box(t, mgl32.Vec3{8, 10, 5})
	actor := NewActorID()

	var grabbed backend.Handle
	h.Enqueue(GrabIntent{View: lookingForward(actor), Done: func(g backend.Handle, ok bool) {
		if ok {
			grabbed = g
		}
	}})
	h.ticks(t, 1)
	assert.Equal(t, b, grabbed)

	view := lookingForward(actor)
	view.Eye = mgl32.Vec3{8, 12, 8}
	h.Enqueue(ViewIntent{View: view})
	h.ticks(t, 2)
	assert.InDelta(t, 12, h.position(t, b).Y(), 1e-3)

	h.Enqueue(ReleaseIntent{Actor: actor})
	h.ticks(t, 1)
	assert.False(t, h.Registry().IsKinematic(b))

	_, err := h.SpawnActorProxy(actor, backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	h.Enqueue(DisconnectIntent{Actor: actor})
	h.ticks(t, 1)
	_, ok := h.ActorProxy(actor)
	assert.False(t, ok)
}

func TestRecordReplay(t *testing.T) {
	h := newHarness(t, nil)
	shapes := []ShapeSpec{
		BoxShape(mgl32.Vec3{0.5, 0.25, 0.5}, mgl32.Vec3{0, 0.25, 0}),
		SphereShape(0.5, mgl32.Vec3{0, 1, 0}),
	}
	rot := mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	b, err := h.CreateBox(backend.Pose{Position: mgl32.Vec3{3, 10, 3}, Rotation: rot}, shapes, 2, false)
	require.NoError(t, err)
	require.NoError(t, h.Registry().SetVelocity(b, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0.5, 0}))

	rec, err := h.Record(b)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeRecords(&buf, []BodyRecord{rec}))
	assert.Contains(t, buf.String(), "kind: box")
	decoded, err := DecodeRecords(&buf)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, rec, decoded[0])

	h.Destroy(b)
	replayed, err := h.Replay(decoded[0])
	require.NoError(t, err)

	again, err := h.Record(replayed)
	require.NoError(t, err)
	assert.Equal(t, rec.Position, again.Position)
	assert.InDeltaSlice(t, rec.Rotation[:], again.Rotation[:], 1e-5)
	assert.Equal(t, rec.Linear, again.Linear)
	assert.Equal(t, rec.Angular, again.Angular)
	assert.Equal(t, rec.Shapes, again.Shapes)
	assert.InDelta(t, h.Registry().Mass(replayed), 2*(0.5+float32(4.0/3.0*3.14159265*0.125)), 1e-3)
}

func TestReplaySleepingBodyStaysAsleep(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(1, 4)
	b := h.box(t, mgl32.Vec3{8, 10, 8})
	h.ticks(t, 30)
	require.True(t, h.Registry().IsSleeping(b))
	require.Empty(t, h.Streamer().Loaded())

	rec, err := h.Record(b)
	require.NoError(t, err)
	assert.True(t, rec.Sleeping)

	h.Destroy(b)
	replayed, err := h.Replay(rec)
	require.NoError(t, err)
	assert.True(t, h.Registry().IsSleeping(replayed))
	h.ticks(t, 1)
	assert.True(t, h.Registry().IsSleeping(replayed))
	assert.Empty(t, h.Streamer().Loaded(), "a sleeping replay wants no terrain")

	rec.Sleeping = false
	awake, err := h.Replay(rec)
	require.NoError(t, err)
	h.ticks(t, 1)
	assert.False(t, h.Registry().IsSleeping(awake))
	assert.NotEmpty(t, h.Streamer().Loaded())
}

func TestRecordRejectsTerrain(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(1, 4)
	h.box(t, mgl32.Vec3{8, 10, 8})
	h.ticks(t, 1)

	terrain := h.Streamer().ChunkBody(volume.ChunkCoord{})
	require.NotEqual(t, backend.NoBody, terrain)
	_, err := h.Record(terrain)
	assert.Error(t, err)
	assert.False(t, h.Destroy(terrain), "terrain belongs to the streamer")
	assert.Len(t, h.RecordAll(), 1)
}

func TestDecodeRecordsEmpty(t *testing.T) {
	recs, err := DecodeRecords(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = DecodeRecords(bytes.NewBufferString("bodies: [{kind: capsule}]"))
	assert.Error(t, err)
}

func TestEngineShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(1, 4)
	h.box(t, mgl32.Vec3{8, 10, 8})
	_, err := h.SpawnActorProxy(NewActorID(), backend.PoseAt(mgl32.Vec3{0, 10, 0}), mgl32.Vec3{1, 1, 1})
	require.NoError(t, err)
	h.ticks(t, 1)
	// this actor never got a proxy
	_, ok := h.Grab(ActorView{Actor: NewActorID(), Eye: mgl32.Vec3{8, 10, 11}, Orientation: mgl32.QuatIdent()})
	require.True(t, ok)

	h.Shutdown()
	assert.Zero(t, h.Grabs().Len())
	assert.Zero(t, h.Registry().Len())
	assert.Zero(t, h.be.BodyCount())
	assert.Zero(t, h.scene.Len())
	assert.Empty(t, h.Streamer().Loaded())
	assert.ErrorIs(t, h.Tick(), ErrNotStarted)
}

func TestRaycastBodySkipsTerrainAndProxies(t *testing.T) {
	h := newHarness(t, nil)
	h.flat(2, 4)
	b := h.box(t, mgl32.Vec3{8.5, 10, 8.5})
	_, err := h.SpawnActorProxy(NewActorID(), backend.PoseAt(mgl32.Vec3{8.5, 10, 11}), mgl32.Vec3{0.5, 0.5, 0.5})
	require.NoError(t, err)
	h.ticks(t, 1)
	require.NotEmpty(t, h.Streamer().Loaded())

	got, ok := h.RaycastBody(mgl32.Vec3{8.5, 10, 13}, mgl32.Vec3{0, 0, -1}, 10)
	require.True(t, ok)
	assert.Equal(t, b, got)

	_, ok = h.RaycastBody(mgl32.Vec3{8.5, 10, 13}, mgl32.Vec3{0, 0, -1}, 2)
	assert.False(t, ok, "box is out of range")

	// straight down onto the ground only
	_, ok = h.RaycastBody(mgl32.Vec3{4.5, 10, 4.5}, mgl32.Vec3{0, -1, 0}, 20)
	assert.False(t, ok)
}

func TestSetGravity(t *testing.T) {
	h := newHarness(t, nil)
	b := h.box(t, mgl32.Vec3{8, 20, 8})
	h.ticks(t, 2)
	assert.InDelta(t, 20, h.position(t, b).Y(), 1e-4)

	h.SetGravity(mgl32.Vec3{0, -9.81, 0})
	assert.Equal(t, mgl32.Vec3{0, -9.81, 0}, h.Config().Gravity)
	h.ticks(t, 2)
	assert.Less(t, h.position(t, b).Y(), float32(20))
}
