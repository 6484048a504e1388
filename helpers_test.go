package voxsync

import (
	"testing"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/display"
	"github.com/gekko3d/voxsync/rt/solver"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// countingBackend is the reference solver with call counters for the operations whose
// exact count matters.
type countingBackend struct {
	*solver.World

	initErr  error
	statics  int
	dynamics int
	releases int
	wakes    int
}

func newCountingBackend() *countingBackend {
	return &countingBackend{World: solver.New(solver.DefaultConfig())}
}

func (c *countingBackend) Init() error {
	if c.initErr != nil {
		return c.initErr
	}
	return c.World.Init()
}

func (c *countingBackend) CreateStaticBody(pose backend.Pose) backend.Handle {
	c.statics++
	return c.World.CreateStaticBody(pose)
}

func (c *countingBackend) CreateDynamicBody(pose backend.Pose) backend.Handle {
	c.dynamics++
	return c.World.CreateDynamicBody(pose)
}

func (c *countingBackend) ReleaseBody(h backend.Handle, wakeOnLostTouch bool) {
	c.releases++
	if wakeOnLostTouch {
		c.wakes++
	}
	c.World.ReleaseBody(h, wakeOnLostTouch)
}

type harness struct {
	*Engine
	be    *countingBackend
	scene *display.Scene
	world *volume.World
}

// newHarness starts an engine over a 0..32 high world whose chunks are generated lazily
// by the caller. Gravity is off unless mutate turns it on.
func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Gravity = mgl32.Vec3{}
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		be:    newCountingBackend(),
		scene: display.NewScene(),
		world: volume.NewWorld(0, 32, volume.DefaultPalette()),
	}
	e, err := NewEngine(cfg, h.be, h.scene, h.world)
	require.NoError(t, err)
	require.NoError(t, e.Start())
	t.Cleanup(e.Shutdown)
	h.Engine = e
	return h
}

func (h *harness) ticks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.Tick())
	}
}

// flat generates every chunk within radius of the origin chunk as ground up to top.
func (h *harness) flat(radius, top int) {
	for _, c := range (volume.ChunkCoord{}).Neighborhood(radius) {
		volume.GenerateFlat(h.world, c, top, volume.Stone, volume.Grass)
	}
}

func unitBox() []ShapeSpec {
	return []ShapeSpec{BoxShape(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{})}
}

func (h *harness) box(t *testing.T, pos mgl32.Vec3) backend.Handle {
	t.Helper()
	b, err := h.CreateBox(backend.PoseAt(pos), unitBox(), 1, false)
	require.NoError(t, err)
	return b
}

func (h *harness) position(t *testing.T, b backend.Handle) mgl32.Vec3 {
	t.Helper()
	pose, err := h.Registry().Pose(b)
	require.NoError(t, err)
	return pose.Position
}

func newRegistry(t *testing.T) (*BodyRegistry, *countingBackend) {
	t.Helper()
	be := newCountingBackend()
	require.NoError(t, be.Init())
	return NewBodyRegistry(be, nil), be
}
