package voxsync

import (
	"errors"
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
)

type collisionChunk struct {
	body      backend.Handle // NoBody when the chunk has no exposed voxels
	revision  uint64
	colliders int
}

// StreamStats are cumulative counters since the streamer was created.
type StreamStats struct {
	Loads             int
	Unloads           int
	Reloads           int
	Colliders         int
	SkippedColumns    int
	SkippedDegenerate int
}

// TerrainStreamer keeps static colliders loaded around every moving body. Loads and
// unloads are batched into one pass per tick.
type TerrainStreamer struct {
	reg   *BodyRegistry
	world *volume.World
	cfg   StreamingConfig
	log   Logger

	loaded map[volume.ChunkCoord]*collisionChunk
	wanted map[volume.ChunkCoord]struct{}
	stats  StreamStats
}

func NewTerrainStreamer(reg *BodyRegistry, world *volume.World, cfg StreamingConfig, log Logger) *TerrainStreamer {
	return &TerrainStreamer{
		reg:    reg,
		world:  world,
		cfg:    cfg,
		log:    orNop(log),
		loaded: make(map[volume.ChunkCoord]*collisionChunk),
		wanted: make(map[volume.ChunkCoord]struct{}),
	}
}

// Update runs the liveness pass for the given tick, then the revision pass when tick
// lands on the reload interval.
func (s *TerrainStreamer) Update(tick uint64) {
	s.collect()
	s.apply()
	if s.cfg.ReloadIntervalTicks > 0 && tick%uint64(s.cfg.ReloadIntervalTicks) == 0 {
		s.reloadChanged()
	}
}

// collect rebuilds the wanted set from every awake, solid, non-terrain body.
func (s *TerrainStreamer) collect() {
	clear(s.wanted)
	for _, h := range s.reg.Handles() {
		info, _ := s.reg.Info(h)
		if info.Static() || info.Trigger || s.reg.IsSleeping(h) {
			continue
		}
		pose, err := s.reg.Pose(h)
		if err != nil {
			continue
		}
		center := volume.ChunkOf(pose.Position.X(), pose.Position.Z())
		for _, c := range center.Neighborhood(s.cfg.ChunkRadius) {
			s.wanted[c] = struct{}{}
		}
	}
}

func (s *TerrainStreamer) apply() {
	for _, c := range sortedChunks(s.wanted) {
		if _, ok := s.loaded[c]; !ok {
			s.load(c)
		}
	}
	var stale []volume.ChunkCoord
	for c := range s.loaded {
		if _, ok := s.wanted[c]; !ok {
			stale = append(stale, c)
		}
	}
	sortChunks(stale)
	for _, c := range stale {
		s.unload(c, s.cfg.WakeOnRoutineUnload)
	}
}

// reloadChanged rebuilds loaded chunks whose voxels changed since they were scanned,
// wanted or not.
func (s *TerrainStreamer) reloadChanged() {
	var changed []volume.ChunkCoord
	for c, cc := range s.loaded {
		if s.world.Revision(c) != cc.revision {
			changed = append(changed, c)
		}
	}
	sortChunks(changed)
	for _, c := range changed {
		s.rebuild(c)
	}
}

// Reload rebuilds c after an edit, waking bodies that rested on its old colliders.
// It reports false and does nothing when c is not loaded.
func (s *TerrainStreamer) Reload(c volume.ChunkCoord) bool {
	if _, ok := s.loaded[c]; !ok {
		return false
	}
	s.rebuild(c)
	return true
}

func (s *TerrainStreamer) rebuild(c volume.ChunkCoord) {
	s.unload(c, true)
	s.load(c)
	s.stats.Reloads++
}

func (s *TerrainStreamer) load(c volume.ChunkCoord) {
	// read the revision first so an edit racing the scan is caught by the next pass
	cc := &collisionChunk{revision: s.world.Revision(c)}
	shapes := s.scan(c)
	cc.colliders = len(shapes)

	if len(shapes) > 0 {
		x0, z0 := c.Origin()
		h, err := s.reg.Create(BodySpec{
			Kind:   BodyTerrain,
			Pose:   backend.PoseAt(mgl32.Vec3{float32(x0), 0, float32(z0)}),
			Shapes: shapes,
		})
		if err != nil {
			s.log.Warnf("chunk %s: collider body: %v", c, err)
		} else {
			cc.body = h
		}
	}
	s.loaded[c] = cc
	s.stats.Loads++
	s.stats.Colliders += cc.colliders
	s.log.Debugf("loaded chunk %s with %d colliders", c, cc.colliders)
}

func (s *TerrainStreamer) unload(c volume.ChunkCoord, wake bool) {
	cc, ok := s.loaded[c]
	if !ok {
		return
	}
	if cc.body != backend.NoBody {
		s.reg.Destroy(cc.body, wake)
	}
	delete(s.loaded, c)
	s.stats.Unloads++
	s.stats.Colliders -= cc.colliders
	s.log.Debugf("unloaded chunk %s (wake=%v)", c, wake)
}

// scan emits one box per solid voxel that has an empty face neighbour. Offsets are
// relative to the chunk origin at y=0.
func (s *TerrainStreamer) scan(c volume.ChunkCoord) []ShapeSpec {
	palette := s.world.Palette()
	minY, _ := s.world.Height()

	var shapes []ShapeSpec
	for lx := 0; lx < volume.ChunkSize; lx++ {
		for lz := 0; lz < volume.ChunkSize; lz++ {
			column, err := s.world.Column(c, lx, lz)
			if err != nil {
				s.stats.SkippedColumns++
				if !errors.Is(err, volume.ErrChunkUnavailable) {
					s.log.Debugf("chunk %s column (%d,%d): %v", c, lx, lz, err)
				}
				continue
			}
			for i, id := range column {
				if !palette.Solid(id) {
					continue
				}
				y := minY + i
				if !s.world.HasEmptyNeighbor(c, lx, y, lz) {
					continue
				}
				center, half := palette.Block(id).Collider()
				g := backend.Box(half)
				if g.Degenerate() {
					s.stats.SkippedDegenerate++
					continue
				}
				shapes = append(shapes, ShapeSpec{
					Geometry: g,
					Offset:   mgl32.Vec3{float32(lx), float32(y), float32(lz)}.Add(center),
				})
			}
		}
	}
	return shapes
}

func (s *TerrainStreamer) IsLoaded(c volume.ChunkCoord) bool {
	_, ok := s.loaded[c]
	return ok
}

// Loaded returns the loaded chunks ordered by X then Z.
func (s *TerrainStreamer) Loaded() []volume.ChunkCoord {
	return sortedChunks(s.loaded)
}

// Wanted returns the chunks the last pass wanted, ordered by X then Z.
func (s *TerrainStreamer) Wanted() []volume.ChunkCoord {
	return sortedChunks(s.wanted)
}

// Colliders is the collider count of a loaded chunk, or -1.
func (s *TerrainStreamer) Colliders(c volume.ChunkCoord) int {
	cc, ok := s.loaded[c]
	if !ok {
		return -1
	}
	return cc.colliders
}

// ChunkBody is the terrain body of c, or NoBody.
func (s *TerrainStreamer) ChunkBody(c volume.ChunkCoord) backend.Handle {
	if cc, ok := s.loaded[c]; ok {
		return cc.body
	}
	return backend.NoBody
}

func (s *TerrainStreamer) Stats() StreamStats {
	return s.stats
}

// UnloadAll drops every chunk without waking anyone.
func (s *TerrainStreamer) UnloadAll() {
	for _, c := range sortedChunks(s.loaded) {
		s.unload(c, false)
	}
	clear(s.wanted)
}

func sortedChunks[V any](m map[volume.ChunkCoord]V) []volume.ChunkCoord {
	out := make([]volume.ChunkCoord, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sortChunks(out)
	return out
}

func sortChunks(cs []volume.ChunkCoord) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
