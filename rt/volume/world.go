// Package volume stores the mutable voxel world that terrain colliders are generated
// from. Storage is sparse: 32³ sectors of 8³ bricks, allocated only where voxels exist.
package volume

import (
	"errors"
	"fmt"
	"sync"
)

// ErrChunkUnavailable is returned when a chunk has not been generated yet.
var ErrChunkUnavailable = errors.New("chunk unavailable")

// World is safe for concurrent use. Edits may come from any goroutine; readers see
// them immediately.
type World struct {
	mu sync.RWMutex

	minY, maxY int
	palette    *Palette

	sectors   map[[3]int]*Sector
	generated map[ChunkCoord]bool
	revisions map[ChunkCoord]uint64
}

// NewWorld creates an empty world spanning voxel heights [minY, maxY).
func NewWorld(minY, maxY int, palette *Palette) *World {
	if palette == nil {
		palette = DefaultPalette()
	}
	if maxY <= minY {
		panic(fmt.Sprintf("volume: invalid height range [%d,%d)", minY, maxY))
	}
	return &World{
		minY:      minY,
		maxY:      maxY,
		palette:   palette,
		sectors:   make(map[[3]int]*Sector),
		generated: make(map[ChunkCoord]bool),
		revisions: make(map[ChunkCoord]uint64),
	}
}

// Height returns the voxel height range [min, max).
func (w *World) Height() (min, max int) {
	return w.minY, w.maxY
}

func (w *World) Palette() *Palette {
	return w.palette
}

// MarkGenerated declares c loaded in the host world even if it holds no voxels.
func (w *World) MarkGenerated(c ChunkCoord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.generated[c] {
		w.generated[c] = true
		w.revisions[c]++
	}
}

func (w *World) IsGenerated(c ChunkCoord) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.generated[c]
}

// DropChunk forgets every voxel of c and marks it ungenerated.
func (w *World) DropChunk(c ChunkCoord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	x0, z0 := c.Origin()
	for x := x0; x < x0+ChunkSize; x++ {
		for z := z0; z < z0+ChunkSize; z++ {
			for y := w.minY; y < w.maxY; y++ {
				w.setLocked(x, y, z, Air)
			}
		}
	}
	delete(w.generated, c)
	w.revisions[c]++
}

// Revision increases every time voxels in or bordering c change.
func (w *World) Revision(c ChunkCoord) uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.revisions[c]
}

// SetVoxel writes one voxel. Writes outside the height range are ignored. The chunk
// becomes generated.
func (w *World) SetVoxel(x, y, z int, id BlockID) {
	if y < w.minY || y >= w.maxY {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.getLocked(x, y, z) == id && w.generated[ChunkOfVoxel(x, z)] {
		return
	}
	w.setLocked(x, y, z, id)
	w.touchLocked(x, z)
}

// touchLocked bumps the revision of the chunk holding (x, z) and of any chunk whose
// border faces it.
func (w *World) touchLocked(x, z int) {
	c := ChunkOfVoxel(x, z)
	w.generated[c] = true
	w.revisions[c]++

	x0, z0 := c.Origin()
	lx, lz := x-x0, z-z0
	if lx == 0 {
		w.revisions[ChunkCoord{X: c.X - 1, Z: c.Z}]++
	}
	if lx == ChunkSize-1 {
		w.revisions[ChunkCoord{X: c.X + 1, Z: c.Z}]++
	}
	if lz == 0 {
		w.revisions[ChunkCoord{X: c.X, Z: c.Z - 1}]++
	}
	if lz == ChunkSize-1 {
		w.revisions[ChunkCoord{X: c.X, Z: c.Z + 1}]++
	}
}

func (w *World) Voxel(x, y, z int) BlockID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.getLocked(x, y, z)
}

func (w *World) setLocked(x, y, z int, id BlockID) {
	sx, bx, vx := split(x)
	sy, by, vy := split(y)
	sz, bz, vz := split(z)
	key := [3]int{sx, sy, sz}

	if id == Air {
		sector, ok := w.sectors[key]
		if !ok {
			return
		}
		brick := sector.GetBrick(bx, by, bz)
		if brick == nil {
			return
		}
		brick.SetVoxel(vx, vy, vz, Air)
		sector.RemoveBrickIfEmpty(bx, by, bz)
		if sector.IsEmpty() {
			delete(w.sectors, key)
		}
		return
	}

	sector, ok := w.sectors[key]
	if !ok {
		sector = NewSector(sx, sy, sz)
		w.sectors[key] = sector
	}
	sector.GetOrCreateBrick(bx, by, bz).SetVoxel(vx, vy, vz, id)
}

func (w *World) getLocked(x, y, z int) BlockID {
	sx, bx, vx := split(x)
	sy, by, vy := split(y)
	sz, bz, vz := split(z)
	sector, ok := w.sectors[[3]int{sx, sy, sz}]
	if !ok {
		return Air
	}
	brick := sector.GetBrick(bx, by, bz)
	if brick == nil {
		return Air
	}
	return brick.Payload[vx][vy][vz]
}

// IsSolid reports whether the voxel at chunk-local (lx, ly, lz) is solid. ly is a world
// height.
func (w *World) IsSolid(c ChunkCoord, lx, ly, lz int) bool {
	x0, z0 := c.Origin()
	return w.palette.Solid(w.Voxel(x0+lx, ly, z0+lz))
}

// HasEmptyNeighbor reports whether any face neighbour of the voxel does not occlude it.
// Neighbours beyond the height range are sealed. Neighbours in ungenerated chunks count
// as empty.
func (w *World) HasEmptyNeighbor(c ChunkCoord, lx, ly, lz int) bool {
	x0, z0 := c.Origin()
	x, z := x0+lx, z0+lz

	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, d := range faceOffsets {
		nx, ny, nz := x+d[0], ly+d[1], z+d[2]
		if ny < w.minY || ny >= w.maxY {
			continue
		}
		if !w.generated[ChunkOfVoxel(nx, nz)] {
			return true
		}
		if !w.palette.Occludes(w.getLocked(nx, ny, nz)) {
			return true
		}
	}
	return false
}

var faceOffsets = [6][3]int{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
}

// Column returns the block ids of column (lx, lz) of c, indexed by y - min height.
func (w *World) Column(c ChunkCoord, lx, lz int) ([]BlockID, error) {
	if lx < 0 || lx >= ChunkSize || lz < 0 || lz >= ChunkSize {
		return nil, fmt.Errorf("volume: column (%d,%d) outside chunk", lx, lz)
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.generated[c] {
		return nil, fmt.Errorf("volume: column of %s: %w", c, ErrChunkUnavailable)
	}
	x0, z0 := c.Origin()
	out := make([]BlockID, w.maxY-w.minY)
	for y := w.minY; y < w.maxY; y++ {
		out[y-w.minY] = w.getLocked(x0+lx, y, z0+lz)
	}
	return out, nil
}

// VoxelCount is the number of non-air voxels, for stats.
func (w *World) VoxelCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	count := 0
	for _, s := range w.sectors {
		for _, b := range s.PackedBricks {
			for x := 0; x < BrickSize; x++ {
				for y := 0; y < BrickSize; y++ {
					for z := 0; z < BrickSize; z++ {
						if b.Payload[x][y][z] != Air {
							count++
						}
					}
				}
			}
		}
	}
	return count
}
