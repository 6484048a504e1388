package solver

import (
	"math"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/go-gl/mathgl/mgl32"
)

type shapeRef struct {
	body  backend.Handle
	shape int
}

// spatialHash buckets shape AABBs into uniform cells. It stores references only; callers
// still run an exact AABB test on every candidate.
type spatialHash struct {
	cellSize float32
	cells    map[[3]int][]shapeRef
}

func newSpatialHash(cellSize float32) *spatialHash {
	return &spatialHash{
		cellSize: cellSize,
		cells:    make(map[[3]int][]shapeRef),
	}
}

func (g *spatialHash) Clear() {
	clear(g.cells)
}

func (g *spatialHash) Insert(ref shapeRef, min, max mgl32.Vec3) {
	lo, hi := g.cellRange(min, max)
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				key := [3]int{x, y, z}
				g.cells[key] = append(g.cells[key], ref)
			}
		}
	}
}

// Query appends every distinct reference sharing a cell with [min,max] to dst.
func (g *spatialHash) Query(dst []shapeRef, min, max mgl32.Vec3) []shapeRef {
	lo, hi := g.cellRange(min, max)
	start := len(dst)
	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				for _, ref := range g.cells[[3]int{x, y, z}] {
					if !containsRef(dst[start:], ref) {
						dst = append(dst, ref)
					}
				}
			}
		}
	}
	return dst
}

func containsRef(refs []shapeRef, ref shapeRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func (g *spatialHash) cellRange(min, max mgl32.Vec3) ([3]int, [3]int) {
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		lo[i] = int(math.Floor(float64(min[i] / g.cellSize)))
		hi[i] = int(math.Floor(float64(max[i] / g.cellSize)))
	}
	return lo, hi
}

func aabbOverlap(aMin, aMax, bMin, bMax mgl32.Vec3) bool {
	return aMin.X() <= bMax.X() && aMax.X() >= bMin.X() &&
		aMin.Y() <= bMax.Y() && aMax.Y() >= bMin.Y() &&
		aMin.Z() <= bMax.Z() && aMax.Z() >= bMin.Z()
}

func (w *World) rebuildStaticGrid() {
	w.staticGrid.Clear()
	for h, b := range w.bodies {
		if !b.static {
			continue
		}
		for i := range b.shapes {
			s := &b.shapes[i]
			w.staticGrid.Insert(shapeRef{body: h, shape: i}, s.aabbMin, s.aabbMax)
		}
	}
	w.staticDirty = false
}

func (w *World) rebuildDynamicGrid() {
	w.dynGrid.Clear()
	for h, b := range w.bodies {
		if b.static {
			continue
		}
		for i := range b.shapes {
			s := &b.shapes[i]
			w.dynGrid.Insert(shapeRef{body: h, shape: i}, s.aabbMin, s.aabbMax)
		}
	}
}
