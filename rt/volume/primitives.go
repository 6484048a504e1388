package volume

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Fill sets every voxel in the inclusive box [min, max] to id. Air carves.
func Fill(w *World, min, max [3]int, id BlockID) {
	for x := min[0]; x <= max[0]; x++ {
		for y := min[1]; y <= max[1]; y++ {
			for z := min[2]; z <= max[2]; z++ {
				w.SetVoxel(x, y, z, id)
			}
		}
	}
}

// Sphere sets every voxel whose centre lies within radius of center.
func Sphere(w *World, center mgl32.Vec3, radius float32, id BlockID) {
	r2 := radius * radius
	lo := [3]int{
		int(math.Floor(float64(center.X() - radius))),
		int(math.Floor(float64(center.Y() - radius))),
		int(math.Floor(float64(center.Z() - radius))),
	}
	hi := [3]int{
		int(math.Ceil(float64(center.X() + radius))),
		int(math.Ceil(float64(center.Y() + radius))),
		int(math.Ceil(float64(center.Z() + radius))),
	}

	for x := lo[0]; x <= hi[0]; x++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for z := lo[2]; z <= hi[2]; z++ {
				dx := float32(x) + 0.5 - center.X()
				dy := float32(y) + 0.5 - center.Y()
				dz := float32(z) + 0.5 - center.Z()
				if dx*dx+dy*dy+dz*dz <= r2 {
					w.SetVoxel(x, y, z, id)
				}
			}
		}
	}
}

// GenerateFlat generates chunk c as solid ground from the bottom of the world up to and
// including top, capped with surface.
func GenerateFlat(w *World, c ChunkCoord, top int, fill, surface BlockID) {
	x0, z0 := c.Origin()
	minY, _ := w.Height()
	if top >= minY {
		Fill(w, [3]int{x0, minY, z0}, [3]int{x0 + ChunkSize - 1, top - 1, z0 + ChunkSize - 1}, fill)
		Fill(w, [3]int{x0, top, z0}, [3]int{x0 + ChunkSize - 1, top, z0 + ChunkSize - 1}, surface)
	}
	w.MarkGenerated(c)
}
