package volume

import (
	"fmt"
	"math"
)

// ChunkSize is the horizontal edge of a chunk column in voxels.
const ChunkSize = 16

// ChunkCoord names a full-height column of ChunkSize×ChunkSize voxels.
type ChunkCoord struct {
	X, Z int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Z)
}

// ChunkOf returns the chunk containing world position (x, z).
func ChunkOf(x, z float32) ChunkCoord {
	return ChunkCoord{
		X: int32(math.Floor(float64(x) / ChunkSize)),
		Z: int32(math.Floor(float64(z) / ChunkSize)),
	}
}

// ChunkOfVoxel returns the chunk containing voxel (x, z).
func ChunkOfVoxel(x, z int) ChunkCoord {
	return ChunkCoord{X: int32(floorDiv(x, ChunkSize)), Z: int32(floorDiv(z, ChunkSize))}
}

// Origin is the world voxel coordinate of the chunk's minimum corner.
func (c ChunkCoord) Origin() (x, z int) {
	return int(c.X) * ChunkSize, int(c.Z) * ChunkSize
}

// Neighborhood returns the (2r+1)² chunks centred on c, ordered by X then Z.
func (c ChunkCoord) Neighborhood(radius int) []ChunkCoord {
	if radius < 0 {
		radius = 0
	}
	out := make([]ChunkCoord, 0, (2*radius+1)*(2*radius+1))
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			out = append(out, ChunkCoord{X: c.X + int32(dx), Z: c.Z + int32(dz)})
		}
	}
	return out
}

// Less orders chunks by X then Z.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Z < o.Z
}
