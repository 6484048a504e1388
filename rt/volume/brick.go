package volume

import "math/bits"

const (
	BrickSize    = 8
	MicroSize    = 2
	SectorBricks = 4
	SectorSize   = SectorBricks * BrickSize // 32
)

// Brick is an 8³ block of voxel ids. Each bit of OccupancyMask64 covers a 2³ micro cell.
type Brick struct {
	OccupancyMask64 uint64
	Payload         [BrickSize][BrickSize][BrickSize]BlockID
}

func (b *Brick) SetVoxel(bx, by, bz int, id BlockID) {
	b.Payload[bx][by][bz] = id

	mx, my, mz := bx/MicroSize, by/MicroSize, bz/MicroSize
	bit := uint64(1) << (mx + my*4 + mz*16)
	if id != Air {
		b.OccupancyMask64 |= bit
		return
	}

	x0, y0, z0 := mx*MicroSize, my*MicroSize, mz*MicroSize
	for x := 0; x < MicroSize; x++ {
		for y := 0; y < MicroSize; y++ {
			for z := 0; z < MicroSize; z++ {
				if b.Payload[x0+x][y0+y][z0+z] != Air {
					return
				}
			}
		}
	}
	b.OccupancyMask64 &^= bit
}

func (b *Brick) IsEmpty() bool {
	return b.OccupancyMask64 == 0
}

// Sector is a 4³ grid of bricks stored densely behind a presence mask.
type Sector struct {
	Coords       [3]int
	BrickMask64  uint64
	PackedBricks []*Brick
}

func NewSector(sx, sy, sz int) *Sector {
	return &Sector{Coords: [3]int{sx, sy, sz}}
}

func (s *Sector) packedIndex(flat int) int {
	return bits.OnesCount64(s.BrickMask64 & ((uint64(1) << flat) - 1))
}

func (s *Sector) GetBrick(bx, by, bz int) *Brick {
	flat := bx + by*4 + bz*16
	if s.BrickMask64&(1<<flat) == 0 {
		return nil
	}
	return s.PackedBricks[s.packedIndex(flat)]
}

func (s *Sector) GetOrCreateBrick(bx, by, bz int) *Brick {
	flat := bx + by*4 + bz*16
	idx := s.packedIndex(flat)
	if s.BrickMask64&(1<<flat) != 0 {
		return s.PackedBricks[idx]
	}

	b := &Brick{}
	s.PackedBricks = append(s.PackedBricks, nil)
	copy(s.PackedBricks[idx+1:], s.PackedBricks[idx:])
	s.PackedBricks[idx] = b
	s.BrickMask64 |= 1 << flat
	return b
}

func (s *Sector) RemoveBrickIfEmpty(bx, by, bz int) {
	flat := bx + by*4 + bz*16
	if s.BrickMask64&(1<<flat) == 0 {
		return
	}
	idx := s.packedIndex(flat)
	if !s.PackedBricks[idx].IsEmpty() {
		return
	}
	s.PackedBricks = append(s.PackedBricks[:idx], s.PackedBricks[idx+1:]...)
	s.BrickMask64 &^= 1 << flat
}

func (s *Sector) IsEmpty() bool {
	return s.BrickMask64 == 0
}

// split maps a world voxel coordinate to sector, brick and in-brick coordinates.
func split(g int) (sector, brick, voxel int) {
	sector = floorDiv(g, SectorSize)
	local := g - sector*SectorSize
	return sector, local / BrickSize, local % BrickSize
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
