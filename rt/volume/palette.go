package volume

import "github.com/go-gl/mathgl/mgl32"

type BlockID uint8

const (
	Air BlockID = iota
	Stone
	Dirt
	Grass
	Slab
	Foliage
	// Marker is solid but has no height, like a pressure plate.
	Marker
)

// Block describes how one block id collides. Min and Max bound the collision box inside
// the unit voxel.
type Block struct {
	Name  string
	Solid bool
	Min   mgl32.Vec3
	Max   mgl32.Vec3
}

var fullCube = Block{Solid: true, Max: mgl32.Vec3{1, 1, 1}}

// Collider returns the collision box centre relative to the voxel corner and its half
// extents.
func (b Block) Collider() (center, half mgl32.Vec3) {
	return b.Min.Add(b.Max).Mul(0.5), b.Max.Sub(b.Min).Mul(0.5)
}

type Palette struct {
	blocks [256]Block
}

func DefaultPalette() *Palette {
	p := &Palette{}
	p.Define(Air, Block{Name: "air"})
	p.Define(Stone, named(fullCube, "stone"))
	p.Define(Dirt, named(fullCube, "dirt"))
	p.Define(Grass, named(fullCube, "grass"))
	p.Define(Slab, Block{Name: "slab", Solid: true, Max: mgl32.Vec3{1, 0.5, 1}})
	p.Define(Foliage, Block{Name: "foliage"})
	p.Define(Marker, Block{Name: "marker", Solid: true, Max: mgl32.Vec3{1, 0, 1}})
	for id := int(Marker) + 1; id < 256; id++ {
		p.Define(BlockID(id), named(fullCube, "solid"))
	}
	return p
}

func named(b Block, name string) Block {
	b.Name = name
	return b
}

func (p *Palette) Define(id BlockID, b Block) {
	p.blocks[id] = b
}

func (p *Palette) Block(id BlockID) Block {
	return p.blocks[id]
}

func (p *Palette) Solid(id BlockID) bool {
	return p.blocks[id].Solid
}

// Occludes reports whether id hides the faces of its neighbours. Solid blocks with a
// zero-volume collider do not.
func (p *Palette) Occludes(id BlockID) bool {
	b := p.blocks[id]
	if !b.Solid {
		return false
	}
	_, half := b.Collider()
	return half.X() > 0 && half.Y() > 0 && half.Z() > 0
}
