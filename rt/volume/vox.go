package volume

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const voxMagic = "VOX "

var ErrNotVox = errors.New("not a valid VOX file")

type VoxVoxel struct {
	X, Y, Z, ColorIndex byte
}

type VoxModel struct {
	SizeX, SizeY, SizeZ uint32
	Voxels              []VoxVoxel
}

type VoxPalette [256][4]byte

// VoxFile is the subset of a MagicaVoxel file that terrain uses: model sizes, voxels
// and the colour palette.
type VoxFile struct {
	Version int
	Models  []VoxModel
	Palette VoxPalette
}

func LoadVox(path string) (*VoxFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadVox(bufio.NewReader(f))
}

func ReadVox(r io.Reader) (*VoxFile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != voxMagic {
		return nil, ErrNotVox
	}

	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	vf := &VoxFile{Version: int(version)}
	for i := range vf.Palette {
		vf.Palette[i] = [4]byte{255, 255, 255, 255}
	}

	for {
		var id [4]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		var size, children int32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &children); err != nil {
			return nil, err
		}
		if size < 0 {
			return nil, fmt.Errorf("vox: negative %s chunk size", id[:])
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}

		switch string(id[:]) {
		case "SIZE":
			if len(data) < 12 {
				return nil, errors.New("vox: SIZE chunk too small")
			}
			vf.Models = append(vf.Models, VoxModel{
				SizeX: binary.LittleEndian.Uint32(data[0:4]),
				SizeY: binary.LittleEndian.Uint32(data[4:8]),
				SizeZ: binary.LittleEndian.Uint32(data[8:12]),
			})
		case "XYZI":
			if len(vf.Models) == 0 {
				return nil, errors.New("vox: XYZI before SIZE")
			}
			if len(data) < 4 {
				return nil, errors.New("vox: XYZI chunk too small")
			}
			n := int(binary.LittleEndian.Uint32(data[:4]))
			if 4+n*4 > len(data) {
				return nil, errors.New("vox: XYZI chunk data overflow")
			}
			m := &vf.Models[len(vf.Models)-1]
			m.Voxels = make([]VoxVoxel, n)
			for i := 0; i < n; i++ {
				o := 4 + i*4
				m.Voxels[i] = VoxVoxel{X: data[o], Y: data[o+1], Z: data[o+2], ColorIndex: data[o+3]}
			}
		case "RGBA":
			for i := 0; i < 255 && i*4+3 < len(data); i++ {
				copy(vf.Palette[i+1][:], data[i*4:i*4+4])
			}
		}
	}
	return vf, nil
}

// Stamp writes model into w with its minimum corner at origin. MagicaVoxel is Z-up, so
// the model's Z becomes world Y. mapColor chooses the block for each palette index;
// nil stamps everything as Stone.
func Stamp(w *World, m VoxModel, origin [3]int, mapColor func(index byte) BlockID) int {
	placed := 0
	for _, v := range m.Voxels {
		id := Stone
		if mapColor != nil {
			id = mapColor(v.ColorIndex)
		}
		if id == Air {
			continue
		}
		w.SetVoxel(origin[0]+int(v.X), origin[1]+int(v.Z), origin[2]+int(v.Y), id)
		placed++
	}
	return placed
}
