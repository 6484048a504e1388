package volume

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func voxChunk(buf *bytes.Buffer, id string, data []byte) {
	buf.WriteString(id)
	binary.Write(buf, binary.LittleEndian, int32(len(data)))
	binary.Write(buf, binary.LittleEndian, int32(0))
	buf.Write(data)
}

func buildVox(voxels [][4]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("VOX ")
	binary.Write(&buf, binary.LittleEndian, int32(150))
	voxChunk(&buf, "MAIN", nil)

	size := make([]byte, 12)
	binary.LittleEndian.PutUint32(size[0:], 4)
	binary.LittleEndian.PutUint32(size[4:], 4)
	binary.LittleEndian.PutUint32(size[8:], 4)
	voxChunk(&buf, "SIZE", size)

	xyzi := make([]byte, 4+4*len(voxels))
	binary.LittleEndian.PutUint32(xyzi, uint32(len(voxels)))
	for i, v := range voxels {
		copy(xyzi[4+i*4:], v[:])
	}
	voxChunk(&buf, "XYZI", xyzi)
	return buf.Bytes()
}

func TestReadVox(t *testing.T) {
	data := buildVox([][4]byte{{0, 0, 0, 1}, {1, 2, 3, 7}})
	vf, err := ReadVox(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadVox: %v", err)
	}
	if vf.Version != 150 || len(vf.Models) != 1 {
		t.Fatalf("unexpected header: version=%d models=%d", vf.Version, len(vf.Models))
	}
	m := vf.Models[0]
	if m.SizeX != 4 || len(m.Voxels) != 2 || m.Voxels[1].ColorIndex != 7 {
		t.Errorf("unexpected model %+v", m)
	}
}

func TestReadVoxRejectsGarbage(t *testing.T) {
	_, err := ReadVox(bytes.NewReader([]byte("NOPE\x00\x00\x00\x00")))
	if !errors.Is(err, ErrNotVox) {
		t.Errorf("expected ErrNotVox, got %v", err)
	}
}

func TestStampSwapsYZ(t *testing.T) {
	data := buildVox([][4]byte{{1, 2, 3, 1}, {0, 0, 0, 9}})
	vf, err := ReadVox(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	w := NewWorld(0, 32, nil)
	skipNine := func(idx byte) BlockID {
		if idx == 9 {
			return Air
		}
		return Dirt
	}
	n := Stamp(w, vf.Models[0], [3]int{10, 5, 10}, skipNine)
	if n != 1 {
		t.Fatalf("expected 1 voxel placed, got %d", n)
	}
	if w.Voxel(11, 8, 12) != Dirt {
		t.Error("model (1,2,3) should land at world (11,8,12)")
	}
}
