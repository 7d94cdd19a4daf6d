package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeVoxels run-length encodes a chunk column-major voxel array into base64 varint triples
// (block_id, axis, run_len). axes may be nil when every voxel has no axis.
func EncodeVoxels(blocks []uint16, axes []uint8) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	axisAt := func(i int) uint8 {
		if i < len(axes) {
			return axes[i]
		}
		return 0
	}

	for i := 0; i < len(blocks); {
		b, a := blocks[i], axisAt(i)
		run := 1
		for j := i + 1; j < len(blocks) && blocks[j] == b && axisAt(j) == a; j++ {
			run++
		}
		put(uint64(b))
		put(uint64(a))
		put(uint64(run))
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeVoxels reverses EncodeVoxels. want is the expected voxel count; a mismatch is an error.
func DecodeVoxels(s string, want int) ([]uint16, []uint8, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil, err
	}
	blocks := make([]uint16, 0, want)
	axes := make([]uint8, 0, want)
	next := func(i int) (uint64, int, error) {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return 0, 0, fmt.Errorf("bad varint at %d", i)
		}
		return v, i + n, nil
	}
	for i := 0; i < len(raw); {
		var b, a, run uint64
		if b, i, err = next(i); err != nil {
			return nil, nil, err
		}
		if a, i, err = next(i); err != nil {
			return nil, nil, err
		}
		if run, i, err = next(i); err != nil {
			return nil, nil, err
		}
		if b > 0xFFFF || a > 0xFF {
			return nil, nil, fmt.Errorf("voxel out of range: block=%d axis=%d", b, a)
		}
		if len(blocks)+int(run) > want {
			return nil, nil, fmt.Errorf("runs exceed %d voxels", want)
		}
		for k := uint64(0); k < run; k++ {
			blocks = append(blocks, uint16(b))
			axes = append(axes, uint8(a))
		}
	}
	if len(blocks) != want {
		return nil, nil, fmt.Errorf("decoded %d voxels, want %d", len(blocks), want)
	}
	return blocks, axes, nil
}
