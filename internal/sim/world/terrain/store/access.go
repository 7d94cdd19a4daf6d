package store

import (
	"fmt"
	"sort"

	"timbercraft.ai/internal/sim/world/logic/mathx"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

const air uint16 = 0

func (s *ChunkStore) InBounds(y int) bool {
	return y >= s.MinY && y < s.MinY+s.Height
}

func (s *ChunkStore) locate(x, y, z int) (ChunkKey, int, int, int) {
	k := ChunkKey{CX: mathx.FloorDiv(x, ChunkEdge), CZ: mathx.FloorDiv(z, ChunkEdge)}
	return k, mathx.Mod(x, ChunkEdge), y - s.MinY, mathx.Mod(z, ChunkEdge)
}

func (s *ChunkStore) LoadedChunkKeys() []ChunkKey {
	s.mu.RLock()
	keys := make([]ChunkKey, 0, len(s.chunks))
	for k := range s.chunks {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

func (s *ChunkStore) GetBlock(x, y, z int) uint16 {
	b, _ := s.get(x, y, z)
	return b
}

func (s *ChunkStore) get(x, y, z int) (uint16, uint8) {
	if !s.InBounds(y) {
		return air, 0
	}
	k, lx, ly, lz := s.locate(x, y, z)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch := s.chunks[k]
	if ch == nil {
		return air, 0
	}
	i := ch.index(lx, ly, lz)
	return ch.Blocks[i], ch.Axes[i]
}

// SetBlock writes a block with the given log axis. Writes outside the vertical bounds are dropped.
func (s *ChunkStore) SetBlock(x, y, z int, b uint16, axis treescan.Axis) {
	if !s.InBounds(y) {
		return
	}
	k, lx, ly, lz := s.locate(x, y, z)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunks[k]
	if ch == nil {
		if b == air {
			return
		}
		ch = newChunk(k.CX, k.CZ, s.Height)
		s.chunks[k] = ch
	}
	ch.Set(lx, ly, lz, b, uint8(axis))
}

// Place sets a block by catalog name.
func (s *ChunkStore) Place(c treescan.Coord, name string, axis treescan.Axis) error {
	id, ok := s.Blocks.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown block %q", name)
	}
	if !s.InBounds(c.Y) {
		return fmt.Errorf("y=%d outside [%d,%d)", c.Y, s.MinY, s.MinY+s.Height)
	}
	if s.Blocks.Voxel(id).Kind != treescan.KindLog {
		axis = treescan.AxisNone
	} else if axis == treescan.AxisNone {
		axis = treescan.AxisY
	}
	s.SetBlock(c.X, c.Y, c.Z, id, axis)
	return nil
}

// Clear replaces the block with air and returns what was there.
func (s *ChunkStore) Clear(c treescan.Coord) uint16 {
	if !s.InBounds(c.Y) {
		return air
	}
	k, lx, ly, lz := s.locate(c.X, c.Y, c.Z)
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.chunks[k]
	if ch == nil {
		return air
	}
	prev := ch.Get(lx, ly, lz)
	ch.Set(lx, ly, lz, air, 0)
	return prev
}

func (s *ChunkStore) NameAt(c treescan.Coord) string {
	return s.Blocks.Name(s.GetBlock(c.X, c.Y, c.Z))
}

func (s *ChunkStore) VoxelAt(c treescan.Coord) treescan.Voxel {
	return s.Blocks.Voxel(s.GetBlock(c.X, c.Y, c.Z))
}

func (s *ChunkStore) AxisAt(c treescan.Coord) treescan.Axis {
	_, a := s.get(c.X, c.Y, c.Z)
	return treescan.Axis(a)
}

// Digest folds every loaded chunk digest in key order.
func (s *ChunkStore) Digest() [32]byte {
	keys := s.LoadedChunkKeys()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [32]byte
	for _, k := range keys {
		d := s.chunks[k].Digest()
		for i := range out {
			out[i] = out[i]*31 + d[i]
		}
	}
	return out
}
