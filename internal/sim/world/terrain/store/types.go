package store

import (
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"timbercraft.ai/internal/sim/catalogs"
)

const ChunkEdge = 16

type ChunkKey struct {
	CX int
	CZ int
}

// Chunk is a 16x16 column of Height blocks; Axes runs parallel to Blocks.
type Chunk struct {
	CX, CZ int
	Height int
	Blocks []uint16
	Axes   []uint8

	dirty bool
	hash  [32]byte
}

func newChunk(cx, cz, height int) *Chunk {
	n := ChunkEdge * ChunkEdge * height
	return &Chunk{
		CX:     cx,
		CZ:     cz,
		Height: height,
		Blocks: make([]uint16, n),
		Axes:   make([]uint8, n),
		dirty:  true,
	}
}

func (c *Chunk) index(lx, ly, lz int) int {
	return lx + lz*ChunkEdge + ly*ChunkEdge*ChunkEdge
}

func (c *Chunk) Get(lx, ly, lz int) uint16 {
	return c.Blocks[c.index(lx, ly, lz)]
}

func (c *Chunk) Set(lx, ly, lz int, b uint16, axis uint8) {
	i := c.index(lx, ly, lz)
	if c.Blocks[i] == b && c.Axes[i] == axis {
		return
	}
	c.Blocks[i] = b
	c.Axes[i] = axis
	c.dirty = true
}

func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [3]byte
		for i, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:2], v)
			tmp[2] = c.Axes[i]
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// ChunkStore is the voxel grid. Chunks are created on first write; unwritten space reads as air.
// The mutex only guards memory; callers serialize logical access per region.
type ChunkStore struct {
	MinY   int
	Height int
	Blocks *catalogs.BlockCatalog

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk
}

func NewChunkStore(blocks *catalogs.BlockCatalog, minY, height int) *ChunkStore {
	if height <= 0 {
		height = 256
	}
	return &ChunkStore{
		MinY:   minY,
		Height: height,
		Blocks: blocks,
		chunks: map[ChunkKey]*Chunk{},
	}
}
