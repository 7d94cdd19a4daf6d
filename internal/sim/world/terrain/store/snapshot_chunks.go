package store

import (
	"fmt"

	snapv1 "timbercraft.ai/internal/persistence/snapshot"
)

// ExportChunks copies every loaded chunk into snapshot form.
func (s *ChunkStore) ExportChunks() []snapv1.ChunkV1 {
	keys := s.LoadedChunkKeys()
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := s.chunks[k]
		if ch == nil {
			continue
		}
		blocks := make([]uint16, len(ch.Blocks))
		copy(blocks, ch.Blocks)
		axes := make([]uint8, len(ch.Axes))
		copy(axes, ch.Axes)
		out = append(out, snapv1.ChunkV1{
			CX:     k.CX,
			CZ:     k.CZ,
			Height: ch.Height,
			Blocks: blocks,
			Axes:   axes,
		})
	}
	return out
}

// ImportChunks loads snapshot chunks, remapping ids through the saved palette. Blocks the current
// catalog no longer knows become air.
func (s *ChunkStore) ImportChunks(palette []string, chunks []snapv1.ChunkV1) error {
	remap := make([]uint16, len(palette))
	for i, name := range palette {
		if id, ok := s.Blocks.Lookup(name); ok {
			remap[i] = id
		}
	}
	n := ChunkEdge * ChunkEdge * s.Height
	loaded := make(map[ChunkKey]*Chunk, len(chunks))
	for _, ch := range chunks {
		if ch.Height != s.Height {
			return fmt.Errorf("snapshot chunk height mismatch: got %d want %d", ch.Height, s.Height)
		}
		if len(ch.Blocks) != n {
			return fmt.Errorf("snapshot chunk blocks length mismatch: got %d want %d", len(ch.Blocks), n)
		}
		if len(ch.Axes) != 0 && len(ch.Axes) != n {
			return fmt.Errorf("snapshot chunk axes length mismatch: got %d want %d", len(ch.Axes), n)
		}
		c := newChunk(ch.CX, ch.CZ, ch.Height)
		for i, b := range ch.Blocks {
			if int(b) >= len(remap) {
				return fmt.Errorf("snapshot chunk (%d,%d): block id %d outside palette", ch.CX, ch.CZ, b)
			}
			c.Blocks[i] = remap[b]
		}
		copy(c.Axes, ch.Axes)
		_ = c.Digest()
		loaded[ChunkKey{CX: ch.CX, CZ: ch.CZ}] = c
	}
	s.mu.Lock()
	for k, c := range loaded {
		s.chunks[k] = c
	}
	s.mu.Unlock()
	return nil
}
