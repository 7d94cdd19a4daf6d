package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"timbercraft.ai/internal/persistence/snapshot"
	"timbercraft.ai/internal/sim/world/feature/governance/claims"
	"timbercraft.ai/internal/sim/world/logic/treescan"
	"timbercraft.ai/internal/sim/world/terrain/gen"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

const forestGroundY = 64

func seedForest(grid *store.ChunkStore, seed int64, radius int) ([]treescan.Coord, error) {
	area := gen.Area{MinX: -radius, MinZ: -radius, MaxX: radius, MaxZ: radius, GroundY: forestGroundY}
	return gen.PlantForest(grid, seed, area, gen.ForestParams{
		DensityPermille: 600,
		Ground:          "GRASS_BLOCK",
	})
}

// loadWorld fills grid and reg from the snapshot at path and returns its seed.
func loadWorld(path, worldID string, grid *store.ChunkStore, reg *claims.Registry) (int64, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return 0, err
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != worldID {
		return 0, fmt.Errorf("snapshot world id mismatch: flag=%s snap=%s", worldID, snap.Header.WorldID)
	}
	if snap.MinY != grid.MinY || snap.Height != grid.Height {
		return 0, fmt.Errorf("snapshot bounds min_y=%d height=%d do not match world min_y=%d height=%d", snap.MinY, snap.Height, grid.MinY, grid.Height)
	}
	if err := grid.ImportChunks(snap.Palette, snap.Chunks); err != nil {
		return 0, err
	}
	if err := reg.Import(snap.Claims); err != nil {
		return 0, err
	}
	return snap.Seed, nil
}

func saveWorld(worldDir, worldID string, seed int64, grid *store.ChunkStore, reg *claims.Registry, palette []string) (string, error) {
	now := time.Now().UnixMilli()
	snap := snapshot.GridSnapshot{
		Header:  snapshot.Header{Version: snapshot.Version, WorldID: worldID, SavedMs: now},
		Seed:    seed,
		MinY:    grid.MinY,
		Height:  grid.Height,
		Palette: append([]string(nil), palette...),
		Chunks:  grid.ExportChunks(),
		Claims:  reg.Export(),
	}
	path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", now))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", err
	}
	return path, nil
}

// latestSnapshot returns the newest <saved_ms>.snap.zst under worldDir/snapshots.
func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestMs int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		ms, err := strconv.ParseInt(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || ms > bestMs {
			bestMs = ms
			best = filepath.Join(dir, name)
		}
	}
	return best
}
