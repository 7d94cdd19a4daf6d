package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	persistlog "timbercraft.ai/internal/persistence/log"
	"timbercraft.ai/internal/persistence/snapshot"
	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/logic/treescan"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	configDir := fs.String("configs", "./configs", "config directory (block catalog)")
	worldID := fs.String("world", "", "world id")
	snapPath := fs.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (required)")
	since := fs.Duration("since", 24*time.Hour, "rollback changes newer than this")
	actor := fs.String("actor", "", "only changes by this actor (optional)")
	reason := fs.String("reason", "", "only changes with this audit reason, e.g. TIMBER (optional)")
	outPath := fs.String("out", "", "output snapshot path (optional)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*worldID) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	if strings.TrimSpace(*aabb) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb")
		os.Exit(2)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}

	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}

	f := auditFilter{
		sinceMs: snap.Header.SavedMs - since.Milliseconds(),
		toMs:    snap.Header.SavedMs,
		min:     min,
		max:     max,
		actor:   strings.TrimSpace(*actor),
		reason:  strings.TrimSpace(*reason),
	}
	recs, err := readAudit(worldDir, f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching audit entries; nothing to rollback")
		return
	}

	grid := store.NewChunkStore(&cats.Blocks, snap.MinY, snap.Height)
	if err := grid.ImportChunks(snap.Palette, snap.Chunks); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}
	applied, skipped := applyRollback(grid, recs)

	now := time.Now().UnixMilli()
	snap.Header.SavedMs = now
	snap.Palette = append([]string(nil), cats.Blocks.Palette...)
	snap.Chunks = grid.ExportChunks()

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", now))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s aabb=%s since=%s entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), *aabb, *since, len(recs), applied, skipped, *outPath)
}

type auditFilter struct {
	sinceMs, toMs int64
	min, max      [3]int
	actor, reason string
}

func (f auditFilter) match(e audit.Entry) bool {
	if e.Action != audit.ActionBreak && e.Action != audit.ActionPlace {
		return false
	}
	if e.AtMs < f.sinceMs || e.AtMs > f.toMs {
		return false
	}
	if f.actor != "" && e.Actor != f.actor {
		return false
	}
	if f.reason != "" && e.Reason != f.reason {
		return false
	}
	return withinAABB(e.Pos, f.min, f.max)
}

type auditRec struct {
	Seq   uint64
	Entry audit.Entry
}

// readAudit returns the matching entries newest first.
func readAudit(worldDir string, f auditFilter) ([]auditRec, error) {
	files, err := persistlog.AuditFiles(worldDir)
	if err != nil {
		return nil, err
	}
	out := make([]auditRec, 0, 1024)
	var seq uint64
	for _, path := range files {
		err := persistlog.ReadAuditFile(path, func(e audit.Entry) error {
			seq++
			if f.match(e) {
				out = append(out, auditRec{Seq: seq, Entry: e})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Entry.AtMs != out[j].Entry.AtMs {
			return out[i].Entry.AtMs > out[j].Entry.AtMs
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

// applyRollback undoes recs in order: breaks are restored, placements cleared. A record whose
// position no longer holds what it recorded is skipped.
func applyRollback(grid *store.ChunkStore, recs []auditRec) (applied, skipped int) {
	for _, r := range recs {
		c := r.Entry.Coord()
		if !grid.InBounds(c.Y) {
			skipped++
			continue
		}
		switch r.Entry.Action {
		case audit.ActionBreak:
			if grid.VoxelAt(c).Kind != treescan.KindAir {
				skipped++
				continue
			}
			if err := grid.Place(c, r.Entry.Block, treescan.AxisNone); err != nil {
				skipped++
				continue
			}
		case audit.ActionPlace:
			if grid.NameAt(c) != r.Entry.Block {
				skipped++
				continue
			}
			grid.Clear(c)
		}
		applied++
	}
	return applied, skipped
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			min[i], max[i] = a[i], b[i]
		} else {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}
