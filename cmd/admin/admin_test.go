package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"timbercraft.ai/internal/persistence/indexdb"
	persistlog "timbercraft.ai/internal/persistence/log"
	"timbercraft.ai/internal/persistence/snapshot"
	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/encoding"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/logic/treescan"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

func TestParseAABBOrdersCorners(t *testing.T) {
	min, max, err := parseAABB("5,70,-2:1,60,3")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	if min != [3]int{1, 60, -2} || max != [3]int{5, 70, 3} {
		t.Fatalf("unexpected box: %v %v", min, max)
	}
	for _, bad := range []string{"", "1,2,3", "1,2:3,4,5", "a,b,c:1,2,3"} {
		if _, _, err := parseAABB(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if !withinAABB([3]int{1, 60, 3}, min, max) || withinAABB([3]int{0, 60, 0}, min, max) {
		t.Fatalf("withinAABB boundaries wrong")
	}
}

func TestSummarizeCountsNonAir(t *testing.T) {
	snap := snapshot.GridSnapshot{
		Palette: []string{"AIR", "OAK_LOG", "OAK_LEAVES"},
		Chunks: []snapshot.ChunkV1{
			{Blocks: []uint16{0, 1, 2, 2, 0, 9}},
			{Blocks: []uint16{2, 1}},
		},
	}
	got := summarize(snap)
	if got.total != 5 {
		t.Fatalf("total: got %d want 5", got.total)
	}
	want := []blockCount{{name: "OAK_LEAVES", count: 3}, {name: "OAK_LOG", count: 2}}
	if diff := cmp.Diff(want, got.byBlock, cmp.AllowUnexported(blockCount{})); diff != "" {
		t.Fatalf("byBlock mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatRow(t *testing.T) {
	now := time.UnixMilli(10_000_000)
	r := indexdb.Row{Entry: audit.Entry{
		AtMs:   now.Add(-2 * time.Hour).UnixMilli(),
		Actor:  "alice",
		Action: audit.ActionBreak,
		Pos:    [3]int{1, 65, -3},
		Block:  "OAK_LOG",
		Reason: "TIMBER",
	}}
	got := formatRow(r, now)
	for _, part := range []string{"2 hours ago", "BREAK", "OAK_LOG", "1,65,-3", "alice", "(TIMBER)"} {
		if !strings.Contains(got, part) {
			t.Fatalf("%q missing %q", got, part)
		}
	}
}

func TestRollbackRestoresTimberBreaks(t *testing.T) {
	worldDir := t.TempDir()
	cats := catalogs.Default()
	grid := store.NewChunkStore(&cats.Blocks, 0, 32)

	// A felled column: logs cleared by the chop, one block placed afterwards elsewhere.
	logs := []treescan.Coord{{X: 0, Y: 1, Z: 0}, {X: 0, Y: 2, Z: 0}, {X: 0, Y: 3, Z: 0}}
	placed := treescan.Coord{X: 4, Y: 1, Z: 4}
	outside := treescan.Coord{X: 30, Y: 1, Z: 30}
	if err := grid.Place(placed, "OAK_PLANKS", treescan.AxisNone); err != nil {
		t.Fatalf("place: %v", err)
	}

	al := persistlog.NewAuditLogger(worldDir)
	for _, c := range logs {
		if err := al.WriteAudit(audit.New("alice", audit.ActionBreak, c, "OAK_LOG", "TIMBER")); err != nil {
			t.Fatalf("write audit: %v", err)
		}
	}
	for _, e := range []audit.Entry{
		audit.New("bob", audit.ActionPlace, placed, "OAK_PLANKS", ""),
		audit.New("alice", audit.ActionBreak, outside, "OAK_LOG", "TIMBER"),
	} {
		if err := al.WriteAudit(e); err != nil {
			t.Fatalf("write audit: %v", err)
		}
	}
	if err := al.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	now := time.Now().UnixMilli()
	f := auditFilter{sinceMs: now - time.Hour.Milliseconds(), toMs: now + time.Minute.Milliseconds(), min: [3]int{-5, 0, -5}, max: [3]int{5, 10, 5}}
	recs, err := readAudit(worldDir, f)
	if err != nil {
		t.Fatalf("readAudit: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("expected 4 entries inside the box, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Entry.AtMs < recs[i].Entry.AtMs {
			t.Fatalf("entries not newest first")
		}
	}

	applied, skipped := applyRollback(grid, recs)
	if applied != 4 || skipped != 0 {
		t.Fatalf("applied=%d skipped=%d", applied, skipped)
	}
	for _, c := range logs {
		if grid.NameAt(c) != "OAK_LOG" || grid.AxisAt(c) != treescan.AxisY {
			t.Fatalf("log at %v not restored: %s", c, grid.NameAt(c))
		}
	}
	if grid.VoxelAt(placed).Kind != treescan.KindAir {
		t.Fatalf("placed block should be cleared")
	}

	// Running the same rollback again finds every position already reverted.
	applied, skipped = applyRollback(grid, recs)
	if applied != 0 || skipped != 4 {
		t.Fatalf("second pass applied=%d skipped=%d", applied, skipped)
	}
}

func TestAuditFilterByActorAndReason(t *testing.T) {
	f := auditFilter{toMs: 100, max: [3]int{10, 10, 10}, actor: "alice", reason: "TIMBER"}
	base := audit.Entry{AtMs: 50, Actor: "alice", Action: audit.ActionBreak, Pos: [3]int{1, 1, 1}, Reason: "TIMBER"}
	if !f.match(base) {
		t.Fatalf("base entry should match")
	}
	other := base
	other.Actor = "bob"
	if f.match(other) {
		t.Fatalf("actor filter ignored")
	}
	other = base
	other.Reason = ""
	if f.match(other) {
		t.Fatalf("reason filter ignored")
	}
	other = base
	other.AtMs = 101
	if f.match(other) {
		t.Fatalf("window filter ignored")
	}
}

func TestDumpChunkEncodesVoxels(t *testing.T) {
	snap := snapshot.GridSnapshot{
		MinY:    -16,
		Palette: []string{"AIR", "OAK_LOG"},
		Chunks: []snapshot.ChunkV1{
			{CX: 0, CZ: 0, Height: 4, Blocks: []uint16{0, 0, 0, 0}},
			{CX: 1, CZ: -2, Height: 4, Blocks: []uint16{0, 1, 1, 0}, Axes: []uint8{0, 2, 2, 0}},
		},
	}
	d, ok := dumpChunk(snap, 1, -2)
	if !ok {
		t.Fatalf("chunk not found")
	}
	blocks, axes, err := encoding.DecodeVoxels(d.VoxelsRLE, 4)
	if err != nil {
		t.Fatalf("DecodeVoxels: %v", err)
	}
	if diff := cmp.Diff(snap.Chunks[1].Blocks, blocks); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	if axes[1] != 2 || d.MinY != -16 {
		t.Fatalf("unexpected dump: %+v axes=%v", d, axes)
	}
	if _, ok := dumpChunk(snap, 5, 5); ok {
		t.Fatalf("missing chunk should not be found")
	}
	if _, _, err := parseChunkKey("1"); err == nil {
		t.Fatalf("expected parse error")
	}
}
