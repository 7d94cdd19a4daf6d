package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"timbercraft.ai/internal/persistence/indexdb"
	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/region"
	"timbercraft.ai/internal/sim/world/feature/governance/claims"
	"timbercraft.ai/internal/sim/world/logic/treescan"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

func TestLatestSnapshotPicksNewest(t *testing.T) {
	dir := t.TempDir()
	snaps := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snaps, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"100.snap.zst", "2000.snap.zst", "junk.snap.zst", "3000.snap.zst.tmp"} {
		if err := os.WriteFile(filepath.Join(snaps, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "2000.snap.zst" {
		t.Fatalf("unexpected latest snapshot: %q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("expected no snapshot, got %q", got)
	}
}

func TestSeedSaveAndLoadWorld(t *testing.T) {
	cats := catalogs.Default()
	grid := store.NewChunkStore(&cats.Blocks, -64, 384)
	trees, err := seedForest(grid, 7, 24)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(trees) == 0 {
		t.Fatalf("expected some trees")
	}
	reg := claims.NewRegistry()
	if err := reg.Add(claims.Claim{ID: "home", Owner: "alice", Min: treescan.Coord{X: 0, Y: 0, Z: 0}, Max: treescan.Coord{X: 8, Y: 100, Z: 8}}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	dir := t.TempDir()
	path, err := saveWorld(dir, "w1", 7, grid, reg, cats.Blocks.Palette)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if latestSnapshot(dir) != path {
		t.Fatalf("saved snapshot should be the latest")
	}

	grid2 := store.NewChunkStore(&cats.Blocks, -64, 384)
	reg2 := claims.NewRegistry()
	seed, err := loadWorld(path, "w1", grid2, reg2)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if seed != 7 || grid2.Digest() != grid.Digest() || len(reg2.Export()) != 1 {
		t.Fatalf("loaded world differs: seed=%d claims=%d", seed, len(reg2.Export()))
	}
	if got := grid2.NameAt(trees[0]); !strings.HasSuffix(got, "_LOG") {
		t.Fatalf("trunk base should be a log, got %s", got)
	}

	if _, err := loadWorld(path, "other", store.NewChunkStore(&cats.Blocks, -64, 384), claims.NewRegistry()); err == nil {
		t.Fatalf("expected world id mismatch")
	}
	if _, err := loadWorld(path, "w1", store.NewChunkStore(&cats.Blocks, 0, 256), claims.NewRegistry()); err == nil {
		t.Fatalf("expected bounds mismatch")
	}
}

func TestMetricsAndLookupHandlers(t *testing.T) {
	cats := catalogs.Default()
	grid := store.NewChunkStore(&cats.Blocks, -64, 384)
	sched := region.New(region.Config{Size: 64, BackgroundWorkers: 1}, nil)
	defer sched.Close()
	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "world.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	rec := httptest.NewRecorder()
	metricsHandler("w1", sched, idx, grid)(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{`timber_regions{world="w1"} 0`, `timber_index_queue_depth{world="w1"}`} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/lookup?x=1&y=2&z=3", nil)
	req.RemoteAddr = "127.0.0.1:5555"
	rec = httptest.NewRecorder()
	lookupHandler(idx)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup status %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Pos  [3]int            `json:"pos"`
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Pos != [3]int{1, 2, 3} || len(resp.Rows) != 0 {
		t.Fatalf("unexpected lookup response: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/lookup?x=1&y=2&z=3", nil)
	req.RemoteAddr = "10.0.0.8:5555"
	rec = httptest.NewRecorder()
	lookupHandler(idx)(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for remote callers, got %d", rec.Code)
	}
}
