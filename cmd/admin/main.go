package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"timbercraft.ai/internal/persistence/snapshot"
	"timbercraft.ai/internal/sim/encoding"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "lookup":
			lookupCmd(os.Args[2:])
			return
		case "audits":
			auditsCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (used to find the latest snapshot when -path is empty)")
	path := fs.String("path", "", "snapshot path")
	top := fs.Int("top", 10, "number of block types to list")
	chunk := fs.String("chunk", "", "dump one chunk as JSON instead: cx,cz")
	_ = fs.Parse(args)

	p := strings.TrimSpace(*path)
	if p == "" && *worldID != "" {
		p = latestSnapshot(filepath.Join(*dataDir, "worlds", *worldID))
	}
	if p == "" {
		fmt.Fprintln(os.Stderr, "missing -path or -world")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(p)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*chunk) != "" {
		cx, cz, err := parseChunkKey(*chunk)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -chunk:", err)
			os.Exit(2)
		}
		d, ok := dumpChunk(snap, cx, cz)
		if !ok {
			fmt.Fprintf(os.Stderr, "chunk %d,%d not in snapshot\n", cx, cz)
			os.Exit(1)
		}
		printJSON(d)
		return
	}
	var size int64
	if st, err := os.Stat(p); err == nil {
		size = st.Size()
	}
	s := summarize(snap)
	fmt.Printf("snapshot=%s world=%s version=%d size=%s\n", filepath.Base(p), snap.Header.WorldID, snap.Header.Version, humanize.Bytes(uint64(size)))
	fmt.Printf("seed=%d min_y=%d height=%d chunks=%d claims=%d blocks=%s\n",
		snap.Seed, snap.MinY, snap.Height, len(snap.Chunks), len(snap.Claims), humanize.Comma(s.total))
	for i, bc := range s.byBlock {
		if i >= *top {
			break
		}
		fmt.Printf("  %-24s %s\n", bc.name, humanize.Comma(bc.count))
	}
}

type blockCount struct {
	name  string
	count int64
}

type snapshotSummary struct {
	total   int64 // non-air voxels
	byBlock []blockCount
}

func summarize(snap snapshot.GridSnapshot) snapshotSummary {
	counts := map[string]int64{}
	var total int64
	for _, ch := range snap.Chunks {
		for _, id := range ch.Blocks {
			if id == 0 || int(id) >= len(snap.Palette) {
				continue
			}
			counts[snap.Palette[id]]++
			total++
		}
	}
	out := snapshotSummary{total: total, byBlock: make([]blockCount, 0, len(counts))}
	for name, n := range counts {
		out.byBlock = append(out.byBlock, blockCount{name: name, count: n})
	}
	sort.Slice(out.byBlock, func(i, j int) bool {
		if out.byBlock[i].count != out.byBlock[j].count {
			return out.byBlock[i].count > out.byBlock[j].count
		}
		return out.byBlock[i].name < out.byBlock[j].name
	})
	return out
}

type chunkDumpJSON struct {
	CX        int      `json:"cx"`
	CZ        int      `json:"cz"`
	MinY      int      `json:"min_y"`
	Height    int      `json:"height"`
	Palette   []string `json:"palette"`
	VoxelsRLE string   `json:"voxels_rle"`
}

func dumpChunk(snap snapshot.GridSnapshot, cx, cz int) (chunkDumpJSON, bool) {
	for _, ch := range snap.Chunks {
		if ch.CX != cx || ch.CZ != cz {
			continue
		}
		return chunkDumpJSON{
			CX:        cx,
			CZ:        cz,
			MinY:      snap.MinY,
			Height:    ch.Height,
			Palette:   snap.Palette,
			VoxelsRLE: encoding.EncodeVoxels(ch.Blocks, ch.Axes),
		}, true
	}
	return chunkDumpJSON{}, false
}

func parseChunkKey(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected cx,cz")
	}
	cx, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	cz, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return cx, cz, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}

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
