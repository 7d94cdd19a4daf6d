package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"timbercraft.ai/internal/persistence/indexdb"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

func openIndex(dataDir, worldID, dbPath string) *indexdb.SQLiteIndex {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		if strings.TrimSpace(worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(dataDir, "worlds", worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return idx
}

func lookupCmd(args []string) {
	fs := flag.NewFlagSet("lookup", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	x := fs.Int("x", 0, "block x")
	y := fs.Int("y", 0, "block y")
	z := fs.Int("z", 0, "block z")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print rows as json")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *worldID, *dbPath)
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := treescan.Coord{X: *x, Y: *y, Z: *z}
	rows, err := idx.Lookup(ctx, c, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lookup:", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Printf("no history at %v\n", c)
		return
	}
	printRows(rows, *asJSON, time.Now())
}

func auditsCmd(args []string) {
	fs := flag.NewFlagSet("audits", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print rows as json")
	_ = fs.Parse(args)

	idx := openIndex(*dataDir, *worldID, *dbPath)
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rows, err := idx.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audits:", err)
		os.Exit(1)
	}
	printRows(rows, *asJSON, time.Now())
}

func printRows(rows []indexdb.Row, asJSON bool, now time.Time) {
	for _, r := range rows {
		if asJSON {
			printJSON(r)
			continue
		}
		fmt.Println(formatRow(r, now))
	}
}

func formatRow(r indexdb.Row, now time.Time) string {
	age := humanize.RelTime(time.UnixMilli(r.AtMs), now, "ago", "from now")
	line := fmt.Sprintf("%-14s %-6s %-18s at %d,%d,%d by %s", age, r.Action, r.Block, r.Pos[0], r.Pos[1], r.Pos[2], r.Actor)
	if r.Reason != "" {
		line += " (" + r.Reason + ")"
	}
	return line
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
