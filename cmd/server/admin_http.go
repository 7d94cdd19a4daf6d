package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"timbercraft.ai/internal/persistence/indexdb"
	"timbercraft.ai/internal/sim/world/logic/treescan"
)

func lookupHandler(idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if idx == nil {
			http.Error(rw, "index disabled", http.StatusServiceUnavailable)
			return
		}
		q := r.URL.Query()
		var pos [3]int
		for i, k := range []string{"x", "y", "z"} {
			v, err := strconv.Atoi(q.Get(k))
			if err != nil {
				http.Error(rw, "bad "+k, http.StatusBadRequest)
				return
			}
			pos[i] = v
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = 50
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		rows, err := idx.Lookup(ctx, treescan.Coord{X: pos[0], Y: pos[1], Z: pos[2]}, limit)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"pos": pos, "rows": rows})
	}
}

func snapshotHandler(save func() (string, error)) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		path, err := save()
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "path": path})
	}
}
