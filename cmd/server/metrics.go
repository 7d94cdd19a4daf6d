package main

import (
	"fmt"
	"net/http"

	"timbercraft.ai/internal/persistence/indexdb"
	"timbercraft.ai/internal/sim/region"
	"timbercraft.ai/internal/sim/world/terrain/store"
)

func metricsHandler(worldID string, sched *region.Scheduler, idx *indexdb.SQLiteIndex, grid *store.ChunkStore) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		st := sched.Stats()
		fmt.Fprintf(rw, "# HELP timber_regions Active region workers.\n")
		fmt.Fprintf(rw, "# TYPE timber_regions gauge\n")
		fmt.Fprintf(rw, "timber_regions{world=%q} %d\n", worldID, st.Regions)

		fmt.Fprintf(rw, "# HELP timber_region_pending Tasks queued across all regions.\n")
		fmt.Fprintf(rw, "# TYPE timber_region_pending gauge\n")
		fmt.Fprintf(rw, "timber_region_pending{world=%q} %d\n", worldID, st.Pending)

		fmt.Fprintf(rw, "# HELP timber_background_pending Provenance checks waiting for a worker.\n")
		fmt.Fprintf(rw, "# TYPE timber_background_pending gauge\n")
		fmt.Fprintf(rw, "timber_background_pending{world=%q} %d\n", worldID, st.Background)

		fmt.Fprintf(rw, "# HELP timber_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE timber_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "timber_loaded_chunks{world=%q} %d\n", worldID, len(grid.LoadedChunkKeys()))

		if idx == nil {
			return
		}
		is := idx.Stats()
		fmt.Fprintf(rw, "# HELP timber_index_queue_depth Audit rows waiting for the index writer.\n")
		fmt.Fprintf(rw, "# TYPE timber_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "timber_index_queue_depth{world=%q} %d\n", worldID, is.QueueDepth)
		fmt.Fprintf(rw, "timber_index_queue_capacity{world=%q} %d\n", worldID, is.QueueCapacity)

		fmt.Fprintf(rw, "# HELP timber_index_audit_dropped_total Audit rows dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE timber_index_audit_dropped_total counter\n")
		fmt.Fprintf(rw, "timber_index_audit_dropped_total{world=%q} %d\n", worldID, is.DropAuditTotal)
	}
}
