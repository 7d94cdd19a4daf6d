package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	persistlog "timbercraft.ai/internal/persistence/log"
	"timbercraft.ai/internal/protocol"
	"timbercraft.ai/internal/sim/catalogs"
	"timbercraft.ai/internal/sim/region"
	"timbercraft.ai/internal/sim/timber"
	"timbercraft.ai/internal/sim/tuning"
	"timbercraft.ai/internal/sim/world/audit"
	"timbercraft.ai/internal/sim/world/feature/governance/claims"
	"timbercraft.ai/internal/sim/world/feature/work/chop"
	"timbercraft.ai/internal/sim/world/terrain/store"
	"timbercraft.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 1337, "forest seed (used only when starting a fresh world)")
		forestR    = flag.Int("forest_radius", 96, "half-width of the seeded forest around the origin")
		minY       = flag.Int("min_y", -64, "lowest block y")
		height     = flag.Int("height", 384, "world height in blocks")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to timber.yaml (default: <configs>/timber.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the block history index (provenance checks are skipped)")

		maxActions = flag.Int("max_actions_per_sec", 20, "per-session BREAK/PLACE limit (0 = unlimited)")
		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "timber.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	grid := store.NewChunkStore(&cats.Blocks, *minY, *height)
	reg := claims.NewRegistry()

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	worldSeed := *seed
	if snapshotToLoad != "" {
		worldSeed, err = loadWorld(snapshotToLoad, *worldID, grid, reg)
		if err != nil {
			logger.Fatalf("load snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s chunks=%d claims=%d", filepath.Base(snapshotToLoad), len(grid.LoadedChunkKeys()), len(reg.Export()))
	} else {
		trees, err := seedForest(grid, worldSeed, *forestR)
		if err != nil {
			logger.Fatalf("seed forest: %v", err)
		}
		logger.Printf("fresh world seed=%d trees=%d", worldSeed, len(trees))
	}

	ctx, cancel := signalContext()
	defer cancel()

	auditLog := persistlog.NewAuditLogger(worldDir)
	defer auditLog.Close()
	sink := audit.Multi{auditLog}
	if idx != nil {
		sink = append(sink, idx)
	}

	sched := region.New(region.Config{
		Size:              tune.Region.Size,
		BackgroundWorkers: tune.Region.BackgroundWorkers,
	}, logger)

	chopper := chop.New(grid, cats, sink, chop.Params{
		BreakLeaves:      tune.Chopping.BreakLeaves,
		DamageMultiplier: tune.Chopping.ToolDamageMultiplier,
		AutoCollect:      tune.Chopping.AutoCollect,
	}, logger)
	deps := timber.Deps{
		Grid:      grid,
		Tools:     &cats.Items,
		Sched:     sched,
		Harvester: chopper,
		Guard:     reg,
		Actors:    timber.NewActors(tune.General.DefaultEnabled, tune.Language),
	}
	if idx != nil {
		deps.Oracle = idx
	} else if tune.Protection.UseProvenance {
		logger.Printf("index disabled; provenance checks are skipped")
	}
	orc, err := timber.New(timber.ConfigFromTuning(tune), deps, logger)
	if err != nil {
		logger.Fatalf("timber: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(*worldID, sched, idx, grid))

	if envBool("TIMBER_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/lookup", lookupHandler(idx))
		mux.HandleFunc("/admin/v1/snapshot", snapshotHandler(func() (string, error) {
			return saveWorld(worldDir, *worldID, worldSeed, grid, reg, cats.Blocks.Palette)
		}))
	} else {
		logger.Printf("admin endpoints disabled (TIMBER_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("TIMBER_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (TIMBER_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(ws.Config{
		Orchestrator: orc,
		Sched:        sched,
		World:        grid,
		Guard:        reg,
		Audit:        sink,
		Catalogs: protocol.CatalogDigests{
			BlockPalette: protocol.DigestRef{Digest: cats.Blocks.PaletteDigest, Count: len(cats.Blocks.Palette)},
			ItemPalette:  protocol.DigestRef{Digest: cats.Items.PaletteDigest, Count: len(cats.Items.Palette)},
		},
		MaxActionsPerSecond: *maxActions,
	}, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Drain queued breaks before the grid is saved.
	sched.Close()
	if idx != nil {
		fctx, fcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Flush(fctx); err != nil {
			logger.Printf("index flush: %v", err)
		}
		fcancel()
	}
	path, err := saveWorld(worldDir, *worldID, worldSeed, grid, reg, cats.Blocks.Palette)
	if err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	logger.Printf("saved snapshot=%s", path)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
