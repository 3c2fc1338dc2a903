package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/uruley/Nexus/internal/persistence/indexdb"
	"github.com/uruley/Nexus/internal/persistence/journal"
	"github.com/uruley/Nexus/internal/persistence/snapshot"
	"github.com/uruley/Nexus/internal/protocol"
	"github.com/uruley/Nexus/internal/sim/tuning"
	"github.com/uruley/Nexus/internal/sim/world"
	"github.com/uruley/Nexus/internal/transport/httpapi"
	"github.com/uruley/Nexus/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address (empty disables the http surface)")
		runID      = flag.String("run_id", "", "run identifier (default: run-<unix timestamp>)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")

		recordPath = flag.String("record", "", "record frames to this journal (.jsonl or .jsonl.zst)")
		replayPath = flag.String("replay", "", "replay this journal instead of running live")
		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from the run dir if present (when -snapshot is empty)")
		disableIdx = flag.Bool("disable_index", false, "disable the sqlite run index")
		snapKeep   = flag.Int("snapshot_keep", 8, "snapshot archives to retain per run (0 keeps all)")
		duration   = flag.Duration("duration", 0, "stop after this long (0 runs until signal)")

		logLevel  = flag.String("log_level", "info", "log level: debug, info, warn, error")
		logFormat = flag.String("log_format", "console", "log output format: console or json")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	if *recordPath != "" && *replayPath != "" {
		logger.Fatal("-record and -replay are mutually exclusive")
	}

	id := strings.TrimSpace(*runID)
	if id == "" {
		id = fmt.Sprintf("run-%d", time.Now().Unix())
	}

	runDir := filepath.Join(*dataDir, "runs", id)
	snapDir := filepath.Join(runDir, "snapshots")
	_ = os.MkdirAll(snapDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.LatestPath(snapDir)
	}

	// Tuning is required for a fresh world; a snapshot resume carries its own
	// simulation parameters, so a missing file degrades to defaults there.
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatal("load tuning", zap.String("path", tp), zap.Error(tuneErr))
		}
		if os.IsNotExist(tuneErr) {
			logger.Info("tuning not found, using defaults", zap.String("path", tp))
			tune = tuning.Defaults()
		} else {
			logger.Fatal("load tuning", zap.String("path", tp), zap.Error(tuneErr))
		}
	}

	if tune.ProtocolVersion != "" && tune.ProtocolVersion != protocol.Version {
		logger.Warn("tuning protocol_version differs from binary",
			zap.String("tuning", tune.ProtocolVersion),
			zap.String("binary", protocol.Version))
	}

	// Optional read-model index (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableIdx {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index.db"))
		if err != nil {
			logger.Fatal("open run index", zap.Error(err))
		}
		defer idx.Close()
		if err := idx.RecordRunMeta(id, tune); err != nil {
			logger.Warn("record run meta", zap.Error(err))
		}
	}

	// Create world (fresh or resumed from snapshot).
	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatal("read snapshot", zap.Error(err))
		}
		if snap.Header.RunID != "" && snap.Header.RunID != id {
			logger.Fatal("snapshot run id mismatch",
				zap.String("flag", id), zap.String("snapshot", snap.Header.RunID))
		}
		w, err = world.New(world.Config{
			RunID:              id,
			TickRateHz:         snap.TickRate,
			GravityY:           snap.GravityY,
			FloorY:             snap.FloorY,
			HistoryTicks:       tune.HistoryTicks,
			InboxCapacity:      tune.InboxCapacity,
			MaxEntities:        tune.MaxEntities,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
			Replay:             *replayPath != "",
		}, logger)
		if err != nil {
			logger.Fatal("world", zap.Error(err))
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatal("import snapshot", zap.Error(err))
		}
		logger.Info("resumed from snapshot",
			zap.String("file", filepath.Base(snapshotToLoad)), zap.Uint64("tick", w.CurrentTick()))
	} else {
		w, err = world.New(world.Config{
			RunID:              id,
			TickRateHz:         tune.TickRateHz,
			GravityY:           tune.GravityY,
			FloorY:             tune.FloorY,
			HistoryTicks:       tune.HistoryTicks,
			InboxCapacity:      tune.InboxCapacity,
			MaxEntities:        tune.MaxEntities,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
			Replay:             *replayPath != "",
		}, logger)
		if err != nil {
			logger.Fatal("world", zap.Error(err))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, *duration)
		defer tcancel()
	}

	var jw *journal.Writer
	if *recordPath != "" {
		jw, err = journal.NewWriter(*recordPath)
		if err != nil {
			logger.Fatal("open journal", zap.Error(err))
		}
		defer func() {
			if err := jw.Close(); err != nil {
				logger.Warn("close journal", zap.Error(err))
			}
		}()
		logger.Info("recording", zap.String("journal", *recordPath))
	}
	if fl := frameLoggerFor(jw, idx); fl != nil {
		w.SetFrameLogger(fl)
	}

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := snapshot.Path(snapDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Warn("snapshot write", zap.Error(err))
					continue
				}
				logger.Info("snapshot written",
					zap.String("file", filepath.Base(path)),
					zap.Uint64("tick", snap.Header.Tick),
					zap.Int("entities", len(snap.Entities)))
				idx.RecordSnapshot(path, snap)
				if removed, err := snapshot.Prune(snapDir, *snapKeep); err != nil {
					logger.Warn("snapshot prune", zap.Error(err))
				} else if len(removed) > 0 {
					logger.Debug("snapshots pruned", zap.Int("removed", len(removed)))
				}
			}
		}
	}()

	mode := "live"
	switch {
	case *replayPath != "":
		mode = "replay"
	case *recordPath != "":
		mode = "record"
	}

	var replayDone chan struct{}
	if *replayPath != "" {
		// The replayed world stays up for queries after the journal ends;
		// submissions are rejected for the whole run.
		replayDone = make(chan struct{})
		go func() {
			defer close(replayDone)
			jr, err := journal.Open(*replayPath)
			if err != nil {
				logger.Fatal("open journal", zap.Error(err))
			}
			defer jr.Close()
			start := time.Now()
			tick, err := w.RunReplay(ctx, jr)
			if err != nil {
				logger.Fatal("replay", zap.Uint64("tick", tick), zap.Error(err))
			}
			logger.Info("replay complete",
				zap.Uint64("tick", tick),
				zap.String("checksum", w.Engine().Latest().Checksum.String()),
				zap.Duration("elapsed", time.Since(start)))
		}()
	} else {
		go func() {
			if err := w.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("world stopped", zap.Error(err))
			}
		}()
	}

	if *addr == "" {
		// Headless run: replay verifies and exits, a live loop runs until
		// the context ends.
		logger.Info("http disabled", zap.String("run_id", id), zap.String("mode", mode))
		if replayDone != nil {
			select {
			case <-replayDone:
			case <-ctx.Done():
			}
			return
		}
		<-ctx.Done()
		return
	}

	api := httpapi.New(w, logger)
	wsrv := ws.NewServer(w, logger, tune.MaxSessions)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/v1/ws", wsrv.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"ok":     true,
			"run_id": id,
			"mode":   mode,
			"tick":   w.CurrentTick(),
		})
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		es := w.Engine().Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP nexus_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE nexus_world_tick gauge\n")
		fmt.Fprintf(rw, "nexus_world_tick{run=%q} %d\n", id, m.Tick)

		fmt.Fprintf(rw, "# HELP nexus_world_entities Current number of entities.\n")
		fmt.Fprintf(rw, "# TYPE nexus_world_entities gauge\n")
		fmt.Fprintf(rw, "nexus_world_entities{run=%q} %d\n", id, m.Entities)

		fmt.Fprintf(rw, "# HELP nexus_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE nexus_world_step_ms gauge\n")
		fmt.Fprintf(rw, "nexus_world_step_ms{run=%q} %.3f\n", id, m.StepMS)

		fmt.Fprintf(rw, "# HELP nexus_world_inbox_depth Intent inbox backlog.\n")
		fmt.Fprintf(rw, "# TYPE nexus_world_inbox_depth gauge\n")
		fmt.Fprintf(rw, "nexus_world_inbox_depth{run=%q} %d\n", id, m.InboxDepth)

		fmt.Fprintf(rw, "# HELP nexus_world_inbox_capacity Intent inbox capacity.\n")
		fmt.Fprintf(rw, "# TYPE nexus_world_inbox_capacity gauge\n")
		fmt.Fprintf(rw, "nexus_world_inbox_capacity{run=%q} %d\n", id, m.InboxCapacity)

		fmt.Fprintf(rw, "# HELP nexus_intents_applied_total Intents applied since start.\n")
		fmt.Fprintf(rw, "# TYPE nexus_intents_applied_total counter\n")
		fmt.Fprintf(rw, "nexus_intents_applied_total{run=%q} %d\n", id, m.IntentsApplied)

		fmt.Fprintf(rw, "# HELP nexus_intents_unknown_target_total Intents dropped because the target entity is gone.\n")
		fmt.Fprintf(rw, "# TYPE nexus_intents_unknown_target_total counter\n")
		fmt.Fprintf(rw, "nexus_intents_unknown_target_total{run=%q} %d\n", id, m.UnknownTargets)

		fmt.Fprintf(rw, "# HELP nexus_spawns_rejected_total Spawns rejected at the entity cap.\n")
		fmt.Fprintf(rw, "# TYPE nexus_spawns_rejected_total counter\n")
		fmt.Fprintf(rw, "nexus_spawns_rejected_total{run=%q} %d\n", id, m.SpawnsRejected)

		fmt.Fprintf(rw, "# HELP nexus_frame_log_errors_total Journal write errors.\n")
		fmt.Fprintf(rw, "# TYPE nexus_frame_log_errors_total counter\n")
		fmt.Fprintf(rw, "nexus_frame_log_errors_total{run=%q} %d\n", id, m.FrameLogErrors)

		fmt.Fprintf(rw, "# HELP nexus_diffs_served_total Diffs answered from the history window.\n")
		fmt.Fprintf(rw, "# TYPE nexus_diffs_served_total counter\n")
		fmt.Fprintf(rw, "nexus_diffs_served_total{run=%q} %d\n", id, es.DiffsServed)

		fmt.Fprintf(rw, "# HELP nexus_resync_total Diff misses answered with a full snapshot.\n")
		fmt.Fprintf(rw, "# TYPE nexus_resync_total counter\n")
		fmt.Fprintf(rw, "nexus_resync_total{run=%q} %d\n", id, es.ResyncTotal)

		fmt.Fprintf(rw, "# HELP nexus_history_entries Distinct checksums held in the diff window.\n")
		fmt.Fprintf(rw, "# TYPE nexus_history_entries gauge\n")
		fmt.Fprintf(rw, "nexus_history_entries{run=%q} %d\n", id, es.HistoryLen)

		fmt.Fprintf(rw, "# HELP nexus_ws_sessions Connected websocket sessions.\n")
		fmt.Fprintf(rw, "# TYPE nexus_ws_sessions gauge\n")
		fmt.Fprintf(rw, "nexus_ws_sessions{run=%q} %d\n", id, wsrv.Sessions())

		if idx != nil {
			qs := idx.Stats()
			fmt.Fprintf(rw, "# HELP nexus_index_queue_depth Run index write queue depth.\n")
			fmt.Fprintf(rw, "# TYPE nexus_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "nexus_index_queue_depth{run=%q} %d\n", id, qs.QueueDepth)

			fmt.Fprintf(rw, "# HELP nexus_index_queue_capacity Run index write queue capacity.\n")
			fmt.Fprintf(rw, "# TYPE nexus_index_queue_capacity gauge\n")
			fmt.Fprintf(rw, "nexus_index_queue_capacity{run=%q} %d\n", id, qs.QueueCapacity)

			fmt.Fprintf(rw, "# HELP nexus_index_dropped_frames_total Frames dropped on a full index queue.\n")
			fmt.Fprintf(rw, "# TYPE nexus_index_dropped_frames_total counter\n")
			fmt.Fprintf(rw, "nexus_index_dropped_frames_total{run=%q} %d\n", id, qs.DropFrameTotal)

			fmt.Fprintf(rw, "# HELP nexus_index_dropped_snapshots_total Snapshot records dropped on a full index queue.\n")
			fmt.Fprintf(rw, "# TYPE nexus_index_dropped_snapshots_total counter\n")
			fmt.Fprintf(rw, "nexus_index_dropped_snapshots_total{run=%q} %d\n", id, qs.DropSnapshotTotal)
		}
	})

	enableAdminHTTP := envBool("NEXUS_ADMIN", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("NEXUS_PPROF", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				RunID   string             `json:"run_id"`
				Mode    string             `json:"mode"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
				Engine  world.EngineStats  `json:"engine"`
			}{
				RunID:   id,
				Mode:    mode,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
				Engine:  w.Engine().Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			snap, err := w.RequestSnapshot(ctx2)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			path := snapshot.Path(snapDir, snap.Header.Tick)
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			idx.RecordSnapshot(path, snap)
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"ok": true, "tick": snap.Header.Tick, "path": path,
			})
		})
		mux.HandleFunc("/admin/v1/ticks", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "run index disabled", http.StatusServiceUnavailable)
				return
			}
			rows, err := idx.RecentTicks(queryLimit(r))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"ticks": rows})
		})
		mux.HandleFunc("/admin/v1/snapshots", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "run index disabled", http.StatusServiceUnavailable)
				return
			}
			rows, err := idx.RecentSnapshots(queryLimit(r))
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{"snapshots": rows})
		})
	} else {
		logger.Info("admin endpoints disabled (NEXUS_ADMIN=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Info("pprof endpoints disabled (NEXUS_PPROF=false)")
	}

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

	logger.Info("listening",
		zap.String("addr", *addr), zap.String("run_id", id), zap.String("mode", mode))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("listen", zap.Error(err))
	}
}

// multiFrameLogger fans each frame out to the journal and the run index.
// The journal is the replay source of truth, so only its error propagates;
// the index tracks its own drops.
type multiFrameLogger struct {
	journal world.FrameLogger
	index   world.FrameLogger
}

func (m multiFrameLogger) WriteFrame(f world.Frame) error {
	err := m.journal.WriteFrame(f)
	_ = m.index.WriteFrame(f)
	return err
}

func frameLoggerFor(jw *journal.Writer, idx *indexdb.SQLiteIndex) world.FrameLogger {
	switch {
	case jw != nil && idx != nil:
		return multiFrameLogger{journal: jw, index: idx}
	case jw != nil:
		return jw
	case idx != nil:
		return idx
	}
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		cfg.EncoderConfig.ConsoleSeparator = "  "
		cfg.DisableCaller = true
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
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

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
