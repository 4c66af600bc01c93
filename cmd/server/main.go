package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/store"
	"beltline.dev/internal/editor/tuning"
	"beltline.dev/internal/persistence/archive"
	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
	"beltline.dev/internal/protocol"
	"beltline.dev/internal/session"
	"beltline.dev/internal/telemetry"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		blueprintID = flag.String("blueprint", "bp_1", "blueprint id")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB   = flag.Bool("disable_db", false, "disable indexing (op log + catalogs + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Printf("tuning protocol_version=%s differs from server %s", tune.ProtocolVersion, protocol.Version)
	}

	blueprintDir := filepath.Join(*dataDir, "blueprints", *blueprintID)
	_ = os.MkdirAll(blueprintDir, 0o755)

	// Optional: read-model index backend (does not affect editing).
	idx, err := openRuntimeIndex(blueprintDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	s3Mirror, err := buildS3MirrorRuntime(ctx, *dataDir, logger)
	if err != nil {
		logger.Fatalf("init s3 mirror: %v", err)
	}
	defer s3Mirror.Close()

	metrics := telemetry.New()
	sess, err := session.New(session.Config{
		BlueprintID:  *blueprintID,
		Catalogs:     cats,
		Tuning:       tune,
		TuningDigest: tune.Digest(),
		Metrics:      metrics,
		Observers:    []store.Observer{metrics},
		Logger:       log.New(os.Stdout, "[session] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(snapshotDir(blueprintDir))
	}
	if err := restore(sess, blueprintDir, snapshotToLoad); err != nil {
		logger.Fatalf("restore: %v", err)
	}
	logger.Printf("blueprint=%s seq=%d entities=%d", *blueprintID, sess.Stats().Seq, sess.Blueprint().Current().Entities.Len())

	logOpts := persistlog.WriterOptions{}
	if s3Mirror.enabled {
		logOpts.RotateLayout = s3Mirror.rotateLayout
		logOpts.OnClose = s3Mirror.Enqueue
	}
	opLog := persistlog.NewOpLogger(blueprintDir, *blueprintID, logOpts)
	defer opLog.Close()
	if idx != nil {
		opLog.OnRecord = idx.Record
	}
	sess.AddSink(opLog)

	// Snapshot writer.
	archiveEvery := uint64(envInt("BL_SNAPSHOT_ARCHIVE_EVERY", 10000))
	keepSnapshots := envInt("BL_SNAPSHOT_KEEP", 10)
	snapCh := make(chan snapshot.SnapshotV1, 2)
	sess.SetSnapshotSink(snapCh)
	writeSnap := func(snap snapshot.SnapshotV1) {
		path := filepath.Join(snapshotDir(blueprintDir), snapshot.FileName(snap.Header.Seq))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			logger.Printf("snapshot write: %v", err)
			return
		}
		s3Mirror.Enqueue(path)
		if idx != nil {
			idx.RecordSnapshot(path, snap)
		}
		if m, dst, ok, err := archive.ArchiveMilestone(blueprintDir, path, snap, archiveEvery); err != nil {
			logger.Printf("archive milestone: %v", err)
		} else if ok {
			logger.Printf("archived milestone=%d snapshot=%s", m, dst)
			s3Mirror.Enqueue(dst)
		}
		if _, err := archive.Prune(snapshotDir(blueprintDir), keepSnapshots); err != nil {
			logger.Printf("prune snapshots: %v", err)
		}
	}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				writeSnap(snap)
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("session stopped: %v", err)
		}
	}()

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("protocol schemas: %v", err)
	}
	a := &app{
		blueprintID: *blueprintID,
		sess:        sess,
		idx:         idx,
		s3:          s3Mirror,
		metrics:     metrics,
		validator:   validator,
		logger:      logger,
		outQueue:    tune.Session.OutQueue,
	}
	if err := a.registerGauges(); err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	enableAdminHTTP := envBool("BL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("BL_ENABLE_PPROF_HTTP", false)
	if !enableAdminHTTP {
		logger.Printf("admin endpoints disabled (BL_ENABLE_ADMIN_HTTP=false)")
	}
	if !enablePprofHTTP {
		logger.Printf("pprof endpoints disabled (BL_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           a.routes(enableAdminHTTP, enablePprofHTTP),
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

	// The loop has stopped; the final snapshot is taken here so a restart
	// replays nothing.
	cancel()
	<-runDone
	<-writerDone
	writeSnap(sess.Snapshot())
	if idx != nil {
		ctx3, cancel3 := context.WithTimeout(context.Background(), 5*time.Second)
		if err := idx.Flush(ctx3); err != nil {
			logger.Printf("index flush: %v", err)
		}
		cancel3()
	}
}

func snapshotDir(blueprintDir string) string { return filepath.Join(blueprintDir, "snapshots") }

// restore loads the snapshot (if any) and replays the op log written after
// it.
func restore(sess *session.Session, blueprintDir, snapPath string) error {
	var snap snapshot.SnapshotV1
	if snapPath != "" {
		var err error
		if snap, err = snapshot.ReadSnapshot(snapPath); err != nil {
			return err
		}
	}
	ops, err := persistlog.ReadOps(persistlog.OpsDir(blueprintDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if snapPath == "" && len(ops) == 0 {
		return nil
	}
	return sess.Restore(snap, ops)
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

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
