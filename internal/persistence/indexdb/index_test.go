package indexdb

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/tuning"
	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
)

func TestIndex_QueueDropStats(t *testing.T) {
	s := &Index{ch: make(chan req, 1)}
	s.ch <- req{kind: reqOp}

	s.Record(persistlog.OpRecord{Index: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropOpTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drops=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_OpsAndSnapshots(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "ops.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	s.Record(persistlog.OpRecord{BlueprintID: "bp", Index: 1, Seq: 1, Label: "Added entity", Tag: "add", Affected: []int{1}})
	s.Record(persistlog.OpRecord{BlueprintID: "bp", Index: 2, Seq: 2, Label: "Added entity", Tag: "add", Affected: []int{2}})
	s.Record(persistlog.OpRecord{BlueprintID: "bp", Index: 3, Seq: 3, Label: "Rotated entity", Tag: "upd", Affected: []int{1, 2}})
	// Collapsed re-send of index 3 with a narrower affected set.
	s.Record(persistlog.OpRecord{BlueprintID: "bp", Index: 3, Seq: 4, Label: "Moved entity", Tag: "mov", Affected: []int{2}})
	s.Record(persistlog.OpRecord{BlueprintID: "other", Index: 1, Seq: 1, Label: "Added entity", Affected: []int{1}})
	s.RecordSnapshot("/data/bp/snapshots/4.snap.zst", snapshot.SnapshotV1{Header: snapshot.Header{BlueprintID: "bp", Seq: 4, LogIndex: 3}})
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, err := s.OpsForEntity(ctx, "bp", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !reflect.DeepEqual(got, []uint64{1}) {
		t.Fatalf("ops for 1=%v", got)
	}
	got, _ = s.OpsForEntity(ctx, "bp", 2)
	if !reflect.DeepEqual(got, []uint64{2, 3}) {
		t.Fatalf("ops for 2=%v", got)
	}

	path, seq, ok, err := s.LatestSnapshot(ctx, "bp")
	if err != nil || !ok || seq != 4 || !strings.HasSuffix(path, "4.snap.zst") {
		t.Fatalf("latest=%s seq=%d ok=%v err=%v", path, seq, ok, err)
	}
	if _, _, ok, _ := s.LatestSnapshot(ctx, "missing"); ok {
		t.Fatalf("snapshot for unknown blueprint")
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "ops.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	configDir := filepath.Join("..", "..", "..", "configs")
	cats, err := catalogs.Load(configDir)
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := s.UpsertCatalogs(configDir, cats, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var digest string
	if err := s.db.QueryRow(`SELECT digest FROM catalogs WHERE name='entities'`).Scan(&digest); err != nil {
		t.Fatalf("select: %v", err)
	}
	if digest != cats.Entities.Digest {
		t.Fatalf("digest=%s want %s", digest, cats.Entities.Digest)
	}
	var n int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n)
	if n != 5 {
		t.Fatalf("catalog rows=%d", n)
	}
}

func TestPostgresDialect_Placeholders(t *testing.T) {
	for name, q := range map[string]string{
		"insertOp":       postgresDialect.insertOp,
		"insertSnapshot": postgresDialect.insertSnapshot,
		"opsForEntity":   postgresDialect.opsForEntity,
	} {
		if strings.Contains(q, "?") {
			t.Fatalf("%s uses sqlite placeholders", name)
		}
	}
	if strings.Count(sqliteDialect.insertOp, "?") != 8 || !strings.Contains(postgresDialect.insertOp, "$8") {
		t.Fatalf("insertOp arity differs between dialects")
	}
}
