package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/tuning"
	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
)

// Index is a queryable read model of op logs and snapshots. Writes are
// queued and applied by one goroutine; a full queue drops the write.
type Index struct {
	db      *sql.DB
	dialect dialect

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropOps       atomic.Uint64
	dropSnapshots atomic.Uint64
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropOpTotal       uint64
	DropSnapshotTotal uint64
}

type reqKind int

const (
	reqOp reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	op       persistlog.OpRecord
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	BlueprintID string
	Seq         uint64
	LogIndex    uint64
	Path        string
	Entities    int
}

func open(driver, dsn string, d dialect, queue int) (*Index, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if d.singleConn {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}
	for _, stmt := range append(append([]string{}, d.pragmas...), d.schema...) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s schema: %w", d.name, err)
		}
	}
	if queue <= 0 {
		queue = 65536
	}
	s := &Index{db: db, dialect: d, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func (s *Index) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Record queues one op log record. It is a store.HistorySink companion of
// the op logger and never blocks.
func (s *Index) Record(r persistlog.OpRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqOp, op: r}:
	default:
		s.dropOps.Add(1)
	}
}

func (s *Index) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		BlueprintID: snap.Header.BlueprintID,
		Seq:         snap.Header.Seq,
		LogIndex:    snap.Header.LogIndex,
		Path:        path,
		Entities:    len(snap.Entities),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshots.Add(1)
	}
}

// Flush blocks until every queued write is committed.
func (s *Index) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Index) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropOpTotal:       s.dropOps.Load(),
		DropSnapshotTotal: s.dropSnapshots.Load(),
	}
}

// UpsertCatalogs stores the prototype data and tuning the server runs with.
func (s *Index) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil || len(b) == 0 {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	if configDir != "" {
		read("entities", "entities.json", cats.Entities.Digest)
		read("recipes", "recipes.json", cats.Recipes.Digest)
		read("items", "items.json", cats.Items.Digest)
		read("update_groups", "update_groups.json", cats.UpdateGroups.Digest)
	}
	{
		b, _ := json.Marshal(tune)
		rows = append(rows, kv{name: "tuning", digest: tune.Digest(), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.dialect.upsertMeta, "schema_version", "1"); err != nil {
		return err
	}
	stmt, err := tx.Prepare(s.dialect.upsertCatalog)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// OpsForEntity lists the op log indexes that touched entity n, ascending.
func (s *Index) OpsForEntity(ctx context.Context, blueprintID string, n int) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.opsForEntity, blueprintID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out = append(out, uint64(idx))
	}
	return out, rows.Err()
}

// LatestSnapshot returns the path of the newest indexed snapshot.
func (s *Index) LatestSnapshot(ctx context.Context, blueprintID string) (string, uint64, bool, error) {
	var path string
	var seq int64
	err := s.db.QueryRowContext(ctx, s.dialect.latestSnapshot, blueprintID).Scan(&path, &seq)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return path, uint64(seq), true, nil
}

func (s *Index) loop() {
	ctx := context.Background()

	insertOp, _ := s.db.Prepare(s.dialect.insertOp)
	deleteOpEntities, _ := s.db.Prepare(s.dialect.deleteOpEntities)
	insertOpEntity, _ := s.db.Prepare(s.dialect.insertOpEntity)
	insertSnapshot, _ := s.db.Prepare(s.dialect.insertSnapshot)
	defer func() {
		for _, st := range []*sql.Stmt{insertOp, deleteOpEntities, insertOpEntity, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqOp:
			op := r.op
			affected, _ := json.Marshal(op.Affected)
			changes, _ := json.Marshal(op.Changes)
			if insertOp == nil {
				continue
			}
			if _, err := tx.Stmt(insertOp).Exec(
				op.BlueprintID,
				int64(op.Index),
				int64(op.Seq),
				op.Label,
				op.Tag,
				string(affected),
				string(changes),
				op.At,
			); err != nil {
				rollback()
				continue
			}
			opCount++
			// A collapsed entry arrives again under the same index.
			if deleteOpEntities != nil {
				if _, err := tx.Stmt(deleteOpEntities).Exec(op.BlueprintID, int64(op.Index)); err != nil {
					rollback()
					continue
				}
			}
			for _, n := range op.Affected {
				if insertOpEntity == nil {
					break
				}
				if _, err := tx.Stmt(insertOpEntity).Exec(op.BlueprintID, int64(op.Index), n); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				sn.BlueprintID,
				int64(sn.Seq),
				int64(sn.LogIndex),
				sn.Path,
				sn.Entities,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
