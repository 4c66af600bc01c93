package indexdb

import (
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect holds the SQL that differs between backends.
type dialect struct {
	name       string
	singleConn bool
	pragmas    []string
	schema     []string

	upsertMeta       string
	upsertCatalog    string
	insertOp         string
	deleteOpEntities string
	insertOpEntity   string
	insertSnapshot   string
	opsForEntity     string
	latestSnapshot   string
}

var sqliteDialect = dialect{
	name:       "sqlite",
	singleConn: true,
	// WAL suits the append-only workload of a secondary index.
	pragmas: []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ops (
			blueprint_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			label TEXT NOT NULL,
			tag TEXT NOT NULL,
			affected_json TEXT NOT NULL,
			changes_json TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (blueprint_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS op_entities (
			blueprint_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			entity_number INTEGER NOT NULL,
			PRIMARY KEY (blueprint_id, idx, entity_number)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_op_entities_entity ON op_entities(blueprint_id, entity_number, idx);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			blueprint_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			log_index INTEGER NOT NULL,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			PRIMARY KEY (blueprint_id, seq)
		);`,
	},
	upsertMeta:       `INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`,
	upsertCatalog:    `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`,
	insertOp:         `INSERT OR REPLACE INTO ops(blueprint_id,idx,seq,label,tag,affected_json,changes_json,at) VALUES(?,?,?,?,?,?,?,?)`,
	deleteOpEntities: `DELETE FROM op_entities WHERE blueprint_id=? AND idx=?`,
	insertOpEntity:   `INSERT OR REPLACE INTO op_entities(blueprint_id,idx,entity_number) VALUES(?,?,?)`,
	insertSnapshot:   `INSERT OR REPLACE INTO snapshots(blueprint_id,seq,log_index,path,entities) VALUES(?,?,?,?,?)`,
	opsForEntity:     `SELECT idx FROM op_entities WHERE blueprint_id=? AND entity_number=? ORDER BY idx`,
	latestSnapshot:   `SELECT path, seq FROM snapshots WHERE blueprint_id=? ORDER BY seq DESC LIMIT 1`,
}

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json JSONB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ops (
			blueprint_id TEXT NOT NULL,
			idx BIGINT NOT NULL,
			seq BIGINT NOT NULL,
			label TEXT NOT NULL,
			tag TEXT NOT NULL,
			affected_json JSONB NOT NULL,
			changes_json JSONB NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (blueprint_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS op_entities (
			blueprint_id TEXT NOT NULL,
			idx BIGINT NOT NULL,
			entity_number INTEGER NOT NULL,
			PRIMARY KEY (blueprint_id, idx, entity_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_op_entities_entity ON op_entities(blueprint_id, entity_number, idx)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			blueprint_id TEXT NOT NULL,
			seq BIGINT NOT NULL,
			log_index BIGINT NOT NULL,
			path TEXT NOT NULL,
			entities INTEGER NOT NULL,
			PRIMARY KEY (blueprint_id, seq)
		)`,
	},
	upsertMeta: `INSERT INTO meta(key,value) VALUES($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
	upsertCatalog: `INSERT INTO catalogs(name,digest,json,updated_at) VALUES($1,$2,$3,$4)
		ON CONFLICT (name) DO UPDATE SET digest=EXCLUDED.digest, json=EXCLUDED.json, updated_at=EXCLUDED.updated_at`,
	insertOp: `INSERT INTO ops(blueprint_id,idx,seq,label,tag,affected_json,changes_json,at) VALUES($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (blueprint_id, idx) DO UPDATE SET seq=EXCLUDED.seq, label=EXCLUDED.label, tag=EXCLUDED.tag,
		affected_json=EXCLUDED.affected_json, changes_json=EXCLUDED.changes_json, at=EXCLUDED.at`,
	deleteOpEntities: `DELETE FROM op_entities WHERE blueprint_id=$1 AND idx=$2`,
	insertOpEntity: `INSERT INTO op_entities(blueprint_id,idx,entity_number) VALUES($1,$2,$3)
		ON CONFLICT DO NOTHING`,
	insertSnapshot: `INSERT INTO snapshots(blueprint_id,seq,log_index,path,entities) VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (blueprint_id, seq) DO UPDATE SET log_index=EXCLUDED.log_index, path=EXCLUDED.path, entities=EXCLUDED.entities`,
	opsForEntity:   `SELECT idx FROM op_entities WHERE blueprint_id=$1 AND entity_number=$2 ORDER BY idx`,
	latestSnapshot: `SELECT path, seq FROM snapshots WHERE blueprint_id=$1 ORDER BY seq DESC LIMIT 1`,
}

// OpenSQLite opens (or creates) a local index file.
func OpenSQLite(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return open("sqlite", path, sqliteDialect, 0)
}

// OpenPostgres connects through the pgx database/sql driver.
func OpenPostgres(dsn string) (*Index, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}
	return open("pgx", dsn, postgresDialect, 0)
}
