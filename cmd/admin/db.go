package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the sqlite index written by the server. It never writes.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	blueprintID := fs.String("blueprint", "", "blueprint id (required)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	entity := fs.Int("entity", 0, "entity number filter (ops)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if strings.TrimSpace(*blueprintID) == "" {
		fmt.Fprintln(os.Stderr, "missing -blueprint")
		os.Exit(2)
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "blueprints", *blueprintID, "index", "blueprint.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, *blueprintID, *entity, *limit); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, "usage: admin db -blueprint ID [-data ./data|-db PATH] [-entity N] [-limit N] snapshots|ops|catalogs")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func runQuery(db *sql.DB, q, blueprintID string, entity, limit int) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT seq,log_index,path,entities FROM snapshots WHERE blueprint_id=? ORDER BY seq DESC LIMIT ?`, blueprintID, limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq      int64  `json:"seq"`
				LogIndex int64  `json:"log_index"`
				Path     string `json:"path"`
				Entities int    `json:"entities"`
			}
			if err := rows.Scan(&r.Seq, &r.LogIndex, &r.Path, &r.Entities); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(r)
		}
		return rows.Err()

	case "ops":
		var (
			rows *sql.Rows
			err  error
		)
		if entity > 0 {
			rows, err = db.Query(`SELECT o.idx,o.seq,o.label,o.tag,o.affected_json,o.at FROM ops o
				JOIN op_entities e ON e.blueprint_id=o.blueprint_id AND e.idx=o.idx
				WHERE o.blueprint_id=? AND e.entity_number=? ORDER BY o.idx DESC LIMIT ?`, blueprintID, entity, limit)
		} else {
			rows, err = db.Query(`SELECT idx,seq,label,tag,affected_json,at FROM ops WHERE blueprint_id=? ORDER BY idx DESC LIMIT ?`, blueprintID, limit)
		}
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Index    int64           `json:"index"`
				Seq      int64           `json:"seq"`
				Label    string          `json:"label"`
				Tag      string          `json:"tag,omitempty"`
				Affected json.RawMessage `json:"affected"`
				At       string          `json:"at"`
			}
			var affected string
			if err := rows.Scan(&r.Index, &r.Seq, &r.Label, &r.Tag, &affected, &r.At); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.Affected = json.RawMessage(affected)
			printJSON(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
