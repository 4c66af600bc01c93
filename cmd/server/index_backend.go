package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"beltline.dev/internal/persistence/indexdb"
)

// openRuntimeIndex opens the read-model index selected by BL_INDEX_BACKEND.
// A nil index with a nil error means indexing is off.
func openRuntimeIndex(blueprintDir string, disableDB bool) (*indexdb.Index, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(blueprintDir, "index", "blueprint.sqlite"))
	case "postgres", "pg":
		dsn := strings.TrimSpace(os.Getenv("BL_PG_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("BL_INDEX_BACKEND=%s but BL_PG_DSN is empty", backend)
		}
		return indexdb.OpenPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported BL_INDEX_BACKEND: %s", backend)
	}
}
