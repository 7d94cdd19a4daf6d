package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"timbercraft.ai/internal/persistence/indexdb"
)

// openRuntimeIndex opens the block history index. A nil index with a nil error means indexing is
// disabled.
func openRuntimeIndex(worldDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TIMBER_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(worldDir, "index", "world.sqlite")
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported TIMBER_INDEX_BACKEND: %s", backend)
	}
}
