package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend aliases accepted by Open.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Dir is the cache directory. The sqlite backend keeps File inside it.
	Dir      string
	File     string
	Compress bool
}

// Open creates the configured store.
func Open(opts Options) (ObjectStore, error) {
	switch opts.Backend {
	case "", BackendFS:
		return NewFSStore(opts.Dir, WithCompression(opts.Compress))
	case BackendSQLite:
		file := opts.File
		if file == "" {
			file = "cache.sqlite3"
		}
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		return NewSQLiteStore(filepath.Join(opts.Dir, file))
	case BackendMemory:
		return NewMockStore(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}
