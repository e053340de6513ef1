package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"maps"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements ObjectStore on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		key TEXT PRIMARY KEY,
		object_type TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		data BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_object_type ON objects(object_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores an object in a single statement, replacing any existing row.
func (s *SQLiteStore) Put(ctx context.Context, obj *Object) error {
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	custom := make(map[string]string, len(obj.Metadata.Custom))
	maps.Copy(custom, obj.Metadata.Custom)
	metadataJSON, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	now := time.Now().UTC().UnixNano()
	data := obj.Data
	if data == nil {
		data = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO objects (key, object_type, created_at, last_accessed, data, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		obj.Key, string(obj.Type), now, now, data, string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	return nil
}

// Get retrieves an object by key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		objectType   string
		created      int64
		accessed     int64
		data         []byte
		metadataJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT object_type, created_at, last_accessed, data, metadata FROM objects WHERE key = ?",
		key,
	).Scan(&objectType, &created, &accessed, &data, &metadataJSON)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("query object: %w", err)
	}

	custom := make(map[string]string)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &custom); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, "UPDATE objects SET last_accessed = ? WHERE key = ?", now.UnixNano(), key); err != nil {
		return nil, fmt.Errorf("update access time: %w", err)
	}

	return &Object{
		Key:  key,
		Type: ObjectType(objectType),
		Data: data,
		Metadata: Metadata{
			CreatedAt:    time.Unix(0, created).UTC(),
			LastAccessed: now,
			Custom:       custom,
		},
	}, nil
}

// Exists checks if an object with the given key exists.
func (s *SQLiteStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM objects WHERE key = ?", key).Scan(&one)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query object: %w", err)
	}
	return true, nil
}

// Delete removes an object by key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM objects WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if n == 0 {
		return ErrNotFound{Key: key}
	}
	return nil
}

// List returns all keys matching the given type filter, ordered by creation.
func (s *SQLiteStore) List(ctx context.Context, objectType ObjectType) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT key FROM objects ORDER BY created_at, key"
	args := []any{}
	if objectType != "" {
		query = "SELECT key FROM objects WHERE object_type = ? ORDER BY created_at, key"
		args = append(args, string(objectType))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Clear removes every stored object.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM objects"); err != nil {
		return fmt.Errorf("clear objects: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
