package storage

import (
	"context"
	"encoding/json"
	"fmt"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	metaSuffix     = ".meta.json"
	customType     = "object_type"
	customEncoding = "encoding"
	encodingZstd   = "zstd"
)

// FSStore is a filesystem-based implementation of ObjectStore:
//
//	<base>/
//	  objects/
//	    ab/
//	      cd1234...            record (first 2 chars = subdir)
//	      cd1234....meta.json  metadata
//
// Files are written to a temporary name and renamed into place.
type FSStore struct {
	basePath string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	mu       sync.RWMutex
}

// FSOption configures an FSStore.
type FSOption func(*FSStore)

// WithCompression stores records zstd-compressed.
func WithCompression(enabled bool) FSOption {
	return func(fs *FSStore) { fs.compress = enabled }
}

// NewFSStore creates a new filesystem-based object store.
func NewFSStore(basePath string, opts ...FSOption) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(basePath, "objects"), 0o750); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", basePath, err)
	}

	store := &FSStore{basePath: basePath}
	for _, opt := range opts {
		opt(store)
	}

	var err error
	store.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	store.dec, err = zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return store, nil
}

// BasePath returns the store root.
func (fs *FSStore) BasePath() string { return fs.basePath }

// Put stores an object, replacing any existing record with the same key.
func (fs *FSStore) Put(_ context.Context, obj *Object) error {
	if err := ValidateKey(obj.Key); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectPath := fs.objectPath(obj.Key)
	if err := os.MkdirAll(filepath.Dir(objectPath), 0o750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	now := time.Now().UTC()
	metadata := Metadata{
		CreatedAt:    now,
		LastAccessed: now,
		Custom:       make(map[string]string),
	}
	maps.Copy(metadata.Custom, obj.Metadata.Custom)
	metadata.Custom[customType] = string(obj.Type)

	data := obj.Data
	if fs.compress {
		data = fs.enc.EncodeAll(obj.Data, nil)
		metadata.Custom[customEncoding] = encodingZstd
	}

	if err := fs.writeMetadata(obj.Key, metadata); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := writeFileAtomic(objectPath, data); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

// Get retrieves an object by key. Reads leave the store untouched.
func (fs *FSStore) Get(_ context.Context, key string) (*Object, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	// #nosec G304 - objectPath is internal, constructed from a validated key
	data, err := os.ReadFile(fs.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("read object: %w", err)
	}

	metadata, err := fs.readMetadata(key)
	if err != nil {
		return nil, fmt.Errorf("object %s has unreadable metadata: %w", key, err)
	}

	if metadata.Custom[customEncoding] == encodingZstd {
		data, err = fs.dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress object %s: %w", key, err)
		}
	}

	return &Object{
		Key:      key,
		Type:     ObjectType(metadata.Custom[customType]),
		Data:     data,
		Metadata: metadata,
	}, nil
}

// Exists checks if an object with the given key exists.
func (fs *FSStore) Exists(_ context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	_, err := os.Stat(fs.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object: %w", err)
	}
	return true, nil
}

// Delete removes an object by key.
func (fs *FSStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectPath := fs.objectPath(key)
	if err := os.Remove(objectPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound{Key: key}
		}
		return fmt.Errorf("delete object: %w", err)
	}
	_ = os.Remove(objectPath + metaSuffix)
	_ = os.Remove(filepath.Dir(objectPath)) // only succeeds when empty
	return nil
}

// List returns all keys matching the given type filter.
func (fs *FSStore) List(_ context.Context, objectType ObjectType) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var keys []string
	objectsDir := filepath.Join(fs.basePath, "objects")

	err := filepath.WalkDir(objectsDir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".tmp-") {
			return nil
		}

		relPath, err := filepath.Rel(objectsDir, path)
		if err != nil {
			return nil
		}
		key := strings.ReplaceAll(relPath, string(filepath.Separator), "")

		if objectType != "" {
			metadata, err := fs.readMetadata(key)
			if err != nil || ObjectType(metadata.Custom[customType]) != objectType {
				return nil
			}
		}

		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk objects: %w", err)
	}
	return keys, nil
}

// Clear removes every stored object.
func (fs *FSStore) Clear(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	objectsDir := filepath.Join(fs.basePath, "objects")
	if err := os.RemoveAll(objectsDir); err != nil {
		return fmt.Errorf("clear objects: %w", err)
	}
	return os.MkdirAll(objectsDir, 0o750)
}

// Close releases the compression codecs.
func (fs *FSStore) Close() error {
	fs.dec.Close()
	return fs.enc.Close()
}

func (fs *FSStore) objectPath(key string) string {
	if len(key) < 3 {
		return filepath.Join(fs.basePath, "objects", key)
	}
	return filepath.Join(fs.basePath, "objects", key[:2], key[2:])
}

func (fs *FSStore) readMetadata(key string) (Metadata, error) {
	// #nosec G304 - path is internal, constructed from a validated key
	data, err := os.ReadFile(fs.objectPath(key) + metaSuffix)
	if err != nil {
		return Metadata{}, fmt.Errorf("read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if metadata.Custom == nil {
		metadata.Custom = make(map[string]string)
	}
	return metadata, nil
}

func (fs *FSStore) writeMetadata(key string, metadata Metadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	return writeFileAtomic(fs.objectPath(key)+metaSuffix, data)
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
