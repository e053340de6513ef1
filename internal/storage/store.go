// Package storage persists artifact cache records and batch records.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ObjectStore maps keys (fingerprints, batch ids) to opaque records.
//
// Writes are atomic: a reader sees either the previous record or the new
// one, never a partial write.
type ObjectStore interface {
	// Put stores an object under obj.Key, replacing any existing record.
	Put(ctx context.Context, obj *Object) error

	// Get retrieves an object by key. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, key string) (*Object, error)

	// Exists checks if an object with the given key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys of the given type. An empty type lists everything.
	List(ctx context.Context, objectType ObjectType) ([]string, error)

	// Clear removes every object.
	Clear(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Object is a stored record with its metadata.
type Object struct {
	Key      string
	Type     ObjectType
	Data     []byte
	Metadata Metadata
}

// Metadata stores object metadata.
type Metadata struct {
	CreatedAt    time.Time
	LastAccessed time.Time
	Custom       map[string]string
}

// ObjectType identifies the kind of stored object.
type ObjectType string

const (
	// ObjectTypeArtifact is a cached filter step output keyed by fingerprint.
	ObjectTypeArtifact ObjectType = "artifact"

	// ObjectTypeBatch is a finished batch record keyed by batch id.
	ObjectTypeBatch ObjectType = "batch"
)

// ErrNotFound is returned when an object doesn't exist.
type ErrNotFound struct {
	Key string
}

func (e ErrNotFound) Error() string {
	return "object not found: " + e.Key
}

// IsNotFound returns true if the error chain contains ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// ValidateKey rejects keys that are unsafe as file names.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty object key")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return fmt.Errorf("invalid character %q in object key %q", r, key)
		}
	}
	return nil
}
