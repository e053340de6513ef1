package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backends returns a fresh instance of every ObjectStore implementation.
func backends(t *testing.T) map[string]ObjectStore {
	t.Helper()

	fsPlain, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	fsZstd, err := NewFSStore(t.TempDir(), WithCompression(true))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.sqlite3"))
	require.NoError(t, err)

	stores := map[string]ObjectStore{
		"fs":     fsPlain,
		"fs+zstd": fsZstd,
		"sqlite": sqlite,
		"mock":   NewMockStore(),
	}
	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})
	return stores
}

func TestObjectStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			obj := &Object{
				Key:      "abcdef0123",
				Type:     ObjectTypeArtifact,
				Data:     []byte("cached output\n"),
				Metadata: Metadata{Custom: map[string]string{"filter": "py"}},
			}
			require.NoError(t, store.Put(ctx, obj))

			exists, err := store.Exists(ctx, obj.Key)
			require.NoError(t, err)
			assert.True(t, exists)

			got, err := store.Get(ctx, obj.Key)
			require.NoError(t, err)
			assert.Equal(t, obj.Data, got.Data)
			assert.Equal(t, ObjectTypeArtifact, got.Type)
			assert.Equal(t, "py", got.Metadata.Custom["filter"])
			assert.False(t, got.Metadata.CreatedAt.IsZero())

			// Put replaces.
			require.NoError(t, store.Put(ctx, &Object{Key: obj.Key, Type: ObjectTypeArtifact, Data: []byte("v2")}))
			got, err = store.Get(ctx, obj.Key)
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got.Data))

			require.NoError(t, store.Put(ctx, &Object{Key: "batch-1", Type: ObjectTypeBatch, Data: []byte("{}")}))

			artifacts, err := store.List(ctx, ObjectTypeArtifact)
			require.NoError(t, err)
			assert.Equal(t, []string{obj.Key}, artifacts)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			sort.Strings(all)
			assert.Equal(t, []string{obj.Key, "batch-1"}, all)

			require.NoError(t, store.Delete(ctx, obj.Key))
			_, err = store.Get(ctx, obj.Key)
			assert.True(t, IsNotFound(err))
			assert.True(t, IsNotFound(store.Delete(ctx, obj.Key)))

			require.NoError(t, store.Clear(ctx))
			all, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestObjectStoreRejectsUnsafeKeys(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Put(context.Background(), &Object{Key: "../escape", Data: []byte("x")})
			assert.Error(t, err)
		})
	}
}

func TestObjectStoreConcurrentPuts(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := range 16 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					key := fmt.Sprintf("key%02d", i%4)
					assert.NoError(t, store.Put(ctx, &Object{Key: key, Type: ObjectTypeArtifact, Data: []byte(key)}))
				}(i)
			}
			wg.Wait()

			for i := range 4 {
				key := fmt.Sprintf("key%02d", i)
				got, err := store.Get(ctx, key)
				require.NoError(t, err)
				assert.Equal(t, key, string(got.Data))
			}
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Options{Backend: BackendSQLite, Dir: dir})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "cache.sqlite3"))
	require.NoError(t, s.Close())

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "redis", Dir: dir})
	assert.Error(t, err)
}
