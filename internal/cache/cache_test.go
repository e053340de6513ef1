package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/codec"
	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/storage"
)

func fp(t *testing.T, input string) fingerprint.Fingerprint {
	t.Helper()
	f, err := fingerprint.Compute(fingerprint.SHA256, fingerprint.Inputs{
		FilterAlias: "upper",
		InputName:   "a.txt",
		Input:       sectioned.Single([]byte(input)),
	})
	require.NoError(t, err)
	return f
}

func entryFor(output string) ComputeFunc {
	return func(context.Context) (*Entry, error) {
		e := &Entry{FilterAlias: "upper", Settings: map[string]any{"x": 1}}
		e.SetData(sectioned.Single([]byte(output)))
		return e, nil
	}
}

func countingCompute(calls *atomic.Int32, output string) ComputeFunc {
	inner := entryFor(output)
	return func(ctx context.Context) (*Entry, error) {
		calls.Add(1)
		return inner(ctx)
	}
}

func TestLookupOrComputeHitSkipsCompute(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	key := fp(t, "hello")

	var calls atomic.Int32
	first, outcome, err := New(store).LookupOrCompute(ctx, key, countingCompute(&calls, "HELLO"))
	require.NoError(t, err)
	assert.Equal(t, Computed, outcome)
	assert.Equal(t, key.Digest, first.Fingerprint)
	assert.Equal(t, "sha256", first.HashAlgorithm)

	// A new cache over the same store models the next run.
	second, outcome, err := New(store).LookupOrCompute(ctx, key, countingCompute(&calls, "ignored"))
	require.NoError(t, err)
	assert.Equal(t, Hit, outcome)
	assert.Equal(t, int32(1), calls.Load())

	data, err := second.Data()
	require.NoError(t, err)
	assert.Equal(t, "HELLO", data.String())
	assert.Equal(t, 5, second.ByteLength)
	assert.EqualValues(t, 1, second.Settings["x"])
}

func TestLookupOrComputeChangedInputRecomputes(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMockStore())

	var calls atomic.Int32
	_, _, err := c.LookupOrCompute(ctx, fp(t, "one"), countingCompute(&calls, "ONE"))
	require.NoError(t, err)
	_, outcome, err := c.LookupOrCompute(ctx, fp(t, "two"), countingCompute(&calls, "TWO"))
	require.NoError(t, err)

	assert.Equal(t, Computed, outcome)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookupOrComputeFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	c := New(store)

	boom := errors.New("filter failed")
	_, _, err := c.LookupOrCompute(ctx, fp(t, "x"), func(context.Context) (*Entry, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, store.Calls().Put)

	// The next attempt computes again.
	var calls atomic.Int32
	_, outcome, err := c.LookupOrCompute(ctx, fp(t, "x"), countingCompute(&calls, "X"))
	require.NoError(t, err)
	assert.Equal(t, Computed, outcome)
}

func TestLookupOrComputeStoreFailureIsCacheError(t *testing.T) {
	store := storage.NewMockStore()
	store.PutErr = errors.New("disk full")

	_, _, err := New(store).LookupOrCompute(context.Background(), fp(t, "x"), entryFor("X"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store cache entry")
}

func TestBypassSkipsLookupButWrites(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	key := fp(t, "hello")

	_, _, err := New(store).LookupOrCompute(ctx, key, entryFor("OLD"))
	require.NoError(t, err)

	getsBefore := store.Calls().Get
	var calls atomic.Int32
	forced := New(store).WithBypass(true)
	e, outcome, err := forced.LookupOrCompute(ctx, key, countingCompute(&calls, "NEW"))
	require.NoError(t, err)
	assert.Equal(t, Computed, outcome)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, getsBefore, store.Calls().Get)

	// Within the same session the fresh result is reused, not recomputed.
	_, outcome, err = forced.LookupOrCompute(ctx, key, countingCompute(&calls, "NEWER"))
	require.NoError(t, err)
	assert.Equal(t, Hit, outcome)
	assert.Equal(t, int32(1), calls.Load())

	// The forced result replaced the stored one.
	stored, err := New(store).Get(ctx, key.Digest)
	require.NoError(t, err)
	data, _ := stored.Data()
	assert.Equal(t, "NEW", data.String())
	data, _ = e.Data()
	assert.Equal(t, "NEW", data.String())
}

func TestConcurrentComputesCollapse(t *testing.T) {
	ctx := context.Background()
	c := New(storage.NewMockStore())
	key := fp(t, "shared")

	var calls atomic.Int32
	release := make(chan struct{})
	slow := func(ctx context.Context) (*Entry, error) {
		calls.Add(1)
		<-release
		return entryFor("SHARED")(ctx)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _, err := c.LookupOrCompute(ctx, key, slow)
			assert.NoError(t, err)
			assert.Equal(t, key.Digest, e.Fingerprint)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCorruptEntryIsRecomputed(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	key := fp(t, "x")
	require.NoError(t, store.Put(ctx, &storage.Object{Key: key.Digest, Type: storage.ObjectTypeArtifact, Data: []byte{0xff, 0x00}}))

	var calls atomic.Int32
	_, outcome, err := New(store).LookupOrCompute(ctx, key, countingCompute(&calls, "X"))
	require.NoError(t, err)
	assert.Equal(t, Computed, outcome)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUndecodableEntryLogsDiagnostic(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	key := fp(t, "x")
	bad, err := codec.Marshal(map[string]any{"fp": 7})
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, &storage.Object{Key: key.Digest, Type: storage.ObjectTypeArtifact, Data: bad}))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	var calls atomic.Int32
	_, outcome, err := New(store).WithLogger(logger).LookupOrCompute(ctx, key, countingCompute(&calls, "X"))
	require.NoError(t, err)
	assert.Equal(t, Computed, outcome)
	assert.Contains(t, logs.String(), "Undecodable cache entry")
	assert.Contains(t, logs.String(), "cbor=")
	assert.Contains(t, logs.String(), "fp")
}

func TestResetAndStats(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()
	c := New(store)

	_, _, err := c.LookupOrCompute(ctx, fp(t, "a"), entryFor("A"))
	require.NoError(t, err)
	_, _, err = c.LookupOrCompute(ctx, fp(t, "a"), entryFor("A"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Hits: 1, Misses: 1}, c.Stats())

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, c.Reset(ctx))
	keys, err = c.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = c.Get(ctx, fp(t, "a").Digest)
	assert.True(t, storage.IsNotFound(err))
}
