// Package cache stores filter step outputs by fingerprint so unchanged work
// is never redone.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"git.home.luguber.info/inful/docpipe/internal/codec"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/storage"
)

// Outcome tells the caller whether compute ran.
type Outcome string

const (
	Hit      Outcome = "hit"
	Computed Outcome = "computed"
)

// ComputeFunc produces the entry for a fingerprint on a miss.
type ComputeFunc func(ctx context.Context) (*Entry, error)

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   int64
	Misses int64
}

// ArtifactCache maps fingerprints to persisted step outputs.
//
// Entries computed during this cache's lifetime are also kept in memory, so
// within one batch each fingerprint is written at most once even when lookups
// bypass the store.
type ArtifactCache struct {
	store  storage.ObjectStore
	logger *slog.Logger
	bypass bool
	group  singleflight.Group
	mu     sync.RWMutex
	fresh  map[string]*Entry
	hits   atomic.Int64
	misses atomic.Int64
	now    func() time.Time
}

// New creates a cache over store.
func New(store storage.ObjectStore) *ArtifactCache {
	return &ArtifactCache{
		store:  store,
		logger: slog.Default(),
		fresh:  make(map[string]*Entry),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets a custom logger.
func (c *ArtifactCache) WithLogger(logger *slog.Logger) *ArtifactCache {
	c.logger = logger
	return c
}

// WithBypass skips store lookups (force mode). Results are still written.
func (c *ArtifactCache) WithBypass(bypass bool) *ArtifactCache {
	c.bypass = bypass
	return c
}

// LookupOrCompute returns the entry for fp, calling compute only when no
// usable entry exists. A failed compute writes nothing. Concurrent calls for
// the same fingerprint share one compute.
func (c *ArtifactCache) LookupOrCompute(ctx context.Context, fp fingerprint.Fingerprint, compute ComputeFunc) (*Entry, Outcome, error) {
	key := fp.String()
	if err := storage.ValidateKey(key); err != nil {
		return nil, "", derrors.WrapError(err, derrors.CategoryCache, "invalid fingerprint").Build()
	}

	type result struct {
		entry   *Entry
		outcome Outcome
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if e := c.remembered(key); e != nil {
			return result{e, Hit}, nil
		}

		if !c.bypass {
			e, err := c.load(ctx, key)
			switch {
			case err == nil:
				c.remember(key, e)
				return result{e, Hit}, nil
			case !storage.IsNotFound(err):
				c.logger.Warn("Unreadable cache entry, recomputing",
					logfields.Fingerprint(key), logfields.Error(err))
			}
		}

		e, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		e.Fingerprint = key
		e.HashAlgorithm = string(fp.Algorithm)
		if e.CreatedAt.IsZero() {
			e.CreatedAt = c.now()
		}
		if err := c.save(ctx, e); err != nil {
			return nil, err
		}
		c.remember(key, e)
		return result{e, Computed}, nil
	})
	if err != nil {
		return nil, "", err
	}

	r := v.(result)
	if r.outcome == Hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return r.entry, r.outcome, nil
}

// Get returns a stored entry without computing.
func (c *ArtifactCache) Get(ctx context.Context, key string) (*Entry, error) {
	if e := c.remembered(key); e != nil {
		return e, nil
	}
	return c.load(ctx, key)
}

// Keys lists all stored fingerprints.
func (c *ArtifactCache) Keys(ctx context.Context) ([]string, error) {
	return c.store.List(ctx, storage.ObjectTypeArtifact)
}

// Reset removes every stored entry.
func (c *ArtifactCache) Reset(ctx context.Context) error {
	c.mu.Lock()
	c.fresh = make(map[string]*Entry)
	c.mu.Unlock()

	keys, err := c.store.List(ctx, storage.ObjectTypeArtifact)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryCache, "failed to list cache entries").Build()
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil && !storage.IsNotFound(err) {
			return derrors.WrapError(err, derrors.CategoryCache, "failed to delete cache entry").
				WithContext("fingerprint", k).
				Build()
		}
	}
	c.logger.Info("Artifact cache reset", slog.Int("entries", len(keys)))
	return nil
}

// Stats returns hit and miss counts.
func (c *ArtifactCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func (c *ArtifactCache) remembered(key string) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fresh[key]
}

func (c *ArtifactCache) remember(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh[key] = e
}

func (c *ArtifactCache) load(ctx context.Context, key string) (*Entry, error) {
	obj, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := codec.Unmarshal(obj.Data, &e); err != nil {
		if diag, derr := codec.Diagnose(obj.Data); derr == nil {
			c.logger.Debug("Undecodable cache entry", logfields.Fingerprint(key), slog.String("cbor", diag))
		}
		return nil, derrors.WrapError(err, derrors.CategoryCache, "failed to decode cache entry").Build()
	}
	if e.Fingerprint != key {
		return nil, derrors.CacheError("cache entry fingerprint mismatch").
			WithContext("fingerprint", key).
			Build()
	}
	return &e, nil
}

func (c *ArtifactCache) save(ctx context.Context, e *Entry) error {
	data, err := codec.Marshal(e)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryCache, "failed to encode cache entry").Build()
	}

	obj := &storage.Object{
		Key:  e.Fingerprint,
		Type: storage.ObjectTypeArtifact,
		Data: data,
		Metadata: storage.Metadata{Custom: map[string]string{
			"filter":         e.FilterAlias,
			"hash_algorithm": e.HashAlgorithm,
			"byte_length":    strconv.Itoa(e.ByteLength),
		}},
	}
	if err := c.store.Put(ctx, obj); err != nil {
		return derrors.WrapError(err, derrors.CategoryCache, "failed to store cache entry").
			WithContext("fingerprint", e.Fingerprint).
			Build()
	}

	c.logger.Debug("Cached artifact",
		logfields.Fingerprint(e.Fingerprint),
		logfields.Filter(e.FilterAlias),
		slog.Int("bytes", e.ByteLength))
	return nil
}
