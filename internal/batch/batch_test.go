package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/doc"
	"git.home.luguber.info/inful/docpipe/internal/storage"
)

func mustDoc(t *testing.T, key string) *doc.Doc {
	t.Helper()
	d, err := doc.New(key, doc.WithContents([]byte("x")))
	require.NoError(t, err)
	return d
}

func TestNewBatch(t *testing.T) {
	b := New()
	assert.Len(t, b.ID(), 36)
	assert.Equal(t, StateRunning, b.State())
	assert.False(t, b.StartTime().IsZero())
	assert.True(t, b.EndTime().IsZero())
	assert.NotEqual(t, b.ID(), New().ID())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	b := New()
	require.NoError(t, b.Register(mustDoc(t, "a.txt")))
	require.NoError(t, b.Register(mustDoc(t, "a.txt|copy")))

	err := b.Register(mustDoc(t, "a.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, doc.ErrAlreadyRegistered))

	assert.Equal(t, 2, b.Len())
	var keys []string
	for _, d := range b.Docs() {
		keys = append(keys, d.KeyString())
	}
	assert.Equal(t, []string{"a.txt", "a.txt|copy"}, keys)

	d, ok := b.Lookup("a.txt|copy")
	require.True(t, ok)
	assert.Equal(t, "a.txt|copy", d.KeyString())
}

func TestOnRegisterHook(t *testing.T) {
	b := New()
	var seen []string
	b.OnRegister(func(d *doc.Doc) { seen = append(seen, d.KeyString()) })

	require.NoError(t, b.Register(mustDoc(t, "one.txt")))
	_ = b.Register(mustDoc(t, "one.txt"))
	require.NoError(t, b.Register(mustDoc(t, "two.txt")))
	assert.Equal(t, []string{"one.txt", "two.txt"}, seen)
}

func TestTerminalIsFinal(t *testing.T) {
	b := New()
	boom := errors.New("boom")
	assert.True(t, b.Fail(boom))
	end := b.EndTime()

	assert.False(t, b.Complete())
	assert.False(t, b.Fail(errors.New("other")))
	assert.Equal(t, StateFailed, b.State())
	assert.Equal(t, boom, b.Err())
	assert.Equal(t, end, b.EndTime())
	assert.Error(t, b.Register(mustDoc(t, "late.txt")))
	assert.GreaterOrEqual(t, b.Elapsed(), time.Duration(0))
}

func TestRecordSaveListLoad(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMockStore()

	first := New()
	require.NoError(t, first.Register(mustDoc(t, "a.txt")))
	first.Complete()
	require.NoError(t, Save(ctx, store, first.Record()))

	time.Sleep(2 * time.Millisecond)
	second := New()
	second.Fail(errors.New("nope"))
	require.NoError(t, Save(ctx, store, second.Record()))

	recs, err := List(ctx, store)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, second.ID(), recs[0].ID, "newest first")
	assert.Equal(t, StateFailed, recs[0].State)
	assert.Equal(t, "nope", recs[0].Error)

	rec, err := Load(ctx, store, first.ID())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, rec.State)
	require.Len(t, rec.Docs, 1)
	assert.Equal(t, "a.txt", rec.Docs[0].Key)
	assert.Equal(t, string(doc.StatePending), rec.Docs[0].State)
	assert.Equal(t, 1, rec.Count(doc.StatePending))
	assert.True(t, rec.StartTime.Equal(first.StartTime()))

	_, err = Load(ctx, store, "missing")
	assert.True(t, storage.IsNotFound(err))
}
