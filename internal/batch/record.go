package batch

import (
	"context"
	"sort"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/codec"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/storage"
)

// ArtifactRecord summarises one chain step.
type ArtifactRecord struct {
	Filter      string `json:"filter" cbor:"filter"`
	State       string `json:"state" cbor:"state"`
	Fingerprint string `json:"fingerprint,omitempty" cbor:"fp,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty" cbor:"exit,omitempty"`
	DurationMS  int64  `json:"duration_ms" cbor:"ms"`
	Error       string `json:"error,omitempty" cbor:"err,omitempty"`
}

// DocRecord summarises one document.
type DocRecord struct {
	Key         string           `json:"key" cbor:"key"`
	State       string           `json:"state" cbor:"state"`
	OutputName  string           `json:"output_name" cbor:"out"`
	Fingerprint string           `json:"fingerprint,omitempty" cbor:"fp,omitempty"`
	DurationMS  int64            `json:"duration_ms" cbor:"ms"`
	Error       string           `json:"error,omitempty" cbor:"err,omitempty"`
	Artifacts   []ArtifactRecord `json:"artifacts,omitempty" cbor:"artifacts,omitempty"`
}

// Record is the persisted summary of a batch.
type Record struct {
	ID        string      `json:"id" cbor:"id"`
	State     State       `json:"state" cbor:"state"`
	StartTime time.Time   `json:"start_time" cbor:"start"`
	EndTime   time.Time   `json:"end_time" cbor:"end"`
	Error     string      `json:"error,omitempty" cbor:"err,omitempty"`
	Docs      []DocRecord `json:"docs" cbor:"docs"`
}

// Elapsed returns the batch duration.
func (r Record) Elapsed() time.Duration { return r.EndTime.Sub(r.StartTime) }

// Count returns how many documents ended in state.
func (r Record) Count(state doc.State) int {
	n := 0
	for _, d := range r.Docs {
		if d.State == string(state) {
			n++
		}
	}
	return n
}

// Record snapshots the batch.
func (b *Batch) Record() Record {
	b.mu.Lock()
	rec := Record{ID: b.id, State: b.state, StartTime: b.start, EndTime: b.end}
	if b.err != nil {
		rec.Error = b.err.Error()
	}
	docs := append([]*doc.Doc(nil), b.docs...)
	b.mu.Unlock()

	for _, d := range docs {
		dr := DocRecord{
			Key:         d.KeyString(),
			State:       string(d.State()),
			OutputName:  d.OutputName(),
			Fingerprint: d.Fingerprint(),
			DurationMS:  d.Duration().Milliseconds(),
		}
		if err := d.Err(); err != nil {
			dr.Error = err.Error()
		}
		for _, a := range d.Artifacts() {
			ar := ArtifactRecord{
				Filter:      a.Filter,
				State:       string(a.State),
				Fingerprint: a.Fingerprint.Digest,
			}
			if !a.Finished.IsZero() {
				ar.DurationMS = a.Finished.Sub(a.Started).Milliseconds()
			}
			if a.Exit != nil {
				code := a.Exit.Code
				ar.ExitCode = &code
			}
			if a.Err != nil {
				ar.Error = a.Err.Error()
			}
			dr.Artifacts = append(dr.Artifacts, ar)
		}
		rec.Docs = append(rec.Docs, dr)
	}
	return rec
}

// Save persists rec in store.
func Save(ctx context.Context, store storage.ObjectStore, rec Record) error {
	data, err := codec.Marshal(rec)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to encode batch record").Build()
	}
	obj := &storage.Object{
		Key:  rec.ID,
		Type: storage.ObjectTypeBatch,
		Data: data,
		Metadata: storage.Metadata{Custom: map[string]string{
			"state": string(rec.State),
		}},
	}
	if err := store.Put(ctx, obj); err != nil {
		return derrors.WrapError(err, derrors.CategoryCache, "failed to store batch record").
			WithContext("batch_id", rec.ID).
			Build()
	}
	return nil
}

// Load reads one batch record.
func Load(ctx context.Context, store storage.ObjectStore, id string) (Record, error) {
	obj, err := store.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := codec.Unmarshal(obj.Data, &rec); err != nil {
		return Record{}, derrors.WrapError(err, derrors.CategoryCache, "failed to decode batch record").
			WithContext("batch_id", id).
			Build()
	}
	return rec, nil
}

// List returns all stored batch records, newest first.
func List(ctx context.Context, store storage.ObjectStore) ([]Record, error) {
	ids, err := store.List(ctx, storage.ObjectTypeBatch)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := Load(ctx, store, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}
