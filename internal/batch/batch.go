// Package batch tracks one execution session: the registered documents, the
// session's timestamps and its terminal state.
package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docpipe/internal/doc"
)

// State is a batch's lifecycle state.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// IsTerminal returns true if the state is final.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Batch is one run of the registered document set. Documents are kept in
// registration order and each key is registered at most once. Once terminal
// the batch no longer changes.
type Batch struct {
	id string

	mu         sync.Mutex
	start      time.Time
	end        time.Time
	state      State
	err        error
	docs       []*doc.Doc
	index      map[string]*doc.Doc
	onRegister []func(*doc.Doc)
	now        func() time.Time
}

// New starts a batch with a fresh id.
func New() *Batch {
	b := &Batch{
		id:    uuid.NewString(),
		state: StateRunning,
		index: make(map[string]*doc.Doc),
		now:   time.Now,
	}
	b.start = b.now()
	return b
}

// ID returns the batch id.
func (b *Batch) ID() string { return b.id }

// OnRegister adds a hook called, outside the lock, for every document
// registered after the hook was added.
func (b *Batch) OnRegister(fn func(*doc.Doc)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRegister = append(b.onRegister, fn)
}

// Register adds d. A key already present yields doc.ErrAlreadyRegistered.
func (b *Batch) Register(d *doc.Doc) error {
	key := d.KeyString()

	b.mu.Lock()
	if b.state.IsTerminal() {
		b.mu.Unlock()
		return fmt.Errorf("batch %s is %s; cannot register %s", b.id, b.state, key)
	}
	if _, exists := b.index[key]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", doc.ErrAlreadyRegistered, key)
	}
	b.index[key] = d
	b.docs = append(b.docs, d)
	hooks := append([]func(*doc.Doc){}, b.onRegister...)
	b.mu.Unlock()

	for _, fn := range hooks {
		fn(d)
	}
	return nil
}

// Lookup returns the document registered under key.
func (b *Batch) Lookup(key string) (*doc.Doc, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.index[key]
	return d, ok
}

// Docs returns registered documents in registration order.
func (b *Batch) Docs() []*doc.Doc {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*doc.Doc(nil), b.docs...)
}

// Len returns the number of registered documents.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.docs)
}

// State returns the current state.
func (b *Batch) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that failed the batch.
func (b *Batch) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// StartTime returns when the batch started.
func (b *Batch) StartTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start
}

// EndTime returns when the batch finished; zero while running.
func (b *Batch) EndTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.end
}

// Elapsed returns the run time so far, or the total once terminal.
func (b *Batch) Elapsed() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.end.IsZero() {
		return b.now().Sub(b.start)
	}
	return b.end.Sub(b.start)
}

// Complete marks the batch completed. It returns false if the batch was
// already terminal.
func (b *Batch) Complete() bool {
	return b.finish(StateCompleted, nil)
}

// Fail marks the batch failed with err. It returns false if the batch was
// already terminal.
func (b *Batch) Fail(err error) bool {
	return b.finish(StateFailed, err)
}

func (b *Batch) finish(state State, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.IsTerminal() {
		return false
	}
	b.state = state
	b.err = err
	b.end = b.now()
	return true
}
