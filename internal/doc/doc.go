// Package doc models documents and runs their filter chains.
//
// A Doc is a source file plus an ordered chain of filters. Resolve binds the
// chain's aliases to registered filters; Run feeds the source through each
// step, consulting the artifact cache so a step whose fingerprint is already
// stored is never recomputed. Files a step discovers are handed to a
// Registrar, which schedules them in the same batch.
package doc

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

// ErrAlreadyRegistered is returned by a Registrar for a key it already holds.
var ErrAlreadyRegistered = errors.New("document already registered")

// Registrar accepts documents discovered while a batch runs.
type Registrar interface {
	Register(d *Doc) error
}

// State is a document's lifecycle state.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateInactive State = "inactive"
	// StateCancelled marks a document the run stopped before starting.
	StateCancelled State = "cancelled"
)

// ArtifactState is the state of one chain step.
type ArtifactState string

const (
	ArtifactPending  ArtifactState = "pending"
	ArtifactCached   ArtifactState = "cached"
	ArtifactComputed ArtifactState = "computed"
	ArtifactFailed   ArtifactState = "failed"
)

// Artifact is the result of one step of a document's chain.
type Artifact struct {
	Position    int
	Filter      string
	Fingerprint fingerprint.Fingerprint
	State       ArtifactState
	InputName   string
	OutputName  string
	Output      sectioned.Data
	Exit        *filter.Exit
	Started     time.Time
	Finished    time.Time
	Err         error
}

// Doc is one document in a batch.
type Doc struct {
	key       Key
	contents  *sectioned.Data
	overrides map[string]filter.Settings
	named     map[string]filter.Settings

	mu        sync.RWMutex
	children  []*Doc
	filters   []filter.Filter
	names     []string
	artifacts []*Artifact
	state     State
	err       error
	output    sectioned.Data
	digest    string
	started   time.Time
	finished  time.Time
}

// Option configures a Doc.
type Option func(*Doc)

// WithContents uses b instead of reading the source file.
func WithContents(b []byte) Option {
	return WithData(sectioned.Single(b))
}

// WithData uses d instead of reading the source file.
func WithData(d sectioned.Data) Option {
	return func(doc *Doc) { doc.contents = &d }
}

// WithSettings sets per-document overrides for the filter alias.
func WithSettings(alias string, s filter.Settings) Option {
	return func(doc *Doc) {
		doc.overrides[alias] = filter.Merge(doc.overrides[alias], s)
	}
}

// WithNamedSettings provides the settings sets "alias:ref" keys refer to.
func WithNamedSettings(named map[string]filter.Settings) Option {
	return func(doc *Doc) { maps.Copy(doc.named, named) }
}

// WithChildren declares dependencies that must complete first.
func WithChildren(children ...*Doc) Option {
	return func(doc *Doc) { doc.children = append(doc.children, children...) }
}

// New parses raw and creates a document.
func New(raw string, opts ...Option) (*Doc, error) {
	k, err := ParseKey(raw)
	if err != nil {
		return nil, err
	}
	return FromKey(k, opts...), nil
}

// FromKey creates a document for a parsed key.
func FromKey(k Key, opts ...Option) *Doc {
	d := &Doc{
		key:       k,
		overrides: make(map[string]filter.Settings),
		named:     make(map[string]filter.Settings),
		state:     StatePending,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Key returns the parsed key.
func (d *Doc) Key() Key { return d.key }

// KeyString returns the canonical key string.
func (d *Doc) KeyString() string { return d.key.String() }

// HasContents reports whether the source is held in memory.
func (d *Doc) HasContents() bool { return d.contents != nil }

// AddChild declares another dependency.
func (d *Doc) AddChild(c *Doc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children = append(d.children, c)
}

// Children returns declared dependencies.
func (d *Doc) Children() []*Doc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]*Doc(nil), d.children...)
}

// CompletedChildren returns the finished dependencies a filter may read.
func (d *Doc) CompletedChildren() []filter.Child {
	var out []filter.Child
	for _, c := range d.Children() {
		if c.State() != StateComplete {
			continue
		}
		out = append(out, filter.Child{Key: c.KeyString(), Name: c.OutputName(), Data: c.Output()})
	}
	return out
}

// State returns the lifecycle state.
func (d *Doc) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Err returns the error that failed the document, if any.
func (d *Doc) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.err
}

// Fail marks a document that could not be run at all.
func (d *Doc) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateFailed
	d.err = err
}

// Cancel marks a document that never started because the run stopped.
// Documents that already left the pending state are unchanged.
func (d *Doc) Cancel(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StatePending {
		return
	}
	d.state = StateCancelled
	d.err = err
}

// Artifacts returns a snapshot of the chain's steps.
func (d *Doc) Artifacts() []Artifact {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Artifact, len(d.artifacts))
	for i, a := range d.artifacts {
		out[i] = *a
	}
	return out
}

// Output returns the final step's output.
func (d *Doc) Output() sectioned.Data {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.output
}

// OutputName returns the file name of the final output. Before Resolve it
// is the source path.
func (d *Doc) OutputName() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.names) == 0 {
		return d.key.Path
	}
	return d.names[len(d.names)-1]
}

// Fingerprint identifies the final output: the last step's fingerprint, or a
// digest of the source for documents without filters.
func (d *Doc) Fingerprint() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.digest
}

// Duration returns how long Run took.
func (d *Doc) Duration() time.Duration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.started.IsZero() || d.finished.IsZero() {
		return 0
	}
	return d.finished.Sub(d.started)
}

// Resolve binds each alias to a registered filter and checks the chain's
// extensions line up. Unknown aliases and settings references are user
// errors.
func (d *Doc) Resolve(reg *filter.Registry) error {
	filters := make([]filter.Filter, 0, len(d.key.Filters))
	names := []string{d.key.Path}

	for i, ref := range d.key.Filters {
		f, err := reg.Lookup(ref.Alias)
		if err != nil {
			return d.annotate(err)
		}
		if ref.SettingsRef != "" {
			if _, ok := d.named[ref.SettingsRef]; !ok {
				return derrors.UserFeedback(fmt.Sprintf("settings '%s' referenced by '%s' are not defined", ref.SettingsRef, d.KeyString())).
					WithContext("doc", d.KeyString()).
					Build()
			}
		}

		info := f.Info()
		in := names[i]
		if !info.Accepts(path.Ext(in)) {
			return derrors.UserFeedback(fmt.Sprintf("filter '%s' cannot process '%s' files (accepts %s)",
				ref.Alias, path.Ext(in), strings.Join(info.InputExtensions, ", "))).
				WithContext("doc", d.KeyString()).
				WithContext("filter", ref.Alias).
				Build()
		}
		filters = append(filters, f)
		names = append(names, filter.OutputName(in, d.settingsFor(i, info).String("ext", info.OutputExtension)))
	}

	d.mu.Lock()
	d.filters = filters
	d.names = names
	d.mu.Unlock()
	return nil
}

// Resolved reports whether Resolve succeeded.
func (d *Doc) Resolved() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names) == len(d.key.Filters)+1
}

// settingsFor layers filter defaults, the named settings set and the
// per-document overrides for step i.
func (d *Doc) settingsFor(i int, info filter.Info) filter.Settings {
	ref := d.key.Filters[i]
	return filter.Merge(info.Defaults, d.named[ref.SettingsRef], d.overrides[ref.Alias])
}

// longName names step i's result, e.g. "example.sh-sh.txt".
func (d *Doc) longName(i int) string {
	aliases := d.key.Aliases()[:i+1]
	return d.key.Path + "-" + strings.Join(aliases, "-") + path.Ext(d.names[i+1])
}

func (d *Doc) annotate(err error) error {
	if ce, ok := derrors.AsClassified(err); ok {
		if _, has := ce.Context().Get("doc"); !has {
			return ce.WithContext("doc", d.KeyString())
		}
		return ce
	}
	return derrors.WrapError(err, derrors.CategoryInternal, "filter failed").
		WithContext("doc", d.KeyString()).
		Build()
}
