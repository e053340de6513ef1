package cache

import (
	"time"

	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

// Section is a persisted section.
type Section struct {
	Name string `cbor:"n"`
	Data []byte `cbor:"d"`
}

// ExitInfo records how a subprocess step ended.
type ExitInfo struct {
	Command    string `cbor:"cmd"`
	State      string `cbor:"state"`
	Code       int    `cbor:"code"`
	DurationMS int64  `cbor:"ms"`
}

// Discovered is a file found in a working directory after a step ran. It is
// persisted with the entry so a cache hit registers the same documents as
// the original run.
type Discovered struct {
	Key      string    `cbor:"key"`
	Sections []Section `cbor:"sections"`
	Binary   bool      `cbor:"binary"`
}

// Entry is the persisted record of one filter step.
type Entry struct {
	Fingerprint   string         `cbor:"fp"`
	HashAlgorithm string         `cbor:"alg"`
	FilterAlias   string         `cbor:"filter"`
	FilterVersion string         `cbor:"version"`
	Settings      map[string]any `cbor:"settings"`
	Sections      []Section      `cbor:"sections"`
	ByteLength    int            `cbor:"len"`
	Binary        bool           `cbor:"binary"`
	Exit          *ExitInfo      `cbor:"exit,omitempty"`
	Discovered    []Discovered   `cbor:"discovered,omitempty"`
	CreatedAt     time.Time      `cbor:"created"`
}

// FromData converts sectioned content to persisted sections.
func FromData(d sectioned.Data) []Section {
	secs := d.Sections()
	out := make([]Section, len(secs))
	for i, s := range secs {
		out[i] = Section{Name: s.Name, Data: s.Data}
	}
	return out
}

// ToData converts persisted sections back to sectioned content.
func ToData(secs []Section) (sectioned.Data, error) {
	in := make([]sectioned.Section, len(secs))
	for i, s := range secs {
		in[i] = sectioned.Section{Name: s.Name, Data: s.Data}
	}
	return sectioned.FromSections(in)
}

// Data returns the entry's output.
func (e *Entry) Data() (sectioned.Data, error) {
	return ToData(e.Sections)
}

// SetData fills sections, length and the binary flag from d.
func (e *Entry) SetData(d sectioned.Data) {
	e.Sections = FromData(d)
	e.ByteLength = d.Size()
	e.Binary = !d.IsText()
}
