// Package sectioned holds the ordered, named segments of document content
// that flow between filter steps.
package sectioned

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// DefaultName names the single section of unsectioned content.
const DefaultName = "1"

// Section is one named segment of a document.
type Section struct {
	Name string
	Data []byte
}

// Data is an immutable ordered list of uniquely named sections. The zero
// value is an empty document with no sections.
type Data struct {
	sections []Section
	index    map[string]int
}

// Single wraps raw content as a one-section document.
func Single(b []byte) Data {
	return Data{
		sections: []Section{{Name: DefaultName, Data: bytes.Clone(b)}},
		index:    map[string]int{DefaultName: 0},
	}
}

// Len returns the number of sections.
func (d Data) Len() int { return len(d.sections) }

// Sections returns a copy of the sections in order.
func (d Data) Sections() []Section {
	out := make([]Section, len(d.sections))
	for i, s := range d.sections {
		out[i] = Section{Name: s.Name, Data: bytes.Clone(s.Data)}
	}
	return out
}

// Names returns the section names in order.
func (d Data) Names() []string {
	names := make([]string, len(d.sections))
	for i, s := range d.sections {
		names[i] = s.Name
	}
	return names
}

// Get returns the contents of the named section.
func (d Data) Get(name string) ([]byte, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(d.sections[i].Data), true
}

// Bytes concatenates all sections in order. For single-section content this
// is the content itself.
func (d Data) Bytes() []byte {
	var buf bytes.Buffer
	for _, s := range d.sections {
		buf.Write(s.Data)
	}
	return buf.Bytes()
}

// String returns Bytes as a string.
func (d Data) String() string { return string(d.Bytes()) }

// Size is the total byte length of all sections.
func (d Data) Size() int {
	n := 0
	for _, s := range d.sections {
		n += len(s.Data)
	}
	return n
}

// IsText reports whether every section is valid UTF-8.
func (d Data) IsText() bool {
	for _, s := range d.sections {
		if !utf8.Valid(s.Data) {
			return false
		}
	}
	return true
}

// Equal compares names, order and contents.
func (d Data) Equal(other Data) bool {
	if len(d.sections) != len(other.sections) {
		return false
	}
	for i, s := range d.sections {
		o := other.sections[i]
		if s.Name != o.Name || !bytes.Equal(s.Data, o.Data) {
			return false
		}
	}
	return true
}

// FromSections builds Data from an ordered list, rejecting duplicate names.
func FromSections(sections []Section) (Data, error) {
	var b Builder
	for _, s := range sections {
		if err := b.Add(s.Name, s.Data); err != nil {
			return Data{}, err
		}
	}
	return b.Build(), nil
}

// Builder accumulates sections in order. It is not safe for concurrent use.
type Builder struct {
	sections []Section
	index    map[string]int
}

// Add appends a new section. Names must be non-empty and unique.
func (b *Builder) Add(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("section name must not be empty")
	}
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if _, exists := b.index[name]; exists {
		return fmt.Errorf("duplicate section name %q", name)
	}
	b.index[name] = len(b.sections)
	b.sections = append(b.sections, Section{Name: name, Data: bytes.Clone(data)})
	return nil
}

// Len returns the number of sections added so far.
func (b *Builder) Len() int { return len(b.sections) }

// Build finalizes the sections into an immutable Data. The builder may keep
// being used; later additions do not affect the returned value.
func (b *Builder) Build() Data {
	d := Data{
		sections: make([]Section, len(b.sections)),
		index:    make(map[string]int, len(b.sections)),
	}
	copy(d.sections, b.sections)
	for i, s := range d.sections {
		d.index[s.Name] = i
	}
	return d
}
