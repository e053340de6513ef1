// Package sectioning splits source text into named sections using comment
// markers.
//
// A marker is exactly three identical comment characters (#, % or /)
// followed by a space and a directive:
//
//	### name          start section "name" at level 0
//	### ::name        start section "name" at level 2 (one colon per level)
//	### @export name  start section "name"; the name may be quoted and
//	                  followed by a language word
//	### @end          start an anonymous section at the current level
//	code ### &tag     inline tag, the code is kept
//
// Anonymous sections are named by their 1-based position.
package sectioning

import (
	"fmt"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

// Options controls parsing.
type Options struct {
	// RemoveLeading drops an empty anonymous first section when it is the
	// only section at the time a named section starts, or at the end.
	RemoveLeading bool
}

// Section is one parsed section with its nesting level.
type Section struct {
	Name     string
	Level    int
	Line     int
	Contents string
}

// Document is the finalized parse result.
type Document struct {
	Sections []Section
}

// Data converts the document to sectioned content.
func (d Document) Data() sectioned.Data {
	var b sectioned.Builder
	for _, s := range d.Sections {
		// Names are unique by construction.
		_ = b.Add(s.Name, []byte(s.Contents))
	}
	return b.Build()
}

// Names lists the section names in order.
func (d Document) Names() []string {
	names := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		names[i] = s.Name
	}
	return names
}

type syntaxError struct {
	line int
	pos  int
	msg  string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.line, e.msg)
}

func invalid(err *syntaxError) error {
	return errors.UserFeedback("invalid idiopidae").
		WithCause(err).
		WithContext("line", err.line).
		Build()
}

// Parse splits text into sections. Any malformed marker is a UserFeedback error.
func Parse(text string, opts Options) (Document, error) {
	if text != "" && !strings.HasSuffix(text, "\n") && !strings.HasSuffix(text, "\r") {
		text += "\n"
	}

	toks, err := tokenize(text)
	if err != nil {
		if se, ok := err.(*syntaxError); ok {
			return Document{}, invalid(se)
		}
		return Document{}, err
	}

	p := &parser{toks: toks, opts: opts}
	p.sections = []*Section{{Name: "1", Line: 1}}
	p.index = map[string]int{"1": 0}

	for p.peek().kind != tokEOF {
		if err := p.entry(); err != nil {
			return Document{}, invalid(err)
		}
	}
	p.finish()

	doc := Document{Sections: make([]Section, len(p.sections))}
	for i, s := range p.sections {
		doc.Sections[i] = *s
	}
	return doc, nil
}

type parser struct {
	toks     []token
	pos      int
	opts     Options
	level    int
	sections []*Section
	index    map[string]int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, *syntaxError) {
	t := p.peek()
	if t.kind != kind {
		return t, p.unexpected(t)
	}
	return p.advance(), nil
}

func (p *parser) unexpected(t token) *syntaxError {
	return &syntaxError{line: t.line, pos: t.pos, msg: fmt.Sprintf("unexpected %s %q", t.kind, t.value)}
}

func (p *parser) current() *Section { return p.sections[len(p.sections)-1] }

func (p *parser) appendText(s string) { p.current().Contents += s }

// entry consumes one line.
func (p *parser) entry() *syntaxError {
	t := p.peek()
	switch {
	case t.kind == tokNewline:
		p.advance()
		p.appendText("\n")
		return nil
	case t.kind == tokIdio:
		return p.markerLine()
	case t.kind == tokWhitespace && p.peekAt(1).kind == tokIdio:
		p.advance()
		return p.markerLine()
	case t.kind == tokCode || t.kind == tokWhitespace:
		return p.codeLine()
	default:
		return p.unexpected(t)
	}
}

func (p *parser) codeLine() *syntaxError {
	var code strings.Builder
	for k := p.peek().kind; k == tokCode || k == tokWhitespace; k = p.peek().kind {
		code.WriteString(p.advance().value)
	}

	if p.peek().kind == tokIdio {
		p.advance()
		if _, err := p.expect(tokAmp); err != nil {
			return err
		}
		if _, err := p.expect(tokWord); err != nil {
			return err
		}
	}
	if _, err := p.expect(tokNewline); err != nil {
		return err
	}
	p.appendText(code.String() + "\n")
	return nil
}

func (p *parser) markerLine() *syntaxError {
	marker := p.advance()

	var err *syntaxError
	switch t := p.peek(); t.kind {
	case tokWord:
		p.advance()
		err = p.startSection(marker, t.value, 0)
	case tokColons:
		p.advance()
		name, e := p.expect(tokWord)
		if e != nil {
			return e
		}
		err = p.startSection(marker, name.value, len(t.value))
	case tokAt:
		p.advance()
		err = p.directive(marker)
	default:
		return p.unexpected(t)
	}
	if err != nil {
		return err
	}

	if p.peek().kind == tokWhitespace {
		p.advance()
	}
	_, err = p.expect(tokNewline)
	return err
}

func (p *parser) directive(marker token) *syntaxError {
	switch t := p.peek(); t.kind {
	case tokEnd:
		p.advance()
		return p.startSection(marker, "", p.level)
	case tokExport:
		p.advance()
	default:
		return p.unexpected(t)
	}

	if _, err := p.expect(tokWhitespace); err != nil {
		return err
	}

	if k := p.peek().kind; k != tokDblQuote && k != tokSglQuote {
		name, err := p.words()
		if err != nil {
			return err
		}
		return p.startSection(marker, name, 0)
	}

	p.advance()
	name, err := p.words()
	if err != nil {
		return err
	}
	if k := p.peek().kind; k != tokDblQuote && k != tokSglQuote {
		return p.unexpected(p.peek())
	}
	p.advance()

	// Optional language after the quoted name.
	if p.peek().kind == tokWhitespace && p.peekAt(1).kind == tokWord {
		p.advance()
		if _, err := p.words(); err != nil {
			return err
		}
	}
	return p.startSection(marker, name, 0)
}

// words reads WORD (WHITESPACE WORD)* and returns the joined text.
func (p *parser) words() (string, *syntaxError) {
	first, err := p.expect(tokWord)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(first.value)
	for p.peek().kind == tokWhitespace && p.peekAt(1).kind == tokWord {
		b.WriteString(p.advance().value)
		b.WriteString(p.advance().value)
	}
	return b.String(), nil
}

// startSection completes the current section and opens a new one.
func (p *parser) startSection(marker token, name string, level int) *syntaxError {
	p.trimCurrent()

	if name != "" {
		if p.opts.RemoveLeading {
			p.removeLeading()
		}
	} else {
		name = strconv.Itoa(len(p.sections) + 1)
	}
	name = strings.TrimRight(name, " \t")

	switch {
	case level < 0:
		return &syntaxError{line: marker.line, pos: marker.pos, msg: "attempting to indent to level below 0"}
	case level > p.level+1:
		return &syntaxError{line: marker.line, pos: marker.pos, msg: fmt.Sprintf("attempting to indent more than one level (from %d to %d)", p.level, level)}
	}
	if _, exists := p.index[name]; exists {
		return &syntaxError{line: marker.line, pos: marker.pos, msg: fmt.Sprintf("duplicate section name %q", name)}
	}

	p.level = level
	p.index[name] = len(p.sections)
	p.sections = append(p.sections, &Section{Name: name, Level: level, Line: marker.line})
	return nil
}

// trimCurrent drops the last newline of the current section and anything after it.
func (p *parser) trimCurrent() {
	cur := p.current()
	if i := strings.LastIndex(cur.Contents, "\n"); i >= 0 {
		cur.Contents = cur.Contents[:i]
	}
}

func (p *parser) removeLeading() {
	if len(p.sections) != 1 {
		return
	}
	first := p.sections[0]
	if first.Name != "1" || first.Contents != "" {
		return
	}
	p.sections = p.sections[:0]
	delete(p.index, "1")
}

func (p *parser) finish() {
	if len(p.sections) == 0 {
		return
	}
	p.trimCurrent()
	if p.opts.RemoveLeading {
		p.removeLeading()
	}
}
