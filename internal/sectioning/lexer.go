package sectioning

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokCode
	tokWhitespace
	tokNewline
	tokIdio
	tokAt
	tokAmp
	tokColons
	tokDblQuote
	tokSglQuote
	tokExport
	tokEnd
	tokWord
)

var tokenNames = map[tokenKind]string{
	tokEOF:        "EOF",
	tokCode:       "CODE",
	tokWhitespace: "WHITESPACE",
	tokNewline:    "NEWLINE",
	tokIdio:       "IDIO",
	tokAt:         "AT",
	tokAmp:        "AMP",
	tokColons:     "COLONS",
	tokDblQuote:   "DBLQUOTE",
	tokSglQuote:   "SGLQUOTE",
	tokExport:     "EXP",
	tokEnd:        "END",
	tokWord:       "WORD",
}

func (k tokenKind) String() string { return tokenNames[k] }

type token struct {
	kind  tokenKind
	value string
	pos   int
	line  int
}

func (t token) String() string {
	return fmt.Sprintf("%03d %-10s %q", t.pos, t.kind, t.value)
}

type lexState int

const (
	stateInitial lexState = iota
	stateMarkerStart
	stateMarker
)

// markerRun is the number of identical comment characters that open a marker.
const markerRun = 3

// lexer splits input into tokens. Outside markers only CODE, WHITESPACE,
// NEWLINE and IDIO are produced; inside a marker line the directive tokens
// are produced until the line ends.
type lexer struct {
	input string
	pos   int
	line  int
	state lexState

	commentChar  byte
	commentCount int
	commentStart int
}

func newLexer(input string) *lexer {
	return &lexer{input: input, line: 1}
}

func isCommentChar(c byte) bool { return c == '#' || c == '%' || c == '/' }

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-'
}

// next returns the next token or a syntax error. It returns a tokEOF token
// once the input is exhausted.
func (l *lexer) next() (token, error) {
	for {
		if l.pos >= len(l.input) {
			if l.state == stateMarkerStart {
				l.state = stateInitial
				return l.emit(tokCode, l.commentStart), nil
			}
			return token{kind: tokEOF, pos: l.pos, line: l.line}, nil
		}

		switch l.state {
		case stateInitial:
			if tok, ok := l.scanInitial(); ok {
				return tok, nil
			}
		case stateMarkerStart:
			if tok, ok := l.scanMarkerStart(); ok {
				return tok, nil
			}
		case stateMarker:
			return l.scanMarker()
		}
	}
}

func (l *lexer) emit(kind tokenKind, start int) token {
	return token{kind: kind, value: l.input[start:l.pos], pos: start, line: l.line}
}

func (l *lexer) scanNewline() bool {
	switch {
	case strings.HasPrefix(l.input[l.pos:], "\r\n"):
		l.pos += 2
	case l.input[l.pos] == '\n' || l.input[l.pos] == '\r':
		l.pos++
	default:
		return false
	}
	return true
}

func (l *lexer) scanInitial() (token, bool) {
	start := l.pos
	c := l.input[l.pos]

	switch {
	case isCommentChar(c):
		l.commentChar = c
		l.commentCount = 1
		l.commentStart = l.pos
		l.pos++
		l.state = stateMarkerStart
		return token{}, false
	case l.scanNewline():
		tok := l.emit(tokNewline, start)
		l.line++
		return tok, true
	case isBlank(c):
		for l.pos < len(l.input) && isBlank(l.input[l.pos]) {
			l.pos++
		}
		return l.emit(tokWhitespace, start), true
	}

	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '#' || c == '/' || c == '\n' || c == '\r' {
			break
		}
		l.pos++
	}
	return l.emit(tokCode, start), true
}

// scanMarkerStart counts a run of comment characters. Anything other than
// exactly three identical characters followed by a space turns the consumed
// text back into CODE.
func (l *lexer) scanMarkerStart() (token, bool) {
	c := l.input[l.pos]
	l.pos++

	switch {
	case isCommentChar(c) && c == l.commentChar:
		l.commentCount++
		return token{}, false
	case c == ' ' && l.commentCount == markerRun:
		l.state = stateMarker
		return l.emit(tokIdio, l.commentStart), true
	default:
		l.state = stateInitial
		tok := l.emit(tokCode, l.commentStart)
		if c == '\n' || c == '\r' {
			l.line++
		}
		return tok, true
	}
}

func (l *lexer) scanMarker() (token, error) {
	start := l.pos
	rest := l.input[l.pos:]
	c := rest[0]

	switch {
	case c == '@':
		l.pos++
		return l.emit(tokAt, start), nil
	case c == '&':
		l.pos++
		return l.emit(tokAmp, start), nil
	case c == ':':
		for l.pos < len(l.input) && l.input[l.pos] == ':' {
			l.pos++
		}
		return l.emit(tokColons, start), nil
	case c == '"':
		l.pos++
		return l.emit(tokDblQuote, start), nil
	case c == '\'':
		l.pos++
		return l.emit(tokSglQuote, start), nil
	case strings.HasPrefix(rest, "export"):
		l.pos += len("export")
		return l.emit(tokExport, start), nil
	case strings.HasPrefix(rest, "end"):
		l.pos += len("end")
		return l.emit(tokEnd, start), nil
	case isBlank(c):
		for l.pos < len(l.input) && isBlank(l.input[l.pos]) {
			l.pos++
		}
		return l.emit(tokWhitespace, start), nil
	case l.scanNewline():
		tok := l.emit(tokNewline, start)
		l.line++
		l.state = stateInitial
		return tok, nil
	case isWordChar(c):
		for l.pos < len(l.input) && isWordChar(l.input[l.pos]) {
			l.pos++
		}
		return l.emit(tokWord, start), nil
	}

	return token{}, &syntaxError{line: l.line, pos: l.pos, msg: fmt.Sprintf("illegal character %q in section marker", c)}
}

// tokenize lexes the whole input.
func tokenize(input string) ([]token, error) {
	l := newLexer(input)
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}
