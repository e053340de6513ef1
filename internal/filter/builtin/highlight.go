package builtin

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

const (
	defaultStyle     = "friendly"
	defaultFormatter = "html"
)

// highlighter renders code with chroma using lexer/formatter/style settings.
type highlighter struct {
	lexer     chroma.Lexer
	formatter chroma.Formatter
	style     *chroma.Style
}

// newHighlighter picks the lexer from the "lexer" setting or from the file
// name, falling back to plain text.
func newHighlighter(name string, s filter.Settings) (*highlighter, error) {
	var lexer chroma.Lexer
	if alias := s.String("lexer", ""); alias != "" {
		lexer = lexers.Get(alias)
		if lexer == nil {
			return nil, derrors.UserFeedback(fmt.Sprintf("no lexer named '%s'", alias)).Build()
		}
	} else {
		lexer = lexers.Match(name)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}

	var formatter chroma.Formatter
	switch fname := s.String("formatter", defaultFormatter); fname {
	case "html":
		opts := []html.Option{html.WithClasses(s.Bool("css-classes", true))}
		if s.Bool("line-numbers", false) {
			opts = append(opts, html.WithLineNumbers(true))
		}
		formatter = html.New(opts...)
	default:
		var ok bool
		formatter, ok = formatters.Registry[fname]
		if !ok {
			return nil, derrors.UserFeedback(fmt.Sprintf("no formatter named '%s'", fname)).Build()
		}
	}

	style := styles.Get(s.String("style", defaultStyle))
	if style == nil {
		style = styles.Fallback
	}

	return &highlighter{lexer: chroma.Coalesce(lexer), formatter: formatter, style: style}, nil
}

func (h *highlighter) highlight(code []byte) ([]byte, error) {
	it, err := h.lexer.Tokenise(nil, string(code))
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryUserFeedback, "failed to tokenise source").Build()
	}
	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, it); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryInternal, "failed to format highlighted source").Build()
	}
	return buf.Bytes(), nil
}
