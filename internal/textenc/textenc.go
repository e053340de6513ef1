// Package textenc converts source files to UTF-8 according to the run's
// encoding setting.
package textenc

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

// Detection modes accepted in place of an encoding name.
const (
	Auto    = "auto"
	Chardet = "chardet"
)

// Decoder converts bytes to UTF-8.
type Decoder struct {
	name   string
	detect bool
	enc    encoding.Encoding
}

// New returns a decoder for name. Empty and "utf-8" pass content through;
// "auto" and "chardet" detect the encoding per file.
func New(name string) (*Decoder, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return &Decoder{name: "utf-8"}, nil
	case Auto, Chardet:
		return &Decoder{name: n, detect: true}, nil
	}

	enc, err := htmlindex.Get(n)
	if err != nil {
		return nil, derrors.ConfigError(fmt.Sprintf("unknown encoding '%s'", name)).
			WithCause(err).
			Build()
	}
	canonical, _ := htmlindex.Name(enc)
	return &Decoder{name: canonical, enc: enc}, nil
}

// Name returns the configured encoding.
func (d *Decoder) Name() string { return d.name }

// Decode returns data as UTF-8 along with the encoding it was read as.
// Binary content (anything holding a NUL byte) is returned untouched.
func (d *Decoder) Decode(data []byte) ([]byte, string, error) {
	if IsBinary(data) {
		return data, "binary", nil
	}

	enc := d.enc
	name := d.name
	if d.detect {
		if utf8.Valid(data) {
			return data, "utf-8", nil
		}
		enc, name, _ = charset.DetermineEncoding(data, "")
	}
	if enc == nil || name == "utf-8" {
		return data, "utf-8", nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, name, derrors.WrapError(err, derrors.CategoryUserFeedback, "failed to decode file").
			WithContext("encoding", name).
			Build()
	}
	return out, name, nil
}

// IsBinary reports whether data looks like binary content.
func IsBinary(data []byte) bool {
	return bytes.IndexByte(data, 0) >= 0
}
