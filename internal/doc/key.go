package doc

import (
	"fmt"
	"path"
	"strings"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

// FilterRef is one step of a key: an alias plus an optional named settings
// reference ("py:fast").
type FilterRef struct {
	Alias       string
	SettingsRef string
}

func (r FilterRef) String() string {
	if r.SettingsRef == "" {
		return r.Alias
	}
	return r.Alias + ":" + r.SettingsRef
}

// Key identifies a document: a relative path and an ordered filter chain,
// written "<path>[.<ext>](|<alias>(:<ref>)?)*".
type Key struct {
	Path    string
	Filters []FilterRef
}

// ParseKey parses and validates a document key.
func ParseKey(raw string) (Key, error) {
	parts := strings.Split(strings.TrimSpace(raw), "|")
	p := strings.TrimSpace(parts[0])
	if p == "" {
		return Key{}, invalidKey(raw, "missing file name")
	}
	p = strings.TrimPrefix(path.Clean(strings.ReplaceAll(p, "\\", "/")), "./")
	if path.IsAbs(p) || p == ".." || strings.HasPrefix(p, "../") {
		return Key{}, invalidKey(raw, "path must be relative to the project root")
	}

	k := Key{Path: p}
	for _, seg := range parts[1:] {
		alias, ref, _ := strings.Cut(strings.TrimSpace(seg), ":")
		if alias == "" {
			return Key{}, invalidKey(raw, "empty filter alias")
		}
		k.Filters = append(k.Filters, FilterRef{Alias: alias, SettingsRef: ref})
	}
	return k, nil
}

func invalidKey(raw, reason string) error {
	return derrors.UserFeedback(fmt.Sprintf("invalid document key '%s': %s", raw, reason)).
		WithContext("doc", raw).
		Build()
}

// String renders the canonical key.
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Path)
	for _, f := range k.Filters {
		b.WriteByte('|')
		b.WriteString(f.String())
	}
	return b.String()
}

// Ext returns the source file's extension.
func (k Key) Ext() string { return path.Ext(k.Path) }

// Aliases returns the filter aliases in chain order.
func (k Key) Aliases() []string {
	out := make([]string, len(k.Filters))
	for i, f := range k.Filters {
		out[i] = f.Alias
	}
	return out
}

// IsGlob reports whether the path holds wildcard characters.
func (k Key) IsGlob() bool {
	return strings.ContainsAny(k.Path, "*?[")
}

// WithPath returns a copy of k for another source path.
func (k Key) WithPath(p string) Key {
	return Key{Path: p, Filters: append([]FilterRef(nil), k.Filters...)}
}
