// Package normalization maps loosely written configuration strings onto
// enum values.
package normalization

import (
	"fmt"
	"sort"
	"strings"
)

// EnumNormalizer maps case-insensitive, trimmed spellings to values of T.
// Several spellings may map to the same value.
type EnumNormalizer[T comparable] struct {
	name         string
	values       map[string]T
	defaultValue T
	keys         []string
}

// NewEnumNormalizer creates a normalizer. name is used in error messages.
func NewEnumNormalizer[T comparable](name string, values map[string]T, defaultValue T) *EnumNormalizer[T] {
	e := &EnumNormalizer[T]{
		name:         name,
		values:       make(map[string]T, len(values)),
		defaultValue: defaultValue,
	}
	for k, v := range values {
		k = clean(k)
		e.values[k] = v
		e.keys = append(e.keys, k)
	}
	sort.Strings(e.keys)
	return e
}

// Normalize returns the value for raw, or the default when raw is unknown.
func (e *EnumNormalizer[T]) Normalize(raw string) T {
	if v, ok := e.values[clean(raw)]; ok {
		return v
	}
	return e.defaultValue
}

// NormalizeWithValidation returns the value for raw or an error naming the
// accepted spellings.
func (e *EnumNormalizer[T]) NormalizeWithValidation(raw string) (T, error) {
	if v, ok := e.values[clean(raw)]; ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q, valid options: %v", e.name, raw, e.keys)
}

// ValidValues lists the accepted spellings, sorted.
func (e *EnumNormalizer[T]) ValidValues() []string {
	return append([]string(nil), e.keys...)
}

func clean(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
