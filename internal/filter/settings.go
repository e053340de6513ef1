package filter

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// Settings holds per-filter options. Values come from YAML, JSON or CBOR, so
// getters accept any numeric representation.
type Settings map[string]any

// Merge layers settings left to right; later layers win per key.
func Merge(layers ...Settings) Settings {
	out := Settings{}
	for _, l := range layers {
		maps.Copy(out, l)
	}
	return out
}

// Has reports whether key is set.
func (s Settings) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// String returns key as a string.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// Bool returns key as a bool. Strings like "yes" and "1" count as true.
func (s Settings) Bool(key string, def bool) bool {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off", "":
			return false
		}
		return def
	default:
		if n, ok := toFloat(v); ok {
			return n != 0
		}
		return def
	}
}

// Int returns key as an int.
func (s Settings) Int(key string, def int) int {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return def
		}
		return n
	}
	if n, ok := toFloat(v); ok {
		return int(n)
	}
	return def
}

// Duration returns key as a duration. Bare numbers are seconds; strings may
// also use Go duration syntax ("1m30s").
func (s Settings) Duration(key string, def time.Duration) time.Duration {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	if str, ok := v.(string); ok {
		str = strings.TrimSpace(str)
		if d, err := time.ParseDuration(str); err == nil {
			return d
		}
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return def
		}
		return time.Duration(f * float64(time.Second))
	}
	if n, ok := toFloat(v); ok {
		return time.Duration(n * float64(time.Second))
	}
	return def
}

// Fields returns key split into words. Lists are taken element by element.
func (s Settings) Fields(key string) []string {
	switch v := s[key].(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(v)
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// StringMap returns key as a string map.
func (s Settings) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := s[key].(type) {
	case map[string]string:
		maps.Copy(out, v)
	case map[string]any:
		for k, e := range v {
			out[k] = fmt.Sprint(e)
		}
	case map[any]any:
		for k, e := range v {
			out[fmt.Sprint(k)] = fmt.Sprint(e)
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
