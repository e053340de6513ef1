package process

import (
	"maps"
	"slices"
	"strings"
)

// MergeEnv returns a new environment built from base with each layer applied
// in order; later layers win. base is never modified.
func MergeEnv(base []string, layers ...map[string]string) []string {
	merged := make(map[string]string, len(base))
	order := make([]string, 0, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}
		merged[k] = v
	}

	for _, layer := range layers {
		for _, k := range slices.Sorted(maps.Keys(layer)) {
			if _, seen := merged[k]; !seen {
				order = append(order, k)
			}
			merged[k] = layer[k]
		}
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+merged[k])
	}
	return env
}

// Lookup returns the value of key in env.
func Lookup(env []string, key string) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(env[i], "="); ok && k == key {
			return v, true
		}
	}
	return "", false
}
