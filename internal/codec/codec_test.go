package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministicForMaps(t *testing.T) {
	a := map[string]any{"timeout": 10, "args": "-B", "env": map[string]any{"B": "2", "A": "1"}}
	b := map[string]any{"env": map[string]any{"A": "1", "B": "2"}, "args": "-B", "timeout": 10}

	encA, err := Marshal(a)
	require.NoError(t, err)
	encB, err := Marshal(b)
	require.NoError(t, err)

	assert.Equal(t, encA, encB)
}

func TestUnmarshalAnyUsesStringKeyedMaps(t *testing.T) {
	enc, err := Marshal(map[string]any{"env": map[string]any{"LANG": "C"}})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, Unmarshal(enc, &out))

	env, ok := out["env"].(map[string]any)
	require.True(t, ok, "nested map should decode as map[string]any, got %T", out["env"])
	assert.Equal(t, "C", env["LANG"])
}

func TestDiagnose(t *testing.T) {
	enc, err := Marshal([]string{"1", "foo"})
	require.NoError(t, err)

	diag, err := Diagnose(enc)
	require.NoError(t, err)
	assert.Equal(t, `["1", "foo"]`, diag)
}
