package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

func TestParseKey(t *testing.T) {
	k, err := ParseKey("src/example.py|py:fast|markdown")
	require.NoError(t, err)

	assert.Equal(t, "src/example.py", k.Path)
	assert.Equal(t, ".py", k.Ext())
	assert.Equal(t, []string{"py", "markdown"}, k.Aliases())
	assert.Equal(t, "fast", k.Filters[0].SettingsRef)
	assert.Equal(t, "src/example.py|py:fast|markdown", k.String())
	assert.False(t, k.IsGlob())
}

func TestParseKeyNormalizes(t *testing.T) {
	k, err := ParseKey(" ./docs//a.txt | join ")
	require.NoError(t, err)
	assert.Equal(t, "docs/a.txt|join", k.String())

	k, err = ParseKey("Makefile")
	require.NoError(t, err)
	assert.Empty(t, k.Filters)
	assert.Equal(t, "", k.Ext())
}

func TestParseKeyErrors(t *testing.T) {
	for _, raw := range []string{"", "|py", "a.py||md", "/etc/passwd|copy", "../up.txt"} {
		_, err := ParseKey(raw)
		require.Error(t, err, raw)
		ce, ok := derrors.AsClassified(err)
		require.True(t, ok)
		assert.Equal(t, derrors.CategoryUserFeedback, ce.Category(), raw)
	}
}

func TestKeyGlob(t *testing.T) {
	k, err := ParseKey("*.py|py")
	require.NoError(t, err)
	assert.True(t, k.IsGlob())
	assert.Equal(t, "lib/a.py|py", k.WithPath("lib/a.py").String())
}
