package textenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

var latin1 = []byte{'c', 'a', 'f', 0xe9} // "café" in ISO-8859-1

func TestPassThroughUTF8(t *testing.T) {
	d, err := New("")
	require.NoError(t, err)

	out, name, err := d.Decode([]byte("café"))
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
	assert.Equal(t, "utf-8", name)
}

func TestExplicitEncoding(t *testing.T) {
	d, err := New("latin1")
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", d.Name())

	out, _, err := d.Decode(latin1)
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))
}

func TestAutoDetection(t *testing.T) {
	for _, mode := range []string{"auto", "chardet"} {
		d, err := New(mode)
		require.NoError(t, err)

		out, name, err := d.Decode([]byte("plain ascii"))
		require.NoError(t, err)
		assert.Equal(t, "plain ascii", string(out))
		assert.Equal(t, "utf-8", name)

		out, name, err = d.Decode(latin1)
		require.NoError(t, err)
		assert.Equal(t, "café", string(out))
		assert.Equal(t, "windows-1252", name)
	}
}

func TestBinaryUntouched(t *testing.T) {
	d, err := New("latin1")
	require.NoError(t, err)

	bin := []byte{0x89, 'P', 'N', 'G', 0x00, 0xe9}
	out, name, err := d.Decode(bin)
	require.NoError(t, err)
	assert.Equal(t, bin, out)
	assert.Equal(t, "binary", name)
}

func TestUnknownEncodingIsConfigError(t *testing.T) {
	_, err := New("klingon-8")
	require.Error(t, err)
	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, derrors.CategoryConfig, ce.Category())
}
