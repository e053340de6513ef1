package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

func baseInputs() Inputs {
	return Inputs{
		FilterAlias:   "py",
		FilterVersion: "1",
		Settings:      map[string]any{"args": "-B", "timeout": 10, "env": map[string]any{"A": "1", "B": "2"}},
		InputName:     "example.py",
		Input:         sectioned.Single([]byte("print('hello')\n")),
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	for _, alg := range Algorithms() {
		t.Run(string(alg), func(t *testing.T) {
			first, err := Compute(alg, baseInputs())
			require.NoError(t, err)

			in := baseInputs()
			// Same settings built in a different insertion order.
			in.Settings = map[string]any{"env": map[string]any{"B": "2", "A": "1"}, "timeout": 10, "args": "-B"}
			second, err := Compute(alg, in)
			require.NoError(t, err)

			assert.Equal(t, first, second)
			assert.NotEmpty(t, first.Digest)
		})
	}
}

func TestComputeChangesWithEveryInput(t *testing.T) {
	base, err := Compute(SHA256, baseInputs())
	require.NoError(t, err)

	mutations := map[string]func(*Inputs){
		"input bytes":   func(in *Inputs) { in.Input = sectioned.Single([]byte("print('bye')\n")) },
		"setting value": func(in *Inputs) { in.Settings["args"] = "-O" },
		"new setting":   func(in *Inputs) { in.Settings["scriptargs"] = "x" },
		"filter alias":  func(in *Inputs) { in.FilterAlias = "py3" },
		"version":       func(in *Inputs) { in.FilterVersion = "2" },
		"input name":    func(in *Inputs) { in.InputName = "other.py" },
		"dependency":    func(in *Inputs) { in.Dependencies = map[string]string{"data.txt": "abc"} },
		"section names": func(in *Inputs) {
			d, _ := sectioned.FromSections([]sectioned.Section{{Name: "main", Data: []byte("print('hello')\n")}})
			in.Input = d
		},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			in := baseInputs()
			mutate(&in)
			got, err := Compute(SHA256, in)
			require.NoError(t, err)
			assert.NotEqual(t, base.Digest, got.Digest)
		})
	}
}

func TestAlgorithmIsPartOfIdentity(t *testing.T) {
	crc, err := Compute(CRC32, baseInputs())
	require.NoError(t, err)
	adler, err := Compute(Adler32, baseInputs())
	require.NoError(t, err)

	assert.Len(t, crc.Digest, 8)
	assert.Len(t, adler.Digest, 8)
	assert.NotEqual(t, crc.Digest, adler.Digest)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, a)

	a, err = ParseAlgorithm(" BLAKE3 ")
	require.NoError(t, err)
	assert.Equal(t, BLAKE3, a)

	_, err = ParseAlgorithm("md4")
	assert.Error(t, err)
}

func TestSumLengths(t *testing.T) {
	assert.Len(t, Sum(SHA256, []byte("x")), 64)
	assert.Len(t, Sum(BLAKE3, []byte("x")), 64)
	assert.Len(t, Sum(XXHash, []byte("x")), 16)
}

func TestShort(t *testing.T) {
	fp := Fingerprint{Digest: "0123456789abcdef"}
	assert.Equal(t, "0123456789ab", fp.Short())
	assert.True(t, Fingerprint{}.IsZero())
}
