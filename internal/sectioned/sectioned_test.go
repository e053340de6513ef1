package sectioned

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingle(t *testing.T) {
	d := Single([]byte("hello\n"))

	assert.Equal(t, 1, d.Len())
	assert.Equal(t, []string{DefaultName}, d.Names())
	assert.Equal(t, "hello\n", d.String())
	assert.True(t, d.IsText())
}

func TestBuilderPreservesOrderAndRejectsDuplicates(t *testing.T) {
	var b Builder
	require.NoError(t, b.Add("zeta", []byte("z")))
	require.NoError(t, b.Add("alpha", []byte("a")))
	require.Error(t, b.Add("zeta", []byte("again")))
	require.Error(t, b.Add("", nil))

	d := b.Build()
	assert.Equal(t, []string{"zeta", "alpha"}, d.Names())
	assert.Equal(t, "za", d.String())

	got, ok := d.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), got)
}

func TestDataIsImmutable(t *testing.T) {
	src := []byte("abc")
	d := Single(src)
	src[0] = 'x'

	secs := d.Sections()
	secs[0].Data[1] = 'y'

	assert.Equal(t, "abc", d.String())
}

func TestBuildSnapshotsBuilder(t *testing.T) {
	var b Builder
	require.NoError(t, b.Add("one", []byte("1")))
	first := b.Build()
	require.NoError(t, b.Add("two", []byte("2")))

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 2, b.Build().Len())
}

func TestIsTextDetectsBinary(t *testing.T) {
	d, err := FromSections([]Section{{Name: "img", Data: []byte{0xff, 0xd8, 0xff}}})
	require.NoError(t, err)
	assert.False(t, d.IsText())
}

func TestEqual(t *testing.T) {
	a, _ := FromSections([]Section{{"a", []byte("1")}, {"b", []byte("2")}})
	b, _ := FromSections([]Section{{"a", []byte("1")}, {"b", []byte("2")}})
	c, _ := FromSections([]Section{{"b", []byte("2")}, {"a", []byte("1")}})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, Data{}.Equal(Data{}))
}
