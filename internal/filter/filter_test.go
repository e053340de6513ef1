package filter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
)

func upper(aliases ...string) Filter {
	return Func(Info{Aliases: aliases, Version: "1", OutputExtension: ".txt"},
		func(_ context.Context, in *Input) (*Output, error) {
			return &Output{Data: sectioned.Single([]byte(strings.ToUpper(in.Data.String())))}, nil
		})
}

type hostTool struct{ Filter }

func (hostTool) Active() bool { return false }

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(upper("upper", "up")))

	f, err := r.Lookup("up")
	require.NoError(t, err)
	assert.Equal(t, "upper", f.Info().Alias())
	assert.True(t, r.Has("upper"))
	assert.Equal(t, 1, r.Count())

	out, err := f.Process(context.Background(), &Input{Data: sectioned.Single([]byte("abc"))})
	require.NoError(t, err)
	assert.Equal(t, "ABC", out.Data.String())
}

func TestRegistryUnknownAliasIsUserFeedback(t *testing.T) {
	_, err := NewRegistry().Lookup("nope")
	require.Error(t, err)

	ce, ok := derrors.AsClassified(err)
	require.True(t, ok)
	assert.Equal(t, derrors.CategoryUserFeedback, ce.Category())
	assert.Contains(t, err.Error(), "nope")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(upper("upper", "up")))

	err := r.Register(upper("other", "up"))
	require.Error(t, err)
	assert.False(t, r.Has("other"), "a rejected filter must not be partially registered")

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(upper()))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(upper("zeta"), upper("alpha", "a"), upper("mid"))

	var got []string
	for _, f := range r.List() {
		got = append(got, f.Info().Alias())
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, got)
}

func TestIsActive(t *testing.T) {
	assert.True(t, IsActive(upper("x")))
	assert.False(t, IsActive(hostTool{upper("y")}))
}

func TestInfoAccepts(t *testing.T) {
	open := Info{}
	assert.True(t, open.Accepts(".bin"))

	c := Info{InputExtensions: []string{".c", ".h"}}
	assert.True(t, c.Accepts(".C"))
	assert.False(t, c.Accepts(".py"))
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "src/example.txt", OutputName("src/example.py", ".txt"))
	assert.Equal(t, "example.py", OutputName("example.py", ""))
	assert.Equal(t, "Makefile.txt", OutputName("Makefile", ".txt"))
}

func TestSettingsGetters(t *testing.T) {
	s := Settings{
		"args":      "-B  -u",
		"list":      []any{"a", 2},
		"flag":      "yes",
		"count":     uint64(3),
		"timeout":   1.5,
		"wait":      "2m",
		"env":       map[string]any{"FOO": "bar", "N": 1},
		"check":     0,
		"strtime":   "4",
		"bad-int":   "x",
		"nil-value": nil,
	}

	assert.Equal(t, []string{"-B", "-u"}, s.Fields("args"))
	assert.Equal(t, []string{"a", "2"}, s.Fields("list"))
	assert.Nil(t, s.Fields("missing"))
	assert.True(t, s.Bool("flag", false))
	assert.False(t, s.Bool("check", true))
	assert.True(t, s.Bool("nil-value", true))
	assert.Equal(t, 3, s.Int("count", 0))
	assert.Equal(t, 7, s.Int("bad-int", 7))
	assert.Equal(t, 1500*time.Millisecond, s.Duration("timeout", 0))
	assert.Equal(t, 2*time.Minute, s.Duration("wait", 0))
	assert.Equal(t, 4*time.Second, s.Duration("strtime", 0))
	assert.Equal(t, time.Second, s.Duration("missing", time.Second))
	assert.Equal(t, map[string]string{"FOO": "bar", "N": "1"}, s.StringMap("env"))
	assert.Equal(t, "3", s.String("count", ""))
	assert.Equal(t, "dflt", s.String("missing", "dflt"))
}

func TestMergeLaterWins(t *testing.T) {
	defaults := Settings{"timeout": 10, "args": "-B"}
	doc := Settings{"timeout": 2}

	got := Merge(defaults, doc)
	assert.Equal(t, Settings{"timeout": 2, "args": "-B"}, got)
	assert.Equal(t, 10, defaults["timeout"], "inputs are not modified")
}
