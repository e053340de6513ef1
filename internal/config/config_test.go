package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpipe/internal/filter/subprocess"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, DefaultArtifactsDir, cfg.ArtifactsDir)
	assert.Equal(t, DefaultConfigFile, cfg.ConfigFile)
	assert.Equal(t, "fs", cfg.DBAlias)
	assert.Equal(t, DefaultDBFile, cfg.DBFile)
	assert.Equal(t, "sha256", cfg.HashFunction)
	assert.Equal(t, "utf-8", cfg.Encoding)
	assert.Equal(t, LogLevelInfo, cfg.LogLevel)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, DefaultExclude, cfg.Exclude)
	require.NoError(t, Validate(&cfg))
}

func TestApplyDefaultsKeepsSetValues(t *testing.T) {
	cfg := RunConfig{DBAlias: "sqlite", Workers: 3, LogLevel: LogLevelDebug, Exclude: []string{}}
	ApplyDefaults(&cfg)

	assert.Equal(t, "sqlite", cfg.DBAlias)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, LogLevelDebug, cfg.LogLevel)
	assert.Empty(t, cfg.Exclude, "an explicit empty exclude list is kept")
}

func TestMerge(t *testing.T) {
	base := RunConfig{HashFunction: "blake3", Target: "site", Globals: []string{"A=1"}, Timing: true}
	base.Merge(RunConfig{Target: "other", Globals: []string{"B=2"}, NoCache: true, Workers: 2, KeepWorkdirs: true})

	assert.Equal(t, "blake3", base.HashFunction)
	assert.Equal(t, "other", base.Target)
	assert.Equal(t, []string{"A=1", "B=2"}, base.Globals)
	assert.True(t, base.Timing)
	assert.True(t, base.NoCache)
	assert.True(t, base.KeepWorkdirs)
	assert.Equal(t, 2, base.Workers)
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Root = "/proj"

	assert.Equal(t, filepath.Join("/proj", ".docpipe"), cfg.CacheDir())
	assert.Equal(t, filepath.Join("/proj", ".docpipe", "logs", "docpipe.log"), cfg.LogPath())
	assert.Equal(t, filepath.Join("/proj", "output"), cfg.OutputPath())

	cfg.OutputDir = "/elsewhere"
	assert.Equal(t, "/elsewhere", cfg.OutputPath())
}

func TestExcludes(t *testing.T) {
	cfg := Default()
	cfg.Exclude = []string{".git", "vendor/"}
	cfg.ExcludeAlso = []string{"build", ".git"}

	assert.Equal(t, []string{".git", "vendor", "build", ".docpipe", ".docpipe/logs", "output", "output_stage", "output.prev"}, cfg.Excludes())
}

func TestGlobalsMap(t *testing.T) {
	cfg := RunConfig{Globals: []string{"A=1", "B=x=y", "A=2"}}
	m, err := cfg.GlobalsMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y"}, m)
	assert.Equal(t, []string{"A=2", "B=x=y"}, FormatGlobals(m))

	cfg.Globals = []string{"novalue"}
	_, err = cfg.GlobalsMap()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RunConfig)
		field  string
	}{
		{"hash", func(c *RunConfig) { c.HashFunction = "md4" }, "hash_function"},
		{"backend", func(c *RunConfig) { c.DBAlias = "postgres" }, "db_alias"},
		{"db file", func(c *RunConfig) { c.DBFile = filepath.Join("a", "b.db") }, "db_file"},
		{"level", func(c *RunConfig) { c.LogLevel = "loud" }, "log_level"},
		{"format", func(c *RunConfig) { c.LogFormat = "xml" }, "log_format"},
		{"globals", func(c *RunConfig) { c.Globals = []string{"=1"} }, "globals"},
		{"artifacts", func(c *RunConfig) { c.ArtifactsDir = "." }, "artifacts_dir"},
		{"workers", func(c *RunConfig) { c.Workers = -1 }, "workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			ce, ok := derrors.AsClassified(err)
			require.True(t, ok)
			assert.Equal(t, derrors.CategoryConfig, ce.Category())
			field, _ := ce.Context().GetString("field")
			assert.Equal(t, tt.field, field)
		})
	}
}

func TestValidateCanonicalizes(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = " WARNING "
	cfg.LogFormat = "JSON"
	cfg.HashFunction = "BLAKE3"
	cfg.DBAlias = "SQLite"
	require.NoError(t, Validate(&cfg))

	assert.Equal(t, LogLevelWarn, cfg.LogLevel)
	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, "blake3", cfg.HashFunction)
	assert.Equal(t, "sqlite", cfg.DBAlias)
}

func TestValidateEncoding(t *testing.T) {
	cfg := Default()
	cfg.Encoding = "no-such-charset"
	err := Validate(&cfg)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig))

	cfg.Encoding = "chardet"
	require.NoError(t, Validate(&cfg))
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DOCPIPE_TEST_NEW=fromfile\nDOCPIPE_TEST_SET=fromfile\n"), 0o600))
	t.Setenv("DOCPIPE_TEST_SET", "fromenv")
	t.Cleanup(func() { _ = os.Unsetenv("DOCPIPE_TEST_NEW") })

	loaded, err := LoadEnvFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, ".env")}, loaded)
	assert.Equal(t, "fromfile", os.Getenv("DOCPIPE_TEST_NEW"))
	assert.Equal(t, "fromenv", os.Getenv("DOCPIPE_TEST_SET"))
}

func TestLoadPlugins(t *testing.T) {
	dir := t.TempDir()
	plugin := `filters:
  - aliases: [lua]
    executable: lua
    version_command: lua -v
    input_extensions: [.lua]
    output_extension: .txt
    timeout: 30s
    defaults:
      args: -W
  - aliases: [gocc]
    executables: [gcc, clang]
    kind: compile
    capture: file
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filters.yaml"), []byte(plugin), 0o600))

	specs, err := LoadPlugins(dir, []string{"filters.yaml"})
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, []string{"lua"}, specs[0].Aliases)
	assert.Equal(t, subprocess.Plain, specs[0].Kind)
	assert.Equal(t, 30*time.Second, specs[0].Timeout)
	assert.Equal(t, "-W", specs[0].Defaults.String("args", ""))

	assert.Equal(t, subprocess.Compile, specs[1].Kind)
	assert.Equal(t, subprocess.CaptureFile, specs[1].Capture)
	assert.Equal(t, []string{"gcc", "clang"}, specs[1].Executables)
}

func TestLoadPluginsErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("noexe.yaml", "filters:\n  - aliases: [x]\n")
	write("kind.yaml", "filters:\n  - aliases: [x]\n    executable: x\n    kind: batch\n")
	write("unknown.json", `{"filters": [{"aliases": ["x"], "executable": "x", "colour": "red"}]}`)

	for _, name := range []string{"noexe.yaml", "kind.yaml", "unknown.json", "missing.yaml"} {
		_, err := LoadPlugins(dir, []string{name})
		require.Error(t, err, name)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryConfig), name)
	}
}

func TestIsExcluded(t *testing.T) {
	excludes := []string{".git", "build/out", ".docpipe"}
	tests := map[string]bool{
		".git":                 true,
		".git/config":          true,
		"src/.git/HEAD":        true,
		"build/out":            true,
		"build/out/x.txt":      true,
		"build/other.txt":      false,
		"src/build/out/x.txt":  false,
		".docpipe/logs/a.log":  true,
		"docs/page.md":         false,
		"./.docpipe/cache.bin": true,
	}
	for rel, want := range tests {
		assert.Equal(t, want, IsExcluded(rel, excludes), rel)
	}
}
