// Package config holds the run configuration and the project file that
// declares which documents a run builds.
package config

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// RunConfig controls one docpipe run. Fields left at their zero value are
// filled by ApplyDefaults.
type RunConfig struct {
	// Root is the project directory. Relative paths below are resolved
	// against it.
	Root string `yaml:"-" json:"-"`

	ArtifactsDir string `yaml:"artifacts_dir,omitempty" json:"artifacts_dir,omitempty"`
	ConfigFile   string `yaml:"config_file,omitempty" json:"config_file,omitempty"`
	OutputDir    string `yaml:"output_dir,omitempty" json:"output_dir,omitempty"`

	// Danger allows documents sourced from remote URLs.
	Danger bool `yaml:"danger,omitempty" json:"danger,omitempty"`

	// DBAlias selects the cache backend (fs, sqlite, memory).
	DBAlias string `yaml:"db_alias,omitempty" json:"db_alias,omitempty"`
	DBFile  string `yaml:"db_file,omitempty" json:"db_file,omitempty"`

	DisableTests bool `yaml:"disable_tests,omitempty" json:"disable_tests,omitempty"`
	DryRun       bool `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`

	// Encoding of source files; "auto" and "chardet" detect per file.
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"`

	Exclude     []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
	ExcludeAlso []string `yaml:"exclude_also,omitempty" json:"exclude_also,omitempty"`

	// Full runs docs marked default: false as well.
	Full bool `yaml:"full,omitempty" json:"full,omitempty"`

	// Globals are KEY=VALUE pairs exported to every filter.
	Globals []string `yaml:"globals,omitempty" json:"globals,omitempty"`

	HashFunction      string `yaml:"hash_function,omitempty" json:"hash_function,omitempty"`
	IgnoreNonzeroExit bool   `yaml:"ignore_nonzero_exit,omitempty" json:"ignore_nonzero_exit,omitempty"`

	// KeepWorkdirs leaves subprocess working directories on disk.
	KeepWorkdirs bool `yaml:"keep_workdirs,omitempty" json:"keep_workdirs,omitempty"`

	LogDir    string    `yaml:"log_dir,omitempty" json:"log_dir,omitempty"`
	LogFile   string    `yaml:"log_file,omitempty" json:"log_file,omitempty"`
	LogFormat LogFormat `yaml:"log_format,omitempty" json:"log_format,omitempty"`
	LogLevel  LogLevel  `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	MetricsFile string `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty"`

	NoCache bool `yaml:"no_cache,omitempty" json:"no_cache,omitempty"`

	// Plugins are files declaring additional subprocess filters.
	Plugins []string `yaml:"plugins,omitempty" json:"plugins,omitempty"`

	Profile bool   `yaml:"profile,omitempty" json:"profile,omitempty"`
	Target  string `yaml:"target,omitempty" json:"target,omitempty"`
	Timing  bool   `yaml:"timing,omitempty" json:"timing,omitempty"`
	Reset   bool   `yaml:"reset,omitempty" json:"reset,omitempty"`
	Silent  bool   `yaml:"silent,omitempty" json:"silent,omitempty"`

	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`
}

// Merge overlays the non-zero fields of src onto c. Boolean switches can
// only be turned on.
func (c *RunConfig) Merge(src RunConfig) {
	setString(&c.Root, src.Root)
	setString(&c.ArtifactsDir, src.ArtifactsDir)
	setString(&c.ConfigFile, src.ConfigFile)
	setString(&c.OutputDir, src.OutputDir)
	setString(&c.DBAlias, src.DBAlias)
	setString(&c.DBFile, src.DBFile)
	setString(&c.Encoding, src.Encoding)
	setString(&c.HashFunction, src.HashFunction)
	setString(&c.LogDir, src.LogDir)
	setString(&c.LogFile, src.LogFile)
	setString(&c.MetricsFile, src.MetricsFile)
	setString(&c.Target, src.Target)
	if src.LogFormat != "" {
		c.LogFormat = src.LogFormat
	}
	if src.LogLevel != "" {
		c.LogLevel = src.LogLevel
	}
	if len(src.Exclude) > 0 {
		c.Exclude = append([]string(nil), src.Exclude...)
	}
	c.ExcludeAlso = append(c.ExcludeAlso, src.ExcludeAlso...)
	c.Globals = append(c.Globals, src.Globals...)
	c.Plugins = append(c.Plugins, src.Plugins...)
	if src.Workers > 0 {
		c.Workers = src.Workers
	}

	c.Danger = c.Danger || src.Danger
	c.DisableTests = c.DisableTests || src.DisableTests
	c.DryRun = c.DryRun || src.DryRun
	c.Full = c.Full || src.Full
	c.IgnoreNonzeroExit = c.IgnoreNonzeroExit || src.IgnoreNonzeroExit
	c.KeepWorkdirs = c.KeepWorkdirs || src.KeepWorkdirs
	c.NoCache = c.NoCache || src.NoCache
	c.Profile = c.Profile || src.Profile
	c.Timing = c.Timing || src.Timing
	c.Reset = c.Reset || src.Reset
	c.Silent = c.Silent || src.Silent
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Path resolves p against Root unless it is absolute.
func (c *RunConfig) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// CacheDir is where cached artifacts and batch records live.
func (c *RunConfig) CacheDir() string { return c.Path(c.ArtifactsDir) }

// LogPath is the log file location.
func (c *RunConfig) LogPath() string { return filepath.Join(c.Path(c.LogDir), c.LogFile) }

// OutputPath is where the output reporter writes final documents.
func (c *RunConfig) OutputPath() string { return c.Path(c.OutputDir) }

// ConfigPath is the project file location.
func (c *RunConfig) ConfigPath() string { return c.Path(c.ConfigFile) }

// Excludes lists directories never scanned for glob documents: the
// configured excludes plus the run's own working directories, including the
// output reporter's staging and previous-output siblings.
func (c *RunConfig) Excludes() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" {
			return
		}
		p = filepath.ToSlash(filepath.Clean(p))
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range c.Exclude {
		add(p)
	}
	for _, p := range c.ExcludeAlso {
		add(p)
	}
	add(c.ArtifactsDir)
	add(c.LogDir)
	if c.OutputDir != "" {
		dir := strings.TrimRight(filepath.ToSlash(c.OutputDir), "/")
		add(dir)
		add(dir + "_stage")
		add(dir + ".prev")
	}
	return out
}

// IsExcluded reports whether the slash-separated relative path rel lies in
// an excluded directory. Entries without a slash match a directory of that
// name at any depth.
func IsExcluded(rel string, excludes []string) bool {
	rel = strings.TrimPrefix(rel, "./")
	parts := strings.Split(rel, "/")
	for _, e := range excludes {
		if rel == e || strings.HasPrefix(rel, e+"/") {
			return true
		}
		if strings.Contains(e, "/") {
			continue
		}
		for _, p := range parts {
			if p == e {
				return true
			}
		}
	}
	return false
}

// GlobalsMap parses Globals. Later entries win.
func (c *RunConfig) GlobalsMap() (map[string]string, error) {
	out := make(map[string]string, len(c.Globals))
	for _, g := range c.Globals {
		k, v, ok := strings.Cut(g, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("global %q is not KEY=VALUE", g)
		}
		out[k] = v
	}
	return out, nil
}

// FormatGlobals renders a map as sorted KEY=VALUE pairs.
func FormatGlobals(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
