package config

import (
	"runtime"

	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	"git.home.luguber.info/inful/docpipe/internal/storage"
)

// Default values for RunConfig.
const (
	DefaultArtifactsDir = ".docpipe"
	DefaultConfigFile   = "docpipe.yaml"
	DefaultOutputDir    = "output"
	DefaultDBFile       = "cache.sqlite3"
	DefaultEncoding     = "utf-8"
	DefaultLogDir       = ".docpipe/logs"
	DefaultLogFile      = "docpipe.log"
)

// DefaultExclude lists directories glob documents never match in.
var DefaultExclude = []string{".git", ".svn", ".hg", "tmp", "cache", ".trash", ".ipynb_checkpoints"}

// DefaultApplier applies defaults for one configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *RunConfig)
	Domain() string
}

type pathDefaults struct{}

func (pathDefaults) Domain() string { return "paths" }

func (pathDefaults) ApplyDefaults(cfg *RunConfig) {
	if cfg.Root == "" {
		cfg.Root = "."
	}
	setDefault(&cfg.ArtifactsDir, DefaultArtifactsDir)
	setDefault(&cfg.ConfigFile, DefaultConfigFile)
	setDefault(&cfg.OutputDir, DefaultOutputDir)
	if cfg.Exclude == nil {
		cfg.Exclude = append([]string(nil), DefaultExclude...)
	}
}

type cacheDefaults struct{}

func (cacheDefaults) Domain() string { return "cache" }

func (cacheDefaults) ApplyDefaults(cfg *RunConfig) {
	setDefault(&cfg.DBAlias, storage.BackendFS)
	setDefault(&cfg.DBFile, DefaultDBFile)
	setDefault(&cfg.HashFunction, string(fingerprint.DefaultAlgorithm))
}

type loggingDefaults struct{}

func (loggingDefaults) Domain() string { return "logging" }

func (loggingDefaults) ApplyDefaults(cfg *RunConfig) {
	setDefault(&cfg.LogDir, DefaultLogDir)
	setDefault(&cfg.LogFile, DefaultLogFile)
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogLevelInfo
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = LogFormatText
	}
}

type runtimeDefaults struct{}

func (runtimeDefaults) Domain() string { return "runtime" }

func (runtimeDefaults) ApplyDefaults(cfg *RunConfig) {
	setDefault(&cfg.Encoding, DefaultEncoding)
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

var defaultAppliers = []DefaultApplier{
	pathDefaults{},
	cacheDefaults{},
	loggingDefaults{},
	runtimeDefaults{},
}

// ApplyDefaults fills every unset field.
func ApplyDefaults(cfg *RunConfig) {
	for _, a := range defaultAppliers {
		a.ApplyDefaults(cfg)
	}
}

// Default returns a RunConfig with every default applied.
func Default() RunConfig {
	var cfg RunConfig
	ApplyDefaults(&cfg)
	return cfg
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
