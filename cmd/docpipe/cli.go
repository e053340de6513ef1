package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
	"git.home.luguber.info/inful/docpipe/internal/wrapper"
)

const profileFile = "docpipe.prof"

// CLI is the command tree.
type CLI struct {
	Globals Globals          `embed:""`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Run     RunCmd     `cmd:"" default:"withargs" help:"Run documents (default command)"`
	Reset   ResetCmd   `cmd:"" help:"Remove every cached artifact"`
	Filters FiltersCmd `cmd:"" help:"List available filters"`
	Batches BatchesCmd `cmd:"" help:"List recorded batches"`
	Watch   WatchCmd   `cmd:"" help:"Run, then rerun whenever project files change"`
	Info    VersionCmd `cmd:"" name:"version" help:"Print version information"`
}

// Globals are flags shared by every command. Each one overrides the
// matching field of the project file's run section.
type Globals struct {
	Directory string `short:"C" help:"Project root directory" default:"."`
	Config    string `short:"c" help:"Project file (default docpipe.yaml, docpipe.yml or docpipe.json)"`

	ArtifactsDir string `name:"artifacts-dir" help:"Directory for cached artifacts and batch records"`
	OutputDir    string `name:"output-dir" short:"o" help:"Directory receiving final outputs"`

	LogDir    string `name:"log-dir" help:"Log directory"`
	LogFile   string `name:"log-file" help:"Log file name"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	Verbose   bool   `short:"v" help:"Debug logging, also written to stderr"`
	Silent    bool   `short:"q" help:"Suppress progress messages on stdout"`

	DB       string `name:"db" help:"Cache backend (fs, sqlite, memory)"`
	DBFile   string `name:"db-file" help:"SQLite database file name"`
	Hash     string `name:"hash" help:"Fingerprint hash (sha256, blake3, xxhash, crc32, adler32)"`
	Encoding string `help:"Source encoding (utf-8, latin-1, auto, ...)"`
	NoCache  bool   `name:"no-cache" help:"Recompute every step; results are still stored"`

	Exclude     []string `help:"Replace the default exclude list"`
	ExcludeAlso []string `name:"exclude-also" help:"Directories excluded in addition to the defaults"`
	Global      []string `short:"g" sep:"none" help:"KEY=VALUE exported to every filter (repeatable)"`
	Plugin      []string `sep:"none" help:"Filter declaration file (repeatable)"`

	Danger            bool `help:"Allow documents sourced from remote URLs"`
	DisableTests      bool `name:"disable-tests" help:"Skip documents marked test: true"`
	IgnoreNonzeroExit bool `name:"ignore-nonzero-exit" help:"Do not fail documents whose commands exit nonzero"`
	KeepWorkdirs      bool `name:"keep-workdirs" help:"Leave filter working directories on disk for debugging"`
	Workers           int  `short:"j" help:"Documents processed concurrently"`

	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics to this file after each batch"`
	Profile     bool   `help:"Write a CPU profile to the log directory"`
	Timing      bool   `help:"Log the duration of every filter step"`
}

func (g *Globals) runConfig() config.RunConfig {
	return config.RunConfig{
		ConfigFile:        g.Config,
		ArtifactsDir:      g.ArtifactsDir,
		OutputDir:         g.OutputDir,
		LogDir:            g.LogDir,
		LogFile:           g.LogFile,
		LogFormat:         config.LogFormat(g.LogFormat),
		LogLevel:          config.LogLevel(g.LogLevel),
		Silent:            g.Silent,
		DBAlias:           g.DB,
		DBFile:            g.DBFile,
		HashFunction:      g.Hash,
		Encoding:          g.Encoding,
		NoCache:           g.NoCache,
		Exclude:           g.Exclude,
		ExcludeAlso:       g.ExcludeAlso,
		Globals:           g.Global,
		Plugins:           g.Plugin,
		Danger:            g.Danger,
		DisableTests:      g.DisableTests,
		IgnoreNonzeroExit: g.IgnoreNonzeroExit,
		KeepWorkdirs:      g.KeepWorkdirs,
		Workers:           g.Workers,
		MetricsFile:       g.MetricsFile,
		Profile:           g.Profile,
		Timing:            g.Timing,
	}
}

// App carries state shared by the commands of one invocation.
type App struct {
	ctx     context.Context
	globals *Globals
	stdout  io.Writer
	stderr  io.Writer
	silent  bool

	logger     *slog.Logger
	logFile    *os.File
	prevLogger *slog.Logger
	recorder   *metrics.PrometheusRecorder
}

func newApp(ctx context.Context, g *Globals, stdout, stderr io.Writer) *App {
	return &App{ctx: ctx, globals: g, stdout: stdout, stderr: stderr, silent: g.Silent, logger: slog.Default()}
}

// load resolves the run configuration. Precedence is command flags, then
// global flags, then the project file's run section, then defaults.
func (a *App) load(overrides config.RunConfig) (config.RunConfig, *config.Project, error) {
	root, err := filepath.Abs(a.globals.Directory)
	if err != nil {
		return config.RunConfig{}, nil, derrors.ConfigError("invalid project directory").WithCause(err).Build()
	}
	if _, err := config.LoadEnvFiles(root); err != nil {
		return config.RunConfig{}, nil, err
	}

	flags := a.globals.runConfig()
	flags.Merge(overrides)

	project := &config.Project{}
	path, err := config.FindProjectFile(root, flags.ConfigFile)
	if err != nil {
		return config.RunConfig{}, nil, err
	}
	if path != "" {
		if project, err = config.LoadProject(path); err != nil {
			return config.RunConfig{}, nil, err
		}
		flags.ConfigFile = path
	}

	cfg := project.Run
	cfg.Merge(flags)
	cfg.Root = root
	config.ApplyDefaults(&cfg)
	if err := config.Validate(&cfg); err != nil {
		return config.RunConfig{}, nil, err
	}
	a.silent = cfg.Silent
	if err := a.setupLogging(cfg); err != nil {
		return config.RunConfig{}, nil, err
	}
	return cfg, project, nil
}

// setupLogging installs the log handler the first time a configuration is
// loaded.
func (a *App) setupLogging(cfg config.RunConfig) error {
	if a.logFile != nil {
		return nil
	}
	if err := os.MkdirAll(cfg.Path(cfg.LogDir), 0o755); err != nil {
		return derrors.FileSystemError("failed to create log directory").WithCause(err).Build()
	}
	f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return derrors.FileSystemError("failed to open log file").WithCause(err).Build()
	}

	level := cfg.LogLevel.SlogLevel()
	var w io.Writer = f
	if a.globals.Verbose {
		level = slog.LevelDebug
		w = io.MultiWriter(f, a.stderr)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	a.logFile = f
	a.prevLogger = slog.Default()
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)
	return nil
}

// Close restores the previous logger and closes the log file.
func (a *App) Close() {
	if a.logFile == nil {
		return
	}
	slog.SetDefault(a.prevLogger)
	_ = a.logFile.Close()
	a.logFile = nil
}

func (a *App) printf(format string, args ...any) {
	if a.silent {
		return
	}
	fmt.Fprintf(a.stdout, format, args...)
}

// handle reports err to the user and returns the exit code.
func (a *App) handle(err error) int {
	return derrors.NewCLIErrorAdapter(a.globals.Verbose, a.logger).WithOutput(a.stderr).Handle(err)
}

func (a *App) newWrapper(cfg config.RunConfig, project *config.Project) *wrapper.Wrapper {
	opts := []wrapper.Option{
		wrapper.WithProject(project),
		wrapper.WithLogger(a.logger),
	}
	if cfg.MetricsFile != "" {
		if a.recorder == nil {
			a.recorder = metrics.NewPrometheusRecorder(nil)
		}
		opts = append(opts, wrapper.WithRecorder(a.recorder))
	}
	return wrapper.New(cfg, opts...)
}

// runBatch executes one batch and prints its outcome.
func (a *App) runBatch(ctx context.Context, cfg config.RunConfig, project *config.Project) error {
	w := a.newWrapper(cfg, project)
	defer func() {
		if err := w.Close(); err != nil {
			a.logger.Warn("Failed to close cache store", logfields.Error(err))
		}
	}()

	stop, err := a.startProfile(cfg)
	if err != nil {
		return err
	}
	res, runErr := w.Run(ctx)
	stop()

	if a.recorder != nil {
		if err := a.recorder.WriteTextfile(cfg.Path(cfg.MetricsFile)); err != nil {
			a.logger.Warn("Failed to write metrics file", logfields.Path(cfg.MetricsFile), logfields.Error(err))
		}
	}
	if res != nil {
		a.printResult(cfg, res)
	}
	return runErr
}

func (a *App) printResult(cfg config.RunConfig, res *wrapper.Result) {
	if res.Status == wrapper.StatusPlanned {
		for _, key := range res.Planned {
			a.printf("%s\n", key)
		}
		return
	}
	rec := res.Record
	a.printf("Batch %s %s: %d docs (%d complete, %d failed, %d inactive), %d cache hits, %d misses in %s\n",
		res.BatchID, res.Status, len(rec.Docs),
		rec.Count(doc.StateComplete), rec.Count(doc.StateFailed), rec.Count(doc.StateInactive),
		res.Cache.Hits, res.Cache.Misses, res.Duration.Round(time.Millisecond))
	if res.Reported {
		a.printf("Output written to %s\n", cfg.OutputPath())
	}
}

// startProfile starts CPU profiling when enabled. The returned func stops it.
func (a *App) startProfile(cfg config.RunConfig) (func(), error) {
	if !cfg.Profile {
		return func() {}, nil
	}
	p := filepath.Join(cfg.Path(cfg.LogDir), profileFile)
	f, err := os.Create(p)
	if err != nil {
		return nil, derrors.FileSystemError("failed to create profile").WithCause(err).Build()
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, derrors.InternalError("failed to start CPU profile").WithCause(err).Build()
	}
	return func() {
		pprof.StopCPUProfile()
		_ = f.Close()
		a.logger.Info("CPU profile written", logfields.Path(p))
	}, nil
}
