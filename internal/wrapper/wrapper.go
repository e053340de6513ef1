// Package wrapper drives one docpipe run: it builds the document set from
// the project file, runs it as a batch in dependency order, aggregates the
// failures and hands the finished batch to the reporters.
package wrapper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/batch"
	"git.home.luguber.info/inful/docpipe/internal/cache"
	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	"git.home.luguber.info/inful/docpipe/internal/filter"
	"git.home.luguber.info/inful/docpipe/internal/filter/builtin"
	"git.home.luguber.info/inful/docpipe/internal/filter/subprocess"
	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
	"git.home.luguber.info/inful/docpipe/internal/process"
	"git.home.luguber.info/inful/docpipe/internal/report"
	"git.home.luguber.info/inful/docpipe/internal/storage"
	"git.home.luguber.info/inful/docpipe/internal/textenc"
	"git.home.luguber.info/inful/docpipe/internal/workspace"
)

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusPlanned   Status = "planned" // dry run
)

// Result describes a finished run.
type Result struct {
	Status   Status
	BatchID  string
	Record   batch.Record
	Planned  []string
	Reported bool
	Duration time.Duration
	Cache    cache.Stats
}

// Wrapper owns the run's store, filter registry and reporters.
type Wrapper struct {
	cfg       config.RunConfig
	project   *config.Project
	registry  *filter.Registry
	store     storage.ObjectStore
	ownsStore bool
	executor  process.Executor
	recorder  metrics.Recorder
	reporters []report.Reporter
	fetcher   Fetcher
	logger    *slog.Logger
	subOpts   []subprocess.Option

	openOnce sync.Once
	openErr  error
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(w *Wrapper) { w.recorder = r }
}

// WithProject uses p instead of loading the project file.
func WithProject(p *config.Project) Option {
	return func(w *Wrapper) { w.project = p }
}

// WithRegistry replaces the built-in filter registry.
func WithRegistry(r *filter.Registry) Option {
	return func(w *Wrapper) { w.registry = r }
}

// WithStore uses store instead of opening the configured backend. The
// caller keeps ownership.
func WithStore(s storage.ObjectStore) Option {
	return func(w *Wrapper) { w.store = s }
}

// WithExecutor replaces the OS process executor.
func WithExecutor(e process.Executor) Option {
	return func(w *Wrapper) { w.executor = e }
}

// WithReporters replaces the default output and summary reporters.
func WithReporters(r ...report.Reporter) Option {
	return func(w *Wrapper) { w.reporters = r }
}

// WithFetcher replaces the HTTP fetcher used for url documents.
func WithFetcher(f Fetcher) Option {
	return func(w *Wrapper) { w.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wrapper) { w.logger = l }
}

// WithSubprocessOptions passes options to every built-in subprocess filter.
func WithSubprocessOptions(opts ...subprocess.Option) Option {
	return func(w *Wrapper) { w.subOpts = append(w.subOpts, opts...) }
}

// New creates a wrapper for cfg. Unset configuration fields take their
// defaults.
func New(cfg config.RunConfig, opts ...Option) *Wrapper {
	config.ApplyDefaults(&cfg)
	w := &Wrapper{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.executor == nil {
		w.executor = process.NewOSExecutor(w.logger)
	}
	if w.fetcher == nil {
		w.fetcher = NewHTTPFetcher(nil)
	}
	if w.reporters == nil {
		w.reporters = []report.Reporter{
			report.NewOutputReporter(w.cfg.OutputPath()).WithLogger(w.logger),
			report.NewSummaryReporter(w.cfg.Path(w.cfg.LogDir)),
		}
	}
	return w
}

// Config returns the effective configuration.
func (w *Wrapper) Config() config.RunConfig { return w.cfg }

// Open prepares the store, project and filter registry. It is called by
// every operation and only does work once.
func (w *Wrapper) Open() error {
	w.openOnce.Do(func() { w.openErr = w.open() })
	return w.openErr
}

func (w *Wrapper) open() error {
	if err := config.Validate(&w.cfg); err != nil {
		return err
	}
	if w.project == nil {
		path, err := config.FindProjectFile(w.cfg.Root, w.cfg.ConfigFile)
		if err != nil {
			return err
		}
		if path == "" {
			w.project = &config.Project{}
		} else if w.project, err = config.LoadProject(path); err != nil {
			return err
		}
	}
	if w.registry == nil {
		reg, err := w.buildRegistry()
		if err != nil {
			return err
		}
		w.registry = reg
	}
	if w.store == nil {
		s, err := storage.Open(storage.Options{
			Backend:  w.cfg.DBAlias,
			Dir:      w.cfg.CacheDir(),
			File:     w.cfg.DBFile,
			Compress: true,
		})
		if err != nil {
			return derrors.WrapError(err, derrors.CategoryCache, "failed to open cache").
				WithContext("backend", w.cfg.DBAlias).
				Build()
		}
		w.store = s
		w.ownsStore = true
	}
	return nil
}

func (w *Wrapper) buildRegistry() (*filter.Registry, error) {
	reg := builtin.NewRegistry(w.subOpts...)
	specs, err := config.LoadPlugins(w.cfg.Root, w.cfg.Plugins)
	if err != nil {
		return nil, err
	}
	for _, spec := range specs {
		if err := reg.Register(subprocess.New(spec, w.subOpts...)); err != nil {
			return nil, derrors.ConfigError("failed to register plugin filter").WithCause(err).Build()
		}
	}
	return reg, nil
}

// Close releases the store if the wrapper opened it.
func (w *Wrapper) Close() error {
	if w.ownsStore && w.store != nil {
		return w.store.Close()
	}
	return nil
}

// Registry returns the filter registry.
func (w *Wrapper) Registry() (*filter.Registry, error) {
	if err := w.Open(); err != nil {
		return nil, err
	}
	return w.registry, nil
}

// Project returns the loaded project.
func (w *Wrapper) Project() (*config.Project, error) {
	if err := w.Open(); err != nil {
		return nil, err
	}
	return w.project, nil
}

// Reset removes every cached artifact.
func (w *Wrapper) Reset(ctx context.Context) error {
	if err := w.Open(); err != nil {
		return err
	}
	return cache.New(w.store).WithLogger(w.logger).Reset(ctx)
}

// Batches lists stored batch records, newest first.
func (w *Wrapper) Batches(ctx context.Context) ([]batch.Record, error) {
	if err := w.Open(); err != nil {
		return nil, err
	}
	return batch.List(ctx, w.store)
}

// Run executes one batch. The returned error is the most severe document
// failure, or the error that stopped the run before any document ran.
// Result is non-nil whenever a batch was started.
func (w *Wrapper) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	if err := w.Open(); err != nil {
		return nil, err
	}

	ac := cache.New(w.store).WithLogger(w.logger).WithBypass(w.cfg.NoCache)
	if w.cfg.Reset {
		if err := ac.Reset(ctx); err != nil {
			return nil, err
		}
	}

	docs, err := w.Plan(ctx)
	if err != nil {
		return nil, err
	}
	if w.cfg.DryRun {
		res := &Result{Status: StatusPlanned, Duration: time.Since(start)}
		for _, d := range docs {
			res.Planned = append(res.Planned, d.KeyString())
		}
		return res, nil
	}

	env, err := w.env(ac)
	if err != nil {
		return nil, err
	}

	b := batch.New()
	logger := w.logger.With(logfields.BatchID(b.ID()))
	env.Logger = logger
	env.Runtime.Logger = logger
	logger.Info("Batch started", slog.Int("docs", len(docs)), slog.Int("workers", w.cfg.Workers))
	w.recorder.SetWorkerConcurrency(w.cfg.Workers)

	failures := w.execute(ctx, b, docs, env)
	runErr := derrors.MostSevere(failures...)
	if runErr != nil {
		b.Fail(runErr)
	} else {
		b.Complete()
	}

	res := &Result{BatchID: b.ID(), Cache: ac.Stats()}
	res.Record = b.Record()
	res.Status = StatusCompleted
	switch {
	case derrors.HasCategory(runErr, derrors.CategoryInterrupt):
		res.Status = StatusCancelled
	case runErr != nil:
		res.Status = StatusFailed
	}

	// A batch record survives the caller's cancellation.
	saveCtx := context.WithoutCancel(ctx)
	if err := batch.Save(saveCtx, w.store, res.Record); err != nil {
		logger.Warn("Failed to store batch record", logfields.Error(err))
	}

	if shouldReport(runErr) {
		if err := report.RunAll(saveCtx, logger, b, w.reporters...); err != nil {
			logger.Error("Reporting failed", logfields.Error(err))
			if runErr == nil {
				runErr = derrors.WrapError(err, derrors.CategoryFileSystem, "reporting failed").Build()
				res.Status = StatusFailed
			}
		} else {
			res.Reported = true
		}
	}

	res.Duration = time.Since(start)
	w.recorder.ObserveBatchDuration(res.Duration)
	w.recorder.IncBatchOutcome(string(b.State()))
	logger.Info("Batch finished",
		slog.String("state", string(b.State())),
		slog.Int("docs", len(res.Record.Docs)),
		slog.Int64("cache_hits", res.Cache.Hits),
		slog.Int64("cache_misses", res.Cache.Misses),
		logfields.DurationMS(float64(res.Duration.Milliseconds())))
	return res, runErr
}

// shouldReport decides whether reporters run after a batch: internal errors
// and interrupts skip reporting, every other outcome is reported.
func shouldReport(err error) bool {
	if err == nil {
		return true
	}
	switch derrors.GetCategory(err) {
	case derrors.CategoryInternal, derrors.CategoryInterrupt:
		return false
	}
	return true
}

func (w *Wrapper) env(ac *cache.ArtifactCache) (*doc.Env, error) {
	alg, err := fingerprint.ParseAlgorithm(w.cfg.HashFunction)
	if err != nil {
		return nil, derrors.ConfigError(err.Error()).Build()
	}
	dec, err := textenc.New(w.cfg.Encoding)
	if err != nil {
		return nil, err
	}
	globals, err := w.globals()
	if err != nil {
		return nil, err
	}
	workspaces := workspace.NewManager("")
	if w.cfg.KeepWorkdirs {
		workspaces = workspace.NewKeepingManager("")
		w.logger.Info("Keeping filter working directories", logfields.Path(workspaces.BaseDir()))
	}
	return &doc.Env{
		Root:     w.cfg.Root,
		Cache:    ac,
		Hash:     alg,
		Decoder:  dec,
		Recorder: w.recorder,
		Timing:   w.cfg.Timing,
		Runtime: &filter.Runtime{
			Executor:          w.executor,
			Workspaces:        workspaces,
			Globals:           globals,
			IgnoreNonzeroExit: w.cfg.IgnoreNonzeroExit,
		},
	}, nil
}

// globals merges project globals with the run's KEY=VALUE globals, which win.
func (w *Wrapper) globals() (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range w.project.Globals {
		out[k] = v
	}
	run, err := w.cfg.GlobalsMap()
	if err != nil {
		return nil, derrors.ConfigError(fmt.Sprintf("invalid globals: %v", err)).Build()
	}
	for k, v := range run {
		out[k] = v
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
