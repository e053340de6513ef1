package doc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/cache"
	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/fingerprint"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
	"git.home.luguber.info/inful/docpipe/internal/process"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/textenc"
)

// Env carries what Run needs from the batch.
type Env struct {
	// Root is the project directory source paths are relative to.
	Root      string
	Cache     *cache.ArtifactCache
	Hash      fingerprint.Algorithm
	Runtime   *filter.Runtime
	Registrar Registrar
	Decoder   *textenc.Decoder
	Recorder  metrics.Recorder
	Logger    *slog.Logger
	// Timing logs every step's duration at info level.
	Timing bool
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Env) recorder() metrics.Recorder {
	if e.Recorder != nil {
		return e.Recorder
	}
	return metrics.NoopRecorder{}
}

func (e *Env) hash() fingerprint.Algorithm {
	if e.Hash == "" {
		return fingerprint.SHA256
	}
	return e.Hash
}

// Run executes the chain. Steps already in the cache are loaded instead of
// recomputed. On failure the document is left failed (or inactive when a
// filter cannot run on this host) and the error is returned; steps that
// completed before the failure stay cached.
func (d *Doc) Run(ctx context.Context, env *Env) error {
	if !d.Resolved() {
		return derrors.InternalError("document run before resolve").
			WithContext("doc", d.KeyString()).
			Build()
	}

	d.mu.Lock()
	d.state = StateRunning
	d.started = time.Now()
	d.artifacts = nil
	d.mu.Unlock()

	err := d.run(ctx, env)

	d.mu.Lock()
	d.finished = time.Now()
	switch {
	case err == nil:
		d.state = StateComplete
	case derrors.HasCategory(err, derrors.CategoryInactiveFilter):
		d.state = StateInactive
		d.err = err
	default:
		d.state = StateFailed
		d.err = err
	}
	d.mu.Unlock()
	return err
}

func (d *Doc) run(ctx context.Context, env *Env) error {
	data, err := d.source(env)
	if err != nil {
		return err
	}
	alg := env.hash()

	if len(d.filters) == 0 {
		fp, err := fingerprint.Compute(alg, fingerprint.Inputs{InputName: d.key.Path, Input: data})
		if err != nil {
			return d.annotate(err)
		}
		d.mu.Lock()
		d.output = data
		d.digest = fp.Digest
		d.mu.Unlock()
		return nil
	}

	deps := make(map[string]string)
	children := d.CompletedChildren()
	for _, c := range d.Children() {
		if c.State() == StateComplete {
			deps[c.KeyString()] = c.Fingerprint()
		}
	}

	for i, f := range d.filters {
		if err := ctx.Err(); err != nil {
			return derrors.Interrupted("run stopped").WithCause(err).WithContext("doc", d.KeyString()).Build()
		}
		data, err = d.step(ctx, env, i, f, data, children, deps)
		if err != nil {
			return err
		}
	}

	d.mu.Lock()
	d.output = data
	d.mu.Unlock()
	return nil
}

func (d *Doc) step(ctx context.Context, env *Env, i int, f filter.Filter, data sectioned.Data, children []filter.Child, deps map[string]string) (sectioned.Data, error) {
	info := f.Info()
	alias := d.key.Filters[i].Alias
	settings := d.settingsFor(i, info)
	if env.Runtime != nil && len(env.Runtime.Globals) > 0 {
		settings["globals"] = maps.Clone(env.Runtime.Globals)
	}

	art := &Artifact{
		Position:   i,
		Filter:     alias,
		State:      ArtifactPending,
		InputName:  d.names[i],
		OutputName: d.names[i+1],
		Started:    time.Now(),
	}
	d.mu.Lock()
	d.artifacts = append(d.artifacts, art)
	d.mu.Unlock()

	fail := func(err error) (sectioned.Data, error) {
		err = d.annotate(err)
		d.mu.Lock()
		art.State = ArtifactFailed
		art.Err = err
		art.Finished = time.Now()
		d.mu.Unlock()
		return sectioned.Data{}, err
	}

	fp, err := fingerprint.Compute(env.hash(), fingerprint.Inputs{
		FilterAlias:   info.Alias(),
		FilterVersion: info.Version,
		Settings:      settings,
		InputName:     art.InputName,
		Input:         data,
		Dependencies:  deps,
	})
	if err != nil {
		return fail(err)
	}

	in := &filter.Input{
		DocKey:     d.KeyString(),
		Name:       art.InputName,
		OutputName: art.OutputName,
		LongName:   d.longName(i),
		Data:       data,
		Settings:   settings,
		Children:   children,
		Runtime:    env.Runtime,
	}

	compute := func(ctx context.Context) (*cache.Entry, error) {
		start := time.Now()
		out, err := f.Process(ctx, in)
		env.recorder().ObserveStepDuration(alias, time.Since(start))
		if err != nil {
			if ce, ok := derrors.AsClassified(err); ok {
				switch ce.Category() {
				case derrors.CategoryNonzeroExit, derrors.CategoryTimeout:
					env.recorder().IncSubprocessResult(alias, string(ce.Category()))
				}
			}
			return nil, err
		}
		return newEntry(info, settings, out), nil
	}

	var (
		entry   *cache.Entry
		outcome cache.Outcome
	)
	if env.Cache != nil {
		entry, outcome, err = env.Cache.LookupOrCompute(ctx, fp, compute)
	} else {
		entry, err = compute(ctx)
		outcome = cache.Computed
	}
	if err != nil {
		return fail(err)
	}

	out, err := entry.Data()
	if err != nil {
		return fail(derrors.WrapError(err, derrors.CategoryCache, "corrupt cache entry").Build())
	}

	label := metrics.CacheMiss
	state := ArtifactComputed
	if outcome == cache.Hit {
		label = metrics.CacheHit
		state = ArtifactCached
	}
	env.recorder().IncCacheResult(alias, label)

	d.mu.Lock()
	art.Fingerprint = fp
	art.State = state
	art.Output = out
	art.Exit = exitFromEntry(entry)
	art.Finished = time.Now()
	d.digest = fp.Digest
	d.mu.Unlock()

	logger := env.logger()
	attrs := []any{
		logfields.Doc(d.KeyString()),
		logfields.Filter(alias),
		logfields.Step(i),
		logfields.Cache(string(outcome)),
		logfields.Fingerprint(fp.Short()),
		logfields.DurationMS(float64(art.Finished.Sub(art.Started).Microseconds()) / 1000),
	}
	if env.Timing {
		logger.Info("Step finished", attrs...)
	} else {
		logger.Debug("Step finished", attrs...)
	}

	if err := d.registerDiscovered(env, entry.Discovered); err != nil {
		return fail(err)
	}
	return out, nil
}

func (d *Doc) registerDiscovered(env *Env, found []cache.Discovered) error {
	if env.Registrar == nil {
		return nil
	}
	for _, disc := range found {
		data, err := cache.ToData(disc.Sections)
		if err != nil {
			return derrors.WrapError(err, derrors.CategoryCache, "corrupt discovered document").Build()
		}
		nd, err := New(disc.Key, WithData(data))
		if err != nil {
			return err
		}
		if err := env.Registrar.Register(nd); err != nil {
			if errors.Is(err, ErrAlreadyRegistered) {
				env.logger().Debug("Discovered document already registered", logfields.Doc(disc.Key))
				continue
			}
			return err
		}
		env.logger().Info("Registered discovered document", logfields.Doc(disc.Key), slog.String("parent", d.KeyString()))
	}
	return nil
}

func (d *Doc) source(env *Env) (sectioned.Data, error) {
	if d.contents != nil {
		return *d.contents, nil
	}

	p := filepath.Join(env.Root, filepath.FromSlash(d.key.Path))
	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return sectioned.Data{}, derrors.UserFeedback(fmt.Sprintf("file '%s' not found", d.key.Path)).
				WithContext("doc", d.KeyString()).
				Build()
		}
		return sectioned.Data{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read source").
			WithContext("path", p).
			Build()
	}
	if env.Decoder != nil {
		b, _, err = env.Decoder.Decode(b)
		if err != nil {
			return sectioned.Data{}, d.annotate(err)
		}
	}
	return sectioned.Single(b), nil
}

func newEntry(info filter.Info, settings filter.Settings, out *filter.Output) *cache.Entry {
	e := &cache.Entry{
		FilterAlias:   info.Alias(),
		FilterVersion: info.Version,
		Settings:      map[string]any(settings),
	}
	e.SetData(out.Data)
	if out.Exit != nil {
		e.Exit = &cache.ExitInfo{
			Command:    out.Exit.Command,
			State:      out.Exit.State.String(),
			Code:       out.Exit.Code,
			DurationMS: out.Exit.Duration.Milliseconds(),
		}
	}
	for _, disc := range out.Discovered {
		e.Discovered = append(e.Discovered, cache.Discovered{
			Key:      disc.Key,
			Sections: cache.FromData(disc.Data),
			Binary:   !disc.Data.IsText(),
		})
	}
	return e
}

func exitFromEntry(e *cache.Entry) *filter.Exit {
	if e.Exit == nil {
		return nil
	}
	return &filter.Exit{
		Command:  e.Exit.Command,
		Code:     e.Exit.Code,
		Duration: time.Duration(e.Exit.DurationMS) * time.Millisecond,
		State:    process.ParseState(e.Exit.State),
	}
}
