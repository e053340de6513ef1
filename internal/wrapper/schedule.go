package wrapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docpipe/internal/batch"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/metrics"
)

// scheduler runs registered documents in waves: a document is ready once
// every child has finished. Documents registered while a wave runs, such
// as files discovered by a filter, join the next wave.
type scheduler struct {
	w   *Wrapper
	b   *batch.Batch
	env *doc.Env

	mu       sync.Mutex
	incoming []*doc.Doc
	failures []error
}

// execute registers docs with b and runs everything the batch accumulates.
// It returns every document failure; inactive documents are not failures.
func (w *Wrapper) execute(ctx context.Context, b *batch.Batch, docs []*doc.Doc, env *doc.Env) []error {
	s := &scheduler{w: w, b: b, env: env}
	env.Registrar = b
	b.OnRegister(s.enqueue)
	for _, d := range docs {
		if err := b.Register(d); err != nil && !errors.Is(err, doc.ErrAlreadyRegistered) {
			s.fail(d, derrors.WrapError(err, derrors.CategoryInternal, "failed to register document").Build())
		}
	}
	s.loop(ctx)
	return s.failures
}

func (s *scheduler) enqueue(d *doc.Doc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming = append(s.incoming, d)
}

func (s *scheduler) drain() []*doc.Doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.incoming
	s.incoming = nil
	return out
}

func (s *scheduler) fail(d *doc.Doc, err error) {
	d.Fail(err)
	s.mu.Lock()
	s.failures = append(s.failures, err)
	s.mu.Unlock()
	s.w.recorder.IncDocOutcome(metrics.DocFailed)
}

func (s *scheduler) loop(ctx context.Context) {
	done := make(map[*doc.Doc]bool)
	var waiting []*doc.Doc

	for {
		for _, d := range s.drain() {
			if err := d.Resolve(s.w.registry); err != nil {
				s.w.logger.Error("Document cannot be resolved", logfields.Doc(d.KeyString()), logfields.Error(err))
				s.fail(d, err)
				done[d] = true
				continue
			}
			waiting = append(waiting, d)
		}
		if len(waiting) == 0 {
			return
		}
		if err := ctx.Err(); err != nil {
			stopped := derrors.Interrupted("run interrupted").WithCause(err).Build()
			for _, d := range waiting {
				d.Cancel(stopped)
			}
			s.mu.Lock()
			s.failures = append(s.failures, stopped)
			s.mu.Unlock()
			return
		}

		var wave, rest []*doc.Doc
		for _, d := range waiting {
			if ready(d, done) {
				wave = append(wave, d)
			} else {
				rest = append(rest, d)
			}
		}
		if len(wave) == 0 {
			s.failCycle(rest)
			return
		}

		s.runWave(ctx, wave)
		for _, d := range wave {
			done[d] = true
		}
		waiting = rest
	}
}

func ready(d *doc.Doc, done map[*doc.Doc]bool) bool {
	for _, c := range d.Children() {
		if !done[c] {
			return false
		}
	}
	return true
}

func (s *scheduler) failCycle(stuck []*doc.Doc) {
	keys := make([]string, len(stuck))
	for i, d := range stuck {
		keys[i] = d.KeyString()
	}
	err := derrors.ConfigError(fmt.Sprintf("dependency cycle among: %s", strings.Join(keys, ", "))).Build()
	for _, d := range stuck {
		s.fail(d, err)
	}
}

func (s *scheduler) runWave(ctx context.Context, wave []*doc.Doc) {
	var g errgroup.Group
	g.SetLimit(s.w.cfg.Workers)
	for _, d := range wave {
		g.Go(func() error {
			s.runDoc(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *scheduler) runDoc(ctx context.Context, d *doc.Doc) {
	logger := s.env.Logger.With(logfields.Doc(d.KeyString()))
	err := d.Run(ctx, s.env)
	switch {
	case err == nil:
		s.w.recorder.IncDocOutcome(metrics.DocCompleted)
		logger.Debug("Document complete", slog.String("output", d.OutputName()))
	case derrors.HasCategory(err, derrors.CategoryInactiveFilter):
		s.w.recorder.IncDocOutcome(metrics.DocSkipped)
		logger.Warn("Document skipped: filter not available on this host", logfields.Error(err))
	default:
		s.w.recorder.IncDocOutcome(metrics.DocFailed)
		logger.Error("Document failed", logfields.Error(err))
		s.mu.Lock()
		s.failures = append(s.failures, err)
		s.mu.Unlock()
	}
}
