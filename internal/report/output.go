package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docpipe/internal/batch"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// OutputReporter writes each completed document's final output under Dir,
// named by the document's output name. The directory is rebuilt in a
// sibling staging directory and swapped in once every file is written, so
// a failed report leaves the previous output intact. When two documents
// share an output name the first registered one is written.
type OutputReporter struct {
	Dir    string
	logger *slog.Logger
}

// NewOutputReporter writes to dir.
func NewOutputReporter(dir string) *OutputReporter {
	return &OutputReporter{Dir: dir, logger: slog.Default()}
}

// WithLogger sets the logger.
func (r *OutputReporter) WithLogger(l *slog.Logger) *OutputReporter {
	if l != nil {
		r.logger = l
	}
	return r
}

func (r *OutputReporter) Name() string { return "output" }

func (r *OutputReporter) Report(ctx context.Context, b *batch.Batch) error {
	stage := r.Dir + "_stage"
	if err := os.RemoveAll(stage); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	written := 0
	owners := make(map[string]string)
	for _, d := range b.Docs() {
		if err := ctx.Err(); err != nil {
			r.abort(stage)
			return err
		}
		if d.State() != doc.StateComplete {
			continue
		}
		name := filepath.FromSlash(d.OutputName())
		if !filepath.IsLocal(name) {
			r.logger.Warn("Skipping output outside the output directory",
				logfields.Doc(d.KeyString()), logfields.Name(d.OutputName()))
			continue
		}
		if owner, taken := owners[name]; taken {
			r.logger.Warn("Skipping output already written by another document",
				logfields.Doc(d.KeyString()), logfields.Name(d.OutputName()), slog.String("written_by", owner))
			continue
		}
		owners[name] = d.KeyString()
		p := filepath.Join(stage, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			r.abort(stage)
			return fmt.Errorf("create output directory: %w", err)
		}
		if err := os.WriteFile(p, d.Output().Bytes(), 0o644); err != nil {
			r.abort(stage)
			return fmt.Errorf("write %s: %w", d.OutputName(), err)
		}
		written++
	}

	if err := r.promote(stage); err != nil {
		r.abort(stage)
		return err
	}
	r.logger.Info("Wrote outputs", logfields.Path(r.Dir), slog.Int("files", written))
	return nil
}

// promote swaps the staging directory into place, keeping the previous
// output as Dir.prev until the rename succeeded.
func (r *OutputReporter) promote(stage string) error {
	prev := r.Dir + ".prev"
	if err := os.RemoveAll(prev); err != nil {
		return fmt.Errorf("remove previous backup: %w", err)
	}
	hadOutput := false
	if _, err := os.Stat(r.Dir); err == nil {
		if err := os.Rename(r.Dir, prev); err != nil {
			return fmt.Errorf("back up previous output: %w", err)
		}
		hadOutput = true
	}
	if err := os.Rename(stage, r.Dir); err != nil {
		if hadOutput {
			_ = os.Rename(prev, r.Dir)
		}
		return fmt.Errorf("promote staging directory: %w", err)
	}
	if hadOutput {
		if err := os.RemoveAll(prev); err != nil {
			r.logger.Warn("Failed to remove previous output", logfields.Path(prev), logfields.Error(err))
		}
	}
	return nil
}

func (r *OutputReporter) abort(stage string) {
	if err := os.RemoveAll(stage); err != nil {
		r.logger.Warn("Failed to remove staging directory after abort", logfields.Path(stage), logfields.Error(err))
	}
}
