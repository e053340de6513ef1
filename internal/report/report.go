// Package report hands a finished batch to its consumers: the output
// directory holding every document's final result and a JSON summary of
// the run.
package report

import (
	"context"
	"errors"
	"log/slog"

	"git.home.luguber.info/inful/docpipe/internal/batch"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// Reporter consumes a terminal batch.
type Reporter interface {
	Name() string
	Report(ctx context.Context, b *batch.Batch) error
}

// RunAll calls every reporter, continuing past failures. The returned error
// joins every reporter's error.
func RunAll(ctx context.Context, logger *slog.Logger, b *batch.Batch, reporters ...Reporter) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, r := range reporters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.Report(ctx, b); err != nil {
			logger.Error("Reporter failed", logfields.Reporter(r.Name()), logfields.Error(err))
			errs = append(errs, err)
			continue
		}
		logger.Debug("Reporter finished", logfields.Reporter(r.Name()))
	}
	return errors.Join(errs...)
}
