// Package metrics provides observability hooks for docpipe runs.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	w := wrapper.New(cfg, wrapper.WithRecorder(metrics.NoopRecorder{}))
//
// When a metrics file is configured the CLI swaps in a PrometheusRecorder and
// writes the registry to that file after the batch finishes.
package metrics
