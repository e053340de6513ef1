package metrics

import "time"

// CacheLabel enumerates artifact cache lookup results.
type CacheLabel string

const (
	CacheHit  CacheLabel = "hit"
	CacheMiss CacheLabel = "miss"
)

// DocOutcomeLabel enumerates final document states.
type DocOutcomeLabel string

const (
	DocCompleted DocOutcomeLabel = "completed"
	DocFailed    DocOutcomeLabel = "failed"
	DocSkipped   DocOutcomeLabel = "skipped"
)

// Recorder defines observability hooks for filter steps and batches.
// Implementations may forward to Prometheus or anything else.
type Recorder interface {
	ObserveStepDuration(filter string, d time.Duration)
	ObserveBatchDuration(d time.Duration)
	IncCacheResult(filter string, result CacheLabel)
	IncSubprocessResult(filter string, state string)
	IncDocOutcome(outcome DocOutcomeLabel)
	IncBatchOutcome(outcome string) // outcome: completed|failed
	SetWorkerConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration) {}
func (NoopRecorder) ObserveBatchDuration(time.Duration)        {}
func (NoopRecorder) IncCacheResult(string, CacheLabel)         {}
func (NoopRecorder) IncSubprocessResult(string, string)        {}
func (NoopRecorder) IncDocOutcome(DocOutcomeLabel)             {}
func (NoopRecorder) IncBatchOutcome(string)                    {}
func (NoopRecorder) SetWorkerConcurrency(int)                  {}
