package metrics

import (
	"sync"
	"time"
)

// testRecorder counts calls for assertions.
type testRecorder struct {
	mu           sync.Mutex
	steps        map[string]int
	cacheResults map[CacheLabel]int
	docOutcomes  map[DocOutcomeLabel]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{steps: map[string]int{}, cacheResults: map[CacheLabel]int{}, docOutcomes: map[DocOutcomeLabel]int{}}
}

func (t *testRecorder) ObserveStepDuration(filter string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps[filter]++
}
func (t *testRecorder) ObserveBatchDuration(time.Duration) {}
func (t *testRecorder) IncCacheResult(_ string, result CacheLabel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheResults[result]++
}
func (t *testRecorder) IncSubprocessResult(string, string) {}
func (t *testRecorder) IncDocOutcome(outcome DocOutcomeLabel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docOutcomes[outcome]++
}
func (t *testRecorder) IncBatchOutcome(string)   {}
func (t *testRecorder) SetWorkerConcurrency(int) {}

var _ Recorder = (*testRecorder)(nil)
var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
