package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docpipe/internal/batch"
	"git.home.luguber.info/inful/docpipe/internal/doc"
)

// SummaryFile is the name the summary reporter writes under its directory.
const SummaryFile = "batch-summary.json"

// Summary is the JSON document written by SummaryReporter.
type Summary struct {
	SchemaVersion int          `json:"schema_version"`
	Batch         batch.Record `json:"batch"`
	DurationMS    int64        `json:"duration_ms"`
	Counts        Counts       `json:"counts"`
}

// Counts tallies documents by final state.
type Counts struct {
	Total     int `json:"total"`
	Complete  int `json:"complete"`
	Failed    int `json:"failed"`
	Inactive  int `json:"inactive"`
	Cancelled int `json:"cancelled"`
	Pending   int `json:"pending"`
}

// NewSummary builds the summary for a batch record.
func NewSummary(rec batch.Record) Summary {
	return Summary{
		SchemaVersion: 1,
		Batch:         rec,
		DurationMS:    rec.Elapsed().Milliseconds(),
		Counts: Counts{
			Total:    len(rec.Docs),
			Complete:  rec.Count(doc.StateComplete),
			Failed:    rec.Count(doc.StateFailed),
			Inactive:  rec.Count(doc.StateInactive),
			Cancelled: rec.Count(doc.StateCancelled),
			Pending:   rec.Count(doc.StatePending) + rec.Count(doc.StateRunning),
		},
	}
}

// SummaryReporter writes a JSON summary of the batch to Dir.
type SummaryReporter struct {
	Dir string
}

// NewSummaryReporter writes to dir.
func NewSummaryReporter(dir string) *SummaryReporter { return &SummaryReporter{Dir: dir} }

func (r *SummaryReporter) Name() string { return "summary" }

// Path returns the summary file location.
func (r *SummaryReporter) Path() string { return filepath.Join(r.Dir, SummaryFile) }

func (r *SummaryReporter) Report(_ context.Context, b *batch.Batch) error {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure summary directory: %w", err)
	}
	data, err := json.MarshalIndent(NewSummary(b.Record()), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename summary: %w", err)
	}
	return nil
}
