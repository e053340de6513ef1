package errors

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil error", err: nil, expected: 0},
		{name: "user feedback", err: UserFeedback("invalid idiopidae").Build(), expected: 0},
		{name: "inactive filter", err: InactiveFilter("py").Build(), expected: 0},
		{name: "interrupt", err: Interrupted("stopped").Build(), expected: 1},
		{name: "validation", err: ValidationError("bad key").Build(), expected: 2},
		{name: "config", err: ConfigError("bad config").Build(), expected: 7},
		{name: "nonzero exit", err: NonzeroExit("sh example.sh", 3).Build(), expected: 11},
		{name: "timeout", err: TimeoutError("sleep 10").Build(), expected: 11},
		{name: "internal", err: InternalError("boom").Build(), expected: 10},
		{name: "wrapped classified", err: fmt.Errorf("doc a.sh|sh: %w", NonzeroExit("sh", 1).Build()), expected: 11},
		{name: "unclassified error", err: &customError{msg: "unknown error"}, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{name: "internal hidden", err: InternalError("internal issue").Build(), contains: "Internal error occurred (use -v for details)"},
		{name: "user feedback", err: UserFeedback("invalid idiopidae").Build(), contains: "ERROR: invalid idiopidae"},
		{name: "nonzero exit context", err: NonzeroExit("sh x.sh", 2).Build(), contains: "exit_code=2"},
		{name: "interrupt", err: Interrupted("signal").Build(), contains: "stopped by user"},
		{name: "unclassified error", err: &customError{msg: "unknown error"}, contains: "Error: unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, adapter.FormatError(tt.err), tt.contains)
		})
	}

	assert.Empty(t, adapter.FormatError(nil))
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var stderr bytes.Buffer
	code := -1
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	adapter.stderr = &stderr
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(TimeoutError("sleep 5").Build())

	require.Equal(t, 11, code)
	assert.Contains(t, stderr.String(), "process timed out")
}

func TestCLIErrorAdapter_Handle(t *testing.T) {
	var stderr bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).WithOutput(&stderr)

	assert.Equal(t, 0, adapter.Handle(nil))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 0, adapter.Handle(UserFeedback("no document or bundle matches target 'x'").Build()))
	assert.Contains(t, stderr.String(), "ERROR: no document or bundle matches target 'x'")

	stderr.Reset()
	assert.Equal(t, 1, adapter.Handle(Interrupted("run interrupted").Build()))
	assert.Contains(t, stderr.String(), "Run stopped by user.")
}

// customError is a test helper for unclassified errors
type customError struct {
	msg string
}

func (e *customError) Error() string {
	return e.msg
}
