package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifiedError(t *testing.T) {
	t.Run("Basic error creation", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("file", "docpipe.yaml").
			Build()

		if err.Category() != CategoryConfig {
			t.Errorf("expected category %s, got %s", CategoryConfig, err.Category())
		}
		if err.Severity() != SeverityFatal {
			t.Errorf("expected severity %s, got %s", SeverityFatal, err.Severity())
		}
		file, exists := err.Context().GetString("file")
		if !exists || file != "docpipe.yaml" {
			t.Errorf("expected context file=docpipe.yaml, got %v", file)
		}
	})

	t.Run("Error detection through wrapping", func(t *testing.T) {
		err := fmt.Errorf("step 2: %w", NonzeroExit("cc a.c", 1).Build())

		if !IsClassified(err) {
			t.Fatal("expected error to be classified")
		}
		if !HasCategory(err, CategoryNonzeroExit) {
			t.Error("expected nonzero_exit category")
		}
		classified, _ := AsClassified(err)
		code, ok := classified.Context().GetInt("exit_code")
		if !ok || code != 1 {
			t.Errorf("expected exit_code=1, got %d", code)
		}
	})

	t.Run("Unclassified defaults", func(t *testing.T) {
		err := errors.New("plain")
		if GetCategory(err) != CategoryInternal {
			t.Errorf("expected internal, got %s", GetCategory(err))
		}
		if GetSeverity(err) != SeverityError {
			t.Errorf("expected error severity, got %s", GetSeverity(err))
		}
	})
}

func TestErrorBuilder(t *testing.T) {
	originalErr := errors.New("disk full")
	err := WrapError(originalErr, CategoryFileSystem, "write failed").
		Retryable().
		WithContext("path", "/tmp/x").
		Build()

	if !errors.Is(err, originalErr) {
		t.Error("expected wrapped cause to be reachable")
	}
	if !err.CanRetry() {
		t.Error("expected retryable error")
	}
	if err.IsFatal() {
		t.Error("expected non-fatal error")
	}

	withMore := err.WithContext("attempt", 2)
	if _, ok := err.Context().Get("attempt"); ok {
		t.Error("WithContext must not mutate the original error")
	}
	if n, _ := withMore.Context().GetInt("attempt"); n != 2 {
		t.Errorf("expected attempt=2, got %d", n)
	}
}

func TestMostSevere(t *testing.T) {
	feedback := UserFeedback("bad marker").Build()
	nonzero := NonzeroExit("sh", 1).Build()
	timeout := TimeoutError("sh").Build()

	if got := MostSevere(nil, feedback, nonzero); got != error(nonzero) {
		t.Errorf("expected nonzero exit to win, got %v", got)
	}
	if got := MostSevere(timeout, nonzero, feedback); got != error(timeout) {
		t.Errorf("expected timeout to win, got %v", got)
	}
	if got := MostSevere(errors.New("x"), timeout); GetCategory(got) != CategoryInternal {
		t.Errorf("expected unclassified error to rank as internal, got %v", got)
	}
	if MostSevere() != nil {
		t.Error("expected nil for no errors")
	}
}
