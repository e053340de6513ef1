package errors

import "maps"

// ErrorCategory represents the broad category of an error for classification and routing.
type ErrorCategory string

const (
	// CategoryUserFeedback represents problems the user can fix: bad keys,
	// unknown filters, malformed section markers. Reporting still runs.
	CategoryUserFeedback ErrorCategory = "user_feedback"
	CategoryConfig       ErrorCategory = "config"
	CategoryValidation   ErrorCategory = "validation"

	// CategoryInactiveFilter means the filter's executable is not installed.
	CategoryInactiveFilter ErrorCategory = "inactive_filter"

	// CategoryNonzeroExit and CategoryTimeout represent subprocess outcomes.
	CategoryNonzeroExit ErrorCategory = "nonzero_exit"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryInterrupt   ErrorCategory = "interrupt"

	// CategoryFileSystem represents storage and working directory errors.
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryCache      ErrorCategory = "cache"
	CategoryNetwork    ErrorCategory = "network"

	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity indicates the impact level of an error.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution completely
	SeverityError   ErrorSeverity = "error"   // Fails the current operation
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// RetryStrategy indicates how an error should be handled in retry scenarios.
type RetryStrategy string

const (
	RetryNever      RetryStrategy = "never"     // Permanent failure, don't retry
	RetryImmediate  RetryStrategy = "immediate" // Retry immediately
	RetryBackoff    RetryStrategy = "backoff"   // Retry with exponential backoff
	RetryUserAction RetryStrategy = "user"      // Requires user intervention
)

// ErrorContext provides structured context for errors.
type ErrorContext map[string]any

// Set adds or updates a context value.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	value, exists := c[key]
	return value, exists
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	if value, exists := c.Get(key); exists {
		if str, ok := value.(string); ok {
			return str, true
		}
	}
	return "", false
}

// GetInt retrieves an int context value.
func (c ErrorContext) GetInt(key string) (int, bool) {
	if value, exists := c.Get(key); exists {
		if n, ok := value.(int); ok {
			return n, true
		}
	}
	return 0, false
}

// Merge combines two contexts, with other taking precedence.
func (c ErrorContext) Merge(other ErrorContext) ErrorContext {
	if c == nil {
		return other
	}
	if other == nil {
		return c
	}
	result := make(ErrorContext)
	maps.Copy(result, c)
	maps.Copy(result, other)
	return result
}

// Rank orders categories by how strongly they end a run. Higher wins when
// several documents fail with different categories.
func (c ErrorCategory) Rank() int {
	switch c {
	case CategoryInternal:
		return 6
	case CategoryInterrupt:
		return 5
	case CategoryTimeout:
		return 4
	case CategoryNonzeroExit, CategoryFileSystem, CategoryCache, CategoryNetwork:
		return 3
	case CategoryConfig, CategoryValidation:
		return 2
	case CategoryUserFeedback:
		return 1
	default:
		return 0
	}
}
