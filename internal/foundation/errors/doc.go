// Package errors provides the classified error primitives used across docpipe.
//
// Every failure that crosses a package boundary is a ClassifiedError whose
// category decides how the run reacts:
//   - user_feedback, config, validation: reported to the user, reports still run
//   - inactive_filter: the document is skipped
//   - nonzero_exit, timeout: the document fails, reports still run
//   - interrupt: the batch is marked failed and the process exits with 1
//   - internal: the run aborts before reporting
//
// Example usage:
//
//	err := errors.NonzeroExit(cmdline, code).
//		WithContext("doc", key).
//		WithCause(runErr).
//		Build()
package errors
