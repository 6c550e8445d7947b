// Package errors provides the classified error primitives used across laundrycycle.
//
// Every error that crosses a package boundary carries a category, a severity and a
// retry strategy so the CLI and HTTP layers can map it to an exit code or status code
// without string matching.
//
//   - ErrorCategory: transition, timer, persistence, not_found, validation, config, ...
//   - ErrorSeverity: fatal, error, warning, info
//   - RetryStrategy: never, immediate, backoff, user
//   - ErrorBuilder: fluent construction
//
// Example usage:
//
//	err := errors.PersistenceError("save entity").
//		WithCause(dbErr).
//		WithContext("entity_id", id).
//		Build()
package errors
