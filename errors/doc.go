// Package errors provides classified error handling for the ingestion
// daemon.
//
// # Overview
//
// The package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input, do not retry)
// and Fatal (unrecoverable, stop processing). Classification lets the
// work queue, the Telegram client and the storage layer make retry
// decisions without matching on error strings.
//
// The system integrates with Go's standard error handling, supporting
// errors.Is(), errors.As() and error wrapping chains.
//
// # Quick Start
//
// Use standard error variables for known conditions:
//
//	if pool.FreeConns() == 0 {
//	    return errors.ErrNoFreeConn
//	}
//
// Wrap errors with component context:
//
//	if err := msg.Save(ctx, conn); err != nil {
//	    return errors.Wrap(err, "Ingester", "HandleNewMessage", "persist message")
//	}
//
// Check classification for retry logic:
//
//	if err := op(); err != nil {
//	    if errors.IsTransient(err) {
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	            // retry
//	        }
//	    } else if errors.IsFatal(err) {
//	        // refuse to continue, surface to the operator
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions set the classification explicitly:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// The generic Wrap() preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
// Pre-defined variables cover the common conditions, organized by
// category:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrShuttingDown
//   - Work queue: ErrStopped, ErrQueueFull, ErrStopTimeout, ErrNilCallback
//   - Telegram client: ErrNotConnected, ErrQueryTimeout, ErrLoopClosed
//   - Storage: ErrNoFreeConn, ErrStorageUnavailable, ErrRowNotFound
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//   - Retry: ErrMaxRetriesExceeded, ErrRetryTimeout
//
// Use these instead of ad-hoc messages so callers can test with
// errors.Is.
//
// # Context Cancellation
//
// context.DeadlineExceeded and context.Canceled are classified as
// Transient, so context-based timeouts flow through the same retry
// decisions as network timeouts.
//
// # Integration with errors.As/Is
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("component=%s class=%s", ce.Component, ce.Class)
//	}
//
//	wrapped := errors.Wrap(errors.ErrQueryTimeout, "Client", "Execute", "send query")
//	errors.IsTransient(wrapped) // true, classification survives wrapping
//
// # Retry Configuration
//
// DefaultRetryConfig returns exponential backoff settings whose
// ShouldRetry consults the error class; ToRetryConfig converts to the
// retry package's Config for use with retry.Do.
package errors
