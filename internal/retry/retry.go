// Package retry wraps each individual blob-tier call (upload one chunk,
// resolve one URL, start one download stream, delete one message) with
// exponential backoff and jitter, per spec.md §4.8. Retries re-run the full
// supplied closure rather than attempting to resume a consumed stream —
// callers are expected to re-open/re-seek/re-resolve inside the closure.
package retry

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
)

// Classifier reports whether an error observed from a blob-tier call is
// transient (network/timeout, HTTP 429, HTTP 5xx) and therefore worth
// retrying. Anything it reports false for is terminal.
type Classifier func(error) bool

// ExhaustedError is returned once the retry budget (5 attempts by default)
// has been spent without a terminal classification ending the loop early.
// It is itself terminal.
type ExhaustedError struct {
	Attempts  int
	LastError error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastError)
}

func (e *ExhaustedError) Unwrap() error { return e.LastError }

// Do runs attempt, retrying per the spec's backoff schedule when classify
// reports the error as transient. attempt is re-invoked in full on every
// retry — it must be a factory for a fresh try, not a rewind of a previous
// one (e.g. an upload attempt re-opens and re-seeks its source file).
func Do(ctx context.Context, attempt func(ctx context.Context) error, classify Classifier) error {
	sched := newScheduleFunc()

	var lastErr error
	var permanent bool

	op := func() error {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !classify(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(sched, ctx))
	if err == nil {
		return nil
	}
	if permanent {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &ExhaustedError{Attempts: sched.attempt, LastError: lastErr}
}

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
