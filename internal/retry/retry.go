// Package retry runs an operation under an explicit, bounded retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds the number of retries and the delay between attempts.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration
	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration
}

// Classifier reports whether an error is transient (worth retrying).
type Classifier func(err error) bool

// permanentError marks an error as not retryable regardless of the classifier.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so that Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a non-transient error, or the policy
// is exhausted. onRetry (optional) is invoked before each retry.
func Do(
	ctx context.Context, p Policy, transient Classifier,
	fn func(ctx context.Context) error, onRetry func(attempt int, err error),
) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || transient == nil || !transient(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}
		if werr := wait(ctx, p.delay(attempt)); werr != nil {
			return fmt.Errorf("retry aborted: %w (last error: %w)", werr, err)
		}
	}
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.Backoff
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
