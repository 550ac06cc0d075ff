package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

const defaultRetryBackoff = 1 * time.Second

// statusError is a non-200 response from an embedding endpoint.
type statusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *statusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, body)
}

// retryable reports whether the failure class is worth retrying.
// Only server errors and 429 are transient; anything else (client
// errors, unfollowed redirects) would fail identically on retry.
func (e *statusError) retryable() bool {
	if e.Code == http.StatusTooManyRequests {
		return true
	}
	return e.Code >= 500
}

// retryPolicy retries a single-call embed function with exponential
// backoff. The first retry starts after Backoff; each subsequent
// retry doubles the delay. Every attempt runs under its own Timeout.
type retryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func newRetryPolicy(cfg Config) retryPolicy {
	p := retryPolicy{
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	}
	if p.Timeout <= 0 {
		p.Timeout = 30 * time.Second
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	return p
}

// embed runs fn under the retry policy and returns the final vector
// or an error whose message names the last failure's type and text.
func (p retryPolicy) embed(ctx context.Context, logger hclog.Logger, fn func(context.Context) ([]float32, error)) ([]float32, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Backoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0

	var vec []float32
	attempt := 0
	operation := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()

		v, err := fn(callCtx)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return backoff.Permanent(err)
			}
			logger.Warn("embedding call failed",
				"attempt", attempt,
				"max_attempts", p.MaxRetries+1,
				"error", err,
			)
			return err
		}
		vec = v
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxRetries)), ctx))
	if err != nil {
		return nil, fmt.Errorf("embedding failed after %d attempt(s): %s", attempt, describeError(err))
	}
	return vec, nil
}

// describeError renders an error as "<type>: <message>". The message
// part is never empty; errors without text get a fixed placeholder.
func describeError(err error) string {
	if err == nil {
		return "error: No details available"
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		if inner := perm.Unwrap(); inner != nil {
			err = inner
		}
	}

	msg := strings.TrimSpace(err.Error())
	if msg == "" {
		msg = "No details available"
	}
	return fmt.Sprintf("%T: %s", err, msg)
}
