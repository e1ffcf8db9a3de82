package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"weft/internal/logging"
	"weft/internal/services"
)

// retryPolicy doubles from initial up to max, without jitter.
type retryPolicy struct {
	attempts int
	initial  time.Duration
	max      time.Duration
	timer    backoff.Timer
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{attempts: 5, initial: time.Second, max: 10 * time.Second}
}

// withTimer replaces the wall clock used between attempts.
func withTimer(t backoff.Timer) Option {
	return func(c *Client) { c.retry.timer = t }
}

// hintedBackOff lets a Retry-After hint from the last response replace the
// next scheduled delay. Every delay is capped at max.
type hintedBackOff struct {
	backoff.BackOff
	hint *time.Duration
	max  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if *b.hint > 0 {
		next = *b.hint
		*b.hint = 0
	}
	if b.max > 0 && next > b.max {
		next = b.max
	}
	return next
}

func (p retryPolicy) backOff(hint *time.Duration) backoff.BackOff {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.initial
	exp.RandomizationFactor = 0
	exp.Multiplier = 2
	if p.max > 0 {
		exp.MaxInterval = p.max
	}
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &hintedBackOff{
		BackOff: backoff.WithMaxRetries(exp, uint64(attempts-1)),
		hint:    hint,
		max:     p.max,
	}
}

// withRetry runs fn until it succeeds, fails permanently, or the attempt
// budget is spent.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var (
		hint  time.Duration
		tries int
	)
	operation := func() error {
		tries++
		err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		hint = 0
		var se *statusError
		if errors.As(err, &se) {
			hint = se.RetryAfter
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("llm retry",
			logging.String("op", op),
			logging.Int("attempt", tries),
			logging.Duration("wait", wait),
			logging.Error(err))
	}

	b := backoff.WithContext(c.retry.backOff(&hint), ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, c.retry.timer)
	if err != nil && tries > 1 && ctx.Err() == nil {
		return fmt.Errorf("llm %s: failed after %d attempts: %w", op, tries, err)
	}
	return err
}

func retryable(err error) bool {
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.transient()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.Code, snippet(e.Body))
}

func (e *statusError) transient() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= http.StatusInternalServerError
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable and
// past values yield zero.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil && when.After(now) {
		return when.Sub(now)
	}
	return 0
}

// classify tags err for job retry decisions. Rejected credentials are a
// configuration problem, other client errors are permanent, and the rest is
// an external tool failure worth retrying later.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "llm", op, "credentials rejected", err)
		case !se.transient():
			return services.Wrap(services.ErrPermanent, "llm", op, "request rejected", err)
		}
	}
	return services.Wrap(services.ErrExternalTool, "llm", op, "", err)
}
