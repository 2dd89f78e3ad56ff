package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/types"
)

// Policy bounds how often and how long a call is retried.
// Delay before retry i (0-based) is min(BaseDelay*2^i, MaxDelay).
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxRetries: 5, BaseDelay: 3 * time.Second, MaxDelay: 48 * time.Second}
}

// Retrier runs calls under a Policy.
type Retrier struct {
	policy   Policy
	log      *logger.Logger
	newTimer func() backoff.Timer
}

func New(p Policy, log *logger.Logger) *Retrier {
	return &Retrier{policy: p, log: log.Component("retry")}
}

func (r *Retrier) Policy() Policy { return r.policy }

func (r *Retrier) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.policy.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxRetries)), ctx)
}

// Do invokes fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent. The returned error is fn's own error, unwrapped.
func (r *Retrier) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		fields := logrus.Fields{
			"label":   label,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}
		var pe *types.ProviderError
		if errors.As(err, &pe) {
			fields["status"] = pe.StatusCode
			fields["code"] = pe.Code
		}
		r.log.WithFields(fields).WithField("error", err.Error()).Warn("retrying after transient failure")
	}

	var timer backoff.Timer
	if r.newTimer != nil {
		timer = r.newTimer()
	}
	return backoff.RetryNotifyWithTimer(op, r.backOff(ctx), notify, timer)
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, r *Retrier, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsRetryable reports whether err is a transient transport or provider failure.
// HTTP 4xx answers and anything unrecognized are permanent.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var pe *types.ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary()
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne)
}
