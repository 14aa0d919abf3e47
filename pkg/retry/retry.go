// Package retry runs fallible backend operations under a uniform retry policy
// with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/effective-security/mcp-ollama/pkg/metricskey"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcp-ollama", "retry")

// Policy specifies how many additional attempts follow a failed first attempt,
// and the delay before the first retry. Each further retry doubles the delay.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
}

// Delay returns the wait before the retry that follows the failed attempt
// with the given 0-based index. The growth is not capped.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Timer is the suspension primitive used between attempts.
type Timer interface {
	Start(duration time.Duration)
	Stop()
	C() <-chan time.Time
}

// Option configures the Invoker.
type Option func(*Invoker)

// WithTimer replaces the wall clock timer, a new Timer is created per call.
func WithTimer(newTimer func() Timer) Option {
	return func(i *Invoker) {
		i.newTimer = newTimer
	}
}

// Invoker executes operations under a Policy.
// It holds no mutable state and is safe for concurrent use.
type Invoker struct {
	policy   Policy
	newTimer func() Timer
}

// NewInvoker returns an Invoker for the policy.
func NewInvoker(policy Policy, opts ...Option) *Invoker {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	inv := &Invoker{
		policy: policy,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Policy returns the policy of the invoker.
func (i *Invoker) Policy() Policy {
	return i.policy
}

// Permanent wraps err so that Do stops retrying and returns err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do invokes op until it succeeds or the policy is exhausted.
// The caller observes exactly one error, the cause of the last attempt.
// The wait between attempts is interrupted when ctx is done,
// in that case the context error is returned.
func Do[T any](ctx context.Context, inv *Invoker, name string, op func(context.Context) (T, error)) (T, error) {
	started := time.Now()
	defer metricskey.PerfBackendCall.MeasureSince(started, name)

	var (
		res     T
		attempt int
	)

	operation := func() error {
		attempt++
		r, err := op(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		metricskey.StatsBackendCallsRetried.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"call", name,
			"status", "attempt_failed",
			"attempt", attempt,
			"retry_in", wait.String(),
			"err", err.Error(),
		)
	}

	var timer backoff.Timer
	if inv.newTimer != nil {
		timer = inv.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, inv.backOff(ctx), notify, timer)
	if err != nil {
		metricskey.StatsBackendCallsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.ERROR,
			"call", name,
			"status", "all_attempts_failed",
			"attempts", attempt,
			"err", err.Error(),
		)
		var zero T
		return zero, err
	}

	metricskey.StatsBackendCallsSucceeded.IncrCounter(1, name)
	return res, nil
}

// policyBackOff yields Policy.Delay for each successive retry.
type policyBackOff struct {
	policy  Policy
	attempt int
}

// NextBackOff implements backoff.BackOff
func (b *policyBackOff) NextBackOff() time.Duration {
	d := b.policy.Delay(b.attempt)
	b.attempt++
	return d
}

// Reset implements backoff.BackOff
func (b *policyBackOff) Reset() {
	b.attempt = 0
}

func (i *Invoker) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&policyBackOff{policy: i.policy}, uint64(i.policy.MaxRetries)), ctx)
}
