// Package resilience provides the generic retry wrapper used around every
// outbound accounting vendor call.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/finplat/backend/internal/domain/accounting"
)

// Options controls one retry execution.
type Options struct {
	// MaxAttempts is the total number of attempts including the first
	MaxAttempts int
	// InitialDelay is the delay before the second attempt
	InitialDelay time.Duration
	// MaxDelay caps the computed backoff before jitter
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts
	Multiplier float64
	// JitterFactor randomizes each delay by ±factor
	JitterFactor float64
	// RetryIf overrides the default transient-error predicate
	RetryIf func(error) bool
	// OnRetry is invoked before each sleep with the failed attempt number
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultOptions mirrors the hub-wide retry defaults.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

func (o *Options) normalize() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = 1
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Multiplier < 1 {
		o.Multiplier = 2
	}
	if o.JitterFactor < 0 {
		o.JitterFactor = 0
	}
}

// Result reports how an execution went.
type Result struct {
	Success       bool
	Attempts      int
	TotalDuration time.Duration
	Err           error
}

// Executor runs operations with exponential backoff and jitter.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute runs op until it succeeds, retries are exhausted, or the context
// is cancelled. The last error is returned inside Result; Result.Err is nil
// on success.
func (e *Executor) Execute(ctx context.Context, opts Options, op func(ctx context.Context) error) Result {
	opts.normalize()
	retryIf := opts.RetryIf
	if retryIf == nil {
		retryIf = IsTransient
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempt - 1, TotalDuration: time.Since(start), Err: err}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return Result{Success: true, Attempts: attempt, TotalDuration: time.Since(start)}
		}

		if attempt == opts.MaxAttempts || !retryIf(lastErr) {
			return Result{Attempts: attempt, TotalDuration: time.Since(start), Err: lastErr}
		}

		delay := Delay(opts, attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, lastErr, delay)
		}
		if e.logger != nil {
			e.logger.Debug("retrying operation",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
		}
		if err := sleep(ctx, delay); err != nil {
			return Result{Attempts: attempt, TotalDuration: time.Since(start), Err: err}
		}
	}
	return Result{Attempts: opts.MaxAttempts, TotalDuration: time.Since(start), Err: lastErr}
}

// ExecuteWithResult is Execute for operations that produce a value.
func ExecuteWithResult[T any](ctx context.Context, e *Executor, opts Options, op func(ctx context.Context) (T, error)) (T, Result) {
	var out T
	res := e.Execute(ctx, opts, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, res
}

// Delay computes the backoff before the attempt following attempt n.
// delay = min(maxDelay, initial * multiplier^(n-1)), jittered by ±factor and
// clamped non-negative.
func Delay(opts Options, attempt int) time.Duration {
	opts.normalize()
	base := float64(opts.InitialDelay) * math.Pow(opts.Multiplier, float64(attempt-1))
	if base > float64(opts.MaxDelay) {
		base = float64(opts.MaxDelay)
	}
	if opts.JitterFactor > 0 {
		jitter := base * opts.JitterFactor * (2*rand.Float64() - 1)
		base += jitter
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// IsTransient is the default retry predicate, built on the shared error
// classification.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return accounting.Classify(err).IsRetryable
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
