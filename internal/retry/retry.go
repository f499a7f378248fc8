// Package retry повторяет проверку с экспоненциальной задержкой и джиттером.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

const (
	defaultBaseDelay      = 500 * time.Millisecond
	defaultMaxDelay       = 8 * time.Second
	defaultMultiplier     = 2.0
	defaultMaxAttempts    = 6
	defaultJitterFraction = 0.30
)

type Sleeper func(ctx context.Context, d time.Duration) error
type RandFunc func() float64

type Policy struct {
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	MaxAttempts    int
	JitterFraction float64
	Sleep          Sleeper
	Rand           RandFunc
}

func DefaultPolicy() Policy {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return Policy{
		BaseDelay:      defaultBaseDelay,
		MaxDelay:       defaultMaxDelay,
		Multiplier:     defaultMultiplier,
		MaxAttempts:    defaultMaxAttempts,
		JitterFraction: defaultJitterFraction,
		Sleep:          defaultSleep,
		Rand:           rng.Float64,
	}
}

// ExhaustedError — все попытки израсходованы, Cause — последняя причина.
type ExhaustedError struct {
	Cause    error
	Attempts int
}

func (e *ExhaustedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("retry attempts exhausted after %d", e.Attempts)
	}
	return fmt.Sprintf("retry attempts exhausted after %d: %v", e.Attempts, e.Cause)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Cause
}

// CheckFunc возвращает done=true, когда ждать больше не нужно.
// Ошибка считается временной: попытка повторится.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Poll вызывает check, пока тот не вернёт done, не кончатся попытки или не отменится ctx.
func Poll(ctx context.Context, policy Policy, logger *slog.Logger, check CheckFunc) error {
	policy = withDefaults(policy)

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx)
		if err == nil && done {
			return nil
		}
		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.jitterDelay(policy.backoffDelay(attempt))
		logRetry(logger, attempt+1, policy.MaxAttempts, err, delay)
		if err := policy.Sleep(ctx, delay); err != nil {
			return err
		}
	}

	return &ExhaustedError{Cause: lastErr, Attempts: policy.MaxAttempts}
}

func withDefaults(p Policy) Policy {
	if p.BaseDelay == 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Multiplier == 0 {
		p.Multiplier = defaultMultiplier
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.JitterFraction == 0 {
		p.JitterFraction = defaultJitterFraction
	}
	if p.Sleep == nil {
		p.Sleep = defaultSleep
	}
	if p.Rand == nil {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		p.Rand = rng.Float64
	}
	return p
}

func (p Policy) backoffDelay(retryIndex int) time.Duration {
	if retryIndex < 1 {
		retryIndex = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(retryIndex-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

func (p Policy) jitterDelay(delay time.Duration) time.Duration {
	if delay <= 0 || p.JitterFraction <= 0 {
		return delay
	}
	// +/- JitterFraction от задержки.
	factor := 1 + (p.Rand()*2-1)*p.JitterFraction
	adjusted := float64(delay) * factor
	if adjusted < 0 {
		adjusted = 0
	}
	return time.Duration(adjusted)
}

func defaultSleep(ctx context.Context, d time.Duration) error {
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

func logRetry(logger *slog.Logger, attempt int, maxAttempts int, cause error, delay time.Duration) {
	if logger == nil {
		return
	}
	args := []any{
		slog.Int("attempt", attempt),
		slog.Int("max_attempts", maxAttempts),
		slog.Duration("retry_in", delay),
	}
	if cause != nil {
		args = append(args, slog.String("reason", cause.Error()))
	}
	logger.Debug("polling again", args...)
}
