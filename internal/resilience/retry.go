// Package resilience provides the retry envelope and error taxonomy shared
// by every pipeline stage: transient failures are retried with jittered
// exponential backoff up to a bounded attempt ceiling, permanent failures
// surface immediately, and exhausting the ceiling is reported distinctly so
// callers can tell "will retry" from "manual action required".
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/metrics"
)

// Envelope bounds the retry behavior of a single stage operation.
type Envelope struct {
	// Op names the operation in logs and Exhausted errors.
	Op string

	// Attempts is the total number of tries including the first.
	// Default: 4.
	Attempts int

	// Base is the delay before the first retry. Default: 500ms.
	Base time.Duration

	// Cap bounds the backoff delay. Default: 20s.
	Cap time.Duration

	// Factor scales the delay after each attempt. Default: 2.0.
	Factor float64

	// Jitter is the random fraction applied to each delay
	// (0.25 = ±25%). Default: 0.25.
	Jitter float64

	// Retryable overrides the transient-error check. Nil means IsTransient.
	Retryable func(error) bool
}

// StageEnvelope returns the default envelope used by pipeline stages.
func StageEnvelope(op string) Envelope {
	return Envelope{
		Op:       op,
		Attempts: 4,
		Base:     500 * time.Millisecond,
		Cap:      20 * time.Second,
		Factor:   2.0,
		Jitter:   0.25,
	}
}

// Run executes fn under the envelope. It stops immediately on context
// cancellation or a non-retryable error; hitting the attempt ceiling on a
// retryable error returns an *Exhausted wrapping the last failure.
func (e Envelope) Run(ctx context.Context, fn func(context.Context) error) error {
	_, err := RunVal(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RunVal is Run for operations returning a value.
func RunVal[T any](ctx context.Context, e Envelope, fn func(context.Context) (T, error)) (T, error) {
	e = e.withDefaults()

	retryable := e.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < e.Attempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if !retryable(lastErr) {
			return zero, lastErr
		}
		if attempt == e.Attempts-1 {
			break
		}

		delay := e.backoff(attempt)
		metrics.ObserveRetry(e.Op)
		zap.L().Warn("retrying after transient failure",
			zap.String("op", e.Op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(lastErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, lastErr
		case <-timer.C:
		}
	}

	return zero, &Exhausted{Op: e.Op, Attempts: e.Attempts, Err: lastErr}
}

func (e Envelope) withDefaults() Envelope {
	if e.Op == "" {
		e.Op = "operation"
	}
	if e.Attempts <= 0 {
		e.Attempts = 4
	}
	if e.Base <= 0 {
		e.Base = 500 * time.Millisecond
	}
	if e.Cap <= 0 {
		e.Cap = 20 * time.Second
	}
	if e.Factor <= 0 {
		e.Factor = 2.0
	}
	if e.Jitter < 0 {
		e.Jitter = 0
	}
	return e
}

func (e Envelope) backoff(attempt int) time.Duration {
	delay := float64(e.Base) * math.Pow(e.Factor, float64(attempt))
	if delay > float64(e.Cap) {
		delay = float64(e.Cap)
	}
	if e.Jitter > 0 {
		delay += (rand.Float64()*2 - 1) * delay * e.Jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
