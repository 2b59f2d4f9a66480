package ai

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 3

// ResilientGenerator decorates an IGenerator with a shared circuit breaker
// and a bounded exponential-backoff retry for transient network errors.
// Malformed replies and context cancellation are never retried.
type ResilientGenerator struct {
	inner         IGenerator
	breaker       *Breaker
	maxAttempts   uint64
	retryInterval time.Duration
}

func NewResilientGenerator(inner IGenerator, breaker *Breaker) *ResilientGenerator {
	return &ResilientGenerator{
		inner:         inner,
		breaker:       breaker,
		maxAttempts:   defaultMaxAttempts,
		retryInterval: 500 * time.Millisecond,
	}
}

func (g *ResilientGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := g.breaker.Allow(); err != nil {
		return "", err
	}
	var result string
	operation := func() error {
		res, err := g.inner.Generate(ctx, prompt)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			logutil.GetLogger(ctx).Warn("transient generation failure, retrying", zap.Error(err))
			return err
		}
		result = res
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newRetryBackOff(g.retryInterval), g.maxAttempts-1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		// A caller that gave up says nothing about backend health.
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		g.breaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) {
			return "", ErrGenerateTimeout
		}
		return "", err
	}
	g.breaker.RecordSuccess()
	return result, nil
}

func newRetryBackOff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// isTransient reports whether the error is worth another attempt. A reply we
// received but could not use is not transient, and neither is a caller that
// has already given up.
func isTransient(err error) bool {
	if IsGenerationError(err) {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
