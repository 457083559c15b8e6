package caption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	maxAttempts   = 2
	maxRetryDelay = 5 * time.Second
)

// AttemptObserver is notified of every captioning attempt.
type AttemptObserver interface {
	IncCaptionAttempt(result string)
}

// Retrying bounds each call to next by a timeout and retries a failed call
// exactly once after a fixed delay.
type Retrying struct {
	next           Captioner
	attemptTimeout time.Duration
	retryDelay     time.Duration
	observer       AttemptObserver
	log            *zap.Logger
}

func NewRetrying(next Captioner, attemptTimeout, retryDelay time.Duration, observer AttemptObserver, log *zap.Logger) *Retrying {
	if retryDelay < 0 {
		retryDelay = 0
	}
	if retryDelay > maxRetryDelay {
		retryDelay = maxRetryDelay
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrying{
		next:           next,
		attemptTimeout: attemptTimeout,
		retryDelay:     retryDelay,
		observer:       observer,
		log:            log,
	}
}

func (r *Retrying) Caption(ctx context.Context, image []byte, mimeType string) (string, error) {
	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		raw, err := r.attempt(ctx, image, mimeType)
		if err == nil {
			r.observe("ok")
			return raw, nil
		}
		lastErr = err
		r.observe("error")
		r.log.Warn("caption attempt failed", zap.Int("attempt", attempts), zap.Error(err))

		if ctx.Err() != nil || attempts == maxAttempts {
			break
		}
		timer := time.NewTimer(r.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("%w after %d attempt(s): %w", ErrUnavailable, attempts, errors.Join(lastErr, ctx.Err()))
		case <-timer.C:
		}
	}
	return "", fmt.Errorf("%w after %d attempt(s): %w", ErrUnavailable, attempts, lastErr)
}

func (r *Retrying) attempt(ctx context.Context, image []byte, mimeType string) (string, error) {
	if r.attemptTimeout <= 0 {
		return r.next.Caption(ctx, image, mimeType)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return r.next.Caption(attemptCtx, image, mimeType)
}

func (r *Retrying) observe(result string) {
	if r.observer != nil {
		r.observer.IncCaptionAttempt(result)
	}
}
