package scanning

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a wrapped Recognizer using a token bucket.
// Callers over the limit block until a token is free or ctx is done.
type RateLimited struct {
	next    Recognizer
	limiter *rate.Limiter
}

// NewRateLimited wraps next so that at most perSecond calls start each
// second, with bursts of up to burst calls.
func NewRateLimited(next Recognizer, perSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Recognize waits for a token, then delegates. Waiting stops when ctx is done.
func (r *RateLimited) Recognize(ctx context.Context, img image.Image) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return r.next.Recognize(ctx, img)
}

// Close closes the wrapped recognizer
func (r *RateLimited) Close() error {
	return r.next.Close()
}
