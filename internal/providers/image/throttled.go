package image

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"boongle/internal/domain"
)

// Throttled spaces out backend calls so a burst of clicks cannot exhaust the
// provider's per-key quota.
type Throttled struct {
	next    Generator
	limiter *rate.Limiter
}

// NewThrottled allows perMinute calls per minute with a burst of one. A
// non-positive perMinute disables throttling.
func NewThrottled(next Generator, perMinute int) *Throttled {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, 1)}
}

// Generate waits for a slot, then delegates. A cancelled wait returns the
// context error without calling the backend.
func (t *Throttled) Generate(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Generate(ctx, prompt, count, credential)
}

var _ Generator = (*Throttled)(nil)
