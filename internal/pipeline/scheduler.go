package pipeline

import (
	"context"

	"golang.org/x/time/rate"
)

// Scheduler paces iterations. Wait blocks until the next iteration may
// begin or ctx is done.
type Scheduler interface {
	Wait(ctx context.Context) error
}

// NewRateScheduler returns a Scheduler allowing hz iterations per second
// with a burst of one, so a slow detector lowers the effective rate and a
// fast one is capped.
func NewRateScheduler(hz float64) Scheduler {
	return rate.NewLimiter(rate.Limit(hz), 1)
}
