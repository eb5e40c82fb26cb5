package helpers

import (
	"context"
	"math/rand"
	"time"
)

// RandomDelay returns a jittered duration within [min, max]. Every
// network-facing operation paces itself with this so request intervals
// never settle into a fixed pattern.
func RandomDelay(min, max time.Duration) time.Duration {
	if min < 0 {
		min = 0
	}
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Sleep blocks for a jittered duration within [min, max], returning early
// if the context is cancelled.
func Sleep(ctx context.Context, min, max time.Duration) error {
	d := RandomDelay(min, max)
	if d <= 0 {
		return ctx.Err()
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

// PenaltySleep blocks for an extended jittered delay after a failure,
// throttling repeated attempts against the same broken target.
func PenaltySleep(ctx context.Context, min, max time.Duration) error {
	return Sleep(ctx, 3*min, 3*max)
}
