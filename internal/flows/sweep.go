package flows

import (
	"context"
	"time"
)

type SweepSessionStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SweepDeps captures expiry sweep dependencies.
type SweepDeps struct {
	Now          func() time.Time
	SessionStore SweepSessionStore
}

// SweepResult reports how many records a sweep removed.
type SweepResult struct {
	Removed  int
	Duration time.Duration
	Err      error
}

// RunSweep deletes every record whose expiry is at or before now.
func RunSweep(ctx context.Context, deps SweepDeps) SweepResult {
	start := time.Now()
	removed, err := deps.SessionStore.DeleteExpired(ctx, deps.Now())
	return SweepResult{
		Removed:  removed,
		Duration: time.Since(start),
		Err:      err,
	}
}
