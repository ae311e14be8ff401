package markethours

import (
	"context"
	"time"
)

// Gate decides whether the robot loop keeps running and paces it to bar
// boundaries.
type Gate struct {
	Session      Session
	BarSize      time.Duration // e.g. 1m
	PollInterval time.Duration // longest single sleep; 0 sleeps in one slice
	Settle       time.Duration // grace after the boundary so the bar is published

	// Now and Sleep are injectable for tests. Sleep must return ctx.Err() on cancellation.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewGate returns a regular-session gate for barSize bars.
func NewGate(barSize time.Duration) *Gate {
	return &Gate{
		Session:      Regular,
		BarSize:      barSize,
		PollInterval: 5 * time.Second,
		Settle:       2 * time.Second,
	}
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gate) sleep(ctx context.Context, d time.Duration) error {
	if g.Sleep != nil {
		return g.Sleep(ctx, d)
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

// IsOpen reports whether the configured session is open right now.
func (g *Gate) IsOpen() bool {
	return IsSessionOpen(g.now(), g.Session)
}

// Boundary returns the time the bar after last is expected to be available.
func (g *Gate) Boundary(last time.Time) time.Time {
	return last.Add(g.BarSize + g.Settle)
}

// nextBoundary is Boundary(last) moved forward by whole bars until it lies
// after now.
func (g *Gate) nextBoundary(last time.Time) time.Time {
	target := g.Boundary(last)
	now := g.now()
	if target.After(now) || g.BarSize <= 0 {
		return target
	}
	steps := int64(now.Sub(target)/g.BarSize) + 1
	return target.Add(time.Duration(steps) * g.BarSize)
}

// WaitUntilNextBoundary blocks until last + BarSize + Settle. When that
// boundary already passed (no new bar arrived) it waits for the first later
// boundary on the same BarSize grid, so a stale feed is polled once per bar.
// It returns early with ctx.Err() when ctx is cancelled. A zero last waits
// one BarSize from now.
func (g *Gate) WaitUntilNextBoundary(ctx context.Context, last time.Time) error {
	if last.IsZero() {
		last = g.now().Add(-g.Settle)
	}
	target := g.nextBoundary(last)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := target.Sub(g.now())
		if remaining <= 0 {
			return nil
		}
		if g.PollInterval > 0 && remaining > g.PollInterval {
			remaining = g.PollInterval
		}
		if err := g.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}
