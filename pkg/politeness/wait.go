package politeness

import (
	"context"
	"math"
	"time"
)

// NextAllowed returns the earliest time the next request to a domain may start.
// A zero lastCrawl means the domain was never fetched, so there is nothing to wait for.
func NextAllowed(lastCrawl time.Time, delaySeconds float64) time.Time {
	if lastCrawl.IsZero() {
		return time.Time{}
	}
	return lastCrawl.Add(SecondsToDuration(delaySeconds))
}

// SecondsToDuration converts a crawl delay to a Duration, saturating on overflow.
func SecondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	ns := seconds * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// WaitUntil blocks until deadline passes or ctx is done. It returns ctx.Err() when
// the wait was cut short, and nil otherwise. A deadline in the past returns at once.
func WaitUntil(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wait := time.Until(deadline)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
