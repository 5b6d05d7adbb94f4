package dynamo

import (
	"context"
	"math/rand/v2"
	"time"
)

// retry runs op up to attempts times, backing off between attempts when
// the store rejects a request for capacity reasons. Non-throttle errors
// propagate immediately: a request the store rejected outright will not
// succeed on replay.
func (s *Store) retry(ctx context.Context, attempts int, op func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !isThrottle(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if werr := s.wait(ctx, attempt); werr != nil {
			return werr
		}
	}
	return err
}

// backoffDelay computes the pause after a throttled attempt:
// attempt cubed seconds plus a random 1..attempt-cubed second jitter,
// so competing instances decorrelate.
func backoffDelay(attempt int) time.Duration {
	cube := attempt * attempt * attempt
	jitter := 1 + rand.Int64N(int64(cube))
	return time.Duration(cube)*time.Second + time.Duration(jitter)*time.Second
}

// backoffWait sleeps for the computed backoff, honoring cancellation.
func backoffWait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(backoffDelay(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
