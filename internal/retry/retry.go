// Package retry runs an action up to a fixed number of attempts with a fixed
// delay between attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// Policy bounds a retry loop. Delay is waited between attempts only, never
// after the last one.
type Policy struct {
	Clock     clockwork.Clock
	OnFailure func(attempt int, err error)
	Attempts  int
	Delay     time.Duration
}

// Always retries every error.
func Always(error) bool { return true }

// Do calls action until it succeeds, returns an error rejected by retryable,
// or the policy's attempts are used up. It returns the last value, the number
// of attempts made and the last error.
//
// Cancelling ctx while waiting between attempts stops the loop; the returned
// error then matches both ctx.Err() and the last action error.
func Do[T any](
	ctx context.Context,
	p Policy,
	action func(ctx context.Context, attempt int) (T, error),
	retryable func(error) bool,
) (T, int, error) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	attempts := max(p.Attempts, 1)
	if retryable == nil {
		retryable = Always
	}

	var (
		last T
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return last, attempt - 1, errors.Join(ctxErr, err)
			}
			return last, attempt - 1, ctxErr
		}

		last, err = action(ctx, attempt)
		if err == nil {
			return last, attempt, nil
		}
		if !retryable(err) || attempt == attempts {
			return last, attempt, err
		}
		if p.OnFailure != nil {
			p.OnFailure(attempt, err)
		}

		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return last, attempt, errors.Join(ctx.Err(), err)
			case <-clock.After(p.Delay):
			}
		}
	}

	return last, attempts, err
}
