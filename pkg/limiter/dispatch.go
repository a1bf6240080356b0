package limiter

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// await drives the shared dispatch loop: check admission, and on denial
// either hand the call to the fallback (once, without sleeping) or sleep for
// the decision's hint and re-check. It reports whether the protected call may
// run; false with a nil error means the fallback already handled the call.
//
// The loop has no iteration cap. The only ways out are admission, a fallback,
// a store error, or cancellation of ctx — callers that need a deadline wrap
// ctx with one.
func (s *settings) await(ctx context.Context, kind, key string, fallback Fallback, args Args,
	check func(context.Context, string) (Decision, error)) (bool, error) {
	for {
		dec, err := check(ctx, key)
		if err != nil {
			return false, err
		}
		if dec.Allowed {
			return true, nil
		}
		if fallback != nil {
			s.recorder.Add(metricFallback, 1, tags(kind, key))
			return false, fallback(ctx, args)
		}
		s.logger.Debug("admission denied, waiting",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Duration("retry_after", dec.RetryAfter),
		)
		s.recorder.Observe(metricWait, dec.RetryAfter.Seconds(), tags(kind, key))
		if err := sleep(ctx, s.clock, dec.RetryAfter); err != nil {
			return false, err
		}
	}
}

// sleep blocks for d against the given clock, returning early with the
// context's error if it is canceled first.
func sleep(ctx context.Context, c clockwork.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := c.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.Chan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
