package limiter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/gatekeep/pkg/store"
)

const kindThrottle = "throttle"

// bucketState is the persisted token-bucket state. LastRefill is seconds
// since the Unix epoch; a fractional token balance is what spreads refill
// continuously instead of in window-sized steps.
type bucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill float64 `json:"last_refill"`
}

// ThrottleConfig bounds a protected operation to Count calls per Per,
// smoothed by continuous token refill.
type ThrottleConfig struct {
	Count int64
	Per   time.Duration

	// Name uses the given limiter key verbatim. NameFormat renders a key from
	// the call's Args ("sync:{tenant}"). When both are empty the key derives
	// from the protected function's identity. Distinct operations configured
	// with the same Name deliberately share one bucket.
	Name       string
	NameFormat string

	// TTL expires idle state in the store. Zero keeps state forever.
	TTL time.Duration

	// OnLimited, when set, runs once instead of blocking whenever admission
	// is denied.
	OnLimited Fallback
}

// Throttle is a distributed token-bucket rate limiter. Every instance that
// shares a store and resolves the same key draws from one budget, across
// threads and across processes.
type Throttle struct {
	settings
	store store.Store
	cfg   ThrottleConfig
	rate  float64 // tokens per second
}

// NewThrottle validates cfg and returns a throttle backed by st.
func NewThrottle(st store.Store, cfg ThrottleConfig, opts ...Option) (*Throttle, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("%w: throttle count must be positive, got %d", ErrInvalidConfig, cfg.Count)
	}
	if cfg.Per <= 0 {
		return nil, fmt.Errorf("%w: throttle period must be positive, got %v", ErrInvalidConfig, cfg.Per)
	}
	t := &Throttle{
		settings: defaultSettings(),
		store:    st,
		cfg:      cfg,
		rate:     float64(cfg.Count) / cfg.Per.Seconds(),
	}
	for _, opt := range opts {
		opt(&t.settings)
	}
	return t, nil
}

// Key reports the store key Do would use for fn with args.
func (t *Throttle) Key(fn any, args Args) (string, error) {
	return resolveKey(t.prefix, t.cfg.Name, t.cfg.NameFormat, fn, args)
}

// Allow performs a single admission check against key: refill the bucket for
// the time elapsed since the last check, then consume one token if at least
// one is available. The read, the decision, and the write commit atomically,
// so two concurrent callers can never both take the last token.
//
// On denial the refreshed (but undecremented) state is still persisted, and
// RetryAfter estimates when one token will have refilled.
func (t *Throttle) Allow(ctx context.Context, key string) (Decision, error) {
	var dec Decision
	now := unixSeconds(t.clock.Now())
	err := t.store.Update(ctx, key, t.cfg.TTL, func(cur []byte, found bool) ([]byte, bool, error) {
		st := bucketState{Tokens: float64(t.cfg.Count), LastRefill: now}
		if found {
			var read bucketState
			if err := json.Unmarshal(cur, &read); err == nil && read.LastRefill > 0 && read.Tokens >= 0 {
				st = read
			}
			// Anything unreadable stays at the fresh full bucket, the same
			// treatment as TTL expiry.
		}

		elapsed := now - st.LastRefill
		if elapsed < 0 {
			elapsed = 0
		}
		st.Tokens += elapsed * t.rate
		if st.Tokens > float64(t.cfg.Count) {
			st.Tokens = float64(t.cfg.Count)
		}
		st.LastRefill = now

		if st.Tokens >= 1 {
			st.Tokens--
			dec = Decision{Allowed: true, Remaining: int64(st.Tokens)}
		} else {
			wait := time.Duration((1 - st.Tokens) / t.rate * float64(time.Second))
			dec = Decision{Allowed: false, RetryAfter: wait}
		}

		next, err := json.Marshal(st)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return Decision{}, err
	}

	if dec.Allowed {
		t.recorder.Add(metricAdmitted, 1, tags(kindThrottle, key))
	} else {
		t.recorder.Add(metricDenied, 1, tags(kindThrottle, key))
	}
	return dec, nil
}

// Do runs fn under the throttle. When the bucket is empty it either sleeps
// until a token refills and re-checks (unbounded, but canceled by ctx), or —
// if OnLimited is configured — dispatches to the fallback once instead.
func (t *Throttle) Do(ctx context.Context, args Args, fn Func) error {
	key, err := t.Key(fn, args)
	if err != nil {
		return err
	}
	t.logger.Debug("throttle dispatch", zap.String("key", key))

	run, err := t.settings.await(ctx, kindThrottle, key, t.cfg.OnLimited, args, t.Allow)
	if err != nil || !run {
		return err
	}
	return fn(ctx, args)
}

// Wrap returns fn gated by the throttle, so call sites keep the shape of the
// original function. The default key derives from fn itself.
func (t *Throttle) Wrap(fn Func) Func {
	return func(ctx context.Context, args Args) error {
		return t.Do(ctx, args, fn)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
