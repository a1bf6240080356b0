package limiter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/manenim/gatekeep/pkg/store"
)

const (
	kindTemper = "temper"

	// DefaultPollInterval is how long a blocked caller sleeps between
	// re-checks. A semaphore cannot estimate when a holder will release, so
	// unlike the throttle there is nothing better than a short fixed poll.
	DefaultPollInterval = 50 * time.Millisecond
)

// semaphoreState is the persisted counter of slots currently held.
type semaphoreState struct {
	InUse int64 `json:"in_use"`
}

// TemperConfig caps the number of concurrent in-flight executions of a
// protected operation at Count, across every process sharing the store.
type TemperConfig struct {
	Count int64

	// Name / NameFormat select the limiter key exactly as in ThrottleConfig.
	Name       string
	NameFormat string

	// TTL bounds how long a crashed holder can pin a slot: state left behind
	// by a process that never released expires and the counter resets. Zero
	// keeps state forever, so crashes then leak slots permanently.
	TTL time.Duration

	// PollInterval overrides DefaultPollInterval for blocked callers.
	PollInterval time.Duration

	// OnLimited, when set, runs once instead of blocking whenever admission
	// is denied.
	OnLimited Fallback
}

// Temper is a distributed counting semaphore. Acquire and Release bracket a
// protected operation; Do does the bracketing with release guaranteed on
// every exit path, including panics.
type Temper struct {
	settings
	store store.Store
	cfg   TemperConfig
	poll  time.Duration
}

// NewTemper validates cfg and returns a semaphore backed by st.
func NewTemper(st store.Store, cfg TemperConfig, opts ...Option) (*Temper, error) {
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("%w: temper count must be positive, got %d", ErrInvalidConfig, cfg.Count)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	m := &Temper{
		settings: defaultSettings(),
		store:    st,
		cfg:      cfg,
		poll:     poll,
	}
	for _, opt := range opts {
		opt(&m.settings)
	}
	return m, nil
}

// Key reports the store key Do would use for fn with args.
func (m *Temper) Key(fn any, args Args) (string, error) {
	return resolveKey(m.prefix, m.cfg.Name, m.cfg.NameFormat, fn, args)
}

// Acquire atomically claims a slot under key if fewer than Count are in use.
// A denied attempt writes nothing: refreshing the TTL here would extend the
// lifetime of a crashed holder's leaked slot.
func (m *Temper) Acquire(ctx context.Context, key string) (Decision, error) {
	var dec Decision
	err := m.store.Update(ctx, key, m.cfg.TTL, func(cur []byte, found bool) ([]byte, bool, error) {
		var st semaphoreState
		if found {
			if err := json.Unmarshal(cur, &st); err != nil || st.InUse < 0 {
				st = semaphoreState{}
			}
		}
		if st.InUse >= m.cfg.Count {
			dec = Decision{Allowed: false, RetryAfter: m.poll}
			return nil, false, nil
		}
		st.InUse++
		dec = Decision{Allowed: true, Remaining: m.cfg.Count - st.InUse}
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
		m.recorder.Add(metricAdmitted, 1, tags(kindTemper, key))
	} else {
		m.recorder.Add(metricDenied, 1, tags(kindTemper, key))
	}
	return dec, nil
}

// Release returns a slot under key. The counter floors at zero: TTL expiry
// can have reset the state while the slot was held, and a release must never
// push the counter negative on top of that.
func (m *Temper) Release(ctx context.Context, key string) error {
	err := m.store.Update(ctx, key, m.cfg.TTL, func(cur []byte, found bool) ([]byte, bool, error) {
		var st semaphoreState
		if found {
			if err := json.Unmarshal(cur, &st); err != nil || st.InUse < 0 {
				st = semaphoreState{}
			}
		}
		if st.InUse > 0 {
			st.InUse--
		}
		next, err := json.Marshal(st)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		return err
	}
	m.recorder.Add(metricReleased, 1, tags(kindTemper, key))
	return nil
}

// Do runs fn holding one slot. Blocked callers poll every PollInterval until
// a slot frees (canceled by ctx), or dispatch once to OnLimited when it is
// configured. The slot is released on every exit path: error, panic, or
// canceled context.
func (m *Temper) Do(ctx context.Context, args Args, fn Func) (err error) {
	key, err := m.Key(fn, args)
	if err != nil {
		return err
	}
	m.logger.Debug("temper dispatch", zap.String("key", key))

	run, err := m.settings.await(ctx, kindTemper, key, m.cfg.OnLimited, args, m.Acquire)
	if err != nil || !run {
		return err
	}

	defer func() {
		// The slot must come back even when ctx was canceled mid-call.
		relErr := m.Release(context.WithoutCancel(ctx), key)
		if relErr != nil {
			m.logger.Error("temper release failed; slot leaks until TTL expiry",
				zap.String("key", key), zap.Error(relErr))
			if err == nil {
				err = relErr
			}
		}
	}()
	return fn(ctx, args)
}

// Wrap returns fn gated by the semaphore. The default key derives from fn
// itself.
func (m *Temper) Wrap(fn Func) Func {
	return func(ctx context.Context, args Args) error {
		return m.Do(ctx, args, fn)
	}
}
