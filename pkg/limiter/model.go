package limiter

import (
	"context"
	"time"
)

// Decision is the outcome of a single admission check.
type Decision struct {
	// Allowed reports whether the call may proceed now.
	Allowed bool

	// Remaining is the number of whole tokens (throttle) or free slots
	// (temper) left after this decision is applied.
	Remaining int64

	// RetryAfter is 0 when allowed. When denied it is the suggested wait
	// before re-checking: the estimated time until a token refills for a
	// throttle, or the fixed poll interval for a temper. Other callers may
	// consume capacity first, so it is a hint, not a promise.
	RetryAfter time.Duration
}

// Args carries the protected call's named arguments. They are interpolated
// into NameFormat keys and handed through to fn and the OnLimited fallback.
type Args map[string]any

// Func is a protected operation.
type Func func(ctx context.Context, args Args) error

// Fallback is invoked exactly once instead of blocking when admission is
// denied and a fallback is configured. Its result becomes the result of Do.
type Fallback func(ctx context.Context, args Args) error
