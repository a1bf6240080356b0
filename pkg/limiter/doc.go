// Package limiter provides cross-process, cross-thread concurrency control
// for protected operations, coordinated through a shared keyed store.
//
// Two primitives are included, with one common dispatch contract:
//
//   - Throttle: a token-bucket rate limiter. At most Count calls per Per are
//     admitted, with bursts smoothed by continuous refill rather than fixed
//     windows.
//   - Temper: a counting semaphore. At most Count invocations are in flight
//     at once; each admission holds a slot until the call returns.
//
// Both keep their state in a store.Store (Redis in production, an in-memory
// fake in tests), so many independent worker processes sharing one store
// enforce a single global budget. There is no other coordination channel.
//
// # Dispatch
//
// The usual entry point wraps the protected operation:
//
//	th, err := limiter.NewThrottle(st, limiter.ThrottleConfig{
//		Count: 5,
//		Per:   time.Minute,
//	})
//	limited := th.Wrap(fetchRemote)
//	err = limited(ctx, limiter.Args{"tenant": "acme"})
//
// When admission is denied the call sleeps and re-checks until admitted — a
// throttle sleeps for its estimated refill time, a temper polls on a short
// fixed interval. The loop has no built-in attempt cap; cancel or deadline
// the context to bound it. Alternatively, configure OnLimited: then a denied
// call invokes the fallback exactly once, without sleeping, and returns its
// result.
//
// Lower-level pieces are exported too: Allow (throttle) and Acquire/Release
// (temper) perform single admission checks against an already-resolved key
// for callers that manage their own waiting.
//
// # Keys
//
// A limiter instance is identified by its key, resolved per call:
//
//   - Name is used verbatim. Two operations configured with the same Name
//     share one bucket or semaphore on purpose.
//   - NameFormat renders placeholders from the call's Args, for example
//     "import:{tenant}" — one budget per tenant. A placeholder without a
//     matching argument fails with ErrKeyFormat.
//   - Otherwise the key derives from the protected function's runtime
//     identity, so repeated wrapping of the same function converges on the
//     same key across processes with no configuration.
//
// All keys carry a common prefix (default "limiter:") to namespace limiter
// state inside the shared store.
//
// # Crash safety
//
// A process that dies while holding a temper slot never releases it. The TTL
// on the persisted state is the recovery mechanism: once it expires the
// counter is treated as fresh and the slot comes back. This is a deliberate
// bounded-leak tradeoff; there is no active failure detection or lease
// renewal.
//
// # Ordering
//
// No fairness is guaranteed among blocked callers. A newly arriving call may
// take a freed slot or token ahead of one that has been waiting longer, so
// starvation is possible under sustained contention.
//
// # Storage details
//
// Throttle state is JSON {"tokens": float, "last_refill": unix-seconds};
// temper state is JSON {"in_use": int}. Both live under the resolved key and
// are mutated only through the store's atomic read-modify-write, never via
// locally cached counters — local caches cannot be correct across process
// boundaries.
package limiter
