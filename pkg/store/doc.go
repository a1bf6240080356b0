// Package store defines the shared keyed store that the limiters in
// pkg/limiter coordinate through, plus two implementations of it.
//
// The contract is deliberately small: atomic read-modify-write per key
// (Update), plain reads (Get), deletion, and per-key TTL. Everything the
// limiters need — token buckets, semaphore counters — is expressed as an
// UpdateFunc over an opaque byte value, so both backends share one codepath
// for the actual limiter logic.
//
// RedisStore is the production backend: state lives in Redis, visible to
// every process sharing the instance, and Update is made atomic with
// WATCH/MULTI optimistic locking. MemoryStore is a process-local stand-in
// with identical semantics (including TTL expiry, driven by an injectable
// clock) intended for tests and single-instance use.
//
// TTLs double as crash recovery: a process that dies while holding limiter
// state simply leaves an entry behind that expires and is treated as absent
// on the next access.
package store
