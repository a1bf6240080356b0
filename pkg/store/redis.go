package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTimeout = 5 * time.Second
	defaultRetries = 16
)

// RedisStore implements Store on a Redis instance, which makes limiter state
// visible to every process sharing that instance.
//
// Update uses WATCH/MULTI optimistic locking: the read/compute/write cycle is
// retried whenever another client touches the key between the read and the
// EXEC, so concurrent updates never lose a write.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
	retries int
}

type RedisOption func(*RedisStore)

// WithTimeout sets the per-operation timeout layered on top of the caller's
// context (default 5s). Zero disables it.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.timeout = d
	}
}

// WithRetries caps how often one Update retries after losing an
// optimistic-locking race (default 16).
func WithRetries(n int) RedisOption {
	return func(s *RedisStore) {
		s.retries = n
	}
}

// NewRedisStore verifies connectivity and returns a store backed by client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client:  client,
		timeout: defaultTimeout,
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := s.opCtx(context.Background())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return s, nil
}

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: get %q: %w", ErrUnavailable, key, err)
	}
	return val, true, nil
}

func (s *RedisStore) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		found := true
		if errors.Is(err, redis.Nil) {
			cur, found, err = nil, false, nil
		}
		if err != nil {
			return fmt.Errorf("%w: get %q: %w", ErrUnavailable, key, err)
		}

		next, write, err := fn(cur, found)
		if err != nil {
			return updateFuncError{err}
		}
		if !write {
			return nil
		}

		if ttl <= 0 {
			ttl = 0 // redis treats 0 as "no expiration"
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		if err != nil {
			return err
		}
		return nil
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race against another writer; re-read and retry.
			continue
		}
		if errors.Is(err, ErrUnavailable) {
			return err
		}
		var updateErr updateFuncError
		if errors.As(err, &updateErr) {
			return updateErr.err
		}
		return fmt.Errorf("%w: update %q: %w", ErrUnavailable, key, err)
	}
	return fmt.Errorf("%w: update %q: optimistic lock retries exhausted", ErrUnavailable, key)
}

// updateFuncError keeps errors returned by an UpdateFunc distinguishable from
// transport errors once they come back out of Watch.
type updateFuncError struct {
	err error
}

func (e updateFuncError) Error() string { return e.err.Error() }
func (e updateFuncError) Unwrap() error { return e.err }

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%w: del %q: %w", ErrUnavailable, key, err)
	}
	return n > 0, nil
}

// List returns every key matching the glob pattern (for example "limiter:*")
// together with its value and remaining TTL.
func (s *RedisStore) List(ctx context.Context, pattern string) ([]Entry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var out []Entry
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			// Expired between SCAN and GET.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: get %q: %w", ErrUnavailable, key, err)
		}
		ttl, err := s.client.TTL(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: ttl %q: %w", ErrUnavailable, key, err)
		}
		if ttl < 0 {
			ttl = 0
		}
		out = append(out, Entry{Key: key, Value: val, TTL: ttl})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %q: %w", ErrUnavailable, pattern, err)
	}
	return out, nil
}

// Purge deletes every key matching the glob pattern and returns how many were
// removed.
func (s *RedisStore) Purge(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	total := 0
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		n, err := s.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			return total, fmt.Errorf("%w: del %q: %w", ErrUnavailable, iter.Val(), err)
		}
		total += int(n)
	}
	if err := iter.Err(); err != nil {
		return total, fmt.Errorf("%w: scan %q: %w", ErrUnavailable, pattern, err)
	}
	return total, nil
}
