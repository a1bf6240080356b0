package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	st, err := NewRedisStore(client, WithTimeout(2*time.Second))
	if err != nil {
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { client.Close() })
	return st
}

func testKey(name string) string {
	return fmt.Sprintf("gatekeeptest:%s:%d", name, time.Now().UnixNano())
}

func TestRedisStore_Integration_RoundTrip(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	key := testKey("roundtrip")
	defer st.Delete(ctx, key)

	_, found, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, found)

	err = st.Update(ctx, key, 0, func(cur []byte, found bool) ([]byte, bool, error) {
		require.False(t, found)
		return []byte("1"), true, nil
	})
	require.NoError(t, err)

	val, found, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("1"), val)

	ok, err := st.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_Integration_TTL(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	key := testKey("ttl")
	defer st.Delete(ctx, key)

	err := st.Update(ctx, key, 100*time.Millisecond, func([]byte, bool) ([]byte, bool, error) {
		return []byte("v"), true, nil
	})
	require.NoError(t, err)

	_, found, err := st.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(250 * time.Millisecond)

	_, found, err = st.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "key should expire")
}

func TestRedisStore_Integration_UpdateFnError(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	key := testKey("fnerr")
	defer st.Delete(ctx, key)

	boom := errors.New("boom")
	err := st.Update(ctx, key, 0, func([]byte, bool) ([]byte, bool, error) {
		return nil, false, boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, _ := st.Get(ctx, key)
	assert.False(t, found)
}

func TestRedisStore_Integration_ConcurrentIncrements(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	key := testKey("concurrent")
	defer st.Delete(ctx, key)

	const goroutines = 10
	const perGoroutine = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				err := st.Update(ctx, key, time.Minute, func(cur []byte, found bool) ([]byte, bool, error) {
					n := 0
					if found {
						var err error
						n, err = strconv.Atoi(string(cur))
						if err != nil {
							return nil, false, err
						}
					}
					return []byte(strconv.Itoa(n + 1)), true, nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	val, found, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	n, err := strconv.Atoi(string(val))
	require.NoError(t, err)
	assert.Equal(t, goroutines*perGoroutine, n,
		"optimistic locking must not lose increments under contention")
}

func TestRedisStore_Integration_ListAndPurge(t *testing.T) {
	st := newTestRedisStore(t)
	ctx := context.Background()
	prefix := testKey("list")

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("%s:%d", prefix, i)
		err := st.Update(ctx, key, time.Minute, func([]byte, bool) ([]byte, bool, error) {
			return []byte("v"), true, nil
		})
		require.NoError(t, err)
	}

	entries, err := st.List(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, []byte("v"), e.Value)
		assert.Greater(t, e.TTL, time.Duration(0))
	}

	n, err := st.Purge(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err = st.List(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
