package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/manenim/gatekeep/pkg/limiter"
	"github.com/manenim/gatekeep/pkg/store"
)

// Demo: run several copies of this binary against one Redis and watch them
// share a single rate budget and a single concurrency budget.
func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("File .env loaded successfully!")
	}

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	workers := getEnvAsInt("WORKERS", 8)

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	st, err := store.NewRedisStore(client)
	if err != nil {
		log.Fatalf("redis at %s: %v", redisAddr, err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	// At most 5 fetches per second, cluster-wide.
	throttle, err := limiter.NewThrottle(st, limiter.ThrottleConfig{
		Count: 5,
		Per:   time.Second,
		Name:  "demo:fetch",
		TTL:   time.Minute,
	}, limiter.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	// At most 2 imports in flight at once per tenant, cluster-wide.
	temper, err := limiter.NewTemper(st, limiter.TemperConfig{
		Count:      2,
		NameFormat: "demo:import:{tenant}",
		TTL:        time.Minute,
	}, limiter.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}

	fetch := throttle.Wrap(func(ctx context.Context, args limiter.Args) error {
		logger.Info("fetching", zap.Any("worker", args["worker"]))
		return nil
	})
	importBatch := temper.Wrap(func(ctx context.Context, args limiter.Args) error {
		logger.Info("import started", zap.Any("worker", args["worker"]))
		time.Sleep(500 * time.Millisecond)
		logger.Info("import done", zap.Any("worker", args["worker"]))
		return nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			args := limiter.Args{"tenant": "acme", "worker": n}
			if err := fetch(ctx, args); err != nil {
				logger.Warn("fetch failed", zap.Int("worker", n), zap.Error(err))
				return
			}
			if err := importBatch(ctx, args); err != nil {
				logger.Warn("import failed", zap.Int("worker", n), zap.Error(err))
			}
		}(i)
	}
	wg.Wait()
	fmt.Println("all workers done")
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if intValue, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return intValue
	}
	return defaultValue
}
