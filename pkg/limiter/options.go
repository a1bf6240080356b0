package limiter

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces limiter keys in the shared store.
const DefaultPrefix = "limiter:"

type settings struct {
	prefix   string
	clock    clockwork.Clock
	logger   *zap.Logger
	recorder MetricsRecorder
}

func defaultSettings() settings {
	return settings{
		prefix:   DefaultPrefix,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
		recorder: &NoOpMetricsRecorder{},
	}
}

// Option configures a Throttle or Temper.
type Option func(*settings)

// WithPrefix sets the key prefix (default "limiter:").
func WithPrefix(p string) Option {
	return func(s *settings) {
		s.prefix = p
	}
}

// WithClock substitutes the time source used for refill arithmetic and
// blocked-retry sleeps, so tests can advance time deterministically.
func WithClock(c clockwork.Clock) Option {
	return func(s *settings) {
		s.clock = c
	}
}

// WithLogger enables dispatch and denial logging (default is a no-op logger).
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

// WithRecorder injects a custom metrics backend.
func WithRecorder(r MetricsRecorder) Option {
	return func(s *settings) {
		s.recorder = r
	}
}
