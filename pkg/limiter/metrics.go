package limiter

const (
	metricAdmitted = "limiter.admitted"
	metricDenied   = "limiter.denied"
	metricFallback = "limiter.fallback"
	metricWait     = "limiter.wait_seconds"
	metricReleased = "limiter.released"
)

// MetricsRecorder receives limiter telemetry: admissions, denials, fallback
// dispatches, waits, and semaphore releases. Implementations must be safe for
// concurrent use.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpMetricsRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if recorder != nil' in the hot path.
type NoOpMetricsRecorder struct{}

func (n *NoOpMetricsRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpMetricsRecorder) Observe(name string, value float64, tags map[string]string) {}

func tags(kind, key string) map[string]string {
	return map[string]string{"kind": kind, "key": key}
}
