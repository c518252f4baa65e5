package buffer

import "go.opentelemetry.io/otel/metric"

// Metrics holds the counters the buffer pool reports through OpenTelemetry.
// A zero-value Metrics (as produced when telemetry is disabled) leaves
// every field nil; instrument calls guard against that.
type Metrics struct {
	Hits      metric.Int64Counter
	Misses    metric.Int64Counter
	Evictions metric.Int64Counter
	Dirty     metric.Int64UpDownCounter
}

// NewMetrics registers the buffer pool's instruments against meter. It
// returns an error only if instrument registration itself fails.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	var m Metrics
	var err error
	if m.Hits, err = meter.Int64Counter("buffer_pool.hits"); err != nil {
		return m, err
	}
	if m.Misses, err = meter.Int64Counter("buffer_pool.misses"); err != nil {
		return m, err
	}
	if m.Evictions, err = meter.Int64Counter("buffer_pool.evictions"); err != nil {
		return m, err
	}
	if m.Dirty, err = meter.Int64UpDownCounter("buffer_pool.dirty_pages"); err != nil {
		return m, err
	}
	return m, nil
}
