package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTel bridges Collector events onto OpenTelemetry instruments. Only the
// metric API is used here — exporter and pipeline wiring belong to the
// consuming process.
type OTel struct {
	hits    metric.Int64Counter
	misses  metric.Int64Counter
	latency metric.Float64Histogram
}

var _ Collector = (*OTel)(nil)

// NewOTel creates the instruments on the given meter.
func NewOTel(meter metric.Meter) (*OTel, error) {
	hits, err := meter.Int64Counter("tiercache.hits",
		metric.WithDescription("Lookups served from a cache scope"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("tiercache.misses",
		metric.WithDescription("Lookups a cache scope could not serve"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("tiercache.operation.duration",
		metric.WithDescription("Cache operation latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &OTel{hits: hits, misses: misses, latency: latency}, nil
}

func (o *OTel) Hit(scope Scope) {
	o.hits.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("scope", string(scope))))
}

func (o *OTel) Miss(scope Scope) {
	o.misses.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("scope", string(scope))))
}

func (o *OTel) ObserveLatency(op string, d time.Duration) {
	o.latency.Record(context.Background(), float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("operation", op)))
}
