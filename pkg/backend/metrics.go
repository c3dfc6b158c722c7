package backend

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "github.com/thebtf/hearme/pkg/backend"

// Counter names reported by the resolver.
const (
	ProbesCounter = "hearme.backend.probes"
	CallsCounter  = "hearme.backend.calls"
)

// resolverMetrics counts probes and remote calls.
type resolverMetrics struct {
	probes metric.Int64Counter
	calls  metric.Int64Counter
}

// newResolverMetrics registers the counters on mp, or on the global
// provider when mp is nil.
func newResolverMetrics(mp metric.MeterProvider) *resolverMetrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	probes, err := meter.Int64Counter(ProbesCounter,
		metric.WithDescription("Backend health probes by outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create probe counter, metrics disabled")
		probes, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(ProbesCounter)
	}

	calls, err := meter.Int64Counter(CallsCounter,
		metric.WithDescription("Backend remote calls by operation and outcome"))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create call counter, metrics disabled")
		calls, _ = noop.NewMeterProvider().Meter(meterName).Int64Counter(CallsCounter)
	}

	return &resolverMetrics{probes: probes, calls: calls}
}

func (m *resolverMetrics) probe(ctx context.Context, url string, healthy bool) {
	m.probes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", url),
		attribute.Bool("healthy", healthy),
	))
}

func (m *resolverMetrics) call(ctx context.Context, op string, outcome string) {
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

// Recorder keeps resolver counters in process so a client can report them
// without an exporter. Pass MeterProvider() in Config.
type Recorder struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewRecorder creates a recorder backed by a manual reader.
func NewRecorder() *Recorder {
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// MeterProvider returns the provider the resolver should record into.
func (r *Recorder) MeterProvider() metric.MeterProvider {
	return r.provider
}

// CounterValue is one counter series.
type CounterValue struct {
	Series string
	Value  int64
}

// Counters collects every integer counter as "name{k=v,...}" series,
// sorted by series.
func (r *Recorder) Counters(ctx context.Context) ([]CounterValue, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	var out []CounterValue
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out = append(out, CounterValue{
					Series: m.Name + "{" + dp.Attributes.Encoded(attribute.DefaultEncoder()) + "}",
					Value:  dp.Value,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Series < out[j].Series })
	return out, nil
}

// Shutdown releases the provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
