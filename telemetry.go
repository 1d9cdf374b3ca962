package gopref

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/davidroman0O/gopref"

// telemetry bundles the prometheus collectors and otel instruments of one
// Preferences instance.
type telemetry struct {
	operations    *prometheus.CounterVec
	codecFailures *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
	changeEvents  prometheus.Counter

	tracer     trace.Tracer
	deliveries metric.Int64Counter
}

func newTelemetry(reg prometheus.Registerer, tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	t := &telemetry{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gopref",
			Name:      "operations_total",
			Help:      "Accessor operations by name.",
		}, []string{"op"}),
		codecFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gopref",
			Name:      "codec_failures_total",
			Help:      "Values that could not be decoded, by kind.",
		}, []string{"kind"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "gopref",
			Name:      "subscriptions",
			Help:      "Live stream subscriptions by stream.",
		}, []string{"stream"}),
		changeEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gopref",
			Name:      "change_events_total",
			Help:      "Change events received from the backend.",
		}),
	}

	if reg != nil {
		var err error
		if t.operations, err = register(reg, t.operations); err != nil {
			return nil, err
		}
		if t.codecFailures, err = register(reg, t.codecFailures); err != nil {
			return nil, err
		}
		if t.subscriptions, err = register(reg, t.subscriptions); err != nil {
			return nil, err
		}
		if t.changeEvents, err = register(reg, t.changeEvents); err != nil {
			return nil, err
		}
	}

	t.tracer = tp.Tracer(instrumentationName)

	counter, err := mp.Meter(instrumentationName).Int64Counter(
		"gopref.stream.deliveries",
		metric.WithDescription("Values delivered to stream subscribers."),
	)
	if err != nil {
		counter = noop.Int64Counter{}
	}
	t.deliveries = counter
	return t, nil
}

// register adds c to reg, reusing the collector already registered under
// the same descriptor so several instances can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (t *telemetry) op(name string) {
	t.operations.WithLabelValues(name).Inc()
}

func (t *telemetry) codecFailure(kind Kind) {
	t.codecFailures.WithLabelValues(kind.String()).Inc()
}

func (t *telemetry) subscribed(s streamKind, delta float64) {
	t.subscriptions.WithLabelValues(s.String()).Add(delta)
}

func (t *telemetry) delivered(s streamKind) {
	t.deliveries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("stream", s.String())))
}

func (t *telemetry) start(ctx context.Context, name, key string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("gopref.key", key)))
}

// finish records err on span and ends it.
func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
