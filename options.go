package gopref

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Preferences
type Option func(*settings)

type settings struct {
	logger         Logger
	keysReplay     bool
	executor       func(func())
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the logger used by the preferences
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKeysReplay controls whether WatchKeys first delivers the most recently
// modified key. Enabled by default.
func WithKeysReplay(enabled bool) Option {
	return func(s *settings) {
		s.keysReplay = enabled
	}
}

// WithExecutor sets how asynchronous operations are scheduled. The default
// starts a goroutine per operation.
func WithExecutor(run func(func())) Option {
	return func(s *settings) {
		if run != nil {
			s.executor = run
		}
	}
}

// WithRegisterer registers the prometheus collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}

// WithTracerProvider sets the provider of accessor spans. Defaults to the
// global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the provider of stream delivery metrics. Defaults to
// the global otel provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}
