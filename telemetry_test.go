package gopref

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/davidroman0O/gopref/store"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, _ := newTestPreferences(t, WithRegisterer(reg))

	require.NoError(t, p.Put("a", 1))
	require.NoError(t, p.Put("b", 2))
	_, _ = Get(p, "a", 0)
	require.NoError(t, p.Clear("a"))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.tel.operations.WithLabelValues("put")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tel.operations.WithLabelValues("get")))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.tel.changeEvents))

	sub := p.WatchKeys(func(string) {})
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tel.subscriptions.WithLabelValues("keys")))
	sub.Cancel()
	assert.Equal(t, 0.0, testutil.ToFloat64(p.tel.subscriptions.WithLabelValues("keys")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		names[mf.GetName()] = mf
	}
	require.Contains(t, names, "gopref_operations_total")
	require.Contains(t, names, "gopref_change_events_total")
	assert.Equal(t, dto.MetricType_COUNTER, names["gopref_operations_total"].GetType())
}

func TestPrometheusSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(store.NewMemoryStore(), WithRegisterer(reg))
	require.NoError(t, err)
	defer first.Close()
	second, err := New(store.NewMemoryStore(), WithRegisterer(reg))
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Put("a", 1))
	require.NoError(t, second.Put("a", 1))

	assert.Equal(t, 2.0, testutil.ToFloat64(first.tel.operations.WithLabelValues("put")))
}

func TestTracingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	p, _ := newTestPreferences(t, WithTracerProvider(tp))

	require.NoError(t, p.Put("a", 1))
	require.Error(t, p.Put("b", make(chan int)))
	_, _ = Get(p, "a", 0)
	require.NoError(t, p.Clear())

	spans := recorder.Ended()
	require.Len(t, spans, 4)
	assert.Equal(t, "gopref.Put", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, "gopref.Put", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1)
	assert.Equal(t, "gopref.Get", spans[2].Name())
	assert.Equal(t, "gopref.Clear", spans[3].Name())
}

func TestStreamDeliveryMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	p, _ := newTestPreferences(t, WithMeterProvider(mp))

	counts := make(chan int, 4)
	sub := p.WatchCount(func(n int) { counts <- n })
	receive(t, counts)
	require.NoError(t, p.Put("a", 1))
	receive(t, counts)
	sub.Cancel()
	<-sub.Done()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "gopref.stream.deliveries" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				stream, _ := dp.Attributes.Value("stream")
				assert.Equal(t, "count", stream.AsString())
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestZapLogger(t *testing.T) {
	logger := NewZapLogger(nil)
	assert.NotPanics(t, func() {
		logger.Debug("debug %d", 1)
		logger.Info("info %s", "x")
		logger.Warn("warn")
		logger.Error("error %v", assert.AnError)
	})
}
