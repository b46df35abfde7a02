package observability

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
)

var (
	errFirst  = errors.New("first failure")
	errSecond = errors.New("second failure")
)

func TestMetricBuilder_CreatesInstruments(t *testing.T) {
	t.Parallel()

	b := newMetricBuilder(noopmetric.NewMeterProvider().Meter("test"))

	assert.NotNil(t, b.counter("test.counter", "a counter", "{item}"))
	assert.NotNil(t, b.histogram("test.histogram", "a histogram", "s", 0.1, 1))
	assert.NotNil(t, b.histogram("test.histogram.default", "default buckets", "s"))
	assert.NotNil(t, b.upDownCounter("test.updown", "an up-down counter", "{item}"))
	require.NoError(t, b.err)
}

func TestMetricBuilder_KeepsFirstError(t *testing.T) {
	t.Parallel()

	b := &metricBuilder{meter: noopmetric.NewMeterProvider().Meter("test")}

	b.setErr("one", errFirst)
	b.setErr("two", errSecond)
	b.setErr("three", nil)

	require.ErrorIs(t, b.err, errFirst)
	assert.Contains(t, b.err.Error(), "create one")
}

func TestNewREDMetrics_ReportsBuilderError(t *testing.T) {
	t.Parallel()

	_, err := NewREDMetrics(failingMeter{Meter: noopmetric.NewMeterProvider().Meter("test")})
	require.ErrorIs(t, err, errFirst)
	assert.Contains(t, err.Error(), metricRequestsTotal)
}

// failingMeter fails every counter creation.
type failingMeter struct {
	metric.Meter
}

func (f failingMeter) Int64Counter(name string, opts ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	c, _ := f.Meter.Int64Counter(name, opts...)

	return c, errFirst
}
