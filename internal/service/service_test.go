package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/internal/service"
	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/config"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
)

func newService(t *testing.T, mutate func(*service.Options)) (*service.Service, *sdkmetric.ManualReader) {
	t.Helper()

	opts, err := service.OptionsFrom(config.Default())
	require.NoError(t, err)

	if mutate != nil {
		mutate(&opts)
	}

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := observability.NewMergeMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return service.New(opts, nil, nil, metrics), reader
}

func input(name, text string) service.Input {
	return service.Input{Name: name, Data: []byte(text)}
}

func gauge(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			g, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)
			require.NotEmpty(t, g.DataPoints)

			return g.DataPoints[len(g.DataPoints)-1].Value
		}
	}

	return 0
}

func counter(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}

			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is %T", name, m.Data)

			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}

	return total
}

func TestService_Diff(t *testing.T) {
	t.Parallel()

	svc, reader := newService(t, nil)

	res, err := svc.Diff(context.Background(), input("a.txt", "a\nb\nc\n"), input("b.txt", "a\r\nx\r\nc\r\n"))
	require.NoError(t, err)

	assert.Equal(t, lines.Sequence{"a", "x", "c"}, res.Right.Lines)
	assert.Equal(t, lines.CRLF, res.Right.Format.EOL)

	unchanged, inserted, deleted := res.Script.Counts()
	assert.Equal(t, [3]int{2, 1, 1}, [3]int{unchanged, inserted, deleted})

	assert.Equal(t, int64(1), counter(t, reader, "codemerge.alignments.total"))
	assert.Equal(t, int64(4), counter(t, reader, "codemerge.events.total"))
}

func TestService_Merge(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, nil)

	res, err := svc.Merge(context.Background(), input("left", "a\nb\nc\n"), input("right", "a\nc\nd\n"))
	require.NoError(t, err)

	flat, err := res.Tree.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, flat)

	_, reserved := res.Tree.Children(1)
	assert.True(t, reserved)

	next, err := svc.MergeInto(context.Background(), res.Tree, input("again", "a\nz\nc\nd\n"))
	require.NoError(t, err)
	assert.Nil(t, next.Left)

	flat, err = next.Tree.Flatten()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "z", "c", "d"}, flat)
}

func TestService_MergeWithoutReservedSlots(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, func(o *service.Options) { o.Engine.ReserveSlots = false })

	res, err := svc.Merge(context.Background(), input("left", "a\nb\nc\n"), input("right", "a\nc\n"))
	require.NoError(t, err)

	_, reserved := res.Tree.Children(1)
	assert.False(t, reserved)
}

func TestService_Merge3(t *testing.T) {
	t.Parallel()

	base := input("base", "a\nb\nc\n")
	v1 := input("v1", "a\nx\nb\nc\n")
	v2 := input("v2", "a\ny\nb\nc\n")

	t.Run("unresolved", func(t *testing.T) {
		t.Parallel()

		svc, reader := newService(t, nil)

		res, err := svc.Merge3(context.Background(), base, v1, v2, mergetree.Unresolved)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Conflicts)

		_, err = res.Tree.Flatten()
		require.ErrorIs(t, err, mergetree.ErrUnresolvedConflict)

		assert.Equal(t, int64(2), counter(t, reader, "codemerge.alignments.total"))
		assert.Equal(t, int64(1), counter(t, reader, "codemerge.conflicts.total"))
	})

	t.Run("keep both", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, nil)

		res, err := svc.Merge3(context.Background(), base, v1, v2, mergetree.KeepBoth)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Conflicts)

		flat, err := res.Tree.Flatten()
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "x", "y", "b", "c"}, flat)
	})
}

func TestService_AlignmentCache(t *testing.T) {
	t.Parallel()

	svc, reader := newService(t, nil)
	ctx := context.Background()

	first, err := svc.Diff(ctx, input("a", "a\nb\n"), input("b", "a\nc\n"))
	require.NoError(t, err)

	second, err := svc.Merge(ctx, input("a2", "a\nb\n"), input("b2", "a\r\nc\r\n"))
	require.NoError(t, err)
	assert.Equal(t, first.Script, second.Script)

	assert.Equal(t, int64(1), counter(t, reader, "codemerge.alignments.total"))
	assert.Equal(t, int64(2), counter(t, reader, "codemerge.align.cache.lookups"))
	assert.Equal(t, int64(1), gauge(t, reader, "codemerge.align.cache.entries"))
	assert.Positive(t, gauge(t, reader, "codemerge.align.cache.bytes"))

	uncached, reader := newService(t, func(o *service.Options) { o.CacheEntries = 0 })

	for range 2 {
		_, err = uncached.Diff(ctx, input("a", "a\nb\n"), input("b", "a\nc\n"))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(2), counter(t, reader, "codemerge.alignments.total"))
	assert.Zero(t, counter(t, reader, "codemerge.align.cache.lookups"))
}

func TestConsistent(t *testing.T) {
	t.Parallel()

	left := []string{"a", "b"}
	right := []string{"a", "c"}

	script, err := lcs.Align(context.Background(), left, right)
	require.NoError(t, err)

	assert.True(t, service.Consistent(script, left, right))
	assert.False(t, service.Consistent(script, left, []string{"x", "c"}))
	assert.False(t, service.Consistent(script, left, []string{"a", "c", "d"}))
	assert.False(t, service.Consistent(script[:1], left, right))
}

func TestService_Rejections(t *testing.T) {
	t.Parallel()

	t.Run("file size", func(t *testing.T) {
		t.Parallel()

		svc, reader := newService(t, func(o *service.Options) { o.MaxFileSize = 4 })

		_, err := svc.Merge(context.Background(), input("left", "a\nb\nc\n"), input("right", "a\n"))
		require.ErrorIs(t, err, lines.ErrTooLarge)
		assert.Equal(t, int64(1), counter(t, reader, "codemerge.rejected.total"))
	})

	t.Run("binary", func(t *testing.T) {
		t.Parallel()

		svc, reader := newService(t, nil)

		_, err := svc.Diff(context.Background(), input("left", "a\n"), input("blob", "\x00\x01\x02\x00"))
		require.ErrorIs(t, err, lines.ErrBinary)
		assert.Equal(t, int64(1), counter(t, reader, "codemerge.rejected.total"))
	})

	t.Run("cells", func(t *testing.T) {
		t.Parallel()

		svc, reader := newService(t, func(o *service.Options) { o.Engine.MaxCells = 3 })

		_, err := svc.Merge3(context.Background(), input("base", "a\nb\n"), input("v1", "c\nd\n"), input("v2", "a\nb\n"),
			mergetree.Unresolved)
		require.ErrorIs(t, err, lcs.ErrTooLarge)
		assert.Equal(t, int64(1), counter(t, reader, "codemerge.rejected.total"))
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.Merge(ctx, input("left", "a\n"), input("right", "b\n"))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err     error
		errType string
		source  string
	}{
		{context.Canceled, observability.ErrTypeCanceled, observability.ErrSourceClient},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), observability.ErrTypeCanceled, observability.ErrSourceClient},
		{lines.ErrTooLarge, observability.ErrTypeTooLarge, observability.ErrSourceClient},
		{fmt.Errorf("align: %w", lcs.ErrTooLarge), observability.ErrTypeTooLarge, observability.ErrSourceClient},
		{mergetree.ErrUnresolvedConflict, observability.ErrTypeConflict, observability.ErrSourceClient},
		{lines.ErrBinary, observability.ErrTypeValidation, observability.ErrSourceClient},
		{persist.ErrSchema, observability.ErrTypeValidation, observability.ErrSourceClient},
		{errors.New("disk on fire"), observability.ErrTypeInternal, observability.ErrSourceInternal},
	}

	for _, tt := range tests {
		errType, source := service.Classify(tt.err)
		assert.Equal(t, tt.errType, errType, tt.err.Error())
		assert.Equal(t, tt.source, source, tt.err.Error())
	}
}

func TestTableCells(t *testing.T) {
	t.Parallel()

	script, err := lcs.Align(context.Background(), []string{"a", "b", "c", "d"}, []string{"a", "x", "y", "d"})
	require.NoError(t, err)

	assert.Equal(t, int64(4), service.TableCells(script, true))
	assert.Equal(t, int64(16), service.TableCells(script, false))
	assert.Zero(t, service.TableCells(lcs.Script{{Kind: lcs.Unchanged, Left: 0, Right: 0}}, true))
}
