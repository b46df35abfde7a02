package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricAlignmentsTotal = "codemerge.alignments.total"
	metricAlignmentCells  = "codemerge.alignment.cells"
	metricEventsTotal     = "codemerge.events.total"
	metricConflictsTotal  = "codemerge.conflicts.total"
	metricRejectedTotal   = "codemerge.rejected.total"
	metricCacheLookups    = "codemerge.align.cache.lookups"
	metricCacheEntries    = "codemerge.align.cache.entries"
	metricCacheBytes      = "codemerge.align.cache.bytes"

	attrKind   = "kind"
	attrReason = "reason"
	attrResult = "result"
)

// cellBucketBoundaries covers LCS tables from a handful of cells to the
// default cap of 64M.
var cellBucketBoundaries = []float64{0, 100, 1e3, 1e4, 1e5, 1e6, 4e6, 16e6, 64e6}

// MergeMetrics holds the engine instruments.
type MergeMetrics struct {
	alignments metric.Int64Counter
	cells      metric.Float64Histogram
	events     metric.Int64Counter
	conflicts  metric.Int64Counter
	rejected   metric.Int64Counter
	cache      metric.Int64Counter
	cacheLen   metric.Int64Gauge
	cacheBytes metric.Int64Gauge
}

// Alignment describes one finished alignment.
type Alignment struct {
	// Cells is the size of the table that was filled, after edge skipping.
	Cells     int64
	Unchanged int
	Inserted  int
	Deleted   int
}

// NewMergeMetrics creates the instruments from mt.
func NewMergeMetrics(mt metric.Meter) (*MergeMetrics, error) {
	b := newMetricBuilder(mt)

	mm := &MergeMetrics{
		alignments: b.counter(metricAlignmentsTotal, "Total alignments computed", "{alignment}"),
		cells:      b.histogram(metricAlignmentCells, "LCS table cells per alignment", "{cell}", cellBucketBoundaries...),
		events:     b.counter(metricEventsTotal, "Edit script events by kind", "{event}"),
		conflicts:  b.counter(metricConflictsTotal, "Conflict nodes produced by three-way merges", "{conflict}"),
		rejected:   b.counter(metricRejectedTotal, "Inputs rejected before alignment", "{input}"),
		cache:      b.counter(metricCacheLookups, "Alignment cache lookups by result", "{lookup}"),
		cacheLen:   b.gauge(metricCacheEntries, "Edit scripts held by the alignment cache", "{script}"),
		cacheBytes: b.gauge(metricCacheBytes, "Estimated size of the cached edit scripts", "By"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return mm, nil
}

// RecordAlignment records one alignment. Safe on a nil receiver.
func (mm *MergeMetrics) RecordAlignment(ctx context.Context, op string, a Alignment) {
	if mm == nil {
		return
	}

	opAttr := attribute.String(attrOp, op)

	mm.alignments.Add(ctx, 1, metric.WithAttributes(opAttr))
	mm.cells.Record(ctx, float64(a.Cells), metric.WithAttributes(opAttr))

	for kind, n := range map[string]int{"unchanged": a.Unchanged, "inserted": a.Inserted, "deleted": a.Deleted} {
		mm.events.Add(ctx, int64(n), metric.WithAttributes(opAttr, attribute.String(attrKind, kind)))
	}
}

// RecordConflicts counts conflicts found by a three-way merge.
func (mm *MergeMetrics) RecordConflicts(ctx context.Context, n int) {
	if mm == nil || n == 0 {
		return
	}

	mm.conflicts.Add(ctx, int64(n))
}

// RecordRejected counts an input refused for reason (e.g. "binary", "size").
func (mm *MergeMetrics) RecordRejected(ctx context.Context, reason string) {
	if mm == nil {
		return
	}

	mm.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordCacheLookup counts one alignment cache lookup.
func (mm *MergeMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if mm == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	mm.cache.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordCacheSize sets the alignment cache occupancy gauges.
func (mm *MergeMetrics) RecordCacheSize(ctx context.Context, entries int, bytes int64) {
	if mm == nil {
		return
	}

	mm.cacheLen.Record(ctx, int64(entries))
	mm.cacheBytes.Record(ctx, bytes)
}
