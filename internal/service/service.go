// Package service runs diffs and merges on raw file content for the CLI, the
// HTTP API and the MCP tools. It applies input limits, bounds concurrency and
// records spans, metrics and logs around the engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/config"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
)

// Operation names used for metrics and logs.
const (
	OpDiff   = "diff"
	OpMerge  = "merge"
	OpMerge3 = "merge3"
)

// Rejection reasons.
const (
	reasonSize   = "size"
	reasonBinary = "binary"
	reasonCells  = "cells"
)

// Options tunes a Service.
type Options struct {
	Engine config.EngineConfig

	// MaxFileSize rejects larger inputs with lines.ErrTooLarge. Zero disables the check.
	MaxFileSize int64

	// MaxConcurrent bounds the merges running at once. Zero means one.
	MaxConcurrent int

	// CacheEntries sizes the alignment cache. Zero disables it.
	CacheEntries int
	// CacheMaxBytes bounds the cached scripts. Zero means no byte limit.
	CacheMaxBytes int64
}

// OptionsFrom derives Options from a loaded configuration.
func OptionsFrom(cfg *config.Config) (Options, error) {
	size, err := cfg.Input.MaxFileSizeBytes()
	if err != nil {
		return Options{}, err
	}

	cacheBytes, err := cfg.Cache.MaxSizeBytes()
	if err != nil {
		return Options{}, err
	}

	return Options{
		Engine:        cfg.Engine,
		MaxFileSize:   size,
		MaxConcurrent: cfg.Server.MaxConcurrent,
		CacheEntries:  cfg.Cache.Entries,
		CacheMaxBytes: cacheBytes,
	}, nil
}

// Input is one named file body.
type Input struct {
	Name string
	Data []byte
}

// DiffResult is the outcome of Diff.
type DiffResult struct {
	Left   *lines.Document
	Right  *lines.Document
	Script lcs.Script
}

// MergeResult is the outcome of Merge and MergeInto. Left is nil for MergeInto.
type MergeResult struct {
	Left   *lines.Document
	Right  *lines.Document
	Script lcs.Script
	Tree   *mergetree.Tree
}

// Merge3Result is the outcome of Merge3. Conflicts counts the conflicts found
// before any resolution was applied.
type Merge3Result struct {
	Base      *lines.Document
	Version1  *lines.Document
	Version2  *lines.Document
	Tree      *mergetree.Tree
	Conflicts int
}

// Service runs engine operations with limits and telemetry.
type Service struct {
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.MergeMetrics
	sem     *semaphore.Weighted
	scripts *scriptCache
}

// New creates a Service. Nil logger, tracer and metrics are replaced by no-ops.
func New(opts Options, logger *slog.Logger, tracer trace.Tracer, metrics *observability.MergeMetrics) *Service {
	if logger == nil {
		logger = observability.DiscardLogger()
	}

	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(observability.InstrumentationName)
	}

	limit := int64(max(opts.MaxConcurrent, 1))

	return &Service{
		opts:    opts,
		logger:  logger,
		tracer:  tracer,
		metrics: metrics,
		sem:     semaphore.NewWeighted(limit),
		scripts: newScriptCache(opts.CacheEntries, opts.CacheMaxBytes),
	}
}

// Decode checks in against the size limit and decodes it.
func (s *Service) Decode(ctx context.Context, in Input) (*lines.Document, error) {
	if s.opts.MaxFileSize > 0 && int64(len(in.Data)) > s.opts.MaxFileSize {
		s.metrics.RecordRejected(ctx, reasonSize)

		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", lines.ErrTooLarge, in.Name, len(in.Data), s.opts.MaxFileSize)
	}

	doc, err := lines.Decode(in.Name, in.Data)
	if err != nil {
		if errors.Is(err, lines.ErrBinary) {
			s.metrics.RecordRejected(ctx, reasonBinary)
		}

		return nil, fmt.Errorf("%s: %w", in.Name, err)
	}

	return doc, nil
}

// Diff aligns left with right.
func (s *Service) Diff(ctx context.Context, left, right Input) (*DiffResult, error) {
	var res *DiffResult

	err := s.run(ctx, OpDiff, observability.SpanMerge, func(ctx context.Context, span trace.Span) error {
		l, r, err := s.decodePair(ctx, left, right)
		if err != nil {
			return err
		}

		script, err := s.align(ctx, OpDiff, l.Lines, r.Lines)
		if err != nil {
			return err
		}

		span.SetAttributes(lineAttrs(l, r)...)
		res = &DiffResult{Left: l, Right: r, Script: script}

		return nil
	})

	return res, err
}

// Merge aligns left with right and builds the merge tree.
func (s *Service) Merge(ctx context.Context, left, right Input) (*MergeResult, error) {
	var res *MergeResult

	err := s.run(ctx, OpMerge, observability.SpanMerge, func(ctx context.Context, span trace.Span) error {
		l, r, err := s.decodePair(ctx, left, right)
		if err != nil {
			return err
		}

		script, err := s.align(ctx, OpMerge, l.Lines, r.Lines)
		if err != nil {
			return err
		}

		tree, err := mergetree.Build(l.Lines, r.Lines, script, s.treeOptions()...)
		if err != nil {
			return fmt.Errorf("build tree: %w", err)
		}

		span.SetAttributes(lineAttrs(l, r)...)
		res = &MergeResult{Left: l, Right: r, Script: script, Tree: tree}

		return nil
	})

	return res, err
}

// MergeInto folds right into an existing tree, nesting new insertions below
// the ones already there. The tree itself is not modified.
func (s *Service) MergeInto(ctx context.Context, tree *mergetree.Tree, right Input) (*MergeResult, error) {
	var res *MergeResult

	err := s.run(ctx, OpMerge, observability.SpanMerge, func(ctx context.Context, span trace.Span) error {
		r, err := s.Decode(ctx, right)
		if err != nil {
			return err
		}

		alignCtx, alignSpan := s.tracer.Start(ctx, observability.SpanAlign)
		defer alignSpan.End()

		next, script, err := tree.Merge(alignCtx, r.Lines, s.treeOptions()...)
		if err != nil {
			s.recordAlignError(alignCtx, alignSpan, err)

			return fmt.Errorf("merge into tree: %w", err)
		}

		s.recordAlignment(alignCtx, OpMerge, script)
		span.SetAttributes(
			attribute.Int("codemerge.tree.size", tree.Size()),
			attribute.Int("codemerge.right.lines", len(r.Lines)),
		)

		res = &MergeResult{Right: r, Script: script, Tree: next}

		return nil
	})

	return res, err
}

// Merge3 aligns base with both versions concurrently and combines the two
// alignments. A resolution other than Unresolved is applied to every conflict.
func (s *Service) Merge3(ctx context.Context, base, v1, v2 Input, resolution mergetree.Resolution) (*Merge3Result, error) {
	var res *Merge3Result

	err := s.run(ctx, OpMerge3, observability.SpanMerge3, func(ctx context.Context, span trace.Span) error {
		docs, err := s.decodeAll(ctx, base, v1, v2)
		if err != nil {
			return err
		}

		b, d1, d2 := docs[0], docs[1], docs[2]

		var s1, s2 lcs.Script

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			var alignErr error

			s1, alignErr = s.align(gctx, OpMerge3, b.Lines, d1.Lines)
			if alignErr != nil {
				return fmt.Errorf("version1: %w", alignErr)
			}

			return nil
		})

		g.Go(func() error {
			var alignErr error

			s2, alignErr = s.align(gctx, OpMerge3, b.Lines, d2.Lines)
			if alignErr != nil {
				return fmt.Errorf("version2: %w", alignErr)
			}

			return nil
		})

		err = g.Wait()
		if err != nil {
			return err
		}

		tree, err := mergetree.Build3(b.Lines, d1.Lines, d2.Lines, s1, s2, s.treeOptions()...)
		if err != nil {
			return fmt.Errorf("build tree: %w", err)
		}

		conflicts := len(tree.Conflicts())
		s.metrics.RecordConflicts(ctx, conflicts)

		if resolution != mergetree.Unresolved {
			tree.ResolveAll(resolution)
		}

		span.SetAttributes(
			attribute.Int("codemerge.base.lines", len(b.Lines)),
			attribute.Int("codemerge.conflicts", conflicts),
			attribute.String("merge.resolution", resolution.String()),
		)

		res = &Merge3Result{Base: b, Version1: d1, Version2: d2, Tree: tree, Conflicts: conflicts}

		return nil
	})

	return res, err
}

// run wraps fn with the concurrency limit, the engine timeout, a span and a
// completion log record.
func (s *Service) run(ctx context.Context, op, spanName string, fn func(context.Context, trace.Span) error) error {
	err := s.sem.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("%s: wait for slot: %w", op, err)
	}
	defer s.sem.Release(1)

	if s.opts.Engine.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.opts.Engine.Timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(attribute.String("merge.op", op)))
	defer span.End()

	start := time.Now()

	err = fn(ctx, span)
	if err != nil {
		errType, source := Classify(err)
		observability.RecordSpanError(span, err, errType, source)
		s.logger.WarnContext(ctx, "operation failed", "op", op, "error", err, "error_type", errType)

		return err
	}

	s.logger.DebugContext(ctx, "operation finished", "op", op, "duration", time.Since(start))

	return nil
}

func (s *Service) decodePair(ctx context.Context, left, right Input) (*lines.Document, *lines.Document, error) {
	docs, err := s.decodeAll(ctx, left, right)
	if err != nil {
		return nil, nil, err
	}

	return docs[0], docs[1], nil
}

func (s *Service) decodeAll(ctx context.Context, inputs ...Input) ([]*lines.Document, error) {
	docs := make([]*lines.Document, len(inputs))

	for idx, in := range inputs {
		doc, err := s.Decode(ctx, in)
		if err != nil {
			return nil, err
		}

		docs[idx] = doc
	}

	return docs, nil
}

func (s *Service) align(ctx context.Context, op string, left, right []string) (lcs.Script, error) {
	ctx, span := s.tracer.Start(ctx, observability.SpanAlign)
	defer span.End()

	var key alignKey

	if s.scripts != nil {
		key = keyOf(left, right)

		cached, hit := s.scripts.get(key, left, right)
		s.metrics.RecordCacheLookup(ctx, hit)
		span.SetAttributes(attribute.Bool("codemerge.cache.hit", hit))

		if hit {
			return cached, nil
		}
	}

	script, err := lcs.Align(ctx, left, right, s.alignOptions()...)
	if err != nil {
		s.recordAlignError(ctx, span, err)

		return nil, fmt.Errorf("align: %w", err)
	}

	s.recordAlignment(ctx, op, script)

	if s.scripts != nil {
		s.scripts.put(key, script)

		st := s.scripts.stats()
		s.metrics.RecordCacheSize(ctx, st.Entries, st.CurrentSize)
	}

	return script, nil
}

func (s *Service) recordAlignError(ctx context.Context, span trace.Span, err error) {
	if errors.Is(err, lcs.ErrTooLarge) {
		s.metrics.RecordRejected(ctx, reasonCells)
	}

	errType, source := Classify(err)
	observability.RecordSpanError(span, err, errType, source)
}

func (s *Service) recordAlignment(ctx context.Context, op string, script lcs.Script) {
	unchanged, inserted, deleted := script.Counts()

	s.metrics.RecordAlignment(ctx, op, observability.Alignment{
		Cells:     tableCells(script, s.opts.Engine.Skip),
		Unchanged: unchanged,
		Inserted:  inserted,
		Deleted:   deleted,
	})
}

func (s *Service) alignOptions() []lcs.Option {
	var opts []lcs.Option

	if s.opts.Engine.MaxCells > 0 {
		opts = append(opts, lcs.WithMaxCells(s.opts.Engine.MaxCells))
	}

	if !s.opts.Engine.Skip {
		opts = append(opts, lcs.WithoutSkip())
	}

	return opts
}

func (s *Service) treeOptions() []mergetree.Option {
	opts := []mergetree.Option{mergetree.WithAlignOptions(s.alignOptions()...)}

	if !s.opts.Engine.ReserveSlots {
		opts = append(opts, mergetree.WithoutReservedSlots())
	}

	return opts
}

// tableCells is the size of the LCS table filled for script. With skipping
// on, the leading and trailing runs of unchanged lines are not part of it.
func tableCells(script lcs.Script, skip bool) int64 {
	middle := script

	if skip {
		lead := 0
		for lead < len(middle) && middle[lead].Kind == lcs.Unchanged {
			lead++
		}

		middle = middle[lead:]

		trail := len(middle)
		for trail > 0 && middle[trail-1].Kind == lcs.Unchanged {
			trail--
		}

		middle = middle[:trail]
	}

	var rows, cols int64

	for _, ev := range middle {
		switch ev.Kind {
		case lcs.Unchanged:
			rows++
			cols++
		case lcs.Deleted:
			rows++
		case lcs.Inserted:
			cols++
		}
	}

	return rows * cols
}

func lineAttrs(l, r *lines.Document) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("codemerge.left.lines", len(l.Lines)),
		attribute.Int("codemerge.right.lines", len(r.Lines)),
	}
}
