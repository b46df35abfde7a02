// Package lcs aligns two sequences with the longest-common-subsequence
// dynamic program and reports the alignment as an ordered edit script.
//
// Common prefixes and suffixes are skipped before the table is built, so the
// quadratic cost is paid only for the region that actually differs. Skipping
// never changes the result: the script is event-for-event identical to the one
// produced with WithoutSkip, duplicate lines included.
package lcs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/bits"
	"slices"
)

// ErrTooLarge is returned when the unskipped region exceeds the configured cell cap.
var ErrTooLarge = errors.New("lcs: alignment too large")

// cancelCheckMask controls how often the backtrack polls the context.
const cancelCheckMask = 0xff

// Kind classifies the fate of one line.
type Kind uint8

// Event kinds.
const (
	Unchanged Kind = iota
	Inserted
	Deleted
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a single step of an alignment. Left is -1 for Inserted events and
// Right is -1 for Deleted events.
type Event struct {
	Kind  Kind
	Left  int
	Right int
}

// Script is an alignment in left-to-right order.
type Script []Event

// All returns a single-pass iterator over the events.
func (s Script) All() iter.Seq[Event] {
	return slices.Values(s)
}

// Counts returns the number of events of each kind.
func (s Script) Counts() (unchanged, inserted, deleted int) {
	for _, ev := range s {
		switch ev.Kind {
		case Unchanged:
			unchanged++
		case Inserted:
			inserted++
		case Deleted:
			deleted++
		}
	}

	return unchanged, inserted, deleted
}

// Identity reports whether the script contains no insertions or deletions.
func (s Script) Identity() bool {
	for _, ev := range s {
		if ev.Kind != Unchanged {
			return false
		}
	}

	return true
}

type options struct {
	maxCells uint64
	noSkip   bool
}

// Option configures an alignment.
type Option func(*options)

// WithoutSkip disables the prefix/suffix skip and runs the table over the whole input.
func WithoutSkip() Option {
	return func(o *options) {
		o.noSkip = true
	}
}

// WithMaxCells caps the table size. Zero disables the cap.
func WithMaxCells(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxCells = uint64(n)
		} else {
			o.maxCells = 0
		}
	}
}

// Align aligns left and right using ==.
func Align[T comparable](ctx context.Context, left, right []T, opts ...Option) (Script, error) {
	return AlignFunc(ctx, left, right, func(a, b T) bool { return a == b }, opts...)
}

// AlignFunc aligns left and right using eq, which must be an equivalence
// relation. Neither input is modified. A panic raised by eq is not recovered.
func AlignFunc[T any](ctx context.Context, left, right []T, eq func(a, b T) bool, opts ...Option) (Script, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lcs: %w", err)
	}

	var prefix, suffix int
	if !cfg.noSkip {
		prefix = commonPrefix(left, right, eq)
		suffix = commonSuffix(left[prefix:], right[prefix:], eq)
	}

	midLeft := left[prefix : len(left)-suffix]
	midRight := right[prefix : len(right)-suffix]

	err := checkSize(len(midLeft), len(midRight), cfg.maxCells)
	if err != nil {
		return nil, err
	}

	tbl, err := fill(ctx, midLeft, midRight, eq)
	if err != nil {
		return nil, err
	}

	w := walker[T]{
		left:   left,
		right:  right,
		eq:     eq,
		tbl:    tbl,
		prefix: prefix,
		events: make(Script, 0, max(len(left), len(right))),
	}

	err = w.walk(ctx, suffix)
	if err != nil {
		return nil, err
	}

	slices.Reverse(w.events)

	return w.events, nil
}

func commonPrefix[T any](a, b []T, eq func(a, b T) bool) int {
	n := min(len(a), len(b))

	i := 0
	for i < n && eq(a[i], b[i]) {
		i++
	}

	return i
}

func commonSuffix[T any](a, b []T, eq func(a, b T) bool) int {
	n := min(len(a), len(b))

	i := 0
	for i < n && eq(a[len(a)-1-i], b[len(b)-1-i]) {
		i++
	}

	return i
}

func checkSize(rows, cols int, maxCells uint64) error {
	if min(rows, cols) >= math.MaxInt32 {
		return fmt.Errorf("%w: %d x %d lines", ErrTooLarge, rows, cols)
	}

	if maxCells == 0 {
		return nil
	}

	hi, lo := bits.Mul64(uint64(rows), uint64(cols))
	if hi != 0 || lo > maxCells {
		return fmt.Errorf("%w: %d x %d lines exceeds %d cells", ErrTooLarge, rows, cols, maxCells)
	}

	return nil
}

// table holds M[i][j] = LCS(a[:i], b[:j]) in row-major order.
type table struct {
	cells []int32
	cols  int
}

func (t *table) at(i, j int) int32 {
	return t.cells[i*t.cols+j]
}

func fill[T any](ctx context.Context, a, b []T, eq func(a, b T) bool) (*table, error) {
	cols := len(b) + 1
	tbl := &table{cells: make([]int32, (len(a)+1)*cols), cols: cols}

	for i := 1; i <= len(a); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lcs: %w", err)
		}

		prev := tbl.cells[(i-1)*cols : i*cols]
		row := tbl.cells[i*cols : (i+1)*cols]
		ai := a[i-1]

		for j := 1; j < cols; j++ {
			switch {
			case eq(ai, b[j-1]):
				row[j] = prev[j-1] + 1
			case row[j-1] >= prev[j]:
				row[j] = row[j-1]
			default:
				row[j] = prev[j]
			}
		}
	}

	return tbl, nil
}

// walker backtracks in full-input coordinates. events is the explicit stack:
// it is filled right-to-left and reversed once at the end.
type walker[T any] struct {
	left   []T
	right  []T
	eq     func(a, b T) bool
	tbl    *table
	prefix int
	steps  int
	events Script
}

func (w *walker[T]) push(kind Kind, l, r int) {
	w.events = append(w.events, Event{Kind: kind, Left: l, Right: r})
}

func (w *walker[T]) poll(ctx context.Context) error {
	w.steps++
	if w.steps&cancelCheckMask != 0 {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lcs: %w", err)
	}

	return nil
}

func (w *walker[T]) walk(ctx context.Context, suffix int) error {
	i, j := len(w.left), len(w.right)

	for range suffix {
		i--
		j--
		w.push(Unchanged, i, j)
	}

	// Middle region: the table is offset by prefix in both dimensions, and
	// M[i][j] = prefix + tbl[i-prefix][j-prefix] there.
	p := w.prefix
	for i > p && j > p {
		if err := w.poll(ctx); err != nil {
			return err
		}

		switch {
		case w.eq(w.left[i-1], w.right[j-1]):
			i--
			j--
			w.push(Unchanged, i, j)
		case w.tbl.at(i-p, j-1-p) >= w.tbl.at(i-1-p, j-p):
			j--
			w.push(Inserted, -1, j)
		default:
			i--
			w.push(Deleted, i, -1)
		}
	}

	// Prefix region: min(i, j) <= prefix, where M[i][j] = min(i, j).
	for i > 0 || j > 0 {
		if err := w.poll(ctx); err != nil {
			return err
		}

		switch {
		case i > 0 && j > 0 && w.eq(w.left[i-1], w.right[j-1]):
			i--
			j--
			w.push(Unchanged, i, j)
		case j > i:
			j--
			w.push(Inserted, -1, j)
		default:
			i--
			w.push(Deleted, i, -1)
		}
	}

	return nil
}
