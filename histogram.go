package tlstats

import (
	"fmt"
	"time"
)

// A Histogram accumulates samples into a local accumulator and merges the
// accumulator into the sink's histogram of the same name on aggregation.
// The accumulator is minted by the sink's histogram handle at construction,
// so recording a sample touches no shared state and merging performs no name
// lookup. A dirty flag skips the merge entirely on passes where nothing was
// recorded.
type Histogram struct {
	tlstat
	handle HistogramHandle
	acc    HistogramAccumulator
	config HistogramConfig
	dirty  bool
}

type histogramOptions struct {
	exports     []ExportType
	percentiles []int
}

// A HistogramOption configures export registration at histogram
// construction.
type HistogramOption func(*histogramOptions)

// WithExports publishes the given export types when the histogram is
// constructed.
func WithExports(exports ...ExportType) HistogramOption {
	return func(o *histogramOptions) {
		o.exports = append(o.exports, exports...)
	}
}

// WithPercentiles publishes the given percentile exports, in the 0 to 100
// range, when the histogram is constructed.
func WithPercentiles(percentiles ...int) HistogramOption {
	return func(o *histogramOptions) {
		o.percentiles = append(o.percentiles, percentiles...)
	}
}

// NewHistogram returns a histogram registered with scope under name, bound
// to the sink's histogram of that name, creating it with config if it does
// not exist yet. It returns an error if the sink already tracks name with a
// conflicting bucket layout; nothing is registered in that case.
func NewHistogram(scope *Scope, name string, config HistogramConfig, opts ...HistogramOption) (*Histogram, error) {
	if scope == nil {
		panic("tlstats: stat constructed with a nil scope")
	}
	handle, err := scope.sink.Histogram(name, config)
	if err != nil {
		return nil, fmt.Errorf("tlstats: creating histogram %q: %w", name, err)
	}
	return newHistogram(scope, name, handle, opts...), nil
}

// NewHistogramFromHandle returns a histogram registered with scope under
// name, bound to an existing handle of the sink's histogram. It skips the
// name resolution that NewHistogram performs, for callers constructing many
// stats against the same global histogram.
func NewHistogramFromHandle(scope *Scope, name string, handle HistogramHandle, opts ...HistogramOption) *Histogram {
	return newHistogram(scope, name, handle, opts...)
}

func newHistogram(scope *Scope, name string, handle HistogramHandle, opts ...HistogramOption) *Histogram {
	h := &Histogram{}
	h.init(scope, name)
	h.handle = handle
	h.acc = handle.NewAccumulator()
	h.config = handle.Config()

	var o histogramOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(o.exports) > 0 {
		scope.sink.ExportHistogram(name, o.exports...)
	}
	if len(o.percentiles) > 0 {
		scope.sink.ExportPercentile(name, o.percentiles...)
	}
	h.postInit(scope, h)
	return h
}

// NewHistogramFrom move-constructs a histogram from src: the new histogram
// takes over src's name, handle, accumulator and registration in one atomic
// step, and src is left unregistered and empty. No other goroutine may touch
// src during the call.
func NewHistogramFrom(src *Histogram) *Histogram {
	h := &Histogram{}
	h.initMove(&src.tlstat)
	src.cl.guard.Lock()
	h.handle = src.handle
	h.acc = src.acc
	h.config = src.config
	h.dirty = src.dirty
	src.handle = nil
	src.acc = nil
	src.dirty = false
	src.cl.guard.Unlock()
	h.finishMove(&src.tlstat, h)
	return h
}

// Config returns the bucket layout of the sink histogram this stat records
// into.
func (h *Histogram) Config() HistogramConfig { return h.config }

// AddValue records one sample.
func (h *Histogram) AddValue(value int64) {
	h.cl.guard.Lock()
	h.acc.AddValue(value)
	h.dirty = true
	h.cl.guard.Unlock()
}

// AddRepeatedValue records n samples of the same value.
func (h *Histogram) AddRepeatedValue(value, n int64) {
	if n <= 0 {
		return
	}
	h.cl.guard.Lock()
	h.acc.AddRepeatedValue(value, n)
	h.dirty = true
	h.cl.guard.Unlock()
}

// Export publishes additional export types for the histogram on the sink.
// It reports ErrOrphaned if the scope has been closed.
func (h *Histogram) Export(exports ...ExportType) error {
	scope, err := h.checkContainer("exporting histogram")
	if err != nil {
		return err
	}
	scope.sink.ExportHistogram(h.name, exports...)
	return nil
}

// ExportPercentile publishes additional percentile exports, in the 0 to 100
// range, for the histogram on the sink. It reports ErrOrphaned if the scope
// has been closed.
func (h *Histogram) ExportPercentile(percentiles ...int) error {
	scope, err := h.checkContainer("exporting percentile of histogram")
	if err != nil {
		return err
	}
	scope.sink.ExportPercentile(h.name, percentiles...)
	return nil
}

// Aggregate merges the local accumulator into the sink's histogram at
// timestamp now and clears it. Passes where no sample was recorded merge
// nothing. If the histogram is orphaned nothing is merged.
func (h *Histogram) Aggregate(now time.Time) {
	h.cl.guard.Lock()
	defer h.cl.guard.Unlock()
	if h.cl.scope == nil || !h.dirty {
		return
	}
	h.handle.Merge(now, h.acc)
	h.acc.Clear()
	h.dirty = false
}

// MoveFrom move-assigns src into h: both histograms are flushed and
// unregistered, then h takes over src's name, handle and accumulator and
// registers with src's former scope. A self-move is a no-op. No other
// goroutine may touch either histogram during the call.
func (h *Histogram) MoveFrom(src *Histogram) {
	h.moveAssignment(h, src, func() {
		h.handle = src.handle
		h.acc = src.acc
		h.config = src.config
		h.dirty = src.dirty
		src.handle = nil
		src.acc = nil
		src.dirty = false
	})
}

// Close flushes the pending samples and unregisters the histogram. It is
// idempotent.
func (h *Histogram) Close() error {
	h.closeStat(h)
	return nil
}
