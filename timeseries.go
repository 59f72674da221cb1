package tlstats

import "time"

// A Timeseries accumulates samples locally as a (sum, count) pair and folds
// the pair into the sink's timeseries of the same name on aggregation. The
// handle to the sink's timeseries is resolved once, at construction, so the
// flush performs no name lookup.
type Timeseries struct {
	tlstat
	handle TimeseriesHandle
	sum    int64
	count  int64
}

// NewTimeseries returns a timeseries registered with scope under name,
// publishing the given export types on the sink. The timeseries becomes
// visible to aggregation only once fully constructed.
func NewTimeseries(scope *Scope, name string, exports ...ExportType) *Timeseries {
	t := &Timeseries{}
	t.init(scope, name)
	t.handle = scope.sink.Timeseries(name)
	if len(exports) > 0 {
		scope.sink.ExportTimeseries(name, exports...)
	}
	t.postInit(scope, t)
	return t
}

// NewTimeseriesFrom move-constructs a timeseries from src: the new
// timeseries takes over src's name, handle, pending samples and registration
// in one atomic step, and src is left unregistered and empty. No other
// goroutine may touch src during the call.
func NewTimeseriesFrom(src *Timeseries) *Timeseries {
	t := &Timeseries{}
	t.initMove(&src.tlstat)
	src.cl.guard.Lock()
	t.handle = src.handle
	t.sum, t.count = src.sum, src.count
	src.handle = nil
	src.sum, src.count = 0, 0
	src.cl.guard.Unlock()
	t.finishMove(&src.tlstat, t)
	return t
}

// AddValue records one sample.
func (t *Timeseries) AddValue(value int64) {
	t.cl.guard.Lock()
	t.sum += value
	t.count++
	t.cl.guard.Unlock()
}

// AddValueAggregated records nsamples samples summing to sum, as produced by
// an upstream aggregation.
func (t *Timeseries) AddValueAggregated(sum, nsamples int64) {
	t.cl.guard.Lock()
	t.sum += sum
	t.count += nsamples
	t.cl.guard.Unlock()
}

// Sum returns the sample sum accumulated since the last aggregation.
func (t *Timeseries) Sum() int64 {
	t.cl.guard.Lock()
	sum := t.sum
	t.cl.guard.Unlock()
	return sum
}

// Count returns the sample count accumulated since the last aggregation.
func (t *Timeseries) Count() int64 {
	t.cl.guard.Lock()
	count := t.count
	t.cl.guard.Unlock()
	return count
}

// Export publishes additional export types for the timeseries on the sink.
// It reports ErrOrphaned if the scope has been closed.
func (t *Timeseries) Export(exports ...ExportType) error {
	scope, err := t.checkContainer("exporting timeseries")
	if err != nil {
		return err
	}
	scope.sink.ExportTimeseries(t.name, exports...)
	return nil
}

// Aggregate drains the pending (sum, count) pair and applies it to the
// sink's timeseries at timestamp now. A pair with zero samples is not
// reported at all. If the timeseries is orphaned nothing is drained.
func (t *Timeseries) Aggregate(now time.Time) {
	t.cl.guard.Lock()
	if t.cl.scope == nil {
		t.cl.guard.Unlock()
		return
	}
	sum, count := t.sum, t.count
	t.sum, t.count = 0, 0
	handle := t.handle
	t.cl.guard.Unlock()

	if count == 0 {
		return
	}
	handle.AddValueAggregated(now, sum, count)
}

// MoveFrom move-assigns src into t: both timeseries are flushed and
// unregistered, then t takes over src's name, handle and pending samples and
// registers with src's former scope. A self-move is a no-op. No other
// goroutine may touch either timeseries during the call.
func (t *Timeseries) MoveFrom(src *Timeseries) {
	t.moveAssignment(t, src, func() {
		t.handle = src.handle
		t.sum, t.count = src.sum, src.count
		src.handle = nil
		src.sum, src.count = 0, 0
	})
}

// Close flushes the pending samples and unregisters the timeseries. It is
// idempotent.
func (t *Timeseries) Close() error {
	t.closeStat(t)
	return nil
}
