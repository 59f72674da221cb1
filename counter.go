package tlstats

import "time"

// A Counter accumulates a signed delta locally and folds it into the sink's
// counter of the same name on aggregation. Under ExclusiveAffinity the
// increment is a plain add on an unshared cell; under SharedAccess it is a
// single atomic add. Neither path takes a lock or looks up a name.
type Counter struct {
	tlstat
	cell CounterCell
}

// NewCounter returns a counter registered with scope under name. The counter
// becomes visible to aggregation only once fully constructed.
func NewCounter(scope *Scope, name string) *Counter {
	c := &Counter{}
	c.init(scope, name)
	c.cell = scope.policy.NewCounterCell()
	c.postInit(scope, c)
	return c
}

// NewCounterFrom move-constructs a counter from src: the new counter takes
// over src's name, pending delta and registration in one atomic step, and
// src is left unregistered and empty. No other goroutine may touch src
// during the call.
func NewCounterFrom(src *Counter) *Counter {
	c := &Counter{}
	c.initMove(&src.tlstat)
	c.cell = c.policy.NewCounterCell()
	c.cell.Add(src.cell.Drain())
	c.finishMove(&src.tlstat, c)
	return c
}

// Incr increments the counter by 1.
func (c *Counter) Incr() { c.cell.Add(1) }

// Add adds delta to the counter. The delta may be negative.
func (c *Counter) Add(delta int64) { c.cell.Add(delta) }

// Value returns the delta accumulated since the last aggregation.
func (c *Counter) Value() int64 { return c.cell.Load() }

// Aggregate drains the pending delta and applies it as one increment to the
// sink's counter named c.Name(). Counters are point values, so the pass
// timestamp is ignored, and a zero delta is not reported at all. If the
// counter is orphaned nothing is drained.
func (c *Counter) Aggregate(time.Time) {
	scope := c.container()
	if scope == nil {
		return
	}
	delta := c.cell.Drain()
	if delta == 0 {
		return
	}
	scope.sink.IncrementCounter(c.name, delta)
}

// MoveFrom move-assigns src into c: both counters are flushed and
// unregistered, then c takes over src's name and pending delta and registers
// with src's former scope. A self-move is a no-op. No other goroutine may
// touch either counter during the call.
func (c *Counter) MoveFrom(src *Counter) {
	c.moveAssignment(c, src, func() {
		c.cell.Add(src.cell.Drain())
	})
}

// Close flushes the pending delta and unregisters the counter. It is
// idempotent.
func (c *Counter) Close() error {
	c.closeStat(c)
	return nil
}
