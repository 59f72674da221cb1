package tlstats

import (
	"sync"
	"time"
)

// DefaultAggregationInterval is the aggregation cadence used when
// NewAggregator is given a zero or negative interval.
const DefaultAggregationInterval = 1 * time.Second

// An Aggregator periodically drains a fixed set of scopes into their sinks,
// so the owning goroutines never have to call Aggregate themselves. Because
// the aggregation runs on the Aggregator's own goroutine, the scopes it
// drives should use the SharedAccess policy.
type Aggregator struct {
	scopes []*Scope
	tick   *time.Ticker
	once   sync.Once
	done   chan struct{}
	join   chan struct{}
}

// NewAggregator starts a goroutine that calls Aggregate on each scope every
// interval. A zero or negative interval selects
// DefaultAggregationInterval.
func NewAggregator(interval time.Duration, scopes ...*Scope) *Aggregator {
	if interval <= 0 {
		interval = DefaultAggregationInterval
	}
	a := &Aggregator{
		scopes: scopes,
		tick:   time.NewTicker(interval),
		done:   make(chan struct{}),
		join:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Aggregator) run() {
	defer close(a.join)
	for {
		select {
		case <-a.tick.C:
			a.aggregate()
		case <-a.done:
			a.aggregate() // final pass so no delta is stranded
			return
		}
	}
}

func (a *Aggregator) aggregate() {
	for _, scope := range a.scopes {
		scope.Aggregate()
	}
}

// Close stops the aggregator and waits for its goroutine to finish the final
// aggregation pass. It is idempotent.
func (a *Aggregator) Close() error {
	a.once.Do(func() {
		a.tick.Stop()
		close(a.done)
		<-a.join
	})
	return nil
}
