// Package registry provides a complete in-memory tlstats.Sink: the shared,
// name-keyed store of global statistics that scopes aggregate into.
//
// The store is sharded by name hash so that concurrent aggregation passes
// from many scopes rarely contend on a map. Counters are plain atomic
// values; timeseries hold running (sum, count) aggregates; histograms hold
// fixed-width bucket counts from which percentiles are estimated by linear
// interpolation.
//
// The zero value of Registry is ready to use. It also implements
// http.Handler, serving its state as JSON for inspection.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/fasthash/fnv1a"

	"github.com/driftlock/tlstats"
)

var _ tlstats.Sink = (*Registry)(nil)

const shardCount = 16

// Registry is a sharded in-memory sink. The zero value is ready to use.
type Registry struct {
	shards [shardCount]shard
}

type shard struct {
	mu         sync.RWMutex
	counters   map[string]*counter
	timeseries map[string]*timeseries
	histograms map[string]*histogram
}

type counter struct {
	value atomic.Int64
	last  atomic.Int64 // unix nanoseconds of the latest increment
}

type timeseries struct {
	mu      sync.Mutex
	sum     int64
	count   int64
	last    time.Time
	exports exportSet
}

func (r *Registry) shard(name string) *shard {
	return &r.shards[fnv1a.HashString64(name)&(shardCount-1)]
}

// IncrementCounter adds delta to the counter named name, creating it at zero
// first if needed.
func (r *Registry) IncrementCounter(name string, delta int64) {
	c := r.shard(name).counter(name)
	c.value.Add(delta)
	c.last.Store(time.Now().UnixNano())
}

// CounterValue returns the current value of the counter named name.
func (r *Registry) CounterValue(name string) (int64, bool) {
	s := r.shard(name)
	s.mu.RLock()
	c := s.counters[name]
	s.mu.RUnlock()
	if c == nil {
		return 0, false
	}
	return c.value.Load(), true
}

// Timeseries returns a handle on the timeseries named name, creating it
// empty first if needed. Applications through the handle perform no name
// lookup.
func (r *Registry) Timeseries(name string) tlstats.TimeseriesHandle {
	return tsHandle{ts: r.shard(name).ts(name)}
}

// ExportTimeseries marks the given export types on the timeseries named
// name, creating it empty first if needed.
func (r *Registry) ExportTimeseries(name string, exports ...tlstats.ExportType) {
	ts := r.shard(name).ts(name)
	ts.mu.Lock()
	for _, e := range exports {
		ts.exports.add(e)
	}
	ts.mu.Unlock()
}

// TimeseriesTotals returns the aggregated sum and sample count of the
// timeseries named name.
func (r *Registry) TimeseriesTotals(name string) (sum, count int64, ok bool) {
	s := r.shard(name)
	s.mu.RLock()
	ts := s.timeseries[name]
	s.mu.RUnlock()
	if ts == nil {
		return 0, 0, false
	}
	ts.mu.Lock()
	sum, count = ts.sum, ts.count
	ts.mu.Unlock()
	return sum, count, true
}

// Histogram returns a handle on the histogram named name, creating it with
// the given bucket layout if needed. It returns an error if config is
// invalid, or if name already exists with a different layout.
func (r *Registry) Histogram(name string, config tlstats.HistogramConfig) (tlstats.HistogramHandle, error) {
	h, err := r.shard(name).histogram(name, config)
	if err != nil {
		return nil, err
	}
	return histHandle{h: h}, nil
}

// ExportHistogram marks the given export types on the histogram named name.
// It is a no-op for names the registry does not track as histograms yet.
func (r *Registry) ExportHistogram(name string, exports ...tlstats.ExportType) {
	s := r.shard(name)
	s.mu.RLock()
	h := s.histograms[name]
	s.mu.RUnlock()
	if h == nil {
		return
	}
	h.mu.Lock()
	for _, e := range exports {
		h.exports.add(e)
	}
	h.mu.Unlock()
}

// ExportPercentile marks the given percentiles for export on the histogram
// named name. It is a no-op for names the registry does not track as
// histograms yet. Percentiles outside the 0 to 100 range are a programming
// error and panic.
func (r *Registry) ExportPercentile(name string, percentiles ...int) {
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			panic(fmt.Sprintf("registry: percentile %d out of the 0-100 range", p))
		}
	}
	s := r.shard(name)
	s.mu.RLock()
	h := s.histograms[name]
	s.mu.RUnlock()
	if h == nil {
		return
	}
	h.mu.Lock()
	for _, p := range percentiles {
		h.addPercentileLocked(p)
	}
	h.mu.Unlock()
}

// HistogramTotals returns the merged sum and sample count of the histogram
// named name.
func (r *Registry) HistogramTotals(name string) (sum, count int64, ok bool) {
	s := r.shard(name)
	s.mu.RLock()
	h := s.histograms[name]
	s.mu.RUnlock()
	if h == nil {
		return 0, 0, false
	}
	h.mu.Lock()
	sum, count = h.sum, h.count
	h.mu.Unlock()
	return sum, count, true
}

// PercentileEstimate returns the estimated value of the p-th percentile of
// the histogram named name. The percentile does not have to be registered
// for export. An empty histogram estimates 0.
func (r *Registry) PercentileEstimate(name string, p int) (int64, bool) {
	if p < 0 || p > 100 {
		panic(fmt.Sprintf("registry: percentile %d out of the 0-100 range", p))
	}
	s := r.shard(name)
	s.mu.RLock()
	h := s.histograms[name]
	s.mu.RUnlock()
	if h == nil {
		return 0, false
	}
	h.mu.Lock()
	v := h.percentileEstimateLocked(p)
	h.mu.Unlock()
	return v, true
}

func (s *shard) counter(name string) *counter {
	s.mu.RLock()
	c := s.counters[name]
	s.mu.RUnlock()
	if c != nil {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters == nil {
		s.counters = make(map[string]*counter)
	}
	if c = s.counters[name]; c == nil {
		c = new(counter)
		s.counters[name] = c
	}
	return c
}

func (s *shard) ts(name string) *timeseries {
	s.mu.RLock()
	ts := s.timeseries[name]
	s.mu.RUnlock()
	if ts != nil {
		return ts
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeseries == nil {
		s.timeseries = make(map[string]*timeseries)
	}
	if ts = s.timeseries[name]; ts == nil {
		ts = new(timeseries)
		s.timeseries[name] = ts
	}
	return ts
}

func (s *shard) histogram(name string, config tlstats.HistogramConfig) (*histogram, error) {
	if config.BucketWidth <= 0 || config.Max <= config.Min {
		return nil, fmt.Errorf("registry: histogram %q: invalid bucket layout width=%d min=%d max=%d",
			name, config.BucketWidth, config.Min, config.Max)
	}
	s.mu.RLock()
	h := s.histograms[name]
	s.mu.RUnlock()
	if h == nil {
		s.mu.Lock()
		if s.histograms == nil {
			s.histograms = make(map[string]*histogram)
		}
		if h = s.histograms[name]; h == nil {
			h = newHistogram(config)
			s.histograms[name] = h
		}
		s.mu.Unlock()
	}
	if h.config != config {
		return nil, fmt.Errorf("registry: histogram %q already defined with width=%d min=%d max=%d",
			name, h.config.BucketWidth, h.config.Min, h.config.Max)
	}
	return h, nil
}

type tsHandle struct {
	ts *timeseries
}

func (h tsHandle) AddValueAggregated(now time.Time, sum, count int64) {
	ts := h.ts
	ts.mu.Lock()
	ts.sum += sum
	ts.count += count
	ts.last = now
	ts.mu.Unlock()
}
