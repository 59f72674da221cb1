// Package sinktest provides a tlstats.Sink that records everything applied
// to it, for inspection in tests.
package sinktest

import (
	"fmt"
	"sync"
	"time"

	"github.com/driftlock/tlstats"
)

var _ tlstats.Sink = (*Sink)(nil)

// A CounterIncrement is one recorded IncrementCounter call.
type CounterIncrement struct {
	Name  string
	Delta int64
}

// A TimeseriesApply is one recorded application of an aggregated (sum, count)
// pair to a timeseries.
type TimeseriesApply struct {
	Time  time.Time
	Sum   int64
	Count int64
}

// A Sample is a recorded histogram value with its repeat count.
type Sample struct {
	Value int64
	Count int64
}

// A HistogramMerge is one recorded merge of a histogram accumulator.
type HistogramMerge struct {
	Time    time.Time
	Samples []Sample
}

// Sink records counter increments, timeseries applications and histogram
// merges for inspection. The zero value is ready to use.
type Sink struct {
	mu          sync.Mutex
	increments  []CounterIncrement
	applies     map[string][]TimeseriesApply
	merges      map[string][]HistogramMerge
	configs     map[string]tlstats.HistogramConfig
	exports     map[string][]tlstats.ExportType
	percentiles map[string][]int
}

// IncrementCounter records the increment.
func (s *Sink) IncrementCounter(name string, delta int64) {
	s.mu.Lock()
	s.increments = append(s.increments, CounterIncrement{Name: name, Delta: delta})
	s.mu.Unlock()
}

// Timeseries returns a handle recording every application against name.
func (s *Sink) Timeseries(name string) tlstats.TimeseriesHandle {
	return tsHandle{sink: s, name: name}
}

// ExportTimeseries records the export registration.
func (s *Sink) ExportTimeseries(name string, exports ...tlstats.ExportType) {
	s.mu.Lock()
	if s.exports == nil {
		s.exports = make(map[string][]tlstats.ExportType)
	}
	s.exports[name] = append(s.exports[name], exports...)
	s.mu.Unlock()
}

// Histogram returns a handle recording every merge against name. Requesting
// an existing name with a different config fails, like a real sink.
func (s *Sink) Histogram(name string, config tlstats.HistogramConfig) (tlstats.HistogramHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.configs == nil {
		s.configs = make(map[string]tlstats.HistogramConfig)
	}
	if existing, ok := s.configs[name]; ok {
		if existing != config {
			return nil, fmt.Errorf("sinktest: histogram %q already defined with %+v", name, existing)
		}
	} else {
		s.configs[name] = config
	}
	return histHandle{sink: s, name: name, config: s.configs[name]}, nil
}

// ExportHistogram records the export registration.
func (s *Sink) ExportHistogram(name string, exports ...tlstats.ExportType) {
	s.ExportTimeseries(name, exports...)
}

// ExportPercentile records the percentile registration.
func (s *Sink) ExportPercentile(name string, percentiles ...int) {
	s.mu.Lock()
	if s.percentiles == nil {
		s.percentiles = make(map[string][]int)
	}
	s.percentiles[name] = append(s.percentiles[name], percentiles...)
	s.mu.Unlock()
}

// Increments returns a copy of every recorded counter increment, in order.
func (s *Sink) Increments() []CounterIncrement {
	s.mu.Lock()
	incs := make([]CounterIncrement, len(s.increments))
	copy(incs, s.increments)
	s.mu.Unlock()
	return incs
}

// CounterValue returns the sum of the recorded increments of name.
func (s *Sink) CounterValue(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, inc := range s.increments {
		if inc.Name == name {
			total += inc.Delta
		}
	}
	return total
}

// TimeseriesApplies returns a copy of every recorded application against the
// timeseries name, in order.
func (s *Sink) TimeseriesApplies(name string) []TimeseriesApply {
	s.mu.Lock()
	applies := make([]TimeseriesApply, len(s.applies[name]))
	copy(applies, s.applies[name])
	s.mu.Unlock()
	return applies
}

// TimeseriesTotals returns the total sum and count applied to the timeseries
// name.
func (s *Sink) TimeseriesTotals(name string) (sum, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.applies[name] {
		sum += a.Sum
		count += a.Count
	}
	return sum, count
}

// Merges returns a copy of every recorded merge against the histogram name,
// in order.
func (s *Sink) Merges(name string) []HistogramMerge {
	s.mu.Lock()
	merges := make([]HistogramMerge, len(s.merges[name]))
	copy(merges, s.merges[name])
	s.mu.Unlock()
	return merges
}

// MergeCalls returns the number of merges recorded against the histogram
// name.
func (s *Sink) MergeCalls(name string) int {
	s.mu.Lock()
	n := len(s.merges[name])
	s.mu.Unlock()
	return n
}

// HistogramTotals returns the total sum and sample count merged into the
// histogram name.
func (s *Sink) HistogramTotals(name string) (sum, count int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.merges[name] {
		for _, sample := range m.Samples {
			sum += sample.Value * sample.Count
			count += sample.Count
		}
	}
	return sum, count
}

// Exports returns a copy of the export types registered for name, in order.
func (s *Sink) Exports(name string) []tlstats.ExportType {
	s.mu.Lock()
	exports := make([]tlstats.ExportType, len(s.exports[name]))
	copy(exports, s.exports[name])
	s.mu.Unlock()
	return exports
}

// Percentiles returns a copy of the percentiles registered for name, in
// order.
func (s *Sink) Percentiles(name string) []int {
	s.mu.Lock()
	percentiles := make([]int, len(s.percentiles[name]))
	copy(percentiles, s.percentiles[name])
	s.mu.Unlock()
	return percentiles
}

// Clear removes everything recorded by the sink. Histogram configs are kept
// so existing handles stay valid.
func (s *Sink) Clear() {
	s.mu.Lock()
	s.increments = s.increments[:0]
	s.applies = nil
	s.merges = nil
	s.exports = nil
	s.percentiles = nil
	s.mu.Unlock()
}

func (s *Sink) recordApply(name string, a TimeseriesApply) {
	s.mu.Lock()
	if s.applies == nil {
		s.applies = make(map[string][]TimeseriesApply)
	}
	s.applies[name] = append(s.applies[name], a)
	s.mu.Unlock()
}

func (s *Sink) recordMerge(name string, m HistogramMerge) {
	s.mu.Lock()
	if s.merges == nil {
		s.merges = make(map[string][]HistogramMerge)
	}
	s.merges[name] = append(s.merges[name], m)
	s.mu.Unlock()
}

type tsHandle struct {
	sink *Sink
	name string
}

func (h tsHandle) AddValueAggregated(now time.Time, sum, count int64) {
	h.sink.recordApply(h.name, TimeseriesApply{Time: now, Sum: sum, Count: count})
}

type histHandle struct {
	sink   *Sink
	name   string
	config tlstats.HistogramConfig
}

func (h histHandle) Config() tlstats.HistogramConfig { return h.config }

func (h histHandle) NewAccumulator() tlstats.HistogramAccumulator {
	return &accumulator{}
}

func (h histHandle) Merge(now time.Time, acc tlstats.HistogramAccumulator) {
	a, ok := acc.(*accumulator)
	if !ok {
		panic(fmt.Sprintf("sinktest: merge of a foreign accumulator type %T", acc))
	}
	samples := make([]Sample, len(a.samples))
	copy(samples, a.samples)
	h.sink.recordMerge(h.name, HistogramMerge{Time: now, Samples: samples})
}

// accumulator records samples verbatim instead of bucketing them, so tests
// can assert on exactly what was merged.
type accumulator struct {
	samples []Sample
}

func (a *accumulator) AddValue(value int64) {
	a.AddRepeatedValue(value, 1)
}

func (a *accumulator) AddRepeatedValue(value, n int64) {
	a.samples = append(a.samples, Sample{Value: value, Count: n})
}

func (a *accumulator) Clear() {
	a.samples = a.samples[:0]
}
