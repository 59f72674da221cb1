// Package otelsink provides a tlstats.Sink that applies flushed deltas to
// OpenTelemetry instruments, for programs that keep per-goroutine stats but
// report through an OTel pipeline.
//
// Counter deltas feed an Int64UpDownCounter of the same name (deltas may be
// negative). A timeseries feeds a pair of instruments, name.sum and
// name.count. Histogram merges replay the recorded samples into an
// Int64Histogram, one Record call per sample, so bucketing stays under the
// control of OTel views; export type and percentile registrations are
// no-ops for the same reason.
package otelsink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/driftlock/tlstats"
)

// ErrNilMeter is returned by New when no meter is configured.
var ErrNilMeter = errors.New("otelsink: nil meter")

var _ tlstats.Sink = (*Sink)(nil)

// Config carries the configuration of a Sink. Only Meter is required.
type Config struct {
	// Meter mints the instruments the deltas are applied to.
	Meter metric.Meter

	// Context is passed to every instrument update. Defaults to
	// context.Background().
	Context context.Context

	// OnError receives instrument creation failures for statistics applied
	// after construction. Defaults to the global OpenTelemetry error
	// handler.
	OnError func(error)
}

// Sink applies flushed deltas to OpenTelemetry instruments. Instruments are
// created on first use of each name and cached.
type Sink struct {
	meter   metric.Meter
	ctx     context.Context
	onError func(error)

	mu       sync.Mutex
	counters map[string]metric.Int64UpDownCounter
	tsSums   map[string]metric.Int64UpDownCounter
	tsCounts map[string]metric.Int64Counter
	hists    map[string]*histState
}

type histState struct {
	instrument metric.Int64Histogram
	config     tlstats.HistogramConfig
}

// New returns a sink applying deltas through config.Meter.
func New(config Config) (*Sink, error) {
	if config.Meter == nil {
		return nil, ErrNilMeter
	}
	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &Sink{
		meter:    config.Meter,
		ctx:      ctx,
		onError:  config.OnError,
		counters: make(map[string]metric.Int64UpDownCounter),
		tsSums:   make(map[string]metric.Int64UpDownCounter),
		tsCounts: make(map[string]metric.Int64Counter),
		hists:    make(map[string]*histState),
	}, nil
}

func (s *Sink) handleError(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	otel.Handle(err)
}

// IncrementCounter adds delta to the up-down counter named name.
func (s *Sink) IncrementCounter(name string, delta int64) {
	s.mu.Lock()
	c, ok := s.counters[name]
	if !ok {
		var err error
		c, err = s.meter.Int64UpDownCounter(name)
		if err != nil {
			s.mu.Unlock()
			s.handleError(fmt.Errorf("otelsink: create counter %s: %w", name, err))
			return
		}
		s.counters[name] = c
	}
	s.mu.Unlock()
	c.Add(s.ctx, delta)
}

// Timeseries returns a handle feeding the name.sum and name.count
// instruments. If either instrument cannot be created the error goes to the
// error handler and the handle drops its updates.
func (s *Sink) Timeseries(name string) tlstats.TimeseriesHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.tsSums[name]
	if !ok {
		var err error
		sum, err = s.meter.Int64UpDownCounter(name + ".sum")
		if err != nil {
			s.handleError(fmt.Errorf("otelsink: create timeseries sum %s: %w", name, err))
			return tsHandle{}
		}
		s.tsSums[name] = sum
	}
	count, ok := s.tsCounts[name]
	if !ok {
		var err error
		count, err = s.meter.Int64Counter(name + ".count")
		if err != nil {
			s.handleError(fmt.Errorf("otelsink: create timeseries count %s: %w", name, err))
			return tsHandle{}
		}
		s.tsCounts[name] = count
	}
	return tsHandle{ctx: s.ctx, sum: sum, count: count}
}

// ExportTimeseries is a no-op: derived values belong to OTel views.
func (s *Sink) ExportTimeseries(string, ...tlstats.ExportType) {}

// Histogram returns a handle recording merged samples into the Int64Histogram
// named name. It returns an error if the instrument cannot be created, or if
// name was already requested with a different bucket layout.
func (s *Sink) Histogram(name string, config tlstats.HistogramConfig) (tlstats.HistogramHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hists[name]
	if !ok {
		instrument, err := s.meter.Int64Histogram(name)
		if err != nil {
			return nil, fmt.Errorf("otelsink: create histogram %s: %w", name, err)
		}
		h = &histState{instrument: instrument, config: config}
		s.hists[name] = h
	}
	if h.config != config {
		return nil, fmt.Errorf("otelsink: histogram %q already defined with width=%d min=%d max=%d",
			name, h.config.BucketWidth, h.config.Min, h.config.Max)
	}
	return histHandle{ctx: s.ctx, state: h}, nil
}

// ExportHistogram is a no-op: derived values belong to OTel views.
func (s *Sink) ExportHistogram(string, ...tlstats.ExportType) {}

// ExportPercentile is a no-op: derived values belong to OTel views.
func (s *Sink) ExportPercentile(string, ...int) {}

type tsHandle struct {
	ctx   context.Context
	sum   metric.Int64UpDownCounter
	count metric.Int64Counter
}

func (h tsHandle) AddValueAggregated(_ time.Time, sum, count int64) {
	if h.sum == nil || h.count == nil {
		return
	}
	h.sum.Add(h.ctx, sum)
	h.count.Add(h.ctx, count)
}

type histHandle struct {
	ctx   context.Context
	state *histState
}

func (h histHandle) Config() tlstats.HistogramConfig { return h.state.config }

func (h histHandle) NewAccumulator() tlstats.HistogramAccumulator {
	return &accumulator{}
}

func (h histHandle) Merge(_ time.Time, acc tlstats.HistogramAccumulator) {
	a, ok := acc.(*accumulator)
	if !ok {
		panic(fmt.Sprintf("otelsink: merge of a foreign accumulator type %T", acc))
	}
	for _, sample := range a.samples {
		for i := int64(0); i < sample.n; i++ {
			h.state.instrument.Record(h.ctx, sample.value)
		}
	}
}

type sample struct {
	value int64
	n     int64
}

// accumulator keeps the recorded samples verbatim so the merge can replay
// them into the instrument.
type accumulator struct {
	samples []sample
}

func (a *accumulator) AddValue(value int64) {
	a.AddRepeatedValue(value, 1)
}

func (a *accumulator) AddRepeatedValue(value, n int64) {
	a.samples = append(a.samples, sample{value: value, n: n})
}

func (a *accumulator) Clear() {
	a.samples = a.samples[:0]
}
