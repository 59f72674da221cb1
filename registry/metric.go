package registry

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/driftlock/tlstats"
)

// MetricType is an enumeration of the statistic kinds a registry tracks.
type MetricType int

const (
	CounterType MetricType = iota
	TimeseriesType
	HistogramType
)

// String returns a human-readable representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case CounterType:
		return "counter"
	case TimeseriesType:
		return "timeseries"
	case HistogramType:
		return "histogram"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler, so metric types serialize
// as their names.
func (t MetricType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *MetricType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "counter":
		*t = CounterType
	case "timeseries":
		*t = TimeseriesType
	case "histogram":
		*t = HistogramType
	default:
		return fmt.Errorf("registry: unknown metric type %q", b)
	}
	return nil
}

// BucketLayout is the bucket configuration of a histogram, carried in its
// Metric snapshot.
type BucketLayout struct {
	BucketWidth int64 `json:"bucket_width"`
	Min         int64 `json:"min"`
	Max         int64 `json:"max"`
}

// Metric is a point-in-time snapshot of one named statistic held by a
// registry.
type Metric struct {
	Type        MetricType    `json:"type"`
	Name        string        `json:"name"`
	Value       int64         `json:"value"`
	Count       int64         `json:"count,omitempty"`
	Time        time.Time     `json:"time"`
	Exports     []string      `json:"exports,omitempty"`
	Percentiles map[int]int64 `json:"percentiles,omitempty"`
	Buckets     *BucketLayout `json:"buckets,omitempty"`
}

// State returns a snapshot of every statistic the registry tracks, sorted by
// name and type. Counter snapshots carry the value; timeseries and histogram
// snapshots carry the aggregated sum as the value and the sample count, and
// histograms additionally their bucket layout and the estimates of the
// percentiles registered for export.
func (r *Registry) State() []Metric {
	var metrics []Metric
	for i := range r.shards {
		metrics = r.shards[i].appendState(metrics)
	}
	slices.SortFunc(metrics, func(a, b Metric) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(int(a.Type), int(b.Type))
	})
	return metrics
}

func (s *shard) appendState(metrics []Metric) []Metric {
	s.mu.RLock()
	counters := make(map[string]*counter, len(s.counters))
	for name, c := range s.counters {
		counters[name] = c
	}
	tss := make(map[string]*timeseries, len(s.timeseries))
	for name, ts := range s.timeseries {
		tss[name] = ts
	}
	hists := make(map[string]*histogram, len(s.histograms))
	for name, h := range s.histograms {
		hists[name] = h
	}
	s.mu.RUnlock()

	for name, c := range counters {
		metrics = append(metrics, Metric{
			Type:  CounterType,
			Name:  name,
			Value: c.value.Load(),
			Time:  time.Unix(0, c.last.Load()).UTC(),
		})
	}
	for name, ts := range tss {
		ts.mu.Lock()
		m := Metric{
			Type:    TimeseriesType,
			Name:    name,
			Value:   ts.sum,
			Count:   ts.count,
			Time:    ts.last,
			Exports: ts.exports.names(),
		}
		ts.mu.Unlock()
		metrics = append(metrics, m)
	}
	for name, h := range hists {
		h.mu.Lock()
		m := Metric{
			Type:    HistogramType,
			Name:    name,
			Value:   h.sum,
			Count:   h.count,
			Time:    h.last,
			Exports: h.exports.names(),
			Buckets: &BucketLayout{
				BucketWidth: h.config.BucketWidth,
				Min:         h.config.Min,
				Max:         h.config.Max,
			},
		}
		if len(h.percentiles) > 0 {
			m.Percentiles = make(map[int]int64, len(h.percentiles))
			for _, p := range h.percentiles {
				m.Percentiles[p] = h.percentileEstimateLocked(p)
			}
		}
		h.mu.Unlock()
		metrics = append(metrics, m)
	}
	return metrics
}

// exportSet tracks which export types were registered for a statistic.
type exportSet uint8

func (e *exportSet) add(t tlstats.ExportType) {
	*e |= 1 << uint(t)
}

func (e exportSet) names() []string {
	if e == 0 {
		return nil
	}
	var names []string
	for _, t := range []tlstats.ExportType{
		tlstats.ExportSum,
		tlstats.ExportCount,
		tlstats.ExportAvg,
		tlstats.ExportRate,
		tlstats.ExportPercent,
	} {
		if e&(1<<uint(t)) != 0 {
			names = append(names, t.String())
		}
	}
	return names
}
