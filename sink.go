package tlstats

import "time"

// A Sink is the shared, name-keyed registry of global statistics that scopes
// aggregate into. Implementations must be safe for concurrent use: stats
// drain their local deltas outside of any library lock and apply them through
// the sink, potentially from many goroutines at once.
//
// The sink owns all cross-scope state, including the numeric core of
// histograms (bucket layout, percentile derivation). The registry package
// provides a complete in-memory implementation; debugsink and otelsink
// provide forwarding implementations.
type Sink interface {
	// IncrementCounter adds delta to the named global counter, creating it at
	// zero if it does not exist. Deltas may be negative.
	IncrementCounter(name string, delta int64)

	// Timeseries returns the handle for the named global timeseries, creating
	// it if it does not exist. Handles are resolved once, at stat
	// construction, so that aggregation does not perform name lookups.
	Timeseries(name string) TimeseriesHandle

	// ExportTimeseries registers the derived values the named timeseries
	// publishes. Registering the same export type twice is harmless.
	ExportTimeseries(name string, exports ...ExportType)

	// Histogram returns the handle for the named global histogram, creating
	// it with config if it does not exist. It returns an error if the name is
	// already registered with a conflicting bucket layout.
	Histogram(name string, config HistogramConfig) (HistogramHandle, error)

	// ExportHistogram registers the derived values the named histogram
	// publishes.
	ExportHistogram(name string, exports ...ExportType)

	// ExportPercentile registers percentile estimates (0-100) the named
	// histogram publishes.
	ExportPercentile(name string, percentiles ...int)
}

// A TimeseriesHandle applies drained (sum, count) pairs to one named global
// timeseries.
type TimeseriesHandle interface {
	// AddValueAggregated records count samples summing to sum, observed at
	// now.
	AddValueAggregated(now time.Time, sum, count int64)
}

// A HistogramHandle is the binding between a local histogram stat and one
// named global histogram. The handle mints the local accumulators merged into
// it, which keeps every piece of bucket math on the sink side of the
// boundary.
type HistogramHandle interface {
	// Config returns the bucket layout of the global histogram.
	Config() HistogramConfig

	// NewAccumulator returns an empty accumulator matching the handle's
	// layout. Accumulators are not safe for concurrent use; the stat guards
	// them.
	NewAccumulator() HistogramAccumulator

	// Merge folds acc into the global histogram at timestamp now. The
	// accumulator must have been minted by this handle.
	Merge(now time.Time, acc HistogramAccumulator)
}

// A HistogramAccumulator collects samples locally between aggregations.
type HistogramAccumulator interface {
	// AddValue records one sample.
	AddValue(v int64)

	// AddRepeatedValue records n samples of value v.
	AddRepeatedValue(v, n int64)

	// Clear resets the accumulator to empty.
	Clear()
}

// HistogramConfig describes the fixed-width bucket layout of a histogram:
// values in [Min, Max) map to buckets of BucketWidth, values outside the
// range map to an underflow or overflow bucket.
type HistogramConfig struct {
	// BucketWidth is the width of each bucket. It must be positive.
	BucketWidth int64

	// Min is the inclusive lower bound of the tracked range.
	Min int64

	// Max is the exclusive upper bound of the tracked range. It must be
	// greater than Min.
	Max int64
}

// ExportType is an enumeration of the derived values a timeseries or
// histogram can publish from its aggregate.
type ExportType int

const (
	// ExportSum publishes the sum of all samples.
	ExportSum ExportType = iota

	// ExportCount publishes the number of samples.
	ExportCount

	// ExportAvg publishes sum divided by count.
	ExportAvg

	// ExportRate publishes sum divided by elapsed time.
	ExportRate

	// ExportPercent publishes 100 times sum divided by count.
	ExportPercent
)

// String returns the lowercase name of the export type.
func (t ExportType) String() string {
	switch t {
	case ExportSum:
		return "sum"
	case ExportCount:
		return "count"
	case ExportAvg:
		return "avg"
	case ExportRate:
		return "rate"
	case ExportPercent:
		return "pct"
	default:
		return "unknown"
	}
}
