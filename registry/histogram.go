package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/driftlock/tlstats"
)

// histogram is the registry-side value of one named histogram: fixed-width
// bucket counts bracketed by an underflow and an overflow bucket, plus the
// running sum and count of every merged sample. The bucket layout is
// immutable once created.
type histogram struct {
	config tlstats.HistogramConfig

	mu          sync.Mutex
	buckets     []int64 // buckets[0] underflow, buckets[len-1] overflow
	sum         int64
	count       int64
	last        time.Time
	exports     exportSet
	percentiles []int // sorted, unique
}

func newHistogram(config tlstats.HistogramConfig) *histogram {
	return &histogram{
		config:  config,
		buckets: make([]int64, bucketCount(config)),
	}
}

// bucketCount returns the number of buckets for config, including the
// underflow and overflow buckets.
func bucketCount(config tlstats.HistogramConfig) int {
	span := config.Max - config.Min
	return int((span+config.BucketWidth-1)/config.BucketWidth) + 2
}

// bucketIndex returns the bucket holding value: 0 for values below Min, the
// last index for values at or above Max.
func bucketIndex(config tlstats.HistogramConfig, nbuckets int, value int64) int {
	switch {
	case value < config.Min:
		return 0
	case value >= config.Max:
		return nbuckets - 1
	default:
		return 1 + int((value-config.Min)/config.BucketWidth)
	}
}

func (h *histogram) merge(now time.Time, a *accumulator) {
	h.mu.Lock()
	for i, n := range a.buckets {
		h.buckets[i] += n
	}
	h.sum += a.sum
	h.count += a.count
	h.last = now
	h.mu.Unlock()
}

func (h *histogram) addPercentileLocked(p int) {
	if slices.Contains(h.percentiles, p) {
		return
	}
	h.percentiles = append(h.percentiles, p)
	slices.Sort(h.percentiles)
}

// percentileEstimateLocked estimates the p-th percentile by locating the
// bucket holding the sample of that rank and interpolating linearly inside
// it. Values in the underflow bucket estimate as Min, values in the overflow
// bucket as Max.
func (h *histogram) percentileEstimateLocked(p int) int64 {
	if h.count == 0 {
		return 0
	}
	rank := float64(h.count) * float64(p) / 100

	var before int64
	for i, n := range h.buckets {
		if n == 0 {
			continue
		}
		if float64(before+n) < rank {
			before += n
			continue
		}
		switch i {
		case 0:
			return h.config.Min
		case len(h.buckets) - 1:
			return h.config.Max
		default:
			low := h.config.Min + int64(i-1)*h.config.BucketWidth
			high := low + h.config.BucketWidth
			if high > h.config.Max {
				high = h.config.Max
			}
			fraction := (rank - float64(before)) / float64(n)
			return low + int64(fraction*float64(high-low)+0.5)
		}
	}
	return h.config.Max
}

type histHandle struct {
	h *histogram
}

func (h histHandle) Config() tlstats.HistogramConfig { return h.h.config }

func (h histHandle) NewAccumulator() tlstats.HistogramAccumulator {
	return &accumulator{
		config:  h.h.config,
		buckets: make([]int64, len(h.h.buckets)),
	}
}

func (h histHandle) Merge(now time.Time, acc tlstats.HistogramAccumulator) {
	a, ok := acc.(*accumulator)
	if !ok {
		panic(fmt.Sprintf("registry: merge of a foreign accumulator type %T", acc))
	}
	if len(a.buckets) != len(h.h.buckets) {
		panic("registry: merge of an accumulator from a different histogram")
	}
	h.h.merge(now, a)
}

// accumulator buckets samples locally with the same layout as the histogram
// it was minted from, so merging is a bucket-wise add.
type accumulator struct {
	config  tlstats.HistogramConfig
	buckets []int64
	sum     int64
	count   int64
}

func (a *accumulator) AddValue(value int64) {
	a.AddRepeatedValue(value, 1)
}

func (a *accumulator) AddRepeatedValue(value, n int64) {
	a.buckets[bucketIndex(a.config, len(a.buckets), value)] += n
	a.sum += value * n
	a.count += n
}

func (a *accumulator) Clear() {
	clear(a.buckets)
	a.sum = 0
	a.count = 0
}
