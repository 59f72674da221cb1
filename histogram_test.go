package tlstats_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/driftlock/tlstats"
	"github.com/driftlock/tlstats/sinktest"
)

var bytesConfig = tlstats.HistogramConfig{BucketWidth: 100, Min: 0, Max: 1000}

func TestHistogramMergesOnlyWhenDirty(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	h, err := tlstats.NewHistogram(scope, "size", bytesConfig)
	if err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}

	scope.Aggregate()
	if n := sink.MergeCalls("size"); n != 0 {
		t.Fatalf("merge calls for an idle histogram => %d, want 0", n)
	}

	h.AddValue(250)
	h.AddRepeatedValue(10, 3)
	scope.Aggregate()
	scope.Aggregate() // nothing new recorded

	if n := sink.MergeCalls("size"); n != 1 {
		t.Fatalf("merge calls => %d, want 1", n)
	}
	if sum, count := sink.HistogramTotals("size"); sum != 280 || count != 4 {
		t.Errorf("merged totals => (%d, %d), want (280, 4)", sum, count)
	}
}

func TestHistogramAccumulatorClearedBetweenPasses(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	h, err := tlstats.NewHistogram(scope, "size", bytesConfig)
	if err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}

	h.AddValue(100)
	scope.Aggregate()
	h.AddValue(200)
	scope.Aggregate()

	merges := sink.Merges("size")
	if len(merges) != 2 {
		t.Fatalf("merge calls => %d, want 2", len(merges))
	}
	// The second merge must not re-report the first sample.
	if len(merges[1].Samples) != 1 || merges[1].Samples[0].Value != 200 {
		t.Errorf("second merge => %+v, want just the 200 sample", merges[1].Samples)
	}
}

func TestHistogramConfigConflict(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	if _, err := tlstats.NewHistogram(scope, "size", bytesConfig); err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}

	_, err := tlstats.NewHistogram(scope, "size", tlstats.HistogramConfig{BucketWidth: 7, Min: 0, Max: 70})
	if err == nil {
		t.Fatal("expected a conflicting bucket layout to be rejected")
	}
	if scope.Len() != 1 {
		t.Errorf("scope length after a rejected histogram => %d, want 1", scope.Len())
	}

	// The same layout resolves to the same global histogram.
	h2, err := tlstats.NewHistogram(scope, "size", bytesConfig)
	if err != nil {
		t.Fatalf("creating a second histogram stat => %v", err)
	}
	if config := h2.Config(); config != bytesConfig {
		t.Errorf("config => %+v, want %+v", config, bytesConfig)
	}
}

func TestHistogramFromHandle(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	handle, err := sink.Histogram("size", bytesConfig)
	if err != nil {
		t.Fatalf("resolving a handle => %v", err)
	}

	h := tlstats.NewHistogramFromHandle(scope, "size", handle)
	h.AddValue(5)
	scope.Aggregate()

	if sum, count := sink.HistogramTotals("size"); sum != 5 || count != 1 {
		t.Errorf("merged totals => (%d, %d), want (5, 1)", sum, count)
	}
}

func TestHistogramExportRegistration(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	h, err := tlstats.NewHistogram(scope, "size", bytesConfig,
		tlstats.WithExports(tlstats.ExportAvg),
		tlstats.WithPercentiles(95, 99))
	if err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}

	if got := sink.Exports("size"); !slices.Equal(got, []tlstats.ExportType{tlstats.ExportAvg}) {
		t.Errorf("exports => %v, want [avg]", got)
	}
	if got := sink.Percentiles("size"); !slices.Equal(got, []int{95, 99}) {
		t.Errorf("percentiles => %v, want [95 99]", got)
	}

	if err := h.ExportPercentile(50); err != nil {
		t.Fatalf("exporting a percentile => %v", err)
	}
	if got := sink.Percentiles("size"); !slices.Equal(got, []int{95, 99, 50}) {
		t.Errorf("percentiles => %v, want [95 99 50]", got)
	}
}

func TestHistogramOrphanExports(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	h, err := tlstats.NewHistogram(scope, "size", bytesConfig)
	if err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("closing the scope => %v", err)
	}

	if err := h.Export(tlstats.ExportSum); !errors.Is(err, tlstats.ErrOrphaned) {
		t.Errorf("exporting an orphaned histogram => %v, want ErrOrphaned", err)
	}
	if err := h.ExportPercentile(50); !errors.Is(err, tlstats.ErrOrphaned) {
		t.Errorf("exporting a percentile on an orphan => %v, want ErrOrphaned", err)
	}
}

func TestStopwatchRecordsMilliseconds(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	h, err := tlstats.NewHistogram(scope, "lat_ms", tlstats.HistogramConfig{BucketWidth: 10, Min: 0, Max: 1000})
	if err != nil {
		t.Fatalf("creating a histogram => %v", err)
	}

	start := time.Date(2024, 4, 18, 9, 45, 0, 0, time.UTC)
	w := h.StartAt(start)
	w.LapAt(start.Add(25 * time.Millisecond))
	w.StopAt(start.Add(95 * time.Millisecond))

	scope.Aggregate()

	merges := sink.Merges("lat_ms")
	if len(merges) != 1 {
		t.Fatalf("merge calls => %d, want 1", len(merges))
	}
	want := []sinktest.Sample{{Value: 25, Count: 1}, {Value: 70, Count: 1}}
	if !slices.Equal(merges[0].Samples, want) {
		t.Errorf("recorded laps => %+v, want %+v", merges[0].Samples, want)
	}
}
