package tlstats_test

import (
	"slices"
	"testing"

	"github.com/driftlock/tlstats"
	"github.com/driftlock/tlstats/sinktest"
)

func TestTimeseriesAggregatesSumAndCount(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	ts := tlstats.NewTimeseries(scope, "lat")
	ts.AddValue(30)
	ts.AddValue(50)
	ts.AddValueAggregated(120, 4)

	scope.Aggregate()

	applies := sink.TimeseriesApplies("lat")
	if len(applies) != 1 {
		t.Fatalf("apply calls => %d, want 1", len(applies))
	}
	if applies[0].Sum != 200 || applies[0].Count != 6 {
		t.Errorf("apply => (%d, %d), want (200, 6)", applies[0].Sum, applies[0].Count)
	}
	if applies[0].Time.IsZero() {
		t.Error("expected the aggregation pass to stamp the apply")
	}
}

func TestTimeseriesSkipsEmptyPass(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	tlstats.NewTimeseries(scope, "lat")
	scope.Aggregate()

	if n := len(sink.TimeseriesApplies("lat")); n != 0 {
		t.Errorf("apply calls for an idle timeseries => %d, want 0", n)
	}
}

func TestTimeseriesExports(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	ts := tlstats.NewTimeseries(scope, "lat", tlstats.ExportSum, tlstats.ExportCount)
	if err := ts.Export(tlstats.ExportAvg); err != nil {
		t.Fatalf("exporting a registered timeseries => %v", err)
	}

	want := []tlstats.ExportType{tlstats.ExportSum, tlstats.ExportCount, tlstats.ExportAvg}
	if got := sink.Exports("lat"); !slices.Equal(got, want) {
		t.Errorf("exports => %v, want %v", got, want)
	}
}

func TestTimeseriesConservesSamplesAcrossPasses(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	ts := tlstats.NewTimeseries(scope, "lat")
	var wantSum, wantCount int64
	for i := int64(0); i < 100; i++ {
		ts.AddValue(i)
		wantSum += i
		wantCount++
		if i%7 == 0 {
			scope.Aggregate()
		}
	}
	scope.Aggregate()

	if sum, count := sink.TimeseriesTotals("lat"); sum != wantSum || count != wantCount {
		t.Errorf("sink totals => (%d, %d), want (%d, %d)", sum, count, wantSum, wantCount)
	}
}

func TestTimeseriesSampleCountOfOne(t *testing.T) {
	sink := &sinktest.Sink{}
	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)

	ts := tlstats.NewTimeseries(scope, "lat")
	ts.AddValue(42)
	if sum, count := ts.Sum(), ts.Count(); sum != 42 || count != 1 {
		t.Errorf("pending => (%d, %d), want (42, 1)", sum, count)
	}
}
