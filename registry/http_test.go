package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftlock/tlstats"
)

func newPopulatedRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := new(Registry)

	reg.IncrementCounter("reqs", 7)
	reg.Timeseries("lat").AddValueAggregated(time.Now(), 120, 4)

	handle, err := reg.Histogram("size", tlstats.HistogramConfig{BucketWidth: 10, Min: 0, Max: 100})
	require.NoError(t, err)
	acc := handle.NewAccumulator()
	acc.AddRepeatedValue(5, 10)
	handle.Merge(time.Now(), acc)
	reg.ExportPercentile("size", 50)

	return reg
}

func TestServeHTTP(t *testing.T) {
	reg := newPopulatedRegistry(t)

	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var metrics []Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))

	state := reg.State()
	require.Len(t, metrics, len(state))
	for i := range state {
		require.Equal(t, state[i].Name, metrics[i].Name)
		require.Equal(t, state[i].Type, metrics[i].Type)
		require.Equal(t, state[i].Value, metrics[i].Value)
		require.Equal(t, state[i].Count, metrics[i].Count)
		require.Equal(t, state[i].Exports, metrics[i].Exports)
		require.Equal(t, state[i].Percentiles, metrics[i].Percentiles)
		require.Equal(t, state[i].Buckets, metrics[i].Buckets)
		require.True(t, state[i].Time.Equal(metrics[i].Time), "time drifted through the JSON roundtrip")
	}
}

func TestServeHTTPNameFilter(t *testing.T) {
	reg := newPopulatedRegistry(t)

	rec := httptest.NewRecorder()
	reg.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?name=reqs", nil))

	var metrics []Metric
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Len(t, metrics, 1)
	require.Equal(t, "reqs", metrics[0].Name)
	require.Equal(t, CounterType, metrics[0].Type)
	require.EqualValues(t, 7, metrics[0].Value)
}

func TestServeHTTPEmptyRegistry(t *testing.T) {
	rec := httptest.NewRecorder()
	new(Registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "[]", rec.Body.String())
}

func TestServeHTTPMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newPopulatedRegistry(t).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}

func TestRegistryAsScopeSink(t *testing.T) {
	reg := new(Registry)
	scope := tlstats.NewScope(reg, tlstats.ExclusiveAffinity)

	c := tlstats.NewCounter(scope, "reqs")
	ts := tlstats.NewTimeseries(scope, "lat", tlstats.ExportAvg)
	h, err := tlstats.NewHistogram(scope, "size",
		tlstats.HistogramConfig{BucketWidth: 10, Min: 0, Max: 100},
		tlstats.WithPercentiles(50))
	require.NoError(t, err)

	c.Add(3)
	ts.AddValue(40)
	ts.AddValue(60)
	h.AddRepeatedValue(5, 4)
	scope.Aggregate()

	v, ok := reg.CounterValue("reqs")
	require.True(t, ok)
	require.EqualValues(t, 3, v)

	sum, count, ok := reg.TimeseriesTotals("lat")
	require.True(t, ok)
	require.EqualValues(t, 100, sum)
	require.EqualValues(t, 2, count)

	hsum, hcount, ok := reg.HistogramTotals("size")
	require.True(t, ok)
	require.EqualValues(t, 20, hsum)
	require.EqualValues(t, 4, hcount)

	p50, ok := reg.PercentileEstimate("size", 50)
	require.True(t, ok)
	require.EqualValues(t, 5, p50)

	require.NoError(t, scope.Close())
}
