// Package tlstats implements per-goroutine accumulation of statistics with
// cheap recording and periodic aggregation into a shared sink.
//
// Updating a stat that many goroutines share costs an atomic operation or a
// lock on every sample, plus a name lookup if the stat is addressed by name.
// tlstats moves that cost off the hot path: each execution context (usually
// a goroutine, sometimes a request or a shard) owns a Scope holding its own
// Counter, Timeseries and Histogram objects, samples accumulate locally, and
// a periodic Aggregate pass folds the accumulated deltas into the Sink where
// the global, name-keyed values live.
//
// How local updates are synchronized is decided per scope by a Policy:
//
//   - ExclusiveAffinity: the scope and all of its stats are used by one
//     goroutine at a time. Updates are plain loads and stores, no atomics,
//     no locks. Handing the scope to another goroutine requires SwapThreads.
//   - SharedAccess: stats may be updated from any goroutine. Updates take a
//     per-stat guard (an atomic add, for counters), still with no name
//     lookup.
//
// A typical worker:
//
//	scope := tlstats.NewScope(sink, tlstats.ExclusiveAffinity)
//	defer scope.Close()
//
//	requests := tlstats.NewCounter(scope, "worker.requests")
//	latency, _ := tlstats.NewHistogram(scope, "worker.latency_ms",
//	    tlstats.HistogramConfig{BucketWidth: 10, Min: 0, Max: 1000},
//	    tlstats.WithPercentiles(95, 99))
//
//	for job := range jobs {
//	    w := latency.Start()
//	    requests.Incr()
//	    handle(job)
//	    w.Stop()
//	}
//
// with the worker calling scope.Aggregate about once per second. Scopes that
// should instead be drained from the outside, for example by an Aggregator,
// use SharedAccess. Values are visible in the sink only after a pass, so
// readers observe staleness up to one aggregation interval.
//
// Closing a scope orphans the stats still registered with it: they keep
// accepting updates, but the updates no longer reach the sink, and
// operations that need the scope report ErrOrphaned. Stats should be closed
// before their scope when the final deltas matter.
//
// The registry subpackage provides a complete in-memory Sink; debugsink and
// otelsink forward flushed deltas to an io.Writer and to OpenTelemetry
// instruments respectively; sinktest records everything for assertions in
// tests.
package tlstats
