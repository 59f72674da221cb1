// tlstatsbench exercises the tlstats hot path under configurable load:
// every worker goroutine owns an ExclusiveAffinity scope that it aggregates
// itself, all workers share one SharedAccess scope driven by an Aggregator,
// and everything lands in an in-memory registry that is dumped at the end.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/driftlock/tlstats"
	"github.com/driftlock/tlstats/registry"
	"github.com/driftlock/tlstats/version"
)

func main() {
	var (
		workers  = flag.Int("workers", 4, "number of worker goroutines, each owning an exclusive scope")
		duration = flag.Duration("duration", 3*time.Second, "how long to generate load")
		interval = flag.Duration("interval", 250*time.Millisecond, "aggregation interval of the shared scope")
		httpAddr = flag.String("http", "", "optional address serving the registry state over HTTP while the bench runs")
	)
	flag.Parse()

	log.Printf("tlstatsbench %s (go %s) run %s: %d workers for %s",
		version.Version, version.GoVersion(), uuid.NewString(), *workers, *duration)

	reg := new(registry.Registry)

	if *httpAddr != "" {
		go func() {
			log.Printf("serving registry state on http://%s", *httpAddr)
			log.Fatal(http.ListenAndServe(*httpAddr, reg))
		}()
	}

	shared := tlstats.NewScope(reg, tlstats.SharedAccess)
	jobs := tlstats.NewCounter(shared, "bench.jobs")
	agg := tlstats.NewAggregator(*interval, shared)

	deadline := time.Now().Add(*duration)
	var group errgroup.Group
	for i := 0; i < *workers; i++ {
		i := i
		group.Go(func() error {
			return worker(reg, jobs, i, deadline)
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}

	if err := agg.Close(); err != nil {
		log.Fatal(err)
	}
	if err := shared.Close(); err != nil {
		log.Fatal(err)
	}

	dump(reg)
}

// worker generates load on its own exclusive scope until deadline. Exclusive
// scopes must be aggregated by their owning goroutine, so the worker drains
// its scope inline every few thousand iterations.
func worker(reg *registry.Registry, jobs *tlstats.Counter, id int, deadline time.Time) error {
	scope := tlstats.NewScope(reg, tlstats.ExclusiveAffinity)

	ops := tlstats.NewCounter(scope, fmt.Sprintf("bench.worker%02d.ops", id))
	payload := tlstats.NewTimeseries(scope, "bench.payload_bytes",
		tlstats.ExportSum, tlstats.ExportCount, tlstats.ExportAvg)
	latency, err := tlstats.NewHistogram(scope, "bench.latency_ms",
		tlstats.HistogramConfig{BucketWidth: 10, Min: 0, Max: 1000},
		tlstats.WithExports(tlstats.ExportAvg),
		tlstats.WithPercentiles(50, 95, 99))
	if err != nil {
		return err
	}

	for n := 0; time.Now().Before(deadline); n++ {
		ops.Incr()
		jobs.Incr()
		payload.AddValue(256 + rand.Int63n(4096))
		latency.AddValue(rand.Int63n(400))
		if n%4096 == 0 {
			scope.Aggregate()
		}
	}

	scope.Aggregate()
	return scope.Close()
}

func dump(reg *registry.Registry) {
	for _, m := range reg.State() {
		line := fmt.Sprintf("%-28s %-10s value=%-12d", m.Name, m.Type, m.Value)
		if m.Count != 0 {
			line += fmt.Sprintf(" count=%-10d", m.Count)
		}
		for _, p := range [...]int{50, 95, 99} {
			if v, ok := m.Percentiles[p]; ok {
				line += fmt.Sprintf(" p%d=%d", p, v)
			}
		}
		fmt.Println(line)
	}
}
