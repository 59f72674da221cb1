// Package debugsink is a very small helper that makes it easy to see the
// raw deltas flushed out of tlstats scopes while you are debugging or
// developing a new instrumentation strategy.
//
//   - It implements the tlstats.Sink interface.
//   - Every delta that reaches the sink is written as a single line (metric
//     name, flushed values, kind marker) followed by '\n'.
//   - A time-stamp (RFC-3339) is prepended so that the stream can later be
//     correlated with logs if desired.
//
// # Destination
//
// By default the lines are written to os.Stdout, but any io.Writer can be
// supplied through the Sink's Dst field:
//
//	var buf bytes.Buffer
//	scope := tlstats.NewScope(&debugsink.Sink{Dst: &buf}, nil)
//
// # Grep-like filtering
//
// When you are only interested in a subset of your stats you can pass a
// regular expression via the Grep field. Only the lines whose textual
// representation (minus the timestamp) match the regexp are emitted:
//
//	&debugsink.Sink{Grep: regexp.MustCompile(`^worker\.`)}
//
// Typical output:
//
//	2024-04-18T09:45:00Z worker.requests:+42|c
//	2024-04-18T09:45:00Z worker.latency_ms:sum=1280,count=16|t
//	2024-04-18T09:45:00Z worker.payload_bytes:sum=3591,count=7|h
//
// Export registrations carry no delta and are not printed.
package debugsink

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/driftlock/tlstats"
)

var _ tlstats.Sink = (*Sink)(nil)

// Sink prints every flushed delta. If Dst is nil, lines are printed to
// stdout, otherwise they are printed to Dst.
//
// You can optionally provide a Grep regexp to limit printed lines to ones
// matching the regular expression, and a Now function to control the
// timestamps (useful in tests).
type Sink struct {
	Dst  io.Writer
	Grep *regexp.Regexp
	Now  func() time.Time
}

func (s *Sink) Write(p []byte) (int, error) {
	if s.Dst == nil {
		return os.Stdout.Write(p)
	}
	return s.Dst.Write(p)
}

func (s *Sink) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Sink) print(t time.Time, line []byte) {
	if s.Grep != nil && !s.Grep.Match(line) {
		return
	}
	fmt.Fprintf(s, "%s %s", t.Format(time.RFC3339), line)
}

// IncrementCounter prints the counter delta.
func (s *Sink) IncrementCounter(name string, delta int64) {
	line := make([]byte, 0, len(name)+24)
	line = append(line, name...)
	line = append(line, ':')
	if delta >= 0 {
		line = append(line, '+')
	}
	line = strconv.AppendInt(line, delta, 10)
	line = append(line, '|', 'c', '\n')
	s.print(s.now(), line)
}

// Timeseries returns a handle printing every flushed (sum, count) pair.
func (s *Sink) Timeseries(name string) tlstats.TimeseriesHandle {
	return tsHandle{sink: s, name: name}
}

// ExportTimeseries is a no-op: export registrations carry no delta.
func (s *Sink) ExportTimeseries(string, ...tlstats.ExportType) {}

// Histogram returns a handle printing the totals of every merge.
func (s *Sink) Histogram(name string, config tlstats.HistogramConfig) (tlstats.HistogramHandle, error) {
	return histHandle{sink: s, name: name, config: config}, nil
}

// ExportHistogram is a no-op: export registrations carry no delta.
func (s *Sink) ExportHistogram(string, ...tlstats.ExportType) {}

// ExportPercentile is a no-op: export registrations carry no delta.
func (s *Sink) ExportPercentile(string, ...int) {}

func appendPair(line []byte, name string, sum, count int64, kind byte) []byte {
	line = append(line, name...)
	line = append(line, ":sum="...)
	line = strconv.AppendInt(line, sum, 10)
	line = append(line, ",count="...)
	line = strconv.AppendInt(line, count, 10)
	line = append(line, '|', kind, '\n')
	return line
}

type tsHandle struct {
	sink *Sink
	name string
}

func (h tsHandle) AddValueAggregated(now time.Time, sum, count int64) {
	h.sink.print(now, appendPair(nil, h.name, sum, count, 't'))
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
		panic(fmt.Sprintf("debugsink: merge of a foreign accumulator type %T", acc))
	}
	h.sink.print(now, appendPair(nil, h.name, a.sum, a.count, 'h'))
}

type accumulator struct {
	sum   int64
	count int64
}

func (a *accumulator) AddValue(value int64) {
	a.AddRepeatedValue(value, 1)
}

func (a *accumulator) AddRepeatedValue(value, n int64) {
	a.sum += value * n
	a.count += n
}

func (a *accumulator) Clear() {
	a.sum = 0
	a.count = 0
}
