package tlstats

import "time"

// The Stopwatch type records durations, in milliseconds, into a histogram.
//
// Stopwatches are useful to measure the duration taken by sequential
// execution steps and therefore aren't safe to be used concurrently by
// multiple goroutines.
type Stopwatch struct {
	hist *Histogram
	last time.Time
}

// Start returns a stopwatch recording into h, started now.
func (h *Histogram) Start() *Stopwatch {
	return h.StartAt(time.Now())
}

// StartAt returns a stopwatch recording into h, started at now.
func (h *Histogram) StartAt(now time.Time) *Stopwatch {
	return &Stopwatch{hist: h, last: now}
}

// Lap records the time elapsed since the last call to Lap (or since the
// stopwatch was started) and starts the next lap.
func (s *Stopwatch) Lap() {
	s.LapAt(time.Now())
}

// LapAt records the time elapsed between now and the last call to LapAt (or
// the stopwatch start) and starts the next lap.
func (s *Stopwatch) LapAt(now time.Time) {
	s.hist.AddValue(durationMillis(now.Sub(s.last)))
	s.last = now
}

// Stop records the time elapsed since the last lap. The stopwatch may be
// restarted afterwards by calling Lap again.
func (s *Stopwatch) Stop() {
	s.StopAt(time.Now())
}

// StopAt records the time elapsed between now and the last lap.
func (s *Stopwatch) StopAt(now time.Time) {
	s.LapAt(now)
}

func durationMillis(d time.Duration) int64 {
	return int64(d / time.Millisecond)
}
