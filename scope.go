package tlstats

import "time"

// A Scope owns the stats of one execution context and aggregates them into a
// shared sink. The typical arrangement gives each worker goroutine its own
// Scope with the ExclusiveAffinity policy, so the hot path — recording a
// sample on a stat — takes no lock and performs no name lookup; a periodic
// Aggregate pass folds the accumulated deltas into the sink.
//
// The scope does not own its stats: it only tracks which ones are currently
// registered. Constructing a stat registers it, closing a stat unregisters
// it, and closing the scope orphans whatever is still registered without
// flushing it.
type Scope struct {
	sink   Sink
	policy Policy
	mu     ScopeLock
	stats  map[*tlstat]Stat // nil once the scope is closed
}

// NewScope returns a scope that aggregates into sink under the given
// concurrency policy. A nil policy selects SharedAccess. The sink reference
// is fixed for the scope's lifetime; passing a nil sink is a programming
// error and panics.
func NewScope(sink Sink, policy Policy) *Scope {
	if sink == nil {
		panic("tlstats: NewScope called with a nil sink")
	}
	if policy == nil {
		policy = SharedAccess
	}
	return &Scope{
		sink:   sink,
		policy: policy,
		mu:     policy.NewScopeLock(),
		stats:  make(map[*tlstat]Stat),
	}
}

// Sink returns the sink this scope aggregates into.
func (sc *Scope) Sink() Sink { return sc.sink }

// Len returns the number of stats currently registered with the scope.
func (sc *Scope) Len() int {
	sc.mu.Lock()
	n := len(sc.stats)
	sc.mu.Unlock()
	return n
}

// Aggregate drains every registered stat into the sink, stamping the whole
// pass with a single timestamp. The registered set is snapshotted up front
// and the scope lock released before any stat is drained, so registration is
// never blocked behind a slow sink.
//
// Every stat registered when Aggregate begins is drained exactly once,
// except stats concurrently unregistered by another goroutine, which may be
// skipped. Aggregating a closed scope is a no-op.
func (sc *Scope) Aggregate() {
	now := time.Now()
	sc.mu.Lock()
	snapshot := make([]Stat, 0, len(sc.stats))
	for _, st := range sc.stats {
		snapshot = append(snapshot, st)
	}
	sc.mu.Unlock()

	for _, st := range snapshot {
		st.Aggregate(now)
	}
}

// SwapThreads records that ownership of the scope is moving to another
// goroutine. Under ExclusiveAffinity with affinity checks enabled, using a
// scope from a goroutine other than the previous one trips a panic;
// SwapThreads marks the handoff as deliberate. Under SharedAccess it is a
// no-op.
//
// The handoff itself must still be externally synchronized: SwapThreads
// resets the bookkeeping, it does not create a happens-before edge.
func (sc *Scope) SwapThreads() { sc.mu.SwapThreads() }

// Close orphans every stat still registered with the scope, without flushing
// them, and marks the scope closed. Orphaned stats keep accepting updates
// that no longer go anywhere; operations on them that need the scope report
// ErrOrphaned. Close is idempotent, and stats constructed on a closed scope
// are born orphaned.
//
// Callers that want the final deltas must run Aggregate (or close the stats)
// before closing the scope.
func (sc *Scope) Close() error {
	sc.mu.Lock()
	for b := range sc.stats {
		b.clearContainer()
	}
	sc.stats = nil
	sc.mu.Unlock()
	return nil
}

// registerStat adds the stat to the registered set and points its
// back-reference at the scope. On a closed scope the stat is left orphaned.
func (sc *Scope) registerStat(self Stat) {
	b := self.base()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.stats == nil {
		return
	}
	b.cl.guard.Lock()
	b.cl.scope = sc
	b.cl.guard.Unlock()
	sc.stats[b] = self
}

// unregisterStat removes the stat from the registered set and clears its
// back-reference. Safe to call for a stat the scope no longer tracks.
func (sc *Scope) unregisterStat(b *tlstat) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	b.cl.guard.Lock()
	if b.cl.scope == sc {
		b.cl.scope = nil
	}
	b.cl.guard.Unlock()
	delete(sc.stats, b)
}

// swapRegisteredStat atomically replaces old's registration with repl, for
// move construction. If old lost its registration in the meantime, repl is
// left unregistered.
func (sc *Scope) swapRegisteredStat(old *tlstat, repl Stat) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	old.cl.guard.Lock()
	owned := old.cl.scope == sc
	if owned {
		old.cl.scope = nil
	}
	old.cl.guard.Unlock()
	if !owned {
		return
	}
	delete(sc.stats, old)

	b := repl.base()
	b.cl.guard.Lock()
	b.cl.scope = sc
	b.cl.guard.Unlock()
	sc.stats[b] = repl
}

// isRegistered reports whether the stat is currently in the registered set.
// Mainly used for sanity checks in tests.
func (sc *Scope) isRegistered(st Stat) bool {
	sc.mu.Lock()
	_, ok := sc.stats[st.base()]
	sc.mu.Unlock()
	return ok
}
