package tlstats

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// A Policy supplies the synchronization primitives that bind a Scope and its
// stats to one sharing discipline. The stat and scope logic is written once
// against this interface; the policy decides whether the primitives do any
// real work.
//
// Two policies are provided. ExclusiveAffinity performs no locking at all and
// requires every operation on a scope and its stats, including Aggregate, to
// happen on a single goroutine. SharedAccess adds fine-grained locking so
// that Aggregate may run on a different goroutine than the updates, at a
// small per-operation cost.
type Policy interface {
	// NewScopeLock returns the lock guarding a scope's registered set.
	NewScopeLock() ScopeLock

	// NewStatGuard returns the guard serializing access to a single stat's
	// local state and container back-reference.
	NewStatGuard() sync.Locker

	// NewCounterCell returns the additive cell counters accumulate into.
	NewCounterCell() CounterCell
}

// A ScopeLock guards registered-set membership of one scope. SwapThreads
// records a deliberate ownership handoff to another goroutine; it performs no
// synchronization itself, the caller supplies the happens-before edge.
type ScopeLock interface {
	sync.Locker
	SwapThreads()
}

// A CounterCell is the numeric cell behind a Counter's hot path. Under
// SharedAccess the cell is atomic; under ExclusiveAffinity it is a plain
// integer.
type CounterCell interface {
	// Add accumulates delta into the cell.
	Add(delta int64)

	// Drain returns the accumulated value and resets the cell to zero.
	Drain() int64

	// Load returns the accumulated value.
	Load() int64
}

var (
	// ExclusiveAffinity is the policy that performs no locking at all, for
	// the lowest possible update cost. All operations on a scope using this
	// policy, including Aggregate and Close, must be performed from a single
	// goroutine, except across a SwapThreads handoff synchronized by the
	// caller.
	ExclusiveAffinity Policy = exclusivePolicy{}

	// SharedAccess is the policy that synchronizes data access so that
	// Aggregate may be called from other goroutines. Updates to different
	// stats never contend with each other: only the registered set uses the
	// scope-wide lock, each stat's state is protected by its own guard.
	SharedAccess Policy = sharedPolicy{}
)

// AffinityChecks makes scopes using ExclusiveAffinity verify, on every scope
// operation, that they are used from a single goroutine, panicking on a
// violation that SwapThreads did not announce. The check parses goroutine ids
// out of runtime stacks and is far too slow to leave on outside of tests and
// debugging sessions.
//
// It is initialized from the TLSTATS_AFFINITY_CHECKS environment variable.
var AffinityChecks = os.Getenv("TLSTATS_AFFINITY_CHECKS") == "1"

type exclusivePolicy struct{}

func (exclusivePolicy) NewScopeLock() ScopeLock     { return new(affinityLock) }
func (exclusivePolicy) NewStatGuard() sync.Locker   { return nopLocker{} }
func (exclusivePolicy) NewCounterCell() CounterCell { return new(plainCell) }

type sharedPolicy struct{}

func (sharedPolicy) NewScopeLock() ScopeLock     { return new(mutexLock) }
func (sharedPolicy) NewStatGuard() sync.Locker   { return new(sync.Mutex) }
func (sharedPolicy) NewCounterCell() CounterCell { return new(atomicCell) }

// affinityLock is the ExclusiveAffinity scope lock: it takes no lock, and
// when AffinityChecks is on it remembers which goroutine owns the scope and
// panics if another one shows up.
type affinityLock struct {
	owner uint64 // goroutine id, 0 when unclaimed
}

func (l *affinityLock) Lock() {
	if !AffinityChecks {
		return
	}
	id := goroutineID()
	if l.owner == 0 {
		l.owner = id
		return
	}
	if l.owner != id {
		panic(fmt.Sprintf("tlstats: scope owned by goroutine %d used from goroutine %d without SwapThreads", l.owner, id))
	}
}

func (l *affinityLock) Unlock() {}

func (l *affinityLock) SwapThreads() { l.owner = 0 }

// mutexLock is the SharedAccess scope lock; handoffs need no bookkeeping
// because every operation is synchronized anyway.
type mutexLock struct{ sync.Mutex }

func (l *mutexLock) SwapThreads() {}

type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

type plainCell int64

func (c *plainCell) Add(delta int64) { *c += plainCell(delta) }

func (c *plainCell) Drain() int64 {
	v := int64(*c)
	*c = 0
	return v
}

func (c *plainCell) Load() int64 { return int64(*c) }

type atomicCell struct{ v atomic.Int64 }

func (c *atomicCell) Add(delta int64) { c.v.Add(delta) }

func (c *atomicCell) Drain() int64 { return c.v.Swap(0) }

func (c *atomicCell) Load() int64 { return c.v.Load() }

// goroutineID extracts the current goroutine's id from a runtime stack
// header, which looks like "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [32]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	i := strings.IndexByte(s, ' ')
	if i <= 0 {
		return 0
	}
	id, err := strconv.ParseUint(s[:i], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
