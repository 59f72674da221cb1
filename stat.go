package tlstats

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrOrphaned is the error wrapped by operations that need the scope of a
// stat whose scope has already been closed. Orphaned stats keep accepting
// local updates, but anything that must reach the sink through the scope
// reports this instead.
var ErrOrphaned = errors.New("stat is orphaned")

// A Stat is a single named statistic registered with a Scope. The concrete
// kinds are Counter, Timeseries and Histogram; they share the lifecycle
// implemented here: a stat becomes visible to aggregation as the very last
// step of its construction, and invisible as the very first step of its
// teardown, so no aggregation pass can ever observe a half-built or
// half-destroyed object.
type Stat interface {
	// Name returns the name the stat aggregates under.
	Name() string

	// Aggregate drains the stat's pending delta and applies it to the
	// scope's sink at timestamp now. Aggregating an orphaned stat is a
	// no-op: the pending delta stays put.
	Aggregate(now time.Time)

	// Close flushes the pending delta and unregisters the stat from its
	// scope. Closing an already closed or orphaned stat is a no-op.
	Close() error

	base() *tlstat
}

// containerAndLock pairs a stat's nullable back-reference to its owning scope
// with the per-stat guard serializing access to the stat's local state. The
// back-reference and the scope's registered set change together, only while
// the scope lock is held.
type containerAndLock struct {
	guard sync.Locker
	scope *Scope // nil once orphaned or closed; read and written under guard
}

// tlstat is the base embedded by every stat kind: the immutable name, the
// container-and-lock pair, and the registration, teardown and move protocol
// shared by all kinds.
type tlstat struct {
	cl     containerAndLock
	name   string
	policy Policy
}

// Name returns the name the stat aggregates under.
func (s *tlstat) Name() string { return s.name }

func (s *tlstat) base() *tlstat { return s }

// init binds the stat-to-be to scope's policy and name. Kind constructors
// call it first, build their local state, and call postInit last.
func (s *tlstat) init(scope *Scope, name string) {
	if scope == nil {
		panic("tlstats: stat constructed with a nil scope")
	}
	s.name = name
	s.policy = scope.policy
	s.cl.guard = scope.policy.NewStatGuard()
}

// postInit registers the stat with scope, making it visible to Aggregate.
// It must be the very last step of every concrete constructor.
func (s *tlstat) postInit(scope *Scope, self Stat) {
	scope.registerStat(self)
}

// preDestroy unregisters the stat, making it invisible to Aggregate. It must
// run before any stat state is torn down, and tolerates stats that already
// lost their scope.
func (s *tlstat) preDestroy() {
	scope := s.container()
	if scope == nil {
		return
	}
	scope.unregisterStat(s)
}

// closeStat implements Close for the kinds: flush whatever is pending, then
// unregister.
func (s *tlstat) closeStat(self Stat) {
	self.Aggregate(time.Now())
	s.preDestroy()
}

// container returns the current back-reference, nil once the stat is
// orphaned or closed.
func (s *tlstat) container() *Scope {
	s.cl.guard.Lock()
	scope := s.cl.scope
	s.cl.guard.Unlock()
	return scope
}

// checkContainer returns the owning scope, or a descriptive error wrapping
// ErrOrphaned. It is the one place where orphan access surfaces as a
// reportable error.
func (s *tlstat) checkContainer(op string) (*Scope, error) {
	if scope := s.container(); scope != nil {
		return scope, nil
	}
	return nil, fmt.Errorf("tlstats: %s %q: %w", op, s.name, ErrOrphaned)
}

// clearContainer severs the back-reference and returns the scope it pointed
// to. Called by Scope.Close, with the scope lock held, on every stat still
// registered.
func (s *tlstat) clearContainer() *Scope {
	s.cl.guard.Lock()
	scope := s.cl.scope
	s.cl.scope = nil
	s.cl.guard.Unlock()
	return scope
}

// initMove prepares the receiver as the move-construction target of other:
// it takes over the name and policy and mints a fresh guard. The kind
// constructor transfers its local state next and calls finishMove last.
func (s *tlstat) initMove(other *tlstat) {
	s.name = other.name
	s.policy = other.policy
	s.cl.guard = other.policy.NewStatGuard()
}

// finishMove re-points the registration from old to self as the very last
// step of move construction. Membership and both back-references change
// inside a single scope-lock critical section, so there is no window where
// neither object is registered. If old is orphaned, self ends up orphaned
// too.
func (s *tlstat) finishMove(old *tlstat, self Stat) {
	scope := old.container()
	if scope == nil {
		return
	}
	scope.swapRegisteredStat(old, self)
}

// moveAssignment implements the move-assignment protocol shared by the stat
// kinds:
//
//  1. a self-move returns immediately;
//  2. the destination is flushed and unregistered;
//  3. the source is flushed and unregistered;
//  4. moveContents transfers the kind-specific local state;
//  5. the destination, now holding the moved state and the source's name,
//     registers with the source's former scope.
//
// Both flushes share one timestamp. No other goroutine may touch either stat
// during the move; the caller provides that synchronization.
func (s *tlstat) moveAssignment(self, other Stat, moveContents func()) {
	ob := other.base()
	if s == ob {
		return
	}
	now := time.Now()
	self.Aggregate(now)
	s.preDestroy()
	scope := ob.container()
	other.Aggregate(now)
	ob.preDestroy()
	s.name = ob.name
	moveContents()
	if scope != nil {
		scope.registerStat(self)
	}
}
