// Package ksync implements the blocking synchronization primitives (spec
// C11): a recursive mutex, a condition variable, a writer-preferring rwlock,
// and a semaphore-like await-event. All four are built exclusively on
// sched.Scheduler's wait/wakeup contract, grounded on XytherOS's
// kernel/sync/mutex.c, kernel/sync/cond.c, and src/kernel/sync/rwlock.c.
package ksync

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// Mutex is a recursive, sleep-based mutual-exclusion lock (spec 4.5): lock
// spins a guard; on contention the caller blocks on waitq, releasing the
// guard across the sleep; unlock decrements the recursion count and, once
// it reaches zero, wakes one waiter from the head.
type Mutex struct {
	guard    *spinlock.Spinlock
	waitq    *waitqueue.WaitQueue
	locked   bool
	recurs   int
	owner    spinlock.Owner
	hasOwner bool
}

// NewMutex returns an unlocked mutex tagged with a diagnostic name.
func NewMutex(name string) *Mutex {
	return &Mutex{
		guard: spinlock.New(name + ".guard"),
		waitq: waitqueue.New(name + ".waitq"),
	}
}

// Lock acquires m on behalf of t, blocking on sched if it is held by another
// thread. Re-acquiring while already the owner is a fatal violation (spec
// 4.5: "if held by self it is a fatal violation for the non-recursive
// variant") — use RecursiveLock for idempotent re-entry.
func (m *Mutex) Lock(s *sched.Scheduler, t *kthread.Thread) {
	m.guard.Lock(s.CPU(), t.Owner(), "ksync/mutex.go", 0)

	if m.locked && m.hasOwner && m.owner == t.Owner() {
		panic("ksync: mutex already held by this thread")
	}
	for m.locked {
		s.Wait(t, m.waitq, kthread.Sleep, waitqueue.Tail, m.guard)
	}

	m.locked = true
	m.recurs = 1
	m.owner = t.Owner()
	m.hasOwner = true

	m.guard.Unlock(s.CPU(), t.Owner())
}

// RecursiveLock allows the current owner to re-enter m, incrementing the
// recursion count instead of blocking (spec §9 supplemented feature:
// XytherOS's mtx_recursive_lock). It blocks as usual if held by a different
// thread.
func (m *Mutex) RecursiveLock(s *sched.Scheduler, t *kthread.Thread) {
	m.guard.Lock(s.CPU(), t.Owner(), "ksync/mutex.go", 0)

	for m.locked && (!m.hasOwner || m.owner != t.Owner()) {
		s.Wait(t, m.waitq, kthread.Sleep, waitqueue.Tail, m.guard)
	}

	m.locked = true
	m.recurs++
	m.owner = t.Owner()
	m.hasOwner = true

	m.guard.Unlock(s.CPU(), t.Owner())
}

// TryLock attempts a non-blocking acquisition and reports success.
func (m *Mutex) TryLock(s *sched.Scheduler, t *kthread.Thread) bool {
	m.guard.Lock(s.CPU(), t.Owner(), "ksync/mutex.go", 0)
	defer m.guard.Unlock(s.CPU(), t.Owner())

	if m.locked && m.hasOwner && m.owner == t.Owner() {
		panic("ksync: mutex already held by this thread")
	}
	if m.locked {
		return false
	}
	m.locked = true
	m.recurs = 1
	m.owner = t.Owner()
	m.hasOwner = true
	return true
}

// Unlock releases one level of recursion; once the count reaches zero the
// mutex is freed and one waiter (if any) is woken from the head.
func (m *Mutex) Unlock(s *sched.Scheduler, t *kthread.Thread) {
	m.guard.Lock(s.CPU(), t.Owner(), "ksync/mutex.go", 0)

	if !m.locked || !m.hasOwner || m.owner != t.Owner() {
		panic("ksync: unlock of mutex not held by this thread")
	}
	if m.recurs <= 0 {
		panic("ksync: mutex invalid recursion")
	}

	m.recurs--
	if m.recurs == 0 {
		m.locked = false
		m.hasOwner = false
		m.owner = spinlock.Owner{}
		s.Wakeup(t.Owner(), m.waitq, kthread.WakeNormal, waitqueue.Head)
	}

	m.guard.Unlock(s.CPU(), t.Owner())
}

// IsLockedBy reports whether t currently holds m.
func (m *Mutex) IsLockedBy(s *sched.Scheduler, t *kthread.Thread) bool {
	m.guard.Lock(s.CPU(), t.Owner(), "ksync/mutex.go", 0)
	defer m.guard.Unlock(s.CPU(), t.Owner())
	return m.locked && m.hasOwner && m.owner == t.Owner()
}

// AssertLocked panics if t does not currently hold m.
func (m *Mutex) AssertLocked(s *sched.Scheduler, t *kthread.Thread) {
	if !m.IsLockedBy(s, t) {
		panic("ksync: must hold mutex")
	}
}
