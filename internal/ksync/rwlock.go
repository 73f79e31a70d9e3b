package ksync

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// RWLock is a writer-preferring reader/writer lock (spec 4.5), grounded on
// src/kernel/sync/rwlock.c: readers wait while a writer is active or
// waiting; write_lock waits while any reader or writer is present; on the
// last read_unlock a waiting writer is woken; on write_unlock a waiting
// writer is preferred, otherwise every waiting reader is woken.
type RWLock struct {
	guard    *spinlock.Spinlock
	readersq *waitqueue.WaitQueue
	writersq *waitqueue.WaitQueue
	readers  int
	writer   bool
}

// NewRWLock returns an unlocked rwlock tagged with a diagnostic name.
func NewRWLock(name string) *RWLock {
	return &RWLock{
		guard:    spinlock.New(name + ".guard"),
		readersq: waitqueue.New(name + ".readersq"),
		writersq: waitqueue.New(name + ".writersq"),
	}
}

// ReadLock blocks while a writer is active or a writer is waiting, then
// joins as a reader.
func (rw *RWLock) ReadLock(s *sched.Scheduler, t *kthread.Thread) {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	for rw.writer || rw.writersq.Len() > 0 {
		s.Wait(t, rw.readersq, kthread.Sleep, waitqueue.Tail, rw.guard)
	}
	rw.readers++
	rw.guard.Unlock(s.CPU(), t.Owner())
}

// TryReadLock succeeds only if no writer is active and none is waiting.
func (rw *RWLock) TryReadLock(s *sched.Scheduler, t *kthread.Thread) bool {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	defer rw.guard.Unlock(s.CPU(), t.Owner())
	if rw.writer || rw.writersq.Len() > 0 {
		return false
	}
	rw.readers++
	return true
}

// ReadUnlock releases a read hold; if this was the last reader and a
// writer is waiting, one writer is woken.
func (rw *RWLock) ReadUnlock(s *sched.Scheduler, t *kthread.Thread) {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	rw.readers--
	if rw.readers == 0 && rw.writersq.Len() > 0 {
		s.Wakeup(t.Owner(), rw.writersq, kthread.WakeNormal, waitqueue.Head)
	}
	rw.guard.Unlock(s.CPU(), t.Owner())
}

// WriteLock blocks while any reader or writer is present, then claims the
// write lock.
func (rw *RWLock) WriteLock(s *sched.Scheduler, t *kthread.Thread) {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	for rw.readers > 0 || rw.writer || rw.writersq.Len() > 0 {
		s.Wait(t, rw.writersq, kthread.Sleep, waitqueue.Tail, rw.guard)
	}
	rw.writer = true
	rw.guard.Unlock(s.CPU(), t.Owner())
}

// TryWriteLock succeeds only if no reader or writer is active and no other
// writer is waiting.
func (rw *RWLock) TryWriteLock(s *sched.Scheduler, t *kthread.Thread) bool {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	defer rw.guard.Unlock(s.CPU(), t.Owner())
	if rw.readers > 0 || rw.writer || rw.writersq.Len() > 0 {
		return false
	}
	rw.writer = true
	return true
}

// WriteUnlock releases the write lock, preferentially waking one waiting
// writer; if none is waiting, every waiting reader is woken.
func (rw *RWLock) WriteUnlock(s *sched.Scheduler, t *kthread.Thread) {
	rw.guard.Lock(s.CPU(), t.Owner(), "ksync/rwlock.go", 0)
	rw.writer = false
	if rw.writersq.Len() > 0 {
		s.Wakeup(t.Owner(), rw.writersq, kthread.WakeNormal, waitqueue.Head)
		rw.guard.Unlock(s.CPU(), t.Owner())
		return
	}
	s.WakeupAll(t.Owner(), rw.readersq, kthread.WakeNormal)
	rw.guard.Unlock(s.CPU(), t.Owner())
}
