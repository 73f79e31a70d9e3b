package ksync

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// Condvar is a condition variable (spec 4.5), grounded on
// kernel/sync/cond.c. count tracks the balance of waiters against wakeups:
// Wait increments it before blocking, Signal decrements it on waking one
// waiter, and Broadcast resets it to 0 (or -1 if nobody was waiting).
type Condvar struct {
	guard *spinlock.Spinlock
	waitq *waitqueue.WaitQueue
	count int
}

// NewCondvar returns an empty condition variable tagged with a diagnostic
// name.
func NewCondvar(name string) *Condvar {
	return &Condvar{
		guard: spinlock.New(name + ".guard"),
		waitq: waitqueue.New(name + ".waitq"),
	}
}

// Wait blocks t on the condition variable. If extLock is non-nil it is
// released across the sleep and reacquired before Wait returns, matching
// cond_wait_releasing. It returns kerr.EINTR if the wait is interrupted.
func (c *Condvar) Wait(s *sched.Scheduler, t *kthread.Thread, extLock *spinlock.Spinlock) kerr.Errno {
	c.guard.Lock(s.CPU(), t.Owner(), "ksync/condvar.go", 0)
	c.count++
	var err kerr.Errno
	if c.count >= 0 {
		if extLock != nil {
			extLock.Unlock(s.CPU(), t.Owner())
		}
		err = s.Wait(t, c.waitq, kthread.Sleep, waitqueue.Tail, c.guard)
		if extLock != nil {
			extLock.Lock(s.CPU(), t.Owner(), "ksync/condvar.go", 0)
		}
	} else {
		c.guard.Unlock(s.CPU(), t.Owner())
	}
	return err
}

// Signal wakes one waiter from the head and decrements count.
func (c *Condvar) Signal(s *sched.Scheduler, by *kthread.Thread) {
	c.guard.Lock(s.CPU(), by.Owner(), "ksync/condvar.go", 0)
	s.Wakeup(by.Owner(), c.waitq, kthread.WakeNormal, waitqueue.Head)
	c.count--
	c.guard.Unlock(s.CPU(), by.Owner())
}

// Broadcast wakes every waiter and resets count to 0, or -1 if there were
// no waiters to wake (spec 4.5).
func (c *Condvar) Broadcast(s *sched.Scheduler, by *kthread.Thread) {
	c.guard.Lock(s.CPU(), by.Owner(), "ksync/condvar.go", 0)
	woken := 0
	for {
		w := s.Wakeup(by.Owner(), c.waitq, kthread.WakeNormal, waitqueue.Head)
		if w == nil {
			break
		}
		woken++
	}
	if woken == 0 {
		c.count = -1
	} else {
		c.count = 0
	}
	c.guard.Unlock(s.CPU(), by.Owner())
}
