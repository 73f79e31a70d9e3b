package ksync

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/ktimer"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// Event is a semaphore-like await-event (spec 4.5): threads Await until
// count > 0 or a timeout elapses; Signal increments count and wakes one
// waiter; Broadcast wakes all.
type Event struct {
	guard *spinlock.Spinlock
	waitq *waitqueue.WaitQueue
	count int
}

// NewEvent returns an event with the given initial count.
func NewEvent(name string, count int) *Event {
	return &Event{
		guard: spinlock.New(name + ".guard"),
		waitq: waitqueue.New(name + ".waitq"),
		count: count,
	}
}

// Await blocks t until count > 0, decrementing it on success, or until the
// wait is interrupted. It returns kerr.EINTR if interrupted before count
// became positive.
func (e *Event) Await(s *sched.Scheduler, t *kthread.Thread) kerr.Errno {
	e.guard.Lock(s.CPU(), t.Owner(), "ksync/event.go", 0)
	for e.count <= 0 {
		if err := s.Wait(t, e.waitq, kthread.Sleep, waitqueue.Tail, e.guard); err != 0 {
			e.guard.Unlock(s.CPU(), t.Owner())
			return err
		}
	}
	e.count--
	e.guard.Unlock(s.CPU(), t.Owner())
	return 0
}

// AwaitTimeout behaves like Await but returns kerr.ETIMEDOUT if count has
// not become positive within d, using internal/ktimer's deadline clock.
func (e *Event) AwaitTimeout(s *sched.Scheduler, t *kthread.Thread, clock *ktimer.Clock, d ktimer.Duration) kerr.Errno {
	deadline := clock.Jiffies() + clock.ToTicks(d)
	e.guard.Lock(s.CPU(), t.Owner(), "ksync/event.go", 0)
	for e.count <= 0 {
		if clock.Jiffies() >= deadline {
			e.guard.Unlock(s.CPU(), t.Owner())
			return kerr.ETIMEDOUT
		}
		if err := s.Wait(t, e.waitq, kthread.Sleep, waitqueue.Tail, e.guard); err != 0 {
			e.guard.Unlock(s.CPU(), t.Owner())
			return err
		}
	}
	e.count--
	e.guard.Unlock(s.CPU(), t.Owner())
	return 0
}

// Signal increments count and wakes one waiter.
func (e *Event) Signal(s *sched.Scheduler, by *kthread.Thread) {
	e.guard.Lock(s.CPU(), by.Owner(), "ksync/event.go", 0)
	e.count++
	s.Wakeup(by.Owner(), e.waitq, kthread.WakeNormal, waitqueue.Head)
	e.guard.Unlock(s.CPU(), by.Owner())
}

// Broadcast raises count by the number of current waiters and wakes them
// all, so each woken waiter finds a unit to consume.
func (e *Event) Broadcast(s *sched.Scheduler, by *kthread.Thread) {
	e.guard.Lock(s.CPU(), by.Owner(), "ksync/event.go", 0)
	e.count += e.waitq.Len()
	s.WakeupAll(by.Owner(), e.waitq, kthread.WakeNormal)
	e.guard.Unlock(s.CPU(), by.Owner())
}
