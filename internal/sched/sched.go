// Package sched implements the per-CPU multi-level feedback queue
// scheduler (spec C9): enqueue/yield/block/wake, timeslice accounting, and
// cancellation. Grounded on XytherOS's kernel/sys/sched/sched.c
// (current_assert_locked / cpu_swap_preepmpt / sched_wait / sched_wakeup)
// and on biscuit's priority-decay-on-voluntary-block discipline.
//
// Each kernel thread is backed by exactly one goroutine (package
// ctxswitch); Schedule is called by that goroutine on its own behalf and
// only returns once something later resumes this thread, which is the
// direct hosted analogue of "schedule() is only called with exactly one
// lock held (the current thread's), and returns with that same lock held"
// (spec §4.4 ordering invariant).
package sched

import (
	"fmt"

	"github.com/Emment-Yamikani/xytheros-go/internal/ctxswitch"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/klog"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
	"go.uber.org/zap"
)

// NLevels is the default number of MLFQ priority levels (0 low, NLevels-1 high).
const NLevels = 4

// DefaultQuantum is the default per-level timeslice, in ticks.
const DefaultQuantum = 10

// Scheduler is one CPU's MLFQ run-queue set.
type Scheduler struct {
	cpu     *spinlock.CPU
	levels  []*waitqueue.WaitQueue
	quanta  []int
	idle    *kthread.Thread
	current *kthread.Thread
	log     *zap.SugaredLogger
}

// New returns a scheduler for one logical CPU with nlevels MLFQ levels,
// each given quantum ticks per dispatch, and an idle thread dispatched
// whenever every level is empty.
func New(cpuID int, nlevels int, quantum int, idle *kthread.Thread) *Scheduler {
	if nlevels <= 0 {
		nlevels = NLevels
	}
	s := &Scheduler{
		cpu:  spinlock.NewCPU(cpuID),
		idle: idle,
		log:  klog.New("sched"),
	}
	s.levels = make([]*waitqueue.WaitQueue, nlevels)
	s.quanta = make([]int, nlevels)
	for i := range s.levels {
		s.levels[i] = waitqueue.New(fmt.Sprintf("runqueue.level%d", i))
		s.quanta[i] = quantum
	}
	idle.Sched.Priority = 0
	idle.Sched.Timeslice = quantum
	s.current = idle
	return s
}

// CPU returns the per-CPU preemption-nesting tracker backing this scheduler.
func (s *Scheduler) CPU() *spinlock.CPU { return s.cpu }

// Current returns the thread currently dispatched on this CPU.
func (s *Scheduler) Current() *kthread.Thread { return s.current }

func (s *Scheduler) clampLevel(p int) int {
	if p < 0 {
		return 0
	}
	if p >= len(s.levels) {
		return len(s.levels) - 1
	}
	return p
}

// Enqueue places t on the run queue matching its clamped priority level,
// per spec 4.4.
func (s *Scheduler) Enqueue(t *kthread.Thread) {
	lvl := s.clampLevel(t.Sched.Priority)
	rq := s.levels[lvl]
	rq.Lock(s.cpu, t.Owner())
	t.Sched.Timeslice = s.quanta[lvl]
	rq.Enqueue(&t.WaitNode, waitqueue.Tail)
	rq.Unlock(s.cpu, t.Owner())
}

// pickNext scans levels high to low and dequeues the head of the first
// non-empty one, falling back to the idle thread. by identifies the calling
// thread so contending lockers never collide on a shared anonymous owner
// identity (which would otherwise misfire the spinlock's double-acquire
// check for two genuinely distinct concurrent callers).
func (s *Scheduler) pickNext(by spinlock.Owner) *kthread.Thread {
	for i := len(s.levels) - 1; i >= 0; i-- {
		rq := s.levels[i]
		rq.Lock(nil, by)
		n := rq.Dequeue(waitqueue.Head)
		rq.Unlock(nil, by)
		if n != nil {
			return n.Owner.(*kthread.Thread)
		}
	}
	return s.idle
}

// Schedule is the scheduler's re-entry point (spec 4.4's schedule()): it
// asserts t is locked, applies the priority-decay policy, picks the next
// thread to run, and context-switches into it. It returns only once t is
// later rescheduled, still holding t's own lock.
func (s *Scheduler) Schedule(t *kthread.Thread) {
	t.AssertLocked()

	if t.TestFlag(kthread.FlagWake) {
		t.MaskFlag(kthread.FlagWake | kthread.FlagParked)
		return
	}

	// Timeslice policy (spec 4.4): if the outgoing thread did not exhaust
	// its quantum, its priority decays by one (bounded at zero). A thread
	// preempted by the tick (timeslice == 0) stays at its current level.
	if t.Sched.Timeslice > 0 && t.Sched.Priority > 0 {
		t.Sched.Priority--
	}

	next := s.pickNext(t.Owner())
	if next == t {
		// Nothing else runnable: re-dispatch self immediately without a
		// context switch; the timeslice was already refreshed by Enqueue
		// if t re-enqueued itself before calling Schedule.
		return
	}

	prev := s.current
	s.current = next
	ctxswitch.Switch(prev.SavedContext, next.SavedContext)
}

// Yield implements sched_yield: the calling thread gives up the CPU
// voluntarily, enters READY, and re-enters the scheduler.
func (s *Scheduler) Yield(t *kthread.Thread) {
	t.Lock(s.cpu)
	t.SetState(kthread.Ready)
	s.Enqueue(t)
	s.Schedule(t)
	t.Unlock(s.cpu)
}

// checkInterruption reports EINTR if t has been canceled or has an
// unmasked signal pending, per spec §5 ("a target thread observes
// cancellation only at its next interruption check").
func checkInterruption(t *kthread.Thread) kerr.Errno {
	if t.Canceled() {
		return kerr.EINTR
	}
	if uint64(t.SigPending) & ^uint64(t.SigMask) != 0 {
		return kerr.EINTR
	}
	return 0
}

// Wait implements sched_wait: blocks t on wq in state (Sleep or Stopped),
// optionally releasing extLock across the sleep and reacquiring it before
// returning. It returns kerr.EINTR immediately (without sleeping) if an
// interruption is already pending, and re-checks after waking.
func (s *Scheduler) Wait(t *kthread.Thread, wq *waitqueue.WaitQueue, state kthread.State, whence waitqueue.Whence, extLock *spinlock.Spinlock) kerr.Errno {
	if state != kthread.Sleep && state != kthread.Stopped {
		return kerr.EINVAL
	}

	wq.Lock(s.cpu, t.Owner())
	t.Lock(s.cpu)

	if err := checkInterruption(t); err != 0 {
		t.Unlock(s.cpu)
		wq.Unlock(s.cpu, t.Owner())
		return err
	}

	wq.Enqueue(&t.WaitNode, whence)
	t.WaitQueueBackPtr = wq
	t.SetState(state)
	wq.Unlock(s.cpu, t.Owner())
	if extLock != nil {
		extLock.Unlock(s.cpu, t.Owner())
	}

	s.Schedule(t)

	t.Unlock(s.cpu)
	if extLock != nil {
		extLock.Lock(s.cpu, t.Owner(), "sched/sched.go", 0)
	}
	return checkInterruption(t)
}

// Wakeup implements sched_wakeup: under wq's lock, picks one thread from wq
// (head or tail), locks it, detaches it, clears its wait-queue back pointer
// and stamps reason -- all before releasing wq's lock, per spec 4.4's
// "under queue lock, picks a thread ... locks it; detaches it" ordering.
// It reports the woken thread, or nil if wq was empty. by identifies the
// calling thread to the wait queue's lock.
func (s *Scheduler) Wakeup(by spinlock.Owner, wq *waitqueue.WaitQueue, reason kthread.WakeupReason, whence waitqueue.Whence) *kthread.Thread {
	wq.Lock(s.cpu, by)
	n := wq.Dequeue(whence)
	if n == nil {
		wq.Unlock(s.cpu, by)
		return nil
	}
	t := n.Owner.(*kthread.Thread)

	t.Lock(s.cpu)
	t.WaitQueueBackPtr = nil
	if t.TestFlag(kthread.FlagParked) {
		t.MaskFlag(kthread.FlagParked)
		t.SetFlag(kthread.FlagWake)
	}
	t.WakeupReason = reason
	t.SetState(kthread.Ready)
	t.Unlock(s.cpu)
	wq.Unlock(s.cpu, by)

	s.Enqueue(t)
	return t
}

// WakeupAll wakes every thread currently on wq. by identifies the calling
// thread to the wait queue's lock.
func (s *Scheduler) WakeupAll(by spinlock.Owner, wq *waitqueue.WaitQueue, reason kthread.WakeupReason) {
	for {
		wq.Lock(s.cpu, by)
		empty := wq.Empty()
		wq.Unlock(s.cpu, by)
		if empty {
			return
		}
		if s.Wakeup(by, wq, reason, waitqueue.Head) == nil {
			return
		}
	}
}

// Tick is called from the preemption-tick handler (spec 4.4, §4.9):
// decrements the running thread's timeslice and reports whether it has
// been exhausted, meaning the next return-to-userland or voluntary block
// must call Yield.
func (s *Scheduler) Tick(t *kthread.Thread) (shouldYield bool) {
	t.Lock(s.cpu)
	defer t.Unlock(s.cpu)
	if t.Sched.Timeslice > 0 {
		t.Sched.Timeslice--
	}
	return t.Sched.Timeslice == 0
}

// Cancel implements thread_cancel: sets target's CANCELED flag and, if it
// is currently parked on a wait queue, detaches and wakes it with reason
// WakeSignal so it observes cancellation at its next interruption check
// (spec 4.4). The detach-and-wake sequence holds the wait queue's lock for
// its entire duration with target's own lock nested inside it (spec 4.4's
// "under queue lock ... locks it; detaches it" ordering), so a concurrent
// Wakeup on the same queue can never unlink the node out from under this
// call or re-enqueue the same WaitNode twice. by identifies the calling
// thread (the one invoking thread_cancel) to the wait queue's lock.
func (s *Scheduler) Cancel(by spinlock.Owner, target *kthread.Thread) kerr.Errno {
	target.Lock(s.cpu)
	target.SetFlag(kthread.FlagCanceled)
	backPtr := target.WaitQueueBackPtr
	target.Unlock(s.cpu)

	if backPtr == nil {
		return 0
	}
	wq, ok := backPtr.(*waitqueue.WaitQueue)
	if !ok {
		return 0
	}

	wq.Lock(s.cpu, by)
	target.Lock(s.cpu)
	// Re-check under both locks: target may have already been woken (and
	// possibly re-parked on a different queue) between the peek above and
	// this acquisition.
	if target.WaitQueueBackPtr != wq || !target.WaitNode.Linked() {
		target.Unlock(s.cpu)
		wq.Unlock(s.cpu, by)
		return 0
	}
	wq.Remove(&target.WaitNode)
	target.WaitQueueBackPtr = nil
	target.WakeupReason = kthread.WakeSignal
	target.SetState(kthread.Ready)
	target.Unlock(s.cpu)
	wq.Unlock(s.cpu, by)

	s.Enqueue(target)
	return 0
}
