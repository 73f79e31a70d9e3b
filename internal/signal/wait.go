package signal

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/ktimer"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// SuspendQueue is the dedicated wait queue sigsuspend blocks callers on
// (spec 4.6). It carries no wake logic of its own: a blocked suspender is
// roused the same way any other blocked thread is -- Kill's generic
// detach-and-wake path -- so this type only needs to exist as a parking
// spot distinct from a thread's other wait queues.
type SuspendQueue struct {
	waitq *waitqueue.WaitQueue
}

// NewSuspendQueue returns an empty suspend queue.
func NewSuspendQueue() *SuspendQueue {
	return &SuspendQueue{waitq: waitqueue.New("signal.suspend")}
}

// SigSuspend implements sigsuspend(2) (spec 4.6): atomically swaps t's mask
// to mask, blocks until any signal unmasked by the new mask is delivered,
// then restores the previous mask and returns kerr.EINTR. A signal already
// pending under the new mask at the moment of the swap is observed without
// ever sleeping (scenario 5's atomicity requirement), because the first
// Wait call re-checks pending-vs-mask under the thread's own lock before
// parking.
func (sq *SuspendQueue) SigSuspend(s *sched.Scheduler, t *kthread.Thread, mask kthread.SigSet) kerr.Errno {
	t.Lock(s.CPU())
	old := t.SigMask
	t.SigMask = mask
	t.Unlock(s.CPU())

	defer func() {
		t.Lock(s.CPU())
		t.SigMask = old
		t.Unlock(s.CPU())
	}()

	for {
		if err := s.Wait(t, sq.waitq, kthread.Sleep, waitqueue.Tail, nil); err != 0 {
			return kerr.EINTR
		}
		// Spurious wakeup with nothing deliverable: re-check and re-block.
		if deliverableSet(s, t, t.Group) != 0 {
			return kerr.EINTR
		}
	}
}

// pollSet scans set (thread queue first, then group queue) for the first
// signo with a queued siginfo, dequeuing and returning it. The thread-queue
// pop runs under t's own lock, matching Kill's/dequeue's discipline for
// mutating sigQueues/SigPending.
func pollSet(s *sched.Scheduler, t *kthread.Thread, group *kthread.Group, set kthread.SigSet) (int, kthread.Siginfo, bool) {
	for signo := 1; signo < kthread.NSIG; signo++ {
		if !set.Has(signo) {
			continue
		}
		t.Lock(s.CPU())
		si, ok := t.PopSiginfo(signo)
		t.Unlock(s.CPU())
		if ok {
			return signo, si, true
		}
		if group != nil {
			group.Signals.Lock.Lock(nil, t.Owner(), "signal/wait.go", 0)
			si, ok := group.Signals.PopSiginfo(signo)
			group.Signals.Lock.Unlock(nil, t.Owner())
			if ok {
				return signo, si, true
			}
		}
	}
	return 0, kthread.Siginfo{}, false
}

// SigTimedWait implements sigtimedwait(2) (spec 4.6): computes
// set \ {SIGKILL, SIGSTOP}, polls per-thread then per-group queues for a
// member, and if none is pending yields until one arrives or the jiffies
// deadline elapses. A zero duration polls exactly once and returns
// kerr.EAGAIN if nothing was deliverable (spec §8's {0,0} boundary case).
func SigTimedWait(s *sched.Scheduler, t *kthread.Thread, clock *ktimer.Clock, set kthread.SigSet, d ktimer.Duration) (signo int, si kthread.Siginfo, err kerr.Errno) {
	pendingSet := set &^ unmaskableSet()
	deadline := clock.Jiffies() + clock.ToTicks(d)

	for {
		if signo, si, ok := pollSet(s, t, t.Group, pendingSet); ok {
			return signo, si, 0
		}
		if clock.Jiffies() >= deadline {
			return 0, kthread.Siginfo{}, kerr.EAGAIN
		}
		if t.Canceled() {
			return 0, kthread.Siginfo{}, kerr.EINTR
		}
		s.Yield(t)
	}
}
