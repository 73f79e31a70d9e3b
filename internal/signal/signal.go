// Package signal implements signal delivery (spec C12): send, mask,
// action install, dispatch into a user-visible frame, sigsuspend, and
// sigtimedwait. Grounded on XytherOS's kernel/sys/signal (thread_kill /
// dispatch_pending_signal's deliverable-set computation) and on biscuit's
// SIGKILL/SIGSTOP-cannot-be-masked restriction.
package signal

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// Signal numbers the kernel core recognizes (spec glossary), a subset of
// the POSIX set relevant to default-disposition handling.
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGQUIT = 3
	SIGILL  = 4
	SIGTRAP = 5
	SIGABRT = 6
	SIGBUS  = 7
	SIGFPE  = 8
	SIGKILL = 9
	SIGUSR1 = 10
	SIGSEGV = 11
	SIGUSR2 = 12
	SIGPIPE = 13
	SIGALRM = 14
	SIGTERM = 15
	SIGCHLD = 17
	SIGCONT = 18
	SIGSTOP = 19
	SIGTSTP = 20
	SIGTTIN = 21
	SIGTTOU = 22
)

// NestedDepth bounds how many signal frames may be stacked on one thread's
// UserContextChain before Dispatch gives up and terminates it (spec 4.6's
// ARCH_NSIG_NESTED).
const NestedDepth = 8

// sigprocmask how values.
const (
	SigBlock = iota
	SigUnblock
	SigSetMask
)

// DefaultAction is the built-in disposition applied when a signal's action
// is SIG_DFL (spec 4.6 step 4).
type DefaultAction int

const (
	DefaultTerminate DefaultAction = iota
	DefaultStop
	DefaultContinue
	DefaultIgnore
)

// DefaultFor reports the built-in disposition for signo absent an
// installed handler.
func DefaultFor(signo int) DefaultAction {
	switch signo {
	case SIGCHLD:
		return DefaultIgnore
	case SIGSTOP, SIGTSTP, SIGTTIN, SIGTTOU:
		return DefaultStop
	case SIGCONT:
		return DefaultContinue
	default:
		return DefaultTerminate
	}
}

// maskable reports whether signo may ever appear in a mask or have its
// action changed (spec 4.6: SIGKILL/SIGSTOP are immune to both).
func maskable(signo int) bool {
	return signo != SIGKILL && signo != SIGSTOP
}

// unmaskableSet is {SIGKILL, SIGSTOP} as a SigSet, used by SigTimedWait's
// pending_in_set computation (spec 4.6).
func unmaskableSet() kthread.SigSet {
	return kthread.SigSet(0).Set(SIGKILL).Set(SIGSTOP)
}

// wake detaches target from whatever wait queue it is parked on (if any)
// and reschedules it with reason WakeSignal, mirroring sched.Cancel's
// detach-and-wake pattern (wait-queue lock held across the whole detach and
// state transition, target's own lock nested inside it) but triggered by
// signal delivery instead of cancellation.
func wake(s *sched.Scheduler, by *kthread.Thread, target *kthread.Thread) {
	target.Lock(s.CPU())
	backPtr := target.WaitQueueBackPtr
	blocked := target.State() == kthread.Sleep || target.State() == kthread.Stopped
	target.Unlock(s.CPU())

	if !blocked || backPtr == nil {
		return
	}
	wq, ok := backPtr.(*waitqueue.WaitQueue)
	if !ok {
		return
	}

	wq.Lock(s.CPU(), by.Owner())
	target.Lock(s.CPU())
	if target.WaitQueueBackPtr != wq || !target.WaitNode.Linked() {
		target.Unlock(s.CPU())
		wq.Unlock(s.CPU(), by.Owner())
		return
	}
	wq.Remove(&target.WaitNode)
	target.WaitQueueBackPtr = nil
	target.WakeupReason = kthread.WakeSignal
	target.SetState(kthread.Ready)
	target.Unlock(s.CPU())
	wq.Unlock(s.CPU(), by.Owner())

	s.Enqueue(target)
}

// Kill implements kill_thread: enqueues siginfo on target's per-thread
// queue, sets its pending bit, and wakes it with reason SIGNAL if it is
// currently blocked (spec 4.6). by is the sending thread, used only to
// identify the caller to any wait-queue lock touched while waking target.
func Kill(s *sched.Scheduler, by *kthread.Thread, target *kthread.Thread, signo int, value int64) kerr.Errno {
	if signo <= 0 || signo >= kthread.NSIG {
		return kerr.EINVAL
	}
	target.Lock(s.CPU())
	target.PushSiginfo(kthread.Siginfo{Signo: signo, SenderPID: by.Pid, Value: value})
	target.Unlock(s.CPU())

	wake(s, by, target)
	return 0
}

// KillGroup implements the thread-group send: it picks a member that does
// not mask signo and delivers to it via Kill. It reports kerr.ESRCH if no
// member is eligible.
func KillGroup(s *sched.Scheduler, by *kthread.Thread, group *kthread.Group, signo int, value int64) kerr.Errno {
	if signo <= 0 || signo >= kthread.NSIG {
		return kerr.EINVAL
	}
	for _, m := range group.Members() {
		m.Lock(s.CPU())
		masked := m.SigMask.Has(signo)
		m.Unlock(s.CPU())
		if !masked {
			return Kill(s, by, m, signo, value)
		}
	}
	return kerr.ESRCH
}

// SigProcMask implements sigprocmask(2): how is one of SigBlock, SigUnblock,
// SigSetMask. set/oset follow the libc convention: either may be nil.
// SIGKILL and SIGSTOP can never be added to the mask (spec 4.6). SigMask is
// a thread field (spec §5), so it is only ever read or mutated under t's own
// lock, matching Kill's discipline for the other per-thread signal fields.
func SigProcMask(t *kthread.Thread, how int, set *kthread.SigSet, oset *kthread.SigSet) kerr.Errno {
	t.Lock(nil)
	defer t.Unlock(nil)

	if oset != nil {
		*oset = t.SigMask
	}
	if set == nil {
		return 0
	}
	req := filterMaskable(*set)
	switch how {
	case SigBlock:
		t.SigMask |= req
	case SigUnblock:
		t.SigMask &^= req
	case SigSetMask:
		t.SigMask = req
	default:
		return kerr.EINVAL
	}
	return 0
}

func filterMaskable(set kthread.SigSet) kthread.SigSet {
	return set &^ unmaskableSet()
}

// SigAction implements sigaction(2) against a thread group's shared action
// table. by is the calling thread, used only to identify the caller to the
// group's signal-descriptor lock. It rejects reconfiguration of
// SIGKILL/SIGSTOP. Installing SigIgnore flushes queued siginfo for signo
// from both scopes and clears the pending bit everywhere (spec 4.6).
func SigAction(by *kthread.Thread, group *kthread.Group, signo int, act *kthread.Action, oldact *kthread.Action) kerr.Errno {
	if signo <= 0 || signo >= kthread.NSIG {
		return kerr.EINVAL
	}
	if !maskable(signo) && act != nil {
		return kerr.EINVAL
	}

	group.Signals.Lock.Lock(nil, by.Owner(), "signal/signal.go", 0)
	defer group.Signals.Lock.Unlock(nil, by.Owner())

	if oldact != nil {
		*oldact = group.Signals.Action[signo]
	}
	if act == nil {
		return 0
	}
	group.Signals.Action[signo] = *act
	if act.Disposition == kthread.SigIgnore {
		group.Signals.FlushSiginfo(signo)
		for _, m := range group.Members() {
			m.Lock(nil)
			m.FlushSiginfo(signo)
			m.Unlock(nil)
		}
	}
	return 0
}
