package signal

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
)

// Outcome reports what Dispatch did, so the trap-dispatch caller (C14) can
// react: a terminated thread never returns to user mode, a stopped one is
// parked, a continued one may need its parent notified.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDelivered
	OutcomeTerminated
	OutcomeStopped
	OutcomeContinued
)

// deliverableSet computes the deliverable set (spec 4.6 step 1). SigPending
// and SigMask are thread fields (spec §5), so both are read under t's own
// lock, matching Kill's discipline for mutating them.
func deliverableSet(s *sched.Scheduler, t *kthread.Thread, group *kthread.Group) kthread.SigSet {
	var groupPending kthread.SigSet
	if group != nil {
		group.Signals.Lock.Lock(nil, t.Owner(), "signal/dispatch.go", 0)
		groupPending = group.Signals.Pending
		group.Signals.Lock.Unlock(nil, t.Owner())
	}
	t.Lock(s.CPU())
	pending, mask := t.SigPending, t.SigMask
	t.Unlock(s.CPU())
	return (pending | groupPending) &^ mask
}

func lowestSignal(set kthread.SigSet) int {
	for signo := 1; signo < kthread.NSIG; signo++ {
		if set.Has(signo) {
			return signo
		}
	}
	return 0
}

// Dispatch runs the pre-return-to-user-mode algorithm (spec 4.6): computes
// the deliverable set, dequeues one siginfo, resolves its action, and
// either applies a default disposition or builds a signal frame on t's
// user context chain. It loops internally past SIG_IGN entries ("discard
// and recurse") and returns when nothing is deliverable, or after handling
// the first signal whose action is not SIG_IGN (default applied or frame
// built); further pending signals wait for the next call.
func Dispatch(s *sched.Scheduler, t *kthread.Thread) Outcome {
	group := t.Group

	for {
		deliverable := deliverableSet(s, t, group)
		if deliverable == 0 {
			return OutcomeNone
		}

		signo := lowestSignal(deliverable)
		si, ok := dequeue(s, t, group, signo)
		if !ok {
			continue
		}

		action := resolveAction(t, group, signo)

		if action.Disposition == kthread.SigIgnore {
			continue
		}

		if action.Disposition == kthread.SigDefault {
			return applyDefault(s, t, signo)
		}

		if len(t.UserContextChain) >= NestedDepth {
			t.Lock(s.CPU())
			t.SetState(kthread.Zombie)
			t.Unlock(s.CPU())
			return OutcomeTerminated
		}

		buildFrame(s, t, group, signo, si, action)
		return OutcomeDelivered
	}
}

// dequeue pulls one siginfo for signo, thread queue first, else group
// queue, clearing the pending bit at whichever scope emptied (spec 4.6
// step 3). The thread-queue pop runs under t's own lock, matching Kill's
// discipline for mutating sigQueues/SigPending.
func dequeue(s *sched.Scheduler, t *kthread.Thread, group *kthread.Group, signo int) (kthread.Siginfo, bool) {
	t.Lock(s.CPU())
	si, ok := t.PopSiginfo(signo)
	t.Unlock(s.CPU())
	if ok {
		return si, true
	}
	if group != nil {
		group.Signals.Lock.Lock(nil, t.Owner(), "signal/dispatch.go", 0)
		si, ok := group.Signals.PopSiginfo(signo)
		group.Signals.Lock.Unlock(nil, t.Owner())
		if ok {
			return si, true
		}
	}
	return kthread.Siginfo{Signo: signo}, true
}

func resolveAction(t *kthread.Thread, group *kthread.Group, signo int) kthread.Action {
	if group == nil {
		return kthread.Action{Disposition: kthread.SigDefault}
	}
	group.Signals.Lock.Lock(nil, t.Owner(), "signal/dispatch.go", 0)
	defer group.Signals.Lock.Unlock(nil, t.Owner())
	return group.Signals.Action[signo]
}

func applyDefault(s *sched.Scheduler, t *kthread.Thread, signo int) Outcome {
	t.Lock(s.CPU())
	defer t.Unlock(s.CPU())
	switch DefaultFor(signo) {
	case DefaultIgnore:
		return OutcomeNone
	case DefaultStop:
		t.SetState(kthread.Stopped)
		return OutcomeStopped
	case DefaultContinue:
		return OutcomeContinued
	default:
		t.SetState(kthread.Zombie)
		t.ExitCode = 128 + signo
		return OutcomeTerminated
	}
}

// buildFrame constructs the user-visible signal frame (spec 4.6 step 4):
// stack selection, the saved mask, SA_SIGINFO's (signo, siginfo) pair, and
// SA_NODEFER/SA_RESETHAND handling. Trampoline/register-argument
// construction is arch ABI detail out of scope (spec §1); this records the
// logical frame the trap layer needs. The mask/alt-stack read-modify-write
// runs under t's own lock, matching Kill's discipline for thread fields.
func buildFrame(s *sched.Scheduler, t *kthread.Thread, group *kthread.Group, signo int, si kthread.Siginfo, action kthread.Action) {
	t.Lock(s.CPU())
	onAltStack := action.Flags&kthread.SAOnStack != 0 &&
		!t.AltSignalStack.Disable &&
		!t.AltSignalStack.OnStack

	uc := &kthread.UserContext{
		SavedMask:  t.SigMask,
		OnAltStack: onAltStack,
	}
	if onAltStack {
		t.AltSignalStack.OnStack = true
	}
	if action.Flags&kthread.SASiginfo != 0 {
		uc.Signo = signo
		uc.Siginfo = si
	}

	newMask := t.SigMask | action.Mask
	if action.Flags&kthread.SANoDefer == 0 {
		newMask = newMask.Set(signo)
	}
	t.SigMask = newMask
	t.Unlock(s.CPU())

	t.PushUserContext(uc)

	if action.Flags&kthread.SAResetHand != 0 && group != nil {
		group.Signals.Lock.Lock(nil, t.Owner(), "signal/dispatch.go", 0)
		group.Signals.Action[signo] = kthread.Action{Disposition: kthread.SigDefault}
		group.Signals.Lock.Unlock(nil, t.Owner())
	}
}

// SigReturn implements sigreturn: pops the current user context, restoring
// the previously saved mask and alt-stack occupancy, and resumes whatever
// context was linked before it. The mask/alt-stack restore runs under t's
// own lock, matching Kill's discipline for thread fields.
func SigReturn(t *kthread.Thread) kerr.Errno {
	uc := t.PopUserContext()
	if uc == nil {
		return kerr.EINVAL
	}
	t.Lock(nil)
	t.SigMask = uc.SavedMask
	if uc.OnAltStack {
		t.AltSignalStack.OnStack = false
	}
	t.Unlock(nil)
	return 0
}
