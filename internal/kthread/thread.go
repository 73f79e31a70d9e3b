// Package kthread implements the thread control block and thread-group
// membership (spec C8), grounded on biscuit's Thread_t/Proc_t split (the
// fork's mem.Vm_t/Proc_t fields map onto Group here) and on
// XytherOS's kernel/sys/thread/process.c state machine.
package kthread

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/ctxswitch"
	"github.com/Emment-Yamikani/xytheros-go/internal/queue"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

// NSIG is the number of distinct signal numbers the kernel core tracks.
const NSIG = 32

// SigSet is a bitmask over signal numbers 0..NSIG-1.
type SigSet uint64

// Set returns s with bit signo set.
func (s SigSet) Set(signo int) SigSet { return s | (1 << uint(signo)) }

// Clear returns s with bit signo cleared.
func (s SigSet) Clear(signo int) SigSet { return s &^ (1 << uint(signo)) }

// Has reports whether bit signo is set.
func (s SigSet) Has(signo int) bool { return s&(1<<uint(signo)) != 0 }

// State is a thread's lifecycle state (spec §3):
// EMBRYO -> READY <-> RUNNING <-> {SLEEP,STOPPED} -> ZOMBIE -> TERMINATED.
type State int

const (
	Embryo State = iota
	Ready
	Running
	Sleep
	Stopped
	Zombie
	Terminated
)

func (s State) String() string {
	switch s {
	case Embryo:
		return "EMBRYO"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Sleep:
		return "SLEEP"
	case Stopped:
		return "STOPPED"
	case Zombie:
		return "ZOMBIE"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Thread-level flags.
const (
	FlagCanceled uint32 = 1 << iota
	FlagParked
	FlagWake
)

// WakeupReason is stamped on a thread at wake time (spec glossary).
type WakeupReason int

const (
	WakeNormal WakeupReason = iota
	WakeSignal
	WakeTimeout
	WakeError
)

// Siginfo is the queued payload of one pending signal (spec §3).
type Siginfo struct {
	Signo     int
	Code      int
	SenderPID uint64
	SenderUID int
	Addr      uintptr
	Status    int
	Value     int64
}

// sigFIFO is a plain slice-backed FIFO; unlike the intrusive queue.Queue
// used for wait queues and run queues, siginfo values have no identity of
// their own to detach, so a slice is the simpler and idiomatic choice here.
type sigFIFO struct {
	items []Siginfo
}

func (f *sigFIFO) push(si Siginfo) { f.items = append(f.items, si) }

func (f *sigFIFO) pop() (Siginfo, bool) {
	if len(f.items) == 0 {
		return Siginfo{}, false
	}
	si := f.items[0]
	f.items = f.items[1:]
	return si, true
}

func (f *sigFIFO) empty() bool { return len(f.items) == 0 }

// SchedInfo is the scheduler-owned subset of a thread's state (spec C9):
// its MLFQ level and the timeslice remaining in the current quantum.
type SchedInfo struct {
	Priority  int
	Timeslice int
}

// Credentials, FileCtx and Mmap are opaque placeholders for thread-group
// state whose real implementation (VFS, paging) is out of scope for this
// repository (spec §1); the core only needs them to exist as fields and be
// shared within a group.
type Credentials struct {
	UID, GID int
}

type FileCtx struct{}

type Mmap struct{}

// Thread is the thread control block (spec §3).
type Thread struct {
	Tid   uint64
	Pid   uint64
	Group *Group

	lock *spinlock.Spinlock

	state State
	flags uint32

	Entry    func()
	ExitCode int

	Sched SchedInfo

	SavedContext *ctxswitch.Slot

	// UserContextChain is the stack of nested trap frames (C14); the head
	// is the currently-active one.
	UserContextChain []*UserContext

	// AltSignalStack models sigaltstack's per-thread alternate stack.
	AltSignalStack AltStack

	// Per-thread signal state (spec 4.6).
	SigMask    SigSet
	SigPending SigSet
	sigQueues  [NSIG]sigFIFO

	// WaitNode is this thread's intrusive queue linkage; it is the single
	// node the thread can ever be linked into (spec invariant 3). Owner is
	// set to the thread itself so a dequeuing caller can recover it.
	WaitNode queue.Node

	// WaitQueueBackPtr is the opaque back-index into whichever wait queue
	// currently holds WaitNode, cleared on detach (spec §9 cyclic
	// reference discipline). It holds a *waitqueue.WaitQueue but is typed
	// as any here so this package need not import waitqueue.
	WaitQueueBackPtr any

	WakeupReason WakeupReason
}

// AltStack models sigaltstack state.
type AltStack struct {
	Addr    uintptr
	Size    uintptr
	Disable bool
	OnStack bool
}

// UserContext is one saved user-mode trap frame (spec C14).
type UserContext struct {
	Regs       [32]uintptr // opaque register file; arch layout is out of scope
	SavedMask  SigSet
	OnAltStack bool

	// Signo and Siginfo carry the (signo, siginfo_t) pair an SA_SIGINFO
	// handler receives (spec 4.6 step 4). Both are zero unless the
	// delivered action's Flags has SASiginfo set.
	Signo   int
	Siginfo Siginfo
}

// New creates a thread in EMBRYO state. lockName is used for the thread's
// own spinlock diagnostic name.
func New(tid, pid uint64, entry func(), lockName string) *Thread {
	t := &Thread{
		Tid:          tid,
		Pid:          pid,
		Entry:        entry,
		lock:         spinlock.New(lockName),
		SavedContext: ctxswitch.NewSlot(),
	}
	t.WaitNode.Owner = t
	return t
}

// Owner returns the spinlock.Owner identity used when locking this
// thread's own spinlock or any other lock taken on its behalf.
func (t *Thread) Owner() spinlock.Owner {
	return spinlock.Owner{ID: t.Tid, IsThread: true}
}

// Lock acquires the thread's own spinlock. State transitions out of
// RUNNING must only be performed by the thread itself holding this lock
// (spec invariant).
func (t *Thread) Lock(cpu *spinlock.CPU) {
	t.lock.Lock(cpu, t.Owner(), "kthread/thread.go", 0)
}

// Unlock releases the thread's own spinlock.
func (t *Thread) Unlock(cpu *spinlock.CPU) {
	t.lock.Unlock(cpu, t.Owner())
}

// AssertLocked panics if the thread's own lock is not held by this thread.
func (t *Thread) AssertLocked() {
	t.lock.AssertHeld(t.Owner())
}

// State returns the thread's current lifecycle state. Caller should hold
// the thread's lock for a consistent read outside of diagnostics.
func (t *Thread) State() State { return t.state }

// SetState transitions the thread's state. Caller must hold the thread's
// own lock.
func (t *Thread) SetState(s State) {
	t.AssertLocked()
	t.state = s
}

// TestFlag reports whether flag is set.
func (t *Thread) TestFlag(flag uint32) bool { return t.flags&flag != 0 }

// SetFlag sets flag.
func (t *Thread) SetFlag(flag uint32) { t.flags |= flag }

// MaskFlag clears flag.
func (t *Thread) MaskFlag(flag uint32) { t.flags &^= flag }

// Canceled reports whether thread_cancel was called on this thread.
func (t *Thread) Canceled() bool { return t.TestFlag(FlagCanceled) }

// PushSiginfo enqueues si on this thread's per-signal queue and sets its
// pending bit.
func (t *Thread) PushSiginfo(si Siginfo) {
	t.sigQueues[si.Signo].push(si)
	t.SigPending = t.SigPending.Set(si.Signo)
}

// PopSiginfo dequeues one queued siginfo for signo, clearing the pending
// bit if the queue becomes empty.
func (t *Thread) PopSiginfo(signo int) (Siginfo, bool) {
	si, ok := t.sigQueues[signo].pop()
	if !ok {
		return Siginfo{}, false
	}
	if t.sigQueues[signo].empty() {
		t.SigPending = t.SigPending.Clear(signo)
	}
	return si, true
}

// FlushSiginfo discards all queued siginfo for signo and clears its
// pending bit (used by sigaction(SIG_IGN, ...), spec 4.6).
func (t *Thread) FlushSiginfo(signo int) {
	t.sigQueues[signo] = sigFIFO{}
	t.SigPending = t.SigPending.Clear(signo)
}

// PushUserContext links uc as the new head of the user-context chain
// (spec C14).
func (t *Thread) PushUserContext(uc *UserContext) {
	t.UserContextChain = append(t.UserContextChain, uc)
}

// PopUserContext unlinks and returns the current head of the user-context
// chain, or nil if empty.
func (t *Thread) PopUserContext() *UserContext {
	n := len(t.UserContextChain)
	if n == 0 {
		return nil
	}
	uc := t.UserContextChain[n-1]
	t.UserContextChain = t.UserContextChain[:n-1]
	return uc
}

// CurrentUserContext returns the head of the chain without popping it.
func (t *Thread) CurrentUserContext() *UserContext {
	n := len(t.UserContextChain)
	if n == 0 {
		return nil
	}
	return t.UserContextChain[n-1]
}
