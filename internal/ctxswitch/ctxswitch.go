// Package ctxswitch implements the save/restore of a thread's execution
// across stacks (spec C7). On real x86_64 this is the callee-saved
// register set plus a return address into trap_return, written by hand in
// assembly; hosted on the Go runtime we express the same contract as a
// rendezvous handoff between goroutines, which is the idiomatic Go way to
// model "exactly one of these execution contexts runs at a time, and
// control transfers deterministically between them" without writing
// architecture-specific code (out of scope per spec §1).
package ctxswitch

// Slot is a saved execution context: a parked goroutine waiting to be told
// to resume. It plays the role of biscuit's trapframe/context_t.
type Slot struct {
	wake chan struct{}
}

// NewSlot returns a fresh, not-yet-parked context slot.
func NewSlot() *Slot {
	return &Slot{wake: make(chan struct{})}
}

// Park blocks the calling goroutine until some other goroutine calls
// Switch(_, this slot) or Resume(this slot).
func (s *Slot) Park() {
	<-s.wake
}

// Resume wakes whatever goroutine is parked on s. It blocks until that
// goroutine actually calls Park, matching the rendezvous discipline of a
// single-CPU context switch (exactly one context runs at a time).
func (s *Slot) Resume() {
	s.wake <- struct{}{}
}

// Switch stores the caller's own suspension point as old (the caller must
// be prepared to be resumed later via old.Resume()), transfers control to
// new, and returns only when old is itself later resumed. This is the
// direct analogue of switch_context(&old_slot, new): "saves the current
// context, loads new, and [the call] returns into the new stack's return
// address" -- here, the call returns when *this* goroutine is re-dispatched.
func Switch(old, new *Slot) {
	new.Resume()
	old.Park()
}

// Spawn launches fn on a fresh goroutine that first parks on slot, i.e. it
// does not run until the first Switch/Resume targets slot. This models
// thread creation's synthetic kernel-stack frame that "on first dispatch,
// unwinds through trap_return" into the thread's entry point (spec 4.3):
// the goroutine exists and is schedulable, but executes nothing until the
// scheduler dispatches it for the first time.
func Spawn(slot *Slot, fn func()) {
	go func() {
		slot.Park()
		fn()
	}()
}
