package kthread

// Fork creates a new thread control block cloned from src for fork(2): the
// child inherits src's signal mask and scheduling hint, and is placed in
// Embryo state awaiting its own first dispatch.
//
// inheritedContext reports whether src already had a live execution
// context to copy register/stack state from. This is the corrected sense
// of the historical x86_64_thread_fork bug named in spec §9, whose test of
// the source's thread pointer had the wrong polarity. The check here only
// reports true once src has left Embryo at least once (see hasContext).
func Fork(tid, pid uint64, src *Thread, lockName string) (child *Thread, inheritedContext bool) {
	child = New(tid, pid, src.Entry, lockName)
	child.SigMask = src.SigMask
	child.Sched = src.Sched
	return child, src.hasContext()
}

// hasContext reports whether t has ever left EMBRYO, i.e. whether it has a
// meaningful saved execution context a fork could inherit from.
func (t *Thread) hasContext() bool {
	return t.state != Embryo
}
