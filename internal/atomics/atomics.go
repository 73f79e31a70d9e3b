// Package atomics provides the memory-ordered primitives the rest of the
// kernel core builds on: a raw test-and-set lock word. The raw
// test-and-set stays on sync/atomic deliberately
// (see DESIGN.md) -- everywhere else that wants a plain counter uses
// go.uber.org/atomic, matching the rest of the pack (kubernetes vendor,
// grafana vendor).
package atomics

import "sync/atomic"

// RawLock is the bare test-and-set word a spinlock spins on. It carries no
// ownership information of its own -- that is layered on top by package
// spinlock.
type RawLock struct {
	locked uint32
}

// TryAcquire attempts a single test-and-set and reports whether it
// succeeded. It never blocks.
func (r *RawLock) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(&r.locked, 0, 1)
}

// SpinAcquire spins until the test-and-set succeeds. Callers are expected
// to have already disabled local preemption (see package spinlock); this
// function never yields the scheduler itself, matching the teacher's
// uninterruptible hardware-level spin.
func (r *RawLock) SpinAcquire() {
	for !r.TryAcquire() {
		// busy-wait: a real x86_64 spin loop would PAUSE here.
	}
}

// Release performs a store-release of the lock word. It is the caller's
// responsibility to have verified ownership before calling this -- RawLock
// itself carries no owner.
func (r *RawLock) Release() {
	atomic.StoreUint32(&r.locked, 0)
}

// Held reports whether the lock word is currently set. Diagnostic use only;
// racing against a concurrent unlock is expected and fine for assertions.
func (r *RawLock) Held() bool {
	return atomic.LoadUint32(&r.locked) != 0
}
