// Package spinlock implements an owner-tracking spinlock with per-CPU
// preemption-depth nesting (spec C2), grounded on XytherOS's
// kernel/sync/preempt.c and kernel/sync/spinlock.c (cpu_swap_preepmpt /
// pushcli / popcli) and on biscuit's spinlock discipline of recording the
// owner and call site at acquisition.
package spinlock

import (
	"fmt"

	"github.com/Emment-Yamikani/xytheros-go/internal/atomics"
)

// Owner identifies whatever is holding a lock: either a thread id or, when
// no thread context exists yet (early boot, interrupt context), a CPU id.
type Owner struct {
	ID       uint64
	IsThread bool
}

func (o Owner) String() string {
	if o.IsThread {
		return fmt.Sprintf("thread(%d)", o.ID)
	}
	return fmt.Sprintf("cpu(%d)", o.ID)
}

// CPU tracks one logical CPU's preemption-disable nesting depth (ncli) and
// the interrupt-enable state captured when that nesting began (intena), per
// spec 4.1. It is not safe for concurrent PushCli/PopCli from more than one
// goroutine at a time by design: a real CPU only ever runs one instruction
// stream, and a simulated CPU should respect that same discipline.
type CPU struct {
	ID      int
	ncli    int
	intena  bool
	irqsOff bool // simulated local-interrupt state; starts enabled
}

// NewCPU returns a CPU with interrupts initially enabled and zero nesting.
func NewCPU(id int) *CPU {
	return &CPU{ID: id}
}

// PushCli disables (simulated) local interrupts and increments the nesting
// depth, recording the pre-disable state the first time the depth goes from
// zero to one.
func (c *CPU) PushCli() {
	wasEnabled := !c.irqsOff
	c.irqsOff = true
	if c.ncli == 0 {
		c.intena = wasEnabled
	}
	c.ncli++
}

// PopCli decrements the nesting depth and, when it returns to zero and the
// captured state was enabled, re-enables (simulated) local interrupts.
func (c *CPU) PopCli() {
	if !c.irqsOff {
		panic("spinlock: popcli - interrupts already enabled")
	}
	c.ncli--
	if c.ncli < 0 {
		panic("spinlock: popcli - negative nesting")
	}
	if c.ncli == 0 && c.intena {
		c.irqsOff = false
	}
}

// Depth returns the current preemption-disable nesting depth, for
// assertions ("preemption must be disabled here").
func (c *CPU) Depth() int { return c.ncli }

// Spinlock is a mutual-exclusion lock held with local preemption disabled
// and an owner recorded at acquisition, per spec 4.1.
type Spinlock struct {
	raw   atomics.RawLock
	name  string
	owner Owner
	held  bool
	file  string
	line  int
}

// New returns an unlocked spinlock tagged with a diagnostic name.
func New(name string) *Spinlock {
	return &Spinlock{name: name}
}

// Lock acquires the spinlock on behalf of owner, disabling local preemption
// on cpu for the duration. Re-acquiring a held lock from the same owner is a
// fatal invariant violation (it can only ever deadlock), not a blocking
// re-entry -- use RecursiveLock for that.
func (s *Spinlock) Lock(cpu *CPU, owner Owner, file string, line int) {
	if cpu != nil {
		cpu.PushCli()
	}
	if s.held && s.owner == owner {
		panic(fmt.Sprintf("spinlock %q: double-acquire by %s (first held at %s:%d)", s.name, owner, s.file, s.line))
	}
	s.raw.SpinAcquire()
	s.owner = owner
	s.held = true
	s.file = file
	s.line = line
}

// TryLock attempts a non-blocking acquisition and reports success. On
// success it behaves exactly like Lock having returned.
func (s *Spinlock) TryLock(cpu *CPU, owner Owner, file string, line int) bool {
	if cpu != nil {
		cpu.PushCli()
	}
	if !s.raw.TryAcquire() {
		if cpu != nil {
			cpu.PopCli()
		}
		return false
	}
	s.owner = owner
	s.held = true
	s.file = file
	s.line = line
	return true
}

// RecursiveLock allows idempotent re-entry by the same owner. It returns
// alreadyHeld=true when the caller already held the lock, in which case the
// caller must skip the matching Unlock (per spec 4.1).
func (s *Spinlock) RecursiveLock(cpu *CPU, owner Owner, file string, line int) (alreadyHeld bool) {
	if s.held && s.owner == owner {
		return true
	}
	s.Lock(cpu, owner, file, line)
	return false
}

// Unlock releases the spinlock. It asserts that owner currently holds it,
// clears the owner, releases the raw word with a store-release, then
// re-enables local preemption per the captured CPU state.
func (s *Spinlock) Unlock(cpu *CPU, owner Owner) {
	if !s.held || s.owner != owner {
		panic(fmt.Sprintf("spinlock %q: unlock by non-owner %s (owner is %s)", s.name, owner, s.owner))
	}
	s.held = false
	s.owner = Owner{}
	s.raw.Release()
	if cpu != nil {
		cpu.PopCli()
	}
}

// Holder reports the current owner and whether the lock is held, for
// lock-ordering assertions elsewhere in the kernel core.
func (s *Spinlock) Holder() (Owner, bool) {
	return s.owner, s.held
}

// AssertHeld panics if the lock is not currently held by owner. Used at the
// top of functions that document "caller must hold this lock".
func (s *Spinlock) AssertHeld(owner Owner) {
	if !s.held || s.owner != owner {
		panic(fmt.Sprintf("spinlock %q: expected to be held by %s", s.name, owner))
	}
}
