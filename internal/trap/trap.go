// Package trap implements entry from CPU exceptions and IRQs into the rest
// of the kernel core (spec C14), grounded on biscuit's main.go trapstub/
// trap_cons/trap_disk dispatch-by-vector switch and XytherOS's later
// (canonical, per spec §9's Open Question) trap path: build a saved
// context, dispatch by vector, EOI the interrupt controller for IRQs, then
// run the event-handler tail (signal dispatch, conditional yield).
//
// Architecture-specific register/segment layout is out of scope (spec §1);
// Frame here carries only the logical vector and the opaque fields the
// core's dispatch decisions actually depend on.
package trap

import (
	"fmt"

	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/klog"
	"github.com/Emment-Yamikani/xytheros-go/internal/ktimer"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/signal"
	"go.uber.org/zap"
)

// Class distinguishes the three trap sources spec 4.9 dispatches on.
type Class int

const (
	ClassException Class = iota
	ClassIRQ
	ClassSyscall
)

// TimerVector is the reserved vector number the LAPIC timer IRQ arrives on,
// the preemption-tick source (spec 4.4, 4.9).
const TimerVector = 32

// Frame is the saved trap context built on kernel-stack entry (spec §3's
// mcontext / the per-trap link pushed onto UserContextChain). Regs is an
// opaque register snapshot; real layout is arch ABI detail out of scope.
type Frame struct {
	Class  Class
	Vector uintptr
	Regs   [32]uintptr
}

// LAPIC is the minimal interrupt-controller collaborator trap dispatch
// needs: acknowledging an IRQ so the controller delivers the next one.
// Real APIC register layout is out of scope (spec §1); the core only
// depends on this contract shape.
type LAPIC interface {
	EOI()
}

// HandlerFunc runs in trap context for one vector. It must not suspend
// (spec §5: "Interrupt handlers never suspend").
type HandlerFunc func(t *kthread.Thread, f *Frame)

// Dispatcher wires one CPU's scheduler, timer queue, and interrupt
// controller into the trap-entry algorithm (spec 4.9).
type Dispatcher struct {
	sched    *sched.Scheduler
	clock    *ktimer.Clock
	timers   *ktimer.Queue
	lapic    LAPIC
	suspendQ *signal.SuspendQueue
	handlers map[uintptr]HandlerFunc
	log      *zap.SugaredLogger
}

// New returns a dispatcher for one CPU. lapic may be nil in tests that
// never exercise IRQ EOI.
func New(s *sched.Scheduler, clock *ktimer.Clock, timers *ktimer.Queue, lapic LAPIC) *Dispatcher {
	return &Dispatcher{
		sched:    s,
		clock:    clock,
		timers:   timers,
		lapic:    lapic,
		suspendQ: signal.NewSuspendQueue(),
		handlers: make(map[uintptr]HandlerFunc),
		log:      klog.New("trap"),
	}
}

// RegisterHandler installs fn for vector. Registering a handler for a
// vector that already has one replaces it, matching biscuit's IRQ-handler
// table being reassignable at device-registration time.
func (d *Dispatcher) RegisterHandler(vector uintptr, fn HandlerFunc) {
	d.handlers[vector] = fn
}

// Enter runs the full trap-entry algorithm (spec 4.9): push f as the new
// head of t's user-context chain, dispatch by vector/class, EOI the LAPIC
// for IRQs, then run the event-handler tail (pending-signal dispatch,
// conditional yield on quantum exhaustion), and finally unlink the trap
// frame, resuming whatever context was linked before it.
func (d *Dispatcher) Enter(t *kthread.Thread, f *Frame) {
	uc := &kthread.UserContext{SavedMask: t.SigMask}
	t.PushUserContext(uc)
	defer t.PopUserContext()

	switch f.Class {
	case ClassException:
		d.dispatchException(t, f)
	case ClassIRQ:
		d.dispatchIRQ(t, f)
	case ClassSyscall:
		d.dispatchVectored(t, f)
	default:
		panic(fmt.Sprintf("trap: unknown class %d", f.Class))
	}

	d.tail(t)
}

// dispatchException runs the handler registered for f.Vector, or panics --
// an unhandled CPU exception is one of the three panic-eligible classes
// spec §7 names (unrecoverable hardware state).
func (d *Dispatcher) dispatchException(t *kthread.Thread, f *Frame) {
	h, ok := d.handlers[f.Vector]
	if !ok {
		panic(fmt.Sprintf("trap: unhandled exception vector %d", f.Vector))
	}
	h(t, f)
}

// dispatchIRQ runs the handler registered for f.Vector (if any -- an IRQ
// with no registered handler is merely logged, not fatal, since spurious
// IRQs are a normal hardware occurrence), advances the jiffies clock and
// sweeps the timer queue on the timer vector, and EOIs the LAPIC last, per
// spec 4.9's "dispatches by vector ... EOIs the LAPIC for IRQs" ordering.
func (d *Dispatcher) dispatchIRQ(t *kthread.Thread, f *Frame) {
	if h, ok := d.handlers[f.Vector]; ok {
		h(t, f)
	} else {
		d.log.Debugw("spurious irq", "vector", f.Vector)
	}
	if f.Vector == TimerVector {
		// timers.Tick advances the shared jiffies clock itself.
		d.timers.Tick()
	}
	if d.lapic != nil {
		d.lapic.EOI()
	}
}

func (d *Dispatcher) dispatchVectored(t *kthread.Thread, f *Frame) {
	h, ok := d.handlers[f.Vector]
	if !ok {
		panic(fmt.Sprintf("trap: unhandled syscall vector %d", f.Vector))
	}
	h(t, f)
}

// tail is the event-handler tail run at the end of every trap (spec 4.9):
// dispatch any deliverable signal into t's user context, then -- if the
// timer tick exhausted t's quantum -- yield.
func (d *Dispatcher) tail(t *kthread.Thread) {
	signal.Dispatch(d.sched, t)

	t.Lock(d.sched.CPU())
	exhausted := t.Sched.Timeslice == 0
	t.Unlock(d.sched.CPU())
	if exhausted {
		d.sched.Yield(t)
	}
}

// SuspendQueue exposes the dispatcher's sigsuspend parking queue so a
// syscall handler wired through RegisterHandler can call
// signal.SuspendQueue.SigSuspend without constructing its own.
func (d *Dispatcher) SuspendQueue() *signal.SuspendQueue { return d.suspendQ }
