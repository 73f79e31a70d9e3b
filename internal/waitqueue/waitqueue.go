// Package waitqueue implements the wait-queue abstraction (spec C10): an
// ordered sequence of blocked entries with a lock that orders insertion,
// detachment, and state changes of queued entries. It is deliberately
// type-agnostic -- it only moves *queue.Node values around -- so that
// package kthread (which owns the Node each Thread embeds) and package
// sched (which performs the actual block/wake state transitions) do not
// need to import each other, per spec §9's ownership + back-index pattern.
package waitqueue

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/queue"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

// Whence selects which end of the queue an operation acts on (spec 4.4:
// sched_wait/sched_wakeup both take a "whence" of head or tail).
type Whence int

const (
	Tail Whence = iota
	Head
)

// WaitQueue is an ordered sequence of blocked entries guarded by its own
// lock (spec §3, §5: "Wait queues — queue lock, always acquired before the
// thread lock of an entry being detached").
type WaitQueue struct {
	lock *spinlock.Spinlock
	q    *queue.Queue
}

// New returns an empty wait queue tagged with a diagnostic name.
func New(name string) *WaitQueue {
	return &WaitQueue{lock: spinlock.New(name), q: queue.New()}
}

// Lock acquires the queue's lock on behalf of owner.
func (w *WaitQueue) Lock(cpu *spinlock.CPU, owner spinlock.Owner) {
	w.lock.Lock(cpu, owner, "waitqueue/waitqueue.go", 0)
}

// Unlock releases the queue's lock.
func (w *WaitQueue) Unlock(cpu *spinlock.CPU, owner spinlock.Owner) {
	w.lock.Unlock(cpu, owner)
}

// Enqueue links node at head or tail. Caller must hold the queue's lock.
func (w *WaitQueue) Enqueue(node *queue.Node, whence Whence) {
	if whence == Head {
		w.q.PushFront(node)
	} else {
		w.q.PushBack(node)
	}
}

// Dequeue unlinks and returns a node from head or tail, or nil if empty.
// Caller must hold the queue's lock.
func (w *WaitQueue) Dequeue(whence Whence) *queue.Node {
	if whence == Head {
		return w.q.PopFront()
	}
	return w.q.PopBack()
}

// Remove detaches node from this queue explicitly (used by cancellation
// and by signal delivery to pull a thread out before it is naturally
// woken). Caller must hold the queue's lock.
func (w *WaitQueue) Remove(node *queue.Node) {
	w.q.Detach(node)
}

// Empty reports whether the queue currently holds no entries. Caller
// should hold the queue's lock for a consistent read.
func (w *WaitQueue) Empty() bool { return w.q.Empty() }

// Len returns the number of linked entries.
func (w *WaitQueue) Len() int { return w.q.Len() }

// Walk iterates every linked node head to tail without removing them.
// Caller must hold the queue's lock.
func (w *WaitQueue) Walk(fn func(n *queue.Node) bool) {
	w.q.Walk(fn)
}
