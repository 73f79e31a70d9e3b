package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

func newIdle() *kthread.Thread {
	idle := kthread.New(0, 0, nil, "idle")
	idle.Lock(nil)
	idle.SetState(kthread.Running)
	idle.Unlock(nil)
	return idle
}

// newRunning returns a thread in RUNNING state with its own lock still
// held; callers release it before calling Wait, which takes that lock
// itself.
func newRunning(s *Scheduler, tid uint64) *kthread.Thread {
	th := kthread.New(tid, tid, nil, "th")
	th.Lock(s.CPU())
	th.SetState(kthread.Running)
	return th
}

func TestEnqueuePicksHighestNonEmptyLevel(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)

	low := kthread.New(1, 1, nil, "low")
	low.Sched.Priority = 0
	high := kthread.New(2, 2, nil, "high")
	high.Sched.Priority = 3

	s.Enqueue(low)
	s.Enqueue(high)

	got := s.pickNext(spinlock.Owner{ID: 99, IsThread: true})
	assert.Same(t, high, got, "the highest non-empty level is selected first")
}

func TestEnqueueClampsOutOfRangePriority(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)
	th := kthread.New(1, 1, nil, "th")
	th.Sched.Priority = 99
	s.Enqueue(th)
	got := s.pickNext(spinlock.Owner{ID: 1, IsThread: true})
	assert.Same(t, th, got)
}

func TestWakeupAllEmptiesQueueAndReadiesThread(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)
	wq := waitqueue.New("test")

	th := kthread.New(1, 1, nil, "th")
	wq.Lock(s.CPU(), th.Owner())
	wq.Enqueue(&th.WaitNode, waitqueue.Tail)
	th.Lock(s.CPU())
	th.WaitQueueBackPtr = wq
	th.SetState(kthread.Sleep)
	th.Unlock(s.CPU())
	wq.Unlock(s.CPU(), th.Owner())

	s.WakeupAll(th.Owner(), wq, kthread.WakeNormal)

	assert.True(t, wq.Empty())
	assert.Equal(t, kthread.Ready, th.State())
}

func TestTickExhaustsTimesliceAndSignalsYield(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 2, idle)
	th := kthread.New(1, 1, nil, "th")
	th.Sched.Timeslice = 2

	assert.False(t, s.Tick(th))
	assert.True(t, s.Tick(th))
	assert.EqualValues(t, 0, th.Sched.Timeslice)
}

func TestCancelOfParkedThreadDetachesAndWakes(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)
	wq := waitqueue.New("test")

	th := kthread.New(1, 1, nil, "th")
	wq.Lock(s.CPU(), th.Owner())
	wq.Enqueue(&th.WaitNode, waitqueue.Tail)
	th.Lock(s.CPU())
	th.WaitQueueBackPtr = wq
	th.SetState(kthread.Sleep)
	th.Unlock(s.CPU())
	wq.Unlock(s.CPU(), th.Owner())

	err := s.Cancel(spinlock.Owner{ID: 50, IsThread: true}, th)
	require.Equal(t, kerr.Errno(0), err)
	assert.True(t, th.Canceled())
	assert.Equal(t, kthread.Ready, th.State())
	assert.True(t, wq.Empty())
}

func TestWaitReturnsEINTRWhenAlreadyCanceled(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)
	wq := waitqueue.New("test")
	th := newRunning(s, 1)
	th.SetFlag(kthread.FlagCanceled)
	th.Unlock(s.CPU())

	err := s.Wait(th, wq, kthread.Sleep, waitqueue.Tail, nil)
	assert.Equal(t, kerr.EINTR, err)
	assert.True(t, wq.Empty(), "a pre-canceled wait must never link the thread into the queue")
}

func TestWaitInvalidStateIsRejected(t *testing.T) {
	idle := newIdle()
	s := New(0, 4, 10, idle)
	wq := waitqueue.New("test")
	th := kthread.New(1, 1, nil, "th")
	err := s.Wait(th, wq, kthread.Running, waitqueue.Tail, nil)
	assert.Equal(t, kerr.EINVAL, err)
}
