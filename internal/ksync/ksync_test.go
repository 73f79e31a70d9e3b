package ksync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
)

func newScheduler() *sched.Scheduler {
	idle := kthread.New(0, 0, nil, "idle")
	idle.Lock(nil)
	idle.SetState(kthread.Running)
	idle.Unlock(nil)
	return sched.New(0, 4, 10, idle)
}

func TestMutexTryLockAndUnlock(t *testing.T) {
	s := newScheduler()
	m := NewMutex("m")
	a := kthread.New(1, 1, nil, "a")
	b := kthread.New(2, 2, nil, "b")

	assert.True(t, m.TryLock(s, a))
	assert.False(t, m.TryLock(s, b), "contended TryLock must fail, not block")
	assert.True(t, m.IsLockedBy(s, a))

	m.Unlock(s, a)
	assert.True(t, m.TryLock(s, b))
}

func TestMutexDoubleLockBySameOwnerPanics(t *testing.T) {
	s := newScheduler()
	m := NewMutex("m")
	a := kthread.New(1, 1, nil, "a")
	assert.True(t, m.TryLock(s, a))
	assert.Panics(t, func() { m.TryLock(s, a) })
}

func TestMutexRecursiveLockAllowsReentry(t *testing.T) {
	s := newScheduler()
	m := NewMutex("m")
	a := kthread.New(1, 1, nil, "a")

	m.RecursiveLock(s, a)
	m.RecursiveLock(s, a)
	assert.True(t, m.IsLockedBy(s, a))
	m.Unlock(s, a)
	assert.True(t, m.IsLockedBy(s, a), "still held after one of two recursive unlocks")
	m.Unlock(s, a)
}

func TestMutexUnlockByNonOwnerPanics(t *testing.T) {
	s := newScheduler()
	m := NewMutex("m")
	a := kthread.New(1, 1, nil, "a")
	b := kthread.New(2, 2, nil, "b")
	m.TryLock(s, a)
	assert.Panics(t, func() { m.Unlock(s, b) })
}

func TestCondvarBroadcastResetsCount(t *testing.T) {
	s := newScheduler()
	c := NewCondvar("c")
	by := kthread.New(9, 9, nil, "by")
	c.Broadcast(s, by)
	assert.Equal(t, -1, c.count, "broadcast with no waiters leaves count at -1")
}

func TestEventAwaitConsumesCount(t *testing.T) {
	s := newScheduler()
	e := NewEvent("e", 1)
	a := kthread.New(1, 1, nil, "a")

	err := e.Await(s, a)
	assert.Zero(t, err)
	assert.Equal(t, 0, e.count)
}

func TestRWLockWriterBlocksReaders(t *testing.T) {
	s := newScheduler()
	rw := NewRWLock("rw")
	w := kthread.New(1, 1, nil, "w")
	r := kthread.New(2, 2, nil, "r")

	rw.WriteLock(s, w)
	assert.False(t, rw.TryReadLock(s, r), "a reader must not join while a writer holds the lock")
	rw.WriteUnlock(s, w)
	assert.True(t, rw.TryReadLock(s, r))
}

func TestRWLockMultipleReadersAllowed(t *testing.T) {
	s := newScheduler()
	rw := NewRWLock("rw")
	a := kthread.New(1, 1, nil, "a")
	b := kthread.New(2, 2, nil, "b")
	assert.True(t, rw.TryReadLock(s, a))
	assert.True(t, rw.TryReadLock(s, b))
	assert.EqualValues(t, 2, rw.readers)
}
