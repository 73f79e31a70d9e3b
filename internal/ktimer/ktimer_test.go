package ktimer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
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

func TestClockTickAdvancesJiffies(t *testing.T) {
	c := NewClock(100)
	assert.EqualValues(t, 0, c.Jiffies())
	c.Tick()
	c.Tick()
	assert.EqualValues(t, 2, c.Jiffies())
}

func TestToTicksRoundsUp(t *testing.T) {
	c := NewClock(100) // 10ms per tick
	assert.EqualValues(t, 0, c.ToTicks(0))
	assert.EqualValues(t, 1, c.ToTicks(5*time.Millisecond), "a partial tick still rounds up, never short")
	assert.EqualValues(t, 1, c.ToTicks(10*time.Millisecond))
	assert.EqualValues(t, 2, c.ToTicks(11*time.Millisecond))
}

func TestQueueCreateRejectsCallbacklessOwnerless(t *testing.T) {
	c := NewClock(100)
	q := NewQueue(c, nil)
	_, err := q.Create(nil, 0, nil, time.Second, 0)
	assert.Equal(t, kerr.EINVAL, err)
}

func TestQueueTickFiresCallbackOnce(t *testing.T) {
	c := NewClock(100)
	q := NewQueue(c, nil)
	fired := 0
	_, err := q.Create(nil, 0, func() { fired++ }, 20*time.Millisecond, 0)
	require.Equal(t, kerr.Errno(0), err)

	q.Tick()
	assert.Equal(t, 0, fired, "not yet due")
	q.Tick()
	assert.Equal(t, 1, fired)
	q.Tick()
	assert.Equal(t, 1, fired, "one-shot timers do not refire")
}

func TestQueuePeriodicTimerReinsertsOnEachFire(t *testing.T) {
	c := NewClock(100)
	q := NewQueue(c, nil)
	fired := 0
	_, err := q.Create(nil, 0, func() { fired++ }, 10*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, kerr.Errno(0), err)

	for i := 0; i < 5; i++ {
		q.Tick()
	}
	assert.Equal(t, 5, fired, "a 1-tick period fires once per tick once past its first expiry")
}

func TestQueueCancelDropsTimerBeforeItFires(t *testing.T) {
	c := NewClock(100)
	q := NewQueue(c, nil)
	fired := false
	timer, err := q.Create(nil, 0, func() { fired = true }, 10*time.Millisecond, 0)
	require.Equal(t, kerr.Errno(0), err)

	q.Cancel(timer)
	q.Tick()
	q.Tick()
	assert.False(t, fired)
}

func TestQueueTickWakesFnCalledEveryTick(t *testing.T) {
	c := NewClock(100)
	calls := 0
	q := NewQueue(c, func() { calls++ })
	q.Tick()
	q.Tick()
	assert.Equal(t, 2, calls)
}

func TestQueueTickSendsSignalToOwner(t *testing.T) {
	c := NewClock(100)
	q := NewQueue(c, nil)
	owner := kthread.New(1, 1, nil, "owner")
	_, err := q.Create(owner, 9, nil, 10*time.Millisecond, 0)
	require.Equal(t, kerr.Errno(0), err)

	q.Tick()
	assert.True(t, owner.SigPending.Has(9))
}

func TestNanosleepZeroDurationReturnsImmediately(t *testing.T) {
	c := NewClock(100)
	sl := NewSleeper(c)
	s := newScheduler()
	th := kthread.New(1, 1, nil, "th")

	remaining, err := sl.Nanosleep(s, th, 0)
	assert.Zero(t, remaining)
	assert.Equal(t, kerr.Errno(0), err)
}

func TestNanosleepInterruptedByCancellationReturnsEINTR(t *testing.T) {
	c := NewClock(100)
	sl := NewSleeper(c)
	s := newScheduler()
	th := kthread.New(1, 1, nil, "th")
	th.SetFlag(kthread.FlagCanceled)

	remaining, err := sl.Nanosleep(s, th, 50*time.Millisecond)
	assert.Equal(t, kerr.EINTR, err)
	assert.True(t, remaining > 0, "an interrupted sleep reports time still remaining")
}
