package ktimer

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/waitqueue"
)

// Sleeper is the dedicated wait queue nanosleep blocks callers on (spec
// 4.8), woken once per tick so each sleeper can re-check its own deadline
// ("spurious wakeups are possible and every blocking call must re-check its
// predicate", spec §9).
type Sleeper struct {
	clock *Clock
	waitq *waitqueue.WaitQueue
}

// NewSleeper returns a sleeper queue driven by clock. Call Wake from the
// wakeFn given to NewQueue so every tick rouses it.
func NewSleeper(clock *Clock) *Sleeper {
	return &Sleeper{clock: clock, waitq: waitqueue.New("ktimer.sleepers")}
}

// Wake rouses every blocked sleeper so it can re-check its deadline; it is
// called from the tick-driven wakeFn passed to NewQueue.
func (sl *Sleeper) Wake(s *sched.Scheduler, by *kthread.Thread) {
	s.WakeupAll(by.Owner(), sl.waitq, kthread.WakeTimeout)
}

// Nanosleep blocks t until at least d has elapsed, converted to jiffies at
// the sleeper's clock frequency (spec 4.8, §8's {0,0} boundary case: a
// zero or negative duration returns immediately with zero remaining and no
// state change). It returns the time remaining, converted back from whole
// ticks (nonzero only if interrupted before the deadline), and kerr.EINTR
// if interrupted.
func (sl *Sleeper) Nanosleep(s *sched.Scheduler, t *kthread.Thread, d Duration) (remaining Duration, err kerr.Errno) {
	if d <= 0 {
		return 0, 0
	}

	deadline := sl.clock.Jiffies() + sl.clock.ToTicks(d)

	for sl.clock.Jiffies() < deadline {
		if werr := s.Wait(t, sl.waitq, kthread.Sleep, waitqueue.Tail, nil); werr != 0 {
			err = werr
			break
		}
	}

	now := sl.clock.Jiffies()
	if now < deadline {
		remaining = ticksToDuration(deadline-now, sl.clock.hz)
	}
	return remaining, err
}

func ticksToDuration(ticks, hz int64) Duration {
	if hz <= 0 {
		hz = DefaultHZ
	}
	return Duration(ticks) * (Duration(1) * 1_000_000_000 / Duration(hz))
}
