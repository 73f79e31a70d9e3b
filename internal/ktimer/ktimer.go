// Package ktimer implements the jiffies clock, the sorted timer queue, and
// nanosleep (spec C13), grounded on XytherOS's kernel/core/timer.c (the
// t_owner/t_signo/t_callback timer record and timer_increment's
// expiry-sorted sweep) and kernel/core/ktimer.c (ktimer_create's
// insert-sorted-by-expiry discipline).
package ktimer

import (
	"time"

	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"go.uber.org/atomic"
)

// Duration is a span of wall-clock time converted to jiffies via a Clock's
// configured frequency. It is exactly time.Duration; the alias exists so
// callers need not import "time" to use this package's API.
type Duration = time.Duration

// DefaultHZ is the default timer-interrupt frequency (spec glossary: SYS_HZ).
const DefaultHZ = 100

// Clock tracks the process-wide monotonic jiffies counter (spec 4.8),
// incremented by the timer interrupt at the configured frequency.
type Clock struct {
	jiffies atomic.Int64
	hz      int64
}

// NewClock returns a clock at jiffies 0 ticking at hz ticks per second.
func NewClock(hz int64) *Clock {
	if hz <= 0 {
		hz = DefaultHZ
	}
	return &Clock{hz: hz}
}

// Jiffies returns the current tick count.
func (c *Clock) Jiffies() int64 { return c.jiffies.Load() }

// Tick advances the clock by one jiffy; called from the timer interrupt
// (spec C14).
func (c *Clock) Tick() int64 { return c.jiffies.Inc() }

// ToTicks converts d to a jiffies count at this clock's frequency, rounding
// up so a requested sleep never resolves short.
func (c *Clock) ToTicks(d Duration) int64 {
	if d <= 0 {
		return 0
	}
	ticks := int64(d) * c.hz / int64(time.Second)
	if int64(d)*c.hz%int64(time.Second) != 0 {
		ticks++
	}
	return ticks
}

// Timer is one scheduled expiry (spec §3 "timer record"): either a
// callback, or a signal/wakeup delivered to owner, one-shot unless Interval
// is nonzero.
type Timer struct {
	ID       uint64
	Owner    *kthread.Thread
	Signo    int
	Callback func()
	Interval int64 // ticks; 0 means one-shot
	Expiry   int64 // absolute jiffies

	canceled bool
}

// Queue is the sorted-by-expiry timer queue plus the dedicated sleeper
// queue nanosleep blocks on (spec 4.8). It is not safe for concurrent
// use without external locking, matching queue.Queue's contract; callers
// serialize access through a single owning goroutine or an external lock.
type Queue struct {
	clock    *Clock
	timers   []*Timer
	nextID   atomic.Uint64
	wakeFn   func()
}

// NewQueue returns an empty timer queue driven by clock. wakeFn, if
// non-nil, is invoked once per Tick call after due timers have been
// processed -- the trap-dispatch integration point that rouses sleepers
// blocked in nanosleep (spec §9: a dedicated sleeper wait queue woken on
// every tick so it can re-check its deadline).
func NewQueue(clock *Clock, wakeFn func()) *Queue {
	return &Queue{clock: clock, wakeFn: wakeFn}
}

// Create registers a new timer expiring expiry from now, optionally
// periodic with period interval; both durations are rounded up to whole
// ticks with ToTicks. Exactly one of callback or (owner,
// signo) should be supplied; if neither a callback nor an owner is given
// this is a programming error (spec's timer_create returns -EINVAL for the
// equivalent case).
func (q *Queue) Create(owner *kthread.Thread, signo int, callback func(), expiry, interval Duration) (*Timer, kerr.Errno) {
	if callback == nil && owner == nil {
		return nil, kerr.EINVAL
	}
	t := &Timer{
		ID:       q.nextID.Inc(),
		Owner:    owner,
		Signo:    signo,
		Callback: callback,
		Interval: q.clock.ToTicks(interval),
		Expiry:   q.clock.Jiffies() + q.clock.ToTicks(expiry),
	}
	q.insertSorted(t)
	return t, 0
}

func (q *Queue) insertSorted(t *Timer) {
	i := 0
	for ; i < len(q.timers); i++ {
		if t.Expiry <= q.timers[i].Expiry {
			break
		}
	}
	q.timers = append(q.timers, nil)
	copy(q.timers[i+1:], q.timers[i:])
	q.timers[i] = t
}

// Cancel marks t so the next Tick drops it without firing it, whether or
// not it is due by then. Equivalent to XytherOS's ktimer_delete.
func (q *Queue) Cancel(t *Timer) {
	t.canceled = true
}

// Remaining reports the ticks left until t fires, 0 if already due or
// unknown.
func (q *Queue) Remaining(t *Timer) int64 {
	now := q.clock.Jiffies()
	if t.Expiry <= now {
		return 0
	}
	return t.Expiry - now
}

// Tick advances the clock and processes every due timer: invokes its
// callback, or sends its configured signal to its owner, or -- if neither
// is configured -- relies on the caller's wakeFn to rouse sleepers.
// Periodic timers are reinserted with Expiry += Interval; one-shot timers
// are dropped.
func (q *Queue) Tick() {
	now := q.clock.Tick()

	live := q.timers[:0]
	for _, t := range q.timers {
		if t.canceled {
			continue
		}
		if now < t.Expiry {
			live = append(live, t)
			continue
		}

		if t.Callback != nil {
			t.Callback()
		} else if t.Owner != nil && t.Signo != 0 {
			t.Owner.Lock(nil)
			t.Owner.PushSiginfo(kthread.Siginfo{Signo: t.Signo})
			t.Owner.Unlock(nil)
		}

		if t.Interval > 0 {
			t.Expiry += t.Interval
			live = append(live, t)
		}
	}
	q.timers = live

	if q.wakeFn != nil {
		q.wakeFn()
	}
}
