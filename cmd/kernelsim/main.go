// Command kernelsim boots the hosted kernel core against a simulated set of
// collaborators, then drives a scheduling scenario and a signal-delivery
// scenario end to end. It is the demonstration harness for SPEC_FULL.md: a
// real deployment stands up architecture bring-up, a VFS, and device
// drivers behind internal/contracts; this binary stands up fakes instead so
// the core's own behavior can be observed without hardware.
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/kthread"
	"github.com/Emment-Yamikani/xytheros-go/internal/ktimer"
	"github.com/Emment-Yamikani/xytheros-go/internal/mem"
	"github.com/Emment-Yamikani/xytheros-go/internal/pagecache"
	"github.com/Emment-Yamikani/xytheros-go/internal/sched"
	"github.com/Emment-Yamikani/xytheros-go/internal/signal"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/Emment-Yamikani/xytheros-go/internal/trap"
)

// config mirrors kernel.toml: the boot-time equivalent of biscuit's
// compile-time SYS_HZ/NLEVELS constants, externalized for the simulator.
type config struct {
	Kernel struct {
		SysHZ          int64 `toml:"sys_hz"`
		NLevels        int   `toml:"nlevels"`
		Quantum        int   `toml:"quantum"`
		NumCPU         int   `toml:"num_cpu"`
		TotalMemoryMB  int   `toml:"total_memory_mb"`
	} `toml:"kernel"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding %s", path)
	}
	if cfg.Kernel.SysHZ <= 0 {
		cfg.Kernel.SysHZ = ktimer.DefaultHZ
	}
	if cfg.Kernel.NLevels <= 0 {
		cfg.Kernel.NLevels = sched.NLevels
	}
	if cfg.Kernel.Quantum <= 0 {
		cfg.Kernel.Quantum = sched.DefaultQuantum
	}
	if cfg.Kernel.NumCPU <= 0 {
		cfg.Kernel.NumCPU = 1
	}
	if cfg.Kernel.TotalMemoryMB <= 0 {
		cfg.Kernel.TotalMemoryMB = 64
	}
	return cfg, nil
}

// memInode is a fake contracts.Inode backed by a plain byte slice, standing
// in for the VFS (out of scope per spec §1/§6).
type memInode struct {
	mu   sync.Mutex
	data []byte
}

func (f *memInode) ReadAt(off int64, buf []byte) (int, kerr.Errno) {
	if off >= int64(len(f.data)) {
		return 0, 0
	}
	return copy(buf, f.data[off:]), 0
}

func (f *memInode) WriteAt(off int64, buf []byte) (int, kerr.Errno) {
	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	return copy(f.data[off:], buf), 0
}

func (f *memInode) UpdateSize(newSize int64) kerr.Errno {
	if newSize > int64(len(f.data)) {
		grown := make([]byte, newSize)
		copy(grown, f.data)
		f.data = grown
	} else {
		f.data = f.data[:newSize]
	}
	return 0
}

func (f *memInode) Size() int64 { return int64(len(f.data)) }
func (f *memInode) Lock()       { f.mu.Lock() }
func (f *memInode) Unlock()     { f.mu.Unlock() }

var _ contracts.Inode = (*memInode)(nil)

func main() {
	path := flag.String("config", "kernel.toml", "path to kernel.toml")
	flag.Parse()

	if err := run(*path); err != nil {
		fmt.Fprintln(os.Stderr, "kernelsim:", err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	boot := bootScenario(cfg)
	alloc, eno := mem.NewAllocator(boot, nil)
	if eno != 0 {
		return errors.Errorf("mem.NewAllocator: %s", eno)
	}
	fmt.Printf("boot: %d MiB simulated physical memory partitioned into zones\n", cfg.Kernel.TotalMemoryMB)

	pageCacheScenario(alloc)

	idle := kthread.New(0, 0, nil, "idle")
	idle.Lock(nil)
	idle.SetState(kthread.Running)
	idle.Unlock(nil)
	s := sched.New(0, cfg.Kernel.NLevels, cfg.Kernel.Quantum, idle)

	clock := ktimer.NewClock(cfg.Kernel.SysHZ)
	sleeper := ktimer.NewSleeper(clock)
	timers := ktimer.NewQueue(clock, func() { sleeper.Wake(s, idle) })
	dispatcher := trap.New(s, clock, timers, nil)

	schedulingScenario(s, clock, timers)
	signalScenario(s, dispatcher)
	trapScenario(dispatcher)

	fmt.Println("kernelsim: scenarios completed")
	return nil
}

// bootScenario builds the BootInfo a real boot loader would hand the frame
// allocator: total memory only, since sizeWithin's zone partitioning never
// consults MemoryMap/Modules for this simulator (spec §6's boot-time
// collaborator contract, trimmed to what mem.NewAllocator actually reads).
func bootScenario(cfg config) *contracts.BootInfo {
	return &contracts.BootInfo{
		TotalMemory: uintptr(cfg.Kernel.TotalMemoryMB) << 20,
	}
}

// pageCacheScenario demonstrates spec §8 scenario 4: a read past an
// inode's current size returns only the bytes that exist, zero-filling the
// rest of the caller's buffer.
func pageCacheScenario(alloc *mem.Allocator) {
	inode := &memInode{data: []byte("0123456789")}
	cache := pagecache.New(inode, alloc, nil, bootOwner())

	buf := make([]byte, mem.PageSize)
	n, eno := cache.Read(0, buf)
	fmt.Printf("pagecache: read past EOF copied %d bytes (err=%s)\n", n, eno)

	written, eno := cache.Write(int64(len(inode.data)), []byte(", kernel"))
	if eno != 0 {
		fmt.Printf("pagecache: write failed: %s\n", eno)
		return
	}
	fmt.Printf("pagecache: extended inode to %d bytes (%d written)\n", inode.Size(), written)
}

// bootOwner identifies the boot sequence itself to any spinlock touched
// before the first real thread exists, distinct from any thread's own
// identity so the spinlock's double-acquire check never mistakes it for a
// concurrent caller.
func bootOwner() spinlock.Owner { return spinlock.Owner{ID: ^uint64(0), IsThread: false} }

// schedulingScenario demonstrates the MLFQ run queue and the jiffies clock
// advancing across a handful of timer ticks (spec 4.4, 4.8).
func schedulingScenario(s *sched.Scheduler, clock *ktimer.Clock, timers *ktimer.Queue) {
	worker := kthread.New(1, 1, nil, "worker")
	worker.Sched.Priority = 2
	s.Enqueue(worker)

	fired := false
	if _, eno := timers.Create(nil, 0, func() { fired = true }, 20*time.Millisecond, 0); eno != 0 {
		fmt.Printf("sched: timer create failed: %s\n", eno)
	}

	for i := 0; i < 3; i++ {
		timers.Tick()
	}
	fmt.Printf("sched: jiffies=%d timer-fired=%v\n", clock.Jiffies(), fired)

	if shouldYield := s.Tick(worker); shouldYield {
		fmt.Println("sched: worker exhausted its quantum")
	} else {
		fmt.Println("sched: worker still has quantum remaining")
	}
}

// signalScenario demonstrates spec §8 scenario 2 (masked then unblocked
// signal dispatch, calling signal.Dispatch directly) and scenario 5
// (sigsuspend through the trap dispatcher's SuspendQueue).
func signalScenario(s *sched.Scheduler, dispatcher *trap.Dispatcher) {
	group := kthread.NewGroup(2)
	by := kthread.New(0, 0, nil, "sender")
	target := kthread.New(2, 2, nil, "target")
	group.AddMember(target)

	target.SigMask = target.SigMask.Set(signal.SIGUSR1)
	if eno := signal.Kill(s, by, target, signal.SIGUSR1, 0); eno != 0 {
		fmt.Printf("signal: kill failed: %s\n", eno)
		return
	}

	if outcome := signal.Dispatch(s, target); outcome != signal.OutcomeNone {
		fmt.Println("signal: masked signal must not be delivered yet")
		return
	}

	// spec §8 scenario 5: sigsuspend observes a signal already pending and
	// unmasked by the swapped-in mask without ever actually sleeping.
	if eno := dispatcher.SuspendQueue().SigSuspend(s, target, kthread.SigSet(0)); eno != kerr.EINTR {
		fmt.Printf("signal: sigsuspend returned unexpected %s\n", eno)
	} else {
		fmt.Println("signal: sigsuspend observed the already-pending signal without blocking")
	}

	var unblock kthread.SigSet
	unblock = unblock.Set(signal.SIGUSR1)
	_ = signal.SigProcMask(target, signal.SigUnblock, &unblock, nil)

	act := &kthread.Action{Disposition: kthread.SigHandled}
	_ = signal.SigAction(target, group, signal.SIGUSR1, act, nil)

	outcome := signal.Dispatch(s, target)
	fmt.Printf("signal: dispatch outcome after unblocking = %d (0=none,1=delivered)\n", outcome)
}

// trapScenario demonstrates spec 4.9's trap-entry algorithm directly: a
// registered exception handler runs, the timer vector advances the clock
// and sweeps the timer queue, and an unregistered IRQ is merely logged.
// th carries a nonzero timeslice throughout so the tail's quantum check
// never calls sched.Yield -- this scenario only exercises dispatch, not a
// live multi-thread scheduling handoff (schedulingScenario covers that).
func trapScenario(dispatcher *trap.Dispatcher) {
	th := kthread.New(3, 3, nil, "trapped")
	th.Sched.Timeslice = 1

	dispatcher.RegisterHandler(14, func(t *kthread.Thread, f *trap.Frame) {
		fmt.Println("trap: page fault handler ran")
	})

	dispatcher.Enter(th, &trap.Frame{Class: trap.ClassException, Vector: 14})
	dispatcher.Enter(th, &trap.Frame{Class: trap.ClassIRQ, Vector: trap.TimerVector})
	fmt.Println("trap: timer IRQ advanced the jiffies clock and swept the timer queue")
}
