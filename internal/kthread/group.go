package kthread

import (
	"sync"

	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

// Action flags (spec 4.6).
const (
	SAOnStack uint32 = 1 << iota
	SASiginfo
	SANoDefer
	SAResetHand
)

// Handler values for Action.Disposition.
type Disposition int

const (
	SigDefault Disposition = iota
	SigIgnore
	SigHandled
)

// HandlerFunc is the user-visible handler address placeholder; real
// dispatch into user context is built by package signal, which only needs
// to know *that* a handler is installed, not its real machine address
// (arch/ABI details are out of scope, spec §1).
type HandlerFunc func()

// Action is one sigaction(2) entry (spec §3 "per group: action[NSIG]").
type Action struct {
	Disposition Disposition
	Handler     HandlerFunc
	Mask        SigSet
	Flags       uint32
}

// SignalDescriptor is the thread-group-wide signal state (spec §3):
// per-signal actions, the group mask, pending set, and queued siginfo.
type SignalDescriptor struct {
	Lock    *spinlock.Spinlock
	Action  [NSIG]Action
	Mask    SigSet
	Pending SigSet
	queues  [NSIG]sigFIFO
}

// NewSignalDescriptor returns a descriptor with every signal defaulted to
// SigDefault.
func NewSignalDescriptor() *SignalDescriptor {
	return &SignalDescriptor{Lock: spinlock.New("group.signals")}
}

// PushSiginfo enqueues si on the group's per-signal queue and sets the
// group pending bit. Caller must hold Lock.
func (d *SignalDescriptor) PushSiginfo(si Siginfo) {
	d.queues[si.Signo].push(si)
	d.Pending = d.Pending.Set(si.Signo)
}

// PopSiginfo dequeues one queued siginfo for signo. Caller must hold Lock.
func (d *SignalDescriptor) PopSiginfo(signo int) (Siginfo, bool) {
	si, ok := d.queues[signo].pop()
	if !ok {
		return Siginfo{}, false
	}
	if d.queues[signo].empty() {
		d.Pending = d.Pending.Clear(signo)
	}
	return si, true
}

// FlushSiginfo discards all queued siginfo for signo. Caller must hold Lock.
func (d *SignalDescriptor) FlushSiginfo(signo int) {
	d.queues[signo] = sigFIFO{}
	d.Pending = d.Pending.Clear(signo)
}

// Group is a thread group: an ordered set of threads sharing mmap,
// file_ctx, credentials, and a signal descriptor (spec §3). One thread is
// the main thread; the group is destroyed when its last member is reaped.
type Group struct {
	Pid         uint64
	lock        sync.Mutex
	members     []*Thread
	mainTid     uint64
	Mmap        *Mmap
	FileCtx     *FileCtx
	Credentials Credentials
	Signals     *SignalDescriptor
}

// NewGroup creates an empty group whose main thread will be the first one
// added via AddMember.
func NewGroup(pid uint64) *Group {
	return &Group{
		Pid:     pid,
		Mmap:    &Mmap{},
		FileCtx: &FileCtx{},
		Signals: NewSignalDescriptor(),
	}
}

// AddMember adds t to the group; the first member added becomes the main
// thread.
func (g *Group) AddMember(t *Thread) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if len(g.members) == 0 {
		g.mainTid = t.Tid
	}
	t.Group = g
	g.members = append(g.members, t)
}

// RemoveMember removes t from the group, reporting whether the group is
// now empty (and should be destroyed).
func (g *Group) RemoveMember(t *Thread) (empty bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	for i, m := range g.members {
		if m == t {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	return len(g.members) == 0
}

// Members returns a snapshot slice of current members.
func (g *Group) Members() []*Thread {
	g.lock.Lock()
	defer g.lock.Unlock()
	out := make([]*Thread, len(g.members))
	copy(out, g.members)
	return out
}

// MainTid returns the tid of the group's main thread.
func (g *Group) MainTid() uint64 { return g.mainTid }
