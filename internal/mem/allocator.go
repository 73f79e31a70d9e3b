package mem

import (
	"fmt"

	"github.com/Emment-Yamikani/xytheros-go/internal/bitmap"
	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/klog"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"go.uber.org/zap"
)

// Zone boundaries per spec §3.
const (
	dmaStart    contracts.PhysAddr = 0
	dmaEnd      contracts.PhysAddr = 16 << 20
	normalEnd   contracts.PhysAddr = 2 << 30
	holeEnd     contracts.PhysAddr = 4 << 30
)

// Allocator owns the four zones and the kernel image's physical bounds, so
// alloc_order can assert a run never overlaps the running kernel (spec
// 4.2). It is the injectable replacement for biscuit's package-level zone
// globals (spec §9).
type Allocator struct {
	dma, normal, hole, high *Zone
	kernelBase              contracts.PhysAddr
	kernelSize              uintptr
	pager                   contracts.Pager
	log                     *zap.SugaredLogger
}

// NewAllocator partitions [0, boot.TotalMemory) into the four zones at the
// fixed zone boundaries (boot.MemoryMap and boot.Modules are not consulted)
// and reserves the kernel image's own pages as pre-allocated so they
// can never be handed out by alloc_order (spec §3's "a page with a nonzero
// refcount is never the kernel image" invariant, enforced here by simply
// never clearing those bits). pager may be nil if no HOLE/HIGH allocation
// will be exercised (e.g. small unit tests confined to DMA/NORMAL).
func NewAllocator(boot *contracts.BootInfo, pager contracts.Pager) (*Allocator, kerr.Errno) {
	if boot == nil {
		return nil, kerr.EINVAL
	}
	a := &Allocator{
		kernelBase: boot.KernelBase,
		kernelSize: boot.KernelSize,
		pager:      pager,
		log:        klog.New("mem"),
	}
	a.dma = newZone("dma", dmaStart, sizeWithin(boot, dmaStart, dmaEnd))
	a.normal = newZone("normal", dmaEnd, sizeWithin(boot, dmaEnd, normalEnd))
	a.hole = newZone("hole", normalEnd, sizeWithin(boot, normalEnd, holeEnd))
	highStart := holeEnd
	highSize := uintptr(0)
	if boot.TotalMemory > uintptr(highStart) {
		highSize = boot.TotalMemory - uintptr(highStart)
	}
	a.high = newZone("high", highStart, highSize)

	for _, z := range a.zones() {
		if z.npages() == 0 {
			continue
		}
		z.pages = make([]Page, z.npages())
		for i := range z.pages {
			z.pages[i].zone = z
			z.pages[i].idx = uint(i)
		}
		z.bm = bitmap.New(z.npages())
	}
	a.reserveKernelImage()
	return a, 0
}

func sizeWithin(boot *contracts.BootInfo, lo, hi contracts.PhysAddr) uintptr {
	if uintptr(hi) > boot.TotalMemory {
		hi = contracts.PhysAddr(boot.TotalMemory)
	}
	if hi <= lo {
		return 0
	}
	return uintptr(hi - lo)
}

func newZone(name string, start contracts.PhysAddr, size uintptr) *Zone {
	return &Zone{name: name, start: start, size: size, lock: spinlock.New("zone." + name)}
}

func (a *Allocator) zones() []*Zone { return []*Zone{a.dma, a.normal, a.hole, a.high} }

func (a *Allocator) zoneFor(w Whence) *Zone {
	switch w {
	case DMA:
		return a.dma
	case Normal, Any:
		return a.normal
	case Hole:
		return a.hole
	case High:
		return a.high
	default:
		return nil
	}
}

// reserveKernelImage marks the kernel image's own pages allocated in
// whichever zone(s) they fall into, with a sentinel refcount so Get/Put
// bookkeeping never touches them and alloc_order's overlap assertion never
// fires in practice.
func (a *Allocator) reserveKernelImage() {
	if a.kernelSize == 0 {
		return
	}
	lo := a.kernelBase
	hi := a.kernelBase + contracts.PhysAddr(a.kernelSize)
	for _, z := range a.zones() {
		if z.npages() == 0 {
			continue
		}
		zlo, zhi := z.start, z.start+contracts.PhysAddr(z.size)
		if hi <= zlo || lo >= zhi {
			continue
		}
		start := lo
		if start < zlo {
			start = zlo
		}
		end := hi
		if end > zhi {
			end = zhi
		}
		startIdx := uint(start-zlo) / PageSize
		endIdx := (uint(end-zlo) + PageSize - 1) / PageSize
		_ = z.bm.SetRange(startIdx, endIdx-startIdx)
		for i := startIdx; i < endIdx; i++ {
			z.pages[i].refcount.Store(1)
		}
	}
}

func overlapsKernel(a *Allocator, z *Zone, startIdx, n uint) bool {
	if a.kernelSize == 0 {
		return false
	}
	lo := a.kernelBase
	hi := a.kernelBase + contracts.PhysAddr(a.kernelSize)
	runLo := z.start + contracts.PhysAddr(startIdx*PageSize)
	runHi := runLo + contracts.PhysAddr(n*PageSize)
	return runHi > lo && runLo < hi
}

// AllocOrder allocates 1<<order contiguous frames, per spec 4.2.
func (a *Allocator) AllocOrder(cpu *spinlock.CPU, owner spinlock.Owner, flags Flags, order uint) (*Page, contracts.PhysAddr, kerr.Errno) {
	if order > MaxOrder {
		return nil, 0, kerr.EINVAL
	}
	w := flags.Whence()
	z := a.zoneFor(w)
	if z == nil {
		return nil, 0, kerr.EINVAL
	}
	if z.npages() == 0 {
		return nil, 0, kerr.ENOMEM
	}

	z.lock.Lock(cpu, owner, "mem/allocator.go", 0)
	defer z.lock.Unlock(cpu, owner)

	n := uint(1) << order
	start, err := z.bm.FindContiguousClear(n)
	if err != 0 {
		return nil, 0, kerr.ENOMEM
	}
	if overlapsKernel(a, z, start, n) {
		panic(fmt.Sprintf("mem: allocated run in zone %q overlaps kernel image", z.name))
	}
	if err := z.bm.SetRange(start, n); err != 0 {
		return nil, 0, kerr.ENOMEM
	}

	for i := start; i < start+n; i++ {
		p := &z.pages[i]
		if p.refcount.Load() != 0 {
			panic(fmt.Sprintf("mem: page %d in zone %q has nonzero refcount before alloc", i, z.name))
		}
		p.refcount.Store(1)
		p.resetFlags()
		p.setValid()
		if flags.Zero() {
			a.zeroPage(z, p)
		}
	}
	z.usedCount.Add(int64(n))
	return &z.pages[start], z.start + contracts.PhysAddr(start*PageSize), 0
}

// zeroPage clears a page's backing bytes. For DMA/NORMAL this models
// zeroing through the identity map directly; for HOLE/HIGH it mounts and
// unmounts a temporary mapping first (spec 4.2), exercising the Pager
// contract even though the simulated backing bytes live in Page.Data either
// way.
func (a *Allocator) zeroPage(z *Zone, p *Page) {
	switch z {
	case a.hole, a.high:
		if a.pager != nil {
			va, err := a.pager.Mount(p.PhysAddr())
			if err == 0 {
				defer a.pager.Unmount(va)
			}
		}
	}
	for i := range p.Data {
		p.Data[i] = 0
	}
}

// FreeOrder releases 1<<order contiguous frames previously returned by
// AllocOrder, per spec 4.2. Double-free is fatal.
func (a *Allocator) FreeOrder(cpu *spinlock.CPU, owner spinlock.Owner, p *Page, order uint) kerr.Errno {
	if p == nil || order > MaxOrder {
		return kerr.EINVAL
	}
	z := p.zone
	n := uint(1) << order
	if p.idx+n > z.npages() {
		return kerr.EINVAL
	}

	z.lock.Lock(cpu, owner, "mem/allocator.go", 0)
	defer z.lock.Unlock(cpu, owner)

	for i := p.idx; i < p.idx+n; i++ {
		pg := &z.pages[i]
		if pg.refcount.Load() == 0 {
			panic(fmt.Sprintf("mem: double-free of page %d in zone %q", i, z.name))
		}
		a.releaseOne(z, pg)
	}
	return 0
}

// releaseOne decrements one page's refcount and, if it reaches zero,
// reclaims it: clears the bitmap bit, resets flags, marks SWAPPABLE,
// detaches it from any page cache, and decrements the zone's used_count.
// Caller must hold z.lock.
func (a *Allocator) releaseOne(z *Zone, pg *Page) {
	rc := pg.refcount.Dec()
	if rc > 0 {
		return
	}
	if rc < 0 {
		panic(fmt.Sprintf("mem: refcount underflow on page %d in zone %q", pg.idx, z.name))
	}
	_ = z.bm.ClearRange(pg.idx, 1)
	pg.resetFlags()
	pg.setSwappable()
	if pg.OwningCache != nil {
		d := pg.OwningCache
		pg.OwningCache = nil
		d.DetachPage(pg)
	}
	z.usedCount.Add(-1)
}

// Get adds a reference to p (spec 4.2's get/put pair), used by the page
// cache and by anything else pinning a frame beyond the allocator's own
// allocated-bit bookkeeping.
func (a *Allocator) Get(p *Page) {
	p.refcount.Inc()
}

// Put drops a reference to p, reclaiming it through the same path as
// FreeOrder(order=0) when the count reaches zero.
func (a *Allocator) Put(cpu *spinlock.CPU, owner spinlock.Owner, p *Page) {
	z := p.zone
	z.lock.Lock(cpu, owner, "mem/allocator.go", 0)
	defer z.lock.Unlock(cpu, owner)
	if p.refcount.Load() == 0 {
		panic(fmt.Sprintf("mem: Put of already-free page %d in zone %q", p.idx, z.name))
	}
	a.releaseOne(z, p)
}

// AddrToPage resolves a physical address to its owning Page.
func (a *Allocator) AddrToPage(addr contracts.PhysAddr) (*Page, kerr.Errno) {
	for _, z := range a.zones() {
		if z.npages() == 0 {
			continue
		}
		lo, hi := z.start, z.start+contracts.PhysAddr(z.size)
		if addr >= lo && addr < hi {
			idx := uint(addr-lo) / PageSize
			return &z.pages[idx], 0
		}
	}
	return nil, kerr.EINVAL
}

// Zones exposes the four zones for diagnostics and tests.
func (a *Allocator) Zones() (dma, normal, hole, high *Zone) {
	return a.dma, a.normal, a.hole, a.high
}
