// Package mem implements the zoned, bitmap-backed physical frame allocator
// (spec C5): four zones (DMA, NORMAL, HOLE, HIGH), per-page reference
// counts, and order-N contiguous allocation. Grounded on biscuit's
// physical-page/refcount discipline (main.go's refup/refdown/refpg_new
// family) and on XytherOS's zone-per-range layout, restructured as an
// injectable Allocator rather than a pile of package globals per spec §9's
// "expose as explicitly initialized, lock-guarded module-level state"
// guidance -- here the explicit state lives in *Allocator so tests can run
// more than one in parallel.
package mem

import (
	"go.uber.org/atomic"

	"github.com/Emment-Yamikani/xytheros-go/internal/bitmap"
	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

// PageSize is the frame size in bytes.
const PageSize = 4096

// MaxOrder is the largest valid allocation order (inclusive); order > MaxOrder
// is EINVAL, order == MaxOrder is valid but may legitimately fail ENOMEM if
// no zone has a run that large (spec §8 boundary test).
const MaxOrder = 10

// Whence selects which zone an allocation should come from.
type Whence int

const (
	Any Whence = iota
	DMA
	Normal
	Hole
	High
)

// Flags packs a Whence selector and a ZERO bit into one value, per spec
// 4.2 ("flags carry a whence ... and a ZERO bit").
type Flags uint32

const zeroBit Flags = 1 << 6

// WithZero returns f with the ZERO bit set.
func (f Flags) WithZero() Flags { return f | zeroBit }

// Zero reports whether the ZERO bit is set.
func (f Flags) Zero() bool { return f&zeroBit != 0 }

// Whence extracts the whence selector from f.
func (f Flags) Whence() Whence { return Whence(f & 0x3f) }

// FlagsFor builds a Flags value from a whence and zero flag.
func FlagsFor(w Whence, zero bool) Flags {
	f := Flags(w)
	if zero {
		f = f.WithZero()
	}
	return f
}

// Page-level flags.
const (
	flagValid     uint32 = 1 << 0
	flagDirty     uint32 = 1 << 1
	flagSwappable uint32 = 1 << 2
)

// CacheDetacher lets a page's owning cache be notified when the page's
// refcount drops to zero and it is about to be reclaimed by the zone,
// matching spec 4.2's "detaches it from any page cache".
type CacheDetacher interface {
	DetachPage(p *Page)
}

// Page is one physical frame (spec §3). Identity is its index within its
// zone. Data models the frame's backing bytes directly since this is a
// hosted simulation kernel with no real physical memory of its own (the
// Pager contract is still exercised for HOLE/HIGH zeroing, see zeroPage).
type Page struct {
	zone        *Zone
	idx         uint
	flags       uint32
	refcount    atomic.Int64
	mapcount    atomic.Int64
	OwningCache CacheDetacher
	VirtualHint contracts.VirtAddr
	Data        [PageSize]byte
}

// Zone returns the owning zone.
func (p *Page) Zone() *Zone { return p.zone }

// Index returns the page's index within its zone.
func (p *Page) Index() uint { return p.idx }

// PhysAddr returns the page's physical address.
func (p *Page) PhysAddr() contracts.PhysAddr {
	return p.zone.start + contracts.PhysAddr(p.idx*PageSize)
}

// Refcount returns the current reference count.
func (p *Page) Refcount() int64 { return p.refcount.Load() }

func (p *Page) valid() bool   { return p.flags&flagValid != 0 }
func (p *Page) dirty() bool   { return p.flags&flagDirty != 0 }
func (p *Page) setValid()     { p.flags |= flagValid }
func (p *Page) setDirty()     { p.flags |= flagDirty }
func (p *Page) clearDirty()   { p.flags &^= flagDirty }
func (p *Page) resetFlags()   { p.flags = 0 }
func (p *Page) setSwappable() { p.flags |= flagSwappable }

// Valid reports whether the page's contents have been filled in (spec
// 4.7's VALID flag). Exported for package pagecache.
func (p *Page) Valid() bool { return p.valid() }

// Dirty reports whether the page has been written since last flush.
func (p *Page) Dirty() bool { return p.dirty() }

// SetValid marks the page VALID.
func (p *Page) SetValid() { p.setValid() }

// SetDirty marks the page DIRTY.
func (p *Page) SetDirty() { p.setDirty() }

// ClearDirty clears the page's DIRTY flag, e.g. after a cache flush.
func (p *Page) ClearDirty() { p.clearDirty() }

// Zone is a contiguous physical address range with independent allocation
// metadata (spec §3).
type Zone struct {
	name      string
	start     contracts.PhysAddr
	size      uintptr
	pages     []Page
	bm        *bitmap.Bitmap
	usedCount atomic.Int64
	lock      *spinlock.Spinlock
}

func (z *Zone) npages() uint { return uint(z.size / PageSize) }

// UsedCount returns the number of currently allocated pages in the zone.
func (z *Zone) UsedCount() int64 { return z.usedCount.Load() }

// Name returns the zone's diagnostic name.
func (z *Zone) Name() string { return z.name }
