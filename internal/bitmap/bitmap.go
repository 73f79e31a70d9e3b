// Package bitmap implements contiguous-range allocation over a bit array
// (spec C3), the structure backing each zone's allocation_bitmap. It is
// built on github.com/bits-and-blooms/bitset (vendored by the pack's
// kubernetes example) rather than a hand-rolled bit array, per the domain
// stack in SPEC_FULL.md.
package bitmap

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
)

// Bitmap tracks allocation state for nbits indices. A clear bit means free;
// a set bit means allocated, matching spec's "refcount==0 ⇔ bit clear"
// invariant in the caller (package mem) that owns the refcounts.
type Bitmap struct {
	bits *bitset.BitSet
	n    uint
}

// New returns a bitmap of nbits, all initially clear (free).
func New(nbits uint) *Bitmap {
	return &Bitmap{bits: bitset.New(nbits), n: nbits}
}

// Len returns the number of indices the bitmap tracks.
func (b *Bitmap) Len() uint { return b.n }

// Test reports whether bit i is set (allocated).
func (b *Bitmap) Test(i uint) bool { return b.bits.Test(i) }

// FindContiguousClear searches for the first run of n consecutive clear
// bits and returns its starting index. It returns kerr.ENOMEM if no such
// run exists and kerr.EINVAL for n == 0 or n > Len().
func (b *Bitmap) FindContiguousClear(n uint) (uint, kerr.Errno) {
	if n == 0 || n > b.n {
		return 0, kerr.EINVAL
	}
	run := uint(0)
	start := uint(0)
	for i := uint(0); i < b.n; i++ {
		if b.bits.Test(i) {
			run = 0
			continue
		}
		if run == 0 {
			start = i
		}
		run++
		if run == n {
			return start, 0
		}
	}
	return 0, kerr.ENOMEM
}

// SetRange marks [start, start+n) as allocated (set). Callers must have
// already verified the range is clear and in bounds.
func (b *Bitmap) SetRange(start, n uint) kerr.Errno {
	if start+n > b.n {
		return kerr.EINVAL
	}
	for i := start; i < start+n; i++ {
		b.bits.Set(i)
	}
	return 0
}

// ClearRange marks [start, start+n) as free (clear).
func (b *Bitmap) ClearRange(start, n uint) kerr.Errno {
	if start+n > b.n {
		return kerr.EINVAL
	}
	for i := start; i < start+n; i++ {
		b.bits.Clear(i)
	}
	return 0
}

// Count returns the number of set (allocated) bits.
func (b *Bitmap) Count() uint {
	return b.bits.Count()
}
