package mem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

func testBoot() *contracts.BootInfo {
	return &contracts.BootInfo{TotalMemory: 16 << 20}
}

func testOwner() (cpu *spinlock.CPU, owner spinlock.Owner) {
	return spinlock.NewCPU(0), spinlock.Owner{ID: 1, IsThread: true}
}

func TestAllocOrderZeroFillsPage(t *testing.T) {
	a, err := NewAllocator(testBoot(), nil)
	require.Equal(t, kerr.Errno(0), err)
	cpu, owner := testOwner()

	pg, phys, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, true), 0)
	require.Equal(t, kerr.Errno(0), aerr)
	require.NotNil(t, pg)
	assert.EqualValues(t, 0, phys%PageSize, "page-aligned physical address")
	assert.EqualValues(t, 1, pg.Refcount())
	for _, b := range pg.Data {
		assert.Zero(t, b)
	}
}

func TestAllocFreeUsedCountRoundTrip(t *testing.T) {
	a, err := NewAllocator(testBoot(), nil)
	require.Equal(t, kerr.Errno(0), err)
	cpu, owner := testOwner()
	dma, _, _, _ := a.Zones()
	before := dma.UsedCount()

	const order = 2 // 1<<2 = 4 pages
	pg, phys, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), order)
	require.Equal(t, kerr.Errno(0), aerr)
	assert.EqualValues(t, 0, uint(phys)%(PageSize*(1<<order)), "order-aligned address")

	require.Equal(t, kerr.Errno(0), a.FreeOrder(cpu, owner, pg, order))
	assert.Equal(t, before, dma.UsedCount(), "used_count must return to its pre-alloc value")
}

func TestAllocOrderContiguousAndAligned(t *testing.T) {
	a, err := NewAllocator(testBoot(), nil)
	require.Equal(t, kerr.Errno(0), err)
	cpu, owner := testOwner()

	for order := uint(0); order <= 4; order++ {
		pg, phys, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), order)
		require.Equal(t, kerr.Errno(0), aerr, "order %d", order)
		assert.EqualValues(t, 0, uint(phys)%(PageSize*(1<<order)))
		require.Equal(t, kerr.Errno(0), a.FreeOrder(cpu, owner, pg, order))
	}
}

func TestAllocOrderTooLargeIsInvalid(t *testing.T) {
	a, _ := NewAllocator(testBoot(), nil)
	cpu, owner := testOwner()
	_, _, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), MaxOrder+1)
	assert.Equal(t, kerr.EINVAL, aerr)
}

func TestAllocOrderExhaustionReturnsNoMemWithoutPartialState(t *testing.T) {
	// A zone of 256 pages cannot satisfy MaxOrder's 1<<10 = 1024 pages.
	small := &contracts.BootInfo{TotalMemory: 1 << 20}
	a, _ := NewAllocator(small, nil)
	cpu, owner := testOwner()
	dma, _, _, _ := a.Zones()
	before := dma.UsedCount()

	_, _, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), MaxOrder)
	assert.Equal(t, kerr.ENOMEM, aerr)
	assert.Equal(t, before, dma.UsedCount(), "a failed alloc leaves no partial state")
}

func TestDoubleFreePanics(t *testing.T) {
	a, _ := NewAllocator(testBoot(), nil)
	cpu, owner := testOwner()
	pg, _, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), 0)
	require.Equal(t, kerr.Errno(0), aerr)
	require.Equal(t, kerr.Errno(0), a.FreeOrder(cpu, owner, pg, 0))
	assert.Panics(t, func() { a.FreeOrder(cpu, owner, pg, 0) })
}

func TestGetPutRefcounting(t *testing.T) {
	a, _ := NewAllocator(testBoot(), nil)
	cpu, owner := testOwner()
	pg, _, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), 0)
	require.Equal(t, kerr.Errno(0), aerr)

	a.Get(pg)
	assert.EqualValues(t, 2, pg.Refcount())
	a.Put(cpu, owner, pg)
	assert.EqualValues(t, 1, pg.Refcount())
	a.Put(cpu, owner, pg)
	assert.EqualValues(t, 0, pg.Refcount())
}

func TestAddrToPageResolvesWithinZone(t *testing.T) {
	a, _ := NewAllocator(testBoot(), nil)
	cpu, owner := testOwner()
	pg, phys, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), 0)
	require.Equal(t, kerr.Errno(0), aerr)

	got, rerr := a.AddrToPage(phys)
	require.Equal(t, kerr.Errno(0), rerr)
	assert.Same(t, pg, got)
}

// detacher records DetachPage calls without needing a real page cache.
type detacher struct {
	detached *Page
}

func (d *detacher) DetachPage(p *Page) { d.detached = p }

func TestFreeDetachesOwningCache(t *testing.T) {
	a, _ := NewAllocator(testBoot(), nil)
	cpu, owner := testOwner()
	pg, _, aerr := a.AllocOrder(cpu, owner, FlagsFor(DMA, false), 0)
	require.Equal(t, kerr.Errno(0), aerr)

	d := &detacher{}
	pg.OwningCache = d
	require.Equal(t, kerr.Errno(0), a.FreeOrder(cpu, owner, pg, 0))
	assert.Same(t, pg, d.detached)
	assert.Nil(t, pg.OwningCache)
}
