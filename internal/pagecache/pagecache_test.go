package pagecache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/mem"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
)

// fakeInode is an in-memory contracts.Inode backed by a plain byte slice.
type fakeInode struct {
	mu   sync.Mutex
	data []byte
}

func newFakeInode(data []byte) *fakeInode {
	return &fakeInode{data: data}
}

func (f *fakeInode) ReadAt(off int64, buf []byte) (int, kerr.Errno) {
	if off >= int64(len(f.data)) {
		return 0, 0
	}
	n := copy(buf, f.data[off:])
	return n, 0
}

func (f *fakeInode) WriteAt(off int64, buf []byte) (int, kerr.Errno) {
	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	n := copy(f.data[off:], buf)
	return n, 0
}

func (f *fakeInode) UpdateSize(newSize int64) kerr.Errno {
	if newSize > int64(len(f.data)) {
		grown := make([]byte, newSize)
		copy(grown, f.data)
		f.data = grown
	} else {
		f.data = f.data[:newSize]
	}
	return 0
}

func (f *fakeInode) Size() int64 { return int64(len(f.data)) }
func (f *fakeInode) Lock()       { f.mu.Lock() }
func (f *fakeInode) Unlock()     { f.mu.Unlock() }

func testAllocator(t *testing.T) *mem.Allocator {
	t.Helper()
	a, err := mem.NewAllocator(&contracts.BootInfo{TotalMemory: 32 << 20}, nil)
	require.Equal(t, kerr.Errno(0), err)
	return a
}

func testOwner() spinlock.Owner { return spinlock.Owner{ID: 1, IsThread: true} }

var _ contracts.Inode = (*fakeInode)(nil)

func TestGetPageFillsFromInodeOnMiss(t *testing.T) {
	a := testAllocator(t)
	payload := make([]byte, mem.PageSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	inode := newFakeInode(payload)
	c := New(inode, a, nil, testOwner())

	pg, err := c.GetPage(0)
	require.Equal(t, kerr.Errno(0), err)
	assert.True(t, pg.Valid())
	assert.Equal(t, payload, pg.Data[:])
	assert.Equal(t, 1, c.Len())
}

func TestGetPageHitReturnsSamePage(t *testing.T) {
	a := testAllocator(t)
	inode := newFakeInode(make([]byte, mem.PageSize))
	c := New(inode, a, nil, testOwner())

	first, err := c.GetPage(3)
	require.Equal(t, kerr.Errno(0), err)
	second, err := c.GetPage(3)
	require.Equal(t, kerr.Errno(0), err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Len())
}

func TestReadPastEOFZeroFillsTail(t *testing.T) {
	a := testAllocator(t)
	short := []byte("0123456789") // 10 bytes
	inode := newFakeInode(short)
	c := New(inode, a, nil, testOwner())

	buf := make([]byte, mem.PageSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	n, err := c.Read(0, buf)
	require.Equal(t, kerr.Errno(0), err)
	assert.Equal(t, 10, n, "spec scenario: a 10-byte inode read at page size returns only 10 copied bytes")
	assert.Equal(t, short, buf[:10])
	for _, b := range buf[10:] {
		assert.Equal(t, byte(0), b, "bytes past EOF within the page are zero-filled, not left as garbage")
	}
}

func TestReadAtOffsetBeyondSizeReturnsZero(t *testing.T) {
	a := testAllocator(t)
	inode := newFakeInode([]byte("hi"))
	c := New(inode, a, nil, testOwner())

	buf := make([]byte, 16)
	n, err := c.Read(4096, buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, kerr.Errno(0), err)
}

func TestWriteExtendsInodeSizeAndMarksDirty(t *testing.T) {
	a := testAllocator(t)
	inode := newFakeInode(nil)
	c := New(inode, a, nil, testOwner())

	payload := []byte("hello, kernel")
	n, err := c.Write(0, payload)
	require.Equal(t, kerr.Errno(0), err)
	assert.Equal(t, len(payload), n)
	assert.EqualValues(t, len(payload), inode.Size())

	pg, err := c.GetPage(0)
	require.Equal(t, kerr.Errno(0), err)
	assert.True(t, pg.Dirty())
	assert.Equal(t, payload, pg.Data[:len(payload)])
}

func TestWriteWithinExistingSizeDoesNotShrink(t *testing.T) {
	a := testAllocator(t)
	inode := newFakeInode(make([]byte, 100))
	c := New(inode, a, nil, testOwner())

	_, err := c.Write(0, []byte("abc"))
	require.Equal(t, kerr.Errno(0), err)
	assert.EqualValues(t, 100, inode.Size())
}

func TestDetachPageRemovesFromIndex(t *testing.T) {
	a := testAllocator(t)
	inode := newFakeInode(make([]byte, mem.PageSize))
	c := New(inode, a, nil, testOwner())

	pg, err := c.GetPage(0)
	require.Equal(t, kerr.Errno(0), err)
	require.Equal(t, 1, c.Len())

	c.DetachPage(pg)
	assert.Equal(t, 0, c.Len())
}
