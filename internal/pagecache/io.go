package pagecache

import (
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/mem"
)

// Read copies up to len(buf) bytes starting at off from the cache,
// returning the number of bytes that actually overlap the inode's current
// size; any remaining requested bytes are zeroed in buf, matching spec
// §8's read-past-EOF scenario (a 10-byte inode read at 4096 bytes returns
// copied=10 with the rest of buf zero).
func (c *Cache) Read(off int64, buf []byte) (int, kerr.Errno) {
	if off < 0 {
		return 0, kerr.EINVAL
	}

	size := c.inode.Size()
	avail := size - off
	if avail < 0 {
		avail = 0
	}
	want := int64(len(buf))
	copied := want
	if avail < want {
		copied = avail
	}

	remaining := copied
	cur := off
	for remaining > 0 {
		pgno := uint64(cur) / mem.PageSize
		pageOff := int(uint64(cur) % mem.PageSize)
		pg, err := c.GetPage(pgno)
		if err != 0 {
			return int(cur - off), err
		}
		n := mem.PageSize - pageOff
		if int64(n) > remaining {
			n = int(remaining)
		}
		dst := buf[cur-off : int64(cur-off)+int64(n)]
		copy(dst, pg.Data[pageOff:pageOff+n])

		cur += int64(n)
		remaining -= int64(n)
	}

	for i := copied; i < want; i++ {
		buf[i] = 0
	}

	return int(copied), 0
}

// Write copies len(buf) bytes into the cache starting at off, marking every
// touched page DIRTY and extending the inode's size if the write extends
// past the current end (spec 4.7). Allocating a new page on write-past-EOF
// is retried once on ENOMEM before giving up.
func (c *Cache) Write(off int64, buf []byte) (int, kerr.Errno) {
	if off < 0 {
		return 0, kerr.EINVAL
	}

	remaining := int64(len(buf))
	cur := off
	written := int64(0)

	for remaining > 0 {
		pgno := uint64(cur) / mem.PageSize
		pageOff := int(uint64(cur) % mem.PageSize)

		pg, err := c.GetPage(pgno)
		if err == kerr.ENOMEM {
			pg, err = c.GetPage(pgno)
		}
		if err != 0 {
			return int(written), err
		}

		n := mem.PageSize - pageOff
		if int64(n) > remaining {
			n = int(remaining)
		}
		src := buf[cur-off : int64(cur-off)+int64(n)]
		copy(pg.Data[pageOff:pageOff+n], src)
		pg.SetDirty()

		cur += int64(n)
		remaining -= int64(n)
		written += int64(n)
	}

	if cur > c.inode.Size() {
		if err := c.inode.UpdateSize(cur); err != 0 {
			return int(written), err
		}
	}

	return int(written), 0
}
