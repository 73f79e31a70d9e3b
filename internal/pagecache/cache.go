// Package pagecache implements the per-inode page cache (spec C6):
// page-number-indexed, lazily filled from the backing inode, with
// dirty/valid tracking and LRU-ordered eviction. Grounded on spec §3's
// "mapping page_number -> Page, plus an LRU-ordered queue and a lock" and
// on biscuit's page-cache-over-inode discipline (main.go's bdev_read /
// Vm_t page handling).
package pagecache

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/Emment-Yamikani/xytheros-go/internal/contracts"
	"github.com/Emment-Yamikani/xytheros-go/internal/kerr"
	"github.com/Emment-Yamikani/xytheros-go/internal/mem"
	"github.com/Emment-Yamikani/xytheros-go/internal/spinlock"
	"github.com/google/btree"
)

// DefaultLRUSize bounds how many pages one cache keeps resident before the
// least-recently-used entry is evicted.
const DefaultLRUSize = 256

// pcItem is the btree.Item keyed by page number (spec 4.7: "lookup is
// O(log n) in a balanced tree keyed by page number").
type pcItem struct {
	pgno uint64
	page *mem.Page
}

func (a pcItem) Less(than btree.Item) bool {
	return a.pgno < than.(pcItem).pgno
}

// Cache is one inode's page cache.
type Cache struct {
	lock  *spinlock.Spinlock
	cpu   *spinlock.CPU
	owner spinlock.Owner

	inode contracts.Inode
	alloc *mem.Allocator

	index   *btree.BTree
	byPage  map[*mem.Page]uint64
	lru     *lru.Cache
	pending []*mem.Page
}

// New returns an empty cache for inode, backed by alloc for page frames.
// owner identifies the caller to alloc's spinlocks (spec §5's shared-owner
// discipline); a dedicated system thread or the calling thread both work.
func New(inode contracts.Inode, alloc *mem.Allocator, cpu *spinlock.CPU, owner spinlock.Owner) *Cache {
	c := &Cache{
		lock:  spinlock.New("pagecache"),
		cpu:   cpu,
		owner: owner,
		inode:  inode,
		alloc:  alloc,
		index:  btree.New(32),
		byPage: make(map[*mem.Page]uint64),
	}
	l, _ := lru.NewWithEvict(DefaultLRUSize, c.onEvicted)
	c.lru = l
	return c
}

// onEvicted is golang-lru's callback, invoked synchronously from within
// lru.Cache.Add while c.lock is held. It must not itself acquire a zone
// lock (that would invert the zone-then-cache locking order DetachPage
// relies on), so it only removes the entry from the index and defers the
// allocator Put until after c.lock is released.
func (c *Cache) onEvicted(key interface{}, value interface{}) {
	pgno := key.(uint64)
	item := c.index.Delete(pcItem{pgno: pgno})
	if item == nil {
		return
	}
	page := item.(pcItem).page
	delete(c.byPage, page)
	c.pending = append(c.pending, page)
}

// flushPending releases allocator references queued by onEvicted. Caller
// must NOT hold c.lock.
func (c *Cache) flushPending() {
	for _, p := range c.pending {
		c.alloc.Put(c.cpu, c.owner, p)
	}
	c.pending = nil
}

// DetachPage implements mem.CacheDetacher: called by the allocator when a
// page's refcount reaches zero and it is being reclaimed, so the cache's
// own index never points at a freed page (spec 4.2's "detaches it from any
// page cache"). This is the one path where a zone lock is held by the
// caller, so it must not call back into the allocator.
func (c *Cache) DetachPage(p *mem.Page) {
	c.lock.Lock(c.cpu, c.owner, "pagecache/cache.go", 0)
	if pgno, ok := c.byPage[p]; ok {
		c.index.Delete(pcItem{pgno: pgno})
		delete(c.byPage, p)
		c.lru.Remove(pgno)
	}
	c.lock.Unlock(c.cpu, c.owner)
}

// GetPage returns the cached page for pgno, filling it from the inode on a
// miss (spec 4.7). The miss path allocates and reads outside the cache
// lock where possible, matching spec's own phrasing.
func (c *Cache) GetPage(pgno uint64) (*mem.Page, kerr.Errno) {
	c.lock.Lock(c.cpu, c.owner, "pagecache/cache.go", 0)
	if item := c.index.Get(pcItem{pgno: pgno}); item != nil {
		pg := item.(pcItem).page
		if pg.Valid() {
			c.lru.Add(pgno, struct{}{})
			c.lock.Unlock(c.cpu, c.owner)
			c.flushPending()
			return pg, 0
		}
	}
	c.lock.Unlock(c.cpu, c.owner)

	pg, _, err := c.alloc.AllocOrder(c.cpu, c.owner, mem.FlagsFor(mem.Normal, true), 0)
	if err != 0 {
		return nil, err
	}

	c.inode.Lock()
	n, rerr := c.inode.ReadAt(int64(pgno)*mem.PageSize, pg.Data[:])
	c.inode.Unlock()
	if rerr != 0 && rerr != kerr.ENOENT {
		c.alloc.Put(c.cpu, c.owner, pg)
		return nil, rerr
	}
	if n < mem.PageSize {
		for i := n; i < mem.PageSize; i++ {
			pg.Data[i] = 0
		}
	}
	pg.SetValid()

	c.lock.Lock(c.cpu, c.owner, "pagecache/cache.go", 0)
	if existing := c.index.Get(pcItem{pgno: pgno}); existing != nil {
		c.lock.Unlock(c.cpu, c.owner)
		c.alloc.Put(c.cpu, c.owner, pg)
		return existing.(pcItem).page, 0
	}
	pg.OwningCache = c
	c.index.ReplaceOrInsert(pcItem{pgno: pgno, page: pg})
	c.byPage[pg] = pgno
	c.lru.Add(pgno, struct{}{})
	c.lock.Unlock(c.cpu, c.owner)
	c.flushPending()

	return pg, 0
}

// Len reports the number of pages currently indexed.
func (c *Cache) Len() int {
	c.lock.Lock(c.cpu, c.owner, "pagecache/cache.go", 0)
	defer c.lock.Unlock(c.cpu, c.owner)
	return c.index.Len()
}
