package yalloc

import "fmt"
import "sort"
import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/yalloc/api"
import "github.com/bnclabs/yalloc/lib"
import "github.com/bnclabs/yalloc/osmem"

// Cache per-routine front-end to the heap. A cache holds one bounded
// magazine of recently freed cells per slab, refilled and flushed in
// batches, and owns the regions it allocates from. Caches are not
// thread safe; a routine either registers its own cache or goes
// through the package level surface which leases caches from a pool.
type Cache struct {
	// 64-bit aligned, accessed atomically.
	epoch    int64 // epoch the cache entered, 0 when idle
	nallocs  int64
	nfrees   int64
	nremotes int64
	nrefills int64
	nflushes int64

	heap     *Heap
	mags     []magazine
	owned    [][]*region // per slab, kept in base-address order
	cur      []int       // per slab hint, index into owned
	statmu   sync.Mutex  // guards h_sizes against Stats()
	h_sizes  *lib.HistogramInt64
	released bool
}

// magazine bounded stack of freed cells of one slab.
type magazine struct {
	cells []unsafe.Pointer
	depth int64 // high watermark
	batch int64 // refill/flush quantum
}

func newcache(heap *Heap) *Cache {
	c := &Cache{
		heap:    heap,
		mags:    make([]magazine, len(heap.slabs)),
		owned:   make([][]*region, len(heap.slabs)),
		cur:     make([]int, len(heap.slabs)),
		h_sizes: newsizehistogram(heap),
	}
	for class, slab := range heap.slabs {
		depth, batch := heap.cachedepth, heap.cachebatch
		if slab > heap.smallthreshold {
			if depth = depth / 8; depth < 4 {
				depth = 4
			}
		}
		// per slab override, eg "cache.depth.1024"
		key := fmt.Sprintf("cache.depth.%v", slab)
		if _, ok := heap.setts[key]; ok {
			if n := heap.setts.Int64(key); n > 0 {
				depth = n
			}
		}
		if batch > depth {
			batch = depth
		}
		c.mags[class] = magazine{depth: depth, batch: batch}
	}
	return c
}

//---- epoch discipline, see heap.go reclamation.

func (c *Cache) enterepoch() {
	atomic.StoreInt64(&c.epoch, atomic.LoadInt64(&c.heap.epoch)+1)
}

func (c *Cache) exitepoch() {
	atomic.StoreInt64(&c.epoch, 0)
	if atomic.LoadInt64(&c.heap.ngraves) > 0 {
		c.heap.reap()
	}
}

//---- operations

// Malloc allocate `n` bytes from the heap. Memory is aligned to at
// least Alignment, zero byte requests get a minimum-slab cell, so the
// returned pointer is always distinct and freeable.
func (c *Cache) Malloc(n int64) (unsafe.Pointer, error) {
	if c.released {
		panic(api.ErrorReleased)
	} else if n < 0 {
		return nil, api.ErrorInvalidArgument
	} else if n == 0 {
		n = 1
	}
	atomic.AddInt64(&c.nallocs, 1)
	c.addsize(n)
	if n >= c.heap.largethreshold {
		return c.heap.alloclarge(n, 0)
	}
	class, _ := Suitableslab(c.heap.slabs, n)
	if mag := &c.mags[class]; len(mag.cells) > 0 {
		ptr := mag.cells[len(mag.cells)-1]
		mag.cells = mag.cells[:len(mag.cells)-1]
		return ptr, nil
	}
	return c.refill(class)
}

// Free give `ptr` back to its owning region or mapping. Freeing nil is
// a no-op, freeing a pointer the allocator does not recognize panics.
func (c *Cache) Free(ptr unsafe.Pointer) {
	if c.released {
		panic(api.ErrorReleased)
	} else if ptr == nil {
		return
	}
	atomic.AddInt64(&c.nfrees, 1)

	c.enterepoch()
	defer c.exitepoch()

	r := c.heap.pgdir.lookup(ptr)
	if r == nil {
		panicerr("%w %x", api.ErrorInvalidPointer, uintptr(ptr))
	}
	if r.class == classLarge {
		if ptr != r.cellptr(0) {
			panicerr("free of interior large pointer %x", uintptr(ptr))
		}
		c.heap.freelarge(r)
		return
	}
	mag := &c.mags[r.class]
	mag.cells = append(mag.cells, ptr)
	if int64(len(mag.cells)) > mag.depth {
		c.flush(r.class, mag.batch)
	}
}

// Realloc resize `ptr` to n bytes. A nil ptr behaves as Malloc, a zero
// n behaves as Free and returns nil. When the new size stays within
// the chunk's slab, or within the last page of its large mapping, the
// pointer is returned unchanged.
func (c *Cache) Realloc(ptr unsafe.Pointer, n int64) (unsafe.Pointer, error) {
	if c.released {
		panic(api.ErrorReleased)
	} else if ptr == nil {
		return c.Malloc(n)
	} else if n == 0 {
		c.Free(ptr)
		return nil, nil
	} else if n < 0 {
		return nil, api.ErrorInvalidArgument
	}

	c.enterepoch()
	usable := int64(0)
	if r := c.heap.pgdir.lookup(ptr); r == nil {
		c.exitepoch()
		panicerr("%w %x", api.ErrorInvalidPointer, uintptr(ptr))
	} else if r.class == classLarge {
		if n <= r.slab && osmem.Pageroundup(r.offset+n) == r.size() {
			c.exitepoch()
			return ptr, nil
		}
		usable = r.slab
	} else {
		if n < c.heap.largethreshold {
			if class, _ := Suitableslab(c.heap.slabs, n); class == r.class {
				c.exitepoch()
				return ptr, nil
			}
		}
		usable = r.slab
	}
	c.exitepoch()

	newptr, err := c.Malloc(n)
	if err != nil {
		return nil, err
	}
	if usable > n {
		usable = n
	}
	lib.Memcpy(newptr, ptr, int(usable))
	c.Free(ptr)
	return newptr, nil
}

// Calloc allocate a zeroed chunk of count*size bytes. Fails with
// ErrorOutofMemory when the multiplication overflows. Cells carved
// fresh out of a zero-filled mapping skip the explicit zeroing.
func (c *Cache) Calloc(count, size int64) (unsafe.Pointer, error) {
	if c.released {
		panic(api.ErrorReleased)
	} else if count < 0 || size < 0 {
		return nil, api.ErrorInvalidArgument
	}
	n := count * size
	if count != 0 && n/count != size {
		return nil, api.ErrorOutofMemory
	} else if n == 0 {
		n = 1
	}
	atomic.AddInt64(&c.nallocs, 1)
	c.addsize(n)
	if n >= c.heap.largethreshold {
		return c.heap.alloclarge(n, 0) // mappings come zero-filled
	}

	// bypass the magazine, the region knows which cells are fresh.
	class, slab := Suitableslab(c.heap.slabs, n)
	r, err := c.pickregion(class)
	if err != nil {
		return nil, err
	}
	ptr, fresh, ok := r.alloccell()
	if ok == false {
		panicerr("picked region %x has no free cells", r.base)
	}
	if fresh == false {
		lib.Memzero(ptr, int(slab))
	}
	return ptr, nil
}

// AlignedAlloc allocate `n` bytes aligned to `align`, a power of 2
// dividing n. Alignments within the cell's natural alignment go
// through Malloc, stronger alignments get an oversized mapping.
func (c *Cache) AlignedAlloc(align, n int64) (unsafe.Pointer, error) {
	if lib.Ispowerof2(align) == false || n%align != 0 {
		return nil, api.ErrorInvalidArgument
	}
	return c.memalign(align, n)
}

// Memalign allocate `n` bytes aligned to `align`, a power of 2
// multiple of the pointer word.
func (c *Cache) Memalign(align, n int64) (unsafe.Pointer, error) {
	wordsz := int64(unsafe.Sizeof(uintptr(0)))
	if lib.Ispowerof2(align) == false || align%wordsz != 0 {
		return nil, api.ErrorInvalidArgument
	}
	return c.memalign(align, n)
}

func (c *Cache) memalign(align, n int64) (unsafe.Pointer, error) {
	if c.released {
		panic(api.ErrorReleased)
	}
	if align <= Sizeinterval {
		return c.Malloc(n)
	}
	atomic.AddInt64(&c.nallocs, 1)
	c.addsize(n)
	return c.heap.alloclarge(n, align)
}

// Usablesize the chunk extent usable by the application, at least the
// size requested when the chunk was allocated. Zero for nil.
func (c *Cache) Usablesize(ptr unsafe.Pointer) int64 {
	if c.released {
		panic(api.ErrorReleased)
	} else if ptr == nil {
		return 0
	}
	c.enterepoch()
	defer c.exitepoch()

	r := c.heap.pgdir.lookup(ptr)
	if r == nil {
		panicerr("%w %x", api.ErrorInvalidPointer, uintptr(ptr))
	}
	return r.slab
}

// Close flush every magazine, retire owned regions that drained empty,
// orphan the rest and deregister from the heap. Safe to call more than
// once.
func (c *Cache) Close() {
	if c.released {
		return
	}
	for class := range c.mags {
		c.flush(int64(class), int64(len(c.mags[class].cells)))
	}
	for class, regions := range c.owned {
		for _, r := range regions {
			r.drainremotes()
			if r.empty() {
				c.heap.retire(r)
			} else {
				r.setowner(nil)
			}
		}
		c.owned[class] = nil
	}
	c.released = true
	c.heap.dropcache(c)
}

//---- region plumbing, owner side.

// refill claim up to `batch` cells from a region, return one and park
// the rest in the magazine.
func (c *Cache) refill(class int64) (unsafe.Pointer, error) {
	r, err := c.pickregion(class)
	if err != nil {
		return nil, err
	}
	atomic.AddInt64(&c.nrefills, 1)
	ptr, _, ok := r.alloccell()
	if ok == false {
		panicerr("picked region %x has no free cells", r.base)
	}
	mag := &c.mags[class]
	for int64(len(mag.cells)) < mag.batch-1 {
		cell, _, ok := r.alloccell()
		if ok == false {
			break
		}
		mag.cells = append(mag.cells, cell)
	}
	return ptr, nil
}

// pickregion settle on the owned region serving the next allocation of
// `class`: the lowest-addressed owned region with free cells, else the
// lowest with drainable remote frees, else adopt an orphan, else a
// fresh region from the OS.
func (c *Cache) pickregion(class int64) (*region, error) {
	owned := c.owned[class]
	if cur := c.cur[class]; cur < len(owned) && owned[cur].freecells() > 0 {
		return owned[cur], nil
	}
	for i, r := range owned {
		if r.freecells() > 0 {
			c.cur[class] = i
			return r, nil
		}
	}
	for i, r := range owned {
		if atomic.LoadInt64(&r.nremote) > 0 && r.drainremotes() > 0 {
			c.cur[class] = i
			return r, nil
		}
	}
	if r := c.heap.adopt(c, class); r != nil {
		c.insertowned(class, r)
		r.drainremotes()
		if r.freecells() > 0 {
			return r, nil
		}
	}
	r, err := c.heap.makeregion(c, class)
	if err != nil {
		return nil, err
	}
	c.insertowned(class, r)
	return r, nil
}

func (c *Cache) insertowned(class int64, r *region) {
	owned := append(c.owned[class], r)
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].base < owned[j].base
	})
	c.owned[class] = owned
	for i, o := range owned {
		if o == r {
			if i <= c.cur[class] {
				c.cur[class] = i
			}
			break
		}
	}
}

func (c *Cache) detachowned(class int64, r *region) {
	owned := c.owned[class]
	for i, o := range owned {
		if o == r {
			c.owned[class] = append(owned[:i], owned[i+1:]...)
			if i < c.cur[class] {
				c.cur[class]--
			} else if c.cur[class] >= len(c.owned[class]) {
				c.cur[class] = 0
			}
			return
		}
	}
	panicerr("region %x not owned by cache", r.base)
}

// flush return up to `count` magazine cells to their regions, local
// path for regions this cache owns, remote-free stack otherwise.
func (c *Cache) flush(class int64, count int64) {
	mag := &c.mags[class]
	if count > int64(len(mag.cells)) {
		count = int64(len(mag.cells))
	}
	if count == 0 {
		return
	}
	atomic.AddInt64(&c.nflushes, 1)
	victims := mag.cells[int64(len(mag.cells))-count:]
	mag.cells = mag.cells[:int64(len(mag.cells))-count]
	for _, ptr := range victims {
		r := c.heap.pgdir.lookup(ptr)
		if r == nil {
			panicerr("magazine cell %x lost its region", uintptr(ptr))
		}
		if r.ownerof() == c {
			c.localfree(r, ptr)
		} else {
			atomic.AddInt64(&c.nremotes, 1)
			r.remotefree(ptr)
		}
	}
}

// localfree owner path; a region dropping to empty is retired when the
// slab keeps at least one other region, a full region turning partial
// becomes current again when its address is lower.
func (c *Cache) localfree(r *region, ptr unsafe.Pointer) {
	wasfull := r.freecells() == 0
	r.freecell(ptr)
	if r.empty() && len(c.owned[r.class]) > 1 {
		c.detachowned(r.class, r)
		c.heap.retire(r)
		return
	}
	if wasfull {
		owned := c.owned[r.class]
		if cur := c.cur[r.class]; cur < len(owned) && r.base < owned[cur].base {
			for i, o := range owned {
				if o == r {
					c.cur[r.class] = i
					break
				}
			}
		}
	}
}

// addsize account the request size, Stats merges histograms from live
// caches under the same mutex.
func (c *Cache) addsize(n int64) {
	c.statmu.Lock()
	c.h_sizes.Add(n)
	c.statmu.Unlock()
}

func newsizehistogram(heap *Heap) *lib.HistogramInt64 {
	return lib.NewhistorgramInt64(0, heap.largethreshold, Sizeinterval)
}
