package yalloc

import "runtime"
import "sync"
import "unsafe"

import s "github.com/bnclabs/gosettings"

import "github.com/bnclabs/yalloc/api"
import "github.com/bnclabs/yalloc/osmem"

// Heap a single allocator instance: the immutable slab table, the page
// directory, the per-slab region lists and the registry of caches.
// Heap methods are safe for concurrent use; the hot paths go through a
// leased cache, routines with sustained traffic should Register()
// their own.
type Heap struct {
	// 64-bit aligned, accessed atomically.
	epoch     int64 // bumped on every region retirement
	ngraves   int64
	heapbytes int64 // bytes currently mapped from the OS
	nregions  int64
	nlarges   int64
	nreleased int64 // mappings returned to the OS

	// configuration
	setts          s.Settings
	slabs          []int64
	capacity       int64
	smallthreshold int64
	largethreshold int64
	regionsize     int64
	cachedepth     int64
	cachebatch     int64
	retain         bool
	flavor         string
	statsevery     int64
	since          int64 // osmem.Nanotime at construction

	pgdir     *pagedir
	classes   []classlist
	cachemu   sync.Mutex
	caches    map[*Cache]bool
	leasepool chan *Cache
	largemu   sync.Mutex
	larges    map[*region]bool
	gravemu   sync.Mutex
	graveyard []grave
	released  bool
}

// classlist every live region of one slab size, in base-address order,
// plus the retained pool of emptied regions. The mutex is taken only
// on region creation, adoption and retirement.
type classlist struct {
	mu       sync.Mutex
	regions  []*region
	retained []*region
}

// grave a retired region awaiting quiescence before its mapping goes
// back to the OS.
type grave struct {
	r     *region
	epoch int64
}

// New create a heap. Settings missing from `setts` are taken from
// Defaultsettings(), invalid settings panic.
func New(setts ...s.Settings) *Heap {
	settings := Defaultsettings()
	for _, setts := range setts {
		settings = settings.Mixin(setts)
	}
	validatesettings(settings)

	h := &Heap{
		setts:          settings,
		capacity:       settings.Int64("capacity"),
		smallthreshold: settings.Int64("small.threshold"),
		largethreshold: settings.Int64("large.threshold"),
		regionsize:     settings.Int64("region.pages") * osmem.Pagesize(),
		cachedepth:     settings.Int64("cache.depth"),
		cachebatch:     settings.Int64("cache.batch"),
		retain:         settings.Bool("retain.regions"),
		flavor:         settings.String("allocator"),
		since:          osmem.Nanotime(),
		pgdir:          newpagedir(),
		caches:         make(map[*Cache]bool),
		larges:         make(map[*region]bool),
	}
	h.slabs = Slabsizes(settings.Int64("minblock"), h.largethreshold)
	if int64(len(h.slabs)) > Maxslabs {
		panicerr("number of slabs %v exceeds %v", len(h.slabs), Maxslabs)
	}
	h.classes = make([]classlist, len(h.slabs))
	h.leasepool = make(chan *Cache, 2*runtime.GOMAXPROCS(0))
	infof("%v started with %v slabs, %q regions of %v bytes\n",
		"yalloc", len(h.slabs), h.flavor, h.regionsize)
	return h
}

// Register a new cache with this heap. The caller owns the cache and
// must Close() it when its routine winds down.
func (h *Heap) Register() *Cache {
	h.cachemu.Lock()
	defer h.cachemu.Unlock()
	if h.released {
		panic(api.ErrorReleased)
	}
	c := newcache(h)
	h.caches[c] = true
	return c
}

func (h *Heap) dropcache(c *Cache) {
	h.cachemu.Lock()
	delete(h.caches, c)
	h.cachemu.Unlock()
}

// lease a warm cache for one operation on the heap surface, Register a
// fresh one when the pool runs dry.
func (h *Heap) lease() *Cache {
	select {
	case c := <-h.leasepool:
		return c
	default:
		return h.Register()
	}
}

func (h *Heap) unlease(c *Cache) {
	select {
	case h.leasepool <- c:
	default:
		c.Close()
	}
}

//---- api.Mallocer{} surface.

// Slabs implement api.Mallocer{} interface.
func (h *Heap) Slabs() []int64 {
	sizes := make([]int64, len(h.slabs))
	copy(sizes, h.slabs)
	return sizes
}

// Malloc implement api.Mallocer{} interface.
func (h *Heap) Malloc(n int64) (unsafe.Pointer, error) {
	c := h.lease()
	defer h.unlease(c)
	return c.Malloc(n)
}

// Free implement api.Mallocer{} interface.
func (h *Heap) Free(ptr unsafe.Pointer) {
	c := h.lease()
	defer h.unlease(c)
	c.Free(ptr)
}

// Realloc implement api.Mallocer{} interface.
func (h *Heap) Realloc(ptr unsafe.Pointer, n int64) (unsafe.Pointer, error) {
	c := h.lease()
	defer h.unlease(c)
	return c.Realloc(ptr, n)
}

// Calloc implement api.Mallocer{} interface.
func (h *Heap) Calloc(count, size int64) (unsafe.Pointer, error) {
	c := h.lease()
	defer h.unlease(c)
	return c.Calloc(count, size)
}

// AlignedAlloc allocate `n` bytes aligned to `align`, a power of 2
// dividing n.
func (h *Heap) AlignedAlloc(align, n int64) (unsafe.Pointer, error) {
	c := h.lease()
	defer h.unlease(c)
	return c.AlignedAlloc(align, n)
}

// Memalign allocate `n` bytes aligned to `align`, a power of 2
// multiple of the pointer word.
func (h *Heap) Memalign(align, n int64) (unsafe.Pointer, error) {
	c := h.lease()
	defer h.unlease(c)
	return c.Memalign(align, n)
}

// Usablesize implement api.Mallocer{} interface.
func (h *Heap) Usablesize(ptr unsafe.Pointer) int64 {
	c := h.lease()
	defer h.unlease(c)
	return c.Usablesize(ptr)
}

// Release implement api.Mallocer{} interface. Closes every registered
// cache and returns every mapping to the OS. No allocation may be
// live, and no other heap call may be in flight.
func (h *Heap) Release() {
	h.cachemu.Lock()
	if h.released {
		h.cachemu.Unlock()
		return
	}
	h.released = true
	caches := make([]*Cache, 0, len(h.caches))
	for c := range h.caches {
		caches = append(caches, c)
	}
	h.cachemu.Unlock()

	for _, c := range caches {
		c.Close()
	}
	for class := range h.classes {
		cl := &h.classes[class]
		cl.mu.Lock()
		for _, r := range append(cl.regions, cl.retained...) {
			h.pgdir.deregister(r.base, r.size())
			osmem.Unmap(r.mem)
		}
		cl.regions, cl.retained = nil, nil
		cl.mu.Unlock()
	}
	h.largemu.Lock()
	for r := range h.larges {
		h.pgdir.deregister(r.base, r.size())
		osmem.Unmap(r.mem)
	}
	h.larges = make(map[*region]bool)
	h.largemu.Unlock()
	h.gravemu.Lock()
	for _, g := range h.graveyard {
		osmem.Unmap(g.r.mem)
	}
	h.graveyard = nil
	h.gravemu.Unlock()
	infof("%v released\n", "yalloc")
}

var _ api.Mallocer = (*Heap)(nil)
