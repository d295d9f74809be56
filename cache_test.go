package yalloc

import "sync/atomic"
import "testing"
import "unsafe"

import s "github.com/bnclabs/gosettings"

func testsettings() s.Settings {
	return s.Settings{
		"region.pages":    int64(16),
		"large.threshold": int64(4096),
		"cache.depth":     int64(8),
		"cache.batch":     int64(4),
	}
}

func TestCacheMagazine(t *testing.T) {
	h := New(testsettings())
	defer h.Release()
	c := h.Register()
	defer c.Close()

	// a refill hands one cell out and parks batch-1 in the magazine.
	ptrs := make([]unsafe.Pointer, 0, 9)
	ptr, err := c.Malloc(10)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	ptrs = append(ptrs, ptr)
	if x := len(c.mags[0].cells); x != 3 {
		t.Errorf("expected %v, got %v", 3, x)
	} else if x := atomic.LoadInt64(&c.nrefills); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
	for i := 0; i < 8; i++ {
		if ptr, err = c.Malloc(10); err != nil {
			t.Fatalf("unexpected failure %v", err)
		}
		ptrs = append(ptrs, ptr)
	}
	if x := atomic.LoadInt64(&c.nrefills); x != 3 {
		t.Errorf("expected %v, got %v", 3, x)
	}
	// frees park in the magazine, overflow flushes one batch.
	for _, ptr := range ptrs {
		c.Free(ptr)
	}
	if x := atomic.LoadInt64(&c.nflushes); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := int64(len(c.mags[0].cells)); x > c.mags[0].depth {
		t.Errorf("magazine %v beyond depth %v", x, c.mags[0].depth)
	}
	if x := atomic.LoadInt64(&c.nallocs); x != 9 {
		t.Errorf("expected %v, got %v", 9, x)
	} else if x := atomic.LoadInt64(&c.nfrees); x != 9 {
		t.Errorf("expected %v, got %v", 9, x)
	}
}

func TestCacheMagazineDepth(t *testing.T) {
	h := New(testsettings())
	defer h.Release()
	c := h.Register()
	defer c.Close()

	// small slabs get the configured depth, medium slabs a shallow one.
	for class, slab := range h.slabs {
		depth := c.mags[class].depth
		if slab <= h.smallthreshold && depth != h.cachedepth {
			t.Errorf("slab %v: expected %v, got %v", slab, h.cachedepth, depth)
		} else if slab > h.smallthreshold && depth != 4 {
			t.Errorf("slab %v: expected %v, got %v", slab, 4, depth)
		}
		if batch := c.mags[class].batch; batch > depth {
			t.Errorf("slab %v: batch %v beyond depth %v", slab, batch, depth)
		}
	}
}

func TestCacheDepthOverride(t *testing.T) {
	setts := testsettings()
	setts["cache.depth.32"] = int64(16)
	h := New(setts)
	defer h.Release()
	c := h.Register()
	defer c.Close()

	if x := c.mags[0].depth; x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if x := c.mags[1].depth; x != 8 {
		t.Errorf("expected %v, got %v", 8, x)
	}
}

func TestCacheOrphanAdopt(t *testing.T) {
	h := New(testsettings())
	c1 := h.Register()
	p, err := c1.Malloc(100)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	c1.Close() // p outlives the cache, its region is orphaned

	r := h.pgdir.lookup(p)
	if r == nil {
		t.Fatalf("region gone after close")
	} else if r.ownerof() != nil {
		t.Errorf("expected orphan, got owner %p", r.ownerof())
	}

	// the next cache allocating this slab adopts the orphan.
	c2 := h.Register()
	q, err := c2.Malloc(100)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	} else if x := h.pgdir.lookup(q); x != r {
		t.Errorf("expected adopted region %x, got %x", r.base, x.base)
	} else if r.ownerof() != c2 {
		t.Errorf("expected owner %p, got %p", c2, r.ownerof())
	}
	c2.Free(p)
	c2.Free(q)
	c2.Close()

	if _, heap, alloc, _ := h.Info(); alloc != 0 {
		t.Errorf("expected %v, got %v", 0, alloc)
	} else if heap != 0 {
		t.Errorf("expected %v, got %v", 0, heap)
	}
	h.Release()
}

func TestCacheRemoteFree(t *testing.T) {
	h := New(testsettings())
	c1, c2 := h.Register(), h.Register()
	p, err := c1.Malloc(50)
	if err != nil {
		t.Fatalf("unexpected failure %v", err)
	}
	r := h.pgdir.lookup(p)

	// c2 does not own the region, its flush goes down the remote path.
	c2.Free(p)
	c2.Close()
	if x := atomic.LoadInt64(&c2.nremotes); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := atomic.LoadInt64(&r.nremote); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
	r.selfcheck()

	c1.Close() // owner drains the remote stack and retires the region
	if x := atomic.LoadInt64(&r.nremote); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	if _, heap, alloc, _ := h.Info(); alloc != 0 || heap != 0 {
		t.Errorf("expected empty heap, got %v/%v", alloc, heap)
	}
	h.Release()
}

func TestCacheRetain(t *testing.T) {
	setts := testsettings()
	setts["retain.regions"] = true
	h := New(setts)
	defer h.Release()

	c := h.Register()
	p, _ := c.Malloc(100)
	r := h.pgdir.lookup(p)
	c.Free(p)
	c.Close()

	// region parked for reuse instead of unmapped.
	cl := &h.classes[r.class]
	if x := len(cl.retained); x != 1 {
		t.Fatalf("expected %v, got %v", 1, x)
	}
	gen := r.generation

	c = h.Register()
	q, _ := c.Malloc(100)
	if x := h.pgdir.lookup(q); x != r {
		t.Errorf("expected reissued region %x, got %x", r.base, x.base)
	} else if r.generation != gen+1 {
		t.Errorf("expected generation %v, got %v", gen+1, r.generation)
	}
	c.Free(q)
	c.Close()
}

func TestCacheCallocSpill(t *testing.T) {
	h := New(testsettings())
	defer h.Release()
	c := h.Register()
	defer c.Close()

	// enough zeroed chunks to spill past the first region, every pick
	// must land on a region that can actually serve a cell.
	_, slab := Suitableslab(h.slabs, 100)
	ncells := h.regionsize/slab + 8
	ptrs := make([]unsafe.Pointer, 0, ncells)
	for i := int64(0); i < ncells; i++ {
		ptr, err := c.Calloc(1, 100)
		if err != nil {
			t.Fatalf("unexpected failure %v", err)
		}
		for j := 0; j < 100; j++ {
			if b := *(*byte)(unsafe.Pointer(uintptr(ptr) + uintptr(j))); b != 0 {
				t.Fatalf("cell %v byte %v not zero", i, j)
			}
		}
		ptrs = append(ptrs, ptr)
	}
	if x := atomic.LoadInt64(&h.nregions); x < 2 {
		t.Errorf("expected multiple regions, got %v", x)
	}
	for _, ptr := range ptrs {
		c.Free(ptr)
	}
}

func TestCacheDetachHint(t *testing.T) {
	h := New(testsettings())
	defer h.Release()
	c := h.Register()

	// the hint must keep tracking its region when a lower one detaches.
	rs := []*region{
		{base: 0x1000, class: 0},
		{base: 0x2000, class: 0},
		{base: 0x3000, class: 0},
	}
	for _, r := range rs {
		c.insertowned(0, r)
	}
	c.cur[0] = 2
	c.detachowned(0, rs[0])
	if x := c.cur[0]; x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if c.owned[0][x] != rs[2] {
		t.Errorf("hint drifted to region %x", c.owned[0][x].base)
	}
	c.detachowned(0, rs[2])
	if x := c.cur[0]; x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	c.detachowned(0, rs[1])
	c.Close()
}

func TestCacheReleased(t *testing.T) {
	h := New(testsettings())
	defer h.Release()
	c := h.Register()
	c.Close()
	c.Close() // idempotent

	for _, fn := range []func(){
		func() { c.Malloc(10) },
		func() { c.Free(unsafe.Pointer(uintptr(0x1000))) },
		func() { c.Realloc(unsafe.Pointer(uintptr(0x1000)), 10) },
		func() { c.Calloc(1, 10) },
		func() { c.Usablesize(unsafe.Pointer(uintptr(0x1000))) },
	} {
		func() {
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("expected panic on closed cache")
				}
			}()
			fn()
		}()
	}
}
