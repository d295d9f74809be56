package yalloc

import "math"
import "sort"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/yalloc/api"
import "github.com/bnclabs/yalloc/osmem"

// Region management, the cold side of the allocator: mapping fresh
// regions, adopting orphans, retiring and reclaiming empties. Every
// entry point here takes the slab's classlist mutex, never the hot
// allocation path.

// makeregion give `c` a region of `class` with free cells: the
// youngest retained empty when there is one, otherwise a fresh mapping
// formatted, registered with the page directory and spliced into the
// class list.
func (h *Heap) makeregion(c *Cache, class int64) (*region, error) {
	cl := &h.classes[class]
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if n := len(cl.retained); n > 0 {
		r := cl.retained[n-1]
		cl.retained = cl.retained[:n-1]
		r.reissue(c)
		cl.insert(r)
		return r, nil
	}

	if atomic.LoadInt64(&h.heapbytes)+h.regionsize > h.capacity {
		return nil, api.ErrorOutofMemory
	}
	mem, err := osmem.Map(h.regionsize)
	if err != nil {
		return nil, err
	}
	r := newregion(h, class, h.slabs[class], mem)
	r.setowner(c)
	if err := h.pgdir.register(r.base, r.size(), r); err != nil {
		osmem.Unmap(mem)
		return nil, err
	}
	atomic.AddInt64(&h.heapbytes, r.size())
	atomic.AddInt64(&h.nregions, 1)
	cl.insert(r)
	debugf("%v region %x slab:%v cells:%v\n", "yalloc", r.base, r.slab, r.ncells)
	return r, nil
}

// adopt claim the lowest-addressed unowned region of `class` that can
// still serve cells, typically orphaned by a closed cache.
func (h *Heap) adopt(c *Cache, class int64) *region {
	cl := &h.classes[class]
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for _, r := range cl.regions {
		if r.ownerof() != nil {
			continue
		}
		if r.freecells() > 0 || atomic.LoadInt64(&r.nremote) > 0 {
			if r.casowner(nil, c) {
				return r
			}
		}
	}
	return nil
}

// retire an empty region still owned by the caller: park it in the
// retained pool when the heap retains empties, otherwise pull it out
// of the page directory and leave it in the graveyard until no reader
// can still observe it. The region is delisted and disowned in one
// critical section, adopt scans the same list under the same mutex and
// skips owned regions, so a region mid-retirement can never be
// claimed.
func (h *Heap) retire(r *region) {
	cl := &h.classes[r.class]
	cl.mu.Lock()
	cl.remove(r)
	r.setowner(nil)
	if h.retain {
		cl.retained = append(cl.retained, r)
		cl.mu.Unlock()
		return
	}
	cl.mu.Unlock()

	h.pgdir.deregister(r.base, r.size())
	atomic.AddInt64(&h.nregions, -1)
	debugf("%v retired region %x slab:%v gen:%v\n",
		"yalloc", r.base, r.slab, r.generation)
	h.bury(r)
}

//---- large allocations, one mapping per object.

func (h *Heap) alloclarge(n, align int64) (unsafe.Pointer, error) {
	mapsize := n
	if align > osmem.Pagesize() {
		mapsize += align
	}
	if mapsize <= 0 || mapsize > h.capacity ||
		atomic.LoadInt64(&h.heapbytes)+mapsize > h.capacity {
		return nil, api.ErrorOutofMemory
	}
	mem, err := osmem.Map(mapsize)
	if err != nil {
		return nil, err
	}
	offset := int64(0)
	if align > osmem.Pagesize() {
		base := int64(osmem.Base(mem))
		offset = ((base + align - 1) &^ (align - 1)) - base
	}
	r := newlarge(h, mem, offset)
	if err := h.pgdir.register(r.base, r.size(), r); err != nil {
		osmem.Unmap(mem)
		return nil, err
	}
	atomic.AddInt64(&h.heapbytes, r.size())
	atomic.AddInt64(&h.nlarges, 1)
	h.largemu.Lock()
	h.larges[r] = true
	h.largemu.Unlock()
	return r.cellptr(0), nil
}

func (h *Heap) freelarge(r *region) {
	h.largemu.Lock()
	if h.larges[r] == false {
		h.largemu.Unlock()
		panicerr("double free of large mapping %x", r.base)
	}
	delete(h.larges, r)
	h.largemu.Unlock()

	h.pgdir.deregister(r.base, r.size())
	atomic.AddInt64(&r.nallocated, -1)
	atomic.AddInt64(&h.nlarges, -1)
	h.bury(r)
}

//---- reclamation.
//
// A retired region is deregistered first and only then assigned its
// grave epoch, while readers publish their epoch slot before touching
// the page directory. A grave may be unmapped once every cache is
// either idle or entered after the grave's epoch; such readers cannot
// have found the region.

func (h *Heap) bury(r *region) {
	epoch := atomic.AddInt64(&h.epoch, 1)
	h.gravemu.Lock()
	h.graveyard = append(h.graveyard, grave{r: r, epoch: epoch})
	atomic.StoreInt64(&h.ngraves, int64(len(h.graveyard)))
	h.gravemu.Unlock()
	h.reap()
}

func (h *Heap) reap() {
	min := h.minactiveepoch()

	h.gravemu.Lock()
	var unmaps []*region
	keep := h.graveyard[:0]
	for _, g := range h.graveyard {
		if g.epoch < min {
			unmaps = append(unmaps, g.r)
		} else {
			keep = append(keep, g)
		}
	}
	h.graveyard = keep
	atomic.StoreInt64(&h.ngraves, int64(len(keep)))
	h.gravemu.Unlock()

	for _, r := range unmaps {
		atomic.AddInt64(&h.heapbytes, -r.size())
		atomic.AddInt64(&h.nreleased, 1)
		osmem.Unmap(r.mem)
		r.mem, r.base = nil, 0
	}
}

func (h *Heap) minactiveepoch() int64 {
	min := int64(math.MaxInt64)
	h.cachemu.Lock()
	for c := range h.caches {
		if e := atomic.LoadInt64(&c.epoch); e > 0 && e < min {
			min = e
		}
	}
	h.cachemu.Unlock()
	return min
}

//---- classlist maintenance, callers hold cl.mu.

func (cl *classlist) insert(r *region) {
	cl.regions = append(cl.regions, r)
	sort.Slice(cl.regions, func(i, j int) bool {
		return cl.regions[i].base < cl.regions[j].base
	})
}

func (cl *classlist) remove(r *region) {
	for i, o := range cl.regions {
		if o == r {
			cl.regions = append(cl.regions[:i], cl.regions[i+1:]...)
			return
		}
	}
	panicerr("region %x missing from class list", r.base)
}
