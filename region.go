package yalloc

import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/yalloc/osmem"

// classLarge sentinel slab-class of a region backing one large
// allocation.
const classLarge = int64(-1)

// region a single OS mapping carved into `ncells` cells of `slab`
// bytes each. The header below lives on the golang heap, out-of-band
// from the payload; the allocator writes inside a cell only while the
// cell is free. All header fields except remotehead, nremote and owner
// are mutated only by the owning cache.
type region struct {
	// 64-bit aligned, accessed atomically.
	nallocated int64          // cells handed out, includes cells pending remote free
	nremote    int64          // cells sitting in the remote-free stack
	remotehead unsafe.Pointer // top of the remote-free stack
	owner      unsafe.Pointer // *Cache, nil when unowned

	heap       *Heap
	class      int64 // index into heap.slabs, or classLarge
	slab       int64 // cell stride; usable bytes for classLarge
	ncells     int64
	maxused    int64 // cells at/after this index never left the free store
	generation int64 // bumped whenever a retained region is reissued
	offset     int64 // payload offset into mem, only for aligned larges
	mem        []byte
	base       uintptr
	free       freestore
}

// newregion format a fresh mapping as a region of `slab` sized cells.
func newregion(heap *Heap, class, slab int64, mem []byte) *region {
	r := &region{
		heap:   heap,
		class:  class,
		slab:   slab,
		ncells: int64(len(mem)) / slab,
		mem:    mem,
		base:   osmem.Base(mem),
	}
	if r.ncells > Maxcells {
		r.ncells = Maxcells
	}
	r.free = newfreestore(heap.flavor, r)
	return r
}

// newlarge wrap a dedicated mapping as a single-cell region. `offset`
// skips to the aligned payload for over-aligned allocations.
func newlarge(heap *Heap, mem []byte, offset int64) *region {
	r := &region{
		heap:       heap,
		class:      classLarge,
		slab:       int64(len(mem)) - offset,
		ncells:     1,
		nallocated: 1,
		maxused:    1,
		offset:     offset,
		mem:        mem,
		base:       osmem.Base(mem),
	}
	return r
}

func (r *region) cellptr(nthcell int64) unsafe.Pointer {
	return unsafe.Pointer(r.base + uintptr(r.offset) + uintptr(nthcell*r.slab))
}

// cellindex map a user pointer back to its cell, panics on a pointer
// that is not cell aligned (a sign of heap corruption or a stray
// pointer into the middle of a cell).
func (r *region) cellindex(ptr unsafe.Pointer) int64 {
	diffptr := uint64(uintptr(ptr) - (r.base + uintptr(r.offset)))
	if (diffptr % uint64(r.slab)) != 0 {
		panicerr("unaligned pointer %x into region %x/%v", diffptr, r.base, r.slab)
	}
	nthcell := int64(diffptr / uint64(r.slab))
	if nthcell >= r.ncells {
		panicerr("pointer beyond region cells %v/%v", nthcell, r.ncells)
	}
	return nthcell
}

// alloccell owner-only. Recycled cells come from the free store, after
// that the fresh tail of the mapping is bumped into use; fresh cells
// are zero-filled by the OS and have never been written.
func (r *region) alloccell() (ptr unsafe.Pointer, fresh, ok bool) {
	if nthcell, got := r.free.alloc(); got {
		ptr = r.cellptr(nthcell)
		initblock(uintptr(ptr), r.slab)
		atomic.AddInt64(&r.nallocated, 1)
		return ptr, false, true
	}
	if r.maxused < r.ncells {
		nthcell := r.maxused
		r.maxused++
		atomic.AddInt64(&r.nallocated, 1)
		return r.cellptr(nthcell), true, true
	}
	return nil, false, false
}

// freecell owner-only local free path.
func (r *region) freecell(ptr unsafe.Pointer) {
	r.free.free(r.cellindex(ptr))
	if n := atomic.AddInt64(&r.nallocated, -1); n < 0 {
		panicerr("region %x freed below zero", r.base)
	}
}

// freecells number of cells immediately allocatable by the owner.
func (r *region) freecells() int64 {
	return r.free.freecells() + (r.ncells - r.maxused)
}

// empty a region is empty only when every cell is back in the free
// store and no remote frees are pending.
func (r *region) empty() bool {
	return atomic.LoadInt64(&r.nallocated) == 0 &&
		atomic.LoadInt64(&r.nremote) == 0
}

func (r *region) size() int64 {
	return int64(len(r.mem))
}

func (r *region) ownerof() *Cache {
	return (*Cache)(atomic.LoadPointer(&r.owner))
}

func (r *region) setowner(c *Cache) {
	atomic.StorePointer(&r.owner, unsafe.Pointer(c))
}

func (r *region) casowner(old, new *Cache) bool {
	return atomic.CompareAndSwapPointer(
		&r.owner, unsafe.Pointer(old), unsafe.Pointer(new))
}

// reissue a retained region to a new owner.
func (r *region) reissue(c *Cache) {
	r.generation++
	r.setowner(c)
}

// selfcheck validate the region invariant,
//	nallocated + freecells + nremote == ncells
// Cells parked in cache magazines count as allocated.
func (r *region) selfcheck() {
	nallocated := atomic.LoadInt64(&r.nallocated)
	nremote := atomic.LoadInt64(&r.nremote)
	if n := nallocated + r.freecells(); n != r.ncells {
		panicerr("region %x invariant %v+%v+%v != %v",
			r.base, nallocated-nremote, r.freecells(), nremote, r.ncells)
	}
}
