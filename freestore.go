package yalloc

import "unsafe"

// freestore per-region bookkeeping of freed cells. Implementations are
// mutated only by the region's owner; remote frees reach the store
// when the owner drains the region's remote stack.
type freestore interface {
	// alloc pop a free cell index, false when the store is empty.
	alloc() (int64, bool)

	// free push cell index back into the store.
	free(nthcell int64)

	// freecells number of cells in the store.
	freecells() int64

	// overhead golang memory consumed by the store itself.
	overhead() int64
}

// flist threads the free stack through the first machine word of each
// free cell, the store itself carries only the head index. While a
// cell sits in the store its first word is allocator-owned.
type flist struct {
	r    *region
	head int64 // cell index, -1 terminates
	n    int64
}

func newflist(r *region) *flist {
	return &flist{r: r, head: -1}
}

func (fl *flist) alloc() (int64, bool) {
	if fl.head < 0 {
		return -1, false
	}
	nthcell := fl.head
	fl.head = *(*int64)(fl.r.cellptr(nthcell))
	fl.n--
	return nthcell, true
}

func (fl *flist) free(nthcell int64) {
	*(*int64)(fl.r.cellptr(nthcell)) = fl.head
	fl.head = nthcell
	fl.n++
}

func (fl *flist) freecells() int64 {
	return fl.n
}

func (fl *flist) overhead() int64 {
	return int64(unsafe.Sizeof(*fl))
}

// fbit keeps the free stack as a two level bitmap outside the region
// payload, alloc returns the lowest free cell. Costlier than flist but
// detects double frees and never touches freed memory.
type fbit struct {
	fbits *freebits
}

func newfbit(r *region) *fbit {
	return &fbit{fbits: newfreebits(r.ncells)}
}

func (fb *fbit) alloc() (int64, bool) {
	return fb.fbits.alloc()
}

func (fb *fbit) free(nthcell int64) {
	fb.fbits.free(nthcell)
}

func (fb *fbit) freecells() int64 {
	return fb.fbits.freeblocks()
}

func (fb *fbit) overhead() int64 {
	return fb.fbits.sizeof()
}

func newfreestore(flavor string, r *region) freestore {
	switch flavor {
	case "flist":
		return newflist(r)
	case "fbit":
		return newfbit(r)
	}
	panicerr("invalid allocator %q", flavor)
	return nil
}
