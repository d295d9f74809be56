package yalloc

import "sync"
import "sync/atomic"
import "unsafe"

import "github.com/bnclabs/yalloc/api"
import "github.com/bnclabs/yalloc/osmem"

// pagedir process-wide map from any live allocator pointer back to its
// owning region: a three level radix trie keyed on the page number of
// the address. Interior nodes are created lazily under pd.mu and
// published with an atomic store, lookups are wait-free and may run
// concurrently with register/deregister. Nodes are ordinary golang
// objects and are never released.
type pagedir struct {
	mu        sync.Mutex // serializes register/deregister
	pageshift uint
	l2shift   uint
	l3shift   uint
	l2mask    uint64
	l3mask    uint64
	maxpage   uint64
	root      []unsafe.Pointer // *pagenode entries
}

type pagenode struct {
	slots []unsafe.Pointer
}

// 64-bit hosts use the canonical 48-bit user address space, 32-bit
// hosts the full 32 bits.
func vabits() uint {
	if unsafe.Sizeof(uintptr(0)) == 4 {
		return 32
	}
	return 48
}

func newpagedir() *pagedir {
	pageshift := uint(0)
	for (int64(1) << pageshift) < osmem.Pagesize() {
		pageshift++
	}
	pagebits := vabits() - pageshift
	l3bits := pagebits / 3
	l2bits := pagebits / 3
	l1bits := pagebits - l2bits - l3bits
	pd := &pagedir{
		pageshift: pageshift,
		l2shift:   l3bits + l2bits,
		l3shift:   l3bits,
		l2mask:    (uint64(1) << l2bits) - 1,
		l3mask:    (uint64(1) << l3bits) - 1,
		maxpage:   (uint64(1) << pagebits) - 1,
		root:      make([]unsafe.Pointer, uint64(1)<<l1bits),
	}
	return pd
}

// node load the interior node at `slot`, creating and publishing it
// when absent. Callers hold pd.mu.
func (pd *pagedir) node(slot *unsafe.Pointer, width uint64) *pagenode {
	if p := atomic.LoadPointer(slot); p != nil {
		return (*pagenode)(p)
	}
	n := &pagenode{slots: make([]unsafe.Pointer, width)}
	atomic.StorePointer(slot, unsafe.Pointer(n))
	return n
}

func (pd *pagedir) leafslot(pn uint64, create bool) *unsafe.Pointer {
	i1 := pn >> pd.l2shift
	var n2 *pagenode
	if create {
		n2 = pd.node(&pd.root[i1], pd.l2mask+1)
	} else if p := atomic.LoadPointer(&pd.root[i1]); p != nil {
		n2 = (*pagenode)(p)
	} else {
		return nil
	}
	i2 := (pn >> pd.l3shift) & pd.l2mask
	var n3 *pagenode
	if create {
		n3 = pd.node(&n2.slots[i2], pd.l3mask+1)
	} else if p := atomic.LoadPointer(&n2.slots[i2]); p != nil {
		n3 = (*pagenode)(p)
	} else {
		return nil
	}
	return &n3.slots[pn&pd.l3mask]
}

// register associate every page in [base, base+size) with region `r`.
// Panics if any page is already registered to a different region,
// returns ErrorOutofMemory when the address falls outside the
// directory's reach.
func (pd *pagedir) register(base uintptr, size int64, r *region) error {
	first := uint64(base) >> pd.pageshift
	last := uint64(base+uintptr(size)-1) >> pd.pageshift
	if last > pd.maxpage {
		return api.ErrorOutofMemory
	}

	pd.mu.Lock()
	defer pd.mu.Unlock()

	for pn := first; pn <= last; pn++ {
		slot := pd.leafslot(pn, true)
		if old := atomic.LoadPointer(slot); old != nil {
			if (*region)(old) == r {
				continue // idempotent for identical arguments
			}
			panicerr("page %x already registered", pn<<pd.pageshift)
		}
	}
	for pn := first; pn <= last; pn++ {
		atomic.StorePointer(pd.leafslot(pn, true), unsafe.Pointer(r))
	}
	return nil
}

// lookup the region owning the cell that contains `ptr`, nil when the
// pointer is not a live allocator pointer. Wait-free.
func (pd *pagedir) lookup(ptr unsafe.Pointer) *region {
	pn := uint64(uintptr(ptr)) >> pd.pageshift
	if pn > pd.maxpage {
		return nil
	}
	slot := pd.leafslot(pn, false)
	if slot == nil {
		return nil
	}
	return (*region)(atomic.LoadPointer(slot))
}

// deregister remove the pages of [base, base+size). The caller's
// reclamation protocol guarantees no reader still holds the region by
// the time its mapping is returned to the OS.
func (pd *pagedir) deregister(base uintptr, size int64) {
	first := uint64(base) >> pd.pageshift
	last := uint64(base+uintptr(size)-1) >> pd.pageshift

	pd.mu.Lock()
	defer pd.mu.Unlock()

	for pn := first; pn <= last; pn++ {
		if slot := pd.leafslot(pn, false); slot != nil {
			atomic.StorePointer(slot, nil)
		}
	}
}
