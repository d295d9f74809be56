package yalloc

import "sync/atomic"
import "unsafe"

// Remote-free stack. Caches other than the region's owner give cells
// back by pushing onto an intrusive lock-free stack threaded through
// the first word of the freed cell; the owner empties the stack with a
// single swap and folds the chain into the local free store. The link
// word is written before the CAS publishes the node, the swap
// acquires whatever the CAS released.

// remotefree multi-producer push, called by any cache that does not
// own the region.
func (r *region) remotefree(ptr unsafe.Pointer) {
	// count first, so a concurrent drain can only over-estimate the
	// pending cells and never under-estimate them.
	atomic.AddInt64(&r.nremote, 1)
	for {
		old := atomic.LoadPointer(&r.remotehead)
		*(*unsafe.Pointer)(ptr) = old
		if atomic.CompareAndSwapPointer(&r.remotehead, old, ptr) {
			break
		}
	}
}

// drainremotes single-consumer drain, called by the owner, or by the
// cache adopting an unowned region. Returns the number of cells
// reclaimed into the local free store.
func (r *region) drainremotes() int64 {
	head := atomic.SwapPointer(&r.remotehead, nil)
	drained := int64(0)
	for ptr := head; ptr != nil; {
		next := *(*unsafe.Pointer)(ptr)
		r.free.free(r.cellindex(ptr))
		ptr = next
		drained++
	}
	if drained > 0 {
		atomic.AddInt64(&r.nallocated, -drained)
		atomic.AddInt64(&r.nremote, -drained)
	}
	return drained
}
