package yalloc

import "sync/atomic"
import "unsafe"

import humanize "github.com/dustin/go-humanize"

import "github.com/bnclabs/yalloc/osmem"

// Info implement api.Mallocer{} interface. `capacity` is the
// configured ceiling, `heap` the bytes currently mapped from the OS,
// `alloc` the bytes handed out to the application (cells parked in
// cache magazines count as handed out) and `overhead` an estimate of
// the golang memory spent managing it all.
func (h *Heap) Info() (capacity, heap, alloc, overhead int64) {
	capacity = h.capacity
	heap = atomic.LoadInt64(&h.heapbytes)
	overhead = int64(unsafe.Sizeof(*h))
	for class := range h.classes {
		cl := &h.classes[class]
		cl.mu.Lock()
		for _, r := range cl.regions {
			alloc += atomic.LoadInt64(&r.nallocated) * r.slab
			overhead += int64(unsafe.Sizeof(*r)) + r.free.overhead()
		}
		for _, r := range cl.retained {
			overhead += int64(unsafe.Sizeof(*r)) + r.free.overhead()
		}
		cl.mu.Unlock()
	}
	h.largemu.Lock()
	for r := range h.larges {
		alloc += r.slab
		overhead += int64(unsafe.Sizeof(*r))
	}
	h.largemu.Unlock()
	return capacity, heap, alloc, overhead
}

// Utilization implement api.Mallocer{} interface: per slab size, the
// percentage of region capacity handed out. Slabs with no region yet
// are omitted.
func (h *Heap) Utilization() ([]int64, []float64) {
	sizes := make([]int64, 0, len(h.slabs))
	zs := make([]float64, 0, len(h.slabs))
	for class, slab := range h.slabs {
		cl := &h.classes[class]
		cl.mu.Lock()
		capacity, allocated := int64(0), int64(0)
		for _, r := range cl.regions {
			capacity += r.ncells * r.slab
			allocated += atomic.LoadInt64(&r.nallocated) * r.slab
		}
		cl.mu.Unlock()
		if capacity > 0 {
			sizes = append(sizes, slab)
			zs = append(zs, (float64(allocated)/float64(capacity))*100)
		}
	}
	return sizes, zs
}

// Stats aggregate counters from the heap and every registered cache.
// Cache counters are read without stopping the caches, treat the
// numbers as an instantaneous approximation.
func (h *Heap) Stats() map[string]interface{} {
	var nallocs, nfrees, nremotes, nrefills, nflushes int64
	h_sizes := newsizehistogram(h)
	h.cachemu.Lock()
	ncaches := int64(len(h.caches))
	for c := range h.caches {
		nallocs += atomic.LoadInt64(&c.nallocs)
		nfrees += atomic.LoadInt64(&c.nfrees)
		nremotes += atomic.LoadInt64(&c.nremotes)
		nrefills += atomic.LoadInt64(&c.nrefills)
		nflushes += atomic.LoadInt64(&c.nflushes)
		c.statmu.Lock()
		h_sizes.Merge(c.h_sizes)
		c.statmu.Unlock()
	}
	h.cachemu.Unlock()

	capacity, heap, alloc, overhead := h.Info()
	stats := map[string]interface{}{
		"n_caches":    ncaches,
		"n_allocs":    nallocs,
		"n_frees":     nfrees,
		"n_remotes":   nremotes,
		"n_refills":   nrefills,
		"n_flushes":   nflushes,
		"n_regions":   atomic.LoadInt64(&h.nregions),
		"n_larges":    atomic.LoadInt64(&h.nlarges),
		"n_released":  atomic.LoadInt64(&h.nreleased),
		"n_graves":    atomic.LoadInt64(&h.ngraves),
		"n_slabs":     int64(len(h.slabs)),
		"capacity":    capacity,
		"heapbytes":   heap,
		"allocbytes":  alloc,
		"overhead":    overhead,
		"mappedbytes": atomic.LoadInt64(&h.heapbytes),
		"h_sizes":     h_sizes.Stats(),
		"mean.size":   h_sizes.Mean(),
	}
	return stats
}

// logstats one-line summary via the logger, used by the
// YALLOC_STATS-triggered dump on the default heap.
func (h *Heap) logstats() {
	stats := h.Stats()
	uptime := (osmem.Nanotime() - h.since) / 1e9
	fmsg := "%v up:%vs heap:%v alloc:%v regions:%v larges:%v " +
		"allocs:%v frees:%v remotes:%v\n"
	infof(fmsg, "yalloc", uptime,
		humanize.Bytes(uint64(stats["heapbytes"].(int64))),
		humanize.Bytes(uint64(stats["allocbytes"].(int64))),
		stats["n_regions"], stats["n_larges"],
		stats["n_allocs"], stats["n_frees"], stats["n_remotes"])
}

// Validate walk every region and check the accounting invariant,
//	allocated + free + pending-remote == cells
// Meant for tests and debugging; the heap must be quiescent, no
// concurrent allocation or free.
func (h *Heap) Validate() {
	for class := range h.classes {
		cl := &h.classes[class]
		cl.mu.Lock()
		for _, r := range cl.regions {
			r.selfcheck()
		}
		for _, r := range cl.retained {
			if r.empty() == false {
				panicerr("retained region %x not empty", r.base)
			}
			r.selfcheck()
		}
		cl.mu.Unlock()
	}
}
