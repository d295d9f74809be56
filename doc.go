// Package yalloc supplies general purpose memory management outside
// the golang garbage collected heap, for long-running, concurrent
// processes. Address space is obtained from the OS as anonymous
// mappings and carved up three ways:
//
//   small  : cells up to small.threshold bytes, packed into regions.
//   medium : cells up to large.threshold bytes, packed into regions.
//   large  : one OS mapping per allocation.
//
// A region is a single mapping sliced into equal sized cells of one
// slab size. Slab sizes follow a geometric progression between
// `minblock` and `large.threshold`, with internal fragmentation
// bounded by MEMUtilization. Region metadata lives outside the
// mapping, the allocator writes inside a cell only while the cell is
// free.
//
// Allocation and free are mediated by a per-routine Cache, obtained
// with (*Heap).Register(). The cache holds bounded magazines of
// recently freed cells per slab, refilled and flushed in batches from
// the regions the cache owns. A cache may free a pointer belonging to
// another cache's region; such cells are handed back through the
// owning region's lock-free remote-free stack and reclaimed by the
// owner. The package level Malloc/Free surface leases caches from an
// internal pool, so casual callers need not manage caches themselves.
//
// Freeing a pointer recovers the owning region through a process-wide
// page directory, a radix trie keyed on the page number of the
// address. Readers of the directory are wait-free; emptied regions are
// unmapped only after an epoch discipline guarantees no reader can
// still observe them.
package yalloc

// TODO: MADV_FREE the payload of retained empty regions, so the OS can
// reclaim the pages while we keep the address range.
