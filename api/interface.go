package api

import "unsafe"

// Mallocer interface for custom memory management.
type Mallocer interface {
	// Slabs allocatable slab of sizes.
	Slabs() (sizes []int64)

	// Malloc allocate a chunk of `n` bytes. Allocated memory is always
	// aligned to the slab's natural alignment. Returns ErrorOutofMemory
	// when the OS, or the configured capacity, refuses the allocation.
	Malloc(n int64) (unsafe.Pointer, error)

	// Free chunk back to its owning slab or mapping. Freeing nil is a
	// no-op.
	Free(ptr unsafe.Pointer)

	// Realloc resize the chunk to `n` bytes. If the new size falls in
	// the same slab the same pointer is returned, otherwise a new chunk
	// is allocated and min(old, n) bytes are copied over.
	Realloc(ptr unsafe.Pointer, n int64) (unsafe.Pointer, error)

	// Calloc allocate a zeroed chunk of `count*size` bytes, checking the
	// multiplication for overflow.
	Calloc(count, size int64) (unsafe.Pointer, error)

	// Usablesize return the chunk extent usable by the application,
	// which is at least the requested size.
	Usablesize(ptr unsafe.Pointer) int64

	// Info of memory accounting for this mallocer.
	Info() (capacity, heap, alloc, overhead int64)

	// Utilization map of slab-size and its utilization.
	Utilization() ([]int64, []float64)

	// Release the mallocer and all its mappings.
	Release()
}
