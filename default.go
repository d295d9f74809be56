package yalloc

import "os"
import "strconv"
import "sync"
import "sync/atomic"
import "unsafe"

import s "github.com/bnclabs/gosettings"

// The default heap behind the package level Malloc/Free surface,
// initialized on first use. Environment variables are read once at
// initialization:
//
//	YALLOC_STATS=N  log a statistics line every N allocator calls,
//	                N=1 picks a default interval.
//	YALLOC_RETAIN=N overrides the "retain.regions" policy, non-zero
//	                retains emptied regions.
var defaultheap *Heap
var defaultonce sync.Once
var defaultops int64

const defaultstatsevery = int64(100000)

// Default the heap behind the package level surface.
func Default() *Heap {
	defaultonce.Do(initdefault)
	return defaultheap
}

func initdefault() {
	setts := s.Settings{}
	if v := os.Getenv("YALLOC_RETAIN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			setts["retain.regions"] = n != 0
		} else {
			warnf("%v ignoring YALLOC_RETAIN=%q\n", "yalloc", v)
		}
	}
	h := New(setts)
	if v := os.Getenv("YALLOC_STATS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			h.statsevery = n
			if n == 1 {
				h.statsevery = defaultstatsevery
			}
		} else {
			warnf("%v ignoring YALLOC_STATS=%q\n", "yalloc", v)
		}
	}
	defaultheap = h
}

func (h *Heap) maybestats() {
	if h.statsevery > 0 {
		if atomic.AddInt64(&defaultops, 1)%h.statsevery == 0 {
			h.logstats()
		}
	}
}

// Malloc allocate `n` bytes from the default heap.
func Malloc(n int64) (unsafe.Pointer, error) {
	h := Default()
	h.maybestats()
	return h.Malloc(n)
}

// Free give `ptr` back to the default heap.
func Free(ptr unsafe.Pointer) {
	h := Default()
	h.maybestats()
	h.Free(ptr)
}

// Realloc resize `ptr` on the default heap.
func Realloc(ptr unsafe.Pointer, n int64) (unsafe.Pointer, error) {
	h := Default()
	h.maybestats()
	return h.Realloc(ptr, n)
}

// Calloc allocate zeroed memory from the default heap.
func Calloc(count, size int64) (unsafe.Pointer, error) {
	h := Default()
	h.maybestats()
	return h.Calloc(count, size)
}

// AlignedAlloc aligned allocation from the default heap.
func AlignedAlloc(align, n int64) (unsafe.Pointer, error) {
	h := Default()
	h.maybestats()
	return h.AlignedAlloc(align, n)
}

// Memalign posix_memalign-shaped allocation from the default heap.
func Memalign(align, n int64) (unsafe.Pointer, error) {
	h := Default()
	h.maybestats()
	return h.Memalign(align, n)
}

// Usablesize usable extent of a default-heap pointer.
func Usablesize(ptr unsafe.Pointer) int64 {
	return Default().Usablesize(ptr)
}
