// Package osmem is the allocator's only doorway to the operating
// system: it obtains and releases page-aligned extents of anonymous
// address space and answers the host page size. Every other package
// works on extents returned from here, no one else issues syscalls.
package osmem

import "os"
import "sync/atomic"
import "time"

var pagesize = int64(os.Getpagesize())

// Pagesize of the host, queried once at startup.
func Pagesize() int64 {
	return pagesize
}

// Pageroundup round `size` up to a whole number of pages.
func Pageroundup(size int64) int64 {
	return (size + pagesize - 1) &^ (pagesize - 1)
}

// Nanotime clock source for statistics, monotonic within the process.
func Nanotime() int64 {
	return time.Now().UnixNano()
}

// mapped bytes currently obtained from the OS, maintained by Map/Unmap.
var mapped int64

// Mapped return the number of bytes currently mapped via this package.
func Mapped() int64 {
	return atomic.LoadInt64(&mapped)
}

func accountmap(n int64) {
	atomic.AddInt64(&mapped, n)
}
