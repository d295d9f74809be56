// +build darwin dragonfly freebsd linux netbsd openbsd

package osmem

import "unsafe"

import "golang.org/x/sys/unix"

import "github.com/bnclabs/yalloc/api"

// Map obtain a page-aligned, zero-filled extent of at least `size`
// bytes from the OS, rounded up to a whole page. The extent is private
// anonymous memory, invisible to the golang garbage collector.
func Map(size int64) ([]byte, error) {
	if size <= 0 {
		return nil, api.ErrorInvalidArgument
	}
	size = Pageroundup(size)
	mem, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	accountmap(int64(len(mem)))
	return mem, nil
}

// Unmap release an extent obtained from Map. Behaviour is undefined if
// `mem` is not the same slice that Map returned.
func Unmap(mem []byte) error {
	n := int64(len(mem))
	if err := unix.Munmap(mem); err != nil {
		return err
	}
	accountmap(-n)
	return nil
}

// Base address of an extent returned by Map.
func Base(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
