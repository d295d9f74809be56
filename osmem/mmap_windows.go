// +build windows

package osmem

import "reflect"
import "unsafe"

import "golang.org/x/sys/windows"

import "github.com/bnclabs/yalloc/api"

// Map obtain a page-aligned, zero-filled extent of at least `size`
// bytes from the OS, rounded up to a whole page.
func Map(size int64) ([]byte, error) {
	if size <= 0 {
		return nil, api.ErrorInvalidArgument
	}
	size = Pageroundup(size)
	base, err := windows.VirtualAlloc(
		0, uintptr(size),
		windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	var mem []byte
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&mem))
	sl.Data, sl.Len, sl.Cap = base, int(size), int(size)
	accountmap(size)
	return mem, nil
}

// Unmap release an extent obtained from Map.
func Unmap(mem []byte) error {
	n := int64(len(mem))
	base := uintptr(unsafe.Pointer(&mem[0]))
	if err := windows.VirtualFree(base, 0, windows.MEM_RELEASE); err != nil {
		return err
	}
	accountmap(-n)
	return nil
}

// Base address of an extent returned by Map.
func Base(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
