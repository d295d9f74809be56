// +build debug

package yalloc

import "unsafe"

import "github.com/bnclabs/yalloc/lib"

// poisoning debug builds overwrite recycled cells with a pattern, so
// use-after-free reads are loud.
const poisoning = true

func initblock(block uintptr, size int64) {
	lib.Memfill(unsafe.Pointer(block), int(size), 0xde)
}
