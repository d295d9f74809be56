package lib

import "reflect"
import "unsafe"

// Memcpy copy memory block of length `ln` from `src` to `dst`. This
// function is useful if memory block is obtained outside golang runtime.
func Memcpy(dst, src unsafe.Pointer, ln int) int {
	var srcnd, dstnd []byte
	srcsl := (*reflect.SliceHeader)(unsafe.Pointer(&srcnd))
	srcsl.Len, srcsl.Cap = ln, ln
	srcsl.Data = (uintptr)(unsafe.Pointer(src))
	dstsl := (*reflect.SliceHeader)(unsafe.Pointer(&dstnd))
	dstsl.Len, dstsl.Cap = ln, ln
	dstsl.Data = (uintptr)(unsafe.Pointer(dst))
	return copy(dstnd, srcnd)
}

// Memzero clear `ln` bytes of memory starting at `ptr`. Useful for
// memory blocks obtained outside golang runtime.
func Memzero(ptr unsafe.Pointer, ln int) {
	var nd []byte
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&nd))
	sl.Len, sl.Cap = ln, ln
	sl.Data = (uintptr)(ptr)
	for i := range nd {
		nd[i] = 0
	}
}

// Memfill overwrite `ln` bytes of memory starting at `ptr` with `byt`.
func Memfill(ptr unsafe.Pointer, ln int, byt byte) {
	var nd []byte
	sl := (*reflect.SliceHeader)(unsafe.Pointer(&nd))
	sl.Len, sl.Cap = ln, ln
	sl.Data = (uintptr)(ptr)
	for i := range nd {
		nd[i] = byt
	}
}

// Ceil round up the division of divident by divisor.
func Ceil(divident, divisor int64) int64 {
	if divident%divisor == 0 {
		return divident / divisor
	}
	return (divident / divisor) + 1
}

// AlignUp round `n` up to the next multiple of `align`, where align is
// a power of 2.
func AlignUp(n, align int64) int64 {
	return (n + align - 1) &^ (align - 1)
}

// Ispowerof2 report whether `n` is a positive power of 2.
func Ispowerof2(n int64) bool {
	return n > 0 && (n&(n-1)) == 0
}
