// +build !debug

package yalloc

const poisoning = false

func initblock(block uintptr, size int64) {
}
