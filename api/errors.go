package api

import "errors"

// ErrorOutofMemory operation cannot succeed because the OS refused a
// mapping, or the heap's configured capacity is exhausted.
var ErrorOutofMemory = errors.New("outofmemory")

// ErrorInvalidArgument operation cannot succeed because the supplied
// size or alignment is invalid, or a size multiplication overflowed.
var ErrorInvalidArgument = errors.New("invalidArgument")

// ErrorInvalidPointer operation was given a pointer that is not a live
// allocator pointer, or the pointer was freed twice.
var ErrorInvalidPointer = errors.New("invalidPointer")

// ErrorReleased operation cannot succeed because the heap, or the
// cache, is already released.
var ErrorReleased = errors.New("released")
