package kernel

import (
	"reflect"
	"unsafe"
)

// Memset sets size bytes starting at addr to the supplied value. Page table
// frames and trampoline parameter slots are cleared through this helper as
// the builtin memclr is not usable on raw physical addresses.
func Memset(addr uintptr, value byte, size uintptr) {
	if size == 0 {
		return
	}

	target := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: addr,
	}))

	// Set the first byte and then double the copied prefix; this needs
	// log2(size) copy calls for the aligned sizes used during bring-up.
	target[0] = value
	for index := uintptr(1); index < size; index *= 2 {
		copy(target[index:], target[:index])
	}
}

// Memcopy copies size bytes from src to dst. The regions must not overlap.
func Memcopy(src, dst uintptr, size uintptr) {
	if size == 0 {
		return
	}

	srcSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: src,
	}))
	dstSlice := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(size),
		Cap:  int(size),
		Data: dst,
	}))

	copy(dstSlice, srcSlice)
}
