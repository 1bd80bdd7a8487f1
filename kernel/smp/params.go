package smp

import (
	"unsafe"

	"gopherboot/kernel"
	"gopherboot/kernel/mm"
)

// Params is the fixed-layout record a secondary core reads while executing
// the trampoline. The coordinator writes a core's slot strictly before
// signaling that core; from the trampoline's perspective the record is
// read-only. The layout is 32 bytes: entry (8), page-table root (8), stack
// top (8), core identifier (4), reserved (4).
type Params struct {
	// EntryAddr is the 64-bit kernel entry point the trampoline jumps to.
	EntryAddr uint64

	// PageTableRoot is the physical address of the shared page-table
	// hierarchy. It must equal the root published by the primary core.
	PageTableRoot uint64

	// StackTop is the initial stack pointer for this core.
	StackTop uint64

	// CoreID is the core's registry identifier, passed as the sole
	// argument to the kernel entry point.
	CoreID uint32

	reserved uint32
}

// ParamsSize is the per-slot stride of the trampoline parameter area.
const ParamsSize = uintptr(32)

// paramsAt overlays the Params layout on a parameter slot. Bring-up runs
// identity-mapped, so the physical slot address is dereferenced directly;
// tests place the parameter area in ordinary memory.
func paramsAt(base uintptr, coreID int) *Params {
	return (*Params)(unsafe.Pointer(base + uintptr(coreID)*ParamsSize))
}

// lowMemoryLimit is the 1MB boundary: the reset execution mode can only
// fetch code below it, so the trampoline must be placed underneath.
const lowMemoryLimit = uintptr(1 << 20)

var (
	// memcopyFn is mocked by tests which install blobs at addresses that
	// do not map to real memory.
	memcopyFn = kernel.Memcopy

	errBlobEmpty      = &kernel.Error{Module: "smp", Message: "trampoline image is empty"}
	errBlobTooLarge   = &kernel.Error{Module: "smp", Message: "trampoline image exceeds one page"}
	errBlobMisaligned = &kernel.Error{Module: "smp", Message: "trampoline load address is not page-aligned"}
	errBlobTooHigh    = &kernel.Error{Module: "smp", Message: "trampoline load address above the 1MB reset limit"}
)

// Blob is the position-fixed trampoline binary produced by the external
// assembly step. Bring-up consumes it as an opaque artifact: a byte string
// copied verbatim to its fixed low-physical load address.
type Blob struct {
	// Bytes is the assembled image.
	Bytes []byte

	// LoadAddr is the physical address the image was linked for.
	LoadAddr uintptr
}

// Validate checks the placement constraints imposed by the reset execution
// mode: the image must exist, fit in one page and be loaded page-aligned
// below 1MB so the startup vector can address it.
func (b *Blob) Validate() *kernel.Error {
	switch {
	case len(b.Bytes) == 0:
		return errBlobEmpty
	case uintptr(len(b.Bytes)) > mm.PageSize:
		return errBlobTooLarge
	case b.LoadAddr&(mm.PageSize-1) != 0:
		return errBlobMisaligned
	case b.LoadAddr+mm.PageSize > lowMemoryLimit:
		return errBlobTooHigh
	}

	return nil
}

// Install copies the image to its load address.
func (b *Blob) Install() *kernel.Error {
	if err := b.Validate(); err != nil {
		return err
	}

	memcopyFn(uintptr(unsafe.Pointer(&b.Bytes[0])), b.LoadAddr, uintptr(len(b.Bytes)))

	return nil
}

// Vector returns the startup-signal vector that makes a woken core begin
// executing at the blob's load address.
func (b *Blob) Vector() uint8 {
	return uint8(b.LoadAddr >> mm.PageShift)
}
