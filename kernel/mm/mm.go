// Package mm defines the physical frame and virtual page primitives used
// during bring-up together with a fixed-capacity boot arena. No general
// allocator exists at this stage; every frame handed out before the
// synchronization barrier is published comes from the arena.
package mm

import (
	"math"

	"gopherboot/kernel"
)

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)).
	PointerShift = uintptr(3)

	// PageShift is equal to log2(PageSize).
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// Frame describes a physical memory page index.
type Frame uintptr

// InvalidFrame is returned by the arena when it cannot satisfy a request.
const InvalidFrame = Frame(math.MaxUint64)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame containing physAddr, rounding down for
// addresses that are not page-aligned.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(PageSize - 1)) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page containing virtAddr, rounding down for
// addresses that are not page-aligned.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(PageSize - 1)) >> PageShift)
}

var (
	// frameAllocator points to the frame source registered via
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	errNoFrameAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// SetFrameAllocator registers the frame source used by AllocFrame. During
// bring-up this is always the boot arena; tests register fakes.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// AllocFrame allocates a physical frame using the registered frame source.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoFrameAllocator
	}

	return frameAllocator()
}
