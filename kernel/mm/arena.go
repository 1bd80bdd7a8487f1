package mm

import "gopherboot/kernel"

var (
	// memsetFn is mocked by tests which hand out frames that do not map
	// to real memory.
	memsetFn = kernel.Memset

	errArenaRegionTooSmall = &kernel.Error{Module: "mm", Message: "boot arena region cannot hold a single frame"}
	errArenaExhausted      = &kernel.Error{Module: "mm", Message: "boot arena exhausted"}
	errStackSlotOutOfRange = &kernel.Error{Module: "mm", Message: "stack slot index out of range"}
)

// BootArena is a bump allocator over a single usable physical region. It
// only ever moves forward: bring-up never frees a frame, so the arena has no
// free list and no metadata beyond a cursor.
type BootArena struct {
	next, limit Frame
}

// Init places the arena over the physical region [start, start+size). The
// region bounds are aligned inwards to page boundaries.
func (a *BootArena) Init(start, size uintptr) *kernel.Error {
	alignedStart := (start + PageSize - 1) & ^(PageSize - 1)
	end := (start + size) & ^(PageSize - 1)

	if alignedStart >= end {
		return errArenaRegionTooSmall
	}

	a.next = Frame(alignedStart >> PageShift)
	a.limit = Frame(end >> PageShift)

	return nil
}

// AllocFrame hands out the next free frame, cleared to zero.
func (a *BootArena) AllocFrame() (Frame, *kernel.Error) {
	if a.next == a.limit {
		return InvalidFrame, errArenaExhausted
	}

	frame := a.next
	a.next++

	memsetFn(frame.Address(), 0, PageSize)

	return frame, nil
}

// FramesRemaining returns the number of frames the arena can still hand out.
func (a *BootArena) FramesRemaining() uintptr {
	return uintptr(a.limit - a.next)
}

// StackSize is the fixed size of each per-core bring-up stack.
const StackSize = 4 * PageSize

// StackArea reserves one fixed-size stack slot per core out of the boot
// arena. Slots are indexed by core index and never recycled; the area is an
// arena of fixed-size slots rather than a growable collection so that no
// allocation happens once secondary cores start executing.
type StackArea struct {
	base  uintptr
	slots int
}

// Init carves slotCount stack slots out of the supplied arena. The bump
// arena hands out consecutive frames, so the slots form one contiguous
// physical range starting at Base().
func (sa *StackArea) Init(arena *BootArena, slotCount int) *kernel.Error {
	framesPerSlot := StackSize >> PageShift

	for i := 0; i < slotCount; i++ {
		for j := uintptr(0); j < framesPerSlot; j++ {
			frame, err := arena.AllocFrame()
			if err != nil {
				return err
			}

			if sa.base == 0 {
				sa.base = frame.Address()
			}
		}
	}

	sa.slots = slotCount

	return nil
}

// Base returns the physical base address of the stack area.
func (sa *StackArea) Base() uintptr {
	return sa.base
}

// Size returns the stack area extent in bytes.
func (sa *StackArea) Size() uintptr {
	return uintptr(sa.slots) * StackSize
}

// Top returns the initial stack pointer for the given slot. Stacks grow
// down, so the returned address is the exclusive upper bound of the slot.
func (sa *StackArea) Top(slot int) (uintptr, *kernel.Error) {
	if slot < 0 || slot >= sa.slots {
		return 0, errStackSlotOutOfRange
	}

	return sa.base + uintptr(slot+1)*StackSize, nil
}
