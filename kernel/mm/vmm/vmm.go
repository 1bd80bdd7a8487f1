// Package vmm constructs the initial page-table hierarchy that every core
// shares during bring-up. The tables are built in boot-arena frames while
// the primary core still runs on the firmware-provided identity mapping, so
// table memory is addressed through its physical address directly. The
// finished hierarchy is published once and is read-only from every secondary
// core's perspective.
package vmm

import (
	"unsafe"

	"gopherboot/kernel"
	"gopherboot/kernel/cpu"
	"gopherboot/kernel/mm"
)

const (
	// pageLevels is the number of page-table levels for 4-level paging.
	pageLevels = 4

	// pageLevelBits is the number of virtual address bits indexing each
	// level's table.
	pageLevelBits = 9

	// entriesPerTable is the number of entries in one page table.
	entriesPerTable = 1 << pageLevelBits

	// ptePhysPageMask masks the physical frame address bits of an entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)

// pageLevelShifts holds the virtual address bit offset of each level's index,
// from the root table down to the final level.
var pageLevelShifts = [pageLevels]uintptr{39, 30, 21, 12}

// EntryFlag describes a flag that can be applied to a page table entry.
type EntryFlag uintptr

// The entry flags used during bring-up.
const (
	FlagPresent   EntryFlag = 1 << 0
	FlagRW        EntryFlag = 1 << 1
	FlagHugePage  EntryFlag = 1 << 7
	FlagNoExecute EntryFlag = 1 << 63
)

// pageTableEntry encodes a physical frame address and a set of EntryFlags.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags EntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// SetFlags sets the input list of flags on the page table entry.
func (pte *pageTableEntry) SetFlags(flags EntryFlag) {
	*pte = (pageTableEntry)(uintptr(*pte) | uintptr(flags))
}

// Frame returns the physical frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uintptr(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point to the given frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

var (
	// ptePtrFn returns a pointer to the entry at the given physical
	// address. Bring-up runs identity-mapped so the fallback dereferences
	// the address directly; tests override it to point into fake tables.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}

	// switchPDTFn is mocked by tests; loading a table root in user-mode
	// would fault.
	switchPDTFn = cpu.SwitchPDT

	errHugePageInWay = &kernel.Error{Module: "vmm", Message: "mapping collides with an existing huge page entry"}
)

// PageTable is the root of a 4-level page-table hierarchy under
// construction.
type PageTable struct {
	root mm.Frame
}

// New allocates and clears a root table frame from the registered frame
// source.
func New() (PageTable, *kernel.Error) {
	rootFrame, err := mm.AllocFrame()
	if err != nil {
		return PageTable{}, err
	}

	return PageTable{root: rootFrame}, nil
}

// Root returns the physical address of the root table. This is the value
// the coordinator writes into every secondary core's trampoline parameters;
// all cores must run on the same root.
func (pt PageTable) Root() uintptr {
	return pt.root.Address()
}

// Activate loads this table root on the calling core.
func (pt PageTable) Activate() {
	switchPDTFn(pt.root.Address())
}

// Map establishes a mapping from a virtual page to a physical frame,
// allocating intermediate tables from the registered frame source as needed.
func (pt PageTable) Map(page mm.Page, frame mm.Frame, flags EntryFlag) *kernel.Error {
	var err *kernel.Error

	pt.walk(page.Address(), func(level int, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(flags)
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errHugePageInWay
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			var tableFrame mm.Frame
			if tableFrame, err = mm.AllocFrame(); err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(tableFrame)
			pte.SetFlags(FlagPresent | FlagRW)
		}

		return true
	})

	return err
}

// IdentityMapRegion maps the physical region [start, start+size) at the
// virtual addresses equal to its physical addresses. The size is rounded up
// to the next page boundary.
func (pt PageTable) IdentityMapRegion(start mm.Frame, size uintptr, flags EntryFlag) *kernel.Error {
	pageCount := (size + mm.PageSize - 1) >> mm.PageShift

	for i := uintptr(0); i < pageCount; i++ {
		frame := start + mm.Frame(i)
		if err := pt.Map(mm.Page(frame), frame, flags); err != nil {
			return err
		}
	}

	return nil
}

// tableWalker receives the page table entry at each level of a walk. The
// walk is aborted when it returns false.
type tableWalker func(level int, pte *pageTableEntry) bool

// walk visits the page table entry that corresponds to virtAddr at every
// level of the hierarchy, from the root down. After each invocation the walk
// descends into the frame the (possibly updated) entry points to.
func (pt PageTable) walk(virtAddr uintptr, walkFn tableWalker) {
	tableAddr := pt.root.Address()

	for level := 0; level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & (entriesPerTable - 1)
		pte := (*pageTableEntry)(ptePtrFn(tableAddr + (entryIndex << mm.PointerShift)))

		if !walkFn(level, pte) {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}
