// Package desc builds the static descriptor tables required for 64-bit
// execution: a three-entry GDT and a placeholder IDT. The primary core
// builds both exactly once; secondary cores load the same static tables
// instead of constructing their own, which keeps table setup free of races.
package desc

import (
	"sync/atomic"
	"unsafe"

	"gopherboot/kernel"
)

// SegmentDescriptor is a single 64-bit GDT entry. The field split follows
// the architectural layout: limit bits 0-15, base bits 0-15, base bits
// 16-23, the access byte, limit bits 16-19 packed with the flag nibble, and
// base bits 24-31.
type SegmentDescriptor struct {
	LimitLow   uint16
	BaseLow    uint16
	BaseMid    uint8
	AccessByte uint8
	LimitHigh  uint8
	BaseHigh   uint8
}

// Access byte and flag-nibble values for the bring-up segments.
const (
	// accessKernelCode: present, ring 0, code segment, executable,
	// readable.
	accessKernelCode uint8 = 0x9a

	// accessKernelData: present, ring 0, data segment, writable.
	accessKernelData uint8 = 0x92

	// flagsLongMode: 4KiB granularity with the long-mode (L) bit; the
	// D/B bit must be clear for 64-bit code segments.
	flagsLongMode uint8 = 0xa0

	// flagsData: 4KiB granularity, 32-bit operand size.
	flagsData uint8 = 0xc0
)

// Selector values matching the table layout below.
const (
	// SelectorKernelCode is the code segment selector loaded by every
	// core entering 64-bit mode.
	SelectorKernelCode uint16 = 0x08

	// SelectorKernelData is the data segment selector.
	SelectorKernelData uint16 = 0x10
)

// gdtEntries is the number of entries in the bring-up GDT: the mandatory
// null descriptor plus kernel code and data.
const gdtEntries = 3

// idtEntries is the architectural interrupt vector count.
const idtEntries = 256

// idtGate is a 16-byte long-mode interrupt gate. Bring-up installs no
// handlers; the zeroed gates make any early interrupt fault immediately
// instead of jumping through garbage.
type idtGate struct {
	offsetLow  uint16
	selector   uint16
	istAndType uint32
	offsetHigh uint64
}

// Pointer is the 10-byte pseudo-descriptor consumed by the table-load
// instructions: a 16-bit limit followed by the 64-bit table base.
type Pointer struct {
	Limit uint16
	Base  uint64
}

// Tables holds the static descriptor tables shared by every core.
type Tables struct {
	gdt [gdtEntries]SegmentDescriptor
	idt [idtEntries]idtGate

	gdtPointer Pointer
	idtPointer Pointer
}

// newSegmentDescriptor packs a segment descriptor from its base, 20-bit
// limit, access byte and flag nibble.
func newSegmentDescriptor(base, limit uint32, access, flags uint8) SegmentDescriptor {
	return SegmentDescriptor{
		LimitLow:   uint16(limit),
		BaseLow:    uint16(base),
		BaseMid:    uint8(base >> 16),
		AccessByte: access,
		LimitHigh:  uint8(limit>>16&0x0f) | flags&0xf0,
		BaseHigh:   uint8(base >> 24),
	}
}

var (
	// tables is the single process-wide table set; built is its one-time
	// construction latch.
	tables Tables
	built  uint32

	errAlreadyBuilt = &kernel.Error{Module: "desc", Message: "descriptor tables built twice"}
)

// Build constructs the static GDT and IDT. It must be invoked exactly once,
// by the primary core, before any secondary core is signaled.
func Build() (*Tables, *kernel.Error) {
	if !atomic.CompareAndSwapUint32(&built, 0, 1) {
		return nil, errAlreadyBuilt
	}

	tables.gdt[0] = SegmentDescriptor{}
	tables.gdt[SelectorKernelCode>>3] = newSegmentDescriptor(0, 0xfffff, accessKernelCode, flagsLongMode)
	tables.gdt[SelectorKernelData>>3] = newSegmentDescriptor(0, 0xfffff, accessKernelData, flagsData)

	tables.gdtPointer = Pointer{
		Limit: uint16(unsafe.Sizeof(tables.gdt) - 1),
		Base:  uint64(uintptr(unsafe.Pointer(&tables.gdt[0]))),
	}
	tables.idtPointer = Pointer{
		Limit: uint16(unsafe.Sizeof(tables.idt) - 1),
		Base:  uint64(uintptr(unsafe.Pointer(&tables.idt[0]))),
	}

	return &tables, nil
}

// GDTPointer returns the pseudo-descriptor for the shared GDT.
func (t *Tables) GDTPointer() *Pointer {
	return &t.gdtPointer
}

// IDTPointer returns the pseudo-descriptor for the shared IDT.
func (t *Tables) IDTPointer() *Pointer {
	return &t.idtPointer
}

// GDTEntry returns the descriptor that a selector refers to.
func (t *Tables) GDTEntry(selector uint16) *SegmentDescriptor {
	return &t.gdt[selector>>3]
}
