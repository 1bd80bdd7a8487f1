// Package table defines the fixed layouts of the ACPI tables consumed
// during bring-up: the root pointer, the common system descriptor header and
// the multiple APIC description table that enumerates the processor
// topology.
package table

// RSDPDescriptor defines the root system descriptor pointer for ACPI 1.0.
type RSDPDescriptor struct {
	// The signature must contain "RSD PTR " (last byte is a space).
	Signature [8]byte

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	Checksum uint8

	OEMID [6]byte

	// ACPI revision number: 0 for ACPI 1.0, 2 for 2.0 onwards.
	Revision uint8

	// Physical address of the 32-bit root system descriptor table.
	RSDTAddr uint32
}

// ExtRSDPDescriptor extends RSDPDescriptor with the 64-bit fields present
// when Revision > 1.
type ExtRSDPDescriptor struct {
	RSDPDescriptor

	// The size of the 64-bit root system descriptor table.
	Length uint32

	// Physical address of the 64-bit root system descriptor table.
	XSDTAddr uint64

	// A value that when added to the sum of all other bytes contained in
	// this descriptor should result in the value 0.
	ExtendedChecksum uint8

	reserved [3]byte
}

// SDTHeader defines the common header shared by all ACPI tables.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table including this header.
	Length uint32

	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	CreatorID       uint32
	CreatorRevision uint32
}

// MADTHeader follows the SDTHeader in the multiple APIC description table
// ("APIC" signature).
type MADTHeader struct {
	SDTHeader

	// LocalAPICAddr is the physical address each core uses to access its
	// local interrupt controller.
	LocalAPICAddr uint32

	Flags uint32
}

// MADT entry types consumed during topology discovery.
const (
	// MADTEntryLocalAPIC describes one processor-local interrupt
	// controller and therefore one logical processor.
	MADTEntryLocalAPIC uint8 = 0
)

// MADTEntryHeader precedes every entry in the MADT payload.
type MADTEntryHeader struct {
	Type   uint8
	Length uint8
}

// LocalAPICEntry describes a processor's local interrupt controller.
type LocalAPICEntry struct {
	MADTEntryHeader

	// ProcessorID is the ACPI processor UID.
	ProcessorID uint8

	// APICID is the identifier wake signals are addressed to.
	APICID uint8

	Flags uint32
}

// LocalAPICEnabled is set in LocalAPICEntry.Flags for usable processors.
const LocalAPICEnabled uint32 = 1 << 0
