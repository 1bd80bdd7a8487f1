// Package acpi locates and parses the firmware ACPI tables that bring-up
// needs: the root pointer, the root system descriptor table and the MADT,
// which yields the processor topology and the local interrupt controller
// base. Bring-up runs with low memory identity-mapped, so tables are
// accessed through their physical addresses directly.
package acpi

import (
	"unsafe"

	"gopherboot/device/acpi/table"
	"gopherboot/kernel"
)

const (
	acpiRev1     uint8 = 0
	acpiRev2Plus uint8 = 2

	madtSignature = "APIC"
)

var (
	// The RSDP must live in the physical region 0xe0000-0xfffff, aligned
	// on a 16-byte boundary. Tests point these at fabricated buffers.
	rsdpLocationLow uintptr = 0xe0000
	rsdpLocationHi  uintptr = 0xfffff
	rsdpAlignment   uintptr = 16

	rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

	errMissingRSDP      = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}
	errChecksumMismatch = &kernel.Error{Module: "acpi", Message: "ACPI table checksum mismatch"}
	errMissingMADT      = &kernel.Error{Module: "acpi", Message: "firmware tables contain no MADT"}
	errTooManyCPUs      = &kernel.Error{Module: "acpi", Message: "MADT enumerates more processors than the topology table can hold"}
)

// MaxCPUs is the fixed capacity of the discovered topology. The registry is
// an arena of fixed-size slots, so the bound is part of the data contract.
const MaxCPUs = 32

// CPU describes one logical processor discovered in the MADT.
type CPU struct {
	// ProcessorID is the ACPI processor UID.
	ProcessorID uint8

	// APICID identifies this processor's local interrupt controller;
	// wake signals are addressed to it.
	APICID uint8
}

// Topology is the result of processor topology discovery.
type Topology struct {
	// LocalAPICAddr is the physical base of the local interrupt
	// controller register block.
	LocalAPICAddr uintptr

	// CPUs holds one entry per enabled logical processor; only the first
	// CPUCount entries are valid.
	CPUs     [MaxCPUs]CPU
	CPUCount int
}

// DiscoverTopology parses the firmware ACPI tables rooted at rsdpAddr and
// returns the processor topology. When the bootloader recorded a null ACPI
// root, the legacy low-memory RSDP scan is used as a fallback.
func DiscoverTopology(rsdpAddr uintptr) (*Topology, *kernel.Error) {
	if rsdpAddr == 0 {
		var err *kernel.Error
		if rsdpAddr, err = locateRSDP(); err != nil {
			return nil, err
		}
	}

	rootAddr, use64BitPointers, err := parseRSDP(rsdpAddr)
	if err != nil {
		return nil, err
	}

	madt, err := findMADT(rootAddr, use64BitPointers)
	if err != nil {
		return nil, err
	}

	return parseMADT(madt)
}

// locateRSDP scans the BIOS region for the RSDP signature, validating the
// checksum of each candidate.
func locateRSDP() (uintptr, *kernel.Error) {
checkNextBlock:
	for curPtr := rsdpLocationLow; curPtr < rsdpLocationHi; curPtr += rsdpAlignment {
		rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(curPtr))
		for i, b := range rsdpSignature {
			if rsdp.Signature[i] != b {
				continue checkNextBlock
			}
		}

		length := uint32(unsafe.Sizeof(table.RSDPDescriptor{}))
		if rsdp.Revision >= acpiRev2Plus {
			length = uint32(unsafe.Sizeof(table.ExtRSDPDescriptor{}))
		}

		if !validTable(curPtr, length) {
			continue
		}

		return curPtr, nil
	}

	return 0, errMissingRSDP
}

// parseRSDP validates the RSDP at rsdpAddr and returns the root table
// address together with the pointer width its entries use: the ACPI 2.0+
// XSDT carries 64-bit pointers, the 1.0 RSDT 32-bit ones.
func parseRSDP(rsdpAddr uintptr) (uintptr, bool, *kernel.Error) {
	rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(rsdpAddr))

	if rsdp.Revision == acpiRev1 {
		if !validTable(rsdpAddr, uint32(unsafe.Sizeof(*rsdp))) {
			return 0, false, errChecksumMismatch
		}

		return uintptr(rsdp.RSDTAddr), false, nil
	}

	extRsdp := (*table.ExtRSDPDescriptor)(unsafe.Pointer(rsdpAddr))
	if !validTable(rsdpAddr, uint32(unsafe.Sizeof(*extRsdp))) {
		return 0, false, errChecksumMismatch
	}

	return uintptr(extRsdp.XSDTAddr), true, nil
}

// findMADT walks the root table's pointer payload looking for the table with
// the MADT signature.
func findMADT(rootAddr uintptr, use64BitPointers bool) (*table.MADTHeader, *kernel.Error) {
	root := (*table.SDTHeader)(unsafe.Pointer(rootAddr))
	sizeofHeader := unsafe.Sizeof(table.SDTHeader{})

	if !validTable(rootAddr, root.Length) {
		return nil, errChecksumMismatch
	}

	payloadLen := uintptr(root.Length) - sizeofHeader

	pointerWidth := uintptr(4)
	if use64BitPointers {
		pointerWidth = 8
	}

	for curPtr := rootAddr + sizeofHeader; curPtr < rootAddr+sizeofHeader+payloadLen; curPtr += pointerWidth {
		var sdtAddr uintptr
		if use64BitPointers {
			sdtAddr = uintptr(*(*uint64)(unsafe.Pointer(curPtr)))
		} else {
			sdtAddr = uintptr(*(*uint32)(unsafe.Pointer(curPtr)))
		}

		header := (*table.SDTHeader)(unsafe.Pointer(sdtAddr))
		if string(header.Signature[:]) != madtSignature {
			continue
		}

		if !validTable(sdtAddr, header.Length) {
			return nil, errChecksumMismatch
		}

		return (*table.MADTHeader)(unsafe.Pointer(sdtAddr)), nil
	}

	return nil, errMissingMADT
}

// parseMADT walks the MADT entry payload and collects one CPU per enabled
// local interrupt controller entry.
func parseMADT(madt *table.MADTHeader) (*Topology, *kernel.Error) {
	var topology Topology
	topology.LocalAPICAddr = uintptr(madt.LocalAPICAddr)

	madtAddr := uintptr(unsafe.Pointer(madt))
	endPtr := madtAddr + uintptr(madt.Length)

	for curPtr := madtAddr + unsafe.Sizeof(table.MADTHeader{}); curPtr < endPtr; {
		entry := (*table.MADTEntryHeader)(unsafe.Pointer(curPtr))
		if entry.Length == 0 {
			break
		}

		if entry.Type == table.MADTEntryLocalAPIC {
			lapic := (*table.LocalAPICEntry)(unsafe.Pointer(curPtr))
			if lapic.Flags&table.LocalAPICEnabled != 0 {
				if topology.CPUCount == MaxCPUs {
					return nil, errTooManyCPUs
				}

				topology.CPUs[topology.CPUCount] = CPU{
					ProcessorID: lapic.ProcessorID,
					APICID:      lapic.APICID,
				}
				topology.CPUCount++
			}
		}

		curPtr += uintptr(entry.Length)
	}

	return &topology, nil
}

// validTable calculates the checksum for an ACPI table of length tableLength
// that starts at tablePtr and returns true if the table is valid.
func validTable(tablePtr uintptr, tableLength uint32) bool {
	var sum uint8

	for i := uint32(0); i < tableLength; i++ {
		sum += *(*uint8)(unsafe.Pointer(tablePtr + uintptr(i)))
	}

	return sum == 0
}
