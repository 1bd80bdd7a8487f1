package efi

import "unsafe"

// ACPI table GUIDs (in-memory byte order). The 2.0 GUID is preferred when
// both revisions are published.
var (
	acpi20GUID = [16]byte{
		0x71, 0xe8, 0x68, 0x88, 0xf1, 0xe4, 0xd3, 0x11,
		0xbc, 0x22, 0x00, 0x80, 0xc7, 0x3c, 0x88, 0x81,
	}
	acpi10GUID = [16]byte{
		0x30, 0x2d, 0x9d, 0xeb, 0x88, 0x2d, 0xd3, 0x11,
		0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d,
	}
)

// configTableEntry mirrors EFI_CONFIGURATION_TABLE.
type configTableEntry struct {
	GUID  [16]byte
	Table uintptr
}

// ACPIRoot scans the firmware configuration table for the ACPI root pointer
// (RSDP), preferring the ACPI 2.0 entry. It returns 0 when firmware
// publishes no ACPI tables; the kernel decides later whether it needs them.
func (s *Services) ACPIRoot() uintptr {
	var acpi10Root uintptr

	for i := 0; i < s.configTableEntries; i++ {
		entry := (*configTableEntry)(unsafe.Pointer(s.configTableBase + uintptr(i)*unsafe.Sizeof(configTableEntry{})))

		switch {
		case entry.GUID == acpi20GUID:
			return entry.Table
		case entry.GUID == acpi10GUID:
			acpi10Root = entry.Table
		}
	}

	return acpi10Root
}
