package efi

import (
	"unsafe"

	"gopherboot/bootinfo"
	"gopherboot/kernel"
)

// EFI memory descriptor types consumed by the loader.
const (
	memTypeLoaderCode          uint32 = 1
	memTypeLoaderData          uint32 = 2
	memTypeBootServicesCode    uint32 = 3
	memTypeBootServicesData    uint32 = 4
	memTypeRuntimeServicesCode uint32 = 5
	memTypeRuntimeServicesData uint32 = 6
	memTypeConventional        uint32 = 7
	memTypeACPIReclaim         uint32 = 9
	memTypeACPINvs             uint32 = 10
)

// PageSize is the EFI page size used by NumberOfPages.
const PageSize = 4096

// maxMapEntries bounds the loader-owned memory map copy. The copy must live
// in loader memory because exiting boot services invalidates firmware-owned
// buffers.
const maxMapEntries = 256

// descriptorStride is the worst-case per-entry stride used to size the
// loader-owned buffer. Firmware reports the actual stride at query time.
const descriptorStride = 64

// MemoryDescriptor is the fixed EFI memory descriptor layout. Firmware may
// use a larger per-entry stride than this struct; entries must be addressed
// through MemoryMap.Entry.
type MemoryDescriptor struct {
	Type          uint32
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the exclusive physical end address of the descriptor.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor extent in bytes.
func (d *MemoryDescriptor) Size() uint64 {
	return d.NumberOfPages * PageSize
}

// RegionKind maps the EFI memory type to the boot information region kinds
// that remain meaningful after ExitBootServices: boot-services memory is
// reclaimable once the kernel is done with firmware tables, loader memory
// stays reserved until the descriptor has been consumed and everything
// unknown is treated as reserved.
func (d *MemoryDescriptor) RegionKind() bootinfo.RegionKind {
	switch d.Type {
	case memTypeConventional:
		return bootinfo.RegionUsable
	case memTypeBootServicesCode, memTypeBootServicesData, memTypeACPIReclaim:
		return bootinfo.RegionFirmwareReclaimable
	case memTypeLoaderCode, memTypeLoaderData:
		return bootinfo.RegionBootloaderCode
	default:
		return bootinfo.RegionReserved
	}
}

var (
	// ErrMemoryMapUnavailable indicates that the firmware memory map
	// query failed or returned an inconsistent region count across the
	// size probe and the retrieval call.
	ErrMemoryMapUnavailable = &kernel.Error{Module: "efi", Message: "firmware memory map unavailable"}
)

// MemoryMap holds a loader-owned copy of the firmware memory map together
// with the key required by ExitBootServices.
type MemoryMap struct {
	MapSize           uintptr
	MapKey            uintptr
	DescriptorSize    uintptr
	DescriptorVersion uint32

	buf [maxMapEntries * descriptorStride]byte
}

// EntryCount returns the number of descriptors in the map.
func (m *MemoryMap) EntryCount() int {
	if m.DescriptorSize == 0 {
		return 0
	}

	return int(m.MapSize / m.DescriptorSize)
}

// Entry overlays the MemoryDescriptor layout on the index-th map entry.
func (m *MemoryMap) Entry(index int) *MemoryDescriptor {
	return (*MemoryDescriptor)(unsafe.Pointer(&m.buf[uintptr(index)*m.DescriptorSize]))
}

// MemoryMap performs the two-phase firmware memory map query: a size probe
// followed by the retrieval call into the loader-owned buffer. Firmware that
// reports a different region count on the second call, or a map that exceeds
// the fixed buffer, yields ErrMemoryMapUnavailable.
func (s *Services) MemoryMap(m *MemoryMap) *kernel.Error {
	m.MapSize = 0
	status := s.call(bootSvcGetMemoryMap,
		ptrval(&m.MapSize),
		0,
		ptrval(&m.MapKey),
		ptrval(&m.DescriptorSize),
		ptrval(&m.DescriptorVersion),
	)

	if status != StatusBufferTooSmall || m.DescriptorSize == 0 || m.MapSize > uintptr(len(m.buf)) {
		return ErrMemoryMapUnavailable
	}

	probedCount := m.MapSize / m.DescriptorSize

	m.MapSize = uintptr(len(m.buf))
	status = s.call(bootSvcGetMemoryMap,
		ptrval(&m.MapSize),
		ptrval(&m.buf[0]),
		ptrval(&m.MapKey),
		ptrval(&m.DescriptorSize),
		ptrval(&m.DescriptorVersion),
	)

	if status != StatusSuccess || m.DescriptorSize == 0 {
		return ErrMemoryMapUnavailable
	}

	if m.MapSize/m.DescriptorSize != probedCount {
		return ErrMemoryMapUnavailable
	}

	return nil
}

// ptrval returns the address of p for use as a firmware call argument.
func ptrval(p interface{}) uintptr {
	switch v := p.(type) {
	case *uintptr:
		return uintptr(unsafe.Pointer(v))
	case *uint32:
		return uintptr(unsafe.Pointer(v))
	case *byte:
		return uintptr(unsafe.Pointer(v))
	default:
		return 0
	}
}
