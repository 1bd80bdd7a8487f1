// Package bootinfo defines the handoff contract between the bootloader and
// the kernel. The two binaries are compiled and linked independently, so the
// descriptor uses a versioned, fixed layout: every field has an explicit
// size, the region table has a fixed capacity and the whole record is
// self-contained (no pointers into bootloader memory other than the physical
// addresses it describes). The bootloader populates and seals the record
// while firmware services are still available; after handoff the kernel
// treats it as immutable.
package bootinfo

import (
	"unsafe"

	"gopherboot/kernel"
)

const (
	// Magic identifies a sealed boot information descriptor.
	Magic uint32 = 0x424f4f54

	// Version is the layout revision understood by this kernel. Any other
	// value in a sealed descriptor fails validation.
	Version uint16 = 1

	// MaxRegions is the fixed capacity of the memory-region table.
	MaxRegions = 128

	// CmdLineSize is the fixed capacity of the boot command line,
	// including the terminating NUL.
	CmdLineSize = 256
)

// RegionKind describes the use of a physical memory region.
type RegionKind uint32

const (
	// RegionUsable memory is free for kernel use.
	RegionUsable RegionKind = iota

	// RegionReserved memory must never be touched.
	RegionReserved

	// RegionFirmwareReclaimable memory holds firmware data that the
	// kernel may reclaim once it no longer needs firmware tables.
	RegionFirmwareReclaimable

	// RegionBootloaderCode holds the bootloader image and the memory it
	// allocated, including this descriptor.
	RegionBootloaderCode

	// RegionFramebuffer holds the linear framebuffer.
	RegionFramebuffer
)

// String implements fmt.Stringer for RegionKind.
func (k RegionKind) String() string {
	switch k {
	case RegionUsable:
		return "usable"
	case RegionReserved:
		return "reserved"
	case RegionFirmwareReclaimable:
		return "firmware (reclaimable)"
	case RegionBootloaderCode:
		return "bootloader"
	case RegionFramebuffer:
		return "framebuffer"
	default:
		return "unknown"
	}
}

// Region describes a physical memory region. Its wire layout is 24 bytes:
// start (8), length (8), kind (4), reserved padding (4).
type Region struct {
	// Start is the physical address of the first byte in the region.
	Start uint64

	// Length of the region in bytes.
	Length uint64

	// Kind of the region.
	Kind RegionKind

	reserved uint32
}

// End returns the exclusive physical end address of the region.
func (r *Region) End() uint64 {
	return r.Start + r.Length
}

// Contains returns true if the [start, start+length) range is fully covered
// by this region.
func (r *Region) Contains(start, length uint64) bool {
	return start >= r.Start && start+length <= r.End()
}

// PixelFormat describes the layout of a framebuffer pixel.
type PixelFormat uint32

const (
	// PixelFormatNone marks a null framebuffer capability.
	PixelFormatNone PixelFormat = iota

	// PixelFormatRGBX8 is 32 bits per pixel, red in the lowest byte.
	PixelFormatRGBX8

	// PixelFormatBGRX8 is 32 bits per pixel, blue in the lowest byte.
	PixelFormatBGRX8
)

// Framebuffer describes the linear framebuffer handed over by firmware. A
// zero PhysAddr records a null capability: firmware graphics services were
// unavailable, which is not a boot-fatal condition.
type Framebuffer struct {
	// PhysAddr is the physical base of the framebuffer or 0 if no
	// framebuffer is available.
	PhysAddr uint64

	// Pitch is the row stride in bytes.
	Pitch uint32

	// Width and Height in pixels.
	Width, Height uint32

	// Format of each pixel.
	Format PixelFormat
}

// Present returns true if the bootloader handed over a usable framebuffer.
func (fb *Framebuffer) Present() bool {
	return fb.PhysAddr != 0
}

// Size returns the framebuffer extent in bytes.
func (fb *Framebuffer) Size() uint64 {
	return uint64(fb.Pitch) * uint64(fb.Height)
}

// Info is the boot information descriptor. The bootloader passes its
// physical address as the sole argument to the kernel entry point.
type Info struct {
	// Magic must equal Magic in a sealed descriptor.
	Magic uint32

	// Version is the layout revision; RegionCount the number of valid
	// entries in Regions.
	Version     uint16
	RegionCount uint16

	// ACPIRoot is the physical address of the ACPI RSDP or 0 when
	// firmware did not provide one.
	ACPIRoot uint64

	// KernelImageBase and KernelImageSize describe where the bootloader
	// placed the kernel image.
	KernelImageBase uint64
	KernelImageSize uint64

	// Framebuffer handed over by firmware (possibly a null capability).
	Framebuffer Framebuffer

	// CmdLine holds the NUL-terminated boot command line.
	CmdLine [CmdLineSize]byte

	// Regions holds the memory map; only the first RegionCount entries
	// are valid. Entries are sorted by Start and non-overlapping.
	Regions [MaxRegions]Region
}

// RegionList returns the valid prefix of the region table.
func (info *Info) RegionList() []Region {
	return info.Regions[:info.RegionCount]
}

var (
	// infoData holds the physical address of the descriptor passed to the
	// kernel entry point.
	infoData uintptr

	errTooManyRegions = &kernel.Error{Module: "bootinfo", Message: "memory region table capacity exceeded"}
	errCmdLineTooLong = &kernel.Error{Module: "bootinfo", Message: "boot command line exceeds fixed capacity"}
)

// SetInfoPtr records the physical address of the boot information descriptor
// received from the bootloader. It must be invoked before any call to Get.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// Get overlays the Info layout on the address registered via SetInfoPtr. It
// returns nil if no descriptor address has been registered.
func Get() *Info {
	if infoData == 0 {
		return nil
	}

	return (*Info)(unsafe.Pointer(infoData))
}

// AddRegion appends a memory region to the descriptor. It is only invoked by
// the bootloader while populating the descriptor.
func (info *Info) AddRegion(start, length uint64, kind RegionKind) *kernel.Error {
	if info.RegionCount == MaxRegions {
		return errTooManyRegions
	}

	info.Regions[info.RegionCount] = Region{Start: start, Length: length, Kind: kind}
	info.RegionCount++

	return nil
}

// SetCmdLine copies the boot command line into the descriptor.
func (info *Info) SetCmdLine(cmdLine string) *kernel.Error {
	if len(cmdLine) >= CmdLineSize {
		return errCmdLineTooLong
	}

	copy(info.CmdLine[:], cmdLine)
	info.CmdLine[len(cmdLine)] = 0

	return nil
}

// Seal sorts the region table and stamps the magic and version words. The
// bootloader calls Seal exactly once, after which the descriptor becomes
// immutable.
func (info *Info) Seal() {
	info.sortRegions()
	info.Magic = Magic
	info.Version = Version
}

// sortRegions sorts the region table by start address using insertion sort;
// the table is small and no allocator is available at the call site.
func (info *Info) sortRegions() {
	regions := info.RegionList()
	for i := 1; i < len(regions); i++ {
		for j := i; j > 0 && regions[j].Start < regions[j-1].Start; j-- {
			regions[j], regions[j-1] = regions[j-1], regions[j]
		}
	}
}
