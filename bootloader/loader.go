// Package bootloader drives the firmware side of the handoff: it loads the
// kernel image, captures the memory map, framebuffer and ACPI root into a
// loader-owned boot information descriptor, exits boot services and
// transfers control to the kernel entry point. It is built as a separate
// binary from the kernel; the bootinfo package is the only contract the two
// sides share.
package bootloader

import (
	"unsafe"

	"gopherboot/bootinfo"
	"gopherboot/efi"
	"gopherboot/kernel"
)

// kernelImagePath is where the kernel image lives on the boot volume.
const kernelImagePath = `\EFI\BOOT\KERNEL`

var (
	// info is the loader-owned boot information descriptor. It must be
	// loader memory (not a firmware allocation) because it outlives
	// ExitBootServices.
	info bootinfo.Info

	// memMap is the loader-owned copy of the firmware memory map.
	memMap efi.MemoryMap

	// handoffFn transfers control to the kernel entry point with the
	// descriptor's physical address as its sole argument. It never
	// returns; the fallback is replaced by the jump thunk in a real
	// loader image and by a capture function in tests.
	handoffFn = func(entry, infoPtr uintptr) {}

	errHandoffReturned = &kernel.Error{Module: "bootloader", Message: "kernel entry point returned"}
)

// Load performs the complete firmware-to-kernel handoff sequence. On success
// it does not return: control continues at the kernel entry point. Every
// returned error is fatal for the boot attempt.
func Load(svc *efi.Services, cmdLine string) *kernel.Error {
	imageBase, imageSize, err := svc.LoadImage(kernelImagePath)
	if err != nil {
		return err
	}

	// The memory map must be copied into loader-owned memory before
	// exiting boot services; the exit call invalidates firmware-owned
	// buffers.
	if err = svc.MemoryMap(&memMap); err != nil {
		return err
	}

	info = bootinfo.Info{}
	for i := 0; i < memMap.EntryCount(); i++ {
		entry := memMap.Entry(i)
		if err = info.AddRegion(entry.PhysicalStart, entry.Size(), entry.RegionKind()); err != nil {
			return err
		}
	}

	// Framebuffer absence records a null capability; it is not fatal.
	svc.GraphicsInfo(&info.Framebuffer)
	if fb := &info.Framebuffer; fb.Present() && !regionListed(fb.PhysAddr, fb.Size()) {
		// Frame buffer MMIO is often absent from the firmware memory
		// map; list it explicitly so the descriptor invariants cover
		// it.
		if err = info.AddRegion(fb.PhysAddr, fb.Size(), bootinfo.RegionFramebuffer); err != nil {
			return err
		}
	}

	info.ACPIRoot = uint64(svc.ACPIRoot())
	info.KernelImageBase = uint64(imageBase)
	info.KernelImageSize = uint64(imageSize)

	if err = info.SetCmdLine(cmdLine); err != nil {
		return err
	}

	info.Seal()
	if err = info.Validate(); err != nil {
		return err
	}

	if err = svc.Exit(memMap.MapKey); err != nil {
		return err
	}

	// The kernel image is a flat binary whose entry point is its load
	// base. This call never returns.
	handoffFn(imageBase, uintptr(unsafe.Pointer(&info)))

	return errHandoffReturned
}

// regionListed returns true if [start, start+length) is already covered by a
// listed memory region.
func regionListed(start, length uint64) bool {
	regions := info.RegionList()
	for i := range regions {
		if regions[i].Contains(start, length) {
			return true
		}
	}

	return false
}
