package bootinfo

import "gopherboot/kernel"

var (
	// ErrBadMagic indicates that the descriptor was not sealed by a
	// compatible bootloader.
	ErrBadMagic = &kernel.Error{Module: "bootinfo", Message: "descriptor magic mismatch"}

	// ErrBadVersion indicates a layout revision this kernel does not
	// understand.
	ErrBadVersion = &kernel.Error{Module: "bootinfo", Message: "unsupported descriptor layout version"}

	// ErrBadRegionCount indicates a region count exceeding the fixed
	// table capacity.
	ErrBadRegionCount = &kernel.Error{Module: "bootinfo", Message: "region count exceeds table capacity"}

	// ErrRegionsNotSorted indicates that the region table is not sorted
	// by start address.
	ErrRegionsNotSorted = &kernel.Error{Module: "bootinfo", Message: "memory regions are not sorted by start address"}

	// ErrRegionsOverlap indicates two overlapping entries in the region
	// table.
	ErrRegionsOverlap = &kernel.Error{Module: "bootinfo", Message: "memory regions overlap"}

	// ErrKernelImageNotCovered indicates that the loaded kernel image is
	// not fully contained within a single listed region.
	ErrKernelImageNotCovered = &kernel.Error{Module: "bootinfo", Message: "kernel image is not covered by a single memory region"}

	// ErrFramebufferNotCovered indicates that a present framebuffer is
	// not fully contained within a single listed region.
	ErrFramebufferNotCovered = &kernel.Error{Module: "bootinfo", Message: "framebuffer is not covered by a single memory region"}
)

// Validate checks the invariants that the kernel relies on before touching
// any memory described by the descriptor: a recognized magic/version stamp, a
// sorted and pairwise non-overlapping region table, and full single-region
// coverage for the kernel image and (when present) the framebuffer. There is
// no recovery path this early, so callers halt on any returned error.
func (info *Info) Validate() *kernel.Error {
	if info.Magic != Magic {
		return ErrBadMagic
	}

	if info.Version != Version {
		return ErrBadVersion
	}

	if info.RegionCount > MaxRegions {
		return ErrBadRegionCount
	}

	regions := info.RegionList()
	for i := 1; i < len(regions); i++ {
		if regions[i].Start < regions[i-1].Start {
			return ErrRegionsNotSorted
		}

		if regions[i-1].End() > regions[i].Start {
			return ErrRegionsOverlap
		}
	}

	if !info.coveredByOneRegion(info.KernelImageBase, info.KernelImageSize) {
		return ErrKernelImageNotCovered
	}

	if fb := &info.Framebuffer; fb.Present() && !info.coveredByOneRegion(fb.PhysAddr, fb.Size()) {
		return ErrFramebufferNotCovered
	}

	return nil
}

// coveredByOneRegion returns true if [start, start+length) is fully contained
// in a single region table entry. Since the table entries are non-overlapping
// at most one entry can contain the range.
func (info *Info) coveredByOneRegion(start, length uint64) bool {
	regions := info.RegionList()
	for i := range regions {
		if regions[i].Contains(start, length) {
			return true
		}
	}

	return false
}
