// Package kmain drives the primary-core initialization sequence: it
// validates the boot information descriptor, brings up the early memory
// managers, builds the shared page tables and descriptor tables and then
// hands control to the bring-up coordinator to wake the remaining cores.
package kmain

import (
	"gopherboot/bootinfo"
	"gopherboot/device/acpi"
	"gopherboot/device/apic"
	"gopherboot/kernel"
	"gopherboot/kernel/desc"
	"gopherboot/kernel/driver/console"
	"gopherboot/kernel/kfmt"
	"gopherboot/kernel/mm"
	"gopherboot/kernel/mm/vmm"
	"gopherboot/kernel/smp"
)

// Low-memory placement of the trampoline artifacts. The trampoline page must
// sit below 1MB so the startup vector can address it; the parameter area
// occupies the page right after it.
const (
	defaultTrampolineAddr = uintptr(0x8000)
	defaultParamsAddr     = uintptr(0x9000)

	vgaTextSize = uintptr(80 * 25 * 2)
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoUsableRAM   = &kernel.Error{Module: "kmain", Message: "memory map lists no usable region"}

	// trampolineImage holds the assembled trampoline bytes. The rt0 layer
	// registers the image embedded in the kernel binary via
	// SetTrampolineImage before invoking Kmain; when no image has been
	// registered, bring-up proceeds single-core.
	trampolineImage []byte

	// secondaryEntryAddr is the physical address of the rt0 thunk that
	// secondary cores jump to out of the trampoline. The thunk loads the
	// shared descriptor tables and tail-calls the coordinator's kernel
	// entry point.
	secondaryEntryAddr uintptr

	bootArena  mm.BootArena
	stackArea  mm.StackArea
	registry   smp.Registry
	barrier    smp.Barrier
	vgaConsole console.Console
)

// SetTrampolineImage registers the assembled trampoline binary. It must be
// invoked before Kmain.
func SetTrampolineImage(image []byte, entryAddr uintptr) {
	trampolineImage = image
	secondaryEntryAddr = entryAddr
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. The rt0 code passes the physical address of the boot
// information descriptor that the bootloader placed in the handoff register.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(bootInfoPtr uintptr) {
	bootinfo.SetInfoPtr(bootInfoPtr)

	info := bootinfo.Get()
	if info == nil {
		kernel.Panic(bootinfo.ErrBadMagic)
	}

	// There is no recovery path before the memory managers exist, so any
	// validation failure halts the boot.
	if err := info.Validate(); err != nil {
		kernel.Panic(err)
	}

	kfmt.Printf("gopherboot: descriptor ok, %d memory regions\n", info.RegionCount)

	var err *kernel.Error
	if err = initMemory(info); err != nil {
		kernel.Panic(err)
	}

	topology, err := acpi.DiscoverTopology(uintptr(info.ACPIRoot))
	if err != nil {
		kernel.Panic(err)
	}

	kfmt.Printf("kmain: topology: %d cores, lapic base %x\n", topology.CPUCount, topology.LocalAPICAddr)

	lapic := apic.New(topology.LocalAPICAddr)

	pageTable, err := buildPageTables(info, topology)
	if err != nil {
		kernel.Panic(err)
	}
	pageTable.Activate()

	// With the framebuffer page mapped the VGA console can take over as
	// the output sink; SetOutputSink replays the buffered boot log.
	if consoleRequested(info) {
		vgaConsole.Init(console.DefaultFBAddr)
		kfmt.SetOutputSink(&vgaConsole)
	}

	if _, err = desc.Build(); err != nil {
		kernel.Panic(err)
	}

	if err = populateRegistry(topology, lapic.ID()); err != nil {
		kernel.Panic(err)
	}

	if err = startSecondaries(info, lapic, pageTable); err != nil {
		kernel.Panic(err)
	}

	reportOutcome()

	kernel.Panic(errKmainReturned)
}

// initMemory places the boot arena over the largest usable region and
// registers it as the system frame source.
func initMemory(info *bootinfo.Info) *kernel.Error {
	var best *bootinfo.Region

	regions := info.RegionList()
	for i := range regions {
		if regions[i].Kind != bootinfo.RegionUsable {
			continue
		}

		if best == nil || regions[i].Length > best.Length {
			best = &regions[i]
		}
	}

	if best == nil {
		return errNoUsableRAM
	}

	if err := bootArena.Init(uintptr(best.Start), uintptr(best.Length)); err != nil {
		return err
	}

	mm.SetFrameAllocator(bootArena.AllocFrame)

	kfmt.Printf("mm: boot arena at %x, %d frames\n", uintptr(best.Start), bootArena.FramesRemaining())

	return nil
}

// buildPageTables constructs the page-table hierarchy every core will share:
// identity mappings for the kernel image, the per-core stacks, the trampoline
// artifacts, the interrupt controller register block and (when present) the
// framebuffer.
func buildPageTables(info *bootinfo.Info, topology *acpi.Topology) (vmm.PageTable, *kernel.Error) {
	pageTable, err := vmm.New()
	if err != nil {
		return pageTable, err
	}

	// Stacks are carved before any secondary is signaled; no allocation
	// happens once cores start executing.
	if err = stackArea.Init(&bootArena, topology.CPUCount); err != nil {
		return pageTable, err
	}

	type mapping struct {
		start uintptr
		size  uintptr
		flags vmm.EntryFlag
	}

	mappings := [7]mapping{
		{uintptr(info.KernelImageBase), uintptr(info.KernelImageSize), vmm.FlagPresent | vmm.FlagRW},
		{stackArea.Base(), stackArea.Size(), vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute},
		{defaultTrampolineAddr, mm.PageSize, vmm.FlagPresent | vmm.FlagRW},
		{defaultParamsAddr, mm.PageSize, vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute},
		{topology.LocalAPICAddr, mm.PageSize, vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute},
	}
	mapCount := 5

	if fb := &info.Framebuffer; fb.Present() {
		mappings[mapCount] = mapping{uintptr(fb.PhysAddr), uintptr(fb.Size()), vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute}
		mapCount++
	}

	if consoleRequested(info) {
		mappings[mapCount] = mapping{console.DefaultFBAddr, vgaTextSize, vmm.FlagPresent | vmm.FlagRW | vmm.FlagNoExecute}
		mapCount++
	}

	for _, m := range mappings[:mapCount] {
		if err = pageTable.IdentityMapRegion(mm.FrameFromAddress(m.start), m.size, m.flags); err != nil {
			return pageTable, err
		}
	}

	return pageTable, nil
}

// consoleRequested reports whether the boot command line selects the VGA
// text console as the output sink.
func consoleRequested(info *bootinfo.Info) bool {
	requested := false

	info.VisitCmdLine(func(key, value []byte) bool {
		if string(key) == "console" && string(value) == "vga" {
			requested = true
			return false
		}
		return true
	})

	return requested
}

// populateRegistry fills the processor registry from the discovered
// topology. The core whose controller identifier matches bootAPICID is the
// one executing this code and registers as primary.
func populateRegistry(topology *acpi.Topology, bootAPICID uint8) *kernel.Error {
	for i := 0; i < topology.CPUCount; i++ {
		role := smp.RoleSecondary
		if topology.CPUs[i].APICID == bootAPICID {
			role = smp.RolePrimary
		}

		if _, err := registry.Add(topology.CPUs[i].APICID, role); err != nil {
			return err
		}
	}

	return nil
}

// startSecondaries installs the trampoline, publishes the primary-ready flag
// and runs the bring-up coordinator. A missing trampoline image is not
// fatal: the system continues on the primary core alone.
func startSecondaries(info *bootinfo.Info, lapic *apic.LAPIC, pageTable vmm.PageTable) *kernel.Error {
	if err := barrier.PublishPrimaryReady(); err != nil {
		return err
	}

	if len(trampolineImage) == 0 {
		kfmt.Printf("smp: no trampoline image registered; staying single-core\n")
		return nil
	}

	blob := smp.Blob{Bytes: trampolineImage, LoadAddr: defaultTrampolineAddr}
	if err := blob.Install(); err != nil {
		return err
	}

	coord := smp.NewCoordinator(&registry, &barrier, lapic, smp.Config{
		EntryAddr:     secondaryEntryAddr,
		PageTableRoot: pageTable.Root(),
		ParamsBase:    defaultParamsAddr,
		StackTopFn:    stackArea.Top,
		Vector:        blob.Vector(),
		SettleBudget:  info.CmdLineUint("smp.settle_budget", smp.DefaultSettleBudget),
		PollBudget:    info.CmdLineUint("smp.poll_budget", smp.DefaultPollBudget),
	})

	return coord.Run()
}

// reportOutcome logs the final bring-up state of every registered core.
func reportOutcome() {
	for coreID := 0; coreID < registry.Count(); coreID++ {
		proc := registry.Proc(coreID)
		kfmt.Printf("smp: core %d (apic %d, %s): %s\n", coreID, proc.APICID, proc.Role.String(), proc.State().String())
	}

	kfmt.Printf("smp: %d of %d cores active\n", len(registry.Active()), registry.Count())
}
