// Package cpu isolates the privileged processor operations that bring-up
// depends on. Hosted builds and tests run against the pure Go fallbacks
// defined here; a real kernel image overrides them with the assembly-backed
// implementations provided by its rt0 layer.
package cpu

import "sync/atomic"

// activePDT mirrors the physical address loaded in the page-table base
// register. The fallback implementations of SwitchPDT/ActivePDT operate on
// this value.
var activePDT uint64

// Halt stops instruction execution on the calling core. It never returns.
func Halt() {
	for {
	}
}

// Relax is invoked inside busy-wait loops between successive polls of a
// shared flag. The fallback is a no-op; the rt0 override issues PAUSE.
var Relax = func() {}

// BusyDelay spins for the requested number of iterations, calling Relax on
// each one. Bring-up has no timer so all settle delays are expressed as
// iteration budgets.
func BusyDelay(iterations uint64) {
	for i := uint64(0); i < iterations; i++ {
		Relax()
	}
}

// SwitchPDT sets the root page table to the supplied physical address and
// invalidates cached translations.
func SwitchPDT(pdtPhysAddr uintptr) {
	atomic.StoreUint64(&activePDT, uint64(pdtPhysAddr))
}

// ActivePDT returns the physical address of the currently active root page
// table.
func ActivePDT() uintptr {
	return uintptr(atomic.LoadUint64(&activePDT))
}
