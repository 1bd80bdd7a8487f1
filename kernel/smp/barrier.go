package smp

import (
	"sync/atomic"

	"gopherboot/kernel"
	"gopherboot/kernel/cpu"
)

var (
	errPublishedTwice = &kernel.Error{Module: "smp", Message: "primary-ready flag published twice"}
	errArrivedTwice   = &kernel.Error{Module: "smp", Message: "core arrival flag set twice"}
	errBadBarrierSlot = &kernel.Error{Module: "smp", Message: "barrier slot index out of range"}
)

// Barrier is the lock-free gate between the primary core and the
// secondaries. The primary-ready flag is set once and read many times; each
// per-core arrived flag is written exactly once by its own core and polled
// by the coordinator. No core touches another core's slot.
type Barrier struct {
	primaryReady uint32
	arrived      [MaxCores]uint32
}

// PublishPrimaryReady publishes the "primary setup complete" flag. This is
// the single happens-before edge every secondary core relies on: it must be
// set only after page tables and descriptor tables are fully constructed.
// Publishing twice indicates a broken bring-up sequence.
func (b *Barrier) PublishPrimaryReady() *kernel.Error {
	if !atomic.CompareAndSwapUint32(&b.primaryReady, 0, 1) {
		return errPublishedTwice
	}

	return nil
}

// PrimaryReady returns true once primary-core setup has been published.
func (b *Barrier) PrimaryReady() bool {
	return atomic.LoadUint32(&b.primaryReady) != 0
}

// WaitPrimaryReady spin-reads the primary-ready flag with an explicit
// iteration budget. In the coordinator-driven flow the flag is always
// already set when a secondary runs, but the gate stays bounded regardless.
func (b *Barrier) WaitPrimaryReady(budget uint64) bool {
	for i := uint64(0); i < budget; i++ {
		if b.PrimaryReady() {
			return true
		}

		cpu.Relax()
	}

	return false
}

// MarkArrived sets the calling core's arrival flag. Each core sets only its
// own slot, exactly once; a second set indicates a broken synchronization
// invariant.
func (b *Barrier) MarkArrived(coreID int) *kernel.Error {
	if coreID < 0 || coreID >= MaxCores {
		return errBadBarrierSlot
	}

	if atomic.SwapUint32(&b.arrived[coreID], 1) != 0 {
		return errArrivedTwice
	}

	return nil
}

// Arrived returns true once the given core has set its arrival flag.
func (b *Barrier) Arrived(coreID int) bool {
	if coreID < 0 || coreID >= MaxCores {
		return false
	}

	return atomic.LoadUint32(&b.arrived[coreID]) != 0
}
