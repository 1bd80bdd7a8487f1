// Package apic drives the processor-local interrupt controller, which
// bring-up uses for exactly one purpose: delivering the two-pulse wake
// sequence (INIT followed by STARTUP) to a secondary core. Registers are
// 32 bits wide at 16-byte stride; accesses go through package-level hooks so
// tests can back the register block with plain memory.
package apic

import (
	"unsafe"

	"gopherboot/kernel"
	"gopherboot/kernel/cpu"
)

// Register offsets from the controller base.
const (
	regID      = 0x020
	regICRLow  = 0x300
	regICRHigh = 0x310
)

// Interrupt command register fields. The layout is architecture-defined and
// must be reproduced exactly: delivery mode in bits 8-10, delivery status in
// bit 12, level assert in bit 14, trigger mode in bit 15 and the destination
// identifier in bits 24-31 of the high word.
const (
	icrDeliveryInit    uint32 = 5 << 8
	icrDeliveryStartup uint32 = 6 << 8
	icrDeliveryStatus  uint32 = 1 << 12
	icrLevelAssert     uint32 = 1 << 14
	icrTriggerLevel    uint32 = 1 << 15

	icrDestShift = 24
)

var (
	// regReadFn/regWriteFn access a controller register. The fallbacks
	// dereference the register address directly, which serves both the
	// identity-mapped kernel and tests that place the register block in
	// ordinary memory.
	regReadFn = func(regAddr uintptr) uint32 {
		return *(*uint32)(unsafe.Pointer(regAddr))
	}
	regWriteFn = func(regAddr uintptr, value uint32) {
		*(*uint32)(unsafe.Pointer(regAddr)) = value
	}

	// deliveryPollBudget bounds the wait for the delivery-status bit to
	// clear. The correct magnitude is hardware-dependent; this is a
	// configurable default, not an authoritative figure.
	deliveryPollBudget uint64 = 10000

	// ErrDeliveryTimeout indicates that the controller did not accept a
	// wake pulse within the poll budget.
	ErrDeliveryTimeout = &kernel.Error{Module: "apic", Message: "interrupt command delivery timed out"}
)

// LAPIC provides access to the local interrupt controller register block.
type LAPIC struct {
	base uintptr
}

// New returns a LAPIC accessor for the register block at the supplied
// physical base (as discovered in the MADT).
func New(base uintptr) *LAPIC {
	return &LAPIC{base: base}
}

// ID returns the identifier of the calling core's controller.
func (l *LAPIC) ID() uint8 {
	return uint8(l.read(regID) >> icrDestShift)
}

// SendInit delivers the INIT pulse to the core identified by apicID: an
// asserted level-triggered INIT followed by its deassertion.
func (l *LAPIC) SendInit(apicID uint8) *kernel.Error {
	l.write(regICRHigh, uint32(apicID)<<icrDestShift)
	l.write(regICRLow, icrDeliveryInit|icrLevelAssert|icrTriggerLevel)
	if err := l.waitDelivery(); err != nil {
		return err
	}

	l.write(regICRHigh, uint32(apicID)<<icrDestShift)
	l.write(regICRLow, icrDeliveryInit|icrTriggerLevel)
	return l.waitDelivery()
}

// SendStartup delivers the STARTUP pulse, pointing the woken core at the
// trampoline page identified by vector (trampoline physical address divided
// by the page size).
func (l *LAPIC) SendStartup(apicID uint8, vector uint8) *kernel.Error {
	l.write(regICRHigh, uint32(apicID)<<icrDestShift)
	l.write(regICRLow, icrDeliveryStartup|uint32(vector))
	return l.waitDelivery()
}

// waitDelivery polls the delivery-status bit until the controller has
// dispatched the pending command or the poll budget runs out.
func (l *LAPIC) waitDelivery() *kernel.Error {
	for i := uint64(0); i < deliveryPollBudget; i++ {
		if l.read(regICRLow)&icrDeliveryStatus == 0 {
			return nil
		}

		cpu.Relax()
	}

	return ErrDeliveryTimeout
}

func (l *LAPIC) read(offset uintptr) uint32 {
	return regReadFn(l.base + offset)
}

func (l *LAPIC) write(offset uintptr, value uint32) {
	regWriteFn(l.base+offset, value)
}
