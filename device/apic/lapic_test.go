package apic

import (
	"testing"
	"unsafe"
)

// fakeRegs backs the controller register block with plain memory; the
// direct-deref accessor defaults operate on it without any mocking.
type fakeRegs [256]uint32

func (r *fakeRegs) base() uintptr {
	return uintptr(unsafe.Pointer(&r[0]))
}

func (r *fakeRegs) at(offset uintptr) *uint32 {
	return &r[offset>>2]
}

func TestLAPICID(t *testing.T) {
	var regs fakeRegs
	*regs.at(regID) = 5 << icrDestShift

	l := New(regs.base())
	if exp, got := uint8(5), l.ID(); got != exp {
		t.Fatalf("expected controller id %d; got %d", exp, got)
	}
}

func TestSendInit(t *testing.T) {
	defer func(origRegWrite func(uintptr, uint32)) {
		regWriteFn = origRegWrite
	}(regWriteFn)

	var regs fakeRegs
	l := New(regs.base())

	// Record the ICR low writes; the delivery-status bit reads back as
	// clear so the pulses are accepted immediately.
	var icrWrites []uint32
	regWriteFn = func(regAddr uintptr, value uint32) {
		if regAddr == regs.base()+regICRLow {
			icrWrites = append(icrWrites, value)
		}
		*(*uint32)(unsafe.Pointer(regAddr)) = value
	}

	if err := l.SendInit(3); err != nil {
		t.Fatal(err)
	}

	// INIT is delivered as an asserted level-triggered pulse followed by
	// its deassertion.
	expWrites := []uint32{
		icrDeliveryInit | icrLevelAssert | icrTriggerLevel,
		icrDeliveryInit | icrTriggerLevel,
	}
	if len(icrWrites) != len(expWrites) {
		t.Fatalf("expected %d ICR writes; got %d", len(expWrites), len(icrWrites))
	}
	for i, exp := range expWrites {
		if icrWrites[i] != exp {
			t.Errorf("[write %d] expected ICR value %x; got %x", i, exp, icrWrites[i])
		}
	}

	if exp, got := uint32(3)<<icrDestShift, *regs.at(regICRHigh); got != exp {
		t.Fatalf("expected ICR destination %x; got %x", exp, got)
	}
}

func TestSendStartup(t *testing.T) {
	var regs fakeRegs
	l := New(regs.base())

	if err := l.SendStartup(3, 8); err != nil {
		t.Fatal(err)
	}

	if exp, got := icrDeliveryStartup|8, *regs.at(regICRLow); got != exp {
		t.Fatalf("expected ICR value %x; got %x", exp, got)
	}
	if exp, got := uint32(3)<<icrDestShift, *regs.at(regICRHigh); got != exp {
		t.Fatalf("expected ICR destination %x; got %x", exp, got)
	}
}

func TestWaitDeliveryTimeout(t *testing.T) {
	defer func(origRegRead func(uintptr) uint32, origBudget uint64) {
		regReadFn = origRegRead
		deliveryPollBudget = origBudget
	}(regReadFn, deliveryPollBudget)

	deliveryPollBudget = 8

	// The delivery-status bit never clears.
	regReadFn = func(regAddr uintptr) uint32 {
		return icrDeliveryStatus
	}

	var regs fakeRegs
	l := New(regs.base())

	if err := l.SendStartup(3, 8); err != ErrDeliveryTimeout {
		t.Fatalf("expected to get ErrDeliveryTimeout; got %v", err)
	}
}

func TestWaitDeliveryBusyThenClear(t *testing.T) {
	defer func(origRegRead func(uintptr) uint32) {
		regReadFn = origRegRead
	}(regReadFn)

	reads := 0
	regReadFn = func(regAddr uintptr) uint32 {
		reads++
		if reads < 4 {
			return icrDeliveryStatus
		}
		return 0
	}

	var regs fakeRegs
	l := New(regs.base())

	if err := l.SendStartup(3, 8); err != nil {
		t.Fatal(err)
	}
	if reads != 4 {
		t.Fatalf("expected delivery to be polled 4 times; got %d", reads)
	}
}
