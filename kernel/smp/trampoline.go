package smp

import "gopherboot/kernel"

// TrampolineState enumerates the mode-transition sequence a secondary core
// executes out of reset. The hardware sequence is strictly linear with
// one-way transitions: there is no path back and no loop, so the model is a
// finite state machine rather than ordinary control flow.
type TrampolineState uint8

const (
	// TrampReset: executing at the fixed load address, no assumptions
	// beyond the architectural reset guarantees.
	TrampReset TrampolineState = iota

	// TrampNativeMode: minimal bare addressing established, temporary
	// execution-mode descriptor loaded.
	TrampNativeMode

	// TrampIntermediateMode: execution width changed, paging still off.
	TrampIntermediateMode

	// TrampTargetMode: shared page-table root enabled, 64-bit execution
	// mode active.
	TrampTargetMode

	// TrampKernelEntry: stack loaded, arrival flagged, control passed to
	// the kernel entry point. Terminal for this core.
	TrampKernelEntry
)

// String implements fmt.Stringer for TrampolineState.
func (s TrampolineState) String() string {
	switch s {
	case TrampReset:
		return "reset"
	case TrampNativeMode:
		return "native-mode"
	case TrampIntermediateMode:
		return "intermediate-mode"
	case TrampTargetMode:
		return "target-mode"
	case TrampKernelEntry:
		return "kernel-entry"
	default:
		return "unknown"
	}
}

var (
	errTrampolineDone     = &kernel.Error{Module: "smp", Message: "trampoline advanced past its terminal state"}
	errTrampolineNoParams = &kernel.Error{Module: "smp", Message: "trampoline has no parameter record"}
)

// Trampoline models the per-core mode-transition sequence driven by the
// position-fixed blob. The real sequence runs in assembly with no diagnostic
// channel; this model backs the simulated secondary cores used in tests and
// documents the exact transition order the blob must implement.
type Trampoline struct {
	state   TrampolineState
	params  *Params
	barrier *Barrier
}

// NewTrampoline returns a trampoline at reset, bound to the parameter record
// the coordinator wrote for this core.
func NewTrampoline(params *Params, barrier *Barrier) *Trampoline {
	return &Trampoline{state: TrampReset, params: params, barrier: barrier}
}

// State returns the current trampoline state.
func (t *Trampoline) State() TrampolineState {
	return t.state
}

// Step performs one transition of the sequence. The TargetMode to
// KernelEntry transition loads the per-core stack, sets this core's arrival
// flag and hands control to entryFn with the core identifier; entryFn is
// expected not to return on real hardware.
func (t *Trampoline) Step(entryFn func(coreID uint32)) *kernel.Error {
	if t.params == nil {
		return errTrampolineNoParams
	}

	switch t.state {
	case TrampReset:
		t.state = TrampNativeMode
	case TrampNativeMode:
		t.state = TrampIntermediateMode
	case TrampIntermediateMode:
		// The shared page-table root from the parameter record is
		// enabled here. A root that differs from the published one is
		// not detectable at this point: no diagnostic channel exists
		// yet. The kernel entry self-check catches it.
		t.state = TrampTargetMode
	case TrampTargetMode:
		t.state = TrampKernelEntry

		if err := t.barrier.MarkArrived(int(t.params.CoreID)); err != nil {
			return err
		}

		entryFn(t.params.CoreID)
	default:
		return errTrampolineDone
	}

	return nil
}

// Run drives the trampoline from reset to kernel entry.
func (t *Trampoline) Run(entryFn func(coreID uint32)) *kernel.Error {
	for t.state != TrampKernelEntry {
		if err := t.Step(entryFn); err != nil {
			return err
		}
	}

	return nil
}
