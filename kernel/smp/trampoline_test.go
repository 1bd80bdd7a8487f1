package smp

import "testing"

func TestTrampolineSequence(t *testing.T) {
	var (
		bar    Barrier
		params = Params{EntryAddr: 0x100000, PageTableRoot: 0x2000, StackTop: 0x90000, CoreID: 3}
	)

	tramp := NewTrampoline(&params, &bar)

	expStates := []TrampolineState{
		TrampNativeMode,
		TrampIntermediateMode,
		TrampTargetMode,
	}

	for _, expState := range expStates {
		if err := tramp.Step(func(uint32) {}); err != nil {
			t.Fatal(err)
		}
		if got := tramp.State(); got != expState {
			t.Fatalf("expected trampoline state %s; got %s", expState, got)
		}
		if bar.Arrived(3) {
			t.Fatalf("expected arrival flag to stay clear in state %s", expState)
		}
	}

	var enteredWith uint32
	entryCalls := 0
	if err := tramp.Step(func(coreID uint32) {
		entryCalls++
		enteredWith = coreID
	}); err != nil {
		t.Fatal(err)
	}

	if got := tramp.State(); got != TrampKernelEntry {
		t.Fatalf("expected trampoline state %s; got %s", TrampKernelEntry, got)
	}
	if entryCalls != 1 {
		t.Fatalf("expected kernel entry to be invoked once; got %d invocations", entryCalls)
	}
	if enteredWith != params.CoreID {
		t.Fatalf("expected kernel entry to receive core id %d; got %d", params.CoreID, enteredWith)
	}

	// The arrival flag must be set before control reaches the kernel entry.
	if !bar.Arrived(3) {
		t.Fatal("expected arrival flag to be set at kernel entry")
	}

	if err := tramp.Step(func(uint32) {}); err != errTrampolineDone {
		t.Fatalf("expected to get errTrampolineDone; got %v", err)
	}
}

func TestTrampolineRun(t *testing.T) {
	var (
		bar    Barrier
		params = Params{CoreID: 1}
	)

	entryCalls := 0
	tramp := NewTrampoline(&params, &bar)
	if err := tramp.Run(func(uint32) { entryCalls++ }); err != nil {
		t.Fatal(err)
	}

	if entryCalls != 1 {
		t.Fatalf("expected kernel entry to be invoked once; got %d invocations", entryCalls)
	}
	if got := tramp.State(); got != TrampKernelEntry {
		t.Fatalf("expected trampoline state %s; got %s", TrampKernelEntry, got)
	}
}

func TestTrampolineMissingParams(t *testing.T) {
	tramp := NewTrampoline(nil, &Barrier{})

	if err := tramp.Step(func(uint32) {}); err != errTrampolineNoParams {
		t.Fatalf("expected to get errTrampolineNoParams; got %v", err)
	}
}

func TestTrampolineStateStrings(t *testing.T) {
	specs := []struct {
		state TrampolineState
		exp   string
	}{
		{TrampReset, "reset"},
		{TrampNativeMode, "native-mode"},
		{TrampIntermediateMode, "intermediate-mode"},
		{TrampTargetMode, "target-mode"},
		{TrampKernelEntry, "kernel-entry"},
		{TrampolineState(99), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.state.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
