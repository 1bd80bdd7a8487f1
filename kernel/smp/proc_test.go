package smp

import "testing"

func TestRegistryAdd(t *testing.T) {
	var reg Registry

	coreID, err := reg.Add(4, RolePrimary)
	if err != nil {
		t.Fatal(err)
	}
	if coreID != 0 {
		t.Fatalf("expected primary core to get id 0; got %d", coreID)
	}
	if got := reg.Proc(coreID).State(); got != StateRunning {
		t.Fatalf("expected primary core state to be %s; got %s", StateRunning, got)
	}

	coreID, err = reg.Add(5, RoleSecondary)
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Proc(coreID).State(); got != StateDiscovered {
		t.Fatalf("expected secondary core state to be %s; got %s", StateDiscovered, got)
	}

	if reg.Count() != 2 {
		t.Fatalf("expected registry count to be 2; got %d", reg.Count())
	}
}

func TestRegistryAddDuplicateAPICID(t *testing.T) {
	var reg Registry

	if _, err := reg.Add(7, RolePrimary); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.Add(7, RoleSecondary); err != errDuplicateAPICID {
		t.Fatalf("expected to get errDuplicateAPICID; got %v", err)
	}
}

func TestRegistryCapacity(t *testing.T) {
	var reg Registry

	for i := 0; i < MaxCores; i++ {
		if _, err := reg.Add(uint8(i), RoleSecondary); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := reg.Add(200, RoleSecondary); err != errRegistryFull {
		t.Fatalf("expected to get errRegistryFull; got %v", err)
	}
}

func TestRegistryProcOutOfRange(t *testing.T) {
	var reg Registry

	reg.Add(0, RolePrimary)

	if got := reg.Proc(-1); got != nil {
		t.Fatalf("expected Proc(-1) to return nil; got %v", got)
	}
	if got := reg.Proc(1); got != nil {
		t.Fatalf("expected Proc(1) to return nil; got %v", got)
	}
}

func TestRegistryPrimary(t *testing.T) {
	var reg Registry

	reg.Add(8, RoleSecondary)
	reg.Add(3, RolePrimary)

	coreID, proc, err := reg.Primary()
	if err != nil {
		t.Fatal(err)
	}
	if coreID != 1 || proc.APICID != 3 {
		t.Fatalf("expected primary to be core 1 with apic id 3; got core %d with apic id %d", coreID, proc.APICID)
	}

	var empty Registry
	if _, _, err = empty.Primary(); err != errPrimaryMissing {
		t.Fatalf("expected to get errPrimaryMissing; got %v", err)
	}
}

func TestRegistryActive(t *testing.T) {
	var reg Registry

	reg.Add(0, RolePrimary)
	reg.Add(1, RoleSecondary)
	reg.Add(2, RoleSecondary)

	reg.Proc(2).setState(StateFailed)

	active := reg.Active()
	if exp := 1; len(active) != exp {
		t.Fatalf("expected %d active cores; got %d", exp, len(active))
	}
	if active[0] != 0 {
		t.Fatalf("expected core 0 to be the only active core; got %v", active)
	}

	reg.Proc(1).setState(StateRunning)
	if exp, got := 2, len(reg.Active()); got != exp {
		t.Fatalf("expected %d active cores; got %d", exp, got)
	}
}

func TestStateAndRoleStrings(t *testing.T) {
	specs := []struct {
		val interface{ String() string }
		exp string
	}{
		{StateDiscovered, "discovered"},
		{StateSignalSent, "signal-sent"},
		{StateStarting, "starting"},
		{StateRunning, "running"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
		{RolePrimary, "primary"},
		{RoleSecondary, "secondary"},
	}

	for specIndex, spec := range specs {
		if got := spec.val.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}
