package bootinfo

import "testing"

func TestVisitCmdLine(t *testing.T) {
	var info Info
	if err := info.SetCmdLine("console=serial  debug smp.poll_budget=500 "); err != nil {
		t.Fatal(err)
	}

	type pair struct{ key, value string }
	var got []pair

	info.VisitCmdLine(func(key, value []byte) bool {
		got = append(got, pair{string(key), string(value)})
		return true
	})

	exp := []pair{
		{"console", "serial"},
		{"debug", "debug"},
		{"smp.poll_budget", "500"},
	}

	if len(got) != len(exp) {
		t.Fatalf("expected %d pairs; got %v", len(exp), got)
	}
	for i := range exp {
		if got[i] != exp[i] {
			t.Errorf("[pair %d] expected %v; got %v", i, exp[i], got[i])
		}
	}
}

func TestVisitCmdLineEarlyStop(t *testing.T) {
	var info Info
	info.SetCmdLine("a=1 b=2 c=3")

	visits := 0
	info.VisitCmdLine(func(key, value []byte) bool {
		visits++
		return visits < 2
	})

	if visits != 2 {
		t.Fatalf("expected the scan to stop after 2 visits; got %d", visits)
	}
}

func TestCmdLineUint(t *testing.T) {
	var info Info
	info.SetCmdLine("smp.settle_budget=200000 smp.poll_budget=bogus empty=")

	specs := []struct {
		key      string
		defValue uint64
		exp      uint64
	}{
		{"smp.settle_budget", 1, 200000},
		{"smp.poll_budget", 42, 42},
		{"empty", 7, 7},
		{"absent", 9, 9},
	}

	for _, spec := range specs {
		if got := info.CmdLineUint(spec.key, spec.defValue); got != spec.exp {
			t.Errorf("[%s] expected %d; got %d", spec.key, spec.exp, got)
		}
	}
}

func TestVisitCmdLineEmpty(t *testing.T) {
	var info Info

	info.VisitCmdLine(func(key, value []byte) bool {
		t.Fatalf("expected no visits for an empty command line; got %q=%q", key, value)
		return false
	})
}
