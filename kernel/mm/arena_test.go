package mm

import "testing"

func TestBootArenaInit(t *testing.T) {
	var arena BootArena

	// Unaligned bounds are aligned inwards.
	if err := arena.Init(0x100800, 0x3000); err != nil {
		t.Fatal(err)
	}
	if exp, got := Frame(0x101), arena.next; got != exp {
		t.Fatalf("expected arena cursor at frame %x; got %x", exp, got)
	}
	if exp, got := Frame(0x103), arena.limit; got != exp {
		t.Fatalf("expected arena limit at frame %x; got %x", exp, got)
	}
	if exp, got := uintptr(2), arena.FramesRemaining(); got != exp {
		t.Fatalf("expected %d frames remaining; got %d", exp, got)
	}

	// A region smaller than one aligned frame is rejected.
	if err := arena.Init(0x100800, 0x800); err != errArenaRegionTooSmall {
		t.Fatalf("expected to get errArenaRegionTooSmall; got %v", err)
	}
}

func TestBootArenaAllocFrame(t *testing.T) {
	defer func(origMemset func(addr uintptr, value byte, size uintptr)) {
		memsetFn = origMemset
	}(memsetFn)

	var cleared []uintptr
	memsetFn = func(addr uintptr, value byte, size uintptr) {
		if value != 0 || size != PageSize {
			t.Errorf("expected a full-page zero fill; got value %d size %d", value, size)
		}
		cleared = append(cleared, addr)
	}

	var arena BootArena
	if err := arena.Init(0x100000, 2*uintptr(PageSize)); err != nil {
		t.Fatal(err)
	}

	first, err := arena.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}
	second, err := arena.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if second != first+1 {
		t.Fatalf("expected consecutive frames; got %d then %d", first, second)
	}

	if len(cleared) != 2 || cleared[0] != first.Address() || cleared[1] != second.Address() {
		t.Fatalf("expected both handed-out frames to be cleared; got %v", cleared)
	}

	if frame, err := arena.AllocFrame(); err != errArenaExhausted {
		t.Fatalf("expected to get errArenaExhausted; got frame %d err %v", frame, err)
	} else if frame != InvalidFrame {
		t.Fatalf("expected InvalidFrame on exhaustion; got %d", frame)
	}
}

func TestStackArea(t *testing.T) {
	defer func(origMemset func(addr uintptr, value byte, size uintptr)) {
		memsetFn = origMemset
	}(memsetFn)
	memsetFn = func(addr uintptr, value byte, size uintptr) {}

	var arena BootArena
	if err := arena.Init(0x200000, 16*uintptr(PageSize)); err != nil {
		t.Fatal(err)
	}

	var sa StackArea
	if err := sa.Init(&arena, 3); err != nil {
		t.Fatal(err)
	}

	if exp, got := uintptr(0x200000), sa.Base(); got != exp {
		t.Fatalf("expected stack area base %x; got %x", exp, got)
	}
	if exp, got := 3*uintptr(StackSize), sa.Size(); got != exp {
		t.Fatalf("expected stack area size %x; got %x", exp, got)
	}

	for slot := 0; slot < 3; slot++ {
		top, err := sa.Top(slot)
		if err != nil {
			t.Fatal(err)
		}
		if exp := sa.Base() + uintptr(slot+1)*uintptr(StackSize); top != exp {
			t.Errorf("[slot %d] expected stack top %x; got %x", slot, exp, top)
		}
	}

	if _, err := sa.Top(3); err != errStackSlotOutOfRange {
		t.Fatalf("expected to get errStackSlotOutOfRange; got %v", err)
	}
	if _, err := sa.Top(-1); err != errStackSlotOutOfRange {
		t.Fatalf("expected to get errStackSlotOutOfRange; got %v", err)
	}
}

func TestStackAreaArenaExhaustion(t *testing.T) {
	defer func(origMemset func(addr uintptr, value byte, size uintptr)) {
		memsetFn = origMemset
	}(memsetFn)
	memsetFn = func(addr uintptr, value byte, size uintptr) {}

	var arena BootArena
	if err := arena.Init(0x200000, 4*uintptr(PageSize)); err != nil {
		t.Fatal(err)
	}

	var sa StackArea
	if err := sa.Init(&arena, 2); err != errArenaExhausted {
		t.Fatalf("expected to get errArenaExhausted; got %v", err)
	}
}
