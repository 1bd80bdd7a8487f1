package console

import (
	"testing"
	"unsafe"
)

func newTestConsole() (*Console, *[columns * rows]uint16) {
	fb := new([columns * rows]uint16)

	var cons Console
	cons.Init(uintptr(unsafe.Pointer(&fb[0])))

	return &cons, fb
}

func rowText(fb *[columns * rows]uint16, row int) string {
	line := make([]byte, 0, columns)
	for col := 0; col < columns; col++ {
		line = append(line, byte(fb[row*columns+col]))
	}

	// Trim the trailing clear characters.
	end := len(line)
	for end > 0 && line[end-1] == ' ' {
		end--
	}

	return string(line[:end])
}

func TestConsoleInitClears(t *testing.T) {
	fb := new([columns * rows]uint16)
	fb[0] = 0xffff
	fb[columns*rows-1] = 0xffff

	var cons Console
	cons.Init(uintptr(unsafe.Pointer(&fb[0])))

	for i, cell := range fb {
		if cell != clearChar {
			t.Fatalf("expected cell %d to contain the clear character; got %x", i, cell)
		}
	}

	if x, y := cons.Position(); x != 0 || y != 0 {
		t.Fatalf("expected the cursor to be homed; got (%d, %d)", x, y)
	}
}

func TestConsoleWrite(t *testing.T) {
	cons, fb := newTestConsole()

	n, err := cons.Write([]byte("boot: hello\nsmp: 4 cores"))
	if err != nil || n != 24 {
		t.Fatalf("expected Write to accept 24 bytes; got %d, %v", n, err)
	}

	if got := rowText(fb, 0); got != "boot: hello" {
		t.Fatalf("expected row 0 to contain %q; got %q", "boot: hello", got)
	}
	if got := rowText(fb, 1); got != "smp: 4 cores" {
		t.Fatalf("expected row 1 to contain %q; got %q", "smp: 4 cores", got)
	}

	// Every written cell must carry the default attribute byte.
	if got := fb[0] >> 8; got != defaultAttr>>8 {
		t.Fatalf("expected the default attribute; got %x", got)
	}

	if x, y := cons.Position(); x != 12 || y != 1 {
		t.Fatalf("expected the cursor at (12, 1); got (%d, %d)", x, y)
	}
}

func TestConsoleCarriageReturn(t *testing.T) {
	cons, fb := newTestConsole()

	cons.Write([]byte("aaaa\rbb"))

	if got := rowText(fb, 0); got != "bbaa" {
		t.Fatalf("expected row 0 to contain %q; got %q", "bbaa", got)
	}
}

func TestConsoleLineWrap(t *testing.T) {
	cons, _ := newTestConsole()

	line := make([]byte, columns)
	for i := range line {
		line[i] = 'x'
	}
	cons.Write(line)

	if x, y := cons.Position(); x != 0 || y != 1 {
		t.Fatalf("expected the cursor to wrap to (0, 1); got (%d, %d)", x, y)
	}
}

func TestConsoleScroll(t *testing.T) {
	cons, fb := newTestConsole()

	// Fill every row and then overflow by one line; the contents must
	// shift up and the bottom row must hold the newest line.
	for i := 0; i < rows; i++ {
		cons.Write([]byte{'a' + byte(i), '\n'})
	}
	cons.Write([]byte("last"))

	if got := rowText(fb, 0); got != "b" {
		t.Fatalf("expected row 0 to contain %q after scrolling; got %q", "b", got)
	}
	if got := rowText(fb, rows-1); got != "last" {
		t.Fatalf("expected the bottom row to contain %q; got %q", "last", got)
	}

	if _, y := cons.Position(); y != rows-1 {
		t.Fatalf("expected the cursor to stay on the bottom row; got row %d", y)
	}
}

func TestConsoleSetPositionClips(t *testing.T) {
	cons, _ := newTestConsole()

	cons.SetPosition(columns+10, rows+10)

	if x, y := cons.Position(); x != columns-1 || y != rows-1 {
		t.Fatalf("expected the cursor to be clipped to (%d, %d); got (%d, %d)", columns-1, rows-1, x, y)
	}
}
