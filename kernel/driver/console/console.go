// Package console implements an EGA-compatible 80x25 text console using VGA
// mode 0x3. Once the framebuffer page is mapped the console can be registered
// as the kfmt output sink so boot progress becomes visible on screen.
//
// Each character cell in the framebuffer is represented using two bytes, a
// byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
package console

import (
	"reflect"
	"unsafe"
)

const (
	// DefaultFBAddr is the physical address of the VGA text-mode
	// framebuffer.
	DefaultFBAddr = uintptr(0xb8000)

	columns = 80
	rows    = 25

	// light gray text on black background
	defaultAttr = uint16(7) << 8

	clearChar = defaultAttr | uint16(' ')
)

// Console writes text to a VGA mode-3 framebuffer. It tracks a cursor,
// interprets CR/LF and scrolls the contents up one line when output runs past
// the bottom row.
type Console struct {
	fb []uint16

	x, y uint16
}

// Init attaches the console to the framebuffer at fbAddr and clears it. The
// caller must have identity-mapped the framebuffer before calling Init.
func (cons *Console) Init(fbAddr uintptr) {
	cons.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  columns * rows,
		Cap:  columns * rows,
		Data: fbAddr,
	}))

	cons.Clear()
}

// Position returns the current cursor position (x, y).
func (cons *Console) Position() (uint16, uint16) {
	return cons.x, cons.y
}

// SetPosition sets the current cursor position to (x, y), clipping it to the
// console dimensions.
func (cons *Console) SetPosition(x, y uint16) {
	if x >= columns {
		x = columns - 1
	}
	if y >= rows {
		y = rows - 1
	}

	cons.x, cons.y = x, y
}

// Clear erases the framebuffer contents and homes the cursor.
func (cons *Console) Clear() {
	for i := range cons.fb {
		cons.fb[i] = clearChar
	}

	cons.x, cons.y = 0, 0
}

// Write emits data to the framebuffer at the current cursor position. It
// always reports len(data) bytes written.
func (cons *Console) Write(data []byte) (int, error) {
	for _, ch := range data {
		cons.WriteByte(ch)
	}

	return len(data), nil
}

// WriteByte emits a single byte to the framebuffer at the current cursor
// position. Line feeds advance to the next row and carriage returns rewind
// the cursor to the start of the current row.
func (cons *Console) WriteByte(ch byte) error {
	switch ch {
	case '\r':
		cons.x = 0
	case '\n':
		cons.x = 0
		cons.y++
	default:
		cons.fb[int(cons.y)*columns+int(cons.x)] = defaultAttr | uint16(ch)
		cons.x++
		if cons.x == columns {
			cons.x = 0
			cons.y++
		}
	}

	if cons.y == rows {
		cons.scrollUp()
		cons.y = rows - 1
	}

	return nil
}

// scrollUp shifts the framebuffer contents up one row and clears the bottom
// row.
func (cons *Console) scrollUp() {
	copy(cons.fb, cons.fb[columns:])

	for i := (rows - 1) * columns; i < rows*columns; i++ {
		cons.fb[i] = clearChar
	}
}
