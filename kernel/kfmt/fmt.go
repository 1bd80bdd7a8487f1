// Package kfmt provides allocation-free formatted output for the bring-up
// path. It must remain usable before any memory manager exists, so the
// formatter writes byte-at-a-time through a shared scratch buffer and the
// output accumulates in a ring buffer until a sink is registered.
package kfmt

import (
	"io"

	"gopherboot/kernel/sync"
)

// maxNumBufSize defines the scratch buffer size for formatting numbers. It is
// large enough for a 64-bit value in base 8.
const maxNumBufSize = 24

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numBuf [maxNumBufSize]byte

	// singleByte is a shared one-byte buffer used for emitting characters
	// without triggering a string-to-slice conversion (which allocates).
	singleByte = []byte{0}

	// earlyBuffer captures Printf output emitted before a sink has been
	// registered via SetOutputSink.
	earlyBuffer ringBuffer

	outputSink io.Writer

	// outLock serializes Printf calls so output from concurrently booting
	// cores does not interleave. The formatter state (numBuf, singleByte)
	// is shared and must not be touched by two cores at once.
	outLock sync.Spinlock
)

// SetOutputSink redirects Printf output to w and drains any output that
// accumulated in the early ring buffer into it.
func SetOutputSink(w io.Writer) {
	outLock.Acquire()
	outputSink = w
	if w != nil {
		io.Copy(w, &earlyBuffer)
	}
	outLock.Release()
}

// GetOutputSink returns the currently registered output sink or the early
// ring buffer if no sink has been registered yet.
func GetOutputSink() io.Writer {
	if outputSink != nil {
		return outputSink
	}
	return &earlyBuffer
}

// Printf writes formatted output to the registered sink. It supports a subset
// of the fmt verbs: %s (string or []byte), %d, %x, %o (all built-in integer
// types) and %t, with an optional decimal width before the verb. Integer
// values rendered in base 16 are zero-padded to the requested width; all
// other values are left-padded with spaces. Printf never allocates.
func Printf(format string, args ...interface{}) {
	outLock.Acquire()
	Fprintf(GetOutputSink(), format, args...)
	outLock.Release()
}

// Fprintf behaves like Printf but writes the formatted output to w.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex int
		width    int
	)

	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' {
			emitByte(w, ch)
			continue
		}

		// Consume the optional width that precedes the verb.
		width = 0
		for i++; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			write(w, errNoVerb)
			break
		}

		verb := format[i]
		if verb == '%' {
			emitByte(w, '%')
			continue
		}

		if argIndex >= len(args) {
			write(w, errMissingArg)
			continue
		}

		switch verb {
		case 'd':
			fmtInt(w, args[argIndex], 10, width)
		case 'x':
			fmtInt(w, args[argIndex], 16, width)
		case 'o':
			fmtInt(w, args[argIndex], 8, width)
		case 's':
			fmtString(w, args[argIndex], width)
		case 't':
			fmtBool(w, args[argIndex])
		default:
			write(w, errNoVerb)
		}
		argIndex++
	}

	for ; argIndex < len(args); argIndex++ {
		write(w, errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	bVal, isBool := v.(bool)
	if !isBool {
		write(w, errWrongArgType)
		return
	}

	if bVal {
		write(w, trueValue)
		return
	}
	write(w, falseValue)
}

func fmtString(w io.Writer, v interface{}, width int) {
	switch sVal := v.(type) {
	case string:
		pad(w, ' ', width-len(sVal))
		// Emitting the string byte-at-a-time avoids the allocation a
		// string-to-[]byte conversion would trigger.
		for i := 0; i < len(sVal); i++ {
			emitByte(w, sVal[i])
		}
	case []byte:
		pad(w, ' ', width-len(sVal))
		write(w, sVal)
	default:
		write(w, errWrongArgType)
	}
}

// fmtInt renders v in the requested base applying the supplied width. All
// built-in signed and unsigned integer types are supported.
func fmtInt(w io.Writer, v interface{}, base, width int) {
	var (
		uval     uint64
		negative bool
	)

	switch iVal := v.(type) {
	case uint8:
		uval = uint64(iVal)
	case uint16:
		uval = uint64(iVal)
	case uint32:
		uval = uint64(iVal)
	case uint64:
		uval = iVal
	case uint:
		uval = uint64(iVal)
	case uintptr:
		uval = uint64(iVal)
	case int8:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int16:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int32:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	case int64:
		negative = iVal < 0
		uval = abs64(iVal)
	case int:
		negative = iVal < 0
		uval = abs64(int64(iVal))
	default:
		write(w, errWrongArgType)
		return
	}

	digits := 0
	for tmp := uval; ; digits++ {
		tmp /= uint64(base)
		if tmp == 0 {
			break
		}
	}
	digits++

	padCh := byte(' ')
	if base != 10 {
		padCh = '0'
	}

	if negative && padCh == ' ' {
		digits++
	}

	pad(w, padCh, width-digits)

	if negative {
		emitByte(w, '-')
	}

	end := len(numBuf)
	for i := end - 1; ; i-- {
		d := byte(uval % uint64(base))
		if d < 10 {
			numBuf[i] = '0' + d
		} else {
			numBuf[i] = 'a' + d - 10
		}

		uval /= uint64(base)
		if uval == 0 {
			write(w, numBuf[i:end])
			return
		}
	}
}

func abs64(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func pad(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		emitByte(w, ch)
	}
}

func emitByte(w io.Writer, ch byte) {
	singleByte[0] = ch
	write(w, singleByte)
}

func write(w io.Writer, data []byte) {
	if w == nil {
		w = &earlyBuffer
	}
	w.Write(data)
}
