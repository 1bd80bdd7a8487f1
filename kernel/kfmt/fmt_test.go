package kfmt

import (
	"bytes"
	"io"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() {
		outputSink = nil
	}()

	// mute vet warnings about malformed printf formatting strings
	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{
			func() { printfn("no args") },
			"no args",
		},
		// bool values
		{
			func() { printfn("%t", true) },
			"true",
		},
		{
			func() { printfn("%t", false) },
			"false",
		},
		// strings and byte slices
		{
			func() { printfn("%s arg", "STRING") },
			"STRING arg",
		},
		{
			func() { printfn("%s arg", []byte("BYTE SLICE")) },
			"BYTE SLICE arg",
		},
		{
			func() { printfn("'%4s' arg with padding", "ABC") },
			"' ABC' arg with padding",
		},
		{
			func() { printfn("'%4s' arg longer than padding", "ABCDE") },
			"'ABCDE' arg longer than padding",
		},
		// uints
		{
			func() { printfn("uint arg: %d", uint8(10)) },
			"uint arg: 10",
		},
		{
			func() { printfn("uint arg: %o", uint16(0777)) },
			"uint arg: 777",
		},
		{
			func() { printfn("uint arg: 0x%x", uint32(0xbadf00d)) },
			"uint arg: 0xbadf00d",
		},
		{
			func() { printfn("uint arg with padding: '%10d'", uint64(123)) },
			"uint arg with padding: '       123'",
		},
		{
			func() { printfn("uint arg with padding: '0x%10x'", uint64(0xbadf00d)) },
			"uint arg with padding: '0x000badf00d'",
		},
		{
			func() { printfn("uintptr arg: %x", uintptr(0xfee00000)) },
			"uintptr arg: fee00000",
		},
		// ints
		{
			func() { printfn("int arg: %d", int8(-10)) },
			"int arg: -10",
		},
		{
			func() { printfn("int arg: %d", int16(1234)) },
			"int arg: 1234",
		},
		{
			func() { printfn("int arg with padding: '%6d'", int32(-123)) },
			"int arg with padding: '  -123'",
		},
		{
			func() { printfn("int arg: %d", int64(-12345)) },
			"int arg: -12345",
		},
		// escaped % and trailing %
		{
			func() { printfn("%d%%", 100) },
			"100%",
		},
		{
			func() { printfn("100%") },
			"100%!(NOVERB)",
		},
		// error tokens
		{
			func() { printfn("%s and %d", "one arg only") },
			"one arg only and (MISSING)",
		},
		{
			func() { printfn("%d", "not a number") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%t", "not a bool") },
			"%!(WRONGTYPE)",
		},
		{
			func() { printfn("%q", "unsupported verb") },
			"%!(NOVERB)",
		},
		{
			func() { printfn("no verbs", "extra", 42) },
			"no verbs%!(EXTRA)%!(EXTRA)",
		},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)

	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()

		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected to get %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestEarlyBufferDrain(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyBuffer = ringBuffer{}
	}()

	outputSink = nil
	earlyBuffer = ringBuffer{}

	// Output emitted before a sink exists accumulates in the early buffer.
	Printf("early: %d\n", 42)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "early: 42\n", buf.String(); got != exp {
		t.Fatalf("expected drained early output %q; got %q", exp, got)
	}

	// Output after sink registration goes straight through.
	Printf("late: %d\n", 43)
	if exp, got := "early: 42\nlate: 43\n", buf.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestGetOutputSink(t *testing.T) {
	defer func() {
		outputSink = nil
		earlyBuffer = ringBuffer{}
	}()

	outputSink = nil
	if got := GetOutputSink(); got != io.Writer(&earlyBuffer) {
		t.Fatal("expected GetOutputSink to return the early buffer when no sink is registered")
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)
	if got := GetOutputSink(); got != io.Writer(&buf) {
		t.Fatal("expected GetOutputSink to return the registered sink")
	}
}
