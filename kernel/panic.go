package kernel

import (
	"gopherboot/kernel/cpu"
	"gopherboot/kernel/kfmt"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the active output sink and
// halts the CPU. Calls to Panic never return. Nothing below the primary-core
// layer has a channel to report errors upward so this is the terminal handler
// for every unrecoverable condition.
func Panic(e interface{}) {
	var err *Error

	switch t := e.(type) {
	case *Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	kfmt.Printf("\n-----------------------------------\n")
	if err != nil {
		kfmt.Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	kfmt.Printf("*** kernel panic: system halted ***")
	kfmt.Printf("\n-----------------------------------\n")

	cpuHaltFn()
}
