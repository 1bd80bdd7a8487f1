package smp

import (
	"gopherboot/device/apic"
	"gopherboot/kernel"
	"gopherboot/kernel/cpu"
)

// Default iteration budgets for the wake sequence. The correct magnitudes
// are hardware-dependent; these defaults are overridable via the boot
// command line (smp.settle_budget, smp.poll_budget).
const (
	// DefaultSettleBudget approximates the settle interval between the
	// INIT and STARTUP pulses.
	DefaultSettleBudget = 100000

	// DefaultPollBudget bounds the wait for a woken core's arrival flag.
	DefaultPollBudget = 1000000

	// startupAttempts is the number of STARTUP pulses sent before a core
	// is declared failed. Firmware convention is to retry once.
	startupAttempts = 2
)

var (
	errBarrierNotPublished = &kernel.Error{Module: "smp", Message: "bring-up requires the primary-ready flag to be published"}
	errRegistrySealed      = &kernel.Error{Module: "smp", Message: "bring-up already ran against this registry"}
	errUnknownCore         = &kernel.Error{Module: "smp", Message: "kernel entry from a core the coordinator never signaled"}
	errDoubleEntry         = &kernel.Error{Module: "smp", Message: "core entered the kernel twice"}

	// sendInitFn/sendStartupFn deliver the wake pulses. Tests override them
	// to simulate secondary cores in-process.
	sendInitFn    = (*apic.LAPIC).SendInit
	sendStartupFn = (*apic.LAPIC).SendStartup

	// haltFn parks the calling core. Mocked by tests simulating secondary
	// cores in-process.
	haltFn = cpu.Halt

	// protocolViolationFn reports an unrecoverable synchronization
	// violation (a core entering the kernel twice).
	protocolViolationFn = func(err *kernel.Error) {
		kernel.Panic(err)
	}
)

// Config carries the bring-up parameters the primary core assembled before
// waking anyone: where secondaries enter the kernel, which page-table root
// they must adopt and where their parameter records live.
type Config struct {
	// EntryAddr is the kernel entry point secondaries jump to.
	EntryAddr uintptr

	// PageTableRoot is the shared page-table root published by the
	// primary core.
	PageTableRoot uintptr

	// ParamsBase is the physical base of the per-core parameter area.
	ParamsBase uintptr

	// StackTopFn returns the initial stack pointer for a core. Stacks are
	// carved per-core before any secondary is signaled.
	StackTopFn func(coreID int) (uintptr, *kernel.Error)

	// Vector is the startup-signal vector addressing the trampoline page.
	Vector uint8

	// SettleBudget and PollBudget bound the busy-waits of the wake
	// sequence. Zero selects the defaults.
	SettleBudget uint64
	PollBudget   uint64
}

// Coordinator wakes each discovered secondary core in turn and records the
// outcome in the registry. It runs on the primary core only.
type Coordinator struct {
	reg   *Registry
	bar   *Barrier
	lapic *apic.LAPIC
	cfg   Config
}

// NewCoordinator returns a bring-up coordinator over the supplied registry,
// barrier and interrupt controller.
func NewCoordinator(reg *Registry, bar *Barrier, lapic *apic.LAPIC, cfg Config) *Coordinator {
	if cfg.SettleBudget == 0 {
		cfg.SettleBudget = DefaultSettleBudget
	}
	if cfg.PollBudget == 0 {
		cfg.PollBudget = DefaultPollBudget
	}

	return &Coordinator{reg: reg, bar: bar, lapic: lapic, cfg: cfg}
}

// Run executes the bring-up sequence: for each secondary core, write its
// parameter record, issue the two-pulse wake sequence and poll for its
// arrival flag within the configured budget. A core that does not arrive is
// marked Failed and skipped; a dead core never blocks the cores after it.
// Run consumes the registry; a second call is rejected.
func (c *Coordinator) Run() *kernel.Error {
	if !c.bar.PrimaryReady() {
		return errBarrierNotPublished
	}

	if !c.reg.seal() {
		return errRegistrySealed
	}

	for coreID := 0; coreID < c.reg.Count(); coreID++ {
		proc := c.reg.Proc(coreID)
		if proc.Role != RoleSecondary {
			continue
		}

		c.startCore(coreID, proc)
	}

	return nil
}

// startCore wakes one secondary. Failures (stack exhaustion, signal
// delivery timeout, arrival timeout) mark the core Failed and return; the
// caller moves on to the next core.
func (c *Coordinator) startCore(coreID int, proc *Proc) {
	stackTop, err := c.cfg.StackTopFn(coreID)
	if err != nil {
		proc.setState(StateFailed)
		return
	}

	// The parameter record must be complete before the wake signal: the
	// trampoline reads it with no further synchronization.
	params := paramsAt(c.cfg.ParamsBase, coreID)
	params.EntryAddr = uint64(c.cfg.EntryAddr)
	params.PageTableRoot = uint64(c.cfg.PageTableRoot)
	params.StackTop = uint64(stackTop)
	params.CoreID = uint32(coreID)

	if !proc.casState(StateDiscovered, StateSignalSent) {
		// Not in Discovered: a previous run already touched this slot.
		proc.setState(StateFailed)
		return
	}

	if err := sendInitFn(c.lapic, proc.APICID); err != nil {
		c.fail(proc)
		return
	}

	cpu.BusyDelay(c.cfg.SettleBudget)

	for attempt := 0; attempt < startupAttempts; attempt++ {
		if err := sendStartupFn(c.lapic, proc.APICID, c.cfg.Vector); err != nil {
			c.fail(proc)
			return
		}

		if c.pollArrived(coreID) {
			return
		}
	}

	c.fail(proc)
}

// pollArrived spins on the core's arrival flag for the configured budget.
func (c *Coordinator) pollArrived(coreID int) bool {
	for i := uint64(0); i < c.cfg.PollBudget; i++ {
		if c.bar.Arrived(coreID) {
			return true
		}

		cpu.Relax()
	}

	return false
}

// fail marks a core Failed. The transition races with the core itself on
// the SignalSent edge: if the CAS loses, the core reached the kernel entry
// just as the budget expired and is advancing to Running on its own, so the
// state is left to it.
func (c *Coordinator) fail(proc *Proc) {
	proc.casState(StateSignalSent, StateFailed)
}

// SecondaryEntry is the kernel entry point for woken cores. It runs the
// self-checks a core must pass before joining the active set: the adopted
// page-table root must match the published one, and the core must be one
// the coordinator actually signaled. A core marked Failed (a straggler that
// arrived after its deadline) parks itself instead of joining.
func (c *Coordinator) SecondaryEntry(coreID uint32) {
	if cpu.ActivePDT() != c.cfg.PageTableRoot {
		haltFn()
		return
	}

	proc := c.reg.Proc(int(coreID))
	if proc == nil || proc.Role != RoleSecondary {
		protocolViolationFn(errUnknownCore)
		return
	}

	switch {
	case proc.casState(StateSignalSent, StateStarting):
		// Normal path.
	case proc.State() == StateFailed:
		// Straggler: the coordinator gave up on this core. It must not
		// join the active set.
		haltFn()
		return
	default:
		// Running or Starting already: this core entered twice, which
		// means the one-shot wake protocol was violated.
		protocolViolationFn(errDoubleEntry)
		return
	}

	proc.setState(StateRunning)
}
