// Package smp implements symmetric multiprocessing bring-up: the processor
// registry, the synchronization barrier, the trampoline contract that
// carries a secondary core from reset into 64-bit execution and the
// coordinator that wakes each core and records its outcome.
package smp

import (
	"sync/atomic"

	"gopherboot/kernel"
)

// MaxCores is the fixed capacity of the processor registry. The registry is
// an arena of per-core slots allocated up front; it never grows, since no
// allocation may happen once secondary cores start executing.
const MaxCores = 32

// Role describes how a core participates in bring-up.
type Role uint8

const (
	// RolePrimary is the bootstrap processor firmware handed control to.
	RolePrimary Role = iota

	// RoleSecondary cores are woken explicitly by the coordinator.
	RoleSecondary
)

// String implements fmt.Stringer for Role.
func (r Role) String() string {
	if r == RolePrimary {
		return "primary"
	}
	return "secondary"
}

// State tracks a core's progress through bring-up.
type State uint32

const (
	// StateDiscovered: listed in the firmware topology, not yet signaled.
	StateDiscovered State = iota

	// StateSignalSent: the wake sequence has been issued.
	StateSignalSent

	// StateStarting: the core reached the kernel entry point and passed
	// its self-checks.
	StateStarting

	// StateRunning: the core is in uniform kernel-visible execution
	// state. Terminal for successful bring-up.
	StateRunning

	// StateFailed: the core did not acknowledge the wake sequence within
	// its deadline. Terminal; the core is excluded from the active set.
	StateFailed
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateSignalSent:
		return "signal-sent"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Proc is the canonical descriptor for one logical core. It is created
// during topology discovery and persists into later subsystems as the
// core registry entry; it is never destroyed during bring-up.
type Proc struct {
	// APICID is the local interrupt controller identifier wake signals
	// are addressed to.
	APICID uint8

	// Role of the core.
	Role Role

	// state is accessed atomically: the coordinator and the core itself
	// race on the SignalSent/Starting edge.
	state uint32
}

// State returns the core's current bring-up state.
func (p *Proc) State() State {
	return State(atomic.LoadUint32(&p.state))
}

func (p *Proc) setState(s State) {
	atomic.StoreUint32(&p.state, uint32(s))
}

func (p *Proc) casState(old, new State) bool {
	return atomic.CompareAndSwapUint32(&p.state, uint32(old), uint32(new))
}

var (
	errRegistryFull   = &kernel.Error{Module: "smp", Message: "processor registry slots exhausted"}
	errDuplicateAPICID = &kernel.Error{Module: "smp", Message: "duplicate local controller identifier in topology"}
	errPrimaryMissing  = &kernel.Error{Module: "smp", Message: "topology contains no primary core"}
)

// Registry holds one Proc slot per discovered core, indexed by core
// identifier. It has a two-phase lifecycle: populated single-threaded on the
// primary core, then shared read-mostly once cores are signaled.
type Registry struct {
	procs [MaxCores]Proc
	count int

	// sealed latches when the coordinator first runs; a sealed registry
	// rejects any further bring-up attempt.
	sealed uint32
}

// Add appends a core to the registry during the single-threaded
// construction phase and returns its core identifier. The primary core is
// registered in state Running (it is self-evidently executing); secondaries
// start out Discovered.
func (r *Registry) Add(apicID uint8, role Role) (int, *kernel.Error) {
	if r.count == MaxCores {
		return 0, errRegistryFull
	}

	for i := 0; i < r.count; i++ {
		if r.procs[i].APICID == apicID {
			return 0, errDuplicateAPICID
		}
	}

	coreID := r.count
	proc := &r.procs[coreID]
	proc.APICID = apicID
	proc.Role = role

	if role == RolePrimary {
		proc.setState(StateRunning)
	} else {
		proc.setState(StateDiscovered)
	}

	r.count++

	return coreID, nil
}

// Count returns the number of registered cores.
func (r *Registry) Count() int {
	return r.count
}

// Proc returns the descriptor for the given core identifier or nil if the
// identifier is out of range.
func (r *Registry) Proc(coreID int) *Proc {
	if coreID < 0 || coreID >= r.count {
		return nil
	}

	return &r.procs[coreID]
}

// Primary returns the primary core's identifier and descriptor.
func (r *Registry) Primary() (int, *Proc, *kernel.Error) {
	for i := 0; i < r.count; i++ {
		if r.procs[i].Role == RolePrimary {
			return i, &r.procs[i], nil
		}
	}

	return 0, nil, errPrimaryMissing
}

// Active returns the identifiers of all cores in state Running. Later
// initialization (scheduler setup) must consider only these cores.
func (r *Registry) Active() []int {
	active := make([]int, 0, r.count)
	for i := 0; i < r.count; i++ {
		if r.procs[i].State() == StateRunning {
			active = append(active, i)
		}
	}

	return active
}

// seal marks the registry as consumed by a bring-up run. It returns false
// if the registry was already sealed.
func (r *Registry) seal() bool {
	return atomic.CompareAndSwapUint32(&r.sealed, 0, 1)
}

// Sealed returns true once a bring-up run has consumed the registry.
func (r *Registry) Sealed() bool {
	return atomic.LoadUint32(&r.sealed) != 0
}
