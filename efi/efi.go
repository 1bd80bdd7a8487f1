// Package efi wraps the firmware boot services that the bootloader consumes:
// image loading, the two-phase memory map query, graphics output lookup, the
// ACPI root pointer and the irreversible boot-services exit. Service calls
// are dispatched through a package-level hook so the package can be exercised
// on a hosted build; a real loader image routes the hook to the firmware call
// thunk provided by its rt0 layer.
package efi

import (
	"sync/atomic"

	"gopherboot/kernel"
)

// Status mirrors the EFI_STATUS values returned by boot services.
type Status uintptr

// statusErrBit is set on all firmware error codes.
const statusErrBit Status = 1 << 63

// The subset of status values the bootloader distinguishes.
const (
	StatusSuccess          Status = 0
	StatusLoadError               = statusErrBit | 1
	StatusInvalidParameter        = statusErrBit | 2
	StatusUnsupported             = statusErrBit | 3
	StatusBufferTooSmall          = statusErrBit | 5
	StatusNotFound                = statusErrBit | 14
)

// Boot-services table offsets for the x64 calling convention. The table
// starts with a 24-byte header followed by one 8-byte function pointer per
// service.
const (
	bootSvcGetMemoryMap     = 0x38
	bootSvcLoadImage        = 0xc8
	bootSvcExitBootServices = 0xe8
	bootSvcLocateProtocol   = 0x140
)

var (
	// callServiceFn dispatches a firmware service call. The fallback
	// rejects every call; the loader's rt0 layer installs the real thunk
	// and tests install fakes.
	callServiceFn = func(fnAddr uintptr, args ...uintptr) Status {
		return StatusUnsupported
	}

	// protocolViolationFn is the terminal handler for boot-services
	// protocol violations. Mocked by tests.
	protocolViolationFn = kernel.Panic

	errServiceAfterExit = &kernel.Error{Module: "efi", Message: "boot service invoked after ExitBootServices"}
	errExitTwice        = &kernel.Error{Module: "efi", Message: "ExitBootServices invoked twice"}

	// ErrExitFailed indicates that the firmware rejected the exit call.
	ErrExitFailed = &kernel.Error{Module: "efi", Message: "ExitBootServices failed"}
)

// SetServiceDispatcher installs the thunk that dispatches firmware service
// calls. A real loader image installs the call gate provided by its rt0
// layer before invoking any service; tests install fakes.
func SetServiceDispatcher(dispatchFn func(fnAddr uintptr, args ...uintptr) Status) {
	callServiceFn = dispatchFn
}

// Services provides access to the firmware boot services and configuration
// tables. The zero value is not usable; construct via NewServices.
type Services struct {
	imageHandle        uintptr
	bootServicesBase   uintptr
	configTableBase    uintptr
	configTableEntries int

	// exited latches once Exit has been invoked; it guards the single
	// irreversible boot-services transition.
	exited uint32
}

// NewServices returns a Services instance backed by the supplied image
// handle, boot-services table address and configuration table.
func NewServices(imageHandle, bootServicesBase, configTableBase uintptr, configTableEntries int) *Services {
	return &Services{
		imageHandle:        imageHandle,
		bootServicesBase:   bootServicesBase,
		configTableBase:    configTableBase,
		configTableEntries: configTableEntries,
	}
}

// Exited returns true once boot services have been exited.
func (s *Services) Exited() bool {
	return atomic.LoadUint32(&s.exited) != 0
}

// call dispatches a boot service at the given table offset. Invoking any
// boot service after Exit is a fatal protocol violation.
func (s *Services) call(offset uintptr, args ...uintptr) Status {
	if s.Exited() {
		protocolViolationFn(errServiceAfterExit)
		return StatusUnsupported
	}

	return callServiceFn(s.bootServicesBase+offset, args...)
}

// Exit invokes ExitBootServices with the supplied memory map key. This is a
// single irreversible transition: after a successful Exit no firmware service
// may be invoked again and a second call to Exit is a fatal protocol
// violation.
func (s *Services) Exit(mapKey uintptr) *kernel.Error {
	if !atomic.CompareAndSwapUint32(&s.exited, 0, 1) {
		protocolViolationFn(errExitTwice)
		return errExitTwice
	}

	if status := callServiceFn(s.bootServicesBase+bootSvcExitBootServices, s.imageHandle, mapKey); status != StatusSuccess {
		return ErrExitFailed
	}

	return nil
}
