package efi

import (
	"reflect"
	"unsafe"

	"gopherboot/kernel"
)

var (
	// ErrImageNotFound indicates that the kernel image is absent from the
	// boot volume.
	ErrImageNotFound = &kernel.Error{Module: "efi", Message: "kernel image not found on boot volume"}

	// ErrImageLoadError indicates that the kernel image could not be read
	// into memory or relocated.
	ErrImageLoadError = &kernel.Error{Module: "efi", Message: "kernel image could not be loaded"}
)

// LoadImage asks firmware to read the named file from the boot volume into
// memory, returning the physical base and size of the loaded image.
func (s *Services) LoadImage(path string) (base, size uintptr, err *kernel.Error) {
	pathHdr := (*reflect.StringHeader)(unsafe.Pointer(&path))

	status := s.call(bootSvcLoadImage,
		s.imageHandle,
		pathHdr.Data,
		uintptr(pathHdr.Len),
		ptrval(&base),
		ptrval(&size),
	)

	switch {
	case status == StatusNotFound:
		return 0, 0, ErrImageNotFound
	case status != StatusSuccess:
		return 0, 0, ErrImageLoadError
	case size == 0:
		return 0, 0, ErrImageLoadError
	}

	return base, size, nil
}
