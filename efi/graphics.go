package efi

import (
	"unsafe"

	"gopherboot/bootinfo"
)

// Graphics output protocol GUID (9042a9de-23dc-4a38-96fb-7aded080516a) in its
// in-memory byte order.
var gopGUID = [16]byte{
	0xde, 0xa9, 0x42, 0x90, 0xdc, 0x23, 0x38, 0x4a,
	0x96, 0xfb, 0x7a, 0xde, 0xd0, 0x80, 0x51, 0x6a,
}

// Graphics output pixel formats reported by firmware.
const (
	gopPixelRGBX8 uint32 = iota
	gopPixelBGRX8
	gopPixelBitMask
	gopPixelBltOnly
)

// gopModeInfo mirrors EFI_GRAPHICS_OUTPUT_MODE_INFORMATION.
type gopModeInfo struct {
	Version          uint32
	HorizontalRes    uint32
	VerticalRes      uint32
	PixelFormat      uint32
	PixelInformation [4]uint32
	PixelsPerScan    uint32
}

// gopMode mirrors EFI_GRAPHICS_OUTPUT_PROTOCOL_MODE.
type gopMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            uintptr
	SizeOfInfo      uintptr
	FrameBufferBase uint64
	FrameBufferSize uint64
}

// gop mirrors EFI_GRAPHICS_OUTPUT_PROTOCOL.
type gop struct {
	QueryMode uintptr
	SetMode   uintptr
	Blt       uintptr
	Mode      uintptr
}

// GraphicsInfo queries the firmware graphics output protocol and fills fb
// with the active framebuffer description. Framebuffer absence is not a
// boot-fatal condition: when no graphics protocol is present, or the active
// mode has no linear framebuffer, fb records a null capability and
// GraphicsInfo still succeeds.
func (s *Services) GraphicsInfo(fb *bootinfo.Framebuffer) {
	*fb = bootinfo.Framebuffer{}

	var ifaceAddr uintptr
	status := s.call(bootSvcLocateProtocol, ptrval(&gopGUID[0]), 0, ptrval(&ifaceAddr))
	if status != StatusSuccess || ifaceAddr == 0 {
		return
	}

	proto := (*gop)(unsafe.Pointer(ifaceAddr))
	if proto.Mode == 0 {
		return
	}

	mode := (*gopMode)(unsafe.Pointer(proto.Mode))
	if mode.Info == 0 || mode.FrameBufferBase == 0 {
		return
	}

	info := (*gopModeInfo)(unsafe.Pointer(mode.Info))

	var format bootinfo.PixelFormat
	switch info.PixelFormat {
	case gopPixelRGBX8:
		format = bootinfo.PixelFormatRGBX8
	case gopPixelBGRX8:
		format = bootinfo.PixelFormatBGRX8
	default:
		// Bit-mask and blt-only modes have no linear layout the kernel
		// can draw to.
		return
	}

	fb.PhysAddr = mode.FrameBufferBase
	fb.Pitch = info.PixelsPerScan * 4
	fb.Width = info.HorizontalRes
	fb.Height = info.VerticalRes
	fb.Format = format
}
