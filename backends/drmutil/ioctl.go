//go:build linux

// Package drmutil issues the DRM ioctls shared by kernel backed backends: dumb buffers, GEM handle
// release and PRIME file descriptor import and export.
package drmutil

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

const (
	ioctlType = 'd'

	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	// CommandBase is the first ioctl number available to driver specific commands
	CommandBase = 0x40
)

func ioc(dir, nr, size uintptr) uintptr {
	return (dir << iocDirShift) | (size << iocSizeShift) | (ioctlType << iocTypeShift) | (nr << iocNRShift)
}

// IOW builds the request code of a DRM ioctl that only passes data to the kernel
func IOW(nr, size uintptr) uintptr {
	return ioc(iocWrite, nr, size)
}

// IOWR builds the request code of a DRM ioctl that passes data both ways
func IOWR(nr, size uintptr) uintptr {
	return ioc(iocRead|iocWrite, nr, size)
}

type GemClose struct {
	Handle uint32
	Pad    uint32
}

type PrimeHandle struct {
	Handle uint32
	Flags  uint32
	FD     int32
}

type ModeCreateDumb struct {
	Height uint32
	Width  uint32
	Bpp    uint32
	Flags  uint32
	Handle uint32
	Pitch  uint32
	Size   uint64
}

type ModeMapDumb struct {
	Handle uint32
	Pad    uint32
	Offset uint64
}

type ModeDestroyDumb struct {
	Handle uint32
}

var (
	IoctlGemClose        = IOW(0x09, unsafe.Sizeof(GemClose{}))
	IoctlPrimeHandleToFD = IOWR(0x2d, unsafe.Sizeof(PrimeHandle{}))
	IoctlPrimeFDToHandle = IOWR(0x2e, unsafe.Sizeof(PrimeHandle{}))
	IoctlModeCreateDumb  = IOWR(0xb2, unsafe.Sizeof(ModeCreateDumb{}))
	IoctlModeMapDumb     = IOWR(0xb3, unsafe.Sizeof(ModeMapDumb{}))
	IoctlModeDestroyDumb = IOWR(0xb4, unsafe.Sizeof(ModeDestroyDumb{}))
)

const (
	// PrimeFlags are the flags passed when exporting a handle: the new descriptor is
	// close-on-exec and mappable for writing
	PrimeFlags = unix.O_CLOEXEC | unix.O_RDWR
)

// Ioctl issues a DRM ioctl, restarting it when it is interrupted
func Ioctl(fd int, request uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(arg))
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

// DumbCreate asks the kernel for a dumb buffer. The returned struct carries the handle, pitch
// and size the kernel chose.
func DumbCreate(fd int, width, height, bpp uint32) (ModeCreateDumb, error) {
	create := ModeCreateDumb{
		Width:  width,
		Height: height,
		Bpp:    bpp,
	}

	err := Ioctl(fd, IoctlModeCreateDumb, unsafe.Pointer(&create))
	if err != nil {
		return ModeCreateDumb{}, errors.Wrapf(err, "DRM_IOCTL_MODE_CREATE_DUMB failed (%dx%d at %d bpp)", width, height, bpp)
	}
	return create, nil
}

// DumbMapOffset returns the fake offset to mmap a dumb buffer at
func DumbMapOffset(fd int, handle uint32) (uint64, error) {
	mapDumb := ModeMapDumb{Handle: handle}

	err := Ioctl(fd, IoctlModeMapDumb, unsafe.Pointer(&mapDumb))
	if err != nil {
		return 0, errors.Wrapf(err, "DRM_IOCTL_MODE_MAP_DUMB failed (handle=%d)", handle)
	}
	return mapDumb.Offset, nil
}

func DumbDestroy(fd int, handle uint32) error {
	destroy := ModeDestroyDumb{Handle: handle}

	err := Ioctl(fd, IoctlModeDestroyDumb, unsafe.Pointer(&destroy))
	if err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_MODE_DESTROY_DUMB failed (handle=%d)", handle)
	}
	return nil
}

func GemCloseHandle(fd int, handle uint32) error {
	gemClose := GemClose{Handle: handle}

	err := Ioctl(fd, IoctlGemClose, unsafe.Pointer(&gemClose))
	if err != nil {
		return errors.Wrapf(err, "DRM_IOCTL_GEM_CLOSE failed (handle=%d)", handle)
	}
	return nil
}

// PrimeFDToHandle converts a dma-buf file descriptor into a GEM handle. Importing memory the
// device already has a handle for returns that handle.
func PrimeFDToHandle(fd int, primeFD int) (uint32, error) {
	prime := PrimeHandle{FD: int32(primeFD)}

	err := Ioctl(fd, IoctlPrimeFDToHandle, unsafe.Pointer(&prime))
	if err != nil {
		return 0, errors.Wrapf(err, "DRM_IOCTL_PRIME_FD_TO_HANDLE failed (fd=%d)", primeFD)
	}
	return prime.Handle, nil
}

// PrimeHandleToFD exports a GEM handle as a new dma-buf file descriptor
func PrimeHandleToFD(fd int, handle uint32) (int, error) {
	prime := PrimeHandle{
		Handle: handle,
		Flags:  PrimeFlags,
	}

	err := Ioctl(fd, IoctlPrimeHandleToFD, unsafe.Pointer(&prime))
	if err != nil {
		return -1, errors.Wrapf(err, "DRM_IOCTL_PRIME_HANDLE_TO_FD failed (handle=%d)", handle)
	}
	return int(prime.FD), nil
}
