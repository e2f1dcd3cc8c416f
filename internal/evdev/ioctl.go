package evdev

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding from asm-generic/ioctl.h.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocRead = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

func eviocgID() uintptr {
	return ioc(iocRead, 'E', 0x02, unsafe.Sizeof(InputID{}))
}

func eviocgName(size int) uintptr {
	return ioc(iocRead, 'E', 0x06, uintptr(size))
}

// eviocgBit returns the capability-query request for one event category;
// category 0 queries the supported categories themselves.
func eviocgBit(category, size int) uintptr {
	return ioc(iocRead, 'E', 0x20+uintptr(category), uintptr(size))
}

func eviocgAbs(code int) uintptr {
	return ioc(iocRead, 'E', 0x40+uintptr(code), unsafe.Sizeof(AbsInfo{}))
}

func ioctl(f *os.File, request uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), request, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
