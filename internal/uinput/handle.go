// Package uinput drives the Linux virtual-input driver: capability
// registration, device creation and destruction, and event injection.
package uinput

import (
	"errors"
	"fmt"
	"os"

	"github.com/PhaethonH/scxrelay/internal/evdev"
	"golang.org/x/sys/unix"
)

// ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiSetAbsBit  = 0x40045567
)

var (
	// ErrAlreadyCreated reports a second create or a capability
	// registration issued after the device exists; the driver rejects
	// both.
	ErrAlreadyCreated = errors.New("virtual device already created")
	// ErrNotCreated reports a destroy without a preceding create.
	ErrNotCreated = errors.New("virtual device not created")
)

// Handle is an open uinput control descriptor. At most one virtual
// device exists per handle; Create and Destroy must pair exactly once
// per connect cycle.
type Handle struct {
	f       *os.File
	created bool
}

// Open opens the uinput control node, conventionally /dev/uinput.
func Open(path string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open uinput device: %w", err)
	}
	return &Handle{f: f}, nil
}

// FromFile wraps an already-open uinput descriptor, typically one
// inherited from a supervising process.
func FromFile(f *os.File) *Handle {
	return &Handle{f: f}
}

// RegisterEventType declares one supported event category. All
// registrations must precede Create.
func (h *Handle) RegisterEventType(code int) error {
	return h.register(uiSetEvBit, code)
}

// RegisterKey declares one supported key or button code.
func (h *Handle) RegisterKey(code int) error {
	return h.register(uiSetKeyBit, code)
}

// RegisterAbs declares one supported absolute axis code.
func (h *Handle) RegisterAbs(code int) error {
	return h.register(uiSetAbsBit, code)
}

func (h *Handle) register(request uintptr, code int) error {
	if h.created {
		return ErrAlreadyCreated
	}
	if err := h.ioctl(request, uintptr(code)); err != nil {
		return fmt.Errorf("failed to register code %#x: %w", code, err)
	}
	return nil
}

// Create submits the descriptor and instantiates the virtual device.
func (h *Handle) Create(desc *Descriptor) error {
	if h.created {
		return ErrAlreadyCreated
	}
	buf, err := desc.encode()
	if err != nil {
		return err
	}
	if _, err := h.f.Write(buf); err != nil {
		return fmt.Errorf("failed to submit device descriptor: %w", err)
	}
	if err := h.ioctl(uiDevCreate, 0); err != nil {
		return fmt.Errorf("failed to create virtual device: %w", err)
	}
	h.created = true
	return nil
}

// Destroy removes the virtual device. Destroying a device that was
// never created reports ErrNotCreated and performs no I/O.
func (h *Handle) Destroy() error {
	if !h.created {
		return ErrNotCreated
	}
	h.created = false
	if err := h.ioctl(uiDevDestroy, 0); err != nil {
		return fmt.Errorf("failed to destroy virtual device: %w", err)
	}
	return nil
}

// WriteEvent delivers one event record to consumers of the virtual
// device.
func (h *Handle) WriteEvent(ev evdev.Event) error {
	if _, err := h.f.Write(ev.Encode()); err != nil {
		return fmt.Errorf("failed to write to virtual device: %w", err)
	}
	return nil
}

func (h *Handle) Created() bool {
	return h.created
}

func (h *Handle) Close() error {
	return h.f.Close()
}

func (h *Handle) ioctl(request, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, h.f.Fd(), request, arg)
	if errno != 0 {
		return errno
	}
	return nil
}
