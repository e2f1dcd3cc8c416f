// Package evdev provides read access to Linux event input devices: the
// capability and calibration queries needed to clone a device, and the
// poll/read cycle that drains its event stream.
package evdev

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unsafe"

	"github.com/PhaethonH/scxrelay/pkg/bits"
	"golang.org/x/sys/unix"
)

// ErrPartialRead reports a read that returned more than zero but less
// than one full event record, which the relay treats as a protocol
// violation.
var ErrPartialRead = errors.New("partial event read")

// Readiness is the outcome of one bounded wait on a device.
type Readiness int

const (
	WaitTimeout Readiness = iota
	WaitReadable
	WaitHangUp
)

// Device is an open event input device. It is owned by a single
// goroutine; none of its methods are safe for concurrent use.
type Device struct {
	f    *os.File
	path string
	name string
}

// Open opens the event device at path for reading.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open event device: %w", err)
	}
	d := &Device{f: f, path: path}
	d.readName()
	return d, nil
}

// FromFile wraps an already-open event device, typically one inherited
// as a numbered file descriptor. The device has no path, so it cannot be
// reopened after a disconnect.
func FromFile(f *os.File) *Device {
	d := &Device{f: f}
	d.readName()
	return d
}

// readName queries the human-readable device name; it may fail.
func (d *Device) readName() {
	buf := make([]byte, 256)
	if err := ioctl(d.f, eviocgName(len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return
	}
	for i, b := range buf {
		if b == 0 {
			d.name = string(buf[:i])
			return
		}
	}
	d.name = string(buf)
}

// Path returns the path the device was opened from, or "" for an
// inherited descriptor.
func (d *Device) Path() string {
	return d.path
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) ID() (InputID, error) {
	var id InputID
	if err := ioctl(d.f, eviocgID(), unsafe.Pointer(&id)); err != nil {
		return InputID{}, fmt.Errorf("failed to query device id: %w", err)
	}
	return id, nil
}

// EventBits returns the supported event category bit vector.
func (d *Device) EventBits() (bits.Bits, error) {
	return d.queryBits(0, EvCount)
}

// AbsBits returns the supported absolute axis bit vector.
func (d *Device) AbsBits() (bits.Bits, error) {
	return d.queryBits(EvAbs, AbsCount)
}

// KeyBits returns the supported key/button bit vector.
func (d *Device) KeyBits() (bits.Bits, error) {
	return d.queryBits(EvKey, KeyCount)
}

func (d *Device) queryBits(category, nbits int) (bits.Bits, error) {
	b := bits.New(nbits)
	buf := b.Bytes()
	if err := ioctl(d.f, eviocgBit(category, len(buf)), unsafe.Pointer(&buf[0])); err != nil {
		return bits.Bits{}, fmt.Errorf("failed to query capability bits for category %#x: %w", category, err)
	}
	return b, nil
}

// AbsInfo returns the calibration of one absolute axis.
func (d *Device) AbsInfo(code int) (AbsInfo, error) {
	var info AbsInfo
	if err := ioctl(d.f, eviocgAbs(code), unsafe.Pointer(&info)); err != nil {
		return AbsInfo{}, fmt.Errorf("failed to query calibration for axis %#x: %w", code, err)
	}
	return info, nil
}

// Wait blocks until the device becomes readable, reports an error
// condition, or the timeout elapses. An interrupted wait reports
// WaitTimeout so the caller re-checks its halt flag.
func (d *Device) Wait(timeout time.Duration) (Readiness, error) {
	fds := []unix.PollFd{{
		Fd:     int32(d.f.Fd()),
		Events: unix.POLLIN,
	}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return WaitTimeout, nil
		}
		return WaitTimeout, fmt.Errorf("failed to poll event device: %w", err)
	}
	if n == 0 {
		return WaitTimeout, nil
	}
	revents := fds[0].Revents
	if revents&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return WaitHangUp, nil
	}
	if revents&unix.POLLIN != 0 {
		return WaitReadable, nil
	}
	return WaitTimeout, nil
}

// ReadEvent reads exactly one event record. It returns io.EOF when the
// source has closed and ErrPartialRead on a short read.
func (d *Device) ReadEvent() (Event, error) {
	buf := make([]byte, EventSize)
	n, err := d.f.Read(buf)
	switch {
	case err == io.EOF || (n == 0 && err == nil):
		return Event{}, io.EOF
	case err != nil:
		return Event{}, fmt.Errorf("failed to read from event device: %w", err)
	case n < EventSize:
		return Event{}, fmt.Errorf("%w: %d of %d bytes", ErrPartialRead, n, EventSize)
	}
	return DecodeEvent(buf), nil
}

func (d *Device) Close() error {
	return d.f.Close()
}
