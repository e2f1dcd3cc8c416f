package relaysvc

import (
	"fmt"
	"time"

	"github.com/PhaethonH/scxrelay/internal/evdev"
	"github.com/PhaethonH/scxrelay/internal/uinput"
	"github.com/PhaethonH/scxrelay/pkg/bits"
)

// Source is the readable end of the relay: an event device exposing
// capability queries, per-axis calibration, and a poll/read cycle.
// *evdev.Device implements it.
type Source interface {
	EventBits() (bits.Bits, error)
	AbsBits() (bits.Bits, error)
	KeyBits() (bits.Bits, error)
	AbsInfo(code int) (evdev.AbsInfo, error)
	Wait(timeout time.Duration) (evdev.Readiness, error)
	ReadEvent() (evdev.Event, error)
	Close() error
}

// Output is the writable end: the virtual-device driver handle.
// *uinput.Handle implements it.
type Output interface {
	RegisterEventType(code int) error
	RegisterKey(code int) error
	RegisterAbs(code int) error
	Create(desc *uinput.Descriptor) error
	Destroy() error
	WriteEvent(ev evdev.Event) error
	Close() error
}

// CapabilitySet holds the three supported-code bit vectors read from
// the source at connect time. Immutable once populated.
type CapabilitySet struct {
	Events bits.Bits
	Axes   bits.Bits
	Keys   bits.Bits
}

// MirrorCapabilities queries the source's capability bit vectors and
// registers every set code on the output. It must run before the
// virtual device is created; any failure here is fatal, since a
// partially registered capability set cannot be corrected.
func MirrorCapabilities(src Source, out Output) (CapabilitySet, error) {
	var caps CapabilitySet
	var err error

	if caps.Events, err = src.EventBits(); err != nil {
		return CapabilitySet{}, err
	}
	if err := registerEach(caps.Events, out.RegisterEventType); err != nil {
		return CapabilitySet{}, fmt.Errorf("failed to mirror event categories: %w", err)
	}

	if caps.Axes, err = src.AbsBits(); err != nil {
		return CapabilitySet{}, err
	}
	if err := registerEach(caps.Axes, out.RegisterAbs); err != nil {
		return CapabilitySet{}, fmt.Errorf("failed to mirror axes: %w", err)
	}

	if caps.Keys, err = src.KeyBits(); err != nil {
		return CapabilitySet{}, err
	}
	if err := registerEach(caps.Keys, out.RegisterKey); err != nil {
		return CapabilitySet{}, fmt.Errorf("failed to mirror keys: %w", err)
	}

	return caps, nil
}

func registerEach(b bits.Bits, register func(code int) error) error {
	var err error
	b.EachSet(func(code int) bool {
		err = register(code)
		return err == nil
	})
	return err
}

// readCalibration copies the calibration of every supported axis into
// the descriptor table, in ascending code order. Entries for absent
// axes remain zero.
func readCalibration(src Source, axes bits.Bits, desc *uinput.Descriptor) error {
	var err error
	axes.EachSet(func(code int) bool {
		var info evdev.AbsInfo
		if info, err = src.AbsInfo(code); err != nil {
			return false
		}
		desc.SetCalibration(code, info)
		return true
	})
	return err
}
