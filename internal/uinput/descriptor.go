package uinput

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/PhaethonH/scxrelay/internal/evdev"
)

const (
	// MaxNameSize bounds the device name in uinput_user_dev.
	MaxNameSize = 80
	// AbsSize is the number of per-axis calibration slots.
	AbsSize = 64
)

// Descriptor mirrors struct uinput_user_dev: the identity and axis
// calibration table submitted to the driver before device creation.
// Calibration entries for unsupported axes stay zero.
type Descriptor struct {
	Name       [MaxNameSize]byte
	ID         evdev.InputID
	EffectsMax uint32
	Absmax     [AbsSize]int32
	Absmin     [AbsSize]int32
	Absfuzz    [AbsSize]int32
	Absflat    [AbsSize]int32
}

// SetName stores a NUL-terminated display name, truncating to the
// driver's bound.
func (d *Descriptor) SetName(name string) {
	for i := range d.Name {
		d.Name[i] = 0
	}
	copy(d.Name[:MaxNameSize-1], name)
}

// SetCalibration copies one axis calibration tuple into the table.
func (d *Descriptor) SetCalibration(code int, info evdev.AbsInfo) {
	if code < 0 || code >= AbsSize {
		return
	}
	d.Absmin[code] = info.Minimum
	d.Absmax[code] = info.Maximum
	d.Absfuzz[code] = info.Fuzz
	d.Absflat[code] = info.Flat
}

func (d *Descriptor) encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, d); err != nil {
		return nil, fmt.Errorf("failed to encode device descriptor: %w", err)
	}
	return buf.Bytes(), nil
}
