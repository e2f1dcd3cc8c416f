package evdev

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// EventSize is the wire size of struct input_event on 64-bit Linux.
const EventSize = 24

// Event mirrors struct input_event. The relay treats it as an opaque
// record and only inspects Type and Code when filtering.
type Event struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// InputID mirrors struct input_id.
type InputID struct {
	BusType uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// AbsInfo mirrors struct input_absinfo: the calibration reported by the
// source for one absolute axis.
type AbsInfo struct {
	Value      int32
	Minimum    int32
	Maximum    int32
	Fuzz       int32
	Flat       int32
	Resolution int32
}

func (e Event) Encode() []byte {
	buf := make([]byte, EventSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Time.Sec))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Time.Usec))
	binary.LittleEndian.PutUint16(buf[16:18], e.Type)
	binary.LittleEndian.PutUint16(buf[18:20], e.Code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(e.Value))
	return buf
}

func DecodeEvent(buf []byte) Event {
	var e Event
	e.Time.Sec = int64(binary.LittleEndian.Uint64(buf[0:8]))
	e.Time.Usec = int64(binary.LittleEndian.Uint64(buf[8:16]))
	e.Type = binary.LittleEndian.Uint16(buf[16:18])
	e.Code = binary.LittleEndian.Uint16(buf[18:20])
	e.Value = int32(binary.LittleEndian.Uint32(buf[20:24]))
	return e
}
