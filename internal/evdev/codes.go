package evdev

// Event type codes from linux/input-event-codes.h.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
	EvMsc = 0x04
	EvSw  = 0x05
	EvLed = 0x11
	EvSnd = 0x12
	EvRep = 0x14
	EvFf  = 0x15

	EvMax   = 0x1f
	EvCount = EvMax + 1
)

const (
	KeyMax   = 0x2ff
	KeyCount = KeyMax + 1

	AbsMax   = 0x3f
	AbsCount = AbsMax + 1
)

// BtnMode is the gamepad system/home button (the Steam or Xbox guide
// button), the one code the relay can be configured to drop.
const BtnMode = 0x13c

// Bus types from linux/input.h.
const (
	BusUSB     = 0x03
	BusVirtual = 0x06
)
