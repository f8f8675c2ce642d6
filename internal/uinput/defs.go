// Package uinput creates virtual input devices through the Linux uinput module.
package uinput

import "errors"

// ErrUnsupported is returned on platforms without uinput.
var ErrUnsupported = errors.New("uinput is not supported on this platform")

// DefaultPath is the usual uinput control node.
const DefaultPath = "/dev/uinput"

const (
	maxNameSize = 80
	absCount    = 64

	uiDevCreate   = 0x5501
	uiDevDestroy  = 0x5502
	uiSetEvBit    = 0x40045564
	uiSetKeyBit   = 0x40045565
	uiSetAbsBit   = 0x40045567
	uiSetPropBit  = 0x4004556e
	busVirtual    = 0x06
	vendorID      = 0x4d55
	deviceVersion = 1
)

// Event types.
const (
	EvSyn uint16 = 0x00
	EvKey uint16 = 0x01
	EvAbs uint16 = 0x03
)

// Event codes used by the touch and pointer devices.
const (
	SynReport uint16 = 0

	BtnLeft          uint16 = 0x110
	BtnToolFinger    uint16 = 0x145
	BtnTouch         uint16 = 0x14a
	BtnToolDoubleTap uint16 = 0x14d

	AbsX           uint16 = 0x00
	AbsY           uint16 = 0x01
	AbsMTSlot      uint16 = 0x2f
	AbsMTTouchMaj  uint16 = 0x30
	AbsMTOrient    uint16 = 0x34
	AbsMTPositionX uint16 = 0x35
	AbsMTPositionY uint16 = 0x36
	AbsMTTracking  uint16 = 0x39
	AbsMTPressure  uint16 = 0x3a
)

// Input properties.
const (
	PropPointer uint16 = 0x00
	PropDirect  uint16 = 0x01
)

// Event is one input_event without its timestamp; the kernel-facing
// timestamp is filled in when the event is written.
type Event struct {
	Type  uint16
	Code  uint16
	Value int32
}

// Syn is the SYN_REPORT that terminates a batch.
func Syn() Event {
	return Event{Type: EvSyn, Code: SynReport}
}

// AbsAxis declares an absolute axis and its range.
type AbsAxis struct {
	Code uint16
	Min  int32
	Max  int32
}

// Capabilities lists the event codes and axes a virtual device reports.
type Capabilities struct {
	Name      string
	ProductID uint16
	Keys      []uint16
	Abs       []AbsAxis
	Props     []uint16
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// userDev mirrors struct uinput_user_dev.
type userDev struct {
	Name       [maxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [absCount]int32
	Absmin     [absCount]int32
	Absfuzz    [absCount]int32
	Absflat    [absCount]int32
}

func (s Capabilities) userDev() userDev {
	var dev userDev
	copy(dev.Name[:maxNameSize-1], s.Name)
	dev.ID = inputID{
		Bustype: busVirtual,
		Vendor:  vendorID,
		Product: s.ProductID,
		Version: deviceVersion,
	}
	for _, a := range s.Abs {
		if int(a.Code) >= absCount {
			continue
		}
		dev.Absmin[a.Code] = a.Min
		dev.Absmax[a.Code] = a.Max
	}
	return dev
}
