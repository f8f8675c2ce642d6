package touch

import (
	"fmt"
	"syscall"

	"github.com/ayusman/mudra/internal/uinput"
)

const touchProductID = 0x0701

// emitter is the part of *uinput.Device the injector writes to.
type emitter interface {
	Emit(events ...uinput.Event) error
	Close() error
}

// UInputInjector injects contacts through a virtual multi-touch screen using
// the slot-based protocol. Calls must be serialized; Channel does that.
type UInputInjector struct {
	path   string
	width  int
	height int

	dev     emitter
	nextID  int32
	// tracked mirrors the tracking ids the device has accepted, -1 when idle.
	tracked [NumSlots]int32
}

// NewUInputInjector returns an injector for a width×height screen. The
// device is created by Initialize.
func NewUInputInjector(path string, width, height int) *UInputInjector {
	inj := &UInputInjector{path: path, width: width, height: height}
	for i := range inj.tracked {
		inj.tracked[i] = -1
	}
	return inj
}

func (u *UInputInjector) caps(maxContacts int) uinput.Capabilities {
	return uinput.Capabilities{
		Name:      "mudra virtual touchscreen",
		ProductID: touchProductID,
		Keys:      []uint16{uinput.BtnTouch, uinput.BtnToolFinger, uinput.BtnToolDoubleTap},
		Abs: []uinput.AbsAxis{
			{Code: uinput.AbsX, Max: int32(u.width - 1)},
			{Code: uinput.AbsY, Max: int32(u.height - 1)},
			{Code: uinput.AbsMTSlot, Max: int32(maxContacts - 1)},
			{Code: uinput.AbsMTTracking, Max: 65535},
			{Code: uinput.AbsMTPositionX, Max: int32(u.width - 1)},
			{Code: uinput.AbsMTPositionY, Max: int32(u.height - 1)},
			{Code: uinput.AbsMTTouchMaj, Max: 255},
			{Code: uinput.AbsMTOrient, Max: 359},
			{Code: uinput.AbsMTPressure, Max: 65535},
		},
		Props: []uint16{uinput.PropDirect},
	}
}

// Initialize creates the virtual device.
func (u *UInputInjector) Initialize(maxContacts int) error {
	if maxContacts < 1 || maxContacts > NumSlots {
		return fmt.Errorf("touch surface supports 1..%d contacts, got %d: %w", NumSlots, maxContacts, syscall.EINVAL)
	}
	if u.dev != nil {
		return nil
	}

	dev, err := uinput.Create(u.path, u.caps(maxContacts))
	if err != nil {
		return err
	}
	u.dev = dev
	return nil
}

// Inject translates info into a batch of slot events.
func (u *UInputInjector) Inject(info PointerInfo) error {
	if u.dev == nil {
		return ErrNotInitialized
	}
	slot := info.PointerID
	if !validSlot(slot) {
		return fmt.Errorf("pointer %d: %w", slot, syscall.EINVAL)
	}

	tracked := u.tracked
	nextID := u.nextID
	events := []uinput.Event{abs(uinput.AbsMTSlot, int32(slot))}

	switch {
	case info.Flags.Has(FlagDown):
		if tracked[slot] >= 0 {
			// Re-pressing an active slot keeps its tracking id.
			break
		}
		tracked[slot] = nextID
		nextID = (nextID + 1) & 0xffff
		events = append(events, abs(uinput.AbsMTTracking, tracked[slot]))

	case info.Flags.Has(FlagUpdate), info.Flags.Has(FlagUp):
		if tracked[slot] < 0 {
			// Forced releases of idle slots have nothing to lift.
			return nil
		}
		if info.Flags.Has(FlagUpdate) {
			break
		}
		tracked[slot] = -1
		events = append(events, abs(uinput.AbsMTTracking, -1))
		events = append(events, buttons(tracked)...)
		events = append(events, uinput.Syn())
		return u.emit(events, tracked, nextID)

	default:
		return fmt.Errorf("flags %s: %w", info.Flags, syscall.EINVAL)
	}

	events = append(events,
		abs(uinput.AbsMTPositionX, int32(info.Location.X)),
		abs(uinput.AbsMTPositionY, int32(info.Location.Y)),
		abs(uinput.AbsMTTouchMaj, int32(info.Contact.Dx())),
		abs(uinput.AbsMTOrient, int32(info.Orientation)),
		abs(uinput.AbsMTPressure, int32(info.Pressure)),
		abs(uinput.AbsX, int32(info.Location.X)),
		abs(uinput.AbsY, int32(info.Location.Y)),
	)
	events = append(events, buttons(tracked)...)
	events = append(events, uinput.Syn())
	return u.emit(events, tracked, nextID)
}

// emit writes events and commits the slot table only once the device took
// them. A failed lift leaves the slot tracked, so the next press reuses the
// id the device still holds.
func (u *UInputInjector) emit(events []uinput.Event, tracked [NumSlots]int32, nextID int32) error {
	if err := u.dev.Emit(events...); err != nil {
		return err
	}
	u.tracked = tracked
	u.nextID = nextID
	return nil
}

// buttons reports BTN_TOUCH and the finger-count tool bits for tracked.
func buttons(tracked [NumSlots]int32) []uinput.Event {
	active := 0
	for _, id := range tracked {
		if id >= 0 {
			active++
		}
	}
	return []uinput.Event{
		key(uinput.BtnTouch, active > 0),
		key(uinput.BtnToolFinger, active == 1),
		key(uinput.BtnToolDoubleTap, active == 2),
	}
}

// Close destroys the device.
func (u *UInputInjector) Close() error {
	if u.dev == nil {
		return nil
	}
	err := u.dev.Close()
	u.dev = nil
	for i := range u.tracked {
		u.tracked[i] = -1
	}
	return err
}

func abs(code uint16, v int32) uinput.Event {
	return uinput.Event{Type: uinput.EvAbs, Code: code, Value: v}
}

func key(code uint16, down bool) uinput.Event {
	e := uinput.Event{Type: uinput.EvKey, Code: code}
	if down {
		e.Value = 1
	}
	return e
}
