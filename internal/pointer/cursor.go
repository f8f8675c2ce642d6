// Package pointer drives an absolute mouse cursor from one hand.
package pointer

import (
	"image"
	"sync"

	"github.com/ayusman/mudra/internal/uinput"
)

// Cursor is the platform mouse API.
type Cursor interface {
	MoveTo(x, y int) error
	ButtonDown() error
	ButtonUp() error
	Close() error
}

const cursorProductID = 0x0702

// UInputCursor is a virtual absolute pointer with a left button.
type UInputCursor struct {
	dev *uinput.Device
}

// NewUInputCursor creates the virtual pointer for a width×height screen.
func NewUInputCursor(path string, width, height int) (*UInputCursor, error) {
	dev, err := uinput.Create(path, uinput.Capabilities{
		Name:      "mudra virtual pointer",
		ProductID: cursorProductID,
		Keys:      []uint16{uinput.BtnLeft},
		Abs: []uinput.AbsAxis{
			{Code: uinput.AbsX, Max: int32(width - 1)},
			{Code: uinput.AbsY, Max: int32(height - 1)},
		},
		Props: []uint16{uinput.PropPointer},
	})
	if err != nil {
		return nil, err
	}
	return &UInputCursor{dev: dev}, nil
}

func (c *UInputCursor) MoveTo(x, y int) error {
	return c.dev.Emit(
		uinput.Event{Type: uinput.EvAbs, Code: uinput.AbsX, Value: int32(x)},
		uinput.Event{Type: uinput.EvAbs, Code: uinput.AbsY, Value: int32(y)},
		uinput.Syn(),
	)
}

func (c *UInputCursor) ButtonDown() error {
	return c.dev.Emit(uinput.Event{Type: uinput.EvKey, Code: uinput.BtnLeft, Value: 1}, uinput.Syn())
}

func (c *UInputCursor) ButtonUp() error {
	return c.dev.Emit(uinput.Event{Type: uinput.EvKey, Code: uinput.BtnLeft, Value: 0}, uinput.Syn())
}

func (c *UInputCursor) Close() error {
	return c.dev.Close()
}

// Event is one recorded cursor call.
type Event struct {
	Op    string
	Point image.Point
}

// RecordingCursor records calls instead of moving the real pointer.
type RecordingCursor struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

// NewRecordingCursor returns an empty recorder.
func NewRecordingCursor() *RecordingCursor {
	return &RecordingCursor{}
}

// SetError makes every later call fail with err. nil clears it.
func (r *RecordingCursor) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *RecordingCursor) record(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *RecordingCursor) MoveTo(x, y int) error {
	return r.record(Event{Op: "move", Point: image.Pt(x, y)})
}

func (r *RecordingCursor) ButtonDown() error {
	return r.record(Event{Op: "down"})
}

func (r *RecordingCursor) ButtonUp() error {
	return r.record(Event{Op: "up"})
}

func (r *RecordingCursor) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded calls.
func (r *RecordingCursor) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Closed reports whether Close was called.
func (r *RecordingCursor) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
