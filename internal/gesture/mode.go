// Package gesture turns per-frame hand observations into touch contacts.
package gesture

import (
	"fmt"

	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/touch"
)

// Kind is the gesture mode without its hand.
type Kind int

const (
	Idle Kind = iota
	Grab
	Zoom
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "Idle"
	case Grab:
		return "Grab"
	case Zoom:
		return "Zoom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Mode is the current gesture mode. Hand is set only for Grab.
type Mode struct {
	Kind Kind
	Hand hand.ID
}

// IdleMode is the zero Mode.
var IdleMode = Mode{Kind: Idle}

// GrabMode returns Grab(id).
func GrabMode(id hand.ID) Mode {
	return Mode{Kind: Grab, Hand: id}
}

// ZoomMode returns Zoom.
func ZoomMode() Mode {
	return Mode{Kind: Zoom}
}

func (m Mode) String() string {
	if m.Kind == Grab {
		return fmt.Sprintf("Grab(%s)", m.Hand)
	}
	return m.Kind.String()
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Slots returns the touch slots the mode holds pressed.
func (m Mode) Slots() []int {
	switch m.Kind {
	case Grab:
		return []int{m.Hand.Slot()}
	case Zoom:
		return []int{hand.Left.Slot(), hand.Right.Slot()}
	}
	return nil
}

// modeFromSlots derives the mode from which slots are pressed.
func modeFromSlots(pressed [touch.NumSlots]bool) Mode {
	left, right := pressed[hand.Left.Slot()], pressed[hand.Right.Slot()]
	switch {
	case left && right:
		return ZoomMode()
	case left:
		return GrabMode(hand.Left)
	case right:
		return GrabMode(hand.Right)
	}
	return IdleMode
}
