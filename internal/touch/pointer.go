// Package touch drives a two-slot synthetic multi-touch surface.
package touch

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"syscall"
)

// NumSlots is the number of independent contacts the surface tracks.
const NumSlots = 2

// Default contact shape, matching what touch panels usually report.
const (
	DefaultOrientation = 90
	DefaultPressure    = 32000
)

// Flags describe the state a pointer record reports.
type Flags uint32

const (
	FlagNew       Flags = 0x00000001
	FlagInRange   Flags = 0x00000002
	FlagInContact Flags = 0x00000004
	FlagDown      Flags = 0x00010000
	FlagUpdate    Flags = 0x00020000
	FlagUp        Flags = 0x00040000
)

// Common flag combinations.
const (
	flagsDown   = FlagDown | FlagInRange | FlagInContact
	flagsUpdate = FlagUpdate | FlagInRange | FlagInContact
	flagsUp     = FlagUp
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagNew, "new"},
	{FlagInRange, "inrange"},
	{FlagInContact, "incontact"},
	{FlagDown, "down"},
	{FlagUpdate, "update"},
	{FlagUp, "up"},
}

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool {
	return f&x == x
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// PointerInfo is one injected contact record.
type PointerInfo struct {
	PointerID   int
	Flags       Flags
	Location    image.Point
	Contact     image.Rectangle
	Orientation uint32
	Pressure    uint32
}

// Injector is the platform injection API.
type Injector interface {
	// Initialize prepares the platform for up to maxContacts simultaneous contacts.
	Initialize(maxContacts int) error

	// Inject sends a single pointer record.
	Inject(info PointerInfo) error

	// Close tears the platform side down.
	Close() error
}

// ErrNotInitialized is returned for calls made before a successful Initialize.
var ErrNotInitialized = errors.New("touch injection not initialized")

// ErrInvalidSlot is returned for slot numbers outside [0, NumSlots).
var ErrInvalidSlot = errors.New("invalid touch slot")

// InjectError wraps a platform rejection together with its error code.
type InjectError struct {
	Op   string
	Slot int
	Code int
	Err  error
}

func (e *InjectError) Error() string {
	return fmt.Sprintf("touch %s on slot %d failed (code %d): %v", e.Op, e.Slot, e.Code, e.Err)
}

func (e *InjectError) Unwrap() error {
	return e.Err
}

// errorCode extracts the platform errno from err, or -1.
func errorCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}

func contactRect(p image.Point, radius int) image.Rectangle {
	return image.Rect(p.X-radius, p.Y-radius, p.X+radius, p.Y+radius)
}
