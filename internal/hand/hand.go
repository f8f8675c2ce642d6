// Package hand maps detector landmarks to per-hand screen observations.
package hand

import (
	"image"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

// ID identifies a hand by the handedness the model reports.
type ID string

const (
	Left  ID = landmark.Left
	Right ID = landmark.Right
)

// Other returns the opposite hand.
func (id ID) Other() ID {
	if id == Left {
		return Right
	}
	return Left
}

// Slot returns the touch slot a hand always drives: Left 0, Right 1.
func (id ID) Slot() int {
	if id == Right {
		return 1
	}
	return 0
}

// Valid reports whether id is Left or Right.
func (id ID) Valid() bool {
	return id == Left || id == Right
}

// Observation is one hand seen in one frame.
type Observation struct {
	ID        ID          `json:"id"`
	Point     image.Point `json:"point"`
	Closed    bool        `json:"closed"`
	Timestamp time.Time   `json:"timestamp"`
}

// Find returns the observation for id, if any.
func Find(obs []Observation, id ID) (Observation, bool) {
	for _, o := range obs {
		if o.ID == id {
			return o, true
		}
	}
	return Observation{}, false
}

// Closed returns the closed observations in Left, Right order.
func Closed(obs []Observation) []Observation {
	var out []Observation
	for _, id := range []ID{Left, Right} {
		if o, ok := Find(obs, id); ok && o.Closed {
			out = append(out, o)
		}
	}
	return out
}
