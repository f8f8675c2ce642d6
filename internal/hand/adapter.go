package hand

import (
	"image"
	"math"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

// DefaultClosureThreshold is the wrist-to-fingertip distance, in normalized
// model units, below which a finger counts as curled.
const DefaultClosureThreshold = 0.2

// closureTips are the fingertips that must all be curled for a closed hand.
var closureTips = [...]int{landmark.IndexTip, landmark.MiddleTip, landmark.PinkyTip}

// Margin stretches the normalized frame so the screen edges can be reached
// without the hand leaving the camera view.
type Margin struct {
	Scale  float64
	Offset float64
}

// DefaultMargin maps [0.083, 0.917] of the frame onto the full screen.
func DefaultMargin() Margin {
	return Margin{Scale: 1.2, Offset: -0.1}
}

// Config holds adapter settings.
type Config struct {
	Width            int
	Height           int
	ClosureThreshold float64
	Margin           Margin
	// Mirror flips x so moving the hand right moves the point right on a
	// user-facing camera.
	Mirror bool
}

// DefaultConfig returns a config for a 1920x1080 screen.
func DefaultConfig() Config {
	return Config{
		Width:            1920,
		Height:           1080,
		ClosureThreshold: DefaultClosureThreshold,
		Margin:           DefaultMargin(),
		Mirror:           true,
	}
}

// Adapter converts detector output into observations.
type Adapter struct {
	cfg Config
}

// NewAdapter creates an adapter. A non-positive threshold takes the default.
func NewAdapter(cfg Config) *Adapter {
	if cfg.ClosureThreshold <= 0 {
		cfg.ClosureThreshold = DefaultClosureThreshold
	}
	if cfg.Margin.Scale == 0 {
		cfg.Margin = DefaultMargin()
	}
	return &Adapter{cfg: cfg}
}

// Config returns the adapter settings.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Adapt returns at most one observation per hand. The first hand reported
// for a label wins and unknown labels are dropped.
func (a *Adapter) Adapt(hands []landmark.Hand, at time.Time) []Observation {
	out := make([]Observation, 0, 2)
	seen := map[ID]bool{}

	for _, h := range hands {
		id := ID(h.Handedness)
		if !id.Valid() || seen[id] {
			continue
		}
		seen[id] = true

		out = append(out, Observation{
			ID:        id,
			Point:     a.ScreenPoint(h.Points[landmark.Wrist]),
			Closed:    IsClosed(h, a.cfg.ClosureThreshold),
			Timestamp: at,
		})
	}
	return out
}

// ScreenPoint maps a normalized landmark to clamped screen pixels.
func (a *Adapter) ScreenPoint(p landmark.Point3D) image.Point {
	x := p.X
	if a.cfg.Mirror {
		x = 1 - x
	}
	m := a.cfg.Margin
	return image.Pt(
		clamp(int(math.Round((x*m.Scale+m.Offset)*float64(a.cfg.Width))), a.cfg.Width),
		clamp(int(math.Round((p.Y*m.Scale+m.Offset)*float64(a.cfg.Height))), a.cfg.Height),
	)
}

// IsClosed reports whether the index, middle and pinky tips are all strictly
// closer to the wrist than threshold.
func IsClosed(h landmark.Hand, threshold float64) bool {
	for _, tip := range closureTips {
		if !(h.Distance(landmark.Wrist, tip) < threshold) {
			return false
		}
	}
	return true
}

func clamp(v, dim int) int {
	if v < 0 {
		return 0
	}
	if dim > 0 && v > dim-1 {
		return dim - 1
	}
	return v
}
