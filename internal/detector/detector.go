// Package detector turns camera frames into hand landmarks.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/landmark"
)

// Detector finds hands in a frame. The pipeline calls Detect from a single
// goroutine.
type Detector interface {
	// Detect returns the hands in frame, or an empty slice when there are none.
	Detect(frame *gocv.Mat) ([]landmark.Hand, error)
	Close() error
}

// Config selects model limits and the landmark service.
type Config struct {
	// MaxHands is capped at two, one per touch contact.
	MaxHands        int
	MinConfidence   float64
	MinTrackingConf float64
	// Script is the landmark service path. Empty searches scripts/ next to
	// the working directory and the binary, then ~/.mudra/scripts.
	Script string
}

// DefaultConfig tracks two hands at 0.5 confidence.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// withDefaults replaces zero or out-of-range fields with DefaultConfig values.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxHands <= 0 || c.MaxHands > def.MaxHands {
		c.MaxHands = def.MaxHands
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		c.MinConfidence = def.MinConfidence
	}
	if c.MinTrackingConf <= 0 || c.MinTrackingConf > 1 {
		c.MinTrackingConf = def.MinTrackingConf
	}
	return c
}
