// Package config loads the tunables for the hand-to-input pipeline.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Input modes. Only one drives OS input per session.
const (
	ModeTouch   = "touch"
	ModePointer = "pointer"
)

// Touch backends.
const (
	BackendUInput = "uinput"
	BackendDryRun = "dryrun"
)

type Config struct {
	Mode     string         `yaml:"mode"`
	Screen   ScreenConfig   `yaml:"screen"`
	Camera   CameraConfig   `yaml:"camera"`
	Detector DetectorConfig `yaml:"detector"`
	Hand     HandConfig     `yaml:"hand"`
	Gesture  GestureConfig  `yaml:"gesture"`
	Touch    TouchConfig    `yaml:"touch"`
	Pointer  PointerConfig  `yaml:"pointer"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Store    StoreConfig    `yaml:"store"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

type ScreenConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type CameraConfig struct {
	DeviceID        int     `yaml:"device_id"`
	FPS             int     `yaml:"fps"`
	MotionGate      bool    `yaml:"motion_gate"`
	MotionThreshold float64 `yaml:"motion_threshold"`
}

type DetectorConfig struct {
	MaxHands        int     `yaml:"max_hands"`
	MinConfidence   float64 `yaml:"min_confidence"`
	MinTrackingConf float64 `yaml:"min_tracking_confidence"`
	Script          string  `yaml:"script,omitempty"`
}

// HandConfig controls how raw landmarks become observations.
type HandConfig struct {
	ClosureThreshold float64 `yaml:"closure_threshold"`
	MarginScale      float64 `yaml:"margin_scale"`
	MarginOffset     float64 `yaml:"margin_offset"`
	Mirror           bool    `yaml:"mirror"`
}

type GestureConfig struct {
	DebounceMs           int `yaml:"debounce_ms"`
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	RecoveryDelayMs      int `yaml:"recovery_delay_ms"`
}

type TouchConfig struct {
	Backend        string `yaml:"backend"`
	DevicePath     string `yaml:"device_path"`
	HoldIntervalMs int    `yaml:"hold_interval_ms"`
	ContactRadius  int    `yaml:"contact_radius"`
}

type PointerConfig struct {
	UpdateIntervalMs int    `yaml:"update_interval_ms"`
	Hand             string `yaml:"hand,omitempty"`
}

type PipelineConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms"`
}

type StoreConfig struct {
	Path string `yaml:"path,omitempty"`
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Mode:   ModeTouch,
		Screen: ScreenConfig{Width: 1920, Height: 1080},
		Camera: CameraConfig{
			DeviceID:        0,
			FPS:             30,
			MotionGate:      false,
			MotionThreshold: 1.0,
		},
		Detector: DetectorConfig{
			MaxHands:        2,
			MinConfidence:   0.5,
			MinTrackingConf: 0.5,
		},
		Hand: HandConfig{
			ClosureThreshold: 0.2,
			MarginScale:      1.2,
			MarginOffset:     -0.1,
			Mirror:           true,
		},
		Gesture: GestureConfig{
			DebounceMs:           100,
			MaxConsecutiveErrors: 5,
			RecoveryDelayMs:      1000,
		},
		Touch: TouchConfig{
			Backend:        BackendUInput,
			DevicePath:     "/dev/uinput",
			HoldIntervalMs: 250,
			ContactRadius:  5,
		},
		Pointer: PointerConfig{
			UpdateIntervalMs: 8,
		},
		Pipeline: PipelineConfig{
			PollIntervalMs: 15,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads path and overlays it on Default, so absent keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Mode != ModeTouch && c.Mode != ModePointer {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeTouch, ModePointer, c.Mode)
	}
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return fmt.Errorf("screen size must be positive, got %dx%d", c.Screen.Width, c.Screen.Height)
	}
	if c.Hand.ClosureThreshold <= 0 {
		return fmt.Errorf("hand.closure_threshold must be positive")
	}
	if c.Hand.MarginScale <= 0 {
		return fmt.Errorf("hand.margin_scale must be positive")
	}
	if c.Gesture.DebounceMs < 0 {
		return fmt.Errorf("gesture.debounce_ms must not be negative")
	}
	if c.Gesture.MaxConsecutiveErrors < 1 {
		return fmt.Errorf("gesture.max_consecutive_errors must be at least 1")
	}
	if c.Gesture.RecoveryDelayMs < 0 {
		return fmt.Errorf("gesture.recovery_delay_ms must not be negative")
	}
	if c.Touch.Backend != BackendUInput && c.Touch.Backend != BackendDryRun {
		return fmt.Errorf("touch.backend must be %q or %q, got %q", BackendUInput, BackendDryRun, c.Touch.Backend)
	}
	if c.Touch.HoldIntervalMs <= 0 {
		return fmt.Errorf("touch.hold_interval_ms must be positive")
	}
	if c.Touch.ContactRadius < 0 {
		return fmt.Errorf("touch.contact_radius must not be negative")
	}
	if c.Pointer.UpdateIntervalMs < 0 {
		return fmt.Errorf("pointer.update_interval_ms must not be negative")
	}
	switch c.Pointer.Hand {
	case "", "Left", "Right":
	default:
		return fmt.Errorf("pointer.hand must be Left or Right, got %q", c.Pointer.Hand)
	}
	if c.Pipeline.PollIntervalMs <= 0 {
		return fmt.Errorf("pipeline.poll_interval_ms must be positive")
	}
	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > 2 {
		return fmt.Errorf("detector.max_hands must be 1 or 2, got %d", c.Detector.MaxHands)
	}
	return nil
}

func (g GestureConfig) Debounce() time.Duration {
	return time.Duration(g.DebounceMs) * time.Millisecond
}

func (g GestureConfig) RecoveryDelay() time.Duration {
	return time.Duration(g.RecoveryDelayMs) * time.Millisecond
}

func (t TouchConfig) HoldInterval() time.Duration {
	return time.Duration(t.HoldIntervalMs) * time.Millisecond
}

func (p PointerConfig) UpdateInterval() time.Duration {
	return time.Duration(p.UpdateIntervalMs) * time.Millisecond
}

func (p PipelineConfig) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalMs) * time.Millisecond
}
