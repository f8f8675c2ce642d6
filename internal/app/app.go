// Package app wires capture, detection and input injection into the running
// pipeline.
package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/landmark"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/pointer"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/touch"
)

// SettingEnabled is the settings key holding the enabled flag across runs.
const SettingEnabled = "enabled"

// historyBuffer bounds the transitions waiting to be written to the store.
const historyBuffer = 64

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("app: stopped")

// Publisher receives one snapshot per processed frame.
type Publisher interface {
	Publish(snap gesture.Snapshot)
}

// Config holds the collaborators of an App. Settings is required; nil
// collaborators fall back to test doubles where one exists.
type Config struct {
	Settings config.Config
	Store    *store.Store
	Camera   capture.Camera
	Detector detector.Detector
	// Injector backs touch mode.
	Injector touch.Injector
	// OpenCursor creates the pointer-mode cursor. It is only called when
	// pointer mode is selected or touch mode degrades.
	OpenCursor func() (pointer.Cursor, error)
	Overlay    Publisher
}

// Frame is one detector result handed from the producer to the consumer.
type Frame struct {
	Hands []landmark.Hand
	At    time.Time
}

// Status is the externally visible state of the App.
type Status struct {
	Enabled    bool   `json:"enabled"`
	Running    bool   `json:"running"`
	Mode       string `json:"mode"`
	Backend    string `json:"backend"`
	Degraded   bool   `json:"degraded"`
	Gesture    string `json:"gesture,omitempty"`
	ButtonHeld bool   `json:"button_held,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	Frames     uint64 `json:"frames"`
	Dropped    uint64 `json:"dropped"`
	Failures   int    `json:"failures"`
}

// App runs the camera producer and the injection consumer.
type App struct {
	cfg     Config
	frames  *capture.Latest[Frame]
	reloads *capture.Latest[config.Config]
	history chan store.Transition

	mu       sync.RWMutex
	settings config.Config
	enabled  bool
	running  bool
	stopped  bool
	mode     string
	degraded bool
	session  *store.Session
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// Owned by the consumer goroutine once running.
	adapter *hand.Adapter
	motion  *capture.MotionGate
	channel *touch.Channel
	machine *gesture.Machine
	pointer *pointer.Adapter

	processed atomic.Uint64
	tracking  atomic.Bool
}

// New creates a stopped App. The enabled flag is restored from the store
// when one is configured.
func New(cfg Config) *App {
	if cfg.Camera == nil {
		cfg.Camera = capture.NewCamera(capture.Options{
			DeviceID: cfg.Settings.Camera.DeviceID,
			FPS:      cfg.Settings.Camera.FPS,
		})
	}
	if cfg.Detector == nil {
		cfg.Detector = detector.NewMockDetector()
	}
	if cfg.Injector == nil {
		cfg.Injector = touch.NewRecordingInjector()
	}
	if cfg.OpenCursor == nil {
		cfg.OpenCursor = func() (pointer.Cursor, error) {
			return pointer.NewRecordingCursor(), nil
		}
	}

	a := &App{
		cfg:      cfg,
		frames:   capture.NewLatest[Frame](),
		reloads:  capture.NewLatest[config.Config](),
		history:  make(chan store.Transition, historyBuffer),
		settings: cfg.Settings,
		enabled:  true,
		mode:     cfg.Settings.Mode,
		adapter:  hand.NewAdapter(handConfig(cfg.Settings)),
		motion:   capture.NewMotionGate(cfg.Settings.Camera.MotionThreshold),
	}
	if cfg.Store != nil {
		a.enabled = cfg.Store.Settings().Bool(SettingEnabled, true)
	}
	return a
}

func handConfig(s config.Config) hand.Config {
	return hand.Config{
		Width:            s.Screen.Width,
		Height:           s.Screen.Height,
		ClosureThreshold: s.Hand.ClosureThreshold,
		Margin:           hand.Margin{Scale: s.Hand.MarginScale, Offset: s.Hand.MarginOffset},
		Mirror:           s.Hand.Mirror,
	}
}

func touchConfig(s config.Config) touch.Config {
	return touch.Config{
		HoldInterval: s.Touch.HoldInterval(),
		Radius:       s.Touch.ContactRadius,
	}
}

func gestureConfig(s config.Config) gesture.Config {
	return gesture.Config{
		Debounce:             s.Gesture.Debounce(),
		MaxConsecutiveErrors: s.Gesture.MaxConsecutiveErrors,
		RecoveryDelay:        s.Gesture.RecoveryDelay(),
	}
}

func pointerConfig(s config.Config) pointer.Config {
	return pointer.Config{
		UpdateInterval: s.Pointer.UpdateInterval(),
		Hand:           hand.ID(s.Pointer.Hand),
	}
}

// Start opens the camera, selects the input mode and starts the pipeline.
// Touch mode degrades to pointer mode when the injector cannot initialize.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	if a.running {
		return nil
	}

	if err := a.cfg.Camera.Open(); err != nil {
		return err
	}
	a.cfg.Camera.SetFPS(a.settings.Camera.FPS)

	if err := a.selectModeLocked(); err != nil {
		a.cfg.Camera.Close()
		return err
	}
	a.openSessionLocked()

	a.stopCh = make(chan struct{})
	a.running = true
	a.wg.Add(3)
	go a.produce(a.stopCh)
	go a.consume(a.stopCh)
	go a.recordHistory(a.stopCh)

	logging.Info(logging.Fields{"mode": a.mode, "degraded": a.degraded, "backend": a.backend()}, "pipeline started")
	return nil
}

func (a *App) selectModeLocked() error {
	a.mode = a.settings.Mode
	if a.mode == config.ModeTouch {
		a.channel = touch.NewChannel(a.cfg.Injector, touchConfig(a.settings))
		if a.channel.Initialize() {
			a.machine = gesture.NewMachine(a.channel, gestureConfig(a.settings))
			a.machine.OnTransition(a.queueTransition)
			if a.cfg.Overlay != nil {
				a.machine.OnSnapshot(a.cfg.Overlay.Publish)
			}
			return nil
		}
		logging.Warn(logging.Fields{"error": errString(a.channel.LastError())}, "touch injection unavailable, falling back to pointer mode")
		a.channel.Close()
		a.channel = nil
		a.degraded = true
		a.mode = config.ModePointer
	}

	cursor, err := a.cfg.OpenCursor()
	if err != nil {
		return err
	}
	a.pointer = pointer.NewAdapter(cursor, pointerConfig(a.settings))
	return nil
}

func (a *App) openSessionLocked() {
	if a.cfg.Store == nil {
		return
	}
	sess := &store.Session{Mode: a.mode, Backend: a.backend(), Degraded: a.degraded}
	if err := a.cfg.Store.Sessions().Create(sess); err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "failed to record session")
		return
	}
	a.session = sess
}

func (a *App) backend() string {
	if a.mode == config.ModePointer {
		return "cursor"
	}
	return a.settings.Touch.Backend
}

// Stop halts the pipeline, releases every contact and closes the devices.
// The App cannot be started again.
func (a *App) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	wasRunning := a.running
	a.running = false
	if wasRunning {
		close(a.stopCh)
	}
	a.mu.Unlock()

	if wasRunning {
		a.wg.Wait()
	}

	if a.machine != nil {
		a.machine.Close()
	}
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "error closing touch injector")
		}
	}
	if a.pointer != nil {
		if err := a.pointer.Close(); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "error closing cursor")
		}
	}
	if wasRunning {
		// Transitions emitted by the final Close.
		a.drainHistory()
	}
	if err := a.cfg.Camera.Close(); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "error closing camera")
	}
	a.motion.Close()
	if err := a.cfg.Detector.Close(); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "error closing detector")
	}

	a.mu.Lock()
	if a.session != nil {
		if err := a.cfg.Store.Sessions().End(a.session.ID, time.Now()); err != nil {
			logging.Error(logging.Fields{"error": err.Error(), "session": a.session.ID}, "failed to end session")
		}
	}
	a.mu.Unlock()

	logging.Info(nil, "pipeline stopped")
}

// SetEnabled pauses or resumes injection. Contacts are released by the
// consumer on its next tick.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if !changed {
		return
	}
	logging.Info(logging.Fields{"enabled": enabled}, "input injection toggled")
	if a.cfg.Store != nil {
		if err := a.cfg.Store.Settings().SetBool(SettingEnabled, enabled); err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "failed to persist enabled flag")
		}
	}
}

// IsEnabled reports whether injection is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Apply queues cfg for the consumer. The input mode and devices are fixed
// for the lifetime of the App; every other tunable takes effect on the next
// tick.
func (a *App) Apply(cfg config.Config) {
	a.reloads.Put(cfg)
}

// Status returns a snapshot of the App state.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	st := Status{
		Enabled:  a.enabled,
		Running:  a.running,
		Mode:     a.mode,
		Backend:  a.backend(),
		Degraded: a.degraded,
		Frames:   a.processed.Load(),
		Dropped:  a.frames.Dropped(),
	}
	if a.session != nil {
		st.SessionID = a.session.ID
	}
	if a.machine != nil {
		st.Gesture = a.machine.Mode().String()
		st.Failures = a.machine.Failures()
	}
	if a.pointer != nil {
		st.ButtonHeld = a.pointer.ButtonHeld()
		st.Failures = a.pointer.Failures()
	}
	return st
}

// Channel returns the touch channel, or nil outside touch mode.
func (a *App) Channel() *touch.Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.channel
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
