package touch

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/logging"
)

// Config holds channel tunables.
type Config struct {
	// HoldInterval is the heartbeat cadence for pressed contacts.
	HoldInterval time.Duration
	// Radius is the default half-size of the contact rectangle in pixels.
	Radius int
	// DisableHold turns the heartbeat off for plain Press calls.
	DisableHold bool
}

// DefaultConfig returns the standard 250ms heartbeat and 5px radius.
func DefaultConfig() Config {
	return Config{
		HoldInterval: 250 * time.Millisecond,
		Radius:       5,
	}
}

// PressOptions overrides the channel defaults for a single press.
type PressOptions struct {
	Radius int
	Hold   bool
}

// Contact is the externally visible state of one slot.
type Contact struct {
	InContact  bool
	Position   image.Point
	HoldActive bool
}

type slotState struct {
	contact Contact
	info    PointerInfo
	// holdExit belongs to the running heartbeat, nil when none runs.
	holdExit *atomic.Bool
}

// Channel owns the injector and the per-slot contact table. All slot state
// is guarded by mu; heartbeats hold it for a single inject call.
type Channel struct {
	injector Injector
	cfg      Config

	mu          sync.Mutex
	initialized bool
	closed      bool
	slots       [NumSlots]slotState
	lastErr     error

	asyncFailures atomic.Int64
	done          chan struct{}
	heartbeats    sync.WaitGroup
}

// NewChannel creates a channel over injector. Zero config fields fall back to DefaultConfig.
func NewChannel(injector Injector, cfg Config) *Channel {
	def := DefaultConfig()
	if cfg.HoldInterval <= 0 {
		cfg.HoldInterval = def.HoldInterval
	}
	if cfg.Radius < 0 {
		cfg.Radius = def.Radius
	}

	c := &Channel{
		injector: injector,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	for i := range c.slots {
		c.slots[i].info = PointerInfo{
			PointerID:   i,
			Orientation: DefaultOrientation,
			Pressure:    DefaultPressure,
		}
	}
	return c
}

// Initialize sets up the injection subsystem. It must succeed before any
// press, move or release has an effect; on false the caller should fall back
// to pointer-only input.
func (c *Channel) Initialize() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	if c.initialized {
		return true
	}

	if err := c.injector.Initialize(NumSlots); err != nil {
		c.lastErr = &InjectError{Op: "initialize", Slot: -1, Code: errorCode(err), Err: err}
		logging.Error(logging.Fields{"error": err.Error(), "code": errorCode(err)}, "touch injection initialization failed")
		return false
	}

	c.initialized = true
	logging.Info(logging.Fields{"slots": NumSlots}, "touch injection initialized")
	return true
}

// Initialized reports whether Initialize succeeded and Close has not run.
func (c *Channel) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

// Press begins a contact on slot using the channel defaults.
func (c *Channel) Press(slot, x, y int) bool {
	return c.PressWith(slot, x, y, PressOptions{Radius: c.cfg.Radius, Hold: !c.cfg.DisableHold})
}

// PressWith begins a contact at (x, y). On injection failure it returns
// false and the slot keeps its previous state.
func (c *Channel) PressWith(slot, x, y int, opts PressOptions) bool {
	if !validSlot(slot) {
		c.setLastErr(&InjectError{Op: "press", Slot: slot, Code: -1, Err: ErrInvalidSlot})
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		c.lastErr = &InjectError{Op: "press", Slot: slot, Code: -1, Err: ErrNotInitialized}
		return false
	}

	s := &c.slots[slot]
	p := image.Pt(x, y)

	info := s.info
	info.Flags = flagsDown
	info.Location = p
	info.Contact = contactRect(p, opts.Radius)
	if err := c.injectLocked("press", slot, info); err != nil {
		return false
	}
	s.info = info

	// Cancel any previous heartbeat without waiting for it.
	c.stopHoldLocked(s)

	s.contact.InContact = true
	s.contact.Position = p

	if opts.Hold {
		exit := &atomic.Bool{}
		s.holdExit = exit
		s.contact.HoldActive = true
		c.heartbeats.Add(1)
		go c.hold(slot, exit)
	}

	return true
}

// Move updates the position of a pressed slot. It is a no-op returning false
// when the slot is not in contact.
func (c *Channel) Move(slot, x, y int) bool {
	if !validSlot(slot) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.slots[slot]
	if !c.initialized || !s.contact.InContact {
		return false
	}

	p := image.Pt(x, y)
	info := s.info
	info.Flags = flagsUpdate
	info.Contact = contactRect(p, radiusOf(info.Contact))
	info.Location = p
	if err := c.injectLocked("move", slot, info); err != nil {
		return false
	}

	s.info = info
	s.contact.Position = p
	return true
}

// Release stops the heartbeat, sends a final update at (x, y) followed by an
// up event, and marks the slot not in contact whether or not the calls
// succeeded. Releasing an idle slot is safe.
func (c *Channel) Release(slot, x, y int) bool {
	if !validSlot(slot) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.releaseLocked(slot, image.Pt(x, y))
}

func (c *Channel) releaseLocked(slot int, p image.Point) bool {
	s := &c.slots[slot]
	c.stopHoldLocked(s)

	defer func() {
		s.contact.InContact = false
		s.contact.Position = p
	}()

	if !c.initialized {
		return false
	}

	info := s.info
	info.Location = p
	info.Contact = contactRect(p, radiusOf(info.Contact))

	info.Flags = flagsUpdate
	moveErr := c.injectLocked("release-move", slot, info)

	info.Flags = flagsUp
	upErr := c.injectLocked("release", slot, info)

	s.info = info
	return moveErr == nil && upErr == nil
}

// ReleaseAll force-releases every slot at its last known position,
// regardless of the recorded contact state.
func (c *Channel) ReleaseAll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := true
	for slot := range c.slots {
		if !c.releaseLocked(slot, c.slots[slot].contact.Position) {
			ok = false
		}
	}
	return ok
}

// Close signals every heartbeat, releases both slots best-effort and tears
// down the injector. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	for i := range c.slots {
		c.stopHoldLocked(&c.slots[i])
	}
	close(c.done)

	for slot := range c.slots {
		c.releaseLocked(slot, c.slots[slot].contact.Position)
	}

	wasInitialized := c.initialized
	c.initialized = false
	if !wasInitialized {
		return nil
	}
	return c.injector.Close()
}

// Contact returns a copy of the slot state.
func (c *Channel) Contact(slot int) Contact {
	if !validSlot(slot) {
		return Contact{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[slot].contact
}

// InContact reports whether slot is currently pressed.
func (c *Channel) InContact(slot int) bool {
	return c.Contact(slot).InContact
}

// PressedCount returns the number of slots in contact.
func (c *Channel) PressedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, s := range c.slots {
		if s.contact.InContact {
			n++
		}
	}
	return n
}

// TakeAsyncFailures returns and clears the number of heartbeat injections
// that failed since the last call.
func (c *Channel) TakeAsyncFailures() int {
	return int(c.asyncFailures.Swap(0))
}

// LastError returns the most recent injection error, for diagnostics.
func (c *Channel) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Channel) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Channel) injectLocked(op string, slot int, info PointerInfo) error {
	err := c.injector.Inject(info)
	if err == nil {
		return nil
	}

	ierr := &InjectError{Op: op, Slot: slot, Code: errorCode(err), Err: err}
	c.lastErr = ierr
	logging.Warn(logging.Fields{
		"op":    op,
		"slot":  slot,
		"flags": info.Flags.String(),
		"code":  ierr.Code,
		"error": err.Error(),
	}, "touch injection rejected")
	return ierr
}

func (c *Channel) stopHoldLocked(s *slotState) {
	if s.holdExit != nil {
		s.holdExit.Store(true)
		s.holdExit = nil
	}
	s.contact.HoldActive = false
}

// hold re-asserts the contact on slot every HoldInterval until exit is
// raised, the slot is released or an injection fails.
func (c *Channel) hold(slot int, exit *atomic.Bool) {
	defer c.heartbeats.Done()

	logging.Debug(logging.Fields{"slot": slot}, "hold heartbeat started")
	defer logging.Debug(logging.Fields{"slot": slot}, "hold heartbeat exited")

	timer := time.NewTimer(c.cfg.HoldInterval)
	defer timer.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-timer.C:
		}

		if exit.Load() || !c.heartbeat(slot, exit) {
			return
		}
		timer.Reset(c.cfg.HoldInterval)
	}
}

func (c *Channel) heartbeat(slot int, exit *atomic.Bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &c.slots[slot]
	if exit.Load() || s.holdExit != exit || !s.contact.InContact || !c.initialized {
		return false
	}

	info := s.info
	info.Flags = flagsUpdate
	if err := c.injectLocked("hold", slot, info); err != nil {
		c.asyncFailures.Add(1)
		s.holdExit = nil
		s.contact.HoldActive = false
		return false
	}
	return true
}

// waitHeartbeats blocks until every heartbeat goroutine has returned.
func (c *Channel) waitHeartbeats() {
	c.heartbeats.Wait()
}

func validSlot(slot int) bool {
	return slot >= 0 && slot < NumSlots
}

func radiusOf(r image.Rectangle) int {
	return r.Dx() / 2
}
