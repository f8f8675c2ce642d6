package gesture

import (
	"image"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/touch"
)

// Surface is the slot-level touch API the machine drives. *touch.Channel
// implements it.
type Surface interface {
	Press(slot, x, y int) bool
	Move(slot, x, y int) bool
	Release(slot, x, y int) bool
	ReleaseAll() bool
	InContact(slot int) bool
	TakeAsyncFailures() int
}

// Config holds machine timing and recovery limits.
type Config struct {
	// Debounce is the minimum gap between committed transitions.
	Debounce time.Duration
	// MaxConsecutiveErrors triggers an emergency cleanup when reached.
	MaxConsecutiveErrors int
	// RecoveryDelay is the minimum gap between emergency cleanups.
	RecoveryDelay time.Duration
}

// DefaultConfig returns 100ms debounce, 5 errors and a 1s recovery delay.
func DefaultConfig() Config {
	return Config{
		Debounce:             100 * time.Millisecond,
		MaxConsecutiveErrors: 5,
		RecoveryDelay:        time.Second,
	}
}

// Transition is a committed mode change.
type Transition struct {
	From      Mode      `json:"from"`
	To        Mode      `json:"to"`
	Hands     []hand.ID `json:"hands,omitempty"`
	At        time.Time `json:"at"`
	Emergency bool      `json:"emergency,omitempty"`
}

// Position is a hand location in a snapshot.
type Position struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Closed bool `json:"closed"`
}

// Snapshot is the per-frame view published to overlays.
type Snapshot struct {
	At    time.Time            `json:"at"`
	Mode  Mode                 `json:"mode"`
	Hands map[hand.ID]Position `json:"hands"`
}

// Machine is the Idle/Grab/Zoom state machine. Process must be called from
// a single goroutine; the accessors are safe from any goroutine.
type Machine struct {
	surface Surface
	cfg     Config

	mu             sync.Mutex
	mode           Mode
	lastTransition time.Time
	lastCleanup    time.Time
	failures       int
	points         [touch.NumSlots]image.Point

	onTransition []func(Transition)
	onSnapshot   []func(Snapshot)
}

// NewMachine creates an Idle machine over surface.
func NewMachine(surface Surface, cfg Config) *Machine {
	return &Machine{
		surface: surface,
		cfg:     normalize(cfg),
		mode:    IdleMode,
	}
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Debounce < 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = def.MaxConsecutiveErrors
	}
	if cfg.RecoveryDelay < 0 {
		cfg.RecoveryDelay = def.RecoveryDelay
	}
	return cfg
}

// OnTransition registers fn for every committed transition. Register before
// the first Process call.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.onTransition = append(m.onTransition, fn)
}

// OnSnapshot registers fn for the per-frame snapshot.
func (m *Machine) OnSnapshot(fn func(Snapshot)) {
	m.onSnapshot = append(m.onSnapshot, fn)
}

// SetConfig replaces the timing limits.
func (m *Machine) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = normalize(cfg)
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Failures returns the consecutive failure count.
func (m *Machine) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// Process runs one frame.
func (m *Machine) Process(obs []hand.Observation, now time.Time) {
	m.mu.Lock()
	transitions := m.step(obs, now)
	snap := m.snapshotLocked(obs, now)
	m.mu.Unlock()

	m.emit(transitions, snap)
}

// Close releases every slot and returns to Idle.
func (m *Machine) Close() {
	m.mu.Lock()
	from := m.mode
	m.surface.ReleaseAll()
	m.mode = IdleMode
	m.failures = 0
	m.mu.Unlock()

	if from != IdleMode {
		t := Transition{From: from, To: IdleMode, At: time.Now()}
		logTransition(t)
		m.emit([]Transition{t}, nil)
	}
}

func (m *Machine) step(obs []hand.Observation, now time.Time) []Transition {
	m.failures += m.surface.TakeAsyncFailures()

	if m.failures >= m.cfg.MaxConsecutiveErrors {
		if !m.lastCleanup.IsZero() && now.Sub(m.lastCleanup) < m.cfg.RecoveryDelay {
			return nil
		}
		return []Transition{m.cleanupLocked(now)}
	}

	closed := hand.Closed(obs)

	if !m.lastTransition.IsZero() && now.Sub(m.lastTransition) < m.cfg.Debounce {
		m.continueLocked(closed)
		return nil
	}

	from := m.mode
	m.applyLocked(closed)

	to := modeFromSlots(m.pressedLocked())
	if to == from {
		return nil
	}

	m.mode = to
	m.lastTransition = now

	t := Transition{From: from, To: to, Hands: ids(closed), At: now}
	logTransition(t)
	return []Transition{t}
}

// applyLocked performs the table action for the current mode and the closed
// hands of this frame.
func (m *Machine) applyLocked(closed []hand.Observation) {
	switch m.mode.Kind {
	case Idle:
		for _, o := range closed {
			m.press(o)
		}

	case Grab:
		h := m.mode.Hand
		switch len(closed) {
		case 0:
			m.release(h)
		case 1:
			if closed[0].ID == h {
				m.move(closed[0])
			} else {
				m.release(h)
				m.press(closed[0])
			}
		case 2:
			// Upgrade: h keeps its contact, only the other hand presses.
			for _, o := range closed {
				if o.ID != h {
					m.press(o)
				}
			}
		}

	case Zoom:
		switch len(closed) {
		case 0:
			m.release(hand.Left)
			m.release(hand.Right)
		case 1:
			m.release(closed[0].ID.Other())
		case 2:
			for _, o := range closed {
				m.move(o)
			}
		}
	}
}

// continueLocked moves the pressed slots of hands that are still closed.
func (m *Machine) continueLocked(closed []hand.Observation) {
	for _, o := range closed {
		if m.surface.InContact(o.ID.Slot()) {
			m.move(o)
		}
	}
}

func (m *Machine) cleanupLocked(now time.Time) Transition {
	from := m.mode

	logging.Error(logging.Fields{
		"mode":     from.String(),
		"failures": m.failures,
	}, "persistent injection failures, releasing all contacts")

	m.surface.ReleaseAll()
	m.mode = IdleMode
	m.failures = 0
	m.lastCleanup = now
	m.lastTransition = now

	return Transition{From: from, To: IdleMode, At: now, Emergency: true}
}

func (m *Machine) press(o hand.Observation) {
	slot := o.ID.Slot()
	m.record(m.surface.Press(slot, o.Point.X, o.Point.Y))
	m.points[slot] = o.Point
}

func (m *Machine) move(o hand.Observation) {
	slot := o.ID.Slot()
	if m.record(m.surface.Move(slot, o.Point.X, o.Point.Y)) {
		m.points[slot] = o.Point
	}
}

func (m *Machine) release(id hand.ID) {
	slot := id.Slot()
	p := m.points[slot]
	m.record(m.surface.Release(slot, p.X, p.Y))
}

// record updates the consecutive failure counter from one call result.
func (m *Machine) record(ok bool) bool {
	if ok {
		m.failures = 0
	} else {
		m.failures++
	}
	return ok
}

func (m *Machine) pressedLocked() [touch.NumSlots]bool {
	var pressed [touch.NumSlots]bool
	for slot := range pressed {
		pressed[slot] = m.surface.InContact(slot)
	}
	return pressed
}

func (m *Machine) snapshotLocked(obs []hand.Observation, now time.Time) *Snapshot {
	if len(m.onSnapshot) == 0 {
		return nil
	}
	snap := &Snapshot{At: now, Mode: m.mode, Hands: make(map[hand.ID]Position, len(obs))}
	for _, o := range obs {
		snap.Hands[o.ID] = Position{X: o.Point.X, Y: o.Point.Y, Closed: o.Closed}
	}
	return snap
}

func (m *Machine) emit(transitions []Transition, snap *Snapshot) {
	for _, t := range transitions {
		for _, fn := range m.onTransition {
			fn(t)
		}
	}
	if snap != nil {
		for _, fn := range m.onSnapshot {
			fn(*snap)
		}
	}
}

func logTransition(t Transition) {
	logging.Info(logging.Fields{
		"from":  t.From.String(),
		"to":    t.To.String(),
		"hands": t.Hands,
	}, "gesture mode changed")
}

func ids(obs []hand.Observation) []hand.ID {
	if len(obs) == 0 {
		return nil
	}
	out := make([]hand.ID, len(obs))
	for i, o := range obs {
		out[i] = o.ID
	}
	return out
}
