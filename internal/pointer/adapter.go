package pointer

import (
	"image"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/logging"
)

// Config holds pointer-mode settings.
type Config struct {
	// UpdateInterval is the minimum gap between cursor moves.
	UpdateInterval time.Duration
	// Hand is the preferred hand. Empty follows whichever hand is seen first.
	Hand hand.ID
}

// DefaultConfig limits moves to one per 8ms.
func DefaultConfig() Config {
	return Config{UpdateInterval: 8 * time.Millisecond}
}

// Adapter moves the cursor to a hand and holds the button while it is closed.
type Adapter struct {
	cursor Cursor

	mu       sync.Mutex
	cfg      Config
	limiter  *rate.Limiter
	down     bool
	last     image.Point
	moved    bool
	failures int
}

// NewAdapter creates an adapter over cursor.
func NewAdapter(cursor Cursor, cfg Config) *Adapter {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultConfig().UpdateInterval
	}
	return &Adapter{
		cursor:  cursor,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.UpdateInterval), 1),
	}
}

// SetConfig applies new settings.
func (a *Adapter) SetConfig(cfg Config) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultConfig().UpdateInterval
	}
	a.cfg = cfg
	a.limiter.SetLimit(rate.Every(cfg.UpdateInterval))
}

// Process handles one frame. Moves are rate limited; button changes are not.
func (a *Adapter) Process(obs []hand.Observation, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	o, ok := a.pick(obs)
	if !ok {
		if a.down {
			a.buttonUp()
		}
		return
	}

	if (!a.moved || o.Point != a.last) && a.limiter.AllowN(now, 1) {
		if a.check("move", a.cursor.MoveTo(o.Point.X, o.Point.Y)) {
			a.last = o.Point
			a.moved = true
		}
	}

	switch {
	case o.Closed && !a.down:
		if a.check("button down", a.cursor.ButtonDown()) {
			a.down = true
		}
	case !o.Closed && a.down:
		a.buttonUp()
	}
}

// ButtonHeld reports whether the button is down.
func (a *Adapter) ButtonHeld() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.down
}

// Failures returns the number of failed cursor calls.
func (a *Adapter) Failures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures
}

// Close releases the button and closes the cursor.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		a.buttonUp()
	}
	return a.cursor.Close()
}

func (a *Adapter) pick(obs []hand.Observation) (hand.Observation, bool) {
	if a.cfg.Hand != "" {
		if o, ok := hand.Find(obs, a.cfg.Hand); ok {
			return o, true
		}
	}
	if len(obs) == 0 {
		return hand.Observation{}, false
	}
	return obs[0], true
}

// buttonUp always marks the button released, even if the call fails.
func (a *Adapter) buttonUp() {
	a.check("button up", a.cursor.ButtonUp())
	a.down = false
}

func (a *Adapter) check(op string, err error) bool {
	if err == nil {
		return true
	}
	a.failures++
	logging.Warn(logging.Fields{"op": op, "error": err.Error(), "failures": a.failures}, "cursor injection failed")
	return false
}
