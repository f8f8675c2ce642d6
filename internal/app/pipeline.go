package app

import (
	"errors"
	"time"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/hand"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/store"
)

// produce reads frames at the camera rate, runs the detector and publishes
// the newest result. It never waits on the consumer.
func (a *App) produce(stop <-chan struct{}) {
	defer a.wg.Done()

	fps := a.cfg.Camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if fps != a.cfg.Camera.FPS() && a.cfg.Camera.FPS() > 0 {
			fps = a.cfg.Camera.FPS()
			ticker.Reset(time.Second / time.Duration(fps))
		}
		if !a.IsEnabled() {
			continue
		}
		a.produceOne()
	}
}

func (a *App) produceOne() {
	frame, err := a.cfg.Camera.ReadFrame()
	if err != nil {
		if !errors.Is(err, capture.ErrNoFrame) {
			logging.Debug(logging.Fields{"error": err.Error()}, "frame read failed")
		}
		return
	}
	defer frame.Close()

	a.mu.RLock()
	gate := a.settings.Camera.MotionGate
	a.mu.RUnlock()
	if gate && !a.motion.Allow(frame, a.tracking.Load()) {
		return
	}

	hands, err := a.cfg.Detector.Detect(frame)
	if err != nil {
		logging.Debug(logging.Fields{"error": err.Error()}, "hand detection failed")
		return
	}
	a.tracking.Store(len(hands) > 0)
	a.frames.Put(Frame{Hands: hands, At: time.Now()})
}

// consume drives the injection side. All machine, adapter and config
// changes happen on this goroutine.
func (a *App) consume(stop <-chan struct{}) {
	defer a.wg.Done()

	a.mu.RLock()
	interval := a.settings.Pipeline.PollInterval()
	a.mu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	active := a.IsEnabled()
	for {
		select {
		case <-stop:
			return
		case <-a.reloads.Ready():
			if cfg, ok := a.reloads.Take(); ok {
				if next := a.applyConfig(cfg); next != interval {
					interval = next
					ticker.Reset(interval)
				}
			}
			continue
		case <-ticker.C:
		}

		enabled := a.IsEnabled()
		if !enabled {
			if active {
				a.pause()
			}
			active = false
			continue
		}
		active = true

		f, ok := a.frames.Take()
		if !ok {
			continue
		}
		a.process(f, time.Now())
	}
}

func (a *App) process(f Frame, now time.Time) {
	obs := a.adapter.Adapt(f.Hands, f.At)
	if a.machine != nil {
		a.machine.Process(obs, now)
	} else {
		a.pointer.Process(obs, now)
		if a.cfg.Overlay != nil {
			a.cfg.Overlay.Publish(pointerSnapshot(obs, now))
		}
	}
	a.processed.Add(1)
}

// pause lifts every contact and the cursor button.
func (a *App) pause() {
	if a.machine != nil {
		a.machine.Close()
	}
	if a.pointer != nil {
		a.pointer.Process(nil, time.Now())
	}
	a.frames.Take()
}

func pointerSnapshot(obs []hand.Observation, now time.Time) gesture.Snapshot {
	snap := gesture.Snapshot{At: now, Mode: gesture.IdleMode, Hands: make(map[hand.ID]gesture.Position, len(obs))}
	for _, o := range obs {
		snap.Hands[o.ID] = gesture.Position{X: o.Point.X, Y: o.Point.Y, Closed: o.Closed}
	}
	return snap
}

// applyConfig installs cfg and returns the poll interval to use.
func (a *App) applyConfig(cfg config.Config) time.Duration {
	if err := cfg.Validate(); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "ignoring invalid config")
		return a.pollInterval()
	}

	a.mu.Lock()
	if cfg.Mode != a.settings.Mode || cfg.Touch.Backend != a.settings.Touch.Backend {
		logging.Warn(logging.Fields{"mode": cfg.Mode, "backend": cfg.Touch.Backend}, "input mode changes take effect after restart")
	}
	cfg.Mode = a.settings.Mode
	cfg.Touch.Backend = a.settings.Touch.Backend
	a.settings = cfg
	a.mu.Unlock()

	a.adapter = hand.NewAdapter(handConfig(cfg))
	a.motion.SetThreshold(cfg.Camera.MotionThreshold)
	a.cfg.Camera.SetFPS(cfg.Camera.FPS)
	if a.machine != nil {
		a.machine.SetConfig(gestureConfig(cfg))
	}
	if a.pointer != nil {
		a.pointer.SetConfig(pointerConfig(cfg))
	}
	logging.Info(nil, "pipeline settings updated")
	return cfg.Pipeline.PollInterval()
}

func (a *App) pollInterval() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Pipeline.PollInterval()
}

// queueTransition hands t to the history writer without blocking the
// consumer. Transitions are dropped when the writer falls behind.
func (a *App) queueTransition(t gesture.Transition) {
	a.mu.RLock()
	sess := a.session
	a.mu.RUnlock()
	if sess == nil {
		return
	}

	rec := store.Transition{
		SessionID: sess.ID,
		From:      t.From.String(),
		To:        t.To.String(),
		Emergency: t.Emergency,
		At:        t.At,
	}
	for _, id := range t.Hands {
		rec.Hands = append(rec.Hands, string(id))
	}

	select {
	case a.history <- rec:
	default:
		logging.Warn(logging.Fields{"from": rec.From, "to": rec.To}, "history queue full, transition not recorded")
	}
}

func (a *App) recordHistory(stop <-chan struct{}) {
	defer a.wg.Done()
	for {
		select {
		case <-stop:
			a.drainHistory()
			return
		case t := <-a.history:
			a.writeTransition(t)
		}
	}
}

func (a *App) drainHistory() {
	for {
		select {
		case t := <-a.history:
			a.writeTransition(t)
		default:
			return
		}
	}
}

func (a *App) writeTransition(t store.Transition) {
	if err := a.cfg.Store.Transitions().Create(&t); err != nil {
		logging.Error(logging.Fields{"error": err.Error(), "session": t.SessionID}, "failed to record transition")
	}
}
