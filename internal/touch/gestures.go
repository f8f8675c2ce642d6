package touch

import (
	"context"
	"image"
	"time"
)

// Tap presses slot at (x, y) without a heartbeat, waits hold and releases.
func (c *Channel) Tap(ctx context.Context, slot, x, y int, hold time.Duration) bool {
	if !c.PressWith(slot, x, y, PressOptions{Radius: c.cfg.Radius}) {
		return false
	}

	select {
	case <-ctx.Done():
	case <-time.After(hold):
	}

	return c.Release(slot, x, y)
}

// Pinch drags both slots from their from points to their to points in steps
// moves spread evenly over duration, then lifts both.
func (c *Channel) Pinch(ctx context.Context, from, to [NumSlots]image.Point, steps int, duration time.Duration) bool {
	if steps < 1 {
		steps = 1
	}

	for slot := 0; slot < NumSlots; slot++ {
		if !c.PressWith(slot, from[slot].X, from[slot].Y, PressOptions{Radius: c.cfg.Radius}) {
			c.ReleaseAll()
			return false
		}
	}

	ok := true
	pause := duration / time.Duration(steps)
	last := from

loop:
	for i := 1; i <= steps; i++ {
		select {
		case <-ctx.Done():
			ok = false
			break loop
		case <-time.After(pause):
		}

		for slot := 0; slot < NumSlots; slot++ {
			p := lerp(from[slot], to[slot], i, steps)
			if !c.Move(slot, p.X, p.Y) {
				ok = false
			}
			last[slot] = p
		}
	}

	for slot := 0; slot < NumSlots; slot++ {
		if !c.Release(slot, last[slot].X, last[slot].Y) {
			ok = false
		}
	}
	return ok
}

func lerp(a, b image.Point, i, n int) image.Point {
	return image.Pt(a.X+(b.X-a.X)*i/n, a.Y+(b.Y-a.Y)*i/n)
}
