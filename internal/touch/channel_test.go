package touch

import (
	"context"
	"errors"
	"image"
	"syscall"
	"testing"
	"time"
)

func newTestChannel(t *testing.T, cfg Config) (*Channel, *RecordingInjector) {
	t.Helper()
	inj := NewRecordingInjector()
	ch := NewChannel(inj, cfg)
	if !ch.Initialize() {
		t.Fatalf("Initialize() = false, error = %v", ch.LastError())
	}
	t.Cleanup(func() { ch.Close() })
	return ch, inj
}

func noHold() Config {
	cfg := DefaultConfig()
	cfg.DisableHold = true
	return cfg
}

func TestChannel_InitializeFailure(t *testing.T) {
	inj := NewRecordingInjector()
	inj.SetInitError(syscall.EACCES)
	ch := NewChannel(inj, DefaultConfig())

	if ch.Initialize() {
		t.Fatal("Initialize() = true, want false")
	}

	var ierr *InjectError
	if !errors.As(ch.LastError(), &ierr) {
		t.Fatalf("LastError() = %v, want *InjectError", ch.LastError())
	}
	if ierr.Code != int(syscall.EACCES) {
		t.Errorf("Code = %d, want %d", ierr.Code, int(syscall.EACCES))
	}

	if ch.Press(0, 10, 10) {
		t.Error("Press() on uninitialized channel should fail")
	}
	if !errors.Is(ch.LastError(), ErrNotInitialized) {
		t.Errorf("LastError() = %v, want ErrNotInitialized", ch.LastError())
	}
	if len(inj.Calls()) != 0 {
		t.Errorf("expected no injections, got %d", len(inj.Calls()))
	}
}

func TestChannel_Lifecycle(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	if !ch.Press(0, 100, 200) {
		t.Fatal("Press() = false")
	}
	if got := ch.Contact(0); !got.InContact || got.Position != image.Pt(100, 200) {
		t.Errorf("Contact(0) = %+v", got)
	}
	if !ch.Move(0, 110, 210) {
		t.Fatal("Move() = false")
	}
	if !ch.Release(0, 120, 220) {
		t.Fatal("Release() = false")
	}

	calls := inj.Calls()
	want := []Flags{flagsDown, flagsUpdate, flagsUpdate, flagsUp}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(calls), len(want))
	}
	for i, c := range calls {
		if c.Info.Flags != want[i] {
			t.Errorf("call %d flags = %s, want %s", i, c.Info.Flags, want[i])
		}
		if c.Info.PointerID != 0 {
			t.Errorf("call %d pointer = %d, want 0", i, c.Info.PointerID)
		}
	}

	down := calls[0].Info
	if down.Orientation != DefaultOrientation || down.Pressure != DefaultPressure {
		t.Errorf("orientation/pressure = %d/%d", down.Orientation, down.Pressure)
	}
	if down.Contact != image.Rect(95, 195, 105, 205) {
		t.Errorf("contact = %v", down.Contact)
	}
	if calls[3].Info.Location != image.Pt(120, 220) {
		t.Errorf("up location = %v", calls[3].Info.Location)
	}

	if ch.Contact(0).InContact {
		t.Error("slot 0 still in contact after release")
	}
}

func TestChannel_MoveWithoutContact(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	if ch.Move(1, 5, 5) {
		t.Error("Move() on idle slot = true")
	}
	if len(inj.Calls()) != 0 {
		t.Errorf("expected no injections, got %d", len(inj.Calls()))
	}
}

func TestChannel_InvalidSlot(t *testing.T) {
	ch, _ := newTestChannel(t, noHold())

	for _, slot := range []int{-1, 2, 99} {
		if ch.Press(slot, 0, 0) || ch.Move(slot, 0, 0) || ch.Release(slot, 0, 0) {
			t.Errorf("slot %d accepted", slot)
		}
		if ch.Contact(slot).InContact {
			t.Errorf("Contact(%d) reported in contact", slot)
		}
	}
}

func TestChannel_PressFailureKeepsState(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	inj.FailNext(1)
	if ch.Press(1, 50, 50) {
		t.Fatal("Press() = true on injection failure")
	}
	if ch.Contact(1).InContact {
		t.Error("failed press marked slot in contact")
	}

	var ierr *InjectError
	if !errors.As(ch.LastError(), &ierr) || ierr.Op != "press" || ierr.Slot != 1 {
		t.Errorf("LastError() = %v", ch.LastError())
	}
}

func TestChannel_ReleaseIsFailOpen(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	ch.Press(0, 10, 10)
	inj.SetFailAll(true)

	if ch.Release(0, 10, 10) {
		t.Error("Release() = true while injector fails")
	}
	if ch.Contact(0).InContact {
		t.Error("slot still in contact after failed release")
	}
	if ch.PressedCount() != 0 {
		t.Errorf("PressedCount() = %d, want 0", ch.PressedCount())
	}
}

func TestChannel_DoubleRelease(t *testing.T) {
	ch, _ := newTestChannel(t, noHold())

	ch.Press(0, 10, 10)
	ch.Release(0, 10, 10)
	ch.Release(0, 10, 10)

	if ch.Contact(0).InContact {
		t.Error("slot in contact after double release")
	}
	if !ch.Press(0, 20, 20) {
		t.Error("Press() after double release = false")
	}
}

func TestChannel_ReleaseAll(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	ch.Press(0, 10, 10)
	ch.Press(1, 30, 30)
	if ch.PressedCount() != 2 {
		t.Fatalf("PressedCount() = %d, want 2", ch.PressedCount())
	}

	ch.ReleaseAll()

	if ch.PressedCount() != 0 {
		t.Errorf("PressedCount() = %d, want 0", ch.PressedCount())
	}
	if inj.Count(0, FlagUp) != 1 || inj.Count(1, FlagUp) != 1 {
		t.Errorf("up counts = %d/%d, want 1/1", inj.Count(0, FlagUp), inj.Count(1, FlagUp))
	}
}

func TestChannel_Heartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HoldInterval = 10 * time.Millisecond
	ch, inj := newTestChannel(t, cfg)

	ch.Press(0, 40, 40)
	if !ch.Contact(0).HoldActive {
		t.Fatal("HoldActive = false after press")
	}

	time.Sleep(80 * time.Millisecond)
	if n := inj.Count(0, FlagUpdate); n < 2 {
		t.Errorf("heartbeat sent %d updates, want at least 2", n)
	}

	ch.Release(0, 40, 40)
	if ch.Contact(0).HoldActive {
		t.Error("HoldActive = true after release")
	}

	before := inj.Count(0, FlagUpdate)
	time.Sleep(50 * time.Millisecond)
	if after := inj.Count(0, FlagUpdate); after != before {
		t.Errorf("heartbeat kept running after release: %d -> %d", before, after)
	}
}

func TestChannel_RepressReplacesHeartbeat(t *testing.T) {
	const interval = 10 * time.Millisecond
	cfg := DefaultConfig()
	cfg.HoldInterval = interval
	ch, inj := newTestChannel(t, cfg)

	ch.Press(0, 40, 40)
	ch.Press(0, 42, 42)
	if !ch.Contact(0).HoldActive {
		t.Fatal("HoldActive = false after second press")
	}

	start := inj.Count(0, FlagUpdate)
	time.Sleep(10 * interval)
	// One heartbeat fires at most once per interval; two would double this.
	if n := inj.Count(0, FlagUpdate) - start; n > 14 {
		t.Errorf("%d updates in %v, want at most 14 from a single heartbeat", n, 10*interval)
	}

	ch.Release(0, 42, 42)

	done := make(chan struct{})
	go func() {
		ch.waitHeartbeats()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(20 * interval):
		t.Fatal("heartbeats still running after release")
	}
}

func TestChannel_HeartbeatFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HoldInterval = 10 * time.Millisecond
	ch, inj := newTestChannel(t, cfg)

	ch.Press(1, 40, 40)
	inj.SetFailAll(true)

	deadline := time.Now().Add(time.Second)
	for ch.Contact(1).HoldActive && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if ch.Contact(1).HoldActive {
		t.Fatal("heartbeat still active after failure")
	}
	if n := ch.TakeAsyncFailures(); n != 1 {
		t.Errorf("TakeAsyncFailures() = %d, want 1", n)
	}
	if n := ch.TakeAsyncFailures(); n != 0 {
		t.Errorf("second TakeAsyncFailures() = %d, want 0", n)
	}
	if !ch.Contact(1).InContact {
		t.Error("heartbeat failure should not release the contact")
	}
}

func TestChannel_Close(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HoldInterval = 10 * time.Millisecond
	inj := NewRecordingInjector()
	ch := NewChannel(inj, cfg)
	ch.Initialize()

	ch.Press(0, 1, 1)
	ch.Press(1, 2, 2)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		ch.waitHeartbeats()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeats did not exit after Close")
	}

	if ch.PressedCount() != 0 {
		t.Errorf("PressedCount() = %d after Close", ch.PressedCount())
	}
	if !inj.Closed() {
		t.Error("injector not closed")
	}
	if ch.Press(0, 1, 1) {
		t.Error("Press() after Close = true")
	}
}

func TestChannel_Tap(t *testing.T) {
	ch, inj := newTestChannel(t, DefaultConfig())

	if !ch.Tap(context.Background(), 0, 300, 400, time.Millisecond) {
		t.Fatal("Tap() = false")
	}
	if inj.Count(0, FlagDown) != 1 || inj.Count(0, FlagUp) != 1 {
		t.Errorf("down/up = %d/%d", inj.Count(0, FlagDown), inj.Count(0, FlagUp))
	}
	if ch.Contact(0).InContact {
		t.Error("slot in contact after tap")
	}
}

func TestChannel_Pinch(t *testing.T) {
	ch, inj := newTestChannel(t, noHold())

	from := [NumSlots]image.Point{image.Pt(100, 100), image.Pt(300, 100)}
	to := [NumSlots]image.Point{image.Pt(180, 100), image.Pt(220, 100)}
	if !ch.Pinch(context.Background(), from, to, 4, 4*time.Millisecond) {
		t.Fatal("Pinch() = false")
	}

	calls := inj.Calls()
	last := map[int]image.Point{}
	for _, c := range calls {
		if c.Info.Flags.Has(FlagUp) {
			last[c.Info.PointerID] = c.Info.Location
		}
	}
	if last[0] != to[0] || last[1] != to[1] {
		t.Errorf("lift points = %v, want %v", last, to)
	}
	if ch.PressedCount() != 0 {
		t.Errorf("PressedCount() = %d after pinch", ch.PressedCount())
	}
}

func TestFlags_String(t *testing.T) {
	tests := []struct {
		flags Flags
		want  string
	}{
		{0, "none"},
		{FlagUp, "up"},
		{flagsDown, "inrange|incontact|down"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("%#x.String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}
