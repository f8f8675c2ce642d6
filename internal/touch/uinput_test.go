package touch

import (
	"errors"
	"image"
	"syscall"
	"testing"

	"github.com/ayusman/mudra/internal/uinput"
)

var errWrite = errors.New("write /dev/uinput: input/output error")

// recordingEmitter stands in for the virtual device and keeps every batch.
type recordingEmitter struct {
	batches [][]uinput.Event
	fail    bool
	closed  bool
}

func (r *recordingEmitter) Emit(events ...uinput.Event) error {
	if r.fail {
		return errWrite
	}
	r.batches = append(r.batches, append([]uinput.Event(nil), events...))
	return nil
}

func (r *recordingEmitter) Close() error {
	r.closed = true
	return nil
}

func (r *recordingEmitter) last() []uinput.Event {
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func newTestInjector(t *testing.T) (*UInputInjector, *recordingEmitter) {
	t.Helper()
	rec := &recordingEmitter{}
	inj := NewUInputInjector("", 1920, 1080)
	inj.dev = rec
	return inj, rec
}

func eventValue(batch []uinput.Event, typ, code uint16) (int32, bool) {
	for _, e := range batch {
		if e.Type == typ && e.Code == code {
			return e.Value, true
		}
	}
	return 0, false
}

func pointerAt(slot int, flags Flags, x, y int) PointerInfo {
	p := image.Pt(x, y)
	return PointerInfo{
		PointerID:   slot,
		Flags:       flags,
		Location:    p,
		Contact:     contactRect(p, 4),
		Orientation: DefaultOrientation,
		Pressure:    DefaultPressure,
	}
}

type eventKey struct {
	typ  uint16
	code uint16
}

var (
	evSlot     = eventKey{uinput.EvAbs, uinput.AbsMTSlot}
	evTracking = eventKey{uinput.EvAbs, uinput.AbsMTTracking}
	evPosX     = eventKey{uinput.EvAbs, uinput.AbsMTPositionX}
	evTouch    = eventKey{uinput.EvKey, uinput.BtnTouch}
	evFinger   = eventKey{uinput.EvKey, uinput.BtnToolFinger}
	evDouble   = eventKey{uinput.EvKey, uinput.BtnToolDoubleTap}
	evSyn      = eventKey{uinput.EvSyn, uinput.SynReport}
)

func TestUInputInjector_Sequence(t *testing.T) {
	inj, rec := newTestInjector(t)

	tests := []struct {
		name    string
		info    PointerInfo
		batch   bool
		want    map[eventKey]int32
		absent  []eventKey
		tracked [NumSlots]int32
	}{
		{
			name:  "first press opens tracking id 0",
			info:  pointerAt(0, flagsDown, 100, 200),
			batch: true,
			want: map[eventKey]int32{
				evSlot: 0, evTracking: 0, evPosX: 100,
				evTouch: 1, evFinger: 1, evDouble: 0, evSyn: 0,
			},
			tracked: [NumSlots]int32{0, -1},
		},
		{
			name:    "second slot gets the next id and a double tap tool",
			info:    pointerAt(1, flagsDown, 300, 200),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 1, evTracking: 1, evTouch: 1, evFinger: 0, evDouble: 1},
			tracked: [NumSlots]int32{0, 1},
		},
		{
			name:    "update moves without a tracking event",
			info:    pointerAt(0, flagsUpdate, 110, 210),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 0, evPosX: 110, evDouble: 1},
			absent:  []eventKey{evTracking},
			tracked: [NumSlots]int32{0, 1},
		},
		{
			name:    "re-press keeps the tracking id",
			info:    pointerAt(1, flagsDown, 305, 205),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 1, evPosX: 305},
			absent:  []eventKey{evTracking},
			tracked: [NumSlots]int32{0, 1},
		},
		{
			name:    "lift first slot drops to one finger",
			info:    pointerAt(0, flagsUp, 110, 210),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 0, evTracking: -1, evTouch: 1, evFinger: 1, evDouble: 0},
			absent:  []eventKey{evPosX},
			tracked: [NumSlots]int32{-1, 1},
		},
		{
			name:    "release of idle slot emits nothing",
			info:    pointerAt(0, flagsUp, 0, 0),
			tracked: [NumSlots]int32{-1, 1},
		},
		{
			name:    "update of idle slot emits nothing",
			info:    pointerAt(0, flagsUpdate, 0, 0),
			tracked: [NumSlots]int32{-1, 1},
		},
		{
			name:    "lift last slot clears touch",
			info:    pointerAt(1, flagsUp, 305, 205),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 1, evTracking: -1, evTouch: 0, evFinger: 0, evDouble: 0},
			tracked: [NumSlots]int32{-1, -1},
		},
		{
			name:    "next press continues the id sequence",
			info:    pointerAt(0, flagsDown, 50, 60),
			batch:   true,
			want:    map[eventKey]int32{evSlot: 0, evTracking: 2, evTouch: 1, evFinger: 1},
			tracked: [NumSlots]int32{2, -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(rec.batches)
			if err := inj.Inject(tt.info); err != nil {
				t.Fatalf("Inject() error = %v", err)
			}

			emitted := len(rec.batches) - before
			if !tt.batch {
				if emitted != 0 {
					t.Fatalf("emitted %d batches, want none", emitted)
				}
			} else {
				if emitted != 1 {
					t.Fatalf("emitted %d batches, want 1", emitted)
				}
				batch := rec.last()
				for k, want := range tt.want {
					got, ok := eventValue(batch, k.typ, k.code)
					if !ok {
						t.Errorf("event %d/%#x missing", k.typ, k.code)
					} else if got != want {
						t.Errorf("event %d/%#x = %d, want %d", k.typ, k.code, got, want)
					}
				}
				for _, k := range tt.absent {
					if _, ok := eventValue(batch, k.typ, k.code); ok {
						t.Errorf("event %d/%#x present, want absent", k.typ, k.code)
					}
				}
				if batch[0] != (uinput.Event{Type: uinput.EvAbs, Code: uinput.AbsMTSlot, Value: int32(tt.info.PointerID)}) {
					t.Errorf("first event = %+v, want slot select", batch[0])
				}
				if batch[len(batch)-1] != uinput.Syn() {
					t.Errorf("last event = %+v, want SYN_REPORT", batch[len(batch)-1])
				}
			}

			if inj.tracked != tt.tracked {
				t.Errorf("tracked = %v, want %v", inj.tracked, tt.tracked)
			}
		})
	}
}

func TestUInputInjector_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		init    bool
		info    PointerInfo
		wantErr error
	}{
		{"not initialized", false, pointerAt(0, flagsDown, 1, 1), ErrNotInitialized},
		{"negative slot", true, pointerAt(-1, flagsDown, 1, 1), syscall.EINVAL},
		{"slot out of range", true, pointerAt(NumSlots, flagsDown, 1, 1), syscall.EINVAL},
		{"no flags", true, pointerAt(0, 0, 1, 1), syscall.EINVAL},
		{"range flags only", true, pointerAt(0, FlagNew|FlagInRange, 1, 1), syscall.EINVAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inj, rec := newTestInjector(t)
			if !tt.init {
				inj.dev = nil
			}

			err := inj.Inject(tt.info)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Inject() error = %v, want %v", err, tt.wantErr)
			}
			if len(rec.batches) != 0 {
				t.Errorf("emitted %d batches, want none", len(rec.batches))
			}
		})
	}
}

func TestUInputInjector_InitializeRange(t *testing.T) {
	inj, _ := newTestInjector(t)
	for _, n := range []int{0, NumSlots + 1} {
		if err := inj.Initialize(n); !errors.Is(err, syscall.EINVAL) {
			t.Errorf("Initialize(%d) error = %v, want EINVAL", n, err)
		}
	}
	if err := inj.Initialize(NumSlots); err != nil {
		t.Errorf("Initialize() on an open device error = %v", err)
	}
}

func TestUInputInjector_FailedPressNotTracked(t *testing.T) {
	inj, rec := newTestInjector(t)

	rec.fail = true
	if err := inj.Inject(pointerAt(0, flagsDown, 10, 10)); !errors.Is(err, errWrite) {
		t.Fatalf("Inject() error = %v, want %v", err, errWrite)
	}
	if inj.tracked[0] != -1 {
		t.Errorf("tracked[0] = %d after failed press, want -1", inj.tracked[0])
	}
	if inj.nextID != 0 {
		t.Errorf("nextID = %d after failed press, want 0", inj.nextID)
	}

	rec.fail = false
	if err := inj.Inject(pointerAt(0, flagsDown, 10, 10)); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	if id, ok := eventValue(rec.last(), uinput.EvAbs, uinput.AbsMTTracking); !ok || id != 0 {
		t.Errorf("tracking id = %d (present %v), want 0", id, ok)
	}
	if v, _ := eventValue(rec.last(), uinput.EvKey, uinput.BtnTouch); v != 1 {
		t.Errorf("BTN_TOUCH = %d, want 1", v)
	}
}

func TestUInputInjector_FailedLiftStaysTracked(t *testing.T) {
	inj, rec := newTestInjector(t)
	if err := inj.Inject(pointerAt(0, flagsDown, 10, 10)); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}

	rec.fail = true
	if err := inj.Inject(pointerAt(0, flagsUp, 10, 10)); err == nil {
		t.Fatal("Inject() error = nil, want write failure")
	}
	if inj.tracked[0] != 0 {
		t.Errorf("tracked[0] = %d after failed lift, want 0", inj.tracked[0])
	}

	rec.fail = false
	if err := inj.Inject(pointerAt(0, flagsUp, 10, 10)); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}
	if id, ok := eventValue(rec.last(), uinput.EvAbs, uinput.AbsMTTracking); !ok || id != -1 {
		t.Errorf("tracking id = %d (present %v), want -1", id, ok)
	}
	if inj.tracked[0] != -1 {
		t.Errorf("tracked[0] = %d, want -1", inj.tracked[0])
	}
}

func TestUInputInjector_ChannelRecoversAfterFailedPress(t *testing.T) {
	inj, rec := newTestInjector(t)
	ch := NewChannel(inj, noHold())
	if !ch.Initialize() {
		t.Fatalf("Initialize() = false, error = %v", ch.LastError())
	}
	t.Cleanup(func() { ch.Close() })

	rec.fail = true
	if ch.Press(0, 10, 10) {
		t.Fatal("Press() = true with a failing device")
	}
	if ch.InContact(0) {
		t.Error("slot 0 in contact after failed press")
	}

	rec.fail = false
	if !ch.Press(0, 10, 10) {
		t.Fatalf("Press() = false, error = %v", ch.LastError())
	}
	if _, ok := eventValue(rec.last(), uinput.EvAbs, uinput.AbsMTTracking); !ok {
		t.Error("press after a failed press did not open a tracking id")
	}
}

func TestUInputInjector_Close(t *testing.T) {
	inj, rec := newTestInjector(t)
	if err := inj.Inject(pointerAt(0, flagsDown, 10, 10)); err != nil {
		t.Fatalf("Inject() error = %v", err)
	}

	if err := inj.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !rec.closed {
		t.Error("device not closed")
	}
	if inj.tracked[0] != -1 {
		t.Errorf("tracked[0] = %d after close, want -1", inj.tracked[0])
	}
	if err := inj.Inject(pointerAt(0, flagsDown, 10, 10)); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Inject() after close error = %v, want ErrNotInitialized", err)
	}
	if err := inj.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
