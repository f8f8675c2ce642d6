package touch

import (
	"sync"
	"syscall"
)

// Call is one recorded Inject.
type Call struct {
	Info PointerInfo
	Err  error
}

// RecordingInjector records every injection instead of touching the OS. It
// doubles as the dry-run backend and as a test fake with scripted failures.
type RecordingInjector struct {
	mu          sync.Mutex
	calls       []Call
	initErr     error
	initialized bool
	closed      bool
	failNext    int
	failAll     bool
	failWhen    func(PointerInfo) bool
}

// NewRecordingInjector returns an empty recorder.
func NewRecordingInjector() *RecordingInjector {
	return &RecordingInjector{}
}

// SetInitError makes Initialize return err.
func (r *RecordingInjector) SetInitError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initErr = err
}

// FailNext makes the next n injections fail.
func (r *RecordingInjector) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// SetFailAll makes every injection fail until cleared.
func (r *RecordingInjector) SetFailAll(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = fail
}

// FailWhen fails injections matching fn. A nil fn clears it.
func (r *RecordingInjector) FailWhen(fn func(PointerInfo) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWhen = fn
}

func (r *RecordingInjector) Initialize(maxContacts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initErr != nil {
		return r.initErr
	}
	r.initialized = true
	return nil
}

func (r *RecordingInjector) Inject(info PointerInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch {
	case !r.initialized:
		err = ErrNotInitialized
	case r.failAll:
		err = syscall.EINVAL
	case r.failNext > 0:
		r.failNext--
		err = syscall.EINVAL
	case r.failWhen != nil && r.failWhen(info):
		err = syscall.EINVAL
	}

	r.calls = append(r.calls, Call{Info: info, Err: err})
	return err
}

func (r *RecordingInjector) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.initialized = false
	return nil
}

// Closed reports whether Close was called.
func (r *RecordingInjector) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Calls returns a copy of the recorded injections.
func (r *RecordingInjector) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many recorded calls on slot carry all of flags.
func (r *RecordingInjector) Count(slot int, flags Flags) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Info.PointerID == slot && c.Info.Flags.Has(flags) {
			n++
		}
	}
	return n
}

// Reset drops recorded calls and scripted failures.
func (r *RecordingInjector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
	r.failNext = 0
	r.failAll = false
	r.failWhen = nil
}
