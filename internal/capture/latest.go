package capture

import "sync"

// Latest is a single-value mailbox between a producer and a consumer. Put
// never blocks and replaces a value that was not taken yet, so the consumer
// always sees the newest frame.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	full    bool
	dropped uint64
	ready   chan struct{}
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, dropping any value not yet taken.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	if l.full {
		l.dropped++
	}
	l.value = v
	l.full = true
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Take removes and returns the stored value without blocking.
func (l *Latest[T]) Take() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	if !l.full {
		return zero, false
	}
	v := l.value
	l.value = zero
	l.full = false
	return v, true
}

// Ready is signalled after Put. It may fire for a value already taken.
func (l *Latest[T]) Ready() <-chan struct{} {
	return l.ready
}

// Dropped returns how many values were replaced before being taken.
func (l *Latest[T]) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
