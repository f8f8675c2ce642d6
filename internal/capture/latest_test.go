package capture

import (
	"sync"
	"testing"
)

func TestLatest_TakeEmpty(t *testing.T) {
	l := NewLatest[int]()

	if _, ok := l.Take(); ok {
		t.Error("Take() on empty mailbox returned a value")
	}
}

func TestLatest_ReplacesUnconsumed(t *testing.T) {
	l := NewLatest[string]()

	l.Put("a")
	l.Put("b")
	l.Put("c")

	v, ok := l.Take()
	if !ok || v != "c" {
		t.Errorf("Take() = (%q, %v), want (\"c\", true)", v, ok)
	}
	if _, ok := l.Take(); ok {
		t.Error("second Take() returned a value")
	}
	if l.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", l.Dropped())
	}
}

func TestLatest_Ready(t *testing.T) {
	l := NewLatest[int]()

	l.Put(1)
	l.Put(2)

	select {
	case <-l.Ready():
	default:
		t.Fatal("Ready() not signalled after Put")
	}
	select {
	case <-l.Ready():
		t.Error("Ready() buffered more than one signal")
	default:
	}
}

func TestLatest_ConcurrentPut(t *testing.T) {
	l := NewLatest[int]()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Put(n)
			}
		}(i)
	}
	wg.Wait()

	if _, ok := l.Take(); !ok {
		t.Error("expected a value after concurrent puts")
	}
}
