package watcher

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDebouncer(t *testing.T) {
	if d := NewDebouncer(0); d.Duration() != DefaultDebounceDuration {
		t.Errorf("Duration() = %v, want %v", d.Duration(), DefaultDebounceDuration)
	}
	if d := NewDebouncer(500 * time.Millisecond); d.Duration() != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", d.Duration())
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var calls, last atomic.Int32
	d := NewDebouncer(60 * time.Millisecond)

	for i := int32(1); i <= 5; i++ {
		i := i
		d.Trigger(func() {
			calls.Add(1)
			last.Store(i)
		})
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Errorf("callback called %d times, want 1", got)
	}
	if got := last.Load(); got != 5 {
		t.Errorf("expected last callback to win, got %d", got)
	}
}

func TestDebouncerCancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30 * time.Millisecond)
	d.Trigger(func() { calls.Add(1) })
	d.Cancel()
	d.Cancel()
	time.Sleep(80 * time.Millisecond)

	if got := calls.Load(); got != 0 {
		t.Errorf("callback called %d times after cancel, want 0", got)
	}
}
