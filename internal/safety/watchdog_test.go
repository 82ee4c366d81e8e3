package safety

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchdogExpiresAfterTimeout(t *testing.T) {
	expired := make(chan struct{})

	w := NewWatchdog(50*time.Millisecond, func() {
		close(expired)
	})
	defer w.Stop()

	select {
	case <-expired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Watchdog did not expire within expected time")
	}

	if !w.Expired() {
		t.Error("Expected Expired() to return true after timeout")
	}
}

func TestWatchdogResetPreventsExpiry(t *testing.T) {
	calls := int32(0)

	w := NewWatchdog(100*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	defer w.Stop()

	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		w.Reset()
	}
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("Expected callback not to be called, but was called %d times", n)
	}
	if w.Expired() {
		t.Error("Expected Expired() to be false while resets keep arriving")
	}
}

func TestWatchdogExpiryIsSticky(t *testing.T) {
	expired := make(chan struct{})
	calls := int32(0)

	w := NewWatchdog(50*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
		close(expired)
	})
	defer w.Stop()

	<-expired
	w.Reset()

	if !w.Expired() {
		t.Error("Expected Expired() to stay true after Reset()")
	}

	time.Sleep(100 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected callback to be called exactly once, but was called %d times", n)
	}
}

func TestWatchdogClearRearms(t *testing.T) {
	calls := int32(0)
	expired := make(chan struct{}, 2)

	w := NewWatchdog(50*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
		expired <- struct{}{}
	})
	defer w.Stop()

	<-expired
	w.Clear()
	if w.Expired() {
		t.Error("Expected Expired() to be false after Clear()")
	}

	select {
	case <-expired:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("Watchdog did not expire again after Clear()")
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("Expected callback to be called twice, but was called %d times", n)
	}
}

func TestWatchdogStopPreventsExpiry(t *testing.T) {
	calls := int32(0)

	w := NewWatchdog(30*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	w.Stop()
	time.Sleep(80 * time.Millisecond)

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("Expected no callback after Stop(), got %d", n)
	}
	if w.RemainingMs() != 0 {
		t.Errorf("Expected RemainingMs() to be 0 after Stop(), got %d", w.RemainingMs())
	}
}

func TestWatchdogConcurrentResetSafe(t *testing.T) {
	calls := int32(0)

	w := NewWatchdog(100*time.Millisecond, func() {
		atomic.AddInt32(&calls, 1)
	})
	defer w.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				w.Reset()
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("Expected callback not to be called during concurrent resets, but was called %d times", n)
	}
}

func TestWatchdogRemainingMs(t *testing.T) {
	w := NewWatchdog(200*time.Millisecond, func() {})
	defer w.Stop()

	if r := w.RemainingMs(); r < 150 || r > 200 {
		t.Errorf("Expected remaining to be ~200ms, got %dms", r)
	}

	time.Sleep(100 * time.Millisecond)
	if r := w.RemainingMs(); r < 50 || r > 150 {
		t.Errorf("Expected remaining to be ~100ms after waiting, got %dms", r)
	}

	w.Reset()
	if r := w.RemainingMs(); r < 150 || r > 200 {
		t.Errorf("Expected remaining to be ~200ms after reset, got %dms", r)
	}
}
