package safety

import (
	"log"
	"sync"
	"time"
)

// Watchdog is a dead man's switch on the link to the Brain.
//
// Invariants:
//   - Reset MUST be called on every command and reconnection from the Brain
//   - Expiry runs onExpire exactly once and stays expired until Clear
//   - Safe for concurrent use
type Watchdog struct {
	timeout   time.Duration
	timer     *time.Timer
	mu        sync.Mutex
	expired   bool
	stopped   bool
	onExpire  func()
	logger    *log.Logger
	startTime time.Time
}

// NewWatchdog arms a watchdog that calls onExpire after timeout without a Reset.
func NewWatchdog(timeout time.Duration, onExpire func()) *Watchdog {
	w := &Watchdog{
		timeout:   timeout,
		onExpire:  onExpire,
		logger:    log.Default(),
		startTime: time.Now(),
	}

	w.timer = time.AfterFunc(timeout, w.expire)
	w.logger.Printf("INFO: Watchdog armed with %v timeout", timeout)

	return w
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	if w.expired || w.stopped {
		w.mu.Unlock()
		return
	}
	w.expired = true
	cb := w.onExpire
	w.mu.Unlock()

	w.logger.Printf("CRITICAL: Watchdog expired, no contact with Brain for %v", w.timeout)
	if cb != nil {
		cb()
	}
}

// Reset restarts the countdown. It is a no-op once expired (expiry is
// sticky) or after Stop.
func (w *Watchdog) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.expired {
		w.logger.Printf("WARN: Watchdog reset ignored, already expired")
		return
	}
	if w.stopped {
		return
	}

	w.timer.Stop()
	w.startTime = time.Now()
	w.timer = time.AfterFunc(w.timeout, w.expire)
}

// Stop disarms the watchdog for shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stopped = true
	w.timer.Stop()
	w.logger.Printf("INFO: Watchdog stopped")
}

// Expired reports whether the watchdog has fired.
func (w *Watchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

// Clear re-arms an expired watchdog. Called on an explicit RESUME.
func (w *Watchdog) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.expired {
		return
	}

	w.expired = false
	w.stopped = false
	w.startTime = time.Now()
	w.timer = time.AfterFunc(w.timeout, w.expire)
	w.logger.Printf("WARN: Watchdog cleared and re-armed")
}

// RemainingMs returns the approximate milliseconds before expiry, 0 when
// expired or stopped.
func (w *Watchdog) RemainingMs() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.expired || w.stopped {
		return 0
	}
	remaining := w.timeout - time.Since(w.startTime)
	if remaining < 0 {
		return 0
	}
	return int(remaining.Milliseconds())
}
