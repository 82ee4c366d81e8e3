package nav

import (
	"context"
	"log"
	"sync"
)

// Drive is the motion a paused worker halts and later restores.
type Drive interface {
	// Halt stops the wheels but remembers the active motion command.
	Halt() error
	// Restore re-issues the motion command that was active before Halt.
	Restore() error
}

// PauseGate suspends the navigation worker while a pause is requested.
//
// Invariants:
//   - Pause/Resume may be called from any goroutine
//   - Resume wakes every waiter
//   - A waiter halts the drive before blocking and restores it after waking
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	wake   chan struct{} // closed on resume
	logger *log.Logger
}

// NewPauseGate creates an open gate.
func NewPauseGate(logger *log.Logger) *PauseGate {
	if logger == nil {
		logger = log.Default()
	}
	return &PauseGate{logger: logger}
}

// RequestPause closes the gate. Returns false if it was already closed.
func (g *PauseGate) RequestPause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return false
	}
	g.paused = true
	g.wake = make(chan struct{})
	return true
}

// RequestResume opens the gate and wakes all waiters. Returns false if it was not closed.
func (g *PauseGate) RequestResume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return false
	}
	g.paused = false
	close(g.wake)
	return true
}

// Paused reports whether a pause is in effect.
func (g *PauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// AwaitIfPaused blocks while the gate is closed. There is no timeout: only a
// resume or cancellation of ctx releases the wait. The drive is halted on entry
// and restored after a resume; on cancellation it is left halted.
func (g *PauseGate) AwaitIfPaused(ctx context.Context, d Drive) error {
	halted := false
	for {
		g.mu.Lock()
		if !g.paused {
			g.mu.Unlock()
			break
		}
		wake := g.wake
		g.mu.Unlock()

		if !halted {
			if err := d.Halt(); err != nil {
				return err
			}
			halted = true
			g.logger.Printf("NAV: Motor stopped, navigation is paused")
		}

		select {
		case <-wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !halted {
		return nil
	}
	g.logger.Printf("NAV: Navigation resumed, continuing")
	return d.Restore()
}
