package safety

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrNotEngaged is returned when releasing an interlock that is not engaged.
var ErrNotEngaged = errors.New("safety interlock not engaged")

// Interlock is the guide's safe state.
//
// When engaged:
//  1. The active navigation session is cancelled (motors stopped)
//  2. New NAVIGATE commands are refused
//  3. Status reports safe_mode=true
//
// Leaving the safe state requires an explicit RESUME from the Brain.
type Interlock struct {
	mu        sync.Mutex
	engaged   bool
	reason    string
	since     time.Time
	logger    *log.Logger
	onEngage  func(reason string)
	onRelease func()
}

// NewInterlock creates a released interlock. onEngage runs once per
// engagement and onRelease once per release; both run without the lock held
// so they may call back into the interlock.
func NewInterlock(onEngage func(reason string), onRelease func()) *Interlock {
	return &Interlock{
		logger:    log.Default(),
		onEngage:  onEngage,
		onRelease: onRelease,
	}
}

// Engage enters the safe state. Engaging an engaged interlock keeps the
// first reason and returns false.
func (i *Interlock) Engage(reason string) bool {
	i.mu.Lock()
	if i.engaged {
		i.mu.Unlock()
		return false
	}
	i.engaged = true
	i.reason = reason
	i.since = time.Now()
	cb := i.onEngage
	i.mu.Unlock()

	i.logger.Printf("SAFETY: Interlock engaged (%s), stopping navigation", reason)
	if cb != nil {
		cb(reason)
	}
	return true
}

// Release leaves the safe state.
func (i *Interlock) Release() error {
	i.mu.Lock()
	if !i.engaged {
		i.mu.Unlock()
		return ErrNotEngaged
	}
	held := time.Since(i.since)
	i.engaged = false
	i.reason = ""
	cb := i.onRelease
	i.mu.Unlock()

	i.logger.Printf("SAFETY: Interlock released after %v, navigation allowed", held.Round(time.Millisecond))
	if cb != nil {
		cb()
	}
	return nil
}

// Engaged reports whether the interlock is engaged.
func (i *Interlock) Engaged() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.engaged
}

// Reason returns why the interlock was engaged, empty when released.
func (i *Interlock) Reason() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reason
}
