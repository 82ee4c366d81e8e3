package nav

import (
	"math"
	"sync"
)

// PositionTracker dead-reckons the robot's position from distance travelled
// along a heading. It is diagnostic only and never feeds control decisions.
type PositionTracker struct {
	mu       sync.RWMutex
	pos      Position
	odometer float64
}

// NewPositionTracker returns a tracker at the origin.
func NewPositionTracker() *PositionTracker {
	return &PositionTracker{}
}

// Advance moves the estimate d centimeters along heading (degrees).
func (p *PositionTracker) Advance(d, heading float64) {
	rad := heading * math.Pi / 180
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos.X += d * math.Cos(rad)
	p.pos.Y += d * math.Sin(rad)
	p.odometer += math.Abs(d)
}

// Position returns the current estimate.
func (p *PositionTracker) Position() Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pos
}

// Odometer returns the total distance travelled.
func (p *PositionTracker) Odometer() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.odometer
}

// Reset moves the estimate back to the origin.
func (p *PositionTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = Position{}
	p.odometer = 0
}
