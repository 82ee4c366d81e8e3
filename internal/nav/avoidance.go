package nav

import (
	"context"
	"fmt"
	"math"
)

// AvoidancePolicy bypasses an obstacle that blocks a forward step.
//
// The robot turns 90 degrees toward the side with more clearance, slides along
// the obstacle until the sensor facing it reads clear, adds the extra clearance
// margin, and turns back. The sideways distance is accumulated as lateral
// compensation (positive for left bypasses) for the next scripted turn.
type AvoidancePolicy struct {
	exec *StepExecutor
}

// Avoid performs one bypass and returns the distance still owed by the
// interrupted forward step, which is always pending unchanged.
func (p *AvoidancePolicy) Avoid(ctx context.Context, pending float64) (float64, error) {
	e := p.exec
	cfg := e.cfg

	left, err := e.sensors.distance(ctx, DirectionLeft)
	if err != nil {
		return 0, err
	}
	right, err := e.sensors.distance(ctx, DirectionRight)
	if err != nil {
		return 0, err
	}
	side := chooseSide(left, right)
	e.logger.Printf("NAV: Bypassing on the %s (left %.1f cm, right %.1f cm)", side, left, right)

	if err := e.rotate(ctx, side, 90); err != nil {
		return 0, err
	}

	// The sensor on the far side faces the obstacle while sliding past it.
	watch := sensorFor(side.Opposite())
	lateral := 0.0
	for {
		if err := e.checkpoint(ctx); err != nil {
			return 0, err
		}
		clearance, err := e.sensors.distance(ctx, watch)
		if err != nil {
			return 0, err
		}
		if clearance >= cfg.SafeDistance {
			break
		}
		if cfg.MaxBypassTravel > 0 && lateral >= cfg.MaxBypassTravel {
			if err := e.stop(); err != nil {
				e.logger.Printf("ERROR: Failed to stop actuator: %v", err)
			}
			return 0, fmt.Errorf("%w after %.1f cm", ErrBypassExhausted, lateral)
		}
		if err := p.slide(ctx, cfg.Increment); err != nil {
			return 0, err
		}
		lateral += cfg.Increment
	}

	for margin := cfg.ExtraClearance; margin > 0; margin -= cfg.Increment {
		if err := e.checkpoint(ctx); err != nil {
			return 0, err
		}
		if err := p.slide(ctx, math.Min(cfg.Increment, margin)); err != nil {
			return 0, err
		}
	}
	lateral += cfg.ExtraClearance
	if err := e.stop(); err != nil {
		return 0, err
	}

	signed := lateral
	if side == SideRight {
		signed = -lateral
	}
	total := e.course.addLateral(signed)
	e.logger.Printf("NAV: Side clear after %.1f cm, lateral compensation now %.1f cm", lateral, total)

	if err := e.rotate(ctx, side.Opposite(), 90); err != nil {
		return 0, err
	}

	e.notify(EventBypassCompleted, map[string]interface{}{
		"side":         side.String(),
		"lateral":      signed,
		"compensation": total,
		"remaining":    pending,
	})
	return pending, nil
}

// slide advances d centimeters at bypass speed.
func (p *AvoidancePolicy) slide(ctx context.Context, d float64) error {
	e := p.exec
	if err := e.forward(e.cfg.BypassDuty); err != nil {
		return err
	}
	if err := sleepCtx(ctx, e.cfg.BypassPollInterval); err != nil {
		return err
	}
	e.tracker.Advance(d, e.course.Heading())
	return nil
}

// chooseSide picks the side with more clearance, left on a tie.
func chooseSide(left, right float64) Side {
	if left >= right {
		return SideLeft
	}
	return SideRight
}
