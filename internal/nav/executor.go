package nav

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

// course is the heading and pending lateral drift threaded through a session.
// Only the navigation worker mutates it; the lock serves status snapshots.
type course struct {
	mu      sync.RWMutex
	heading float64
	lateral float64
}

func (c *course) Heading() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heading
}

func (c *course) Lateral() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lateral
}

func (c *course) rotate(delta float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heading = NormalizeHeading(c.heading, delta)
	return c.heading
}

func (c *course) addLateral(d float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lateral += d
	return c.lateral
}

// takeLateral returns the pending drift and zeroes it.
func (c *course) takeLateral() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lateral
	c.lateral = 0
	return l
}

// StepExecutor runs single route steps against the hardware, honoring pause
// requests and cancellation at every poll.
type StepExecutor struct {
	cfg     Config
	hw      Hardware
	drive   *drive
	gate    *PauseGate
	course  *course
	tracker *PositionTracker
	sensors *sensorReader
	avoider *AvoidancePolicy
	notify  func(EventType, map[string]interface{})
	logger  *log.Logger
}

func newStepExecutor(cfg Config, hw Hardware, gate *PauseGate, c *course, tracker *PositionTracker,
	logger *log.Logger, notify func(EventType, map[string]interface{})) *StepExecutor {
	e := &StepExecutor{
		cfg:     cfg,
		hw:      hw,
		drive:   newDrive(hw.Actuator),
		gate:    gate,
		course:  c,
		tracker: tracker,
		sensors: newSensorReader(hw, cfg, logger, notify),
		notify:  notify,
		logger:  logger,
	}
	e.avoider = &AvoidancePolicy{exec: e}
	return e
}

// Execute runs one step. ErrUnknownAction and ErrMalformedStep leave the
// robot untouched; any other error is fatal to the session.
func (e *StepExecutor) Execute(ctx context.Context, step PathStep) error {
	if math.IsNaN(step.Value) || math.IsInf(step.Value, 0) || step.Value < 0 {
		return fmt.Errorf("%w: %s has value %v", ErrMalformedStep, step.Action, step.Value)
	}

	switch step.Action {
	case ActionForward:
		e.logger.Printf("NAV: Moving forward %.1f cm", step.Value)
		return e.Forward(ctx, step.Value)
	case ActionTurnLeft:
		e.logger.Printf("NAV: Turning left %.1f degrees", step.Value)
		return e.Turn(ctx, SideLeft, step.Value)
	case ActionTurnRight:
		e.logger.Printf("NAV: Turning right %.1f degrees", step.Value)
		return e.Turn(ctx, SideRight, step.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, step.Action)
	}
}

// Forward drives distance centimeters along the current heading, one
// increment per poll. A blocked front sensor hands control to the avoidance
// policy, after which the distance still owed is driven.
func (e *StepExecutor) Forward(ctx context.Context, distance float64) error {
	remaining := distance
	if remaining > 0 {
		if err := e.forward(e.cfg.ForwardDuty); err != nil {
			return err
		}
	}

	for remaining > 0 {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}

		front, err := e.sensors.distance(ctx, DirectionFront)
		if err != nil {
			return err
		}
		if front < e.cfg.SafeDistance {
			if err := e.stop(); err != nil {
				return err
			}
			e.logger.Printf("NAV: Obstacle %.1f cm ahead, %.1f cm of step remaining", front, remaining)
			e.notify(EventObstacleDetected, map[string]interface{}{
				"distance":  front,
				"remaining": remaining,
			})

			remaining, err = e.avoider.Avoid(ctx, remaining)
			if err != nil {
				return err
			}
			e.logger.Printf("NAV: Back on course, continuing %.1f cm", remaining)
			if err := e.forward(e.cfg.ForwardDuty); err != nil {
				return err
			}
			continue
		}

		if err := sleepCtx(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
		inc := math.Min(e.cfg.Increment, remaining)
		remaining -= inc
		e.tracker.Advance(inc, e.course.Heading())
	}

	return e.stop()
}

// Turn rotates by angle degrees toward side. Pending lateral drift from
// earlier bypasses is merged into the angle and cleared first.
func (e *StepExecutor) Turn(ctx context.Context, side Side, angle float64) error {
	if comp := e.course.takeLateral(); comp != 0 {
		merged := MergeCompensation(e.course.Heading(), side, angle, comp)
		e.logger.Printf("NAV: Merged lateral compensation %.1f cm, turn %.1f -> %.1f degrees", comp, angle, merged)
		e.notify(EventCompensationMerged, map[string]interface{}{
			"compensation": comp,
			"requested":    angle,
			"executed":     merged,
		})
		angle = merged
	}
	return e.rotate(ctx, side, angle)
}

// rotate is the turn primitive: steer, drive until the heading sensor has
// moved by angle, stop, re-center. It never touches lateral drift.
func (e *StepExecutor) rotate(ctx context.Context, side Side, angle float64) error {
	if angle <= 0 {
		return nil
	}

	if err := e.hw.Actuator.Turn(side, e.cfg.SteerAngle); err != nil {
		return fmt.Errorf("actuator turn: %w", err)
	}
	if err := sleepCtx(ctx, e.cfg.SteerSettle); err != nil {
		return err
	}

	// Zero the yaw per turn so integration drift from earlier steps does not carry over.
	if err := e.hw.Heading.Reset(); err != nil {
		return fmt.Errorf("heading reset: %w", err)
	}
	start, err := e.startAngle(ctx)
	if err != nil {
		return err
	}
	if err := e.forward(e.cfg.TurnDuty); err != nil {
		return err
	}

	for {
		if err := e.checkpoint(ctx); err != nil {
			return err
		}
		current, ok, err := e.sensors.angle(ctx)
		if err != nil {
			return err
		}
		if ok && math.Abs(current-start) >= angle {
			break
		}
		if err := sleepCtx(ctx, e.cfg.TurnPollInterval); err != nil {
			return err
		}
	}

	if err := e.stop(); err != nil {
		return err
	}
	if err := e.hw.Actuator.Center(); err != nil {
		return fmt.Errorf("actuator center: %w", err)
	}

	heading := e.course.rotate(turnDelta(side, angle))
	e.logger.Printf("NAV: %s turn of %.1f degrees completed, heading %.1f", side, angle, heading)
	return nil
}

// startAngle polls until the heading sensor produces a reading.
func (e *StepExecutor) startAngle(ctx context.Context) (float64, error) {
	for {
		if err := e.checkpoint(ctx); err != nil {
			return 0, err
		}
		yaw, ok, err := e.sensors.angle(ctx)
		if err != nil || ok {
			return yaw, err
		}
		if err := sleepCtx(ctx, e.cfg.TurnPollInterval); err != nil {
			return 0, err
		}
	}
}

// checkpoint is called once per poll: it observes cancellation and blocks
// while the session is paused.
func (e *StepExecutor) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.gate.AwaitIfPaused(ctx, e.drive)
}

func (e *StepExecutor) forward(duty int) error {
	if err := e.drive.forward(duty); err != nil {
		return fmt.Errorf("actuator forward: %w", err)
	}
	return nil
}

func (e *StepExecutor) stop() error {
	if err := e.drive.stop(); err != nil {
		return fmt.Errorf("actuator stop: %w", err)
	}
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
