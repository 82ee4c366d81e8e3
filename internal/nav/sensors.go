package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// sensorReader bounds every sensor read by a timeout and turns timeouts into
// "no obstacle" / "no progress" readings, warning when they persist.
type sensorReader struct {
	hw          Hardware
	timeout     time.Duration
	warnAfter   int
	logger      *log.Logger
	notify      func(EventType, map[string]interface{})
	rangeMiss   map[Direction]int
	headingMiss int
}

func newSensorReader(hw Hardware, cfg Config, logger *log.Logger, notify func(EventType, map[string]interface{})) *sensorReader {
	return &sensorReader{
		hw:        hw,
		timeout:   cfg.SensorTimeout,
		warnAfter: cfg.TimeoutWarnAfter,
		logger:    logger,
		notify:    notify,
		rangeMiss: make(map[Direction]int),
	}
}

type reading struct {
	value float64
	err   error
}

// bounded runs read with a deadline. A sensor that ignores its context is
// abandoned when the deadline passes.
func (r *sensorReader) bounded(ctx context.Context, read func(context.Context) (float64, error)) (float64, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := make(chan reading, 1)
	go func() {
		v, err := read(readCtx)
		result <- reading{v, err}
	}()

	select {
	case res := <-result:
		return res.value, res.err
	case <-readCtx.Done():
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, ErrSensorTimeout
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrSensorTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// distance returns the clearance in dir, or +Inf when the sensor timed out or
// reported no echo.
func (r *sensorReader) distance(ctx context.Context, dir Direction) (float64, error) {
	d, err := r.bounded(ctx, func(c context.Context) (float64, error) {
		return r.hw.Range.Distance(c, dir)
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if !isTimeout(err) {
			return 0, fmt.Errorf("%s range sensor: %w", dir, err)
		}
		d = OutOfRange
	}

	if d < 0 || math.IsNaN(d) {
		r.rangeMiss[dir]++
		r.missed(dir.String()+" range", r.rangeMiss[dir])
		return math.Inf(1), nil
	}
	r.rangeMiss[dir] = 0
	return d, nil
}

// angle returns the current yaw; ok is false when the sensor timed out.
func (r *sensorReader) angle(ctx context.Context) (yaw float64, ok bool, err error) {
	yaw, err = r.bounded(ctx, r.hw.Heading.Angle)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		if !isTimeout(err) {
			return 0, false, fmt.Errorf("heading sensor: %w", err)
		}
		r.headingMiss++
		r.missed("heading", r.headingMiss)
		return 0, false, nil
	}
	r.headingMiss = 0
	return yaw, true, nil
}

func (r *sensorReader) missed(sensor string, consecutive int) {
	if r.warnAfter <= 0 || consecutive != r.warnAfter {
		return
	}
	r.logger.Printf("WARN: %s sensor timed out %d times in a row", sensor, consecutive)
	r.notify(EventSensorWarning, map[string]interface{}{
		"sensor":      sensor,
		"consecutive": consecutive,
	})
}
