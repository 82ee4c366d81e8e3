package nav

import (
	"context"
	"errors"
	"fmt"
)

// Side selects the steering direction of a turn.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

func (s Side) String() string {
	if s == SideLeft {
		return "left"
	}
	return "right"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Direction identifies one of the ranging sensors.
type Direction int

const (
	DirectionFront Direction = iota
	DirectionLeft
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionFront:
		return "front"
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// sensorFor returns the range sensor facing the given side.
func sensorFor(s Side) Direction {
	if s == SideLeft {
		return DirectionLeft
	}
	return DirectionRight
}

// MaxSteerAngle is the largest steering offset an actuator accepts; larger requests are clamped.
const MaxSteerAngle = 90.0

// OutOfRange is the distance a RangeSensor reports when no echo came back.
const OutOfRange = -1.0

// ErrSensorTimeout is returned by sensors that did not answer within their bound.
var ErrSensorTimeout = errors.New("sensor timeout")

// MotionActuator drives the wheels and the steering servo.
// All calls are side-effecting and return without waiting for the motion to finish.
type MotionActuator interface {
	Forward(duty int) error
	Backward(duty int) error
	Stop() error
	Turn(side Side, angleDeg float64) error
	Center() error
}

// HeadingSensor reports a fusion-filtered yaw in degrees.
// The angle is continuous and unbounded; left rotation increases it.
type HeadingSensor interface {
	Start(sampleRateHz int) error
	Angle(ctx context.Context) (float64, error)
	Reset() error
}

// RangeSensor reports the distance to the closest obstacle in centimeters.
// Implementations return OutOfRange or ErrSensorTimeout when no echo arrives.
type RangeSensor interface {
	Distance(ctx context.Context, dir Direction) (float64, error)
}

// Hardware bundles the collaborators the navigator drives.
type Hardware struct {
	Actuator MotionActuator
	Heading  HeadingSensor
	Range    RangeSensor
}

func (h Hardware) validate() error {
	if h.Actuator == nil {
		return errors.New("motion actuator is required")
	}
	if h.Heading == nil {
		return errors.New("heading sensor is required")
	}
	if h.Range == nil {
		return errors.New("range sensor is required")
	}
	return nil
}
