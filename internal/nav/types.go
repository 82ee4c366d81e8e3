// Package nav implements the guide robot's navigation controller.
// It executes scripted routes step by step, bypasses obstacles reported by the
// range sensors and folds the sideways drift of each bypass into the next turn.
package nav

import (
	"fmt"
	"time"
)

// Action is the kind of a scripted route step.
type Action string

// Route step actions as they appear in route files.
const (
	ActionForward   Action = "moveForward"
	ActionTurnLeft  Action = "turnLeft"
	ActionTurnRight Action = "turnRight"
)

// PathStep is a single scripted motion.
// Value is centimeters for ActionForward and degrees for turns.
type PathStep struct {
	Action Action  `json:"action"`
	Value  float64 `json:"value"`
}

func (s PathStep) String() string {
	return fmt.Sprintf("%s(%.1f)", s.Action, s.Value)
}

// Route is the ordered list of steps leading to a destination.
type Route struct {
	Destination string     `json:"destination"`
	Steps       []PathStep `json:"path"`
}

// State is the lifecycle state of a navigation session.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible for the session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ReasonCancelled is the failure reason recorded for cancelled sessions.
const ReasonCancelled = "Cancelled"

// Position is the dead-reckoned location of the robot in centimeters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Status is a point-in-time snapshot of the navigator.
type Status struct {
	SessionID           string    `json:"session_id,omitempty"`
	Destination         string    `json:"destination,omitempty"`
	State               State     `json:"-"`
	StateName           string    `json:"state"`
	Reason              string    `json:"reason,omitempty"`
	StepIndex           int       `json:"step_index"`
	StepCount           int       `json:"step_count"`
	Heading             float64   `json:"heading"`
	LateralCompensation float64   `json:"lateral_compensation"`
	Position            Position  `json:"position"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}
