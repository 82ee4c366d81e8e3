package nav

import "time"

// EventType names a navigation event.
type EventType string

const (
	EventSessionStarted     EventType = "session_started"
	EventStepStarted        EventType = "step_started"
	EventStepCompleted      EventType = "step_completed"
	EventStepSkipped        EventType = "step_skipped"
	EventObstacleDetected   EventType = "obstacle_detected"
	EventBypassCompleted    EventType = "bypass_completed"
	EventCompensationMerged EventType = "compensation_merged"
	EventSensorWarning      EventType = "sensor_warning"
	EventPaused             EventType = "paused"
	EventResumed            EventType = "resumed"
	EventSessionCompleted   EventType = "session_completed"
	EventSessionFailed      EventType = "session_failed"
)

// Event describes something that happened during a navigation session.
type Event struct {
	Type        EventType
	SessionID   string
	Destination string
	StepIndex   int
	Heading     float64
	Position    Position
	Time        time.Time
	Data        map[string]interface{}
}

// Observer receives navigation events. OnEvent is called from the navigation
// worker and from control calls, so implementations must be goroutine-safe and
// must not block. Calling Navigator.Cancel from OnEvent deadlocks.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(e Event) { f(e) }
