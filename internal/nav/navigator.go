package nav

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultCancelWait bounds how long Cancel waits for the worker to stop the robot.
const defaultCancelWait = 2 * time.Second

// Navigator owns the navigation sessions of one robot.
//
// Invariants:
//   - At most one session is running or paused at a time; Start is rejected otherwise
//   - Start is also rejected until the previous worker has exited
//   - A single worker goroutine issues all actuator commands of a session
//   - Pause, Resume and Cancel are safe from any goroutine
//   - Cancel leaves the actuator stopped and the session Failed{Cancelled}
type Navigator struct {
	hw        Hardware
	cfg       Config
	logger    *log.Logger
	observers []Observer

	cancelWait time.Duration

	mu      sync.Mutex
	state   State
	reason  string
	sess    *session
	cancel  context.CancelFunc
	done    chan struct{}
	stopReq bool
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the logger used by the navigator and its sessions.
func WithLogger(l *log.Logger) Option {
	return func(n *Navigator) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithObserver registers an event observer.
func WithObserver(o Observer) Option {
	return func(n *Navigator) {
		if o != nil {
			n.observers = append(n.observers, o)
		}
	}
}

// NewNavigator validates the configuration and hardware and returns an idle navigator.
func NewNavigator(hw Hardware, cfg Config, opts ...Option) (*Navigator, error) {
	if err := hw.validate(); err != nil {
		return nil, fmt.Errorf("invalid hardware: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid navigation config: %w", err)
	}

	n := &Navigator{
		hw:         hw,
		cfg:        cfg,
		logger:     log.Default(),
		state:      StateIdle,
		cancelWait: defaultCancelWait,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start begins navigating route in a background worker and returns the session id.
// It fails with ErrSessionActive while another session is running or paused.
func (n *Navigator) Start(route Route) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateRunning || n.state == StatePaused {
		return "", ErrSessionActive
	}
	if n.done != nil {
		select {
		case <-n.done:
		default:
			// A forced cancel left the old worker blocked in a hardware call.
			return "", fmt.Errorf("%w: previous worker still stopping", ErrSessionActive)
		}
	}
	if len(route.Steps) == 0 {
		return "", fmt.Errorf("%w: %q", ErrEmptyRoute, route.Destination)
	}
	if err := n.hw.Heading.Start(n.cfg.HeadingSampleRate); err != nil {
		return "", fmt.Errorf("heading sensor start: %w", err)
	}

	s := n.newSession(route)
	ctx, cancel := context.WithCancel(context.Background())

	n.sess = s
	n.state = StateRunning
	n.reason = ""
	n.cancel = cancel
	n.done = make(chan struct{})
	n.stopReq = false

	n.logger.Printf("NAV: Starting navigation to %q (%d steps, session %s)", route.Destination, len(route.Steps), s.id)

	// session_started is emitted by the worker so observers never run under n.mu.
	go n.run(ctx, s, n.done)
	return s.id, nil
}

// Pause suspends the running session at its next poll.
func (n *Navigator) Pause() error {
	n.mu.Lock()
	if n.state != StateRunning {
		state := n.state
		n.mu.Unlock()
		n.logger.Printf("WARN: Pause ignored in state %s", state)
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, state)
	}
	s := n.sess
	s.gate.RequestPause()
	n.state = StatePaused
	n.mu.Unlock()

	n.logger.Printf("NAV: Navigation paused")
	s.emit(EventPaused, nil)
	return nil
}

// Resume continues a paused session with the motion it had before the pause.
func (n *Navigator) Resume() error {
	n.mu.Lock()
	if n.state != StatePaused {
		state := n.state
		n.mu.Unlock()
		n.logger.Printf("WARN: Resume ignored in state %s", state)
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, state)
	}
	s := n.sess
	s.gate.RequestResume()
	n.state = StateRunning
	n.mu.Unlock()

	n.logger.Printf("NAV: Navigation resumed")
	s.emit(EventResumed, nil)
	return nil
}

// Cancel is the emergency stop. It discards the remaining steps, waits for
// the worker to stop the actuator and leaves the session Failed{Cancelled}.
// Cancelling a finished session is rejected and changes nothing.
func (n *Navigator) Cancel() error {
	n.mu.Lock()
	switch {
	case n.state.Terminal():
		state := n.state
		n.mu.Unlock()
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, state)
	case n.state == StateIdle:
		n.state = StateFailed
		n.reason = ReasonCancelled
		n.mu.Unlock()
		n.logger.Printf("SAFETY: Navigation cancelled while idle, stopping motors")
		if err := n.hw.Actuator.Stop(); err != nil {
			n.logger.Printf("ERROR: Failed to stop actuator: %v", err)
		}
		return nil
	}

	n.stopReq = true
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	n.logger.Printf("SAFETY: Navigation cancel requested")
	cancel()

	select {
	case <-done:
	case <-time.After(n.cancelWait):
		// The worker is stuck in a hardware call; stop the wheels from here.
		n.logger.Printf("ERROR: Navigation worker did not stop within %v, forcing actuator stop", n.cancelWait)
		if err := n.hw.Actuator.Stop(); err != nil {
			n.logger.Printf("ERROR: Failed to stop actuator: %v", err)
		}
		n.mu.Lock()
		s := n.sess
		if n.state.Terminal() {
			// the worker finished as the wait expired
			n.mu.Unlock()
			return nil
		}
		n.state = StateFailed
		n.reason = ReasonCancelled
		s.finish()
		n.mu.Unlock()
		s.emit(EventSessionFailed, map[string]interface{}{"reason": ReasonCancelled})
	}
	return nil
}

// Wait blocks until the current session ends or ctx is done. For failed
// sessions the error is ErrCancelled or the failure cause.
func (n *Navigator) Wait(ctx context.Context) (Status, error) {
	n.mu.Lock()
	done := n.done
	n.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return n.Status(), ctx.Err()
		}
	}

	st := n.Status()
	switch {
	case st.State != StateFailed:
		return st, nil
	case st.Reason == ReasonCancelled:
		return st, ErrCancelled
	default:
		return st, errors.New(st.Reason)
	}
}

// State returns the current lifecycle state.
func (n *Navigator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Status returns a snapshot of the navigator and its current session.
func (n *Navigator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	st := Status{
		State:     n.state,
		StateName: n.state.String(),
		Reason:    n.reason,
	}
	if s := n.sess; s != nil {
		s.fill(&st)
	}
	return st
}

func (n *Navigator) run(ctx context.Context, s *session, done chan struct{}) {
	defer close(done)

	s.emit(EventSessionStarted, map[string]interface{}{"steps": len(s.route.Steps)})
	err := s.run(ctx)

	n.mu.Lock()
	owned := n.sess == s
	n.mu.Unlock()

	// Whatever happened, the robot ends the session standing still. A worker
	// that was force-cancelled still owns the hardware until done is closed,
	// so its late commands are undone here.
	if owned {
		if stopErr := n.hw.Actuator.Stop(); stopErr != nil {
			n.logger.Printf("ERROR: Failed to stop actuator at end of session: %v", stopErr)
		}
		if err != nil {
			if centerErr := n.hw.Actuator.Center(); centerErr != nil {
				n.logger.Printf("ERROR: Failed to center steering: %v", centerErr)
			}
		}
	}

	n.mu.Lock()
	if n.sess != s || n.state.Terminal() {
		n.mu.Unlock()
		return
	}
	switch {
	case n.stopReq || errors.Is(err, context.Canceled):
		n.state = StateFailed
		n.reason = ReasonCancelled
	case err != nil:
		n.state = StateFailed
		n.reason = err.Error()
	default:
		n.state = StateCompleted
	}
	state, reason := n.state, n.reason
	s.finish()
	n.mu.Unlock()

	if state == StateCompleted {
		pending := s.course.Lateral()
		if pending != 0 {
			n.logger.Printf("WARN: Route ended with %.1f cm of lateral compensation unapplied", pending)
		}
		n.logger.Printf("NAV: Navigation to %q completed", s.route.Destination)
		s.emit(EventSessionCompleted, map[string]interface{}{"pending_compensation": pending})
		return
	}
	n.logger.Printf("NAV: Navigation to %q failed: %s", s.route.Destination, reason)
	s.emit(EventSessionFailed, map[string]interface{}{"reason": reason})
}

func (n *Navigator) newSession(route Route) *session {
	s := &session{
		id:        uuid.New().String(),
		route:     route,
		course:    &course{},
		tracker:   NewPositionTracker(),
		gate:      NewPauseGate(n.logger),
		logger:    n.logger,
		observers: n.observers,
		startedAt: time.Now().UTC(),
	}
	s.exec = newStepExecutor(n.cfg, n.hw, s.gate, s.course, s.tracker, n.logger, s.emit)
	return s
}
