package nav

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"
)

// fakeRobot records actuator commands and simulates the heading sensor:
// while driving with the servo turned, each Angle call moves the yaw by yawStep.
type fakeRobot struct {
	mu       sync.Mutex
	cmds     []string
	driving  bool
	steering bool
	side     Side
	yaw      float64
	yawStep  float64
	starts   int

	front func(n int) (float64, error)
	left  func(n int) (float64, error)
	right func(n int) (float64, error)
	yawFn func(n int) error // optional heading failure injection
	calls map[Direction]int
	yawN  int

	forwardErr   error
	forwardBlock chan struct{} // the next Forward waits on it
	stopErr      error
	resets       int
}

func newFakeRobot() *fakeRobot {
	open := func(int) (float64, error) { return 200, nil }
	return &fakeRobot{
		yawStep: 1,
		front:   open,
		left:    open,
		right:   open,
		calls:   make(map[Direction]int),
	}
}

func (f *fakeRobot) record(cmd string) {
	f.cmds = append(f.cmds, cmd)
}

func (f *fakeRobot) Forward(duty int) error {
	f.mu.Lock()
	block := f.forwardBlock
	f.forwardBlock = nil
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forwardErr != nil {
		return f.forwardErr
	}
	f.record(fmt.Sprintf("forward(%d)", duty))
	f.driving = true
	return nil
}

func (f *fakeRobot) Backward(duty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("backward(%d)", duty))
	f.driving = true
	return nil
}

func (f *fakeRobot) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop")
	f.driving = false
	return f.stopErr
}

func (f *fakeRobot) Turn(side Side, angle float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(fmt.Sprintf("turn(%s,%.0f)", side, angle))
	f.steering = true
	f.side = side
	return nil
}

func (f *fakeRobot) Center() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("center")
	f.steering = false
	return nil
}

func (f *fakeRobot) Start(int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeRobot) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.yaw = 0
	f.resets++
	return nil
}

func (f *fakeRobot) Angle(context.Context) (float64, error) {
	f.mu.Lock()
	n := f.yawN
	f.yawN++
	fn := f.yawFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(n); err != nil {
			return 0, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.driving && f.steering {
		if f.side == SideLeft {
			f.yaw += f.yawStep
		} else {
			f.yaw -= f.yawStep
		}
	}
	return f.yaw, nil
}

func (f *fakeRobot) Distance(_ context.Context, dir Direction) (float64, error) {
	f.mu.Lock()
	n := f.calls[dir]
	f.calls[dir]++
	var fn func(int) (float64, error)
	switch dir {
	case DirectionFront:
		fn = f.front
	case DirectionLeft:
		fn = f.left
	default:
		fn = f.right
	}
	f.mu.Unlock()
	return fn(n)
}

func (f *fakeRobot) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeRobot) lastCommand() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cmds) == 0 {
		return ""
	}
	return f.cmds[len(f.cmds)-1]
}

func (f *fakeRobot) moving() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driving
}

func (f *fakeRobot) yawCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.yawN
}

func (f *fakeRobot) resetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

func (f *fakeRobot) callCount(dir Direction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[dir]
}

func (f *fakeRobot) hardware() Hardware {
	return Hardware{Actuator: f, Heading: f, Range: f}
}

// obstacleAt blocks the front sensor on the n-th read only.
func obstacleAt(n int, distance float64) func(int) (float64, error) {
	return func(i int) (float64, error) {
		if i == n {
			return distance, nil
		}
		return 200, nil
	}
}

// sequence returns values[i] for the i-th read and the last value afterwards.
func sequence(values ...float64) func(int) (float64, error) {
	return func(i int) (float64, error) {
		if i >= len(values) {
			return values[len(values)-1], nil
		}
		return values[i], nil
	}
}

// recorder collects navigation events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) notify(t EventType, data map[string]interface{}) {
	r.OnEvent(Event{Type: t, Data: data})
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// testConfig removes all waits so routes run as fast as the fakes answer.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollInterval = 0
	cfg.BypassPollInterval = 0
	cfg.TurnPollInterval = 0
	cfg.SteerSettle = 0
	cfg.SensorTimeout = time.Second
	return cfg
}

// newTestExecutor wires a standalone executor around robot.
func newTestExecutor(robot *fakeRobot, cfg Config) (*StepExecutor, *recorder) {
	rec := &recorder{}
	logger := quietLogger()
	e := newStepExecutor(cfg, robot.hardware(), NewPauseGate(logger), &course{}, NewPositionTracker(), logger, rec.notify)
	return e, rec
}

func indexOf(cmds []string, cmd string) int {
	for i, c := range cmds {
		if c == cmd {
			return i
		}
	}
	return -1
}
