// Package sim is a 2-D simulation of the guide robot: a differential drive
// base with a steering servo, a yaw sensor and three ultrasonic rangers.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/yourusername/orion/guide/internal/nav"
)

// ErrNotStarted is returned by Angle before the heading sensor was started.
var ErrNotStarted = errors.New("heading sensor not started")

// Config describes the simulated robot.
type Config struct {
	// SpeedAtDuty30 is the straight-line speed (cm/s) at 30% duty; speed is
	// proportional to duty.
	SpeedAtDuty30 float64

	// TurnRate is the yaw rate (deg/s) at 100% duty with the servo fully
	// deflected (90 degrees); it scales linearly with both.
	TurnRate float64

	// MaxRange is the ranger limit (cm); farther obstacles read as nav.OutOfRange.
	MaxRange float64

	// Radius is the robot's body radius (cm) used for collision checks.
	Radius float64
}

// DefaultConfig matches the hospital guide's drive: 1 cm per 10 ms at duty 30.
func DefaultConfig() Config {
	return Config{
		SpeedAtDuty30: 100,
		TurnRate:      360,
		MaxRange:      400,
		Radius:        5,
	}
}

// Obstacle is something the rangers can see and the base can hit.
type Obstacle interface {
	// hit returns the distance along the unit ray (dx, dy) from (x, y) to
	// the obstacle, or a negative value when the ray misses.
	hit(x, y, dx, dy float64) float64
	// clearance returns the distance from (x, y) to the obstacle's edge.
	clearance(x, y float64) float64
}

// Circle is a round obstacle such as a person or a pillar.
type Circle struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	R float64 `json:"r"`
}

func (c Circle) hit(x, y, dx, dy float64) float64 {
	// |p + t*d - c|^2 = R^2 with |d| = 1
	px, py := x-c.X, y-c.Y
	b := px*dx + py*dy
	disc := b*b - (px*px + py*py - c.R*c.R)
	if disc < 0 {
		return -1
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t >= 0 {
		return t
	}
	return -b + sq
}

func (c Circle) clearance(x, y float64) float64 {
	return math.Hypot(x-c.X, y-c.Y) - c.R
}

// Box is an axis-aligned rectangular obstacle such as a bed or a cart.
type Box struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

func (b Box) hit(x, y, dx, dy float64) float64 {
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for _, slab := range [2][4]float64{{x, dx, b.MinX, b.MaxX}, {y, dy, b.MinY, b.MaxY}} {
		o, d, lo, hi := slab[0], slab[1], slab[2], slab[3]
		if math.Abs(d) < 1e-12 {
			if o < lo || o > hi {
				return -1
			}
			continue
		}
		t1, t2 := (lo-o)/d, (hi-o)/d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin, tmax = math.Max(tmin, t1), math.Min(tmax, t2)
	}
	if tmin > tmax || tmax < 0 {
		return -1
	}
	if tmin >= 0 {
		return tmin
	}
	return tmax
}

func (b Box) clearance(x, y float64) float64 {
	dx := math.Max(math.Max(b.MinX-x, 0), x-b.MaxX)
	dy := math.Max(math.Max(b.MinY-y, 0), y-b.MaxY)
	return math.Hypot(dx, dy)
}

// Pose is the simulated ground truth.
type Pose struct {
	X, Y    float64
	Heading float64 // degrees, left positive, unbounded
}

type motion int

const (
	stopped motion = iota
	forward
	backward
)

// Robot implements nav.MotionActuator, nav.HeadingSensor and nav.RangeSensor.
// Time advances through Step or Run.
type Robot struct {
	cfg    Config
	logger *log.Logger

	mu        sync.Mutex
	pose      Pose
	yawOffset float64
	motion    motion
	duty      int
	steerSide nav.Side
	steer     float64 // 0 when centered
	started   bool
	obstacles []Obstacle
	collided  bool
}

// NewRobot places a robot at the origin facing +X.
func NewRobot(cfg Config) *Robot {
	return &Robot{cfg: cfg, logger: log.Default()}
}

// SetLogger replaces the logger used for collision warnings.
func (r *Robot) SetLogger(l *log.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = l
}

// Hardware returns the robot as navigator hardware.
func (r *Robot) Hardware() nav.Hardware {
	return nav.Hardware{Actuator: r, Heading: r, Range: r}
}

// AddObstacle places an obstacle in the world.
func (r *Robot) AddObstacle(o Obstacle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obstacles = append(r.obstacles, o)
}

// ClearObstacles removes every obstacle.
func (r *Robot) ClearObstacles() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.obstacles = nil
}

// Pose returns the ground-truth pose.
func (r *Robot) Pose() Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pose
}

// Collided reports whether the robot ever drove into an obstacle.
func (r *Robot) Collided() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collided
}

// Moving reports whether the wheels are driven.
func (r *Robot) Moving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.motion != stopped
}

// Calibrate returns cfg with poll intervals matched to this robot's speed,
// so the navigator's dead reckoning (one Increment per poll) holds.
func (r *Robot) Calibrate(cfg nav.Config) nav.Config {
	cfg.PollInterval = r.timePer(cfg.Increment, cfg.ForwardDuty)
	cfg.BypassPollInterval = r.timePer(cfg.Increment, cfg.BypassDuty)
	return cfg
}

func (r *Robot) timePer(cm float64, duty int) time.Duration {
	v := r.speed(duty)
	if v <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * cm / v)
}

func (r *Robot) speed(duty int) float64 {
	return r.cfg.SpeedAtDuty30 * float64(duty) / 30
}

// Forward implements nav.MotionActuator.
func (r *Robot) Forward(duty int) error {
	return r.drive(forward, duty)
}

// Backward implements nav.MotionActuator.
func (r *Robot) Backward(duty int) error {
	return r.drive(backward, duty)
}

func (r *Robot) drive(m motion, duty int) error {
	if duty < 0 || duty > 100 {
		return fmt.Errorf("duty %d out of range 0..100", duty)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motion, r.duty = m, duty
	return nil
}

// Stop implements nav.MotionActuator.
func (r *Robot) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.motion, r.duty = stopped, 0
	return nil
}

// Turn implements nav.MotionActuator. Angles beyond nav.MaxSteerAngle are clamped.
func (r *Robot) Turn(side nav.Side, angle float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steerSide = side
	r.steer = math.Min(math.Abs(angle), nav.MaxSteerAngle)
	return nil
}

// Center implements nav.MotionActuator.
func (r *Robot) Center() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steer = 0
	return nil
}

// Start implements nav.HeadingSensor.
func (r *Robot) Start(int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	return nil
}

// Angle implements nav.HeadingSensor.
func (r *Robot) Angle(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return 0, ErrNotStarted
	}
	return r.pose.Heading - r.yawOffset, nil
}

// Reset implements nav.HeadingSensor.
func (r *Robot) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.yawOffset = r.pose.Heading
	return nil
}

// Distance implements nav.RangeSensor by casting a ray from the robot center.
func (r *Robot) Distance(ctx context.Context, dir nav.Direction) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	bearing := r.pose.Heading
	switch dir {
	case nav.DirectionLeft:
		bearing += 90
	case nav.DirectionRight:
		bearing -= 90
	}

	d := r.cast(bearing)
	if d > r.cfg.MaxRange {
		return nav.OutOfRange, nil
	}
	return d, nil
}

// cast returns the distance to the nearest obstacle along bearing, +Inf if none.
func (r *Robot) cast(bearing float64) float64 {
	rad := bearing * math.Pi / 180
	dx, dy := math.Cos(rad), math.Sin(rad)

	best := math.Inf(1)
	for _, o := range r.obstacles {
		if t := o.hit(r.pose.X, r.pose.Y, dx, dy); t >= 0 && t < best {
			best = t
		}
	}
	return best
}

// Step advances the simulation by dt. While the servo is deflected the base
// pivots in place; otherwise it drives straight along its heading.
func (r *Robot) Step(dt time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.motion == stopped || dt <= 0 {
		return
	}
	sec := dt.Seconds()
	sign := 1.0
	if r.motion == backward {
		sign = -1
	}

	if r.steer > 0 {
		rate := r.cfg.TurnRate * float64(r.duty) / 100 * r.steer / nav.MaxSteerAngle
		if r.steerSide == nav.SideRight {
			rate = -rate
		}
		r.pose.Heading += sign * rate * sec
		return
	}

	dist := sign * r.speed(r.duty) * sec
	rad := r.pose.Heading * math.Pi / 180
	nx := r.pose.X + dist*math.Cos(rad)
	ny := r.pose.Y + dist*math.Sin(rad)

	for _, o := range r.obstacles {
		if o.clearance(nx, ny) < r.cfg.Radius {
			if !r.collided {
				r.logger.Printf("WARN: SIM: Collision at (%.1f, %.1f)", nx, ny)
			}
			r.collided = true
			r.motion, r.duty = stopped, 0
			return
		}
	}
	r.pose.X, r.pose.Y = nx, ny
}

// Run steps the simulation in real time every tick until ctx is done.
func (r *Robot) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.Step(now.Sub(last))
			last = now
		}
	}
}
