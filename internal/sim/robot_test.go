package sim

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/orion/guide/internal/nav"
)

func newQuietRobot(cfg Config) *Robot {
	r := NewRobot(cfg)
	r.SetLogger(log.New(io.Discard, "", 0))
	return r
}

func TestRobot_DrivesStraight(t *testing.T) {
	r := newQuietRobot(DefaultConfig())

	require.NoError(t, r.Forward(30))
	r.Step(500 * time.Millisecond)

	p := r.Pose()
	assert.InDelta(t, 50, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)

	require.NoError(t, r.Backward(60))
	r.Step(100 * time.Millisecond)
	assert.InDelta(t, 30, r.Pose().X, 1e-9)

	require.NoError(t, r.Stop())
	r.Step(time.Second)
	assert.InDelta(t, 30, r.Pose().X, 1e-9)
	assert.False(t, r.Moving())
}

func TestRobot_RejectsBadDuty(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	assert.Error(t, r.Forward(101))
	assert.Error(t, r.Backward(-1))
}

func TestRobot_SteeredDrivePivots(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	require.NoError(t, r.Start(50))

	// 360 deg/s * 50% duty * 45/90 = 90 deg/s
	require.NoError(t, r.Turn(nav.SideLeft, 45))
	require.NoError(t, r.Forward(50))
	r.Step(time.Second)

	yaw, err := r.Angle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 90, yaw, 1e-9)
	assert.InDelta(t, 0, r.Pose().X, 1e-9)

	require.NoError(t, r.Turn(nav.SideRight, 45))
	r.Step(500 * time.Millisecond)
	yaw, _ = r.Angle(context.Background())
	assert.InDelta(t, 45, yaw, 1e-9)

	require.NoError(t, r.Center())
	r.Step(100 * time.Millisecond)
	p := r.Pose()
	assert.InDelta(t, 45, p.Heading, 1e-9)
	assert.Greater(t, p.X, 0.0)
	assert.Greater(t, p.Y, 0.0)
}

func TestRobot_SteerAngleIsClamped(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	require.NoError(t, r.Turn(nav.SideLeft, 400))
	require.NoError(t, r.Forward(100))
	r.Step(100 * time.Millisecond)
	assert.InDelta(t, 36, r.Pose().Heading, 1e-9)
}

func TestRobot_AngleRequiresStartAndHonoursReset(t *testing.T) {
	r := newQuietRobot(DefaultConfig())

	_, err := r.Angle(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, r.Start(50))
	require.NoError(t, r.Turn(nav.SideRight, 90))
	require.NoError(t, r.Forward(100))
	r.Step(100 * time.Millisecond)

	yaw, err := r.Angle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -36, yaw, 1e-9)

	require.NoError(t, r.Reset())
	yaw, _ = r.Angle(context.Background())
	assert.InDelta(t, 0, yaw, 1e-9)
}

func TestRobot_RangeRays(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	r.AddObstacle(Circle{X: 50, Y: 0, R: 10})
	r.AddObstacle(Circle{X: 0, Y: 30, R: 5})
	ctx := context.Background()

	front, err := r.Distance(ctx, nav.DirectionFront)
	require.NoError(t, err)
	assert.InDelta(t, 40, front, 1e-9)

	left, err := r.Distance(ctx, nav.DirectionLeft)
	require.NoError(t, err)
	assert.InDelta(t, 25, left, 1e-9)

	right, err := r.Distance(ctx, nav.DirectionRight)
	require.NoError(t, err)
	assert.Equal(t, nav.OutOfRange, right)
}

func TestRobot_RangeBeyondLimitIsOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRange = 100
	r := newQuietRobot(cfg)
	r.AddObstacle(Circle{X: 150, Y: 0, R: 10})

	d, err := r.Distance(context.Background(), nav.DirectionFront)
	require.NoError(t, err)
	assert.Equal(t, nav.OutOfRange, d)

	r.ClearObstacles()
	d, _ = r.Distance(context.Background(), nav.DirectionFront)
	assert.Equal(t, nav.OutOfRange, d)
}

func TestRobot_BoxRays(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	r.AddObstacle(Box{MinX: 30, MinY: -10, MaxX: 40, MaxY: 10})
	ctx := context.Background()

	front, err := r.Distance(ctx, nav.DirectionFront)
	require.NoError(t, err)
	assert.InDelta(t, 30, front, 1e-9)

	r.mu.Lock()
	r.pose.Y = 10.5
	r.mu.Unlock()
	front, _ = r.Distance(ctx, nav.DirectionFront)
	assert.Equal(t, nav.OutOfRange, front)

	right, err := r.Distance(ctx, nav.DirectionRight)
	require.NoError(t, err)
	assert.Equal(t, nav.OutOfRange, right)

	r.mu.Lock()
	r.pose = Pose{X: 35, Y: 20, Heading: 0}
	r.mu.Unlock()
	right, _ = r.Distance(ctx, nav.DirectionRight)
	assert.InDelta(t, 10, right, 1e-9)
}

func TestRobot_CancelledRead(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Distance(ctx, nav.DirectionFront)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRobot_CollisionStopsTheBase(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	r.AddObstacle(Circle{X: 20, Y: 0, R: 5})

	require.NoError(t, r.Forward(30))
	for i := 0; i < 50; i++ {
		r.Step(10 * time.Millisecond)
	}

	assert.True(t, r.Collided())
	assert.False(t, r.Moving())
	assert.InDelta(t, 10, r.Pose().X, 1e-6)
}

func TestRobot_CalibrateMatchesDeadReckoning(t *testing.T) {
	r := newQuietRobot(DefaultConfig())
	cfg := nav.DefaultConfig()
	cfg.BypassDuty = 15

	cfg = r.Calibrate(cfg)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 20*time.Millisecond, cfg.BypassPollInterval)
}

func TestRobot_NavigatesAroundObstacle(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time simulation")
	}

	simCfg := DefaultConfig()
	simCfg.TurnRate = 1800
	r := newQuietRobot(simCfg)
	// a cart across the corridor
	r.AddObstacle(Box{MinX: 50, MinY: -10, MaxX: 60, MaxY: 10})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx, time.Millisecond)

	cfg := nav.DefaultConfig()
	cfg.SteerSettle = 5 * time.Millisecond
	cfg.TurnPollInterval = time.Millisecond
	cfg = r.Calibrate(cfg)

	n, err := nav.NewNavigator(r.Hardware(), cfg, nav.WithLogger(log.New(io.Discard, "", 0)))
	require.NoError(t, err)

	_, err = n.Start(nav.Route{Destination: "ward", Steps: []nav.PathStep{
		{Action: nav.ActionForward, Value: 100},
	}})
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Second)
	defer waitCancel()
	st, err := n.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, nav.StateCompleted, st.State)

	assert.False(t, r.Collided())
	// about 11 cm to clear the cart plus 10 cm margin, left on a tie
	assert.InDelta(t, 21, st.LateralCompensation, 6)
	assert.Greater(t, st.LateralCompensation, 0.0)

	// the ground truth follows the dead reckoning loosely
	p := r.Pose()
	assert.InDelta(t, 100, p.X, 25)
	assert.Greater(t, p.Y, 15.0)
}
