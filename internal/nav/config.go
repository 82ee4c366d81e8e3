package nav

import (
	"fmt"
	"time"
)

// Config holds the tunable parameters of the navigation controller.
type Config struct {
	// Obstacle handling (cm)
	SafeDistance    float64 // Front clearance below which forward motion is interrupted
	ExtraClearance  float64 // Extra travel after a bypass side clears
	MaxBypassTravel float64 // Upper bound on sideways travel per bypass, 0 = unbounded

	// Motion
	ForwardDuty int     // Motor duty (%) while driving straight
	BypassDuty  int     // Motor duty (%) while sliding past an obstacle
	TurnDuty    int     // Motor duty (%) while turning
	SteerAngle  float64 // Servo offset (degrees) used for turns
	Increment   float64 // Distance (cm) covered by one forward poll

	// Timing
	PollInterval       time.Duration // Sleep between forward polls (one Increment)
	BypassPollInterval time.Duration // Sleep between bypass polls (one Increment)
	TurnPollInterval   time.Duration // Sleep between heading polls
	SteerSettle        time.Duration // Wait after moving the servo before driving
	SensorTimeout      time.Duration // Bound on a single sensor read

	// Sensors
	HeadingSampleRate int // Heading sensor sample rate (Hz)
	TimeoutWarnAfter  int // Consecutive sensor timeouts before a warning is raised
}

// DefaultConfig returns the parameters of the hospital guide robot.
func DefaultConfig() Config {
	return Config{
		SafeDistance:    20,
		ExtraClearance:  10,
		MaxBypassTravel: 300,

		ForwardDuty: 30,
		BypassDuty:  30,
		TurnDuty:    40,
		SteerAngle:  45,
		Increment:   1,

		PollInterval:       10 * time.Millisecond,  // 1 cm per 10 ms at duty 30
		BypassPollInterval: 100 * time.Millisecond, // slow and careful alongside the obstacle
		TurnPollInterval:   20 * time.Millisecond,
		SteerSettle:        500 * time.Millisecond,
		SensorTimeout:      50 * time.Millisecond,

		HeadingSampleRate: 50,
		TimeoutWarnAfter:  25,
	}
}

// Validate reports configuration errors. They are fatal at setup time.
func (c Config) Validate() error {
	for name, duty := range map[string]int{
		"forward duty": c.ForwardDuty,
		"bypass duty":  c.BypassDuty,
		"turn duty":    c.TurnDuty,
	} {
		if duty < 0 || duty > 100 {
			return fmt.Errorf("%s must be within 0..100, got %d", name, duty)
		}
	}
	if c.SafeDistance <= 0 {
		return fmt.Errorf("safe distance must be positive")
	}
	if c.ExtraClearance < 0 {
		return fmt.Errorf("extra clearance must not be negative")
	}
	if c.MaxBypassTravel < 0 {
		return fmt.Errorf("max bypass travel must not be negative")
	}
	if c.Increment <= 0 {
		return fmt.Errorf("increment must be positive")
	}
	if c.SteerAngle <= 0 || c.SteerAngle > MaxSteerAngle {
		return fmt.Errorf("steer angle must be within (0, %.0f]", MaxSteerAngle)
	}
	if c.PollInterval < 0 || c.BypassPollInterval < 0 || c.TurnPollInterval < 0 || c.SteerSettle < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if c.SensorTimeout <= 0 {
		return fmt.Errorf("sensor timeout must be positive")
	}
	if c.HeadingSampleRate <= 0 {
		return fmt.Errorf("heading sample rate must be positive")
	}
	return nil
}
