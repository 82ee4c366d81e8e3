package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yourusername/orion/guide/internal/nav"
)

// Config holds the configuration for the orion-guide agent.
type Config struct {
	// DeviceID is the unique identifier for this robot (e.g., "guide-1")
	DeviceID string

	// RedisAddr is the address of the Brain's Redis server
	RedisAddr string

	// RedisPassword is the Redis authentication password (empty if none)
	RedisPassword string

	// MQTTBrokerURL is the MQTT broker URL (e.g., "tcp://192.168.1.100:1883")
	MQTTBrokerURL string

	// MQTTClientID is derived from DeviceID for MQTT connections
	MQTTClientID string

	// HeartbeatIntervalSec is the interval between health heartbeats
	HeartbeatIntervalSec int

	// WatchdogTimeoutSec is the Dead Man's Switch timeout
	WatchdogTimeoutSec int

	// StreamPrefix is the prefix for Redis stream and key names
	StreamPrefix string

	// HTTPPort is the port for the health and status endpoints
	HTTPPort string

	// RoutesFile is the route book (nav.json); empty disables the file source
	RoutesFile string

	// ImportRoutes seeds the Redis route store from RoutesFile at startup
	ImportRoutes bool

	// Sim drives the simulated robot instead of real hardware
	Sim bool

	// SimTickMs is the simulation step
	SimTickMs int

	// SimWorld is the obstacle layout of the simulator; empty means open floor
	SimWorld string

	// Navigation tunables
	ForwardDuty     int
	TurnDuty        int
	SteerAngle      float64
	SafeDistance    float64
	ExtraClearance  float64
	MaxBypassTravel float64
	PollMs          int
	BypassPollMs    int
	SensorTimeoutMs int
}

// LoadFromFlags parses command-line flags and returns a Config.
func LoadFromFlags() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		// flag.ExitOnError has already reported the problem
		os.Exit(2)
	}
	return cfg
}

// Parse registers the agent flags on fs and parses args.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	def := nav.DefaultConfig()

	fs.StringVar(&cfg.DeviceID, "device-id", "", "Robot identifier (required)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Brain's Redis address")
	fs.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password (empty if none)")
	fs.StringVar(&cfg.MQTTBrokerURL, "mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	fs.IntVar(&cfg.HeartbeatIntervalSec, "heartbeat-interval", 1, "Heartbeat interval in seconds")
	fs.IntVar(&cfg.WatchdogTimeoutSec, "watchdog-timeout", 5, "Dead Man's Switch timeout in seconds")
	fs.StringVar(&cfg.StreamPrefix, "stream-prefix", "orion", "Redis stream name prefix")
	fs.StringVar(&cfg.HTTPPort, "http-port", "8082", "Health endpoint HTTP port")
	fs.StringVar(&cfg.RoutesFile, "routes", "nav.json", "Route book file (empty to use Redis only)")
	fs.BoolVar(&cfg.ImportRoutes, "import-routes", false, "Copy the route book into Redis at startup")
	fs.BoolVar(&cfg.Sim, "sim", true, "Drive the simulated robot")
	fs.IntVar(&cfg.SimTickMs, "sim-tick", 5, "Simulation step in milliseconds")
	fs.StringVar(&cfg.SimWorld, "sim-world", "", "Obstacle layout file for the simulator (empty for open floor)")

	fs.IntVar(&cfg.ForwardDuty, "forward-duty", def.ForwardDuty, "Forward motor duty cycle (0-100)")
	fs.IntVar(&cfg.TurnDuty, "turn-duty", def.TurnDuty, "Motor duty cycle while turning (0-100)")
	fs.Float64Var(&cfg.SteerAngle, "steer-angle", def.SteerAngle, "Servo deflection for turns in degrees")
	fs.Float64Var(&cfg.SafeDistance, "safe-distance", def.SafeDistance, "Front clearance that triggers avoidance (cm)")
	fs.Float64Var(&cfg.ExtraClearance, "extra-clearance", def.ExtraClearance, "Extra travel after a bypass clears (cm)")
	fs.Float64Var(&cfg.MaxBypassTravel, "max-bypass", def.MaxBypassTravel, "Longest bypass before giving up (cm, 0 = unbounded)")
	fs.IntVar(&cfg.PollMs, "poll-interval", int(def.PollInterval/time.Millisecond), "Forward poll interval in milliseconds")
	fs.IntVar(&cfg.BypassPollMs, "bypass-poll-interval", int(def.BypassPollInterval/time.Millisecond), "Bypass poll interval in milliseconds")
	fs.IntVar(&cfg.SensorTimeoutMs, "sensor-timeout", int(def.SensorTimeout/time.Millisecond), "Sensor read timeout in milliseconds")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Derive MQTT client ID from device ID
	if cfg.DeviceID != "" {
		cfg.MQTTClientID = fmt.Sprintf("orion-guide-%s", cfg.DeviceID)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("--device-id is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("--redis-addr is required")
	}
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("--mqtt-broker is required")
	}
	if c.HeartbeatIntervalSec <= 0 {
		return fmt.Errorf("--heartbeat-interval must be positive")
	}
	if c.WatchdogTimeoutSec <= 0 {
		return fmt.Errorf("--watchdog-timeout must be positive")
	}
	if c.Sim && c.SimTickMs <= 0 {
		return fmt.Errorf("--sim-tick must be positive")
	}
	if c.SimWorld != "" && !c.Sim {
		return fmt.Errorf("--sim-world needs --sim")
	}
	if c.ImportRoutes && c.RoutesFile == "" {
		return fmt.Errorf("--import-routes needs --routes")
	}
	if !c.Sim {
		return fmt.Errorf("no hardware backend available, run with --sim")
	}
	if err := c.Nav().Validate(); err != nil {
		return fmt.Errorf("navigation: %w", err)
	}
	return nil
}

// Nav returns the navigation tunables layered over the defaults.
func (c *Config) Nav() nav.Config {
	n := nav.DefaultConfig()
	n.ForwardDuty = c.ForwardDuty
	n.BypassDuty = c.ForwardDuty
	n.TurnDuty = c.TurnDuty
	n.SteerAngle = c.SteerAngle
	n.SafeDistance = c.SafeDistance
	n.ExtraClearance = c.ExtraClearance
	n.MaxBypassTravel = c.MaxBypassTravel
	n.PollInterval = time.Duration(c.PollMs) * time.Millisecond
	n.BypassPollInterval = time.Duration(c.BypassPollMs) * time.Millisecond
	n.SensorTimeout = time.Duration(c.SensorTimeoutMs) * time.Millisecond
	return n
}

// HeartbeatInterval returns the heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSec) * time.Second
}

// WatchdogTimeout returns the dead man's switch timeout.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutSec) * time.Second
}
