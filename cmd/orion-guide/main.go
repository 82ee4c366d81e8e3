package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/yourusername/orion/guide/internal/client"
	"github.com/yourusername/orion/guide/internal/command"
	"github.com/yourusername/orion/guide/internal/config"
	"github.com/yourusername/orion/guide/internal/contract"
	"github.com/yourusername/orion/guide/internal/events"
	"github.com/yourusername/orion/guide/internal/health"
	"github.com/yourusername/orion/guide/internal/nav"
	"github.com/yourusername/orion/guide/internal/route"
	"github.com/yourusername/orion/guide/internal/safety"
	"github.com/yourusername/orion/guide/internal/shutdown"
	"github.com/yourusername/orion/guide/internal/sim"
)

const version = "0.1.0"

// agent bundles the long-lived components shared by the goroutines below.
type agent struct {
	cfg        *config.Config
	navigator  *nav.Navigator
	dispatcher *command.Dispatcher
	validator  *contract.Validator
	interlock  *safety.Interlock
	watchdog   *safety.Watchdog
	bus        *events.Bus
	registry   *health.Registry
	collector  *health.Collector
	mqtt       *client.MQTTClient
	redis      *client.RedisClient
	startTime  time.Time
}

func main() {
	cfg := config.LoadFromFlags()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetPrefix(fmt.Sprintf("[%s] ", cfg.DeviceID))

	log.Printf("ORION Guide Agent v%s starting (device: %s)", version, cfg.DeviceID)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: Invalid configuration: %v", err)
	}

	log.Printf("Redis address: %s", cfg.RedisAddr)
	log.Printf("MQTT broker: %s", cfg.MQTTBrokerURL)
	log.Printf("Heartbeat interval: %ds", cfg.HeartbeatIntervalSec)
	log.Printf("Watchdog timeout: %ds", cfg.WatchdogTimeoutSec)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validator, err := contract.New()
	if err != nil {
		log.Fatalf("FATAL: Failed to load contracts: %v", err)
	}

	// Redis first: routes, events and the robot registry all live there
	redisClient := client.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.StreamPrefix, cfg.DeviceID)
	if err := redisClient.Connect(ctx); err != nil {
		log.Fatalf("FATAL: Failed to connect to Redis at %s: %v", cfg.RedisAddr, err)
	}
	rdb := redisClient.Redis()

	resolver := loadRoutes(ctx, cfg, route.NewRedisStore(rdb, cfg.StreamPrefix))

	// Hardware
	robot := sim.NewRobot(sim.DefaultConfig())
	if err := loadWorld(robot, cfg.SimWorld); err != nil {
		log.Fatalf("FATAL: Failed to load sim world: %v", err)
	}
	navCfg := robot.Calibrate(cfg.Nav())
	log.Printf("INFO: Simulated robot, poll intervals calibrated to %v forward / %v bypass",
		navCfg.PollInterval, navCfg.BypassPollInterval)

	a := &agent{
		cfg:       cfg,
		validator: validator,
		bus:       events.NewBus(rdb, validator, cfg.StreamPrefix, cfg.DeviceID, 10000, 256),
		registry:  health.NewRegistry(rdb, cfg.StreamPrefix, cfg.DeviceID),
		collector: health.NewCollector(200 * time.Millisecond),
		redis:     redisClient,
		startTime: time.Now(),
	}
	pusher := newStatusPusher(a.publishStatus)

	a.navigator, err = nav.NewNavigator(robot.Hardware(), navCfg,
		nav.WithObserver(a.bus),
		nav.WithObserver(pusher),
	)
	if err != nil {
		log.Fatalf("FATAL: Invalid navigation setup: %v", err)
	}

	a.interlock = safety.NewInterlock(
		func(reason string) {
			if err := a.navigator.Cancel(); err != nil && !errors.Is(err, nav.ErrInvalidTransition) {
				log.Printf("ERROR: Safe mode could not cancel navigation: %v", err)
			}
			pusher.OnEvent(nav.Event{})
		},
		func() { pusher.OnEvent(nav.Event{}) },
	)
	a.watchdog = safety.NewWatchdog(cfg.WatchdogTimeout(), func() {
		log.Println("SAFETY: Dead Man's Switch triggered!")
		a.interlock.Engage("watchdog expired")
	})
	a.dispatcher = command.NewDispatcher(a.navigator, resolver, validator, a.interlock, a.watchdog)

	a.watchdog.Reset()

	// MQTT (fail-fast if broker unreachable)
	a.mqtt = client.NewMQTTClient(cfg.MQTTBrokerURL, cfg.MQTTClientID, cfg.DeviceID)
	a.mqtt.SetOnConnectionUp(func() {
		log.Printf("INFO: Brain connection restored via MQTT")
		// Reset only: leaving safe mode needs an explicit RESUME
		a.watchdog.Reset()
	})
	a.mqtt.SetOnConnectionDown(func(err error) {
		log.Printf("WARN: Brain connection lost via MQTT: %v - watchdog active", err)
	})
	if err := a.mqtt.Connect(ctx); err != nil {
		log.Fatalf("FATAL: Failed to connect to MQTT broker at %s: %v", cfg.MQTTBrokerURL, err)
	}
	log.Printf("INFO: Connected to MQTT broker at %s", cfg.MQTTBrokerURL)
	a.watchdog.Reset()

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: a.routes(),
	}
	go func() {
		log.Printf("INFO: HTTP endpoints listening on :%s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("ERROR: HTTP server failed: %v", err)
		}
	}()

	// Background goroutines. The event bus gets its own context so it can
	// flush the events of the final cancellation.
	var wg sync.WaitGroup
	bgCtx, bgCancel := context.WithCancel(context.Background())
	busCtx, busCancel := context.WithCancel(context.Background())

	spawn := func(fn func(context.Context), c context.Context) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(c)
		}()
	}
	var busWG sync.WaitGroup
	busWG.Add(1)
	go func() {
		defer busWG.Done()
		a.bus.Run(busCtx)
	}()
	spawn(func(c context.Context) { robot.Run(c, time.Duration(cfg.SimTickMs)*time.Millisecond) }, bgCtx)
	spawn(pusher.run, bgCtx)
	spawn(a.runHeartbeat, bgCtx)
	spawn(a.handleCommands, bgCtx)

	coord := shutdown.NewCoordinator(shutdown.DefaultTimeout, nil)
	coord.Add("navigation", func(context.Context) error {
		a.watchdog.Stop()
		if st := a.navigator.State(); st == nav.StateRunning || st == nav.StatePaused {
			return a.navigator.Cancel()
		}
		return nil
	})
	coord.Add("background", func(c context.Context) error {
		bgCancel()
		return waitGroup(c, &wg)
	})
	coord.Add("event bus", func(c context.Context) error {
		busCancel()
		if err := waitGroup(c, &busWG); err != nil {
			return err
		}
		if n := a.bus.Dropped(); n > 0 {
			log.Printf("WARN: %d navigation events were dropped", n)
		}
		return nil
	})
	coord.Add("http", httpServer.Shutdown)
	coord.Add("registry", a.registry.Remove)
	coord.Add("mqtt", a.mqtt.Close)
	coord.Add("redis", func(context.Context) error { return redisClient.Close() })

	if err := coord.WaitForShutdown(ctx); err != nil {
		log.Printf("ERROR: Shutdown incomplete: %v", err)
		os.Exit(1)
	}
	log.Printf("INFO: ORION Guide Agent stopped cleanly")
}

// loadRoutes builds the route resolver: routes published by the Brain in
// Redis take precedence over the local route book.
func loadRoutes(ctx context.Context, cfg *config.Config, store *route.RedisStore) route.Resolver {
	chain := route.Chain{store}
	if cfg.RoutesFile == "" {
		return chain
	}

	book, err := route.LoadBook(cfg.RoutesFile)
	if err != nil {
		log.Printf("WARN: Route book unavailable, using Redis routes only: %v", err)
		return chain
	}
	log.Printf("INFO: Loaded %d destinations from %s", len(book.Destinations()), cfg.RoutesFile)

	if cfg.ImportRoutes {
		n, err := store.Import(ctx, book)
		if err != nil {
			log.Printf("WARN: Failed to import routes into %s: %v", store.Key(), err)
		} else {
			log.Printf("INFO: Imported %d routes into %s", n, store.Key())
		}
	}
	return append(chain, book)
}

// waitGroup waits for wg or until ctx is done.
// loadWorld places the obstacles of the layout file at path, if any.
func loadWorld(robot *sim.Robot, path string) error {
	if path == "" {
		return nil
	}
	w, err := sim.LoadWorld(path)
	if err != nil {
		return err
	}
	robot.SetWorld(w)
	return nil
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleCommands feeds commands from MQTT and from the Redis command stream
// to the dispatcher one at a time, and publishes each reply.
func (a *agent) handleCommands(ctx context.Context) {
	queue := make(chan []byte, 32)
	enqueue := func(payload []byte) error {
		select {
		case queue <- payload:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := a.mqtt.SubscribeCommands(ctx, func(topic string, payload []byte) {
		log.Printf("INFO: Received command on topic %s", topic)
		if err := enqueue(payload); err != nil {
			log.Printf("WARN: Dropped command from %s: %v", topic, err)
		}
	})
	if err != nil {
		log.Printf("ERROR: Failed to subscribe to commands: %v", err)
	}

	go func() {
		if err := a.redis.SubscribeCommands(ctx, enqueue); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("ERROR: Redis command stream stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Printf("INFO: Command handler stopped")
			return
		case payload := <-queue:
			reply := a.dispatcher.HandleJSON(ctx, payload)
			if err := a.mqtt.PublishReply(ctx, reply); err != nil {
				log.Printf("WARN: Failed to publish command reply: %v", err)
			}
			a.publishStatus(ctx)
		}
	}
}

// publishStatus pushes the current status on MQTT.
func (a *agent) publishStatus(ctx context.Context) {
	msg := a.statusMessage(nil)
	if err := a.validator.Validate(msg, contract.Status); err != nil {
		log.Printf("ERROR: Status message rejected: %v", err)
		return
	}
	if err := a.mqtt.PublishStatus(ctx, msg); err != nil {
		log.Printf("WARN: Failed to publish status via MQTT: %v", err)
	}
}

func (a *agent) statusMessage(snap *health.Snapshot) map[string]interface{} {
	return statusMessage(a.cfg.DeviceID, a.navigator.Status(), a.interlock.Engaged(), a.watchdog.RemainingMs(), snap)
}

// runHeartbeat publishes periodic health messages on MQTT, on the telemetry
// stream and in the robot registry.
func (a *agent) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("INFO: Heartbeat publisher stopped")
			return
		case <-ticker.C:
			a.heartbeat(ctx)
		}
	}
}

func (a *agent) heartbeat(ctx context.Context) {
	snap := a.collector.Collect(ctx)
	if !snap.IsHealthy() {
		log.Printf("WARN: Robot unhealthy: cpu %.0f%%, ram %.0f%%, %.0f°C", snap.CPUPercent, snap.RAMPercent, snap.TempCelsius)
	}

	msg := a.statusMessage(&snap)
	msg["uptime_seconds"] = int(time.Since(a.startTime).Seconds())
	if err := a.validator.Validate(msg, contract.Status); err != nil {
		log.Printf("ERROR: Heartbeat rejected: %v", err)
		return
	}

	if err := a.mqtt.PublishHealth(ctx, msg); err != nil {
		log.Printf("WARN: Failed to publish health via MQTT: %v", err)
	}
	if err := a.redis.PublishTelemetry(ctx, msg); err != nil {
		log.Printf("WARN: Failed to publish telemetry: %v", err)
	}

	st := a.navigator.Status()
	report := health.Report{
		DeviceID:    a.cfg.DeviceID,
		State:       st.State.String(),
		Destination: st.Destination,
		SafeMode:    a.interlock.Engaged(),
		Available:   !a.interlock.Engaged() && st.State != nav.StateRunning && st.State != nav.StatePaused && snap.IsHealthy(),
		Health:      snap,
		LastSeen:    time.Now().UTC(),
	}
	if err := a.registry.Publish(ctx, report); err != nil {
		log.Printf("WARN: Failed to update robot registry: %v", err)
	}
}

// routes serves the HTTP health, status and history endpoints.
func (a *agent) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":             "ok",
			"service":            "orion-guide",
			"device_id":          a.cfg.DeviceID,
			"version":            version,
			"mqtt_connected":     a.mqtt.IsConnected(),
			"redis_connected":    a.redis.Ping(r.Context()) == nil,
			"safe_mode":          a.interlock.Engaged(),
			"safe_mode_reason":   a.interlock.Reason(),
			"watchdog_triggered": a.watchdog.Expired(),
			"events_dropped":     a.bus.Dropped(),
		})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.statusMessage(nil))
	})

	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		n := int64(20)
		if q := r.URL.Query().Get("n"); q != "" {
			v, err := strconv.ParseInt(q, 10, 64)
			if err != nil || v <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = v
		}
		msgs, err := a.bus.Recent(r.Context(), contract.NavEvent, n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	})

	mux.HandleFunc("/robots", func(w http.ResponseWriter, r *http.Request) {
		reports, err := a.registry.All(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, reports)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("WARN: Failed to write response: %v", err)
	}
}
