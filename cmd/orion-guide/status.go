package main

import (
	"context"
	"time"

	"github.com/yourusername/orion/guide/internal/health"
	"github.com/yourusername/orion/guide/internal/nav"
)

// statusMessage builds a message following status.schema.json. snap is
// attached only to heartbeats.
func statusMessage(deviceID string, st nav.Status, safeMode bool, watchdogMs int, snap *health.Snapshot) map[string]interface{} {
	msg := map[string]interface{}{
		"version":               "1.0",
		"device_id":             deviceID,
		"timestamp":             time.Now().UTC().Format(time.RFC3339),
		"state":                 st.State.String(),
		"safe_mode":             safeMode,
		"step_index":            st.StepIndex,
		"step_count":            st.StepCount,
		"heading":               st.Heading,
		"lateral_compensation":  st.LateralCompensation,
		"watchdog_remaining_ms": watchdogMs,
		"position": map[string]interface{}{
			"x": st.Position.X,
			"y": st.Position.Y,
		},
	}
	if st.SessionID != "" {
		msg["session_id"] = st.SessionID
		msg["destination"] = st.Destination
	}
	if st.Reason != "" {
		msg["reason"] = st.Reason
	}
	if snap != nil {
		msg["health"] = map[string]interface{}{
			"cpu_percent":   snap.CPUPercent,
			"ram_percent":   snap.RAMPercent,
			"temperature_c": snap.TempCelsius,
		}
	}
	return msg
}

// statusPusher publishes the navigator status after navigation events.
// Bursts of events collapse into one publish.
type statusPusher struct {
	kick    chan struct{}
	publish func(ctx context.Context)
}

func newStatusPusher(publish func(ctx context.Context)) *statusPusher {
	return &statusPusher{kick: make(chan struct{}, 1), publish: publish}
}

// OnEvent implements nav.Observer.
func (p *statusPusher) OnEvent(nav.Event) {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *statusPusher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			p.publish(ctx)
		}
	}
}
