package client

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := NewRedisClient(mr.Addr(), "", "orion", "guide-1")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisClientConnectSuccess(t *testing.T) {
	_, client := newTestRedis(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got error: %v", err)
	}
	if client.Redis() == nil {
		t.Error("Expected underlying client")
	}
}

func TestRedisClientConnectFailure(t *testing.T) {
	client := NewRedisClient("localhost:59999", "", "orion", "guide-1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Connect(ctx)
	if err == nil {
		t.Error("Expected connection to fail with invalid address")
		client.Close()
		return
	}
	if !strings.Contains(err.Error(), "failed to connect") {
		t.Errorf("Expected connection error, got %v", err)
	}
}

func TestRedisPublishTelemetryFormat(t *testing.T) {
	mr, client := newTestRedis(t)

	telemetry := map[string]interface{}{
		"state":     "RUNNING",
		"safe_mode": false,
		"health":    map[string]interface{}{"cpu_percent": 12.5},
	}
	if err := client.PublishTelemetry(context.Background(), telemetry); err != nil {
		t.Fatalf("Failed to publish telemetry: %v", err)
	}

	msgs, err := mr.Stream("orion:guide:telemetry")
	if err != nil {
		t.Fatalf("Failed to get stream: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message in stream, got %d", len(msgs))
	}

	values := make(map[string]string)
	for i := 0; i < len(msgs[0].Values)-1; i += 2 {
		values[msgs[0].Values[i]] = msgs[0].Values[i+1]
	}

	if values["device_id"] != "guide-1" {
		t.Errorf("Expected device_id 'guide-1', got %v", values["device_id"])
	}
	if _, ok := values["timestamp"]; !ok {
		t.Error("Expected 'timestamp' field in message")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(values["data"]), &parsed); err != nil {
		t.Fatalf("Failed to parse data JSON: %v", err)
	}
	if parsed["state"] != "RUNNING" {
		t.Errorf("Expected state RUNNING, got %v", parsed["state"])
	}
}

func TestRedisSubscribeCommands(t *testing.T) {
	mr, client := newTestRedis(t)

	received := make(chan map[string]interface{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- client.SubscribeCommands(ctx, func(payload []byte) error {
			var cmd map[string]interface{}
			if err := json.Unmarshal(payload, &cmd); err != nil {
				return err
			}
			received <- cmd
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)

	stream := "orion:guide:commands:guide-1"
	mr.XAdd(stream, "*", []string{"data", `{"command_type":"NAVIGATE","destination":"radiology"}`})
	mr.XAdd(stream, "*", []string{"command_type", "PAUSE", "source", "brain"})

	for _, want := range []string{"NAVIGATE", "PAUSE"} {
		select {
		case cmd := <-received:
			if cmd["command_type"] != want {
				t.Errorf("Expected command_type %s, got %v", want, cmd["command_type"])
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Error("Subscriber did not stop")
	}
}
