package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/orion/guide/internal/contract"
	"github.com/yourusername/orion/guide/internal/nav"
)

// setupTestBus creates a miniredis server and Bus for testing
func setupTestBus(t *testing.T, buffer int) (*Bus, *redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	v, err := contract.New()
	require.NoError(t, err)

	return NewBus(client, v, "orion", "guide-1", 1000, buffer), client, mr
}

func bypassEvent() nav.Event {
	return nav.Event{
		Type:        nav.EventBypassCompleted,
		SessionID:   "3f1c9a52-9d7e-4c1e-8a55-0d6c0a3b9e11",
		Destination: "radiology",
		StepIndex:   0,
		Heading:     0,
		Position:    nav.Position{X: 40, Y: 15},
		Time:        time.Date(2026, 1, 17, 12, 0, 0, 0, time.UTC),
		Data:        map[string]interface{}{"side": "left", "lateral": 15.0, "remaining": 60.0},
	}
}

func TestMessage_FollowsContract(t *testing.T) {
	v, err := contract.New()
	require.NoError(t, err)

	msg := Message("guide-1", bypassEvent())
	assert.Equal(t, "bypass_completed", msg["event_type"])
	assert.Equal(t, "orion-guide-guide-1", msg["source"])
	assert.Equal(t, "2026-01-17T12:00:00Z", msg["timestamp"])
	assert.NoError(t, v.Validate(msg, contract.NavEvent))
}

func TestMessage_NilDataBecomesEmptyObject(t *testing.T) {
	e := bypassEvent()
	e.Data = nil
	msg := Message("guide-1", e)
	assert.Equal(t, map[string]interface{}{}, msg["data"])
}

func TestPublish_ValidMessage(t *testing.T) {
	bus, client, _ := setupTestBus(t, 8)
	ctx := context.Background()

	id, err := bus.Publish(ctx, Message("guide-1", bypassEvent()), contract.NavEvent)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	messages, err := client.XRange(ctx, "orion:guide:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "guide-1", messages[0].Values["device_id"])

	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["data"].(string)), &stored))
	assert.Equal(t, "radiology", stored["destination"])
}

func TestPublish_InvalidMessageNeverReachesRedis(t *testing.T) {
	bus, client, _ := setupTestBus(t, 8)
	ctx := context.Background()

	msg := Message("guide-1", bypassEvent())
	delete(msg, "session_id")

	_, err := bus.Publish(ctx, msg, contract.NavEvent)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract validation failed")

	n, err := client.Exists(ctx, "orion:guide:events").Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublish_RedisDown(t *testing.T) {
	bus, _, mr := setupTestBus(t, 8)
	mr.Close()

	_, err := bus.Publish(context.Background(), Message("guide-1", bypassEvent()), contract.NavEvent)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "contract validation failed")
}

func TestStreamName(t *testing.T) {
	bus, _, _ := setupTestBus(t, 1)
	assert.Equal(t, "orion:guide:events", bus.StreamName(contract.NavEvent))
	assert.Equal(t, "orion:guide:status", bus.StreamName(contract.Status))
}

func TestRun_PublishesQueuedEventsInOrder(t *testing.T) {
	bus, client, _ := setupTestBus(t, 16)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		bus.Run(ctx)
		close(done)
	}()

	for _, typ := range []nav.EventType{nav.EventSessionStarted, nav.EventStepStarted, nav.EventSessionCompleted} {
		e := bypassEvent()
		e.Type = typ
		bus.OnEvent(e)
	}

	require.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), "orion:guide:events").Result()
		return err == nil && n == 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	recent, err := bus.Recent(context.Background(), contract.NavEvent, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "session_completed", recent[0]["event_type"])
	assert.Equal(t, "session_started", recent[2]["event_type"])
}

func TestRun_FlushesOnShutdown(t *testing.T) {
	bus, client, _ := setupTestBus(t, 4)
	bus.OnEvent(bypassEvent())
	bus.OnEvent(bypassEvent())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Run(ctx)

	n, err := client.XLen(context.Background(), "orion:guide:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOnEvent_FullQueueDropsWithoutBlocking(t *testing.T) {
	bus, _, _ := setupTestBus(t, 1)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.OnEvent(bypassEvent())
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("OnEvent blocked on a full queue")
	}
	assert.Equal(t, int64(4), bus.Dropped())
}
