// Package events publishes navigation events and status snapshots to Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/orion/guide/internal/contract"
	"github.com/yourusername/orion/guide/internal/nav"
)

const publishTimeout = 2 * time.Second

// Bus publishes contract-validated messages to Redis Streams.
//
// Invariants:
//   - No message reaches Redis without passing its contract
//   - OnEvent never blocks the navigation worker; a full queue drops the event
//   - Streams are bounded via approximate maxlen trimming
type Bus struct {
	rdb       redis.Cmdable
	validator *contract.Validator
	prefix    string
	deviceID  string
	maxLen    int64
	queue     chan nav.Event
	dropped   atomic.Int64
	logger    *log.Logger
}

// NewBus creates a bus for deviceID. buffer bounds the number of navigation
// events waiting to be published.
func NewBus(rdb redis.Cmdable, v *contract.Validator, prefix, deviceID string, maxLen int64, buffer int) *Bus {
	return &Bus{
		rdb:       rdb,
		validator: v,
		prefix:    prefix,
		deviceID:  deviceID,
		maxLen:    maxLen,
		queue:     make(chan nav.Event, buffer),
		logger:    log.Default(),
	}
}

// StreamName returns the Redis stream for a contract type.
//
// Example: "nav_event" -> "orion:guide:events", "status" -> "orion:guide:status"
func (b *Bus) StreamName(contractType string) string {
	switch contractType {
	case contract.NavEvent:
		return fmt.Sprintf("%s:guide:events", b.prefix)
	default:
		return fmt.Sprintf("%s:guide:%s", b.prefix, contractType)
	}
}

// Publish validates message against its contract and appends it to the
// contract's stream. It returns the Redis message id.
func (b *Bus) Publish(ctx context.Context, message map[string]interface{}, contractType string) (string, error) {
	if err := b.validator.Validate(message, contractType); err != nil {
		b.logger.Printf("ERROR: Contract validation failed for %s: %v", contractType, err)
		return "", fmt.Errorf("contract validation failed: %w", err)
	}

	stream := b.StreamName(contractType)
	payload, err := json.Marshal(message)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"device_id": b.deviceID,
			"data":      string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	return id, nil
}

// OnEvent implements nav.Observer. The event is queued for Run.
func (b *Bus) OnEvent(e nav.Event) {
	select {
	case b.queue <- e:
	default:
		n := b.dropped.Add(1)
		b.logger.Printf("WARN: Event queue full, dropped %s event (%d dropped so far)", e.Type, n)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run publishes queued events until ctx is cancelled, then flushes what is
// left in the queue. Each publish has its own deadline so events queued
// before shutdown still reach Redis.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case e := <-b.queue:
			b.publishEvent(e)
		case <-ctx.Done():
			b.flush()
			return
		}
	}
}

func (b *Bus) flush() {
	for {
		select {
		case e := <-b.queue:
			b.publishEvent(e)
		default:
			return
		}
	}
}

func (b *Bus) publishEvent(e nav.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := b.Publish(ctx, Message(b.deviceID, e), contract.NavEvent); err != nil {
		b.logger.Printf("WARN: Failed to publish %s event: %v", e.Type, err)
	}
}

// Recent returns up to n of the latest messages of a contract stream, newest first.
func (b *Bus) Recent(ctx context.Context, contractType string, n int64) ([]map[string]interface{}, error) {
	stream := b.StreamName(contractType)
	msgs, err := b.rdb.XRevRangeN(ctx, stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", stream, err)
	}

	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, ok := m.Values["data"].(string)
		if !ok {
			b.logger.Printf("WARN: Message %s missing 'data' field", m.ID)
			continue
		}
		var msg map[string]interface{}
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			b.logger.Printf("ERROR: Failed to unmarshal message %s: %v", m.ID, err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Message converts a navigation event into a nav_event contract message.
func Message(deviceID string, e nav.Event) map[string]interface{} {
	data := e.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	return map[string]interface{}{
		"version":     "1.0",
		"event_id":    uuid.New().String(),
		"timestamp":   ts.Format(time.RFC3339Nano),
		"source":      fmt.Sprintf("orion-guide-%s", deviceID),
		"device_id":   deviceID,
		"session_id":  e.SessionID,
		"event_type":  string(e.Type),
		"destination": e.Destination,
		"step_index":  e.StepIndex,
		"heading":     e.Heading,
		"position": map[string]interface{}{
			"x": e.Position.X,
			"y": e.Position.Y,
		},
		"data": data,
	}
}
