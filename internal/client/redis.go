// Package client connects the guide agent to the Brain over Redis and MQTT.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the go-redis client for the guide agent.
type RedisClient struct {
	client       *redis.Client
	streamPrefix string
	deviceID     string
}

// NewRedisClient creates a new RedisClient for the guide agent.
func NewRedisClient(addr, password, streamPrefix, deviceID string) *RedisClient {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	})

	return &RedisClient{
		client:       client,
		streamPrefix: streamPrefix,
		deviceID:     deviceID,
	}
}

// Redis exposes the underlying client to the route store, event bus and registry.
func (r *RedisClient) Redis() *redis.Client {
	return r.client
}

// Connect establishes connection to Redis with a timeout.
func (r *RedisClient) Connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := r.client.Ping(connectCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("INFO: Connected to Redis")
	return nil
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	log.Printf("INFO: Closing Redis connection...")
	return r.client.Close()
}

// Ping checks the Redis connection.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// TelemetryStream is the stream heartbeats are appended to.
func (r *RedisClient) TelemetryStream() string {
	return fmt.Sprintf("%s:guide:telemetry", r.streamPrefix)
}

// CommandStream is the stream the Brain writes this device's commands to.
func (r *RedisClient) CommandStream() string {
	return fmt.Sprintf("%s:guide:commands:%s", r.streamPrefix, r.deviceID)
}

// PublishTelemetry appends a telemetry message to the telemetry stream.
func (r *RedisClient) PublishTelemetry(ctx context.Context, telemetry interface{}) error {
	data, err := json.Marshal(telemetry)
	if err != nil {
		return fmt.Errorf("failed to marshal telemetry: %w", err)
	}

	_, err = r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.TelemetryStream(),
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"device_id": r.deviceID,
			"data":      string(data),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish telemetry: %w", err)
	}

	return nil
}

// SubscribeCommands reads the command stream through a consumer group and
// calls handler with each command's JSON. Entries carrying a "data" field are
// passed through as is; otherwise the entry's fields are encoded as an object.
// Every entry is acknowledged, handled or not. Blocks until ctx is cancelled.
func (r *RedisClient) SubscribeCommands(ctx context.Context, handler func(payload []byte) error) error {
	streamName := r.CommandStream()
	groupName := fmt.Sprintf("guide-%s", r.deviceID)
	consumerName := fmt.Sprintf("guide-%s-consumer", r.deviceID)

	err := r.client.XGroupCreateMkStream(ctx, streamName, groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Printf("WARN: Could not create consumer group: %v", err)
	}

	log.Printf("INFO: Subscribing to commands on stream %s", streamName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupName,
			Consumer: consumerName,
			Streams:  []string{streamName, ">"},
			Count:    1,
			Block:    1 * time.Second,
		}).Result()

		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("WARN: Error reading commands: %v", err)
			time.Sleep(1 * time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				payload, err := commandPayload(msg.Values)
				if err == nil {
					err = handler(payload)
				}
				if err != nil {
					log.Printf("ERROR: Failed to handle command %s: %v", msg.ID, err)
				}

				if err := r.client.XAck(ctx, streamName, groupName, msg.ID).Err(); err != nil {
					log.Printf("WARN: Failed to ack command %s: %v", msg.ID, err)
				}
			}
		}
	}
}

func commandPayload(values map[string]interface{}) ([]byte, error) {
	if data, ok := values["data"].(string); ok {
		return []byte(data), nil
	}
	return json.Marshal(values)
}
