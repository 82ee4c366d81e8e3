package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPresenceTTL is the TTL of a robot's individual presence key.
	DefaultPresenceTTL = 30 * time.Second

	// DefaultStaleThreshold is the age after which a report is ignored.
	DefaultStaleThreshold = 15 * time.Second
)

// Report is what a guide robot publishes about itself on every heartbeat.
type Report struct {
	DeviceID    string    `json:"device_id"`
	State       string    `json:"state"`
	Destination string    `json:"destination,omitempty"`
	SafeMode    bool      `json:"safe_mode"`
	Available   bool      `json:"available"`
	Health      Snapshot  `json:"health"`
	LastSeen    time.Time `json:"last_seen"`
}

// IsStale reports whether the report is older than maxAge.
func (r Report) IsStale(maxAge time.Duration) bool {
	return time.Since(r.LastSeen) > maxAge
}

// Registry keeps the latest report of every guide robot in a Redis hash,
// so the Brain can pick an available robot for a visitor.
type Registry struct {
	rdb            redis.Cmdable
	deviceID       string
	hashKey        string
	staleThreshold time.Duration
}

// NewRegistry creates a registry under "<prefix>:guide:robots".
func NewRegistry(rdb redis.Cmdable, prefix, deviceID string) *Registry {
	return &Registry{
		rdb:            rdb,
		deviceID:       deviceID,
		hashKey:        fmt.Sprintf("%s:guide:robots", prefix),
		staleThreshold: DefaultStaleThreshold,
	}
}

// Publish stores the report in the hash and in a presence key with a TTL.
func (r *Registry) Publish(ctx context.Context, report Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.hashKey, r.deviceID, string(data))
	pipe.SetEx(ctx, r.presenceKey(r.deviceID), string(data), DefaultPresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	return nil
}

// All returns the fresh reports of every robot, sorted by device id.
// Stale entries are skipped and removed.
func (r *Registry) All(ctx context.Context) ([]Report, error) {
	entries, err := r.rdb.HGetAll(ctx, r.hashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read robot registry: %w", err)
	}

	reports := make([]Report, 0, len(entries))
	var stale []string
	for id, data := range entries {
		var rep Report
		if err := json.Unmarshal([]byte(data), &rep); err != nil {
			log.Printf("WARN: Failed to unmarshal report for robot %s: %v", id, err)
			continue
		}
		if rep.IsStale(r.staleThreshold) {
			stale = append(stale, id)
			continue
		}
		reports = append(reports, rep)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].DeviceID < reports[j].DeviceID })

	if len(stale) > 0 {
		if err := r.rdb.HDel(ctx, r.hashKey, stale...).Err(); err != nil {
			log.Printf("WARN: Failed to clean up stale robots %v: %v", stale, err)
		}
	}
	return reports, nil
}

// Get returns the fresh report of one robot, or nil if unknown or stale.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Report, error) {
	data, err := r.rdb.HGet(ctx, r.hashKey, deviceID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report for robot %s: %w", deviceID, err)
	}

	var rep Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report for robot %s: %w", deviceID, err)
	}
	if rep.IsStale(r.staleThreshold) {
		return nil, nil
	}
	return &rep, nil
}

// Remove deletes this robot's entries. Called during graceful shutdown.
func (r *Registry) Remove(ctx context.Context) error {
	pipe := r.rdb.Pipeline()
	pipe.HDel(ctx, r.hashKey, r.deviceID)
	pipe.Del(ctx, r.presenceKey(r.deviceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove robot %s: %w", r.deviceID, err)
	}
	log.Printf("INFO: Removed robot %s from registry", r.deviceID)
	return nil
}

func (r *Registry) presenceKey(deviceID string) string {
	return fmt.Sprintf("%s:%s", r.hashKey, deviceID)
}
