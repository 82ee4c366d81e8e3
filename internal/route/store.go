package route

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/orion/guide/internal/nav"
)

// RedisStore keeps routes in a Redis hash so the Brain can add or change
// destinations without redeploying the robot. Field = destination, value =
// the same {"path": [...]} document used by the route book.
type RedisStore struct {
	rdb redis.Cmdable
	key string
}

// NewRedisStore creates a store under "<prefix>:guide:routes".
func NewRedisStore(rdb redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, key: fmt.Sprintf("%s:guide:routes", prefix)}
}

// Key returns the Redis hash holding the routes.
func (s *RedisStore) Key() string {
	return s.key
}

// Resolve implements Resolver.
func (s *RedisStore) Resolve(ctx context.Context, destination string) (nav.Route, error) {
	data, err := s.rdb.HGet(ctx, s.key, destination).Bytes()
	if errors.Is(err, redis.Nil) {
		return nav.Route{}, fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}
	if err != nil {
		return nav.Route{}, fmt.Errorf("failed to read route %q: %w", destination, err)
	}
	return decodeRoute(destination, data)
}

// Put stores or replaces a route.
func (s *RedisStore) Put(ctx context.Context, r nav.Route) error {
	data, err := encodeRoute(r)
	if err != nil {
		return fmt.Errorf("failed to marshal route %q: %w", r.Destination, err)
	}
	if err := s.rdb.HSet(ctx, s.key, r.Destination, data).Err(); err != nil {
		return fmt.Errorf("failed to store route %q: %w", r.Destination, err)
	}
	return nil
}

// Import copies every route of the book into the store in one round trip.
func (s *RedisStore) Import(ctx context.Context, b *Book) (int, error) {
	routes := b.Routes()
	if len(routes) == 0 {
		return 0, nil
	}

	pipe := s.rdb.TxPipeline()
	for _, r := range routes {
		data, err := encodeRoute(r)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal route %q: %w", r.Destination, err)
		}
		pipe.HSet(ctx, s.key, r.Destination, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to import routes: %w", err)
	}
	return len(routes), nil
}

// Delete removes a route. Deleting an unknown destination is not an error.
func (s *RedisStore) Delete(ctx context.Context, destination string) error {
	return s.rdb.HDel(ctx, s.key, destination).Err()
}

// Destinations returns the stored destinations, sorted.
func (s *RedisStore) Destinations(ctx context.Context) ([]string, error) {
	keys, err := s.rdb.HKeys(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}
