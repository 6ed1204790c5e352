package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore records recently handled notification keys with a TTL so
// redundant provider re-deliveries can be short-circuited cheaply.
type DedupStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewDedupStore(client *redis.Client, ttl time.Duration) *DedupStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupStore{client: client, ttl: ttl}
}

func (d *DedupStore) key(k string) string {
	return fmt.Sprintf("notif:seen:%s", k)
}

// Seen reports whether the key was recorded within the dedup window.
func (d *DedupStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// Mark records the key for the dedup window.
func (d *DedupStore) Mark(ctx context.Context, key string) error {
	if err := d.client.Set(ctx, d.key(key), "1", d.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}
