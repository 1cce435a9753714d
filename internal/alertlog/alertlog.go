// Package alertlog remembers which alerts already fired for a client on a
// given day so reruns of the same day stay quiet.
package alertlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adclassify/internal/domain"
)

// DefaultTTL keeps a day's set around long enough to cover late reruns
// across time zones.
const DefaultTTL = 48 * time.Hour

// Key names the Redis set holding one client's fired alerts for one day.
func Key(clientID string, date time.Time) string {
	return fmt.Sprintf("alerts:%s:%s", clientID, domain.Day(date).Format(domain.DateLayout))
}

func member(k domain.AlertKey) string {
	return k.EntityID + "|" + string(k.Type)
}

// RedisLog stores fired alert keys in a per-day Redis set.
type RedisLog struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLog creates a Redis-backed alert log.
func NewRedisLog(client *redis.Client, ttl time.Duration) *RedisLog {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLog{client: client, ttl: ttl}
}

// Fired returns the alerts already recorded for the client on date.
func (l *RedisLog) Fired(ctx context.Context, clientID string, date time.Time) (map[domain.AlertKey]bool, error) {
	members, err := l.client.SMembers(ctx, Key(clientID, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("alertlog fired: %w", err)
	}
	out := make(map[domain.AlertKey]bool, len(members))
	for _, m := range members {
		// Entity IDs may contain the separator; alert types never do.
		i := strings.LastIndex(m, "|")
		if i < 0 {
			continue
		}
		out[domain.AlertKey{ClientID: clientID, EntityID: m[:i], Type: domain.AlertType(m[i+1:])}] = true
	}
	return out, nil
}

// Record adds alerts to the client's set for date and refreshes its TTL.
func (l *RedisLog) Record(ctx context.Context, clientID string, date time.Time, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	key := Key(clientID, date)
	members := make([]interface{}, 0, len(alerts))
	for _, a := range alerts {
		members = append(members, member(a.DedupKey()))
	}

	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, l.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("alertlog record: %w", err)
	}
	return nil
}

// MemoryLog is an in-process alert log for single-replica and local runs.
type MemoryLog struct {
	mu    sync.Mutex
	fired map[string]map[domain.AlertKey]bool
}

// NewMemoryLog creates an empty in-memory alert log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{fired: make(map[string]map[domain.AlertKey]bool)}
}

func (l *MemoryLog) Fired(_ context.Context, clientID string, date time.Time) (map[domain.AlertKey]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.AlertKey]bool)
	for k := range l.fired[Key(clientID, date)] {
		out[k] = true
	}
	return out, nil
}

func (l *MemoryLog) Record(_ context.Context, clientID string, date time.Time, alerts []domain.Alert) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := Key(clientID, date)
	if l.fired[key] == nil {
		l.fired[key] = make(map[domain.AlertKey]bool)
	}
	for _, a := range alerts {
		l.fired[key][a.DedupKey()] = true
	}
	return nil
}
