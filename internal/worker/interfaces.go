package worker

import (
	"context"
	"time"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/distlock"
)

// RecordSource supplies daily platform records.
type RecordSource interface {
	ListDailyRecords(ctx context.Context, clientID string, from, to time.Time) ([]domain.DailyRecord, error)
}

// ResultStore persists run outputs and serves the previous day's
// classifications.
type ResultStore interface {
	PutMetrics(ctx context.Context, metrics []domain.EntityMetrics) error
	PutClassifications(ctx context.Context, classifications []domain.EntityClassification) error
	GetClassifications(ctx context.Context, clientID string, date time.Time) ([]domain.EntityClassification, error)
}

// SnapshotArchive keeps one snapshot per client per day.
type SnapshotArchive interface {
	PutSnapshot(ctx context.Context, snap domain.ClientSnapshot) error
}

// AlertLog remembers which alerts fired today.
type AlertLog interface {
	Fired(ctx context.Context, clientID string, date time.Time) (map[domain.AlertKey]bool, error)
	Record(ctx context.Context, clientID string, date time.Time, alerts []domain.Alert) error
}

// ConfigProvider resolves per-client engine configs and the client roster.
type ConfigProvider interface {
	Get(ctx context.Context, clientID string) (domain.EngineConfig, []string, error)
	ListActiveClients(ctx context.Context) ([]string, error)
}

// LockFactory builds the lock guarding one key.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock
