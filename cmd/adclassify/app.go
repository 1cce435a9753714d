package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adclassify/internal/alertlog"
	"github.com/ignite/adclassify/internal/api"
	"github.com/ignite/adclassify/internal/config"
	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/notify"
	"github.com/ignite/adclassify/internal/pkg/distlock"
	"github.com/ignite/adclassify/internal/pkg/logger"
	"github.com/ignite/adclassify/internal/pkg/retry"
	"github.com/ignite/adclassify/internal/repository/postgres"
	"github.com/ignite/adclassify/internal/service/engineconfig"
	"github.com/ignite/adclassify/internal/snowflake"
	"github.com/ignite/adclassify/internal/storage"
	"github.com/ignite/adclassify/internal/telemetry"
	"github.com/ignite/adclassify/internal/worker"
)

const connectTimeout = 10 * time.Second

// app is the wired process: every collaborator the worker and the ops
// router need, plus what must be closed on exit.
type app struct {
	db        *sql.DB
	redis     *redis.Client
	store     *storage.AWSStorage
	warehouse *snowflake.Client
	configs   *engineconfig.Service
	metrics   *telemetry.Metrics
	worker    *worker.ClassificationWorker
}

func openDB(ctx context.Context, c config.DatabaseConfig) (*sql.DB, error) {
	if c.URL == "" {
		return nil, errors.New("database.url is required")
	}
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.Lifetime())

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	if !c.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", c.Addr, err)
	}
	return client, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{metrics: telemetry.New()}
	var err error

	if a.db, err = openDB(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if a.redis, err = openRedis(ctx, cfg.Redis); err != nil {
		a.Close()
		return nil, err
	}
	// Without Redis, same-day de-dup and run locking fall back to this
	// process and Postgres advisory locks.
	if a.redis == nil {
		logger.Warn("redis disabled; alert de-dup is process-local")
	}

	if a.store, err = storage.New(ctx, cfg.Storage); err != nil {
		a.Close()
		return nil, err
	}

	var records worker.RecordSource = a.store
	if cfg.Storage.RecordSource == "snowflake" {
		if !cfg.Snowflake.Enabled {
			a.Close()
			return nil, errors.New("record_source is snowflake but snowflake is not configured")
		}
		if a.warehouse, err = snowflake.NewClient(snowflake.ConfigFrom(cfg.Snowflake)); err != nil {
			a.Close()
			return nil, err
		}
		records = a.warehouse
	}

	var fired worker.AlertLog = alertlog.NewMemoryLog()
	if a.redis != nil {
		fired = alertlog.NewRedisLog(a.redis, alertlog.DefaultTTL)
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.SESEnabled {
		ses, err := notify.NewSESNotifier(ctx, cfg.Notify, cfg.Storage)
		if err != nil {
			a.Close()
			return nil, err
		}
		notifier = ses
	}

	a.configs = engineconfig.NewService(postgres.NewEngineConfigRepo(a.db))

	a.worker = worker.New(worker.Deps{
		Records:   records,
		Results:   a.store,
		Snapshots: a.store,
		Alerts:    fired,
		Configs:   a.configs,
		Locks: func(key string, ttl time.Duration) distlock.DistLock {
			return distlock.NewLock(a.redis, a.db, key, ttl)
		},
		Notifier: notifier,
		Metrics:  a.metrics,
	}, worker.Options{
		Interval:    cfg.Scheduler.Interval(),
		RunTimeout:  cfg.Scheduler.RunTimeout(),
		LockTTL:     cfg.Scheduler.LockTTL(),
		Concurrency: cfg.Scheduler.Concurrency,
		Strategy:    domain.ParseAlertStrategy(cfg.Scheduler.AlertStrategy),
		Retry: retry.Policy{
			MaxRetries: cfg.Scheduler.MaxRetries,
			BaseDelay:  retry.DefaultPolicy().BaseDelay,
			MaxDelay:   retry.DefaultPolicy().MaxDelay,
		},
	})
	return a, nil
}

// readyChecks reports the dependencies /readyz probes.
func (a *app) readyChecks() map[string]api.ReadyCheck {
	checks := map[string]api.ReadyCheck{
		"postgres": a.db.PingContext,
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	if a.warehouse != nil {
		checks["snowflake"] = a.warehouse.Ping
	}
	return checks
}

// Close releases every open connection.
func (a *app) Close() {
	if a.warehouse != nil {
		if err := a.warehouse.Close(); err != nil {
			logger.Warn("closing snowflake", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Warn("closing redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("closing database", "error", err)
		}
	}
}
