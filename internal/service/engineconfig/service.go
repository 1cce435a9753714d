package engineconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/adclassify/internal/domain"
	"github.com/ignite/adclassify/internal/pkg/logger"
)

// Service resolves and updates engine configs. All public methods are safe
// for concurrent use if the underlying repository is.
type Service struct {
	repo Repository
}

// NewService creates a config service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the effective config for a client. A client seen for the first
// time gets the defaults persisted. The second return value names every field
// that was invalid in storage and fell back to its default.
func (s *Service) Get(ctx context.Context, clientID string) (domain.EngineConfig, []string, error) {
	if clientID == "" {
		return domain.EngineConfig{}, nil, ErrMissingID
	}

	rec, err := s.repo.Get(ctx, clientID)
	if errors.Is(err, ErrNotFound) {
		cfg := domain.DefaultEngineConfigFor(clientID)
		doc, err := json.Marshal(cfg)
		if err != nil {
			return domain.EngineConfig{}, nil, fmt.Errorf("encode defaults: %w", err)
		}
		if err := s.repo.CreateIfAbsent(ctx, clientID, doc); err != nil {
			return domain.EngineConfig{}, nil, fmt.Errorf("create default config: %w", err)
		}
		logger.Info("created default engine config", "client_id", clientID)
		// Re-read so a concurrent writer's row wins over our defaults.
		rec, err = s.repo.Get(ctx, clientID)
		if err != nil {
			return domain.EngineConfig{}, nil, fmt.Errorf("reload config: %w", err)
		}
	} else if err != nil {
		return domain.EngineConfig{}, nil, fmt.Errorf("get config: %w", err)
	}

	cfg, fallbacks, err := decode(clientID, rec)
	if err != nil {
		return domain.EngineConfig{}, nil, err
	}
	if len(fallbacks) > 0 {
		logger.Warn("engine config fields fell back to defaults",
			"client_id", clientID, "fields", fallbacks)
	}
	return cfg, fallbacks, nil
}

// Update validates cfg and stores it as the client's new config. The
// returned config carries the bumped version.
func (s *Service) Update(ctx context.Context, clientID string, cfg domain.EngineConfig) (domain.EngineConfig, error) {
	if clientID == "" {
		return domain.EngineConfig{}, ErrMissingID
	}
	if err := cfg.Validate(); err != nil {
		return domain.EngineConfig{}, err
	}
	cfg.ClientID = clientID
	cfg.DefaultsVersion = domain.DefaultsVersion

	doc, err := json.Marshal(cfg)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("encode config: %w", err)
	}
	version, err := s.repo.Save(ctx, clientID, doc)
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("save config: %w", err)
	}
	cfg.Version = version
	logger.Info("engine config updated", "client_id", clientID, "version", version)
	return cfg, nil
}

// ListActiveClients returns the clients the scheduler should run.
func (s *Service) ListActiveClients(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return ids, nil
}

func decode(clientID string, rec *Record) (domain.EngineConfig, []string, error) {
	cfg := domain.DefaultEngineConfigFor(clientID)
	if len(rec.Document) > 0 {
		if err := json.Unmarshal(rec.Document, &cfg); err != nil {
			return domain.EngineConfig{}, nil, fmt.Errorf("decode config for %s: %w", clientID, err)
		}
	}
	cfg.ClientID = clientID
	cfg.Version = rec.Version
	cfg.UpdatedAt = rec.UpdatedAt
	return cfg, cfg.Normalize(), nil
}
