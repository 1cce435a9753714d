// Package storage persists daily platform records, rolling metrics,
// classifications and client snapshots. AWSStorage is the production
// backend; Memory backs local runs and tests.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ignite/adclassify/internal/domain"
)

// ErrNotFound is returned when a requested snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Memory is an in-process store with the same semantics as AWSStorage.
type Memory struct {
	mu              sync.RWMutex
	daily           map[string]domain.DailyRecord
	metrics         map[domain.EntityKey]domain.EntityMetrics
	classifications map[string]domain.EntityClassification
	snapshots       map[string]domain.ClientSnapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		daily:           make(map[string]domain.DailyRecord),
		metrics:         make(map[domain.EntityKey]domain.EntityMetrics),
		classifications: make(map[string]domain.EntityClassification),
		snapshots:       make(map[string]domain.ClientSnapshot),
	}
}

func (m *Memory) ListDailyRecords(_ context.Context, clientID string, from, to time.Time) ([]domain.DailyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	from, to = domain.Day(from), domain.Day(to)
	var out []domain.DailyRecord
	for _, r := range m.daily {
		d := r.Day()
		if r.Key.ClientID != clientID || d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return dailySK(out[i]) < dailySK(out[j]) })
	return out, nil
}

func (m *Memory) PutDailyRecords(_ context.Context, records []domain.DailyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.daily[clientPK(r.Key.ClientID)+dailySK(r)] = r
	}
	return nil
}

func (m *Memory) PutMetrics(_ context.Context, metrics []domain.EntityMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, em := range metrics {
		m.metrics[em.Key] = em
	}
	return nil
}

// Metrics returns the latest aggregate for key.
func (m *Memory) Metrics(key domain.EntityKey) (domain.EntityMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	em, ok := m.metrics[key]
	return em, ok
}

func (m *Memory) PutClassifications(_ context.Context, classifications []domain.EntityClassification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range classifications {
		m.classifications[clientPK(c.Key.ClientID)+classSK(c.Date, c.Key)] = c
	}
	return nil
}

func (m *Memory) GetClassifications(_ context.Context, clientID string, date time.Time) ([]domain.EntityClassification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := domain.Day(date)
	var out []domain.EntityClassification
	for _, c := range m.classifications {
		if c.Key.ClientID == clientID && domain.Day(c.Date).Equal(day) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

func (m *Memory) PutSnapshot(_ context.Context, snap domain.ClientSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[SnapshotKey(snap.ClientID, snap.Date)] = snap
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, clientID string, date time.Time) (*domain.ClientSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[SnapshotKey(clientID, date)]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}
