package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adclassify/internal/domain"
)

func TestMemory_DailyRecordsOverwriteSameDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.PutDailyRecords(ctx, []domain.DailyRecord{
		daily("c1", domain.LevelAd, "ad1", 0, 10),
		daily("c1", domain.LevelAd, "ad1", 1, 20),
		daily("c1", domain.LevelAd, "ad1", 30, 99),
	}))
	require.NoError(t, m.PutDailyRecords(ctx, []domain.DailyRecord{daily("c1", domain.LevelAd, "ad1", 0, 15)}))

	got, err := m.ListDailyRecords(ctx, "c1", testDay.AddDate(0, 0, -13), testDay)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 20.0, got[0].Spend)
	assert.Equal(t, 15.0, got[1].Spend)
}

func TestMemory_ClassificationsAndSnapshots(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	c := domain.NeutralClassification(domain.EntityKey{ClientID: "c1", Level: domain.LevelAdset, EntityID: "as1"}, testDay)
	require.NoError(t, m.PutClassifications(ctx, []domain.EntityClassification{c}))

	got, err := m.GetClassifications(ctx, "c1", testDay)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = m.GetClassifications(ctx, "c2", testDay)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = m.GetSnapshot(ctx, "c1", testDay)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.PutSnapshot(ctx, domain.ClientSnapshot{ClientID: "c1", Date: testDay, RunID: "r"}))
	snap, err := m.GetSnapshot(ctx, "c1", testDay)
	require.NoError(t, err)
	assert.Equal(t, "r", snap.RunID)
}
