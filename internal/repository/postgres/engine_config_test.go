package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adclassify/internal/service/engineconfig"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

// =============================================================================
// ENGINE CONFIG REPOSITORY TESTS
// =============================================================================

func TestEngineConfigRepo_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)
	updated := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT client_id, version, document::text, updated_at FROM engine_configs").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"client_id", "version", "document", "updated_at"}).
			AddRow("acme", 3, `{"fatigue":{"frequencyThreshold":5}}`, updated))

	rec, err := repo.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", rec.ClientID)
	assert.Equal(t, 3, rec.Version)
	assert.JSONEq(t, `{"fatigue":{"frequencyThreshold":5}}`, string(rec.Document))
	assert.Equal(t, updated, rec.UpdatedAt)
}

func TestEngineConfigRepo_GetNotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)

	mock.ExpectQuery("FROM engine_configs").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, engineconfig.ErrNotFound)
}

func TestEngineConfigRepo_GetError(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)
	boom := errors.New("connection reset")

	mock.ExpectQuery("FROM engine_configs").WillReturnError(boom)

	_, err := repo.Get(context.Background(), "acme")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, engineconfig.ErrNotFound)
}

func TestEngineConfigRepo_CreateIfAbsent(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)

	mock.ExpectExec("INSERT INTO engine_configs .* ON CONFLICT DO NOTHING").
		WithArgs("acme", `{"client_id":"acme"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateIfAbsent(context.Background(), "acme", []byte(`{"client_id":"acme"}`)))
}

func TestEngineConfigRepo_SaveBumpsVersion(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)

	mock.ExpectQuery(`ON CONFLICT \(client_id\) DO UPDATE .* version = engine_configs.version \+ 1`).
		WithArgs("acme", `{}`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4))

	v, err := repo.Save(context.Background(), "acme", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestEngineConfigRepo_ListClients(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewEngineConfigRepo(db)

	mock.ExpectQuery("SELECT client_id FROM engine_configs WHERE active ORDER BY client_id").
		WillReturnRows(sqlmock.NewRows([]string{"client_id"}).AddRow("acme").AddRow("globex"))

	ids, err := repo.ListClients(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, ids)
}

// =============================================================================
// MIGRATION TESTS
// =============================================================================

func TestMigrate_AppliesPending(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("migrations/001_engine_configs.sql").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS engine_configs").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("migrations/001_engine_configs.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations/001_engine_configs.sql"}, applied)
}

func TestMigrate_SkipsApplied(t *testing.T) {
	db, mock := setupTestDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	applied, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
