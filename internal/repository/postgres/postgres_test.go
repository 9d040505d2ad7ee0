package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/sendcore/internal/domain"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

func TestSuppressionRepo_FindActive(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "email", "reason", "scope", "source_message_id", "expires_at", "created_at",
	}).AddRow("sup-1", "", "user@example.com", "hard_bounce", "global", "msg-9", nil, now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM suppressions").
		WithArgs("global", "", "user@example.com", now).
		WillReturnRows(rows)

	repo := NewSuppressionRepo(db)
	got, err := repo.FindActive(context.Background(), domain.ScopeGlobal, "", "user@example.com", now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.ReasonHardBounce, got.Reason)
	assert.Nil(t, got.ExpiresAt)
}

func TestSuppressionRepo_FindActive_NoRow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM suppressions").
		WillReturnError(sql.ErrNoRows)

	repo := NewSuppressionRepo(db)
	got, err := repo.FindActive(context.Background(), domain.ScopeGlobal, "", "gone@example.com", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSuppressionRepo_Upsert_ReportsWritten(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewSuppressionRepo(db)
	entry := &domain.Suppression{
		ID:        "sup-1",
		Email:     "user@example.com",
		Reason:    domain.ReasonHardBounce,
		Scope:     domain.ScopeGlobal,
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO suppressions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	written, err := repo.Upsert(context.Background(), entry, false)
	require.NoError(t, err)
	assert.True(t, written)

	// The conditional ON CONFLICT clause touches no row when an active
	// entry already exists.
	mock.ExpectExec("INSERT INTO suppressions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	written, err = repo.Upsert(context.Background(), entry, false)
	require.NoError(t, err)
	assert.False(t, written)
}

func TestSuppressionRepo_Remove_TenantScopeOnly(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("DELETE FROM suppressions").
		WithArgs("tenant-1", "user@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewSuppressionRepo(db)
	removed, err := repo.Remove(context.Background(), "tenant-1", "user@example.com")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestMessageRepo_CancelIfQueued(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMessageRepo(db)

	mock.ExpectExec("UPDATE messages SET status = 'cancelled'").
		WithArgs("msg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.CancelIfQueued(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Already processing: the guarded UPDATE matches nothing.
	mock.ExpectExec("UPDATE messages SET status = 'cancelled'").
		WithArgs("msg-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.CancelIfQueued(context.Background(), "msg-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessageRepo_MarkTerminal_RejectsNonTerminalStatus(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewMessageRepo(db)
	err := repo.MarkTerminal(context.Background(), "msg-1", domain.MessageProcessing, 1, "")
	assert.Error(t, err)
}

func TestMessageRepo_QueueStats_SplitsDelayedFromQueued(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("queue-1", now).
		WillReturnRows(sqlmock.NewRows([]string{"queued", "delayed", "processing", "sent", "failed"}).
			AddRow(4, 2, 1, 10, 3))

	repo := NewMessageRepo(db)
	stats, err := repo.QueueStats(context.Background(), "queue-1", now)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Queued)
	assert.Equal(t, 2, stats.Delayed)
	assert.Equal(t, 1, stats.Processing)
	assert.Equal(t, 10, stats.Sent)
	assert.Equal(t, 3, stats.Failed)
}

func TestReputationRepo_SendingStats(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	since := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("tenant-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"sent", "bounced"}).AddRow(1000, 50))
	mock.ExpectQuery("SELECT (.+) FROM delivery_events").
		WithArgs("tenant-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	repo := NewReputationRepo(db)
	stats, err := repo.SendingStats(context.Background(), "tenant-1", since)
	require.NoError(t, err)
	assert.Equal(t, 1000, stats.SentCount)
	assert.Equal(t, 50, stats.BounceCount)
	assert.Equal(t, 3, stats.ComplaintCount)
}

func TestTenantRepo_RatePerMinute_StrictestQueueWins(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewTenantRepo(db)

	mock.ExpectQuery("SELECT MIN").
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(120))
	limit, err := repo.RatePerMinute(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, 120, limit)

	// No queue sets a limit: MIN over zero rows is NULL, meaning unlimited.
	mock.ExpectQuery("SELECT MIN").
		WithArgs("tenant-2").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))
	limit, err = repo.RatePerMinute(context.Background(), "tenant-2")
	require.NoError(t, err)
	assert.Equal(t, 0, limit)
}
