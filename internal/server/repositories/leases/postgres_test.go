package leases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestAcquire(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 10 * time.Minute
	q := `(?s)INSERT\s+INTO\s+handoff_leases.*ON\s+CONFLICT\s*\(target_folder_id,\s*file_name\).*WHERE\s+handoff_leases\.expires_at\s*<\s*\$5`

	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "free or expired", affected: 1, want: true},
		{name: "held by someone else", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)
			mock.ExpectExec(q).
				WithArgs("folder", "clip.mp4", "owner-1", now.Add(ttl), now).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := repo.Acquire(context.Background(), "folder", "clip.mp4", "owner-1", now, ttl)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAcquire_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT INTO handoff_leases`).WillReturnError(errors.New("db down"))

	_, err := repo.Acquire(context.Background(), "f", "n", "o", time.Now(), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestRelease(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`DELETE FROM handoff_leases WHERE target_folder_id = \$1 AND file_name = \$2 AND owner = \$3`).
		WithArgs("folder", "clip.mp4", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "folder", "clip.mp4", "owner-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
