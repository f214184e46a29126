package postgres

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlink/internal/domain/job"
)

func jobParams(t *testing.T, institutionID int64) job.CreateParams {
	t.Helper()
	params, err := job.NewSyncInstitutionParams(institutionID)
	require.NoError(t, err)
	return params
}

func jobRow(id int64, status string) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumnNames).AddRow(
		id, "SYNC_INSTITUTION", []byte(`{"institutionId":3}`), status, 0, nil, nil, time.Now(),
	)
}

func TestJobRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery(`INSERT INTO background_jobs \(job_type, payload\)\s+VALUES \(\$1, \$2::jsonb\)`).
		WithArgs("SYNC_INSTITUTION", `{"institutionId":3}`).
		WillReturnRows(jobRow(11, "queued"))

	j, err := repo.Create(testContext(t), jobParams(t, 3))

	require.NoError(t, err)
	assert.Equal(t, job.StatusQueued, j.Status)
	payload, err := job.DecodeSyncInstitutionPayload(j)
	require.NoError(t, err)
	assert.Equal(t, int64(3), payload.InstitutionID)
}

func TestJobRepository_CreateRequiresType(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewJobRepository(db)

	_, err := repo.Create(testContext(t), job.CreateParams{})
	assert.ErrorIs(t, err, job.ErrInvalidJobType)
}

func TestJobRepository_FindNextAvailable(t *testing.T) {
	t.Run("claims oldest queued job", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewJobRepository(db)

		mock.ExpectQuery(`ORDER BY created_at, id\s+LIMIT 1\s+FOR UPDATE SKIP LOCKED`).
			WithArgs("SYNC_INSTITUTION").
			WillReturnRows(jobRow(11, "queued"))

		j, err := repo.FindNextAvailable(testContext(t), job.TypeSyncInstitution)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, int64(11), j.ID)
	})

	t.Run("empty queue", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewJobRepository(db)

		mock.ExpectQuery("FOR UPDATE SKIP LOCKED").WithArgs("").WillReturnRows(sqlmock.NewRows(jobColumnNames))

		j, err := repo.FindNextAvailable(testContext(t), "")
		assert.NoError(t, err)
		assert.Nil(t, j)
	})
}

func TestJobRepository_MarkAsRunning(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)
	stamped := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	mock.ExpectQuery(`SET status = 'running', attempts = attempts \+ 1, last_attempt_at = NOW\(\)\s+WHERE id = \$1 AND status = 'queued'\s+RETURNING`).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(jobColumnNames).AddRow(
			int64(11), "SYNC_INSTITUTION", []byte(`{"institutionId":3}`), "running", 2, stamped, nil, time.Now(),
		))

	j, err := repo.MarkAsRunning(testContext(t), 11)

	require.NoError(t, err)
	assert.Equal(t, job.StatusRunning, j.Status)
	assert.Equal(t, 2, j.Attempts)
	require.NotNil(t, j.LastAttemptAt)
	assert.True(t, stamped.Equal(*j.LastAttemptAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_MarkAsRunningNotQueued(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery("SET status = 'running'").WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows(jobColumnNames))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	j, err := repo.MarkAsRunning(testContext(t), 11)

	assert.Nil(t, j)
	assert.ErrorIs(t, err, job.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_TransitionErrors(t *testing.T) {
	tests := []struct {
		name    string
		exists  bool
		wantErr error
	}{
		{name: "missing job", exists: false, wantErr: job.ErrJobNotFound},
		{name: "wrong status", exists: true, wantErr: job.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewJobRepository(db)

			mock.ExpectExec("SET status = 'completed'").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(5)).
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			err := repo.MarkAsCompleted(testContext(t), 5)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJobRepository_MarkAsFailed(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectExec(`SET status = 'failed', last_error = \$2\s+WHERE id = \$1 AND status = 'running'`).
		WithArgs(int64(11), "aggregator unavailable").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkAsFailed(testContext(t), 11, "aggregator unavailable"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_FailStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	cutoff := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery(`WHERE status = 'running' AND last_attempt_at < \$1`).
		WithArgs(cutoff, "lease expired").
		WillReturnRows(jobRow(8, "failed"))

	jobs, err := repo.FailStale(testContext(t), cutoff, "lease expired")

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.StatusFailed, jobs[0].Status)
}

func TestJobRepository_ListByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewJobRepository(db)

	mock.ExpectQuery(`WHERE status = \$1`).WithArgs("failed", 50).WillReturnRows(jobRow(8, "failed"))

	jobs, err := repo.ListByStatus(testContext(t), job.StatusFailed, 50)

	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}
