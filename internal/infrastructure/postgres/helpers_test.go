package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() failed: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return Wrap(sqlDB), mock
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var institutionColumnNames = []string{
	"id", "user_id", "external_item_id", "external_institution_id", "institution_name",
	"encrypted_access_token", "sync_status", "last_successful_sync", "last_sync_error_message",
	"archived_at", "created_at", "updated_at",
}

var jobColumnNames = []string{
	"id", "job_type", "payload", "status", "attempts", "last_attempt_at", "last_error", "created_at",
}
