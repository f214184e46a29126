package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"budgetlink/internal/domain/institution"
)

const institutionColumns = `id, user_id, external_item_id, external_institution_id, institution_name,
	encrypted_access_token, sync_status, last_successful_sync, last_sync_error_message,
	archived_at, created_at, updated_at`

// Columns Update may write. external_item_id and user_id are immutable.
var institutionUpdatableColumns = []string{
	"institution_name",
	"encrypted_access_token",
	"sync_status",
	"last_successful_sync",
	"last_sync_error_message",
}

// InstitutionRepository implements institution.Repository for PostgreSQL
type InstitutionRepository struct {
	db Querier
}

var _ institution.Repository = (*InstitutionRepository)(nil)

// NewInstitutionRepository creates a repository over the pool or a transaction.
func NewInstitutionRepository(db Querier) *InstitutionRepository {
	return &InstitutionRepository{db: db}
}

func scanInstitution(row Row) (*institution.Institution, error) {
	var inst institution.Institution
	var externalInstitutionID, lastError sql.NullString
	var lastSync, archivedAt sql.NullTime

	err := row.Scan(
		&inst.ID, &inst.UserID, &inst.ExternalItemID, &externalInstitutionID, &inst.InstitutionName,
		&inst.EncryptedAccessToken, &inst.SyncStatus, &lastSync, &lastError,
		&archivedAt, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.ExternalInstitutionID = externalInstitutionID.String
	if lastSync.Valid {
		t := lastSync.Time
		inst.LastSuccessfulSync = &t
	}
	if lastError.Valid {
		msg := lastError.String
		inst.LastSyncErrorMessage = &msg
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		inst.ArchivedAt = &t
	}
	return &inst, nil
}

func (r *InstitutionRepository) findOne(ctx context.Context, query string, args ...any) (*institution.Institution, error) {
	inst, err := scanInstitution(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institution.ErrInstitutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get institution: %w", err)
	}
	return inst, nil
}

// Create inserts a new institution in the good state
func (r *InstitutionRepository) Create(ctx context.Context, params institution.CreateParams) (*institution.Institution, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", institution.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO institutions (user_id, external_item_id, external_institution_id, institution_name, encrypted_access_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + institutionColumns

	inst, err := scanInstitution(r.db.QueryRowContext(ctx, query,
		params.UserID, params.ExternalItemID, params.ExternalInstitutionID,
		params.InstitutionName, params.EncryptedAccessToken,
	))
	if isUniqueViolation(err) {
		return nil, institution.ErrDuplicateItem
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create institution: %w", err)
	}
	return inst, nil
}

// FindByID returns the institution regardless of archive state
func (r *InstitutionRepository) FindByID(ctx context.Context, id int64) (*institution.Institution, error) {
	return r.findOne(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE id = $1`, id)
}

// FindByIDAndUserID returns an active institution owned by userID
func (r *InstitutionRepository) FindByIDAndUserID(ctx context.Context, id int64, userID string) (*institution.Institution, error) {
	query := `SELECT ` + institutionColumns + `
		FROM institutions
		WHERE id = $1 AND user_id = $2 AND archived_at IS NULL`
	return r.findOne(ctx, query, id, userID)
}

// FindByExternalItemID returns the institution for an aggregator item id
func (r *InstitutionRepository) FindByExternalItemID(ctx context.Context, externalItemID string) (*institution.Institution, error) {
	return r.findOne(ctx, `SELECT `+institutionColumns+` FROM institutions WHERE external_item_id = $1`, externalItemID)
}

// FindByUserID lists the user's active institutions, newest first
func (r *InstitutionRepository) FindByUserID(ctx context.Context, userID string) ([]*institution.Institution, error) {
	query := `SELECT ` + institutionColumns + `
		FROM institutions
		WHERE user_id = $1 AND archived_at IS NULL
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var institutions []*institution.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		institutions = append(institutions, inst)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating institutions: %w", err)
	}

	return institutions, nil
}

// Update writes only the supplied fields of an active institution
func (r *InstitutionRepository) Update(ctx context.Context, id int64, params institution.UpdateParams) (*institution.Institution, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", institution.ErrInvalidInput, err)
	}

	b := newSetBuilder(institutionUpdatableColumns...)
	var err error
	set := func(column string, value any) {
		if err == nil {
			err = b.Set(column, value)
		}
	}

	if params.InstitutionName != nil {
		set("institution_name", *params.InstitutionName)
	}
	if params.EncryptedAccessToken != nil {
		set("encrypted_access_token", *params.EncryptedAccessToken)
	}
	if params.SyncStatus != nil {
		set("sync_status", string(*params.SyncStatus))
	}
	if params.LastSuccessfulSync != nil {
		set("last_successful_sync", *params.LastSuccessfulSync)
	}
	if params.ClearSyncError {
		if err == nil {
			err = b.SetNull("last_sync_error_message")
		}
	} else if params.LastSyncErrorMessage != nil {
		set("last_sync_error_message", *params.LastSyncErrorMessage)
	}
	if err != nil {
		return nil, err
	}

	setClause, args, next := b.Build()
	query := fmt.Sprintf(`UPDATE institutions SET %s
		WHERE id = $%d AND archived_at IS NULL
		RETURNING %s`, setClause, next, institutionColumns)

	inst, err := scanInstitution(r.db.QueryRowContext(ctx, query, append(args, id)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, institution.ErrInstitutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update institution: %w", err)
	}
	return inst, nil
}

// Archive soft-deletes an active institution
func (r *InstitutionRepository) Archive(ctx context.Context, id int64) error {
	query := `
		UPDATE institutions
		SET archived_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND archived_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to archive institution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return institution.ErrInstitutionNotFound
	}

	return nil
}

// HasReachedItemLimit reports whether the user already holds max active institutions
func (r *InstitutionRepository) HasReachedItemLimit(ctx context.Context, userID string, max int) (bool, error) {
	query := `SELECT COUNT(*) FROM institutions WHERE user_id = $1 AND archived_at IS NULL`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count institutions: %w", err)
	}
	return count >= max, nil
}

// LockByID locks an active institution row until the transaction ends
func (r *InstitutionRepository) LockByID(ctx context.Context, id int64) (*institution.Institution, error) {
	query := `SELECT ` + institutionColumns + `
		FROM institutions
		WHERE id = $1 AND archived_at IS NULL
		FOR UPDATE`
	return r.findOne(ctx, query, id)
}

// LockUser takes a transaction-scoped advisory lock keyed on the user id
func (r *InstitutionRepository) LockUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	return nil
}

// ListActiveIDs returns every non-archived institution id in ascending order
func (r *InstitutionRepository) ListActiveIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM institutions WHERE archived_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list institution ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan institution id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating institution ids: %w", err)
	}
	return ids, nil
}
