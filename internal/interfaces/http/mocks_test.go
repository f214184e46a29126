package http

import (
	"context"
	"net/http"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
	"budgetlink/internal/shared/middleware"
)

// MockInstitutionRepo implements institution.Repository for testing
type MockInstitutionRepo struct {
	FindByIDAndUserIDFunc func(ctx context.Context, id int64, userID string) (*institution.Institution, error)
	FindByUserIDFunc      func(ctx context.Context, userID string) ([]*institution.Institution, error)
	ArchiveFunc           func(ctx context.Context, id int64) error
}

func (m *MockInstitutionRepo) Create(ctx context.Context, params institution.CreateParams) (*institution.Institution, error) {
	return nil, nil
}

func (m *MockInstitutionRepo) FindByID(ctx context.Context, id int64) (*institution.Institution, error) {
	return nil, institution.ErrInstitutionNotFound
}

func (m *MockInstitutionRepo) FindByIDAndUserID(ctx context.Context, id int64, userID string) (*institution.Institution, error) {
	if m.FindByIDAndUserIDFunc != nil {
		return m.FindByIDAndUserIDFunc(ctx, id, userID)
	}
	return nil, institution.ErrInstitutionNotFound
}

func (m *MockInstitutionRepo) FindByUserID(ctx context.Context, userID string) ([]*institution.Institution, error) {
	if m.FindByUserIDFunc != nil {
		return m.FindByUserIDFunc(ctx, userID)
	}
	return nil, nil
}

func (m *MockInstitutionRepo) FindByExternalItemID(ctx context.Context, externalItemID string) (*institution.Institution, error) {
	return nil, institution.ErrInstitutionNotFound
}

func (m *MockInstitutionRepo) Update(ctx context.Context, id int64, params institution.UpdateParams) (*institution.Institution, error) {
	return nil, nil
}

func (m *MockInstitutionRepo) Archive(ctx context.Context, id int64) error {
	if m.ArchiveFunc != nil {
		return m.ArchiveFunc(ctx, id)
	}
	return nil
}

func (m *MockInstitutionRepo) HasReachedItemLimit(ctx context.Context, userID string, max int) (bool, error) {
	return false, nil
}

func (m *MockInstitutionRepo) LockByID(ctx context.Context, id int64) (*institution.Institution, error) {
	return nil, nil
}

func (m *MockInstitutionRepo) LockUser(ctx context.Context, userID string) error {
	return nil
}

func (m *MockInstitutionRepo) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return nil, nil
}

// MockLinker implements InstitutionLinker for testing
type MockLinker struct {
	LinkInstitutionFunc func(ctx context.Context, userID, publicToken string) (*institution.Institution, error)
}

func (m *MockLinker) LinkInstitution(ctx context.Context, userID, publicToken string) (*institution.Institution, error) {
	if m.LinkInstitutionFunc != nil {
		return m.LinkInstitutionFunc(ctx, userID, publicToken)
	}
	return nil, nil
}

// MockSyncInitiator implements SyncInitiator for testing
type MockSyncInitiator struct {
	InitiateSyncForItemFunc func(ctx context.Context, institutionID int64) (*job.Job, error)
	calls                   int
}

func (m *MockSyncInitiator) InitiateSyncForItem(ctx context.Context, institutionID int64) (*job.Job, error) {
	m.calls++
	if m.InitiateSyncForItemFunc != nil {
		return m.InitiateSyncForItemFunc(ctx, institutionID)
	}
	return &job.Job{ID: 1, JobType: job.TypeSyncInstitution, Status: job.StatusQueued}, nil
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey, userID))
}

func ownedBy(userID string) func(ctx context.Context, id int64, uid string) (*institution.Institution, error) {
	return func(ctx context.Context, id int64, uid string) (*institution.Institution, error) {
		if uid != userID {
			return nil, institution.ErrInstitutionNotFound
		}
		return &institution.Institution{ID: id, UserID: uid, SyncStatus: institution.StatusGood}, nil
	}
}
