package institution

import "context"

// Repository defines the interface for institution data access.
// Every finder except FindByID and FindByExternalItemID ignores archived rows.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Institution, error)
	FindByID(ctx context.Context, id int64) (*Institution, error)
	FindByIDAndUserID(ctx context.Context, id int64, userID string) (*Institution, error)
	FindByUserID(ctx context.Context, userID string) ([]*Institution, error)
	FindByExternalItemID(ctx context.Context, externalItemID string) (*Institution, error)
	Update(ctx context.Context, id int64, params UpdateParams) (*Institution, error)
	Archive(ctx context.Context, id int64) error
	HasReachedItemLimit(ctx context.Context, userID string, max int) (bool, error)

	// LockByID selects an active institution FOR UPDATE. Only meaningful inside a transaction.
	LockByID(ctx context.Context, id int64) (*Institution, error)
	// LockUser serializes writes for one user until the enclosing transaction ends.
	LockUser(ctx context.Context, userID string) error
	// ListActiveIDs returns the ids of every non-archived institution.
	ListActiveIDs(ctx context.Context) ([]int64, error)
}
