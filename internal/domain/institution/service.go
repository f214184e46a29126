package institution

import (
	"context"
	"fmt"
	"strings"
)

// Service contains the read and archive paths for institutions.
// Linking and sync live in the openfinance package.
type Service struct {
	repo Repository
}

// NewService creates a new institution service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListForUser returns the user's active institutions, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Institution, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", ErrInvalidInput)
	}

	institutions, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if institutions == nil {
		institutions = []*Institution{}
	}
	return institutions, nil
}

// GetForUser returns an active institution owned by userID.
func (s *Service) GetForUser(ctx context.Context, userID string, id int64) (*Institution, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: institution ID must be positive", ErrInvalidInput)
	}
	return s.repo.FindByIDAndUserID(ctx, id, userID)
}

// Archive soft-deletes an institution owned by userID. A second call
// returns ErrInstitutionNotFound.
func (s *Service) Archive(ctx context.Context, userID string, id int64) error {
	if _, err := s.GetForUser(ctx, userID, id); err != nil {
		return err
	}
	return s.repo.Archive(ctx, id)
}
