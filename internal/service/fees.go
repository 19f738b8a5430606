package service

import (
	"context"
	"errors"

	"regbot/internal/repository"
)

// FeeResolver picks the fee a particular user pays for an event.
type FeeResolver struct {
	repo repository.Repository
}

// NewFeeResolver constructs a FeeResolver.
func NewFeeResolver(repo repository.Repository) *FeeResolver {
	return &FeeResolver{repo: repo}
}

// ApplicableFee returns the student fee for users with a real student id and
// the regular fee otherwise. A missing event costs nothing and a missing user
// pays the regular fee.
func (f *FeeResolver) ApplicableFee(ctx context.Context, eventID, userID int64) (float64, error) {
	e, err := f.repo.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	u, err := f.repo.GetUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return e.Fee, nil
	}
	if err != nil {
		return 0, err
	}
	return e.FeeFor(u.StudentID), nil
}
