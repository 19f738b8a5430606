package service

import (
	"context"
	"errors"
	"fmt"

	"regbot/internal/model"
	"regbot/internal/repository"
)

// FeedbackService stores ratings for completed events.
type FeedbackService struct {
	repo repository.Repository
}

// NewFeedbackService constructs a FeedbackService.
func NewFeedbackService(repo repository.Repository) *FeedbackService {
	return &FeedbackService{repo: repo}
}

// Rate records a rating. Rating twice overwrites the first one; created is
// true only for the first rating.
func (s *FeedbackService) Rate(ctx context.Context, userID, eventID int64, rating int) (*model.Feedback, bool, error) {
	if rating < 1 || rating > 5 {
		return nil, false, ErrInvalidRating
	}
	e, err := s.repo.GetEvent(ctx, eventID)
	if err != nil {
		return nil, false, notFound(err, "get event")
	}
	if e.Status != model.EventCompleted {
		return nil, false, ErrEventNotCompleted
	}

	f, err := s.repo.FindFeedback(ctx, userID, eventID)
	switch {
	case err == nil:
		f.Rating = rating
		if err := s.repo.UpdateFeedback(ctx, f); err != nil {
			return nil, false, notFound(err, "update feedback")
		}
		return f, false, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("find feedback: %w", err)
	}

	f = &model.Feedback{UserID: userID, EventID: eventID, Rating: rating}
	if err := s.repo.InsertFeedback(ctx, f); err != nil {
		return nil, false, fmt.Errorf("insert feedback: %w", err)
	}
	return f, true, nil
}

// Comment attaches a comment to an existing rating.
func (s *FeedbackService) Comment(ctx context.Context, userID, eventID int64, comment string) (*model.Feedback, error) {
	f, err := s.repo.FindFeedback(ctx, userID, eventID)
	if err != nil {
		return nil, notFound(err, "find feedback")
	}
	f.Comment = comment
	if err := s.repo.UpdateFeedback(ctx, f); err != nil {
		return nil, notFound(err, "update feedback")
	}
	return f, nil
}

// ForEvent lists an event's feedback with authors.
func (s *FeedbackService) ForEvent(ctx context.Context, eventID int64) ([]model.Feedback, error) {
	return s.repo.ListEventFeedback(ctx, eventID)
}

// Average returns the mean rating; ok is false when nobody rated the event.
func (s *FeedbackService) Average(ctx context.Context, eventID int64) (avg float64, ok bool, err error) {
	return s.repo.AverageRating(ctx, eventID)
}
