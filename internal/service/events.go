package service

import (
	"context"
	"fmt"
	"time"

	"regbot/internal/model"
	"regbot/internal/repository"
)

// CompletionGrace is how long after its start an event is still considered running.
const CompletionGrace = 2 * time.Hour

// EventService owns event status transitions and capacity accounting.
type EventService struct {
	repo repository.Repository
	now  func() time.Time
}

// NewEventService constructs an EventService.
func NewEventService(repo repository.Repository) *EventService {
	return &EventService{repo: repo, now: time.Now}
}

// WithClock replaces the time source; used by tests and the sweep.
func (s *EventService) WithClock(now func() time.Time) *EventService {
	s.now = now
	return s
}

// CreateEvent persists a new active event. Input is validated by the conversation layer.
func (s *EventService) CreateEvent(ctx context.Context, e *model.Event) error {
	e.Status = model.EventActive
	if err := s.repo.CreateEvent(ctx, e); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Get returns a single event or ErrNotFound.
func (s *EventService) Get(ctx context.Context, id int64) (*model.Event, error) {
	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, notFound(err, "get event")
	}
	return e, nil
}

// List returns every event ordered by date.
func (s *EventService) List(ctx context.Context) ([]model.Event, error) {
	return s.repo.ListEvents(ctx)
}

// ListActive returns the active and full events, whatever their date.
func (s *EventService) ListActive(ctx context.Context) ([]model.Event, error) {
	return s.repo.ListEventsByStatus(ctx, model.EventActive, model.EventFull)
}

// ListUpcoming returns active or full events that have not started yet.
func (s *EventService) ListUpcoming(ctx context.Context) ([]model.Event, error) {
	return s.repo.ListEventsAfter(ctx, s.now(), model.EventActive, model.EventFull)
}

// UpdateEvent applies an admin edit. Editing can revive an event:
//   - completed, and the new date is in the future
//   - cancelled, and the new date is later than the old one
//   - full, and the new capacity is larger than the old one
func (s *EventService) UpdateEvent(ctx context.Context, id int64, patch model.EventPatch) (*model.Event, error) {
	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return nil, notFound(err, "update event")
	}
	prev := *e

	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Capacity != nil {
		e.Capacity = *patch.Capacity
	}
	if patch.Fee != nil {
		e.Fee = *patch.Fee
	}
	if patch.StudentFee != nil {
		e.StudentFee = *patch.StudentFee
	}
	if patch.Date != nil {
		e.Date = *patch.Date
	}
	if patch.Location != nil {
		e.Location = *patch.Location
	}
	if patch.PosterID != nil {
		e.PosterID = *patch.PosterID
	}

	if reactivates(prev, *e, patch, s.now()) {
		e.Status = model.EventActive
	}

	if err := s.repo.SaveEvent(ctx, e); err != nil {
		return nil, notFound(err, "save event")
	}
	return e, nil
}

func reactivates(prev, next model.Event, patch model.EventPatch, now time.Time) bool {
	switch prev.Status {
	case model.EventCompleted:
		return patch.Date != nil && next.Date.After(now)
	case model.EventCancelled:
		return patch.Date != nil && next.Date.After(prev.Date)
	case model.EventFull:
		return patch.Capacity != nil && next.Capacity > prev.Capacity
	}
	return false
}

// CheckCapacity is the single authority for the active/full boundary. It counts
// approved registrations; once they reach capacity an active event is marked
// full and false is returned. Completed and cancelled events keep their status.
//
// The count is read then written without a lock, so two approvals racing each
// other may both pass. The event becomes full on the next check.
func (s *EventService) CheckCapacity(ctx context.Context, id int64) (bool, error) {
	e, err := s.repo.GetEvent(ctx, id)
	if err != nil {
		return false, notFound(err, "check capacity")
	}

	approved, err := s.repo.CountRegistrations(ctx, id, model.RegistrationApproved)
	if err != nil {
		return false, fmt.Errorf("count approved: %w", err)
	}

	if approved >= e.Capacity {
		if e.Status == model.EventActive {
			if err := s.repo.SetEventStatus(ctx, id, model.EventFull); err != nil {
				return false, notFound(err, "mark full")
			}
		}
		return false, nil
	}
	return true, nil
}

// UpdateStatus sets the status unconditionally.
func (s *EventService) UpdateStatus(ctx context.Context, id int64, status model.EventStatus) (*model.Event, error) {
	if err := s.repo.SetEventStatus(ctx, id, status); err != nil {
		return nil, notFound(err, "update event status")
	}
	return s.Get(ctx, id)
}

// Cancel marks an active or full event cancelled.
func (s *EventService) Cancel(ctx context.Context, id int64) (*model.Event, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status != model.EventActive && e.Status != model.EventFull {
		return e, ErrNotCancellable
	}
	return s.UpdateStatus(ctx, id, model.EventCancelled)
}

// CompletionSweep completes every active or full event that started more than
// CompletionGrace ago and returns the events it changed. Cancelled events are
// never touched, and a second run right after the first changes nothing.
func (s *EventService) CompletionSweep(ctx context.Context) ([]model.Event, error) {
	cutoff := s.now().Add(-CompletionGrace)
	due, err := s.repo.ListEventsBefore(ctx, cutoff, model.EventActive, model.EventFull)
	if err != nil {
		return nil, fmt.Errorf("list events to complete: %w", err)
	}

	var completed []model.Event
	for _, e := range due {
		changed, err := s.repo.CompleteEvent(ctx, e.ID)
		if err != nil {
			return completed, fmt.Errorf("complete event %d: %w", e.ID, err)
		}
		if changed {
			e.Status = model.EventCompleted
			completed = append(completed, e)
		}
	}
	return completed, nil
}

// Registrants returns every registration of the event with users joined.
func (s *EventService) Registrants(ctx context.Context, id int64) ([]model.RegistrationDetails, error) {
	return s.repo.ListEventRegistrations(ctx, id)
}

// ApprovedCount returns how many seats are taken.
func (s *EventService) ApprovedCount(ctx context.Context, id int64) (int, error) {
	return s.repo.CountRegistrations(ctx, id, model.RegistrationApproved)
}
