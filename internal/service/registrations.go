package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"regbot/internal/model"
	"regbot/internal/repository"
)

// Outcome tells the caller what Create did.
type Outcome int

const (
	// Created means a fresh pending registration was stored.
	Created Outcome = iota
	// Resubmitted means a rejected registration was reused with a new receipt.
	Resubmitted
	// Existing means the user already holds a pending, approved or cancelled registration.
	Existing
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Resubmitted:
		return "resubmitted"
	case Existing:
		return "existing"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// RegistrationService owns the registration lifecycle.
type RegistrationService struct {
	repo   repository.Repository
	events *EventService
	now    func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo repository.Repository, events *EventService) *RegistrationService {
	return &RegistrationService{repo: repo, events: events, now: time.Now}
}

// Create registers a user for an event with the given receipt. The event must
// be open and capacity is checked first. A user has at most one registration
// per event: a rejected one is reset to pending with the new receipt, anything
// else is returned unchanged.
func (s *RegistrationService) Create(ctx context.Context, userID, eventID int64, receiptFileID string) (*model.Registration, Outcome, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, Existing, err
	}
	if !e.Open() {
		return nil, Existing, ErrRegistrationClosed
	}
	ok, err := s.events.CheckCapacity(ctx, eventID)
	if err != nil {
		return nil, Existing, err
	}
	if !ok {
		return nil, Existing, ErrEventFull
	}

	existing, err := s.repo.FindRegistration(ctx, userID, eventID)
	switch {
	case err == nil:
		if existing.Status != model.RegistrationRejected {
			return existing, Existing, nil
		}
		existing.Status = model.RegistrationPending
		existing.ReceiptFileID = receiptFileID
		existing.ReceiptArchiveURL = ""
		existing.RegisteredAt = s.now()
		existing.ApprovalChatID = 0
		existing.ApprovalMessageID = 0
		if err := s.repo.SaveRegistration(ctx, existing); err != nil {
			return nil, Existing, notFound(err, "resubmit registration")
		}
		return existing, Resubmitted, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, Existing, fmt.Errorf("find registration: %w", err)
	}

	reg := &model.Registration{
		UserID:        userID,
		EventID:       eventID,
		ReceiptFileID: receiptFileID,
		Status:        model.RegistrationPending,
		RegisteredAt:  s.now(),
	}
	if err := s.repo.InsertRegistration(ctx, reg); err != nil {
		return nil, Existing, fmt.Errorf("insert registration: %w", err)
	}
	return reg, Created, nil
}

// UpdateStatus moves a registration to a new status. Approving re-checks
// capacity so the event flips to full as soon as the last seat is taken. When
// that re-check fails the status change is kept and the details are returned
// together with ErrCapacityNotChecked.
func (s *RegistrationService) UpdateStatus(ctx context.Context, id int64, status model.RegistrationStatus) (*model.RegistrationDetails, error) {
	if err := s.repo.SetRegistrationStatus(ctx, id, status); err != nil {
		return nil, notFound(err, "update registration status")
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == model.RegistrationApproved {
		if _, err := s.events.CheckCapacity(ctx, d.EventID); err != nil {
			return d, fmt.Errorf("%w: %v", ErrCapacityNotChecked, err)
		}
		if e, err := s.events.Get(ctx, d.EventID); err == nil {
			d.Event = *e
		}
	}
	return d, nil
}

// Cancel cancels the user's registration for an event. A full event becomes
// active again since a seat may have been released.
func (s *RegistrationService) Cancel(ctx context.Context, userID, eventID int64) (*model.RegistrationDetails, error) {
	reg, err := s.repo.FindRegistration(ctx, userID, eventID)
	if err != nil {
		return nil, notFound(err, "find registration")
	}
	if err := s.repo.SetRegistrationStatus(ctx, reg.ID, model.RegistrationCancelled); err != nil {
		return nil, notFound(err, "cancel registration")
	}

	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e.Status == model.EventFull {
		if e, err = s.events.UpdateStatus(ctx, eventID, model.EventActive); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, reg.ID)
}

// CancelAllForEvent cancels every pending or approved registration of the event
// and returns them as they were before cancellation.
func (s *RegistrationService) CancelAllForEvent(ctx context.Context, eventID int64) ([]model.RegistrationDetails, error) {
	regs, err := s.repo.ListEventRegistrations(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	var affected []model.RegistrationDetails
	for _, r := range regs {
		if !r.Status.Active() {
			continue
		}
		if err := s.repo.SetRegistrationStatus(ctx, r.ID, model.RegistrationCancelled); err != nil {
			return affected, notFound(err, "cancel registration")
		}
		affected = append(affected, r)
	}
	return affected, nil
}

// AttachApprovalMessage remembers where the admin approval request was posted.
func (s *RegistrationService) AttachApprovalMessage(ctx context.Context, id, chatID int64, messageID int) error {
	if err := s.repo.SetApprovalMessage(ctx, id, chatID, messageID); err != nil {
		return notFound(err, "attach approval message")
	}
	return nil
}

// AttachReceiptArchive stores the mirrored receipt URL.
func (s *RegistrationService) AttachReceiptArchive(ctx context.Context, id int64, url string) error {
	if err := s.repo.SetReceiptArchive(ctx, id, url); err != nil {
		return notFound(err, "attach receipt archive")
	}
	return nil
}

// Get returns a registration with its user and event.
func (s *RegistrationService) Get(ctx context.Context, id int64) (*model.RegistrationDetails, error) {
	d, err := s.repo.GetRegistration(ctx, id)
	if err != nil {
		return nil, notFound(err, "get registration")
	}
	return d, nil
}

// ForEventAndUser returns the user's registration for an event, or ErrNotFound.
func (s *RegistrationService) ForEventAndUser(ctx context.Context, eventID, userID int64) (*model.Registration, error) {
	reg, err := s.repo.FindRegistration(ctx, userID, eventID)
	if err != nil {
		return nil, notFound(err, "find registration")
	}
	return reg, nil
}

// ForUser lists a user's registrations, newest first.
func (s *RegistrationService) ForUser(ctx context.Context, userID int64) ([]model.RegistrationDetails, error) {
	return s.repo.ListUserRegistrations(ctx, userID)
}

// ForEvent lists an event's registrations, newest first.
func (s *RegistrationService) ForEvent(ctx context.Context, eventID int64) ([]model.RegistrationDetails, error) {
	return s.repo.ListEventRegistrations(ctx, eventID)
}
