package bot

import (
	"context"
	"errors"
	"fmt"

	"regbot/internal/model"
	"regbot/internal/service"
)

var (
	// ErrAlreadyDecided is returned when a registration is no longer pending.
	ErrAlreadyDecided = errors.New("registration already decided")

	// ErrRequestNotUpdated is returned when the decision was stored but the
	// approval request message could not be edited.
	ErrRequestNotUpdated = errors.New("approval request message not updated")
)

// Approvals runs the admin decision on a pending registration.
type Approvals struct {
	msgr Messenger
	regs *service.RegistrationService
}

// NewApprovals constructs Approvals.
func NewApprovals(msgr Messenger, regs *service.RegistrationService) *Approvals {
	return &Approvals{msgr: msgr, regs: regs}
}

// Decide moves a pending registration to approved or rejected, tells the
// registrant, and rewrites the approval request so it cannot be pressed again.
// Notifying the registrant is best effort. The returned details reflect the
// registration after the decision, or as found when it was already decided.
// A failed capacity re-check after approval does not stop the notification or
// the request update; it is returned as service.ErrCapacityNotChecked.
func (a *Approvals) Decide(ctx context.Context, regID int64, status model.RegistrationStatus, admin Sender) (*model.RegistrationDetails, error) {
	if status != model.RegistrationApproved && status != model.RegistrationRejected {
		return nil, fmt.Errorf("invalid decision %q", status)
	}
	d, err := a.regs.Get(ctx, regID)
	if err != nil {
		return nil, err
	}
	if d.Status != model.RegistrationPending {
		return d, ErrAlreadyDecided
	}

	updated, err := a.regs.UpdateStatus(ctx, regID, status)
	var stored error
	switch {
	case errors.Is(err, service.ErrCapacityNotChecked):
		// the decision is stored, so the registrant and the request still follow it
		logf(ctx, "registration %d: %v", regID, err)
		stored = err
	case err != nil:
		return d, err
	}
	logf(ctx, "registration %d %s by %d", regID, status, admin.ID)

	if _, err := a.msgr.Send(updated.UserID, Message{Text: decisionNotice(*updated, status)}); err != nil {
		logf(ctx, "error notifying user %d of decision on %d: %v", updated.UserID, regID, err)
	}

	if updated.ApprovalMessageID != 0 {
		caption := decisionCaption(*updated, status, admin)
		if err := a.msgr.EditCaption(updated.ApprovalChatID, updated.ApprovalMessageID, caption); err != nil {
			return updated, fmt.Errorf("%w: %v", ErrRequestNotUpdated, err)
		}
	}
	return updated, stored
}

func decisionNotice(r model.RegistrationDetails, status model.RegistrationStatus) string {
	if status == model.RegistrationApproved {
		return fmt.Sprintf("✅ Your registration for %q has been approved! See you there.", r.Event.Name)
	}
	return fmt.Sprintf("❌ Your registration for %q was rejected. Please check your payment and register again with a new receipt, or contact an admin.", r.Event.Name)
}

func (b *Bot) decide(ctx context.Context, c Callback, regID int64, status model.RegistrationStatus) (notice, error) {
	d, err := b.approvals.Decide(ctx, regID, status, c.Sender)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return notice{text: "Registration not found.", alert: true}, nil
	case errors.Is(err, ErrAlreadyDecided):
		return notice{text: fmt.Sprintf("This registration is already %s.", d.Status), alert: true}, nil
	case errors.Is(err, service.ErrCapacityNotChecked):
		return notice{text: fmt.Sprintf("Registration %s, but the event capacity could not be checked. Please review the event status.", status), alert: true}, nil
	case errors.Is(err, ErrRequestNotUpdated):
		logf(ctx, "%v", err)
		return notice{text: fmt.Sprintf("Registration %s, but the request message could not be updated.", status), alert: true}, nil
	case err != nil:
		logf(ctx, "error deciding registration %d: %v", regID, err)
		return notice{text: "Failed to update the registration. Please try again.", alert: true}, nil
	}

	text := fmt.Sprintf("Registration %s.", status)
	if d.Event.Status == model.EventFull {
		text += " The event is now full."
	}
	return notice{text: text}, nil
}
