package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"regbot/internal/archive"
	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/service"
)

const (
	eventFullText  = "Sorry, this event is already full."
	closedText     = "Registration for this event is closed."
	submittedText  = "Your registration has been submitted and is pending approval. You will be notified once it has been reviewed."
	resubmitText   = "Your new receipt has been submitted and is pending approval. You will be notified once it has been reviewed."
	chooseOptionTx = "Please choose one of the options below."
)

// existingRegistrationText explains why a user cannot register again, or
// returns "" when a new attempt is allowed.
func existingRegistrationText(status model.RegistrationStatus) string {
	switch status {
	case model.RegistrationApproved:
		return "You are already registered for this event."
	case model.RegistrationPending:
		return "Your registration for this event is pending approval."
	case model.RegistrationCancelled:
		return "Your registration for this event was cancelled. Please contact an admin if you want to rejoin."
	}
	return ""
}

func (b *Bot) startRegistration(ctx context.Context, c Callback, eventID int64) (notice, error) {
	e, err := b.events.Get(ctx, eventID)
	if errors.Is(err, service.ErrNotFound) {
		return notice{text: "Event not found.", alert: true}, nil
	}
	if err != nil {
		return notice{}, err
	}
	if !e.Open() {
		return notice{text: closedText, alert: true}, nil
	}
	ok, err := b.events.CheckCapacity(ctx, eventID)
	if err != nil {
		return notice{}, err
	}
	if !ok {
		return notice{text: eventFullText, alert: true}, nil
	}

	existing, err := b.regs.ForEventAndUser(ctx, eventID, c.Sender.ID)
	switch {
	case err == nil:
		if text := existingRegistrationText(existing.Status); text != "" {
			return notice{text: text, alert: true}, nil
		}
	case !errors.Is(err, service.ErrNotFound):
		return notice{}, err
	}

	u, err := b.users.Get(ctx, c.Sender.ID)
	if err != nil {
		return notice{}, err
	}
	st := dialog.Registration{EventID: eventID, Step: dialog.StepFirstName}
	if u.ProfileComplete() {
		st.Step = dialog.StepConfirmProfile
		st.FirstName, st.LastName, st.Phone, st.StudentID = u.FirstName, u.LastName, u.PhoneNumber, u.StudentID
		b.dialogs.Set(c.Sender.ID, st)
		b.reply(ctx, c.ChatID, profilePreview(st.FirstName, st.LastName, st.Phone, st.StudentID), confirmProfileKeyboard())
		return notice{}, nil
	}
	b.dialogs.Set(c.Sender.ID, st)
	b.reply(ctx, c.ChatID, fmt.Sprintf("Registering for %q.\n\n%s", e.Name, profilePrompts[service.FieldFirstName]), cancelKeyboard())
	return notice{}, nil
}

func (b *Bot) registrationText(ctx context.Context, m TextMessage, st dialog.Registration, text string) error {
	var field service.ProfileField
	switch st.Step {
	case dialog.StepConfirmProfile:
		switch text {
		case btnUseProfile:
			return b.askForReceipt(ctx, m, st)
		case btnUpdateProfile:
			st.Step = dialog.StepFirstName
			b.dialogs.Set(m.Sender.ID, st)
			b.reply(ctx, m.ChatID, profilePrompts[service.FieldFirstName], cancelKeyboard())
		default:
			b.reply(ctx, m.ChatID, chooseOptionTx, confirmProfileKeyboard())
		}
		return nil
	case dialog.StepFirstName:
		field = service.FieldFirstName
	case dialog.StepLastName:
		field = service.FieldLastName
	case dialog.StepPhone:
		field = service.FieldPhone
	case dialog.StepStudentID:
		field = service.FieldStudentID
	default:
		return fmt.Errorf("unexpected registration step %q", st.Step)
	}

	if msg := checkProfileValue(field, text); msg != "" {
		b.reply(ctx, m.ChatID, msg, cancelKeyboard())
		return nil
	}
	value := strings.TrimSpace(text)
	switch field {
	case service.FieldFirstName:
		st.FirstName = value
	case service.FieldLastName:
		st.LastName = value
	case service.FieldPhone:
		st.Phone = value
	case service.FieldStudentID:
		st.StudentID = value
		return b.askForReceipt(ctx, m, st)
	}
	st.Step = st.Next()
	b.dialogs.Set(m.Sender.ID, st)
	b.reply(ctx, m.ChatID, profilePrompts[stepFields[st.Step]], cancelKeyboard())
	return nil
}

var stepFields = map[dialog.Step]service.ProfileField{
	dialog.StepFirstName: service.FieldFirstName,
	dialog.StepLastName:  service.FieldLastName,
	dialog.StepPhone:     service.FieldPhone,
	dialog.StepStudentID: service.FieldStudentID,
}

// askForReceipt shows the payment details for the fee the collected profile
// would pay and waits for the receipt photo.
func (b *Bot) askForReceipt(ctx context.Context, m TextMessage, st dialog.Registration) error {
	e, err := b.events.Get(ctx, st.EventID)
	if errors.Is(err, service.ErrNotFound) {
		b.dialogs.Clear(m.Sender.ID)
		b.reply(ctx, m.ChatID, "Event not found.", b.menuFor(ctx, m.Sender.ID))
		return nil
	}
	if err != nil {
		return err
	}
	st.Step = dialog.StepReceipt
	b.dialogs.Set(m.Sender.ID, st)
	number, owner := b.cfg.PaymentInstructions()
	b.reply(ctx, m.ChatID, paymentText(e.FeeFor(st.StudentID), number, owner), cancelKeyboard())
	return nil
}

// submitRegistration is the terminal step: the profile is stored, the
// registration created and the receipt posted for approval. The event may have
// been cancelled or completed since the flow started, so it is checked again
// before anything is saved.
func (b *Bot) submitRegistration(ctx context.Context, p PhotoMessage, st dialog.Registration) error {
	userID := p.Sender.ID
	e, err := b.events.Get(ctx, st.EventID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		b.dialogs.Clear(userID)
		b.reply(ctx, p.ChatID, "Event not found.", b.menuFor(ctx, userID))
		return nil
	case err != nil:
		return err
	case !e.Open():
		b.dialogs.Clear(userID)
		b.reply(ctx, p.ChatID, closedText, b.menuFor(ctx, userID))
		return nil
	}

	u, err := b.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	u.FirstName, u.LastName, u.PhoneNumber, u.StudentID = st.FirstName, st.LastName, st.Phone, st.StudentID
	if err := b.users.SaveProfile(ctx, *u); err != nil {
		return err
	}

	reg, outcome, err := b.regs.Create(ctx, userID, st.EventID, p.FileID)
	b.dialogs.Clear(userID)
	menu := b.menuFor(ctx, userID)
	switch {
	case errors.Is(err, service.ErrEventFull):
		b.reply(ctx, p.ChatID, eventFullText, menu)
		return nil
	case errors.Is(err, service.ErrRegistrationClosed):
		b.reply(ctx, p.ChatID, closedText, menu)
		return nil
	case errors.Is(err, service.ErrNotFound):
		b.reply(ctx, p.ChatID, "Event not found.", menu)
		return nil
	case err != nil:
		return err
	}
	if outcome == service.Existing {
		b.reply(ctx, p.ChatID, existingRegistrationText(reg.Status), menu)
		return nil
	}

	d, err := b.regs.Get(ctx, reg.ID)
	if err != nil {
		return err
	}
	b.postApprovalRequest(ctx, *d)
	if outcome == service.Resubmitted {
		b.reply(ctx, p.ChatID, resubmitText, menu)
	} else {
		b.reply(ctx, p.ChatID, submittedText, menu)
	}
	b.archiveReceipt(ctx, reg.ID, p.FileID)
	return nil
}

// postApprovalRequest posts the receipt with approve and reject buttons into
// the event's topic of the admin group.
func (b *Bot) postApprovalRequest(ctx context.Context, d model.RegistrationDetails) {
	if b.cfg.AdminGroupID == 0 {
		logf(ctx, "admin group not configured, registration %d awaits approval without a request", d.ID)
		return
	}
	msgID, err := b.topics.SendPhoto(ctx, b.cfg.AdminGroupID, d.Event.Name, Photo{
		FileID:  d.ReceiptFileID,
		Caption: approvalCaption(d),
		Inline:  approvalKeyboard(d.ID),
	})
	if err != nil {
		logf(ctx, "error posting approval request for registration %d: %v", d.ID, err)
		return
	}
	if err := b.regs.AttachApprovalMessage(ctx, d.ID, b.cfg.AdminGroupID, msgID); err != nil {
		logf(ctx, "error saving approval message of registration %d: %v", d.ID, err)
	}
}

func (b *Bot) archiveReceipt(ctx context.Context, regID int64, fileID string) {
	if _, ok := b.archiver.(archive.Nop); ok {
		return
	}
	fileURL, err := b.msgr.FileURL(fileID)
	if err != nil {
		logf(ctx, "error resolving receipt of registration %d: %v", regID, err)
		return
	}
	archived, err := b.archiver.Archive(ctx, fileURL, fmt.Sprintf("registration_%d", regID))
	if err != nil {
		logf(ctx, "error archiving receipt of registration %d: %v", regID, err)
		return
	}
	if archived == "" {
		return
	}
	if err := b.regs.AttachReceiptArchive(ctx, regID, archived); err != nil {
		logf(ctx, "error saving receipt archive of registration %d: %v", regID, err)
	}
}
