package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"regbot/internal/dialog"
	"regbot/internal/export"
	"regbot/internal/model"
	"regbot/internal/service"
	"regbot/internal/share"
	"regbot/internal/validate"
)

var creationPrompts = map[dialog.Step]string{
	dialog.StepEventName:        "Please enter the event name:",
	dialog.StepEventDescription: "Please enter the event description:",
	dialog.StepEventCapacity:    "Please enter the event capacity (number of participants):",
	dialog.StepEventFee:         "Please enter the regular fee (0 for a free event):",
	dialog.StepEventStudentFee:  "Please enter the student fee (0 to use the regular fee):",
	dialog.StepEventDate:        "Please enter the event date and time (YYYY-MM-DD HH:MM):",
	dialog.StepEventLocation:    "Please enter the event location (or - to skip):",
}

const (
	invalidCapacity = "Invalid capacity. Please enter a positive whole number:"
	invalidFee      = "Invalid fee. Please enter a non-negative number:"
	invalidDate     = "Invalid date. Please use the format YYYY-MM-DD HH:MM:"
	pastDate        = "The event date must be in the future. Please enter another date:"
	emptyEventName  = "The event name cannot be empty. Please try again:"
)

func (b *Bot) openAdminPanel(ctx context.Context, m TextMessage) error {
	b.dialogs.Clear(m.Sender.ID)
	b.reply(ctx, m.ChatID, "Welcome to the Admin Panel. What would you like to do?", adminMenu())
	return nil
}

func (b *Bot) startEventCreation(ctx context.Context, m TextMessage) error {
	b.dialogs.Set(m.Sender.ID, dialog.EventDraft{Step: dialog.StepEventName})
	b.reply(ctx, m.ChatID, "Let's create a new event.\n\n"+creationPrompts[dialog.StepEventName], cancelKeyboard())
	return nil
}

func (b *Bot) eventDraftText(ctx context.Context, m TextMessage, st dialog.EventDraft, text string) error {
	value := strings.TrimSpace(text)
	retry := func(prompt string) error {
		b.reply(ctx, m.ChatID, prompt, cancelKeyboard())
		return nil
	}

	switch st.Step {
	case dialog.StepEventName:
		if value == "" {
			return retry(emptyEventName)
		}
		st.Name = value
	case dialog.StepEventDescription:
		st.Description = value
	case dialog.StepEventCapacity:
		n, ok := validate.Capacity(value)
		if !ok {
			return retry(invalidCapacity)
		}
		st.Capacity = n
	case dialog.StepEventFee:
		f, ok := validate.Fee(value)
		if !ok {
			return retry(invalidFee)
		}
		st.Fee = f
	case dialog.StepEventStudentFee:
		f, ok := validate.Fee(value)
		if !ok {
			return retry(invalidFee)
		}
		st.StudentFee = f
	case dialog.StepEventDate:
		t, ok := validate.EventDate(value, b.cfg.Location)
		if !ok {
			return retry(invalidDate)
		}
		if !t.After(b.now()) {
			return retry(pastDate)
		}
		st.Date = t
	case dialog.StepEventLocation:
		if value == "-" {
			value = ""
		}
		st.Location = value
		st.Step = st.Next()
		b.dialogs.Set(m.Sender.ID, st)
		b.reply(ctx, m.ChatID, b.draftSummary(st), yesNoKeyboard())
		return nil
	case dialog.StepEventConfirm:
		return b.confirmEventDraft(ctx, m, st, value)
	default:
		return fmt.Errorf("unexpected event creation step %q", st.Step)
	}

	st.Step = st.Next()
	b.dialogs.Set(m.Sender.ID, st)
	b.reply(ctx, m.ChatID, creationPrompts[st.Step], cancelKeyboard())
	return nil
}

func (b *Bot) confirmEventDraft(ctx context.Context, m TextMessage, st dialog.EventDraft, answer string) error {
	switch strings.ToLower(answer) {
	case "yes":
	case "no":
		b.dialogs.Clear(m.Sender.ID)
		b.reply(ctx, m.ChatID, "Event creation cancelled.", adminMenu())
		return nil
	default:
		b.reply(ctx, m.ChatID, "Please answer Yes or No.", yesNoKeyboard())
		return nil
	}

	e := &model.Event{
		Name:        st.Name,
		Description: st.Description,
		Capacity:    st.Capacity,
		Fee:         st.Fee,
		StudentFee:  st.StudentFee,
		Date:        st.Date,
		Location:    st.Location,
	}
	if err := b.events.CreateEvent(ctx, e); err != nil {
		return err
	}
	b.dialogs.Clear(m.Sender.ID)
	logf(ctx, "event %d %q created by %d", e.ID, e.Name, m.Sender.ID)

	text := fmt.Sprintf("Event %q created successfully!", e.Name)
	if b.cfg.BotUsername != "" {
		text += "\n\nShare link: " + share.EventLink(b.cfg.BotUsername, e.ID)
	}
	b.reply(ctx, m.ChatID, text, adminMenu())
	return nil
}

var listTitles = map[int64]string{
	listManage:      "Select an event to manage:",
	listRegistrants: "Select an event to view its registrants:",
	listAnnounce:    "Select an event to notify its participants:",
}

func (b *Bot) adminEventList(mode int64) textHandler {
	return func(ctx context.Context, m TextMessage) error {
		return b.sendAdminEventList(ctx, m.ChatID, 0, 0, mode)
	}
}

// sendAdminEventList lists every event, or only the open ones when picking
// an event to notify.
func (b *Bot) sendAdminEventList(ctx context.Context, chatID int64, editID, page int, mode int64) error {
	list := b.events.List
	if mode == listAnnounce {
		list = b.events.ListActive
	}
	events, err := list(ctx)
	if err != nil {
		return err
	}
	text := listTitles[mode]
	if len(events) == 0 {
		text = "No events yet."
	}
	kb := adminEventsKeyboard(events, page, mode)
	if editID != 0 {
		b.editText(ctx, chatID, editID, text, kb)
		return nil
	}
	b.sendMessage(ctx, chatID, Message{Text: text, Inline: kb})
	return nil
}

// adminEvent loads an event for an admin action; a nil event means a not-found
// notice was produced.
func (b *Bot) adminEvent(ctx context.Context, id int64) (*model.Event, notice, error) {
	e, err := b.events.Get(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		return nil, notice{text: "Event not found.", alert: true}, nil
	}
	return e, notice{}, err
}

func (b *Bot) showAdminEvent(ctx context.Context, c Callback, id int64) (notice, error) {
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	approved, err := b.events.ApprovedCount(ctx, id)
	if err != nil {
		return notice{}, err
	}
	b.editText(ctx, c.ChatID, c.MessageID, b.adminEventDetails(*e, approved), adminEventKeyboard(id))
	return notice{}, nil
}

func (b *Bot) startEventEdit(ctx context.Context, c Callback, id int64, fieldIdx int) (notice, error) {
	if fieldIdx < 0 || fieldIdx >= len(dialog.EventFields) {
		return notice{text: "Unknown field.", alert: true}, nil
	}
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	field := dialog.EventFields[fieldIdx]
	b.dialogs.Set(c.Sender.ID, dialog.EventEdit{EventID: id, Field: field})

	prompt := fmt.Sprintf("Editing %q.\nCurrent %s: %s\n\nPlease enter the new %s:",
		e.Name, strings.ToLower(fieldLabels[field]), b.currentValue(*e, field), strings.ToLower(fieldLabels[field]))
	switch field {
	case dialog.EventPoster:
		prompt = fmt.Sprintf("Please send the new poster image for %q:", e.Name)
	case dialog.EventDate:
		prompt += " (YYYY-MM-DD HH:MM)"
	}
	b.reply(ctx, c.ChatID, prompt, cancelKeyboard())
	return notice{}, nil
}

func (b *Bot) currentValue(e model.Event, field dialog.EventField) string {
	switch field {
	case dialog.EventName:
		return e.Name
	case dialog.EventDescription:
		return orNA(e.Description)
	case dialog.EventCapacity:
		return fmt.Sprint(e.Capacity)
	case dialog.EventFee:
		return money(e.Fee)
	case dialog.EventStudentFee:
		return money(e.StudentFee)
	case dialog.EventDate:
		return b.date(e.Date)
	case dialog.EventLocation:
		return orNA(e.Location)
	}
	return ""
}

// eventPatch parses an admin edit. ok is false when value is invalid for field.
func (b *Bot) eventPatch(field dialog.EventField, value string) (patch model.EventPatch, ok bool) {
	value = strings.TrimSpace(value)
	switch field {
	case dialog.EventName:
		patch.Name = &value
		return patch, value != ""
	case dialog.EventDescription:
		patch.Description = &value
	case dialog.EventLocation:
		if value == "-" {
			value = ""
		}
		patch.Location = &value
	case dialog.EventCapacity:
		n, valid := validate.Capacity(value)
		patch.Capacity = &n
		return patch, valid
	case dialog.EventFee:
		f, valid := validate.Fee(value)
		patch.Fee = &f
		return patch, valid
	case dialog.EventStudentFee:
		f, valid := validate.Fee(value)
		patch.StudentFee = &f
		return patch, valid
	case dialog.EventDate:
		t, valid := validate.EventDate(value, b.cfg.Location)
		patch.Date = &t
		return patch, valid
	default:
		return patch, false
	}
	return patch, true
}

// eventEditText applies a single-field edit. Invalid input aborts the edit.
func (b *Bot) eventEditText(ctx context.Context, m TextMessage, st dialog.EventEdit, text string) error {
	b.dialogs.Clear(m.Sender.ID)
	label := strings.ToLower(fieldLabels[st.Field])
	patch, ok := b.eventPatch(st.Field, text)
	if !ok {
		b.reply(ctx, m.ChatID, fmt.Sprintf("Invalid %s. Operation cancelled.", label), adminMenu())
		return nil
	}
	return b.applyEventPatch(ctx, m.ChatID, st, patch)
}

func (b *Bot) updatePoster(ctx context.Context, p PhotoMessage, st dialog.EventEdit) error {
	b.dialogs.Clear(p.Sender.ID)
	return b.applyEventPatch(ctx, p.ChatID, st, model.EventPatch{PosterID: &p.FileID})
}

func (b *Bot) applyEventPatch(ctx context.Context, chatID int64, st dialog.EventEdit, patch model.EventPatch) error {
	before, err := b.events.Get(ctx, st.EventID)
	if errors.Is(err, service.ErrNotFound) {
		b.reply(ctx, chatID, "Event not found. Operation cancelled.", adminMenu())
		return nil
	}
	if err != nil {
		return err
	}
	after, err := b.events.UpdateEvent(ctx, st.EventID, patch)
	if errors.Is(err, service.ErrNotFound) {
		b.reply(ctx, chatID, "Event not found. Operation cancelled.", adminMenu())
		return nil
	}
	if err != nil {
		return err
	}
	text := fmt.Sprintf("Event %s updated successfully!", strings.ToLower(fieldLabels[st.Field]))
	if after.Status != before.Status {
		text += fmt.Sprintf("\nThe event is now %s.", after.Status)
	}
	b.reply(ctx, chatID, text, adminMenu())
	return nil
}

func (b *Bot) showRegistrants(ctx context.Context, c Callback, id int64) (notice, error) {
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	regs, err := b.events.Registrants(ctx, id)
	if err != nil {
		return notice{}, err
	}
	b.editText(ctx, c.ChatID, c.MessageID, registrantsText(*e, regs), registrantsKeyboard(id))
	return notice{}, nil
}

func (b *Bot) exportRegistrants(ctx context.Context, c Callback, id int64) (notice, error) {
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	regs, err := b.events.Registrants(ctx, id)
	if err != nil {
		return notice{}, err
	}
	buf, err := export.Workbook(*e, regs, b.cfg.Location)
	if err != nil {
		return notice{}, err
	}
	s := export.Summarize(regs)
	err = b.msgr.SendDocument(c.ChatID, Document{
		Name:    export.Filename(*e, b.now().In(b.cfg.Location)),
		Bytes:   buf.Bytes(),
		Caption: fmt.Sprintf("Registrants of %q: %d total, %d approved, revenue %s", e.Name, s.Total, s.Approved, money(s.Revenue)),
	})
	if err != nil {
		logf(ctx, "error sending export of event %d: %v", id, err)
		return notice{text: "Failed to send the export file.", alert: true}, nil
	}
	return notice{text: "Export ready."}, nil
}

func (b *Bot) openAnnouncements(ctx context.Context, m TextMessage) error {
	b.dialogs.Clear(m.Sender.ID)
	b.sendMessage(ctx, m.ChatID, Message{Text: "Who should receive the announcement?", Inline: announcementKeyboard()})
	return nil
}

func (b *Bot) startBroadcast(ctx context.Context, c Callback, eventID int64) (notice, error) {
	prompt := "Please enter the announcement to send to all users:"
	if eventID != 0 {
		e, n, err := b.adminEvent(ctx, eventID)
		if e == nil {
			return n, err
		}
		prompt = fmt.Sprintf("Please enter the notification for the approved participants of %q:", e.Name)
	}
	b.dialogs.Set(c.Sender.ID, dialog.Broadcast{EventID: eventID})
	b.reply(ctx, c.ChatID, prompt, cancelKeyboard())
	return notice{}, nil
}

func (b *Bot) broadcastText(ctx context.Context, m TextMessage, st dialog.Broadcast, text string) error {
	if text == "" {
		b.reply(ctx, m.ChatID, "The message cannot be empty. Please try again:", cancelKeyboard())
		return nil
	}
	b.dialogs.Clear(m.Sender.ID)

	var recipients []int64
	body := "📢 Announcement\n\n" + text
	if st.EventID == 0 {
		users, err := b.users.Recipients(ctx)
		if err != nil {
			return err
		}
		for _, u := range users {
			recipients = append(recipients, u.TelegramID)
		}
	} else {
		e, err := b.events.Get(ctx, st.EventID)
		if errors.Is(err, service.ErrNotFound) {
			b.reply(ctx, m.ChatID, "Event not found. Operation cancelled.", adminMenu())
			return nil
		}
		if err != nil {
			return err
		}
		regs, err := b.events.Registrants(ctx, st.EventID)
		if err != nil {
			return err
		}
		for _, r := range regs {
			if r.Status == model.RegistrationApproved {
				recipients = append(recipients, r.UserID)
			}
		}
		body = fmt.Sprintf("📢 Notification for event %q\n\n%s", e.Name, text)
	}

	if len(recipients) == 0 {
		b.reply(ctx, m.ChatID, "There is nobody to notify.", adminMenu())
		return nil
	}
	res := Broadcast(ctx, b.msgr, recipients, Message{Text: body}, b.cfg.BroadcastConcurrency)
	logf(ctx, "broadcast by %d: %d sent, %d failed", m.Sender.ID, res.Sent, res.Failed)
	b.reply(ctx, m.ChatID, fmt.Sprintf("Notification sent successfully to %d users. Failed: %d.", res.Sent, res.Failed), adminMenu())
	return nil
}

func (b *Bot) askCancelEvent(ctx context.Context, c Callback, id int64) (notice, error) {
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	if !e.Open() {
		return notice{text: fmt.Sprintf("This event is %s and cannot be cancelled.", e.Status), alert: true}, nil
	}
	b.editText(ctx, c.ChatID, c.MessageID,
		fmt.Sprintf("Are you sure you want to cancel %q? All pending and approved registrants will be notified.", e.Name),
		confirmCancelEventKeyboard(id))
	return notice{}, nil
}

// cancelEvent cancels the event and its active registrations, alerts the
// admins about each refund and tells every affected registrant.
func (b *Bot) cancelEvent(ctx context.Context, c Callback, id int64) (notice, error) {
	e, err := b.events.Cancel(ctx, id)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return notice{text: "Event not found.", alert: true}, nil
	case errors.Is(err, service.ErrNotCancellable):
		return notice{text: "This event cannot be cancelled in its current status.", alert: true}, nil
	case err != nil:
		return notice{}, err
	}
	logf(ctx, "event %d cancelled by %d", id, c.Sender.ID)

	affected, cancelErr := b.regs.CancelAllForEvent(ctx, id)
	recipients := make([]int64, 0, len(affected))
	reason := fmt.Sprintf("Event %q was cancelled by an admin.", e.Name)
	for _, r := range affected {
		b.alertAdmins(ctx, CancellationTopic, cancellationAlert(r, r.Status, reason))
		recipients = append(recipients, r.UserID)
	}
	res := Broadcast(ctx, b.msgr, recipients, Message{Text: b.eventCancelledNotice(*e)}, b.cfg.BroadcastConcurrency)
	if cancelErr != nil {
		return notice{}, cancelErr
	}

	b.editText(ctx, c.ChatID, c.MessageID,
		fmt.Sprintf("Event %q has been cancelled and %d registrants have been notified (%d failed).", e.Name, res.Sent, res.Failed),
		InlineKeyboard{{data("⬅️ Back to Events", actAdminBack)}})
	return notice{text: "Event cancelled."}, nil
}

func (b *Bot) showFeedback(ctx context.Context, c Callback, id int64) (notice, error) {
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	items, err := b.feedback.ForEvent(ctx, id)
	if err != nil {
		return notice{}, err
	}
	avg, ok, err := b.feedback.Average(ctx, id)
	if err != nil {
		return notice{}, err
	}
	b.editText(ctx, c.ChatID, c.MessageID, feedbackText(*e, items, avg, ok),
		InlineKeyboard{{data("⬅️ Back", action(actAdminEvent, id))}})
	return notice{}, nil
}

func (b *Bot) shareQR(ctx context.Context, c Callback, id int64) (notice, error) {
	if b.cfg.BotUsername == "" {
		return notice{text: "BOT_USERNAME is not configured.", alert: true}, nil
	}
	e, n, err := b.adminEvent(ctx, id)
	if e == nil {
		return n, err
	}
	png, err := share.EventQR(b.cfg.BotUsername, id)
	if err != nil {
		return notice{}, err
	}
	_, err = b.msgr.SendPhoto(c.ChatID, Photo{
		Name:    fmt.Sprintf("event_%d.png", id),
		Bytes:   png,
		Caption: fmt.Sprintf("%s\n%s", e.Name, share.EventLink(b.cfg.BotUsername, id)),
	})
	if err != nil {
		logf(ctx, "error sending qr of event %d: %v", id, err)
		return notice{text: "Failed to send the QR code.", alert: true}, nil
	}
	return notice{}, nil
}
