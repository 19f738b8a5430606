package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/service"
	"regbot/internal/validate"
)

// maxCaption is the photo caption limit.
const maxCaption = 1024

func (b *Bot) listEvents(ctx context.Context, chatID int64, editID int) error {
	events, err := b.events.ListUpcoming(ctx)
	if err != nil {
		return err
	}
	text := "Available events:"
	if len(events) == 0 {
		text = "No upcoming events at the moment."
	}
	if editID != 0 {
		// a poster message has no text to edit, so it is replaced
		if err := b.msgr.EditText(chatID, editID, Message{Text: text, Inline: eventsKeyboard(events)}); err == nil {
			return nil
		}
		b.deleteMessage(ctx, chatID, editID)
	}
	b.sendMessage(ctx, chatID, Message{Text: text, Inline: eventsKeyboard(events)})
	return nil
}

// showEvent renders event details with the fee the user would pay. A poster
// is sent as a photo with the details as caption, replacing the list message
// editID. Without a poster the list message is edited in place.
func (b *Bot) showEvent(ctx context.Context, chatID, userID, eventID int64, editID int) error {
	e, err := b.events.Get(ctx, eventID)
	if errors.Is(err, service.ErrNotFound) {
		b.sendMessage(ctx, chatID, Message{Text: "Event not found."})
		return nil
	}
	if err != nil {
		return err
	}
	fee, err := b.fees.ApplicableFee(ctx, eventID, userID)
	if err != nil {
		return err
	}

	text := b.eventDetails(*e, fee)
	kb := eventDetailsKeyboard(e.ID, b.cfg.BotUsername)
	if !e.Open() {
		kb = kb[1:]
	}

	switch {
	case e.PosterID != "" && len(text) <= maxCaption:
		if _, err := b.msgr.SendPhoto(chatID, Photo{FileID: e.PosterID, Caption: text, Inline: kb}); err != nil {
			logf(ctx, "error sending poster of event %d: %v", e.ID, err)
			b.sendMessage(ctx, chatID, Message{Text: text, Inline: kb})
		}
		if editID != 0 {
			b.deleteMessage(ctx, chatID, editID)
		}
	case editID != 0:
		b.editText(ctx, chatID, editID, text, kb)
	default:
		b.sendMessage(ctx, chatID, Message{Text: text, Inline: kb})
	}
	return nil
}

func (b *Bot) myRegistrations(ctx context.Context, chatID, userID int64, page, editID int) error {
	regs, err := b.regs.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	text := "Your registrations:"
	if len(regs) == 0 {
		text = "You haven't registered for any events yet."
	}
	kb := myRegistrationsKeyboard(regs, page)
	if editID != 0 {
		b.editText(ctx, chatID, editID, text, kb)
		return nil
	}
	b.sendMessage(ctx, chatID, Message{Text: text, Inline: kb})
	return nil
}

// ownRegistration loads a registration and hides it from anyone but its owner.
func (b *Bot) ownRegistration(ctx context.Context, userID, regID int64) (*model.RegistrationDetails, error) {
	d, err := b.regs.Get(ctx, regID)
	if err != nil {
		return nil, err
	}
	if d.UserID != userID {
		return nil, service.ErrNotFound
	}
	return d, nil
}

func (b *Bot) showMyRegistration(ctx context.Context, c Callback, regID int64) (notice, error) {
	d, err := b.ownRegistration(ctx, c.Sender.ID, regID)
	if errors.Is(err, service.ErrNotFound) {
		return notice{text: "Registration not found.", alert: true}, nil
	}
	if err != nil {
		return notice{}, err
	}
	b.editText(ctx, c.ChatID, c.MessageID, b.myRegistrationText(*d), myRegistrationKeyboard(*d))
	return notice{}, nil
}

func (b *Bot) cancelMyRegistration(ctx context.Context, c Callback, regID int64) (notice, error) {
	d, err := b.ownRegistration(ctx, c.Sender.ID, regID)
	if errors.Is(err, service.ErrNotFound) {
		return notice{text: "Registration not found.", alert: true}, nil
	}
	if err != nil {
		return notice{}, err
	}
	if !d.Status.Active() || (d.Event.Status != model.EventActive && d.Event.Status != model.EventFull) {
		return notice{text: "This registration can no longer be cancelled.", alert: true}, nil
	}

	previous := d.Status
	updated, err := b.regs.Cancel(ctx, c.Sender.ID, d.EventID)
	if err != nil {
		return notice{}, err
	}
	b.editText(ctx, c.ChatID, c.MessageID, fmt.Sprintf("Your registration for %q has been cancelled.", updated.Event.Name), nil)
	b.alertAdmins(ctx, CancellationTopic, cancellationAlert(*updated, previous, "Cancelled by the user."))
	return notice{text: "Registration cancelled."}, nil
}

// alertAdmins posts into a topic of the admin group, if one is configured.
func (b *Bot) alertAdmins(ctx context.Context, topic, text string) {
	if b.cfg.AdminGroupID == 0 {
		logf(ctx, "admin group not configured, dropping alert for %q", topic)
		return
	}
	if _, err := b.topics.Send(ctx, b.cfg.AdminGroupID, topic, Message{Text: text}); err != nil {
		logf(ctx, "error alerting admins in %q: %v", topic, err)
	}
}

func (b *Bot) showProfile(ctx context.Context, m TextMessage) error {
	u, err := b.users.Get(ctx, m.Sender.ID)
	if err != nil {
		return err
	}
	b.reply(ctx, m.ChatID, profileText(*u), b.menuFor(ctx, m.Sender.ID))
	return nil
}

func (b *Bot) showLinks(ctx context.Context, m TextMessage) {
	var kb InlineKeyboard
	if b.cfg.PublicGroupLink != "" {
		kb = append(kb, []Button{{Text: "👥 Join Group", URL: b.cfg.PublicGroupLink}})
	}
	if b.cfg.PublicChannelLink != "" {
		kb = append(kb, []Button{{Text: "📣 Join Channel", URL: b.cfg.PublicChannelLink}})
	}
	if kb == nil {
		b.reply(ctx, m.ChatID, "Group and channel links are not available yet.", b.menuFor(ctx, m.Sender.ID))
		return
	}
	b.sendMessage(ctx, m.ChatID, Message{Text: "Join our community:", Inline: kb})
}

func (b *Bot) toggleNotifications(ctx context.Context, m TextMessage) error {
	u, err := b.users.Get(ctx, m.Sender.ID)
	if err != nil {
		return err
	}
	enabled := !u.NotificationsEnabled
	if err := b.users.SetNotifications(ctx, m.Sender.ID, enabled); err != nil {
		return err
	}
	text := "Announcements turned off. Send /notifications to turn them back on."
	if enabled {
		text = "Announcements turned on."
	}
	b.reply(ctx, m.ChatID, text, b.menuFor(ctx, m.Sender.ID))
	return nil
}

var profilePrompts = map[service.ProfileField]string{
	service.FieldFirstName: "Please enter your first name:",
	service.FieldLastName:  "Please enter your last name:",
	service.FieldPhone:     "Please enter your phone number (e.g. 09123456789):",
	service.FieldStudentID: "Please enter your student ID (enter 0 if you are not a student):",
}

var profileLabels = map[service.ProfileField]string{
	service.FieldFirstName: "first name",
	service.FieldLastName:  "last name",
	service.FieldPhone:     "phone number",
	service.FieldStudentID: "student ID",
}

const (
	invalidPhone     = "Invalid phone number. Please enter a valid mobile number (e.g. 09123456789):"
	invalidStudentID = "Invalid student ID. Please enter a valid student ID, or 0 if you are not a student:"
	emptyName        = "This field cannot be empty. Please try again:"
)

// checkProfileValue returns the re-prompt for an invalid value, or "".
func checkProfileValue(field service.ProfileField, value string) string {
	switch field {
	case service.FieldPhone:
		if !validate.PhoneNumber(value) {
			return invalidPhone
		}
	case service.FieldStudentID:
		if !validate.StudentIDOrSentinel(value) {
			return invalidStudentID
		}
	default:
		if strings.TrimSpace(value) == "" {
			return emptyName
		}
	}
	return ""
}

func (b *Bot) startProfileEdit(ctx context.Context, m TextMessage, field service.ProfileField) error {
	b.dialogs.Set(m.Sender.ID, dialog.ProfileEdit{Field: field})
	b.reply(ctx, m.ChatID, profilePrompts[field], cancelKeyboard())
	return nil
}

func (b *Bot) profileEditText(ctx context.Context, m TextMessage, st dialog.ProfileEdit, text string) error {
	if msg := checkProfileValue(st.Field, text); msg != "" {
		b.reply(ctx, m.ChatID, msg, cancelKeyboard())
		return nil
	}
	u, err := b.users.UpdateField(ctx, m.Sender.ID, st.Field, strings.TrimSpace(text))
	if err != nil {
		return err
	}
	b.dialogs.Clear(m.Sender.ID)
	b.reply(ctx, m.ChatID, fmt.Sprintf("Your %s has been updated.\n\n%s", profileLabels[st.Field], profileText(*u)),
		b.menuFor(ctx, m.Sender.ID))
	return nil
}
