// Package bot implements the conversational front end: menus, multi-step
// flows, admin approvals and notifications on top of the service layer.
package bot

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"regbot/internal/archive"
	"regbot/internal/config"
	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/service"
	"regbot/internal/share"
)

// Services groups the domain services the bot drives.
type Services struct {
	Users         *service.UserService
	Events        *service.EventService
	Registrations *service.RegistrationService
	Fees          *service.FeeResolver
	Feedback      *service.FeedbackService
}

// Bot routes inbound messages to flows and menus.
type Bot struct {
	msgr      Messenger
	cfg       *config.Config
	users     *service.UserService
	events    *service.EventService
	regs      *service.RegistrationService
	fees      *service.FeeResolver
	feedback  *service.FeedbackService
	dialogs   *dialog.Manager
	topics    *Topics
	approvals *Approvals
	archiver  archive.Archiver
	now       func() time.Time
}

// New wires a Bot. A nil archiver disables receipt archiving.
func New(msgr Messenger, cfg *config.Config, svc Services, topics TopicStore, archiver archive.Archiver) *Bot {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return &Bot{
		msgr:      msgr,
		cfg:       cfg,
		users:     svc.Users,
		events:    svc.Events,
		regs:      svc.Registrations,
		fees:      svc.Fees,
		feedback:  svc.Feedback,
		dialogs:   dialog.NewManager(),
		topics:    NewTopics(msgr, topics),
		approvals: NewApprovals(msgr, svc.Registrations),
		archiver:  archiver,
		now:       time.Now,
	}
}

// Dialogs exposes the conversation state table.
func (b *Bot) Dialogs() *dialog.Manager {
	return b.dialogs
}

type requestIDKey struct{}

// logf prefixes log lines with the request id of the update being handled.
func logf(ctx context.Context, format string, args ...interface{}) {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		format = "[BOT " + id + "] " + format
	} else {
		format = "[BOT] " + format
	}
	log.Printf(format, args...)
}

// run is the error boundary around every inbound update. Failures clear the
// user's flow and send a generic apology.
func (b *Bot) run(ctx context.Context, kind string, userID, chatID int64, fn func(ctx context.Context) error) {
	ctx = context.WithValue(ctx, requestIDKey{}, uuid.NewString()[:8])
	defer func() {
		if r := recover(); r != nil {
			logf(ctx, "panic handling %s from %d: %v\n%s", kind, userID, r, debug.Stack())
			b.fail(ctx, userID, chatID)
		}
	}()
	if err := fn(ctx); err != nil {
		logf(ctx, "error handling %s from %d: %v", kind, userID, err)
		b.fail(ctx, userID, chatID)
	}
}

func (b *Bot) fail(ctx context.Context, userID, chatID int64) {
	b.dialogs.Clear(userID)
	b.sendMessage(ctx, chatID, Message{Text: "An error occurred. Please try again."})
}

// sendMessage sends and logs failures; delivery is best effort.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, m Message) {
	if _, err := b.msgr.Send(chatID, m); err != nil {
		logf(ctx, "error sending message to %d: %v", chatID, err)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, kb ReplyKeyboard) {
	b.sendMessage(ctx, chatID, Message{Text: text, Reply: kb})
}

func (b *Bot) editText(ctx context.Context, chatID int64, messageID int, text string, kb InlineKeyboard) {
	if err := b.msgr.EditText(chatID, messageID, Message{Text: text, Inline: kb}); err != nil {
		logf(ctx, "error editing message %d in %d: %v", messageID, chatID, err)
	}
}

func (b *Bot) deleteMessage(ctx context.Context, chatID int64, messageID int) {
	if err := b.msgr.Delete(chatID, messageID); err != nil {
		logf(ctx, "error deleting message %d in %d: %v", messageID, chatID, err)
	}
}

func (b *Bot) menuFor(ctx context.Context, userID int64) ReplyKeyboard {
	return mainMenu(b.IsAdmin(ctx, userID))
}

// HandleText routes an inbound text: commands first, then the active flow,
// then the menu. Menu buttons always win over the active flow.
func (b *Bot) HandleText(ctx context.Context, m TextMessage) {
	b.run(ctx, "text", m.Sender.ID, m.ChatID, func(ctx context.Context) error {
		if _, err := b.users.Ensure(ctx, m.Sender.ID, m.FirstName, m.LastName); err != nil {
			return err
		}
		text := strings.TrimSpace(m.Text)
		if strings.HasPrefix(text, "/") {
			return b.handleCommand(ctx, m, text)
		}
		if st := b.dialogs.Get(m.Sender.ID); st != nil {
			if text == btnCancel || dialog.IsCancel(text) {
				b.cancelFlow(ctx, m, st)
				return nil
			}
			if !menuLabels[text] {
				return b.handleFlowText(ctx, m, st, text)
			}
			// a menu button starts a new action and drops the unfinished flow
			b.dialogs.Clear(m.Sender.ID)
		}
		return b.handleMenu(ctx, m, text)
	})
}

// HandleCallback routes an inline button press.
func (b *Bot) HandleCallback(ctx context.Context, c Callback) {
	b.run(ctx, "callback", c.Sender.ID, c.ChatID, func(ctx context.Context) error {
		a, err := ParseAction(c.Data)
		if err != nil {
			b.answer(ctx, c, notice{text: "Unknown action."})
			return nil
		}
		if a.AdminOnly() && !b.IsAdmin(ctx, c.Sender.ID) {
			b.answer(ctx, c, notice{text: adminDenied, alert: true})
			return nil
		}
		if _, err := b.users.Ensure(ctx, c.Sender.ID, c.FirstName, c.LastName); err != nil {
			return err
		}
		n, err := b.handleAction(ctx, c, a)
		b.answer(ctx, c, n)
		return err
	})
}

// HandlePhoto feeds a photo to the active flow when it is waiting for one.
// Photos outside such a step are ignored.
func (b *Bot) HandlePhoto(ctx context.Context, p PhotoMessage) {
	b.run(ctx, "photo", p.Sender.ID, p.ChatID, func(ctx context.Context) error {
		switch st := b.dialogs.Get(p.Sender.ID).(type) {
		case dialog.Registration:
			if st.WaitsForPhoto() {
				return b.submitRegistration(ctx, p, st)
			}
		case dialog.EventEdit:
			if st.WaitsForPhoto() {
				return b.updatePoster(ctx, p, st)
			}
		}
		return nil
	})
}

// notice is the toast or alert shown in answer to a button press.
type notice struct {
	text  string
	alert bool
}

func (b *Bot) answer(ctx context.Context, c Callback, n notice) {
	if err := b.msgr.AnswerCallback(c.QueryID, n.text, n.alert); err != nil {
		logf(ctx, "error answering callback %s: %v", c.QueryID, err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, m TextMessage, text string) error {
	cmd, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	args = strings.TrimSpace(args)

	switch strings.ToLower(cmd) {
	case "start":
		return b.start(ctx, m, args)
	case "cancel":
		if st := b.dialogs.Get(m.Sender.ID); st != nil {
			b.cancelFlow(ctx, m, st)
			return nil
		}
		b.reply(ctx, m.ChatID, "There is no active operation to cancel.", b.menuFor(ctx, m.Sender.ID))
	case "help":
		b.reply(ctx, m.ChatID, helpText, b.menuFor(ctx, m.Sender.ID))
	case "admin":
		return b.AdminCheckMiddleware(b.openAdminPanel)(ctx, m)
	case "editfirstname":
		return b.startProfileEdit(ctx, m, service.FieldFirstName)
	case "editlastname":
		return b.startProfileEdit(ctx, m, service.FieldLastName)
	case "editphone":
		return b.startProfileEdit(ctx, m, service.FieldPhone)
	case "editstudentid":
		return b.startProfileEdit(ctx, m, service.FieldStudentID)
	case "notifications":
		return b.toggleNotifications(ctx, m)
	default:
		b.reply(ctx, m.ChatID, "Unknown command. Send /help to see what I can do.", nil)
	}
	return nil
}

const helpText = `Use the menu buttons to browse and register for events.

/start - Show the main menu
/cancel - Cancel the current operation
/editfirstname, /editlastname, /editphone, /editstudentid - Update your profile
/notifications - Turn announcements on or off`

func (b *Bot) start(ctx context.Context, m TextMessage, payload string) error {
	b.dialogs.Clear(m.Sender.ID)
	name := m.FirstName
	if name == "" {
		name = "there"
	}
	b.reply(ctx, m.ChatID, fmt.Sprintf("Welcome, %s! Use the menu below to browse events and manage your registrations.", name),
		b.menuFor(ctx, m.Sender.ID))

	if eventID, ok := share.ParseStartPayload(payload); ok {
		return b.showEvent(ctx, m.ChatID, m.Sender.ID, eventID, 0)
	}
	return nil
}

func (b *Bot) cancelFlow(ctx context.Context, m TextMessage, st dialog.State) {
	b.dialogs.Clear(m.Sender.ID)
	kb := b.menuFor(ctx, m.Sender.ID)
	switch st.Flow() {
	case dialog.EventCreationFlow, dialog.EventEditFlow, dialog.BroadcastFlow:
		kb = adminMenu()
	}
	b.reply(ctx, m.ChatID, "Operation cancelled.", kb)
}

func (b *Bot) handleFlowText(ctx context.Context, m TextMessage, st dialog.State, text string) error {
	if pw, ok := st.(dialog.PhotoWaiter); ok && pw.WaitsForPhoto() {
		return nil
	}
	switch st := st.(type) {
	case dialog.Registration:
		return b.registrationText(ctx, m, st, text)
	case dialog.EventDraft:
		return b.eventDraftText(ctx, m, st, text)
	case dialog.EventEdit:
		return b.eventEditText(ctx, m, st, text)
	case dialog.ProfileEdit:
		return b.profileEditText(ctx, m, st, text)
	case dialog.Broadcast:
		return b.broadcastText(ctx, m, st, text)
	case dialog.FeedbackComment:
		return b.feedbackCommentText(ctx, m, st, text)
	}
	return fmt.Errorf("unhandled flow %s", st.Flow())
}

func (b *Bot) handleMenu(ctx context.Context, m TextMessage, text string) error {
	switch text {
	case btnRegister:
		return b.listEvents(ctx, m.ChatID, 0)
	case btnEventStatus:
		return b.myRegistrations(ctx, m.ChatID, m.Sender.ID, 0, 0)
	case btnProfile:
		return b.showProfile(ctx, m)
	case btnLinks:
		b.showLinks(ctx, m)
	case btnMainMenu:
		b.reply(ctx, m.ChatID, "Main menu", b.menuFor(ctx, m.Sender.ID))
	case btnAdminPanel:
		return b.AdminCheckMiddleware(b.openAdminPanel)(ctx, m)
	case btnCreateEvent:
		return b.AdminCheckMiddleware(b.startEventCreation)(ctx, m)
	case btnEditEvents:
		return b.AdminCheckMiddleware(b.adminEventList(listManage))(ctx, m)
	case btnRegistrants:
		return b.AdminCheckMiddleware(b.adminEventList(listRegistrants))(ctx, m)
	case btnAnnouncements:
		return b.AdminCheckMiddleware(b.openAnnouncements)(ctx, m)
	default:
		b.reply(ctx, m.ChatID, "Please use the menu buttons below.", b.menuFor(ctx, m.Sender.ID))
	}
	return nil
}

func (b *Bot) handleAction(ctx context.Context, c Callback, a Action) (notice, error) {
	switch a.Verb {
	case actViewEvent:
		return notice{}, b.showEvent(ctx, c.ChatID, c.Sender.ID, a.Arg(0), c.MessageID)
	case actEventList:
		return notice{}, b.listEvents(ctx, c.ChatID, c.MessageID)
	case actRegister:
		return b.startRegistration(ctx, c, a.Arg(0))
	case actMyRegistrationPage:
		return notice{}, b.myRegistrations(ctx, c.ChatID, c.Sender.ID, int(a.Arg(0)), c.MessageID)
	case actMyRegistration:
		return b.showMyRegistration(ctx, c, a.Arg(0))
	case actCancelRegistration:
		return b.cancelMyRegistration(ctx, c, a.Arg(0))
	case actRate:
		return b.rate(ctx, c, a.Arg(0), int(a.Arg(1)))
	case actApprove:
		return b.decide(ctx, c, a.Arg(0), model.RegistrationApproved)
	case actReject:
		return b.decide(ctx, c, a.Arg(0), model.RegistrationRejected)
	case actAdminEvent:
		return b.showAdminEvent(ctx, c, a.Arg(0))
	case actAdminEventPage:
		return notice{}, b.sendAdminEventList(ctx, c.ChatID, c.MessageID, int(a.Arg(0)), a.Arg(1))
	case actAdminBack:
		return notice{}, b.sendAdminEventList(ctx, c.ChatID, c.MessageID, 0, listManage)
	case actEditEvent:
		b.editText(ctx, c.ChatID, c.MessageID, "Which detail do you want to edit?", editEventKeyboard(a.Arg(0)))
		return notice{}, nil
	case actEditField:
		return b.startEventEdit(ctx, c, a.Arg(0), int(a.Arg(1)))
	case actRegistrants:
		return b.showRegistrants(ctx, c, a.Arg(0))
	case actExport:
		return b.exportRegistrants(ctx, c, a.Arg(0))
	case actNotifyEvent, actAnnouncePick:
		return b.startBroadcast(ctx, c, a.Arg(0))
	case actAnnounceAll:
		return b.startBroadcast(ctx, c, 0)
	case actAnnounceEvent:
		return notice{}, b.sendAdminEventList(ctx, c.ChatID, c.MessageID, 0, listAnnounce)
	case actCancelEvent:
		return b.askCancelEvent(ctx, c, a.Arg(0))
	case actConfirmCancelEvent:
		return b.cancelEvent(ctx, c, a.Arg(0))
	case actViewFeedback:
		return b.showFeedback(ctx, c, a.Arg(0))
	case actShareQR:
		return b.shareQR(ctx, c, a.Arg(0))
	}
	return notice{text: "Unknown action."}, nil
}
