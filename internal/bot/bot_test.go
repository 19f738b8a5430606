package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"regbot/internal/config"
	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/repository"
	"regbot/internal/service"
)

const (
	adminID int64 = 1000
	groupID int64 = -100500
)

type sentMessage struct {
	chatID int64
	msg    Message
}

type sentPhoto struct {
	chatID int64
	photo  Photo
}

type edit struct {
	chatID    int64
	messageID int
	text      string
}

type answer struct {
	text  string
	alert bool
}

type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int
	messages []sentMessage
	photos   []sentPhoto
	docs     []Document
	edits    []edit
	captions []edit
	answers  []answer
	deleted  []int
	topics   map[string]int
	fail     map[int64]bool
	photoIDs map[int]bool
}

func newFakeMessenger() *fakeMessenger {
	// sent ids start above the fixed id press uses
	return &fakeMessenger{nextID: 1000, topics: map[string]int{}, fail: map[int64]bool{}, photoIDs: map[int]bool{}}
}

var errBlocked = errors.New("bot was blocked by the user")

func (f *fakeMessenger) Send(chatID int64, m Message) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[chatID] {
		return 0, errBlocked
	}
	f.nextID++
	f.messages = append(f.messages, sentMessage{chatID, m})
	return f.nextID, nil
}

func (f *fakeMessenger) SendPhoto(chatID int64, p Photo) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.photos = append(f.photos, sentPhoto{chatID, p})
	f.photoIDs[f.nextID] = true
	return f.nextID, nil
}

func (f *fakeMessenger) SendDocument(chatID int64, d Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, d)
	return nil
}

func (f *fakeMessenger) EditText(chatID int64, messageID int, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoIDs[messageID] {
		return errors.New("there is no text in the message to edit")
	}
	f.edits = append(f.edits, edit{chatID, messageID, m.Text})
	return nil
}

func (f *fakeMessenger) EditCaption(chatID int64, messageID int, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, edit{chatID, messageID, caption})
	return nil
}

func (f *fakeMessenger) Delete(_ int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) AnswerCallback(_ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{text, alert})
	return nil
}

func (f *fakeMessenger) CreateForumTopic(_ int64, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.topics[name]; ok {
		return id, nil
	}
	id := 100 + len(f.topics)
	f.topics[name] = id
	return id, nil
}

func (f *fakeMessenger) FileURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeMessenger) lastTo(t *testing.T, chatID int64) Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].chatID == chatID {
			return f.messages[i].msg
		}
	}
	t.Fatalf("no message sent to %d", chatID)
	return Message{}
}

func (f *fakeMessenger) countTo(chatID int64, contains string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.chatID == chatID && strings.Contains(m.msg.Text, contains) {
			n++
		}
	}
	return n
}

func (f *fakeMessenger) lastAnswer(t *testing.T) answer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		t.Fatal("no callback answered")
	}
	return f.answers[len(f.answers)-1]
}

type testBot struct {
	*Bot
	msgr *fakeMessenger
	repo *repository.SQLiteRepository
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()
	return newTestBotWith(t, nil)
}

// newTestBotWith lets a test wrap the repository the services use.
func newTestBotWith(t *testing.T, wrap func(*repository.SQLiteRepository) repository.Repository) *testBot {
	t.Helper()
	db, repo, err := repository.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		BotUsername:          "regbot",
		AdminUserIDs:         []int64{adminID},
		AdminGroupID:         groupID,
		PaymentCardNumber:    "6037-9911-0000-0000",
		PaymentCardOwner:     "Student Club",
		Location:             time.UTC,
		BroadcastConcurrency: 2,
	}
	var store repository.Repository = repo
	if wrap != nil {
		store = wrap(repo)
	}
	events := service.NewEventService(store)
	svc := Services{
		Users:         service.NewUserService(store),
		Events:        events,
		Registrations: service.NewRegistrationService(store, events),
		Fees:          service.NewFeeResolver(store),
		Feedback:      service.NewFeedbackService(store),
	}
	msgr := newFakeMessenger()
	return &testBot{Bot: New(msgr, cfg, svc, repo, nil), msgr: msgr, repo: repo}
}

func (tb *testBot) text(userID int64, s string) {
	tb.HandleText(context.Background(), TextMessage{
		Sender: Sender{ID: userID, FirstName: "Tg"},
		ChatID: userID,
		Text:   s,
	})
}

func (tb *testBot) press(userID, chatID int64, data string) {
	tb.pressOn(userID, chatID, 77, data)
}

func (tb *testBot) pressOn(userID, chatID int64, messageID int, data string) {
	tb.HandleCallback(context.Background(), Callback{
		Sender:    Sender{ID: userID, FirstName: "Admin", Username: "boss"},
		QueryID:   fmt.Sprintf("q-%d", userID),
		ChatID:    chatID,
		MessageID: messageID,
		Data:      data,
	})
}

func (tb *testBot) photo(userID int64, fileID string) {
	tb.HandlePhoto(context.Background(), PhotoMessage{
		Sender: Sender{ID: userID, FirstName: "Tg"},
		ChatID: userID,
		FileID: fileID,
	})
}

func (tb *testBot) event(t *testing.T, name string, capacity int, date time.Time) *model.Event {
	t.Helper()
	e := &model.Event{Name: name, Capacity: capacity, Fee: 100, StudentFee: 50, Date: date, Location: "Hall A"}
	if err := tb.events.CreateEvent(context.Background(), e); err != nil {
		t.Fatal(err)
	}
	return e
}

// register walks a user with no profile through the whole registration flow.
func (tb *testBot) register(t *testing.T, userID, eventID int64, studentID, receipt string) *model.Registration {
	t.Helper()
	tb.press(userID, userID, action(actRegister, eventID))
	tb.text(userID, "Sara")
	tb.text(userID, "Ahmadi")
	tb.text(userID, "09123456789")
	tb.text(userID, studentID)
	tb.photo(userID, receipt)
	reg, err := tb.regs.ForEventAndUser(context.Background(), eventID, userID)
	if err != nil {
		t.Fatalf("registration of %d: %v", userID, err)
	}
	return reg
}

func TestRegistrationFlow(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	const user int64 = 1

	tb.press(user, user, action(actRegister, e.ID))
	if st, ok := tb.dialogs.Get(user).(dialog.Registration); !ok || st.Step != dialog.StepFirstName {
		t.Fatalf("state after register = %#v", tb.dialogs.Get(user))
	}
	tb.text(user, "Sara")
	tb.text(user, "Ahmadi")

	tb.text(user, "12345")
	if got := tb.msgr.lastTo(t, user).Text; got != invalidPhone {
		t.Errorf("reply to bad phone = %q", got)
	}
	if st := tb.dialogs.Get(user).(dialog.Registration); st.Step != dialog.StepPhone {
		t.Fatalf("step after bad phone = %q", st.Step)
	}
	tb.text(user, "09123456789")
	tb.text(user, "0")

	payment := tb.msgr.lastTo(t, user).Text
	if !strings.Contains(payment, "Please pay $100 to:") || !strings.Contains(payment, "6037-9911-0000-0000") {
		t.Errorf("payment instructions = %q", payment)
	}

	tb.photo(user, "receipt-1")
	if tb.dialogs.Get(user) != nil {
		t.Error("flow should end after the receipt")
	}
	if got := tb.msgr.lastTo(t, user).Text; got != submittedText {
		t.Errorf("confirmation = %q", got)
	}

	ctx := context.Background()
	reg, err := tb.regs.ForEventAndUser(ctx, e.ID, user)
	if err != nil {
		t.Fatal(err)
	}
	if reg.Status != model.RegistrationPending || reg.ReceiptFileID != "receipt-1" {
		t.Errorf("registration = %+v", reg)
	}
	if reg.ApprovalChatID != groupID || reg.ApprovalMessageID == 0 {
		t.Errorf("approval message not attached: %+v", reg)
	}

	if len(tb.msgr.photos) != 1 {
		t.Fatalf("approval photos = %d", len(tb.msgr.photos))
	}
	p := tb.msgr.photos[0]
	if p.chatID != groupID || p.photo.ThreadID != tb.msgr.topics["Go Night"] || p.photo.FileID != "receipt-1" {
		t.Errorf("approval request = %+v", p)
	}
	if !strings.Contains(p.photo.Caption, "New Registration") || !strings.Contains(p.photo.Caption, "Fee Amount: $100") {
		t.Errorf("caption = %q", p.photo.Caption)
	}

	u, err := tb.users.Get(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName != "Sara" || u.PhoneNumber != "09123456789" || u.StudentID != "0" || !u.IsRegistered {
		t.Errorf("profile = %+v", u)
	}
}

func TestRegistrationWithSavedProfileShowsStudentFee(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	const user int64 = 2
	tb.text(user, "/start")
	if err := tb.users.SaveProfile(ctx, model.User{TelegramID: user, FirstName: "Reza", PhoneNumber: "09121112233", StudentID: "401139123"}); err != nil {
		t.Fatal(err)
	}

	tb.press(user, user, action(actRegister, e.ID))
	if st := tb.dialogs.Get(user).(dialog.Registration); st.Step != dialog.StepConfirmProfile {
		t.Fatalf("step = %q", st.Step)
	}
	tb.text(user, btnUseProfile)
	if got := tb.msgr.lastTo(t, user).Text; !strings.Contains(got, "Please pay $50 to:") {
		t.Errorf("payment = %q", got)
	}
}

func TestCancelMidFlowPersistsNothing(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	const user int64 = 3

	tb.press(user, user, action(actRegister, e.ID))
	tb.text(user, "Sara")
	tb.text(user, "Ahmadi")
	tb.text(user, "cancel")

	if tb.dialogs.Get(user) != nil {
		t.Fatal("cancel should clear the flow")
	}
	if got := tb.msgr.lastTo(t, user).Text; got != "Operation cancelled." {
		t.Errorf("reply = %q", got)
	}
	u, err := tb.users.Get(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if u.FirstName == "Sara" || u.PhoneNumber != "" {
		t.Errorf("profile changed by a cancelled flow: %+v", u)
	}
	if _, err := tb.regs.ForEventAndUser(ctx, e.ID, user); !errors.Is(err, service.ErrNotFound) {
		t.Errorf("registration after cancel: %v", err)
	}
}

func TestPhotosAndTextOutsideTheirStepAreIgnored(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	const user int64 = 4

	tb.photo(user, "stray")
	if len(tb.msgr.messages) != 0 || len(tb.msgr.photos) != 0 {
		t.Fatal("idle photo should be ignored")
	}

	tb.press(user, user, action(actRegister, e.ID))
	tb.photo(user, "early")
	if st := tb.dialogs.Get(user).(dialog.Registration); st.Step != dialog.StepFirstName {
		t.Fatalf("photo advanced the flow to %q", st.Step)
	}

	tb.text(user, "Sara")
	tb.text(user, "Ahmadi")
	tb.text(user, "09123456789")
	tb.text(user, "0")
	before := len(tb.msgr.messages)
	tb.text(user, "here is my receipt")
	if len(tb.msgr.messages) != before {
		t.Error("text at the receipt step should be ignored")
	}
	if st := tb.dialogs.Get(user).(dialog.Registration); st.Step != dialog.StepReceipt {
		t.Errorf("step = %q", st.Step)
	}
}

func TestApproveLastSeat(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 1, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 5, e.ID, "0", "receipt-5")

	tb.press(adminID, groupID, action(actApprove, reg.ID))
	if a := tb.msgr.lastAnswer(t); !strings.Contains(a.text, "approved") || !strings.Contains(a.text, "now full") {
		t.Errorf("answer = %+v", a)
	}
	d, err := tb.regs.Get(ctx, reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.RegistrationApproved || d.Event.Status != model.EventFull {
		t.Errorf("after approval: reg %s, event %s", d.Status, d.Event.Status)
	}
	if tb.msgr.countTo(5, "has been approved") != 1 {
		t.Error("registrant was not notified")
	}
	if len(tb.msgr.captions) != 1 || !strings.HasPrefix(tb.msgr.captions[0].text, "✅ Registration Approved") {
		t.Errorf("captions = %+v", tb.msgr.captions)
	}

	tb.press(adminID, groupID, action(actReject, reg.ID))
	if a := tb.msgr.lastAnswer(t); !a.alert || !strings.Contains(a.text, "already approved") {
		t.Errorf("second decision answer = %+v", a)
	}
}

func TestRejectedUserCanResubmit(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 5, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 6, e.ID, "0", "receipt-a")

	tb.press(adminID, groupID, action(actReject, reg.ID))
	if tb.msgr.countTo(6, "was rejected") != 1 {
		t.Fatal("registrant was not told about the rejection")
	}

	tb.press(6, 6, action(actRegister, e.ID))
	tb.text(6, btnUseProfile)
	tb.photo(6, "receipt-b")
	again, err := tb.regs.ForEventAndUser(ctx, e.ID, 6)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != reg.ID || again.Status != model.RegistrationPending || again.ReceiptFileID != "receipt-b" {
		t.Errorf("resubmission = %+v", again)
	}
	if got := tb.msgr.lastTo(t, 6).Text; got != resubmitText {
		t.Errorf("reply = %q", got)
	}
}

func TestNonAdminCannotDecide(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 5, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 7, e.ID, "0", "receipt-7")

	tb.press(7, groupID, action(actApprove, reg.ID))
	if a := tb.msgr.lastAnswer(t); !a.alert || a.text != adminDenied {
		t.Errorf("answer = %+v", a)
	}
	d, err := tb.regs.Get(ctx, reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.RegistrationPending {
		t.Errorf("status = %s", d.Status)
	}
}

func TestEventCreationFlow(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	date := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Minute)

	tb.text(adminID, btnCreateEvent)
	tb.text(adminID, "Rust Workshop")
	tb.text(adminID, "Hands-on intro")
	tb.text(adminID, "lots")
	if got := tb.msgr.lastTo(t, adminID).Text; got != invalidCapacity {
		t.Errorf("reply to bad capacity = %q", got)
	}
	tb.text(adminID, "30")
	tb.text(adminID, "200,000")
	tb.text(adminID, "100000")
	tb.text(adminID, "2001-01-01 10:00")
	if got := tb.msgr.lastTo(t, adminID).Text; got != pastDate {
		t.Errorf("reply to past date = %q", got)
	}
	tb.text(adminID, date.Format("2006-01-02 15:04"))
	tb.text(adminID, "-")
	if st := tb.dialogs.Get(adminID).(dialog.EventDraft); st.Step != dialog.StepEventConfirm {
		t.Fatalf("step = %q", st.Step)
	}
	tb.text(adminID, "Yes")

	events, err := tb.events.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %d", len(events))
	}
	e := events[0]
	if e.Name != "Rust Workshop" || e.Capacity != 30 || e.Fee != 200000 || e.StudentFee != 100000 ||
		!e.Date.Equal(date) || e.Location != "" || e.Status != model.EventActive {
		t.Errorf("event = %+v", e)
	}
	if !strings.Contains(tb.msgr.lastTo(t, adminID).Text, "https://t.me/regbot?start=event_") {
		t.Error("creation reply should carry the share link")
	}
}

func TestNonAdminCannotOpenAdminMenus(t *testing.T) {
	tb := newTestBot(t)
	tb.text(8, btnCreateEvent)
	if got := tb.msgr.lastTo(t, 8).Text; got != adminDenied {
		t.Errorf("reply = %q", got)
	}
	if tb.dialogs.Get(8) != nil {
		t.Error("denied user should not enter a flow")
	}
}

func TestEventEditInvalidValueAborts(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))

	tb.press(adminID, adminID, action(actEditField, e.ID, 2))
	if st := tb.dialogs.Get(adminID).(dialog.EventEdit); st.Field != dialog.EventCapacity {
		t.Fatalf("field = %q", st.Field)
	}
	tb.text(adminID, "-5")
	if tb.dialogs.Get(adminID) != nil {
		t.Error("invalid edit should end the flow")
	}
	if got := tb.msgr.lastTo(t, adminID).Text; got != "Invalid capacity. Operation cancelled." {
		t.Errorf("reply = %q", got)
	}
	got, err := tb.events.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Capacity != 10 {
		t.Errorf("capacity = %d", got.Capacity)
	}
}

func TestEventEditCapacityReopensFullEvent(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 1, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 9, e.ID, "0", "r")
	tb.press(adminID, groupID, action(actApprove, reg.ID))

	tb.press(adminID, adminID, action(actEditField, e.ID, 2))
	tb.text(adminID, "5")
	if got := tb.msgr.lastTo(t, adminID).Text; !strings.Contains(got, "now active") {
		t.Errorf("reply = %q", got)
	}
	got, err := tb.events.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Capacity != 5 || got.Status != model.EventActive {
		t.Errorf("event = %+v", got)
	}
}

func TestPosterEditWaitsForPhoto(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))

	tb.press(adminID, adminID, action(actEditField, e.ID, 7))
	tb.text(adminID, "not a photo")
	if tb.dialogs.Get(adminID) == nil {
		t.Fatal("text should not end a poster edit")
	}
	tb.photo(adminID, "poster-1")
	got, err := tb.events.Get(context.Background(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PosterID != "poster-1" {
		t.Errorf("poster = %q", got.PosterID)
	}
}

func TestBroadcastCountsFailures(t *testing.T) {
	tb := newTestBot(t)
	for _, id := range []int64{20, 21, 22} {
		tb.text(id, "/start")
	}
	tb.msgr.fail[21] = true

	tb.press(adminID, adminID, actAnnounceAll)
	tb.text(adminID, "Exam week, no events")

	if got := tb.msgr.lastTo(t, adminID).Text; got != "Notification sent successfully to 3 users. Failed: 1." {
		t.Errorf("report = %q", got)
	}
	if tb.msgr.countTo(20, "Exam week") != 1 || tb.msgr.countTo(22, "Exam week") != 1 {
		t.Error("announcement not delivered")
	}
}

func TestEventBroadcastReachesApprovedOnly(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	approved := tb.register(t, 30, e.ID, "0", "a")
	tb.register(t, 31, e.ID, "0", "b")
	tb.press(adminID, groupID, action(actApprove, approved.ID))

	tb.press(adminID, adminID, action(actNotifyEvent, e.ID))
	tb.text(adminID, "Room changed to B2")

	if tb.msgr.countTo(30, `📢 Notification for event "Go Night"`) != 1 {
		t.Error("approved registrant not notified")
	}
	if tb.msgr.countTo(31, "Room changed") != 0 {
		t.Error("pending registrant should not be notified")
	}
}

func TestCancelEventFanOut(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	a := tb.register(t, 40, e.ID, "0", "a")
	b := tb.register(t, 41, e.ID, "401139123", "b")
	tb.press(adminID, groupID, action(actApprove, a.ID))

	tb.press(adminID, adminID, action(actConfirmCancelEvent, e.ID))

	for _, id := range []int64{40, 41} {
		if tb.msgr.countTo(id, "⚠️ Event Cancelled") != 1 {
			t.Errorf("user %d not told about the cancellation", id)
		}
	}
	thread := tb.msgr.topics[CancellationTopic]
	var alerts []string
	for _, m := range tb.msgr.messages {
		if m.chatID == groupID && m.msg.ThreadID == thread {
			alerts = append(alerts, m.msg.Text)
		}
	}
	if len(alerts) != 2 {
		t.Fatalf("cancellation alerts = %d", len(alerts))
	}
	joined := strings.Join(alerts, "\n")
	if !strings.Contains(joined, "Fee Paid: $100") || !strings.Contains(joined, "Fee Paid: $50") ||
		!strings.Contains(joined, "Please process a refund if applicable.") {
		t.Errorf("alerts = %q", joined)
	}

	for _, id := range []int64{a.ID, b.ID} {
		d, err := tb.regs.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if d.Status != model.RegistrationCancelled || d.Event.Status != model.EventCancelled {
			t.Errorf("registration %d: %s / %s", id, d.Status, d.Event.Status)
		}
	}

	tb.press(adminID, adminID, action(actConfirmCancelEvent, e.ID))
	if ans := tb.msgr.lastAnswer(t); !ans.alert {
		t.Errorf("cancelling twice should alert, got %+v", ans)
	}
}

func TestUserCancelsRegistration(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 1, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 50, e.ID, "0", "a")
	tb.press(adminID, groupID, action(actApprove, reg.ID))

	tb.press(51, 51, action(actCancelRegistration, reg.ID))
	if a := tb.msgr.lastAnswer(t); a.text != "Registration not found." {
		t.Errorf("foreign cancel answer = %+v", a)
	}

	tb.press(50, 50, action(actCancelRegistration, reg.ID))
	got, err := tb.events.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.EventActive {
		t.Errorf("event status after cancel = %s", got.Status)
	}
	if tb.msgr.countTo(groupID, "Previous Status: approved") != 1 {
		t.Error("admins were not alerted")
	}
}

func TestProfileEditRepromptsOnInvalid(t *testing.T) {
	tb := newTestBot(t)
	const user int64 = 60
	tb.text(user, "/editstudentid")
	tb.text(user, "12")
	if got := tb.msgr.lastTo(t, user).Text; got != invalidStudentID {
		t.Errorf("reply = %q", got)
	}
	if tb.dialogs.FlowOf(user) != dialog.ProfileEditFlow {
		t.Fatal("invalid input should keep the flow")
	}
	tb.text(user, "401139123")
	u, err := tb.users.Get(context.Background(), user)
	if err != nil {
		t.Fatal(err)
	}
	if u.StudentID != "401139123" {
		t.Errorf("student id = %q", u.StudentID)
	}
}

func TestNewActionReplacesFlow(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	const user int64 = 61
	tb.press(user, user, action(actRegister, e.ID))
	tb.text(user, "/editphone")
	if tb.dialogs.FlowOf(user) != dialog.ProfileEditFlow {
		t.Errorf("flow = %s", tb.dialogs.FlowOf(user))
	}
}

func TestStartDeepLinkShowsEvent(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	tb.text(70, fmt.Sprintf("/start event_%d", e.ID))
	got := tb.msgr.lastTo(t, 70)
	if !strings.Contains(got.Text, "Name: Go Night") || !strings.Contains(got.Text, "Fee: $100") {
		t.Errorf("details = %q", got.Text)
	}
	if len(got.Inline) == 0 || got.Inline[0][0].Data != action(actRegister, e.ID) {
		t.Errorf("keyboard = %+v", got.Inline)
	}
}

func TestFeedbackRatingAndComment(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 80, e.ID, "0", "a")
	tb.press(adminID, groupID, action(actApprove, reg.ID))

	tb.press(80, 80, action(actRate, e.ID, 4))
	if a := tb.msgr.lastAnswer(t); !a.alert {
		t.Errorf("rating an upcoming event should alert, got %+v", a)
	}

	if _, err := tb.events.UpdateStatus(ctx, e.ID, model.EventCompleted); err != nil {
		t.Fatal(err)
	}
	tb.RequestFeedback(ctx, []model.Event{*e})
	if got := tb.msgr.lastTo(t, 80); len(got.Inline) != 1 || len(got.Inline[0]) != 5 {
		t.Fatalf("rating request = %+v", got)
	}

	tb.press(80, 80, action(actRate, e.ID, 4))
	if tb.dialogs.FlowOf(80) != dialog.FeedbackCommentFlow {
		t.Fatal("rating should ask for a comment")
	}
	tb.text(80, "Great talks")
	items, err := tb.feedback.ForEvent(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Rating != 4 || items[0].Comment != "Great talks" {
		t.Errorf("feedback = %+v", items)
	}
}

func TestExportSendsWorkbook(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	tb.register(t, 90, e.ID, "0", "a")

	tb.press(adminID, adminID, action(actExport, e.ID))
	if len(tb.msgr.docs) != 1 {
		t.Fatalf("documents = %d", len(tb.msgr.docs))
	}
	d := tb.msgr.docs[0]
	if !strings.HasPrefix(d.Name, "Go_Night_registrants_") || !strings.HasSuffix(d.Name, ".xlsx") || len(d.Bytes) == 0 {
		t.Errorf("document = %s (%d bytes)", d.Name, len(d.Bytes))
	}
}

func TestShareQR(t *testing.T) {
	tb := newTestBot(t)
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	tb.press(adminID, adminID, action(actShareQR, e.ID))
	if len(tb.msgr.photos) != 1 {
		t.Fatalf("photos = %d", len(tb.msgr.photos))
	}
	p := tb.msgr.photos[0].photo
	if len(p.Bytes) == 0 || !strings.Contains(p.Caption, fmt.Sprintf("start=event_%d", e.ID)) {
		t.Errorf("qr photo = %q (%d bytes)", p.Caption, len(p.Bytes))
	}
}

func TestUnknownCallbackData(t *testing.T) {
	tb := newTestBot(t)
	tb.press(1, 1, "reg:abc")
	if a := tb.msgr.lastAnswer(t); a.text != "Unknown action." {
		t.Errorf("answer = %+v", a)
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		data    string
		want    Action
		wantErr bool
	}{
		{data: "evlist", want: Action{Verb: "evlist"}},
		{data: action(actRate, 12, 5), want: Action{Verb: actRate, Args: []int64{12, 5}}},
		{data: "", wantErr: true},
		{data: "rate:x", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.data)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAction(%q) error = %v", tt.data, err)
			continue
		}
		if tt.wantErr {
			continue
		}
		if got.Verb != tt.want.Verb || fmt.Sprint(got.Args) != fmt.Sprint(tt.want.Args) {
			t.Errorf("ParseAction(%q) = %+v, want %+v", tt.data, got, tt.want)
		}
	}
	if !(Action{Verb: actApprove}).AdminOnly() || (Action{Verb: actRegister}).AdminOnly() {
		t.Error("AdminOnly misclassifies verbs")
	}
}

func TestRegistrantsTextFallsBackToSummary(t *testing.T) {
	e := model.Event{Name: "Big Conf"}
	var regs []model.RegistrationDetails
	for i := 0; i < 200; i++ {
		regs = append(regs, model.RegistrationDetails{
			Registration: model.Registration{Status: model.RegistrationApproved},
			User:         model.User{FirstName: "Participant", LastName: fmt.Sprintf("Number %d", i), PhoneNumber: "09123456789", StudentID: "0"},
			Event:        e,
		})
	}
	got := registrantsText(e, regs)
	if len(got) > maxListText || !strings.Contains(got, "Total: 200") || !strings.Contains(got, "Approved: 200") {
		t.Errorf("summary = %q", got)
	}
	if short := registrantsText(e, regs[:2]); !strings.Contains(short, "2. ✅ Participant Number 1") {
		t.Errorf("short list = %q", short)
	}
}

func TestMenuButtonReplacesFlow(t *testing.T) {
	future := time.Now().Add(72 * time.Hour)
	tests := []struct {
		name   string
		user   int64
		setup  func(tb *testBot, e *model.Event, user int64)
		button string
		want   dialog.Flow
	}{
		{
			name: "create event during registration",
			user: adminID,
			setup: func(tb *testBot, e *model.Event, user int64) {
				tb.press(user, user, action(actRegister, e.ID))
				tb.text(user, "Sara")
			},
			button: btnCreateEvent,
			want:   dialog.EventCreationFlow,
		},
		{
			name: "event status at the receipt step",
			user: 300,
			setup: func(tb *testBot, e *model.Event, user int64) {
				tb.press(user, user, action(actRegister, e.ID))
				for _, v := range []string{"Sara", "Ahmadi", "09123456789", "0"} {
					tb.text(user, v)
				}
			},
			button: btnEventStatus,
			want:   dialog.NoFlow,
		},
		{
			name: "main menu during event creation",
			user: adminID,
			setup: func(tb *testBot, _ *model.Event, user int64) {
				tb.text(user, btnCreateEvent)
				tb.text(user, "Rust Workshop")
			},
			button: btnMainMenu,
			want:   dialog.NoFlow,
		},
		{
			name: "register during a poster edit",
			user: adminID,
			setup: func(tb *testBot, e *model.Event, user int64) {
				tb.press(user, user, action(actEditField, e.ID, 7))
			},
			button: btnRegister,
			want:   dialog.NoFlow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			e := tb.event(t, "Go Night", 10, future)
			tt.setup(tb, e, tt.user)
			if tb.dialogs.Get(tt.user) == nil {
				t.Fatal("setup did not enter a flow")
			}

			tb.text(tt.user, tt.button)
			if got := tb.dialogs.FlowOf(tt.user); got != tt.want {
				t.Errorf("flow = %s, want %s", got, tt.want)
			}
			u, err := tb.users.Get(context.Background(), tt.user)
			if err != nil {
				t.Fatal(err)
			}
			if u.FirstName == tt.button || u.LastName == tt.button {
				t.Errorf("menu label stored as profile data: %+v", u)
			}
			if _, err := tb.regs.ForEventAndUser(context.Background(), e.ID, tt.user); !errors.Is(err, service.ErrNotFound) {
				t.Errorf("registration created: %v", err)
			}
		})
	}
}

func TestReceiptForClosedEventIsRefused(t *testing.T) {
	tests := []struct {
		name  string
		close func(t *testing.T, tb *testBot, e *model.Event)
	}{
		{"cancelled by an admin", func(_ *testing.T, tb *testBot, e *model.Event) {
			tb.press(adminID, adminID, action(actConfirmCancelEvent, e.ID))
		}},
		{"completed by the sweep", func(t *testing.T, tb *testBot, e *model.Event) {
			if _, err := tb.events.UpdateStatus(context.Background(), e.ID, model.EventCompleted); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			ctx := context.Background()
			e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
			const user int64 = 310
			tb.press(user, user, action(actRegister, e.ID))
			for _, v := range []string{"Sara", "Ahmadi", "09123456789", "0"} {
				tb.text(user, v)
			}
			tt.close(t, tb, e)

			tb.photo(user, "late-receipt")
			if got := tb.msgr.lastTo(t, user).Text; got != closedText {
				t.Errorf("reply = %q", got)
			}
			if tb.dialogs.Get(user) != nil {
				t.Error("flow should end")
			}
			if _, err := tb.regs.ForEventAndUser(ctx, e.ID, user); !errors.Is(err, service.ErrNotFound) {
				t.Errorf("registration stored for a closed event: %v", err)
			}
			if len(tb.msgr.photos) != 0 {
				t.Errorf("approval requests posted = %d", len(tb.msgr.photos))
			}
			u, err := tb.users.Get(ctx, user)
			if err != nil {
				t.Fatal(err)
			}
			if u.PhoneNumber != "" {
				t.Errorf("profile saved for a refused registration: %+v", u)
			}
		})
	}
}

// flakyCounts fails the approved-seat count on demand.
type flakyCounts struct {
	*repository.SQLiteRepository
	fail bool
}

func (r *flakyCounts) CountRegistrations(ctx context.Context, eventID int64, status model.RegistrationStatus) (int, error) {
	if r.fail {
		return 0, errors.New("database is locked")
	}
	return r.SQLiteRepository.CountRegistrations(ctx, eventID, status)
}

func TestApprovalCompletesWhenCapacityCheckFails(t *testing.T) {
	counts := &flakyCounts{}
	tb := newTestBotWith(t, func(repo *repository.SQLiteRepository) repository.Repository {
		counts.SQLiteRepository = repo
		return counts
	})
	e := tb.event(t, "Go Night", 5, time.Now().Add(72*time.Hour))
	reg := tb.register(t, 320, e.ID, "0", "r")

	counts.fail = true
	tb.press(adminID, groupID, action(actApprove, reg.ID))

	if a := tb.msgr.lastAnswer(t); !a.alert || !strings.Contains(a.text, "approved, but the event capacity could not be checked") {
		t.Errorf("answer = %+v", a)
	}
	if tb.msgr.countTo(320, "has been approved") != 1 {
		t.Error("registrant was not notified")
	}
	if len(tb.msgr.captions) != 1 || !strings.HasPrefix(tb.msgr.captions[0].text, "✅ Registration Approved") {
		t.Errorf("captions = %+v", tb.msgr.captions)
	}
	d, err := tb.regs.Get(context.Background(), reg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != model.RegistrationApproved {
		t.Errorf("status = %s", d.Status)
	}
}

func TestPosterReplacesEventList(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()
	e := tb.event(t, "Go Night", 10, time.Now().Add(72*time.Hour))
	poster := "poster-1"
	if _, err := tb.events.UpdateEvent(ctx, e.ID, model.EventPatch{PosterID: &poster}); err != nil {
		t.Fatal(err)
	}

	tb.pressOn(400, 400, 77, action(actViewEvent, e.ID))
	if len(tb.msgr.photos) != 1 || tb.msgr.photos[0].photo.FileID != poster {
		t.Fatalf("photos = %+v", tb.msgr.photos)
	}
	if len(tb.msgr.deleted) != 1 || tb.msgr.deleted[0] != 77 {
		t.Errorf("deleted = %v", tb.msgr.deleted)
	}

	photoID := tb.msgr.nextID
	tb.pressOn(400, 400, photoID, actEventList)
	if len(tb.msgr.deleted) != 2 || tb.msgr.deleted[1] != photoID {
		t.Errorf("deleted = %v", tb.msgr.deleted)
	}
	if got := tb.msgr.lastTo(t, 400).Text; got != "Available events:" {
		t.Errorf("list = %q", got)
	}
}

// snapshot renders every row a flow could persist for the event and user.
func (tb *testBot) snapshot(t *testing.T, eventID, userID int64) string {
	t.Helper()
	ctx := context.Background()
	events, err := tb.events.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	u, err := tb.users.Get(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	regs, err := tb.regs.ForEvent(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := tb.feedback.ForEvent(ctx, eventID)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("%+v\n%+v\n%+v\n%+v", events, *u, regs, fb)
}

func TestCancelAtEveryStepPersistsNothing(t *testing.T) {
	const user int64 = 500
	future := time.Now().Add(72 * time.Hour)
	draft := []string{"Rust Workshop", "Hands-on intro", "30", "100", "50", future.Format("2006-01-02 15:04"), "Hall B"}
	profile := []string{"Sara", "Ahmadi", "09123456789", "0"}

	type flowCase struct {
		name  string
		actor int64
		setup func(t *testing.T, tb *testBot, e *model.Event, actor int64)
		want  dialog.Flow
	}
	var cases []flowCase

	cases = append(cases, flowCase{
		name: "registration confirm_profile", actor: user, want: dialog.RegistrationFlow,
		setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
			tb.text(actor, "/start")
			if err := tb.users.SaveProfile(context.Background(), model.User{TelegramID: actor, FirstName: "Reza", PhoneNumber: "09121112233", StudentID: "401139123"}); err != nil {
				t.Fatal(err)
			}
			tb.press(actor, actor, action(actRegister, e.ID))
		},
	})
	for i := 0; i <= len(profile); i++ {
		n := i
		cases = append(cases, flowCase{
			name: fmt.Sprintf("registration after %d answers", n), actor: user, want: dialog.RegistrationFlow,
			setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
				tb.press(actor, actor, action(actRegister, e.ID))
				for _, v := range profile[:n] {
					tb.text(actor, v)
				}
			},
		})
	}
	for i := 0; i <= len(draft); i++ {
		n := i
		cases = append(cases, flowCase{
			name: fmt.Sprintf("event creation after %d answers", n), actor: adminID, want: dialog.EventCreationFlow,
			setup: func(t *testing.T, tb *testBot, _ *model.Event, actor int64) {
				tb.text(actor, btnCreateEvent)
				for _, v := range draft[:n] {
					tb.text(actor, v)
				}
			},
		})
	}
	cases = append(cases,
		flowCase{
			name: "event edit text field", actor: adminID, want: dialog.EventEditFlow,
			setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
				tb.press(actor, actor, action(actEditField, e.ID, 0))
			},
		},
		flowCase{
			name: "event edit poster", actor: adminID, want: dialog.EventEditFlow,
			setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
				tb.press(actor, actor, action(actEditField, e.ID, 7))
			},
		},
		flowCase{
			name: "profile edit", actor: user, want: dialog.ProfileEditFlow,
			setup: func(t *testing.T, tb *testBot, _ *model.Event, actor int64) {
				tb.text(actor, "/editphone")
			},
		},
		flowCase{
			name: "broadcast to all users", actor: adminID, want: dialog.BroadcastFlow,
			setup: func(t *testing.T, tb *testBot, _ *model.Event, actor int64) {
				tb.press(actor, actor, actAnnounceAll)
			},
		},
		flowCase{
			name: "broadcast to event registrants", actor: adminID, want: dialog.BroadcastFlow,
			setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
				tb.press(actor, actor, action(actNotifyEvent, e.ID))
			},
		},
		flowCase{
			name: "feedback comment", actor: user, want: dialog.FeedbackCommentFlow,
			setup: func(t *testing.T, tb *testBot, e *model.Event, actor int64) {
				if _, err := tb.events.UpdateStatus(context.Background(), e.ID, model.EventCompleted); err != nil {
					t.Fatal(err)
				}
				tb.press(actor, actor, action(actRate, e.ID, 5))
			},
		},
	)

	cancelWords := []string{"cancel", "/cancel", btnCancel, "لغو", "CANCEL"}
	for i, tc := range cases {
		word := cancelWords[i%len(cancelWords)]
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBot(t)
			e := tb.event(t, "Go Night", 10, future)
			tc.setup(t, tb, e, tc.actor)
			if got := tb.dialogs.FlowOf(tc.actor); got != tc.want {
				t.Fatalf("flow before cancel = %s, want %s", got, tc.want)
			}
			before := tb.snapshot(t, e.ID, tc.actor)

			tb.text(tc.actor, word)
			if tb.dialogs.Get(tc.actor) != nil {
				t.Errorf("%q left state %#v", word, tb.dialogs.Get(tc.actor))
			}
			if got := tb.msgr.lastTo(t, tc.actor).Text; got != "Operation cancelled." {
				t.Errorf("reply to %q = %q", word, got)
			}
			if after := tb.snapshot(t, e.ID, tc.actor); after != before {
				t.Errorf("rows changed by a cancelled flow:\nbefore %s\nafter  %s", before, after)
			}
		})
	}
}
