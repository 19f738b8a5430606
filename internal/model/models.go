package model

import "time"

// NotAStudent is the student id users enter when they are not enrolled.
const NotAStudent = "0"

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventFull      EventStatus = "full"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Icon returns the marker shown next to the status in admin lists.
func (s EventStatus) Icon() string {
	switch s {
	case EventActive:
		return "🟢"
	case EventFull:
		return "🟠"
	case EventCompleted:
		return "🔵"
	case EventCancelled:
		return "🔴"
	}
	return ""
}

// RegistrationStatus is the approval state of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationRejected  RegistrationStatus = "rejected"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Icon returns the marker shown next to the status in registrant lists.
func (s RegistrationStatus) Icon() string {
	switch s {
	case RegistrationPending:
		return "⏳"
	case RegistrationApproved:
		return "✅"
	case RegistrationRejected:
		return "❌"
	case RegistrationCancelled:
		return "🚫"
	}
	return ""
}

// Active reports whether the registration still holds (or may hold) a seat.
func (s RegistrationStatus) Active() bool {
	return s == RegistrationPending || s == RegistrationApproved
}

// User represents a bot user record.
type User struct {
	TelegramID           int64     // TelegramID is the stable chat identity of the user.
	FirstName            string    // FirstName is the user's given name.
	LastName             string    // LastName is the user's family name.
	PhoneNumber          string    // PhoneNumber is the mobile number entered during registration.
	StudentID            string    // StudentID is the university id, or NotAStudent.
	IsAdmin              bool      // IsAdmin grants access to the admin panel.
	IsRegistered         bool      // IsRegistered is true once name, phone and student id are all present.
	NotificationsEnabled bool      // NotificationsEnabled opts the user into announcements.
	CreatedAt            time.Time // CreatedAt is when the user first talked to the bot.
}

// FullName joins first and last name.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsStudentID reports whether studentID is a real student id rather than
// empty or the NotAStudent sentinel.
func IsStudentID(studentID string) bool {
	return studentID != "" && studentID != NotAStudent
}

// IsStudent reports whether the user has a student id on file.
func (u User) IsStudent() bool {
	return IsStudentID(u.StudentID)
}

// ProfileComplete reports whether every field required for isRegistered is present.
func (u User) ProfileComplete() bool {
	return u.FirstName != "" && u.PhoneNumber != "" && u.StudentID != ""
}

// Event represents an event record.
type Event struct {
	ID          int64       // ID is the unique identifier for the event.
	Name        string      // Name is the title shown in menus.
	Description string      // Description is free text shown in event details.
	Capacity    int         // Capacity is the maximum number of approved participants.
	Fee         float64     // Fee is the regular fee.
	StudentFee  float64     // StudentFee applies to users with a valid student id; 0 means unset.
	Date        time.Time   // Date is when the event starts.
	Location    string      // Location is optional.
	PosterID    string      // PosterID is the chat file reference of the poster image.
	Status      EventStatus // Status is the lifecycle state.
	CreatedAt   time.Time   // CreatedAt is when the event was created.
}

// Open reports whether the event still accepts registrations.
func (e Event) Open() bool {
	return e.Status == EventActive || e.Status == EventFull
}

// EffectiveStudentFee returns the student fee, falling back to the regular fee when unset.
func (e Event) EffectiveStudentFee() float64 {
	if e.StudentFee > 0 {
		return e.StudentFee
	}
	return e.Fee
}

// FeeFor returns the fee a user with the given student id pays.
func (e Event) FeeFor(studentID string) float64 {
	if IsStudentID(studentID) {
		return e.EffectiveStudentFee()
	}
	return e.Fee
}

// EventPatch carries the fields an admin edit changes. Nil fields are left alone.
type EventPatch struct {
	Name        *string
	Description *string
	Capacity    *int
	Fee         *float64
	StudentFee  *float64
	Date        *time.Time
	Location    *string
	PosterID    *string
}

// Registration links a user to an event.
type Registration struct {
	ID                int64              // ID is the unique identifier for the registration.
	UserID            int64              // UserID is the registering user's telegram id.
	EventID           int64              // EventID is the event the user registered for.
	ReceiptFileID     string             // ReceiptFileID references the uploaded payment receipt photo.
	ReceiptArchiveURL string             // ReceiptArchiveURL is the mirrored copy of the receipt, if any.
	Status            RegistrationStatus // Status is the approval state.
	RegisteredAt      time.Time          // RegisteredAt is refreshed on resubmission.
	ApprovalChatID    int64              // ApprovalChatID is the chat holding the admin approval request.
	ApprovalMessageID int                // ApprovalMessageID is the admin approval request message.
}

// RegistrationDetails is a registration with its user and event joined.
type RegistrationDetails struct {
	Registration
	User  User
	Event Event
}

// Fee returns what the registrant pays for the joined event.
func (r RegistrationDetails) Fee() float64 {
	return r.Event.FeeFor(r.User.StudentID)
}

// Feedback is a user's rating of a completed event.
type Feedback struct {
	ID        int64     // ID is the unique identifier for the feedback.
	UserID    int64     // UserID is the rating user's telegram id.
	EventID   int64     // EventID is the rated event.
	Rating    int       // Rating is 1 to 5.
	Comment   string    // Comment is optional free text.
	CreatedAt time.Time // CreatedAt is when the first rating arrived.
	User      User      // User is joined for admin listings.
}

// ForumTopic remembers a topic thread created in the admin group.
type ForumTopic struct {
	ChatID   int64
	Name     string
	ThreadID int
}
