// Package dialog keeps the per-user conversation state of multi-step flows.
//
// Every flow is its own type so a step handler can only read the fields its
// flow collects. The Manager is the single owner of those values.
package dialog

import (
	"strings"
	"sync"
	"time"

	"regbot/internal/service"
)

// Flow identifies which multi-step conversation a user is in.
type Flow int

const (
	NoFlow Flow = iota
	RegistrationFlow
	EventCreationFlow
	EventEditFlow
	ProfileEditFlow
	BroadcastFlow
	FeedbackCommentFlow
)

func (f Flow) String() string {
	switch f {
	case RegistrationFlow:
		return "registration"
	case EventCreationFlow:
		return "event_creation"
	case EventEditFlow:
		return "event_edit"
	case ProfileEditFlow:
		return "profile_edit"
	case BroadcastFlow:
		return "broadcast"
	case FeedbackCommentFlow:
		return "feedback_comment"
	}
	return "none"
}

// Step is the input a multi-field flow is waiting for.
type Step string

const (
	StepConfirmProfile Step = "confirm_profile"
	StepFirstName      Step = "first_name"
	StepLastName       Step = "last_name"
	StepPhone          Step = "phone"
	StepStudentID      Step = "student_id"
	StepReceipt        Step = "receipt"

	StepEventName        Step = "event_name"
	StepEventDescription Step = "event_description"
	StepEventCapacity    Step = "event_capacity"
	StepEventFee         Step = "event_fee"
	StepEventStudentFee  Step = "event_student_fee"
	StepEventDate        Step = "event_date"
	StepEventLocation    Step = "event_location"
	StepEventConfirm     Step = "event_confirm"
)

var (
	registrationSteps = []Step{StepFirstName, StepLastName, StepPhone, StepStudentID, StepReceipt}
	creationSteps     = []Step{StepEventName, StepEventDescription, StepEventCapacity, StepEventFee,
		StepEventStudentFee, StepEventDate, StepEventLocation, StepEventConfirm}
)

func next(steps []Step, s Step) Step {
	for i, step := range steps {
		if step == s && i+1 < len(steps) {
			return steps[i+1]
		}
	}
	return ""
}

// State is the per-flow value held for a user.
type State interface {
	Flow() Flow
}

// Registration collects the profile and receipt for one event.
type Registration struct {
	EventID   int64
	Step      Step
	FirstName string
	LastName  string
	Phone     string
	StudentID string
}

func (Registration) Flow() Flow { return RegistrationFlow }

// Next returns the registration step that follows the current one.
func (r Registration) Next() Step {
	if r.Step == StepConfirmProfile {
		return StepReceipt
	}
	return next(registrationSteps, r.Step)
}

// WaitsForPhoto reports whether text input should be ignored.
func (r Registration) WaitsForPhoto() bool {
	return r.Step == StepReceipt
}

// EventDraft collects a new event.
type EventDraft struct {
	Step        Step
	Name        string
	Description string
	Capacity    int
	Fee         float64
	StudentFee  float64
	Date        time.Time
	Location    string
}

func (EventDraft) Flow() Flow { return EventCreationFlow }

// Next returns the creation step that follows the current one.
func (d EventDraft) Next() Step {
	return next(creationSteps, d.Step)
}

// EventField names an editable event attribute.
type EventField string

const (
	EventName        EventField = "name"
	EventDescription EventField = "description"
	EventCapacity    EventField = "capacity"
	EventFee         EventField = "fee"
	EventStudentFee  EventField = "studentfee"
	EventDate        EventField = "date"
	EventLocation    EventField = "location"
	EventPoster      EventField = "poster"
)

// EventFields lists the editable attributes in menu order.
var EventFields = []EventField{EventName, EventDescription, EventCapacity, EventFee,
	EventStudentFee, EventDate, EventLocation, EventPoster}

// Valid reports whether f is a known field.
func (f EventField) Valid() bool {
	for _, known := range EventFields {
		if f == known {
			return true
		}
	}
	return false
}

// EventEdit changes one attribute of an existing event.
type EventEdit struct {
	EventID int64
	Field   EventField
}

func (EventEdit) Flow() Flow { return EventEditFlow }

// WaitsForPhoto reports whether text input should be ignored.
func (e EventEdit) WaitsForPhoto() bool {
	return e.Field == EventPoster
}

// ProfileEdit changes one profile field of the user.
type ProfileEdit struct {
	Field service.ProfileField
}

func (ProfileEdit) Flow() Flow { return ProfileEditFlow }

// Broadcast waits for the announcement text. EventID 0 targets every user.
type Broadcast struct {
	EventID int64
}

func (Broadcast) Flow() Flow { return BroadcastFlow }

// FeedbackComment waits for an optional comment after a rating.
type FeedbackComment struct {
	EventID int64
}

func (FeedbackComment) Flow() Flow { return FeedbackCommentFlow }

// PhotoWaiter is implemented by states that only accept a photo at their current step.
type PhotoWaiter interface {
	WaitsForPhoto() bool
}

// Manager manages dialog states for users
type Manager struct {
	states map[int64]State // Map of telegram_id to dialog state
	mu     sync.RWMutex
}

// NewManager creates a new Manager
func NewManager() *Manager {
	return &Manager{
		states: make(map[int64]State),
	}
}

// Set replaces whatever flow the user was in.
func (m *Manager) Set(telegramID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[telegramID] = st
}

// Get returns the user's state, or nil when idle. States are values, so
// changing the result does not affect the stored one until Set is called.
func (m *Manager) Get(telegramID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.states[telegramID]
}

// FlowOf returns the user's current flow.
func (m *Manager) FlowOf(telegramID int64) Flow {
	if st := m.Get(telegramID); st != nil {
		return st.Flow()
	}
	return NoFlow
}

// Clear removes the dialog state for a user
func (m *Manager) Clear(telegramID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, telegramID)
}

// Len returns the number of users in a flow.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

var cancelWords = map[string]bool{
	"cancel":  true,
	"/cancel": true,
	"لغو":     true,
}

// IsCancel reports whether text asks to abort the current flow.
func IsCancel(text string) bool {
	return cancelWords[strings.ToLower(strings.TrimSpace(text))]
}
