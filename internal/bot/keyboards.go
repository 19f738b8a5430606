package bot

import (
	"fmt"

	"regbot/internal/dialog"
	"regbot/internal/model"
	"regbot/internal/share"
)

// Menu labels.
const (
	btnRegister      = "📝 Register for Events"
	btnEventStatus   = "📋 Event Status"
	btnProfile       = "👤 User Profile"
	btnLinks         = "🔗 Get Group & Channel Links"
	btnAdminPanel    = "🔐 Admin Panel"
	btnCreateEvent   = "➕ Create New Event"
	btnEditEvents    = "✏️ Edit Events"
	btnRegistrants   = "👥 List of Registrants"
	btnAnnouncements = "📢 Announcements & Notifications"
	btnMainMenu      = "🏠 Back to Main Menu"
	btnCancel        = "❌ Cancel"
	btnUseProfile    = "Yes, use this info"
	btnUpdateProfile = "No, update my info"
	btnYes           = "Yes"
	btnNo            = "No"
	btnSkip          = "Skip"
)

// menuLabels are the reply buttons that start a top-level action.
var menuLabels = map[string]bool{
	btnRegister:      true,
	btnEventStatus:   true,
	btnProfile:       true,
	btnLinks:         true,
	btnAdminPanel:    true,
	btnCreateEvent:   true,
	btnEditEvents:    true,
	btnRegistrants:   true,
	btnAnnouncements: true,
	btnMainMenu:      true,
}

const pageSize = 5

// admin event list modes decide what picking an event opens
const (
	listManage int64 = iota
	listRegistrants
	listAnnounce
)

func mainMenu(isAdmin bool) ReplyKeyboard {
	kb := ReplyKeyboard{
		{btnRegister, btnEventStatus},
		{btnProfile, btnLinks},
	}
	if isAdmin {
		kb = append(kb, []string{btnAdminPanel})
	}
	return kb
}

func adminMenu() ReplyKeyboard {
	return ReplyKeyboard{
		{btnCreateEvent, btnEditEvents},
		{btnRegistrants, btnAnnouncements},
		{btnMainMenu},
	}
}

func cancelKeyboard() ReplyKeyboard {
	return ReplyKeyboard{{btnCancel}}
}

func confirmProfileKeyboard() ReplyKeyboard {
	return ReplyKeyboard{{btnUseProfile}, {btnUpdateProfile}, {btnCancel}}
}

func yesNoKeyboard() ReplyKeyboard {
	return ReplyKeyboard{{btnYes, btnNo}}
}

func skipKeyboard() ReplyKeyboard {
	return ReplyKeyboard{{btnSkip}}
}

func data(text, d string) Button { return Button{Text: text, Data: d} }

// pager returns the slice bounds for page and a navigation row, nil when one page suffices.
func pager(total, page int, link func(page int) string) (lo, hi int, nav []Button) {
	if page < 0 || page*pageSize >= total {
		page = 0
	}
	lo = page * pageSize
	hi = lo + pageSize
	if hi > total {
		hi = total
	}
	if page > 0 {
		nav = append(nav, data("⬅️ Previous", link(page-1)))
	}
	if hi < total {
		nav = append(nav, data("Next ➡️", link(page+1)))
	}
	return lo, hi, nav
}

func eventsKeyboard(events []model.Event) InlineKeyboard {
	kb := make(InlineKeyboard, 0, len(events))
	for _, e := range events {
		kb = append(kb, []Button{data(e.Name, action(actViewEvent, e.ID))})
	}
	return kb
}

func eventDetailsKeyboard(eventID int64, botUsername string) InlineKeyboard {
	kb := InlineKeyboard{{data("✅ Register", action(actRegister, eventID))}}
	if botUsername != "" {
		kb = append(kb, []Button{{Text: "📤 Share", URL: share.ShareURL(botUsername, eventID)}})
	}
	return append(kb, []Button{data("⬅️ Back to Events", actEventList)})
}

func myRegistrationsKeyboard(regs []model.RegistrationDetails, page int) InlineKeyboard {
	lo, hi, nav := pager(len(regs), page, func(p int) string {
		return action(actMyRegistrationPage, int64(p))
	})
	kb := InlineKeyboard{}
	for _, r := range regs[lo:hi] {
		label := fmt.Sprintf("%s %s", r.Status.Icon(), r.Event.Name)
		kb = append(kb, []Button{data(label, action(actMyRegistration, r.ID))})
	}
	if nav != nil {
		kb = append(kb, nav)
	}
	return kb
}

func myRegistrationKeyboard(r model.RegistrationDetails) InlineKeyboard {
	kb := InlineKeyboard{}
	if r.Status.Active() && r.Event.Open() {
		kb = append(kb, []Button{data("❌ Cancel Registration", action(actCancelRegistration, r.ID))})
	}
	return append(kb, []Button{data("⬅️ Back", action(actMyRegistrationPage, 0))})
}

func approvalKeyboard(regID int64) InlineKeyboard {
	return InlineKeyboard{{
		data("✅ Approve", action(actApprove, regID)),
		data("❌ Reject", action(actReject, regID)),
	}}
}

func ratingKeyboard(eventID int64) InlineKeyboard {
	row := make([]Button, 0, 5)
	for n := int64(1); n <= 5; n++ {
		row = append(row, data(fmt.Sprintf("%d⭐", n), action(actRate, eventID, n)))
	}
	return InlineKeyboard{row}
}

func adminEventsKeyboard(events []model.Event, page int, mode int64) InlineKeyboard {
	pick := actAdminEvent
	switch mode {
	case listRegistrants:
		pick = actRegistrants
	case listAnnounce:
		pick = actAnnouncePick
	}
	lo, hi, nav := pager(len(events), page, func(p int) string {
		return action(actAdminEventPage, int64(p), mode)
	})
	kb := InlineKeyboard{}
	for _, e := range events[lo:hi] {
		label := fmt.Sprintf("%s %s", e.Status.Icon(), e.Name)
		kb = append(kb, []Button{data(label, action(pick, e.ID))})
	}
	if nav != nil {
		kb = append(kb, nav)
	}
	return kb
}

func adminEventKeyboard(eventID int64) InlineKeyboard {
	return InlineKeyboard{
		{data("✏️ Edit Details", action(actEditEvent, eventID)), data("👥 Registrants", action(actRegistrants, eventID))},
		{data("📊 Export to Excel", action(actExport, eventID)), data("📢 Send Notification", action(actNotifyEvent, eventID))},
		{data("⭐ View Feedback", action(actViewFeedback, eventID)), data("🔳 Share QR", action(actShareQR, eventID))},
		{data("🚫 Cancel Event", action(actCancelEvent, eventID))},
		{data("⬅️ Back to Events", actAdminBack)},
	}
}

var fieldLabels = map[dialog.EventField]string{
	dialog.EventName:        "Name",
	dialog.EventDescription: "Description",
	dialog.EventCapacity:    "Capacity",
	dialog.EventFee:         "Fee",
	dialog.EventStudentFee:  "Student Fee",
	dialog.EventDate:        "Date",
	dialog.EventLocation:    "Location",
	dialog.EventPoster:      "Poster",
}

func editEventKeyboard(eventID int64) InlineKeyboard {
	kb := InlineKeyboard{}
	var row []Button
	for i, f := range dialog.EventFields {
		row = append(row, data(fieldLabels[f], action(actEditField, eventID, int64(i))))
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if row != nil {
		kb = append(kb, row)
	}
	return append(kb, []Button{data("⬅️ Back", action(actAdminEvent, eventID))})
}

func registrantsKeyboard(eventID int64) InlineKeyboard {
	return InlineKeyboard{
		{data("📊 Export to Excel", action(actExport, eventID))},
		{data("⬅️ Back", action(actAdminEvent, eventID))},
	}
}

func confirmCancelEventKeyboard(eventID int64) InlineKeyboard {
	return InlineKeyboard{{
		data("Yes, cancel it", action(actConfirmCancelEvent, eventID)),
		data("No", action(actAdminEvent, eventID)),
	}}
}

func announcementKeyboard() InlineKeyboard {
	return InlineKeyboard{
		{data("📣 All Users", actAnnounceAll)},
		{data("🎫 Registrants of an Event", actAnnounceEvent)},
	}
}
