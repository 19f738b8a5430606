package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"regbot/internal/dialog"
	"regbot/internal/model"
)

const (
	dateLayout = "2006-01-02 15:04"

	// maxListText keeps registrant lists under the 4096 character message limit.
	maxListText = 4000
	// maxFeedbackShown caps the comments listed for one event.
	maxFeedbackShown = 10
)

func money(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', -1, 64)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func feeType(u model.User) string {
	if u.IsStudent() {
		return "Student"
	}
	return "Regular"
}

func (b *Bot) date(t time.Time) string {
	return t.In(b.cfg.Location).Format(dateLayout)
}

func (b *Bot) eventDetails(e model.Event, fee float64) string {
	var sb strings.Builder
	sb.WriteString("Event Details\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", e.Name)
	fmt.Fprintf(&sb, "Description: %s\n", orNA(e.Description))
	fmt.Fprintf(&sb, "Date: %s\n", b.date(e.Date))
	fmt.Fprintf(&sb, "Location: %s\n", orNA(e.Location))
	fmt.Fprintf(&sb, "Fee: %s\n", money(fee))
	fmt.Fprintf(&sb, "Capacity: %d\n", e.Capacity)
	fmt.Fprintf(&sb, "Status: %s\n", e.Status)
	return sb.String()
}

func (b *Bot) adminEventDetails(e model.Event, approved int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n\n", e.Status.Icon(), e.Name)
	fmt.Fprintf(&sb, "Description: %s\n", orNA(e.Description))
	fmt.Fprintf(&sb, "Date: %s\n", b.date(e.Date))
	fmt.Fprintf(&sb, "Location: %s\n", orNA(e.Location))
	fmt.Fprintf(&sb, "Fee: %s\n", money(e.Fee))
	fmt.Fprintf(&sb, "Student Fee: %s\n", money(e.EffectiveStudentFee()))
	fmt.Fprintf(&sb, "Capacity: %d/%d approved\n", approved, e.Capacity)
	fmt.Fprintf(&sb, "Status: %s\n", e.Status)
	if e.PosterID != "" {
		sb.WriteString("Poster: set\n")
	}
	return sb.String()
}

func (b *Bot) draftSummary(d dialog.EventDraft) string {
	var sb strings.Builder
	sb.WriteString("Please confirm the new event:\n\n")
	fmt.Fprintf(&sb, "Name: %s\n", d.Name)
	fmt.Fprintf(&sb, "Description: %s\n", orNA(d.Description))
	fmt.Fprintf(&sb, "Capacity: %d\n", d.Capacity)
	fmt.Fprintf(&sb, "Fee: %s\n", money(d.Fee))
	fmt.Fprintf(&sb, "Student Fee: %s\n", money(d.StudentFee))
	fmt.Fprintf(&sb, "Date: %s\n", b.date(d.Date))
	fmt.Fprintf(&sb, "Location: %s\n\n", orNA(d.Location))
	sb.WriteString("Create this event?")
	return sb.String()
}

func profileText(u model.User) string {
	var sb strings.Builder
	sb.WriteString("Your Profile\n\n")
	fmt.Fprintf(&sb, "First Name: %s\n", orNA(u.FirstName))
	fmt.Fprintf(&sb, "Last Name: %s\n", orNA(u.LastName))
	fmt.Fprintf(&sb, "Phone: %s\n", orNA(u.PhoneNumber))
	fmt.Fprintf(&sb, "Student ID: %s\n\n", orNA(u.StudentID))
	sb.WriteString("To update your information, use:\n")
	sb.WriteString("/editfirstname - Update first name\n")
	sb.WriteString("/editlastname - Update last name\n")
	sb.WriteString("/editphone - Update phone number\n")
	sb.WriteString("/editstudentid - Update student ID")
	return sb.String()
}

func profilePreview(first, last, phone, studentID string) string {
	return fmt.Sprintf("We have your information on file:\n\nName: %s %s\nPhone: %s\nStudent ID: %s\n\nDo you want to use this information?",
		first, last, phone, studentID)
}

func paymentText(fee float64, cardNumber, cardOwner string) string {
	return fmt.Sprintf("Please pay %s to:\nCard Number: %s\nCard Owner: %s\nAfter payment, upload your payment receipt image:",
		money(fee), cardNumber, orNA(cardOwner))
}

func (b *Bot) myRegistrationText(r model.RegistrationDetails) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Registration for %q\n\n", r.Event.Name)
	fmt.Fprintf(&sb, "Event Date: %s\n", b.date(r.Event.Date))
	fmt.Fprintf(&sb, "Location: %s\n", orNA(r.Event.Location))
	fmt.Fprintf(&sb, "Fee: %s\n", money(r.Fee()))
	fmt.Fprintf(&sb, "Registered: %s\n", b.date(r.RegisteredAt))
	fmt.Fprintf(&sb, "Status: %s %s\n", r.Status.Icon(), r.Status)
	if r.Event.Status == model.EventCancelled {
		sb.WriteString("\n⚠️ This event has been cancelled.")
	}
	return sb.String()
}

func approvalCaption(r model.RegistrationDetails) string {
	return fmt.Sprintf("New Registration\nEvent: %s\nName: %s\nPhone: %s\nStudent ID: %s\nFee Type: %s\nFee Amount: %s\n",
		r.Event.Name, r.User.FullName(), orNA(r.User.PhoneNumber), orNA(r.User.StudentID),
		feeType(r.User), money(r.Fee()))
}

func decisionCaption(r model.RegistrationDetails, status model.RegistrationStatus, admin Sender) string {
	head := "✅ Registration Approved"
	if status == model.RegistrationRejected {
		head = "❌ Registration Rejected"
	}
	who := admin.FirstName
	if admin.Username != "" {
		who = "@" + admin.Username
	}
	return fmt.Sprintf("%s\n\n%s\nDecided by: %s", head, approvalCaption(r), orNA(who))
}

func cancellationAlert(r model.RegistrationDetails, previous model.RegistrationStatus, reason string) string {
	return fmt.Sprintf("🚫 Registration Cancelled\n%s\n\nEvent: %s\nName: %s\nPhone: %s\nStudent ID: %s\nPrevious Status: %s\nFee Paid: %s\n\nPlease process a refund if applicable.",
		reason, r.Event.Name, r.User.FullName(), orNA(r.User.PhoneNumber), orNA(r.User.StudentID),
		previous, money(r.Fee()))
}

func (b *Bot) eventCancelledNotice(e model.Event) string {
	return fmt.Sprintf("⚠️ Event Cancelled\n\nWe're sorry, the event %q scheduled for %s has been cancelled. If you paid a fee, an admin will contact you about a refund.",
		e.Name, b.date(e.Date))
}

// registrantsText lists registrants with status icons, falling back to a
// count summary when the list would not fit in one message.
func registrantsText(e model.Event, regs []model.RegistrationDetails) string {
	if len(regs) == 0 {
		return fmt.Sprintf("No registrations yet for %q.", e.Name)
	}
	counts := map[model.RegistrationStatus]int{}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Registrants for %q (%d)\n\n", e.Name, len(regs))
	for i, r := range regs {
		counts[r.Status]++
		fmt.Fprintf(&sb, "%d. %s %s | %s | %s | %s\n", i+1, r.Status.Icon(), r.User.FullName(),
			orNA(r.User.PhoneNumber), orNA(r.User.StudentID), money(r.Fee()))
	}
	if sb.Len() <= maxListText {
		return sb.String()
	}
	return fmt.Sprintf("Registrants for %q\n\nTotal: %d\n✅ Approved: %d\n⏳ Pending: %d\n❌ Rejected: %d\n🚫 Cancelled: %d\n\nThe list is too long to show here. Use Export to Excel for the full list.",
		e.Name, len(regs), counts[model.RegistrationApproved], counts[model.RegistrationPending],
		counts[model.RegistrationRejected], counts[model.RegistrationCancelled])
}

func feedbackText(e model.Event, items []model.Feedback, avg float64, ok bool) string {
	if !ok || len(items) == 0 {
		return fmt.Sprintf("No feedback yet for %q.", e.Name)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Feedback for %q\n\nAverage rating: %.1f ⭐ (%d ratings)\n\n", e.Name, avg, len(items))
	for i, f := range items {
		if i == maxFeedbackShown {
			fmt.Fprintf(&sb, "...and %d more", len(items)-maxFeedbackShown)
			break
		}
		fmt.Fprintf(&sb, "%s %s\n", strings.Repeat("⭐", f.Rating), orNA(f.User.FullName()))
		if f.Comment != "" {
			fmt.Fprintf(&sb, "   %s\n", f.Comment)
		}
	}
	return sb.String()
}
