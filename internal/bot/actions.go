package bot

import (
	"errors"
	"strconv"
	"strings"
)

// Callback verbs. Button data is "verb" or "verb:arg[:arg...]" and must stay
// under the 64 byte limit.
const (
	// user side
	actViewEvent          = "ev"
	actEventList          = "evlist"
	actRegister           = "reg"
	actMyRegistration     = "myreg"
	actMyRegistrationPage = "myregp"
	actCancelRegistration = "cancelreg"
	actRate               = "rate"

	// approvals
	actApprove = "approve"
	actReject  = "reject"

	// admin side
	actAdminEvent         = "aev"
	actAdminEventPage     = "aevp"
	actAdminBack          = "aback"
	actEditEvent          = "aedit"
	actEditField          = "afield"
	actRegistrants        = "aregs"
	actExport             = "aexport"
	actNotifyEvent        = "anotify"
	actCancelEvent        = "acancel"
	actConfirmCancelEvent = "acancelok"
	actViewFeedback       = "afeedback"
	actShareQR            = "aqr"
	actAnnounceAll        = "annall"
	actAnnounceEvent      = "annevent"
	actAnnouncePick       = "annpick"
)

var adminVerbs = map[string]bool{
	actApprove: true, actReject: true,
	actAdminEvent: true, actAdminEventPage: true, actAdminBack: true,
	actEditEvent: true, actEditField: true, actRegistrants: true,
	actExport: true, actNotifyEvent: true, actCancelEvent: true,
	actConfirmCancelEvent: true, actViewFeedback: true, actShareQR: true,
	actAnnounceAll: true, actAnnounceEvent: true, actAnnouncePick: true,
}

var errBadAction = errors.New("malformed button data")

// Action is a decoded button press.
type Action struct {
	Verb string
	Args []int64
}

// Arg returns the i-th argument, or 0 when absent.
func (a Action) Arg(i int) int64 {
	if i < len(a.Args) {
		return a.Args[i]
	}
	return 0
}

// AdminOnly reports whether the verb requires admin rights.
func (a Action) AdminOnly() bool {
	return adminVerbs[a.Verb]
}

// action encodes a verb and its integer arguments as button data.
func action(verb string, args ...int64) string {
	var sb strings.Builder
	sb.WriteString(verb)
	for _, a := range args {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(a, 10))
	}
	return sb.String()
}

// ParseAction decodes button data produced by action.
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if parts[0] == "" {
		return Action{}, errBadAction
	}
	a := Action{Verb: parts[0]}
	for _, p := range parts[1:] {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Action{}, errBadAction
		}
		a.Args = append(a.Args, n)
	}
	return a, nil
}
