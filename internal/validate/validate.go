// Package validate holds the input rules the conversation flows apply to
// structured fields before a step is allowed to advance.
package validate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"regbot/internal/model"
)

var (
	phoneRegex = regexp.MustCompile(`^(?:09|\+?989)\d{2}[-\s]?\d{3}[-\s]?\d{4}$`)

	// admission year, faculty/program code (optionally prefixed by 1 or 2), 3 digit sequence
	studentIDRegex = regexp.MustCompile(`^(?:9[6-9]|40[0-4])[12]?(?:2[2-9]|3[0-4]|39|1[0-3])\d{3}$`)
)

// DateLayouts are the accepted admin date inputs, most specific first.
var DateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// PhoneNumber reports whether value is an Iranian mobile number.
func PhoneNumber(value string) bool {
	return phoneRegex.MatchString(strings.TrimSpace(value))
}

// StudentID reports whether value is a university student id.
// The model.NotAStudent sentinel does not pass; callers check it first.
func StudentID(value string) bool {
	return studentIDRegex.MatchString(strings.TrimSpace(value))
}

// StudentIDOrSentinel accepts a student id or the model.NotAStudent sentinel.
func StudentIDOrSentinel(value string) bool {
	if strings.TrimSpace(value) == model.NotAStudent {
		return true
	}
	return StudentID(value)
}

// Capacity parses a positive participant limit.
func Capacity(value string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Fee parses a non-negative amount. Thousands separators are tolerated.
func Fee(value string) (float64, bool) {
	cleaned := strings.NewReplacer(",", "", "_", "", " ", "").Replace(value)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}

// EventDate parses an admin supplied date in loc.
func EventDate(value string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	value = strings.TrimSpace(value)
	for _, layout := range DateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
