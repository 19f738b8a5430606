// Package export renders an event and its registrants as an xlsx workbook.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"regbot/internal/model"
)

const (
	SheetInfo        = "Event Info"
	SheetRegistrants = "Registrants"
	SheetSummary     = "Summary"

	dateLayout = "2006-01-02 15:04"
)

var registrantHeader = []interface{}{
	"No.", "First Name", "Last Name", "Status", "Phone Number", "Student ID", "Payment Fee", "Registration Date",
}

var registrantWidths = []float64{5, 15, 15, 15, 15, 15, 15, 30}

// Summary holds the counts written to the summary sheet.
type Summary struct {
	Total     int
	Approved  int
	Pending   int
	Rejected  int
	Cancelled int
	Revenue   float64 // sum of fees of approved registrants
}

// Summarize counts registrants per status and sums the expected revenue.
func Summarize(regs []model.RegistrationDetails) Summary {
	s := Summary{Total: len(regs)}
	for _, r := range regs {
		switch r.Status {
		case model.RegistrationApproved:
			s.Approved++
			s.Revenue += r.Fee()
		case model.RegistrationPending:
			s.Pending++
		case model.RegistrationRejected:
			s.Rejected++
		case model.RegistrationCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Filename returns a download name for the event workbook.
func Filename(e model.Event, now time.Time) string {
	name := strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, e.Name)
	return fmt.Sprintf("%s_registrants_%s.xlsx", name, now.Format("20060102_150405"))
}

// Workbook builds the three-sheet workbook. Times are shown in loc.
func Workbook(e model.Event, regs []model.RegistrationDetails, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetInfo); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetInfo, [][]interface{}{
		{"Event Information"},
		{"Name", e.Name},
		{"Date", e.Date.In(loc).Format(dateLayout)},
		{"Location", orNA(e.Location)},
		{"Capacity", e.Capacity},
		{"Status", string(e.Status)},
		{"Regular Fee", e.Fee},
		{"University Fee", e.EffectiveStudentFee()},
	}); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(SheetInfo, "A", "B", 20); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(SheetRegistrants); err != nil {
		return nil, err
	}
	rows := [][]interface{}{registrantHeader}
	for i, r := range regs {
		rows = append(rows, []interface{}{
			i + 1,
			r.User.FirstName,
			r.User.LastName,
			string(r.Status),
			orNA(r.User.PhoneNumber),
			orNA(r.User.StudentID),
			r.Fee(),
			r.RegisteredAt.In(loc).Format(dateLayout),
		})
	}
	if err := writeRows(f, SheetRegistrants, rows); err != nil {
		return nil, err
	}
	for i, w := range registrantWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(SheetRegistrants, col, col, w); err != nil {
			return nil, err
		}
	}

	s := Summarize(regs)
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetSummary, [][]interface{}{
		{"Registration Summary"},
		{"Total Registrants", s.Total},
		{"Approved", s.Approved},
		{"Pending", s.Pending},
		{"Rejected", s.Rejected},
		{"Cancelled", s.Cancelled},
		{},
		{"Financial Summary"},
		{"Total Expected Revenue", s.Revenue},
	}); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 25); err != nil {
		return nil, err
	}

	return f.WriteToBuffer()
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
