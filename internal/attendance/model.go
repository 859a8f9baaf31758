package attendance

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"classattend/internal/apperr"
)

// Status is the stored attendance outcome for one student on one date.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// Valid reports whether s is one of the two stored statuses.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Student is one enrolled roster entry.
type Student struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Class     string    `json:"class"`
	Section   string    `json:"section"`
	PhotoRef  string    `json:"photo_ref"`
	QRRef     string    `json:"qr_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DayRow is one line of a day report.
type DayRow struct {
	ID     int64
	Name   string
	Status Status
}

// MonthRow is one line of a month report. Only stored records are counted.
type MonthRow struct {
	ID          int64
	Name        string
	Presents    int
	TotalMarked int
}

// HistoryRow is one stored record of a student within a month.
type HistoryRow struct {
	Date   civil.Date
	Status Status
}

// ClassSection identifies one class/section pair.
type ClassSection struct {
	Class   string
	Section string
}

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil || !d.IsValid() {
		return civil.Date{}, apperr.Invalid("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// Month is a calendar year-month.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth parses a strict YYYY-MM month.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, apperr.Invalid("month %q must be YYYY-MM", s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf returns the month containing d.
func MonthOf(d civil.Date) Month {
	return Month{Year: d.Year, Month: d.Month}
}

// Start is the first day of the month.
func (m Month) Start() civil.Date {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}
}

// End is the first day of the following month, exclusive.
func (m Month) End() civil.Date {
	if m.Month == time.December {
		return civil.Date{Year: m.Year + 1, Month: time.January, Day: 1}
	}
	return civil.Date{Year: m.Year, Month: m.Month + 1, Day: 1}
}

func (m Month) String() string {
	return civil.Date{Year: m.Year, Month: m.Month, Day: 1}.String()[:7]
}
