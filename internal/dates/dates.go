// Package dates holds the calendar-day type used as the attendance and
// tracking-history key.
package dates

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Day is a calendar date without a zone. Two instants on the same local
// date map to equal Days.
type Day struct {
	year  int
	month time.Month
	day   int
}

func New(year int, month time.Month, day int) Day {
	// normalise overflow like time.Date does
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Day{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Of returns the calendar day of t in loc.
func Of(t time.Time, loc *time.Location) Day {
	y, m, d := t.In(loc).Date()
	return Day{year: y, month: m, day: d}
}

func Parse(s string) (Day, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}

	return Day{year: t.Year(), month: t.Month(), day: t.Day()}, nil
}

func (d Day) Year() int { return d.year }
func (d Day) Month() time.Month { return d.month }
func (d Day) DayOfMonth() int { return d.day }
func (d Day) IsZero() bool { return d == Day{} }
func (d Day) Before(o Day) bool { return d.compare(o) < 0 }
func (d Day) After(o Day) bool { return d.compare(o) > 0 }
func (d Day) AddDays(n int) Day { return New(d.year, d.month, d.day+n) }
func (d Day) Weekday() time.Weekday {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Start is local midnight of d in loc.
func (d Day) Start(loc *time.Location) time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}

	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

func (d Day) compare(o Day) int {
	switch {
	case d.year != o.year:
		return d.year - o.year
	case d.month != o.month:
		return int(d.month) - int(o.month)
	default:
		return d.day - o.day
	}
}

func (d Day) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan accepts what postgres (time.Time) and sqlite (time.Time or text)
// return for a DATE column. The date part is taken as stored, without
// zone conversion.
func (d *Day) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		y, m, dd := v.Date()
		*d = Day{year: y, month: m, day: dd}
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	case nil:
		return fmt.Errorf("dates: cannot scan NULL into Day")
	default:
		return fmt.Errorf("dates: cannot scan %T into Day", src)
	}
}

func (d *Day) scanText(s string) error {
	if len(s) < len(Layout) {
		return fmt.Errorf("dates: invalid stored date %q", s)
	}

	parsed, err := Parse(s[:len(Layout)])
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := Parse(s)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// NullDay is a Day that may be NULL in storage.
type NullDay struct {
	Day   Day
	Valid bool
}

func (n NullDay) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}

	return n.Day.Value()
}

func (n *NullDay) Scan(src any) error {
	if src == nil {
		*n = NullDay{}
		return nil
	}

	if err := n.Day.Scan(src); err != nil {
		return err
	}

	n.Valid = true
	return nil
}

func (n NullDay) Ptr() *Day {
	if !n.Valid {
		return nil
	}

	d := n.Day
	return &d
}
