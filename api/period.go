package api

import (
	"strconv"

	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

// Period narrows history and stats to a month and/or a year. A month
// without a year matches that month in every year.
type Period struct {
	Month *int
	Year  *int
}

// ParsePeriod reads the month and year query values. Empty values leave
// the bound open.
func ParsePeriod(month, year string) (Period, error) {
	var p Period

	if month != "" {
		m, err := strconv.Atoi(month)
		if err != nil {
			return Period{}, response.Invalid("month must be a number")
		}
		p.Month = &m
	}
	if year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			return Period{}, response.Invalid("year must be a number")
		}
		p.Year = &y
	}

	return p, p.Validate()
}

func (p Period) Validate() error {
	if p.Month != nil && (*p.Month < 1 || *p.Month > 12) {
		return response.Invalid("month must be between 1 and 12")
	}
	if p.Year != nil && (*p.Year < 1000 || *p.Year > 9999) {
		return response.Invalid("year must have four digits")
	}

	return nil
}
