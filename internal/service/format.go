package service

import (
	"errors"
	"math"
	"time"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const (
	statusPresent = "Present"
	statusAbsent  = "Absent"
	statusLate    = "Late"

	timeExpected   = "Expected"
	timeNone       = "-"
	clockLayout    = "3:04 PM"
	defaultAddress = "Home"
)

func isNotFound(err error) bool {
	return errors.Is(err, response.ErrNotFound)
}

// dayStatus ranks Absent over Late over Present.
func dayStatus(rec *models.AttendanceRecord) string {
	switch {
	case rec.Absent:
		return statusAbsent
	case rec.Late:
		return statusLate
	default:
		return statusPresent
	}
}

func (s *Service) clock12(t time.Time) string {
	return t.In(s.cfg.Location).Format(clockLayout)
}

// legTime renders a leg for history: the recorded time once done,
// Expected while awaited, "-" otherwise.
func (s *Service) legTime(leg models.LegStatus, done models.LegState) string {
	switch {
	case leg.Is(done) && leg.Time != nil:
		return s.clock12(*leg.Time)
	case leg.Is(models.LegExpected):
		return timeExpected
	default:
		return timeNone
	}
}

func legLocation(leg models.LegStatus, fallback string) string {
	if leg.Location != nil && *leg.Location != "" {
		return *leg.Location
	}
	if fallback != "" {
		return fallback
	}

	return defaultAddress
}

func (s *Service) historyEntry(rec *models.AttendanceRecord, child *models.Child) api.AttendanceHistoryEntry {
	entry := api.AttendanceHistoryEntry{
		Date:            rec.Day.String(),
		Day:             rec.Day.Weekday().String(),
		Status:          dayStatus(rec),
		PickupTime:      s.legTime(rec.MorningPickup, models.LegPickedUp),
		PickupLocation:  legLocation(rec.MorningPickup, child.PickupLocation),
		DropoffTime:     s.legTime(rec.AfternoonDropoff, models.LegDroppedOff),
		DropoffLocation: legLocation(rec.AfternoonDropoff, child.DropoffLocation),
		Notes:           rec.Notes,
	}

	if rec.ReturnDate != nil {
		rd := rec.ReturnDate.String()
		entry.ReturnDate = &rd
	}

	return entry
}

func (s *Service) todayView(rec *models.AttendanceRecord) *api.TodayAttendance {
	view := &api.TodayAttendance{
		Date:             rec.Day.String(),
		MorningPickup:    !rec.MorningPickup.Is(models.LegUnavailable),
		AfternoonDropoff: !rec.AfternoonDropoff.Is(models.LegUnavailable),
		MorningStatus:    stateString(rec.MorningPickup.Status),
		AfternoonStatus:  stateString(rec.AfternoonDropoff.Status),
		Status:           dayStatus(rec),
		PickupTime:       timeExpected,
		DropoffTime:      timeExpected,
		Notes:            rec.Notes,
	}

	if t := rec.MorningPickup.Time; t != nil {
		view.PickupTime = s.clock12(*t)
	}
	if t := rec.AfternoonDropoff.Time; t != nil {
		view.DropoffTime = s.clock12(*t)
	}

	return view
}

func stateString(st *models.LegState) *string {
	if st == nil {
		return nil
	}

	v := string(*st)
	return &v
}

func legView(rec *models.AttendanceRecord, leg models.Leg) *api.LegView {
	l := rec.Leg(leg)

	return &api.LegView{
		ChildID:        rec.ChildID,
		Date:           rec.Day.String(),
		Leg:            string(leg),
		Status:         stateString(l.Status),
		Time:           l.Time,
		Location:       l.Location,
		ParentReported: l.ParentReported,
	}
}

func computeStats(records []models.AttendanceRecord) api.AttendanceStats {
	var st api.AttendanceStats

	st.TotalDays = len(records)
	for i := range records {
		switch {
		case records[i].Absent:
			st.AbsentDays++
		case !records[i].Late:
			st.PresentDays++
		}
		if records[i].Late {
			st.LateDays++
		}
	}

	if st.TotalDays > 0 {
		st.AttendanceRate = int(math.Round(float64(st.PresentDays) / float64(st.TotalDays) * 100))
	}

	return st
}
