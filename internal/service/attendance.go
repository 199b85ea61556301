package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/metrics"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const parentNotePrefix = "[Parent note]: "

func periodFilter(p api.Period) models.AttendanceFilter {
	if p.Year == nil {
		return models.AttendanceFilter{}
	}

	from := dates.New(*p.Year, time.January, 1)
	to := dates.New(*p.Year, time.December, 31)

	if p.Month != nil {
		from = dates.New(*p.Year, time.Month(*p.Month), 1)
		to = from.AddDays(31)
		to = dates.New(to.Year(), to.Month(), 1).AddDays(-1)
	}

	return models.AttendanceFilter{From: &from, To: &to}
}

func periodMatches(p api.Period, d dates.Day) bool {
	return p.Month == nil || int(d.Month()) == *p.Month
}

func (s *Service) periodRecords(ctx context.Context, childID string, p api.Period) ([]models.AttendanceRecord, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	records, err := s.store.ListAttendance(ctx, childID, periodFilter(p))
	if err != nil {
		return nil, err
	}

	out := records[:0]
	for _, rec := range records {
		if periodMatches(p, rec.Day) {
			out = append(out, rec)
		}
	}

	return out, nil
}

func (s *Service) GetHistory(ctx context.Context, actor models.Actor, childID string, p api.Period) ([]api.AttendanceHistoryEntry, error) {
	const op = "service.GetHistory"

	child, err := s.parentChild(ctx, actor, childID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := s.periodRecords(ctx, childID, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]api.AttendanceHistoryEntry, 0, len(records))
	for i := range records {
		out = append(out, s.historyEntry(&records[i], child))
	}

	return out, nil
}

func (s *Service) GetStats(ctx context.Context, actor models.Actor, childID string, p api.Period) (*api.AttendanceStats, error) {
	const op = "service.GetStats"

	if _, err := s.parentChild(ctx, actor, childID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	records, err := s.periodRecords(ctx, childID, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	stats := computeStats(records)
	return &stats, nil
}

func (s *Service) GetToday(ctx context.Context, actor models.Actor, childID string) (*api.TodayAttendance, error) {
	const op = "service.GetToday"

	if _, err := s.parentChild(ctx, actor, childID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	today := s.today()

	rec, err := s.store.AttendanceRecord(ctx, childID, today)
	if isNotFound(err) {
		return &api.TodayAttendance{
			Date:             today.String(),
			MorningPickup:    true,
			AfternoonDropoff: true,
			Status:           statusPresent,
			PickupTime:       timeExpected,
			DropoffTime:      timeExpected,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.todayView(rec), nil
}

func (s *Service) ReportAbsence(ctx context.Context, actor models.Actor, childID string, req *api.ReportAbsenceRequest) (*api.AttendanceHistoryEntry, error) {
	const op = "service.ReportAbsence"

	child, err := s.parentChild(ctx, actor, childID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	day, err := dates.Parse(req.Date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("%s", err.Error()))
	}

	if req.Status != "absent" && req.Status != "late" {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("status must be absent or late"))
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("reason is required"))
	}

	var returnDate *dates.Day
	if req.ReturnDate != nil && *req.ReturnDate != "" {
		rd, err := dates.Parse(*req.ReturnDate)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Invalid("%s", err.Error()))
		}
		if rd.Before(day) {
			return nil, fmt.Errorf("%s: %w", op, response.Invalid("returnDate must not be before date"))
		}
		returnDate = &rd
	}

	absent := req.Status == "absent"

	rec, err := s.store.UpsertAbsence(ctx, models.AbsenceReport{
		ChildID:        childID,
		Day:            day,
		Absent:         absent,
		Late:           !absent,
		Reason:         reason,
		ReturnDate:     returnDate,
		ForceMorning:   req.MorningOnly || absent,
		ForceAfternoon: req.AfternoonOnly || absent,
		At:             s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.AttendanceWrite("report_absence")

	n := models.Notification{
		Kind:    models.NotifyAbsenceReported,
		ChildID: childID,
		Message: fmt.Sprintf("%s reported %s for %s", child.Name(), req.Status, day),
		Data:    map[string]string{"date": day.String(), "status": req.Status},
	}
	if child.RouteID != nil {
		n.RouteID = *child.RouteID
	}
	s.notify(ctx, n)

	entry := s.historyEntry(rec, child)
	return &entry, nil
}

func (s *Service) UpdateDailyAttendance(ctx context.Context, actor models.Actor, childID string, req *api.DailyAttendanceRequest) (*api.DailyAttendanceResponse, error) {
	const op = "service.UpdateDailyAttendance"

	if _, err := s.parentChild(ctx, actor, childID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if req.MorningPickup == nil && req.AfternoonDropoff == nil {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("at least one of morningPickup or afternoonDropoff is required"))
	}

	today := s.today()

	_, err := s.store.UpsertDailyPreference(ctx, models.DailyPreference{
		ChildID:          childID,
		Day:              today,
		MorningPickup:    req.MorningPickup,
		AfternoonDropoff: req.AfternoonDropoff,
		At:               s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.AttendanceWrite("update_daily")

	return &api.DailyAttendanceResponse{
		Date:             today.String(),
		MorningPickup:    req.MorningPickup,
		AfternoonDropoff: req.AfternoonDropoff,
	}, nil
}

func (s *Service) SendDriverNote(ctx context.Context, actor models.Actor, childID string, req *api.DriverNoteRequest) (*api.DriverNoteResponse, error) {
	const op = "service.SendDriverNote"

	if _, err := s.parentChild(ctx, actor, childID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("note is required"))
	}

	today := s.today()

	if _, err := s.store.AppendNote(ctx, childID, today, parentNotePrefix+note, s.now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.AttendanceWrite("driver_note")

	return &api.DriverNoteResponse{
		Date:    today.String(),
		Message: "Note sent to driver",
	}, nil
}

var allowedLegStates = map[models.Leg]map[models.LegState]bool{
	models.LegMorning:   {models.LegPickedUp: true, models.LegAbsent: true},
	models.LegAfternoon: {models.LegDroppedOff: true, models.LegAbsent: true},
}

// MarkLegStatus records a driver's action on one leg. A nil status resets
// the leg to awaiting action.
func (s *Service) MarkLegStatus(ctx context.Context, actor models.Actor, childID, leg string, req *api.MarkLegRequest) (*api.LegView, error) {
	const op = "service.MarkLegStatus"

	l := models.Leg(leg)
	allowed, ok := allowedLegStates[l]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("leg must be morning or afternoon"))
	}

	var status *models.LegState
	if req.Status != nil {
		st := models.LegState(*req.Status)
		if !allowed[st] {
			return nil, fmt.Errorf("%s: %w", op, response.Invalid("status %q is not allowed for the %s leg", st, l))
		}
		status = &st
	}

	day := s.today()
	if req.Date != "" {
		d, err := dates.Parse(req.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Invalid("%s", err.Error()))
		}
		day = d
	}

	if actor.Role != models.RoleDriver {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	child, err := s.store.ChildOfDriver(ctx, childID, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rec, err := s.store.UpsertLegStatus(ctx, models.LegMark{
		ChildID:  childID,
		Day:      day,
		Leg:      l,
		Status:   status,
		Location: req.Location,
		At:       s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.AttendanceWrite("mark_leg")

	if status != nil {
		s.notify(ctx, legNotification(child, l, *status, day))
	}

	return legView(rec, l), nil
}

func legNotification(child *models.Child, leg models.Leg, status models.LegState, day dates.Day) models.Notification {
	n := models.Notification{
		ChildID: child.ID,
		Data: map[string]string{
			"parentId": child.ParentID,
			"leg":      string(leg),
			"date":     day.String(),
		},
	}

	if child.RouteID != nil {
		n.RouteID = *child.RouteID
	}

	switch status {
	case models.LegPickedUp:
		n.Kind = models.NotifyPickup
		n.Message = fmt.Sprintf("%s was picked up", child.Name())
	case models.LegDroppedOff:
		n.Kind = models.NotifyDropoff
		n.Message = fmt.Sprintf("%s was dropped off", child.Name())
	default:
		n.Kind = models.NotifyNoShow
		n.Message = fmt.Sprintf("%s was not at the %s stop", child.Name(), leg)
	}

	return n
}
