package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/metrics"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

func (s *Service) location(in api.Location) (models.Location, error) {
	switch {
	case in.Latitude < -90 || in.Latitude > 90:
		return models.Location{}, response.Invalid("latitude must be between -90 and 90")
	case in.Longitude < -180 || in.Longitude > 180:
		return models.Location{}, response.Invalid("longitude must be between -180 and 180")
	case in.Speed < 0:
		return models.Location{}, response.Invalid("speed must not be negative")
	case in.Heading < 0 || in.Heading >= 360:
		return models.Location{}, response.Invalid("heading must be in [0, 360)")
	}

	loc := models.Location{
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Speed:     in.Speed,
		Heading:   in.Heading,
		Timestamp: s.now(),
	}
	if in.Timestamp != nil && !in.Timestamp.IsZero() {
		loc.Timestamp = *in.Timestamp
	}

	return loc, nil
}

func (s *Service) newEvent(busID string, kind models.EventKind, loc *models.Location) *models.TrackingEvent {
	now := s.now()

	return &models.TrackingEvent{
		ID:        s.ids.New(now),
		BusID:     busID,
		Kind:      kind,
		Priority:  models.PriorityNormal,
		Location:  loc,
		CreatedAt: now,
	}
}

func requireDriver(actor models.Actor, busID string) error {
	if actor.Role != models.RoleDriver {
		return response.ErrNotFound
	}
	if strings.TrimSpace(busID) == "" {
		return response.Invalid("busId is required")
	}

	return nil
}

func countRejection(err error) {
	switch {
	case errors.Is(err, response.ErrStaleUpdate):
		metrics.TrackingRejected("stale")
	case errors.Is(err, response.ErrSessionNotActive):
		metrics.TrackingRejected("not_active")
	case errors.Is(err, response.ErrConflict):
		metrics.TrackingRejected("conflict")
	case errors.Is(err, response.ErrLocked):
		metrics.TrackingRejected("locked")
	}
}

// StartTracking activates tracking for a bus on one of the driver's
// routes. Starting again with the same route while active returns the
// running session unchanged; any other start on an active bus conflicts.
func (s *Service) StartTracking(ctx context.Context, actor models.Actor, req *api.StartTrackingRequest) (*api.TrackingSession, error) {
	const op = "service.StartTracking"

	if err := requireDriver(actor, req.BusID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.RouteID == "" {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("routeId is required"))
	}

	loc, err := s.location(req.Location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	route, err := s.store.Route(ctx, req.RouteID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !route.IsActive ||
		route.DriverID == nil || *route.DriverID != actor.ID ||
		route.BusID == nil || *route.BusID != req.BusID {
		return nil, fmt.Errorf("%s: route %s is not assigned to this driver and bus: %w", op, req.RouteID, response.ErrNotFound)
	}

	release, err := s.lockBus(ctx, req.BusID)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	now := s.now()
	sess := &models.TrackingSession{
		BusID:      req.BusID,
		SessionID:  s.ids.New(now),
		RouteID:    req.RouteID,
		DriverID:   actor.ID,
		IsActive:   true,
		Day:        dates.Of(now, s.cfg.Location),
		Current:    loc,
		StartedAt:  now,
		LastSeenMs: now.UnixMilli(),
		UpdatedAt:  now,
	}

	got, started, err := s.store.StartSession(ctx, sess, s.newEvent(req.BusID, models.EventStart, &loc))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !started {
		if got.DriverID == actor.ID && got.RouteID == req.RouteID {
			s.log.Debug("Tracking already active, returning running session",
				slog.String("bus_id", got.BusID),
				slog.String("session_id", got.SessionID),
			)
			view := sessionView(got)
			return &view, nil
		}

		countRejection(response.ErrConflict)
		return nil, fmt.Errorf("%s: bus %s: %w", op, req.BusID, response.ErrConflict)
	}

	metrics.TrackingEvent(string(models.EventStart))
	s.publish(ctx, got)

	view := sessionView(got)
	return &view, nil
}

func (s *Service) UpdateLocation(ctx context.Context, actor models.Actor, req *api.UpdateLocationRequest) (*api.TrackingSession, error) {
	const op = "service.UpdateLocation"

	if err := requireDriver(actor, req.BusID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	loc, err := s.location(req.Location)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	release, err := s.lockBus(ctx, req.BusID)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	sess, err := s.store.UpdateLocation(ctx, models.LocationUpdate{
		BusID:       req.BusID,
		DriverID:    actor.ID,
		Location:    loc,
		Day:         s.today(),
		RejectStale: s.cfg.RejectStaleUpdates,
		At:          s.now(),
	}, s.newEvent(req.BusID, models.EventLocation, &loc))
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TrackingEvent(string(models.EventLocation))
	s.publish(ctx, sess)

	view := sessionView(sess)
	return &view, nil
}

func (s *Service) EndTracking(ctx context.Context, actor models.Actor, req *api.EndTrackingRequest) (*api.TrackingSession, error) {
	const op = "service.EndTracking"

	if err := requireDriver(actor, req.BusID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	release, err := s.lockBus(ctx, req.BusID)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	sess, err := s.store.EndSession(ctx, req.BusID, actor.ID, s.now(), s.newEvent(req.BusID, models.EventEnd, nil))
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TrackingEvent(string(models.EventEnd))
	s.publish(ctx, sess)

	view := sessionView(sess)
	return &view, nil
}

// ReportEmergency flags the active session, records a high priority
// event and raises a notification. Tracking stays active.
func (s *Service) ReportEmergency(ctx context.Context, actor models.Actor, req *api.EmergencyRequest) (*api.TrackingSession, error) {
	const op = "service.ReportEmergency"

	if err := requireDriver(actor, req.BusID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	details := strings.TrimSpace(req.Details)
	if details == "" {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("details are required"))
	}

	var loc *models.Location
	if req.Location != nil {
		l, err := s.location(*req.Location)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		loc = &l
	}

	release, err := s.lockBus(ctx, req.BusID)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	ev := s.newEvent(req.BusID, models.EventEmergency, loc)
	ev.Priority = models.PriorityHigh
	ev.Details = details

	sess, err := s.store.ReportEmergency(ctx, models.EmergencyReport{
		BusID:       req.BusID,
		DriverID:    actor.ID,
		Details:     details,
		Location:    loc,
		RejectStale: s.cfg.RejectStaleUpdates,
		At:          s.now(),
	}, ev)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TrackingEvent(string(models.EventEmergency))

	s.log.Warn("Emergency reported",
		slog.String("bus_id", sess.BusID),
		slog.String("session_id", sess.SessionID),
		slog.String("driver_id", sess.DriverID),
	)

	s.notify(ctx, models.Notification{
		Kind:     models.NotifyEmergency,
		Priority: models.PriorityHigh,
		BusID:    sess.BusID,
		RouteID:  sess.RouteID,
		Message:  details,
		Data: map[string]string{
			"sessionId": sess.SessionID,
			"driverId":  sess.DriverID,
			"latitude":  fmt.Sprintf("%.6f", sess.Current.Latitude),
			"longitude": fmt.Sprintf("%.6f", sess.Current.Longitude),
		},
	})
	s.publish(ctx, sess)

	view := sessionView(sess)
	return &view, nil
}

func (s *Service) UpdateConnection(ctx context.Context, actor models.Actor, req *api.ConnectionRequest) (*api.TrackingSession, error) {
	const op = "service.UpdateConnection"

	if err := requireDriver(actor, req.BusID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if req.BatteryLevel != nil && (*req.BatteryLevel < 0 || *req.BatteryLevel > 100) {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("batteryLevel must be between 0 and 100"))
	}

	release, err := s.lockBus(ctx, req.BusID)
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	sess, err := s.store.UpdateConnection(ctx, models.ConnectionUpdate{
		BusID:    req.BusID,
		DriverID: actor.ID,
		Info: models.ConnectionInfo{
			GPSSignal:      req.GPSSignal,
			DataConnection: req.DataConnection,
			BatteryLevel:   req.BatteryLevel,
			Device:         req.Device,
		},
		At: s.now(),
	})
	if err != nil {
		countRejection(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, sess)

	view := sessionView(sess)
	return &view, nil
}

// AuthorizeBusRead fails with not found unless actor may watch busID.
func (s *Service) AuthorizeBusRead(ctx context.Context, actor models.Actor, busID string) error {
	const op = "service.AuthorizeBusRead"

	if err := s.canReadBus(ctx, actor, busID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Service) GetCurrentTracking(ctx context.Context, actor models.Actor, busID string) (*api.TrackingSession, error) {
	const op = "service.GetCurrentTracking"

	if err := s.canReadBus(ctx, actor, busID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := s.store.Session(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := sessionView(sess)
	return &view, nil
}

func (s *Service) GetTrackingHistory(ctx context.Context, actor models.Actor, busID, date string) (*api.TrackingHistory, error) {
	const op = "service.GetTrackingHistory"

	day, err := dates.Parse(date)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("%s", err.Error()))
	}

	if err := s.canReadBus(ctx, actor, busID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.store.Session(ctx, busID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	events, err := s.store.Events(ctx, busID, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history := &api.TrackingHistory{
		BusID:  busID,
		Date:   day.String(),
		Events: make([]api.TrackingEvent, 0, len(events)),
	}
	for i := range events {
		history.Events = append(history.Events, eventView(&events[i]))
	}

	return history, nil
}

// GetChildTracking resolves the parent's child to its route's bus and
// returns that bus's session.
func (s *Service) GetChildTracking(ctx context.Context, actor models.Actor, childID string) (*api.TrackingSession, error) {
	const op = "service.GetChildTracking"

	if _, err := s.parentChild(ctx, actor, childID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	busID, err := s.store.BusOfChild(ctx, childID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sess, err := s.store.Session(ctx, busID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	view := sessionView(sess)
	return &view, nil
}
