package service

import (
	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
)

func locationView(l models.Location) api.LocationView {
	return api.LocationView{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Speed:     l.Speed,
		Heading:   l.Heading,
		Timestamp: l.Timestamp,
	}
}

func sessionView(sess *models.TrackingSession) api.TrackingSession {
	return api.TrackingSession{
		SessionID:        sess.SessionID,
		BusID:            sess.BusID,
		RouteID:          sess.RouteID,
		DriverID:         sess.DriverID,
		IsActive:         sess.IsActive,
		Date:             sess.Day.String(),
		CurrentLocation:  locationView(sess.Current),
		Emergency:        sess.Emergency,
		EmergencyDetails: sess.EmergencyDetails,
		EmergencyAt:      sess.EmergencyAt,
		Connection: api.ConnectionView{
			GPSSignal:      sess.Connection.GPSSignal,
			DataConnection: sess.Connection.DataConnection,
			BatteryLevel:   sess.Connection.BatteryLevel,
			Device:         sess.Connection.Device,
			UpdatedAt:      sess.Connection.UpdatedAt,
		},
		StartedAt:   sess.StartedAt,
		EndedAt:     sess.EndedAt,
		LastUpdated: sess.UpdatedAt,
	}
}

func eventView(ev *models.TrackingEvent) api.TrackingEvent {
	out := api.TrackingEvent{
		ID:        ev.ID,
		Kind:      string(ev.Kind),
		Priority:  string(ev.Priority),
		Details:   ev.Details,
		CreatedAt: ev.CreatedAt,
	}

	if ev.Location != nil {
		lv := locationView(*ev.Location)
		out.Location = &lv
	}

	return out
}
