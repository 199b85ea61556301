package models

import (
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
)

type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

type ConnectionInfo struct {
	GPSSignal      string     `db:"gps_signal"`
	DataConnection string     `db:"data_connection"`
	BatteryLevel   *int       `db:"battery_level"`
	Device         string     `db:"device"`
	UpdatedAt      *time.Time `db:"connection_updated_at"`
}

// TrackingSession is the single row kept per bus. A new SessionID is
// assigned on every inactive to active transition.
type TrackingSession struct {
	BusID            string     `db:"bus_id"`
	SessionID        string     `db:"session_id"`
	RouteID          string     `db:"route_id"`
	DriverID         string     `db:"driver_id"`
	IsActive         bool       `db:"is_active"`
	Day              dates.Day  `db:"day"`
	Current          Location
	Emergency        bool       `db:"emergency"`
	EmergencyDetails string     `db:"emergency_details"`
	EmergencyAt      *time.Time `db:"emergency_at"`
	Connection       ConnectionInfo
	StartedAt        time.Time  `db:"started_at"`
	EndedAt          *time.Time `db:"ended_at"`
	LastSeenMs       int64      `db:"last_seen_ms"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

type EventKind string

const (
	EventStart     EventKind = "start"
	EventLocation  EventKind = "location"
	EventEmergency EventKind = "emergency"
	EventEnd       EventKind = "end"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// TrackingEvent is one append-only entry of a bus's day history.
type TrackingEvent struct {
	ID        string    `db:"id"`
	BusID     string    `db:"bus_id"`
	SessionID string    `db:"session_id"`
	Day       dates.Day `db:"day"`
	Kind      EventKind `db:"kind"`
	Priority  Priority  `db:"priority"`
	Location  *Location
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

type LocationUpdate struct {
	BusID       string
	DriverID    string
	Location    Location
	Day         dates.Day
	RejectStale bool
	At          time.Time
}

type EmergencyReport struct {
	BusID       string
	DriverID    string
	Details     string
	Location    *Location
	RejectStale bool
	At          time.Time
}

type ConnectionUpdate struct {
	BusID    string
	DriverID string
	Info     ConnectionInfo
	At       time.Time
}

type NotificationKind string

const (
	NotifyPickup          NotificationKind = "pickup"
	NotifyDropoff         NotificationKind = "dropoff"
	NotifyNoShow          NotificationKind = "no_show"
	NotifyAbsenceReported NotificationKind = "absence_reported"
	NotifyEmergency       NotificationKind = "emergency"
)

// Notification is handed to the notification channel without waiting
// for delivery.
type Notification struct {
	Kind     NotificationKind  `json:"kind"`
	Priority Priority          `json:"priority"`
	ChildID  string            `json:"childId,omitempty"`
	BusID    string            `json:"busId,omitempty"`
	RouteID  string            `json:"routeId,omitempty"`
	Message  string            `json:"message"`
	Data     map[string]string `json:"data,omitempty"`
	At       time.Time         `json:"at"`
}
