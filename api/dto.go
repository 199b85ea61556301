package api

import (
	"encoding/json"
	"time"
)

// Attendance

type AttendanceHistoryEntry struct {
	Date            string  `json:"date"`
	Day             string  `json:"day"`
	Status          string  `json:"status"`
	PickupTime      string  `json:"pickupTime"`
	PickupLocation  string  `json:"pickupLocation"`
	DropoffTime     string  `json:"dropoffTime"`
	DropoffLocation string  `json:"dropoffLocation"`
	Notes           string  `json:"notes"`
	ReturnDate      *string `json:"returnDate,omitempty"`
}

type AttendanceStats struct {
	TotalDays      int `json:"totalDays"`
	PresentDays    int `json:"presentDays"`
	AbsentDays     int `json:"absentDays"`
	LateDays       int `json:"lateDays"`
	AttendanceRate int `json:"attendanceRate"`
}

type TodayAttendance struct {
	Date             string  `json:"date"`
	MorningPickup    bool    `json:"morningPickup"`
	AfternoonDropoff bool    `json:"afternoonDropoff"`
	MorningStatus    *string `json:"morningStatus,omitempty"`
	AfternoonStatus  *string `json:"afternoonStatus,omitempty"`
	Status           string  `json:"status"`
	PickupTime       string  `json:"pickupTime"`
	DropoffTime      string  `json:"dropoffTime"`
	Notes            string  `json:"notes,omitempty"`
}

type ReportAbsenceRequest struct {
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status        string  `json:"status" validate:"required,oneof=absent late"`
	Reason        string  `json:"reason" validate:"required,max=1000"`
	ReturnDate    *string `json:"returnDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	MorningOnly   bool    `json:"morningOnly"`
	AfternoonOnly bool    `json:"afternoonOnly"`
}

type DailyAttendanceRequest struct {
	MorningPickup    *bool `json:"morningPickup"`
	AfternoonDropoff *bool `json:"afternoonDropoff"`
}

type DailyAttendanceResponse struct {
	Date             string `json:"date"`
	MorningPickup    *bool  `json:"morningPickup,omitempty"`
	AfternoonDropoff *bool  `json:"afternoonDropoff,omitempty"`
}

type DriverNoteRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

type DriverNoteResponse struct {
	Date    string `json:"date"`
	Message string `json:"message"`
}

type MarkLegRequest struct {
	Date     string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Status   *string `json:"status" validate:"omitempty,oneof=picked_up dropped_off absent"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=255"`

	// StatusSet reports whether the body carried a status key, null included.
	StatusSet bool `json:"-"`
}

func (r *MarkLegRequest) UnmarshalJSON(b []byte) error {
	type plain MarkLegRequest

	var raw struct {
		plain
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*r = MarkLegRequest(raw.plain)
	r.Status = nil
	r.StatusSet = raw.Status != nil

	if r.StatusSet && string(raw.Status) != "null" {
		var status string
		if err := json.Unmarshal(raw.Status, &status); err != nil {
			return err
		}
		r.Status = &status
	}

	return nil
}

type LegView struct {
	ChildID        string     `json:"childId"`
	Date           string     `json:"date"`
	Leg            string     `json:"leg"`
	Status         *string    `json:"status"`
	Time           *time.Time `json:"time,omitempty"`
	Location       *string    `json:"location,omitempty"`
	ParentReported bool       `json:"parentReported"`
}

type RosterEntry struct {
	ChildID        string     `json:"childId"`
	Name           string     `json:"name"`
	Status         *string    `json:"status"`
	ParentReported bool       `json:"parentReported"`
	Time           *time.Time `json:"time,omitempty"`
	Location       string     `json:"location"`
	Notes          string     `json:"notes,omitempty"`
}

type RosterCounts struct {
	Total       int `json:"total"`
	Expected    int `json:"expected"`
	NotExpected int `json:"notExpected"`
	PickedUp    int `json:"pickedUp"`
	Absent      int `json:"absent"`
	Pending     int `json:"pending"`
}

type Roster struct {
	RouteID  string        `json:"routeId"`
	Date     string        `json:"date"`
	Leg      string        `json:"leg"`
	Counts   RosterCounts  `json:"counts"`
	Children []RosterEntry `json:"children"`
}

// Tracking

type Location struct {
	Latitude  float64    `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64    `json:"longitude" validate:"gte=-180,lte=180"`
	Speed     float64    `json:"speed" validate:"gte=0"`
	Heading   float64    `json:"heading" validate:"gte=0,lt=360"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type StartTrackingRequest struct {
	BusID    string   `json:"busId" validate:"required"`
	RouteID  string   `json:"routeId" validate:"required"`
	Location Location `json:"location"`
}

type UpdateLocationRequest struct {
	BusID    string   `json:"busId" validate:"required"`
	Location Location `json:"location"`
}

type EndTrackingRequest struct {
	BusID string `json:"busId" validate:"required"`
}

type EmergencyRequest struct {
	BusID    string    `json:"busId" validate:"required"`
	Details  string    `json:"details" validate:"required,max=2000"`
	Location *Location `json:"location,omitempty"`
}

type ConnectionRequest struct {
	BusID          string `json:"busId" validate:"required"`
	GPSSignal      string `json:"gpsSignal" validate:"omitempty,oneof=strong good weak none"`
	DataConnection string `json:"dataConnection" validate:"omitempty,max=32"`
	BatteryLevel   *int   `json:"batteryLevel,omitempty" validate:"omitempty,gte=0,lte=100"`
	Device         string `json:"device" validate:"omitempty,max=128"`
}

type LocationView struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

type ConnectionView struct {
	GPSSignal      string     `json:"gpsSignal,omitempty"`
	DataConnection string     `json:"dataConnection,omitempty"`
	BatteryLevel   *int       `json:"batteryLevel,omitempty"`
	Device         string     `json:"device,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
}

type TrackingSession struct {
	SessionID        string         `json:"sessionId"`
	BusID            string         `json:"busId"`
	RouteID          string         `json:"routeId"`
	DriverID         string         `json:"driverId"`
	IsActive         bool           `json:"isActive"`
	Date             string         `json:"date"`
	CurrentLocation  LocationView   `json:"currentLocation"`
	Emergency        bool           `json:"emergency"`
	EmergencyDetails string         `json:"emergencyDetails,omitempty"`
	EmergencyAt      *time.Time     `json:"emergencyAt,omitempty"`
	Connection       ConnectionView `json:"connection"`
	StartedAt        time.Time      `json:"startedAt"`
	EndedAt          *time.Time     `json:"endedAt,omitempty"`
	LastUpdated      time.Time      `json:"lastUpdated"`
}

type TrackingEvent struct {
	ID        string        `json:"id"`
	Kind      string        `json:"kind"`
	Priority  string        `json:"priority"`
	Location  *LocationView `json:"location,omitempty"`
	Details   string        `json:"details,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

type TrackingHistory struct {
	BusID  string          `json:"busId"`
	Date   string          `json:"date"`
	Events []TrackingEvent `json:"events"`
}
