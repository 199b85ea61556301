package models

import (
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
)

type Role string

const (
	RoleParent Role = "parent"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   string
	Role Role
}

type Leg string

const (
	LegMorning   Leg = "morning"
	LegAfternoon Leg = "afternoon"
)

type LegState string

const (
	LegExpected    LegState = "expected"
	LegUnavailable LegState = "unavailable"
	LegPickedUp    LegState = "picked_up"
	LegDroppedOff  LegState = "dropped_off"
	LegAbsent      LegState = "absent"
)

// DriverConfirmed reports whether the state was set by a driver action.
// Parent writes never replace such a state.
func (s LegState) DriverConfirmed() bool {
	return s == LegPickedUp || s == LegDroppedOff || s == LegAbsent
}

// LegStatus is one half of a daily record. A nil Status means the leg was
// reset by the driver and awaits action.
type LegStatus struct {
	Status         *LegState  `db:"status"`
	Time           *time.Time `db:"time"`
	Location       *string    `db:"location"`
	ParentReported bool       `db:"parent_reported"`
}

func (l LegStatus) Is(state LegState) bool {
	return l.Status != nil && *l.Status == state
}

type AttendanceRecord struct {
	ChildID          string     `db:"child_id"`
	Day              dates.Day  `db:"day"`
	Absent           bool       `db:"absent"`
	Late             bool       `db:"late"`
	Notes            string     `db:"notes"`
	ReturnDate       *dates.Day `db:"return_date"`
	MorningPickup    LegStatus
	AfternoonDropoff LegStatus
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r *AttendanceRecord) Leg(leg Leg) LegStatus {
	if leg == LegAfternoon {
		return r.AfternoonDropoff
	}

	return r.MorningPickup
}

// AbsenceReport is a parent's absent/late report for one day.
type AbsenceReport struct {
	ChildID        string
	Day            dates.Day
	Absent         bool
	Late           bool
	Reason         string
	ReturnDate     *dates.Day
	ForceMorning   bool
	ForceAfternoon bool
	At             time.Time
}

// DailyPreference toggles today's legs. Nil leaves a leg untouched.
type DailyPreference struct {
	ChildID          string
	Day              dates.Day
	MorningPickup    *bool
	AfternoonDropoff *bool
	At               time.Time
}

// LegMark is a driver action on one leg. Nil Status resets the leg.
type LegMark struct {
	ChildID  string
	Day      dates.Day
	Leg      Leg
	Status   *LegState
	Location *string
	At       time.Time
}

type AttendanceFilter struct {
	From *dates.Day
	To   *dates.Day
}

type Child struct {
	ID              string  `db:"id"`
	ParentID        string  `db:"parent_id"`
	FirstName       string  `db:"first_name"`
	LastName        string  `db:"last_name"`
	RouteID         *string `db:"route_id"`
	PickupLocation  string  `db:"pickup_location"`
	DropoffLocation string  `db:"dropoff_location"`
}

func (c *Child) Name() string {
	if c.LastName == "" {
		return c.FirstName
	}

	return c.FirstName + " " + c.LastName
}

type Route struct {
	ID          string  `db:"id"`
	RouteNumber string  `db:"route_number"`
	Name        string  `db:"name"`
	BusID       *string `db:"bus_id"`
	DriverID    *string `db:"driver_id"`
	IsActive    bool    `db:"is_active"`
}

type Bus struct {
	ID        string `db:"id"`
	BusNumber string `db:"bus_number"`
	Status    string `db:"status"`
}

// RosterEntry is a child on a route joined with the child's record for
// the requested day, if any.
type RosterEntry struct {
	Child  Child
	Record *AttendanceRecord
}
