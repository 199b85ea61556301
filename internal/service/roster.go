package service

import (
	"context"
	"fmt"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

// GetRoster lists a route's children for one leg of a day with the
// counts derived from their leg states. Drivers see only their own routes.
func (s *Service) GetRoster(ctx context.Context, actor models.Actor, routeID, date, leg string) (*api.Roster, error) {
	const op = "service.GetRoster"

	l := models.Leg(leg)
	if l == "" {
		l = models.LegMorning
	}
	if l != models.LegMorning && l != models.LegAfternoon {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("leg must be morning or afternoon"))
	}

	day := s.today()
	if date != "" {
		d, err := dates.Parse(date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, response.Invalid("%s", err.Error()))
		}
		day = d
	}

	route, err := s.store.Route(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDriver:
		if route.DriverID == nil || *route.DriverID != actor.ID {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
	default:
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	entries, err := s.store.Roster(ctx, routeID, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	roster := &api.Roster{
		RouteID:  routeID,
		Date:     day.String(),
		Leg:      string(l),
		Children: make([]api.RosterEntry, 0, len(entries)),
	}

	for i := range entries {
		roster.Children = append(roster.Children, rosterEntry(&entries[i], l))
	}

	roster.Counts = rosterCounts(roster.Children)

	return roster, nil
}

func rosterEntry(e *models.RosterEntry, leg models.Leg) api.RosterEntry {
	out := api.RosterEntry{
		ChildID:        e.Child.ID,
		Name:           e.Child.Name(),
		ParentReported: true,
		Location:       e.Child.PickupLocation,
	}
	if leg == models.LegAfternoon {
		out.Location = e.Child.DropoffLocation
	}

	if e.Record == nil {
		expected := string(models.LegExpected)
		out.Status = &expected
		return out
	}

	ls := e.Record.Leg(leg)
	out.Status = stateString(ls.Status)
	out.ParentReported = ls.ParentReported
	out.Time = ls.Time
	out.Notes = e.Record.Notes
	if ls.Location != nil && *ls.Location != "" {
		out.Location = *ls.Location
	}

	return out
}

// rosterCounts derives the summary. pending is expected minus handled
// children and is not clamped.
func rosterCounts(children []api.RosterEntry) api.RosterCounts {
	var c api.RosterCounts

	c.Total = len(children)
	for _, ch := range children {
		if ch.ParentReported {
			c.Expected++
		}
		if ch.Status == nil {
			continue
		}
		switch models.LegState(*ch.Status) {
		case models.LegPickedUp, models.LegDroppedOff:
			c.PickedUp++
		case models.LegAbsent:
			c.Absent++
		}
	}

	c.NotExpected = c.Total - c.Expected
	c.Pending = c.Expected - c.PickedUp - c.Absent

	return c
}
