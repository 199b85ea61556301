package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const childColumns = `c.id, c.parent_id, c.first_name, c.last_name, c.route_id, c.pickup_location, c.dropoff_location`

func scanChild(row rowScanner, extra ...any) (*models.Child, error) {
	var (
		c       models.Child
		routeID sql.NullString
	)

	dest := append([]any{&c.ID, &c.ParentID, &c.FirstName, &c.LastName, &routeID, &c.PickupLocation, &c.DropoffLocation}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	c.RouteID = stringPtr(routeID)

	return &c, nil
}

// ChildOfParent returns the child only if it belongs to parentID.
func (s *Storage) ChildOfParent(ctx context.Context, childID, parentID string) (*models.Child, error) {
	const op = "storage.sqldb.ChildOfParent"

	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+childColumns+`
		FROM children c
		WHERE c.id = ? AND c.parent_id = ?`), childID, parentID)

	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return child, nil
}

// ChildOfDriver returns the child only if it rides an active route driven by driverID.
func (s *Storage) ChildOfDriver(ctx context.Context, childID, driverID string) (*models.Child, error) {
	const op = "storage.sqldb.ChildOfDriver"

	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+childColumns+`
		FROM children c
		JOIN routes r ON r.id = c.route_id
		WHERE c.id = ? AND r.driver_id = ? AND r.is_active = TRUE`), childID, driverID)

	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return child, nil
}

func (s *Storage) Route(ctx context.Context, routeID string) (*models.Route, error) {
	const op = "storage.sqldb.Route"

	var (
		r        models.Route
		busID    sql.NullString
		driverID sql.NullString
	)

	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, route_number, name, bus_id, driver_id, is_active
		FROM routes
		WHERE id = ?`), routeID).Scan(&r.ID, &r.RouteNumber, &r.Name, &busID, &driverID, &r.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.BusID = stringPtr(busID)
	r.DriverID = stringPtr(driverID)

	return &r, nil
}

// BusOfDriver reports whether busID serves an active route driven by driverID.
func (s *Storage) BusOfDriver(ctx context.Context, busID, driverID string) (bool, error) {
	const op = "storage.sqldb.BusOfDriver"

	var exists bool

	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT EXISTS (
			SELECT 1 FROM routes
			WHERE bus_id = ? AND driver_id = ? AND is_active = TRUE
		)`), busID, driverID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return exists, nil
}

// BusOfChild resolves the bus serving the child's route.
func (s *Storage) BusOfChild(ctx context.Context, childID string) (string, error) {
	const op = "storage.sqldb.BusOfChild"

	var busID sql.NullString

	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT r.bus_id
		FROM children c
		JOIN routes r ON r.id = c.route_id
		WHERE c.id = ?`), childID).Scan(&busID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !busID.Valid) {
		return "", fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return busID.String, nil
}

// Inventory writes are used by cmd/seed and tests only.

func (s *Storage) InsertBus(ctx context.Context, b models.Bus) error {
	const op = "storage.sqldb.InsertBus"

	status := b.Status
	if status == "" {
		status = "active"
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO buses (id, bus_number, status) VALUES (?, ?, ?)`), b.ID, b.BusNumber, status)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) InsertRoute(ctx context.Context, r models.Route) error {
	const op = "storage.sqldb.InsertRoute"

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO routes (id, route_number, name, bus_id, driver_id, is_active)
		VALUES (?, ?, ?, ?, ?, ?)`),
		r.ID, r.RouteNumber, r.Name, nullString(r.BusID), nullString(r.DriverID), r.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) InsertChild(ctx context.Context, c models.Child) error {
	const op = "storage.sqldb.InsertChild"

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO children (id, parent_id, first_name, last_name, route_id, pickup_location, dropoff_location)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.ParentID, c.FirstName, c.LastName, nullString(c.RouteID), c.PickupLocation, c.DropoffLocation)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, response.ErrConflict)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
