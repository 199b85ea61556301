package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

const sessionColumns = `bus_id, session_id, route_id, driver_id, is_active, day,
	latitude, longitude, speed, heading, recorded_at_ms,
	emergency, emergency_details, emergency_at,
	gps_signal, data_connection, battery_level, device, connection_updated_at,
	started_at, ended_at, last_seen_ms, updated_at`

func scanSession(row rowScanner) (*models.TrackingSession, error) {
	var (
		sess        models.TrackingSession
		recordedAt  int64
		emergencyAt nullTime
		battery     sql.NullInt64
		connAt      nullTime
		startedAt   nullTime
		endedAt     nullTime
		updatedAt   nullTime
	)

	err := row.Scan(
		&sess.BusID, &sess.SessionID, &sess.RouteID, &sess.DriverID, &sess.IsActive, &sess.Day,
		&sess.Current.Latitude, &sess.Current.Longitude, &sess.Current.Speed, &sess.Current.Heading, &recordedAt,
		&sess.Emergency, &sess.EmergencyDetails, &emergencyAt,
		&sess.Connection.GPSSignal, &sess.Connection.DataConnection, &battery, &sess.Connection.Device, &connAt,
		&startedAt, &endedAt, &sess.LastSeenMs, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sess.Current.Timestamp = time.UnixMilli(recordedAt).UTC()
	sess.EmergencyAt = emergencyAt.Ptr()
	if battery.Valid {
		level := int(battery.Int64)
		sess.Connection.BatteryLevel = &level
	}
	sess.Connection.UpdatedAt = connAt.Ptr()
	sess.StartedAt = startedAt.Time
	sess.EndedAt = endedAt.Ptr()
	sess.UpdatedAt = updatedAt.Time

	return &sess, nil
}

func (s *Storage) Session(ctx context.Context, busID string) (*models.TrackingSession, error) {
	const op = "storage.sqldb.Session"

	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM tracking_sessions WHERE bus_id = ?`), busID)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// StartSession activates sess for its bus unless the bus already has an
// active session. In that case the active session is returned with
// started=false and nothing is written.
func (s *Storage) StartSession(ctx context.Context, sess *models.TrackingSession, ev *models.TrackingEvent) (*models.TrackingSession, bool, error) {
	const op = "storage.sqldb.StartSession"

	var (
		out     *models.TrackingSession
		started bool
	)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`
			INSERT INTO tracking_sessions (
				bus_id, session_id, route_id, driver_id, is_active, day,
				latitude, longitude, speed, heading, recorded_at_ms,
				emergency, emergency_details, emergency_at,
				started_at, ended_at, last_seen_ms, updated_at)
			VALUES (?, ?, ?, ?, TRUE, ?, ?, ?, ?, ?, ?, FALSE, '', NULL, ?, NULL, ?, ?)
			ON CONFLICT (bus_id) DO UPDATE SET
				session_id = excluded.session_id,
				route_id = excluded.route_id,
				driver_id = excluded.driver_id,
				is_active = TRUE,
				day = excluded.day,
				latitude = excluded.latitude,
				longitude = excluded.longitude,
				speed = excluded.speed,
				heading = excluded.heading,
				recorded_at_ms = excluded.recorded_at_ms,
				emergency = FALSE,
				emergency_details = '',
				emergency_at = NULL,
				started_at = excluded.started_at,
				ended_at = NULL,
				last_seen_ms = excluded.last_seen_ms,
				updated_at = excluded.updated_at
			WHERE tracking_sessions.is_active = FALSE
			RETURNING `+sessionColumns),
			sess.BusID, sess.SessionID, sess.RouteID, sess.DriverID, sess.Day,
			sess.Current.Latitude, sess.Current.Longitude, sess.Current.Speed, sess.Current.Heading, sess.Current.Timestamp.UnixMilli(),
			utc(sess.StartedAt), sess.LastSeenMs, utc(sess.UpdatedAt),
		)

		got, err := scanSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			existing, err := scanSession(tx.QueryRowContext(ctx, s.q(`SELECT `+sessionColumns+` FROM tracking_sessions WHERE bus_id = ?`), sess.BusID))
			if err != nil {
				return err
			}
			out = existing
			return nil
		}
		if err != nil {
			return err
		}

		ev.SessionID = got.SessionID
		ev.Day = got.Day
		if err := s.insertEvent(ctx, tx, ev); err != nil {
			return err
		}

		out, started = got, true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	return out, started, nil
}

// UpdateLocation replaces the current location of the driver's active
// session and appends ev to the day history. The session day is moved to
// in.Day.
func (s *Storage) UpdateLocation(ctx context.Context, in models.LocationUpdate, ev *models.TrackingEvent) (*models.TrackingSession, error) {
	const op = "storage.sqldb.UpdateLocation"

	ts := in.Location.Timestamp.UnixMilli()

	query := `
		UPDATE tracking_sessions SET
			latitude = ?, longitude = ?, speed = ?, heading = ?, recorded_at_ms = ?,
			day = ?, last_seen_ms = ?, updated_at = ?
		WHERE bus_id = ? AND driver_id = ? AND is_active = TRUE`
	args := []any{
		in.Location.Latitude, in.Location.Longitude, in.Location.Speed, in.Location.Heading, ts,
		in.Day, in.At.UnixMilli(), utc(in.At),
		in.BusID, in.DriverID,
	}

	if in.RejectStale {
		query += ` AND recorded_at_ms <= ?`
		args = append(args, ts)
	}

	query += ` RETURNING ` + sessionColumns

	sess, err := s.updateActive(ctx, query, args, in.BusID, in.DriverID, in.RejectStale, ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

func (s *Storage) EndSession(ctx context.Context, busID, driverID string, at time.Time, ev *models.TrackingEvent) (*models.TrackingSession, error) {
	const op = "storage.sqldb.EndSession"

	query := `
		UPDATE tracking_sessions SET
			is_active = FALSE, ended_at = ?, last_seen_ms = ?, updated_at = ?
		WHERE bus_id = ? AND driver_id = ? AND is_active = TRUE
		RETURNING ` + sessionColumns

	sess, err := s.updateActive(ctx, query, []any{utc(at), at.UnixMilli(), utc(at), busID, driverID}, busID, driverID, false, ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// ReportEmergency raises the emergency flag on the active session. A
// location, when given, also becomes the current location unless stale
// samples are rejected and it is older than the last accepted one.
func (s *Storage) ReportEmergency(ctx context.Context, in models.EmergencyReport, ev *models.TrackingEvent) (*models.TrackingSession, error) {
	const op = "storage.sqldb.ReportEmergency"

	query := `
		UPDATE tracking_sessions SET
			emergency = TRUE,
			emergency_details = ?,
			emergency_at = ?,`
	args := []any{in.Details, utc(in.At)}

	if in.Location != nil {
		ts := in.Location.Timestamp.UnixMilli()
		values := []struct {
			column string
			value  any
		}{
			{"latitude", in.Location.Latitude},
			{"longitude", in.Location.Longitude},
			{"speed", in.Location.Speed},
			{"heading", in.Location.Heading},
			{"recorded_at_ms", ts},
		}

		for _, v := range values {
			if in.RejectStale {
				query += fmt.Sprintf(`
			%[1]s = CASE WHEN recorded_at_ms <= ? THEN ? ELSE %[1]s END,`, v.column)
				args = append(args, ts, v.value)
				continue
			}
			query += fmt.Sprintf(`
			%s = ?,`, v.column)
			args = append(args, v.value)
		}
	}

	query += `
			last_seen_ms = ?,
			updated_at = ?
		WHERE bus_id = ? AND driver_id = ? AND is_active = TRUE
		RETURNING ` + sessionColumns
	args = append(args, in.At.UnixMilli(), utc(in.At), in.BusID, in.DriverID)

	sess, err := s.updateActive(ctx, query, args, in.BusID, in.DriverID, false, ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

func (s *Storage) UpdateConnection(ctx context.Context, in models.ConnectionUpdate) (*models.TrackingSession, error) {
	const op = "storage.sqldb.UpdateConnection"

	var battery sql.NullInt64
	if in.Info.BatteryLevel != nil {
		battery = sql.NullInt64{Int64: int64(*in.Info.BatteryLevel), Valid: true}
	}

	query := `
		UPDATE tracking_sessions SET
			gps_signal = ?, data_connection = ?, battery_level = ?, device = ?,
			connection_updated_at = ?, last_seen_ms = ?, updated_at = ?
		WHERE bus_id = ? AND driver_id = ? AND is_active = TRUE
		RETURNING ` + sessionColumns

	args := []any{
		in.Info.GPSSignal, in.Info.DataConnection, battery, in.Info.Device,
		utc(in.At), in.At.UnixMilli(), utc(in.At),
		in.BusID, in.DriverID,
	}

	sess, err := s.updateActive(ctx, query, args, in.BusID, in.DriverID, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// updateActive runs a conditional update on an active session and, if a
// row matched, appends ev in the same transaction. When nothing matched
// the reason is read back inside the transaction.
func (s *Storage) updateActive(ctx context.Context, query string, args []any, busID, driverID string, stale bool, ev *models.TrackingEvent) (*models.TrackingSession, error) {
	var out *models.TrackingSession

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		sess, err := scanSession(tx.QueryRowContext(ctx, s.q(query), args...))
		if errors.Is(err, sql.ErrNoRows) {
			return s.rejection(ctx, tx, busID, driverID, stale)
		}
		if err != nil {
			return err
		}

		if ev != nil {
			ev.SessionID = sess.SessionID
			ev.Day = sess.Day
			if err := s.insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}

		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (s *Storage) rejection(ctx context.Context, tx *sql.Tx, busID, driverID string, stale bool) error {
	var (
		active bool
		driver string
	)

	err := tx.QueryRowContext(ctx, s.q(`SELECT is_active, driver_id FROM tracking_sessions WHERE bus_id = ?`), busID).Scan(&active, &driver)
	if errors.Is(err, sql.ErrNoRows) {
		return response.ErrNotFound
	}
	if err != nil {
		return err
	}

	switch {
	case !active:
		return response.ErrSessionNotActive
	case driver != driverID:
		// another driver's bus is indistinguishable from a missing one
		return response.ErrNotFound
	case stale:
		return response.ErrStaleUpdate
	default:
		return response.ErrConflict
	}
}

func (s *Storage) insertEvent(ctx context.Context, tx *sql.Tx, ev *models.TrackingEvent) error {
	var lat, lon, speed, heading sql.NullFloat64
	var recordedAt sql.NullInt64

	if ev.Location != nil {
		lat = sql.NullFloat64{Float64: ev.Location.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: ev.Location.Longitude, Valid: true}
		speed = sql.NullFloat64{Float64: ev.Location.Speed, Valid: true}
		heading = sql.NullFloat64{Float64: ev.Location.Heading, Valid: true}
		recordedAt = sql.NullInt64{Int64: ev.Location.Timestamp.UnixMilli(), Valid: true}
	}

	priority := ev.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}

	_, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO tracking_events (
			id, bus_id, session_id, day, kind, priority,
			latitude, longitude, speed, heading, recorded_at_ms,
			details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.BusID, ev.SessionID, ev.Day, string(ev.Kind), string(priority),
		lat, lon, speed, heading, recordedAt,
		ev.Details, utc(ev.CreatedAt),
	)

	return err
}

// AppendEvent appends an event outside of a session write.
func (s *Storage) AppendEvent(ctx context.Context, ev *models.TrackingEvent) error {
	const op = "storage.sqldb.AppendEvent"

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insertEvent(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Events returns the bus's history for day in insertion order.
func (s *Storage) Events(ctx context.Context, busID string, day dates.Day) ([]models.TrackingEvent, error) {
	const op = "storage.sqldb.Events"

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, bus_id, session_id, day, kind, priority,
			latitude, longitude, speed, heading, recorded_at_ms,
			details, created_at
		FROM tracking_events
		WHERE bus_id = ? AND day = ?
		ORDER BY `+s.insertOrder()), busID, day)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.TrackingEvent, 0)
	for rows.Next() {
		var (
			ev                       models.TrackingEvent
			kind, priority           string
			lat, lon, speed, heading sql.NullFloat64
			recordedAt               sql.NullInt64
			createdAt                nullTime
		)

		if err := rows.Scan(
			&ev.ID, &ev.BusID, &ev.SessionID, &ev.Day, &kind, &priority,
			&lat, &lon, &speed, &heading, &recordedAt,
			&ev.Details, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		ev.Kind = models.EventKind(kind)
		ev.Priority = models.Priority(priority)
		ev.CreatedAt = createdAt.Time
		if lat.Valid && lon.Valid {
			ev.Location = &models.Location{
				Latitude:  lat.Float64,
				Longitude: lon.Float64,
				Speed:     speed.Float64,
				Heading:   heading.Float64,
				Timestamp: time.UnixMilli(recordedAt.Int64).UTC(),
			}
		}

		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// DeactivateIdle ends every active session not written to since cutoffMs.
func (s *Storage) DeactivateIdle(ctx context.Context, cutoffMs int64, at time.Time) ([]models.TrackingSession, error) {
	const op = "storage.sqldb.DeactivateIdle"

	rows, err := s.db.QueryContext(ctx, s.q(`
		UPDATE tracking_sessions SET
			is_active = FALSE, ended_at = ?, updated_at = ?
		WHERE is_active = TRUE AND last_seen_ms < ?
		RETURNING `+sessionColumns), utc(at), utc(at), cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.TrackingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
