package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

func recordColumns(alias string) string {
	cols := []string{
		"child_id", "day", "absent", "late", "notes", "return_date",
		"morning_status", "morning_time", "morning_location", "morning_parent_reported",
		"afternoon_status", "afternoon_time", "afternoon_location", "afternoon_parent_reported",
		"created_at", "updated_at",
	}

	if alias != "" {
		for i, c := range cols {
			cols[i] = alias + "." + c
		}
	}

	return strings.Join(cols, ", ")
}

// recordRow holds every column as nullable so it can also take the
// right-hand side of a LEFT JOIN.
type recordRow struct {
	childID    sql.NullString
	day        dates.NullDay
	absent     sql.NullBool
	late       sql.NullBool
	notes      sql.NullString
	returnDate dates.NullDay
	morning    legRow
	afternoon  legRow
	createdAt  nullTime
	updatedAt  nullTime
}

type legRow struct {
	status         sql.NullString
	at             nullTime
	location       sql.NullString
	parentReported sql.NullBool
}

func (r *recordRow) dest() []any {
	return []any{
		&r.childID, &r.day, &r.absent, &r.late, &r.notes, &r.returnDate,
		&r.morning.status, &r.morning.at, &r.morning.location, &r.morning.parentReported,
		&r.afternoon.status, &r.afternoon.at, &r.afternoon.location, &r.afternoon.parentReported,
		&r.createdAt, &r.updatedAt,
	}
}

func (l legRow) leg() models.LegStatus {
	out := models.LegStatus{
		Time:           l.at.Ptr(),
		Location:       stringPtr(l.location),
		ParentReported: !l.parentReported.Valid || l.parentReported.Bool,
	}

	if l.status.Valid {
		st := models.LegState(l.status.String)
		out.Status = &st
	}

	return out
}

func (r *recordRow) record() *models.AttendanceRecord {
	if !r.childID.Valid {
		return nil
	}

	return &models.AttendanceRecord{
		ChildID:          r.childID.String,
		Day:              r.day.Day,
		Absent:           r.absent.Bool,
		Late:             r.late.Bool,
		Notes:            r.notes.String,
		ReturnDate:       r.returnDate.Ptr(),
		MorningPickup:    r.morning.leg(),
		AfternoonDropoff: r.afternoon.leg(),
		CreatedAt:        r.createdAt.Time,
		UpdatedAt:        r.updatedAt.Time,
	}
}

func scanRecord(row rowScanner) (*models.AttendanceRecord, error) {
	var rr recordRow
	if err := row.Scan(rr.dest()...); err != nil {
		return nil, err
	}

	return rr.record(), nil
}

func legPrefix(leg models.Leg) (string, error) {
	switch leg {
	case models.LegMorning:
		return "morning", nil
	case models.LegAfternoon:
		return "afternoon", nil
	default:
		return "", fmt.Errorf("unknown leg %q", leg)
	}
}

// parentLegSet applies the parent's intent for a leg unless a driver has
// already confirmed it. The parent flag is always written.
func parentLegSet(prefix string) string {
	return fmt.Sprintf(`%[1]s_status = CASE
				WHEN attendance_records.%[1]s_status IS NULL
					OR attendance_records.%[1]s_status IN ('expected', 'unavailable')
				THEN excluded.%[1]s_status
				ELSE attendance_records.%[1]s_status
			END,
			%[1]s_parent_reported = excluded.%[1]s_parent_reported`, prefix)
}

func (s *Storage) AttendanceRecord(ctx context.Context, childID string, day dates.Day) (*models.AttendanceRecord, error) {
	const op = "storage.sqldb.AttendanceRecord"

	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+recordColumns("")+`
		FROM attendance_records
		WHERE child_id = ? AND day = ?`), childID, day)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// ListAttendance returns the child's records newest first.
func (s *Storage) ListAttendance(ctx context.Context, childID string, f models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	const op = "storage.sqldb.ListAttendance"

	query := `SELECT ` + recordColumns("") + ` FROM attendance_records WHERE child_id = ?`
	args := []any{childID}

	if f.From != nil {
		query += ` AND day >= ?`
		args = append(args, *f.From)
	}
	if f.To != nil {
		query += ` AND day <= ?`
		args = append(args, *f.To)
	}

	query += ` ORDER BY day DESC`

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// UpsertAbsence records an absent/late report. Forced legs become
// unavailable unless a driver already confirmed them.
func (s *Storage) UpsertAbsence(ctx context.Context, in models.AbsenceReport) (*models.AttendanceRecord, error) {
	const op = "storage.sqldb.UpsertAbsence"

	morningStatus, morningReported := models.LegExpected, true
	if in.ForceMorning {
		morningStatus, morningReported = models.LegUnavailable, false
	}

	afternoonStatus, afternoonReported := models.LegExpected, true
	if in.ForceAfternoon {
		afternoonStatus, afternoonReported = models.LegUnavailable, false
	}

	sets := []string{
		`absent = excluded.absent`,
		`late = excluded.late`,
		`notes = excluded.notes`,
		`return_date = COALESCE(excluded.return_date, attendance_records.return_date)`,
	}
	if in.ForceMorning {
		sets = append(sets, parentLegSet("morning"))
	}
	if in.ForceAfternoon {
		sets = append(sets, parentLegSet("afternoon"))
	}
	sets = append(sets, `updated_at = excluded.updated_at`)

	returnDate := dates.NullDay{}
	if in.ReturnDate != nil {
		returnDate = dates.NullDay{Day: *in.ReturnDate, Valid: true}
	}

	query := `
		INSERT INTO attendance_records (
			child_id, day, absent, late, notes, return_date,
			morning_status, morning_parent_reported,
			afternoon_status, afternoon_parent_reported,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (child_id, day) DO UPDATE SET
			` + strings.Join(sets, ",\n\t\t\t") + `
		RETURNING ` + recordColumns("")

	row := s.db.QueryRowContext(ctx, s.q(query),
		in.ChildID, in.Day, in.Absent, in.Late, in.Reason, returnDate,
		string(morningStatus), morningReported,
		string(afternoonStatus), afternoonReported,
		utc(in.At), utc(in.At),
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// UpsertDailyPreference applies the parent's daily toggles. Legs left nil
// are not touched on an existing record.
func (s *Storage) UpsertDailyPreference(ctx context.Context, in models.DailyPreference) (*models.AttendanceRecord, error) {
	const op = "storage.sqldb.UpsertDailyPreference"

	if in.MorningPickup == nil && in.AfternoonDropoff == nil {
		return nil, fmt.Errorf("%s: %w", op, response.Invalid("at least one of morningPickup or afternoonDropoff is required"))
	}

	morningStatus, morningReported := intent(in.MorningPickup)
	afternoonStatus, afternoonReported := intent(in.AfternoonDropoff)

	var sets []string
	if in.MorningPickup != nil {
		sets = append(sets, parentLegSet("morning"))
	}
	if in.AfternoonDropoff != nil {
		sets = append(sets, parentLegSet("afternoon"))
	}
	sets = append(sets, `updated_at = excluded.updated_at`)

	query := `
		INSERT INTO attendance_records (
			child_id, day,
			morning_status, morning_parent_reported,
			afternoon_status, afternoon_parent_reported,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (child_id, day) DO UPDATE SET
			` + strings.Join(sets, ",\n\t\t\t") + `
		RETURNING ` + recordColumns("")

	row := s.db.QueryRowContext(ctx, s.q(query),
		in.ChildID, in.Day,
		string(morningStatus), morningReported,
		string(afternoonStatus), afternoonReported,
		utc(in.At), utc(in.At),
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

func intent(want *bool) (models.LegState, bool) {
	if want != nil && !*want {
		return models.LegUnavailable, false
	}

	return models.LegExpected, true
}

// AppendNote appends entry to the day's notes, separated by a newline.
func (s *Storage) AppendNote(ctx context.Context, childID string, day dates.Day, entry string, at time.Time) (*models.AttendanceRecord, error) {
	const op = "storage.sqldb.AppendNote"

	row := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO attendance_records (child_id, day, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (child_id, day) DO UPDATE SET
			notes = CASE
				WHEN attendance_records.notes = '' THEN excluded.notes
				ELSE attendance_records.notes || ? || excluded.notes
			END,
			updated_at = excluded.updated_at
		RETURNING `+recordColumns("")),
		childID, day, entry, utc(at), utc(at), "\n",
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// UpsertLegStatus writes a driver action. The parent flag is left as is.
func (s *Storage) UpsertLegStatus(ctx context.Context, in models.LegMark) (*models.AttendanceRecord, error) {
	const op = "storage.sqldb.UpsertLegStatus"

	prefix, err := legPrefix(in.Leg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var (
		status   sql.NullString
		at       sql.NullTime
		location sql.NullString
	)

	if in.Status != nil {
		status = sql.NullString{String: string(*in.Status), Valid: true}
		at = sql.NullTime{Time: utc(in.At), Valid: true}
		location = nullString(in.Location)
	}

	query := fmt.Sprintf(`
		INSERT INTO attendance_records (child_id, day, %[1]s_status, %[1]s_time, %[1]s_location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (child_id, day) DO UPDATE SET
			%[1]s_status = excluded.%[1]s_status,
			%[1]s_time = excluded.%[1]s_time,
			%[1]s_location = CASE
				WHEN excluded.%[1]s_status IS NULL THEN NULL
				ELSE COALESCE(excluded.%[1]s_location, attendance_records.%[1]s_location)
			END,
			updated_at = excluded.updated_at
		RETURNING %[2]s`, prefix, recordColumns(""))

	row := s.db.QueryRowContext(ctx, s.q(query),
		in.ChildID, in.Day, status, at, location, utc(in.At), utc(in.At),
	)

	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// Roster lists the children of a route with their record for day, if any.
func (s *Storage) Roster(ctx context.Context, routeID string, day dates.Day) ([]models.RosterEntry, error) {
	const op = "storage.sqldb.Roster"

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+childColumns+`, `+recordColumns("a")+`
		FROM children c
		LEFT JOIN attendance_records a ON a.child_id = c.id AND a.day = ?
		WHERE c.route_id = ?
		ORDER BY c.first_name, c.last_name, c.id`), day, routeID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.RosterEntry
	for rows.Next() {
		var rr recordRow

		child, err := scanChild(rows, rr.dest()...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		out = append(out, models.RosterEntry{Child: *child, Record: rr.record()})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}
