package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

func intPtr(i int) *int { return &i }

func TestTodayDefaultsThenParentOptsOut(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	today, err := env.svc.GetToday(ctx, parent1, "child-1")
	if err != nil {
		t.Fatal(err)
	}
	if today.Date != "2024-03-01" || !today.MorningPickup || !today.AfternoonDropoff {
		t.Fatalf("default view = %+v", today)
	}
	if today.Status != "Present" || today.PickupTime != "Expected" || today.DropoffTime != "Expected" {
		t.Fatalf("default view = %+v", today)
	}

	res, err := env.svc.UpdateDailyAttendance(ctx, parent1, "child-1", &api.DailyAttendanceRequest{
		MorningPickup: boolPtr(false),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Date != "2024-03-01" || res.MorningPickup == nil || *res.MorningPickup || res.AfternoonDropoff != nil {
		t.Fatalf("daily response = %+v", res)
	}

	today, err = env.svc.GetToday(ctx, parent1, "child-1")
	if err != nil {
		t.Fatal(err)
	}
	if today.MorningPickup || !today.AfternoonDropoff {
		t.Fatalf("after opt out = %+v", today)
	}
	if today.MorningStatus == nil || *today.MorningStatus != "unavailable" {
		t.Fatalf("morning status = %v", today.MorningStatus)
	}
	if today.AfternoonStatus == nil || *today.AfternoonStatus != "expected" {
		t.Fatalf("afternoon status = %v, want expected", today.AfternoonStatus)
	}

	_, err = env.svc.UpdateDailyAttendance(ctx, parent1, "child-1", &api.DailyAttendanceRequest{})
	if !errors.Is(err, response.ErrValidation) {
		t.Fatalf("empty daily update err = %v", err)
	}
}

func TestReportLateMorningOnly(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	entry, err := env.svc.ReportAbsence(ctx, parent1, "child-1", &api.ReportAbsenceRequest{
		Date:        "2024-03-05",
		Status:      "late",
		Reason:      "Dentist",
		MorningOnly: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Date != "2024-03-05" || entry.Day != "Tuesday" || entry.Status != "Late" {
		t.Fatalf("entry = %+v", entry)
	}
	if entry.PickupTime != "-" || entry.DropoffTime != "Expected" {
		t.Fatalf("times = %q / %q", entry.PickupTime, entry.DropoffTime)
	}
	if entry.Notes != "Dentist" {
		t.Fatalf("notes = %q", entry.Notes)
	}

	rec, err := env.store.AttendanceRecord(ctx, "child-1", mustDay(t, "2024-03-05"))
	if err != nil {
		t.Fatal(err)
	}
	if !rec.MorningPickup.Is(models.LegUnavailable) || !rec.AfternoonDropoff.Is(models.LegExpected) {
		t.Fatalf("legs = %+v / %+v", rec.MorningPickup, rec.AfternoonDropoff)
	}
	if rec.Absent || !rec.Late {
		t.Fatalf("flags absent=%v late=%v", rec.Absent, rec.Late)
	}

	got := env.notifier.all()
	if len(got) != 1 || got[0].Kind != models.NotifyAbsenceReported || got[0].RouteID != "route-1" {
		t.Fatalf("notifications = %+v", got)
	}
	if got[0].Priority != models.PriorityNormal || got[0].At.IsZero() {
		t.Fatalf("notification defaults not applied: %+v", got[0])
	}
}

func TestReportAbsenceIsIdempotent(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	req := &api.ReportAbsenceRequest{
		Date:       "2024-03-04",
		Status:     "absent",
		Reason:     "Fever",
		ReturnDate: strPtr("2024-03-06"),
	}

	for i := 0; i < 2; i++ {
		entry, err := env.svc.ReportAbsence(ctx, parent1, "child-1", req)
		if err != nil {
			t.Fatal(err)
		}
		if entry.Status != "Absent" || entry.ReturnDate == nil || *entry.ReturnDate != "2024-03-06" {
			t.Fatalf("entry = %+v", entry)
		}
	}

	history, err := env.svc.GetHistory(ctx, parent1, "child-1", api.Period{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history has %d entries, want 1", len(history))
	}

	rec, err := env.store.AttendanceRecord(ctx, "child-1", mustDay(t, "2024-03-04"))
	if err != nil {
		t.Fatal(err)
	}
	if !rec.MorningPickup.Is(models.LegUnavailable) || !rec.AfternoonDropoff.Is(models.LegUnavailable) {
		t.Fatalf("absent day should block both legs: %+v / %+v", rec.MorningPickup, rec.AfternoonDropoff)
	}
}

func TestReportAbsenceValidation(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	tests := []struct {
		name string
		req  api.ReportAbsenceRequest
	}{
		{"bad date", api.ReportAbsenceRequest{Date: "03/05/2024", Status: "absent", Reason: "x"}},
		{"bad status", api.ReportAbsenceRequest{Date: "2024-03-05", Status: "sick", Reason: "x"}},
		{"blank reason", api.ReportAbsenceRequest{Date: "2024-03-05", Status: "absent", Reason: "   "}},
		{"return before date", api.ReportAbsenceRequest{Date: "2024-03-05", Status: "absent", Reason: "x", ReturnDate: strPtr("2024-03-04")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.ReportAbsence(ctx, parent1, "child-1", &tt.req)
			if !errors.Is(err, response.ErrValidation) {
				t.Fatalf("err = %v, want validation", err)
			}
		})
	}

	if n := len(env.notifier.all()); n != 0 {
		t.Fatalf("rejected reports sent %d notifications", n)
	}
}

func TestParentCannotReachOtherChildren(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	calls := map[string]func() error{
		"history": func() error { _, err := env.svc.GetHistory(ctx, parent2, "child-1", api.Period{}); return err },
		"stats":   func() error { _, err := env.svc.GetStats(ctx, parent2, "child-1", api.Period{}); return err },
		"today":   func() error { _, err := env.svc.GetToday(ctx, parent2, "child-1"); return err },
		"report": func() error {
			_, err := env.svc.ReportAbsence(ctx, parent2, "child-1", &api.ReportAbsenceRequest{Date: "2024-03-05", Status: "absent", Reason: "x"})
			return err
		},
		"daily": func() error {
			_, err := env.svc.UpdateDailyAttendance(ctx, parent2, "child-1", &api.DailyAttendanceRequest{MorningPickup: boolPtr(false)})
			return err
		},
		"note": func() error {
			_, err := env.svc.SendDriverNote(ctx, parent2, "child-1", &api.DriverNoteRequest{Note: "hi"})
			return err
		},
		"unknown child": func() error { _, err := env.svc.GetToday(ctx, parent1, "child-404"); return err },
		"driver role":   func() error { _, err := env.svc.GetToday(ctx, driver1, "child-1"); return err },
	}

	for name, call := range calls {
		if err := call(); !errors.Is(err, response.ErrNotFound) {
			t.Errorf("%s: err = %v, want not found", name, err)
		}
	}

	if _, err := env.store.AttendanceRecord(ctx, "child-1", mustDay(t, "2024-03-05")); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("a rejected write created a record: %v", err)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	stats, err := env.svc.GetStats(ctx, parent1, "child-1", api.Period{})
	if err != nil {
		t.Fatal(err)
	}
	if *stats != (api.AttendanceStats{}) {
		t.Fatalf("empty stats = %+v", stats)
	}

	if _, err := env.svc.SendDriverNote(ctx, parent1, "child-1", &api.DriverNoteRequest{Note: "Gate code 1234"}); err != nil {
		t.Fatal(err)
	}
	reports := []api.ReportAbsenceRequest{
		{Date: "2024-03-04", Status: "absent", Reason: "Fever"},
		{Date: "2024-03-05", Status: "late", Reason: "Dentist"},
	}
	for i := range reports {
		if _, err := env.svc.ReportAbsence(ctx, parent1, "child-1", &reports[i]); err != nil {
			t.Fatal(err)
		}
	}

	stats, err = env.svc.GetStats(ctx, parent1, "child-1", api.Period{})
	if err != nil {
		t.Fatal(err)
	}
	want := api.AttendanceStats{TotalDays: 3, PresentDays: 1, AbsentDays: 1, LateDays: 1, AttendanceRate: 33}
	if *stats != want {
		t.Fatalf("stats = %+v, want %+v", *stats, want)
	}

	stats, err = env.svc.GetStats(ctx, parent1, "child-1", api.Period{Month: intPtr(4), Year: intPtr(2024)})
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDays != 0 || stats.AttendanceRate != 0 {
		t.Fatalf("april stats = %+v", stats)
	}
}

func TestHistoryFormatting(t *testing.T) {
	cfg := defaultConfig()
	cfg.Location = time.FixedZone("+0530", 5*60*60+30*60)
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if _, err := env.svc.MarkLegStatus(ctx, driver1, "child-1", "morning", &api.MarkLegRequest{
		Status: strPtr("picked_up"),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.UpdateDailyAttendance(ctx, parent1, "child-1", &api.DailyAttendanceRequest{
		AfternoonDropoff: boolPtr(true),
	}); err != nil {
		t.Fatal(err)
	}

	history, err := env.svc.GetHistory(ctx, parent1, "child-1", api.Period{})
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history = %+v", history)
	}

	e := history[0]
	if e.Date != "2024-03-01" || e.Day != "Friday" || e.Status != "Present" {
		t.Fatalf("entry = %+v", e)
	}
	// 07:00 UTC is 12:30 PM at +05:30
	if e.PickupTime != "12:30 PM" {
		t.Fatalf("pickup time = %q", e.PickupTime)
	}
	if e.DropoffTime != "Expected" {
		t.Fatalf("dropoff time = %q", e.DropoffTime)
	}
	if e.PickupLocation != "12 Lake Rd" || e.DropoffLocation != "Home" {
		t.Fatalf("locations = %q / %q", e.PickupLocation, e.DropoffLocation)
	}
}

func TestHistoryPeriod(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	for _, d := range []string{"2023-03-10", "2024-02-20", "2024-03-04"} {
		if _, err := env.svc.ReportAbsence(ctx, parent1, "child-1", &api.ReportAbsenceRequest{
			Date: d, Status: "absent", Reason: "Travel",
		}); err != nil {
			t.Fatal(err)
		}
	}

	march, err := env.svc.GetHistory(ctx, parent1, "child-1", api.Period{Month: intPtr(3)})
	if err != nil {
		t.Fatal(err)
	}
	if len(march) != 2 || march[0].Date != "2024-03-04" || march[1].Date != "2023-03-10" {
		t.Fatalf("march in any year = %+v", march)
	}

	y2024, err := env.svc.GetHistory(ctx, parent1, "child-1", api.Period{Year: intPtr(2024)})
	if err != nil {
		t.Fatal(err)
	}
	if len(y2024) != 2 {
		t.Fatalf("2024 = %+v", y2024)
	}

	feb, err := env.svc.GetHistory(ctx, parent1, "child-1", api.Period{Month: intPtr(2), Year: intPtr(2024)})
	if err != nil {
		t.Fatal(err)
	}
	if len(feb) != 1 || feb[0].Date != "2024-02-20" {
		t.Fatalf("feb 2024 = %+v", feb)
	}

	for _, p := range []api.Period{{Month: intPtr(13)}, {Month: intPtr(0)}, {Year: intPtr(24)}} {
		if _, err := env.svc.GetHistory(ctx, parent1, "child-1", p); !errors.Is(err, response.ErrValidation) {
			t.Errorf("period %+v err = %v", p, err)
		}
	}
}

func TestSendDriverNoteAppends(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	res, err := env.svc.SendDriverNote(ctx, parent1, "child-1", &api.DriverNoteRequest{Note: "Wait at the gate"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "Note sent to driver" || res.Date != "2024-03-01" {
		t.Fatalf("response = %+v", res)
	}

	if _, err := env.svc.SendDriverNote(ctx, parent1, "child-1", &api.DriverNoteRequest{Note: "Grandma picks up"}); err != nil {
		t.Fatal(err)
	}

	today, err := env.svc.GetToday(ctx, parent1, "child-1")
	if err != nil {
		t.Fatal(err)
	}
	want := "[Parent note]: Wait at the gate\n[Parent note]: Grandma picks up"
	if today.Notes != want {
		t.Fatalf("notes = %q", today.Notes)
	}

	if _, err := env.svc.SendDriverNote(ctx, parent1, "child-1", &api.DriverNoteRequest{Note: " "}); !errors.Is(err, response.ErrValidation) {
		t.Fatalf("blank note err = %v", err)
	}
}

func TestMarkLegStatus(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	leg, err := env.svc.MarkLegStatus(ctx, driver1, "child-1", "morning", &api.MarkLegRequest{
		Status:   strPtr("picked_up"),
		Location: strPtr("Lake Rd stop"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if leg.Status == nil || *leg.Status != "picked_up" || leg.Time == nil || leg.Location == nil {
		t.Fatalf("leg = %+v", leg)
	}

	got := env.notifier.all()
	if len(got) != 1 || got[0].Kind != models.NotifyPickup || got[0].Data["parentId"] != "parent-1" {
		t.Fatalf("notifications = %+v", got)
	}

	// the parent changing their mind does not undo a pickup
	if _, err := env.svc.UpdateDailyAttendance(ctx, parent1, "child-1", &api.DailyAttendanceRequest{MorningPickup: boolPtr(false)}); err != nil {
		t.Fatal(err)
	}
	today, err := env.svc.GetToday(ctx, parent1, "child-1")
	if err != nil {
		t.Fatal(err)
	}
	if today.MorningStatus == nil || *today.MorningStatus != "picked_up" {
		t.Fatalf("morning status = %v", today.MorningStatus)
	}
	if today.PickupTime != "7:00 AM" {
		t.Fatalf("pickup time = %q", today.PickupTime)
	}

	leg, err = env.svc.MarkLegStatus(ctx, driver1, "child-1", "morning", &api.MarkLegRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if leg.Status != nil || leg.Time != nil || leg.Location != nil {
		t.Fatalf("reset leg = %+v", leg)
	}
	if n := len(env.notifier.all()); n != 1 {
		t.Fatalf("reset sent a notification, total %d", n)
	}

	if _, err := env.svc.MarkLegStatus(ctx, driver1, "child-2", "afternoon", &api.MarkLegRequest{Status: strPtr("absent")}); err != nil {
		t.Fatal(err)
	}
	got = env.notifier.all()
	if last := got[len(got)-1]; last.Kind != models.NotifyNoShow || last.ChildID != "child-2" {
		t.Fatalf("no-show notification = %+v", last)
	}
}

func TestMarkLegStatusRejects(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	invalid := []struct {
		leg string
		req api.MarkLegRequest
	}{
		{"evening", api.MarkLegRequest{Status: strPtr("picked_up")}},
		{"afternoon", api.MarkLegRequest{Status: strPtr("picked_up")}},
		{"morning", api.MarkLegRequest{Status: strPtr("dropped_off")}},
		{"morning", api.MarkLegRequest{Status: strPtr("expected")}},
		{"morning", api.MarkLegRequest{Date: "tomorrow", Status: strPtr("absent")}},
	}
	for _, tt := range invalid {
		if _, err := env.svc.MarkLegStatus(ctx, driver1, "child-1", tt.leg, &tt.req); !errors.Is(err, response.ErrValidation) {
			t.Errorf("%s %+v: err = %v", tt.leg, tt.req, err)
		}
	}

	notFound := []struct {
		actor models.Actor
		child string
	}{
		{driver2, "child-1"},
		{parent1, "child-1"},
		{driver1, "child-3"},
		{driver1, "child-4"},
	}
	for _, tt := range notFound {
		_, err := env.svc.MarkLegStatus(ctx, tt.actor, tt.child, "morning", &api.MarkLegRequest{Status: strPtr("picked_up")})
		if !errors.Is(err, response.ErrNotFound) {
			t.Errorf("%s on %s: err = %v", tt.actor.ID, tt.child, err)
		}
	}

	if n := len(env.notifier.all()); n != 0 {
		t.Fatalf("rejected marks sent %d notifications", n)
	}
}

func TestNotesKeepParentPrefix(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	if _, err := env.svc.SendDriverNote(ctx, parent1, "child-2", &api.DriverNoteRequest{Note: "  Bring inhaler "}); err != nil {
		t.Fatal(err)
	}

	roster, err := env.svc.GetRoster(ctx, driver1, "route-1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range roster.Children {
		if c.ChildID == "child-2" && !strings.HasPrefix(c.Notes, "[Parent note]: Bring inhaler") {
			t.Fatalf("roster notes = %q", c.Notes)
		}
	}
}
