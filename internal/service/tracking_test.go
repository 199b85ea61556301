package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

func colombo() api.Location {
	return api.Location{Latitude: 6.9271, Longitude: 79.8612, Speed: 20, Heading: 90}
}

func startBus1(t *testing.T, env *testEnv) *api.TrackingSession {
	t.Helper()

	sess, err := env.svc.StartTracking(context.Background(), driver1, &api.StartTrackingRequest{
		BusID:    "bus-1",
		RouteID:  "route-1",
		Location: colombo(),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	return sess
}

func TestStartTrackingIsIdempotentForSameRoute(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	first := startBus1(t, env)
	if !first.IsActive || first.DriverID != "driver-1" || first.Date != "2024-03-01" {
		t.Fatalf("session = %+v", first)
	}

	env.clock.Advance(time.Minute)
	again := startBus1(t, env)
	if again.SessionID != first.SessionID || !again.StartedAt.Equal(first.StartedAt) {
		t.Fatalf("restart replaced the running session: %s -> %s", first.SessionID, again.SessionID)
	}

	history, err := env.svc.GetTrackingHistory(ctx, admin, "bus-1", "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if len(history.Events) != 1 || history.Events[0].Kind != "start" {
		t.Fatalf("events = %+v", history.Events)
	}
	if n := env.publisher.count("bus-1"); n != 1 {
		t.Fatalf("published %d snapshots, want 1", n)
	}
}

func TestStartTrackingConflicts(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	first := startBus1(t, env)

	// route-3 also runs on bus-1
	_, err := env.svc.StartTracking(ctx, driver3, &api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-3", Location: colombo()})
	if !errors.Is(err, response.ErrConflict) {
		t.Fatalf("second driver err = %v, want conflict", err)
	}

	if _, err := env.svc.EndTracking(ctx, driver1, &api.EndTrackingRequest{BusID: "bus-1"}); err != nil {
		t.Fatal(err)
	}

	next, err := env.svc.StartTracking(ctx, driver3, &api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-3", Location: colombo()})
	if err != nil {
		t.Fatal(err)
	}
	if next.SessionID == first.SessionID || next.DriverID != "driver-3" || next.EndedAt != nil || next.Emergency {
		t.Fatalf("new session = %+v", next)
	}
}

func TestStartTrackingRejects(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	bad := colombo()
	bad.Latitude = 91

	tests := []struct {
		name   string
		actor  models.Actor
		req    api.StartTrackingRequest
		target error
	}{
		{"not assigned", driver2, api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-1", Location: colombo()}, response.ErrNotFound},
		{"wrong bus", driver1, api.StartTrackingRequest{BusID: "bus-2", RouteID: "route-1", Location: colombo()}, response.ErrNotFound},
		{"unknown route", driver1, api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-404", Location: colombo()}, response.ErrNotFound},
		{"parent", parent1, api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-1", Location: colombo()}, response.ErrNotFound},
		{"bad latitude", driver1, api.StartTrackingRequest{BusID: "bus-1", RouteID: "route-1", Location: bad}, response.ErrValidation},
		{"no route", driver1, api.StartTrackingRequest{BusID: "bus-1", Location: colombo()}, response.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.svc.StartTracking(ctx, tt.actor, &tt.req); !errors.Is(err, tt.target) {
				t.Fatalf("err = %v, want %v", err, tt.target)
			}
		})
	}

	if _, err := env.store.Session(ctx, "bus-1"); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("rejected starts left a session: %v", err)
	}
}

func TestUpdateLocationRejectsStale(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	older := startOfTest.Add(-time.Minute)
	loc := colombo()
	loc.Timestamp = &older

	_, err := env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: loc})
	if !errors.Is(err, response.ErrStaleUpdate) {
		t.Fatalf("err = %v, want stale", err)
	}

	env.clock.Advance(10 * time.Second)
	loc = colombo()
	loc.Latitude = 6.93

	sess, err := env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: loc})
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentLocation.Latitude != 6.93 || !sess.LastUpdated.Equal(env.clock.Now()) {
		t.Fatalf("session = %+v", sess)
	}
}

func TestUpdateLocationAcceptsStaleWhenAllowed(t *testing.T) {
	cfg := defaultConfig()
	cfg.RejectStaleUpdates = false
	env := newTestEnv(t, cfg)

	startBus1(t, env)

	older := startOfTest.Add(-time.Minute)
	loc := colombo()
	loc.Latitude = 7
	loc.Timestamp = &older

	sess, err := env.svc.UpdateLocation(context.Background(), driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: loc})
	if err != nil {
		t.Fatal(err)
	}
	if sess.CurrentLocation.Latitude != 7 || !sess.CurrentLocation.Timestamp.Equal(older) {
		t.Fatalf("location = %+v", sess.CurrentLocation)
	}
}

func TestUpdateLocationMovesSessionDay(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	env.clock.Advance(24 * time.Hour)
	sess, err := env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: colombo()})
	if err != nil {
		t.Fatal(err)
	}
	if sess.Date != "2024-03-02" {
		t.Fatalf("session date = %s", sess.Date)
	}

	day1, err := env.svc.GetTrackingHistory(ctx, driver1, "bus-1", "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	day2, err := env.svc.GetTrackingHistory(ctx, driver1, "bus-1", "2024-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if len(day1.Events) != 1 || len(day2.Events) != 1 || day2.Events[0].Kind != "location" {
		t.Fatalf("day1 = %+v day2 = %+v", day1.Events, day2.Events)
	}
}

func TestWritesAfterEnd(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	env.clock.Advance(time.Minute)
	ended, err := env.svc.EndTracking(ctx, driver1, &api.EndTrackingRequest{BusID: "bus-1"})
	if err != nil {
		t.Fatal(err)
	}
	if ended.IsActive || ended.EndedAt == nil {
		t.Fatalf("ended session = %+v", ended)
	}

	env.clock.Advance(time.Minute)
	writes := map[string]func() error{
		"location": func() error {
			_, err := env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: colombo()})
			return err
		},
		"end": func() error {
			_, err := env.svc.EndTracking(ctx, driver1, &api.EndTrackingRequest{BusID: "bus-1"})
			return err
		},
		"emergency": func() error {
			_, err := env.svc.ReportEmergency(ctx, driver1, &api.EmergencyRequest{BusID: "bus-1", Details: "Flat tyre"})
			return err
		},
		"connection": func() error {
			_, err := env.svc.UpdateConnection(ctx, driver1, &api.ConnectionRequest{BusID: "bus-1", GPSSignal: "weak"})
			return err
		},
	}

	for name, write := range writes {
		if err := write(); !errors.Is(err, response.ErrSessionNotActive) {
			t.Errorf("%s: err = %v, want session not active", name, err)
		}
	}

	current, err := env.svc.GetCurrentTracking(ctx, admin, "bus-1")
	if err != nil {
		t.Fatal(err)
	}
	if current.IsActive || current.SessionID != ended.SessionID {
		t.Fatalf("current = %+v", current)
	}
}

func TestWritesWithoutSession(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	_, err := env.svc.ReportEmergency(ctx, driver1, &api.EmergencyRequest{BusID: "bus-1", Details: "Flat tyre"})
	if !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("emergency err = %v, want not found", err)
	}

	startBus1(t, env)

	// driver-3 may drive bus-1 but is not the one running it
	_, err = env.svc.UpdateLocation(ctx, driver3, &api.UpdateLocationRequest{BusID: "bus-1", Location: colombo()})
	if !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("other driver err = %v, want not found", err)
	}
}

func TestReportEmergency(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	env.clock.Advance(time.Minute)
	loc := colombo()
	loc.Latitude = 6.95

	sess, err := env.svc.ReportEmergency(ctx, driver1, &api.EmergencyRequest{
		BusID:    "bus-1",
		Details:  "Engine smoke",
		Location: &loc,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !sess.IsActive || !sess.Emergency || sess.EmergencyDetails != "Engine smoke" || sess.EmergencyAt == nil {
		t.Fatalf("session = %+v", sess)
	}
	if sess.CurrentLocation.Latitude != 6.95 {
		t.Fatalf("emergency location not applied: %+v", sess.CurrentLocation)
	}

	got := env.notifier.all()
	if len(got) != 1 {
		t.Fatalf("notifications = %+v", got)
	}
	n := got[0]
	if n.Kind != models.NotifyEmergency || n.Priority != models.PriorityHigh || n.BusID != "bus-1" || n.RouteID != "route-1" {
		t.Fatalf("notification = %+v", n)
	}
	if n.Message != "Engine smoke" || n.Data["sessionId"] != sess.SessionID {
		t.Fatalf("notification = %+v", n)
	}

	history, err := env.svc.GetTrackingHistory(ctx, driver1, "bus-1", "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	last := history.Events[len(history.Events)-1]
	if last.Kind != "emergency" || last.Priority != "high" || last.Details != "Engine smoke" || last.Location == nil {
		t.Fatalf("last event = %+v", last)
	}

	if _, err := env.svc.ReportEmergency(ctx, driver1, &api.EmergencyRequest{BusID: "bus-1", Details: " "}); !errors.Is(err, response.ErrValidation) {
		t.Fatalf("blank details err = %v", err)
	}
}

func TestReportEmergencyKeepsNewerLocation(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	env.clock.Advance(time.Hour)
	latest := colombo()
	latest.Latitude = 7
	if _, err := env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: latest}); err != nil {
		t.Fatal(err)
	}

	older := env.clock.Now().Add(-30 * time.Minute)
	loc := colombo()
	loc.Latitude = 1
	loc.Timestamp = &older

	sess, err := env.svc.ReportEmergency(ctx, driver1, &api.EmergencyRequest{BusID: "bus-1", Details: "Flat tyre", Location: &loc})
	if err != nil {
		t.Fatal(err)
	}
	if !sess.Emergency || sess.CurrentLocation.Latitude != 7 {
		t.Fatalf("older emergency sample replaced the current location: %+v", sess.CurrentLocation)
	}

	history, err := env.svc.GetTrackingHistory(ctx, driver1, "bus-1", "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	last := history.Events[len(history.Events)-1]
	if last.Kind != "emergency" || last.Location == nil || last.Location.Latitude != 1 {
		t.Fatalf("emergency event = %+v", last)
	}

	between := env.clock.Now().Add(-10 * time.Minute)
	loc.Latitude = 2
	loc.Timestamp = &between

	_, err = env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: loc})
	if !errors.Is(err, response.ErrStaleUpdate) {
		t.Fatalf("update after emergency err = %v, want stale", err)
	}
}

func TestUpdateConnection(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	_, err := env.svc.UpdateConnection(ctx, driver1, &api.ConnectionRequest{BusID: "bus-1", BatteryLevel: intPtr(150)})
	if !errors.Is(err, response.ErrValidation) {
		t.Fatalf("battery err = %v", err)
	}

	sess, err := env.svc.UpdateConnection(ctx, driver1, &api.ConnectionRequest{
		BusID:          "bus-1",
		GPSSignal:      "good",
		DataConnection: "4g",
		BatteryLevel:   intPtr(64),
		Device:         "tablet-7",
	})
	if err != nil {
		t.Fatal(err)
	}

	c := sess.Connection
	if c.GPSSignal != "good" || c.DataConnection != "4g" || c.BatteryLevel == nil || *c.BatteryLevel != 64 || c.Device != "tablet-7" {
		t.Fatalf("connection = %+v", c)
	}
	if c.UpdatedAt == nil {
		t.Fatal("connection update time missing")
	}
}

func TestTrackingReadAccess(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	started := startBus1(t, env)

	for _, actor := range []models.Actor{admin, driver1, driver3} {
		sess, err := env.svc.GetCurrentTracking(ctx, actor, "bus-1")
		if err != nil {
			t.Fatalf("%s: %v", actor.ID, err)
		}
		if sess.SessionID != started.SessionID {
			t.Fatalf("%s read session %s", actor.ID, sess.SessionID)
		}
	}

	for _, actor := range []models.Actor{driver2, parent1} {
		if _, err := env.svc.GetCurrentTracking(ctx, actor, "bus-1"); !errors.Is(err, response.ErrNotFound) {
			t.Errorf("%s: err = %v, want not found", actor.ID, err)
		}
		if err := env.svc.AuthorizeBusRead(ctx, actor, "bus-1"); !errors.Is(err, response.ErrNotFound) {
			t.Errorf("%s authorize: err = %v, want not found", actor.ID, err)
		}
	}

	child, err := env.svc.GetChildTracking(ctx, parent1, "child-1")
	if err != nil {
		t.Fatal(err)
	}
	if child.BusID != "bus-1" || child.SessionID != started.SessionID {
		t.Fatalf("child tracking = %+v", child)
	}

	notFound := []struct {
		actor models.Actor
		child string
	}{
		{parent2, "child-1"},
		{parent1, "child-4"},
		{parent2, "child-3"},
		{driver1, "child-1"},
	}
	for _, tt := range notFound {
		if _, err := env.svc.GetChildTracking(ctx, tt.actor, tt.child); !errors.Is(err, response.ErrNotFound) {
			t.Errorf("%s on %s: err = %v, want not found", tt.actor.ID, tt.child, err)
		}
	}
}

func TestTrackingHistoryRequiresSession(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	if _, err := env.svc.GetTrackingHistory(ctx, admin, "bus-2", "2024-03-01"); !errors.Is(err, response.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if _, err := env.svc.GetTrackingHistory(ctx, admin, "bus-1", "yesterday"); !errors.Is(err, response.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	startBus1(t, env)

	empty, err := env.svc.GetTrackingHistory(ctx, admin, "bus-1", "2024-02-29")
	if err != nil {
		t.Fatal(err)
	}
	if empty.Events == nil || len(empty.Events) != 0 {
		t.Fatalf("events = %#v, want empty", empty.Events)
	}
}

func TestBusyBusIsLocked(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	ctx := context.Background()

	startBus1(t, env)

	token, ok, err := env.locker.Lock(ctx, "bus:bus-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock: ok=%v err=%v", ok, err)
	}
	defer func() { _ = env.locker.Unlock(ctx, "bus:bus-1", token) }()

	_, err = env.svc.UpdateLocation(ctx, driver1, &api.UpdateLocationRequest{BusID: "bus-1", Location: colombo()})
	if !errors.Is(err, response.ErrLocked) {
		t.Fatalf("err = %v, want locked", err)
	}
}
