package sqldb

import (
	"context"
	"testing"
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func strPtr(s string) *string { return &s }

// seedRoute creates bus-1 on route-1 driven by driver-1 with two children
// of parent-1.
func seedRoute(t *testing.T, s *Storage) {
	t.Helper()
	ctx := context.Background()

	if err := s.InsertBus(ctx, models.Bus{ID: "bus-1", BusNumber: "NB-1234"}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertRoute(ctx, models.Route{
		ID: "route-1", RouteNumber: "R1", Name: "North loop",
		BusID: strPtr("bus-1"), DriverID: strPtr("driver-1"), IsActive: true,
	}); err != nil {
		t.Fatal(err)
	}
	children := []models.Child{
		{ID: "child-1", ParentID: "parent-1", FirstName: "Amal", LastName: "Perera", RouteID: strPtr("route-1"), PickupLocation: "12 Lake Rd"},
		{ID: "child-2", ParentID: "parent-1", FirstName: "Binu", LastName: "Perera", RouteID: strPtr("route-1")},
	}
	for _, c := range children {
		if err := s.InsertChild(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &Storage{driver: DriverPostgres}
	lite := &Storage{driver: DriverSQLite}

	query := `SELECT a FROM t WHERE x = ? AND y IN (?, ?)`

	if got := pg.q(query); got != `SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)` {
		t.Errorf("postgres rebind = %s", got)
	}
	if got := lite.q(query); got != query {
		t.Errorf("sqlite rebind changed the query: %s", got)
	}
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestNullTimeParsesSQLiteText(t *testing.T) {
	var n nullTime
	if err := n.Scan("2024-03-01 07:15:00+00:00"); err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 3, 1, 7, 15, 0, 0, time.UTC)
	if !n.Valid || !n.Time.Equal(want) {
		t.Fatalf("got %v", n.Time)
	}
}
