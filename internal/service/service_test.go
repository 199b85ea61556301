package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/lock"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/internal/storage/sqldb"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/handlers/slogdiscard"
)

var (
	parent1 = models.Actor{ID: "parent-1", Role: models.RoleParent}
	parent2 = models.Actor{ID: "parent-2", Role: models.RoleParent}
	driver1 = models.Actor{ID: "driver-1", Role: models.RoleDriver}
	driver2 = models.Actor{ID: "driver-2", Role: models.RoleDriver}
	driver3 = models.Actor{ID: "driver-3", Role: models.RoleDriver}
	admin   = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	// 2024-03-01 is a Friday
	startOfTest = time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New(time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("ID%08d", g.n)
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) all() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.got...)
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent map[string]int
}

func (p *recordingPublisher) Publish(_ context.Context, busID string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string]int)
	}
	p.sent[busID]++
	return nil
}

func (p *recordingPublisher) count(busID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent[busID]
}

type testEnv struct {
	svc       *Service
	store     *sqldb.Storage
	locker    *lock.Local
	clock     *fakeClock
	notifier  *recordingNotifier
	publisher *recordingPublisher
}

func defaultConfig() Config {
	return Config{
		Location:           time.UTC,
		RejectStaleUpdates: true,
		IdleTimeout:        30 * time.Minute,
		LockTTL:            time.Second,
		LockWait:           100 * time.Millisecond,
	}
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	seedInventory(t, store)

	env := &testEnv{
		store:     store,
		locker:    lock.NewLocal(),
		clock:     &fakeClock{t: startOfTest},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}

	env.svc = NewService(slogdiscard.NewDiscardLogger(), store, env.locker, env.notifier, env.publisher, cfg,
		WithClock(env.clock), WithIDGen(&seqIDs{}))

	return env
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

// seedInventory:
//
//	route-1: bus-1, driver-1, children child-1 and child-2 of parent-1
//	route-2: bus-2, driver-2, child-3 of parent-2
//	route-3: bus-1, driver-3, no children
//	child-4 of parent-1 has no route
func seedInventory(t *testing.T, s *sqldb.Storage) {
	t.Helper()
	ctx := context.Background()

	for _, b := range []models.Bus{{ID: "bus-1", BusNumber: "NB-1"}, {ID: "bus-2", BusNumber: "NB-2"}} {
		if err := s.InsertBus(ctx, b); err != nil {
			t.Fatal(err)
		}
	}

	routes := []models.Route{
		{ID: "route-1", RouteNumber: "R1", BusID: strPtr("bus-1"), DriverID: strPtr("driver-1"), IsActive: true},
		{ID: "route-2", RouteNumber: "R2", BusID: strPtr("bus-2"), DriverID: strPtr("driver-2"), IsActive: true},
		{ID: "route-3", RouteNumber: "R3", BusID: strPtr("bus-1"), DriverID: strPtr("driver-3"), IsActive: true},
	}
	for _, r := range routes {
		if err := s.InsertRoute(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	children := []models.Child{
		{ID: "child-1", ParentID: "parent-1", FirstName: "Amal", LastName: "Perera", RouteID: strPtr("route-1"), PickupLocation: "12 Lake Rd"},
		{ID: "child-2", ParentID: "parent-1", FirstName: "Binu", LastName: "Perera", RouteID: strPtr("route-1")},
		{ID: "child-3", ParentID: "parent-2", FirstName: "Chamu", RouteID: strPtr("route-2")},
		{ID: "child-4", ParentID: "parent-1", FirstName: "Dilan"},
	}
	for _, c := range children {
		if err := s.InsertChild(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
}

func mustDay(t *testing.T, s string) dates.Day {
	t.Helper()

	d, err := dates.Parse(s)
	if err != nil {
		t.Fatal(err)
	}

	return d
}
