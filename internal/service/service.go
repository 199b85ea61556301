package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chathuwa-whiz/schoolbus/internal/dates"
	"github.com/chathuwa-whiz/schoolbus/internal/lock"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

type Store interface {
	// Inventory
	ChildOfParent(ctx context.Context, childID, parentID string) (*models.Child, error)
	ChildOfDriver(ctx context.Context, childID, driverID string) (*models.Child, error)
	Route(ctx context.Context, routeID string) (*models.Route, error)
	BusOfDriver(ctx context.Context, busID, driverID string) (bool, error)
	BusOfChild(ctx context.Context, childID string) (string, error)

	// Attendance
	AttendanceRecord(ctx context.Context, childID string, day dates.Day) (*models.AttendanceRecord, error)
	ListAttendance(ctx context.Context, childID string, f models.AttendanceFilter) ([]models.AttendanceRecord, error)
	UpsertAbsence(ctx context.Context, in models.AbsenceReport) (*models.AttendanceRecord, error)
	UpsertDailyPreference(ctx context.Context, in models.DailyPreference) (*models.AttendanceRecord, error)
	AppendNote(ctx context.Context, childID string, day dates.Day, entry string, at time.Time) (*models.AttendanceRecord, error)
	UpsertLegStatus(ctx context.Context, in models.LegMark) (*models.AttendanceRecord, error)
	Roster(ctx context.Context, routeID string, day dates.Day) ([]models.RosterEntry, error)

	// Tracking
	Session(ctx context.Context, busID string) (*models.TrackingSession, error)
	StartSession(ctx context.Context, sess *models.TrackingSession, ev *models.TrackingEvent) (*models.TrackingSession, bool, error)
	UpdateLocation(ctx context.Context, in models.LocationUpdate, ev *models.TrackingEvent) (*models.TrackingSession, error)
	EndSession(ctx context.Context, busID, driverID string, at time.Time, ev *models.TrackingEvent) (*models.TrackingSession, error)
	ReportEmergency(ctx context.Context, in models.EmergencyReport, ev *models.TrackingEvent) (*models.TrackingSession, error)
	UpdateConnection(ctx context.Context, in models.ConnectionUpdate) (*models.TrackingSession, error)
	AppendEvent(ctx context.Context, ev *models.TrackingEvent) error
	Events(ctx context.Context, busID string, day dates.Day) ([]models.TrackingEvent, error)
	DeactivateIdle(ctx context.Context, cutoffMs int64, at time.Time) ([]models.TrackingSession, error)
}

// Notifier must not block on delivery.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Publisher pushes session snapshots to live stream subscribers.
type Publisher interface {
	Publish(ctx context.Context, busID string, payload []byte) error
}

type Clock interface {
	Now() time.Time
}

type IDGen interface {
	New(t time.Time) string
}

type Config struct {
	// Location is the zone calendar days and display times use.
	Location           *time.Location
	RejectStaleUpdates bool
	IdleTimeout        time.Duration
	LockTTL            time.Duration
	LockWait           time.Duration
}

type Service struct {
	log       *slog.Logger
	store     Store
	locker    lock.Locker
	notifier  Notifier
	publisher Publisher
	clock     Clock
	ids       IDGen
	cfg       Config
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithIDGen(g IDGen) Option {
	return func(s *Service) { s.ids = g }
}

func NewService(log *slog.Logger, store Store, locker lock.Locker, notifier Notifier, publisher Publisher, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 5 * time.Second
	}

	s := &Service{
		log:       log.With(slog.String("component", "service")),
		store:     store,
		locker:    locker,
		notifier:  notifier,
		publisher: publisher,
		clock:     systemClock{},
		ids:       newULIDGen(),
		cfg:       cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ulidGen hands out ULIDs that sort in generation order, also within
// the same millisecond.
type ulidGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newULIDGen() *ulidGen {
	return &ulidGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ulidGen) New(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

func (s *Service) now() time.Time {
	return s.clock.Now()
}

func (s *Service) today() dates.Day {
	return dates.Of(s.now(), s.cfg.Location)
}

func (s *Service) lockBus(ctx context.Context, busID string) (func(), error) {
	return lock.Acquire(ctx, s.locker, "bus:"+busID, s.cfg.LockTTL, s.cfg.LockWait)
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}

	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if n.At.IsZero() {
		n.At = s.now()
	}

	s.notifier.Notify(ctx, n)
}

// publish pushes the session snapshot to stream subscribers. Failures are
// logged only; the write has already been accepted.
func (s *Service) publish(ctx context.Context, sess *models.TrackingSession) {
	if s.publisher == nil {
		return
	}

	payload, err := json.Marshal(sessionView(sess))
	if err != nil {
		s.log.Error("Failed to encode session snapshot", sl.Err(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, sess.BusID, payload); err != nil {
		s.log.Warn("Failed to publish session snapshot", slog.String("bus_id", sess.BusID), sl.Err(err))
	}
}

// parentChild resolves a child owned by the calling parent. Anything else
// is reported as not found.
func (s *Service) parentChild(ctx context.Context, actor models.Actor, childID string) (*models.Child, error) {
	if actor.Role != models.RoleParent || childID == "" {
		return nil, response.ErrNotFound
	}

	return s.store.ChildOfParent(ctx, childID, actor.ID)
}

// canReadBus lets admins read every bus and drivers only the buses of
// their active routes.
func (s *Service) canReadBus(ctx context.Context, actor models.Actor, busID string) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleDriver:
		ok, err := s.store.BusOfDriver(ctx, busID, actor.ID)
		if err != nil {
			return err
		}
		if !ok {
			return response.ErrNotFound
		}
		return nil
	default:
		return response.ErrNotFound
	}
}
