package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	attendanceDaily "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/daily"
	attendanceHistory "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/history"
	attendanceMark "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/mark"
	attendanceNote "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/note"
	attendanceReport "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/report"
	attendanceRoster "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/roster"
	attendanceStats "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/stats"
	attendanceToday "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/attendance/today"
	trackingChild "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/child"
	trackingConnection "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/connection"
	trackingCurrent "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/current"
	trackingEmergency "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/emergency"
	trackingEnd "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/end"
	trackingHistory "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/history"
	trackingStart "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/start"
	trackingStream "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/stream"
	trackingUpdate "github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers/tracking/update"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/middleware/auth"
	"github.com/chathuwa-whiz/schoolbus/internal/metrics"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
	"github.com/chathuwa-whiz/schoolbus/pkg/middleware/mwLogger"
)

type Service interface {
	attendanceHistory.HistoryGetter
	attendanceStats.StatsGetter
	attendanceToday.TodayGetter
	attendanceReport.AbsenceReporter
	attendanceDaily.DailyUpdater
	attendanceNote.NoteSender
	attendanceMark.LegMarker
	attendanceRoster.RosterGetter

	trackingStart.TrackingStarter
	trackingUpdate.LocationUpdater
	trackingEnd.TrackingEnder
	trackingEmergency.EmergencyReporter
	trackingConnection.ConnectionUpdater
	trackingHistory.HistoryGetter
	trackingChild.ChildTracker
	trackingStream.Watcher
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service   Service
	Hub       trackingStream.Subscriber
	Health    Pinger
	JWTSecret []byte
	// StreamPing is the keep-alive interval of live streams.
	StreamPing time.Duration
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func New(log *slog.Logger, d Deps) http.Handler {
	svc := d.Service

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(mwLogger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)
	router.Use(CORS)
	router.Use(metrics.Middleware)

	router.Get("/healthz", health(log, d.Health))
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Use(auth.New(log, d.JWTSecret))

		// Attendance
		r.Route("/attendance", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleParent))

				r.Get("/child/{childId}", attendanceHistory.New(log, svc))
				r.Get("/child/{childId}/stats", attendanceStats.New(log, svc))
				r.Get("/child/{childId}/today", attendanceToday.New(log, svc))
				r.Post("/child/{childId}/report", attendanceReport.New(log, svc))
				r.Put("/child/{childId}/daily", attendanceDaily.New(log, svc))
				r.Post("/child/{childId}/note", attendanceNote.New(log, svc))
			})

			r.With(auth.RequireRole(models.RoleDriver)).
				Put("/child/{childId}/legs/{leg}", attendanceMark.New(log, svc))
			r.With(auth.RequireRole(models.RoleDriver, models.RoleAdmin)).
				Get("/route/{routeId}/roster", attendanceRoster.New(log, svc))
		})

		// Tracking
		r.Route("/tracking", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleDriver))

				r.Post("/start", trackingStart.New(log, svc))
				r.Post("/update", trackingUpdate.New(log, svc))
				r.Post("/end", trackingEnd.New(log, svc))
				r.Post("/emergency", trackingEmergency.New(log, svc))
				r.Post("/connection", trackingConnection.New(log, svc))
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(models.RoleDriver, models.RoleAdmin))

				r.Get("/bus/{busId}", trackingCurrent.New(log, svc))
				r.Get("/bus/{busId}/history/{date}", trackingHistory.New(log, svc))
				r.Get("/bus/{busId}/stream", trackingStream.New(log, svc, d.Hub, d.StreamPing))
			})

			r.With(auth.RequireRole(models.RoleParent)).
				Get("/child/{childId}", trackingChild.New(log, svc))
		})
	})

	return router
}

type healthResponse struct {
	Status string `json:"status"`
}

func health(log *slog.Logger, p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := p.Ping(ctx); err != nil {
				log.Error("Health check failed", sl.Err(err))
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, healthResponse{Status: "unavailable"})
				return
			}
		}

		render.JSON(w, r, healthResponse{Status: "ok"})
	}
}
