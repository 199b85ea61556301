package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

type HistoryGetter interface {
	GetHistory(ctx context.Context, actor models.Actor, childID string, p api.Period) ([]api.AttendanceHistoryEntry, error)
}

type Response struct {
	response.Response
	Attendance []api.AttendanceHistoryEntry `json:"attendance"`
}

// New serves GET /attendance/child/{childId}?month=&year=.
func New(log *slog.Logger, getter HistoryGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.history.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		childID := chi.URLParam(r, "childId")

		period, err := api.ParsePeriod(r.URL.Query().Get("month"), r.URL.Query().Get("year"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to parse period")
			return
		}

		entries, err := getter.GetHistory(r.Context(), actor, childID, period)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get attendance history")
			return
		}

		log.Debug("Attendance history loaded", slog.String("child_id", childID), slog.Int("count", len(entries)))

		render.JSON(w, r, Response{Attendance: entries})
	}
}
