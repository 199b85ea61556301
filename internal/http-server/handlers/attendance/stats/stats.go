package stats

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

type StatsGetter interface {
	GetStats(ctx context.Context, actor models.Actor, childID string, p api.Period) (*api.AttendanceStats, error)
}

type Response struct {
	response.Response
	Stats api.AttendanceStats `json:"stats"`
}

func New(log *slog.Logger, getter StatsGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.stats.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		period, err := api.ParsePeriod(r.URL.Query().Get("month"), r.URL.Query().Get("year"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to parse period")
			return
		}

		stats, err := getter.GetStats(r.Context(), actor, chi.URLParam(r, "childId"), period)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get attendance stats")
			return
		}

		render.JSON(w, r, Response{Stats: *stats})
	}
}
