package today

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

type TodayGetter interface {
	GetToday(ctx context.Context, actor models.Actor, childID string) (*api.TodayAttendance, error)
}

type Response struct {
	response.Response
	Today api.TodayAttendance `json:"today"`
}

func New(log *slog.Logger, getter TodayGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.today.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		today, err := getter.GetToday(r.Context(), actor, chi.URLParam(r, "childId"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get today's attendance")
			return
		}

		render.JSON(w, r, Response{Today: *today})
	}
}
