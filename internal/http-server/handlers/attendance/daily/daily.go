package daily

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

type DailyUpdater interface {
	UpdateDailyAttendance(ctx context.Context, actor models.Actor, childID string, req *api.DailyAttendanceRequest) (*api.DailyAttendanceResponse, error)
}

type Request struct {
	api.DailyAttendanceRequest
}

type Response struct {
	response.Response
	Daily api.DailyAttendanceResponse `json:"daily"`
}

func New(log *slog.Logger, updater DailyUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.daily.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		var req Request
		if !handlers.Decode(log, w, r, &req) {
			return
		}

		res, err := updater.UpdateDailyAttendance(r.Context(), actor, chi.URLParam(r, "childId"), &req.DailyAttendanceRequest)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to update daily attendance")
			return
		}

		render.JSON(w, r, Response{Daily: *res})
	}
}
