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
	GetTrackingHistory(ctx context.Context, actor models.Actor, busID, date string) (*api.TrackingHistory, error)
}

type Response struct {
	response.Response
	api.TrackingHistory
}

// New serves GET /tracking/bus/{busId}/history/{date}.
func New(log *slog.Logger, getter HistoryGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.tracking.history.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		history, err := getter.GetTrackingHistory(r.Context(), actor, chi.URLParam(r, "busId"), chi.URLParam(r, "date"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get tracking history")
			return
		}

		render.JSON(w, r, Response{TrackingHistory: *history})
	}
}
