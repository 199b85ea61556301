package current

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

type SessionGetter interface {
	GetCurrentTracking(ctx context.Context, actor models.Actor, busID string) (*api.TrackingSession, error)
}

type Response struct {
	response.Response
	Session api.TrackingSession `json:"session"`
}

func New(log *slog.Logger, getter SessionGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.tracking.current.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		sess, err := getter.GetCurrentTracking(r.Context(), actor, chi.URLParam(r, "busId"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get tracking session")
			return
		}

		render.JSON(w, r, Response{Session: *sess})
	}
}
