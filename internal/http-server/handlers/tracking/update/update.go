package update

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/chathuwa-whiz/schoolbus/api"
	"github.com/chathuwa-whiz/schoolbus/internal/http-server/handlers"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

type LocationUpdater interface {
	UpdateLocation(ctx context.Context, actor models.Actor, req *api.UpdateLocationRequest) (*api.TrackingSession, error)
}

type Request struct {
	api.UpdateLocationRequest
}

type Response struct {
	response.Response
	Session api.TrackingSession `json:"session"`
}

func New(log *slog.Logger, updater LocationUpdater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.tracking.update.New"

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

		sess, err := updater.UpdateLocation(r.Context(), actor, &req.UpdateLocationRequest)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to update location")
			return
		}

		render.JSON(w, r, Response{Session: *sess})
	}
}
