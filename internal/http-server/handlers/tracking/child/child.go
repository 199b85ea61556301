package child

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

type ChildTracker interface {
	GetChildTracking(ctx context.Context, actor models.Actor, childID string) (*api.TrackingSession, error)
}

type Response struct {
	response.Response
	Session api.TrackingSession `json:"session"`
}

func New(log *slog.Logger, tracker ChildTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.tracking.child.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		sess, err := tracker.GetChildTracking(r.Context(), actor, chi.URLParam(r, "childId"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get child's bus")
			return
		}

		render.JSON(w, r, Response{Session: *sess})
	}
}
