package mark

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

type LegMarker interface {
	MarkLegStatus(ctx context.Context, actor models.Actor, childID, leg string, req *api.MarkLegRequest) (*api.LegView, error)
}

type Request struct {
	api.MarkLegRequest
}

type Response struct {
	response.Response
	Leg api.LegView `json:"leg"`
}

// New serves PUT /attendance/child/{childId}/legs/{leg}. The status key is
// required; an explicit null resets the leg.
func New(log *slog.Logger, marker LegMarker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.mark.New"

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
		if !req.StatusSet {
			handlers.Fail(log, w, r, response.Invalid("status is required, send null to reset the leg"), "Failed to mark leg status")
			return
		}

		childID, leg := chi.URLParam(r, "childId"), chi.URLParam(r, "leg")

		view, err := marker.MarkLegStatus(r.Context(), actor, childID, leg, &req.MarkLegRequest)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to mark leg status")
			return
		}

		status := "reset"
		if view.Status != nil {
			status = *view.Status
		}
		log.Info("Leg status marked",
			slog.String("child_id", childID),
			slog.String("leg", leg),
			slog.String("status", status),
		)

		render.JSON(w, r, Response{Leg: *view})
	}
}
