package note

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

type NoteSender interface {
	SendDriverNote(ctx context.Context, actor models.Actor, childID string, req *api.DriverNoteRequest) (*api.DriverNoteResponse, error)
}

type Request struct {
	api.DriverNoteRequest
}

type Response struct {
	response.Response
	api.DriverNoteResponse
}

func New(log *slog.Logger, sender NoteSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.note.New"

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

		res, err := sender.SendDriverNote(r.Context(), actor, chi.URLParam(r, "childId"), &req.DriverNoteRequest)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to send driver note")
			return
		}

		render.JSON(w, r, Response{DriverNoteResponse: *res})
	}
}
