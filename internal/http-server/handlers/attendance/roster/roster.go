package roster

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

type RosterGetter interface {
	GetRoster(ctx context.Context, actor models.Actor, routeID, date, leg string) (*api.Roster, error)
}

type Response struct {
	response.Response
	Roster api.Roster `json:"roster"`
}

// New serves GET /attendance/route/{routeId}/roster?date=&leg=.
func New(log *slog.Logger, getter RosterGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.roster.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		actor, ok := handlers.Actor(log, w, r)
		if !ok {
			return
		}

		q := r.URL.Query()

		roster, err := getter.GetRoster(r.Context(), actor, chi.URLParam(r, "routeId"), q.Get("date"), q.Get("leg"))
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to get route roster")
			return
		}

		render.JSON(w, r, Response{Roster: *roster})
	}
}
