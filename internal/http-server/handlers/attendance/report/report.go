package report

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

type AbsenceReporter interface {
	ReportAbsence(ctx context.Context, actor models.Actor, childID string, req *api.ReportAbsenceRequest) (*api.AttendanceHistoryEntry, error)
}

type Request struct {
	api.ReportAbsenceRequest
}

type Response struct {
	response.Response
	Attendance api.AttendanceHistoryEntry `json:"attendance"`
}

func New(log *slog.Logger, reporter AbsenceReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.attendance.report.New"

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

		childID := chi.URLParam(r, "childId")

		entry, err := reporter.ReportAbsence(r.Context(), actor, childID, &req.ReportAbsenceRequest)
		if err != nil {
			handlers.Fail(log, w, r, err, "Failed to report absence")
			return
		}

		log.Info("Absence reported",
			slog.String("child_id", childID),
			slog.String("date", entry.Date),
			slog.String("status", req.Status),
		)

		render.JSON(w, r, Response{Attendance: *entry})
	}
}
