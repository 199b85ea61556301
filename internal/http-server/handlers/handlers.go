// Package handlers holds the pieces every endpoint shares: caller lookup,
// body decoding with validation and error rendering.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/chathuwa-whiz/schoolbus/internal/http-server/middleware/auth"
	"github.com/chathuwa-whiz/schoolbus/internal/models"
	"github.com/chathuwa-whiz/schoolbus/pkg/logger/sl"
	"github.com/chathuwa-whiz/schoolbus/pkg/response"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names so messages match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Actor returns the authenticated caller. It renders 401 when the auth
// middleware did not run.
func Actor(log *slog.Logger, w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		log.Error("No actor in request context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error(string(response.UNAUTHORIZED), "authentication required"))
		return models.Actor{}, false
	}

	return actor, true
}

// Decode reads the JSON body into v and validates its struct tags. On
// failure the 400 response is already written.
func Decode(log *slog.Logger, w http.ResponseWriter, r *http.Request, v any) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		log.Error("Failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error(string(response.BAD_REQUEST), "failed to decode request"))
		return false
	}

	log.Debug("Request body decoded", slog.Any("request", v))

	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			log.Error("Failed to validate request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error(string(response.VALIDATION_FAILED), "invalid request"))
			return false
		}

		log.Info("Invalid request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(verrs))
		return false
	}

	return true
}

// Fail renders err. Server side failures are logged with the wrapped
// chain; client errors only at info.
func Fail(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error, msg string) {
	status, resp := response.FromError(err, strings.ToLower(msg))

	if status >= http.StatusInternalServerError {
		log.Error(msg, sl.Err(err))
	} else {
		log.Info("Request rejected", slog.Int("status", status), sl.Err(err))
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}
