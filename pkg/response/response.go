package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST     ErrCode = "REQUEST_FAILED"
	BAD_REQUEST        ErrCode = "FAILED_TO_DECODE"
	VALIDATION_FAILED  ErrCode = "VALIDATION_FAILED"
	NOT_FOUND          ErrCode = "NOT_FOUND"
	LOCKED             ErrCode = "LOCKED"
	CONFLICT           ErrCode = "CONFLICT"
	SESSION_NOT_ACTIVE ErrCode = "SESSION_NOT_ACTIVE"
	STALE_UPDATE       ErrCode = "STALE_UPDATE"
	UNAUTHORIZED       ErrCode = "UNAUTHORIZED"
	FORBIDDEN          ErrCode = "FORBIDDEN"
)

var (
	ErrNotFound         = errors.New("resource not found")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrSessionNotActive = errors.New("tracking session is not active")
	ErrStaleUpdate      = errors.New("location update is older than the last accepted one")
	ErrLocked           = errors.New("resource is locked")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
)

// InputError carries a message that is safe to return to the client.
// It matches ErrValidation with errors.Is.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Is(target error) bool {
	return target == ErrValidation
}

func Invalid(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsg []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' is required", err.Field()))
		case "min", "gte":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be at least %s", err.Field(), err.Param()))
		case "max", "lte", "lt":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be below %s", err.Field(), err.Param()))
		case "oneof":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must be one of [%s]", err.Field(), err.Param()))
		case "datetime":
			errMsg = append(errMsg, fmt.Sprintf("field '%s' must match %s", err.Field(), err.Param()))
		default:
			errMsg = append(errMsg, fmt.Sprintf("field '%s' is invalid", err.Field()))
		}
	}

	return Error(string(VALIDATION_FAILED), strings.Join(errMsg, ", "))
}

// FromError maps a service error onto an HTTP status and body.
// Unknown errors become a 500 carrying fallback, never the error text.
func FromError(err error, fallback string) (int, Response) {
	var input *InputError

	switch {
	case errors.As(err, &input):
		return http.StatusBadRequest, Error(string(VALIDATION_FAILED), input.Message)
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, Error(string(VALIDATION_FAILED), "invalid request")
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, Error(string(NOT_FOUND), "resource not found")
	case errors.Is(err, ErrSessionNotActive):
		return http.StatusConflict, Error(string(SESSION_NOT_ACTIVE), "tracking session is not active")
	case errors.Is(err, ErrStaleUpdate):
		return http.StatusConflict, Error(string(STALE_UPDATE), "location update is older than the last accepted one")
	case errors.Is(err, ErrConflict):
		return http.StatusConflict, Error(string(CONFLICT), "bus is already being tracked by another session")
	case errors.Is(err, ErrLocked):
		return http.StatusLocked, Error(string(LOCKED), "resource is busy, retry later")
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, Error(string(UNAUTHORIZED), "authentication required")
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, Error(string(FORBIDDEN), "access denied")
	default:
		return http.StatusInternalServerError, Error(string(FAILED_REQUEST), fallback)
	}
}
