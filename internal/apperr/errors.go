package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUntrained       = errors.New("classifier not trained")
	ErrCapability      = errors.New("capability failure")
	ErrIO              = errors.New("io failure")
)

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Invalid wraps ErrInvalidArgument with a formatted message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Capability wraps err as a face/QR capability failure.
func Capability(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCapability, op, err)
}

// IO wraps err as a media write/read failure.
func IO(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// Kind names the taxonomy bucket of err, "internal" when it has none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUntrained):
		return "untrained"
	case errors.Is(err, ErrCapability):
		return "capability_failure"
	case errors.Is(err, ErrIO):
		return "io_failure"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the status code the console answers with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "":
		return http.StatusOK
	case "not_found":
		return http.StatusNotFound
	case "invalid_argument":
		return http.StatusBadRequest
	case "untrained":
		return http.StatusConflict
	case "capability_failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
