package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/cyberella/handson/internal/identity"
	"github.com/cyberella/handson/internal/password"
)

const genericServerError = "An unexpected error occurred"

// statusFor maps domain errors onto transport status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, identity.ErrEmailAlreadyRegistered),
		errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, identity.ErrInvalidEmailFormat),
		errors.Is(err, identity.ErrInvalidName),
		errors.Is(err, identity.ErrInvalidPhone),
		errors.Is(err, identity.ErrInvalidFaceCount),
		errors.Is(err, identity.ErrInvalidTwoFactorCode),
		errors.Is(err, identity.ErrTwoFactorNotPending),
		errors.Is(err, password.ErrWeak):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// httpError converts err into a *fiber.Error. Server errors keep their detail
// out of the response body.
func httpError(err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return &fiber.Error{Code: status, Message: genericServerError}
	}
	return fiber.NewError(status, err.Error())
}

func badRequest(msg string) error {
	return fiber.NewError(http.StatusBadRequest, msg)
}

type errorResponse struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	Timestamp string `json:"timestamp"`
}

// ErrorHandler renders every handler error as a JSON errorResponse. Errors
// that are not *fiber.Error are logged and reported as 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := http.StatusInternalServerError
		message := genericServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		} else {
			logger.Error("unhandled error", slog.String("path", c.Path()), slog.Any("error", err))
		}

		return c.Status(status).JSON(errorResponse{
			Status:    status,
			Error:     http.StatusText(status),
			Message:   message,
			Path:      c.Path(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}
