package httputil

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/tokenboard/tokenboard/internal/auth"
	"github.com/tokenboard/tokenboard/internal/identity"
	"github.com/tokenboard/tokenboard/internal/ingest"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
	"github.com/tokenboard/tokenboard/internal/timeutil"
)

// WriteError standardizes JSON error responses for both admin and public APIs.
func WriteError(c *fiber.Ctx, status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
	})
}

// WriteServiceError maps known service errors to their HTTP status. Unmapped
// errors become opaque 500s so internals never leak into responses.
func WriteServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, timeutil.ErrInvalidPeriod),
		errors.Is(err, timeutil.ErrInvalidBucket),
		errors.Is(err, timeutil.ErrInvalidTimeRange),
		errors.Is(err, timeutil.ErrInvalidDate),
		errors.Is(err, leaderboard.ErrInvalidLimit),
		errors.Is(err, leaderboard.ErrInvalidTopN),
		errors.Is(err, ingest.ErrInvalidPayload),
		errors.Is(err, identity.ErrInvalidUser):
		return WriteError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrTooManyDays):
		return WriteError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, auth.ErrInvalidAPIKey),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrBadCredentials):
		return WriteError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrUserNotFound):
		return WriteError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, identity.ErrUserExists):
		return WriteError(c, fiber.StatusConflict, err.Error())
	default:
		return WriteError(c, fiber.StatusInternalServerError, "internal error")
	}
}
