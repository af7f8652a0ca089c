package public

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tokenboard/tokenboard/internal/app"
	"github.com/tokenboard/tokenboard/internal/auth"
	"github.com/tokenboard/tokenboard/internal/httpserver/httputil"
	"github.com/tokenboard/tokenboard/internal/ingest"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

const userIDKey = "sync_user_id"

// requireAPIKey authenticates the bearer token against stored key digests
// and stashes the owning user ID on the request.
func requireAPIKey(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "missing api key")
		}
		userID, err := container.Keys.Verify(c.Context(), token)
		if err != nil {
			return httputil.WriteServiceError(c, err)
		}
		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if rest, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(c.Get("X-API-Key"))
}

func (h *handler) sync(c *fiber.Ctx) error {
	userID, ok := c.Locals(userIDKey).(leaderboard.UserID)
	if !ok {
		return httputil.WriteServiceError(c, auth.ErrInvalidAPIKey)
	}

	var req ingest.SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "malformed sync payload")
	}

	result, err := h.container.Ingest.Sync(c.Context(), userID, req)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.JSON(result)
}
