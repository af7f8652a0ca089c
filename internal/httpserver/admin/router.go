package admin

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/tokenboard/tokenboard/internal/app"
	"github.com/tokenboard/tokenboard/internal/httpserver/httputil"
	"github.com/tokenboard/tokenboard/internal/identity"
	"github.com/tokenboard/tokenboard/internal/leaderboard"
)

// Register mounts the admin API. Everything except login sits behind the
// session-token middleware.
func Register(router fiber.Router, container *app.Container) {
	h := &handler{container: container}

	group := router.Group("/api/admin")
	group.Post("/login", h.login)

	guarded := group.Use(requireSession(container))
	guarded.Get("/users", h.listUsers)
	guarded.Post("/users", h.createUser)
	guarded.Post("/users/:id/api-keys", h.issueAPIKey)
}

type handler struct {
	container *app.Container
}

func requireSession(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return httputil.WriteError(c, fiber.StatusUnauthorized, "missing session token")
		}
		if _, err := container.Admin.Authorize(strings.TrimSpace(token)); err != nil {
			return httputil.WriteServiceError(c, err)
		}
		return c.Next()
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "malformed login payload")
	}
	token, expires, err := h.container.Admin.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"token":     token,
		"expiresAt": expires.UTC().Format(time.RFC3339),
	})
}

func (h *handler) listUsers(c *fiber.Ctx) error {
	users, err := h.container.Directory.ListUsers(c.Context())
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	out := make([]fiber.Map, 0, len(users))
	for _, u := range users {
		out = append(out, fiber.Map{
			"id":          u.ID,
			"displayName": u.DisplayName,
			"team":        u.Team,
		})
	}
	return c.JSON(fiber.Map{"users": out})
}

func (h *handler) createUser(c *fiber.Ctx) error {
	var params identity.CreateUserParams
	if err := c.BodyParser(&params); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "malformed user payload")
	}
	user, err := h.container.Directory.CreateUser(c.Context(), params)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"team":        user.Team,
	})
}

func (h *handler) issueAPIKey(c *fiber.Ctx) error {
	userID := leaderboard.UserID(strings.TrimSpace(c.Params("id")))
	if _, err := h.container.Directory.GetUser(c.Context(), userID); err != nil {
		return httputil.WriteServiceError(c, err)
	}
	key, token, err := h.container.Keys.Issue(c.Context(), userID)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     key.ID,
		"prefix": key.Prefix,
		"token":  token,
	})
}
