package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/http/middleware"
	"github.com/hasnin090/iq-sub003/internal/session"
)

// Logout invalidates the caller's session.
func Logout(store session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := middleware.CurrentSession(c)
		if s == nil {
			return fiber.ErrUnauthorized
		}
		if err := store.Invalidate(c.UserContext(), s.Token); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
