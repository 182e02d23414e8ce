package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hasnin090/iq-sub003/internal/session"
)

// SessionLocalKey is where the resolved session is kept in fiber locals.
const SessionLocalKey = "session"

// RequireSession resolves "Authorization: Bearer <token>" against store and
// rejects the request with 401 when the token is missing, unknown or expired.
// Store failures other than not-found surface as 503.
func RequireSession(store session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := BearerToken(c)
		if token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		s, err := store.Get(c.UserContext(), token)
		switch {
		case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrExpired):
			return fiber.NewError(fiber.StatusUnauthorized, "invalid session")
		case err != nil:
			return fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}

		c.Locals(SessionLocalKey, &s)
		return c.Next()
	}
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentSession returns the session RequireSession stored, or nil.
func CurrentSession(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals(SessionLocalKey).(*session.Session)
	return s
}
