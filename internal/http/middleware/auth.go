package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// AdminTokenHeader carries the elevated-privilege token for the admin surface.
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth guards admin routes behind a shared token. An empty configured
// token disables the whole surface rather than leaving it open.
func AdminAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return fiber.NewError(fiber.StatusForbidden, "admin surface disabled")
		}
		got := c.Get(AdminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin token")
		}
		return c.Next()
	}
}
