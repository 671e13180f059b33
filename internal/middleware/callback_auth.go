package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/brightclass/api/pkg/response"
)

// CallbackAuthMiddleware guards the worker result callback surface
// with a shared secret header. An empty configured secret disables
// the check (local development).
func CallbackAuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Next()
		}
		got := c.Get("X-Callback-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return response.Unauthorized(c, "Invalid callback secret")
		}
		return c.Next()
	}
}
