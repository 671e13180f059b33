package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/brightclass/api/pkg/response"
)

// GatewayAuthMiddleware reads tenant identity from X-Tenant-* headers
// set by the edge gateway's ForwardAuth and populates Fiber context
// locals. Session mechanics live at the edge, not here.
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID := c.Get("X-Tenant-Id")
		if tenantID == "" {
			return response.Unauthorized(c, "Missing tenant identity headers")
		}

		c.Locals("tenantId", tenantID)
		c.Locals("userId", c.Get("X-User-Id"))

		return c.Next()
	}
}

// GetTenantID extracts the tenant ID from context
func GetTenantID(c *fiber.Ctx) string {
	if tenantID, ok := c.Locals("tenantId").(string); ok {
		return tenantID
	}
	return ""
}

// GetUserID extracts the user ID from context
func GetUserID(c *fiber.Ctx) string {
	if userID, ok := c.Locals("userId").(string); ok {
		return userID
	}
	return ""
}
