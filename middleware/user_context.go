package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// UserContext extracts the user identity forwarded by the gateway. Routes that
// act on behalf of a user require X-User-ID; the gateway owns authentication,
// this service only trusts its headers.
func UserContext() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// UserID reads the identity the middleware attached. Only valid on routes
// behind UserContext.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
