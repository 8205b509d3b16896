package auth

import (
	"crypto/subtle"
	"os"

	"github.com/gofiber/fiber/v2"
)

// IssueAdminToken exchanges the operator API key for a short-lived admin
// JWT. The key comes from the environment; without one configured the
// endpoint is disabled.
func IssueAdminToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		configured := os.Getenv("ADMIN_API_KEY")
		if configured == "" {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Admin token issuance is not configured",
			})
		}

		presented := c.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid admin key",
			})
		}

		token, err := GenerateJWT("operator", "admin")
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to generate token",
			})
		}

		return c.JSON(fiber.Map{"token": token})
	}
}
