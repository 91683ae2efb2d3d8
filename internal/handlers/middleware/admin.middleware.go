package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken guards manual re-trigger endpoints with a shared token.
// With no ADMIN_TOKEN configured the guard is open.
func (m *Middleware) RequireAdminToken() fiber.Handler {
	log := m.log.Function("RequireAdminToken")
	expected := []byte(m.Config.AdminToken)

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Next()
		}

		provided := []byte(c.Get(AdminTokenHeader))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			log.Info("admin token rejected", "path", c.Path(), "ip", c.IP())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
			})
		}

		return c.Next()
	}
}
