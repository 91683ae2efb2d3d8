package handlers

import (
	"context"
	"time"

	"healthcompanion/config"

	"github.com/gofiber/fiber/v2"
)

const healthCheckTimeout = 2 * time.Second

func HealthHandler(router fiber.Router, config config.Config, ping func(ctx context.Context) error) {
	router.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":  "ok",
			"version": config.GeneralVersion,
			"service": "health_companion_api",
		}

		if ping != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
			defer cancel()
			if err := ping(ctx); err != nil {
				body["status"] = "degraded"
				body["error"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(body)
			}
		}

		return c.JSON(body)
	})
}
