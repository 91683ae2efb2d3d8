package handlers

import (
	"context"

	"healthcompanion/internal/app"
	"healthcompanion/internal/handlers/middleware"
	"healthcompanion/internal/metrics"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

type Handler struct {
	middleware middleware.Middleware
	log        logger.Logger
	router     fiber.Router
}

// Dispatcher runs accepted work after the response has been written.
type Dispatcher func(ctx context.Context, fn func(ctx context.Context))

func Router(router fiber.Router, app *app.App) (err error) {
	router.Use(app.Middleware.TraceID())
	router.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(app.Registry)))

	api := router.Group("/api")
	HealthHandler(api, app.Config, app.Database.Ping)
	NewUploadHandler(app, api).Register()
	NewUserHandler(app, api).Register()
	NewAdminHandler(app, api).Register()

	return nil
}

func badRequest(c *fiber.Ctx, message string, err error) error {
	body := fiber.Map{"error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(body)
}
