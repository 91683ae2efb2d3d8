package handlers

import (
	"context"

	"healthcompanion/internal/app"
	"healthcompanion/internal/handlers/middleware"
	"healthcompanion/internal/models"
	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

type tickRouter interface {
	RouteTick(ctx context.Context, tick services.ScheduleTick) (*services.TickReport, error)
	SweepPending(ctx context.Context) ([]*services.PipelineRun, error)
}

type AdminHandler struct {
	Handler
	ticks    tickRouter
	dispatch Dispatcher
}

type digestRequest struct {
	Date  string `json:"date"`
	Force bool   `json:"force"`
}

func NewAdminHandler(app *app.App, router fiber.Router) *AdminHandler {
	return newAdminHandler(app.Services.Router, app.Dispatch, app.Middleware, router)
}

func newAdminHandler(
	tickRouter tickRouter,
	dispatch Dispatcher,
	middleware middleware.Middleware,
	router fiber.Router,
) *AdminHandler {
	return &AdminHandler{
		ticks:    tickRouter,
		dispatch: dispatch,
		Handler: Handler{
			log:        logger.New("handlers").File("admin_handler"),
			router:     router,
			middleware: middleware,
		},
	}
}

func (h *AdminHandler) Register() {
	admin := h.router.Group("/admin", h.middleware.RequireAdminToken())
	admin.Post("/digest", h.triggerDigest)
	admin.Post("/sweep", h.triggerSweep)
}

// triggerDigest re-runs the daily fan-out for a date, today by default.
func (h *AdminHandler) triggerDigest(c *fiber.Ctx) error {
	ctx := c.UserContext()
	log := h.log.TraceFromContext(ctx).Function("triggerDigest")

	var req digestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			log.Warn("Invalid request body", "error", err)
			return badRequest(c, "Invalid request body", err)
		}
	}

	tick := services.ScheduleTick{Force: req.Force}
	if req.Date != "" {
		date, err := models.ParseDate(req.Date)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD", err)
		}
		tick.Date = date
	}

	log.Info("manual digest requested", "date", req.Date, "force", req.Force)
	h.dispatch(ctx, func(ctx context.Context) {
		if _, err := h.ticks.RouteTick(ctx, tick); err != nil {
			log.Er("manual digest failed", err, "date", req.Date)
		}
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"date":    req.Date,
		"force":   req.Force,
		"traceId": middleware.GetTraceID(c),
	})
}

func (h *AdminHandler) triggerSweep(c *fiber.Ctx) error {
	ctx := c.UserContext()
	log := h.log.TraceFromContext(ctx).Function("triggerSweep")

	h.dispatch(ctx, func(ctx context.Context) {
		if _, err := h.ticks.SweepPending(ctx); err != nil {
			log.Er("manual sweep failed", err)
		}
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"traceId": middleware.GetTraceID(c),
	})
}
