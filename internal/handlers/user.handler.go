package handlers

import (
	"context"
	"errors"
	"time"

	"healthcompanion/internal/app"
	"healthcompanion/internal/handlers/middleware"
	"healthcompanion/internal/models"
	"healthcompanion/internal/services"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

type preferenceStore interface {
	GetUserPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	SavePreferences(ctx context.Context, prefs *models.UserPreferences) error
}

type summaryReader interface {
	Get(ctx context.Context, userID string, date time.Time) (*models.DailySummary, error)
	History(ctx context.Context, userID string, from, to time.Time) ([]*models.DailySummary, error)
}

type trendReader interface {
	Latest(ctx context.Context, userID string) (*models.HealthTrend, error)
}

const (
	defaultSummaryRangeDays = 7
	maxSummaryRangeDays     = 366
)

type UserHandler struct {
	Handler
	preferences preferenceStore
	summaries   summaryReader
	trends      trendReader
	now         func() time.Time
}

func NewUserHandler(app *app.App, router fiber.Router) *UserHandler {
	return newUserHandler(
		app.Services.Preferences,
		app.Services.Aggregator,
		app.Services.Trends,
		app.Middleware,
		router,
	)
}

func newUserHandler(
	preferences preferenceStore,
	summaries summaryReader,
	trends trendReader,
	middleware middleware.Middleware,
	router fiber.Router,
) *UserHandler {
	return &UserHandler{
		preferences: preferences,
		summaries:   summaries,
		trends:      trends,
		now:         time.Now,
		Handler: Handler{
			log:        logger.New("handlers").File("user_handler"),
			router:     router,
			middleware: middleware,
		},
	}
}

func (h *UserHandler) Register() {
	users := h.router.Group("/users/:userId")
	users.Get("/preferences", h.getPreferences)
	users.Put("/preferences", h.middleware.RequireAdminToken(), h.updatePreferences)
	users.Get("/summaries", h.listSummaries)
	users.Get("/summaries/:date", h.getSummary)
	users.Get("/trends/latest", h.getLatestTrend)
}

func (h *UserHandler) getPreferences(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("getPreferences")

	prefs, err := h.preferences.GetUserPreferences(c.UserContext(), c.Params("userId"))
	if err != nil {
		log.Er("failed to load preferences", err, "userID", c.Params("userId"))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Preferences unavailable",
		})
	}

	return c.JSON(prefs)
}

func (h *UserHandler) updatePreferences(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("updatePreferences")

	var prefs models.UserPreferences
	if err := c.BodyParser(&prefs); err != nil {
		log.Warn("Invalid request body", "error", err)
		return badRequest(c, "Invalid request body", err)
	}
	prefs.UserID = c.Params("userId")

	if err := h.preferences.SavePreferences(c.UserContext(), &prefs); err != nil {
		if errors.Is(err, services.ErrInvalidPreferences) {
			return badRequest(c, err.Error(), nil)
		}
		log.Er("failed to save preferences", err, "userID", prefs.UserID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save preferences",
		})
	}

	return c.JSON(prefs)
}

func (h *UserHandler) getSummary(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("getSummary")

	date, err := models.ParseDate(c.Params("date"))
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD", err)
	}

	summary, err := h.summaries.Get(c.UserContext(), c.Params("userId"), date)
	if err != nil {
		log.Er("failed to load summary", err, "userID", c.Params("userId"), "date", c.Params("date"))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Summary unavailable",
		})
	}
	if summary == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No summary for this date",
		})
	}

	return c.JSON(summary)
}

// listSummaries serves the summaries between the inclusive from and to
// query dates. Without them it covers the last seven days.
func (h *UserHandler) listSummaries(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("listSummaries")

	to := models.DateOf(h.now())
	if value := c.Query("to"); value != "" {
		parsed, err := models.ParseDate(value)
		if err != nil {
			return badRequest(c, "to must be YYYY-MM-DD", err)
		}
		to = parsed
	}

	from := to.AddDate(0, 0, -(defaultSummaryRangeDays - 1))
	if value := c.Query("from"); value != "" {
		parsed, err := models.ParseDate(value)
		if err != nil {
			return badRequest(c, "from must be YYYY-MM-DD", err)
		}
		from = parsed
	}

	if from.After(to) {
		return badRequest(c, "from must not be after to", nil)
	}
	if to.Sub(from) >= maxSummaryRangeDays*24*time.Hour {
		return badRequest(c, "range is limited to 366 days", nil)
	}

	userID := c.Params("userId")
	summaries, err := h.summaries.History(c.UserContext(), userID, from, to.AddDate(0, 0, 1))
	if err != nil {
		log.Er("failed to list summaries", err, "userID", userID)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Summaries unavailable",
		})
	}
	if summaries == nil {
		summaries = []*models.DailySummary{}
	}

	return c.JSON(fiber.Map{
		"userId":    userID,
		"from":      models.FormatDate(from),
		"to":        models.FormatDate(to),
		"summaries": summaries,
	})
}

func (h *UserHandler) getLatestTrend(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("getLatestTrend")

	trend, err := h.trends.Latest(c.UserContext(), c.Params("userId"))
	if err != nil {
		log.Er("failed to load trend", err, "userID", c.Params("userId"))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Trend unavailable",
		})
	}
	if trend == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No trend yet",
		})
	}

	return c.JSON(trend)
}
