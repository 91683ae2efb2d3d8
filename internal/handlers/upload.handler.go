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

type uploadPipeline interface {
	Ingest(ctx context.Context, event *models.UploadEvent) (bool, error)
	RunUpload(ctx context.Context, event models.UploadEvent) *services.PipelineRun
}

type UploadHandler struct {
	Handler
	pipeline uploadPipeline
	dispatch Dispatcher
}

type uploadRequest struct {
	ArtifactPath string    `json:"artifactPath"`
	UserID       string    `json:"userId"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewUploadHandler(app *app.App, router fiber.Router) *UploadHandler {
	return newUploadHandler(app.Services.Pipeline, app.Dispatch, app.Middleware, router)
}

func newUploadHandler(
	pipeline uploadPipeline,
	dispatch Dispatcher,
	middleware middleware.Middleware,
	router fiber.Router,
) *UploadHandler {
	return &UploadHandler{
		pipeline: pipeline,
		dispatch: dispatch,
		Handler: Handler{
			log:        logger.New("handlers").File("upload_handler"),
			router:     router,
			middleware: middleware,
		},
	}
}

func (h *UploadHandler) Register() {
	events := h.router.Group("/events")
	events.Post("/upload", h.receiveUpload)
}

// receiveUpload records the upload durably before acknowledging it, then runs
// the pipeline in the background. A 5xx tells the event source to redeliver.
func (h *UploadHandler) receiveUpload(c *fiber.Ctx) error {
	ctx := c.UserContext()
	log := h.log.TraceFromContext(ctx).Function("receiveUpload")

	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		log.Warn("Invalid request body", "error", err)
		return badRequest(c, "Invalid request body", err)
	}

	event, err := models.UploadEventFromPath(req.ArtifactPath, req.UserID, req.Timestamp)
	if err != nil {
		status := fiber.StatusBadRequest
		if errors.Is(err, models.ErrArtifactOwner) {
			status = fiber.StatusForbidden
		}
		log.Info("upload rejected", "artifactPath", req.ArtifactPath, "userID", req.UserID, "error", err)
		return c.Status(status).JSON(fiber.Map{"error": err.Error()})
	}

	isNew, err := h.pipeline.Ingest(ctx, event)
	if err != nil {
		log.Er("failed to record upload", err, "artifactRef", event.ArtifactRef)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Upload could not be recorded, retry later",
		})
	}

	if isNew {
		accepted := *event
		h.dispatch(ctx, func(ctx context.Context) {
			h.pipeline.RunUpload(ctx, accepted)
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"artifactRef": event.ArtifactRef,
		"userId":      event.UserID,
		"date":        models.FormatDate(event.Date()),
		"duplicate":   !isNew,
		"traceId":     middleware.GetTraceID(c),
	})
}
