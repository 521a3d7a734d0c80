package routes

import (
	controller "outreach/controllers"
	"outreach/middleware"
	"outreach/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"
)

// Deps are the collaborators the API routes need
type Deps struct {
	DB            *gorm.DB
	Mailer        utils.MailServiceInterface
	Hub           *controller.TimelineHub
	SendRateLimit int
	LimiterStore  fiber.Storage
}

func SetupAPIRoutes(app *fiber.App, deps Deps) {
	connectionController := controller.NewConnectionController(deps.DB, utils.NewLogger("connections"))
	draftController := controller.NewDraftController(deps.DB, utils.NewLogger("drafts"))
	emailController := controller.NewEmailController(deps.DB, deps.Mailer, utils.NewLogger("email"))
	timelineController := controller.NewTimelineController(deps.DB, deps.Hub, utils.NewLogger("timeline"))

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(deps.DB), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Connection routes
	connections := api.Group("/connections")
	connections.Post("/", connectionController.CreateConnection)
	connections.Get("/", connectionController.GetConnections)
	connections.Get("/:id", connectionController.GetConnection)
	connections.Put("/:id/status", connectionController.UpdateStatus)
	connections.Delete("/:id", connectionController.DeleteConnection)
	connections.Post("/:id/composer-open", connectionController.MarkComposerOpened)

	// Draft and send routes
	connections.Get("/:id/draft", draftController.GetDraft)
	connections.Put("/:id/draft", draftController.SaveDraft)
	connections.Post("/:id/send", middleware.SendRateLimiter(deps.SendRateLimit, deps.LimiterStore), emailController.SendEmail)

	// Timeline routes
	connections.Get("/:id/timeline", timelineController.GetTimeline)
	connections.Patch("/:id/timeline/stages/:stageId", timelineController.UpdateStage)
	connections.Post("/:id/timeline/advance", timelineController.AdvanceTimeline)

	// WebSocket route for live timeline updates
	connections.Get("/:id/timeline/ws", controller.UpgradeTimelineWS(deps.DB), websocket.New(deps.Hub.HandleTimelineWS))
}

func SetupRoutes(app *fiber.App, deps Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupAPIRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
