package api

import (
	"github.com/Caia-Tech/caia-ocr/internal/telemetry"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// AppConfig configures the Fiber application
type AppConfig struct {
	CORSOrigins   string
	MaxUploadSize int
	RequestLog    bool
}

// NewApp creates the Fiber app with the standard middleware
func NewApp(cfg AppConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Caia OCR API",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxUploadSize,
		ErrorHandler:          ErrorHandler,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if cfg.RequestLog {
		app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "UTC",
		}))
	}

	origins := cfg.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	return app
}

// Routes groups the handlers mounted by SetupRoutes. Workflows and Metrics
// may be nil.
type Routes struct {
	Handlers  *Handlers
	Storage   *StorageHandler
	Workflows *WorkflowHandler
	Metrics   *telemetry.Metrics
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, r Routes) {
	app.Get("/health", r.Handlers.Health)

	// Endpoints used by the browser client
	app.Post("/api/upload", r.Handlers.Upload)
	app.Post("/api/ocr", r.Handlers.OCR)

	v1 := app.Group("/api/v1")

	sessions := v1.Group("/sessions")
	sessions.Get("/:id/results", r.Handlers.SessionResults)
	sessions.Get("/:id/search", r.Handlers.SearchSession)

	if r.Workflows != nil {
		sessions.Post("/:id/process", r.Workflows.ProcessSession)
		v1.Get("/workflows/:id", r.Workflows.GetWorkflow)
	}

	if r.Storage != nil {
		v1.Get("/stats", r.Storage.GetStats)
		v1.Delete("/stats", r.Storage.ClearStats)
	}

	if r.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(r.Metrics.Handler()))
	}
}
