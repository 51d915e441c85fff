// Package main provides the entry point for the Caia OCR server
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Caia-Tech/caia-ocr/internal/api"
	"github.com/Caia-Tech/caia-ocr/internal/config"
	"github.com/Caia-Tech/caia-ocr/internal/orchestrator"
	"github.com/Caia-Tech/caia-ocr/internal/session"
	"github.com/Caia-Tech/caia-ocr/internal/storage"
	"github.com/Caia-Tech/caia-ocr/internal/telemetry"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/activities"
	"github.com/Caia-Tech/caia-ocr/internal/temporal/workflows"
	"github.com/Caia-Tech/caia-ocr/pkg/extractor"
	"github.com/Caia-Tech/caia-ocr/pkg/logging"
	"github.com/Caia-Tech/caia-ocr/pkg/ocrmodel"
	"github.com/Caia-Tech/caia-ocr/pkg/rasterizer"
	"github.com/Caia-Tech/caia-ocr/pkg/ratelimit"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	cfg, err := config.Load(os.Getenv("CAIA_OCR_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.SetupLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	logger := logging.GetLogger("server")

	if err := os.MkdirAll(cfg.Storage.UploadDir, 0755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.Storage.UploadDir).Msg("Failed to create upload directory")
	}

	store := session.NewStore(cfg.Storage.UploadDir)
	cacheMetrics := storage.NewSimpleMetricsCollector()
	cache := storage.NewFileCache(cacheMetrics)
	metrics := telemetry.New()

	tools, err := newRasterizer(cfg.Processing)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid processing configuration")
	}

	model, err := newModel(cfg.Model, cfg.Processing)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure OCR model")
	}
	limited := ocrmodel.WithLimiter(model, ratelimit.New(cfg.Model.MinInterval))

	pdfs := extractor.NewPDFExtractor()
	opts := orchestrator.Options{
		ModelTimeout: cfg.Processing.ModelTimeout,
		PageLocks:    cfg.Processing.PageLocks,
		Metrics:      metrics,
	}
	if cfg.Processing.PureGoTextFallback {
		opts.TextFallback = pdfs
	}
	orch := orchestrator.New(cache, tools, limited, opts)

	routes := api.Routes{
		Handlers: api.NewHandlers(store, cache, orch, pdfs, metrics),
		Storage:  api.NewStorageHandler(cacheMetrics, limited),
		Metrics:  metrics,
	}

	if cfg.Temporal.Enabled {
		temporalClient, err := client.Dial(client.Options{
			HostPort: cfg.Temporal.HostPort,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("host_port", cfg.Temporal.HostPort).Msg("Failed to create Temporal client")
		}
		defer temporalClient.Close()

		w := worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
			// one page at a time per worker
			MaxConcurrentActivityExecutionSize: 1,
		})
		w.RegisterWorkflow(workflows.DocumentOCRWorkflow)
		w.RegisterActivity(activities.NewOCRActivities(store, orch).OCRPageActivity)

		go func() {
			if err := w.Run(worker.InterruptCh()); err != nil {
				logger.Fatal().Err(err).Msg("Failed to start worker")
			}
		}()

		routes.Workflows = api.NewWorkflowHandler(temporalClient, store, pdfs, cfg.Temporal.TaskQueue)
		logger.Info().Str("task_queue", cfg.Temporal.TaskQueue).Msg("Temporal worker started")
	}

	app := api.NewApp(api.AppConfig{
		CORSOrigins:   cfg.Server.CORSOrigins,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		RequestLog:    true,
	})
	api.SetupRoutes(app, routes)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	logger.Info().
		Str("port", cfg.Server.Port).
		Str("upload_dir", cfg.Storage.UploadDir).
		Str("model", cfg.Model.Provider).
		Bool("temporal", cfg.Temporal.Enabled).
		Msg("Starting Caia OCR server")
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start server")
	}
}

func newRasterizer(cfg config.ProcessingConfig) (*rasterizer.Rasterizer, error) {
	patterns, err := rasterizer.ParsePatterns(cfg.ImagePatterns)
	if err != nil {
		return nil, err
	}

	r := rasterizer.New()
	r.PdfToText = cfg.PdfToTextPath
	r.PdfToPPM = cfg.PdfToPPMPath
	r.DPI = cfg.DPI
	r.Timeout = cfg.ToolTimeout
	r.Resolver = rasterizer.NewResolver(patterns)
	return r, nil
}

func newModel(cfg config.ModelConfig, processing config.ProcessingConfig) (ocrmodel.Model, error) {
	switch cfg.Provider {
	case "tesseract":
		if !extractor.TesseractAvailable {
			return nil, fmt.Errorf("tesseract provider requires a build with -tags ocr")
		}
		return ocrmodel.NewTesseract(cfg.OCRLanguage), nil
	case "gemini":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("model.api_key is required for the gemini provider")
		}
		return ocrmodel.NewGemini(ocrmodel.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Name,
			BaseURL: cfg.BaseURL,
			Timeout: processing.ModelTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
