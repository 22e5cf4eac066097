package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/database"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/database/migration"
	handlers "github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/http/handler"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/http/middleware"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/otel"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository/postgres"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/retention"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/service"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage"
)

func main() {
	// Configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	loc := time.Local
	ctx := context.Background()

	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	objStore, err := storage.NewMinIO(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	attRepo := postgres.NewAttachmentPostgres(db)
	trackRepo := postgres.NewTrackingPostgres(db)
	runsRepo := postgres.NewCleanupRunPostgres(db)
	attSvc := service.NewAttachmentService(objStore, attRepo, trackRepo)

	retentionMetrics, err := retention.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register retention metrics: %v", err)
	}
	scheduler := retention.NewScheduler(objStore, attRepo, trackRepo, runsRepo, cfg.Retention, retentionMetrics)

	var sweepCron *cron.Cron
	if cfg.Retention.Enabled {
		c, err := retention.StartCron(scheduler, cfg.Retention)
		if err != nil {
			log.Fatalf("failed to start retention cron: %v", err)
		}
		sweepCron = c
	}

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to register http metrics: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, db, attSvc, cfg.PublicBaseURL)

	adminHandler := handlers.NewAdminHandler(objStore, attRepo, runsRepo, scheduler, attSvc, cfg.Retention)
	handlers.RegisterAdminRoutes(app, adminHandler, cfg.AdminToken)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(cfg.AppHost + ":" + cfg.Port)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server stopped: %v", err)
	case s := <-sig:
		log.Printf("received %s, shutting down", s)
	}

	if sweepCron != nil {
		// Wait for an in-flight sweep to finish before closing the DB.
		<-sweepCron.Stop().Done()
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
