package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreach/config"
	controller "outreach/controllers"
	"outreach/middleware"
	"outreach/routes"
	"outreach/utils"
	"outreach/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logger := utils.NewLogger("server")

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg := config.AppConfig

	if cfg.Environment != "production" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.WithError(err).Warn("Sentry initialization failed")
	}
	defer sentry.Flush(2 * time.Second)

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	app := fiber.New()
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		MaxAge:           86400,
	}))

	hub := controller.NewTimelineHub(utils.NewLogger("timeline_hub"))
	mailer := utils.NewSMTPMailer(cfg.SMTP)

	routes.SetupRoutes(app, routes.Deps{
		DB:            config.DB,
		Mailer:        mailer,
		Hub:           hub,
		SendRateLimit: cfg.SendRateLimit,
		LimiterStore:  middleware.NewRateLimitStorage(cfg.Redis),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.IMAP.Enabled() {
		replyWorker := worker.NewReplyWorker(
			config.DB,
			worker.NewIMAPFetcher(cfg.IMAP),
			hub,
			cfg.ReplyPollInterval,
			utils.NewLogger("reply_worker"),
		)
		go replyWorker.Start(ctx)
	} else {
		logger.Info("IMAP not configured, reply worker disabled")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down server...")
		cancel()
		if err := app.Shutdown(); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.WithField("port", cfg.ServerPort).Info("Server starting")
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.WithError(err).Fatal("Failed to start server")
	}
}
