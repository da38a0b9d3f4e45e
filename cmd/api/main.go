package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	config "github.com/anjiri1684/medichat/configs"
	"github.com/anjiri1684/medichat/database"
	"github.com/anjiri1684/medichat/directory"
	"github.com/anjiri1684/medichat/events"
	"github.com/anjiri1684/medichat/handlers"
	"github.com/anjiri1684/medichat/jobs"
	applog "github.com/anjiri1684/medichat/logger"
	"github.com/anjiri1684/medichat/metrics"
	"github.com/anjiri1684/medichat/presence"
	"github.com/anjiri1684/medichat/routes"
	"github.com/anjiri1684/medichat/services"
	"github.com/anjiri1684/medichat/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🔥 Failed to load configuration: %v", err)
	}

	zlog, err := applog.New(cfg.LogDevelopment)
	if err != nil {
		log.Fatalf("🔥 Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatalw("🔥 Failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatalw("🔥 Failed to migrate database", "error", err)
	}
	zlog.Info("✅ Database connection successfully opened")

	m := metrics.New(prometheus.DefaultRegisterer)

	hubOpts := websocket.HubOptions{
		EchoToSender: cfg.EchoToSender,
		Metrics:      m,
		Log:          zlog.Named("hub"),
	}
	var presenceLookup handlers.PresenceLookup
	if cfg.RedisAddr != "" {
		rdb, err := presence.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			zlog.Fatalw("🔥 Failed to connect to Redis", "error", err)
		}
		defer rdb.Close()
		store := presence.NewRedisStore(rdb, cfg.RedisPrefix)
		hubOpts.Presence = store
		presenceLookup = store
		zlog.Infow("✅ Presence mirrored to Redis", "addr", cfg.RedisAddr)
	}
	hub := websocket.NewHub(hubOpts)
	go hub.Run(ctx)

	store := services.NewMessageStore(db, m)
	reads := services.NewReadStateTracker(db, m)
	identity := directory.NewIdentity(db)
	index := services.NewConversationIndex(store, directory.NewBookings(db), identity, zlog.Named("index"))
	admin := services.NewChatAdministration(store, m, zlog.Named("admin"))

	deps := services.ChatServiceDeps{
		Store:    store,
		Reads:    reads,
		Index:    index,
		Admin:    admin,
		Identity: identity,
		Router:   hub,
		Log:      zlog.Named("chat"),
	}

	c := cron.New()
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer publisher.Close()
		deps.Events = publisher

		interval, err := jobs.ScheduleInterval(cfg.UnreadReminderSchedule)
		if err != nil {
			zlog.Fatalw("🔥 Invalid unread reminder schedule", "error", err)
		}
		reminder := jobs.NewUnreadReminder(reads, publisher, cfg.UnreadReminderAfter, interval, zlog.Named("jobs"))
		if _, err := c.AddFunc(cfg.UnreadReminderSchedule, reminder.Run); err != nil {
			zlog.Fatalw("🔥 Failed to schedule unread reminders", "error", err)
		}
		zlog.Infow("✅ Cron job for unread reminders scheduled successfully", "schedule", cfg.UnreadReminderSchedule)
	} else {
		zlog.Warn("⚠️ KAFKA_BROKERS not set: unread reminders and message events are disabled")
	}
	c.Start()
	defer c.Stop()

	chat := services.NewChatService(deps)
	transcripts := services.NewTranscriptService(store, identity)

	app := fiber.New(fiber.Config{
		AppName:       "MediChat",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			zlog.Errorw("request failed", "error", err, "path", c.Path(), "method", c.Method())
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, PUT, PATCH, DELETE, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Disposition",
		MaxAge:        86400,
	}))
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Africa/Nairobi",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.MessagingRoutes(app,
		handlers.NewChatHandler(chat, transcripts, presenceLookup, zlog.Named("http")),
		handlers.NewRealtimeHandler(hub, chat, cfg.JWTSecret, cfg.ClientBuffer, zlog.Named("ws")),
		cfg.JWTSecret,
	)
	routes.UploadRoutes(app, handlers.NewUploadHandler(cfg.CloudinaryURL, cfg.CloudinaryFolder), cfg.JWTSecret)

	go func() {
		<-ctx.Done()
		zlog.Info("shutting down")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	zlog.Infof("✅ Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatalw("🔥 Server failed to start", "error", err)
	}
}
