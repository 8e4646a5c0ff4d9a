package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tournament-enrollment-system/config"
	"tournament-enrollment-system/handlers"
	"tournament-enrollment-system/logging"
	"tournament-enrollment-system/models"
	"tournament-enrollment-system/services"
	"tournament-enrollment-system/utils"
	"tournament-enrollment-system/workers"
)

func main() {
	_ = godotenv.Load()

	conf, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	if err := logging.Init(conf.Environment); err != nil {
		panic(err)
	}
	log := zap.L()

	if conf.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := models.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	reports, err := utils.NewR2Client(
		conf.Monitor.AccountID,
		conf.Monitor.AccessKeyID,
		conf.Monitor.AccessKeySecret,
		conf.Monitor.ReportBucket,
	)
	if err != nil {
		log.Fatal("failed to initialize report sink", zap.Error(err))
	}
	monitor := workers.NewInvariantMonitor(db, reports)

	// "monitor" runs one sweep and exits non-zero on violations, for cron or
	// CI use.
	if len(os.Args) > 1 && os.Args[1] == "monitor" {
		report, err := monitor.RunOnce(context.Background())
		if err != nil {
			log.Fatal("sweep failed", zap.Error(err))
		}
		if len(report.Violations) > 0 {
			os.Exit(1)
		}
		return
	}

	payouts := services.ResolvePayouts(conf.Payouts)
	xpPayouts := services.ResolvePayouts(conf.XPPayouts)

	adminService := services.NewAdminService(db)
	accountService := services.NewAccountService(db)
	enrollmentService := services.NewEnrollmentService(db)
	bookingService := services.NewBookingService(db)
	finalizeService := services.NewFinalizeService(db, payouts, xpPayouts)
	progressionService := services.NewProgressionService(db)

	sched, err := monitor.Start(conf.Monitor.Interval)
	if err != nil {
		log.Fatal("failed to start invariant monitor", zap.Error(err))
	}

	app := fiber.New()
	app.Use(cors.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.SetupTournamentRoutes(app, adminService, enrollmentService, finalizeService)
	handlers.SetupSessionRoutes(app, adminService, bookingService)
	handlers.SetupAccountRoutes(app, accountService, progressionService)

	go func() {
		if err := app.Listen(conf.ListenAddr); err != nil {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	log.Info("listening", zap.String("addr", conf.ListenAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	_ = sched.Shutdown()
	_ = app.Shutdown()
}
